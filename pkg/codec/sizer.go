package codec

// Sizer computes the exact number of bytes a value serializes to, starting
// from a given alignment within the current submessage. It mirrors the
// encoder write set, every type's Size method must visit the same fields
// in the same order as its Serialize.
type Sizer struct {
	start int
	pos   int
}

func NewSizer(currentAlignment int) *Sizer {
	return &Sizer{start: currentAlignment, pos: currentAlignment}
}

// Size returns the number of bytes accumulated so far
func (s *Sizer) Size() int {
	return s.pos - s.start
}

func (s *Sizer) Align(size int) *Sizer {
	s.pos += padding(s.pos, 0, size)
	return s
}

func (s *Sizer) Uint8() *Sizer {
	s.pos++
	return s
}

func (s *Sizer) Uint16() *Sizer {
	s.Align(2)
	s.pos += 2
	return s
}

func (s *Sizer) Uint32() *Sizer {
	s.Align(4)
	s.pos += 4
	return s
}

func (s *Sizer) Uint64() *Sizer {
	s.Align(8)
	s.pos += 8
	return s
}

func (s *Sizer) Bool() *Sizer {
	return s.Uint8()
}

func (s *Sizer) Array(length int) *Sizer {
	s.pos += length
	return s
}

func (s *Sizer) Sequence(length int) *Sizer {
	s.Uint32()
	s.pos += length
	return s
}

func (s *Sizer) String(v string) *Sizer {
	s.Uint32()
	s.pos += len(v) + 1
	return s
}
