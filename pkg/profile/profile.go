// Package profile resolves the reference names clients use in by-ref
// creation requests. Profiles are stored in an INI file, one section per
// reference, and hot-reloaded when the file changes.
package profile

import (
	"errors"
	"log/slog"
	"strings"
	"sync"

	"gopkg.in/ini.v1"
)

var (
	ErrNotFound    = errors.New("reference not found in profile store")
	ErrMissingKind = errors.New("profile section is missing the kind key")
)

// A Profile describes one referencable entity
type Profile struct {
	Name string
	// Entity kind name : participant, topic, publisher, subscriber,
	// datawriter, datareader, requester, replier
	Kind string
	// Topic name for topic/writer/reader profiles, service name for
	// requester/replier profiles
	Topic string
	// Data type name
	Type string
	// DDS domain id for participant profiles
	Domain int
	// Remaining keys passed through to the middleware untouched
	Extra map[string]string
}

// Store is a concurrency safe profile lookup table
type Store struct {
	mu       sync.RWMutex
	logger   *slog.Logger
	path     string
	profiles map[string]*Profile
}

// NewStore creates an empty store, profiles can be added with [Store.Load]
func NewStore(logger *slog.Logger) *Store {
	return &Store{
		logger:   logger.With("service", "[PROF]"),
		profiles: map[string]*Profile{},
	}
}

// Load parses an INI profile file and replaces the store contents.
// file can be a path or raw bytes, anything ini.Load accepts.
func (s *Store) Load(file any) error {
	cfg, err := ini.Load(file)
	if err != nil {
		return err
	}
	profiles := map[string]*Profile{}
	for _, section := range cfg.Sections() {
		if section.Name() == ini.DefaultSection {
			continue
		}
		p, err := parseSection(section)
		if err != nil {
			s.logger.Warn("skipping invalid profile", "name", section.Name(), "err", err)
			continue
		}
		profiles[p.Name] = p
	}

	s.mu.Lock()
	s.profiles = profiles
	if path, ok := file.(string); ok {
		s.path = path
	}
	s.mu.Unlock()
	s.logger.Info("loaded profiles", "count", len(profiles))
	return nil
}

func parseSection(section *ini.Section) (*Profile, error) {
	p := &Profile{Name: section.Name(), Extra: map[string]string{}}
	for _, key := range section.Keys() {
		switch strings.ToLower(key.Name()) {
		case "kind":
			p.Kind = strings.ToLower(key.String())
		case "topic":
			p.Topic = key.String()
		case "type":
			p.Type = key.String()
		case "domain":
			domain, err := key.Int()
			if err != nil {
				return nil, err
			}
			p.Domain = domain
		default:
			p.Extra[key.Name()] = key.String()
		}
	}
	if p.Kind == "" {
		return nil, ErrMissingKind
	}
	return p, nil
}

// Resolve returns the profile registered under ref
func (s *Store) Resolve(ref string) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[ref]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

// Add registers a profile directly, used by tests and builtin defaults
func (s *Store) Add(p *Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.Name] = p
}

// Len returns the number of loaded profiles
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.profiles)
}

// Default returns a store with the builtin profiles every agent serves
func Default(logger *slog.Logger) *Store {
	s := NewStore(logger)
	s.Add(&Profile{Name: "default_xrce_participant", Kind: "participant"})
	return s
}
