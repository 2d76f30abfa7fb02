// Package wire defines the XRCE type system : submessage ids, status
// values, object identifiers and every payload exchanged between a client
// and the agent, together with their serialization.
package wire

// Submessage ids
type SubmessageId uint8

const (
	SubmessageCreateClient   SubmessageId = 0x00
	SubmessageCreate         SubmessageId = 0x01
	SubmessageGetInfo        SubmessageId = 0x02
	SubmessageDelete         SubmessageId = 0x03
	SubmessageStatusAgent    SubmessageId = 0x04
	SubmessageStatus         SubmessageId = 0x05
	SubmessageInfo           SubmessageId = 0x06
	SubmessageWriteData      SubmessageId = 0x07
	SubmessageReadData       SubmessageId = 0x08
	SubmessageData           SubmessageId = 0x09
	SubmessageAckNack        SubmessageId = 0x0A
	SubmessageHeartbeat      SubmessageId = 0x0B
	SubmessageReset          SubmessageId = 0x0C
	SubmessageFragment       SubmessageId = 0x0D
	SubmessageTimestamp      SubmessageId = 0x0E
	SubmessageTimestampReply SubmessageId = 0x0F
)

var submessageNames = map[SubmessageId]string{
	SubmessageCreateClient:   "CREATE_CLIENT",
	SubmessageCreate:         "CREATE",
	SubmessageGetInfo:        "GET_INFO",
	SubmessageDelete:         "DELETE",
	SubmessageStatusAgent:    "STATUS_AGENT",
	SubmessageStatus:         "STATUS",
	SubmessageInfo:           "INFO",
	SubmessageWriteData:      "WRITE_DATA",
	SubmessageReadData:       "READ_DATA",
	SubmessageData:           "DATA",
	SubmessageAckNack:        "ACKNACK",
	SubmessageHeartbeat:      "HEARTBEAT",
	SubmessageReset:          "RESET",
	SubmessageFragment:       "FRAGMENT",
	SubmessageTimestamp:      "TIMESTAMP",
	SubmessageTimestampReply: "TIMESTAMP_REPLY",
}

func (id SubmessageId) String() string {
	name, ok := submessageNames[id]
	if ok {
		return name
	}
	return "UNKNOWN"
}

// Submessage flags
const (
	// Payload is little-endian when set
	FlagEndianness uint8 = 0x01
	// FRAGMENT : this is the last fragment of the message
	FlagLastFragment uint8 = 0x02
	// CREATE : reuse existing entity when representations match
	FlagReuse uint8 = 0x02
	// CREATE : replace existing entity
	FlagReplace uint8 = 0x04
	// DATA : format selector on bits 1..3
	FlagFormatMask uint8 = 0x0E
)

// Data formats carried in DATA and WRITE_DATA flag bits
type DataFormat uint8

const (
	FormatData          DataFormat = 0x00
	FormatSample        DataFormat = 0x02
	FormatDataSeq       DataFormat = 0x08
	FormatSampleSeq     DataFormat = 0x0A
	FormatPackedSamples DataFormat = 0x0E
)

var formatNames = map[DataFormat]string{
	FormatData:          "FORMAT_DATA",
	FormatSample:        "FORMAT_SAMPLE",
	FormatDataSeq:       "FORMAT_DATA_SEQ",
	FormatSampleSeq:     "FORMAT_SAMPLE_SEQ",
	FormatPackedSamples: "FORMAT_PACKED_SAMPLES",
}

func (f DataFormat) String() string {
	name, ok := formatNames[f]
	if ok {
		return name
	}
	return "FORMAT_UNKNOWN"
}

// Operation results carried verbatim on the wire
type StatusValue uint8

const (
	StatusOk               StatusValue = 0x00
	StatusOkMatched        StatusValue = 0x01
	StatusErrDds           StatusValue = 0x80
	StatusErrMismatch      StatusValue = 0x81
	StatusErrAlreadyExists StatusValue = 0x82
	StatusErrDenied        StatusValue = 0x83
	StatusErrUnknownRef    StatusValue = 0x84
	StatusErrInvalidData   StatusValue = 0x85
	StatusErrIncompatible  StatusValue = 0x86
	StatusErrResources     StatusValue = 0x87
)

var statusNames = map[StatusValue]string{
	StatusOk:               "OK",
	StatusOkMatched:        "OK_MATCHED",
	StatusErrDds:           "DDS_ERROR",
	StatusErrMismatch:      "MISMATCH_ERROR",
	StatusErrAlreadyExists: "ALREADY_EXISTS_ERROR",
	StatusErrDenied:        "DENIED_ERROR",
	StatusErrUnknownRef:    "UNKNOWN_REFERENCE_ERROR",
	StatusErrInvalidData:   "INVALID_DATA_ERROR",
	StatusErrIncompatible:  "INCOMPATIBLE_ERROR",
	StatusErrResources:     "RESOURCES_ERROR",
}

func (s StatusValue) String() string {
	name, ok := statusNames[s]
	if ok {
		return name
	}
	return "UNKNOWN_STATUS"
}

// Session ids. Values below 0x80 carry the client key in every message
// header, values from 0x80 rely on the transport endpoint binding. The
// two topmost values are reserved for messages sent before a session
// exists, with and without a client key in the header.
const (
	SessionIdNoneWithClientKey    uint8 = 0xFE
	SessionIdNoneWithoutClientKey uint8 = 0xFF
)

// SessionIsNone reports whether the session id is one of the reserved
// "no session yet" values
func SessionIsNone(sessionId uint8) bool {
	return sessionId == SessionIdNoneWithClientKey || sessionId == SessionIdNoneWithoutClientKey
}

// SessionHasClientKey reports whether messages of this session carry a
// meaningful client key in their header
func SessionHasClientKey(sessionId uint8) bool {
	return sessionId < 0x80 || sessionId == SessionIdNoneWithClientKey
}

// Stream id ranges
const (
	StreamIdNone           uint8 = 0x00
	StreamIdBuiltinBestEff uint8 = 0x01
	StreamIdBuiltinRel     uint8 = 0x80
)

// StreamIsReliable reports whether the stream id is in the reliable range
func StreamIsReliable(streamId uint8) bool {
	return streamId >= 0x80
}

// StreamIsBestEffort reports whether the stream id is in the best-effort range
func StreamIsBestEffort(streamId uint8) bool {
	return streamId >= 0x01 && streamId <= 0x7F
}

// Protocol constants
var (
	Cookie   = [4]byte{'X', 'R', 'C', 'E'}
	Version  = [2]byte{0x01, 0x00}
	VendorId = [2]byte{0x01, 0x0F}
)
