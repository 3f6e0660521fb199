// Package aerr defines the error taxonomy used across the bridge: a small
// family of typed errors, one per spec category, each carrying a Kind so
// callers can switch on the variant without string matching.
package aerr

import (
	"errors"
	"fmt"
)

// Kind identifies a specific error variant within its category.
type Kind string

// SDP parse variants.
const (
	KindMalformedLine Kind = "malformed_line"
	KindBadNumber     Kind = "bad_number"
	KindMissingField  Kind = "missing_field"
	KindUnknownVer    Kind = "unknown_version"
)

// Descriptor variants.
const (
	KindInvalidEncoding         Kind = "invalid_encoding"
	KindInvalidSampleRate       Kind = "invalid_sample_rate"
	KindInvalidChannelCount     Kind = "invalid_channel_count"
	KindInvalidPort             Kind = "invalid_port"
	KindInvalidTTL              Kind = "invalid_ttl"
	KindInvalidMulticast        Kind = "invalid_multicast"
	KindPtimeFramecountMismatch Kind = "ptime_framecount_mismatch"
	KindInvalidPtpDomain        Kind = "invalid_ptp_domain"
	KindUnsupportedCodec        Kind = "unsupported_codec"
)

// Mapping variants.
const (
	KindOutOfRange        Kind = "out_of_range"
	KindOverlap           Kind = "overlap"
	KindDuplicate         Kind = "duplicate"
	KindEmptyChannelCount Kind = "empty_channel_count"
)

// Admission variants.
const (
	KindSampleRateMismatch   Kind = "sample_rate_mismatch"
	KindInsufficientChannels Kind = "insufficient_channels"
	KindEndpointConflict     Kind = "endpoint_conflict"
)

// Transport variants.
const (
	KindSocketBindFailed    Kind = "socket_bind_failed"
	KindMulticastJoinFailed Kind = "multicast_join_failed"
	KindSendFailed          Kind = "send_failed"
	KindRecvFailed          Kind = "recv_failed"
)

// Stream variants.
const (
	KindNotFound       Kind = "not_found"
	KindAlreadyStopped Kind = "already_stopped"
)

// Persist variants.
const (
	KindIoFailed     Kind = "io_failed"
	KindDecodeFailed Kind = "decode_failed"
	KindEncodeFailed Kind = "encode_failed"
)

// SDPParseError reports a failure parsing SDP text (spec §7 SdpParse).
type SDPParseError struct {
	Op    string
	Kind  Kind
	Field string // set for KindMissingField
	Err   error
}

func (e *SDPParseError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("sdp parse error: %s: %s (field %q)", e.Op, e.Kind, e.Field)
	}
	if e.Err != nil {
		return fmt.Sprintf("sdp parse error: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("sdp parse error: %s: %s", e.Op, e.Kind)
}
func (e *SDPParseError) Unwrap() error { return e.Err }

// NewSDPParseError constructs an SDPParseError.
func NewSDPParseError(op string, kind Kind, cause error) error {
	return &SDPParseError{Op: op, Kind: kind, Err: cause}
}

// NewSDPMissingField constructs an SDPParseError for a missing required field.
func NewSDPMissingField(op, field string) error {
	return &SDPParseError{Op: op, Kind: KindMissingField, Field: field}
}

// DescriptorError reports a stream descriptor validation failure (spec §7 Descriptor).
type DescriptorError struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *DescriptorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("descriptor error: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("descriptor error: %s: %s", e.Op, e.Kind)
}
func (e *DescriptorError) Unwrap() error { return e.Err }

// NewDescriptorError constructs a DescriptorError.
func NewDescriptorError(op string, kind Kind, cause error) error {
	return &DescriptorError{Op: op, Kind: kind, Err: cause}
}

// MappingError reports a channel mapping violation (spec §7 Mapping).
type MappingError struct {
	Op          string
	Kind        Kind
	OverlapWith []string // stream IDs that overlap, for KindOverlap
}

func (e *MappingError) Error() string {
	if e.Kind == KindOverlap && len(e.OverlapWith) > 0 {
		return fmt.Sprintf("mapping error: %s: overlap with %v", e.Op, e.OverlapWith)
	}
	return fmt.Sprintf("mapping error: %s: %s", e.Op, e.Kind)
}

// NewMappingError constructs a MappingError.
func NewMappingError(op string, kind Kind) error {
	return &MappingError{Op: op, Kind: kind}
}

// NewMappingOverlapError constructs a MappingError for an overlap, naming the
// stream IDs (as strings) that already own the contested device channels.
func NewMappingOverlapError(op string, owners []string) error {
	return &MappingError{Op: op, Kind: KindOverlap, OverlapWith: owners}
}

// AdmissionError reports a Stream Manager admission-rule failure (spec §7 Admission).
type AdmissionError struct {
	Op                string
	Kind              Kind
	ExpectedRate      float64
	GotRate           float64
	NeededChannels    int
	AvailableChannels int
}

func (e *AdmissionError) Error() string {
	switch e.Kind {
	case KindSampleRateMismatch:
		return fmt.Sprintf("admission error: %s: sample rate mismatch: expected %g got %g", e.Op, e.ExpectedRate, e.GotRate)
	case KindInsufficientChannels:
		return fmt.Sprintf("admission error: %s: insufficient channels: needed %d available %d", e.Op, e.NeededChannels, e.AvailableChannels)
	default:
		return fmt.Sprintf("admission error: %s: %s", e.Op, e.Kind)
	}
}

// NewSampleRateMismatchError constructs an AdmissionError for a rate mismatch.
func NewSampleRateMismatchError(op string, expected, got float64) error {
	return &AdmissionError{Op: op, Kind: KindSampleRateMismatch, ExpectedRate: expected, GotRate: got}
}

// NewInsufficientChannelsError constructs an AdmissionError for channel exhaustion.
func NewInsufficientChannelsError(op string, needed, available int) error {
	return &AdmissionError{Op: op, Kind: KindInsufficientChannels, NeededChannels: needed, AvailableChannels: available}
}

// NewAdmissionError constructs a plain AdmissionError for the remaining kinds.
func NewAdmissionError(op string, kind Kind) error {
	return &AdmissionError{Op: op, Kind: kind}
}

// TransportError reports a socket-layer failure (spec §7 Transport). These
// are counted by the caller, never propagated out of the data path.
type TransportError struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport error: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("transport error: %s: %s", e.Op, e.Kind)
}
func (e *TransportError) Unwrap() error { return e.Err }

// NewTransportError constructs a TransportError.
func NewTransportError(op string, kind Kind, cause error) error {
	return &TransportError{Op: op, Kind: kind, Err: cause}
}

// StreamError reports a Stream Manager lifecycle error (spec §7 Stream).
type StreamError struct {
	Op   string
	Kind Kind
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream error: %s: %s", e.Op, e.Kind)
}

// ErrNotFound is returned by Stream Manager operations on an unknown StreamId.
var ErrNotFound = &StreamError{Op: "lookup", Kind: KindNotFound}

// NewStreamError constructs a StreamError.
func NewStreamError(op string, kind Kind) error {
	return &StreamError{Op: op, Kind: kind}
}

// PersistError reports a Config Persister failure (spec §7 Persist).
type PersistError struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *PersistError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("persist error: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("persist error: %s: %s", e.Op, e.Kind)
}
func (e *PersistError) Unwrap() error { return e.Err }

// NewPersistError constructs a PersistError.
func NewPersistError(op string, kind Kind, cause error) error {
	return &PersistError{Op: op, Kind: kind, Err: cause}
}

// KindOf extracts the Kind from any error in this package's taxonomy,
// walking the wrap chain. The second return is false if err carries none.
func KindOf(err error) (Kind, bool) {
	var sdp *SDPParseError
	if errors.As(err, &sdp) {
		return sdp.Kind, true
	}
	var desc *DescriptorError
	if errors.As(err, &desc) {
		return desc.Kind, true
	}
	var mp *MappingError
	if errors.As(err, &mp) {
		return mp.Kind, true
	}
	var adm *AdmissionError
	if errors.As(err, &adm) {
		return adm.Kind, true
	}
	var tr *TransportError
	if errors.As(err, &tr) {
		return tr.Kind, true
	}
	var st *StreamError
	if errors.As(err, &st) {
		return st.Kind, true
	}
	var ps *PersistError
	if errors.As(err, &ps) {
		return ps.Kind, true
	}
	return "", false
}
