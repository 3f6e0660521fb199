// Package sdp parses and generates SDP (RFC 4566) session text carrying
// AES67 audio, and maps it bidirectionally onto a Stream Descriptor
// (spec §4.2).
package sdp

import "github.com/aes67bridge/aes67bridge/internal/rtpcodec"

// Direction is the stream's signaled direction. send_recv is rejected at
// this layer (spec §3.1).
type Direction string

const (
	DirectionSendOnly Direction = "sendonly"
	DirectionRecvOnly Direction = "recvonly"
)

// UnknownAttr is an a= attribute this codec does not interpret, kept
// verbatim so round-tripping a Descriptor preserves it (spec §4.2).
type UnknownAttr struct {
	Key   string
	Value string
}

// Descriptor is the wire-level twin of a Stream Descriptor: everything an
// SDP session can carry for one AES67 audio stream (spec §3.1).
type Descriptor struct {
	SessionName      string
	SessionInfo      string
	OriginAddress    string
	OriginUsername   string
	OriginSessID     string
	OriginSessVer    string

	ConnectionAddress string // required multicast 239.x.x.x
	Port              int    // 1..65535
	TTL               int    // 1..255

	Encoding    rtpcodec.Encoding
	SampleRate  int
	NumChannels int
	PayloadType int // 96..127

	PtimeMs    float64
	Framecount int

	PTPDomain     int // -1 (no PTP) or 0..127
	MasterClockID string

	Direction Direction

	SourceFilterAddr string // a=source-filter src address, if present
	MediaClock       string // a=mediaclk value, if present

	Unknown []UnknownAttr
}

// validSampleRates enumerates the AES67 sample rates accepted by the
// Descriptor validator (spec §3.1).
var validSampleRates = map[int]bool{
	44100: true, 48000: true, 88200: true, 96000: true,
	176400: true, 192000: true, 352800: true, 384000: true,
}

// Equal reports whether d and o describe the same stream, treating the
// Unknown attribute list as mapping equality per the round-trip law
// (spec §4.2, §8).
func (d *Descriptor) Equal(o *Descriptor) bool {
	if d.SessionName != o.SessionName || d.SessionInfo != o.SessionInfo ||
		d.OriginAddress != o.OriginAddress || d.OriginUsername != o.OriginUsername ||
		d.OriginSessID != o.OriginSessID || d.OriginSessVer != o.OriginSessVer ||
		d.ConnectionAddress != o.ConnectionAddress || d.Port != o.Port || d.TTL != o.TTL ||
		d.Encoding != o.Encoding || d.SampleRate != o.SampleRate ||
		d.NumChannels != o.NumChannels || d.PayloadType != o.PayloadType ||
		d.PtimeMs != o.PtimeMs || d.Framecount != o.Framecount ||
		d.PTPDomain != o.PTPDomain || d.MasterClockID != o.MasterClockID ||
		d.Direction != o.Direction || d.SourceFilterAddr != o.SourceFilterAddr ||
		d.MediaClock != o.MediaClock {
		return false
	}
	return unknownAttrsEqual(d.Unknown, o.Unknown)
}

func unknownAttrsEqual(a, b []UnknownAttr) bool {
	if len(a) != len(b) {
		return false
	}
	am := make(map[string]string, len(a))
	for _, kv := range a {
		am[kv.Key] = kv.Value
	}
	for _, kv := range b {
		v, ok := am[kv.Key]
		if !ok || v != kv.Value {
			return false
		}
	}
	return true
}
