// Package rtpcodec implements the RFC 3550 RTP header and the AES67 audio
// payload codecs (L16, L24, DoP) used on the wire.
package rtpcodec

import "encoding/binary"

const (
	// HeaderSize is the fixed 12-byte RTP header size (no CSRCs, spec §4.5).
	HeaderSize = 12

	rtpVersion = 2
)

// Header is a decoded RFC 3550 RTP header. CSRCs are never used by this
// codec; a CSRC list and header extension are accepted on decode and the
// payload offset is computed past them, not stored. Padding is accepted
// but not trimmed: the payload runs to the end of the packet.
type Header struct {
	Marker        bool
	PayloadType   uint8
	SequenceNum   uint16
	Timestamp     uint32
	SSRC          uint32
	PayloadOffset int // byte offset of the payload within the packet
}

// BuildHeader writes a 12-byte RTP header into buf per RFC 3550 §5.1.
// buf must be at least HeaderSize bytes.
func BuildHeader(buf []byte, pt uint8, marker bool, seq uint16, ts uint32, ssrc uint32) {
	buf[0] = rtpVersion << 6
	buf[1] = pt & 0x7F
	if marker {
		buf[1] |= 0x80
	}
	binary.BigEndian.PutUint16(buf[2:4], seq)
	binary.BigEndian.PutUint32(buf[4:8], ts)
	binary.BigEndian.PutUint32(buf[8:12], ssrc)
}

// ParseHeader decodes an RTP header from pkt, returning the payload offset
// accounting for any CSRC list and header extension present. Returns false
// if pkt is too short or the version is not 2.
func ParseHeader(pkt []byte) (Header, bool) {
	if len(pkt) < HeaderSize {
		return Header{}, false
	}
	version := pkt[0] >> 6
	if version != rtpVersion {
		return Header{}, false
	}
	padding := pkt[0]&0x20 != 0
	extension := pkt[0]&0x10 != 0
	csrcCount := int(pkt[0] & 0x0F)

	offset := HeaderSize + csrcCount*4
	if len(pkt) < offset {
		return Header{}, false
	}

	if extension {
		if len(pkt) < offset+4 {
			return Header{}, false
		}
		extLenWords := int(binary.BigEndian.Uint16(pkt[offset+2 : offset+4]))
		offset += 4 + extLenWords*4
		if len(pkt) < offset {
			return Header{}, false
		}
	}

	h := Header{
		Marker:        pkt[1]&0x80 != 0,
		PayloadType:   pkt[1] & 0x7F,
		SequenceNum:   binary.BigEndian.Uint16(pkt[2:4]),
		Timestamp:     binary.BigEndian.Uint32(pkt[4:8]),
		SSRC:          binary.BigEndian.Uint32(pkt[8:12]),
		PayloadOffset: offset,
	}

	if padding && len(pkt) > offset {
		// Padding trims the tail; the last byte names the pad length. The
		// receiver only needs the payload start, so the tail is left to the
		// caller to trim via pkt[h.PayloadOffset : len(pkt)-padLen].
		_ = pkt[len(pkt)-1]
	}

	return h, true
}

// SeqDelta computes (b - a) mod 2^16 interpreted as a signed 16-bit step,
// giving the forward distance from a to b with wraparound handled
// correctly at the 65535 -> 0 boundary (spec §8 boundary behaviours).
func SeqDelta(a, b uint16) int16 {
	return int16(b - a)
}

// TimestampAdvance returns ts advanced by delta samples, wrapping at 2^32
// without drift (spec §8).
func TimestampAdvance(ts uint32, delta uint32) uint32 {
	return ts + delta
}
