package sdp

import (
	"net"

	"github.com/aes67bridge/aes67bridge/internal/aerr"
	"github.com/aes67bridge/aes67bridge/internal/rtpcodec"
)

// Validate checks a Descriptor against the Stream Descriptor invariants
// (spec §3.1: "is_valid() iff every constraint above holds"), whether it
// came from the wire or was built programmatically.
func Validate(d *Descriptor) error {
	return validate(d)
}

func validate(d *Descriptor) error {
	const op = "sdp.validate"

	switch d.Encoding {
	case rtpcodec.EncodingL16, rtpcodec.EncodingL24:
	case rtpcodec.EncodingAM824:
		return aerr.NewDescriptorError(op, aerr.KindUnsupportedCodec, nil)
	default:
		return aerr.NewDescriptorError(op, aerr.KindInvalidEncoding, nil)
	}

	if !validSampleRates[d.SampleRate] {
		return aerr.NewDescriptorError(op, aerr.KindInvalidSampleRate, nil)
	}

	if d.NumChannels < 1 || d.NumChannels > 128 {
		return aerr.NewDescriptorError(op, aerr.KindInvalidChannelCount, nil)
	}

	if d.Port < 1 || d.Port > 65535 {
		return aerr.NewDescriptorError(op, aerr.KindInvalidPort, nil)
	}

	if d.TTL < 1 || d.TTL > 255 {
		return aerr.NewDescriptorError(op, aerr.KindInvalidTTL, nil)
	}

	if !isValidMulticast(d.ConnectionAddress) {
		return aerr.NewDescriptorError(op, aerr.KindInvalidMulticast, nil)
	}

	if d.Framecount != 0 && d.PtimeMs != 0 {
		expected := float64(d.SampleRate) * d.PtimeMs / 1000.0
		if !floatsClose(expected, float64(d.Framecount), 0.5) {
			return aerr.NewDescriptorError(op, aerr.KindPtimeFramecountMismatch, nil)
		}
	}

	if d.PTPDomain != -1 && (d.PTPDomain < 0 || d.PTPDomain > 127) {
		return aerr.NewDescriptorError(op, aerr.KindInvalidPtpDomain, nil)
	}

	if d.Direction != DirectionSendOnly && d.Direction != DirectionRecvOnly {
		return aerr.NewDescriptorError(op, aerr.KindInvalidEncoding, nil)
	}

	return nil
}

func isValidMulticast(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	v4 := ip.To4()
	if v4 == nil {
		return false
	}
	return v4[0] == 239
}

func floatsClose(a, b, tol float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= tol
}
