package sdp

import (
	"testing"

	"github.com/aes67bridge/aes67bridge/internal/rtpcodec"
)

// spec §8 scenario 7.
func TestParseMinimalAES67Session(t *testing.T) {
	body := "v=0\r\n" +
		"o=- 1 1 IN IP4 192.168.1.10\r\n" +
		"s=AES67 Test Stream\r\n" +
		"c=IN IP4 239.1.1.1/32\r\n" +
		"t=0 0\r\n" +
		"m=audio 5004 RTP/AVP 97\r\n" +
		"a=rtpmap:97 L24/48000/8\r\n" +
		"a=ptime:1\r\n" +
		"a=framecount:48\r\n" +
		"a=recvonly\r\n" +
		"a=ts-refclk:ptp=IEEE1588-2008:00-1B-21-AC-B5-4F:domain-nmbr=0\r\n"

	d, err := Parse([]byte(body))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if d.NumChannels != 8 {
		t.Errorf("NumChannels = %d, want 8", d.NumChannels)
	}
	if d.SampleRate != 48000 {
		t.Errorf("SampleRate = %d, want 48000", d.SampleRate)
	}
	if d.PtimeMs != 1 {
		t.Errorf("PtimeMs = %v, want 1", d.PtimeMs)
	}
	if d.Framecount != 48 {
		t.Errorf("Framecount = %d, want 48", d.Framecount)
	}
	if d.PTPDomain != 0 {
		t.Errorf("PTPDomain = %d, want 0", d.PTPDomain)
	}
	if d.MasterClockID != "00-1B-21-AC-B5-4F" {
		t.Errorf("MasterClockID = %q, want 00-1B-21-AC-B5-4F", d.MasterClockID)
	}
}

func validDescriptor() *Descriptor {
	return &Descriptor{
		SessionName:       "Test Session",
		OriginUsername:    "-",
		OriginSessID:      "1",
		OriginSessVer:     "1",
		OriginAddress:     "192.168.1.10",
		ConnectionAddress: "239.1.1.1",
		TTL:               32,
		Port:              5004,
		Encoding:          rtpcodec.EncodingL24,
		SampleRate:        48000,
		NumChannels:       8,
		PayloadType:       97,
		PtimeMs:           1,
		Framecount:        48,
		PTPDomain:         0,
		MasterClockID:     "00-1B-21-AC-B5-4F",
		Direction:         DirectionRecvOnly,
		Unknown:           []UnknownAttr{{Key: "x-custom", Value: "hello"}},
	}
}

// spec §4.2 and §8: parse(generate(d)) == d for any Descriptor the system builds.
func TestRoundTrip(t *testing.T) {
	d := validDescriptor()
	generated := Generate(d)

	reparsed, err := Parse(generated)
	if err != nil {
		t.Fatalf("Parse(Generate(d)) failed: %v\n%s", err, generated)
	}

	if !d.Equal(reparsed) {
		t.Errorf("round trip mismatch:\noriginal: %+v\nreparsed: %+v", d, reparsed)
	}
}

func TestValidateRejectsUnsupportedCodec(t *testing.T) {
	d := validDescriptor()
	d.Encoding = rtpcodec.EncodingAM824
	generated := Generate(d)
	if _, err := Parse(generated); err == nil {
		t.Error("expected UnsupportedCodec error for AM824, got nil")
	}
}

func TestValidateRejectsNonMulticastConnection(t *testing.T) {
	d := validDescriptor()
	d.ConnectionAddress = "10.0.0.1"
	generated := Generate(d)
	if _, err := Parse(generated); err == nil {
		t.Error("expected InvalidMulticast error, got nil")
	}
}

func TestValidateRejectsPtimeFramecountMismatch(t *testing.T) {
	d := validDescriptor()
	d.Framecount = 999
	generated := Generate(d)
	if _, err := Parse(generated); err == nil {
		t.Error("expected PtimeFramecountMismatch error, got nil")
	}
}

func TestParseMissingConnectionLine(t *testing.T) {
	body := "v=0\no=- 1 1 IN IP4 10.0.0.1\ns=x\nt=0 0\nm=audio 5004 RTP/AVP 97\na=rtpmap:97 L24/48000/8\na=recvonly\n"
	if _, err := Parse([]byte(body)); err == nil {
		t.Error("expected missing-connection error, got nil")
	}
}

func TestParseUnknownAttributePreserved(t *testing.T) {
	d := validDescriptor()
	generated := Generate(d)
	reparsed, err := Parse(generated)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	found := false
	for _, kv := range reparsed.Unknown {
		if kv.Key == "x-custom" && kv.Value == "hello" {
			found = true
		}
	}
	if !found {
		t.Error("unknown attribute x-custom was not preserved across round trip")
	}
}
