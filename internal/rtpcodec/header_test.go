package rtpcodec

import "testing"

func TestBuildAndParseHeaderRoundTrip(t *testing.T) {
	buf := make([]byte, HeaderSize+4)
	BuildHeader(buf, 97, false, 1234, 0xDEADBEEF, 0xCAFEBABE)

	h, ok := ParseHeader(buf)
	if !ok {
		t.Fatal("ParseHeader failed on a packet it built")
	}
	if h.PayloadType != 97 {
		t.Errorf("PayloadType = %d, want 97", h.PayloadType)
	}
	if h.SequenceNum != 1234 {
		t.Errorf("SequenceNum = %d, want 1234", h.SequenceNum)
	}
	if h.Timestamp != 0xDEADBEEF {
		t.Errorf("Timestamp = %#x, want 0xdeadbeef", h.Timestamp)
	}
	if h.SSRC != 0xCAFEBABE {
		t.Errorf("SSRC = %#x, want 0xcafebabe", h.SSRC)
	}
	if h.PayloadOffset != HeaderSize {
		t.Errorf("PayloadOffset = %d, want %d", h.PayloadOffset, HeaderSize)
	}
}

func TestParseHeaderTooShort(t *testing.T) {
	if _, ok := ParseHeader([]byte{0x80, 0x61}); ok {
		t.Error("ParseHeader should reject a packet shorter than the fixed header")
	}
}

func TestParseHeaderWrongVersion(t *testing.T) {
	buf := make([]byte, HeaderSize)
	buf[0] = 1 << 6 // version 1
	if _, ok := ParseHeader(buf); ok {
		t.Error("ParseHeader should reject version != 2")
	}
}

func TestSeqDeltaWraparound(t *testing.T) {
	// spec §8: sequence wraps from 65535 to 0 without a loss-accounting error.
	if got := SeqDelta(65535, 0); got != 1 {
		t.Errorf("SeqDelta(65535, 0) = %d, want 1", got)
	}
}

func TestTimestampAdvanceWraparound(t *testing.T) {
	// spec §8: timestamp wraps from 2^32 - k to k - 1 without drift.
	ts := TimestampAdvance(^uint32(0)-2, 10)
	if ts != 7 {
		t.Errorf("TimestampAdvance near wrap = %d, want 7", ts)
	}
}
