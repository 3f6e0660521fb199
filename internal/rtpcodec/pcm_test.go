package rtpcodec

import "testing"

func TestL16RoundTrip(t *testing.T) {
	samples := []float32{0.0, 0.25, -0.75, 1.0, -1.0, 0.5}
	buf := make([]byte, len(samples)*2)
	EncodeL16(buf, samples)

	got := make([]float32, len(samples))
	DecodeL16(got, buf)

	for i, want := range samples {
		diff := float64(got[i]) - float64(want)
		if diff < 0 {
			diff = -diff
		}
		if diff > 1.0/32768 {
			t.Errorf("sample %d: decode(encode(%v)) = %v, diff %v exceeds 1/32768", i, want, got[i], diff)
		}
	}
}

func TestL16Saturation(t *testing.T) {
	buf := make([]byte, 4)
	EncodeL16(buf, []float32{2.0, -2.0})
	got := make([]float32, 2)
	DecodeL16(got, buf)

	wantHigh := float32(32767.0 / 32768.0)
	if got[0] != wantHigh {
		t.Errorf("saturate +2.0: got %v, want %v", got[0], wantHigh)
	}
	if got[1] != -1.0 {
		t.Errorf("saturate -2.0: got %v, want -1.0", got[1])
	}
}

func TestL24RoundTrip(t *testing.T) {
	samples := []float32{0.0, 0.25, -0.75, 1.0}
	buf := make([]byte, len(samples)*3)
	EncodeL24(buf, samples)

	got := make([]float32, len(samples))
	DecodeL24(got, buf)

	for i, want := range samples {
		diff := float64(got[i]) - float64(want)
		if diff < 0 {
			diff = -diff
		}
		if diff > 1.0/8388608 {
			t.Errorf("sample %d: decode(encode(%v)) = %v, diff %v exceeds 1/8388608", i, want, got[i], diff)
		}
	}
}

func TestL24Saturation(t *testing.T) {
	// spec §8 scenario 6: frame [+2.0, -2.0] saturates to +1.0 - 2^-23, -1.0.
	buf := make([]byte, 6)
	EncodeL24(buf, []float32{2.0, -2.0})
	got := make([]float32, 2)
	DecodeL24(got, buf)

	wantHigh := float32(8388607.0 / 8388608.0)
	if got[0] != wantHigh {
		t.Errorf("saturate +2.0: got %v, want %v", got[0], wantHigh)
	}
	if got[1] != -1.0 {
		t.Errorf("saturate -2.0: got %v, want -1.0", got[1])
	}
}

func TestL24NegativeSignExtension(t *testing.T) {
	buf := make([]byte, 3)
	EncodeL24(buf, []float32{-0.5})
	got := make([]float32, 1)
	DecodeL24(got, buf)
	diff := float64(got[0]) - (-0.5)
	if diff < 0 {
		diff = -diff
	}
	if diff > 1.0/8388608 {
		t.Errorf("decode(encode(-0.5)) = %v, want ~-0.5", got[0])
	}
}
