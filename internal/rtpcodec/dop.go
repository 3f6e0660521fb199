package rtpcodec

// DoP (DSD-over-PCM) tunnels a DSD bitstream inside 24-bit PCM frames.
// Each frame's most-significant byte carries an alternating marker; the
// remaining two bytes are raw DSD payload (spec §4.5).
const (
	dopMarkerEven byte = 0x05
	dopMarkerOdd  byte = 0xFA
)

// DSD rate mapping: container sample rate -> native DSD rate (spec §4.5).
var dopRateMap = map[int]int{
	176400: 2822400,  // DSD64
	352800: 5644800,  // DSD128
	705600: 11289600, // DSD256
}

// DSDRateFor returns the native DSD rate for a DoP container rate, and
// whether that rate is one of the recognized DoP carriers.
func DSDRateFor(containerRate int) (int, bool) {
	r, ok := dopRateMap[containerRate]
	return r, ok
}

// IsDoPMarker reports whether b is one of the two alternating DoP marker
// bytes used to detect a DoP stream (spec §4.5).
func IsDoPMarker(b byte) bool {
	return b == dopMarkerEven || b == dopMarkerOdd
}

// DetectDoP inspects a sequence of 24-bit big-endian frames (3 bytes each,
// src length a multiple of 3) and reports whether the marker byte of each
// frame alternates between the two DoP markers, starting from either
// parity. A single frame is insufficient to detect alternation reliably,
// so at least two frames are required.
func DetectDoP(src []byte) bool {
	n := len(src) / 3
	if n < 2 {
		return false
	}
	for i := 0; i < n; i++ {
		m := src[i*3]
		if !IsDoPMarker(m) {
			return false
		}
		if i > 0 {
			prev := src[(i-1)*3]
			if m == prev {
				return false
			}
		}
	}
	return true
}

// EncodeDoP packs DSD payload bytes (two bytes of DSD data per frame) into
// 24-bit PCM frames, inserting the alternating marker byte starting with
// dopMarkerEven for frame 0. dsd must have an even length; dst must be
// 3*(len(dsd)/2) bytes.
func EncodeDoP(dst []byte, dsd []byte) {
	frames := len(dsd) / 2
	marker := dopMarkerEven
	for i := 0; i < frames; i++ {
		dst[i*3] = marker
		dst[i*3+1] = dsd[i*2]
		dst[i*3+2] = dsd[i*2+1]
		if marker == dopMarkerEven {
			marker = dopMarkerOdd
		} else {
			marker = dopMarkerEven
		}
	}
}

// DecodeDoP strips the marker byte from each 24-bit DoP frame, writing the
// two DSD payload bytes per frame into dst. dst must be 2*(len(src)/3) bytes.
func DecodeDoP(dst []byte, src []byte) {
	frames := len(src) / 3
	for i := 0; i < frames; i++ {
		dst[i*2] = src[i*3+1]
		dst[i*2+1] = src[i*3+2]
	}
}
