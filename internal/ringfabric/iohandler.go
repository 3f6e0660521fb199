package ringfabric

import "sync/atomic"

// maxScratchFrames bounds the stack-allocatable scratch buffer used per
// callback invocation (spec §4.1: "size bounded by a compile-time max
// frame count, e.g. 512"). Host buffer sizes beyond this are rejected by
// returning a silence-filled output and an error, not by growing the buffer.
const maxScratchFrames = 512

// Stats holds the realtime-safe callback counters. All fields are updated
// with atomics from the audio callback thread and may be read from any
// goroutine for reporting.
type Stats struct {
	Underruns       atomic.Uint64 // one per callback with a short input read, not per channel
	Overruns        atomic.Uint64 // one per callback with a short output write, not per channel
	ChannelMismatch atomic.Uint64 // callback invoked with channel_count != DeviceChannelCount
}

// IOHandler sits between the host realtime callback and the Fabric. Its
// two entry points are the core's only realtime-facing surface (spec §6:
// on_input_callback / on_output_callback). Both methods are safe to call
// from the audio callback thread and from nowhere else: they must not
// allocate, must not take locks, and must not call into network code.
type IOHandler struct {
	fabric *Fabric
	stats  Stats
}

// NewIOHandler creates a handler bound to the given fabric.
func NewIOHandler(fabric *Fabric) *IOHandler {
	return &IOHandler{fabric: fabric}
}

// Stats returns the handler's realtime counters for reporting.
func (h *IOHandler) Stats() *Stats {
	return &h.stats
}

// UnderrunCount returns the total input-underrun callbacks observed so far.
func (h *IOHandler) UnderrunCount() uint64 { return h.stats.Underruns.Load() }

// OverrunCount returns the total output-overrun callbacks observed so far.
func (h *IOHandler) OverrunCount() uint64 { return h.stats.Overruns.Load() }

// OnInputCallback delivers network -> host audio for one callback period.
// out is interleaved [frame*channelCount + channel]. frameCount must not
// exceed maxScratchFrames and channelCount must equal DeviceChannelCount;
// any mismatch fills out with silence and reports an error to the host,
// per spec §4.1.
func (h *IOHandler) OnInputCallback(frameCount, channelCount int, out []float32) error {
	if channelCount != DeviceChannelCount || frameCount > maxScratchFrames || len(out) < frameCount*channelCount {
		h.stats.ChannelMismatch.Add(1)
		for i := range out {
			out[i] = 0
		}
		return errChannelMismatch(channelCount, frameCount)
	}

	var scratch [maxScratchFrames]float32
	shortRead := false

	for c := 0; c < channelCount; c++ {
		ring := h.fabric.Ring(Input, c)
		n := ring.Read(scratch[:frameCount])
		if n < frameCount {
			shortRead = true
			for i := n; i < frameCount; i++ {
				scratch[i] = 0
			}
		}
		for f := 0; f < frameCount; f++ {
			out[f*channelCount+c] = scratch[f]
		}
	}

	if shortRead {
		h.stats.Underruns.Add(1) // one per callback, not per channel
	}
	return nil
}

// OnOutputCallback delivers host -> network audio for one callback period.
// in is interleaved [frame*channelCount + channel]. Same mismatch handling
// as OnInputCallback.
func (h *IOHandler) OnOutputCallback(frameCount, channelCount int, in []float32) error {
	if channelCount != DeviceChannelCount || frameCount > maxScratchFrames || len(in) < frameCount*channelCount {
		h.stats.ChannelMismatch.Add(1)
		return errChannelMismatch(channelCount, frameCount)
	}

	var scratch [maxScratchFrames]float32
	shortWrite := false

	for c := 0; c < channelCount; c++ {
		for f := 0; f < frameCount; f++ {
			scratch[f] = in[f*channelCount+c]
		}
		ring := h.fabric.Ring(Output, c)
		n := ring.Write(scratch[:frameCount])
		if n < frameCount {
			shortWrite = true
		}
	}

	if shortWrite {
		h.stats.Overruns.Add(1) // one per callback, not per channel
	}
	return nil
}

// mismatchError reports a callback invocation with the wrong channel count
// or an oversized frame count. It carries no cause chain: this is a
// programming-contract violation on the host side, reported to the host
// as plain status, never treated as a taxonomy error (spec §4.1, §7).
type mismatchError struct {
	channelCount, frameCount int
}

func (e *mismatchError) Error() string {
	return "ringfabric: callback channel/frame mismatch"
}

func errChannelMismatch(channelCount, frameCount int) error {
	return &mismatchError{channelCount: channelCount, frameCount: frameCount}
}
