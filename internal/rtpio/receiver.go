// Package rtpio implements the RTP Receiver and Transmitter worker loops
// that bridge multicast sockets to the Ring Fabric (spec §4.6, §4.7).
package rtpio

import (
	"errors"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aes67bridge/aes67bridge/internal/aerr"
	"github.com/aes67bridge/aes67bridge/internal/channelmap"
	"github.com/aes67bridge/aes67bridge/internal/ptp"
	"github.com/aes67bridge/aes67bridge/internal/ringfabric"
	"github.com/aes67bridge/aes67bridge/internal/rtpcodec"
	"github.com/aes67bridge/aes67bridge/internal/sdp"
	"golang.org/x/time/rate"
)

// readTimeout bounds each blocking recv so the worker can observe the
// cancel flag promptly (spec §4.6: "block on recv with a modest timeout").
const readTimeout = 100 * time.Millisecond

// reorderForwardWindow and reorderBackWindow bound the sequence-number
// tracking policy (spec §4.6, §9: left as a conservative default).
const (
	reorderForwardWindow = 16
	reorderBackWindow    = 16
)

// maxRTPPacket bounds the UDP read buffer; large enough for any AES67
// payload at the supported sample rates and channel counts.
const maxRTPPacket = 4096

// ReceiverStats holds the relaxed-atomic counters a receiver publishes
// (spec §4.6).
type ReceiverStats struct {
	PacketsReceived atomic.Uint64
	PacketsLost     atomic.Uint64
	BytesReceived   atomic.Uint64
	Malformed       atomic.Uint64
	Drops           atomic.Uint64
}

// Receiver is a single inbound RTP stream worker: one UDP socket, one
// goroutine, non-owning references to the fabric and channel map
// (spec §3.2).
type Receiver struct {
	descriptor *sdp.Descriptor
	fabric     *ringfabric.Fabric
	clock      *ptp.ClockHandle

	mapping atomic.Pointer[channelmap.Mapping]

	conn    *net.UDPConn
	cancel  atomic.Bool
	wg      sync.WaitGroup
	stats   ReceiverStats

	connTimeout time.Duration

	connected       atomic.Bool
	lastPacketNanos atomic.Int64

	expectedSeq uint16
	haveSeq     bool

	// malformedLog throttles the "sustained malformed-packet rate" warning
	// (spec §7) to at most once per second regardless of packet rate.
	malformedLog rate.Sometimes
	logger       *slog.Logger
}

// SetLogger attaches a logger for connection-state and malformed-packet
// warnings. A nil logger (the default) disables logging.
func (r *Receiver) SetLogger(logger *slog.Logger) {
	r.logger = logger
}

// NewReceiver constructs a receiver for descriptor, bound to the given
// channel mapping snapshot. Start must be called to begin work.
func NewReceiver(descriptor *sdp.Descriptor, mapping channelmap.Mapping, fabric *ringfabric.Fabric, clock *ptp.ClockHandle, connTimeout time.Duration) *Receiver {
	r := &Receiver{
		descriptor:   descriptor,
		fabric:       fabric,
		clock:        clock,
		connTimeout:  connTimeout,
		malformedLog: rate.Sometimes{Interval: time.Second},
	}
	r.mapping.Store(&mapping)
	return r
}

// UpdateMapping atomically swaps the mapping snapshot visible to the
// worker; no lock is taken on the hot path (spec §9).
func (r *Receiver) UpdateMapping(m channelmap.Mapping) {
	r.mapping.Store(&m)
}

// Stats returns the receiver's statistics counters.
func (r *Receiver) Stats() *ReceiverStats {
	return &r.stats
}

// IsConnected reports whether a packet has been seen within the
// configured connection timeout (spec §4.6).
func (r *Receiver) IsConnected() bool {
	return r.connected.Load()
}

// Start binds the receiver's UDP socket, joins the descriptor's multicast
// group, and launches the worker goroutine.
func (r *Receiver) Start() error {
	const op = "rtpio.Receiver.Start"

	group := &net.UDPAddr{IP: net.ParseIP(r.descriptor.ConnectionAddress), Port: r.descriptor.Port}
	conn, err := net.ListenMulticastUDP("udp", nil, group)
	if err != nil {
		return aerr.NewTransportError(op, aerr.KindMulticastJoinFailed, err)
	}
	r.conn = conn

	r.wg.Add(1)
	go r.run()
	return nil
}

// Stop sets the cancel flag and waits for the worker to exit. Cancellation
// is observable within at most one worker tick (spec §5).
func (r *Receiver) Stop() {
	r.cancel.Store(true)
	r.wg.Wait()
	if r.conn != nil {
		r.conn.Close()
	}
}

func (r *Receiver) run() {
	defer r.wg.Done()

	buf := make([]byte, maxRTPPacket)
	bytesPerSample := rtpcodec.BytesPerSample(r.descriptor.Encoding)
	scratch := make([]float32, 0)

	for {
		if r.cancel.Load() {
			return
		}

		r.conn.SetReadDeadline(time.Now().Add(readTimeout))
		n, _, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if r.cancel.Load() {
				return
			}
			if errors.Is(err, os.ErrDeadlineExceeded) {
				r.checkTimeout()
				continue
			}
			continue
		}

		pkt := buf[:n]
		if !r.validateAndDecode(pkt, bytesPerSample, &scratch) {
			r.stats.Malformed.Add(1)
			r.checkTimeout()
			if r.logger != nil {
				r.malformedLog.Do(func() {
					r.logger.Warn("sustained malformed packet rate",
						"malformed_total", r.stats.Malformed.Load())
				})
			}
			continue
		}

		r.stats.PacketsReceived.Add(1)
		r.stats.BytesReceived.Add(uint64(n))
		r.lastPacketNanos.Store(int64(r.clock.NowNs()))
		r.connected.Store(true)
	}
}

// checkTimeout measures elapsed time against r.clock rather than the wall
// clock, so connection-loss detection tracks the PTP clock of the stream's
// domain when one is locked (spec §2: "C4 supplies monotonic reference
// time to C6/C7").
func (r *Receiver) checkTimeout() {
	last := r.lastPacketNanos.Load()
	if last == 0 {
		return
	}
	elapsed := time.Duration(int64(r.clock.NowNs()) - last)
	if elapsed > r.connTimeout && r.connected.CompareAndSwap(true, false) {
		if r.logger != nil {
			r.logger.Warn("stream connection lost", "timeout", r.connTimeout)
		}
	}
}

// validateAndDecode validates the RTP header and payload framing, tracks
// sequence numbers, decodes the payload, and writes each stream channel's
// column into its mapped device-channel ring (spec §4.6 steps 2-5).
func (r *Receiver) validateAndDecode(pkt []byte, bytesPerSample int, scratch *[]float32) bool {
	h, ok := rtpcodec.ParseHeader(pkt)
	if !ok {
		return false
	}
	if int(h.PayloadType) != r.descriptor.PayloadType {
		return false
	}
	payload := pkt[h.PayloadOffset:]
	if bytesPerSample == 0 || len(payload)%(r.descriptor.NumChannels*bytesPerSample) != 0 {
		return false
	}

	r.trackSequence(h.SequenceNum)

	frameCount := len(payload) / (r.descriptor.NumChannels * bytesPerSample)
	need := frameCount * r.descriptor.NumChannels
	if cap(*scratch) < need {
		*scratch = make([]float32, need)
	}
	interleaved := (*scratch)[:need]

	switch r.descriptor.Encoding {
	case rtpcodec.EncodingL16:
		rtpcodec.DecodeL16(interleaved, payload)
	case rtpcodec.EncodingL24:
		rtpcodec.DecodeL24(interleaved, payload)
	default:
		return false
	}

	mapping := r.mapping.Load()
	column := make([]float32, frameCount)
	for s := 0; s < r.descriptor.NumChannels; s++ {
		deviceCh := deviceChannelFor(mapping, s)
		if deviceCh < 0 {
			continue
		}
		for f := 0; f < frameCount; f++ {
			column[f] = interleaved[f*r.descriptor.NumChannels+s]
		}
		ring := r.fabric.Ring(ringfabric.Input, deviceCh)
		written := ring.Write(column)
		if written < frameCount {
			r.stats.Drops.Add(1)
		}
	}
	return true
}

// trackSequence implements the forward/reorder window policy (spec §4.6
// step 3, §8: sequence wraps from 65535 to 0 without a loss-accounting
// error).
func (r *Receiver) trackSequence(seq uint16) {
	if !r.haveSeq {
		r.expectedSeq = seq + 1
		r.haveSeq = true
		return
	}
	if seq == r.expectedSeq {
		r.expectedSeq++
		return
	}
	delta := rtpcodec.SeqDelta(r.expectedSeq, seq)
	switch {
	case delta > 0 && int(delta) <= reorderForwardWindow:
		r.stats.PacketsLost.Add(uint64(delta))
		r.expectedSeq = seq + 1
	case delta < 0 && int(-delta) <= reorderBackWindow:
		// Older packet within the reorder window; drop, do not reorder
		// (spec §5: "out-of-order packets within the reorder window are
		// dropped, not reordered").
		r.stats.Drops.Add(1)
	default:
		// Resync: treat as a new stream of sequence numbers.
		r.expectedSeq = seq + 1
	}
}

// deviceChannelFor maps stream channel s to its device channel per the
// mapping snapshot, honouring an explicit permutation or identity
// placement. Returns -1 if s falls outside the mapping's channel count.
func deviceChannelFor(m *channelmap.Mapping, s int) int {
	if m == nil || s >= m.StreamChannelCount {
		return -1
	}
	if len(m.Permutation) > s {
		return m.DeviceChannelStart + m.Permutation[s]
	}
	if s >= m.DeviceChannelCount {
		return -1
	}
	return m.DeviceChannelStart + s
}
