package rtpio

import (
	"math/rand/v2"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aes67bridge/aes67bridge/internal/aerr"
	"github.com/aes67bridge/aes67bridge/internal/channelmap"
	"github.com/aes67bridge/aes67bridge/internal/ptp"
	"github.com/aes67bridge/aes67bridge/internal/ringfabric"
	"github.com/aes67bridge/aes67bridge/internal/rtpcodec"
	"github.com/aes67bridge/aes67bridge/internal/sdp"
)

// maxCatchUpPackets bounds how many packets a transmitter will send in a
// single wake to absorb scheduler jitter (spec §4.7: "up to a bounded
// number of packets (e.g. 3) per wake").
const maxCatchUpPackets = 3

// TransmitterStats holds the relaxed-atomic counters a transmitter
// publishes.
type TransmitterStats struct {
	PacketsSent uint64Atomic
	BytesSent   uint64Atomic
	Underruns   uint64Atomic
	SendErrors  uint64Atomic
}

type uint64Atomic = atomic.Uint64

// Transmitter is a single outbound RTP stream worker: one UDP socket, one
// goroutine, non-owning references to the fabric (spec §3.2, §4.7).
type Transmitter struct {
	descriptor *sdp.Descriptor
	fabric     *ringfabric.Fabric
	clock      *ptp.ClockHandle

	mapping atomic.Pointer[channelmap.Mapping]

	conn   *net.UDPConn
	remote *net.UDPAddr

	cancel atomic.Bool
	wg     sync.WaitGroup
	stats  TransmitterStats

	ssrc uint32
	seq  uint16
	ts   uint32

	packetPeriod time.Duration
}

// NewTransmitter constructs a transmitter for descriptor. SSRC, initial
// sequence number and timestamp are pseudo-random at construction per
// RFC 3550 §5.1 (spec §4.7).
func NewTransmitter(descriptor *sdp.Descriptor, mapping channelmap.Mapping, fabric *ringfabric.Fabric, clock *ptp.ClockHandle) *Transmitter {
	tx := &Transmitter{
		descriptor:   descriptor,
		fabric:       fabric,
		clock:        clock,
		ssrc:         rand.Uint32(),
		seq:          uint16(rand.UintN(65536)),
		ts:           rand.Uint32(),
		packetPeriod: time.Duration(float64(descriptor.Framecount) / float64(descriptor.SampleRate) * float64(time.Second)),
	}
	tx.mapping.Store(&mapping)
	return tx
}

// UpdateMapping atomically swaps the mapping snapshot visible to the
// worker.
func (tx *Transmitter) UpdateMapping(m channelmap.Mapping) {
	tx.mapping.Store(&m)
}

// Stats returns the transmitter's statistics counters.
func (tx *Transmitter) Stats() *TransmitterStats {
	return &tx.stats
}

// Start dials a UDP socket toward the descriptor's multicast endpoint with
// the descriptor's TTL, then launches the worker goroutine.
func (tx *Transmitter) Start() error {
	const op = "rtpio.Transmitter.Start"

	remote := &net.UDPAddr{IP: net.ParseIP(tx.descriptor.ConnectionAddress), Port: tx.descriptor.Port}
	conn, err := net.DialUDP("udp", nil, remote)
	if err != nil {
		return aerr.NewTransportError(op, aerr.KindSocketBindFailed, err)
	}
	if err := setMulticastTTL(conn, tx.descriptor.TTL); err != nil {
		conn.Close()
		return aerr.NewTransportError(op, aerr.KindSocketBindFailed, err)
	}
	tx.conn = conn
	tx.remote = remote

	tx.wg.Add(1)
	go tx.run()
	return nil
}

// Stop sets the cancel flag and waits for the worker to exit.
func (tx *Transmitter) Stop() {
	tx.cancel.Store(true)
	tx.wg.Wait()
	if tx.conn != nil {
		tx.conn.Close()
	}
}

// run paces packet sends off tx.clock rather than a free-running ticker,
// so the wake-up deadline is the PTP clock of the stream's domain when one
// is locked (spec §2, §4.7: "the transmitter uses the PTP clock of its
// domain to compute wake-up deadlines").
func (tx *Transmitter) run() {
	defer tx.wg.Done()

	bytesPerSample := rtpcodec.BytesPerSample(tx.descriptor.Encoding)
	frameCount := tx.descriptor.Framecount
	numCh := tx.descriptor.NumChannels

	interleaved := make([]float32, frameCount*numCh)
	column := make([]float32, frameCount)
	payload := make([]byte, frameCount*numCh*bytesPerSample)
	pkt := make([]byte, rtpcodec.HeaderSize+len(payload))

	periodNs := uint64(tx.packetPeriod.Nanoseconds())
	deadline := tx.clock.NowNs() + periodNs

	for {
		if tx.cancel.Load() {
			return
		}

		now := tx.clock.NowNs()
		if now < deadline {
			time.Sleep(time.Duration(deadline - now))
			now = tx.clock.NowNs()
		}

		// Absorb jitter by sending one packet per elapsed period, up to the
		// bound, instead of bursting unboundedly (spec §4.7).
		sent := 0
		for now >= deadline && sent < maxCatchUpPackets {
			tx.sendOnePacket(interleaved, column, payload, pkt, frameCount, numCh, bytesPerSample)
			deadline += periodNs
			sent++
		}
		if now >= deadline {
			deadline = now + periodNs
		}
	}
}

func (tx *Transmitter) sendOnePacket(interleaved, column []float32, payload, pkt []byte, frameCount, numCh, bytesPerSample int) {
	mapping := tx.mapping.Load()
	underrun := false

	for s := 0; s < numCh; s++ {
		deviceCh := deviceChannelFor(mapping, s)
		if deviceCh < 0 {
			for f := 0; f < frameCount; f++ {
				column[f] = 0
			}
		} else {
			ring := tx.fabric.Ring(ringfabric.Output, deviceCh)
			n := ring.Read(column)
			if n < frameCount {
				underrun = true
				for f := n; f < frameCount; f++ {
					column[f] = 0
				}
			}
		}
		for f := 0; f < frameCount; f++ {
			interleaved[f*numCh+s] = column[f]
		}
	}
	if underrun {
		tx.stats.Underruns.Add(1)
	}

	switch tx.descriptor.Encoding {
	case rtpcodec.EncodingL16:
		rtpcodec.EncodeL16(payload, interleaved)
	case rtpcodec.EncodingL24:
		rtpcodec.EncodeL24(payload, interleaved)
	}

	rtpcodec.BuildHeader(pkt[:rtpcodec.HeaderSize], uint8(tx.descriptor.PayloadType), false, tx.seq, tx.ts, tx.ssrc)
	copy(pkt[rtpcodec.HeaderSize:], payload)

	tx.seq++
	tx.ts = rtpcodec.TimestampAdvance(tx.ts, uint32(frameCount))

	n, err := tx.conn.Write(pkt)
	if err != nil {
		tx.stats.SendErrors.Add(1)
		return
	}
	tx.stats.PacketsSent.Add(1)
	tx.stats.BytesSent.Add(uint64(n))
}
