package rtpio

import (
	"net"
	"testing"
	"time"

	"github.com/aes67bridge/aes67bridge/internal/channelmap"
	"github.com/aes67bridge/aes67bridge/internal/ptp"
	"github.com/aes67bridge/aes67bridge/internal/ringfabric"
	"github.com/aes67bridge/aes67bridge/internal/rtpcodec"
	"github.com/aes67bridge/aes67bridge/internal/sdp"
)

func testDescriptor() *sdp.Descriptor {
	return &sdp.Descriptor{
		ConnectionAddress: "239.1.1.1",
		Port:              6004,
		TTL:               16,
		Encoding:          rtpcodec.EncodingL24,
		SampleRate:        48000,
		NumChannels:       2,
		PayloadType:       97,
		Framecount:        48,
		PtimeMs:           1,
		Direction:         sdp.DirectionRecvOnly,
	}
}

func TestDeviceChannelForIdentity(t *testing.T) {
	m := &channelmap.Mapping{
		StreamChannelCount: 4,
		DeviceChannelStart: 10,
		DeviceChannelCount: 4,
	}
	for s := 0; s < 4; s++ {
		if got := deviceChannelFor(m, s); got != 10+s {
			t.Errorf("deviceChannelFor(%d) = %d, want %d", s, got, 10+s)
		}
	}
	if got := deviceChannelFor(m, 4); got != -1 {
		t.Errorf("deviceChannelFor(out of range) = %d, want -1", got)
	}
}

func TestDeviceChannelForPermutation(t *testing.T) {
	m := &channelmap.Mapping{
		StreamChannelCount: 2,
		DeviceChannelStart: 0,
		DeviceChannelCount: 2,
		Permutation:        []int{1, 0},
	}
	if got := deviceChannelFor(m, 0); got != 1 {
		t.Errorf("deviceChannelFor(0) with swap permutation = %d, want 1", got)
	}
	if got := deviceChannelFor(m, 1); got != 0 {
		t.Errorf("deviceChannelFor(1) with swap permutation = %d, want 0", got)
	}
}

func TestReceiverSequenceTrackingForwardGap(t *testing.T) {
	r := &Receiver{}
	r.trackSequence(100)
	if !r.haveSeq || r.expectedSeq != 101 {
		t.Fatalf("after first packet expectedSeq = %d, want 101", r.expectedSeq)
	}

	r.trackSequence(105) // gap of 4 within forward window
	if got := r.stats.PacketsLost.Load(); got != 4 {
		t.Errorf("PacketsLost = %d, want 4", got)
	}
	if r.expectedSeq != 106 {
		t.Errorf("expectedSeq after gap = %d, want 106", r.expectedSeq)
	}
}

func TestReceiverSequenceTrackingWraparound(t *testing.T) {
	r := &Receiver{}
	r.trackSequence(65535)
	if r.expectedSeq != 0 {
		t.Fatalf("expectedSeq after 65535 = %d, want 0 (wraparound)", r.expectedSeq)
	}
	r.trackSequence(0)
	if got := r.stats.PacketsLost.Load(); got != 0 {
		t.Errorf("PacketsLost after correct wraparound = %d, want 0", got)
	}
}

func TestReceiverSequenceReorderDropped(t *testing.T) {
	r := &Receiver{}
	r.trackSequence(100)
	r.trackSequence(101)
	r.trackSequence(99) // older packet within back window

	if got := r.stats.Drops.Load(); got != 1 {
		t.Errorf("Drops after reordered packet = %d, want 1", got)
	}
}

func TestTransmitterPacketPeriod(t *testing.T) {
	fabric := ringfabric.New(48000, 20)
	reg := ptp.NewRegistry()
	clock := reg.Get(ptp.LocalDomain)

	desc := testDescriptor()
	m := channelmap.Mapping{StreamChannelCount: 2, DeviceChannelStart: 0, DeviceChannelCount: 2}
	tx := NewTransmitter(desc, m, fabric, clock)

	want := time.Millisecond
	if tx.packetPeriod != want {
		t.Errorf("packetPeriod = %v, want %v (framecount=48, rate=48000)", tx.packetPeriod, want)
	}
}

func TestTransmitterUnderrunAccounting(t *testing.T) {
	fabric := ringfabric.New(48000, 20)
	reg := ptp.NewRegistry()
	clock := reg.Get(ptp.LocalDomain)

	desc := testDescriptor()
	m := channelmap.Mapping{StreamChannelCount: 2, DeviceChannelStart: 0, DeviceChannelCount: 2}
	tx := NewTransmitter(desc, m, fabric, clock)

	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer listener.Close()
	sender, err := net.DialUDP("udp", nil, listener.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("DialUDP: %v", err)
	}
	defer sender.Close()
	tx.conn = sender

	frameCount := desc.Framecount
	numCh := desc.NumChannels
	bytesPerSample := rtpcodec.BytesPerSample(desc.Encoding)

	interleaved := make([]float32, frameCount*numCh)
	column := make([]float32, frameCount)
	payload := make([]byte, frameCount*numCh*bytesPerSample)
	pkt := make([]byte, rtpcodec.HeaderSize+len(payload))

	// No data was ever written to the output rings, so sendOnePacket must
	// report an underrun and still fill the payload with silence.
	tx.sendOnePacket(interleaved, column, payload, pkt, frameCount, numCh, bytesPerSample)

	if got := tx.stats.Underruns.Load(); got != 1 {
		t.Errorf("Underruns = %d, want 1", got)
	}
	for _, b := range payload {
		if b != 0 {
			t.Fatalf("expected silence-filled payload on underrun, found non-zero byte")
		}
	}
}
