package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/aes67bridge/aes67bridge/internal/stream"
	"github.com/aes67bridge/aes67bridge/internal/streamid"
)

type fakeStreams struct {
	streams []stream.StreamInfo
}

func (f *fakeStreams) ActiveStreams() []stream.StreamInfo { return f.streams }
func (f *fakeStreams) StreamCount() int                   { return len(f.streams) }
func (f *fakeStreams) AvailableChannels() int              { return 126 }

type fakeFabric struct {
	underruns, overruns uint64
}

func (f *fakeFabric) UnderrunCount() uint64 { return f.underruns }
func (f *fakeFabric) OverrunCount() uint64  { return f.overruns }

type fakePTP struct {
	locked map[int]bool
}

func (f *fakePTP) IsLocked(domain int) bool { return f.locked[domain] }
func (f *fakePTP) OffsetNs(domain int) int64 {
	if f.locked[domain] {
		return 150
	}
	return 0
}

func TestCollectEmitsStreamAndFabricMetrics(t *testing.T) {
	streams := &fakeStreams{streams: []stream.StreamInfo{
		{
			ID:           streamid.New(),
			Name:         "rx1",
			Direction:    "receive",
			IsConnected:  true,
			PacketsTotal: 1000,
			BytesTotal:   48000,
			Lost:         2,
		},
	}}
	fabric := &fakeFabric{underruns: 3, overruns: 1}
	ptp := &fakePTP{locked: map[int]bool{}}
	streams.streams[0].Descriptor.PTPDomain = -1

	c := NewCollector(streams, fabric, ptp, time.Now().Add(-time.Hour))

	reg := prometheus.NewRegistry()
	reg.MustRegister(c)

	if lint, err := testutil.GatherAndLint(reg); err != nil {
		t.Fatalf("GatherAndLint failed: %v", err)
	} else if len(lint) != 0 {
		t.Errorf("lint problems: %v", lint)
	}

	metricFamilies, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	found := map[string]bool{}
	for _, mf := range metricFamilies {
		found[mf.GetName()] = true
	}
	for _, name := range []string{
		"aes67_streams_active",
		"aes67_stream_packets_total",
		"aes67_fabric_underruns_total",
		"aes67_uptime_seconds",
	} {
		if !found[name] {
			t.Errorf("expected metric family %q in scrape output", name)
		}
	}
}

func TestCollectSkipsPTPForLocalDomainStreams(t *testing.T) {
	streams := &fakeStreams{streams: []stream.StreamInfo{
		{ID: streamid.New(), Name: "local", Direction: "transmit"},
	}}
	streams.streams[0].Descriptor.PTPDomain = -1

	c := NewCollector(streams, nil, &fakePTP{locked: map[int]bool{}}, time.Now())

	reg := prometheus.NewRegistry()
	reg.MustRegister(c)
	metricFamilies, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() == "aes67_ptp_locked" && len(mf.GetMetric()) != 0 {
			t.Errorf("expected no aes67_ptp_locked samples for an all-local-domain stream set, got %d", len(mf.GetMetric()))
		}
	}
}
