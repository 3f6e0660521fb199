// Package metrics exposes the bridge's Prometheus surface: stream counts,
// ring fabric under/overrun counters, RTP packet/byte/loss counters per
// stream, and PTP lock status (SPEC_FULL.md Domain Stack).
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aes67bridge/aes67bridge/internal/stream"
)

// StreamProvider exposes the Stream Manager's live set for scraping.
type StreamProvider interface {
	ActiveStreams() []stream.StreamInfo
	StreamCount() int
	AvailableChannels() int
}

// FabricStatsProvider exposes the device I/O handler's realtime counters.
type FabricStatsProvider interface {
	UnderrunCount() uint64
	OverrunCount() uint64
}

// PTPStatusProvider reports lock status for a PTP domain this process
// cares about. Domain -1 (no PTP) is never queried.
type PTPStatusProvider interface {
	IsLocked(domain int) bool
	OffsetNs(domain int) int64
}

// Collector is a prometheus.Collector that gathers bridge metrics at
// scrape time. Any provider may be nil if that subsystem is unavailable.
type Collector struct {
	streams   StreamProvider
	fabric    FabricStatsProvider
	ptp       PTPStatusProvider
	startTime time.Time

	streamCountDesc      *prometheus.Desc
	availableChannelsDesc *prometheus.Desc
	streamConnectedDesc  *prometheus.Desc
	packetsTotalDesc     *prometheus.Desc
	bytesTotalDesc       *prometheus.Desc
	packetsLostDesc      *prometheus.Desc
	packetsMalformedDesc *prometheus.Desc
	underrunsDesc        *prometheus.Desc
	sendErrorsDesc       *prometheus.Desc
	fabricUnderrunsDesc  *prometheus.Desc
	fabricOverrunsDesc   *prometheus.Desc
	ptpLockedDesc        *prometheus.Desc
	ptpOffsetDesc        *prometheus.Desc
	uptimeDesc           *prometheus.Desc
}

// NewCollector creates a new metrics collector. Any provider may be nil.
func NewCollector(streams StreamProvider, fabric FabricStatsProvider, ptp PTPStatusProvider, startTime time.Time) *Collector {
	return &Collector{
		streams:   streams,
		fabric:    fabric,
		ptp:       ptp,
		startTime: startTime,

		streamCountDesc: prometheus.NewDesc(
			"aes67_streams_active",
			"Number of currently managed streams",
			nil, nil,
		),
		availableChannelsDesc: prometheus.NewDesc(
			"aes67_device_channels_available",
			"Number of unallocated device channel slots",
			nil, nil,
		),
		streamConnectedDesc: prometheus.NewDesc(
			"aes67_stream_connected",
			"Whether a stream is currently receiving/sending RTP (1) or not (0)",
			[]string{"stream_id", "name", "direction"}, nil,
		),
		packetsTotalDesc: prometheus.NewDesc(
			"aes67_stream_packets_total",
			"Total RTP packets processed by a stream",
			[]string{"stream_id", "name", "direction"}, nil,
		),
		bytesTotalDesc: prometheus.NewDesc(
			"aes67_stream_bytes_total",
			"Total RTP payload bytes processed by a stream",
			[]string{"stream_id", "name", "direction"}, nil,
		),
		packetsLostDesc: prometheus.NewDesc(
			"aes67_stream_packets_lost_total",
			"Total RTP packets detected lost via sequence gaps",
			[]string{"stream_id", "name", "direction"}, nil,
		),
		packetsMalformedDesc: prometheus.NewDesc(
			"aes67_stream_packets_malformed_total",
			"Total RTP packets rejected as malformed",
			[]string{"stream_id", "name", "direction"}, nil,
		),
		underrunsDesc: prometheus.NewDesc(
			"aes67_stream_underruns_total",
			"Total ring buffer underrun events attributed to a stream",
			[]string{"stream_id", "name", "direction"}, nil,
		),
		sendErrorsDesc: prometheus.NewDesc(
			"aes67_stream_send_errors_total",
			"Total socket send errors for a transmit stream",
			[]string{"stream_id", "name", "direction"}, nil,
		),
		fabricUnderrunsDesc: prometheus.NewDesc(
			"aes67_fabric_underruns_total",
			"Total device I/O callbacks that read a short capture buffer",
			nil, nil,
		),
		fabricOverrunsDesc: prometheus.NewDesc(
			"aes67_fabric_overruns_total",
			"Total device I/O callbacks that wrote a short playback buffer",
			nil, nil,
		),
		ptpLockedDesc: prometheus.NewDesc(
			"aes67_ptp_locked",
			"Whether the PTP clock for a domain is locked (1) or not (0)",
			[]string{"domain"}, nil,
		),
		ptpOffsetDesc: prometheus.NewDesc(
			"aes67_ptp_offset_nanoseconds",
			"Last known offset from the PTP master clock, in nanoseconds",
			[]string{"domain"}, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"aes67_uptime_seconds",
			"Seconds since the bridge process started",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.streamCountDesc
	ch <- c.availableChannelsDesc
	ch <- c.streamConnectedDesc
	ch <- c.packetsTotalDesc
	ch <- c.bytesTotalDesc
	ch <- c.packetsLostDesc
	ch <- c.packetsMalformedDesc
	ch <- c.underrunsDesc
	ch <- c.sendErrorsDesc
	ch <- c.fabricUnderrunsDesc
	ch <- c.fabricOverrunsDesc
	ch <- c.ptpLockedDesc
	ch <- c.ptpOffsetDesc
	ch <- c.uptimeDesc
}

// Collect implements prometheus.Collector. It queries all providers at
// scrape time; none of it runs on the realtime audio path.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	domainsSeen := map[int]bool{}

	if c.streams != nil {
		ch <- prometheus.MustNewConstMetric(c.streamCountDesc, prometheus.GaugeValue, float64(c.streams.StreamCount()))
		ch <- prometheus.MustNewConstMetric(c.availableChannelsDesc, prometheus.GaugeValue, float64(c.streams.AvailableChannels()))

		for _, s := range c.streams.ActiveStreams() {
			labels := []string{s.ID.String(), s.Name, s.Direction}
			connected := 0.0
			if s.IsConnected {
				connected = 1.0
			}
			ch <- prometheus.MustNewConstMetric(c.streamConnectedDesc, prometheus.GaugeValue, connected, labels...)
			ch <- prometheus.MustNewConstMetric(c.packetsTotalDesc, prometheus.CounterValue, float64(s.PacketsTotal), labels...)
			ch <- prometheus.MustNewConstMetric(c.bytesTotalDesc, prometheus.CounterValue, float64(s.BytesTotal), labels...)
			ch <- prometheus.MustNewConstMetric(c.packetsLostDesc, prometheus.CounterValue, float64(s.Lost), labels...)
			ch <- prometheus.MustNewConstMetric(c.packetsMalformedDesc, prometheus.CounterValue, float64(s.Malformed), labels...)
			ch <- prometheus.MustNewConstMetric(c.underrunsDesc, prometheus.CounterValue, float64(s.Underruns), labels...)
			ch <- prometheus.MustNewConstMetric(c.sendErrorsDesc, prometheus.CounterValue, float64(s.SendErrors), labels...)

			if d := s.Descriptor.PTPDomain; d >= 0 {
				domainsSeen[d] = true
			}
		}
	}

	if c.fabric != nil {
		ch <- prometheus.MustNewConstMetric(c.fabricUnderrunsDesc, prometheus.CounterValue, float64(c.fabric.UnderrunCount()))
		ch <- prometheus.MustNewConstMetric(c.fabricOverrunsDesc, prometheus.CounterValue, float64(c.fabric.OverrunCount()))
	}

	if c.ptp != nil {
		for domain := range domainsSeen {
			label := fmt.Sprintf("%d", domain)
			locked := 0.0
			if c.ptp.IsLocked(domain) {
				locked = 1.0
			}
			ch <- prometheus.MustNewConstMetric(c.ptpLockedDesc, prometheus.GaugeValue, locked, label)
			ch <- prometheus.MustNewConstMetric(c.ptpOffsetDesc, prometheus.GaugeValue, float64(c.ptp.OffsetNs(domain)), label)
		}
	}

	ch <- prometheus.MustNewConstMetric(c.uptimeDesc, prometheus.GaugeValue, time.Since(c.startTime).Seconds())
}
