package persist

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/aes67bridge/aes67bridge/internal/channelmap"
	"github.com/aes67bridge/aes67bridge/internal/deviceshell"
	"github.com/aes67bridge/aes67bridge/internal/rtpcodec"
	"github.com/aes67bridge/aes67bridge/internal/sdp"
	"github.com/aes67bridge/aes67bridge/internal/stream"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 100}))
}

func validRecord(name string, port int) stream.Record {
	return stream.Record{
		Descriptor: sdp.Descriptor{
			SessionName:       name,
			ConnectionAddress: "239.20.20.20",
			Port:              port,
			TTL:               16,
			Encoding:          rtpcodec.EncodingL24,
			SampleRate:        48000,
			NumChannels:       2,
			PayloadType:       97,
			PtimeMs:           1,
			Framecount:        48,
			PTPDomain:         -1,
			Direction:         sdp.DirectionRecvOnly,
		},
		Mapping: channelmap.Mapping{
			StreamChannelCount: 2,
			DeviceChannelStart: 0,
			DeviceChannelCount: 2,
		},
	}
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scope.yaml")
	p := New(path, deviceshell.NewOSConfigStore(), testLogger())

	records := []stream.Record{validRecord("s1", 7020), validRecord("s2", 7021)}
	if err := p.Save(records); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := p.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("Load returned %d records, want 2", len(loaded))
	}
	names := map[string]bool{}
	for _, r := range loaded {
		names[r.Descriptor.SessionName] = true
		if r.Descriptor.SampleRate != 48000 {
			t.Errorf("SampleRate = %d, want 48000", r.Descriptor.SampleRate)
		}
		if r.Mapping.DeviceChannelCount != 2 {
			t.Errorf("DeviceChannelCount = %d, want 2", r.Mapping.DeviceChannelCount)
		}
	}
	if !names["s1"] || !names["s2"] {
		t.Errorf("loaded names = %v, want s1 and s2", names)
	}
}

func TestLoadMissingFileReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	p := New(filepath.Join(dir, "does-not-exist.yaml"), deviceshell.NewOSConfigStore(), testLogger())

	records, err := p.Load()
	if err != nil {
		t.Fatalf("Load on missing file returned error: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Load on missing file returned %d records, want 0", len(records))
	}
}

func TestLoadDropsInvalidRecord(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scope.yaml")

	data := []byte(`version: 1
streams:
  - name: bad
    connection_address: 10.0.0.1
    port: 7022
    ttl: 16
    encoding: L24
    sample_rate: 48000
    num_channels: 2
    payload_type: 97
    ptime_ms: 1
    framecount: 48
    ptp_domain: -1
    direction: recvonly
    stream_channel_count: 2
    device_channel_start: 0
    device_channel_count: 2
  - name: good
    connection_address: 239.21.21.21
    port: 7023
    ttl: 16
    encoding: L24
    sample_rate: 48000
    num_channels: 2
    payload_type: 97
    ptime_ms: 1
    framecount: 48
    ptp_domain: -1
    direction: recvonly
    stream_channel_count: 2
    device_channel_start: 2
    device_channel_count: 2
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	p := New(path, deviceshell.NewOSConfigStore(), testLogger())
	records, err := p.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Load returned %d records, want 1 (the non-multicast one dropped)", len(records))
	}
	if records[0].Descriptor.SessionName != "good" {
		t.Errorf("surviving record = %q, want %q", records[0].Descriptor.SessionName, "good")
	}
}

func TestSaveIsAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scope.yaml")
	p := New(path, deviceshell.NewOSConfigStore(), testLogger())

	if err := p.Save([]stream.Record{validRecord("s1", 7024)}); err != nil {
		t.Fatalf("first Save failed: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("leftover temp file after Save: %s", e.Name())
		}
	}
}
