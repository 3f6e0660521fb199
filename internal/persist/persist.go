// Package persist implements the Config Persister: it serializes the
// Stream Manager's live streams to a versioned YAML scope file and
// restores them on startup (spec §4.9).
package persist

import (
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/aes67bridge/aes67bridge/internal/aerr"
	"github.com/aes67bridge/aes67bridge/internal/channelmap"
	"github.com/aes67bridge/aes67bridge/internal/deviceshell"
	"github.com/aes67bridge/aes67bridge/internal/rtpcodec"
	"github.com/aes67bridge/aes67bridge/internal/sdp"
	"github.com/aes67bridge/aes67bridge/internal/stream"
	"github.com/aes67bridge/aes67bridge/internal/streamid"
)

// scopeFormatVersion is bumped whenever a field is added or renamed in a
// way that could not survive field reordering alone.
const scopeFormatVersion = 1

// scopeFile is the on-disk document: a versioned, named list of records,
// each self-describing via YAML field names so reordering fields in a
// future version does not break restore (spec §4.9).
type scopeFile struct {
	Version int           `yaml:"version"`
	Streams []scopeRecord `yaml:"streams"`
}

// scopeRecord mirrors stream.Record in a YAML-friendly shape. Every
// field required for re-admission is named explicitly rather than
// positional.
type scopeRecord struct {
	Name              string            `yaml:"name"`
	SessionInfo       string            `yaml:"session_info,omitempty"`
	ConnectionAddress string            `yaml:"connection_address"`
	Port              int               `yaml:"port"`
	TTL               int               `yaml:"ttl"`
	Encoding          string            `yaml:"encoding"`
	SampleRate        int               `yaml:"sample_rate"`
	NumChannels       int               `yaml:"num_channels"`
	PayloadType       int               `yaml:"payload_type"`
	PtimeMs           float64           `yaml:"ptime_ms"`
	Framecount        int               `yaml:"framecount"`
	PTPDomain         int               `yaml:"ptp_domain"`
	MasterClockID     string            `yaml:"master_clock_id,omitempty"`
	Direction         string            `yaml:"direction"`

	StreamChannelCount  int   `yaml:"stream_channel_count"`
	StreamChannelOffset int   `yaml:"stream_channel_offset"`
	DeviceChannelStart  int   `yaml:"device_channel_start"`
	DeviceChannelCount  int   `yaml:"device_channel_count"`
	Permutation         []int `yaml:"permutation,omitempty"`

	Metadata map[string]string `yaml:"metadata,omitempty"`
}

// Persister writes the Stream Manager's snapshot to path and can restore
// it on startup. It never touches the filesystem directly: all bytes
// move through a ConfigStore collaborator (spec §6), so the core defines
// only the serialization and never interprets file-system errors itself.
// A zero-value Persister is not usable; construct with New.
type Persister struct {
	path   string
	store  deviceshell.ConfigStore
	logger *slog.Logger
}

// New constructs a Persister that reads and writes the scope file at
// path through store. The containing directory is the
// collaborator-supplied location (spec §4.9: "abstract path the Stream
// Manager supplies").
func New(path string, store deviceshell.ConfigStore, logger *slog.Logger) *Persister {
	return &Persister{path: path, store: store, logger: logger.With("subsystem", "persist")}
}

// Save serializes records to YAML and hands the bytes to the
// ConfigStore, which is responsible for writing them durably (spec
// §4.9).
func (p *Persister) Save(records []stream.Record) error {
	const op = "persist.Save"

	doc := scopeFile{Version: scopeFormatVersion}
	for _, r := range records {
		doc.Streams = append(doc.Streams, toScopeRecord(r))
	}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return aerr.NewPersistError(op, aerr.KindEncodeFailed, err)
	}

	if err := p.store.Save(p.path, data); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Load reads and deserializes the scope file at p.path. Records that
// fail the same invariants enforced at live admission are dropped with a
// logged warning rather than failing the whole restore (spec §4.9).
func (p *Persister) Load() ([]stream.Record, error) {
	const op = "persist.Load"

	data, err := p.store.Load(p.path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if data == nil {
		return nil, nil
	}

	var doc scopeFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, aerr.NewPersistError(op, aerr.KindDecodeFailed, err)
	}

	records := make([]stream.Record, 0, len(doc.Streams))
	for i, sr := range doc.Streams {
		rec, err := fromScopeRecord(sr)
		if err != nil {
			p.logger.Warn("dropping invalid persisted stream record", "index", i, "name", sr.Name, "error", err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func toScopeRecord(r stream.Record) scopeRecord {
	d := r.Descriptor
	m := r.Mapping
	return scopeRecord{
		Name:                d.SessionName,
		SessionInfo:         d.SessionInfo,
		ConnectionAddress:   d.ConnectionAddress,
		Port:                d.Port,
		TTL:                 d.TTL,
		Encoding:            string(d.Encoding),
		SampleRate:          d.SampleRate,
		NumChannels:         d.NumChannels,
		PayloadType:         d.PayloadType,
		PtimeMs:             d.PtimeMs,
		Framecount:          d.Framecount,
		PTPDomain:           d.PTPDomain,
		MasterClockID:       d.MasterClockID,
		Direction:           string(d.Direction),
		StreamChannelCount:  m.StreamChannelCount,
		StreamChannelOffset: m.StreamChannelOffset,
		DeviceChannelStart:  m.DeviceChannelStart,
		DeviceChannelCount:  m.DeviceChannelCount,
		Permutation:         m.Permutation,
		Metadata:            r.Metadata,
	}
}

func fromScopeRecord(sr scopeRecord) (stream.Record, error) {
	const op = "persist.fromScopeRecord"

	d := &sdp.Descriptor{
		SessionName:       sr.Name,
		SessionInfo:       sr.SessionInfo,
		ConnectionAddress: sr.ConnectionAddress,
		Port:              sr.Port,
		TTL:               sr.TTL,
		Encoding:          rtpcodec.Encoding(sr.Encoding),
		SampleRate:        sr.SampleRate,
		NumChannels:       sr.NumChannels,
		PayloadType:       sr.PayloadType,
		PtimeMs:           sr.PtimeMs,
		Framecount:        sr.Framecount,
		PTPDomain:         sr.PTPDomain,
		MasterClockID:     sr.MasterClockID,
		Direction:         sdp.Direction(sr.Direction),
	}
	if err := sdp.Validate(d); err != nil {
		return stream.Record{}, fmt.Errorf("%s: %w", op, err)
	}

	mapping := channelmap.Mapping{
		StreamID:            streamid.Nil, // reassigned by the Stream Manager on re-admission
		StreamName:          sr.Name,
		StreamChannelCount:  sr.StreamChannelCount,
		StreamChannelOffset: sr.StreamChannelOffset,
		DeviceChannelStart:  sr.DeviceChannelStart,
		DeviceChannelCount:  sr.DeviceChannelCount,
		Permutation:         sr.Permutation,
	}

	return stream.Record{Descriptor: *d, Mapping: mapping, Metadata: sr.Metadata}, nil
}
