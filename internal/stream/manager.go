// Package stream implements the Stream Manager: it owns every managed
// stream's lifecycle, enforces the admission rules, and mutates the
// Channel Map on receivers' and transmitters' behalf (spec §4.8).
package stream

import (
	"log/slog"
	"math"
	"os"
	"sync"
	"time"

	"github.com/aes67bridge/aes67bridge/internal/aerr"
	"github.com/aes67bridge/aes67bridge/internal/channelmap"
	"github.com/aes67bridge/aes67bridge/internal/ptp"
	"github.com/aes67bridge/aes67bridge/internal/ringfabric"
	"github.com/aes67bridge/aes67bridge/internal/rtpcodec"
	"github.com/aes67bridge/aes67bridge/internal/rtpio"
	"github.com/aes67bridge/aes67bridge/internal/sdp"
	"github.com/aes67bridge/aes67bridge/internal/streamid"
)

// direction distinguishes a receive stream (inbound multicast, writes to
// input rings) from a transmit stream (outbound multicast, reads from
// output rings).
type direction int

const (
	directionReceive direction = iota
	directionTransmit
)

func (d direction) String() string {
	if d == directionTransmit {
		return "transmit"
	}
	return "receive"
}

// defaultTransmitPayloadType is used for transmit streams created via
// CreateTransmitStream (spec §4.8).
const defaultTransmitPayloadType = 97

// defaultPtimeMs is the packet duration assumed for transmit streams
// created without an explicit SDP descriptor.
const defaultPtimeMs = 1.0

// eventQueueDepth bounds the manager's internal event channel; a full
// queue means listeners are falling behind, not a reason to block the
// caller of add/remove/update.
const eventQueueDepth = 64

// managedStream is what the manager holds per live stream (spec §3.1
// "Managed Stream").
type managedStream struct {
	id          streamid.ID
	name        string
	descriptor  sdp.Descriptor
	mapping     channelmap.Mapping
	dir         direction
	receiver    *rtpio.Receiver
	transmitter *rtpio.Transmitter
	startTime   time.Time

	lastConnected bool
}

// EventKind identifies which of the three Stream Manager callbacks an
// Event carries (spec §4.8).
type EventKind string

const (
	EventAdded         EventKind = "added"
	EventRemoved       EventKind = "removed"
	EventStatusChanged EventKind = "status_changed"
)

// Event is delivered to subscribers from the manager's own dispatch
// goroutine, never from a realtime or receive/transmit worker thread
// (spec §4.8).
type Event struct {
	Kind EventKind
	Info StreamInfo
}

// StreamInfo is the read-only snapshot returned by the query operations
// and carried on every Event.
type StreamInfo struct {
	ID          streamid.ID
	Name        string
	Descriptor  sdp.Descriptor
	Mapping     channelmap.Mapping
	Direction   string
	IsConnected bool
	StartTime   time.Time

	PacketsTotal uint64
	BytesTotal   uint64
	Lost         uint64
	Malformed    uint64
	Underruns    uint64
	SendErrors   uint64
}

// Record is one persisted stream entry, handed to a Persister on
// auto-save (spec §4.9).
type Record struct {
	Descriptor sdp.Descriptor
	Mapping    channelmap.Mapping
	Metadata   map[string]string
}

// Persister is the Config Persister collaborator contract (spec §4.9).
// Save is expected to return quickly; the manager itself runs it off its
// own goroutine so it never blocks add/remove/update callers.
type Persister interface {
	Save(records []Record) error
}

// Manager owns every managed stream under a single mutex (spec §4.8:
// "the streams lock"). It never holds that mutex on the data path: packet
// I/O and fabric access run on the worker goroutines. Socket setup
// (receiver.Start, transmitter.Start) does run while it is held.
type Manager struct {
	mu      sync.Mutex
	streams map[streamid.ID]*managedStream

	fabric  *ringfabric.Fabric
	chanMap *channelmap.Map
	ptpReg  *ptp.Registry

	sampleRate  float64
	connTimeout time.Duration

	persister Persister
	autosave  bool

	listenersMu sync.Mutex
	listeners   []func(Event)
	events      chan Event
	dispatchWG  sync.WaitGroup

	sweepCancel chan struct{}
	sweepDone   chan struct{}

	logger *slog.Logger
}

// NewManager constructs a Stream Manager bound to fabric, chanMap and
// ptpReg. sampleRate is the device's current sample rate (spec §4.8
// set_device_sample_rate). connTimeout is the receiver "connection lost"
// threshold (spec §4.6).
func NewManager(fabric *ringfabric.Fabric, chanMap *channelmap.Map, ptpReg *ptp.Registry, sampleRate float64, connTimeout time.Duration, persister Persister, logger *slog.Logger) *Manager {
	m := &Manager{
		streams:     make(map[streamid.ID]*managedStream),
		fabric:      fabric,
		chanMap:     chanMap,
		ptpReg:      ptpReg,
		sampleRate:  sampleRate,
		connTimeout: connTimeout,
		persister:   persister,
		autosave:    persister != nil,
		events:      make(chan Event, eventQueueDepth),
		logger:      logger.With("subsystem", "stream-manager"),
	}
	m.dispatchWG.Add(1)
	go m.dispatchLoop()
	return m
}

// SetAutosave enables or disables the auto-save-on-mutation behaviour
// (spec §4.8). Disabling it is a no-op if no Persister was configured.
func (m *Manager) SetAutosave(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autosave = enabled && m.persister != nil
}

// Subscribe registers fn to be invoked, from the manager's own dispatch
// goroutine, for every Event (spec §4.8 callback channel).
func (m *Manager) Subscribe(fn func(Event)) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.listeners = append(m.listeners, fn)
}

func (m *Manager) dispatchLoop() {
	defer m.dispatchWG.Done()
	for ev := range m.events {
		m.listenersMu.Lock()
		fns := append([]func(Event){}, m.listeners...)
		m.listenersMu.Unlock()
		for _, fn := range fns {
			fn(ev)
		}
	}
}

func (m *Manager) emit(kind EventKind, info StreamInfo) {
	select {
	case m.events <- Event{Kind: kind, Info: info}:
	default:
		m.logger.Warn("event queue full, dropping event", "kind", kind, "stream_id", info.ID.String())
	}
}

// Close stops the dispatch goroutine and any status sweeper. Call after
// RemoveAll during shutdown.
func (m *Manager) Close() {
	m.StopStatusSweeper()
	close(m.events)
	m.dispatchWG.Wait()
}

// StartStatusSweeper launches a background goroutine that periodically
// scans for is_connected transitions and emits on_status_changed (spec
// §4.8, §9).
func (m *Manager) StartStatusSweeper(interval time.Duration) {
	m.sweepCancel = make(chan struct{})
	m.sweepDone = make(chan struct{})
	go m.sweepLoop(interval)
}

// StopStatusSweeper stops the sweeper goroutine started by
// StartStatusSweeper, if any, and waits for it to exit.
func (m *Manager) StopStatusSweeper() {
	if m.sweepCancel == nil {
		return
	}
	close(m.sweepCancel)
	<-m.sweepDone
	m.sweepCancel = nil
}

func (m *Manager) sweepLoop(interval time.Duration) {
	defer close(m.sweepDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.sweepCancel:
			return
		case <-ticker.C:
			m.sweepConnectionStatus()
		}
	}
}

func (m *Manager) sweepConnectionStatus() {
	m.mu.Lock()
	var changed []StreamInfo
	for _, s := range m.streams {
		if s.dir != directionReceive || s.receiver == nil {
			continue
		}
		connected := s.receiver.IsConnected()
		if connected != s.lastConnected {
			s.lastConnected = connected
			changed = append(changed, m.infoLocked(s))
		}
	}
	m.mu.Unlock()

	for _, info := range changed {
		m.emit(EventStatusChanged, info)
	}
}

// AddReceiveStream admits descriptor, auto-places its channels, starts a
// receiver, and registers the stream (spec §4.8).
func (m *Manager) AddReceiveStream(descriptor sdp.Descriptor) (streamid.ID, error) {
	const op = "stream.AddReceiveStream"
	return m.addReceive(op, descriptor, nil)
}

// AddReceiveStreamWithMapping admits descriptor with an explicit mapping
// instead of auto-placement (spec §4.8).
func (m *Manager) AddReceiveStreamWithMapping(descriptor sdp.Descriptor, mapping channelmap.Mapping) (streamid.ID, error) {
	const op = "stream.AddReceiveStreamWithMapping"
	return m.addReceive(op, descriptor, &mapping)
}

func (m *Manager) addReceive(op string, descriptor sdp.Descriptor, mapping *channelmap.Mapping) (streamid.ID, error) {
	descriptor.Direction = sdp.DirectionRecvOnly

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.validateAdmissionLocked(op, &descriptor, directionReceive); err != nil {
		return streamid.Nil, err
	}

	id := streamid.New()
	name := descriptor.SessionName

	var placed channelmap.Mapping
	if mapping != nil {
		placed = *mapping
		placed.StreamID = id
		placed.StreamName = name
		if err := m.chanMap.Add(placed); err != nil {
			return streamid.Nil, err
		}
	} else {
		var ok bool
		placed, ok = m.chanMap.AutoPlace(id, name, descriptor.NumChannels)
		if !ok {
			return streamid.Nil, aerr.NewInsufficientChannelsError(op, descriptor.NumChannels, m.chanMap.FreeCount())
		}
	}

	clock := m.ptpReg.Get(descriptor.PTPDomain)
	receiver := rtpio.NewReceiver(&descriptor, placed, m.fabric, clock, m.connTimeout)
	receiver.SetLogger(m.logger)
	if err := receiver.Start(); err != nil {
		m.chanMap.Remove(id)
		return streamid.Nil, err
	}

	ms := &managedStream{
		id:         id,
		name:       name,
		descriptor: descriptor,
		mapping:    placed,
		dir:        directionReceive,
		receiver:   receiver,
		startTime:  time.Now(),
	}
	m.streams[id] = ms
	m.logger.Info("receive stream added", "stream_id", id.String(), "name", name, "mcast", descriptor.ConnectionAddress, "port", descriptor.Port)

	info := m.infoLocked(ms)
	m.emit(EventAdded, info)
	m.autosaveLocked()
	return id, nil
}

// ImportSDPFile reads an SDP session from path and admits it as a
// receive stream (spec §4.8).
func (m *Manager) ImportSDPFile(path string) (streamid.ID, error) {
	const op = "stream.ImportSDPFile"
	data, err := os.ReadFile(path)
	if err != nil {
		return streamid.Nil, aerr.NewPersistError(op, aerr.KindIoFailed, err)
	}
	descriptor, err := sdp.Parse(data)
	if err != nil {
		return streamid.Nil, err
	}
	return m.AddReceiveStream(*descriptor)
}

// CreateTransmitStream builds a Descriptor using the device's current
// sample rate, L24 encoding and payload type 97, inserts mapping, and
// starts a transmitter (spec §4.8).
func (m *Manager) CreateTransmitStream(name, mcastAddr string, port, numChannels int, mapping channelmap.Mapping) (streamid.ID, error) {
	const op = "stream.CreateTransmitStream"

	m.mu.Lock()
	defer m.mu.Unlock()

	sampleRate := int(m.sampleRate)
	framecount := int(float64(sampleRate) * defaultPtimeMs / 1000.0)
	descriptor := sdp.Descriptor{
		SessionName:       name,
		ConnectionAddress: mcastAddr,
		Port:              port,
		TTL:               16,
		Encoding:          rtpcodec.EncodingL24,
		SampleRate:        sampleRate,
		NumChannels:       numChannels,
		PayloadType:       defaultTransmitPayloadType,
		PtimeMs:           defaultPtimeMs,
		Framecount:        framecount,
		PTPDomain:         ptp.LocalDomain,
		Direction:         sdp.DirectionSendOnly,
	}

	if err := m.validateAdmissionLocked(op, &descriptor, directionTransmit); err != nil {
		return streamid.Nil, err
	}

	id := streamid.New()
	mapping.StreamID = id
	mapping.StreamName = name
	if mapping.StreamChannelCount == 0 {
		mapping.StreamChannelCount = numChannels
	}
	if mapping.DeviceChannelCount == 0 {
		mapping.DeviceChannelCount = numChannels
	}
	if err := m.chanMap.Add(mapping); err != nil {
		return streamid.Nil, err
	}

	clock := m.ptpReg.Get(descriptor.PTPDomain)
	transmitter := rtpio.NewTransmitter(&descriptor, mapping, m.fabric, clock)
	if err := transmitter.Start(); err != nil {
		m.chanMap.Remove(id)
		return streamid.Nil, err
	}

	ms := &managedStream{
		id:          id,
		name:        name,
		descriptor:  descriptor,
		mapping:     mapping,
		dir:         directionTransmit,
		transmitter: transmitter,
		startTime:   time.Now(),
	}
	m.streams[id] = ms
	m.logger.Info("transmit stream added", "stream_id", id.String(), "name", name, "mcast", mcastAddr, "port", port)

	info := m.infoLocked(ms)
	m.emit(EventAdded, info)
	m.autosaveLocked()
	return id, nil
}

// ExportSDPFile writes id's descriptor as SDP text to path (spec §4.8).
func (m *Manager) ExportSDPFile(id streamid.ID, path string) error {
	const op = "stream.ExportSDPFile"

	m.mu.Lock()
	ms, ok := m.streams[id]
	if !ok {
		m.mu.Unlock()
		return aerr.ErrNotFound
	}
	descriptor := ms.descriptor
	m.mu.Unlock()

	data := sdp.Generate(&descriptor)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return aerr.NewPersistError(op, aerr.KindIoFailed, err)
	}
	return nil
}

// Remove stops and unregisters id, freeing its device channels (spec
// §4.8, §5: "remove(id) sets the stream's cancel flag and waits for the
// worker to exit").
func (m *Manager) Remove(id streamid.ID) error {
	m.mu.Lock()
	ms, ok := m.streams[id]
	if !ok {
		m.mu.Unlock()
		return aerr.ErrNotFound
	}
	delete(m.streams, id)
	m.chanMap.Remove(id)
	info := m.infoLocked(ms)
	m.mu.Unlock()

	m.stopWorker(ms)

	m.logger.Info("stream removed", "stream_id", id.String(), "direction", ms.dir.String())
	m.emit(EventRemoved, info)
	m.autosaveUnlocked()
	return nil
}

// RemoveAll stops and unregisters every stream, cancelling in parallel
// then joining (spec §5: "remove_all cancels in parallel then joins").
func (m *Manager) RemoveAll() {
	m.mu.Lock()
	all := make([]*managedStream, 0, len(m.streams))
	for _, ms := range m.streams {
		all = append(all, ms)
	}
	m.streams = make(map[streamid.ID]*managedStream)
	m.mu.Unlock()

	for _, ms := range all {
		m.chanMap.Remove(ms.id)
	}

	var wg sync.WaitGroup
	for _, ms := range all {
		wg.Add(1)
		go func(ms *managedStream) {
			defer wg.Done()
			m.stopWorker(ms)
		}(ms)
	}
	wg.Wait()

	m.logger.Info("all streams removed", "count", len(all))
	for _, ms := range all {
		m.emit(EventRemoved, m.infoUnlocked(ms))
	}
	m.autosaveUnlocked()
}

func (m *Manager) stopWorker(ms *managedStream) {
	switch ms.dir {
	case directionReceive:
		if ms.receiver != nil {
			ms.receiver.Stop()
		}
	case directionTransmit:
		if ms.transmitter != nil {
			ms.transmitter.Stop()
		}
	}
}

// UpdateMapping revalidates newMapping, updates the channel map, and
// propagates the snapshot to the live receiver or transmitter (spec
// §4.8).
func (m *Manager) UpdateMapping(id streamid.ID, newMapping channelmap.Mapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ms, ok := m.streams[id]
	if !ok {
		return aerr.ErrNotFound
	}
	newMapping.StreamID = id
	newMapping.StreamName = ms.name

	if err := m.chanMap.Update(newMapping); err != nil {
		return err
	}
	ms.mapping = newMapping

	switch ms.dir {
	case directionReceive:
		ms.receiver.UpdateMapping(newMapping)
	case directionTransmit:
		ms.transmitter.UpdateMapping(newMapping)
	}

	info := m.infoLocked(ms)
	m.emit(EventStatusChanged, info)
	m.autosaveLocked()
	return nil
}

// SetDeviceSampleRate changes the device sample rate, succeeding only if
// every live stream's sample rate matches within 0.1 Hz (spec §4.8).
func (m *Manager) SetDeviceSampleRate(rate float64) error {
	const op = "stream.SetDeviceSampleRate"

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ms := range m.streams {
		if math.Abs(float64(ms.descriptor.SampleRate)-rate) > 0.1 {
			return aerr.NewSampleRateMismatchError(op, rate, float64(ms.descriptor.SampleRate))
		}
	}
	m.sampleRate = rate
	return nil
}

// ActiveStreams returns a snapshot of every live stream (spec §4.8).
func (m *Manager) ActiveStreams() []StreamInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]StreamInfo, 0, len(m.streams))
	for _, ms := range m.streams {
		out = append(out, m.infoLocked(ms))
	}
	return out
}

// Info returns the snapshot for a single stream (spec §4.8 stream_info).
func (m *Manager) Info(id streamid.ID) (StreamInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.streams[id]
	if !ok {
		return StreamInfo{}, aerr.ErrNotFound
	}
	return m.infoLocked(ms), nil
}

// HasStream reports whether id is currently managed (spec §4.8).
func (m *Manager) HasStream(id streamid.ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.streams[id]
	return ok
}

// StreamCount returns the number of live streams (spec §4.8).
func (m *Manager) StreamCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams)
}

// AvailableChannels returns the number of unowned device channels
// (spec §4.8).
func (m *Manager) AvailableChannels() int {
	return m.chanMap.FreeCount()
}

func (m *Manager) infoLocked(ms *managedStream) StreamInfo {
	return m.infoUnlocked(ms)
}

// infoUnlocked builds a StreamInfo without taking m.mu; callers that
// already hold it (infoLocked) or that operate on a stream already
// removed from the table (RemoveAll) use this directly.
func (m *Manager) infoUnlocked(ms *managedStream) StreamInfo {
	info := StreamInfo{
		ID:         ms.id,
		Name:       ms.name,
		Descriptor: ms.descriptor,
		Mapping:    ms.mapping,
		Direction:  ms.dir.String(),
		StartTime:  ms.startTime,
	}
	switch ms.dir {
	case directionReceive:
		if ms.receiver != nil {
			stats := ms.receiver.Stats()
			info.IsConnected = ms.receiver.IsConnected()
			info.PacketsTotal = stats.PacketsReceived.Load()
			info.BytesTotal = stats.BytesReceived.Load()
			info.Lost = stats.PacketsLost.Load()
			info.Malformed = stats.Malformed.Load()
		}
	case directionTransmit:
		if ms.transmitter != nil {
			stats := ms.transmitter.Stats()
			info.IsConnected = true
			info.PacketsTotal = stats.PacketsSent.Load()
			info.BytesTotal = stats.BytesSent.Load()
			info.Underruns = stats.Underruns.Load()
			info.SendErrors = stats.SendErrors.Load()
		}
	}
	return info
}

// validateAdmissionLocked enforces spec §4.8's admission rules. Callers
// must already hold m.mu.
func (m *Manager) validateAdmissionLocked(op string, d *sdp.Descriptor, dir direction) error {
	if err := sdp.Validate(d); err != nil {
		return err
	}
	if math.Abs(float64(d.SampleRate)-m.sampleRate) > 0.1 {
		return aerr.NewSampleRateMismatchError(op, m.sampleRate, float64(d.SampleRate))
	}
	if d.NumChannels < 1 || d.NumChannels > m.chanMap.FreeCount() {
		return aerr.NewInsufficientChannelsError(op, d.NumChannels, m.chanMap.FreeCount())
	}
	for _, ms := range m.streams {
		if ms.dir == dir && ms.descriptor.ConnectionAddress == d.ConnectionAddress && ms.descriptor.Port == d.Port {
			return aerr.NewAdmissionError(op, aerr.KindEndpointConflict)
		}
	}
	return nil
}

// autosaveLocked triggers an asynchronous save if enabled. Callers must
// hold m.mu; the save itself runs on a fresh goroutine so it never blocks
// the caller or a realtime thread (spec §4.9).
func (m *Manager) autosaveLocked() {
	if !m.autosave || m.persister == nil {
		return
	}
	records := m.snapshotRecordsLocked()
	go m.saveRecords(records)
}

// autosaveUnlocked is used by Remove/RemoveAll, which release m.mu before
// calling it, so it takes its own lock to build the snapshot.
func (m *Manager) autosaveUnlocked() {
	m.mu.Lock()
	if !m.autosave || m.persister == nil {
		m.mu.Unlock()
		return
	}
	records := m.snapshotRecordsLocked()
	m.mu.Unlock()
	go m.saveRecords(records)
}

func (m *Manager) snapshotRecordsLocked() []Record {
	records := make([]Record, 0, len(m.streams))
	for _, ms := range m.streams {
		records = append(records, Record{Descriptor: ms.descriptor, Mapping: ms.mapping})
	}
	return records
}

func (m *Manager) saveRecords(records []Record) {
	if err := m.persister.Save(records); err != nil {
		m.logger.Warn("auto-save failed", "error", err)
	}
}
