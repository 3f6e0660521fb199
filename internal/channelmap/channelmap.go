// Package channelmap is the authoritative 128-slot device channel
// ownership table: overlap detection, auto-placement, and reverse lookup
// (spec §4.3).
package channelmap

import (
	"sync"

	"github.com/aes67bridge/aes67bridge/internal/aerr"
	"github.com/aes67bridge/aes67bridge/internal/streamid"
)

// DeviceChannelCount is the fixed number of device channel slots.
const DeviceChannelCount = 128

// Mapping assigns a stream's channels onto a contiguous or permuted set
// of device channels within 0..127 (spec §3.1).
type Mapping struct {
	StreamID            streamid.ID
	StreamName          string // denormalised for UI
	StreamChannelCount  int
	StreamChannelOffset int
	DeviceChannelStart  int
	DeviceChannelCount  int
	Permutation         []int // optional; empty means identity placement
}

// deviceChannels returns the set of device channel indices this mapping
// occupies, honouring an explicit permutation when present.
func (m *Mapping) deviceChannels() []int {
	if len(m.Permutation) > 0 {
		out := make([]int, len(m.Permutation))
		for i, p := range m.Permutation {
			out[i] = m.DeviceChannelStart + p
		}
		return out
	}
	out := make([]int, m.DeviceChannelCount)
	for i := 0; i < m.DeviceChannelCount; i++ {
		out[i] = m.DeviceChannelStart + i
	}
	return out
}

// Map maintains the 128-slot ownership table plus a reverse lookup of
// device channel -> StreamId kept in lock-step, both guarded by a single
// mutex (spec §4.3). All operations are O(128) worst case.
type Map struct {
	mu      sync.Mutex
	forward map[streamid.ID]*Mapping
	reverse [DeviceChannelCount]streamid.ID // Nil means free
}

// New creates an empty channel map.
func New() *Map {
	return &Map{forward: make(map[streamid.ID]*Mapping)}
}

// Add inserts a new mapping, failing if it overlaps an existing mapping,
// falls outside 0..127, or duplicates an already-mapped StreamId.
func (cm *Map) Add(m Mapping) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.addLocked(m)
}

func (cm *Map) addLocked(m Mapping) error {
	const op = "channelmap.Add"

	if _, exists := cm.forward[m.StreamID]; exists {
		return aerr.NewMappingError(op, aerr.KindDuplicate)
	}
	if m.StreamChannelCount <= 0 {
		return aerr.NewMappingError(op, aerr.KindEmptyChannelCount)
	}

	channels := m.deviceChannels()
	for _, d := range channels {
		if d < 0 || d >= DeviceChannelCount {
			return aerr.NewMappingError(op, aerr.KindOutOfRange)
		}
	}

	if owners := cm.overlapOwners(channels, streamid.Nil); len(owners) > 0 {
		return aerr.NewMappingOverlapError(op, ownerStrings(owners))
	}

	mc := m
	cm.forward[m.StreamID] = &mc
	for _, d := range channels {
		cm.reverse[d] = m.StreamID
	}
	return nil
}

// Update replaces an existing mapping, validating only against every
// *other* mapping (spec §4.3).
func (cm *Map) Update(m Mapping) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	const op = "channelmap.Update"

	existing, ok := cm.forward[m.StreamID]
	if !ok {
		return aerr.NewStreamError(op, aerr.KindNotFound)
	}
	if m.StreamChannelCount <= 0 {
		return aerr.NewMappingError(op, aerr.KindEmptyChannelCount)
	}

	channels := m.deviceChannels()
	for _, d := range channels {
		if d < 0 || d >= DeviceChannelCount {
			return aerr.NewMappingError(op, aerr.KindOutOfRange)
		}
	}

	if owners := cm.overlapOwners(channels, m.StreamID); len(owners) > 0 {
		return aerr.NewMappingOverlapError(op, ownerStrings(owners))
	}

	for _, d := range existing.deviceChannels() {
		if cm.reverse[d] == m.StreamID {
			cm.reverse[d] = streamid.Nil
		}
	}
	mc := m
	cm.forward[m.StreamID] = &mc
	for _, d := range channels {
		cm.reverse[d] = m.StreamID
	}
	return nil
}

// Remove drops the mapping for id, freeing its device channels. A no-op
// if id has no mapping.
func (cm *Map) Remove(id streamid.ID) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	m, ok := cm.forward[id]
	if !ok {
		return
	}
	for _, d := range m.deviceChannels() {
		if cm.reverse[d] == id {
			cm.reverse[d] = streamid.Nil
		}
	}
	delete(cm.forward, id)
}

// OwnerOf returns the StreamId owning device channel d, and whether d is
// currently owned.
func (cm *Map) OwnerOf(d int) (streamid.ID, bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if d < 0 || d >= DeviceChannelCount {
		return streamid.Nil, false
	}
	owner := cm.reverse[d]
	return owner, !owner.IsNil()
}

// FreeChannels returns the device channel indices with no owner, in
// ascending order.
func (cm *Map) FreeChannels() []int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	var free []int
	for d := 0; d < DeviceChannelCount; d++ {
		if cm.reverse[d].IsNil() {
			free = append(free, d)
		}
	}
	return free
}

// FreeCount returns the number of unowned device channels.
func (cm *Map) FreeCount() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.freeCountLocked()
}

func (cm *Map) freeCountLocked() int {
	n := 0
	for d := 0; d < DeviceChannelCount; d++ {
		if cm.reverse[d].IsNil() {
			n++
		}
	}
	return n
}

// FindContiguous returns the lowest start such that [start, start+n) is
// entirely free, or ok=false if no such block exists. Tie-break: lowest
// start wins (spec §4.3, §8: returns 0 for any n when the map is empty).
func (cm *Map) FindContiguous(n int) (start int, ok bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.findContiguousLocked(n)
}

func (cm *Map) findContiguousLocked(n int) (int, bool) {
	if n <= 0 || n > DeviceChannelCount {
		return 0, false
	}
	run := 0
	for d := 0; d < DeviceChannelCount; d++ {
		if cm.reverse[d].IsNil() {
			run++
			if run == n {
				return d - n + 1, true
			}
		} else {
			run = 0
		}
	}
	return 0, false
}

// AutoPlace finds the lowest contiguous free block of n device channels
// and constructs a default identity mapping there, inserting it into the
// map. Returns ok=false (mapping unchanged) if no block of size n exists.
func (cm *Map) AutoPlace(id streamid.ID, name string, n int) (Mapping, bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	start, ok := cm.findContiguousLocked(n)
	if !ok {
		return Mapping{}, false
	}
	m := Mapping{
		StreamID:           id,
		StreamName:         name,
		StreamChannelCount: n,
		DeviceChannelStart: start,
		DeviceChannelCount: n,
	}
	if err := cm.addLocked(m); err != nil {
		return Mapping{}, false
	}
	return m, true
}

// overlapOwners returns the distinct stream IDs (excluding self) that
// already own any of the given device channels.
func (cm *Map) overlapOwners(channels []int, self streamid.ID) []streamid.ID {
	seen := make(map[streamid.ID]bool)
	var owners []streamid.ID
	for _, d := range channels {
		owner := cm.reverse[d]
		if owner.IsNil() || owner == self {
			continue
		}
		if !seen[owner] {
			seen[owner] = true
			owners = append(owners, owner)
		}
	}
	return owners
}

func ownerStrings(ids []streamid.ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
