// Package deviceshell defines the collaborator boundaries the core hands
// to the host process: the audio subsystem binding, the host notifier, and
// the configuration store (spec §6). The PTP helper boundary lives in
// package ptp. The core is correct against any
// implementation, including a no-op one; this package also provides the
// default OS-backed implementations used by cmd/aes67bridged.
package deviceshell

import (
	"os"
	"path/filepath"

	"github.com/aes67bridge/aes67bridge/internal/aerr"
)

// AudioBinding is the host audio subsystem's contract with the core's
// realtime callbacks (spec §6: "Audio subsystem binding"). The host calls
// OnInputCallback/OnOutputCallback from its own realtime thread; the core
// never calls back into the host from those methods.
type AudioBinding interface {
	// OnInputCallback delivers network audio into the host's output
	// buffer for one callback period.
	OnInputCallback(frameCount, channelCount int, out []float32) error
	// OnOutputCallback captures the host's input buffer for one callback
	// period into the network path.
	OnOutputCallback(frameCount, channelCount int, in []float32) error
}

// HostNotifier is what the core expects the host to tell it (spec §6:
// "The host provides: current sample rate ..., current buffer size,
// notification of IO start/stop"). No package in this module calls it;
// cmd/aes67bridged fixes the device rate at construction.
type HostNotifier interface {
	SampleRate() int
	BufferSize() int
}

// ConfigStore is the Configuration store collaborator (spec §6): the core
// defines the serialization (spec §4.9) and hands this collaborator only
// opaque bytes plus a path, never interpreting file-system errors itself.
type ConfigStore interface {
	Save(path string, data []byte) error
	Load(path string) ([]byte, error)
}

// OSConfigStore is the default ConfigStore: it writes to a temp file in
// the target directory and renames over the destination, so a crash
// mid-write never leaves a corrupt file on disk.
type OSConfigStore struct{}

// NewOSConfigStore constructs the default filesystem-backed ConfigStore.
func NewOSConfigStore() *OSConfigStore { return &OSConfigStore{} }

// Save implements ConfigStore via write-to-temp-then-rename.
func (OSConfigStore) Save(path string, data []byte) error {
	const op = "deviceshell.OSConfigStore.Save"

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".scope-*.tmp")
	if err != nil {
		return aerr.NewPersistError(op, aerr.KindIoFailed, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return aerr.NewPersistError(op, aerr.KindIoFailed, err)
	}
	if err := tmp.Close(); err != nil {
		return aerr.NewPersistError(op, aerr.KindIoFailed, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return aerr.NewPersistError(op, aerr.KindIoFailed, err)
	}
	return nil
}

// Load implements ConfigStore. A missing file is not an error: it reports
// back as (nil, nil) so the caller can distinguish "never saved" from a
// genuine I/O failure.
func (OSConfigStore) Load(path string) ([]byte, error) {
	const op = "deviceshell.OSConfigStore.Load"

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, aerr.NewPersistError(op, aerr.KindIoFailed, err)
	}
	return data, nil
}

// StaticHostNotifier is a fixed-parameter HostNotifier, useful for hosts
// that do not change sample rate or buffer size at runtime, and for
// tests.
type StaticHostNotifier struct {
	SampleRateHz int
	BufferFrames int
}

func (n StaticHostNotifier) SampleRate() int { return n.SampleRateHz }
func (n StaticHostNotifier) BufferSize() int { return n.BufferFrames }
