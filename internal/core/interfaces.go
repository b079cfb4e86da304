// Package core defines the shared types and capability interfaces of the voice service.
package core

import "context"

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}

// Speech is the output of a single generation call.
// Backends either return PCM samples or the path of an audio file they wrote;
// exactly one of Samples or FilePath is set.
type Speech struct {
	Samples    []float32
	SampleRate int
	FilePath   string
}

// VoiceModel is the capability every backend adapter implements.
// Generate receives the variant of Params that matches the adapter's backend.
type VoiceModel interface {
	Generate(ctx context.Context, text string, params Params) (*Speech, error)
}

// MultilingualModel is implemented by models that can speak more than one language.
type MultilingualModel interface {
	VoiceModel
	SupportedLanguages() []string
}

// DeviceKind identifies the compute path a model was loaded onto.
type DeviceKind string

const (
	DeviceCUDA DeviceKind = "cuda"
	DeviceCPU  DeviceKind = "cpu"
)

// Device describes the result of an accelerator probe.
type Device struct {
	Kind DeviceKind
	Name string
}

// IsAccelerator reports whether the device is anything other than the CPU fallback.
func (d Device) IsAccelerator() bool {
	return d.Kind != DeviceCPU && d.Kind != ""
}

// DeviceProbe reports which compute device is available to model loaders.
type DeviceProbe interface {
	Detect(ctx context.Context) Device
}
