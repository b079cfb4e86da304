// Package registry owns the process-lifetime cache of loaded voice models.
//
// A model is loaded on the first Acquire for its backend and kept until the
// process exits. There is no eviction: reloading a model costs far more than
// keeping it resident. Failed loads are never cached, so the next Acquire
// retries from scratch.
package registry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-service/internal/core"
)

// Errors returned by the registry.
var (
	ErrNoLoader   = errors.New("no loader registered for backend")
	ErrNilModel   = errors.New("loader returned a nil model")
	ErrLoadFailed = errors.New("model load failed")
)

// Loader constructs the model of one backend on the given device.
type Loader func(ctx context.Context, device core.Device) (core.VoiceModel, error)

// Store is the backing map from backend to loaded model.
// Implementations need not be safe for concurrent use; the registry serializes access.
type Store interface {
	Get(backend core.Backend) (core.VoiceModel, bool)
	Put(backend core.Backend, model core.VoiceModel)
	Backends() []core.Backend
}

// MapStore is the default in-memory Store.
type MapStore struct {
	models map[core.Backend]core.VoiceModel
}

// NewMapStore creates an empty MapStore.
func NewMapStore() *MapStore {
	return &MapStore{models: make(map[core.Backend]core.VoiceModel)}
}

// Get returns the cached model of a backend.
func (s *MapStore) Get(backend core.Backend) (core.VoiceModel, bool) {
	model, ok := s.models[backend]

	return model, ok
}

// Put caches a model.
func (s *MapStore) Put(backend core.Backend, model core.VoiceModel) {
	s.models[backend] = model
}

// Backends lists the cached backends.
func (s *MapStore) Backends() []core.Backend {
	names := make([]core.Backend, 0, len(s.models))
	for name := range s.models {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}

// Registry hands out cached models, loading each backend at most once at a time.
type Registry struct {
	mu      sync.Mutex
	store   Store
	loaders map[core.Backend]Loader
	probe   core.DeviceProbe
	loads   map[core.Backend]int
	device  *core.Device
	log     *logger.Logger
}

// New creates a Registry. A nil store selects a MapStore.
func New(
	loaders map[core.Backend]Loader,
	probe core.DeviceProbe,
	store Store,
	log *logger.Logger,
) *Registry {
	if store == nil {
		store = NewMapStore()
	}

	copied := make(map[core.Backend]Loader, len(loaders))
	for backend, loader := range loaders {
		copied[backend] = loader
	}

	return &Registry{
		mu:      sync.Mutex{},
		store:   store,
		loaders: copied,
		probe:   probe,
		loads:   make(map[core.Backend]int),
		device:  nil,
		log:     log,
	}
}

// Acquire returns the model of a backend, loading it on first use.
// Concurrent first calls for the same backend wait for a single load.
func (r *Registry) Acquire(ctx context.Context, backend core.Backend) (core.VoiceModel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if model, ok := r.store.Get(backend); ok {
		return model, nil
	}

	loader, ok := r.loaders[backend]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrNoLoader, backend)
	}

	device := r.detectDevice(ctx)

	r.log.Info("Loading %s model on %s...", backend, device.Name)

	start := time.Now()
	r.loads[backend]++

	model, err := loader(ctx, device)
	if err != nil {
		r.log.Error("Failed to load %s model: %v", backend, err)

		return nil, fmt.Errorf("%w: %s: %w", ErrLoadFailed, backend, err)
	}

	if model == nil {
		return nil, fmt.Errorf("%w: %s", ErrNilModel, backend)
	}

	r.store.Put(backend, model)
	r.log.Info("%s model loaded in %.2fs", backend, time.Since(start).Seconds())

	return model, nil
}

// Preload acquires each backend, logging failures instead of returning them.
// It returns the backends that ended up resident.
func (r *Registry) Preload(ctx context.Context, backends ...core.Backend) []core.Backend {
	for _, backend := range backends {
		_, err := r.Acquire(ctx, backend)
		if err != nil {
			r.log.Warn("Preload of %s skipped: %v", backend, err)
		}
	}

	return r.Loaded()
}

// LoadCount reports how many load attempts a backend has seen.
func (r *Registry) LoadCount(backend core.Backend) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.loads[backend]
}

// Loaded lists the backends with a resident model.
func (r *Registry) Loaded() []core.Backend {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.store.Backends()
}

// detectDevice probes once and reuses the answer; callers hold r.mu.
func (r *Registry) detectDevice(ctx context.Context) core.Device {
	if r.device != nil {
		return *r.device
	}

	detected := core.Device{Kind: core.DeviceCPU, Name: "cpu"}
	if r.probe != nil {
		detected = r.probe.Detect(ctx)
	}

	r.log.Info("Initializing models on device: %s (%s)", detected.Kind, detected.Name)
	r.device = &detected

	return detected
}
