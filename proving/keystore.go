package proving

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/semaphore"

	"github.com/base-org/groth16-proof-service/circuits"
	"github.com/base-org/groth16-proof-service/groth16"
	"github.com/base-org/groth16-proof-service/proving/storage"
	"github.com/base-org/groth16-proof-service/zkey"
)

// State is the lifecycle of a circuit as seen by the service.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateProving State = "proving"
)

// KeyHandle is a loaded proving key. Handles are shared between requests and
// never modified after Load returns them.
type KeyHandle struct {
	ID   circuits.ID
	Path string
	Key  *zkey.ProvingKey

	raw      []byte
	vkOnce   sync.Once
	vk       *groth16.VerifyingKey
	inflight atomic.Int32
}

// VerifyingKey returns the verification key embedded in the proving key.
func (h *KeyHandle) VerifyingKey() *groth16.VerifyingKey {
	h.vkOnce.Do(func() {
		h.vk = groth16.VerifyingKeyFromZkey(h.Key)
	})
	return h.vk
}

// Raw returns the .zkey file the key was decoded from, or nil unless the store
// was created with WithRawKeys.
func (h *KeyHandle) Raw() []byte {
	return h.raw
}

type KeyStoreOption func(*KeyStore)

// WithRawKeys keeps the encoded keys in memory next to the decoded ones.
func WithRawKeys() KeyStoreOption {
	return func(p *KeyStore) {
		p.retainRaw = true
	}
}

func WithKeyStoreMetrics(m *Metrics) KeyStoreOption {
	return func(p *KeyStore) {
		p.metrics = m
	}
}

// KeyStore loads proving keys from storage once per circuit and keeps them
// for the lifetime of the process.
type KeyStore struct {
	store     storage.Storage
	retainRaw bool
	metrics   *Metrics

	lock    sync.Mutex
	locks   map[circuits.ID]*semaphore.Weighted
	loading map[circuits.ID]int
	loaded  map[circuits.ID]*KeyHandle
	// byPath maps a storage key to the first handle decoded from it.
	byPath map[string]*KeyHandle
}

func NewKeyStore(store storage.Storage, opts ...KeyStoreOption) *KeyStore {
	p := &KeyStore{
		store:   store,
		locks:   make(map[circuits.ID]*semaphore.Weighted),
		loading: make(map[circuits.ID]int),
		loaded:  make(map[circuits.ID]*KeyHandle),
		byPath:  make(map[string]*KeyHandle),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = NewMetrics(nil)
	}
	return p
}

func (p *KeyStore) Store() storage.Storage {
	return p.store
}

// Get returns the handle of a loaded key without doing any I/O.
func (p *KeyStore) Get(id circuits.ID) (*KeyHandle, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if h, ok := p.loaded[id]; ok {
		return h, nil
	}
	return nil, ErrKeyNotLoaded
}

// Load returns the cached handle for id, reading path only if id has never
// been loaded and no other circuit was loaded from the same storage key.
// Concurrent loads of one id share a single read. Once a key is cached, later
// loads return it whatever their path. ctx is honoured until the read starts.
func (p *KeyStore) Load(ctx context.Context, id circuits.ID, path string) (*KeyHandle, error) {
	path, err := storage.CleanKey(path)
	if err != nil {
		return nil, err
	}

	p.lock.Lock()
	if h, ok := p.loaded[id]; ok {
		p.lock.Unlock()
		return h, nil
	}
	l := p.locks[id]
	if l == nil {
		l = semaphore.NewWeighted(1)
		p.locks[id] = l
	}
	p.loading[id]++
	p.lock.Unlock()

	defer func() {
		p.lock.Lock()
		if p.loading[id]--; p.loading[id] == 0 {
			delete(p.loading, id)
		}
		p.lock.Unlock()
	}()

	if err := l.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer l.Release(1)

	if h, err := p.Get(id); err == nil {
		return h, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if h := p.shared(id, path); h != nil {
		log.Info("Proving key shared", "circuit", id, "path", path)
		return h, nil
	}

	log.Info("Loading proving key", "circuit", id, "path", path)
	start := time.Now()
	pk, raw, err := Load(ctx, p.store, path)
	p.metrics.keyLoadTime.Observe(time.Since(start).Seconds())
	p.metrics.keyLoads.WithLabelValues(outcome(wrap("load", id, err, KindConfiguration))).Inc()
	if err != nil {
		log.Warn("Failed to load proving key", "circuit", id, "path", path, "error", err)
		return nil, err
	}
	h := &KeyHandle{ID: id, Path: path, Key: pk}
	if p.retainRaw {
		h.raw = raw
	}
	log.Info("Proving key ready", "circuit", id, "wires", pk.NVars, "public", pk.NPublic, "domain", pk.DomainSize, "elapsed", time.Since(start))

	p.lock.Lock()
	p.loaded[id] = h
	if _, ok := p.byPath[path]; !ok {
		p.byPath[path] = h
	}
	p.lock.Unlock()
	return h, nil
}

// shared caches and returns a handle for id over the key already decoded from
// path, or nil when path has not been read yet.
func (p *KeyStore) shared(id circuits.ID, path string) *KeyHandle {
	p.lock.Lock()
	defer p.lock.Unlock()
	src, ok := p.byPath[path]
	if !ok {
		return nil
	}
	h := &KeyHandle{ID: id, Path: path, Key: src.Key, raw: src.raw}
	p.loaded[id] = h
	return h
}

// LoadAsync runs Load on its own goroutine and delivers the result on result.
func (p *KeyStore) LoadAsync(ctx context.Context, id circuits.ID, path string, result chan<- LoadKeyResult) {
	go func() {
		h, err := p.Load(ctx, id, path)
		result <- LoadKeyResult{Handle: h, Err: err}
	}()
}

// State reports where id is in its lifecycle.
func (p *KeyStore) State(id circuits.ID) State {
	p.lock.Lock()
	defer p.lock.Unlock()
	if h, ok := p.loaded[id]; ok {
		if h.inflight.Load() > 0 {
			return StateProving
		}
		return StateReady
	}
	if p.loading[id] > 0 {
		return StateLoading
	}
	return StateIdle
}

// Loaded lists the ids of all cached keys.
func (p *KeyStore) Loaded() []circuits.ID {
	p.lock.Lock()
	defer p.lock.Unlock()
	ids := make([]circuits.ID, 0, len(p.loaded))
	for id := range p.loaded {
		ids = append(ids, id)
	}
	return ids
}
