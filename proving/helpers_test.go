package proving

import (
	"bytes"
	"context"
	"io"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/base-org/groth16-proof-service/circuits"
	"github.com/base-org/groth16-proof-service/groth16"
	"github.com/base-org/groth16-proof-service/internal/zktest"
	"github.com/base-org/groth16-proof-service/proving/storage"
	"github.com/base-org/groth16-proof-service/witness"
	"github.com/base-org/groth16-proof-service/zkey"
)

// memStorage counts reads and consumed bytes and can hold reads until gate is
// closed.
type memStorage struct {
	mu       sync.Mutex
	files    map[string][]byte
	reads    atomic.Int32
	consumed atomic.Int64
	gate     chan struct{}
}

type countingReader struct {
	io.Reader
	n *atomic.Int64
}

func (c countingReader) Read(b []byte) (int, error) {
	n, err := c.Reader.Read(b)
	c.n.Add(int64(n))
	return n, err
}

func newMemStorage() *memStorage {
	return &memStorage{files: make(map[string][]byte)}
}

func (m *memStorage) put(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[key] = data
}

func (m *memStorage) Reader(ctx context.Context, key string) (io.ReadCloser, error) {
	m.reads.Add(1)
	if m.gate != nil {
		<-m.gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(countingReader{Reader: bytes.NewReader(data), n: &m.consumed}), nil
}

type memWriter struct {
	bytes.Buffer
	key   string
	store *memStorage
}

func (w *memWriter) Close() error {
	w.store.put(w.key, w.Bytes())
	return nil
}

func (m *memStorage) Writer(ctx context.Context, key string) (io.WriteCloser, error) {
	return &memWriter{key: key, store: m}, nil
}

// fixture is a toy circuit key stored under its path, which doubles as its
// circuit id when proved by path.
type fixture struct {
	id   circuits.ID
	path string
	pk   *zkey.ProvingKey
	vk   *groth16.VerifyingKey
	wtns []byte
}

func newFixture(t *testing.T, store *memStorage, path string, c *zktest.Circuit, w witness.Witness) fixture {
	pk, err := zktest.Setup(c, rand.New(rand.NewSource(int64(len(path)))))
	require.NoError(t, err)
	store.put(path, zkey.Encode(pk))
	return fixture{id: circuits.ID(path), path: path, pk: pk, vk: groth16.VerifyingKeyFromZkey(pk), wtns: witness.Encode(w)}
}

// blockingEngine waits for release before delegating to the Go prover.
type blockingEngine struct {
	started chan struct{}
	release chan struct{}
	next    Engine
}

func newBlockingEngine() *blockingEngine {
	return &blockingEngine{
		started: make(chan struct{}, 16),
		release: make(chan struct{}),
		next:    NewGoEngine(),
	}
}

func (e *blockingEngine) Prove(key *KeyHandle, w witness.Witness) (*groth16.Proof, groth16.PublicSignals, error) {
	e.started <- struct{}{}
	<-e.release
	return e.next.Prove(key, w)
}

type panickingEngine struct{}

func (panickingEngine) Prove(*KeyHandle, witness.Witness) (*groth16.Proof, groth16.PublicSignals, error) {
	panic("boom")
}
