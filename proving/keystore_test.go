package proving

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/base-org/groth16-proof-service/circuits"
	"github.com/base-org/groth16-proof-service/internal/zktest"
	"github.com/base-org/groth16-proof-service/proving/storage"
	"github.com/base-org/groth16-proof-service/witness"
)

func TestKeyStoreConcurrentLoadReadsOnce(t *testing.T) {
	require := require.New(t)

	store := newMemStorage()
	f := newFixture(t, store, "toy.zkey", zktest.Toy(), witness.FromUint64(1, 2, 3))
	keys := NewKeyStore(store)

	const workers = 16
	handles := make([]*KeyHandle, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i], errs[i] = keys.Load(context.Background(), "toy", f.path)
		}(i)
	}
	wg.Wait()

	require.EqualValues(1, store.reads.Load())
	for i := range handles {
		require.NoError(errs[i])
		require.Same(handles[0], handles[i])
	}
	require.Equal(f.pk, handles[0].Key)
	require.Nil(handles[0].Raw())

	h, err := keys.Get("toy")
	require.NoError(err)
	require.Same(handles[0], h)
}

func TestKeyStoreGetUnknown(t *testing.T) {
	_, err := NewKeyStore(newMemStorage()).Get("nope")
	require.ErrorIs(t, err, ErrKeyNotLoaded)
}

func TestKeyStoreLoadIsWriteOnce(t *testing.T) {
	require := require.New(t)

	store := newMemStorage()
	f := newFixture(t, store, "toy.zkey", zktest.Toy(), witness.FromUint64(1, 2, 3))
	keys := NewKeyStore(store, WithRawKeys())

	h1, err := keys.Load(context.Background(), "toy", f.path)
	require.NoError(err)
	require.NotEmpty(h1.Raw())

	h2, err := keys.Load(context.Background(), "toy", "elsewhere.zkey")
	require.NoError(err)
	require.Same(h1, h2)
	require.EqualValues(1, store.reads.Load())
}

func TestKeyStoreLoadErrors(t *testing.T) {
	store := newMemStorage()
	store.put("garbage.zkey", []byte("not a zkey"))
	keys := NewKeyStore(store)

	_, err := keys.Load(context.Background(), "missing", "missing.zkey")
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = keys.Load(context.Background(), "garbage", "garbage.zkey")
	require.Error(t, err)
	require.Equal(t, StateIdle, keys.State("garbage"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	reads := store.reads.Load()
	_, err = keys.Load(ctx, "canceled", "garbage.zkey")
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, reads, store.reads.Load())
}

func TestKeyStoreStates(t *testing.T) {
	require := require.New(t)

	store := newMemStorage()
	f := newFixture(t, store, "toy.zkey", zktest.Toy(), witness.FromUint64(1, 2, 3))
	store.gate = make(chan struct{})
	keys := NewKeyStore(store)
	id := circuits.ID("toy")

	require.Equal(StateIdle, keys.State(id))

	result := make(chan LoadKeyResult, 1)
	keys.LoadAsync(context.Background(), id, f.path, result)
	require.Eventually(func() bool { return store.reads.Load() == 1 }, 5*time.Second, time.Millisecond)
	require.Equal(StateLoading, keys.State(id))

	close(store.gate)
	r := <-result
	require.NoError(r.Err)
	require.Equal(StateReady, keys.State(id))
	require.Equal([]circuits.ID{id}, keys.Loaded())

	r.Handle.inflight.Add(1)
	require.Equal(StateProving, keys.State(id))
	r.Handle.inflight.Add(-1)
	require.Equal(StateReady, keys.State(id))
}

func TestKeyStoreWaitingLoadIsCancellable(t *testing.T) {
	store := newMemStorage()
	f := newFixture(t, store, "toy.zkey", zktest.Toy(), witness.FromUint64(1, 2, 3))
	store.gate = make(chan struct{})
	keys := NewKeyStore(store)

	first := make(chan LoadKeyResult, 1)
	keys.LoadAsync(context.Background(), "toy", f.path, first)
	require.Eventually(t, func() bool { return store.reads.Load() == 1 }, 5*time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := keys.Load(ctx, "toy", f.path)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(store.gate)
	require.NoError(t, (<-first).Err)
	require.EqualValues(t, 1, store.reads.Load())
}
