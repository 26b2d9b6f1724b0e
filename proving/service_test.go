package proving

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/base-org/groth16-proof-service/circuits"
	"github.com/base-org/groth16-proof-service/groth16"
	"github.com/base-org/groth16-proof-service/internal/zktest"
	"github.com/base-org/groth16-proof-service/proving/storage"
	"github.com/base-org/groth16-proof-service/witness"
	"github.com/base-org/groth16-proof-service/zkey"
)

func newTestService(t *testing.T, engine Engine, cfg Config) (*Service, *memStorage, *Metrics) {
	store := newMemStorage()
	metrics := NewMetrics(prometheus.NewRegistry())
	s, err := NewService(NewKeyStore(store, WithKeyStoreMetrics(metrics)), engine, cfg, metrics)
	require.NoError(t, err)
	return s, store, metrics
}

func requireKind(t *testing.T, err error, kind Kind, target error) {
	t.Helper()
	var e *Error
	require.True(t, errors.As(err, &e), "error %v is not a *proving.Error", err)
	require.Equal(t, kind, e.Kind, "error: %v", err)
	if target != nil {
		require.ErrorIs(t, err, target)
	}
}

func TestServiceProveVerify(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	s, store, metrics := newTestService(t, NewGoEngine(), Config{})
	f := newFixture(t, store, "keys/multiply.zkey", zktest.Multiply(), witness.FromUint64(1, 3, 5, 15))

	resp, err := s.Groth16Prove(ctx, f.path, f.wtns, BufferLimits{})
	require.NoError(err)
	require.JSONEq(`["3","5"]`, resp.PublicSignals)
	require.Equal(StateReady, s.Status("keys/multiply.zkey"))

	vkJSON, err := json.Marshal(f.vk)
	require.NoError(err)
	ok, err := s.Groth16Verify(ctx, vkJSON, []byte(resp.Proof), []byte(resp.PublicSignals))
	require.NoError(err)
	require.True(ok)

	ok, err = s.Groth16Verify(ctx, vkJSON, []byte(resp.Proof), []byte(`["5","3"]`))
	require.NoError(err)
	require.False(ok)
	require.Equal(1, s.vkeys.Len())

	ok, err = s.Verify(ctx, "keys/multiply.zkey", []byte(resp.Proof), []byte(resp.PublicSignals))
	require.NoError(err)
	require.True(ok)

	// a key loaded under a circuit id
	_, err = s.LoadKey(ctx, "multiply", f.path)
	require.NoError(err)
	resp2, err := s.Prove(ctx, "multiply", f.wtns)
	require.NoError(err)
	ok, err = s.Verify(ctx, "multiply", []byte(resp2.Proof), []byte(resp2.PublicSignals))
	require.NoError(err)
	require.True(ok)

	require.Equal(2.0, testutil.ToFloat64(metrics.proofs.WithLabelValues("keys/multiply.zkey", "ok"))+testutil.ToFloat64(metrics.proofs.WithLabelValues("multiply", "ok")))
	require.Equal(3.0, testutil.ToFloat64(metrics.verifications.WithLabelValues("valid")))
	require.Equal(1.0, testutil.ToFloat64(metrics.verifications.WithLabelValues("invalid")))
	// both circuits share the key decoded from f.path
	require.Equal(1.0, testutil.ToFloat64(metrics.keyLoads.WithLabelValues("ok")))
	require.EqualValues(1, store.reads.Load())
}

func TestServiceErrors(t *testing.T) {
	ctx := context.Background()
	s, store, _ := newTestService(t, NewGoEngine(), Config{})
	f := newFixture(t, store, "toy.zkey", zktest.Toy(), witness.FromUint64(1, 2, 3))
	vkJSON, err := json.Marshal(f.vk)
	require.NoError(t, err)
	resp, err := s.Groth16Prove(ctx, f.path, f.wtns, BufferLimits{})
	require.NoError(t, err)

	t.Run("key not loaded", func(t *testing.T) {
		_, err := s.Prove(ctx, "unknown", f.wtns)
		requireKind(t, err, KindConfiguration, ErrKeyNotLoaded)
		_, err = s.Verify(ctx, "unknown", []byte(resp.Proof), []byte(resp.PublicSignals))
		requireKind(t, err, KindConfiguration, ErrKeyNotLoaded)
	})
	t.Run("missing key file", func(t *testing.T) {
		_, err := s.Groth16Prove(ctx, "missing.zkey", f.wtns, BufferLimits{})
		requireKind(t, err, KindConfiguration, nil)
		_, err = s.PublicBufferSize(ctx, "missing.zkey")
		requireKind(t, err, KindConfiguration, nil)
	})
	t.Run("empty witness", func(t *testing.T) {
		_, err := s.Groth16Prove(ctx, f.path, nil, BufferLimits{})
		requireKind(t, err, KindDecoding, witness.ErrMalformedWitness)
	})
	t.Run("witness size", func(t *testing.T) {
		_, err := s.Groth16Prove(ctx, f.path, witness.Encode(witness.FromUint64(1, 2)), BufferLimits{})
		requireKind(t, err, KindValidation, groth16.ErrWitnessSizeMismatch)
	})
	t.Run("short proof buffer", func(t *testing.T) {
		_, err := s.Groth16Prove(ctx, f.path, f.wtns, BufferLimits{ProofSize: 16})
		requireKind(t, err, KindValidation, ErrShortBuffer)
	})
	t.Run("short public buffer", func(t *testing.T) {
		_, err := s.Groth16Prove(ctx, f.path, f.wtns, BufferLimits{PublicSize: 2})
		requireKind(t, err, KindValidation, ErrShortBuffer)
	})
	t.Run("public buffer from size query", func(t *testing.T) {
		size, err := s.PublicBufferSize(ctx, f.path)
		require.NoError(t, err)
		_, err = s.Groth16Prove(ctx, f.path, f.wtns, BufferLimits{PublicSize: size})
		require.NoError(t, err)
	})
	t.Run("signal count", func(t *testing.T) {
		_, err := s.Groth16Verify(ctx, vkJSON, []byte(resp.Proof), []byte(`["9","9"]`))
		requireKind(t, err, KindValidation, groth16.ErrSignalCountMismatch)
	})
	t.Run("malformed proof", func(t *testing.T) {
		_, err := s.Groth16Verify(ctx, vkJSON, []byte(`{"pi_a":[]}`), []byte(resp.PublicSignals))
		requireKind(t, err, KindDecoding, groth16.ErrMalformedProof)
	})
	t.Run("malformed verification key", func(t *testing.T) {
		_, err := s.Groth16Verify(ctx, []byte(`not json`), []byte(resp.Proof), []byte(resp.PublicSignals))
		requireKind(t, err, KindDecoding, groth16.ErrMalformedVerificationKey)
	})
	t.Run("canceled", func(t *testing.T) {
		canceled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := s.Groth16Verify(canceled, vkJSON, []byte(resp.Proof), []byte(resp.PublicSignals))
		requireKind(t, err, KindCanceled, context.Canceled)
	})
}

func TestServiceKeyPaths(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	s, store, metrics := newTestService(t, NewGoEngine(), Config{})
	f := newFixture(t, store, "keys/toy.zkey", zktest.Toy(), witness.FromUint64(1, 2, 3))

	for _, path := range []string{"keys/toy.zkey", "./keys/toy.zkey", "keys//toy.zkey", "keys/tmp/../toy.zkey"} {
		_, err := s.Groth16Prove(ctx, path, f.wtns, BufferLimits{})
		require.NoError(err, path)
		size, err := s.PublicBufferSize(ctx, path)
		require.NoError(err, path)
		require.Equal(86, size)
	}
	require.Equal([]circuits.ID{f.id}, s.Keys().Loaded())
	require.EqualValues(1, store.reads.Load())
	require.Equal(1, testutil.CollectAndCount(metrics.proofs))
	require.Equal(4.0, testutil.ToFloat64(metrics.proofs.WithLabelValues(string(f.id), "ok")))

	for _, path := range []string{"../toy.zkey", "keys/../../toy.zkey", "/etc/hostname", "/etc/does-not-exist", ""} {
		_, err := s.Groth16Prove(ctx, path, f.wtns, BufferLimits{})
		requireKind(t, err, KindConfiguration, storage.ErrInvalidKey)
		_, err = s.PublicBufferSize(ctx, path)
		requireKind(t, err, KindConfiguration, storage.ErrInvalidKey)
		_, err = s.LoadKey(ctx, "other", path)
		requireKind(t, err, KindConfiguration, storage.ErrInvalidKey)
	}
	require.EqualValues(1, store.reads.Load())
	require.Equal(1, testutil.CollectAndCount(metrics.proofs))
}

func TestServiceRecoversEnginePanic(t *testing.T) {
	s, store, _ := newTestService(t, panickingEngine{}, Config{})
	f := newFixture(t, store, "toy.zkey", zktest.Toy(), witness.FromUint64(1, 2, 3))

	_, err := s.Groth16Prove(context.Background(), f.path, f.wtns, BufferLimits{})
	requireKind(t, err, KindComputation, groth16.ErrProverInternal)
	require.Contains(t, err.Error(), "boom")
	require.Equal(t, StateReady, s.Status(f.id))
}

func TestServiceAbandonedProof(t *testing.T) {
	require := require.New(t)

	engine := newBlockingEngine()
	s, store, _ := newTestService(t, engine, Config{MaxConcurrentProofs: 1})
	f := newFixture(t, store, "toy.zkey", zktest.Toy(), witness.FromUint64(1, 2, 3))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := s.Groth16Prove(ctx, f.path, f.wtns, BufferLimits{})
		done <- err
	}()
	<-engine.started
	require.Equal(StateProving, s.Status(f.id))

	cancel()
	requireKind(t, <-done, KindCanceled, context.Canceled)
	// the slot stays taken until the computation ends
	require.Equal(StateProving, s.Status(f.id))

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer waitCancel()
	_, err := s.Groth16Prove(waitCtx, f.path, f.wtns, BufferLimits{})
	requireKind(t, err, KindCanceled, context.DeadlineExceeded)

	close(engine.release)
	require.Eventually(func() bool { return s.Status(f.id) == StateReady }, 5*time.Second, time.Millisecond)

	resp, err := s.Groth16Prove(context.Background(), f.path, f.wtns, BufferLimits{})
	require.NoError(err)
	require.JSONEq(`["2"]`, resp.PublicSignals)
}

func TestPublicBufferSize(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	s, store, _ := newTestService(t, NewGoEngine(), Config{})
	f := newFixture(t, store, "multiply.zkey", zktest.Multiply(), witness.FromUint64(1, 3, 5, 15))

	size, err := s.PublicBufferSize(ctx, f.path)
	require.NoError(err)
	require.Equal(2*82+4, size)
	require.Equal(StateIdle, s.Status(f.id))
	// only the header sections are read
	require.Less(store.consumed.Load(), int64(1024))
	require.Greater(int64(len(zkey.Encode(f.pk))), int64(2048))

	_, err = s.LoadKey(ctx, f.id, f.path)
	require.NoError(err)
	reads := store.reads.Load()
	size, err = s.PublicBufferSize(ctx, f.path)
	require.NoError(err)
	require.Equal(2*82+4, size)
	require.Equal(reads, store.reads.Load())
}

func TestErrorMessage(t *testing.T) {
	err := &Error{Kind: KindValidation, Op: "prove", Circuit: "auth", Err: ErrShortBuffer}
	require.Equal(t, "prove auth: ValidationError: result does not fit the output buffer", err.Error())
	require.Equal(t, KindValidation, KindOf(err))
	require.Equal(t, Kind(0), KindOf(errors.New("plain")))
}

func TestNativeEngineUnavailable(t *testing.T) {
	_, err := NewNativeEngine()
	if err != nil {
		require.ErrorIs(t, err, ErrNativeUnavailable)
	}
}
