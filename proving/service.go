package proving

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/semaphore"

	"github.com/base-org/groth16-proof-service/circuits"
	"github.com/base-org/groth16-proof-service/groth16"
	"github.com/base-org/groth16-proof-service/proving/storage"
	"github.com/base-org/groth16-proof-service/witness"
)

const (
	DefaultMaxConcurrentProofs   = 4
	DefaultVerifyingKeyCacheSize = 64

	// publicSignalSize bounds the JSON size of one public signal: 77 decimal
	// digits, the quotes and a separator, as rapidsnark sizes its buffers.
	publicSignalSize = 82
)

type Config struct {
	MaxConcurrentProofs   int64
	VerifyingKeyCacheSize int
}

// BufferLimits are the output sizes a caller can accept. Zero means unbounded.
type BufferLimits struct {
	ProofSize  int `json:"proofBufferSize,omitempty"`
	PublicSize int `json:"publicBufferSize,omitempty"`
}

// Service proves and verifies Groth16 statements for the circuits held by its
// KeyStore. It is safe for concurrent use.
type Service struct {
	keys    *KeyStore
	engine  Engine
	slots   *semaphore.Weighted
	vkeys   *lru.Cache[common.Hash, *groth16.VerifyingKey]
	metrics *Metrics
}

func NewService(keys *KeyStore, engine Engine, cfg Config, metrics *Metrics) (*Service, error) {
	if cfg.MaxConcurrentProofs <= 0 {
		cfg.MaxConcurrentProofs = DefaultMaxConcurrentProofs
	}
	if cfg.VerifyingKeyCacheSize <= 0 {
		cfg.VerifyingKeyCacheSize = DefaultVerifyingKeyCacheSize
	}
	vkeys, err := lru.New[common.Hash, *groth16.VerifyingKey](cfg.VerifyingKeyCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating verification key cache: %w", err)
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Service{
		keys:    keys,
		engine:  engine,
		slots:   semaphore.NewWeighted(cfg.MaxConcurrentProofs),
		vkeys:   vkeys,
		metrics: metrics,
	}, nil
}

func (s *Service) Keys() *KeyStore {
	return s.keys
}

// LoadKey loads the proving key of id from path.
func (s *Service) LoadKey(ctx context.Context, id circuits.ID, path string) (*KeyHandle, error) {
	h, err := s.keys.Load(ctx, id, path)
	return h, wrap("load", id, err, KindConfiguration)
}

// Prove computes a proof for a circuit whose key is already loaded.
func (s *Service) Prove(ctx context.Context, id circuits.ID, witnessBuf []byte) (*ProveResponse, error) {
	const op = "prove"
	h, err := s.keys.Get(id)
	if err != nil {
		return nil, wrap(op, id, err, KindConfiguration)
	}
	return s.prove(ctx, op, h, witnessBuf, BufferLimits{})
}

// Groth16Prove loads the key at zkeyPath if needed, using the canonical path
// as circuit id, and proves witnessBuf against it.
func (s *Service) Groth16Prove(ctx context.Context, zkeyPath string, witnessBuf []byte, limits BufferLimits) (*ProveResponse, error) {
	const op = "groth16Prove"
	id, err := pathID(zkeyPath)
	if err != nil {
		return nil, wrap(op, circuits.ID(zkeyPath), err, KindConfiguration)
	}
	h, err := s.keys.Load(ctx, id, string(id))
	if err != nil {
		return nil, wrap(op, id, err, KindConfiguration)
	}
	return s.prove(ctx, op, h, witnessBuf, limits)
}

func (s *Service) prove(ctx context.Context, op string, h *KeyHandle, witnessBuf []byte, limits BufferLimits) (resp *ProveResponse, err error) {
	defer func() {
		s.metrics.proofs.WithLabelValues(string(h.ID), outcome(err)).Inc()
	}()

	w, err := witness.Decode(witnessBuf)
	if err != nil {
		return nil, wrap(op, h.ID, err, KindDecoding)
	}
	if err := s.slots.Acquire(ctx, 1); err != nil {
		return nil, wrap(op, h.ID, err, KindCanceled)
	}

	h.inflight.Add(1)
	s.metrics.inflight.Inc()
	start := time.Now()
	finish := func() {
		h.inflight.Add(-1)
		s.metrics.inflight.Dec()
		s.slots.Release(1)
	}

	result := make(chan ProveResult, 1)
	log.Info("Proving", "circuit", h.ID, "wires", len(w))
	ProveAsync(s.engine, h, w, result)

	var r ProveResult
	select {
	case r = <-result:
		finish()
	case <-ctx.Done():
		// the computation cannot be interrupted, its result is dropped
		go func() {
			<-result
			finish()
		}()
		log.Info("Proof abandoned by caller", "circuit", h.ID, "error", ctx.Err())
		return nil, wrap(op, h.ID, ctx.Err(), KindCanceled)
	}
	elapsed := time.Since(start)
	log.Info("Proof generation complete", "circuit", h.ID, "elapsed", elapsed, "error", r.Err)
	if r.Err != nil {
		return nil, wrap(op, h.ID, r.Err, KindComputation)
	}
	s.metrics.proofDuration.WithLabelValues(string(h.ID)).Observe(elapsed.Seconds())

	proofJSON, err := json.Marshal(r.Proof)
	if err != nil {
		return nil, wrap(op, h.ID, err, KindComputation)
	}
	publicJSON, err := json.Marshal(r.Signals)
	if err != nil {
		return nil, wrap(op, h.ID, err, KindComputation)
	}
	if limits.ProofSize > 0 && len(proofJSON) > limits.ProofSize {
		return nil, wrap(op, h.ID, fmt.Errorf("%w: proof needs %d bytes, buffer holds %d", ErrShortBuffer, len(proofJSON), limits.ProofSize), KindValidation)
	}
	if limits.PublicSize > 0 && len(publicJSON) > limits.PublicSize {
		return nil, wrap(op, h.ID, fmt.Errorf("%w: public signals need %d bytes, buffer holds %d", ErrShortBuffer, len(publicJSON), limits.PublicSize), KindValidation)
	}
	return &ProveResponse{Proof: string(proofJSON), PublicSignals: string(publicJSON)}, nil
}

// Verify checks a snarkjs proof against the verification key of a loaded
// circuit. An invalid proof yields false and a nil error.
func (s *Service) Verify(ctx context.Context, id circuits.ID, proofJSON, publicJSON []byte) (ok bool, err error) {
	const op = "verify"
	defer func() {
		s.metrics.verifications.WithLabelValues(verifyOutcome(ok, err)).Inc()
	}()
	if err := ctx.Err(); err != nil {
		return false, wrap(op, id, err, KindCanceled)
	}
	h, err := s.keys.Get(id)
	if err != nil {
		return false, wrap(op, id, err, KindConfiguration)
	}
	ok, err = groth16.VerifyJSONWithKey(h.VerifyingKey(), proofJSON, publicJSON)
	return ok, wrap(op, id, err, KindDecoding)
}

// Groth16Verify checks a proof against a snarkjs verification key. Decoded
// keys are cached by the Keccak-256 hash of their JSON.
func (s *Service) Groth16Verify(ctx context.Context, vkJSON, proofJSON, publicJSON []byte) (ok bool, err error) {
	const op = "groth16Verify"
	defer func() {
		s.metrics.verifications.WithLabelValues(verifyOutcome(ok, err)).Inc()
	}()
	if err := ctx.Err(); err != nil {
		return false, wrap(op, "", err, KindCanceled)
	}
	vk, err := s.verifyingKey(vkJSON)
	if err != nil {
		return false, wrap(op, "", err, KindDecoding)
	}
	ok, err = groth16.VerifyJSONWithKey(vk, proofJSON, publicJSON)
	return ok, wrap(op, "", err, KindDecoding)
}

func (s *Service) verifyingKey(vkJSON []byte) (*groth16.VerifyingKey, error) {
	hash := crypto.Keccak256Hash(vkJSON)
	if vk, ok := s.vkeys.Get(hash); ok {
		return vk, nil
	}
	vk, err := groth16.ParseVerifyingKey(vkJSON)
	if err != nil {
		return nil, err
	}
	s.vkeys.Add(hash, vk)
	return vk, nil
}

// PublicBufferSize returns the number of bytes that always suffices for the
// public signals JSON of proofs made with the key at zkeyPath.
func (s *Service) PublicBufferSize(ctx context.Context, zkeyPath string) (int, error) {
	const op = "groth16PublicBufferSize"
	id, err := pathID(zkeyPath)
	if err != nil {
		return 0, wrap(op, circuits.ID(zkeyPath), err, KindConfiguration)
	}
	if h, err := s.keys.Get(id); err == nil {
		return PublicBufferSize(int(h.Key.NPublic)), nil
	}
	header, err := LoadHeader(ctx, s.keys.Store(), string(id))
	if err != nil {
		return 0, wrap(op, id, err, KindConfiguration)
	}
	return PublicBufferSize(int(header.NPublic)), nil
}

// pathID is the circuit id of keys addressed by storage path.
func pathID(zkeyPath string) (circuits.ID, error) {
	key, err := storage.CleanKey(zkeyPath)
	return circuits.ID(key), err
}

func PublicBufferSize(nPublic int) int {
	return nPublic*publicSignalSize + 4
}

// Status reports the lifecycle state of a circuit.
func (s *Service) Status(id circuits.ID) State {
	return s.keys.State(id)
}

// VerifyingKey returns the verification key of a loaded circuit.
func (s *Service) VerifyingKey(id circuits.ID) (*groth16.VerifyingKey, error) {
	h, err := s.keys.Get(id)
	if err != nil {
		return nil, wrap("verifyingKey", id, err, KindConfiguration)
	}
	return h.VerifyingKey(), nil
}
