//go:build rapidsnark

package proving

import (
	"fmt"
	"sync"

	"github.com/iden3/go-rapidsnark/prover"

	"github.com/base-org/groth16-proof-service/groth16"
	"github.com/base-org/groth16-proof-service/witness"
)

// NativeEngine proves with the rapidsnark C++ prover. Keys must be loaded
// with WithRawKeys.
type NativeEngine struct {
	// rapidsnark is not safe for concurrent use
	mu sync.Mutex
}

func NewNativeEngine() (Engine, error) {
	return &NativeEngine{}, nil
}

func (e *NativeEngine) Prove(key *KeyHandle, w witness.Witness) (*groth16.Proof, groth16.PublicSignals, error) {
	raw := key.Raw()
	if raw == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrRawKeyUnavailable, key.ID)
	}
	if len(w) != int(key.Key.NVars) {
		return nil, nil, fmt.Errorf("%w: got %d values, circuit has %d wires", groth16.ErrWitnessSizeMismatch, len(w), key.Key.NVars)
	}

	e.mu.Lock()
	proofJSON, publicJSON, err := prover.Groth16ProverRaw(raw, witness.Encode(w))
	e.mu.Unlock()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", groth16.ErrProverInternal, err)
	}

	proof, err := groth16.ParseProof([]byte(proofJSON))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", groth16.ErrProverInternal, err)
	}
	signals, err := groth16.ParsePublicSignalsJSON([]byte(publicJSON))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", groth16.ErrProverInternal, err)
	}
	return proof, signals, nil
}
