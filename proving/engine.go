package proving

import (
	"github.com/base-org/groth16-proof-service/groth16"
	"github.com/base-org/groth16-proof-service/witness"
)

// Engine computes a Groth16 proof for a loaded key.
type Engine interface {
	Prove(key *KeyHandle, w witness.Witness) (*groth16.Proof, groth16.PublicSignals, error)
}

// GoEngine proves with the pure Go prover.
type GoEngine struct {
	prover *groth16.Prover
}

func NewGoEngine(opts ...groth16.Option) *GoEngine {
	return &GoEngine{prover: groth16.NewProver(opts...)}
}

func (e *GoEngine) Prove(key *KeyHandle, w witness.Witness) (*groth16.Proof, groth16.PublicSignals, error) {
	return e.prover.Prove(key.Key, w)
}
