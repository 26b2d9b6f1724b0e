package proving

import (
	"github.com/base-org/groth16-proof-service/groth16"
)

type ProveResult struct {
	Proof   *groth16.Proof
	Signals groth16.PublicSignals
	Err     error
}

type LoadKeyResult struct {
	Handle *KeyHandle
	Err    error
}

// ProveResponse is the wire form of a proof: the snarkjs proof and public
// signals as JSON documents.
type ProveResponse struct {
	Proof         string `json:"proof"`
	PublicSignals string `json:"publicSignals"`
}
