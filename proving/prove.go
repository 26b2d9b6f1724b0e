package proving

import (
	"fmt"
	"runtime/debug"

	"github.com/base-org/groth16-proof-service/groth16"
	"github.com/base-org/groth16-proof-service/witness"
)

// ProveAsync runs engine on its own goroutine and delivers exactly one result.
// result should be buffered so an abandoned proof does not leak the worker.
func ProveAsync(engine Engine, key *KeyHandle, w witness.Witness, result chan<- ProveResult) {
	go func() {
		result <- prove(engine, key, w)
	}()
}

func prove(engine Engine, key *KeyHandle, w witness.Witness) (r ProveResult) {
	defer func() {
		if p := recover(); p != nil {
			r = ProveResult{Err: fmt.Errorf("%w: panic: %v, stack: %s", groth16.ErrProverInternal, p, string(debug.Stack()))}
		}
	}()
	proof, signals, err := engine.Prove(key, w)
	return ProveResult{Proof: proof, Signals: signals, Err: err}
}
