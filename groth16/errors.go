package groth16

import (
	"errors"
	"fmt"
)

var (
	// ErrWitnessSizeMismatch is returned when the witness does not hold one value per circuit wire.
	ErrWitnessSizeMismatch = errors.New("witness size mismatch")
	// ErrProverInternal is returned when the arithmetic backend fails during proving.
	ErrProverInternal = errors.New("prover internal error")
	// ErrMalformedProof is returned when a proof is not a valid encoding of curve points.
	ErrMalformedProof = errors.New("malformed proof")
	// ErrSignalCountMismatch is returned when the number of public signals differs from the circuit's.
	ErrSignalCountMismatch = errors.New("public signal count mismatch")
	// ErrMalformedSignals is returned when public signals are not decimal field elements.
	ErrMalformedSignals = errors.New("malformed public signals")
	// ErrMalformedVerificationKey is returned when a verification key cannot be decoded.
	ErrMalformedVerificationKey = errors.New("malformed verification key")
)

// wrapIfNot tags err with kind unless it already is one, which is the case for
// errors returned by the UnmarshalJSON methods of this package.
func wrapIfNot(err, kind error) error {
	if errors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}
