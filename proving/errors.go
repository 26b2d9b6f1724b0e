package proving

import (
	"context"
	"errors"
	"fmt"

	"github.com/base-org/groth16-proof-service/circuits"
	"github.com/base-org/groth16-proof-service/groth16"
	"github.com/base-org/groth16-proof-service/proving/storage"
	"github.com/base-org/groth16-proof-service/witness"
	"github.com/base-org/groth16-proof-service/zkey"
)

var (
	// ErrKeyNotLoaded is returned by KeyStore.Get for a circuit whose key was never loaded.
	ErrKeyNotLoaded = errors.New("proving key not loaded")
	// ErrShortBuffer is returned when an encoded result exceeds the caller's buffer limit.
	ErrShortBuffer = errors.New("result does not fit the output buffer")
	// ErrNativeUnavailable is returned when the binary was built without the native prover.
	ErrNativeUnavailable = errors.New("native prover not available in this build")
	// ErrRawKeyUnavailable is returned when an engine needs the zkey bytes but the store dropped them.
	ErrRawKeyUnavailable = errors.New("raw proving key not retained")
)

// Kind groups failures by who has to act on them.
type Kind int

const (
	KindConfiguration Kind = iota + 1
	KindDecoding
	KindValidation
	KindComputation
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "ConfigurationError"
	case KindDecoding:
		return "DecodingError"
	case KindValidation:
		return "ValidationError"
	case KindComputation:
		return "ComputationError"
	case KindCanceled:
		return "Canceled"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is the error type returned by every Service operation.
type Error struct {
	Kind    Kind
	Op      string
	Circuit circuits.ID
	Err     error
}

func (e *Error) Error() string {
	if e.Circuit != "" {
		return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Circuit, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err, or 0 when err did not come from a Service.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// classify maps the sentinel errors of the lower layers to a Kind. Errors it
// does not recognise get fallback.
func classify(err error, fallback Kind) Kind {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.Is(err, ErrKeyNotLoaded),
		errors.Is(err, storage.ErrNotFound),
		errors.Is(err, storage.ErrInvalidKey),
		errors.Is(err, ErrNativeUnavailable),
		errors.Is(err, ErrRawKeyUnavailable):
		return KindConfiguration
	case errors.Is(err, witness.ErrMalformedWitness),
		errors.Is(err, zkey.ErrMalformedKey),
		errors.Is(err, zkey.ErrUnsupportedKey),
		errors.Is(err, groth16.ErrMalformedProof),
		errors.Is(err, groth16.ErrMalformedSignals),
		errors.Is(err, groth16.ErrMalformedVerificationKey):
		return KindDecoding
	case errors.Is(err, groth16.ErrWitnessSizeMismatch),
		errors.Is(err, groth16.ErrSignalCountMismatch),
		errors.Is(err, ErrShortBuffer):
		return KindValidation
	case errors.Is(err, groth16.ErrProverInternal):
		return KindComputation
	}
	return fallback
}

func wrap(op string, id circuits.ID, err error, fallback Kind) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: classify(err, fallback), Op: op, Circuit: id, Err: err}
}
