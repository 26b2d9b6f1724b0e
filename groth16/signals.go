package groth16

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// PublicSignals are the public wires of a circuit in declaration order.
type PublicSignals []fr.Element

func (s PublicSignals) Strings() []string {
	out := make([]string, len(s))
	for i := range s {
		out[i] = frString(&s[i])
	}
	return out
}

func (s PublicSignals) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Strings())
}

func (s *PublicSignals) UnmarshalJSON(data []byte) error {
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedSignals, err)
	}
	parsed, err := ParsePublicSignals(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParsePublicSignalsJSON decodes a JSON array of decimal strings.
func ParsePublicSignalsJSON(data []byte) (PublicSignals, error) {
	var s PublicSignals
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, wrapIfNot(err, ErrMalformedSignals)
	}
	return s, nil
}

// ParsePublicSignals decodes decimal signals, rejecting values outside the
// scalar field.
func ParsePublicSignals(raw []string) (PublicSignals, error) {
	s := make(PublicSignals, len(raw))
	for i, v := range raw {
		e, err := parseFr(v)
		if err != nil {
			return nil, fmt.Errorf("%w: signal %d: %w", ErrMalformedSignals, i, err)
		}
		s[i] = e
	}
	return s, nil
}

// parseSignalsForVerify differs from ParsePublicSignals in that a value that is
// a decimal integer but not reduced modulo r is reported through inRange
// instead of an error, so verification can reject it as an invalid statement.
func parseSignalsForVerify(raw []string) (s PublicSignals, inRange bool, err error) {
	s = make(PublicSignals, len(raw))
	inRange = true
	for i, v := range raw {
		e, err := parseFr(v)
		if errors.Is(err, errNotCanonical) {
			inRange = false
			continue
		}
		if err != nil {
			return nil, false, fmt.Errorf("%w: signal %d: %w", ErrMalformedSignals, i, err)
		}
		s[i] = e
	}
	return s, inRange, nil
}
