package groth16

import (
	"encoding/json"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/iden3/go-rapidsnark/types"
)

const (
	protocolName = "groth16"
	curveName    = "bn128"
)

// Proof is a Groth16 proof: A and C in G1, B in G2.
type Proof struct {
	A bn254.G1Affine
	B bn254.G2Affine
	C bn254.G1Affine
}

// proofJSON is the snarkjs / rapidsnark proof layout.
type proofJSON struct {
	PiA      []string   `json:"pi_a"`
	PiB      [][]string `json:"pi_b"`
	PiC      []string   `json:"pi_c"`
	Protocol string     `json:"protocol"`
	Curve    string     `json:"curve,omitempty"`
}

func (p *Proof) MarshalJSON() ([]byte, error) {
	return json.Marshal(proofJSON{
		PiA:      g1Strings(&p.A),
		PiB:      g2Strings(&p.B),
		PiC:      g1Strings(&p.C),
		Protocol: protocolName,
		Curve:    curveName,
	})
}

func (p *Proof) UnmarshalJSON(data []byte) error {
	var raw proofJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedProof, err)
	}
	return p.fromStrings(raw.Protocol, raw.PiA, raw.PiB, raw.PiC)
}

func (p *Proof) fromStrings(protocol string, a []string, b [][]string, c []string) error {
	if protocol != "" && protocol != protocolName {
		return fmt.Errorf("%w: protocol %q", ErrMalformedProof, protocol)
	}
	var err error
	if p.A, err = parseG1(a); err != nil {
		return fmt.Errorf("%w: pi_a: %w", ErrMalformedProof, err)
	}
	if p.B, err = parseG2(b); err != nil {
		return fmt.Errorf("%w: pi_b: %w", ErrMalformedProof, err)
	}
	if p.C, err = parseG1(c); err != nil {
		return fmt.Errorf("%w: pi_c: %w", ErrMalformedProof, err)
	}
	return nil
}

// ParseProof decodes a snarkjs / rapidsnark JSON proof.
func ParseProof(data []byte) (*Proof, error) {
	p := new(Proof)
	if err := json.Unmarshal(data, p); err != nil {
		return nil, wrapIfNot(err, ErrMalformedProof)
	}
	return p, nil
}

// check verifies that every point lies on the curve and in the prime order
// subgroup.
func (p *Proof) check() error {
	if !p.A.IsOnCurve() || !p.A.IsInSubGroup() {
		return fmt.Errorf("%w: pi_a is not a G1 point", ErrMalformedProof)
	}
	if !p.B.IsOnCurve() || !p.B.IsInSubGroup() {
		return fmt.Errorf("%w: pi_b is not a G2 point", ErrMalformedProof)
	}
	if !p.C.IsOnCurve() || !p.C.IsInSubGroup() {
		return fmt.Errorf("%w: pi_c is not a G1 point", ErrMalformedProof)
	}
	return nil
}

// ZKProof converts the proof and its public signals to the go-rapidsnark model
// used by iden3 tooling.
func ZKProof(p *Proof, signals PublicSignals) *types.ZKProof {
	return &types.ZKProof{
		Proof: &types.ProofData{
			A:        g1Strings(&p.A),
			B:        g2Strings(&p.B),
			C:        g1Strings(&p.C),
			Protocol: protocolName,
		},
		PubSignals: signals.Strings(),
	}
}

// FromZKProof is the inverse of ZKProof.
func FromZKProof(zk *types.ZKProof) (*Proof, PublicSignals, error) {
	if zk == nil || zk.Proof == nil {
		return nil, nil, fmt.Errorf("%w: empty proof", ErrMalformedProof)
	}
	p := new(Proof)
	if err := p.fromStrings(zk.Proof.Protocol, zk.Proof.A, zk.Proof.B, zk.Proof.C); err != nil {
		return nil, nil, err
	}
	signals, err := ParsePublicSignals(zk.PubSignals)
	if err != nil {
		return nil, nil, err
	}
	return p, signals, nil
}
