package groth16

import (
	"fmt"
	"io"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	groth16_bn254 "github.com/consensys/gnark/backend/groth16/bn254"
)

// ToGnark converts the key to gnark's BN254 Groth16 verifying key, e.g. to
// check circom proofs inside gnark recursion circuits.
func (vk *VerifyingKey) ToGnark() (*groth16_bn254.VerifyingKey, error) {
	gvk := &groth16_bn254.VerifyingKey{}
	gvk.G1.Alpha = vk.Alpha1
	gvk.G1.Beta = vk.Beta1
	gvk.G1.Delta = vk.Delta1
	gvk.G1.K = append([]bn254.G1Affine(nil), vk.IC...)
	gvk.G2.Beta = vk.Beta2
	gvk.G2.Gamma = vk.Gamma2
	gvk.G2.Delta = vk.Delta2
	if err := gvk.Precompute(); err != nil {
		return nil, fmt.Errorf("failed to precompute verification key: %w", err)
	}
	return gvk, nil
}

// WriteGnark writes the key in gnark's binary encoding.
func (vk *VerifyingKey) WriteGnark(w io.Writer) (int64, error) {
	gvk, err := vk.ToGnark()
	if err != nil {
		return 0, err
	}
	return gvk.WriteTo(w)
}

// ToGnark converts the proof to gnark's BN254 Groth16 proof. Circom proofs
// carry no commitments.
func (p *Proof) ToGnark() *groth16_bn254.Proof {
	return &groth16_bn254.Proof{
		Ar:  p.A,
		Bs:  p.B,
		Krs: p.C,
	}
}
