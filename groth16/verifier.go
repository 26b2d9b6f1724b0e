package groth16

import (
	"encoding/json"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254"
)

// Verify checks a proof against a verification key and public signals. An
// invalid proof is reported as false with a nil error; errors are reserved for
// inputs that cannot be checked at all.
func Verify(vk *VerifyingKey, proof *Proof, signals PublicSignals) (bool, error) {
	if len(signals) != vk.NPublic {
		return false, fmt.Errorf("%w: got %d, circuit has %d", ErrSignalCountMismatch, len(signals), vk.NPublic)
	}
	if len(vk.IC) != vk.NPublic+1 {
		return false, fmt.Errorf("%w: %d IC points for %d public signals", ErrMalformedVerificationKey, len(vk.IC), vk.NPublic)
	}
	if err := proof.check(); err != nil {
		return false, err
	}

	// vk_x = IC₀ + Σ sᵢ·ICᵢ₊₁
	var vkx bn254.G1Jac
	if vk.NPublic > 0 {
		if _, err := vkx.MultiExp(vk.IC[1:], signals, ecc.MultiExpConfig{}); err != nil {
			return false, fmt.Errorf("computing public input commitment: %w", err)
		}
		vkx.AddMixed(&vk.IC[0])
	} else {
		vkx.FromAffine(&vk.IC[0])
	}
	var vkxAff, negA bn254.G1Affine
	vkxAff.FromJacobian(&vkx)
	negA.Neg(&proof.A)

	// e(−A, B)·e(α, β)·e(vk_x, γ)·e(C, δ) == 1
	ok, err := bn254.PairingCheck(
		[]bn254.G1Affine{negA, vk.Alpha1, vkxAff, proof.C},
		[]bn254.G2Affine{proof.B, vk.Beta2, vk.Gamma2, vk.Delta2},
	)
	if err != nil {
		return false, fmt.Errorf("pairing check: %w", err)
	}
	return ok, nil
}

// VerifyJSON verifies snarkjs encoded inputs. A public signal that is not
// reduced modulo r makes the statement invalid rather than malformed, as in
// snarkjs.
func VerifyJSON(vkJSON, proofJSON, signalsJSON []byte) (bool, error) {
	vk, err := ParseVerifyingKey(vkJSON)
	if err != nil {
		return false, err
	}
	return VerifyJSONWithKey(vk, proofJSON, signalsJSON)
}

// VerifyJSONWithKey is VerifyJSON for an already decoded verification key.
func VerifyJSONWithKey(vk *VerifyingKey, proofJSON, signalsJSON []byte) (bool, error) {
	proof, err := ParseProof(proofJSON)
	if err != nil {
		return false, err
	}
	var raw []string
	if err := json.Unmarshal(signalsJSON, &raw); err != nil {
		return false, fmt.Errorf("%w: %w", ErrMalformedSignals, err)
	}
	if len(raw) != vk.NPublic {
		return false, fmt.Errorf("%w: got %d, circuit has %d", ErrSignalCountMismatch, len(raw), vk.NPublic)
	}
	signals, inRange, err := parseSignalsForVerify(raw)
	if err != nil {
		return false, err
	}
	if !inRange {
		return false, nil
	}
	return Verify(vk, proof, signals)
}
