package groth16

import (
	"encoding/json"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254"

	"github.com/base-org/groth16-proof-service/zkey"
)

// VerifyingKey holds the Groth16 verification parameters of a circuit.
type VerifyingKey struct {
	NPublic int

	Alpha1 bn254.G1Affine
	Beta2  bn254.G2Affine
	Gamma2 bn254.G2Affine
	Delta2 bn254.G2Affine
	// IC has NPublic+1 entries, the first one for the constant wire.
	IC []bn254.G1Affine

	// Beta1 and Delta1 are only known when the key was derived from a proving
	// key. snarkjs verification key files do not carry them.
	Beta1  bn254.G1Affine
	Delta1 bn254.G1Affine
}

// VerifyingKeyFromZkey extracts the verification key embedded in a proving key.
func VerifyingKeyFromZkey(pk *zkey.ProvingKey) *VerifyingKey {
	return &VerifyingKey{
		NPublic: int(pk.NPublic),
		Alpha1:  pk.Alpha1,
		Beta2:   pk.Beta2,
		Gamma2:  pk.Gamma2,
		Delta2:  pk.Delta2,
		IC:      append([]bn254.G1Affine(nil), pk.IC...),
		Beta1:   pk.Beta1,
		Delta1:  pk.Delta1,
	}
}

// vkJSON is the snarkjs verification_key.json layout.
type vkJSON struct {
	Protocol string     `json:"protocol"`
	Curve    string     `json:"curve"`
	NPublic  int        `json:"nPublic"`
	Alpha1   []string   `json:"vk_alpha_1"`
	Beta2    [][]string `json:"vk_beta_2"`
	Gamma2   [][]string `json:"vk_gamma_2"`
	Delta2   [][]string `json:"vk_delta_2"`
	IC       [][]string `json:"IC"`
}

func (vk *VerifyingKey) MarshalJSON() ([]byte, error) {
	raw := vkJSON{
		Protocol: protocolName,
		Curve:    curveName,
		NPublic:  vk.NPublic,
		Alpha1:   g1Strings(&vk.Alpha1),
		Beta2:    g2Strings(&vk.Beta2),
		Gamma2:   g2Strings(&vk.Gamma2),
		Delta2:   g2Strings(&vk.Delta2),
		IC:       make([][]string, len(vk.IC)),
	}
	for i := range vk.IC {
		raw.IC[i] = g1Strings(&vk.IC[i])
	}
	return json.Marshal(raw)
}

func (vk *VerifyingKey) UnmarshalJSON(data []byte) error {
	var raw vkJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedVerificationKey, err)
	}
	if raw.Protocol != "" && raw.Protocol != protocolName {
		return fmt.Errorf("%w: protocol %q", ErrMalformedVerificationKey, raw.Protocol)
	}
	if raw.Curve != "" && raw.Curve != curveName && raw.Curve != "bn254" {
		return fmt.Errorf("%w: curve %q", ErrMalformedVerificationKey, raw.Curve)
	}
	if raw.NPublic < 0 || len(raw.IC) != raw.NPublic+1 {
		return fmt.Errorf("%w: %d IC points for %d public signals", ErrMalformedVerificationKey, len(raw.IC), raw.NPublic)
	}

	var (
		k   VerifyingKey
		err error
	)
	k.NPublic = raw.NPublic
	if k.Alpha1, err = parseG1(raw.Alpha1); err != nil {
		return fmt.Errorf("%w: vk_alpha_1: %w", ErrMalformedVerificationKey, err)
	}
	if k.Beta2, err = parseG2(raw.Beta2); err != nil {
		return fmt.Errorf("%w: vk_beta_2: %w", ErrMalformedVerificationKey, err)
	}
	if k.Gamma2, err = parseG2(raw.Gamma2); err != nil {
		return fmt.Errorf("%w: vk_gamma_2: %w", ErrMalformedVerificationKey, err)
	}
	if k.Delta2, err = parseG2(raw.Delta2); err != nil {
		return fmt.Errorf("%w: vk_delta_2: %w", ErrMalformedVerificationKey, err)
	}
	k.IC = make([]bn254.G1Affine, len(raw.IC))
	for i, p := range raw.IC {
		if k.IC[i], err = parseG1(p); err != nil {
			return fmt.Errorf("%w: IC[%d]: %w", ErrMalformedVerificationKey, i, err)
		}
	}
	if err := k.check(); err != nil {
		return err
	}
	*vk = k
	return nil
}

func (vk *VerifyingKey) check() error {
	if !vk.Alpha1.IsOnCurve() {
		return fmt.Errorf("%w: vk_alpha_1 is not on the curve", ErrMalformedVerificationKey)
	}
	for name, p := range map[string]*bn254.G2Affine{"vk_beta_2": &vk.Beta2, "vk_gamma_2": &vk.Gamma2, "vk_delta_2": &vk.Delta2} {
		if !p.IsOnCurve() || !p.IsInSubGroup() {
			return fmt.Errorf("%w: %s is not a G2 point", ErrMalformedVerificationKey, name)
		}
	}
	for i := range vk.IC {
		if !vk.IC[i].IsOnCurve() {
			return fmt.Errorf("%w: IC[%d] is not on the curve", ErrMalformedVerificationKey, i)
		}
	}
	return nil
}

// ParseVerifyingKey decodes a snarkjs verification key.
func ParseVerifyingKey(data []byte) (*VerifyingKey, error) {
	vk := new(VerifyingKey)
	if err := json.Unmarshal(data, vk); err != nil {
		return nil, wrapIfNot(err, ErrMalformedVerificationKey)
	}
	return vk, nil
}
