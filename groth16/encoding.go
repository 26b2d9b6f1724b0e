package groth16

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fp"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

var errNotCanonical = errors.New("not a canonical field element")

// Field elements travel as base 10 strings so no JSON number precision is lost.

func parseDecimal(s string, modulus *big.Int) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%q is not a decimal integer", s)
	}
	if v.Sign() < 0 || v.Cmp(modulus) >= 0 {
		return nil, fmt.Errorf("%q: %w", s, errNotCanonical)
	}
	return v, nil
}

func parseFp(s string) (e fp.Element, err error) {
	v, err := parseDecimal(s, fp.Modulus())
	if err != nil {
		return e, err
	}
	e.SetBigInt(v)
	return e, nil
}

func parseFr(s string) (e fr.Element, err error) {
	v, err := parseDecimal(s, fr.Modulus())
	if err != nil {
		return e, err
	}
	e.SetBigInt(v)
	return e, nil
}

func fpString(e *fp.Element) string {
	return e.BigInt(new(big.Int)).String()
}

func frString(e *fr.Element) string {
	return e.BigInt(new(big.Int)).String()
}

// g1Strings renders an affine point in the snarkjs projective form [x, y, z].
func g1Strings(p *bn254.G1Affine) []string {
	if p.IsInfinity() {
		return []string{"0", "1", "0"}
	}
	return []string{fpString(&p.X), fpString(&p.Y), "1"}
}

func g2Strings(p *bn254.G2Affine) [][]string {
	if p.IsInfinity() {
		return [][]string{{"0", "0"}, {"1", "0"}, {"0", "0"}}
	}
	return [][]string{
		{fpString(&p.X.A0), fpString(&p.X.A1)},
		{fpString(&p.Y.A0), fpString(&p.Y.A1)},
		{"1", "0"},
	}
}

// parseG1 accepts [x, y] affine or [x, y, z] Jacobian coordinates. The result
// is not checked to be on the curve.
func parseG1(s []string) (p bn254.G1Affine, err error) {
	if len(s) != 2 && len(s) != 3 {
		return p, fmt.Errorf("G1 point has %d coordinates", len(s))
	}
	var j bn254.G1Jac
	if j.X, err = parseFp(s[0]); err != nil {
		return p, err
	}
	if j.Y, err = parseFp(s[1]); err != nil {
		return p, err
	}
	j.Z.SetOne()
	if len(s) == 3 {
		if j.Z, err = parseFp(s[2]); err != nil {
			return p, err
		}
	}
	if j.Z.IsZero() {
		return bn254.G1Affine{}, nil
	}
	p.FromJacobian(&j)
	return p, nil
}

func parseE2(s []string) (e [2]fp.Element, err error) {
	if len(s) != 2 {
		return e, fmt.Errorf("extension field element has %d components", len(s))
	}
	for i := range e {
		if e[i], err = parseFp(s[i]); err != nil {
			return e, err
		}
	}
	return e, nil
}

func parseG2(s [][]string) (p bn254.G2Affine, err error) {
	if len(s) != 2 && len(s) != 3 {
		return p, fmt.Errorf("G2 point has %d coordinates", len(s))
	}
	var j bn254.G2Jac
	x, err := parseE2(s[0])
	if err != nil {
		return p, err
	}
	y, err := parseE2(s[1])
	if err != nil {
		return p, err
	}
	j.X.A0, j.X.A1 = x[0], x[1]
	j.Y.A0, j.Y.A1 = y[0], y[1]
	j.Z.SetOne()
	if len(s) == 3 {
		z, err := parseE2(s[2])
		if err != nil {
			return p, err
		}
		j.Z.A0, j.Z.A1 = z[0], z[1]
	}
	if j.Z.IsZero() {
		return bn254.G2Affine{}, nil
	}
	p.FromJacobian(&j)
	return p, nil
}
