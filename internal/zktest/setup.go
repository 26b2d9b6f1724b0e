// Package zktest builds small Groth16 keys from hand written R1CS circuits so
// the prover can be exercised without circom artifacts. The setup keeps the
// toxic waste in memory and must never be used outside tests.
package zktest

import (
	"fmt"
	"io"
	"math/big"
	"math/bits"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/fft"

	"github.com/base-org/groth16-proof-service/witness"
	"github.com/base-org/groth16-proof-service/zkey"
)

type Term struct {
	Wire  int
	Coeff int64
}

// Constraint is a rank one constraint ⟨A,w⟩·⟨B,w⟩ = ⟨C,w⟩.
type Constraint struct {
	A, B, C []Term
}

// Circuit wires are laid out as circom does: the constant 1, the public
// signals, then private wires.
type Circuit struct {
	NVars       int
	NPublic     int
	Constraints []Constraint
}

// Toy has three wires [1, out, in] and the constraint in·1 = out + 1, so the
// witness [1, 2, 3] satisfies it with public signal 2.
func Toy() *Circuit {
	return &Circuit{
		NVars:   3,
		NPublic: 1,
		Constraints: []Constraint{{
			A: []Term{{Wire: 2, Coeff: 1}},
			B: []Term{{Wire: 0, Coeff: 1}},
			C: []Term{{Wire: 1, Coeff: 1}, {Wire: 0, Coeff: 1}},
		}},
	}
}

// Cubic proves knowledge of x with x³ + x + 5 = out, over wires
// [1, out, x, x², x³].
func Cubic() *Circuit {
	return &Circuit{
		NVars:   5,
		NPublic: 1,
		Constraints: []Constraint{
			{A: []Term{{2, 1}}, B: []Term{{2, 1}}, C: []Term{{3, 1}}},
			{A: []Term{{3, 1}}, B: []Term{{2, 1}}, C: []Term{{4, 1}}},
			{A: []Term{{4, 1}, {2, 1}, {0, 5}}, B: []Term{{0, 1}}, C: []Term{{1, 1}}},
		},
	}
}

// CubicWitness returns the witness of Cubic for x.
func CubicWitness(x uint64) witness.Witness {
	return witness.FromUint64(1, x*x*x+x+5, x, x*x, x*x*x)
}

// Multiply has two public factors and a private product, [1, a, b, a·b].
func Multiply() *Circuit {
	return &Circuit{
		NVars:   4,
		NPublic: 2,
		Constraints: []Constraint{
			{A: []Term{{1, 1}}, B: []Term{{2, 1}}, C: []Term{{3, 1}}},
		},
	}
}

func term(t Term) fr.Element {
	var e fr.Element
	e.SetInt64(t.Coeff)
	return e
}

func dot(terms []Term, w witness.Witness) fr.Element {
	var acc, t fr.Element
	for _, tm := range terms {
		c := term(tm)
		t.Mul(&c, &w[tm.Wire])
		acc.Add(&acc, &t)
	}
	return acc
}

// Satisfied reports whether w satisfies every constraint of c.
func (c *Circuit) Satisfied(w witness.Witness) bool {
	if len(w) != c.NVars {
		return false
	}
	for _, cs := range c.Constraints {
		a, b, out := dot(cs.A, w), dot(cs.B, w), dot(cs.C, w)
		a.Mul(&a, &b)
		if !a.Equal(&out) {
			return false
		}
	}
	return true
}

func randomNonZero(rng io.Reader) (fr.Element, error) {
	var b [64]byte
	for {
		if _, err := io.ReadFull(rng, b[:]); err != nil {
			return fr.Element{}, err
		}
		var e fr.Element
		e.SetBigInt(new(big.Int).SetBytes(b[:]))
		if !e.IsZero() {
			return e, nil
		}
	}
}

// Setup runs a single party Groth16 setup for c and returns the proving key
// in the layout snarkjs writes.
func Setup(c *Circuit, rng io.Reader) (*zkey.ProvingKey, error) {
	if c.NPublic+1 > c.NVars {
		return nil, fmt.Errorf("%d public signals for %d wires", c.NPublic, c.NVars)
	}
	var toxic [5]fr.Element
	for i := range toxic {
		e, err := randomNonZero(rng)
		if err != nil {
			return nil, err
		}
		toxic[i] = e
	}
	tau, alpha, beta, gamma, delta := toxic[0], toxic[1], toxic[2], toxic[3], toxic[4]

	m := len(c.Constraints)
	rows := m + c.NPublic + 1
	n := 2
	for n < rows {
		n <<= 1
	}

	pk := &zkey.ProvingKey{
		NVars:      uint32(c.NVars),
		NPublic:    uint32(c.NPublic),
		DomainSize: uint32(n),
		Power:      bits.TrailingZeros(uint(n)),
	}
	for j, cs := range c.Constraints {
		for _, t := range cs.A {
			pk.Coefficients = append(pk.Coefficients, zkey.Coefficient{Matrix: zkey.MatrixA, Constraint: uint32(j), Signal: uint32(t.Wire), Value: term(t)})
		}
		for _, t := range cs.B {
			pk.Coefficients = append(pk.Coefficients, zkey.Coefficient{Matrix: zkey.MatrixB, Constraint: uint32(j), Signal: uint32(t.Wire), Value: term(t)})
		}
	}
	// one extra A row per public wire keeps the public polynomials independent
	for i := 0; i <= c.NPublic; i++ {
		var one fr.Element
		one.SetOne()
		pk.Coefficients = append(pk.Coefficients, zkey.Coefficient{Matrix: zkey.MatrixA, Constraint: uint32(m + i), Signal: uint32(i), Value: one})
	}

	// Lagrange basis at τ: Lⱼ(τ) = ωʲ(τⁿ − 1) / (n(τ − ωʲ))
	domain := fft.NewDomain(uint64(n))
	var zTau, nInv fr.Element
	zTau.Exp(tau, big.NewInt(int64(n)))
	var one fr.Element
	one.SetOne()
	zTau.Sub(&zTau, &one)
	nInv.SetUint64(uint64(n)).Inverse(&nInv)
	lagrange := make([]fr.Element, n)
	var omegaJ fr.Element
	omegaJ.SetOne()
	for j := range lagrange {
		var den fr.Element
		den.Sub(&tau, &omegaJ).Inverse(&den)
		lagrange[j].Mul(&omegaJ, &zTau).Mul(&lagrange[j], &nInv).Mul(&lagrange[j], &den)
		omegaJ.Mul(&omegaJ, &domain.Generator)
	}

	u := make([]fr.Element, c.NVars)
	v := make([]fr.Element, c.NVars)
	w := make([]fr.Element, c.NVars)
	var t fr.Element
	for _, co := range pk.Coefficients {
		t.Mul(&co.Value, &lagrange[co.Constraint])
		if co.Matrix == zkey.MatrixA {
			u[co.Signal].Add(&u[co.Signal], &t)
		} else {
			v[co.Signal].Add(&v[co.Signal], &t)
		}
	}
	for j, cs := range c.Constraints {
		for _, tm := range cs.C {
			k := term(tm)
			t.Mul(&k, &lagrange[j])
			w[tm.Wire].Add(&w[tm.Wire], &t)
		}
	}

	_, _, g1, g2 := bn254.Generators()
	mulG1 := func(e fr.Element) bn254.G1Affine {
		var p bn254.G1Affine
		p.ScalarMultiplication(&g1, e.BigInt(new(big.Int)))
		return p
	}
	mulG2 := func(e fr.Element) bn254.G2Affine {
		var p bn254.G2Affine
		p.ScalarMultiplication(&g2, e.BigInt(new(big.Int)))
		return p
	}

	pk.Alpha1 = mulG1(alpha)
	pk.Beta1 = mulG1(beta)
	pk.Delta1 = mulG1(delta)
	pk.Beta2 = mulG2(beta)
	pk.Gamma2 = mulG2(gamma)
	pk.Delta2 = mulG2(delta)

	var gammaInv, deltaInv fr.Element
	gammaInv.Inverse(&gamma)
	deltaInv.Inverse(&delta)
	pk.A = make([]bn254.G1Affine, c.NVars)
	pk.B1 = make([]bn254.G1Affine, c.NVars)
	pk.B2 = make([]bn254.G2Affine, c.NVars)
	for i := 0; i < c.NVars; i++ {
		pk.A[i] = mulG1(u[i])
		pk.B1[i] = mulG1(v[i])
		pk.B2[i] = mulG2(v[i])

		// (β·uᵢ + α·vᵢ + wᵢ), divided by γ for public wires and δ otherwise
		var k, x fr.Element
		k.Mul(&beta, &u[i])
		x.Mul(&alpha, &v[i])
		k.Add(&k, &x).Add(&k, &w[i])
		if i <= c.NPublic {
			k.Mul(&k, &gammaInv)
			pk.IC = append(pk.IC, mulG1(k))
		} else {
			k.Mul(&k, &deltaInv)
			pk.C = append(pk.C, mulG1(k))
		}
	}

	// Hᵢ = L²ⁿ₂ᵢ₊₁(τ)/δ with L²ⁿₖ(τ) = xₖ(τ²ⁿ − 1) / (2n(τ − xₖ)) and xₖ = ω₂ₙᵏ
	omega2n := fft.NewDomain(uint64(2 * n)).Generator
	var z2n, inv2n, x fr.Element
	z2n.Exp(tau, big.NewInt(int64(2*n))).Sub(&z2n, &one)
	inv2n.SetUint64(uint64(2 * n)).Inverse(&inv2n)
	var omega2 fr.Element
	omega2.Square(&omega2n)
	x.Set(&omega2n)
	pk.H = make([]bn254.G1Affine, n)
	for i := range pk.H {
		var den, l fr.Element
		den.Sub(&tau, &x).Inverse(&den)
		l.Mul(&x, &z2n).Mul(&l, &inv2n).Mul(&l, &den).Mul(&l, &deltaInv)
		pk.H[i] = mulG1(l)
		x.Mul(&x, &omega2)
	}
	return pk, nil
}

// MustSetup is Setup for tests that cannot recover from a failed setup.
func MustSetup(c *Circuit, rng io.Reader) *zkey.ProvingKey {
	pk, err := Setup(c, rng)
	if err != nil {
		panic(err)
	}
	return pk
}
