package binfile

import (
	"encoding/binary"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fp"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// ElementSize is the byte width of a BN254 base or scalar field element.
const ElementSize = 32

var (
	frModulus = limbsOf(fr.Modulus())
	fpModulus = limbsOf(fp.Modulus())

	// frR is the Montgomery constant 2^256 mod r, frRInv its inverse.
	frR, frRInv fr.Element
)

func init() {
	r := new(big.Int).Lsh(big.NewInt(1), 256)
	r.Mod(r, fr.Modulus())
	frR.SetBigInt(r)
	frRInv.Inverse(&frR)
}

func limbsOf(v *big.Int) [4]uint64 {
	var be [ElementSize]byte
	v.FillBytes(be[:])
	var l [4]uint64
	for i := 0; i < 4; i++ {
		l[i] = binary.BigEndian.Uint64(be[ElementSize-8*(i+1):])
	}
	return l
}

func readLimbs(b []byte) [4]uint64 {
	var l [4]uint64
	for i := range l {
		l[i] = binary.LittleEndian.Uint64(b[8*i:])
	}
	return l
}

func appendLimbs(b []byte, l [4]uint64) []byte {
	for _, v := range l {
		b = binary.LittleEndian.AppendUint64(b, v)
	}
	return b
}

func less(a, m [4]uint64) bool {
	for i := 3; i >= 0; i-- {
		if a[i] != m[i] {
			return a[i] < m[i]
		}
	}
	return false
}

// FrFromLE decodes a canonical little endian scalar in standard form, as found
// in .wtns files. ok is false when the value is not reduced modulo r.
func FrFromLE(b []byte) (e fr.Element, ok bool) {
	l := readLimbs(b)
	if !less(l, frModulus) {
		return e, false
	}
	// the limbs are read as a Montgomery representation, so scale by R
	e = fr.Element(l)
	e.Mul(&e, &frR)
	return e, true
}

func AppendFrLE(b []byte, e *fr.Element) []byte {
	be := e.Bytes()
	for i := len(be) - 1; i >= 0; i-- {
		b = append(b, be[i])
	}
	return b
}

// FrFromCoefficient decodes a .zkey matrix coefficient. snarkjs stores those
// pre-multiplied by R^2 so a Montgomery product with a standard form witness
// value lands in Montgomery form.
func FrFromCoefficient(b []byte) (e fr.Element, ok bool) {
	l := readLimbs(b)
	if !less(l, frModulus) {
		return e, false
	}
	e = fr.Element(l)
	e.Mul(&e, &frRInv)
	return e, true
}

func AppendFrCoefficient(b []byte, e *fr.Element) []byte {
	var t fr.Element
	t.Mul(e, &frR)
	return appendLimbs(b, [4]uint64(t))
}

// FpFromMontgomeryLE decodes a base field element stored in Montgomery form.
// gnark-crypto uses the same R, so the limbs are taken as is.
func FpFromMontgomeryLE(b []byte) (e fp.Element, ok bool) {
	l := readLimbs(b)
	if !less(l, fpModulus) {
		return e, false
	}
	return fp.Element(l), true
}

func AppendFpMontgomery(b []byte, e *fp.Element) []byte {
	return appendLimbs(b, [4]uint64(*e))
}

// G1Size and G2Size are the encoded sizes of affine points.
const (
	G1Size = 2 * ElementSize
	G2Size = 4 * ElementSize
)

func G1FromLEM(b []byte) (p bn254.G1Affine, ok bool) {
	var okX, okY bool
	p.X, okX = FpFromMontgomeryLE(b[0:])
	p.Y, okY = FpFromMontgomeryLE(b[ElementSize:])
	return p, okX && okY
}

func AppendG1LEM(b []byte, p *bn254.G1Affine) []byte {
	b = AppendFpMontgomery(b, &p.X)
	return AppendFpMontgomery(b, &p.Y)
}

func G2FromLEM(b []byte) (p bn254.G2Affine, ok bool) {
	ok = true
	for i, e := range []*fp.Element{&p.X.A0, &p.X.A1, &p.Y.A0, &p.Y.A1} {
		var c bool
		*e, c = FpFromMontgomeryLE(b[i*ElementSize:])
		ok = ok && c
	}
	return p, ok
}

func AppendG2LEM(b []byte, p *bn254.G2Affine) []byte {
	b = AppendFpMontgomery(b, &p.X.A0)
	b = AppendFpMontgomery(b, &p.X.A1)
	b = AppendFpMontgomery(b, &p.Y.A0)
	return AppendFpMontgomery(b, &p.Y.A1)
}

// PrimeLE encodes a modulus as ElementSize little endian bytes.
func PrimeLE(m *big.Int) []byte {
	b := make([]byte, ElementSize)
	m.FillBytes(b)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return b
}

// IsPrime reports whether b is the little endian encoding of m.
func IsPrime(b []byte, m *big.Int) bool {
	if len(b) != ElementSize {
		return false
	}
	be := make([]byte, len(b))
	for i := range b {
		be[len(b)-1-i] = b[i]
	}
	return new(big.Int).SetBytes(be).Cmp(m) == 0
}

// ScalarPrime and BasePrime are the BN254 moduli.
func ScalarPrime() *big.Int { return fr.Modulus() }
func BasePrime() *big.Int   { return fp.Modulus() }
