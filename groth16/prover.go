package groth16

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"runtime/debug"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/fft"
	"golang.org/x/sync/errgroup"

	"github.com/base-org/groth16-proof-service/witness"
	"github.com/base-org/groth16-proof-service/zkey"
)

type Option func(*Prover)

// WithRandomness sets the source the blinding factors r and s are drawn from.
// A seeded source makes proofs reproducible.
func WithRandomness(r io.Reader) Option {
	return func(p *Prover) {
		p.rand = r
	}
}

// WithNbTasks bounds the goroutines used by each multi-scalar multiplication.
func WithNbTasks(n int) Option {
	return func(p *Prover) {
		p.msm.NbTasks = n
	}
}

// Prover computes Groth16 proofs over BN254 following the snarkjs / rapidsnark
// construction, so it accepts their .zkey files and its proofs verify with
// their verifiers. A Prover is safe for concurrent use.
type Prover struct {
	rand   io.Reader
	randMu sync.Mutex
	msm    ecc.MultiExpConfig
}

func NewProver(opts ...Option) *Prover {
	p := &Prover{rand: rand.Reader}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Prover) Prove(pk *zkey.ProvingKey, w witness.Witness) (proof *Proof, signals PublicSignals, err error) {
	if len(w) != int(pk.NVars) {
		return nil, nil, fmt.Errorf("%w: got %d values, circuit has %d wires", ErrWitnessSizeMismatch, len(w), pk.NVars)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v, stack: %s", ErrProverInternal, r, string(debug.Stack()))
		}
	}()

	r, s, err := p.blinding()
	if err != nil {
		return nil, nil, err
	}
	h := quotient(pk, w)

	var (
		ar, bs1, krs, kh bn254.G1Jac
		bs               bn254.G2Jac
		g                errgroup.Group
	)
	g.Go(func() error { return p.msmG1(&ar, pk.A, w) })
	g.Go(func() error { return p.msmG1(&bs1, pk.B1, w) })
	g.Go(func() error { return p.msmG2(&bs, pk.B2, w) })
	g.Go(func() error { return p.msmG1(&krs, pk.C, w[pk.NPublic+1:]) })
	g.Go(func() error { return p.msmG1(&kh, pk.H, h) })
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrProverInternal, err)
	}

	rBig := r.BigInt(new(big.Int))
	sBig := s.BigInt(new(big.Int))

	// A = Σ wᵢ·Aᵢ + α + r·δ
	var t bn254.G1Jac
	ar.AddMixed(&pk.Alpha1)
	ar.AddAssign(t.FromAffine(&pk.Delta1).ScalarMultiplication(&t, rBig))

	// B in G1 is only needed for C: Σ wᵢ·B1ᵢ + β + s·δ
	bs1.AddMixed(&pk.Beta1)
	bs1.AddAssign(t.FromAffine(&pk.Delta1).ScalarMultiplication(&t, sBig))

	// B = Σ wᵢ·B2ᵢ + β + s·δ
	var t2 bn254.G2Jac
	bs.AddMixed(&pk.Beta2)
	bs.AddAssign(t2.FromAffine(&pk.Delta2).ScalarMultiplication(&t2, sBig))

	// C = Σ_priv wᵢ·Cᵢ + Σ hᵢ·Hᵢ + s·A + r·B1 − r·s·δ
	var rs fr.Element
	rs.Mul(&r, &s).Neg(&rs)
	krs.AddAssign(&kh)
	krs.AddAssign(t.Set(&ar).ScalarMultiplication(&t, sBig))
	krs.AddAssign(t.Set(&bs1).ScalarMultiplication(&t, rBig))
	krs.AddAssign(t.FromAffine(&pk.Delta1).ScalarMultiplication(&t, rs.BigInt(new(big.Int))))

	proof = new(Proof)
	proof.A.FromJacobian(&ar)
	proof.B.FromJacobian(&bs)
	proof.C.FromJacobian(&krs)

	signals = make(PublicSignals, pk.NPublic)
	copy(signals, w[1:pk.NPublic+1])
	return proof, signals, nil
}

func (p *Prover) blinding() (r, s fr.Element, err error) {
	p.randMu.Lock()
	defer p.randMu.Unlock()
	if r, err = randomScalar(p.rand); err != nil {
		return r, s, err
	}
	s, err = randomScalar(p.rand)
	return r, s, err
}

func randomScalar(src io.Reader) (e fr.Element, err error) {
	// 64 bytes reduced modulo r keep the bias negligible
	var b [64]byte
	if _, err := io.ReadFull(src, b[:]); err != nil {
		return e, fmt.Errorf("%w: reading randomness: %w", ErrProverInternal, err)
	}
	e.SetBigInt(new(big.Int).SetBytes(b[:]))
	return e, nil
}

func (p *Prover) msmG1(res *bn254.G1Jac, points []bn254.G1Affine, scalars []fr.Element) error {
	if len(points) == 0 {
		res.FromAffine(&bn254.G1Affine{})
		return nil
	}
	_, err := res.MultiExp(points, scalars, p.msm)
	return err
}

func (p *Prover) msmG2(res *bn254.G2Jac, points []bn254.G2Affine, scalars []fr.Element) error {
	if len(points) == 0 {
		res.FromAffine(&bn254.G2Affine{})
		return nil
	}
	_, err := res.MultiExp(points, scalars, p.msm)
	return err
}

// quotient returns A·B − C evaluated on the coset ω₂ₙ·⟨ωₙ⟩ of the domain,
// which is what the H points of a .zkey are laid out for.
func quotient(pk *zkey.ProvingKey, w witness.Witness) []fr.Element {
	n := int(pk.DomainSize)
	a := make([]fr.Element, n)
	b := make([]fr.Element, n)
	c := make([]fr.Element, n)

	var t fr.Element
	for i := range pk.Coefficients {
		co := &pk.Coefficients[i]
		t.Mul(&co.Value, &w[co.Signal])
		if co.Matrix == zkey.MatrixA {
			a[co.Constraint].Add(&a[co.Constraint], &t)
		} else {
			b[co.Constraint].Add(&b[co.Constraint], &t)
		}
	}
	for i := range c {
		c[i].Mul(&a[i], &b[i])
	}

	domain := fft.NewDomain(uint64(n))
	shift := fft.NewDomain(uint64(2 * n)).Generator

	var wg sync.WaitGroup
	for _, v := range [][]fr.Element{a, b, c} {
		wg.Add(1)
		go func(v []fr.Element) {
			defer wg.Done()
			toOddCoset(domain, &shift, v)
		}(v)
	}
	wg.Wait()

	for i := range a {
		a[i].Mul(&a[i], &b[i]).Sub(&a[i], &c[i])
	}
	return a
}

// toOddCoset turns evaluations over the domain into evaluations over the coset
// shifted by the 2n-th root of unity.
func toOddCoset(domain *fft.Domain, shift *fr.Element, v []fr.Element) {
	domain.FFTInverse(v, fft.DIF)
	fft.BitReverse(v)
	var acc fr.Element
	acc.SetOne()
	for i := range v {
		v[i].Mul(&v[i], &acc)
		acc.Mul(&acc, shift)
	}
	domain.FFT(v, fft.DIF)
	fft.BitReverse(v)
}
