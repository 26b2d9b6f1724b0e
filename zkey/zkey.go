// Package zkey decodes Groth16 proving keys in the snarkjs .zkey layout.
package zkey

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/bits"
	"runtime"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"golang.org/x/sync/errgroup"

	"github.com/base-org/groth16-proof-service/internal/binfile"
)

var (
	// ErrMalformedKey is returned when a proving key buffer cannot be decoded.
	ErrMalformedKey = errors.New("malformed proving key")
	// ErrUnsupportedKey is returned for well formed keys of another proof system or curve.
	ErrUnsupportedKey = errors.New("unsupported proving key")

	errCoordinate = errors.New("coordinate not reduced")
)

const (
	fileType    = "zkey"
	fileVersion = 1

	protocolGroth16 = 1

	// maxHeaderSection bounds the header sections read by ReadHeaderFrom.
	maxHeaderSection = 1 << 16
	// pointChunk is the number of table points validated per goroutine.
	pointChunk = 1 << 12
)

const (
	sectionHeader = iota + 1
	sectionGroth16Header
	sectionIC
	sectionCoefficients
	sectionA
	sectionB1
	sectionB2
	sectionC
	sectionH
)

// Matrix identifies the R1CS matrix a coefficient belongs to.
type Matrix uint32

const (
	MatrixA Matrix = 0
	MatrixB Matrix = 1
)

// Coefficient is a non-zero entry of the A or B matrix.
type Coefficient struct {
	Matrix     Matrix
	Constraint uint32
	Signal     uint32
	Value      fr.Element
}

// ProvingKey is an immutable Groth16 proving key. It is safe to share between
// concurrent provers as long as nobody writes to it.
type ProvingKey struct {
	NVars      uint32
	NPublic    uint32
	DomainSize uint32
	Power      int

	Alpha1 bn254.G1Affine
	Beta1  bn254.G1Affine
	Delta1 bn254.G1Affine
	Beta2  bn254.G2Affine
	Gamma2 bn254.G2Affine
	Delta2 bn254.G2Affine

	// IC holds NPublic+1 points, one per public wire including the constant.
	IC []bn254.G1Affine

	Coefficients []Coefficient

	A  []bn254.G1Affine
	B1 []bn254.G1Affine
	B2 []bn254.G2Affine
	// C is indexed by private wire, starting at wire NPublic+1.
	C []bn254.G1Affine
	// H holds DomainSize points for the quotient evaluated on the odd coset.
	H []bn254.G1Affine
}

// Header is the part of a key needed to size buffers without decoding the
// point tables.
type Header struct {
	NVars      uint32
	NPublic    uint32
	DomainSize uint32
}

func ReadHeader(buf []byte) (*Header, error) {
	f, err := parseContainer(buf)
	if err != nil {
		return nil, err
	}
	return headerOf(f)
}

// ReadHeaderFrom reads a key from r only up to its header sections. snarkjs
// writes them first, so the point tables are never read.
func ReadHeaderFrom(r io.Reader) (*Header, error) {
	f, err := binfile.ReadSections(r, fileType, fileVersion, maxHeaderSection, sectionHeader, sectionGroth16Header)
	if errors.Is(err, binfile.ErrMalformed) {
		return nil, fmt.Errorf("%w: %w", ErrMalformedKey, err)
	}
	if err != nil {
		return nil, err
	}
	return headerOf(f)
}

func headerOf(f *binfile.File) (*Header, error) {
	pk := new(ProvingKey)
	if err := pk.readHeader(f); err != nil {
		return nil, err
	}
	return &Header{NVars: pk.NVars, NPublic: pk.NPublic, DomainSize: pk.DomainSize}, nil
}

func Parse(buf []byte) (*ProvingKey, error) {
	f, err := parseContainer(buf)
	if err != nil {
		return nil, err
	}
	pk := new(ProvingKey)
	if err := pk.readHeader(f); err != nil {
		return nil, err
	}
	if pk.IC, err = readG1Section(f, sectionIC, int(pk.NPublic)+1); err != nil {
		return nil, err
	}
	if err := pk.readCoefficients(f); err != nil {
		return nil, err
	}
	if pk.A, err = readG1Section(f, sectionA, int(pk.NVars)); err != nil {
		return nil, err
	}
	if pk.B1, err = readG1Section(f, sectionB1, int(pk.NVars)); err != nil {
		return nil, err
	}
	if pk.B2, err = readG2Section(f, sectionB2, int(pk.NVars)); err != nil {
		return nil, err
	}
	if pk.C, err = readG1Section(f, sectionC, int(pk.NVars-pk.NPublic-1)); err != nil {
		return nil, err
	}
	if pk.H, err = readG1Section(f, sectionH, int(pk.DomainSize)); err != nil {
		return nil, err
	}
	if err := pk.checkPoints(); err != nil {
		return nil, err
	}
	return pk, nil
}

// checkPoints rejects keys with points off the curve or, in G2, outside the
// prime order subgroup. G1 of BN254 has cofactor 1.
func (pk *ProvingKey) checkPoints() error {
	for name, p := range map[string]*bn254.G1Affine{"alpha_1": &pk.Alpha1, "beta_1": &pk.Beta1, "delta_1": &pk.Delta1} {
		if !p.IsOnCurve() {
			return fmt.Errorf("%w: %s is not a G1 point", ErrMalformedKey, name)
		}
	}
	for name, p := range map[string]*bn254.G2Affine{"beta_2": &pk.Beta2, "gamma_2": &pk.Gamma2, "delta_2": &pk.Delta2} {
		if !validG2(p) {
			return fmt.Errorf("%w: %s is not a G2 point", ErrMalformedKey, name)
		}
	}

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	checkG1Table(&g, sectionIC, pk.IC)
	checkG1Table(&g, sectionA, pk.A)
	checkG1Table(&g, sectionB1, pk.B1)
	checkTable(&g, sectionB2, pk.B2, validG2)
	checkG1Table(&g, sectionC, pk.C)
	checkG1Table(&g, sectionH, pk.H)
	return g.Wait()
}

func validG2(p *bn254.G2Affine) bool {
	return p.IsOnCurve() && p.IsInSubGroup()
}

func checkG1Table(g *errgroup.Group, id uint32, points []bn254.G1Affine) {
	checkTable(g, id, points, (*bn254.G1Affine).IsOnCurve)
}

func checkTable[T any](g *errgroup.Group, id uint32, points []T, valid func(*T) bool) {
	for start := 0; start < len(points); start += pointChunk {
		end := min(start+pointChunk, len(points))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if !valid(&points[i]) {
					return fmt.Errorf("%w: section %d point %d is not a curve point", ErrMalformedKey, id, i)
				}
			}
			return nil
		})
	}
}

func parseContainer(buf []byte) (*binfile.File, error) {
	f, err := binfile.Parse(buf, fileType, fileVersion)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedKey, err)
	}
	return f, nil
}

func (pk *ProvingKey) readHeader(f *binfile.File) error {
	header, err := f.Section(sectionHeader)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedKey, err)
	}
	r := binfile.NewReader(header)
	protocol := r.Uint32()
	if r.Err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedKey, r.Err)
	}
	if protocol != protocolGroth16 {
		return fmt.Errorf("%w: protocol %d is not groth16", ErrUnsupportedKey, protocol)
	}

	g, err := f.Section(sectionGroth16Header)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedKey, err)
	}
	r = binfile.NewReader(g)
	n8q := r.Uint32()
	q := r.Next(int(n8q))
	n8r := r.Uint32()
	rr := r.Next(int(n8r))
	if r.Err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedKey, r.Err)
	}
	if !binfile.IsPrime(q, binfile.BasePrime()) || !binfile.IsPrime(rr, binfile.ScalarPrime()) {
		return fmt.Errorf("%w: curve is not bn254", ErrUnsupportedKey)
	}
	pk.NVars = r.Uint32()
	pk.NPublic = r.Uint32()
	pk.DomainSize = r.Uint32()
	pk.Alpha1 = readG1(r)
	pk.Beta1 = readG1(r)
	pk.Beta2 = readG2(r)
	pk.Gamma2 = readG2(r)
	pk.Delta1 = readG1(r)
	pk.Delta2 = readG2(r)
	if r.Err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedKey, r.Err)
	}
	if pk.NPublic+1 > pk.NVars {
		return fmt.Errorf("%w: %d public signals for %d wires", ErrMalformedKey, pk.NPublic, pk.NVars)
	}
	if pk.DomainSize == 0 || pk.DomainSize&(pk.DomainSize-1) != 0 {
		return fmt.Errorf("%w: domain size %d is not a power of two", ErrMalformedKey, pk.DomainSize)
	}
	pk.Power = bits.TrailingZeros32(pk.DomainSize)
	return nil
}

func (pk *ProvingKey) readCoefficients(f *binfile.File) error {
	data, err := f.Section(sectionCoefficients)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedKey, err)
	}
	r := binfile.NewReader(data)
	n := r.Uint32()
	const entrySize = 12 + binfile.ElementSize
	if r.Err != nil || uint64(r.Remaining()) != uint64(n)*entrySize {
		return fmt.Errorf("%w: coefficient section holds %d bytes for %d entries", ErrMalformedKey, r.Remaining(), n)
	}
	pk.Coefficients = make([]Coefficient, n)
	for i := range pk.Coefficients {
		c := &pk.Coefficients[i]
		c.Matrix = Matrix(r.Uint32())
		c.Constraint = r.Uint32()
		c.Signal = r.Uint32()
		v, ok := binfile.FrFromCoefficient(r.Next(binfile.ElementSize))
		switch {
		case c.Matrix != MatrixA && c.Matrix != MatrixB:
			return fmt.Errorf("%w: coefficient %d references matrix %d", ErrMalformedKey, i, c.Matrix)
		case c.Constraint >= pk.DomainSize:
			return fmt.Errorf("%w: coefficient %d constraint %d outside domain", ErrMalformedKey, i, c.Constraint)
		case c.Signal >= pk.NVars:
			return fmt.Errorf("%w: coefficient %d signal %d out of range", ErrMalformedKey, i, c.Signal)
		case !ok:
			return fmt.Errorf("%w: coefficient %d is not reduced", ErrMalformedKey, i)
		}
		c.Value = v
	}
	return nil
}

func readG1(r *binfile.Reader) bn254.G1Affine {
	b := r.Next(binfile.G1Size)
	if b == nil {
		return bn254.G1Affine{}
	}
	p, ok := binfile.G1FromLEM(b)
	if !ok {
		r.Err = errCoordinate
	}
	return p
}

func readG2(r *binfile.Reader) bn254.G2Affine {
	b := r.Next(binfile.G2Size)
	if b == nil {
		return bn254.G2Affine{}
	}
	p, ok := binfile.G2FromLEM(b)
	if !ok {
		r.Err = errCoordinate
	}
	return p
}

func readG1Section(f *binfile.File, id uint32, n int) ([]bn254.G1Affine, error) {
	data, err := f.Section(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedKey, err)
	}
	if len(data) != n*binfile.G1Size {
		return nil, fmt.Errorf("%w: section %d holds %d bytes, expected %d points", ErrMalformedKey, id, len(data), n)
	}
	points := make([]bn254.G1Affine, n)
	for i := range points {
		p, ok := binfile.G1FromLEM(data[i*binfile.G1Size:])
		if !ok {
			return nil, fmt.Errorf("%w: section %d point %d not reduced", ErrMalformedKey, id, i)
		}
		points[i] = p
	}
	return points, nil
}

func readG2Section(f *binfile.File, id uint32, n int) ([]bn254.G2Affine, error) {
	data, err := f.Section(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedKey, err)
	}
	if len(data) != n*binfile.G2Size {
		return nil, fmt.Errorf("%w: section %d holds %d bytes, expected %d points", ErrMalformedKey, id, len(data), n)
	}
	points := make([]bn254.G2Affine, n)
	for i := range points {
		p, ok := binfile.G2FromLEM(data[i*binfile.G2Size:])
		if !ok {
			return nil, fmt.Errorf("%w: section %d point %d not reduced", ErrMalformedKey, id, i)
		}
		points[i] = p
	}
	return points, nil
}

// Encode writes pk in the .zkey layout. Contribution and setup transcript
// sections are not emitted.
func Encode(pk *ProvingKey) []byte {
	header := binary.LittleEndian.AppendUint32(nil, protocolGroth16)

	g := binary.LittleEndian.AppendUint32(nil, binfile.ElementSize)
	g = append(g, binfile.PrimeLE(binfile.BasePrime())...)
	g = binary.LittleEndian.AppendUint32(g, binfile.ElementSize)
	g = append(g, binfile.PrimeLE(binfile.ScalarPrime())...)
	g = binary.LittleEndian.AppendUint32(g, pk.NVars)
	g = binary.LittleEndian.AppendUint32(g, pk.NPublic)
	g = binary.LittleEndian.AppendUint32(g, pk.DomainSize)
	g = binfile.AppendG1LEM(g, &pk.Alpha1)
	g = binfile.AppendG1LEM(g, &pk.Beta1)
	g = binfile.AppendG2LEM(g, &pk.Beta2)
	g = binfile.AppendG2LEM(g, &pk.Gamma2)
	g = binfile.AppendG1LEM(g, &pk.Delta1)
	g = binfile.AppendG2LEM(g, &pk.Delta2)

	coefs := binary.LittleEndian.AppendUint32(nil, uint32(len(pk.Coefficients)))
	for i := range pk.Coefficients {
		c := &pk.Coefficients[i]
		coefs = binary.LittleEndian.AppendUint32(coefs, uint32(c.Matrix))
		coefs = binary.LittleEndian.AppendUint32(coefs, c.Constraint)
		coefs = binary.LittleEndian.AppendUint32(coefs, c.Signal)
		coefs = binfile.AppendFrCoefficient(coefs, &c.Value)
	}

	return binfile.Encode(fileType, fileVersion, []binfile.Section{
		{ID: sectionHeader, Data: header},
		{ID: sectionGroth16Header, Data: g},
		{ID: sectionIC, Data: appendG1s(pk.IC)},
		{ID: sectionCoefficients, Data: coefs},
		{ID: sectionA, Data: appendG1s(pk.A)},
		{ID: sectionB1, Data: appendG1s(pk.B1)},
		{ID: sectionB2, Data: appendG2s(pk.B2)},
		{ID: sectionC, Data: appendG1s(pk.C)},
		{ID: sectionH, Data: appendG1s(pk.H)},
	})
}

func appendG1s(points []bn254.G1Affine) []byte {
	b := make([]byte, 0, len(points)*binfile.G1Size)
	for i := range points {
		b = binfile.AppendG1LEM(b, &points[i])
	}
	return b
}

func appendG2s(points []bn254.G2Affine) []byte {
	b := make([]byte, 0, len(points)*binfile.G2Size)
	for i := range points {
		b = binfile.AppendG2LEM(b, &points[i])
	}
	return b
}
