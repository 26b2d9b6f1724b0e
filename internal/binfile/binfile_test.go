package binfile

import (
	"bytes"
	"encoding/binary"
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/stretchr/testify/require"
)

func TestEncodeParse(t *testing.T) {
	require := require.New(t)

	buf := Encode("test", 2, []Section{
		{ID: 1, Data: []byte{1, 2, 3}},
		{ID: 2, Data: nil},
		{ID: 7, Data: []byte("payload")},
	})
	require.True(HasMagic(buf, "test"))

	f, err := Parse(buf, "test", 2)
	require.NoError(err)
	require.EqualValues(2, f.Version)

	s, err := f.Section(1)
	require.NoError(err)
	require.Equal([]byte{1, 2, 3}, s)

	s, err = f.Section(2)
	require.NoError(err)
	require.Empty(s)

	s, err = f.Section(7)
	require.NoError(err)
	require.Equal("payload", string(s))

	_, err = f.Section(3)
	require.ErrorIs(err, ErrMalformed)
}

func TestParseRejects(t *testing.T) {
	valid := Encode("test", 1, []Section{{ID: 1, Data: []byte{1, 2, 3, 4}}})

	overrun := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint64(overrun[16:], 1000)

	tests := []struct {
		name string
		buf  []byte
	}{
		{"short", valid[:8]},
		{"wrong magic", Encode("nope", 1, nil)},
		{"future version", Encode("test", 3, nil)},
		{"zero version", Encode("test", 0, nil)},
		{"truncated section header", valid[:len(valid)-10]},
		{"section overrun", overrun},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.buf, "test", 2)
			require.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestReadSections(t *testing.T) {
	require := require.New(t)

	buf := Encode("test", 1, []Section{
		{ID: 1, Data: []byte{1}},
		{ID: 5, Data: make([]byte, 100)},
		{ID: 2, Data: []byte{2, 2}},
		{ID: 3, Data: make([]byte, 1000)},
	})
	// the last section is never read
	r := bytes.NewReader(buf)
	f, err := ReadSections(r, "test", 1, 16, 1, 2)
	require.NoError(err)
	require.Equal(1000+12, r.Len())

	s, err := f.Section(2)
	require.NoError(err)
	require.Equal([]byte{2, 2}, s)
	_, err = f.Section(5)
	require.ErrorIs(err, ErrMalformed)

	_, err = ReadSections(bytes.NewReader(buf), "test", 1, 16, 3)
	require.ErrorIs(err, ErrMalformed)
	_, err = ReadSections(bytes.NewReader(buf[:30]), "test", 1, 16, 2)
	require.ErrorIs(err, ErrMalformed)
	_, err = ReadSections(bytes.NewReader(buf), "nope", 1, 16, 1)
	require.ErrorIs(err, ErrMalformed)
}

func TestRepeatedSection(t *testing.T) {
	buf := Encode("test", 1, []Section{{ID: 1}, {ID: 1}})
	f, err := Parse(buf, "test", 1)
	require.NoError(t, err)
	_, err = f.Section(1)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestReaderSticksOnError(t *testing.T) {
	require := require.New(t)

	r := NewReader([]byte{1, 0, 0, 0, 9})
	require.EqualValues(1, r.Uint32())
	require.Equal(1, r.Remaining())
	require.Zero(r.Uint32())
	require.ErrorIs(r.Err, ErrMalformed)
	require.Nil(r.Next(1))
}

func TestFrLittleEndian(t *testing.T) {
	require := require.New(t)

	var e fr.Element
	e.SetUint64(0x0102030405)
	b := AppendFrLE(nil, &e)
	require.Len(b, ElementSize)
	require.Equal([]byte{5, 4, 3, 2, 1, 0}, b[:6])

	got, ok := FrFromLE(b)
	require.True(ok)
	require.True(got.Equal(&e))

	_, ok = FrFromLE(PrimeLE(ScalarPrime()))
	require.False(ok)
}

func TestFrCoefficient(t *testing.T) {
	require := require.New(t)

	var e fr.Element
	e.SetInt64(-7)
	b := AppendFrCoefficient(nil, &e)

	// the stored value is e·R² mod r in plain little endian
	want := new(big.Int).Lsh(big.NewInt(1), 512)
	want.Mul(want, e.BigInt(new(big.Int)))
	want.Mod(want, fr.Modulus())
	require.Equal(PrimeLE(want), b)

	got, ok := FrFromCoefficient(b)
	require.True(ok)
	require.True(got.Equal(&e))
}

func TestPoints(t *testing.T) {
	require := require.New(t)

	_, _, g1, g2 := bn254.Generators()
	var p1 bn254.G1Affine
	p1.ScalarMultiplication(&g1, big.NewInt(12345))
	var p2 bn254.G2Affine
	p2.ScalarMultiplication(&g2, big.NewInt(6789))

	b := AppendG1LEM(nil, &p1)
	require.Len(b, G1Size)
	got1, ok := G1FromLEM(b)
	require.True(ok)
	require.True(got1.Equal(&p1))

	b = AppendG2LEM(nil, &p2)
	require.Len(b, G2Size)
	got2, ok := G2FromLEM(b)
	require.True(ok)
	require.True(got2.Equal(&p2))

	copy(b, PrimeLE(BasePrime()))
	_, ok = G2FromLEM(b)
	require.False(ok)
}

func TestPrime(t *testing.T) {
	require.True(t, IsPrime(PrimeLE(ScalarPrime()), ScalarPrime()))
	require.False(t, IsPrime(PrimeLE(BasePrime()), ScalarPrime()))
	require.False(t, IsPrime([]byte{1}, ScalarPrime()))
}
