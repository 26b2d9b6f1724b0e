package witness

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/base-org/groth16-proof-service/internal/binfile"
)

// ErrMalformedWitness is returned when a witness buffer cannot be decoded.
var ErrMalformedWitness = errors.New("malformed witness")

const (
	fileType      = "wtns"
	fileVersion   = 2
	headerSection = 1
	dataSection   = 2
)

// Witness holds one scalar field element per circuit wire. Wire 0 is the
// constant 1, followed by the public signals and the private wires.
type Witness []fr.Element

// Decode reads a witness from either a .wtns container or a headerless run of
// 32 byte little endian field elements.
func Decode(buf []byte) (Witness, error) {
	if len(buf) == 0 {
		return nil, fmt.Errorf("%w: empty buffer", ErrMalformedWitness)
	}
	if binfile.HasMagic(buf, fileType) {
		return decodeWtns(buf)
	}
	return decodeElements(buf, -1)
}

func decodeWtns(buf []byte) (Witness, error) {
	f, err := binfile.Parse(buf, fileType, fileVersion)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedWitness, err)
	}
	header, err := f.Section(headerSection)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedWitness, err)
	}
	r := binfile.NewReader(header)
	n8 := r.Uint32()
	if r.Err == nil && n8 != binfile.ElementSize {
		return nil, fmt.Errorf("%w: field element size %d, expected %d", ErrMalformedWitness, n8, binfile.ElementSize)
	}
	prime := r.Next(binfile.ElementSize)
	count := r.Uint32()
	if r.Err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedWitness, r.Err)
	}
	if !binfile.IsPrime(prime, binfile.ScalarPrime()) {
		return nil, fmt.Errorf("%w: witness is not over the BN254 scalar field", ErrMalformedWitness)
	}
	data, err := f.Section(dataSection)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedWitness, err)
	}
	return decodeElements(data, int(count))
}

func decodeElements(data []byte, count int) (Witness, error) {
	if len(data) == 0 || len(data)%binfile.ElementSize != 0 {
		return nil, fmt.Errorf("%w: length %d is not a positive multiple of %d", ErrMalformedWitness, len(data), binfile.ElementSize)
	}
	n := len(data) / binfile.ElementSize
	if count >= 0 && count != n {
		return nil, fmt.Errorf("%w: header declares %d elements, buffer holds %d", ErrMalformedWitness, count, n)
	}
	w := make(Witness, n)
	for i := range w {
		e, ok := binfile.FrFromLE(data[i*binfile.ElementSize:])
		if !ok {
			return nil, fmt.Errorf("%w: element %d is not reduced modulo r", ErrMalformedWitness, i)
		}
		w[i] = e
	}
	return w, nil
}

// Encode writes w as a version 2 .wtns container.
func Encode(w Witness) []byte {
	header := binary.LittleEndian.AppendUint32(nil, binfile.ElementSize)
	header = append(header, binfile.PrimeLE(binfile.ScalarPrime())...)
	header = binary.LittleEndian.AppendUint32(header, uint32(len(w)))

	data := make([]byte, 0, len(w)*binfile.ElementSize)
	for i := range w {
		data = binfile.AppendFrLE(data, &w[i])
	}
	return binfile.Encode(fileType, fileVersion, []binfile.Section{
		{ID: headerSection, Data: header},
		{ID: dataSection, Data: data},
	})
}

// FromUint64 builds a witness from small wire values.
func FromUint64(values ...uint64) Witness {
	w := make(Witness, len(values))
	for i, v := range values {
		w[i].SetUint64(v)
	}
	return w
}
