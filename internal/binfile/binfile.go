// Package binfile reads and writes the sectioned binary container shared by the
// circom tool chain (.zkey, .wtns): a 4 byte magic, a version, a section count
// and a list of (id uint32, size uint64, data) sections, all little endian.
package binfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

var ErrMalformed = errors.New("malformed binary container")

type File struct {
	Type     string
	Version  uint32
	sections map[uint32][][]byte
}

// HasMagic reports whether buf starts with the given 4 byte file type.
func HasMagic(buf []byte, fileType string) bool {
	return len(buf) >= 4 && string(buf[:4]) == fileType
}

func Parse(buf []byte, fileType string, maxVersion uint32) (*File, error) {
	if len(buf) < 12 {
		return nil, fmt.Errorf("%w: %d byte buffer", ErrMalformed, len(buf))
	}
	f, nSections, err := readPreamble(buf[:12], fileType, maxVersion)
	if err != nil {
		return nil, err
	}
	pos := uint64(12)
	total := uint64(len(buf))
	for i := uint32(0); i < nSections; i++ {
		if total-pos < 12 {
			return nil, fmt.Errorf("%w: truncated header of section %d", ErrMalformed, i)
		}
		id := binary.LittleEndian.Uint32(buf[pos:])
		size := binary.LittleEndian.Uint64(buf[pos+4:])
		pos += 12
		if size > total-pos {
			return nil, fmt.Errorf("%w: section %d overruns buffer", ErrMalformed, id)
		}
		f.sections[id] = append(f.sections[id], buf[pos:pos+size])
		pos += size
	}
	return f, nil
}

// ReadSections reads a container from r until each of ids has been seen once,
// skipping other sections, and returns a File holding only those sections.
// Nothing after the last wanted section is read. Sections larger than maxSize
// are rejected.
func ReadSections(r io.Reader, fileType string, maxVersion uint32, maxSize uint64, ids ...uint32) (*File, error) {
	var head [12]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, truncated(err)
	}
	f, nSections, err := readPreamble(head[:], fileType, maxVersion)
	if err != nil {
		return nil, err
	}
	want := make(map[uint32]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for i := uint32(0); i < nSections && len(want) > 0; i++ {
		if _, err := io.ReadFull(r, head[:]); err != nil {
			return nil, truncated(err)
		}
		id := binary.LittleEndian.Uint32(head[:])
		size := binary.LittleEndian.Uint64(head[4:])
		if !want[id] {
			if size > math.MaxInt64 {
				return nil, fmt.Errorf("%w: section %d size %d", ErrMalformed, id, size)
			}
			if _, err := io.CopyN(io.Discard, r, int64(size)); err != nil {
				return nil, truncated(err)
			}
			continue
		}
		if size > maxSize {
			return nil, fmt.Errorf("%w: section %d holds %d bytes, at most %d expected", ErrMalformed, id, size, maxSize)
		}
		data := make([]byte, size)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, truncated(err)
		}
		f.sections[id] = [][]byte{data}
		delete(want, id)
	}
	return f, nil
}

func readPreamble(head []byte, fileType string, maxVersion uint32) (*File, uint32, error) {
	if !HasMagic(head, fileType) {
		return nil, 0, fmt.Errorf("%w: expected %q file", ErrMalformed, fileType)
	}
	f := &File{
		Type:     fileType,
		Version:  binary.LittleEndian.Uint32(head[4:8]),
		sections: make(map[uint32][][]byte),
	}
	if f.Version == 0 || f.Version > maxVersion {
		return nil, 0, fmt.Errorf("%w: unsupported %s version %d", ErrMalformed, fileType, f.Version)
	}
	return f, binary.LittleEndian.Uint32(head[8:12]), nil
}

// truncated reports an early end of input as ErrMalformed and passes other
// read errors through.
func truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: unexpected end of input", ErrMalformed)
	}
	return err
}

// Section returns the data of a section that must appear exactly once.
func (f *File) Section(id uint32) ([]byte, error) {
	s := f.sections[id]
	switch len(s) {
	case 0:
		return nil, fmt.Errorf("%w: %s section %d missing", ErrMalformed, f.Type, id)
	case 1:
		return s[0], nil
	default:
		return nil, fmt.Errorf("%w: %s section %d repeated", ErrMalformed, f.Type, id)
	}
}

type Section struct {
	ID   uint32
	Data []byte
}

func Encode(fileType string, version uint32, sections []Section) []byte {
	size := 12
	for _, s := range sections {
		size += 12 + len(s.Data)
	}
	b := make([]byte, 0, size)
	b = append(b, fileType[:4]...)
	b = binary.LittleEndian.AppendUint32(b, version)
	b = binary.LittleEndian.AppendUint32(b, uint32(len(sections)))
	for _, s := range sections {
		b = binary.LittleEndian.AppendUint32(b, s.ID)
		b = binary.LittleEndian.AppendUint64(b, uint64(len(s.Data)))
		b = append(b, s.Data...)
	}
	return b
}

// Reader walks a section payload. The first failed read sticks in Err and all
// later reads return zero values.
type Reader struct {
	buf []byte
	pos int
	Err error
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

func (r *Reader) Next(n int) []byte {
	if r.Err != nil {
		return nil
	}
	if n < 0 || len(r.buf)-r.pos < n {
		r.Err = fmt.Errorf("%w: read of %d bytes at offset %d past end of section", ErrMalformed, n, r.pos)
		return nil
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *Reader) Uint32() uint32 {
	b := r.Next(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}
