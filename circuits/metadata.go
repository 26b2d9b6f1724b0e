package circuits

import (
	"fmt"
	"strings"
)

// ID names a circuit and keys its cached proving key.
type ID string

type Metadata struct {
	Id   ID
	Path string
}

// ParseMetadata reads an "id=path" circuit declaration. Without an "=" the
// path doubles as the id.
func ParseMetadata(s string) (Metadata, error) {
	s = strings.TrimSpace(s)
	id, path, found := strings.Cut(s, "=")
	if !found {
		id, path = s, s
	}
	id, path = strings.TrimSpace(id), strings.TrimSpace(path)
	if id == "" || path == "" {
		return Metadata{}, fmt.Errorf("invalid circuit declaration %q, expected id=path", s)
	}
	return Metadata{Id: ID(id), Path: path}, nil
}

// ParseAll parses a list of declarations, rejecting duplicate ids.
func ParseAll(decls []string) ([]Metadata, error) {
	seen := make(map[ID]bool, len(decls))
	out := make([]Metadata, 0, len(decls))
	for _, d := range decls {
		m, err := ParseMetadata(d)
		if err != nil {
			return nil, err
		}
		if seen[m.Id] {
			return nil, fmt.Errorf("circuit %q declared twice", m.Id)
		}
		seen[m.Id] = true
		out = append(out, m)
	}
	return out, nil
}
