package proving

import (
	"context"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/log"

	"github.com/base-org/groth16-proof-service/proving/storage"
	"github.com/base-org/groth16-proof-service/zkey"
)

func readAll(ctx context.Context, store storage.Storage, path string) ([]byte, error) {
	reader, err := store.Reader(ctx, path)
	if err != nil {
		return nil, err
	}
	contents, err := io.ReadAll(reader)
	if err != nil {
		_ = reader.Close()
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if err = reader.Close(); err != nil {
		return nil, err
	}
	return contents, nil
}

// Load reads and decodes the .zkey at path. The raw file is returned as well
// for engines that parse keys themselves.
func Load(ctx context.Context, store storage.Storage, path string) (*zkey.ProvingKey, []byte, error) {
	log.Info("Retrieving proving key", "path", path)
	contents, err := readAll(ctx, store, path)
	if err != nil {
		return nil, nil, err
	}
	log.Info("Decoding proving key", "path", path, "bytes", len(contents))
	pk, err := zkey.Parse(contents)
	if err != nil {
		return nil, nil, err
	}
	return pk, contents, nil
}

// LoadHeader decodes the header of the .zkey at path and stops reading once it
// has been consumed.
func LoadHeader(ctx context.Context, store storage.Storage, path string) (*zkey.Header, error) {
	reader, err := store.Reader(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = reader.Close()
	}()
	header, err := zkey.ReadHeaderFrom(reader)
	if err != nil {
		return nil, fmt.Errorf("reading header of %s: %w", path, err)
	}
	return header, nil
}
