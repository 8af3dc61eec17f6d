// Package fingerprint computes content identities for input files. Two inputs
// with identical bytes produce the same fingerprint regardless of name or
// location, which is what the intermediate cache keys on.
package fingerprint

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/blake2b"
)

// BlockSize is the read granularity used while hashing.
const BlockSize = 8 * 1024

// ErrNotRegular reports a path that is not a regular file.
var ErrNotRegular = errors.New("not a regular file")

// File returns the lowercase hex BLAKE2b-512 digest of the file at path.
// The file is streamed in BlockSize reads, so memory use is constant.
func File(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("fingerprint: open: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("fingerprint: stat: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("fingerprint: %s: %w", path, ErrNotRegular)
	}
	return Reader(ctx, f)
}

// Reader hashes r until EOF. ctx is checked between blocks.
func Reader(ctx context.Context, r io.Reader) (string, error) {
	h, err := blake2b.New512(nil)
	if err != nil {
		return "", fmt.Errorf("fingerprint: init hash: %w", err)
	}
	block := make([]byte, BlockSize)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, readErr := r.Read(block)
		if n > 0 {
			h.Write(block[:n])
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return "", fmt.Errorf("fingerprint: read: %w", readErr)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
