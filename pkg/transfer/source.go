package transfer

import (
	"bytes"
	"fmt"
	"os"
)

// Source produces synthetic payload bytes for substitution.
type Source interface {
	// Bytes returns exactly n bytes. Implementations may repeat or truncate
	// their backing content to reach the requested length.
	Bytes(n int64) ([]byte, error)
}

// DashSource fills the payload with '-' characters. This is the filler the
// original helper fell back to implicitly; here it must be chosen on
// purpose.
type DashSource struct{}

func (DashSource) Bytes(n int64) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("transfer: negative payload length %d", n)
	}
	return bytes.Repeat([]byte{'-'}, int(n)), nil
}

// BytesSource repeats a fixed byte pattern to the requested length.
type BytesSource []byte

func (s BytesSource) Bytes(n int64) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("transfer: negative payload length %d", n)
	}
	if len(s) == 0 {
		return nil, fmt.Errorf("transfer: empty byte source")
	}
	out := make([]byte, n)
	for i := range out {
		out[i] = s[i%len(s)]
	}
	return out, nil
}

// FileSource reads payload content from a real file, repeating it if the
// requested length exceeds the file size.
type FileSource struct {
	Path string
}

func (s FileSource) Bytes(n int64) ([]byte, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("transfer: reading source file: %w", err)
	}
	return BytesSource(data).Bytes(n)
}
