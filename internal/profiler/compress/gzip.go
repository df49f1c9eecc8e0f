// Package compress wraps serialized profiles in a gzip stream.
package compress

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// DefaultLevel balances speed and ratio.
const DefaultLevel = gzip.DefaultCompression

// ErrCompression is returned when the compressed stream cannot be produced.
var ErrCompression = errors.New("compression failed")

// Compressor turns serialized bytes into the final artifact.
type Compressor interface {
	Compress(src []byte) ([]byte, error)
}

// Gzip compresses with pooled gzip writers.
type Gzip struct {
	pool sync.Pool
}

// NewGzip returns a gzip compressor for the given level.
func NewGzip(level int) (*Gzip, error) {
	// Probe the level once so Compress never sees an invalid one.
	if _, err := gzip.NewWriterLevel(io.Discard, level); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompression, err)
	}
	g := &Gzip{}
	g.pool.New = func() any {
		w, _ := gzip.NewWriterLevel(io.Discard, level)
		return w
	}
	return g, nil
}

// Compress returns src as a complete gzip stream.
func (g *Gzip) Compress(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(src)/2 + 64)
	if err := g.CompressTo(&buf, src); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CompressTo streams src to dst as a complete gzip stream. The stream is
// finalized before CompressTo returns successfully.
func (g *Gzip) CompressTo(dst io.Writer, src []byte) error {
	zw := g.pool.Get().(*gzip.Writer)
	defer g.pool.Put(zw)
	zw.Reset(dst)

	if _, err := zw.Write(src); err != nil {
		_ = zw.Close()
		return fmt.Errorf("%w: write: %v", ErrCompression, err)
	}
	// Close flushes the final block and writes the trailer.
	if err := zw.Close(); err != nil {
		return fmt.Errorf("%w: finalize: %v", ErrCompression, err)
	}
	return nil
}

// Decompress inflates a complete gzip stream.
func Decompress(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer func() { _ = zr.Close() }()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("failed to read gzip stream: %w", err)
	}
	return out, nil
}
