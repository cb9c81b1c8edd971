// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipstream

import (
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/flate"
)

// CompressionMethod represents the compression algorithm used for an entry.
type CompressionMethod uint16

// Supported compression methods.
const (
	Store   CompressionMethod = 0 // No compression, data stored as-is
	Deflate CompressionMethod = 8 // Raw DEFLATE without zlib framing
)

func (m CompressionMethod) String() string {
	switch m {
	case Store:
		return "store"
	case Deflate:
		return "deflate"
	}
	return fmt.Sprintf("method(%d)", uint16(m))
}

// Compression levels for the DEFLATE algorithm.
const (
	DeflateNone      = 0 // Deflate framing with stored blocks
	DeflateSuperFast = 1 // Lowest ratio, fastest speed
	DeflateFast      = 3 // Lower ratio, faster speed
	DeflateNormal    = 6 // Default balance between speed and ratio
	DeflateMaximum   = 9 // Best ratio, slowest speed
)

// Compressor transforms raw data into compressed data.
type Compressor interface {
	// Compress reads from src and writes compressed data to dest.
	// Returns the number of uncompressed bytes read.
	Compress(src io.Reader, dest io.Writer) (int64, error)
}

// StoredCompressor implements no compression (STORE method).
type StoredCompressor struct{}

func (sc *StoredCompressor) Compress(src io.Reader, dest io.Writer) (int64, error) {
	return io.Copy(dest, src)
}

// DeflateCompressor implements DEFLATE compression with pooled writers.
type DeflateCompressor struct {
	pool sync.Pool
}

// NewDeflateCompressor creates a reusable compressor for a specific level.
func NewDeflateCompressor(level int) *DeflateCompressor {
	return &DeflateCompressor{
		pool: sync.Pool{
			New: func() any {
				w, _ := flate.NewWriter(io.Discard, level)
				return w
			},
		},
	}
}

func (d *DeflateCompressor) Compress(src io.Reader, dest io.Writer) (int64, error) {
	w := d.pool.Get().(*flate.Writer)
	defer d.pool.Put(w)

	w.Reset(dest)

	n, err := io.Copy(w, src)
	if err != nil {
		return n, err
	}

	if err := w.Close(); err != nil {
		return n, err
	}

	return n, nil
}

type compressorKey struct {
	method CompressionMethod
	level  int
}

// compressorRegistry caches one compressor per method and level so that
// pooled deflate writers are shared across entries.
type compressorRegistry struct {
	mu          sync.RWMutex
	compressors map[compressorKey]Compressor
}

func newCompressorRegistry() *compressorRegistry {
	return &compressorRegistry{compressors: make(map[compressorKey]Compressor)}
}

func (r *compressorRegistry) resolve(method CompressionMethod, level int) (Compressor, error) {
	key := compressorKey{method: method, level: level}

	r.mu.RLock()
	c, ok := r.compressors[key]
	r.mu.RUnlock()
	if ok {
		return c, nil
	}

	switch method {
	case Store:
		return new(StoredCompressor), nil
	case Deflate:
		r.mu.Lock()
		defer r.mu.Unlock()

		// Double check if the key was just inserted
		if c, ok := r.compressors[key]; ok {
			return c, nil
		}

		r.compressors[key] = NewDeflateCompressor(level)
		return r.compressors[key], nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrAlgorithm, method)
	}
}
