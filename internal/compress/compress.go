// Package compress implements a pluggable compressor capability:
// {Compress(bytes) -> bytes}, with a NoOp variant so every algorithm id,
// OFF included, yields a Compressor.
package compress

import (
	"bytes"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"

	"github.com/hiviewdfx/hilogd/internal/herrors"
)

// Algorithm identifies which compressor variant a persister job uses,
// matching the compressAlg values the control surface accepts.
type Algorithm uint16

const (
	Off Algorithm = iota
	Zlib
	Zstd
)

// Compressor compresses a staged byte run before it reaches the rotator.
type Compressor interface {
	Compress(input []byte) ([]byte, error)
}

// New returns the Compressor for alg, or a PersisterCollisionError-free
// herrors.CompressorInitError for an unrecognized algorithm id.
func New(alg Algorithm) (Compressor, error) {
	switch alg {
	case Off:
		return noop{}, nil
	case Zlib:
		return &zlibCompressor{}, nil
	case Zstd:
		return newZstdCompressor()
	default:
		return nil, herrors.CompressorInitError("unknown compression algorithm")
	}
}

// noop is the OFF compressor: it returns its input unchanged so callers can
// always go through the Compressor interface uniformly.
type noop struct{}

func (noop) Compress(input []byte) ([]byte, error) {
	return input, nil
}

// zlibCompressor wraps klauspost/compress/zlib, a faster drop-in
// replacement for the standard library's compress/zlib; marketstore
// already depends on the klauspost/compress module (for snappy), so this
// repo exercises two more of its subpackages instead of reaching for a
// second compression library.
type zlibCompressor struct{}

func (z *zlibCompressor) Compress(input []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(input); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// zstdCompressor wraps klauspost/compress/zstd, the only actively
// maintained pure-Go zstd implementation in the retrieved pack.
type zstdCompressor struct {
	enc *zstd.Encoder
}

func newZstdCompressor() (*zstdCompressor, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, herrors.CompressorInitError(err.Error())
	}
	return &zstdCompressor{enc: enc}, nil
}

func (z *zstdCompressor) Compress(input []byte) ([]byte, error) {
	return z.enc.EncodeAll(input, nil), nil
}
