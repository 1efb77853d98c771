// Package iq reads and writes baseband captures as interleaved little-endian
// float32 I/Q pairs, the layout GNU Radio and most SDR tools use for complex64
// files. Files may be zstd compressed; readers detect compression from the
// frame magic.
package iq

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// Extensions used by WriteDir.
const (
	Ext     = ".cf32"
	ZstdExt = ".cf32.zst"
)

const sampleBytes = 8

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// ErrTruncated is returned when a capture ends inside a sample.
var ErrTruncated = errors.New("capture ends inside a sample")

// Write encodes sig to w. Values are narrowed to float32.
func Write(w io.Writer, sig []complex128) error {
	bw := bufio.NewWriter(w)
	var buf [sampleBytes]byte
	for _, v := range sig {
		binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(float32(real(v))))
		binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(float32(imag(v))))
		if _, err := bw.Write(buf[:]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteCompressed encodes sig to w as a single zstd stream.
func WriteCompressed(w io.Writer, sig []complex128) error {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	if err := Write(zw, sig); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

// Read decodes a capture from r, decompressing when r starts with a zstd
// frame.
func Read(r io.Reader) ([]complex128, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(zstdMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	var src io.Reader = br
	if bytes.Equal(head, zstdMagic) {
		zr, err := zstd.NewReader(br, zstd.WithDecoderConcurrency(0))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		src = bufio.NewReader(zr)
	}
	return decode(src)
}

func decode(r io.Reader) ([]complex128, error) {
	var (
		out []complex128
		buf [sampleBytes]byte
	)
	for {
		n, err := io.ReadFull(r, buf[:])
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			return out, nil
		case errors.Is(err, io.ErrUnexpectedEOF):
			return out, fmt.Errorf("%w: %d trailing bytes after %d samples", ErrTruncated, n, len(out))
		default:
			return out, err
		}
		re := math.Float32frombits(binary.LittleEndian.Uint32(buf[0:4]))
		im := math.Float32frombits(binary.LittleEndian.Uint32(buf[4:8]))
		out = append(out, complex(float64(re), float64(im)))
	}
}

// ReadFile reads a capture from path.
func ReadFile(path string) ([]complex128, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sig, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return sig, nil
}

// WriteFile writes sig to path, compressed when compress is set.
func WriteFile(path string, sig []complex128, compress bool) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if compress {
		err = WriteCompressed(f, sig)
	} else {
		err = Write(f, sig)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// WriteDir writes one file per signal into dir, named rx<i> plus the
// extension, and returns the paths in order.
func WriteDir(dir string, sigs [][]complex128, compress bool) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	ext := Ext
	if compress {
		ext = ZstdExt
	}

	paths := make([]string, len(sigs))
	for i, sig := range sigs {
		paths[i] = filepath.Join(dir, fmt.Sprintf("rx%d%s", i, ext))
		if err := WriteFile(paths[i], sig, compress); err != nil {
			return nil, err
		}
	}
	return paths, nil
}
