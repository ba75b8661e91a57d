package vector

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/sbinet/npyio"

	"github.com/timmy/stitchrag/internal/domain"
)

// MaxNPYLen bounds the element count accepted from a .npy header so a
// corrupt shape cannot force a large allocation.
const MaxNPYLen = 1 << 20

// ReadNPYFile reads a single vector from a .npy file.
func ReadNPYFile(path string) (domain.Vector, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	v, err := ReadNPY(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

// ReadNPY decodes a little-endian float32 or float64 array holding exactly
// one vector: shape (N,) or (1, N).
func ReadNPY(r io.Reader) (domain.Vector, error) {
	rr, err := npyio.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("npy: read header: %w", err)
	}

	shape := rr.Header.Descr.Shape
	if _, err := vectorLen(shape); err != nil {
		return nil, err
	}

	switch dtype := rr.Header.Descr.Type; dtype {
	case "<f4":
		var out []float32
		if err := rr.Read(&out); err != nil {
			return nil, fmt.Errorf("npy: read data: %w", err)
		}
		return domain.Vector(out), nil
	case "<f8":
		var raw []float64
		if err := rr.Read(&raw); err != nil {
			return nil, fmt.Errorf("npy: read data: %w", err)
		}
		out := make(domain.Vector, len(raw))
		for i, x := range raw {
			out[i] = float32(x)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("npy: unsupported dtype %q", dtype)
	}
}

// vectorLen checks that shape describes one vector of a sane length.
func vectorLen(shape []int) (int, error) {
	var n int
	switch {
	case len(shape) == 1:
		n = shape[0]
	case len(shape) == 2 && shape[0] == 1:
		n = shape[1]
	default:
		return 0, fmt.Errorf("npy: expected one vector, got shape %v", shape)
	}
	if n <= 0 || n > MaxNPYLen {
		return 0, fmt.Errorf("npy: vector length %d outside [1, %d] in shape %v", n, MaxNPYLen, shape)
	}
	return n, nil
}

// WriteNPY encodes v as a little-endian float32 array of shape (N,).
func WriteNPY(w io.Writer, v domain.Vector) error {
	return npyio.Write(w, []float32(v))
}

// WriteNPYFile writes v to path.
func WriteNPYFile(path string, v domain.Vector) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteNPY(f, v); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
