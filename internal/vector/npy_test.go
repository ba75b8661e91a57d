package vector

import (
	"bytes"
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/stitchrag/internal/domain"
)

// npyBytes builds a version 1.0 file with an arbitrary header dict, the way
// numpy.save lays it out.
func npyBytes(t *testing.T, dict string, data interface{}) []byte {
	t.Helper()
	header := dict
	if pad := (10 + len(header) + 1) % 64; pad != 0 {
		header += string(bytes.Repeat([]byte(" "), 64-pad))
	}
	header += "\n"

	var buf bytes.Buffer
	buf.WriteString("\x93NUMPY")
	buf.Write([]byte{1, 0})
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint16(len(header))))
	buf.WriteString(header)
	if data != nil {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, data))
	}
	return buf.Bytes()
}

func TestWriteReadNPY(t *testing.T) {
	v := domain.Vector{0.5, -1.25, 3}
	var buf bytes.Buffer
	require.NoError(t, WriteNPY(&buf, v))

	got, err := ReadNPY(&buf)
	require.NoError(t, err)
	assert.Equal(t, v, got)
}

func TestReadNPY_Float32(t *testing.T) {
	raw := npyBytes(t, "{'descr': '<f4', 'fortran_order': False, 'shape': (3,), }",
		[]float32{1, 0, -2})

	got, err := ReadNPY(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, domain.Vector{1, 0, -2}, got)
}

func TestReadNPY_Float64RowVector(t *testing.T) {
	raw := npyBytes(t, "{'descr': '<f8', 'fortran_order': False, 'shape': (1, 3), }",
		[]float64{1, 2.5, -4})

	got, err := ReadNPY(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, domain.Vector{1, 2.5, -4}, got)
}

func TestReadNPY_Rejects(t *testing.T) {
	// Shape errors may be caught while parsing the header or afterwards,
	// so those cases only pin the package prefix.
	tests := []struct {
		name string
		raw  []byte
		msg  string
	}{
		{"bad magic", []byte("NOTNUMPYxxxxxxxx"), "npy: read header"},
		{"matrix", npyBytes(t, "{'descr': '<f4', 'fortran_order': False, 'shape': (2, 2), }",
			[]float32{1, 2, 3, 4}), "expected one vector"},
		{"negative length", npyBytes(t, "{'descr': '<f4', 'fortran_order': False, 'shape': (-1,), }",
			nil), "npy:"},
		{"negative row length", npyBytes(t, "{'descr': '<f4', 'fortran_order': False, 'shape': (1, -5), }",
			nil), "npy:"},
		{"empty", npyBytes(t, "{'descr': '<f4', 'fortran_order': False, 'shape': (0,), }",
			nil), "npy:"},
		{"huge", npyBytes(t, "{'descr': '<f4', 'fortran_order': False, 'shape': (4000000000,), }",
			nil), "npy:"},
		{"dtype", npyBytes(t, "{'descr': '<i4', 'fortran_order': False, 'shape': (2,), }",
			[]int32{1, 2}), "unsupported dtype"},
		{"truncated", npyBytes(t, "{'descr': '<f4', 'fortran_order': False, 'shape': (4,), }",
			[]float32{1}), "read data"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got domain.Vector
			var err error
			require.NotPanics(t, func() {
				got, err = ReadNPY(bytes.NewReader(tt.raw))
			})
			require.Error(t, err)
			assert.Nil(t, got)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestNPYFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.npy")
	require.NoError(t, WriteNPYFile(path, domain.Vector{7, 8}))

	got, err := ReadNPYFile(path)
	require.NoError(t, err)
	assert.Equal(t, domain.Vector{7, 8}, got)

	_, err = ReadNPYFile(filepath.Join(t.TempDir(), "missing.npy"))
	assert.Error(t, err)
}
