package safetensors

import (
	"bytes"
	"encoding/binary"
	"math"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/seqreg/internal/tensor"
)

func rawFloat32(t *testing.T, shape tensor.Shape, values ...float32) *tensor.RawTensor {
	t.Helper()
	raw, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	copy(raw.AsFloat32(), values)
	return raw
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.safetensors")

	ids, err := tensor.NewRaw(tensor.Shape{3}, tensor.Int64, tensor.CPU)
	require.NoError(t, err)
	copy(ids.AsInt64(), []int64{7, 8, 9})

	tensors := map[string]*tensor.RawTensor{
		"classifier.out_proj.weight": rawFloat32(t, tensor.Shape{1, 2}, 0.5, -0.5),
		"classifier.out_proj.bias":   rawFloat32(t, tensor.Shape{1}, 0.25),
		"scalar":                     rawFloat32(t, tensor.Shape{}, 3),
		"position_ids":               ids,
	}
	require.NoError(t, WriteFile(path, tensors, map[string]string{"format": "pt"}))

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, map[string]string{"format": "pt"}, r.Metadata())
	assert.Equal(t, []string{
		"classifier.out_proj.bias",
		"classifier.out_proj.weight",
		"position_ids",
		"scalar",
	}, r.Names())

	loaded, err := r.LoadAll()
	require.NoError(t, err)
	for name, want := range tensors {
		got := loaded[name]
		require.NotNil(t, got, name)
		assert.Equal(t, want.Shape(), got.Shape(), name)
		assert.Equal(t, want.DType(), got.DType(), name)
		assert.Equal(t, want.Data(), got.Data(), name)
	}
}

func TestHeaderIsAligned(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, map[string]*tensor.RawTensor{
		"a": rawFloat32(t, tensor.Shape{1}, 1),
	}, nil))

	size := binary.LittleEndian.Uint64(buf.Bytes()[:8])
	assert.Zero(t, size%8)
	assert.Equal(t, 8+int(size)+4, buf.Len())
}

func encodeFile(t *testing.T, header map[string]any, data []byte) []byte {
	t.Helper()
	headerJSON, err := json.Marshal(header)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint64(len(headerJSON))))
	buf.Write(headerJSON)
	buf.Write(data)
	return buf.Bytes()
}

func TestLoadHalfPrecision(t *testing.T) {
	// F16: 1.0 = 0x3C00, -2.0 = 0xC000, 2^-24 (smallest subnormal) = 0x0001
	// BF16: 1.0 = 0x3F80, 0.5 = 0x3F00
	data := []byte{
		0x00, 0x3C, 0x00, 0xC0, 0x01, 0x00,
		0x80, 0x3F, 0x00, 0x3F,
	}
	file := encodeFile(t, map[string]any{
		"half": TensorInfo{DType: F16, Shape: []int{3}, DataOffsets: [2]int64{0, 6}},
		"brain": TensorInfo{DType: BF16, Shape: []int{2}, DataOffsets: [2]int64{6, 10}},
	}, data)

	r, err := NewReader(bytes.NewReader(file))
	require.NoError(t, err)

	half, err := r.Load("half")
	require.NoError(t, err)
	assert.Equal(t, tensor.Float32, half.DType())
	assert.Equal(t, []float32{1, -2, 5.9604645e-08}, half.AsFloat32())

	brain, err := r.Load("brain")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0.5}, brain.AsFloat32())
}

func TestReaderErrors(t *testing.T) {
	file := encodeFile(t, map[string]any{
		"short": TensorInfo{DType: F32, Shape: []int{4}, DataOffsets: [2]int64{0, 8}},
		"bool":  map[string]any{"dtype": "BOOL", "shape": []int{1}, "data_offsets": []int{8, 9}},
	}, make([]byte, 9))

	r, err := NewReader(bytes.NewReader(file))
	require.NoError(t, err)

	_, err = r.Load("missing")
	assert.ErrorContains(t, err, "not found")

	_, err = r.Load("short")
	assert.ErrorContains(t, err, "needs 16 bytes")

	_, err = r.Load("bool")
	assert.ErrorContains(t, err, "unsupported dtype")

	var huge bytes.Buffer
	require.NoError(t, binary.Write(&huge, binary.LittleEndian, uint64(maxHeaderSize+1)))
	_, err = NewReader(bytes.NewReader(huge.Bytes()))
	assert.ErrorContains(t, err, "too large")

	_, err = Open(filepath.Join(t.TempDir(), "absent.safetensors"))
	assert.Error(t, err)
}

func TestHalfToFloat32Specials(t *testing.T) {
	assert.Equal(t, float32(65504), halfToFloat32(0x7BFF))
	assert.True(t, halfToFloat32(0x7C00) > 3e38)
	assert.True(t, math.IsNaN(float64(halfToFloat32(0x7E00))))
	assert.True(t, math.Signbit(float64(halfToFloat32(0x8000))))
}
