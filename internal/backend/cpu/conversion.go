package cpu

import (
	"fmt"

	"github.com/born-ml/seqreg/internal/tensor"
)

// Cast converts x to dtype. Float to int conversion truncates toward zero.
func (cpu *CPUBackend) Cast(x *tensor.RawTensor, dtype tensor.DataType) *tensor.RawTensor {
	if x.DType() == dtype {
		return x.Clone()
	}

	result := tensor.MustNewRaw(x.Shape(), dtype, cpu.device)
	values := toFloat64(x)
	switch dtype {
	case tensor.Float32:
		convert(result.AsFloat32(), values)
	case tensor.Float64:
		copy(result.AsFloat64(), values)
	case tensor.Int32:
		convert(result.AsInt32(), values)
	case tensor.Int64:
		convert(result.AsInt64(), values)
	default:
		panic(fmt.Sprintf("cast: unsupported target dtype %s", dtype))
	}
	return result
}

func toFloat64(x *tensor.RawTensor) []float64 {
	out := make([]float64, x.NumElements())
	switch x.DType() {
	case tensor.Float32:
		convert(out, x.AsFloat32())
	case tensor.Float64:
		copy(out, x.AsFloat64())
	case tensor.Int32:
		convert(out, x.AsInt32())
	case tensor.Int64:
		convert(out, x.AsInt64())
	default:
		panic(fmt.Sprintf("cast: unsupported source dtype %s", x.DType()))
	}
	return out
}

func convert[D, S float32 | float64 | int32 | int64](dst []D, src []S) {
	for i, v := range src {
		dst[i] = D(v)
	}
}
