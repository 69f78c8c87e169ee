package cpu

import (
	"fmt"

	"github.com/born-ml/seqreg/internal/tensor"
)

// MatMul performs 2D matrix multiplication: (M, K) @ (K, N) → (M, N).
// Output rows are computed in parallel.
func (cpu *CPUBackend) MatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	requireFloat32("matmul", a)
	requireFloat32("matmul", b)

	aShape, bShape := a.Shape(), b.Shape()
	if len(aShape) != 2 || len(bShape) != 2 {
		panic(fmt.Sprintf("matmul: expected 2D tensors, got %v and %v", aShape, bShape))
	}
	if aShape[1] != bShape[0] {
		panic(fmt.Sprintf("matmul: incompatible shapes %v and %v", aShape, bShape))
	}

	m, k, n := aShape[0], aShape[1], bShape[1]
	result := tensor.MustNewRaw(tensor.Shape{m, n}, tensor.Float32, cpu.device)
	matmulFloat32(result.AsFloat32(), a.AsFloat32(), b.AsFloat32(), 1, m, k, n, cpu)
	return result
}

// BatchMatMul performs batched matrix multiplication.
//
//	[B, M, K] @ [B, K, N] -> [B, M, N]
//	[B, H, M, K] @ [B, H, K, N] -> [B, H, M, N]
func (cpu *CPUBackend) BatchMatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	requireFloat32("batchmatmul", a)
	requireFloat32("batchmatmul", b)

	aShape, bShape := a.Shape(), b.Shape()
	ndim := len(aShape)
	if (ndim != 3 && ndim != 4) || len(bShape) != ndim {
		panic(fmt.Sprintf("batchmatmul: expected matching 3D or 4D tensors, got %v and %v", aShape, bShape))
	}
	if !aShape[:ndim-2].Equal(bShape[:ndim-2]) {
		panic(fmt.Sprintf("batchmatmul: batch dimensions differ: %v vs %v", aShape, bShape))
	}
	if aShape[ndim-1] != bShape[ndim-2] {
		panic(fmt.Sprintf("batchmatmul: incompatible inner dimensions %v and %v", aShape, bShape))
	}

	batch := aShape[:ndim-2].NumElements()
	m, k, n := aShape[ndim-2], aShape[ndim-1], bShape[ndim-1]

	outShape := aShape.Clone()
	outShape[ndim-1] = n
	result := tensor.MustNewRaw(outShape, tensor.Float32, cpu.device)
	matmulFloat32(result.AsFloat32(), a.AsFloat32(), b.AsFloat32(), batch, m, k, n, cpu)
	return result
}

// matmulFloat32 multiplies batch independent (m, k) @ (k, n) blocks.
// The i-k-j loop order keeps the inner loop sequential over b and dst.
func matmulFloat32(dst, a, b []float32, batch, m, k, n int, cpu *CPUBackend) {
	forRows(cpu, batch*m, func(row int) {
		bi := row / m
		aRow := a[row*k : row*k+k]
		out := dst[row*n : row*n+n]
		bBlock := b[bi*k*n : (bi+1)*k*n]
		for p, av := range aRow {
			if av == 0 {
				continue
			}
			bRow := bBlock[p*n : p*n+n]
			for j, bv := range bRow {
				out[j] += av * bv
			}
		}
	})
}
