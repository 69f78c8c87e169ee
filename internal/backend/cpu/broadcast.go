package cpu

import "github.com/born-ml/seqreg/internal/tensor"

// broadcastStrides returns strides that map an index in outShape back to
// a flat offset in a tensor of shape src. Broadcast dimensions get stride 0.
func broadcastStrides(src, outShape tensor.Shape) []int {
	strides := make([]int, len(outShape))
	srcStrides := src.ComputeStrides()
	shift := len(outShape) - len(src)
	for i := range outShape {
		j := i - shift
		if j < 0 || src[j] == 1 {
			continue
		}
		strides[i] = srcStrides[j]
	}
	return strides
}

// forEachIndex visits every index of shape in row-major order.
// The coords slice is reused between calls.
func forEachIndex(shape tensor.Shape, f func(flat int, coords []int)) {
	coords := make([]int, len(shape))
	n := shape.NumElements()
	for flat := 0; flat < n; flat++ {
		f(flat, coords)
		for d := len(shape) - 1; d >= 0; d-- {
			coords[d]++
			if coords[d] < shape[d] {
				break
			}
			coords[d] = 0
		}
	}
}

func offsetOf(coords, strides []int) int {
	off := 0
	for i, c := range coords {
		off += c * strides[i]
	}
	return off
}
