// Package safetensors reads and writes the SafeTensors checkpoint format
// used by Hugging Face.
//
// Layout:
//
//	[8 bytes: header_size (uint64 LE)]
//	[header_size bytes: JSON header, space padded to 8-byte alignment]
//	[tensor data: raw little-endian bytes]
//
// The header maps tensor names to {dtype, shape, data_offsets} and may
// carry a "__metadata__" map of strings. F16 and BF16 tensors are widened
// to float32 on load.
package safetensors
