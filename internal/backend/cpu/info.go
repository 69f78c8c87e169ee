package cpu

import (
	"runtime"

	"github.com/klauspost/cpuid/v2"
)

// Info describes the host processor the backend runs on.
type Info struct {
	Brand         string   `json:"brand"`
	Vendor        string   `json:"vendor"`
	PhysicalCores int      `json:"physical_cores"`
	LogicalCores  int      `json:"logical_cores"`
	Features      []string `json:"features"`
	Arch          string   `json:"arch"`
}

// simdFeatures are the flags worth reporting for dense float32 kernels.
var simdFeatures = []cpuid.FeatureID{
	cpuid.SSE4,
	cpuid.AVX,
	cpuid.AVX2,
	cpuid.FMA3,
	cpuid.AVX512F,
	cpuid.ASIMD,
}

// HostInfo reports the detected CPU.
func HostInfo() Info {
	info := Info{
		Brand:         cpuid.CPU.BrandName,
		Vendor:        cpuid.CPU.VendorString,
		PhysicalCores: cpuid.CPU.PhysicalCores,
		LogicalCores:  cpuid.CPU.LogicalCores,
		Arch:          runtime.GOARCH,
	}
	if info.LogicalCores == 0 {
		info.LogicalCores = runtime.NumCPU()
	}
	for _, f := range simdFeatures {
		if cpuid.CPU.Supports(f) {
			info.Features = append(info.Features, f.String())
		}
	}
	return info
}

// Info reports the CPU this backend runs on.
func (cpu *CPUBackend) Info() Info {
	return HostInfo()
}
