package cpu

import "github.com/born-ml/seqreg/internal/parallel"

// forRows runs f for every row index, in parallel when the backend allows it.
func forRows(cpu *CPUBackend, rows int, f func(row int)) {
	parallel.For(rows, f, cpu.parallel)
}
