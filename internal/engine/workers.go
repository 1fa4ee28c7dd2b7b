package engine

import (
	"context"
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
)

const maxDefaultWorkers = 8

// defaultWorkers sizes the pool from the logical CPU count, at most
// maxDefaultWorkers.
func defaultWorkers(ctx context.Context) int {
	n, err := cpu.CountsWithContext(ctx, true)
	if err != nil || n <= 0 {
		n = runtime.NumCPU()
	}
	return min(max(n, 1), maxDefaultWorkers)
}
