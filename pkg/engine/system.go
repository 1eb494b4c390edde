package engine

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/taleweave/fable/pkg/types"
)

// SystemMetrics samples host resources. CPU usage is measured since
// the previous sample, so the worker's steady cadence gives it a
// meaningful window without blocking.
type SystemMetrics struct{}

// Sample reads current memory and CPU usage.
func (SystemMetrics) Sample() (*types.SystemSample, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return nil, fmt.Errorf("failed to read memory stats: %w", err)
	}
	percents, err := cpu.Percent(0, false)
	if err != nil {
		return nil, fmt.Errorf("failed to read cpu stats: %w", err)
	}

	sample := &types.SystemSample{
		MemoryPercent:     vm.UsedPercent,
		MemoryAvailableGB: float64(vm.Available) / (1 << 30),
	}
	if len(percents) > 0 {
		sample.CPUPercent = percents[0]
	}
	return sample, nil
}
