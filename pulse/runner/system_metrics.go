package runner

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/teranos/valstream/errors"
)

// memoryPressureThreshold is the used-memory percentage above which starting
// a runner logs a warning. Queue channels are unbounded and grow with the
// slowest consumer.
const memoryPressureThreshold = 90.0

// MemoryStats reports system memory usage
type MemoryStats struct {
	TotalGB float64 `json:"memory_total_gb"`
	UsedGB  float64 `json:"memory_used_gb"`
	Percent float64 `json:"memory_percent"`
}

// getMemoryStats returns current memory usage in bytes
var getMemoryStats = func() (total uint64, available uint64, err error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to get memory stats")
	}
	return v.Total, v.Available, nil
}

// ReadMemoryStats returns the current system memory usage
func ReadMemoryStats() (MemoryStats, error) {
	total, available, err := getMemoryStats()
	if err != nil || total == 0 {
		return MemoryStats{}, err
	}
	totalGB := float64(total) / 1024 / 1024 / 1024
	usedGB := float64(total-available) / 1024 / 1024 / 1024
	return MemoryStats{
		TotalGB: totalGB,
		UsedGB:  usedGB,
		Percent: usedGB / totalGB * 100,
	}, nil
}

// checkMemoryPressure returns a warning message when memory is nearly
// exhausted, empty string if OK
func checkMemoryPressure() string {
	ms, err := ReadMemoryStats()
	if err != nil || ms.TotalGB == 0 {
		return "" // Can't check, assume OK
	}
	if ms.Percent >= memoryPressureThreshold {
		return fmt.Sprintf(
			"System memory is %.0f%% used (%.1f/%.1fGB). Unbounded queue channels may exhaust it; "+
				"consider the pipe backend.",
			ms.Percent, ms.UsedGB, ms.TotalGB)
	}
	return ""
}
