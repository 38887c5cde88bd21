package validator

import (
	"sync"
	"time"

	"github.com/dkarlsen/medialib/internal/logger"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// SystemLoad is a point-in-time snapshot of host pressure
type SystemLoad struct {
	CPUPercent    float64
	MemoryPercent float64
}

// LoadMonitor samples host CPU and memory pressure so the manager can
// scale the refresh worker pool down when the system is busy. Samples are
// cached briefly because gopsutil reads are not free.
type LoadMonitor struct {
	cpuThreshold    float64
	memoryThreshold float64

	mu         sync.Mutex
	lastSample SystemLoad
	lastTime   time.Time
	cacheFor   time.Duration
}

// NewLoadMonitor creates a monitor with the given pressure thresholds in
// percent. Non-positive thresholds disable that check.
func NewLoadMonitor(cpuThreshold, memoryThreshold float64) *LoadMonitor {
	return &LoadMonitor{
		cpuThreshold:    cpuThreshold,
		memoryThreshold: memoryThreshold,
		cacheFor:        5 * time.Second,
	}
}

// Current returns the most recent load sample, refreshing it when stale
func (lm *LoadMonitor) Current() SystemLoad {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if time.Since(lm.lastTime) < lm.cacheFor {
		return lm.lastSample
	}

	sample := SystemLoad{}

	if percentages, err := cpu.Percent(0, false); err == nil && len(percentages) > 0 {
		sample.CPUPercent = percentages[0]
	} else if err != nil {
		logger.Debug("CPU sample failed: %v", err)
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		sample.MemoryPercent = vm.UsedPercent
	} else {
		logger.Debug("Memory sample failed: %v", err)
	}

	lm.lastSample = sample
	lm.lastTime = time.Now()
	return sample
}

// Overloaded reports whether either pressure threshold is exceeded
func (lm *LoadMonitor) Overloaded() bool {
	load := lm.Current()
	if lm.cpuThreshold > 0 && load.CPUPercent >= lm.cpuThreshold {
		return true
	}
	if lm.memoryThreshold > 0 && load.MemoryPercent >= lm.memoryThreshold {
		return true
	}
	return false
}

// RecommendWorkers halves the requested worker count while the host is
// under pressure, never going below one
func (lm *LoadMonitor) RecommendWorkers(requested int) int {
	if requested < 1 {
		requested = 1
	}
	if !lm.Overloaded() {
		return requested
	}

	scaled := requested / 2
	if scaled < 1 {
		scaled = 1
	}
	if scaled != requested {
		load := lm.Current()
		logger.Info("System under pressure (cpu=%.1f%% mem=%.1f%%), scaling refresh workers %d -> %d",
			load.CPUPercent, load.MemoryPercent, requested, scaled)
	}
	return scaled
}
