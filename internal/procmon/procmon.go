// Package procmon samples the engine process's resource usage while a
// session runs. Samples are logged at debug level, so they only appear
// under verbose diagnostics.
package procmon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Sample is one resource snapshot of the engine process.
type Sample struct {
	CPUPercent float64
	RSSBytes   uint64
	NumThreads int32
}

// Take reads one sample for the given pid.
func Take(pid int32) (Sample, error) {
	p, err := process.NewProcess(pid)
	if err != nil {
		return Sample{}, fmt.Errorf("find process %d: %w", pid, err)
	}

	var sample Sample
	if cpu, err := p.CPUPercent(); err == nil {
		sample.CPUPercent = cpu
	}
	if mem, err := p.MemoryInfo(); err == nil {
		sample.RSSBytes = mem.RSS
	}
	if threads, err := p.NumThreads(); err == nil {
		sample.NumThreads = threads
	}
	return sample, nil
}

// Watch samples the pid every interval until ctx is done or the process
// disappears. It is meant to run in its own goroutine.
func Watch(ctx context.Context, pid int32, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample, err := Take(pid)
			if err != nil {
				// Process gone; the session teardown handles the rest.
				slog.Debug("Engine process no longer observable", "pid", pid, "error", err)
				return
			}
			slog.Debug("Engine resource usage",
				"pid", pid,
				"cpuPercent", fmt.Sprintf("%.1f", sample.CPUPercent),
				"rssMB", fmt.Sprintf("%.1f", float64(sample.RSSBytes)/1024/1024),
				"threads", sample.NumThreads,
			)
		}
	}
}
