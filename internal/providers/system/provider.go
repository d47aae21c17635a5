// Package system reports resource statistics for the runtime host:
// Go runtime memory and goroutine counts plus load and process figures
// read from /proc.
package system

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Stats is one resource snapshot.
type Stats struct {
	Timestamp  int64       `json:"timestamp"`
	Memory     MemoryStats `json:"memory"`
	CPU        CPUStats    `json:"cpu"`
	Processes  int         `json:"processes"`
	Goroutines int         `json:"goroutines"`
	Uptime     float64     `json:"uptime_seconds"`
}

// MemoryStats reports Go heap usage.
type MemoryStats struct {
	Allocated uint64 `json:"allocated_bytes"`
	Total     uint64 `json:"total_bytes"`
	System    uint64 `json:"system_bytes"`
	NumGC     uint32 `json:"num_gc"`
}

// CPUStats reports core counts and one-minute load.
type CPUStats struct {
	Cores   int     `json:"cores"`
	Load1   float64 `json:"load_1m"`
	Load5   float64 `json:"load_5m"`
	Load15  float64 `json:"load_15m"`
}

// Provider collects resource statistics.
type Provider struct {
	startTime time.Time
}

// NewProvider creates a system stats provider.
func NewProvider() *Provider {
	return &Provider{startTime: time.Now()}
}

// Stats returns a point-in-time snapshot.
func (p *Provider) Stats() Stats {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	load1, load5, load15 := readLoadAvg()

	return Stats{
		Timestamp: time.Now().Unix(),
		Memory: MemoryStats{
			Allocated: mem.Alloc,
			Total:     mem.TotalAlloc,
			System:    mem.Sys,
			NumGC:     mem.NumGC,
		},
		CPU: CPUStats{
			Cores:  runtime.NumCPU(),
			Load1:  load1,
			Load5:  load5,
			Load15: load15,
		},
		Processes:  countProcesses(),
		Goroutines: runtime.NumGoroutine(),
		Uptime:     time.Since(p.startTime).Seconds(),
	}
}

// readLoadAvg parses /proc/loadavg; zeros on non-Linux hosts.
func readLoadAvg() (float64, float64, float64) {
	data, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return 0, 0, 0
	}
	fields := strings.Fields(string(data))
	if len(fields) < 3 {
		return 0, 0, 0
	}
	load1, _ := strconv.ParseFloat(fields[0], 64)
	load5, _ := strconv.ParseFloat(fields[1], 64)
	load15, _ := strconv.ParseFloat(fields[2], 64)
	return load1, load5, load15
}

// countProcesses counts numeric entries in /proc; zero on non-Linux.
func countProcesses() int {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return 0
	}
	count := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := strconv.Atoi(entry.Name()); err == nil {
			count++
		}
	}
	return count
}
