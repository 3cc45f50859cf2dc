package core

import (
	"bufio"
	"context"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// SystemStatus is the aggregate shown on the admin dashboard.
type SystemStatus struct {
	Identities struct {
		Total int `json:"total"`
	} `json:"identities"`
	Memory struct {
		UsedBytes  uint64 `json:"used_bytes"`
		TotalBytes uint64 `json:"total_bytes"`
		HeapBytes  uint64 `json:"heap_bytes"`
	} `json:"memory"`
	Goroutines    int   `json:"goroutines"`
	UptimeSeconds int64 `json:"uptime_seconds"`
}

// CollectSystemStatus gathers the current status. Identity counts are
// best-effort; a store error leaves the total at zero.
func CollectSystemStatus(ctx context.Context, dir IdentityDirectory, startedAt time.Time) SystemStatus {
	var st SystemStatus

	if dir != nil {
		if n, err := dir.Count(ctx); err == nil {
			st.Identities.Total = n
		}
	}

	// Memory (best-effort from /proc/meminfo)
	used, total := readMemInfo()
	st.Memory.UsedBytes = used
	st.Memory.TotalBytes = total
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	st.Memory.HeapBytes = ms.HeapAlloc
	st.Goroutines = runtime.NumGoroutine()

	if !startedAt.IsZero() {
		st.UptimeSeconds = int64(time.Since(startedAt).Seconds())
	}
	return st
}

// readMemInfo returns used and total bytes using /proc/meminfo.
// If unavailable, returns zeros.
func readMemInfo() (used, total uint64) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, 0
	}
	defer f.Close()
	var memTotal, memAvailable uint64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "MemTotal:") {
			memTotal = parseKiBLine(line)
		} else if strings.HasPrefix(line, "MemAvailable:") {
			memAvailable = parseKiBLine(line)
		}
	}
	if memTotal > 0 {
		total = memTotal
		if memAvailable <= memTotal {
			used = memTotal - memAvailable
		}
		// convert KiB -> bytes
		used *= 1024
		total *= 1024
	}
	return used, total
}

func parseKiBLine(line string) uint64 {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0
	}
	v, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return 0
	}
	return v
}
