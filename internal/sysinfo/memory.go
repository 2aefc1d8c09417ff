package sysinfo

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/mem"
)

// ErrMetricsUnavailable is returned when the OS memory interfaces cannot be
// read. Callers must treat this as fatal; no swap decision is safe without
// real numbers.
var ErrMetricsUnavailable = fmt.Errorf("system memory metrics unavailable")

// MemorySnapshot is a point-in-time view of RAM and swap, in megabytes.
// It must be captured fresh before every decision that depends on current
// state; a stale snapshot taken before a swap mutation is invalid.
type MemorySnapshot struct {
	TotalRAMMB  uint64
	FreeRAMMB   uint64
	TotalSwapMB uint64
	FreeSwapMB  uint64
}

// UsedSwapMB returns how much swap is currently absorbing pages.
func (s MemorySnapshot) UsedSwapMB() uint64 {
	if s.FreeSwapMB > s.TotalSwapMB {
		return 0
	}
	return s.TotalSwapMB - s.FreeSwapMB
}

// MemoryReader produces fresh memory snapshots.
type MemoryReader func(ctx context.Context) (MemorySnapshot, error)

// ReadMemory gathers RAM and swap state from the OS.
func ReadMemory(ctx context.Context) (MemorySnapshot, error) {
	vmem, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return MemorySnapshot{}, fmt.Errorf("%w: %v", ErrMetricsUnavailable, err)
	}

	swap, err := mem.SwapMemoryWithContext(ctx)
	if err != nil {
		return MemorySnapshot{}, fmt.Errorf("%w: %v", ErrMetricsUnavailable, err)
	}

	return MemorySnapshot{
		TotalRAMMB:  vmem.Total / 1024 / 1024,
		FreeRAMMB:   vmem.Available / 1024 / 1024,
		TotalSwapMB: swap.Total / 1024 / 1024,
		FreeSwapMB:  swap.Free / 1024 / 1024,
	}, nil
}
