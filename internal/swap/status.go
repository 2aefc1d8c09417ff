package swap

import (
	"context"
	"os"
	"strings"

	"github.com/vpskit/vpsinit/internal/sysinfo"
)

// Status is the current swap footprint, in megabytes.
type Status struct {
	TotalMB uint64
	UsedMB  uint64
}

// ReadStatus returns the host's current swap totals.
func ReadStatus(ctx context.Context) (Status, error) {
	snap, err := sysinfo.ReadMemory(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{TotalMB: snap.TotalSwapMB, UsedMB: snap.UsedSwapMB()}, nil
}

// activeSwapFiles parses the kernel swap table and returns the paths of
// file-backed swap areas, in table order. Swap partitions are excluded;
// this tool never touches devices it did not create.
func activeSwapFiles(procSwapsPath string) ([]string, error) {
	data, err := os.ReadFile(procSwapsPath)
	if err != nil {
		return nil, err
	}

	var files []string
	lines := strings.Split(string(data), "\n")
	for i, line := range lines {
		// First line is the header
		if i == 0 {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		if fields[1] == "file" {
			files = append(files, fields[0])
		}
	}
	return files, nil
}
