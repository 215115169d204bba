package controlloop

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/cuemby/lxcautoscaled/pkg/executor"
)

// hostTotals measures the host's total CPU core count and total memory
// (MiB), the two inputs the Host Accountant needs fresh every tick.
func hostTotals(ctx context.Context, exec executor.Executor) (cores int, memMiB int, err error) {
	coresOut, err := exec.Run(ctx, []string{"nproc"}, executor.DefaultTimeout)
	if err != nil {
		return 0, 0, fmt.Errorf("controlloop: nproc: %w", err)
	}
	cores, err = strconv.Atoi(strings.TrimSpace(coresOut))
	if err != nil {
		return 0, 0, fmt.Errorf("controlloop: parse nproc output %q: %w", coresOut, err)
	}

	memOut, err := exec.Run(ctx, []string{"free", "-m"}, executor.DefaultTimeout)
	if err != nil {
		return 0, 0, fmt.Errorf("controlloop: free -m: %w", err)
	}
	memMiB, err = parseFreeOutput(memOut)
	if err != nil {
		return 0, 0, fmt.Errorf("controlloop: parse free -m output: %w", err)
	}

	return cores, memMiB, nil
}

// parseFreeOutput extracts the total memory (MiB) from `free -m`'s "Mem:"
// row without shelling out to awk, since the executor never runs a
// pipeline string.
func parseFreeOutput(out string) (int, error) {
	for _, line := range strings.Split(out, "\n") {
		if !strings.HasPrefix(line, "Mem:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0, fmt.Errorf("unexpected Mem: line %q", line)
		}
		return strconv.Atoi(fields[1])
	}
	return 0, fmt.Errorf("no Mem: line found in %q", out)
}
