package sandbox

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// readMemoryUsedPercent reports host memory usage from /proc/meminfo.
func readMemoryUsedPercent() (float64, error) {
	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return 0, err
	}
	return parseMemInfo(data)
}

// parseMemInfo computes used percent as (MemTotal - MemAvailable) /
// MemTotal. MemAvailable already accounts for reclaimable page cache,
// so this matches what an operator would read off free(1).
func parseMemInfo(data []byte) (float64, error) {
	var total, available int64
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		value, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			total = value
		case "MemAvailable:":
			available = value
		}
	}
	if total <= 0 {
		return 0, fmt.Errorf("MemTotal missing from meminfo")
	}
	return float64(total-available) / float64(total) * 100, nil
}
