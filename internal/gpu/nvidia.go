package gpu

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// NvidiaSMIQuerier reads memory and utilization for the whole inventory
// with one nvidia-smi invocation. Device ids from the inventory are
// mapped to nvidia-smi indexes in declaration order.
type NvidiaSMIQuerier struct {
	// Bin is the nvidia-smi binary; defaults to "nvidia-smi".
	Bin string
	// IndexToID maps nvidia-smi device index to inventory device id.
	IndexToID map[int]string
}

// NewNvidiaSMIQuerier maps inventory device ids to indexes 0..n-1 in the
// order they are configured.
func NewNvidiaSMIQuerier(ids []string) *NvidiaSMIQuerier {
	idx := make(map[int]string, len(ids))
	for i, id := range ids {
		idx[i] = id
	}
	return &NvidiaSMIQuerier{Bin: "nvidia-smi", IndexToID: idx}
}

func (q *NvidiaSMIQuerier) Query(ctx context.Context) (map[string]Sample, error) {
	bin := q.Bin
	if bin == "" {
		bin = "nvidia-smi"
	}
	cmd := exec.CommandContext(ctx, bin,
		"--query-gpu=index,memory.used,utilization.gpu",
		"--format=csv,noheader,nounits")
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("nvidia-smi: %w", err)
	}
	return q.parse(string(out))
}

// parse turns "0, 20990, 87" lines into samples keyed by inventory id.
func (q *NvidiaSMIQuerier) parse(out string) (map[string]Sample, error) {
	samples := make(map[string]Sample, len(q.IndexToID))
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) != 3 {
			return nil, fmt.Errorf("nvidia-smi: unexpected row %q", line)
		}
		idx, err := strconv.Atoi(strings.TrimSpace(fields[0]))
		if err != nil {
			return nil, fmt.Errorf("nvidia-smi: bad index in %q", line)
		}
		id, ok := q.IndexToID[idx]
		if !ok {
			// Device present on the host but not in the inventory.
			continue
		}
		used, err := strconv.Atoi(strings.TrimSpace(fields[1]))
		if err != nil {
			return nil, fmt.Errorf("nvidia-smi: bad memory.used in %q", line)
		}
		util, err := strconv.Atoi(strings.TrimSpace(fields[2]))
		if err != nil {
			return nil, fmt.Errorf("nvidia-smi: bad utilization in %q", line)
		}
		samples[id] = Sample{UsedMemMB: used, UtilizationPct: util}
	}
	return samples, nil
}
