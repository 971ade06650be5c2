package gpu

import "context"

// StaticQuerier reports fixed samples for every configured device. Useful
// on hosts without nvidia-smi (development, CI).
type StaticQuerier struct {
	Samples map[string]Sample
}

// NewStaticQuerier reports zero usage for the given device ids.
func NewStaticQuerier(ids []string) *StaticQuerier {
	samples := make(map[string]Sample, len(ids))
	for _, id := range ids {
		samples[id] = Sample{}
	}
	return &StaticQuerier{Samples: samples}
}

func (q *StaticQuerier) Query(ctx context.Context) (map[string]Sample, error) {
	out := make(map[string]Sample, len(q.Samples))
	for id, s := range q.Samples {
		out[id] = s
	}
	return out, nil
}
