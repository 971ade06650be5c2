package gpu

import "testing"

func TestNvidiaParse(t *testing.T) {
	q := NewNvidiaSMIQuerier([]string{"gpu0", "gpu1"})
	samples, err := q.parse("0, 20990, 87\n1, 433, 2\n")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if s := samples["gpu0"]; s.UsedMemMB != 20990 || s.UtilizationPct != 87 {
		t.Fatalf("gpu0 = %+v", s)
	}
	if s := samples["gpu1"]; s.UsedMemMB != 433 || s.UtilizationPct != 2 {
		t.Fatalf("gpu1 = %+v", s)
	}
}

func TestNvidiaParseSkipsUnconfiguredDevices(t *testing.T) {
	q := NewNvidiaSMIQuerier([]string{"gpu0"})
	samples, err := q.parse("0, 100, 1\n7, 9999, 90\n")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(samples) != 1 {
		t.Fatalf("samples = %+v, want only gpu0", samples)
	}
}

func TestNvidiaParseRejectsGarbage(t *testing.T) {
	q := NewNvidiaSMIQuerier([]string{"gpu0"})
	for _, bad := range []string{
		"0, 100",
		"x, 100, 1",
		"0, lots, 1",
		"0, 100, hot",
	} {
		if _, err := q.parse(bad + "\n"); err == nil {
			t.Fatalf("accepted %q", bad)
		}
	}
}
