package internaldefs

import (
	"strings"
	"testing"

	"github.com/civicpulse/tokenguard"
)

func TestEveryCounterHasADefinition(t *testing.T) {
	seen := make(map[tokenguard.MetricID]bool)
	names := make(map[string]bool)
	for _, def := range CounterDefs {
		if seen[def.ID] {
			t.Fatalf("duplicate definition for metric %d", def.ID)
		}
		if names[def.Name] {
			t.Fatalf("duplicate metric name %s", def.Name)
		}
		if !strings.HasPrefix(def.Name, "tokenguard_") || !strings.HasSuffix(def.Name, "_total") {
			t.Fatalf("counter %s does not follow naming convention", def.Name)
		}
		seen[def.ID] = true
		names[def.Name] = true
	}

	snapshot := tokenguard.NewMetrics(tokenguard.MetricsConfig{Enabled: true}).Snapshot()
	for id := range snapshot.Counters {
		if !seen[id] {
			t.Fatalf("counter %d has no exported definition", id)
		}
	}
}

func TestBucketShapes(t *testing.T) {
	if len(HistogramBounds) != 8 {
		t.Fatal("expected 8 bucket labels")
	}
	if len(HistogramUpperBounds) != 7 {
		t.Fatal("expected 7 finite bounds")
	}

	got := CumulativeBuckets(NormalizeBuckets([]uint64{1, 2, 3}))
	want := [8]uint64{1, 3, 6, 6, 6, 6, 6, 6}
	if got != want {
		t.Fatalf("CumulativeBuckets = %v, want %v", got, want)
	}
}
