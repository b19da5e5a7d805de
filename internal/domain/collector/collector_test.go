package collector

import (
	"testing"
	"time"
)

func TestSnapshotPercentiles(t *testing.T) {
	c := New(200)
	for i := 1; i <= 100; i++ {
		c.Record(Sample{
			Action:  "issue.search",
			Latency: time.Duration(i) * time.Millisecond,
			Outcome: OutcomeSuccess,
		})
	}

	snap := c.Snapshot("issue.search")
	if snap.Count != 100 {
		t.Fatalf("count = %d, want 100", snap.Count)
	}
	if snap.P50 != 50*time.Millisecond {
		t.Fatalf("p50 = %v, want 50ms", snap.P50)
	}
	if snap.P95 != 95*time.Millisecond {
		t.Fatalf("p95 = %v, want 95ms", snap.P95)
	}
	if snap.P99 != 99*time.Millisecond {
		t.Fatalf("p99 = %v, want 99ms", snap.P99)
	}
	if snap.ErrorRate != 0 {
		t.Fatalf("error rate = %v, want 0", snap.ErrorRate)
	}
}

func TestSnapshotErrorRateCountsFailuresAndRejections(t *testing.T) {
	c := New(16)
	outcomes := []Outcome{
		OutcomeSuccess, OutcomeSuccess, OutcomeFailure, OutcomeRejected,
	}
	for _, o := range outcomes {
		c.Record(Sample{Action: "issue.create", Latency: time.Millisecond, Outcome: o})
	}

	snap := c.Snapshot("issue.create")
	if snap.ErrorRate != 0.5 {
		t.Fatalf("error rate = %v, want 0.5", snap.ErrorRate)
	}
}

func TestWindowEvictsOldestSamples(t *testing.T) {
	c := New(10)
	for i := 0; i < 10; i++ {
		c.Record(Sample{Action: "issue.get", Latency: time.Second, Outcome: OutcomeFailure})
	}
	for i := 0; i < 10; i++ {
		c.Record(Sample{Action: "issue.get", Latency: time.Millisecond, Outcome: OutcomeSuccess})
	}

	snap := c.Snapshot("issue.get")
	if snap.Count != 10 {
		t.Fatalf("count = %d, want window size 10", snap.Count)
	}
	if snap.ErrorRate != 0 {
		t.Fatalf("old failures must have been evicted, error rate = %v", snap.ErrorRate)
	}
	if snap.P99 != time.Millisecond {
		t.Fatalf("p99 = %v, want 1ms after eviction", snap.P99)
	}
}

func TestSnapshotUnknownAction(t *testing.T) {
	c := New(16)
	snap := c.Snapshot("issue.unknown")
	if snap.Count != 0 || snap.P50 != 0 || snap.ErrorRate != 0 {
		t.Fatalf("unknown action must yield a zero snapshot: %+v", snap)
	}
}

func TestActionsListsSampledActions(t *testing.T) {
	c := New(16)
	c.Record(Sample{Action: "issue.search", Latency: time.Millisecond, Outcome: OutcomeSuccess})
	c.Record(Sample{Action: "issue.create", Latency: time.Millisecond, Outcome: OutcomeSuccess})

	actions := c.Actions()
	if len(actions) != 2 || actions[0] != "issue.create" || actions[1] != "issue.search" {
		t.Fatalf("unexpected actions: %v", actions)
	}
}
