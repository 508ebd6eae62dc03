package observability

import (
	"errors"
	"testing"
	"time"
)

func TestOpStats_Record(t *testing.T) {
	stats := NewOpStats()
	stats.Record("load_snapshot", 10*time.Millisecond, nil)
	stats.Record("load_snapshot", 30*time.Millisecond, nil)
	stats.Record("save_snapshot", 5*time.Millisecond, errors.New("disk full"))

	records := stats.Snapshot()
	if len(records) != 2 {
		t.Fatalf("expected 2 operations, got %d", len(records))
	}

	// Sorted by count descending.
	load := records[0]
	if load.Op != "load_snapshot" || load.Count != 2 || load.Errors != 0 {
		t.Errorf("load record wrong: %+v", load)
	}
	if load.MeanLatency() != 20*time.Millisecond {
		t.Errorf("mean latency: got %v", load.MeanLatency())
	}

	save := records[1]
	if save.Op != "save_snapshot" || save.Count != 1 || save.Errors != 1 {
		t.Errorf("save record wrong: %+v", save)
	}
	if save.LastSeen.IsZero() {
		t.Errorf("last seen not stamped")
	}
}

func TestOpStats_SnapshotTieBreak(t *testing.T) {
	stats := NewOpStats()
	stats.Record("b_op", time.Millisecond, nil)
	stats.Record("a_op", time.Millisecond, nil)

	records := stats.Snapshot()
	if records[0].Op != "a_op" || records[1].Op != "b_op" {
		t.Errorf("equal counts should sort by name: %v, %v", records[0].Op, records[1].Op)
	}
}

func TestOpStats_Reset(t *testing.T) {
	stats := NewOpStats()
	stats.Record("op", time.Millisecond, nil)
	stats.Reset()
	if len(stats.Snapshot()) != 0 {
		t.Errorf("reset did not clear records")
	}
}

func TestOpRecord_MeanLatencyZeroCount(t *testing.T) {
	var rec OpRecord
	if rec.MeanLatency() != 0 {
		t.Errorf("zero-count record should report zero latency")
	}
}
