package metrics

import (
	"fmt"
	"testing"
	"time"
)

// captureBackend records calls for assertions.
type captureBackend struct {
	counters   map[string]float64
	histograms map[string][]float64
	labels     map[string]Labels
	flushed    int
}

func newCapture() *captureBackend {
	return &captureBackend{
		counters:   map[string]float64{},
		histograms: map[string][]float64{},
		labels:     map[string]Labels{},
	}
}

func (c *captureBackend) IncCounter(name string, delta float64, labels Labels) {
	c.counters[name] += delta
	c.labels[name] = labels
}

func (c *captureBackend) ObserveHistogram(name string, value float64, labels Labels) {
	c.histograms[name] = append(c.histograms[name], value)
	c.labels[name] = labels
}

func (c *captureBackend) Flush() error {
	c.flushed++
	return nil
}

func withCapture(t *testing.T) *captureBackend {
	t.Helper()
	prev := backend
	c := newCapture()
	SetBackend(c)
	t.Cleanup(func() { backend = prev })
	return c
}

func TestRecordStage(t *testing.T) {
	c := withCapture(t)

	RecordStage("job1", "load", nil, 250*time.Millisecond)
	if c.counters["funnel_stage_total"] != 1 {
		t.Fatalf("stage counter: %v", c.counters)
	}
	if got := c.labels["funnel_stage_total"]["status"]; got != "success" {
		t.Fatalf("status label: %q", got)
	}
	if got := c.histograms["funnel_stage_duration_seconds"]; len(got) != 1 || got[0] != 0.25 {
		t.Fatalf("duration observations: %v", got)
	}

	RecordStage("job1", "publish", fmt.Errorf("boom"), time.Second)
	if got := c.labels["funnel_stage_total"]["status"]; got != "failure" {
		t.Fatalf("failure status label: %q", got)
	}
}

func TestRecordRowsSkipsNonPositiveDeltas(t *testing.T) {
	c := withCapture(t)

	RecordRows("job1", "feature_usage", "skipped", 3)
	RecordRows("job1", "feature_usage", "skipped", 0)
	RecordRows("job1", "feature_usage", "skipped", -5)

	if c.counters["funnel_rows_total"] != 3 {
		t.Fatalf("rows counter: %v", c.counters)
	}
	lbls := c.labels["funnel_rows_total"]
	if lbls["relation"] != "feature_usage" || lbls["kind"] != "skipped" {
		t.Fatalf("labels: %v", lbls)
	}
}

func TestRecordRun(t *testing.T) {
	c := withCapture(t)
	RecordRun("job1", nil)
	RecordRun("job1", fmt.Errorf("boom"))
	if c.counters["funnel_runs_total"] != 2 {
		t.Fatalf("runs counter: %v", c.counters)
	}
}

func TestSetBackendIgnoresNil(t *testing.T) {
	c := withCapture(t)
	SetBackend(nil)
	RecordRun("job1", nil)
	if c.counters["funnel_runs_total"] != 1 {
		t.Fatalf("nil SetBackend replaced the backend")
	}
}

func TestFlushDelegates(t *testing.T) {
	c := withCapture(t)
	if err := Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if c.flushed != 1 {
		t.Fatalf("flushed %d times", c.flushed)
	}
}
