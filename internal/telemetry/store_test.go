package telemetry

import (
	"testing"
	"time"
)

func TestStore_EmptyWindowZeroSampleSize(t *testing.T) {
	s := NewStore()
	m := s.Metrics("p1")
	if m.SampleSize != 0 {
		t.Fatalf("expected zero sample size for empty window, got %d", m.SampleSize)
	}
	sla := s.SLACompliance("p1", 500)
	if sla.Compliant {
		t.Fatalf("empty window must never be reported compliant")
	}
}

func TestStore_SLAComplianceRequiresMinSampleSize(t *testing.T) {
	s := NewStore()
	for i := 0; i < 19; i++ {
		s.RecordRequest("p1", 10, true)
	}
	sla := s.SLACompliance("p1", 500)
	if sla.Compliant {
		t.Fatalf("19 samples must not satisfy the default min sample size of 20")
	}

	s.RecordRequest("p1", 10, true)
	sla = s.SLACompliance("p1", 500)
	if !sla.Compliant {
		t.Fatalf("20 low-latency samples under a generous target should be compliant")
	}
}

func TestStore_DetectSpikeRequiresNonzeroBaseline(t *testing.T) {
	s := NewStore()
	if s.DetectSpike("p1", 2.0, 60) {
		t.Fatalf("a provider with zero baseline traffic must never report a spike")
	}
}

func TestStore_ReliabilityScoreBounds(t *testing.T) {
	s := NewStore()
	for i := 0; i < 10; i++ {
		s.RecordRequest("p1", 5, true)
	}
	if got := s.ReliabilityScore("p1"); got != 1.0 {
		t.Fatalf("all-success window should score reliability 1.0, got %v", got)
	}

	s2 := NewStore()
	for i := 0; i < 10; i++ {
		s2.RecordRequest("p2", 5, false)
	}
	if got := s2.ReliabilityScore("p2"); got != 0 {
		t.Fatalf("all-failure window should score reliability 0, got %v", got)
	}
}

func TestRollingWindow_LazyEviction(t *testing.T) {
	w := NewRollingWindow(10 * time.Millisecond)
	w.Add(1)
	if c := w.Count(time.Now().Add(-time.Second)); c != 1 {
		t.Fatalf("expected 1 event immediately after add, got %d", c)
	}

	time.Sleep(20 * time.Millisecond)
	if c := w.Count(time.Now().Add(-time.Second)); c != 0 {
		t.Fatalf("expected event to be evicted after extent elapses, got %d", c)
	}
}
