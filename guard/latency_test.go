package guard

import (
	"testing"
	"time"
)

func TestLatencySketch_EmptyPercentileIsZero(t *testing.T) {
	s := newLatencySketch(10)
	if p := s.percentile(95); p != 0 {
		t.Errorf("percentile on empty sketch = %v, want 0", p)
	}
}

func TestLatencySketch_PercentilesReflectRecordedValues(t *testing.T) {
	s := newLatencySketch(100)
	for i := 1; i <= 100; i++ {
		s.record(time.Duration(i) * time.Millisecond)
	}

	p50 := s.percentile(50)
	if p50 < 49 || p50 > 52 {
		t.Errorf("p50 = %v, want roughly 50", p50)
	}

	p99 := s.percentile(99)
	if p99 < 97 {
		t.Errorf("p99 = %v, want close to 100", p99)
	}
}

func TestLatencySketch_WrapsAroundCircularBuffer(t *testing.T) {
	s := newLatencySketch(5)
	for i := 1; i <= 7; i++ {
		s.record(time.Duration(i) * time.Millisecond)
	}
	snap := s.snapshot()
	if len(snap) != 5 {
		t.Fatalf("snapshot length = %d, want 5 (buffer size, not total recorded)", len(snap))
	}
}
