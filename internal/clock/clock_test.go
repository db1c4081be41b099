package clock

import (
	"sync"
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	clk := &RealClock{}

	before := time.Now().Add(-time.Millisecond)
	actual := clk.Now()
	after := time.Now()

	if actual.Before(before) || actual.After(after) {
		t.Errorf("RealClock.Now() = %v, expected between %v and %v", actual, before, after)
	}
	if actual.Location() != time.UTC {
		t.Errorf("RealClock.Now() location = %v, want UTC", actual.Location())
	}
	if actual.Nanosecond()%int(time.Millisecond) != 0 {
		t.Errorf("RealClock.Now() = %v, expected millisecond precision", actual)
	}
}

func TestFakeClock(t *testing.T) {
	start := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	clk := NewFakeClock(start)

	if got := clk.Now(); !got.Equal(start) {
		t.Errorf("Now() = %v, want %v", got, start)
	}

	if got := clk.Advance(90 * time.Second); !got.Equal(start.Add(90 * time.Second)) {
		t.Errorf("Advance() = %v, want %v", got, start.Add(90*time.Second))
	}

	later := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	clk.Set(later)
	if got := clk.Now(); !got.Equal(later) {
		t.Errorf("Now() after Set = %v, want %v", got, later)
	}
}

func TestFakeClock_ConcurrentAdvance(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := NewFakeClock(start)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clk.Advance(time.Second)
			_ = clk.Now()
		}()
	}
	wg.Wait()

	if got := clk.Now(); !got.Equal(start.Add(50 * time.Second)) {
		t.Errorf("Now() = %v, want %v", got, start.Add(50*time.Second))
	}
}
