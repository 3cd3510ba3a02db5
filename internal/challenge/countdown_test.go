package challenge

import (
	"testing"
	"time"
)

func TestCountdownSequence(t *testing.T) {
	r := NewRunner(WithTickInterval(2 * time.Millisecond))

	var got []int
	c := r.Start(5, func(remaining int) { got = append(got, remaining) })

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("countdown did not finish")
	}

	want := []int{5, 4, 3, 2, 1, 0}
	if len(got) != len(want) {
		t.Fatalf("expected sequence %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected sequence %v, got %v", want, got)
		}
	}
}

func TestCountdownZeroFloor(t *testing.T) {
	r := NewRunner(WithTickInterval(time.Millisecond))

	var got []int
	c := r.Start(0, func(remaining int) { got = append(got, remaining) })
	<-c.Done()

	if len(got) != 1 || got[0] != 0 {
		t.Fatalf("expected single emission of 0, got %v", got)
	}

	// Nothing may reappear after 0: the task has exited, so any further
	// emission would have to come from a leaked goroutine.
	time.Sleep(10 * time.Millisecond)
	if len(got) != 1 {
		t.Fatalf("countdown emitted after reaching 0: %v", got)
	}
}

func TestCountdownNegativeStartsAtZero(t *testing.T) {
	r := NewRunner(WithTickInterval(time.Millisecond))

	var got []int
	c := r.Start(-3, func(remaining int) { got = append(got, remaining) })
	<-c.Done()

	if len(got) != 1 || got[0] != 0 {
		t.Fatalf("expected single emission of 0 for negative start, got %v", got)
	}
}

func TestRestartCancelsPriorCountdown(t *testing.T) {
	r := NewRunner(WithTickInterval(2 * time.Millisecond))

	var first []int
	r.Start(1000, func(remaining int) { first = append(first, remaining) })

	// Runner.Start stops the prior countdown synchronously, so once the new
	// one is running the first observer must never fire again.
	var second []int
	c := r.Start(3, func(remaining int) { second = append(second, remaining) })
	firstLen := len(first)

	<-c.Done()
	time.Sleep(10 * time.Millisecond)

	if len(first) != firstLen {
		t.Fatalf("prior countdown kept ticking after restart: %d -> %d emissions", firstLen, len(first))
	}
	want := []int{3, 2, 1, 0}
	if len(second) != len(want) {
		t.Fatalf("expected sequence %v, got %v", want, second)
	}
	for i := range want {
		if second[i] != want[i] {
			t.Fatalf("expected sequence %v, got %v", want, second)
		}
	}
}

func TestRepeatedRestartsLeaveOneActive(t *testing.T) {
	r := NewRunner(WithTickInterval(2 * time.Millisecond))

	for i := 0; i < 10; i++ {
		r.Start(1000, nil)
	}
	var got []int
	c := r.Start(2, func(remaining int) { got = append(got, remaining) })
	<-c.Done()

	if len(got) != 3 || got[0] != 2 || got[2] != 0 {
		t.Fatalf("expected exactly one decrementing task emitting 2,1,0, got %v", got)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	r := NewRunner(WithTickInterval(time.Millisecond))

	c := r.Start(1000, nil)
	r.Stop()
	r.Stop()
	c.Stop()

	select {
	case <-c.Done():
	default:
		t.Fatalf("expected countdown to be stopped")
	}
}

func TestStopWithoutActiveCountdown(t *testing.T) {
	r := NewRunner()
	r.Stop() // must not panic
}
