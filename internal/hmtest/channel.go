package hmtest

import (
	"testing"
	"time"
)

// ScheduleInterval is long enough for a goroutine to be scheduled
// and to do a small amount of work.
const ScheduleInterval = 2 * time.Second

// ReceiveSoon receives a value from ch,
// failing the test if nothing arrives within [ScheduleInterval].
func ReceiveSoon[T any](t testing.TB, ch <-chan T) T {
	t.Helper()

	select {
	case v := <-ch:
		return v
	case <-time.After(ScheduleInterval):
		t.Fatalf("no value received within %s", ScheduleInterval)
	}

	panic("unreachable")
}
