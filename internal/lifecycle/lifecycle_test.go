package lifecycle

import "testing"

func TestShutdownRunsHooksInOrderOnce(t *testing.T) {
	m := New()
	var order []int
	m.OnShutdown(func() { order = append(order, 1) })
	m.OnShutdown(func() { order = append(order, 2) })

	m.Shutdown("test")
	m.Shutdown("test again")

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("expected hooks to run once in order, got %v", order)
	}
	if !m.Terminating() {
		t.Fatalf("expected Terminating() to be true after Shutdown")
	}
}

func TestTerminatingFalseBeforeShutdown(t *testing.T) {
	m := New()
	if m.Terminating() {
		t.Fatalf("expected Terminating() to be false before Shutdown")
	}
}
