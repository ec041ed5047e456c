package core

import "testing"

func TestContextHandle_FreeableOnlyWhenIdleAndPending(t *testing.T) {
	h := &ContextHandle{}

	if h.MarkPendingFree() != true {
		t.Fatalf("MarkPendingFree on idle context should report immediately freeable")
	}
	if !h.PendingFree() {
		t.Fatalf("PendingFree() false after MarkPendingFree")
	}
}

func TestContextHandle_PendingFreeWaitsOnActiveTimers(t *testing.T) {
	h := &ContextHandle{}
	h.IncTimers()

	if h.MarkPendingFree() {
		t.Fatalf("MarkPendingFree reported freeable with an active timer outstanding")
	}
	if h.DecTimers() != true {
		t.Fatalf("DecTimers should report freeable once the last timer clears")
	}
}

func TestContextHandle_DecTimersNeverGoesNegative(t *testing.T) {
	h := &ContextHandle{}
	h.DecTimers()
	if h.ActiveTimers() != 0 {
		t.Fatalf("ActiveTimers() = %d after decrementing from 0", h.ActiveTimers())
	}
}

func TestContextHandle_MarkFreedIsOneShot(t *testing.T) {
	h := &ContextHandle{}
	if !h.MarkFreed() {
		t.Fatalf("first MarkFreed() should return true")
	}
	if h.MarkFreed() {
		t.Fatalf("second MarkFreed() should return false")
	}
}

func TestContextHandle_ResetTimers(t *testing.T) {
	h := &ContextHandle{}
	h.IncTimers()
	h.IncTimers()
	h.ResetTimers()
	if h.ActiveTimers() != 0 {
		t.Fatalf("ActiveTimers() = %d after ResetTimers", h.ActiveTimers())
	}
}
