package sensors

import (
	"errors"
	"testing"
)

type fakeService struct {
	starts   int
	stops    int
	startErr error
	stopErr  error
}

func (f *fakeService) Start() error {
	f.starts++
	return f.startErr
}

func (f *fakeService) Stop() error {
	f.stops++
	return f.stopErr
}

func TestAcquireStartsOnFirstConsumer(t *testing.T) {
	svc := &fakeService{}
	h := NewHandle(svc)

	tok1, err := h.Acquire("map")
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	tok2, err := h.Acquire("compass-overlay")
	if err != nil {
		t.Fatalf("second acquire failed: %v", err)
	}

	if svc.starts != 1 {
		t.Errorf("service started %d times, want 1", svc.starts)
	}
	if !h.Active() {
		t.Error("handle not active with two consumers")
	}
	if tok1 == tok2 {
		t.Error("acquire returned the same token twice")
	}

	names := h.Consumers()
	if len(names) != 2 || names[0] != "compass-overlay" || names[1] != "map" {
		t.Errorf("Consumers() = %v, want sorted consumer names", names)
	}
}

func TestReleaseStopsOnLastConsumer(t *testing.T) {
	svc := &fakeService{}
	h := NewHandle(svc)

	tok1, _ := h.Acquire("map")
	tok2, _ := h.Acquire("overlay")

	if err := h.Release(tok1); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if svc.stops != 0 {
		t.Error("service stopped while a consumer remained")
	}

	if err := h.Release(tok2); err != nil {
		t.Fatalf("final release failed: %v", err)
	}
	if svc.stops != 1 {
		t.Errorf("service stopped %d times, want 1", svc.stops)
	}
	if h.Active() {
		t.Error("handle still active after last release")
	}
}

func TestReleaseUnknownToken(t *testing.T) {
	h := NewHandle(&fakeService{})
	if err := h.Release("no-such-token"); err == nil {
		t.Error("unknown token accepted")
	}
}

func TestAcquireStartFailureLeavesHandleUnreferenced(t *testing.T) {
	svc := &fakeService{startErr: errors.New("no gps hardware")}
	h := NewHandle(svc)

	if _, err := h.Acquire("map"); err == nil {
		t.Fatal("acquire succeeded despite start failure")
	}
	if h.Active() {
		t.Error("failed acquire left the handle referenced")
	}

	// A later acquire retries the start
	svc.startErr = nil
	if _, err := h.Acquire("map"); err != nil {
		t.Fatalf("retry acquire failed: %v", err)
	}
	if svc.starts != 2 {
		t.Errorf("service start attempted %d times, want 2", svc.starts)
	}
}
