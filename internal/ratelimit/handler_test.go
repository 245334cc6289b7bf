package ratelimit

import (
	"net/http"
	"testing"
	"time"
)

func respWith(code int) *http.Response {
	return &http.Response{StatusCode: code}
}

func TestCheckResponseMarksLimited(t *testing.T) {
	h := NewHandler(nil)

	if h.CheckResponse("archive", respWith(http.StatusOK)) {
		t.Error("200 response marked as rate limited")
	}
	if !h.CheckResponse("archive", respWith(http.StatusTooManyRequests)) {
		t.Error("429 response not marked as rate limited")
	}
	if !h.IsLimited("archive") {
		t.Error("source not limited after 429")
	}
	if h.IsLimited("device") {
		t.Error("unrelated source limited")
	}
}

func TestBackoffEscalates(t *testing.T) {
	h := NewHandler(&RetryStrategy{
		Intervals:  []time.Duration{time.Minute, 5 * time.Minute},
		MaxRetries: 10,
	})

	h.CheckResponse("archive", respWith(http.StatusForbidden))
	first := h.State("archive")
	if first == nil || first.RetryAttempt != 0 {
		t.Fatalf("first hit state = %+v", first)
	}

	h.CheckResponse("archive", respWith(http.StatusForbidden))
	second := h.State("archive")
	if second == nil || second.RetryAttempt != 1 {
		t.Fatalf("second hit state = %+v", second)
	}
	if !second.NextRetryAt.After(first.NextRetryAt) {
		t.Error("backoff did not escalate on repeated hits")
	}

	// Past the interval table, the last interval keeps applying
	h.CheckResponse("archive", respWith(http.StatusForbidden))
	third := h.State("archive")
	if third == nil || third.RetryAttempt != 2 {
		t.Fatalf("third hit state = %+v", third)
	}
}

func TestSuccessClearsLimit(t *testing.T) {
	h := NewHandler(nil)

	recovered := make(chan string, 1)
	h.SetOnRecovered(func(sourceID string) { recovered <- sourceID })

	h.CheckResponse("archive", respWith(http.StatusTooManyRequests))
	h.CheckResponse("archive", respWith(http.StatusOK))

	if h.IsLimited("archive") {
		t.Error("source still limited after successful response")
	}
	select {
	case src := <-recovered:
		if src != "archive" {
			t.Errorf("recovered callback for %q, want archive", src)
		}
	case <-time.After(time.Second):
		t.Fatal("recovered callback never fired")
	}
}

func TestResetClearsLimit(t *testing.T) {
	h := NewHandler(nil)
	h.CheckResponse("archive", respWith(509))
	h.Reset("archive")
	if h.IsLimited("archive") {
		t.Error("source still limited after explicit reset")
	}
	if len(h.States()) != 0 {
		t.Errorf("States() = %v after reset, want empty", h.States())
	}
}

func TestLimitedCallbackFires(t *testing.T) {
	h := NewHandler(nil)

	limited := make(chan Event, 1)
	h.SetOnLimited(func(event Event) { limited <- event })

	h.CheckResponse("archive", respWith(http.StatusTooManyRequests))

	select {
	case event := <-limited:
		if event.SourceID != "archive" || event.StatusCode != http.StatusTooManyRequests {
			t.Errorf("limited callback event = %+v", event)
		}
	case <-time.After(time.Second):
		t.Fatal("limited callback never fired")
	}
}
