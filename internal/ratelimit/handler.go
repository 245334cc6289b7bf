package ratelimit

import (
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"
)

// RetryStrategy defines the backoff intervals applied to a rate-limited
// photo source before fetches are attempted again
type RetryStrategy struct {
	Intervals  []time.Duration
	MaxRetries int
}

// DefaultRetryStrategy returns the backoff used for remote photo APIs
func DefaultRetryStrategy() *RetryStrategy {
	return &RetryStrategy{
		Intervals: []time.Duration{
			30 * time.Second,
			1 * time.Minute,
			2 * time.Minute,
			5 * time.Minute,
			10 * time.Minute,
		},
		MaxRetries: 10,
	}
}

// Event records one rate-limit occurrence for a photo source
type Event struct {
	Timestamp    time.Time `json:"timestamp"`
	SourceID     string    `json:"sourceId"`
	StatusCode   int       `json:"statusCode"`
	RetryAttempt int       `json:"retryAttempt"` // 0 = first occurrence
	NextRetryAt  time.Time `json:"nextRetryAt"`
	Message      string    `json:"message"`
}

// Handler tracks which photo sources are currently rate limited and when
// fetching from them may resume. Fetch paths check IsLimited before each
// request and feed every response through CheckResponse.
type Handler struct {
	mu          sync.RWMutex
	limited     map[string]*Event // source id -> current state
	strategy    *RetryStrategy
	onLimited   func(event Event)
	onRecovered func(sourceID string)
}

// NewHandler creates a rate limit handler
func NewHandler(strategy *RetryStrategy) *Handler {
	if strategy == nil {
		strategy = DefaultRetryStrategy()
	}
	return &Handler{
		limited:  make(map[string]*Event),
		strategy: strategy,
	}
}

// SetOnLimited sets the callback fired when a source becomes rate limited
func (h *Handler) SetOnLimited(callback func(event Event)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onLimited = callback
}

// SetOnRecovered sets the callback fired when a source's limit clears
func (h *Handler) SetOnRecovered(callback func(sourceID string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onRecovered = callback
}

// IsLimited reports whether fetching from the source should be skipped.
// A source past its retry time is no longer considered limited; the next
// successful response clears its state entirely.
func (h *Handler) IsLimited(sourceID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	event, ok := h.limited[sourceID]
	if !ok {
		return false
	}
	return time.Now().Before(event.NextRetryAt)
}

// CheckResponse inspects a fetch response for rate-limit indicators and
// updates the source's state. Returns true when the source is limited.
func (h *Handler) CheckResponse(sourceID string, resp *http.Response) bool {
	limited := resp.StatusCode == http.StatusTooManyRequests ||
		resp.StatusCode == http.StatusForbidden ||
		resp.StatusCode == 509 // Bandwidth Limit Exceeded

	if !limited {
		h.clear(sourceID)
		return false
	}

	h.record(sourceID, resp.StatusCode)
	return true
}

// record registers a rate-limit hit and advances the backoff schedule
func (h *Handler) record(sourceID string, statusCode int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	retryAttempt := 0
	if existing, ok := h.limited[sourceID]; ok {
		retryAttempt = existing.RetryAttempt + 1
	}

	var interval time.Duration
	if retryAttempt < len(h.strategy.Intervals) {
		interval = h.strategy.Intervals[retryAttempt]
	} else {
		interval = h.strategy.Intervals[len(h.strategy.Intervals)-1]
	}
	nextRetryAt := time.Now().Add(interval)

	event := Event{
		Timestamp:    time.Now(),
		SourceID:     sourceID,
		StatusCode:   statusCode,
		RetryAttempt: retryAttempt,
		NextRetryAt:  nextRetryAt,
		Message: fmt.Sprintf("source %s rate limited (HTTP %d), next fetch attempt in %s",
			sourceID, statusCode, interval),
	}
	h.limited[sourceID] = &event

	log.Printf("[RateLimit] Source %s rate limited (attempt %d), retry at %s",
		sourceID, retryAttempt, nextRetryAt.Format(time.RFC3339))

	if h.onLimited != nil {
		go h.onLimited(event)
	}
}

// clear drops a source's limited state after a successful response
func (h *Handler) clear(sourceID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.limited[sourceID]; ok {
		delete(h.limited, sourceID)
		log.Printf("[RateLimit] Source %s rate limit cleared", sourceID)
		if h.onRecovered != nil {
			go h.onRecovered(sourceID)
		}
	}
}

// Reset clears a source's limited state on explicit user request
func (h *Handler) Reset(sourceID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.limited, sourceID)
}

// State returns a copy of the current rate-limit state for a source, or
// nil when the source is unrestricted
func (h *Handler) State(sourceID string) *Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if event, ok := h.limited[sourceID]; ok {
		copied := *event
		return &copied
	}
	return nil
}

// States returns the current rate-limit state for all limited sources
func (h *Handler) States() []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	events := make([]Event, 0, len(h.limited))
	for _, event := range h.limited {
		events = append(events, *event)
	}
	return events
}
