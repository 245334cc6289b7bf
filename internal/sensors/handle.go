package sensors

import (
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Service is the underlying platform sensor service (GPS/compass fusion).
// The core only consumes its lifecycle; the fusion math itself lives
// outside this module.
type Service interface {
	Start() error
	Stop() error
}

// Handle is an explicit reference-counted wrapper around a sensor
// service. Named consumers acquire and release it; the service starts on
// the 0->1 transition and stops on 1->0. There is no ambient global
// state: pass the handle to whoever needs sensor data.
type Handle struct {
	mu        sync.Mutex
	svc       Service
	consumers map[string]string // token -> consumer name
}

// NewHandle wraps a sensor service in a reference-counted handle
func NewHandle(svc Service) *Handle {
	return &Handle{
		svc:       svc,
		consumers: make(map[string]string),
	}
}

// Acquire registers a named consumer and returns a release token.
// The first consumer starts the underlying service; a start failure
// leaves the handle unreferenced.
func (h *Handle) Acquire(consumer string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.consumers) == 0 {
		if err := h.svc.Start(); err != nil {
			return "", fmt.Errorf("failed to start sensor service: %w", err)
		}
		log.Printf("[Sensors] Service started (first consumer: %s)", consumer)
	}

	token := uuid.NewString()
	h.consumers[token] = consumer
	return token, nil
}

// Release drops a consumer's reference. The last release stops the
// underlying service.
func (h *Handle) Release(token string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	consumer, ok := h.consumers[token]
	if !ok {
		return fmt.Errorf("unknown sensor token")
	}
	delete(h.consumers, token)

	if len(h.consumers) == 0 {
		if err := h.svc.Stop(); err != nil {
			return fmt.Errorf("failed to stop sensor service: %w", err)
		}
		log.Printf("[Sensors] Service stopped (last consumer: %s)", consumer)
	}
	return nil
}

// Active reports whether any consumer currently holds the service
func (h *Handle) Active() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.consumers) > 0
}

// Consumers returns the names of current holders, sorted
func (h *Handle) Consumers() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	names := make([]string, 0, len(h.consumers))
	for _, name := range h.consumers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
