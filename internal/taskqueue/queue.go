package taskqueue

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/bep/debounce"
	"golang.org/x/sync/semaphore"

	"photomap-desktop/internal/metrics"
)

// Config tunes the queue. Zero values fall back to defaults.
type Config struct {
	// Capacity bounds queued (not running) tasks; ModeQueue enqueues
	// beyond it are dropped, never blocked on
	Capacity int

	// MaxTaskAge is the staleness threshold: queued tasks older than this
	// are evicted instead of executed
	MaxTaskAge time.Duration

	// SweepInterval is how often stale entries are culled even when no
	// new enqueue happens
	SweepInterval time.Duration

	// HighWaterFraction of Capacity above which the oldest half of the
	// queue is forcibly evicted as an emergency safety valve
	HighWaterFraction float64

	// Debounce holds per-type debounce intervals for ModeReplace.
	// Heavier task types get longer windows.
	Debounce map[TaskType]time.Duration

	// NonPreemptable task types neither preempt nor get preempted
	NonPreemptable map[TaskType]bool
}

// DefaultConfig returns the tuning the orchestrator ships with
func DefaultConfig() Config {
	return Config{
		Capacity:          64,
		MaxTaskAge:        10 * time.Second,
		SweepInterval:     2 * time.Second,
		HighWaterFraction: 0.8,
		Debounce: map[TaskType]time.Duration{
			TaskViewportFilter:    250 * time.Millisecond,
			TaskBearingUpdate:     50 * time.Millisecond,
			TaskDistanceRecompute: 100 * time.Millisecond,
			TaskFetchTrigger:      500 * time.Millisecond,
		},
		NonPreemptable: map[TaskType]bool{
			TaskFetchTrigger: true,
		},
	}
}

const defaultDebounce = 100 * time.Millisecond

// QueueStatus is the operational view of the queue
type QueueStatus struct {
	DepthByType     map[TaskType]int `json:"depthByType"`
	TotalQueued     int              `json:"totalQueued"`
	RunningType     string           `json:"runningType,omitempty"`
	PendingDebounce []TaskType       `json:"pendingDebounce,omitempty"`
}

// QueueManager schedules recomputation tasks: per-type debouncing in
// replace mode, a priority heap, single-flight execution, preemption,
// staleness eviction, and emergency backpressure.
//
// Exactly one task runs at a time; the run gate is a weighted semaphore
// of capacity one. Task bodies are executed off the caller's goroutine,
// so enqueueing never blocks an event handler.
type QueueManager struct {
	mu  sync.Mutex
	cfg Config

	heap    taskHeap
	pending map[TaskType]*Task        // awaiting debounce expiry
	deb     map[TaskType]func(func()) // per-type debouncers

	running       *Task
	runningCancel context.CancelFunc
	runGate       *semaphore.Weighted

	seq    uint64
	wake   chan struct{}
	stopCh chan struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewQueueManager creates and starts a queue manager
func NewQueueManager(cfg Config) *QueueManager {
	def := DefaultConfig()
	if cfg.Capacity <= 0 {
		cfg.Capacity = def.Capacity
	}
	if cfg.MaxTaskAge <= 0 {
		cfg.MaxTaskAge = def.MaxTaskAge
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.HighWaterFraction <= 0 || cfg.HighWaterFraction > 1 {
		cfg.HighWaterFraction = def.HighWaterFraction
	}
	if cfg.Debounce == nil {
		cfg.Debounce = def.Debounce
	}
	if cfg.NonPreemptable == nil {
		cfg.NonPreemptable = def.NonPreemptable
	}

	q := &QueueManager{
		cfg:     cfg,
		pending: make(map[TaskType]*Task),
		deb:     make(map[TaskType]func(func())),
		runGate: semaphore.NewWeighted(1),
		wake:    make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
	}

	q.wg.Add(1)
	go q.dispatcher()
	return q
}

// Enqueue schedules a task. ModeReplace restarts the type's debounce
// window and discards queued same-type entries; ModeQueue pushes
// immediately, dropping the task when the queue is at capacity.
func (q *QueueManager) Enqueue(typ TaskType, priority Priority, mode Mode, payload interface{}, run TaskFunc) {
	t := newTask(typ, priority, payload, run)
	metrics.TasksEnqueuedTotal.WithLabelValues(string(typ)).Inc()

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}

	if mode == ModeQueue {
		if len(q.heap) >= q.cfg.Capacity {
			q.mu.Unlock()
			log.Printf("[TaskQueue] Queue at capacity (%d), dropping %s task", q.cfg.Capacity, typ)
			metrics.TasksEvictedTotal.WithLabelValues("overflow").Inc()
			return
		}
		q.pushLocked(t)
		q.emergencyEvictLocked()
		q.maybePreemptLocked(t)
		q.mu.Unlock()
		q.wakeup()
		return
	}

	// Replace mode: latest payload wins
	t.replaceable = true
	q.removeQueuedLocked(typ, true)
	q.pending[typ] = t
	deb, ok := q.deb[typ]
	if !ok {
		interval, found := q.cfg.Debounce[typ]
		if !found {
			interval = defaultDebounce
		}
		deb = debounce.New(interval)
		q.deb[typ] = deb
	}
	q.mu.Unlock()

	deb(func() { q.promote(typ) })
}

// promote moves the latest pending entry of a type from the debounce
// stage into the heap. A cleared pending slot makes this a no-op.
func (q *QueueManager) promote(typ TaskType) {
	q.mu.Lock()
	t, ok := q.pending[typ]
	if !ok || q.closed {
		q.mu.Unlock()
		return
	}
	delete(q.pending, typ)
	q.pushLocked(t)
	q.emergencyEvictLocked()
	q.maybePreemptLocked(t)
	q.mu.Unlock()
	q.wakeup()
}

// Cancel clears any pending debounce timer and queued entries of the
// type, and aborts the running task if it matches. An explicitly
// cancelled running task is not requeued.
func (q *QueueManager) Cancel(typ TaskType) {
	q.mu.Lock()
	delete(q.pending, typ)
	removed := q.removeQueuedLocked(typ, false)
	if q.running != nil && q.running.Type == typ && q.runningCancel != nil {
		q.running.preempted = false
		q.runningCancel()
		metrics.TasksAbortedTotal.WithLabelValues(string(typ)).Inc()
	}
	q.mu.Unlock()

	if removed > 0 {
		log.Printf("[TaskQueue] Cancelled %d queued %s task(s)", removed, typ)
	}
}

// Status reports queue depth per type, the running task, and which types
// currently sit in a debounce window
func (q *QueueManager) Status() QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()

	depth := make(map[TaskType]int)
	for _, t := range q.heap {
		depth[t.Type]++
	}

	status := QueueStatus{
		DepthByType: depth,
		TotalQueued: len(q.heap),
	}
	if q.running != nil {
		status.RunningType = string(q.running.Type)
	}
	for typ := range q.pending {
		status.PendingDebounce = append(status.PendingDebounce, typ)
	}
	sort.Slice(status.PendingDebounce, func(i, j int) bool {
		return status.PendingDebounce[i] < status.PendingDebounce[j]
	})
	return status
}

// Close stops the dispatcher, aborts the running task, and drops
// everything still queued or pending
func (q *QueueManager) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.pending = make(map[TaskType]*Task)
	q.heap = nil
	if q.runningCancel != nil {
		q.runningCancel()
	}
	q.mu.Unlock()

	close(q.stopCh)
	q.wg.Wait()
	q.updateDepthGauge()
	log.Printf("[TaskQueue] Closed")
}

// dispatcher runs tasks one at a time and periodically culls stale
// entries even when no enqueue happens
func (q *QueueManager) dispatcher() {
	defer q.wg.Done()

	ticker := time.NewTicker(q.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.stopCh:
			return
		case <-q.wake:
		case <-ticker.C:
			q.sweepStale()
		}
		q.dispatchNext()
	}
}

// dispatchNext pops the next eligible, non-stale task and starts it.
// No-op while a task is already running.
func (q *QueueManager) dispatchNext() {
	q.mu.Lock()
	if q.closed || q.running != nil {
		q.mu.Unlock()
		return
	}

	var next *Task
	for len(q.heap) > 0 {
		t := heap.Pop(&q.heap).(*Task)
		if time.Since(t.EnqueuedAt) > q.cfg.MaxTaskAge {
			log.Printf("[TaskQueue] Evicting stale %s task (age %v)", t.Type, time.Since(t.EnqueuedAt).Round(time.Millisecond))
			metrics.TasksEvictedTotal.WithLabelValues("staleness").Inc()
			continue
		}
		next = t
		break
	}
	if next == nil {
		q.updateDepthGaugeLocked()
		q.mu.Unlock()
		return
	}

	if !q.runGate.TryAcquire(1) {
		// Gate still held by a finishing task; retry on its wakeup
		heap.Push(&q.heap, next)
		q.mu.Unlock()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	q.running = next
	q.runningCancel = cancel
	q.updateDepthGaugeLocked()
	q.mu.Unlock()

	go q.execute(next, ctx, cancel)
}

// execute runs a single task body and performs completion bookkeeping.
// Success, failure, and abort all release the gate and schedule the next
// task; a preempted task is re-enqueued at low priority.
func (q *QueueManager) execute(t *Task, ctx context.Context, cancel context.CancelFunc) {
	err := q.runBody(t, ctx)

	switch {
	case err == nil:
		metrics.TasksExecutedTotal.WithLabelValues(string(t.Type)).Inc()
	case errors.Is(err, context.Canceled):
		// Expected outcome of preemption or explicit cancel, not a failure
		metrics.TasksAbortedTotal.WithLabelValues(string(t.Type)).Inc()
	default:
		log.Printf("[TaskQueue] Task %s (%s) failed: %v", t.ID, t.Type, err)
		metrics.TasksFailedTotal.WithLabelValues(string(t.Type)).Inc()
	}

	cancel()

	q.mu.Lock()
	q.running = nil
	q.runningCancel = nil
	if t.preempted && !q.closed {
		t.preempted = false
		t.Priority = PriorityLow
		q.pushLocked(t)
		log.Printf("[TaskQueue] Requeued preempted %s task at low priority", t.Type)
	}
	q.updateDepthGaugeLocked()
	q.mu.Unlock()

	q.runGate.Release(1)
	q.wakeup()
}

// runBody invokes the task function, converting a panic into an error so
// a faulty body can never stop the queue
func (q *QueueManager) runBody(t *Task, ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task body panic: %v", r)
		}
	}()
	if t.Run == nil {
		return nil
	}
	return t.Run(ctx, t.Payload)
}

// maybePreemptLocked aborts the running task when a newly queued
// high-priority preemptable task outranks a preemptable running one.
// The aborted task is requeued at low priority by its completion path.
func (q *QueueManager) maybePreemptLocked(t *Task) {
	if t.Priority != PriorityHigh || q.cfg.NonPreemptable[t.Type] {
		return
	}
	if q.running == nil || q.runningCancel == nil {
		return
	}
	if q.cfg.NonPreemptable[q.running.Type] || q.running.Priority >= t.Priority {
		return
	}
	log.Printf("[TaskQueue] Preempting running %s (%s) for %s (%s)",
		q.running.Type, q.running.Priority, t.Type, t.Priority)
	q.running.preempted = true
	q.runningCancel()
}

// sweepStale culls queued entries past the staleness threshold
func (q *QueueManager) sweepStale() {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.heap[:0]
	evicted := 0
	for _, t := range q.heap {
		if time.Since(t.EnqueuedAt) > q.cfg.MaxTaskAge {
			evicted++
			metrics.TasksEvictedTotal.WithLabelValues("staleness").Inc()
			continue
		}
		kept = append(kept, t)
	}
	if evicted > 0 {
		q.heap = kept
		heap.Init(&q.heap)
		q.updateDepthGaugeLocked()
		log.Printf("[TaskQueue] Stale sweep evicted %d task(s)", evicted)
	}
}

// emergencyEvictLocked drops the oldest half of the queue when occupancy
// crosses the high-water fraction. A safety valve, not normal operation.
func (q *QueueManager) emergencyEvictLocked() {
	highWater := int(q.cfg.HighWaterFraction * float64(q.cfg.Capacity))
	if highWater < 1 || len(q.heap) <= highWater {
		return
	}

	byAge := make([]*Task, len(q.heap))
	copy(byAge, q.heap)
	sort.Slice(byAge, func(i, j int) bool {
		return byAge[i].EnqueuedAt.Before(byAge[j].EnqueuedAt)
	})

	drop := make(map[*Task]bool, len(byAge)/2)
	for _, t := range byAge[:len(byAge)/2] {
		drop[t] = true
	}

	kept := q.heap[:0]
	for _, t := range q.heap {
		if drop[t] {
			metrics.TasksEvictedTotal.WithLabelValues("backpressure").Inc()
			continue
		}
		kept = append(kept, t)
	}
	q.heap = kept
	heap.Init(&q.heap)
	q.updateDepthGaugeLocked()
	log.Printf("[TaskQueue] Emergency backpressure: evicted oldest %d task(s)", len(drop))
}

// removeQueuedLocked drops queued entries of a type. With replaceOnly,
// queue-mode entries stay: their payloads are one-shot, not recomputable.
func (q *QueueManager) removeQueuedLocked(typ TaskType, replaceOnly bool) int {
	kept := q.heap[:0]
	removed := 0
	for _, t := range q.heap {
		if t.Type == typ && (!replaceOnly || t.replaceable) {
			removed++
			continue
		}
		kept = append(kept, t)
	}
	if removed > 0 {
		q.heap = kept
		heap.Init(&q.heap)
		q.updateDepthGaugeLocked()
	}
	return removed
}

func (q *QueueManager) pushLocked(t *Task) {
	t.EnqueuedAt = time.Now()
	q.seq++
	t.seq = q.seq
	heap.Push(&q.heap, t)
	q.updateDepthGaugeLocked()
}

func (q *QueueManager) wakeup() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *QueueManager) updateDepthGaugeLocked() {
	depth := make(map[TaskType]int)
	for _, t := range q.heap {
		depth[t.Type]++
	}
	for _, typ := range []TaskType{TaskViewportFilter, TaskBearingUpdate, TaskDistanceRecompute, TaskFetchTrigger} {
		metrics.QueueDepth.WithLabelValues(string(typ)).Set(float64(depth[typ]))
	}
}

func (q *QueueManager) updateDepthGauge() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.updateDepthGaugeLocked()
}
