package taskqueue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TaskType tags a scheduled unit of recomputation. The set is closed:
// every task the orchestrator enqueues is one of these.
type TaskType string

const (
	TaskViewportFilter    TaskType = "viewport-filter"
	TaskBearingUpdate     TaskType = "bearing-update"
	TaskDistanceRecompute TaskType = "distance-recompute"
	TaskFetchTrigger      TaskType = "fetch-trigger"
)

// Priority orders tasks in the heap; higher values run first
type Priority int

const (
	PriorityLow    Priority = 0
	PriorityNormal Priority = 1
	PriorityHigh   Priority = 2
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	default:
		return "low"
	}
}

// Mode selects the enqueue semantics
type Mode int

const (
	// ModeReplace debounces per task type; the latest payload wins and any
	// queued-but-not-running task of the same type is discarded
	ModeReplace Mode = iota
	// ModeQueue pushes immediately, bounded by queue capacity; overflow
	// drops the task rather than blocking the caller
	ModeQueue
)

// TaskFunc is a task body. It must honor ctx cancellation at its yield
// points and exit promptly, producing no output, when aborted.
type TaskFunc func(ctx context.Context, payload interface{}) error

// Task is one scheduled unit of work
type Task struct {
	ID       string
	Type     TaskType
	Priority Priority
	Payload  interface{}
	Run      TaskFunc

	// EnqueuedAt is when the task entered the heap; staleness eviction
	// and emergency backpressure both key off it
	EnqueuedAt time.Time

	seq       uint64
	preempted bool

	// replaceable marks tasks enqueued in ModeReplace; only those are
	// displaced by a later same-type replace enqueue. ModeQueue tasks
	// carry one-shot payloads and are never coalesced away.
	replaceable bool
}

func newTask(typ TaskType, priority Priority, payload interface{}, run TaskFunc) *Task {
	return &Task{
		ID:       "task_" + uuid.NewString(),
		Type:     typ,
		Priority: priority,
		Payload:  payload,
		Run:      run,
	}
}

// taskHeap is a max-heap by (priority, arrival): higher priority first,
// earlier arrival first within a priority class
type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	if !h[i].EnqueuedAt.Equal(h[j].EnqueuedAt) {
		return h[i].EnqueuedAt.Before(h[j].EnqueuedAt)
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h *taskHeap) Push(x interface{}) {
	*h = append(*h, x.(*Task))
}

func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}
