// Package worker provides the fire-and-forget analysis queue. The
// recording host enqueues a finished session's file; analysis runs on a
// background worker and the result comes back as an event, never by
// blocking the caller.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tailcut/tailcut/internal/session"
)

// Static errors for queue operations.
var (
	// ErrQueueFull is returned when the task buffer has no room.
	ErrQueueFull = errors.New("worker: analysis queue is full")
	// ErrQueueClosed is returned when enqueueing after shutdown began.
	ErrQueueClosed = errors.New("worker: analysis queue is shut down")
)

// TaskStatus represents the state of an analysis task.
type TaskStatus string

const (
	// StatusQueued means the task is waiting for a worker.
	StatusQueued TaskStatus = "QUEUED"
	// StatusRunning means a worker is analyzing the recording.
	StatusRunning TaskStatus = "RUNNING"
	// StatusCompleted means analysis finished, successfully or not.
	StatusCompleted TaskStatus = "COMPLETED"
	// StatusFailed means analysis returned an error.
	StatusFailed TaskStatus = "FAILED"
)

// Task is one queued analysis of one recording. Each file is enqueued at
// most once by the caller, which is what makes concurrent splits of the
// same path impossible.
type Task struct {
	ID        string
	SessionID string
	FilePath  string
	Status    TaskStatus

	EnqueuedAt  time.Time
	StartedAt   time.Time
	CompletedAt time.Time

	// Outcome is set when Status is COMPLETED.
	Outcome *session.Outcome
	// Err is set when Status is FAILED.
	Err error
}

// Event is delivered on the events channel when a task reaches a
// terminal status.
type Event struct {
	Task Task
}

// Analyzer is the slice of the session service the queue drives.
type Analyzer interface {
	AnalyzeRecording(ctx context.Context, sessionID, filePath string) (*session.Outcome, error)
}

// Queue runs analyses on a fixed pool of background workers.
type Queue struct {
	analyzer Analyzer
	logger   *slog.Logger
	workers  int

	tasks  chan *Task
	events chan Event

	mu     sync.RWMutex
	byID   map[string]*Task
	closed bool

	wg sync.WaitGroup
}

// NewQueue creates a Queue with the given worker count and task buffer.
// Non-positive values fall back to 1 worker and a 16-task buffer.
func NewQueue(analyzer Analyzer, workers, buffer int, logger *slog.Logger) *Queue {
	if workers < 1 {
		workers = 1
	}
	if buffer < 1 {
		buffer = 16
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		analyzer: analyzer,
		logger:   logger,
		workers:  workers,
		tasks:    make(chan *Task, buffer),
		events:   make(chan Event, buffer),
		byID:     make(map[string]*Task),
	}
}

// Start launches the worker pool. Workers exit when the queue is shut
// down or ctx is cancelled.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
	q.logger.Info("analysis queue started",
		slog.Int("workers", q.workers),
	)
}

// Enqueue schedules a recording for analysis and returns the task ID.
// It never blocks: a full buffer returns ErrQueueFull.
func (q *Queue) Enqueue(sessionID, filePath string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return "", ErrQueueClosed
	}

	task := &Task{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		FilePath:   filePath,
		Status:     StatusQueued,
		EnqueuedAt: time.Now(),
	}

	select {
	case q.tasks <- task:
	default:
		return "", ErrQueueFull
	}

	q.byID[task.ID] = task

	q.logger.Info("analysis enqueued",
		slog.String("task_id", task.ID),
		slog.String("session_id", sessionID),
		slog.String("path", filePath),
	)
	return task.ID, nil
}

// Events returns the channel terminal task states are delivered on. The
// host must keep consuming it; workers block publishing once the buffer
// fills. The channel is closed after Shutdown completes.
func (q *Queue) Events() <-chan Event {
	return q.events
}

// Get retrieves a snapshot of a task by ID.
func (q *Queue) Get(id string) (Task, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	task, ok := q.byID[id]
	if !ok {
		return Task{}, false
	}
	return *task, true
}

// Shutdown stops accepting tasks, waits for in-flight analyses to finish
// and closes the events channel. It returns ctx's error if the wait is
// cut short.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		close(q.events)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// worker drains the task channel until it is closed or ctx is cancelled.
func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()

	for {
		select {
		case task, ok := <-q.tasks:
			if !ok {
				return
			}
			q.process(ctx, task)
		case <-ctx.Done():
			return
		}
	}
}

// process runs one analysis and publishes its terminal event. Failures
// are reported on the events channel, never swallowed.
func (q *Queue) process(ctx context.Context, task *Task) {
	q.setStatus(task, StatusRunning)

	outcome, err := q.analyzer.AnalyzeRecording(ctx, task.SessionID, task.FilePath)

	q.mu.Lock()
	task.CompletedAt = time.Now()
	if err != nil {
		task.Status = StatusFailed
		task.Err = err
	} else {
		task.Status = StatusCompleted
		task.Outcome = outcome
	}
	snapshot := *task
	q.mu.Unlock()

	if err != nil {
		q.logger.Error("analysis failed",
			slog.String("task_id", task.ID),
			slog.String("session_id", task.SessionID),
			slog.String("error", err.Error()),
		)
	} else {
		q.logger.Info("analysis completed",
			slog.String("task_id", task.ID),
			slog.String("session_id", task.SessionID),
			slog.Bool("silence_detected", outcome.SilenceDetected),
		)
	}

	q.events <- Event{Task: snapshot}
}

// setStatus updates a task's status under the lock.
func (q *Queue) setStatus(task *Task, status TaskStatus) {
	q.mu.Lock()
	defer q.mu.Unlock()
	task.Status = status
	if status == StatusRunning {
		task.StartedAt = time.Now()
	}
}
