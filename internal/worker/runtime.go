// Package worker implements the typed background task runtime: a single
// queue of allocate/synthesize/process_queue/reclaim_idle/expire_lots
// tasks, run with jittered retry, plus the periodic beats that keep the
// Elastic Slot Manager and Credit Ledger draining on their own.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/duskvoice/narrator/internal/telemetry"
	"github.com/duskvoice/narrator/pkg/blobstore"
	"github.com/duskvoice/narrator/pkg/ledger"
	"github.com/duskvoice/narrator/pkg/slotmanager"
	"github.com/duskvoice/narrator/pkg/synthesis"
)

// Runtime drives background work for narrator's worker mode. It
// implements slotmanager.Dispatcher and synthesis.Dispatcher so the
// synchronous orchestration code in pkg/slotmanager and pkg/synthesis can
// hand off async work without importing this package.
type Runtime struct {
	logger *slog.Logger

	slots  *slotmanager.Manager
	synth  *synthesis.Orchestrator
	ledger *ledger.Service
	blobs  blobstore.Store

	providers []string
	tasks     chan Task

	maxRetries         uint
	queuePollInterval  time.Duration
	reclaimInterval    time.Duration
	expireLotsInterval time.Duration
}

// Config groups Runtime's tunables, mirroring internal/config.Config's
// worker fields so callers can pass them through without restating them.
type Config struct {
	MaxRetries         int
	QueuePollInterval  time.Duration
	ReclaimInterval    time.Duration
	ExpireLotsInterval time.Duration
	QueueDepth         int
}

// NewRuntime constructs a Runtime. providers lists every TTS provider
// key the process/reclaim beats should sweep each cycle.
func NewRuntime(logger *slog.Logger, slots *slotmanager.Manager, synth *synthesis.Orchestrator, ledgerSvc *ledger.Service, blobs blobstore.Store, providers []string, cfg Config) *Runtime {
	depth := cfg.QueueDepth
	if depth <= 0 {
		depth = 256
	}
	expireInterval := cfg.ExpireLotsInterval
	if expireInterval <= 0 {
		expireInterval = 24 * time.Hour
	}
	return &Runtime{
		logger:             logger,
		slots:              slots,
		synth:              synth,
		ledger:             ledgerSvc,
		blobs:              blobs,
		providers:          providers,
		tasks:              make(chan Task, depth),
		maxRetries:         uint(cfg.MaxRetries),
		queuePollInterval:  cfg.QueuePollInterval,
		reclaimInterval:    cfg.ReclaimInterval,
		expireLotsInterval: expireInterval,
	}
}

// DispatchAllocate implements slotmanager.Dispatcher.
func (r *Runtime) DispatchAllocate(ctx context.Context, voiceID uuid.UUID) error {
	return r.enqueue(ctx, Task{Type: TaskAllocate, VoiceID: voiceID})
}

// DispatchSynthesize implements synthesis.Dispatcher.
func (r *Runtime) DispatchSynthesize(ctx context.Context, jobID uuid.UUID) error {
	return r.enqueue(ctx, Task{Type: TaskSynthesize, JobID: jobID})
}

func (r *Runtime) enqueue(ctx context.Context, t Task) error {
	select {
	case r.tasks <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	// The channel is momentarily full; hand the enqueue to a goroutine
	// rather than blocking the caller, which is usually an HTTP handler.
	go func() {
		select {
		case r.tasks <- t:
		case <-time.After(10 * time.Second):
			r.logger.Warn("dropping task, runtime queue stayed full", "task", t.String())
		}
	}()
	return nil
}

// Run starts workerCount task-processing goroutines and the periodic
// beats, blocking until ctx is cancelled.
func (r *Runtime) Run(ctx context.Context, workerCount int) error {
	if workerCount < 1 {
		workerCount = 1
	}
	r.logger.Info("worker runtime started", "workers", workerCount, "providers", r.providers)

	done := make(chan struct{})
	for i := 0; i < workerCount; i++ {
		go r.drain(ctx, done)
	}

	go r.runBeat(ctx, "process_queue", r.queuePollInterval, r.enqueueProcessQueueTasks)
	go r.runBeat(ctx, "reclaim_idle", r.reclaimInterval, r.enqueueReclaimTasks)
	go r.runBeat(ctx, "expire_lots", r.expireLotsInterval, func(ctx context.Context) {
		_ = r.enqueue(ctx, Task{Type: TaskExpireLots})
	})

	<-ctx.Done()
	r.logger.Info("worker runtime stopping")
	for i := 0; i < workerCount; i++ {
		<-done
	}
	return nil
}

func (r *Runtime) drain(ctx context.Context, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-r.tasks:
			r.runWithRetry(ctx, t)
		}
	}
}

func (r *Runtime) enqueueProcessQueueTasks(ctx context.Context) {
	for _, p := range r.providers {
		_ = r.enqueue(ctx, Task{Type: TaskProcessQueue, Provider: p})
	}
}

func (r *Runtime) enqueueReclaimTasks(ctx context.Context) {
	for _, p := range r.providers {
		_ = r.enqueue(ctx, Task{Type: TaskReclaimIdle, Provider: p})
	}
}

// runBeat fires fn immediately and then on every tick of interval until
// ctx is cancelled.
func (r *Runtime) runBeat(ctx context.Context, name string, interval time.Duration, fn func(context.Context)) {
	if interval <= 0 {
		return
	}
	r.logger.Info("beat started", "beat", name, "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	fn(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// runWithRetry executes one task with jittered exponential backoff,
// recording the outcome metric once the task either succeeds or
// exhausts its retries.
func (r *Runtime) runWithRetry(ctx context.Context, t Task) {
	operation := func() (struct{}, error) {
		return struct{}{}, r.execute(ctx, t)
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(r.retriesFor(t)),
	)

	outcome := "success"
	if err != nil {
		outcome = "failure"
		r.logger.Error("worker task failed", "task", t.String(), "error", err)
	}
	telemetry.WorkerTaskOutcomeTotal.WithLabelValues(string(t.Type), outcome).Inc()
}

// retriesFor caps beat-driven tasks at a single attempt: they re-run on
// their own schedule, so retrying them here would just duplicate work
// the next tick already does.
func (r *Runtime) retriesFor(t Task) uint {
	switch t.Type {
	case TaskProcessQueue, TaskReclaimIdle, TaskExpireLots:
		return 1
	default:
		if r.maxRetries == 0 {
			return 1
		}
		return r.maxRetries
	}
}

func (r *Runtime) execute(ctx context.Context, t Task) error {
	switch t.Type {
	case TaskAllocate:
		return r.slots.Allocate(ctx, t.VoiceID, r.blobs.Get)

	case TaskSynthesize:
		return r.synth.SynthesizeWorker(ctx, t.JobID)

	case TaskProcessQueue:
		if _, err := r.slots.ProcessQueue(ctx, t.Provider); err != nil {
			return fmt.Errorf("processing queue for %s: %w", t.Provider, err)
		}
		return r.slots.ReportOccupancy(ctx, t.Provider)

	case TaskReclaimIdle:
		_, err := r.slots.ReclaimIdle(ctx, t.Provider)
		return err

	case TaskExpireLots:
		_, err := r.ledger.ExpireNow(ctx, nil, time.Now())
		return err

	default:
		return backoff.Permanent(errors.New("unknown task type: " + string(t.Type)))
	}
}
