// Package worker executes queued archive runs and records their outcome.
package worker

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/page-archiver/internal/archive"
	"github.com/JakeFAU/page-archiver/internal/metrics"
)

// Archiver runs one page through the archive state machine.
type Archiver interface {
	Archive(ctx context.Context, req archive.Request) (archive.Result, error)
}

// Worker consumes queue items and drives each run to a terminal status.
type Worker struct {
	queue    archive.Queue
	runs     archive.RunStore
	archiver Archiver
	clock    archive.Clock
	logger   *zap.Logger
}

// New constructs a Worker.
func New(
	queue archive.Queue,
	runs archive.RunStore,
	archiver Archiver,
	clock archive.Clock,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Worker{
		queue:    queue,
		runs:     runs,
		archiver: archiver,
		clock:    clock,
		logger:   logger,
	}
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued run", zap.String("run_id", item.RunID))
		w.processRun(ctx, item)
	}
}

func (w *Worker) processRun(ctx context.Context, item archive.QueueItem) {
	log := w.logger.With(zap.String("run_id", item.RunID), zap.String("url", item.Request.URL))

	run, err := w.runs.GetRun(ctx, item.RunID)
	if err != nil {
		log.Error("load run failed", zap.Error(err))
		return
	}
	if run.Status.IsTerminal() {
		log.Warn("run already finished", zap.String("status", string(run.Status)))
		return
	}

	started := w.clock.Now()
	run.Status = archive.RunStatusRunning
	run.Started = &started
	if err := w.runs.UpdateRun(ctx, run); err != nil {
		log.Error("update run status failed", zap.Error(err))
		return
	}

	metrics.IncActiveRuns()
	req := item.Request
	if req.Prefix == "" {
		req.Prefix = item.RunID
	}
	result, archiveErr := w.archiver.Archive(ctx, req)
	metrics.DecActiveRuns()

	run = finalize(ctx, run, result, archiveErr)
	finished := w.clock.Now()
	run.Finished = &finished

	// The record must reach a terminal status even when shutdown canceled ctx.
	if err := w.runs.UpdateRun(context.WithoutCancel(ctx), run); err != nil {
		log.Error("final run status update failed", zap.Error(err))
		return
	}
	log.Info("run finished",
		zap.String("status", string(run.Status)),
		zap.String("state", string(run.State)),
		zap.Int("stored", run.Counters.Stored),
		zap.Int("skipped", run.Counters.Skipped),
	)
}

// finalize folds an archive outcome into the run record.
func finalize(ctx context.Context, run archive.Run, result archive.Result, err error) archive.Run {
	run.State = result.State
	run.IndexURL = result.IndexURL
	run.Manifest = result.Manifest
	run.Counters = archive.RunCounters{
		Discovered: result.Discovered,
		Stored:     len(result.Manifest),
		Skipped:    len(result.Skipped),
	}

	switch {
	case err == nil:
		run.Status = archive.RunStatusSucceeded
		run.ErrorText = ""
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		run.Status = archive.RunStatusCanceled
		run.ErrorText = err.Error()
	default:
		run.Status = archive.RunStatusFailed
		run.ErrorText = err.Error()
	}
	return run
}
