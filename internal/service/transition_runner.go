package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/ano-letivo-api/internal/models"
	appErrors "github.com/noah-isme/ano-letivo-api/pkg/errors"
	"github.com/noah-isme/ano-letivo-api/pkg/jobs"
	"github.com/noah-isme/ano-letivo-api/pkg/middleware/requestid"
)

// TransitionJobType tags transition jobs on the worker queue.
const TransitionJobType = "transicao_ano_letivo"

type runStatusStore interface {
	Save(ctx context.Context, run *models.TransitionRun) error
	Get(ctx context.Context, id string) (*models.TransitionRun, error)
}

type transitionExecutor interface {
	Run(ctx context.Context, req models.TransitionRequest, progress models.ProgressFunc) (*models.TransitionResult, error)
}

type runDispatcher interface {
	Enqueue(job jobs.Job) error
}

// TransitionRunner executes transitions on the background queue and keeps run snapshots current.
type TransitionRunner struct {
	exec   transitionExecutor
	runs   runStatusStore
	queue  runDispatcher
	logger *zap.Logger
	mu     sync.Mutex
	now    func() time.Time
}

// NewTransitionRunner constructs the runner. Attach a queue with SetQueue before submitting.
func NewTransitionRunner(exec transitionExecutor, runs runStatusStore, logger *zap.Logger) *TransitionRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransitionRunner{exec: exec, runs: runs, logger: logger, now: time.Now}
}

// SetQueue attaches the dispatcher whose handler is r.Handle.
func (r *TransitionRunner) SetQueue(queue runDispatcher) {
	r.queue = queue
}

// Submit records a queued run and hands it to the worker queue.
func (r *TransitionRunner) Submit(ctx context.Context, req models.TransitionRequest) (*models.TransitionRun, error) {
	if r.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "transition queue unavailable")
	}
	req.RunID = uuid.NewString()
	now := r.now().UTC()
	run := &models.TransitionRun{
		ID:         req.RunID,
		OriginYear: req.OriginYear,
		SchoolID:   req.SchoolID,
		OperatorID: req.OperatorID,
		DryRun:     req.DryRun,
		RequestID:  requestid.FromContext(ctx),
		Status:     models.RunStatusQueued,
		State:      models.StateNotStarted,
		Events:     []models.ProgressEvent{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := r.runs.Save(ctx, run); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record transition run")
	}
	if err := r.queue.Enqueue(jobs.Job{ID: run.ID, Type: TransitionJobType, Payload: req}); err != nil {
		run.Status = models.RunStatusFailed
		run.Error = err.Error()
		run.UpdatedAt = r.now().UTC()
		if saveErr := r.runs.Save(ctx, run); saveErr != nil {
			r.logger.Warn("failed to record rejected run", zap.String("run_id", run.ID), zap.Error(saveErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "transition queue is busy, try again later")
	}
	r.logger.Info("transition queued",
		zap.String("run_id", run.ID),
		zap.String("request_id", run.RequestID),
		zap.Int("origin_year", req.OriginYear),
		zap.String("school_id", req.SchoolID),
		zap.Bool("dry_run", req.DryRun),
	)
	return run, nil
}

// Get returns the current snapshot of a run.
func (r *TransitionRunner) Get(ctx context.Context, id string) (*models.TransitionRun, error) {
	run, err := r.runs.Get(ctx, id)
	if err != nil {
		if errors.Is(err, appErrors.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "transition run not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load transition run")
	}
	return run, nil
}

// Handle is the queue handler. Transitions are never retried automatically.
func (r *TransitionRunner) Handle(ctx context.Context, job jobs.Job) error {
	req, ok := job.Payload.(models.TransitionRequest)
	if !ok {
		return fmt.Errorf("unexpected payload %T for job %s", job.Payload, job.ID)
	}
	run, err := r.runs.Get(ctx, req.RunID)
	if err != nil {
		r.logger.Warn("run snapshot missing, recreating", zap.String("run_id", req.RunID), zap.Error(err))
		run = &models.TransitionRun{ID: req.RunID, OriginYear: req.OriginYear, SchoolID: req.SchoolID, OperatorID: req.OperatorID, DryRun: req.DryRun, CreatedAt: r.now().UTC()}
	}
	r.update(ctx, run, func(run *models.TransitionRun) {
		run.Status = models.RunStatusRunning
	})

	progress := func(event models.ProgressEvent) {
		r.update(ctx, run, func(run *models.TransitionRun) {
			run.State = event.State
			run.Events = append(run.Events, event)
		})
	}

	result, runErr := r.exec.Run(ctx, req, progress)
	r.update(ctx, run, func(run *models.TransitionRun) {
		run.Result = result
		if result != nil {
			run.State = result.State
		}
		if runErr != nil {
			appErr := appErrors.FromError(runErr)
			run.Status = models.RunStatusFailed
			run.Error = appErr.Message
			run.ErrorCode = appErr.Code
			return
		}
		run.Status = models.RunStatusSucceeded
	})
	return runErr
}

func (r *TransitionRunner) update(ctx context.Context, run *models.TransitionRun, mutate func(*models.TransitionRun)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mutate(run)
	run.UpdatedAt = r.now().UTC()
	if err := r.runs.Save(context.WithoutCancel(ctx), run); err != nil {
		r.logger.Warn("failed to save run snapshot", zap.String("run_id", run.ID), zap.Error(err))
	}
}
