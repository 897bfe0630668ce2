package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"carrental/internal/config"
	"carrental/internal/domain"
	"carrental/internal/metrics"
	"carrental/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const deadLetterKey = "carrental:ledger:deadletter"

// LedgerRunner is the strict face of the ledger used for retries.
type LedgerRunner interface {
	Allocate(ctx context.Context, bookingID, guarantorID, requestID string) error
	Reverse(ctx context.Context, bookingID, reason string) error
}

// LedgerWorker replays ledger operations that failed inline.
type LedgerWorker struct {
	tasks        domain.LedgerTaskStore
	ledger       LedgerRunner
	redis        *redis.Client
	retryPolicy  RetryPolicy
	pollInterval time.Duration
	batchSize    int
	logger       *zerolog.Logger
}

func NewLedgerWorker(tasks domain.LedgerTaskStore, ledger LedgerRunner, redisClient *redis.Client, cfg config.WorkerConfig, logger *zerolog.Logger) *LedgerWorker {
	retry := RetryPolicy{
		MaxRetries:    cfg.MaxRetries,
		InitialDelay:  cfg.InitialDelay,
		MaxDelay:      cfg.MaxDelay,
		BackoffFactor: cfg.BackoffFactor,
	}
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 5 * time.Second
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 20
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &LedgerWorker{
		tasks:        tasks,
		ledger:       ledger,
		redis:        redisClient,
		retryPolicy:  retry,
		pollInterval: poll,
		batchSize:    batch,
		logger:       logger,
	}
}

// Start polls until ctx is done.
func (w *LedgerWorker) Start(ctx context.Context) {
	w.logger.Info().Dur("poll_interval", w.pollInterval).Msg("Ledger worker started")
	defer w.logger.Info().Msg("Ledger worker stopped")

	for {
		n, err := w.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("Fetch pending ledger tasks failed")
		}
		if n == w.batchSize {
			// A full batch means more may be waiting.
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.pollInterval):
		}
	}
}

// RunOnce processes one batch of due tasks and returns how many it handled.
func (w *LedgerWorker) RunOnce(ctx context.Context) (int, error) {
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}
	tasks, err := w.tasks.GetPendingLedgerTasks(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}
	metrics.SetLedgerTasks(models.TaskStatusPending, len(tasks))

	for i := range tasks {
		w.processTask(ctx, &tasks[i])
	}
	return len(tasks), nil
}

func (w *LedgerWorker) processTask(ctx context.Context, task *models.LedgerTask) {
	if err := w.handle(ctx, task); err != nil {
		var invalid *invalidTaskError
		if errors.As(err, &invalid) {
			w.failTask(ctx, task, err)
			return
		}
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.tasks.UpdateLedgerTaskStatus(ctx, task.ID, models.TaskStatusCompleted, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Mark ledger task completed failed")
		return
	}
	w.logger.Info().Int64("task_id", task.ID).Str("task_type", task.TaskType).Str("booking_id", task.BookingID).
		Msg("Ledger task replayed")
}

type invalidTaskError struct {
	msg string
}

func (e *invalidTaskError) Error() string { return e.msg }

func (w *LedgerWorker) handle(ctx context.Context, task *models.LedgerTask) error {
	if task.BookingID == "" {
		return &invalidTaskError{msg: "booking id missing"}
	}
	switch task.TaskType {
	case models.LedgerTaskAllocate:
		if task.GuarantorID == "" {
			return &invalidTaskError{msg: "guarantor id missing"}
		}
		return w.ledger.Allocate(ctx, task.BookingID, task.GuarantorID, task.RequestID)
	case models.LedgerTaskReverse:
		return w.ledger.Reverse(ctx, task.BookingID, task.Reason)
	default:
		return &invalidTaskError{msg: fmt.Sprintf("unknown task type: %s", task.TaskType)}
	}
}

func (w *LedgerWorker) retryOrFail(ctx context.Context, task *models.LedgerTask, cause error) {
	attempt := task.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		w.failTask(ctx, task, cause)
		return
	}

	next := time.Now().Add(w.retryPolicy.NextDelay(attempt))
	if err := w.tasks.UpdateLedgerTaskStatus(ctx, task.ID, models.TaskStatusRetry, cause.Error(), &next); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Mark ledger task retry failed")
		return
	}
	w.logger.Warn().Err(cause).Int64("task_id", task.ID).Int("attempt", attempt).Time("next_retry_at", next).
		Msg("Ledger task will be retried")
}

func (w *LedgerWorker) failTask(ctx context.Context, task *models.LedgerTask, cause error) {
	if err := w.tasks.UpdateLedgerTaskStatus(ctx, task.ID, models.TaskStatusFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Mark ledger task failed failed")
	}
	w.logger.Error().Err(cause).Int64("task_id", task.ID).Str("booking_id", task.BookingID).
		Msg("Ledger task gave up; run reconciliation for affected guarantors")
	w.pushDeadLetter(ctx, task, cause)
}

func (w *LedgerWorker) pushDeadLetter(ctx context.Context, task *models.LedgerTask, cause error) {
	if w.redis == nil {
		return
	}
	msg := cause.Error()
	dead := *task
	dead.Status = models.TaskStatusFailed
	dead.LastError = &msg
	data, err := json.Marshal(dead)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Encode dead letter failed")
		return
	}
	if err := w.redis.LPush(ctx, deadLetterKey, data).Err(); err != nil {
		w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("Dead letter push failed")
	}
}
