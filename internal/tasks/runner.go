package tasks

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"estate_backoffice/internal/metrics"
	"estate_backoffice/internal/models"
)

const (
	historySuccess         = "success"
	historyFailure         = "failure"
	historyHandlerNotFound = "handler_not_found"
)

// Runner executes due scheduled tasks. Several runners may poll the same table: a task
// is claimed by pushing its due time out by the lease, so only one runner executes it.
type Runner struct {
	db       *gorm.DB
	registry *Registry
	log      *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	lease    time.Duration
	batch    int
	backoff  func(attempt int) time.Duration
}

func NewRunner(db *gorm.DB, registry *Registry, log *zap.Logger, m *metrics.Metrics) *Runner {
	return &Runner{
		db:       db,
		registry: registry,
		log:      log,
		metrics:  m,
		now:      time.Now,
		lease:    10 * time.Minute,
		batch:    100,
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt*attempt) * time.Minute
		},
	}
}

// Start runs due tasks immediately and then on every tick until ctx is cancelled
func (r *Runner) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := r.RunDue(ctx); err != nil {
			r.log.Error("processing scheduled tasks failed", zap.Error(err))
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// RunDue executes every active task whose due time has passed and returns how many ran
func (r *Runner) RunDue(ctx context.Context) (int, error) {
	now := r.now()
	var pending []models.ScheduledTask
	if err := r.db.WithContext(ctx).
		Where("status = ? AND due <= ?", models.ScheduledTaskStatusActive, now).
		Order("due, id").
		Limit(r.batch).
		Find(&pending).Error; err != nil {
		return 0, fmt.Errorf("fetch pending tasks: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}
	r.log.Debug("found pending tasks", zap.Int("count", len(pending)))

	ran := 0
	for _, task := range pending {
		if ctx.Err() != nil {
			return ran, ctx.Err()
		}
		claimed, err := r.claim(ctx, task)
		if err != nil {
			return ran, err
		}
		if !claimed {
			continue
		}
		r.execute(ctx, task)
		ran++
	}
	return ran, nil
}

func (r *Runner) claim(ctx context.Context, task models.ScheduledTask) (bool, error) {
	now := r.now()
	res := r.db.WithContext(ctx).Model(&models.ScheduledTask{}).
		Where("id = ? AND status = ? AND due <= ?", task.ID, models.ScheduledTaskStatusActive, now).
		Update("due", now.Add(r.lease))
	if res.Error != nil {
		return false, fmt.Errorf("claim task %d: %w", task.ID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *Runner) execute(ctx context.Context, task models.ScheduledTask) {
	log := r.log.With(zap.Uint("task_id", task.ID), zap.String("task", task.TaskName))
	db := r.db.WithContext(ctx)
	attempt := task.Attempts + 1
	startTime := r.now()

	handler, found := r.registry.Get(task.TaskName)
	if !found {
		log.Error("task handler not found, marking as failure")
		r.writeHistory(db, task, startTime, 0, historyHandlerNotFound, attempt,
			map[string]interface{}{"error": "handler not found"})
		r.metrics.ObserveTask(task.TaskName, historyHandlerNotFound)
		r.update(db, task, map[string]interface{}{
			"status":     models.ScheduledTaskStatusFailure,
			"last_run":   &startTime,
			"attempts":   attempt,
			"last_error": "handler not found",
		})
		return
	}

	result, err := r.safeRun(ctx, handler, task)
	runtimeMs := int(r.now().Sub(startTime).Milliseconds())

	status := historySuccess
	resultData := result
	if err != nil {
		status = historyFailure
		if resultData == nil {
			resultData = map[string]interface{}{}
		}
		resultData["error"] = err.Error()
		log.Warn("task failed", zap.Int("attempt", attempt), zap.Error(err))
	} else {
		log.Info("task completed", zap.Int("runtime_ms", runtimeMs))
	}
	r.writeHistory(db, task, startTime, runtimeMs, status, attempt, resultData)
	r.metrics.ObserveTask(task.TaskName, status)

	updates := map[string]interface{}{"last_run": &startTime}
	if err == nil {
		updates["attempts"] = 0
		updates["last_error"] = ""
		r.finish(task, startTime, updates)
	} else if IsPermanent(err) || attempt >= task.MaxAttempt {
		updates["last_error"] = err.Error()
		if task.TaskType == models.ScheduledTaskTypeRecurring {
			// A bad run does not stop later occurrences
			updates["attempts"] = 0
			r.finish(task, startTime, updates)
		} else {
			updates["attempts"] = attempt
			updates["status"] = models.ScheduledTaskStatusFailure
		}
	} else {
		updates["attempts"] = attempt
		updates["last_error"] = err.Error()
		updates["status"] = models.ScheduledTaskStatusActive
		updates["due"] = startTime.Add(r.backoff(attempt))
	}
	r.update(db, task, updates)
}

// finish sets the status after a completed run: one-time tasks are done, recurring
// tasks move to their next occurrence.
func (r *Runner) finish(task models.ScheduledTask, ranAt time.Time, updates map[string]interface{}) {
	if task.TaskType != models.ScheduledTaskTypeRecurring {
		updates["status"] = models.ScheduledTaskStatusDone
		return
	}
	nextDue := task.NextDue(ranAt)
	// the next due must move forward, otherwise the task would run repeatedly
	if nextDue.After(task.Due) {
		updates["status"] = models.ScheduledTaskStatusActive
		updates["due"] = nextDue
		return
	}
	updates["status"] = models.ScheduledTaskStatusDone
}

func (r *Runner) safeRun(ctx context.Context, handler TaskHandler, task models.ScheduledTask) (result map[string]interface{}, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = Permanent(fmt.Errorf("task panicked: %v", p))
		}
	}()
	return handler(ctx, r.db.WithContext(ctx), task)
}

func (r *Runner) writeHistory(db *gorm.DB, task models.ScheduledTask, runAt time.Time, runtimeMs int, status string, attempt int, result map[string]interface{}) {
	history := models.ScheduledTaskHistory{
		ScheduledTaskID: task.ID,
		TaskName:        task.TaskName,
		RunAt:           runAt,
		Runtime:         runtimeMs,
		Status:          status,
		AttemptNumber:   attempt,
		Arguments:       task.Arguments,
		Result:          result,
	}
	if err := db.Create(&history).Error; err != nil {
		r.log.Error("failed to write task history", zap.Uint("task_id", task.ID), zap.Error(err))
	}
}

func (r *Runner) update(db *gorm.DB, task models.ScheduledTask, updates map[string]interface{}) {
	if err := db.Model(&models.ScheduledTask{}).Where("id = ?", task.ID).Updates(updates).Error; err != nil {
		r.log.Error("failed to update task", zap.Uint("task_id", task.ID), zap.Error(err))
	}
}
