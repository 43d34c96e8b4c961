package tasks

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"estate_backoffice/internal/models"
)

// LogInfoTask writes its message to the log. Useful to check a worker is alive.
type LogInfoTask struct {
	log *zap.Logger
}

// HandleExecution handles logging information
func (t *LogInfoTask) HandleExecution(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	message, ok := task.Arguments["message"].(string)
	if !ok {
		message = "No message provided"
	}
	t.log.Info("log_info task", zap.Uint("task_id", task.ID), zap.String("message", message))

	return map[string]interface{}{
		"status":  "success",
		"message": message,
	}, nil
}
