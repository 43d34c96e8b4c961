package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"estate_backoffice/internal/config"
	"estate_backoffice/internal/models"
	"estate_backoffice/internal/services"
)

func main() {
	taskName := flag.String("task_name", "", "Name of the task (mandatory)")
	argsStr := flag.String("arguments", "{}", "JSON arguments for the task")
	dueStr := flag.String("due", "", "Due date (mandatory, format: 2006-01-02 15:04 or RFC3339)")
	taskType := flag.String("tasktype", string(models.ScheduledTaskTypeOneTime), "Task type: onetime or recurring")
	recurring := flag.String("recurring", "", "RRULE for recurring tasks, e.g. FREQ=DAILY;BYHOUR=8")
	maxAttempt := flag.Int("max_attempt", 3, "Max attempts")
	tenantID := flag.Uint("tenant", 0, "Tenant the task runs for (0 runs it for every tenant)")

	flag.Parse()

	if *taskName == "" || *dueStr == "" {
		fmt.Println("Usage: schedule_task -task_name <name> -due <YYYY-MM-DD HH:MM> [options]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := services.NewLogger(cfg.IsProduction())
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := cfg.RequireDatabase(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	var args map[string]interface{}
	if err := json.Unmarshal([]byte(*argsStr), &args); err != nil {
		log.Fatal("invalid JSON arguments", zap.Error(err))
	}

	due, err := time.Parse(time.RFC3339, *dueStr)
	if err != nil {
		due, err = time.ParseInLocation("2006-01-02 15:04", *dueStr, time.Local)
		if err != nil {
			log.Fatal("invalid due date, use '2006-01-02 15:04' (local) or RFC3339", zap.Error(err))
		}
	}

	kind := models.ScheduledTaskType(*taskType)
	if kind != models.ScheduledTaskTypeOneTime && kind != models.ScheduledTaskTypeRecurring {
		log.Fatal("unknown task type", zap.String("tasktype", *taskType))
	}
	var recurringPtr *string
	if *recurring != "" {
		recurringPtr = recurring
	} else if kind == models.ScheduledTaskTypeRecurring {
		log.Fatal("recurring tasks need -recurring")
	}

	db, err := services.InitDB(cfg.DatabaseURL, log, cfg.IsProduction())
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}

	task := models.ScheduledTask{
		TenantID:          *tenantID,
		TaskName:          *taskName,
		Arguments:         args,
		Due:               due,
		TaskType:          kind,
		RecurringInterval: recurringPtr,
		MaxAttempt:        *maxAttempt,
		Status:            models.ScheduledTaskStatusActive,
	}
	if err := db.Create(&task).Error; err != nil {
		log.Fatal("failed to create task", zap.Error(err))
	}

	log.Info("task scheduled",
		zap.Uint("id", task.ID),
		zap.String("task", task.TaskName),
		zap.Time("due", task.Due),
		zap.String("type", string(task.TaskType)),
		zap.Uint("tenant_id", task.TenantID),
	)
}
