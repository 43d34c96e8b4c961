// Package reconcile cancels sales, transfers them between plots and tracks refunds.
//
// Each operation runs in a single database transaction under a per-record lock and
// is recorded as a ReconciliationWorkflow keyed by an idempotency key. Replaying a
// completed key returns the stored result without writing anything.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"estate_backoffice/internal/metrics"
	"estate_backoffice/internal/models"
	"estate_backoffice/internal/outbox"
	"estate_backoffice/internal/services"
)

// Option configures an Engine
type Option func(*Engine)

// WithLocker replaces the default in-process locker
func WithLocker(l services.Locker) Option {
	return func(e *Engine) { e.locker = l }
}

// WithCache sets the cache invalidated after every committed operation
func WithCache(c services.TenantCacheInvalidator) Option {
	return func(e *Engine) { e.cache = c }
}

// WithMetrics sets the metrics sink
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock sets the time source
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIdempotencyWindow sets the bucket used for derived idempotency keys
func WithIdempotencyWindow(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.window = d
		}
	}
}

// WithLockTTL sets how long a record lock may be held
func WithLockTTL(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.lockTTL = d
		}
	}
}

// WithNotifyMaxAttempt sets max_attempt on enqueued notifications
func WithNotifyMaxAttempt(n int) Option {
	return func(e *Engine) { e.notifyMaxAttempt = n }
}

// Engine executes reconciliation operations
type Engine struct {
	db      *gorm.DB
	log     *zap.Logger
	locker  services.Locker
	cache   services.TenantCacheInvalidator
	metrics *metrics.Metrics
	now     func() time.Time

	window           time.Duration
	lockTTL          time.Duration
	notifyMaxAttempt int
}

// NewEngine creates an Engine
func NewEngine(db *gorm.DB, log *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		db:               db,
		log:              log,
		locker:           services.NewLocalLocker(),
		now:              time.Now,
		window:           5 * time.Minute,
		lockTTL:          30 * time.Second,
		notifyMaxAttempt: 3,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Result is what an operation produced
type Result struct {
	Workflow      models.ReconciliationWorkflow `json:"workflow"`
	CancelledSale *models.CancelledSale         `json:"cancelled_sale,omitempty"`
	NewClient     *models.Client                `json:"new_client,omitempty"`
	Payment       *models.Payment               `json:"payment,omitempty"`
	Expenses      []models.Expense              `json:"expenses,omitempty"`
	Retained      decimal.Decimal               `json:"retained"`
	Replayed      bool                          `json:"replayed"`
}

type operation struct {
	kind      models.WorkflowOperation
	actor     models.Actor
	key       string
	request   interface{}
	subjectID uint
	lockKeys  []string
	validate  func() error
	prepare   func(wf *models.ReconciliationWorkflow)
	run       func(tx *gorm.DB, wf *models.ReconciliationWorkflow, res *Result) error
}

var errDuplicateWorkflow = errors.New("workflow already exists")

func (e *Engine) execute(ctx context.Context, op operation) (*Result, error) {
	started := time.Now()
	outcome := metrics.ResultFailed
	defer func() {
		e.metrics.ObserveReconciliation(string(op.kind), outcome, time.Since(started))
	}()

	if err := op.validate(); err != nil {
		outcome = metrics.ResultRejected
		return nil, err
	}

	hash, body, err := RequestHash(op.kind, op.request)
	if err != nil {
		return nil, err
	}
	key, err := normalizeKey(op.key)
	if err != nil {
		outcome = metrics.ResultRejected
		return nil, err
	}
	if key == "" {
		key = DeriveKey(op.actor, op.kind, op.subjectID, hash, e.now(), e.window)
	}

	unlock, err := e.lockAll(ctx, op.lockKeys)
	if err != nil {
		if errors.Is(err, ErrWorkflowInProgress) {
			outcome = metrics.ResultConflict
		}
		return nil, err
	}
	defer unlock()

	prev, err := e.findWorkflow(ctx, op.actor.TenantID, key)
	if err != nil {
		return nil, err
	}
	if prev != nil {
		if prev.RequestHash != hash || prev.Operation != op.kind {
			outcome = metrics.ResultConflict
			return nil, ErrIdempotencyConflict
		}
		switch prev.Status {
		case models.WorkflowStatusCompleted:
			outcome = metrics.ResultReplayed
			return e.replay(ctx, prev)
		case models.WorkflowStatusRunning:
			outcome = metrics.ResultConflict
			return nil, ErrWorkflowInProgress
		}
	}

	base := models.ReconciliationWorkflow{
		TenantID:       op.actor.TenantID,
		IdempotencyKey: key,
		RequestHash:    hash,
		Operation:      op.kind,
		OperatorID:     op.actor.UserID,
		Request:        datatypes.JSON(body),
	}
	if prev != nil {
		base.ID = prev.ID
		base.CreatedAt = prev.CreatedAt
	}
	if op.prepare != nil {
		op.prepare(&base)
	}

	wf := base
	res := &Result{}
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		wf.Status = models.WorkflowStatusRunning
		if wf.ID == 0 {
			if err := tx.Create(&wf).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return errDuplicateWorkflow
				}
				return &StepError{Step: "open_workflow", Err: err}
			}
		} else if err := tx.Save(&wf).Error; err != nil {
			return &StepError{Step: "open_workflow", Err: err}
		}

		if err := op.run(tx, &wf, res); err != nil {
			return err
		}

		completedAt := e.now()
		wf.Status = models.WorkflowStatusCompleted
		wf.CompletedAt = &completedAt
		wf.Error = ""
		if err := tx.Save(&wf).Error; err != nil {
			return &StepError{Step: "complete_workflow", Err: err}
		}
		return nil
	})

	if err != nil {
		if errors.Is(err, errDuplicateWorkflow) {
			// A concurrent request with the same key committed first
			existing, findErr := e.findWorkflow(ctx, op.actor.TenantID, key)
			if findErr == nil && existing != nil && existing.Status == models.WorkflowStatusCompleted && existing.RequestHash == hash {
				outcome = metrics.ResultReplayed
				return e.replay(ctx, existing)
			}
			outcome = metrics.ResultConflict
			return nil, ErrWorkflowInProgress
		}

		var stepErr *StepError
		if errors.As(err, &stepErr) {
			e.recordFailure(ctx, base, wf.Steps, stepErr)
			e.log.Error("reconciliation failed",
				zap.String("operation", string(op.kind)),
				zap.Uint("tenant_id", op.actor.TenantID),
				zap.String("idempotency_key", key),
				zap.String("step", stepErr.Step),
				zap.Error(stepErr.Err),
			)
			return nil, err
		}

		outcome = metrics.ResultRejected
		return nil, err
	}

	outcome = metrics.ResultCompleted
	res.Workflow = wf
	if res.CancelledSale != nil {
		res.Retained = res.CancelledSale.Retained()
	}
	for _, exp := range res.Expenses {
		e.metrics.AddRefundExpense(exp.Amount)
	}
	if e.cache != nil {
		e.cache.InvalidateTenant(ctx, op.actor.TenantID)
	}

	e.log.Info("reconciliation completed",
		zap.String("operation", string(op.kind)),
		zap.Uint("tenant_id", op.actor.TenantID),
		zap.Uint("operator_id", op.actor.UserID),
		zap.Uint("workflow_id", wf.ID),
		zap.Int("steps", len(wf.Steps)),
	)
	return res, nil
}

// step runs fn and logs it on wf. A failure is a datastore error and aborts the transaction.
func (e *Engine) step(wf *models.ReconciliationWorkflow, name string, fn func() (string, error)) error {
	detail, err := fn()
	if err != nil {
		return &StepError{Step: name, Err: err}
	}
	wf.AddStep(name, models.StepStatusDone, detail, e.now())
	return nil
}

func (e *Engine) lockAll(ctx context.Context, keys []string) (func(), error) {
	var unlocks []func()
	release := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}

	for _, key := range keys {
		unlock, err := e.locker.Lock(ctx, key, e.lockTTL)
		if err != nil {
			release()
			if errors.Is(err, services.ErrLockBusy) {
				return nil, ErrWorkflowInProgress
			}
			return nil, fmt.Errorf("acquire lock: %w", err)
		}
		unlocks = append(unlocks, unlock)
	}
	return release, nil
}

func (e *Engine) findWorkflow(ctx context.Context, tenantID uint, key string) (*models.ReconciliationWorkflow, error) {
	var wf models.ReconciliationWorkflow
	err := e.db.WithContext(ctx).
		Where("tenant_id = ? AND idempotency_key = ?", tenantID, key).
		First(&wf).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load workflow: %w", err)
	}
	return &wf, nil
}

// recordFailure persists the failed run outside the rolled-back transaction
func (e *Engine) recordFailure(ctx context.Context, base models.ReconciliationWorkflow, steps []models.WorkflowStep, stepErr *StepError) {
	failed := base
	failed.Status = models.WorkflowStatusFailed
	failed.Error = stepErr.Error()
	failed.Steps = make([]models.WorkflowStep, 0, len(steps)+1)
	for _, s := range steps {
		if s.Status == models.StepStatusDone {
			s.Status = models.StepStatusRolledBack
		}
		failed.Steps = append(failed.Steps, s)
	}
	failed.AddStep(stepErr.Step, models.StepStatusFailed, stepErr.Err.Error(), e.now())

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	db := e.db.WithContext(ctx)
	var err error
	if failed.ID == 0 {
		err = db.Create(&failed).Error
	} else {
		err = db.Save(&failed).Error
	}
	if err != nil {
		e.log.Error("record failed workflow", zap.String("idempotency_key", failed.IdempotencyKey), zap.Error(err))
	}
}

func (e *Engine) replay(ctx context.Context, wf *models.ReconciliationWorkflow) (*Result, error) {
	db := e.db.WithContext(ctx)
	res := &Result{Workflow: *wf, Replayed: true}

	if id := wf.Result.CancelledSaleID; id != 0 {
		var cs models.CancelledSale
		if err := db.First(&cs, id).Error; err != nil {
			return nil, fmt.Errorf("load cancelled sale: %w", err)
		}
		res.CancelledSale = &cs
		res.Retained = cs.Retained()
	}
	if id := wf.Result.NewClientID; id != 0 {
		var c models.Client
		if err := db.First(&c, id).Error; err != nil {
			return nil, fmt.Errorf("load client: %w", err)
		}
		res.NewClient = &c
	}
	if id := wf.Result.PaymentID; id != 0 {
		var p models.Payment
		if err := db.First(&p, id).Error; err != nil {
			return nil, fmt.Errorf("load payment: %w", err)
		}
		res.Payment = &p
	}
	if len(wf.Result.ExpenseIDs) > 0 {
		if err := db.Where("id IN ?", wf.Result.ExpenseIDs).Order("id").Find(&res.Expenses).Error; err != nil {
			return nil, fmt.Errorf("load expenses: %w", err)
		}
	}

	e.log.Info("reconciliation replayed",
		zap.String("operation", string(wf.Operation)),
		zap.Uint("tenant_id", wf.TenantID),
		zap.Uint("workflow_id", wf.ID),
	)
	return res, nil
}

func lockPlot(tx *gorm.DB, tenantID, plotID uint) (*models.Plot, error) {
	var plot models.Plot
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND tenant_id = ?", plotID, tenantID).
		First(&plot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("plot %d: %w", plotID, ErrNotFound)
	}
	if err != nil {
		return nil, &StepError{Step: "load_plot", Err: err}
	}
	return &plot, nil
}

func lockClient(tx *gorm.DB, tenantID, clientID uint) (*models.Client, error) {
	var client models.Client
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND tenant_id = ?", clientID, tenantID).
		First(&client).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("client %d: %w", clientID, ErrNotFound)
	}
	if err != nil {
		return nil, &StepError{Step: "load_sale", Err: err}
	}
	return &client, nil
}

func lockCancelledSale(tx *gorm.DB, tenantID, id uint) (*models.CancelledSale, error) {
	var cs models.CancelledSale
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		First(&cs).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("cancelled sale %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, &StepError{Step: "load_cancelled_sale", Err: err}
	}
	return &cs, nil
}

// refundExpense builds the ledger row for a refund disbursement
func refundExpense(actor models.Actor, cs *models.CancelledSale, amount decimal.Decimal, status models.ExpenseStatus, wfID uint, at time.Time) models.Expense {
	csID := cs.ID
	return models.Expense{
		TenantID:    actor.TenantID,
		Category:    models.ExpenseCategoryRefund,
		Amount:      amount,
		Description: fmt.Sprintf("Refund to %s - Plot %s", cs.ClientName, cs.PlotNumber),
		ExpenseDate: at,
		Notes: fmt.Sprintf("Cancelled sale #%d (client #%d). Total paid %s, net refund %s.",
			cs.ID, cs.ClientID, cs.TotalPaid.StringFixed(2), cs.NetRefund.StringFixed(2)),
		Status:          status,
		CancelledSaleID: &csID,
		WorkflowID:      &wfID,
		RecordedBy:      actor.UserID,
	}
}

// notify enqueues a notification to the tenant's admins and, when given, the buyer
func (e *Engine) notify(tx *gorm.DB, tenantID uint, buyer *models.Client, subject, template string, vars map[string]string) (string, error) {
	recipients, err := outbox.AdminRecipients(tx, tenantID)
	if err != nil {
		return "", err
	}
	if buyer != nil {
		if r, ok := outbox.ClientRecipient(*buyer); ok {
			recipients = append(recipients, r)
		}
	}

	task, err := outbox.Enqueue(tx, tenantID, outbox.NotificationArgs{
		Recipients: recipients,
		Template:   template,
		Subject:    subject,
		Vars:       vars,
	}, e.now(), e.notifyMaxAttempt)
	if err != nil {
		return "", err
	}
	if task == nil {
		return "no recipients", nil
	}
	return fmt.Sprintf("task %d for %d recipients", task.ID, len(recipients)), nil
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}
