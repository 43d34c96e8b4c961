package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/teambition/rrule-go"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"estate_backoffice/internal/metrics"
	"estate_backoffice/internal/models"
	"estate_backoffice/internal/outbox"
)

// SalesService records sales and the payments made against them
type SalesService struct {
	db               *gorm.DB
	log              *zap.Logger
	cache            TenantCacheInvalidator
	metrics          *metrics.Metrics
	now              func() time.Time
	notifyMaxAttempt int
}

func NewSalesService(db *gorm.DB, log *zap.Logger, cache TenantCacheInvalidator, m *metrics.Metrics, notifyMaxAttempt int) *SalesService {
	return &SalesService{
		db:               db,
		log:              log,
		cache:            cache,
		metrics:          m,
		now:              time.Now,
		notifyMaxAttempt: notifyMaxAttempt,
	}
}

// PaymentInput is money received from a buyer
type PaymentInput struct {
	Amount      decimal.Decimal      `json:"amount"`
	Method      models.PaymentMethod `json:"method"`
	Reference   string               `json:"reference"`
	PaymentDate *time.Time           `json:"payment_date"`
	Notes       string               `json:"notes"`
}

// CreateSaleInput opens a sale on an available plot
type CreateSaleInput struct {
	PlotID              uint                       `json:"plot_id"`
	Name                string                     `json:"name"`
	Email               string                     `json:"email"`
	Phone               string                     `json:"phone"`
	NationalID          string                     `json:"national_id"`
	Discount            decimal.Decimal            `json:"discount"`
	PaymentPlan         models.PaymentPlan         `json:"payment_plan"`
	InstallmentRule     string                     `json:"installment_rule"`
	InstallmentAmount   decimal.Decimal            `json:"installment_amount"`
	InstallmentStart    *time.Time                 `json:"installment_start"`
	NotificationChannel models.NotificationChannel `json:"notification_channel"`
	Reserve             bool                       `json:"reserve"`
	InitialPayment      *PaymentInput              `json:"initial_payment"`
}

func (in *CreateSaleInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	if in.PlotID == 0 || in.Name == "" {
		return fmt.Errorf("%w: plot_id and name are required", ErrValidation)
	}
	if in.Discount.IsNegative() {
		return fmt.Errorf("%w: discount must not be negative", ErrValidation)
	}
	if in.NotificationChannel == "" {
		in.NotificationChannel = models.NotificationChannelEmail
	}
	if !in.NotificationChannel.Valid() {
		return fmt.Errorf("%w: unknown notification channel %q", ErrValidation, in.NotificationChannel)
	}

	switch in.PaymentPlan {
	case "", models.PaymentPlanCash:
		in.PaymentPlan = models.PaymentPlanCash
		in.InstallmentRule = ""
	case models.PaymentPlanInstallment:
		if !in.InstallmentAmount.IsPositive() {
			return fmt.Errorf("%w: installment_amount must be positive", ErrValidation)
		}
		if _, err := rrule.StrToRRule(in.InstallmentRule); err != nil {
			return fmt.Errorf("%w: installment_rule: %v", ErrValidation, err)
		}
	default:
		return fmt.Errorf("%w: unknown payment plan %q", ErrValidation, in.PaymentPlan)
	}
	return nil
}

func (in *PaymentInput) normalize() error {
	if !in.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if in.Method == "" {
		in.Method = models.PaymentMethodCash
	}
	if !in.Method.IsManual() {
		return fmt.Errorf("%w: payment method %q cannot be recorded manually", ErrValidation, in.Method)
	}
	in.Reference = strings.TrimSpace(in.Reference)
	return nil
}

// CreateSale sells (or reserves) an available plot and optionally records a first payment
func (s *SalesService) CreateSale(ctx context.Context, actor models.Actor, in CreateSaleInput) (*models.Client, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	if in.InitialPayment != nil {
		if err := in.InitialPayment.normalize(); err != nil {
			return nil, err
		}
	}

	var client models.Client
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var plot models.Plot
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND tenant_id = ?", in.PlotID, actor.TenantID).
			First(&plot).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("plot %d: %w", in.PlotID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("load plot: %w", err)
		}

		target := models.PlotStatusSold
		if in.Reserve {
			target = models.PlotStatusReserved
		}
		if plot.Status != models.PlotStatusAvailable || !plot.Status.CanTransitionTo(target) {
			return ErrPlotNotAvailable
		}
		if in.Discount.GreaterThan(plot.Price) {
			return fmt.Errorf("%w: discount exceeds plot price", ErrValidation)
		}

		client = models.Client{
			TenantID:            actor.TenantID,
			Name:                in.Name,
			Email:               in.Email,
			Phone:               in.Phone,
			NationalID:          in.NationalID,
			ProjectID:           plot.ProjectID,
			PlotID:              plot.ID,
			TotalPrice:          plot.Price,
			Discount:            in.Discount,
			TotalPaid:           decimal.Zero,
			Status:              models.SaleStatusOngoing,
			PaymentPlan:         in.PaymentPlan,
			InstallmentAmount:   in.InstallmentAmount,
			InstallmentStart:    in.InstallmentStart,
			NotificationChannel: in.NotificationChannel,
		}
		if in.InstallmentRule != "" {
			rule := in.InstallmentRule
			client.InstallmentRule = &rule
		}
		client.RecomputeBalance()
		if client.Balance.IsZero() {
			client.Status = models.SaleStatusCompleted
		}
		if err := tx.Create(&client).Error; err != nil {
			return fmt.Errorf("create sale: %w", err)
		}

		if err := tx.Model(&plot).Updates(map[string]interface{}{
			"status":    target,
			"client_id": client.ID,
		}).Error; err != nil {
			return fmt.Errorf("update plot: %w", err)
		}

		if in.InitialPayment != nil {
			if _, err := s.applyPayment(tx, actor, &client, *in.InitialPayment); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if in.InitialPayment != nil {
		s.metrics.IncPayments()
	}
	s.invalidate(ctx, actor.TenantID)
	s.log.Info("sale created",
		zap.Uint("tenant_id", actor.TenantID),
		zap.Uint("client_id", client.ID),
		zap.Uint("plot_id", client.PlotID),
	)
	return &client, nil
}

// RecordPayment adds a payment to a sale and keeps its balance in step
func (s *SalesService) RecordPayment(ctx context.Context, actor models.Actor, clientID uint, in PaymentInput) (*models.Payment, *models.Client, error) {
	if err := in.normalize(); err != nil {
		return nil, nil, err
	}

	var (
		client  models.Client
		payment *models.Payment
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND tenant_id = ?", clientID, actor.TenantID).
			First(&client).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("client %d: %w", clientID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("load client: %w", err)
		}

		payment, err = s.applyPayment(tx, actor, &client, in)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	s.metrics.IncPayments()
	s.invalidate(ctx, actor.TenantID)
	s.log.Info("payment recorded",
		zap.Uint("tenant_id", actor.TenantID),
		zap.Uint("client_id", client.ID),
		zap.String("amount", payment.Amount.StringFixed(2)),
		zap.String("balance", client.Balance.StringFixed(2)),
	)
	return payment, &client, nil
}

// applyPayment writes the payment, updates the sale and enqueues a receipt. client must
// have been loaded in tx.
func (s *SalesService) applyPayment(tx *gorm.DB, actor models.Actor, client *models.Client, in PaymentInput) (*models.Payment, error) {
	if !client.IsActive() {
		return nil, ErrSaleCancelled
	}
	if in.Amount.GreaterThan(client.Balance) {
		return nil, fmt.Errorf("%w: balance is %s", ErrOverpayment, client.Balance.StringFixed(2))
	}

	paidAt := s.now()
	if in.PaymentDate != nil {
		paidAt = *in.PaymentDate
	}
	payment := models.Payment{
		TenantID:    actor.TenantID,
		ClientID:    client.ID,
		Amount:      in.Amount,
		Method:      in.Method,
		Reference:   in.Reference,
		PaymentDate: paidAt,
		Notes:       in.Notes,
		RecordedBy:  actor.UserID,
	}
	if err := tx.Create(&payment).Error; err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	client.TotalPaid = client.TotalPaid.Add(in.Amount)
	client.RecomputeBalance()
	if client.Balance.IsZero() && client.Status.CanTransitionTo(models.SaleStatusCompleted) {
		client.Status = models.SaleStatusCompleted
	}
	if err := tx.Model(client).Updates(map[string]interface{}{
		"total_paid": client.TotalPaid,
		"balance":    client.Balance,
		"status":     client.Status,
	}).Error; err != nil {
		return nil, fmt.Errorf("update client: %w", err)
	}

	var plot models.Plot
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&plot, client.PlotID).Error; err != nil {
		return nil, fmt.Errorf("load plot: %w", err)
	}
	// A reservation becomes a sale once it is fully paid
	if client.Status == models.SaleStatusCompleted && plot.Status == models.PlotStatusReserved &&
		plot.ClientID != nil && *plot.ClientID == client.ID && plot.Status.CanTransitionTo(models.PlotStatusSold) {
		if err := tx.Model(&plot).Update("status", models.PlotStatusSold).Error; err != nil {
			return nil, fmt.Errorf("update plot: %w", err)
		}
	}

	if r, ok := outbox.ClientRecipient(*client); ok {
		if _, err := outbox.Enqueue(tx, actor.TenantID, outbox.NotificationArgs{
			Recipients: []outbox.Recipient{r},
			Template:   outbox.TemplatePaymentReceipt,
			Subject:    "Payment receipt",
			Vars: map[string]string{
				"amount":      payment.Amount.StringFixed(2),
				"plot_number": plot.PlotNumber,
				"reference":   payment.Reference,
				"total_paid":  client.TotalPaid.StringFixed(2),
				"balance":     client.Balance.StringFixed(2),
			},
		}, s.now(), s.notifyMaxAttempt); err != nil {
			return nil, err
		}
	}

	return &payment, nil
}

// GetClient loads a sale of the actor's tenant
func (s *SalesService) GetClient(ctx context.Context, actor models.Actor, id uint) (*models.Client, error) {
	var client models.Client
	err := s.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, actor.TenantID).First(&client).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("client %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load client: %w", err)
	}
	return &client, nil
}

// ClientFilter narrows ListClients
type ClientFilter struct {
	Status    models.SaleStatus
	ProjectID uint
	Search    string
}

// ListClients lists the tenant's sales, newest first
func (s *SalesService) ListClients(ctx context.Context, actor models.Actor, f ClientFilter) ([]models.Client, error) {
	q := s.db.WithContext(ctx).Where("tenant_id = ?", actor.TenantID)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.ProjectID != 0 {
		q = q.Where("project_id = ?", f.ProjectID)
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		q = q.Where("(LOWER(name) LIKE ? OR LOWER(email) LIKE ? OR phone LIKE ?)", like, like, like)
	}

	var clients []models.Client
	if err := q.Order("created_at DESC, id DESC").Find(&clients).Error; err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	return clients, nil
}

// ListPayments lists a sale's payments in date order
func (s *SalesService) ListPayments(ctx context.Context, actor models.Actor, clientID uint) ([]models.Payment, error) {
	if _, err := s.GetClient(ctx, actor, clientID); err != nil {
		return nil, err
	}
	var payments []models.Payment
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND client_id = ?", actor.TenantID, clientID).
		Order("payment_date, id").
		Find(&payments).Error; err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return payments, nil
}

// InstallmentSchedule lists the next installments of a sale
func (s *SalesService) InstallmentSchedule(ctx context.Context, actor models.Actor, clientID uint, limit int) ([]models.InstallmentDue, error) {
	client, err := s.GetClient(ctx, actor, clientID)
	if err != nil {
		return nil, err
	}
	if !client.IsActive() {
		return nil, ErrSaleCancelled
	}
	if limit <= 0 || limit > 120 {
		limit = 12
	}
	dues, err := client.UpcomingInstallments(s.now(), limit)
	if err != nil {
		return nil, fmt.Errorf("%w: installment_rule: %v", ErrValidation, err)
	}
	return dues, nil
}

func (s *SalesService) invalidate(ctx context.Context, tenantID uint) {
	if s.cache != nil {
		s.cache.InvalidateTenant(ctx, tenantID)
	}
}
