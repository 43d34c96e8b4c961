package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"estate_backoffice/internal/models"
)

// ExpenseService records general outflows. Refund expenses are written by reconciliation only.
type ExpenseService struct {
	db    *gorm.DB
	cache TenantCacheInvalidator
	now   func() time.Time
}

func NewExpenseService(db *gorm.DB, cache TenantCacheInvalidator) *ExpenseService {
	return &ExpenseService{db: db, cache: cache, now: time.Now}
}

// ExpenseInput describes a new expense
type ExpenseInput struct {
	Category    string               `json:"category"`
	Amount      decimal.Decimal      `json:"amount"`
	Description string               `json:"description"`
	ExpenseDate *time.Time           `json:"expense_date"`
	Notes       string               `json:"notes"`
	Status      models.ExpenseStatus `json:"status"`
}

// ExpenseFilter narrows ListExpenses
type ExpenseFilter struct {
	Category        string
	Status          models.ExpenseStatus
	CancelledSaleID uint
}

func (s *ExpenseService) CreateExpense(ctx context.Context, actor models.Actor, in ExpenseInput) (*models.Expense, error) {
	in.Category = strings.TrimSpace(in.Category)
	if in.Category == "" {
		in.Category = models.ExpenseCategoryGeneral
	}
	if strings.EqualFold(in.Category, models.ExpenseCategoryRefund) {
		return nil, fmt.Errorf("%w: refund expenses are recorded through cancellations", ErrValidation)
	}
	if !in.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if in.Status == "" {
		in.Status = models.ExpenseStatusPaid
	}
	if in.Status != models.ExpenseStatusPaid && in.Status != models.ExpenseStatusPending {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, in.Status)
	}

	date := s.now()
	if in.ExpenseDate != nil {
		date = *in.ExpenseDate
	}
	expense := models.Expense{
		TenantID:    actor.TenantID,
		Category:    in.Category,
		Amount:      in.Amount,
		Description: strings.TrimSpace(in.Description),
		ExpenseDate: date,
		Notes:       in.Notes,
		Status:      in.Status,
		RecordedBy:  actor.UserID,
	}
	if err := s.db.WithContext(ctx).Create(&expense).Error; err != nil {
		return nil, fmt.Errorf("create expense: %w", err)
	}
	if s.cache != nil {
		s.cache.InvalidateTenant(ctx, actor.TenantID)
	}
	return &expense, nil
}

func (s *ExpenseService) ListExpenses(ctx context.Context, actor models.Actor, f ExpenseFilter) ([]models.Expense, error) {
	q := s.db.WithContext(ctx).Where("tenant_id = ?", actor.TenantID)
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.CancelledSaleID != 0 {
		q = q.Where("cancelled_sale_id = ?", f.CancelledSaleID)
	}

	var expenses []models.Expense
	if err := q.Order("expense_date DESC, id DESC").Find(&expenses).Error; err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return expenses, nil
}
