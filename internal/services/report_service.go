package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"estate_backoffice/internal/models"
)

// Summary is a tenant's financial position. Cancelled sales are excluded from the
// active figures. Retained is total paid less net refund over cancellations that
// were not transfers; a transfer's payments carry over to the new sale and are
// already part of Collected.
type Summary struct {
	TenantID       uint             `json:"tenant_id"`
	ActiveSales    int64            `json:"active_sales"`
	ContractValue  decimal.Decimal  `json:"contract_value"`
	Collected      decimal.Decimal  `json:"collected"`
	Outstanding    decimal.Decimal  `json:"outstanding"`
	CancelledSales int64            `json:"cancelled_sales"`
	Transferred    int64            `json:"transferred"`
	RefundsPaid    decimal.Decimal  `json:"refunds_paid"`
	RefundsPending decimal.Decimal  `json:"refunds_pending"`
	Retained       decimal.Decimal  `json:"retained"` // excludes transferred cancellations
	OtherExpenses  decimal.Decimal  `json:"other_expenses"`
	PlotsByStatus  map[string]int64 `json:"plots_by_status"`
	GeneratedAt    time.Time        `json:"generated_at"`
}

// ReportService builds tenant reports, cached in Redis when available
type ReportService struct {
	db    *gorm.DB
	cache *RedisCache
	ttl   time.Duration
	now   func() time.Time
}

// NewReportService creates a ReportService. cache may be nil.
func NewReportService(db *gorm.DB, cache *RedisCache, ttl time.Duration) *ReportService {
	return &ReportService{db: db, cache: cache, ttl: ttl, now: time.Now}
}

// Summary returns the tenant summary, from cache when fresh
func (s *ReportService) Summary(ctx context.Context, actor models.Actor) (Summary, error) {
	return GetOrSet(s.cache, ctx, ReportSummaryKey(actor.TenantID), s.ttl, func() (Summary, error) {
		return s.buildSummary(ctx, actor.TenantID)
	})
}

func (s *ReportService) buildSummary(ctx context.Context, tenantID uint) (Summary, error) {
	db := s.db.WithContext(ctx)
	sum := Summary{TenantID: tenantID, PlotsByStatus: map[string]int64{}, GeneratedAt: s.now()}

	var sales struct {
		ActiveSales   int64
		ContractValue decimal.Decimal
		Collected     decimal.Decimal
		Outstanding   decimal.Decimal
	}
	if err := db.Model(&models.Client{}).
		Select("COUNT(*) AS active_sales, "+
			"COALESCE(SUM(total_price - discount), 0) AS contract_value, "+
			"COALESCE(SUM(total_paid), 0) AS collected, "+
			"COALESCE(SUM(balance), 0) AS outstanding").
		Where("tenant_id = ? AND status <> ?", tenantID, models.SaleStatusCancelled).
		Scan(&sales).Error; err != nil {
		return sum, fmt.Errorf("sales totals: %w", err)
	}
	sum.ActiveSales = sales.ActiveSales
	sum.ContractValue = sales.ContractValue
	sum.Collected = sales.Collected
	sum.Outstanding = sales.Outstanding

	var cancelled struct {
		CancelledSales int64
		Transferred    int64
		Retained       decimal.Decimal
		Unrecorded     decimal.Decimal
	}
	if err := db.Model(&models.CancelledSale{}).
		Select("COUNT(*) AS cancelled_sales, "+
			"COALESCE(SUM(CASE WHEN outcome_type = ? THEN 1 ELSE 0 END), 0) AS transferred, "+
			"COALESCE(SUM(CASE WHEN outcome_type <> ? THEN total_paid - net_refund ELSE 0 END), 0) AS retained, "+
			"COALESCE(SUM(CASE WHEN refund_status IN ? THEN net_refund - expensed_amount ELSE 0 END), 0) AS unrecorded",
			models.OutcomeTransferred, models.OutcomeTransferred,
			[]models.RefundStatus{models.RefundStatusPending, models.RefundStatusPartial}).
		Where("tenant_id = ?", tenantID).
		Scan(&cancelled).Error; err != nil {
		return sum, fmt.Errorf("cancellation totals: %w", err)
	}
	sum.CancelledSales = cancelled.CancelledSales
	sum.Transferred = cancelled.Transferred
	sum.Retained = cancelled.Retained

	var expenses []struct {
		Category string
		Status   models.ExpenseStatus
		Total    decimal.Decimal
	}
	if err := db.Model(&models.Expense{}).
		Select("category, status, COALESCE(SUM(amount), 0) AS total").
		Where("tenant_id = ?", tenantID).
		Group("category, status").
		Scan(&expenses).Error; err != nil {
		return sum, fmt.Errorf("expense totals: %w", err)
	}
	sum.RefundsPending = cancelled.Unrecorded
	for _, e := range expenses {
		switch {
		case e.Category == models.ExpenseCategoryRefund && e.Status == models.ExpenseStatusPaid:
			sum.RefundsPaid = sum.RefundsPaid.Add(e.Total)
		case e.Category == models.ExpenseCategoryRefund:
			sum.RefundsPending = sum.RefundsPending.Add(e.Total)
		default:
			sum.OtherExpenses = sum.OtherExpenses.Add(e.Total)
		}
	}

	var plots []struct {
		Status string
		Count  int64
	}
	if err := db.Model(&models.Plot{}).
		Select("status, COUNT(*) AS count").
		Where("tenant_id = ?", tenantID).
		Group("status").
		Scan(&plots).Error; err != nil {
		return sum, fmt.Errorf("plot totals: %w", err)
	}
	for _, p := range plots {
		sum.PlotsByStatus[p.Status] = p.Count
	}

	return sum, nil
}
