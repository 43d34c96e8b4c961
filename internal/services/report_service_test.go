package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"estate_backoffice/internal/dbtest"
	"estate_backoffice/internal/models"
)

func TestReportService_Summary(t *testing.T) {
	db := dbtest.Open(t)
	fx := dbtest.Seed(t, db)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	sold := dbtest.AddPlot(t, db, fx, "R-01", "300000")
	dbtest.AddSale(t, db, fx, &sold, "100000")
	dbtest.AddPlot(t, db, fx, "R-02", "200000")

	released := dbtest.AddPlot(t, db, fx, "R-03", "500000")
	cancelled := dbtest.AddSale(t, db, fx, &released, "500000")
	require.NoError(t, db.Model(&cancelled).Update("status", models.SaleStatusCancelled).Error)
	require.NoError(t, db.Model(&released).Updates(map[string]interface{}{"status": models.PlotStatusAvailable, "client_id": nil}).Error)

	require.NoError(t, db.Create(&models.CancelledSale{
		TenantID: fx.Tenant.ID, ClientID: cancelled.ID, PlotID: released.ID,
		TotalPrice: dbtest.Money("500000"), TotalPaid: dbtest.Money("500000"),
		RefundAmount: dbtest.Money("200000"), CancellationFee: dbtest.Money("50000"),
		NetRefund: dbtest.Money("150000"), ExpensedAmount: dbtest.Money("0"),
		RefundStatus: models.RefundStatusPending, OutcomeType: models.OutcomePending,
		CancelledAt: now,
	}).Error)
	require.NoError(t, db.Create(&models.CancelledSale{
		TenantID: fx.Tenant.ID, ClientID: 99, PlotID: 98,
		TotalPrice: dbtest.Money("200000"), TotalPaid: dbtest.Money("200000"),
		NetRefund: dbtest.Money("0"), ExpensedAmount: dbtest.Money("0"),
		RefundStatus: models.RefundStatusNone, OutcomeType: models.OutcomeTransferred,
		CancelledAt: now,
	}).Error)

	for _, e := range []models.Expense{
		{Category: models.ExpenseCategoryRefund, Amount: dbtest.Money("80000"), Status: models.ExpenseStatusPaid},
		{Category: models.ExpenseCategoryRefund, Amount: dbtest.Money("30000"), Status: models.ExpenseStatusPending},
		{Category: models.ExpenseCategoryGeneral, Amount: dbtest.Money("10000"), Status: models.ExpenseStatusPaid},
	} {
		e.TenantID = fx.Tenant.ID
		e.ExpenseDate = now
		require.NoError(t, db.Create(&e).Error)
	}

	// Another tenant's rows never leak in
	require.NoError(t, db.Create(&models.Expense{TenantID: fx.Tenant.ID + 1, Category: models.ExpenseCategoryGeneral, Amount: dbtest.Money("999"), ExpenseDate: now}).Error)

	svc := NewReportService(db, nil, time.Minute)
	svc.now = func() time.Time { return now }

	sum, err := svc.Summary(context.Background(), fx.Actor())
	require.NoError(t, err)

	assert.Equal(t, int64(1), sum.ActiveSales)
	assert.True(t, dbtest.Money("300000").Equal(sum.ContractValue), sum.ContractValue.String())
	assert.True(t, dbtest.Money("100000").Equal(sum.Collected), sum.Collected.String())
	assert.True(t, dbtest.Money("200000").Equal(sum.Outstanding), sum.Outstanding.String())
	assert.Equal(t, int64(2), sum.CancelledSales)
	assert.Equal(t, int64(1), sum.Transferred)
	// The transferred cancellation's 200000 moved to a new sale and is not retained
	assert.True(t, dbtest.Money("350000").Equal(sum.Retained), sum.Retained.String())
	assert.True(t, dbtest.Money("80000").Equal(sum.RefundsPaid), sum.RefundsPaid.String())
	assert.True(t, dbtest.Money("180000").Equal(sum.RefundsPending), sum.RefundsPending.String())
	assert.True(t, dbtest.Money("10000").Equal(sum.OtherExpenses), sum.OtherExpenses.String())
	assert.Equal(t, map[string]int64{"sold": 1, "available": 2}, sum.PlotsByStatus)
	assert.Equal(t, now, sum.GeneratedAt)
}
