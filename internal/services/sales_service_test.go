package services

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"estate_backoffice/internal/dbtest"
	"estate_backoffice/internal/metrics"
	"estate_backoffice/internal/models"
	"estate_backoffice/internal/outbox"
)

var salesNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newSalesService(t *testing.T) (*SalesService, *gorm.DB, dbtest.Fixture, *metrics.Metrics) {
	t.Helper()
	db := dbtest.Open(t)
	fx := dbtest.Seed(t, db)
	m := metrics.New(prometheus.NewRegistry())
	svc := NewSalesService(db, zaptest.NewLogger(t), nil, m, 3)
	svc.now = func() time.Time { return salesNow }
	return svc, db, fx, m
}

func TestSalesService_CreateSaleWithPayment(t *testing.T) {
	svc, db, fx, m := newSalesService(t)
	plot := dbtest.AddPlot(t, db, fx, "A-01", "300000")

	client, err := svc.CreateSale(context.Background(), fx.Actor(), CreateSaleInput{
		PlotID:   plot.ID,
		Name:     "  Siti  ",
		Email:    "siti@example.com",
		Discount: dbtest.Money("20000"),
		InitialPayment: &PaymentInput{
			Amount:    dbtest.Money("80000"),
			Method:    models.PaymentMethodBank,
			Reference: "BCA-001",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "Siti", client.Name)
	assert.True(t, dbtest.Money("80000").Equal(client.TotalPaid))
	assert.True(t, dbtest.Money("200000").Equal(client.Balance), client.Balance.String())
	assert.Equal(t, models.SaleStatusOngoing, client.Status)

	var reloaded models.Plot
	require.NoError(t, db.First(&reloaded, plot.ID).Error)
	assert.Equal(t, models.PlotStatusSold, reloaded.Status)
	require.NotNil(t, reloaded.ClientID)
	assert.Equal(t, client.ID, *reloaded.ClientID)

	var payments []models.Payment
	require.NoError(t, db.Where("client_id = ?", client.ID).Find(&payments).Error)
	require.Len(t, payments, 1)
	assert.Equal(t, salesNow, payments[0].PaymentDate.UTC())

	var tasks []models.ScheduledTask
	require.NoError(t, db.Find(&tasks).Error)
	require.Len(t, tasks, 1)
	assert.Equal(t, outbox.TaskSendNotification, tasks[0].TaskName)
	var args outbox.NotificationArgs
	require.NoError(t, outbox.DecodeArgs(tasks[0].Arguments, &args))
	assert.Equal(t, outbox.TemplatePaymentReceipt, args.Template)
	assert.Equal(t, "A-01", args.Vars["plot_number"])
	assert.Equal(t, "200000.00", args.Vars["balance"])

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PaymentsRecorded))
}

func TestSalesService_CreateSaleReserve(t *testing.T) {
	svc, db, fx, _ := newSalesService(t)
	plot := dbtest.AddPlot(t, db, fx, "A-02", "150000")

	client, err := svc.CreateSale(context.Background(), fx.Actor(), CreateSaleInput{
		PlotID:              plot.ID,
		Name:                "Budi",
		Reserve:             true,
		NotificationChannel: models.NotificationChannelNone,
	})
	require.NoError(t, err)
	assert.True(t, dbtest.Money("150000").Equal(client.Balance))

	var reloaded models.Plot
	require.NoError(t, db.First(&reloaded, plot.ID).Error)
	assert.Equal(t, models.PlotStatusReserved, reloaded.Status)

	var n int64
	require.NoError(t, db.Model(&models.ScheduledTask{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestSalesService_CreateSaleRejections(t *testing.T) {
	svc, db, fx, _ := newSalesService(t)
	ctx := context.Background()
	sold := dbtest.AddPlot(t, db, fx, "B-01", "100000")
	dbtest.AddSale(t, db, fx, &sold, "0")
	free := dbtest.AddPlot(t, db, fx, "B-02", "100000")

	tests := []struct {
		name string
		in   CreateSaleInput
		want error
	}{
		{"missing name", CreateSaleInput{PlotID: free.ID}, ErrValidation},
		{"unknown plot", CreateSaleInput{PlotID: 999, Name: "X"}, ErrNotFound},
		{"plot already sold", CreateSaleInput{PlotID: sold.ID, Name: "X"}, ErrPlotNotAvailable},
		{"discount above price", CreateSaleInput{PlotID: free.ID, Name: "X", Discount: dbtest.Money("100001")}, ErrValidation},
		{"bad installment rule", CreateSaleInput{
			PlotID: free.ID, Name: "X",
			PaymentPlan:       models.PaymentPlanInstallment,
			InstallmentRule:   "FREQ=SOMETIMES",
			InstallmentAmount: dbtest.Money("10000"),
		}, ErrValidation},
		{"online payment method", CreateSaleInput{
			PlotID: free.ID, Name: "X",
			InitialPayment: &PaymentInput{Amount: dbtest.Money("1000"), Method: models.PaymentMethodTransfer},
		}, ErrValidation},
		{"first payment above price", CreateSaleInput{
			PlotID: free.ID, Name: "X",
			InitialPayment: &PaymentInput{Amount: dbtest.Money("100001")},
		}, ErrOverpayment},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateSale(ctx, fx.Actor(), tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	// Nothing from the rejected attempts was kept
	var reloaded models.Plot
	require.NoError(t, db.First(&reloaded, free.ID).Error)
	assert.Equal(t, models.PlotStatusAvailable, reloaded.Status)
	var n int64
	require.NoError(t, db.Model(&models.Client{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestSalesService_RecordPayment(t *testing.T) {
	svc, db, fx, m := newSalesService(t)
	ctx := context.Background()
	plot := dbtest.AddPlot(t, db, fx, "C-01", "100000")
	client := dbtest.AddSale(t, db, fx, &plot, "40000")

	_, _, err := svc.RecordPayment(ctx, fx.Actor(), client.ID, PaymentInput{Amount: dbtest.Money("60001")})
	assert.ErrorIs(t, err, ErrOverpayment)

	payment, updated, err := svc.RecordPayment(ctx, fx.Actor(), client.ID, PaymentInput{
		Amount: dbtest.Money("60000"),
		Method: models.PaymentMethodMobileMoney,
	})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentMethodMobileMoney, payment.Method)
	assert.True(t, updated.Balance.IsZero())
	assert.Equal(t, models.SaleStatusCompleted, updated.Status)

	payments, err := svc.ListPayments(ctx, fx.Actor(), client.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PaymentsRecorded))

	other := models.Actor{TenantID: fx.Tenant.ID + 1, UserID: fx.Admin.ID}
	_, _, err = svc.RecordPayment(ctx, other, client.ID, PaymentInput{Amount: dbtest.Money("1")})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSalesService_PaidReservationBecomesSold(t *testing.T) {
	svc, db, fx, _ := newSalesService(t)
	ctx := context.Background()
	plot := dbtest.AddPlot(t, db, fx, "C-03", "100000")

	client, err := svc.CreateSale(ctx, fx.Actor(), CreateSaleInput{
		PlotID:              plot.ID,
		Name:                "Wati",
		Reserve:             true,
		NotificationChannel: models.NotificationChannelNone,
	})
	require.NoError(t, err)

	_, _, err = svc.RecordPayment(ctx, fx.Actor(), client.ID, PaymentInput{Amount: dbtest.Money("40000")})
	require.NoError(t, err)
	var reloaded models.Plot
	require.NoError(t, db.First(&reloaded, plot.ID).Error)
	assert.Equal(t, models.PlotStatusReserved, reloaded.Status)

	_, updated, err := svc.RecordPayment(ctx, fx.Actor(), client.ID, PaymentInput{Amount: dbtest.Money("60000")})
	require.NoError(t, err)
	assert.Equal(t, models.SaleStatusCompleted, updated.Status)
	require.NoError(t, db.First(&reloaded, plot.ID).Error)
	assert.Equal(t, models.PlotStatusSold, reloaded.Status)
	require.NotNil(t, reloaded.ClientID)
	assert.Equal(t, client.ID, *reloaded.ClientID)

	// Paid in full on creation
	other := dbtest.AddPlot(t, db, fx, "C-04", "50000")
	_, err = svc.CreateSale(ctx, fx.Actor(), CreateSaleInput{
		PlotID:              other.ID,
		Name:                "Rudi",
		Reserve:             true,
		NotificationChannel: models.NotificationChannelNone,
		InitialPayment:      &PaymentInput{Amount: dbtest.Money("50000")},
	})
	require.NoError(t, err)
	require.NoError(t, db.First(&reloaded, other.ID).Error)
	assert.Equal(t, models.PlotStatusSold, reloaded.Status)
}

func TestSalesService_RecordPaymentOnCancelledSale(t *testing.T) {
	svc, db, fx, _ := newSalesService(t)
	plot := dbtest.AddPlot(t, db, fx, "C-02", "100000")
	client := dbtest.AddSale(t, db, fx, &plot, "10000")
	require.NoError(t, db.Model(&client).Update("status", models.SaleStatusCancelled).Error)

	_, _, err := svc.RecordPayment(context.Background(), fx.Actor(), client.ID, PaymentInput{Amount: dbtest.Money("1000")})
	assert.ErrorIs(t, err, ErrSaleCancelled)
}

func TestSalesService_ListClients(t *testing.T) {
	svc, db, fx, _ := newSalesService(t)
	ctx := context.Background()
	p1 := dbtest.AddPlot(t, db, fx, "D-01", "100000")
	p2 := dbtest.AddPlot(t, db, fx, "D-02", "100000")
	c1 := dbtest.AddSale(t, db, fx, &p1, "100000")
	dbtest.AddSale(t, db, fx, &p2, "0")

	all, err := svc.ListClients(ctx, fx.Actor(), ClientFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	completed, err := svc.ListClients(ctx, fx.Actor(), ClientFilter{Status: models.SaleStatusCompleted})
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, c1.ID, completed[0].ID)

	found, err := svc.ListClients(ctx, fx.Actor(), ClientFilter{Search: "BUYER D-02"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, p2.ID, found[0].PlotID)
}

func TestSalesService_InstallmentSchedule(t *testing.T) {
	svc, db, fx, _ := newSalesService(t)
	ctx := context.Background()
	plot := dbtest.AddPlot(t, db, fx, "E-01", "250000")
	start := time.Date(2026, 4, 5, 0, 0, 0, 0, time.UTC)

	client, err := svc.CreateSale(ctx, fx.Actor(), CreateSaleInput{
		PlotID:            plot.ID,
		Name:              "Rina",
		PaymentPlan:       models.PaymentPlanInstallment,
		InstallmentRule:   "FREQ=MONTHLY;BYMONTHDAY=5;COUNT=24",
		InstallmentAmount: dbtest.Money("100000"),
		InstallmentStart:  &start,
	})
	require.NoError(t, err)

	dues, err := svc.InstallmentSchedule(ctx, fx.Actor(), client.ID, 12)
	require.NoError(t, err)
	require.Len(t, dues, 3, "stops once the balance is covered")
	assert.Equal(t, "2026-04-05", dues[0].DueDate.UTC().Format("2006-01-02"))
	assert.Equal(t, "2026-05-05", dues[1].DueDate.UTC().Format("2006-01-02"))
	assert.True(t, dbtest.Money("50000").Equal(dues[2].Amount), "last installment is capped")
}
