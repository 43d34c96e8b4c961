package reconcile

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"estate_backoffice/internal/models"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertMoney(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.True(t, d(want).Equal(got), append([]interface{}{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}

func TestNetRefund(t *testing.T) {
	tests := []struct {
		name, refund, fee, paid string
		net, retained           string
	}{
		{"fee below refund", "200000", "50000", "300000", "150000", "150000"},
		{"fee equals refund", "50000", "50000", "300000", "0", "300000"},
		{"fee above refund floors at zero", "10000", "50000", "300000", "0", "300000"},
		{"no fee", "300000", "0", "300000", "300000", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			net := NetRefund(d(tt.refund), d(tt.fee))
			assertMoney(t, tt.net, net)
			assert.False(t, net.IsNegative())
			assertMoney(t, tt.retained, Retained(d(tt.paid), net))
		})
	}
}

func TestSplitTransfer(t *testing.T) {
	tests := []struct {
		name                     string
		paid, price              string
		carried, balance, refund string
		completed                bool
	}{
		{"overpayment", "500000", "350000", "350000", "0", "150000", true},
		{"underpayment", "200000", "350000", "200000", "150000", "0", false},
		{"exact", "350000", "350000", "350000", "0", "0", true},
		{"nothing paid", "0", "350000", "0", "350000", "0", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := SplitTransfer(d(tt.paid), d(tt.price))
			assertMoney(t, tt.carried, s.Carried)
			assertMoney(t, tt.balance, s.Balance)
			assertMoney(t, tt.refund, s.Refund)
			assert.Equal(t, tt.completed, s.Completed)
			// carried + refund always equals what was paid
			assertMoney(t, tt.paid, s.Carried.Add(s.Refund))
		})
	}
}

func TestRefundDelta(t *testing.T) {
	assertMoney(t, "20000", RefundDelta(d("120000"), d("100000")))
	assertMoney(t, "-5000", RefundDelta(d("95000"), d("100000")))
}

func TestDeriveKey(t *testing.T) {
	actor := models.Actor{TenantID: 1, UserID: 2}
	at := time.Date(2026, 3, 1, 10, 1, 0, 0, time.UTC)
	window := 5 * time.Minute

	hash, _, err := RequestHash(models.WorkflowOperationCancel, CancelRequest{PlotID: 7})
	assert.NoError(t, err)

	k1 := DeriveKey(actor, models.WorkflowOperationCancel, 7, hash, at, window)
	k2 := DeriveKey(actor, models.WorkflowOperationCancel, 7, hash, at.Add(2*time.Minute), window)
	k3 := DeriveKey(actor, models.WorkflowOperationCancel, 7, hash, at.Add(10*time.Minute), window)
	k4 := DeriveKey(models.Actor{TenantID: 1, UserID: 3}, models.WorkflowOperationCancel, 7, hash, at, window)

	assert.Equal(t, k1, k2, "same window")
	assert.NotEqual(t, k1, k3, "next window")
	assert.NotEqual(t, k1, k4, "other operator")
	assert.LessOrEqual(t, len(k1), maxKeyLength)
}

func TestRequestHash_IgnoresKeyAndScale(t *testing.T) {
	a, _, err := RequestHash(models.WorkflowOperationCancel, CancelRequest{PlotID: 1, RefundAmount: d("100000.00"), IdempotencyKey: "a"})
	assert.NoError(t, err)
	b, _, err := RequestHash(models.WorkflowOperationCancel, CancelRequest{PlotID: 1, RefundAmount: d("100000"), IdempotencyKey: "b"})
	assert.NoError(t, err)
	c, _, err := RequestHash(models.WorkflowOperationTransfer, CancelRequest{PlotID: 1, RefundAmount: d("100000")})
	assert.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
