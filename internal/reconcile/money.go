package reconcile

import "github.com/shopspring/decimal"

// NetRefund is the refund after the cancellation fee, floored at zero
func NetRefund(refund, fee decimal.Decimal) decimal.Decimal {
	return decimal.Max(decimal.Zero, refund.Sub(fee))
}

// Retained is what the company keeps from a cancelled sale
func Retained(totalPaid, netRefund decimal.Decimal) decimal.Decimal {
	return totalPaid.Sub(netRefund)
}

// TransferSplit is how money already paid lands on a new plot
type TransferSplit struct {
	Carried   decimal.Decimal `json:"carried"`
	Balance   decimal.Decimal `json:"balance"`
	Refund    decimal.Decimal `json:"refund"`
	Completed bool            `json:"completed"`
}

// SplitTransfer moves amountPaid onto a plot priced newPrice. Overpayment becomes
// a refund; underpayment stays as balance.
func SplitTransfer(amountPaid, newPrice decimal.Decimal) TransferSplit {
	remaining := amountPaid.Sub(newPrice)
	s := TransferSplit{Carried: decimal.Min(amountPaid, newPrice)}
	if remaining.IsPositive() {
		s.Balance = decimal.Zero
		s.Refund = remaining
	} else {
		s.Balance = remaining.Abs()
		s.Refund = decimal.Zero
	}
	s.Completed = s.Balance.IsZero()
	return s
}

// RefundDelta is the part of netRefund not yet recorded as an expense
func RefundDelta(netRefund, expensed decimal.Decimal) decimal.Decimal {
	return netRefund.Sub(expensed)
}
