package services

import "errors"

var (
	ErrNotFound         = errors.New("record not found")
	ErrValidation       = errors.New("validation failed")
	ErrForbidden        = errors.New("operation not allowed for this operator")
	ErrDuplicate        = errors.New("record already exists")
	ErrPlotNotAvailable = errors.New("plot is not available")
	ErrSaleCancelled    = errors.New("sale is cancelled")
	ErrOverpayment      = errors.New("payment exceeds outstanding balance")
)
