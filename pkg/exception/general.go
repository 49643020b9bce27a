package exception

import "github.com/yanun0323/errors"

// Error classes. Every specific error below wraps exactly one of them.
var (
	ErrValidation    = errors.New("validation failed")
	ErrNotFound      = errors.New("not found")
	ErrOverReduction = errors.New("over reduction")
	ErrState         = errors.New("invalid state")
	ErrRiskRejected  = errors.New("risk rejected")
	ErrInternal      = errors.New("internal error")
)
