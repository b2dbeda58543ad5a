package market

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"curveLaunch/internal/curve"
	"curveLaunch/internal/ledger"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrTradingDisabled     = errors.New("trading disabled")
	ErrSlippageExceeded    = errors.New("slippage exceeded")
	ErrDeadlineExceeded    = errors.New("deadline exceeded")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInsufficientReserve = errors.New("insufficient reserve")
	ErrInsufficientSupply  = errors.New("insufficient supply")
	ErrFeeTooHigh          = errors.New("fee too high")
	ErrPoolNotFound        = errors.New("pool not found")
	ErrMaxSupplyExceeded   = errors.New("max supply exceeded")
	ErrMigrationState      = errors.New("invalid migration state")
)

// OpError is returned by every engine operation. It unwraps to one of the
// package sentinels, or to the collaborator error that caused the failure.
type OpError struct {
	Op     string
	Pool   common.Address
	Err    error
	Detail string
}

func (e *OpError) Error() string {
	msg := e.Op
	if e.Pool != (common.Address{}) {
		msg += " " + e.Pool.Hex()
	}
	msg += ": " + e.Err.Error()
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func opErr(op string, pool common.Address, err error, format string, args ...interface{}) *OpError {
	detail := ""
	if format != "" {
		detail = fmt.Sprintf(format, args...)
	}
	return &OpError{Op: op, Pool: pool, Err: err, Detail: detail}
}

// settleErr maps ledger failures onto market error kinds.
func settleErr(op string, pool common.Address, err error) *OpError {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return opErr(op, pool, ErrInsufficientBalance, "%v", err)
	case errors.Is(err, ledger.ErrSupplyCap):
		return opErr(op, pool, ErrMaxSupplyExceeded, "%v", err)
	case errors.Is(err, ledger.ErrOverflow):
		return opErr(op, pool, curve.ErrOverflow, "%v", err)
	default:
		return opErr(op, pool, fmt.Errorf("settle: %w", err), "")
	}
}

// mathErr maps pricing failures onto market error kinds.
func mathErr(op string, pool common.Address, err error) *OpError {
	if errors.Is(err, curve.ErrInsufficientSupply) {
		return opErr(op, pool, ErrInsufficientSupply, "%v", err)
	}
	if errors.Is(err, curve.ErrInvalidRatio) {
		return opErr(op, pool, ErrValidation, "%v", err)
	}
	return opErr(op, pool, err, "")
}
