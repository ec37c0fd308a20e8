// Package errs defines the rejection taxonomy shared by every command.
// Each rejection carries a Kind and a stable Reason string that callers can
// match with errors.Is against the sentinels below.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a rejection.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindAuthorization
	KindState
	KindPolicy
	KindOracle
	KindEconomic
	KindTransfer
)

func (k Kind) String() string {
	switch k {
	case KindAuthorization:
		return "authorization"
	case KindState:
		return "state"
	case KindPolicy:
		return "policy"
	case KindOracle:
		return "oracle"
	case KindEconomic:
		return "economic"
	case KindTransfer:
		return "transfer"
	default:
		return "unknown"
	}
}

// Error is a classified rejection. Detail is free-form context for logs and
// is ignored by errors.Is.
type Error struct {
	Kind   Kind
	Reason string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s error: %s", e.Kind, e.Reason)
	if e.Reason == "" {
		msg = fmt.Sprintf("%s error", e.Kind)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Kind, and on Reason when the target names one. A target with an
// empty Reason therefore matches every rejection of its kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Reason == "" || t.Reason == e.Reason
}

// With returns a copy of e carrying a formatted detail message.
func (e *Error) With(format string, args ...any) *Error {
	c := *e
	c.Detail = fmt.Sprintf(format, args...)
	return &c
}

// Wrap returns a copy of e wrapping cause.
func (e *Error) Wrap(cause error) *Error {
	c := *e
	c.Err = cause
	return &c
}

// KindOf returns the Kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// ReasonOf returns the Reason of the first *Error in err's chain.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

// Kind-wide sentinels.
var (
	Authorization = &Error{Kind: KindAuthorization}
	State         = &Error{Kind: KindState}
	Policy        = &Error{Kind: KindPolicy}
	Oracle        = &Error{Kind: KindOracle}
	Economic      = &Error{Kind: KindEconomic}
	Transfer      = &Error{Kind: KindTransfer}
)

// Authorization
var (
	ErrNotAdmin       = &Error{Kind: KindAuthorization, Reason: "not_admin"}
	ErrContractCaller = &Error{Kind: KindAuthorization, Reason: "contract_caller"}
)

// Lifecycle
var (
	ErrNotStarted     = &Error{Kind: KindState, Reason: "not_started"}
	ErrRoundNotClosed = &Error{Kind: KindState, Reason: "round_not_closed"}
	ErrTooEarly       = &Error{Kind: KindState, Reason: "too_early"}
	ErrNotLocked      = &Error{Kind: KindState, Reason: "not_locked"}
	ErrAlreadyLocked  = &Error{Kind: KindState, Reason: "already_locked"}
	ErrAlreadyClosed  = &Error{Kind: KindState, Reason: "already_closed"}
	ErrWrongEpoch     = &Error{Kind: KindState, Reason: "wrong_epoch"}
	ErrNotLive        = &Error{Kind: KindState, Reason: "not_live"}
	ErrReentrantCall  = &Error{Kind: KindState, Reason: "reentrant_call"}
)

// Policy
var (
	ErrLockIntervalTooShort = &Error{Kind: KindPolicy, Reason: "lock_interval_too_short"}
	ErrInvalidInterval      = &Error{Kind: KindPolicy, Reason: "invalid_interval"}
)

// Oracle
var (
	ErrOracleIncomplete  = &Error{Kind: KindOracle, Reason: "oracle_incomplete"}
	ErrOracleStale       = &Error{Kind: KindOracle, Reason: "oracle_stale"}
	ErrAnswerOutOfRange  = &Error{Kind: KindOracle, Reason: "answer_out_of_range"}
	ErrOracleUnavailable = &Error{Kind: KindOracle, Reason: "oracle_unavailable"}
)

// Economic
var (
	ErrZeroAmount      = &Error{Kind: KindEconomic, Reason: "zero_amount"}
	ErrAmountOverflow  = &Error{Kind: KindEconomic, Reason: "amount_overflow"}
	ErrDoubleBet       = &Error{Kind: KindEconomic, Reason: "double_bet"}
	ErrInvalidPosition = &Error{Kind: KindEconomic, Reason: "invalid_position"}
	ErrNotClaimable    = &Error{Kind: KindEconomic, Reason: "not_claimable"}
	ErrNotRefundable   = &Error{Kind: KindEconomic, Reason: "not_refundable"}
	ErrAlreadySettled  = &Error{Kind: KindEconomic, Reason: "already_settled"}
	ErrEmptyClaim      = &Error{Kind: KindEconomic, Reason: "empty_claim"}
	ErrDuplicateEpoch  = &Error{Kind: KindEconomic, Reason: "duplicate_epoch"}
	ErrEmptyTreasury   = &Error{Kind: KindEconomic, Reason: "empty_treasury"}
)

// Transfer
var (
	ErrTransferFailed = &Error{Kind: KindTransfer, Reason: "transfer_failed"}
)
