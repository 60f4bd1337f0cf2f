package domain

import "errors"

// Kind classifies a market error for callers that map errors onto transport
// status codes.
type Kind string

const (
	KindAuthorization     Kind = "authorization"
	KindPrecondition      Kind = "precondition"
	KindValidation        Kind = "validation"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindInvariant         Kind = "invariant"
	KindNotFound          Kind = "not_found"
	KindInternal          Kind = "internal"
)

// Error is a classified, comparable market error. Sentinels are pointers so
// errors.Is matches by identity through any amount of wrapping.
type Error struct {
	Kind Kind
	Code string
}

func (e *Error) Error() string { return e.Code }

var byCode = map[string]*Error{}

func newError(kind Kind, code string) *Error {
	e := &Error{Kind: kind, Code: code}
	byCode[code] = e
	return e
}

// ErrorForCode returns the sentinel whose Code is code, for clients turning
// a wire error back into a comparable value.
func ErrorForCode(code string) (*Error, bool) {
	e, ok := byCode[code]
	return e, ok
}

// KindOf returns the Kind of the first *Error in err's chain, or
// KindInternal if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the Code of the first *Error in err's chain, or "INTERNAL".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "INTERNAL"
}

// Authorization.
var (
	ErrNotOwner        = newError(KindAuthorization, "NOT_OWNER")
	ErrNotPendingOwner = newError(KindAuthorization, "NOT_PENDING_OWNER")
	ErrCallerMismatch  = newError(KindAuthorization, "CALLER_NOT_USER")
	ErrUnauthorized    = newError(KindAuthorization, "UNAUTHORIZED")
)

// Preconditions on lifecycle and ledger state.
var (
	ErrAlreadyInitialized       = newError(KindPrecondition, "ALREADY_INITIALIZED")
	ErrGenesisAlreadyStarted    = newError(KindPrecondition, "GENESIS_ALREADY_STARTED")
	ErrGenesisNotStarted        = newError(KindPrecondition, "GENESIS_NOT_STARTED")
	ErrGenesisAlreadyLocked     = newError(KindPrecondition, "GENESIS_ALREADY_LOCKED")
	ErrGenesisNotLocked         = newError(KindPrecondition, "GENESIS_NOT_LOCKED")
	ErrRoundExists              = newError(KindPrecondition, "ROUND_EXISTS")
	ErrRoundNotStarted          = newError(KindPrecondition, "ROUND_NOT_STARTED")
	ErrRoundNotLocked           = newError(KindPrecondition, "ROUND_NOT_LOCKED")
	ErrRoundAlreadyLocked       = newError(KindPrecondition, "ROUND_ALREADY_LOCKED")
	ErrRoundNotEnded            = newError(KindPrecondition, "ROUND_NOT_ENDED")
	ErrRoundAlreadyEnded        = newError(KindPrecondition, "ROUND_ALREADY_ENDED")
	ErrLockTooEarly             = newError(KindPrecondition, "LOCK_TOO_EARLY")
	ErrEndTooEarly              = newError(KindPrecondition, "END_TOO_EARLY")
	ErrOutsideBuffer            = newError(KindPrecondition, "OUTSIDE_BUFFER")
	ErrPreviousRoundNotClosed   = newError(KindPrecondition, "PREVIOUS_ROUND_NOT_CLOSED")
	ErrRoundNotBettable         = newError(KindPrecondition, "ROUND_NOT_BETTABLE")
	ErrEpochNotCurrent          = newError(KindPrecondition, "EPOCH_NOT_CURRENT")
	ErrAlreadyBet               = newError(KindPrecondition, "ALREADY_BET")
	ErrRewardsAlreadyCalculated = newError(KindPrecondition, "REWARDS_ALREADY_CALCULATED")
	ErrReentrantCall            = newError(KindPrecondition, "REENTRANT_CALL")
	ErrNoPendingOwner           = newError(KindPrecondition, "NO_PENDING_OWNER")
	ErrKeeperRunning            = newError(KindPrecondition, "KEEPER_RUNNING")
	ErrKeeperNotRunning         = newError(KindPrecondition, "KEEPER_NOT_RUNNING")
)

// Validation of inputs and configuration.
var (
	ErrBetAmountTooLow       = newError(KindValidation, "BET_AMOUNT_TOO_LOW")
	ErrFeeTooHigh            = newError(KindValidation, "FEE_TOO_HIGH")
	ErrInvalidBufferInterval = newError(KindValidation, "INVALID_BUFFER_INTERVAL")
	ErrInvalidAmount         = newError(KindValidation, "INVALID_AMOUNT")
	ErrInvalidAddress        = newError(KindValidation, "INVALID_ADDRESS")
	ErrInvalidPosition       = newError(KindValidation, "INVALID_POSITION")
	ErrInvalidPrice          = newError(KindValidation, "INVALID_PRICE")
	ErrAmountOverflow        = newError(KindValidation, "AMOUNT_OVERFLOW")
	ErrAmountUnderflow       = newError(KindValidation, "AMOUNT_UNDERFLOW")
)

// Funds.
var (
	ErrInsufficientBalance   = newError(KindInsufficientFunds, "INSUFFICIENT_BALANCE")
	ErrInsufficientAllowance = newError(KindInsufficientFunds, "INSUFFICIENT_ALLOWANCE")
)

// Post-conditions checked against external collaborators.
var (
	ErrFlashLoanNotRepaid  = newError(KindInvariant, "FLASH_LOAN_NOT_REPAID")
	ErrFlashReceiverFailed = newError(KindInvariant, "FLASH_RECEIVER_FAILED")
)

// Lookups.
var (
	ErrNotFound        = newError(KindNotFound, "NOT_FOUND")
	ErrRoundNotFound   = newError(KindNotFound, "ROUND_NOT_FOUND")
	ErrBetNotFound     = newError(KindNotFound, "BET_NOT_FOUND")
	ErrNotInitialized  = newError(KindNotFound, "NOT_INITIALIZED")
	ErrOwnerNotSet     = newError(KindNotFound, "OWNER_NOT_SET")
	ErrReceiverUnknown = newError(KindNotFound, "RECEIVER_UNKNOWN")
)

// Infrastructure errors that are not part of the market taxonomy.
var (
	ErrRateLimited       = errors.New("rate limited")
	ErrLockHeld          = errors.New("lock already held")
	ErrOracleUnavailable = errors.New("oracle unavailable")
)
