package core

import "github.com/cockroachdb/errors"

// Error kinds. Every failure returned by the protocol is marked with exactly
// one of these so callers can branch with errors.Is.
var (
	ErrValidation     = errors.New("validation error")
	ErrAuthorization  = errors.New("authorization error")
	ErrState          = errors.New("state error")
	ErrFunds          = errors.New("funds error")
	ErrTiming         = errors.New("timing error")
	ErrReconciliation = errors.New("reconciliation error")
	ErrNotFound       = errors.New("record not found")
	ErrAlreadyExists  = errors.New("record already exists")
)

// conditionError is a named failure. It matches its own identity and its kind.
type conditionError struct {
	msg  string
	kind error
}

func (e *conditionError) Error() string { return e.msg }

func (e *conditionError) Is(target error) bool { return target == e.kind }

func condition(msg string, kind error) error {
	return &conditionError{msg: msg, kind: kind}
}

// Named conditions.
var (
	ErrNameTooLong              = condition("agent name too long (max 32 chars)", ErrValidation)
	ErrDescriptionTooLong       = condition("description too long", ErrValidation)
	ErrInvalidPrice             = condition("price must be greater than zero", ErrValidation)
	ErrAgentNotActive           = condition("agent is not active", ErrState)
	ErrInsufficientPayment      = condition("insufficient payment", ErrFunds)
	ErrInvalidJobStatus         = condition("invalid job status for this operation", ErrState)
	ErrUnauthorized             = condition("unauthorized", ErrAuthorization)
	ErrInvalidRating            = condition("rating must be between 1 and 5", ErrValidation)
	ErrInsufficientEscrow       = condition("insufficient escrow balance for delegation", ErrFunds)
	ErrEmptyResultURI           = condition("result uri is required", ErrValidation)
	ErrEmptyDescription         = condition("description is required", ErrValidation)
	ErrAutoReleaseNotReady      = condition("auto-release time has not been reached", ErrTiming)
	ErrNoAutoRelease            = condition("no auto-release configured for this job", ErrTiming)
	ErrDisputeTimeoutNotReached = condition("dispute timeout has not been reached", ErrTiming)
	ErrUnresolvedChildren       = condition("agent has unresolved child delegations", ErrReconciliation)
	ErrParentJobMismatch        = condition("parent job mismatch", ErrReconciliation)
	ErrOverflow                 = condition("arithmetic overflow", ErrFunds)
	ErrTooManyDelegations       = condition("too many active delegations (max 8)", ErrReconciliation)

	ErrEmptyName          = condition("agent name is required", ErrValidation)
	ErrResultURITooLong   = condition("result uri too long (max 128 chars)", ErrValidation)
	ErrInvalidAmount      = condition("amount must be greater than zero", ErrValidation)
	ErrInvalidAutoRelease = condition("auto-release seconds must not be negative", ErrValidation)
	ErrInsufficientFunds  = condition("insufficient funds", ErrFunds)
	ErrCustodyMismatch    = condition("custody balance does not match escrow", ErrFunds)
	ErrChildCounter       = condition("active child counter out of range", ErrReconciliation)
	ErrAgentNotFound      = condition("agent profile not found", ErrNotFound)
	ErrJobNotFound        = condition("job not found", ErrNotFound)
	ErrAgentExists        = condition("agent profile already registered", ErrAlreadyExists)
	ErrJobExists          = condition("job already exists", ErrAlreadyExists)
	ErrDuplicateRating    = condition("job has already been rated", ErrAlreadyExists)
	ErrInvalidTransaction = condition("invalid transaction", ErrValidation)
	ErrInvalidSignature   = condition("invalid signature", ErrAuthorization)
	ErrInvalidNonce       = condition("invalid nonce", ErrAuthorization)
	ErrUnknownTransaction = condition("unknown transaction type", ErrValidation)
)

// CodeInternal is returned for failures that carry no protocol condition.
const CodeInternal uint32 = 1

// Named conditions map to codeBase plus their position in conditionCodes.
const codeBase uint32 = 6000

var conditionCodes = []error{
	ErrNameTooLong,
	ErrDescriptionTooLong,
	ErrInvalidPrice,
	ErrAgentNotActive,
	ErrInsufficientPayment,
	ErrInvalidJobStatus,
	ErrUnauthorized,
	ErrInvalidRating,
	ErrInsufficientEscrow,
	ErrEmptyResultURI,
	ErrEmptyDescription,
	ErrAutoReleaseNotReady,
	ErrNoAutoRelease,
	ErrDisputeTimeoutNotReached,
	ErrUnresolvedChildren,
	ErrParentJobMismatch,
	ErrOverflow,
	ErrTooManyDelegations,
	ErrEmptyName,
	ErrResultURITooLong,
	ErrInvalidAmount,
	ErrInvalidAutoRelease,
	ErrInsufficientFunds,
	ErrCustodyMismatch,
	ErrChildCounter,
	ErrAgentNotFound,
	ErrJobNotFound,
	ErrAgentExists,
	ErrJobExists,
	ErrDuplicateRating,
	ErrInvalidTransaction,
	ErrInvalidSignature,
	ErrInvalidNonce,
	ErrUnknownTransaction,
}

var kinds = []error{
	ErrValidation,
	ErrAuthorization,
	ErrState,
	ErrFunds,
	ErrTiming,
	ErrReconciliation,
	ErrNotFound,
	ErrAlreadyExists,
}

// Code maps an error to a stable non-zero ABCI result code. Zero is success.
func Code(err error) uint32 {
	if err == nil {
		return 0
	}
	for i, c := range conditionCodes {
		if errors.Is(err, c) {
			return codeBase + uint32(i)
		}
	}
	for i, k := range kinds {
		if errors.Is(err, k) {
			return 100 + uint32(i)
		}
	}
	return CodeInternal
}

// Kind returns the kind an error is marked with, or nil.
func Kind(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// KindOf returns the kind behind a result code produced by Code, or nil.
func KindOf(code uint32) error {
	switch {
	case code >= codeBase && code-codeBase < uint32(len(conditionCodes)):
		return Kind(conditionCodes[code-codeBase])
	case code >= 100 && code-100 < uint32(len(kinds)):
		return kinds[code-100]
	}
	return nil
}
