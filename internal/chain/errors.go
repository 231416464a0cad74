package chain

import (
	"errors"
	"fmt"
)

// RevertError is the typed failure reason of a ledger operation.
//
// Every mutation that returns a RevertError is rolled back in full; nothing
// it wrote survives. The reverted transaction itself is still recorded.
type RevertError struct {
	// Code identifies the error category.
	Code RevertCode

	// Message is a human-readable description.
	Message string

	// Contract identifies the contract that reverted (zero if not applicable).
	Contract Address

	// Details contains additional context.
	Details map[string]string
}

// RevertCode categorizes revert reasons.
type RevertCode string

const (
	// CodeNotAuthorized: the caller lacks the required role. Never retried.
	CodeNotAuthorized RevertCode = "NOT_AUTHORIZED"

	// CodeLimitExceeded: the creator exhausted their issuance quota.
	CodeLimitExceeded RevertCode = "LIMIT_EXCEEDED"

	// CodeAddressDerivationMismatch: the deployed address differs from the
	// predicted one. Fatal; must never be swallowed.
	CodeAddressDerivationMismatch RevertCode = "ADDRESS_DERIVATION_MISMATCH"

	// CodeAlreadyBound: a deployer rebind to a different registry.
	CodeAlreadyBound RevertCode = "ALREADY_BOUND"

	// CodeDeploymentCollision: the CREATE2 target is already occupied.
	CodeDeploymentCollision RevertCode = "DEPLOYMENT_COLLISION"

	// CodeCutRejected: a facet cut failed validation; nothing was applied.
	CodeCutRejected RevertCode = "CUT_REJECTED"

	// CodeInvalidInputLength: a byte-string argument has the wrong length.
	CodeInvalidInputLength RevertCode = "INVALID_INPUT_LENGTH"

	// CodeInvalidInput: an argument is well-formed but not acceptable.
	CodeInvalidInput RevertCode = "INVALID_INPUT"

	// CodeNotFound: no contract of the expected kind lives at an address.
	CodeNotFound RevertCode = "NOT_FOUND"
)

// Error implements the error interface.
func (e *RevertError) Error() string {
	if e.Contract != ZeroAddress {
		return fmt.Sprintf("%s: %s (contract=%s)", e.Code, e.Message, e.Contract.Hex())
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Revert creates a RevertError raised by contract.
func Revert(code RevertCode, contract Address, format string, args ...any) *RevertError {
	return &RevertError{
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Contract: contract,
	}
}

// WithDetail attaches a key/value pair of diagnostic context.
func (e *RevertError) WithDetail(key, value string) *RevertError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// CodeOf extracts the revert code from an error chain.
// Returns "" if err is not (and does not wrap) a RevertError.
func CodeOf(err error) RevertCode {
	var re *RevertError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// IsRevert reports whether err carries the given revert code.
// Uses errors.As to handle wrapped errors.
func IsRevert(err error, code RevertCode) bool {
	return CodeOf(err) == code
}

// IsDerivationMismatch returns true if the error is the fatal
// off-chain/on-ledger address formula divergence.
func IsDerivationMismatch(err error) bool {
	return IsRevert(err, CodeAddressDerivationMismatch)
}
