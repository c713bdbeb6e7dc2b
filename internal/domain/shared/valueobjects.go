// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// AccountID identifies the signed-in account that owns a ledger and its
// calendar. It is threaded explicitly into every store call.
type AccountID string

// IsEmpty reports whether no account is present.
func (a AccountID) IsEmpty() bool {
	return strings.TrimSpace(string(a)) == ""
}

// String returns the string representation.
func (a AccountID) String() string {
	return string(a)
}

// NewAccountID creates an AccountID, rejecting blank identifiers.
func NewAccountID(id string) (AccountID, error) {
	acc := AccountID(strings.TrimSpace(id))
	if acc.IsEmpty() {
		return "", ErrNoAccount
	}
	return acc, nil
}

// Require returns ErrNoAccount when the account is empty.
func (a AccountID) Require() error {
	if a.IsEmpty() {
		return ErrNoAccount
	}
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// YesNo
// ═══════════════════════════════════════════════════════════════════════════

// YesNo is a stored two-valued answer.
type YesNo string

const (
	Yes YesNo = "yes"
	No  YesNo = "no"
)

// YesNoOf converts a bool.
func YesNoOf(b bool) YesNo {
	if b {
		return Yes
	}
	return No
}

// Bool reports whether the answer is Yes. Anything other than Yes is No.
func (y YesNo) Bool() bool {
	return y == Yes
}

// IsValid checks if the value is one of the known answers.
func (y YesNo) IsValid() bool {
	return y == Yes || y == No
}

// ParseYesNo parses a stored answer, case-insensitively.
func ParseYesNo(s string) (YesNo, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes":
		return Yes, nil
	case "no":
		return No, nil
	default:
		return "", NewDomainError("shared", "ParseYesNo", ErrInvalidFormat, "expected yes or no, got "+s)
	}
}
