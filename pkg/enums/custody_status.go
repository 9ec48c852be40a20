package enums

import "fmt"

// CustodyStatus maps to the custody_status enum in Postgres.
type CustodyStatus string

const (
	CustodyStatusPending    CustodyStatus = "pending"
	CustodyStatusCheckedOut CustodyStatus = "checked_out"
	CustodyStatusReturned   CustodyStatus = "returned"
	CustodyStatusCancelled  CustodyStatus = "cancelled"
)

var validCustodyStatuses = []CustodyStatus{
	CustodyStatusPending,
	CustodyStatusCheckedOut,
	CustodyStatusReturned,
	CustodyStatusCancelled,
}

// String implements fmt.Stringer.
func (s CustodyStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known CustodyStatus.
func (s CustodyStatus) IsValid() bool {
	for _, candidate := range validCustodyStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions leave this status.
func (s CustodyStatus) IsTerminal() bool {
	return s == CustodyStatusReturned || s == CustodyStatusCancelled
}

var custodyTransitions = map[CustodyStatus][]CustodyStatus{
	CustodyStatusPending:    {CustodyStatusCheckedOut, CustodyStatusReturned, CustodyStatusCancelled},
	CustodyStatusCheckedOut: {CustodyStatusPending, CustodyStatusReturned, CustodyStatusCancelled},
}

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
// A pending record reaches returned when the return signature arrives after
// a return was initiated.
func (s CustodyStatus) CanTransitionTo(next CustodyStatus) bool {
	for _, candidate := range custodyTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ParseCustodyStatus converts raw input into a CustodyStatus.
func ParseCustodyStatus(value string) (CustodyStatus, error) {
	for _, candidate := range validCustodyStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid custody status %q", value)
}
