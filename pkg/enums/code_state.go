package enums

import "fmt"

// CodeState tracks the single-use lifecycle of a delivery code.
// Redeemed is terminal; there is no revoked state.
type CodeState string

const (
	CodeStateIssued   CodeState = "issued"
	CodeStateRedeemed CodeState = "redeemed"
)

var validCodeStates = []CodeState{
	CodeStateIssued,
	CodeStateRedeemed,
}

// IsValid reports whether the value matches the canonical code state enum.
func (s CodeState) IsValid() bool {
	for _, candidate := range validCodeStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseCodeState converts raw input into CodeState.
func ParseCodeState(value string) (CodeState, error) {
	for _, candidate := range validCodeStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid code state %q", value)
}
