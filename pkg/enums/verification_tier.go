package enums

import "fmt"

// VerificationTier classifies the authenticity evidence behind a review.
// LedgerConfirmed reviews are anchored on the ledger; LocallyAttested reviews
// passed code redemption but could not be anchored at submission time.
type VerificationTier string

const (
	VerificationTierLedgerConfirmed VerificationTier = "ledger_confirmed"
	VerificationTierLocallyAttested VerificationTier = "locally_attested"
)

var validVerificationTiers = []VerificationTier{
	VerificationTierLedgerConfirmed,
	VerificationTierLocallyAttested,
}

// IsValid reports whether the value matches the canonical tier enum.
func (t VerificationTier) IsValid() bool {
	for _, candidate := range validVerificationTiers {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseVerificationTier converts raw input into VerificationTier.
func ParseVerificationTier(value string) (VerificationTier, error) {
	for _, candidate := range validVerificationTiers {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid verification tier %q", value)
}
