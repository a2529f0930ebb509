package enums

// EligibilityReason explains the outcome of a review eligibility check.
type EligibilityReason string

const (
	EligibilityReasonEligible           EligibilityReason = "eligible"
	EligibilityReasonNoVerifiedPurchase EligibilityReason = "no_verified_purchase"
	EligibilityReasonAlreadyReviewed    EligibilityReason = "already_reviewed"
)
