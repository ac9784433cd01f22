package models

// Status is the review state of a PendingRecord.
type Status string

const (
	StatusPendingReview    Status = "pending_review"
	StatusPendingApproval  Status = "pending_approval"
	StatusNeedsManualEntry Status = "needs_manual_entry"
	StatusApproved         Status = "approved"
	StatusRejected         Status = "rejected"
)

// Confidence routing boundaries. Both are strict: 60 and 80 themselves land
// in pending_review.
const (
	LowConfidenceBoundary  = 60
	HighConfidenceBoundary = 80
)

// RouteByConfidence maps an overall confidence score to the initial review
// state of a freshly classified record.
func RouteByConfidence(confidence int) Status {
	switch {
	case confidence < LowConfidenceBoundary:
		return StatusNeedsManualEntry
	case confidence > HighConfidenceBoundary:
		return StatusPendingApproval
	default:
		return StatusPendingReview
	}
}

// Terminal reports whether a status permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// CanTransition is the single place that decides whether a status change is
// legal. Handlers must go through this instead of ad hoc checks.
func CanTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	switch to {
	case StatusPendingReview, StatusPendingApproval, StatusNeedsManualEntry,
		StatusApproved, StatusRejected:
		return true
	default:
		return false
	}
}
