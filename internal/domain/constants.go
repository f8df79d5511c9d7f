package domain

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// IsTerminal reports whether no further transition is allowed from status.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

// ReferencePrefix starts every payer-facing reference, e.g. DP-7KQ2M9X.
const ReferencePrefix = "DP-"

const (
	// TimeoutMessage is shown when the payer never completes the prompt.
	TimeoutMessage = "Payment timed out. If you completed the payment on your phone, it may still be processing."
	// DefaultFailureMessage is used when the gateway gives no description.
	DefaultFailureMessage = "Payment failed"
)
