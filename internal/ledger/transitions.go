package ledger

import (
	"fmt"
	"strings"
)

// Status is the application lifecycle state of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSkipped   Status = "skipped"
	StatusApplied   Status = "applied"
	StatusRejected  Status = "rejected"
	StatusInterview Status = "interview"
	StatusOffer     Status = "offer"
)

// validTransitions is the lifecycle graph. Offer and rejected are
// terminal; a skipped job can be reconsidered and applied to later.
var validTransitions = map[Status][]Status{
	StatusPending:   {StatusApplied, StatusSkipped, StatusRejected},
	StatusSkipped:   {StatusApplied},
	StatusApplied:   {StatusInterview, StatusRejected},
	StatusInterview: {StatusOffer, StatusRejected},
	StatusRejected:  {},
	StatusOffer:     {},
}

// ParseStatus validates a user-supplied status string.
func ParseStatus(s string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := validTransitions[status]; !ok {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return status, nil
}

// IsTransitionAllowed reports whether the lifecycle graph permits moving
// from one status to another.
func IsTransitionAllowed(from, to Status) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Statuses returns every known status, for CLI help output.
func Statuses() []string {
	return []string{
		string(StatusPending),
		string(StatusSkipped),
		string(StatusApplied),
		string(StatusRejected),
		string(StatusInterview),
		string(StatusOffer),
	}
}
