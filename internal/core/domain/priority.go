package domain

// Priority is a closed set of dispatch levels. Queues are drained in
// descending order: critical first, low last.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// PriorityOrder lists levels in dispatch order.
var PriorityOrder = []Priority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow}

// ParsePriority maps a submission string onto a level. The empty string
// defaults to medium; anything else unrecognized is rejected.
func ParsePriority(s string) (Priority, error) {
	switch Priority(s) {
	case "":
		return PriorityMedium, nil
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return Priority(s), nil
	}
	return "", &ValidationError{Field: "priority", Reason: "must be one of low|medium|high|critical"}
}

// Valid reports whether p is a recognized level.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}
