package event

import "time"

type Status string

const (
	StatusPassed    Status = "passed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
	StatusPending   Status = "pending"
	StatusUndefined Status = "undefined"
	StatusAmbiguous Status = "ambiguous"
	StatusUnused    Status = "unused"
)

// Known reports whether s is one of the engine's statuses.
func (s Status) Known() bool {
	switch s {
	case StatusPassed, StatusFailed, StatusSkipped, StatusPending,
		StatusUndefined, StatusAmbiguous, StatusUnused:
		return true
	}
	return false
}

type Result struct {
	Status       Status        `json:"status"`
	ErrorMessage string        `json:"error,omitempty"`
	StackTrace   string        `json:"stackTrace,omitempty"`
	Duration     time.Duration `json:"duration,omitempty"`
}
