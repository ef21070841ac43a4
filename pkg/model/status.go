package model

import "fmt"

// Status is the result code a worker places on the result queue.
// The numeric values are part of the result-queue wire format.
type Status int

const (
	StatusOK      Status = 0
	StatusRerun   Status = 1
	StatusFatal   Status = 2
	StatusEmpty   Status = 3
	StatusRetire  Status = 4
	StatusTimeout Status = 5
)

// String returns the lowercase name of the status.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusRerun:
		return "rerun"
	case StatusFatal:
		return "fatal"
	case StatusEmpty:
		return "empty"
	case StatusRetire:
		return "retire"
	case StatusTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Valid reports whether s is one of the known status codes.
func (s Status) Valid() bool {
	return s >= StatusOK && s <= StatusTimeout
}

// IsJobResult returns true for statuses produced by executing a job,
// as opposed to worker lifecycle signals (EMPTY, RETIRE).
func (s Status) IsJobResult() bool {
	switch s {
	case StatusOK, StatusRerun, StatusFatal, StatusTimeout:
		return true
	}
	return false
}

// AllStatuses lists every status in wire order.
var AllStatuses = []Status{StatusOK, StatusRerun, StatusFatal, StatusEmpty, StatusRetire, StatusTimeout}

// StatusRecord is one message on the result queue.
type StatusRecord struct {
	Status  Status     `json:"status"`
	Process string     `json:"process"`
	Slot    int        `json:"slot"`
	Runner  RunnerKind `json:"runner,omitempty"`
	Message string     `json:"message,omitempty"`
	Error   string     `json:"error,omitempty"`
}
