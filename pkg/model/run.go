package model

import "time"

// RunState represents the lifecycle state of a scheduler run.
type RunState string

const (
	RunStateRunning   RunState = "RUNNING"
	RunStateCompleted RunState = "COMPLETED"
	RunStateFailed    RunState = "FAILED"
	RunStateCancelled RunState = "CANCELLED"
)

// String returns the string representation of the run state.
func (s RunState) String() string {
	return string(s)
}

// IsTerminal returns true if the run is in a final state.
func (s RunState) IsTerminal() bool {
	switch s {
	case RunStateCompleted, RunStateFailed, RunStateCancelled:
		return true
	}
	return false
}

// Tally counts status records consumed by the supervisor.
type Tally struct {
	OK      int `json:"ok"`
	Rerun   int `json:"rerun"`
	Fatal   int `json:"fatal"`
	Empty   int `json:"empty"`
	Retired int `json:"retired"`
	Timeout int `json:"timeout"`
}

// Add counts one record of status s.
func (t *Tally) Add(s Status) {
	switch s {
	case StatusOK:
		t.OK++
	case StatusRerun:
		t.Rerun++
	case StatusFatal:
		t.Fatal++
	case StatusEmpty:
		t.Empty++
	case StatusRetire:
		t.Retired++
	case StatusTimeout:
		t.Timeout++
	}
}

// Jobs returns the number of executed jobs counted in the tally.
func (t Tally) Jobs() int {
	return t.OK + t.Rerun + t.Fatal + t.Timeout
}

// Run is a journaled scheduler invocation.
type Run struct {
	ID         string     `json:"id"`
	State      RunState   `json:"state"`
	ConfigPath string     `json:"config_path"`
	Workers    int        `json:"workers"`
	Samples    int        `json:"samples"`
	Tally      Tally      `json:"tally"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// ResultEntry is a status record as stored in the run journal.
type ResultEntry struct {
	ID         int64        `json:"id"`
	RunID      string       `json:"run_id"`
	Record     StatusRecord `json:"record"`
	RecordedAt time.Time    `json:"recorded_at"`
}
