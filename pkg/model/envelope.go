package model

import "fmt"

// RunnerKind identifies which stage runner executes an envelope.
type RunnerKind string

const (
	RunnerMapper          RunnerKind = "mapper"
	RunnerAssembler       RunnerKind = "assembler"
	RunnerAssemblyChecker RunnerKind = "assembly_checker"
	RunnerFinisher        RunnerKind = "finisher"
)

// String returns the string representation of the runner kind.
func (k RunnerKind) String() string {
	return string(k)
}

// Envelope is a unit of work placed on the inbound job queue.
// It is consumed exactly once by the worker that pops it.
type Envelope struct {
	Runner  RunnerKind `json:"runner"`
	Params  Params     `json:"params"`
	Message string     `json:"message"`
}

// NewEnvelope builds an envelope around a deep copy of p.
func NewEnvelope(kind RunnerKind, p *Params, format string, args ...any) Envelope {
	return Envelope{
		Runner:  kind,
		Params:  *p.Clone(),
		Message: fmt.Sprintf(format, args...),
	}
}

// Clone returns a copy of the envelope that shares no mutable state with e.
func (e Envelope) Clone() Envelope {
	e.Params = *e.Params.Clone()
	return e
}
