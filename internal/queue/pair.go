package queue

import "github.com/me/arc/pkg/model"

// Pair bundles the shared state of one run: the inbound job queue, the
// outbound result queue, the per-slot done flags and the universals.
type Pair struct {
	Jobs       *Queue[model.Envelope]
	Results    *Queue[model.StatusRecord]
	Flags      *Flags
	Universals *Universals
}

// NewPair creates the shared state for a pool of n workers.
func NewPair(n int) *Pair {
	return &Pair{
		Jobs:       New[model.Envelope](),
		Results:    New[model.StatusRecord](),
		Flags:      NewFlags(n),
		Universals: NewUniversals(),
	}
}

// Submit places a deep copy of env on the job queue, so the caller may keep
// mutating its own params afterwards.
func (p *Pair) Submit(env model.Envelope) {
	p.Jobs.Push(env.Clone())
}

// Report places a status record on the result queue.
func (p *Pair) Report(rec model.StatusRecord) {
	p.Results.Push(rec)
}
