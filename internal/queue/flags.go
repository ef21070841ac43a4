package queue

import "sync/atomic"

// Flags holds one done flag per worker slot.
// Each slot has a single writer (its worker, or the supervisor while the
// slot has no live worker), so plain atomic loads and stores suffice.
type Flags struct {
	done []atomic.Bool
}

// NewFlags creates n flags, all not-done.
func NewFlags(n int) *Flags {
	return &Flags{done: make([]atomic.Bool, n)}
}

// Len returns the number of slots.
func (f *Flags) Len() int {
	return len(f.done)
}

// SetDone marks slot i as idle with an empty queue observed.
func (f *Flags) SetDone(i int) {
	f.done[i].Store(true)
}

// SetBusy marks slot i as holding or about to execute a job.
func (f *Flags) SetBusy(i int) {
	f.done[i].Store(false)
}

// Done reports whether slot i is idle.
func (f *Flags) Done(i int) bool {
	return f.done[i].Load()
}

// AllDone reports whether every slot is idle.
func (f *Flags) AllDone() bool {
	for i := range f.done {
		if !f.done[i].Load() {
			return false
		}
	}
	return true
}

// Snapshot returns the current value of every flag.
func (f *Flags) Snapshot() []bool {
	out := make([]bool, len(f.done))
	for i := range f.done {
		out[i] = f.done[i].Load()
	}
	return out
}
