package queue

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync/atomic"
	"time"
)

// ErrAlreadyPublished is returned when universals are published twice.
var ErrAlreadyPublished = errors.New("universals already published")

// Universals is configuration shared read-only by every worker.
// It is written once with Publish during setup; reads before that see an empty map.
type Universals struct {
	m atomic.Pointer[map[string]any]
}

// NewUniversals returns an unpublished set of universals.
func NewUniversals() *Universals {
	return &Universals{}
}

// Publish copies values into the universals. It may be called only once.
func (u *Universals) Publish(values map[string]any) error {
	m := make(map[string]any, len(values))
	for k, v := range values {
		m[k] = v
	}
	if !u.m.CompareAndSwap(nil, &m) {
		return ErrAlreadyPublished
	}
	return nil
}

// Published reports whether Publish has been called.
func (u *Universals) Published() bool {
	return u.m.Load() != nil
}

// Get returns the value stored under key.
func (u *Universals) Get(key string) (any, bool) {
	m := u.m.Load()
	if m == nil {
		return nil, false
	}
	v, ok := (*m)[key]
	return v, ok
}

// Keys returns all keys in sorted order.
func (u *Universals) Keys() []string {
	m := u.m.Load()
	if m == nil {
		return nil
	}
	keys := make([]string, 0, len(*m))
	for k := range *m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String returns the value under key formatted as a string, or def if absent.
func (u *Universals) String(key, def string) string {
	v, ok := u.Get(key)
	if !ok || v == nil {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Int returns the integer value under key, or def if absent or not numeric.
func (u *Universals) Int(key string, def int) int {
	v, ok := u.Get(key)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i
		}
	}
	return def
}

// Bool returns the boolean value under key, or def if absent.
func (u *Universals) Bool(key string, def bool) bool {
	v, ok := u.Get(key)
	if !ok {
		return def
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		if parsed, err := strconv.ParseBool(b); err == nil {
			return parsed
		}
	}
	return def
}

// Duration returns the duration under key, or def if absent or unparsable.
func (u *Universals) Duration(key string, def time.Duration) time.Duration {
	v, ok := u.Get(key)
	if !ok {
		return def
	}
	switch d := v.(type) {
	case time.Duration:
		return d
	case string:
		if parsed, err := time.ParseDuration(d); err == nil {
			return parsed
		}
	}
	return def
}
