package model

import (
	"net/url"
	"strconv"
	"time"
)

// ResponseStatus is "ok" or "error".
type ResponseStatus string

const (
	ResponseOK    ResponseStatus = "ok"
	ResponseError ResponseStatus = "error"
)

// Response wraps every status API payload. Exactly one of Data and Error
// is set.
type Response struct {
	Status     ResponseStatus `json:"status"`
	RequestID  string         `json:"request_id"`
	Timestamp  time.Time      `json:"timestamp"`
	Data       any            `json:"data"`
	Pagination *Pagination    `json:"pagination,omitempty"`
	Error      *APIError      `json:"error"`
}

type Pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// Journal listings return at most MaxListLimit runs, DefaultListLimit when
// the caller does not ask.
const (
	DefaultListLimit = 20
	MaxListLimit     = 500
)

// ListOptions selects a page of journaled runs.
type ListOptions struct {
	Limit  int
	Offset int
	State  RunState // empty matches every state
}

// Clamp keeps Limit within 1..MaxListLimit and Offset non-negative.
func (o *ListOptions) Clamp() {
	switch {
	case o.Limit <= 0:
		o.Limit = DefaultListLimit
	case o.Limit > MaxListLimit:
		o.Limit = MaxListLimit
	}
	o.Offset = max(o.Offset, 0)
}

// Page describes the n items returned for o out of total.
func (o ListOptions) Page(n, total int) *Pagination {
	return &Pagination{
		Total:   total,
		Limit:   o.Limit,
		Offset:  o.Offset,
		HasMore: o.Offset+n < total,
	}
}

// ParseListOptions reads limit, offset and state from a query string and
// clamps the result. Malformed values yield a VALIDATION_ERROR.
func ParseListOptions(q url.Values) (ListOptions, *APIError) {
	var o ListOptions
	for _, f := range []struct {
		key string
		dst *int
	}{{"limit", &o.Limit}, {"offset", &o.Offset}} {
		v := q.Get(f.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return ListOptions{}, NewValidationError("invalid %s %q", f.key, v)
		}
		*f.dst = n
	}
	if v := q.Get("state"); v != "" {
		o.State = RunState(v)
		if o.State != RunStateRunning && !o.State.IsTerminal() {
			return ListOptions{}, NewValidationError("invalid state %q", v)
		}
	}
	o.Clamp()
	return o, nil
}
