package runner

import (
	"errors"
	"fmt"

	"github.com/me/arc/pkg/model"
)

// OutcomeError carries the status a job wants reported along with its cause.
type OutcomeError struct {
	Status model.Status // StatusRerun, StatusFatal or StatusTimeout
	Err    error
}

func (e *OutcomeError) Error() string {
	if e.Err == nil {
		return e.Status.String()
	}
	return fmt.Sprintf("%s: %v", e.Status, e.Err)
}

func (e *OutcomeError) Unwrap() error {
	return e.Err
}

// Rerun marks err as transient; the job may be retried by its stage.
func Rerun(err error) error {
	return &OutcomeError{Status: model.StatusRerun, Err: err}
}

// Fatal marks err as unrecoverable; the whole run is aborted.
func Fatal(err error) error {
	return &OutcomeError{Status: model.StatusFatal, Err: err}
}

// Fatalf is Fatal(fmt.Errorf(format, args...)).
func Fatalf(format string, args ...any) error {
	return Fatal(fmt.Errorf(format, args...))
}

// Timeout marks err as a job that exceeded its time budget.
func Timeout(err error) error {
	return &OutcomeError{Status: model.StatusTimeout, Err: err}
}

// StatusOf maps the result of Runner.Execute to a status.
// It returns false when err is not a recognised outcome, which callers must
// treat as a fault rather than a status.
func StatusOf(err error) (model.Status, bool) {
	if err == nil {
		return model.StatusOK, true
	}
	var oe *OutcomeError
	if errors.As(err, &oe) {
		switch oe.Status {
		case model.StatusRerun, model.StatusFatal, model.StatusTimeout:
			return oe.Status, true
		}
	}
	return 0, false
}
