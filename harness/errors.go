package harness

import (
	"errors"
	"fmt"
)

// ErrNoTestCount is returned when the discovery run never reported a count.
var ErrNoTestCount = errors.New("bootloader did not report a test count")

// HarnessError is a failure of the harness or its collaborators, as opposed
// to a failing test. It aborts the whole batch.
type HarnessError struct {
	Stage   FailureStage
	TestID  uint32
	Message string
	Cause   error
}

func (e *HarnessError) Error() string {
	prefix := string(e.Stage)
	if e.TestID != 0 {
		prefix = fmt.Sprintf("%s (test %d)", e.Stage, e.TestID)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *HarnessError) Unwrap() error { return e.Cause }

// classify keeps the stage of errors that already carry one.
func classify(err error, stage FailureStage, id uint32, msg string) error {
	var herr *HarnessError
	if errors.As(err, &herr) {
		return err
	}
	return &HarnessError{Stage: stage, TestID: id, Message: msg, Cause: err}
}
