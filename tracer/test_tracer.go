// Package tracer holds the observers the harness attaches to bootloader runs.
package tracer

import (
	"strings"

	"github.com/ethereum/go-ethereum/log"

	"github.com/mrhapile/bootloader-test-infra/hook"
	"github.com/mrhapile/bootloader-test-infra/vm"
)

// AssertionPrefix prefixes the halt message of a failed bootloader assertion.
const AssertionPrefix = "Assertion error: "

type runState uint8

const (
	running runState = iota
	failedState
	completed
)

// TestTracer checks the asserts of the test that is currently running and
// decides its verdict. One TestTracer serves exactly one VM run.
type TestTracer struct {
	proto    hook.Protocol
	encoding vm.EncodingMode
	log      log.Logger

	state runState
	// Set if the running test should halt with this assertion message.
	requestedAssert *string
	name            string
	logs            []hook.TestLog
	outcome         Outcome
	err             error
}

// NewTestTracer creates a tracer for one test run. A nil logger logs to
// the root logger.
func NewTestTracer(proto hook.Protocol, encoding vm.EncodingMode, logger log.Logger) *TestTracer {
	if logger == nil {
		logger = log.Root()
	}
	return &TestTracer{proto: proto, encoding: encoding, log: logger}
}

func (t *TestTracer) BeforeExecution(state vm.LocalState, data vm.BeforeExecutionData, mem vm.Memory) {
	// First terminal verdict wins.
	if t.state != running || t.err != nil {
		return
	}
	ev, err := t.proto.Decode(state, data, mem)
	if err != nil {
		t.err = err
		t.log.Error("Undecodable hook", "test", t.name, "pc", data.PC, "err", err)
		return
	}
	switch ev := ev.(type) {
	case hook.TestLog:
		t.logs = append(t.logs, ev)
		t.log.Info("Test log", "test", t.name, "message", ev.Message, "value", ev.Value)
	case hook.AssertEqFailed:
		t.state = failedState
		t.outcome = Outcome{Verdict: Fail, Reason: ev.String()}
		t.log.Warn("TEST FAILED", "test", t.name, "reason", t.outcome.Reason)
	case hook.RequestedAssert:
		msg := ev.Message
		t.requestedAssert = &msg
		t.log.Debug("Test expects assertion", "test", t.name, "message", msg)
	case hook.TestStart:
		t.name = ev.Name
		t.log.Debug("Test started", "test", t.name)
	}
}

// ShouldStopExecution asks the interpreter to stop once the test failed or
// a hook could not be decoded.
func (t *TestTracer) ShouldStopExecution() bool {
	return t.state == failedState || t.err != nil
}

func (t *TestTracer) AfterVMExecution(final *vm.FinalState, reason vm.StopReason) {
	if t.state != running || t.err != nil {
		return
	}
	t.state = completed
	t.outcome = t.evaluate(final, reason)
	if t.outcome.Verdict == Pass {
		t.log.Info("[PASS]", "test", t.name)
	} else {
		t.log.Warn("Test failed", "test", t.name, "reason", t.outcome.Reason)
	}
}

func (t *TestTracer) evaluate(final *vm.FinalState, reason vm.StopReason) Outcome {
	if t.requestedAssert == nil {
		return passed()
	}
	want := *t.requestedAssert
	got, halted := t.haltReason(final, reason)
	switch {
	case !halted:
		return failed("should have failed with `%s`, but ran successfully", want)
	case got == want:
		return passed()
	default:
		return failed("should have failed with `%s`, but failed with `%s`", want, got)
	}
}

// haltReason reports whether the run stopped through the outer exception
// handler and, if so, the assertion message it halted with.
func (t *TestTracer) haltReason(final *vm.FinalState, reason vm.StopReason) (string, bool) {
	if final == nil || reason != vm.StopVMFinished || !final.ExecutionEnded {
		return "", false
	}
	if final.Local.PC != t.encoding.OuterExceptionHandlerPC() {
		return "", false
	}
	// A set overflow flag at the handler means the bootloader panicked
	// instead of reverting with a reason.
	if final.Local.Flags.OverflowOrLessThan {
		return "bootloader panic", true
	}
	halt := vm.ParseHalt(final.ReturnData())
	if halt.Code != vm.HaltUnexpectedVMBehavior {
		return halt.String(), true
	}
	return strings.TrimPrefix(halt.Message, AssertionPrefix), true
}

// Outcome returns the verdict of the run. It is Pending until the run
// failed or AfterVMExecution was called.
func (t *TestTracer) Outcome() Outcome { return t.outcome }

// Name returns the name announced by the last TestStart hook.
func (t *TestTracer) Name() string { return t.name }

// Logs returns the test logs seen during the run.
func (t *TestTracer) Logs() []hook.TestLog { return t.logs }

// RequestedAssert returns the assertion the test declared it halts with.
func (t *TestTracer) RequestedAssert() (string, bool) {
	if t.requestedAssert == nil {
		return "", false
	}
	return *t.requestedAssert, true
}

// Err returns the fatal decoding error of the run, if any.
func (t *TestTracer) Err() error { return t.err }
