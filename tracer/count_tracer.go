package tracer

import (
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"github.com/mrhapile/bootloader-test-infra/hook"
	"github.com/mrhapile/bootloader-test-infra/vm"
)

// TestCountTracer reports the number of tests in the bootloader.
type TestCountTracer struct {
	proto hook.Protocol
	count *Cell[uint32]
	log   log.Logger
	err   error
}

// NewTestCountTracer creates a tracer that stores the reported test count
// in count.
func NewTestCountTracer(proto hook.Protocol, count *Cell[uint32], logger log.Logger) *TestCountTracer {
	if logger == nil {
		logger = log.Root()
	}
	return &TestCountTracer{proto: proto, count: count, log: logger}
}

func (t *TestCountTracer) BeforeExecution(state vm.LocalState, data vm.BeforeExecutionData, mem vm.Memory) {
	if t.err != nil || t.proto.Classify(state, data) != hook.KindTestCount {
		return
	}
	ev, err := t.proto.DecodeParams(hook.KindTestCount, t.proto.ReadParams(mem))
	if err != nil {
		t.err = err
		return
	}
	n := ev.(hook.TestCount).Count
	if err := t.count.Set(n); err != nil {
		prev, _ := t.count.Get()
		t.err = fmt.Errorf("test count reported twice (%d, then %d): %w", prev, n, err)
		return
	}
	t.log.Debug("Test count reported", "count", n, "pc", data.PC)
}

func (t *TestCountTracer) ShouldStopExecution() bool { return t.err != nil }

func (t *TestCountTracer) AfterVMExecution(*vm.FinalState, vm.StopReason) {}

// Err returns the fatal error of the discovery run, if any.
func (t *TestCountTracer) Err() error { return t.err }
