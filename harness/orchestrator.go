// Package harness runs the tests embedded in a test bootloader: one
// discovery run to learn the test count, then one isolated run per test.
package harness

import (
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"github.com/mrhapile/bootloader-test-infra/hook"
	"github.com/mrhapile/bootloader-test-infra/tracer"
	"github.com/mrhapile/bootloader-test-infra/vm"
)

// Config is the environment every run starts from.
type Config struct {
	Batch    vm.BatchEnv
	System   vm.SystemEnv
	Protocol hook.Protocol
	Logger   log.Logger
}

// Orchestrator sequences bootloader runs on a runtime.
type Orchestrator struct {
	runtime vm.Runtime
	cfg     Config
	log     log.Logger
}

func New(runtime vm.Runtime, cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Root()
	}
	return &Orchestrator{runtime: runtime, cfg: cfg, log: logger}
}

// Discover runs the bootloader once without a test selected and returns the
// number of tests it reports.
func (o *Orchestrator) Discover() (uint32, error) {
	var count tracer.Cell[uint32]
	t := tracer.NewTestCountTracer(o.cfg.Protocol, &count, o.log)

	if err := o.inspect(StageDiscovery, 0, o.cfg.Batch.WithTestSelector(0), t); err != nil {
		return 0, err
	}
	if err := t.Err(); err != nil {
		return 0, &HarnessError{Stage: StageDiscovery, Message: "discovery run failed", Cause: err}
	}
	n, ok := count.Get()
	if !ok {
		return 0, &HarnessError{Stage: StageDiscovery, Message: "discovery run finished", Cause: ErrNoTestCount}
	}
	return n, nil
}

// RunTest executes test id in a fresh VM with a fresh tracer. The returned
// error is non-nil only for failures of the harness itself.
func (o *Orchestrator) RunTest(id uint32) (TestResult, error) {
	result := TestResult{ID: id}
	logger := o.log.New("id", id)
	t := tracer.NewTestTracer(o.cfg.Protocol, o.cfg.System.Encoding, logger)

	if err := o.inspect(StageExecute, id, o.cfg.Batch.WithTestSelector(id), t); err != nil {
		return result, err
	}
	if err := t.Err(); err != nil {
		return result, &HarnessError{Stage: StageProtocol, TestID: id, Message: "hook payload", Cause: err}
	}

	out := t.Outcome()
	if out.Verdict == tracer.Pending {
		return result, &HarnessError{Stage: StageExecute, TestID: id, Message: "run ended without a verdict"}
	}
	result.Name = t.Name()
	result.Verdict = out.Verdict
	result.Reason = out.Reason
	result.Logs = logLines(t.Logs())
	return result, nil
}

// Run discovers the tests and runs them in ascending id order. When ids are
// given only those are run, in the given order. A failing test never stops
// the batch; a harness error does and is also recorded in the report.
func (o *Orchestrator) Run(ids ...uint32) (Report, error) {
	report := Report{Results: make([]TestResult, 0)}

	count, err := o.Discover()
	if err != nil {
		report.abort(err)
		return report, err
	}
	report.TotalTests = count
	o.log.Info("Running tests", "count", count)

	if len(ids) == 0 {
		ids = make([]uint32, 0, count)
		for id := uint64(1); id <= uint64(count); id++ {
			ids = append(ids, uint32(id))
		}
	}
	for _, id := range ids {
		if id == 0 || id > count {
			err := &HarnessError{Stage: StageSetup, TestID: id, Message: fmt.Sprintf("no such test, bootloader has %d", count)}
			report.abort(err)
			return report, err
		}
	}

	// Process each test sequentially (no concurrency)
	for _, id := range ids {
		o.log.Info("Running test", "id", id)
		res, err := o.RunTest(id)
		if err != nil {
			report.abort(err)
			return report, err
		}
		report.add(res)
	}
	o.log.Info("Tests finished", "passed", report.Passed, "failed", report.Failed)
	return report, nil
}

// inspect runs one VM with t attached. Panics from the interpreter are
// recovered and reported as harness errors.
func (o *Orchestrator) inspect(stage FailureStage, id uint32, batch vm.BatchEnv, t vm.Tracer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &HarnessError{Stage: stage, TestID: id, Message: fmt.Sprintf("panic recovered: %v", r)}
		}
	}()

	machine, err := o.runtime.NewVM(batch, o.cfg.System)
	if err != nil {
		return classify(err, StageSetup, id, "vm construction failed")
	}
	defer machine.Close()

	reason, err := machine.InspectBatch([]vm.Tracer{t})
	if err != nil {
		return classify(err, stage, id, "vm run failed")
	}
	o.log.Debug("VM run stopped", "id", id, "reason", reason)
	return nil
}
