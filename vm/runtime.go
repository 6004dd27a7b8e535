package vm

// Tracer observes a single VM run. The interpreter calls BeforeExecution
// synchronously for every instruction, consults ShouldStopExecution after
// each instruction and calls AfterVMExecution exactly once when the run stops.
type Tracer interface {
	BeforeExecution(state LocalState, data BeforeExecutionData, mem Memory)
	ShouldStopExecution() bool
	AfterVMExecution(final *FinalState, reason StopReason)
}

// Runtime builds VM instances for a bootloader run.
// This abstraction keeps the harness independent from any interpreter.
type Runtime interface {
	NewVM(batch BatchEnv, system SystemEnv) (VM, error)
}

// VM is one configured machine executing the bootloader.
type VM interface {
	// InspectBatch runs the bootloader to completion or until a tracer asks
	// to stop, with the given tracers attached.
	InspectBatch(tracers []Tracer) (StopReason, error)
	// Close releases interpreter resources.
	Close()
}

// Tracers fans a run out to several tracers.
type Tracers []Tracer

func (ts Tracers) BeforeExecution(state LocalState, data BeforeExecutionData, mem Memory) {
	for _, t := range ts {
		t.BeforeExecution(state, data, mem)
	}
}

func (ts Tracers) ShouldStopExecution() bool {
	for _, t := range ts {
		if t.ShouldStopExecution() {
			return true
		}
	}
	return false
}

func (ts Tracers) AfterVMExecution(final *FinalState, reason StopReason) {
	for _, t := range ts {
		t.AfterVMExecution(final, reason)
	}
}
