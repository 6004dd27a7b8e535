package wasmvm

import (
	"github.com/mrhapile/bootloader-test-infra/vm"
)

// runResult is what the host functions recorded during one entry call.
type runResult struct {
	pc       uint64
	stopped  bool
	halted   bool
	haltData []byte
}

// finalState builds the state tracers see when the run ends. A halted run
// is reported at the outer exception handler with the halt data exposed as
// return data through r1.
func (r runResult) finalState(enc vm.EncodingMode) (*vm.FinalState, vm.StopReason) {
	reason := vm.StopVMFinished
	if r.stopped {
		reason = vm.StopTracerRequested
	}
	mem := vm.NewPageMemory()
	final := &vm.FinalState{
		Local:          vm.LocalState{BaseMemoryPage: vm.InitialBasePage, PC: r.pc},
		Memory:         mem,
		ExecutionEnded: !r.stopped,
	}
	if r.halted && !r.stopped {
		mem.WriteBytes(ReturnDataPage, 0, r.haltData)
		final.Local.PC = enc.OuterExceptionHandlerPC()
		final.Local.Registers[vm.RetImplicitReturndataParamsRegister] = *vm.FatPointer{
			MemoryPage: ReturnDataPage,
			Length:     uint32(len(r.haltData)),
		}.Word()
	}
	return final, reason
}
