// Package vmtest provides a scripted interpreter that replays a fixed
// instruction sequence against the vm contracts, for use in tests.
package vmtest

import (
	"sync"

	"github.com/holiman/uint256"

	"github.com/mrhapile/bootloader-test-infra/vm"
)

// ReturnDataPage is the page the scripted machine places halt data in.
const ReturnDataPage uint32 = 2

// Step is a single scripted instruction. Heap writes are applied to the
// bootloader heap page after tracers have observed the instruction.
type Step struct {
	Opcode   vm.Opcode
	Src0     uint256.Int
	Src1     uint256.Int
	BasePage uint32
}

// Program is the scripted behaviour of one bootloader run.
type Program struct {
	Steps []Step
	// Halt, when set, makes the run end through the outer exception handler
	// with the encoded halt as return data.
	Halt *vm.Halt
	// HaltPC overrides the pc reported on halt.
	HaltPC *uint64
	// HaltFlags are the flags reported on halt.
	HaltFlags vm.Flags
	// Panic, when non-nil, is raised after the steps were replayed.
	Panic interface{}
}

// Machine replays a Program.
type Machine struct {
	Program  *Program
	Encoding vm.EncodingMode

	// Executed counts the replayed steps.
	Executed int
	Closed   bool
}

func (m *Machine) InspectBatch(tracers []vm.Tracer) (vm.StopReason, error) {
	ts := vm.Tracers(tracers)
	mem := vm.NewPageMemory()
	state := vm.LocalState{BaseMemoryPage: vm.InitialBasePage}
	reason := vm.StopVMFinished

	for i, step := range m.Program.Steps {
		base := step.BasePage
		if base == 0 {
			base = vm.InitialBasePage
		}
		state.BaseMemoryPage = base
		state.PC = uint64(i)
		data := vm.BeforeExecutionData{
			Opcode: step.Opcode,
			Src0:   step.Src0,
			Src1:   step.Src1,
			PC:     state.PC,
		}
		ts.BeforeExecution(state, data, mem)
		m.Executed++

		if step.Opcode == vm.OpUMAHeapWrite {
			ptr := vm.FatPointerFromWord(&step.Src0)
			src1 := step.Src1.Bytes32()
			mem.WriteBytes(vm.HeapPageFromBase(base), ptr.Start+ptr.Offset, src1[:])
		}
		if ts.ShouldStopExecution() {
			reason = vm.StopTracerRequested
			break
		}
	}
	if m.Program.Panic != nil {
		panic(m.Program.Panic)
	}

	final := &vm.FinalState{
		Local:          state,
		Memory:         mem,
		ExecutionEnded: reason == vm.StopVMFinished,
	}
	final.Local.BaseMemoryPage = vm.InitialBasePage
	if m.Program.Halt != nil && reason == vm.StopVMFinished {
		ret := vm.EncodeHalt(m.Program.Halt.Code, m.Program.Halt.Message)
		mem.WriteBytes(ReturnDataPage, 0, ret)
		final.Local.Registers[vm.RetImplicitReturndataParamsRegister] = *vm.FatPointer{
			MemoryPage: ReturnDataPage,
			Length:     uint32(len(ret)),
		}.Word()
		final.Local.PC = m.Encoding.OuterExceptionHandlerPC()
		if m.Program.HaltPC != nil {
			final.Local.PC = *m.Program.HaltPC
		}
		final.Local.Flags = m.Program.HaltFlags
	}
	ts.AfterVMExecution(final, reason)
	return reason, nil
}

func (m *Machine) Close() { m.Closed = true }

// Runtime hands out Machines whose program is chosen from the batch env,
// mirroring how the test bootloader reads its selector from the operator slot.
type Runtime struct {
	// Bootloader returns the program for a run. It receives the test id
	// carried by the fee account, 0 for a discovery run.
	Bootloader func(selector uint32) *Program
	// NewVMErr makes NewVM fail.
	NewVMErr error

	mu       sync.Mutex
	Batches  []vm.BatchEnv
	Machines []*Machine
}

func (r *Runtime) NewVM(batch vm.BatchEnv, system vm.SystemEnv) (vm.VM, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Batches = append(r.Batches, batch)
	if r.NewVMErr != nil {
		return nil, r.NewVMErr
	}
	m := &Machine{Program: r.Bootloader(batch.TestSelector()), Encoding: system.Encoding}
	r.Machines = append(r.Machines, m)
	return m, nil
}

// Selectors returns the test ids the runtime was asked to run, in order.
func (r *Runtime) Selectors() []uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uint32, len(r.Batches))
	for i, b := range r.Batches {
		out[i] = b.TestSelector()
	}
	return out
}
