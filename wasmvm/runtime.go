//go:build integration
// +build integration

package wasmvm

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/second-state/WasmEdge-go/wasmedge"

	"github.com/mrhapile/bootloader-test-infra/vm"
)

// Runtime implements vm.Runtime using the WasmEdge SDK
type Runtime struct {
	opts Options
}

// New creates a WasmEdge backed runtime.
func New(opts Options) (*Runtime, error) {
	if opts.Entry == "" {
		return nil, errors.New("wasmvm: no entry function configured")
	}
	// Initialize WasmEdge globally (required before any WasmEdge operations)
	wasmedge.SetLogErrorLevel()
	return &Runtime{opts: opts}, nil
}

// NewVM loads, validates and instantiates the bootloader for one run.
func (r *Runtime) NewVM(batch vm.BatchEnv, system vm.SystemEnv) (vm.VM, error) {
	m := &machine{
		opts:     r.opts,
		operator: batch.OperatorWord().Bytes32(),
		encoding: system.Encoding,
	}
	if err := m.instantiate(system.Bootloader); err != nil {
		m.Close()
		return nil, err
	}
	return m, nil
}

// machine wraps a WasmEdge module instance running one bootloader.
type machine struct {
	opts     Options
	operator [32]byte
	encoding vm.EncodingMode

	conf      *wasmedge.Configure
	loader    *wasmedge.Loader
	ast       *wasmedge.AST
	validator *wasmedge.Validator
	store     *wasmedge.Store
	executor  *wasmedge.Executor
	host      *wasmedge.Module
	module    *wasmedge.Module

	tracers  vm.Tracers
	pc       uint64
	stopped  bool
	halted   bool
	haltData []byte
	hostErr  error
}

func (m *machine) instantiate(code []byte) error {
	m.conf = wasmedge.NewConfigure()

	// Stage 1: Load WASM bootloader
	m.loader = wasmedge.NewLoaderWithConfig(m.conf)
	ast, err := m.loader.LoadBuffer(code)
	if err != nil {
		return fmt.Errorf("load failed: %w", err)
	}
	m.ast = ast

	// Stage 2: Validate WASM module
	m.validator = wasmedge.NewValidatorWithConfig(m.conf)
	if err := m.validator.Validate(m.ast); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	// Stage 3: Register the host functions and instantiate
	m.store = wasmedge.NewStore()
	m.executor = wasmedge.NewExecutorWithConfig(m.conf)
	m.host = m.hostModule()
	if err := m.executor.RegisterImport(m.store, m.host); err != nil {
		return fmt.Errorf("host module registration failed: %w", err)
	}
	module, err := m.executor.Instantiate(m.store, m.ast)
	if err != nil {
		return fmt.Errorf("instantiation failed: %w", err)
	}
	m.module = module
	return nil
}

func (m *machine) hostModule() *wasmedge.Module {
	i32 := wasmedge.NewValTypeI32
	host := wasmedge.NewModule(HostModule)

	add := func(name string, params int, fn func(*wasmedge.CallingFrame, []interface{}) wasmedge.Result) {
		types := make([]*wasmedge.ValType, params)
		for i := range types {
			types[i] = i32()
		}
		ftype := wasmedge.NewFunctionType(types, []*wasmedge.ValType{})
		host.AddFunction(name, wasmedge.NewFunction(ftype,
			func(_ interface{}, frame *wasmedge.CallingFrame, args []interface{}) ([]interface{}, wasmedge.Result) {
				return nil, fn(frame, args)
			}, nil, 0))
		ftype.Release()
	}
	add("heap_write", 2, m.heapWrite)
	add("operator", 1, m.writeOperator)
	add("halt", 3, m.halt)
	return host
}

func arg(args []interface{}, i int) uint32 {
	return uint32(args[i].(int32))
}

func (m *machine) heapWrite(frame *wasmedge.CallingFrame, args []interface{}) wasmedge.Result {
	mem := frame.GetMemoryByIndex(0)
	if mem == nil {
		m.hostErr = errors.New("bootloader exports no memory")
		return wasmedge.Result_Fail
	}
	offset, valuePtr := arg(args, 0), arg(args, 1)
	raw, err := mem.GetData(uint(valuePtr), vm.WordSize)
	if err != nil {
		m.hostErr = fmt.Errorf("heap_write value out of bounds: %w", err)
		return wasmedge.Result_Fail
	}
	word := make([]byte, vm.WordSize)
	copy(word, raw)

	state := vm.LocalState{BaseMemoryPage: vm.InitialBasePage, PC: m.pc}
	data := vm.BeforeExecutionData{
		Opcode: vm.OpUMAHeapWrite,
		Src0:   *vm.FatPointer{Offset: offset}.Word(),
		Src1:   *new(uint256.Int).SetBytes32(word),
		PC:     m.pc,
	}
	view := heapView{
		read: func(off, length uint32) ([]byte, error) {
			return mem.GetData(uint(off), uint(length))
		},
		base:     m.opts.HeapBase,
		heapPage: vm.HeapPageFromBase(vm.InitialBasePage),
	}
	m.tracers.BeforeExecution(state, data, view)

	if err := mem.SetData(word, uint(m.opts.HeapBase+offset), vm.WordSize); err != nil {
		m.hostErr = fmt.Errorf("heap_write target out of bounds: %w", err)
		return wasmedge.Result_Fail
	}
	m.pc++
	if m.tracers.ShouldStopExecution() {
		m.stopped = true
		return wasmedge.Result_Terminate
	}
	return wasmedge.Result_Success
}

func (m *machine) writeOperator(frame *wasmedge.CallingFrame, args []interface{}) wasmedge.Result {
	mem := frame.GetMemoryByIndex(0)
	if mem == nil {
		m.hostErr = errors.New("bootloader exports no memory")
		return wasmedge.Result_Fail
	}
	if err := mem.SetData(m.operator[:], uint(arg(args, 0)), vm.WordSize); err != nil {
		m.hostErr = fmt.Errorf("operator target out of bounds: %w", err)
		return wasmedge.Result_Fail
	}
	m.pc++
	return wasmedge.Result_Success
}

func (m *machine) halt(frame *wasmedge.CallingFrame, args []interface{}) wasmedge.Result {
	mem := frame.GetMemoryByIndex(0)
	if mem == nil {
		m.hostErr = errors.New("bootloader exports no memory")
		return wasmedge.Result_Fail
	}
	code, ptr, length := arg(args, 0), arg(args, 1), arg(args, 2)
	var payload []byte
	if length > 0 {
		raw, err := mem.GetData(uint(ptr), uint(length))
		if err != nil {
			m.hostErr = fmt.Errorf("halt payload out of bounds: %w", err)
			return wasmedge.Result_Fail
		}
		payload = raw
	}
	m.haltData = append([]byte{byte(code)}, payload...)
	m.halted = true
	return wasmedge.Result_Terminate
}

// InspectBatch implements vm.VM.InspectBatch
func (m *machine) InspectBatch(tracers []vm.Tracer) (vm.StopReason, error) {
	m.tracers = tracers
	fn := m.module.FindFunction(m.opts.Entry)
	if fn == nil {
		return vm.StopVMFinished, fmt.Errorf("function '%s' not found in module exports", m.opts.Entry)
	}

	_, err := m.executor.Invoke(fn)
	if m.hostErr != nil {
		return vm.StopVMFinished, m.hostErr
	}
	if err != nil && !m.stopped && !m.halted {
		return vm.StopVMFinished, fmt.Errorf("execution failed: %w", err)
	}

	final, reason := runResult{
		pc:       m.pc,
		stopped:  m.stopped,
		halted:   m.halted,
		haltData: m.haltData,
	}.finalState(m.encoding)
	m.tracers.AfterVMExecution(final, reason)
	return reason, nil
}

// Close releases runtime resources
func (m *machine) Close() {
	if m.module != nil {
		m.module.Release()
	}
	if m.host != nil {
		m.host.Release()
	}
	if m.executor != nil {
		m.executor.Release()
	}
	if m.store != nil {
		m.store.Release()
	}
	if m.validator != nil {
		m.validator.Release()
	}
	if m.ast != nil {
		m.ast.Release()
	}
	if m.loader != nil {
		m.loader.Release()
	}
	if m.conf != nil {
		m.conf.Release()
	}
}
