package vm

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/holiman/uint256"
)

// Opcode identifies the variant of the instruction that is about to execute.
type Opcode uint16

const (
	OpInvalid Opcode = iota
	OpNop
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpJump
	OpContext
	OpShift
	OpBinop
	OpPtr
	OpNearCall
	OpLog
	OpFarCall
	OpRet
	OpUMAHeapRead
	OpUMAHeapWrite
	OpUMAAuxHeapRead
	OpUMAAuxHeapWrite
	OpUMAFatPointerRead
	OpUMAStaticMemoryRead
	OpUMAStaticMemoryWrite

	// OpcodeCount is the number of defined opcodes.
	OpcodeCount
)

var opcodeNames = [OpcodeCount]string{
	OpInvalid:              "INVALID",
	OpNop:                  "NOP",
	OpAdd:                  "ADD",
	OpSub:                  "SUB",
	OpMul:                  "MUL",
	OpDiv:                  "DIV",
	OpJump:                 "JUMP",
	OpContext:              "CONTEXT",
	OpShift:                "SHIFT",
	OpBinop:                "BINOP",
	OpPtr:                  "PTR",
	OpNearCall:             "NEAR_CALL",
	OpLog:                  "LOG",
	OpFarCall:              "FAR_CALL",
	OpRet:                  "RET",
	OpUMAHeapRead:          "UMA_HEAP_READ",
	OpUMAHeapWrite:         "UMA_HEAP_WRITE",
	OpUMAAuxHeapRead:       "UMA_AUX_HEAP_READ",
	OpUMAAuxHeapWrite:      "UMA_AUX_HEAP_WRITE",
	OpUMAFatPointerRead:    "UMA_FAT_POINTER_READ",
	OpUMAStaticMemoryRead:  "UMA_STATIC_MEMORY_READ",
	OpUMAStaticMemoryWrite: "UMA_STATIC_MEMORY_WRITE",
}

func (op Opcode) String() string {
	if op < OpcodeCount {
		return opcodeNames[op]
	}
	return "UNKNOWN"
}

const (
	// WordSize is the width of a machine word in bytes.
	WordSize = 32

	// InitialBasePage is the base memory page of the bootloader frame.
	InitialBasePage uint32 = 8

	// RetImplicitReturndataParamsRegister holds the fat pointer to the
	// return data when a frame returns or panics.
	RetImplicitReturndataParamsRegister = 1

	RegisterCount = 16
)

// HeapPageFromBase returns the heap page of a frame with the given base page.
func HeapPageFromBase(base uint32) uint32 { return base + 2 }

// AuxHeapPageFromBase returns the auxiliary heap page of a frame with the given base page.
func AuxHeapPageFromBase(base uint32) uint32 { return base + 3 }

// BootloaderHeapPage is the heap page of the bootloader frame.
var BootloaderHeapPage = HeapPageFromBase(InitialBasePage)

// FatPointer is the packed pointer carried in the low 128 bits of a word.
type FatPointer struct {
	Offset     uint32
	MemoryPage uint32
	Start      uint32
	Length     uint32
}

// FatPointerFromWord unpacks a fat pointer from w.
func FatPointerFromWord(w *uint256.Int) FatPointer {
	b := w.Bytes32()
	return FatPointer{
		Offset:     binary.BigEndian.Uint32(b[28:32]),
		MemoryPage: binary.BigEndian.Uint32(b[24:28]),
		Start:      binary.BigEndian.Uint32(b[20:24]),
		Length:     binary.BigEndian.Uint32(b[16:20]),
	}
}

// Word packs p into the low 128 bits of a machine word.
func (p FatPointer) Word() *uint256.Int {
	var b [32]byte
	binary.BigEndian.PutUint32(b[28:32], p.Offset)
	binary.BigEndian.PutUint32(b[24:28], p.MemoryPage)
	binary.BigEndian.PutUint32(b[20:24], p.Start)
	binary.BigEndian.PutUint32(b[16:20], p.Length)
	return new(uint256.Int).SetBytes32(b[:])
}

// EncodingMode selects the width of the program counter.
type EncodingMode uint8

const (
	EncodingProduction EncodingMode = iota
	EncodingTesting
)

// OuterExceptionHandlerPC is the pc an interpreter reports once execution
// ended through the top-level exception handler.
func (m EncodingMode) OuterExceptionHandlerPC() uint64 {
	if m == EncodingTesting {
		return math.MaxUint64
	}
	return math.MaxUint16
}

func (m EncodingMode) String() string {
	if m == EncodingTesting {
		return "testing"
	}
	return "production"
}

// ParseEncodingMode is the inverse of EncodingMode.String.
func ParseEncodingMode(s string) (EncodingMode, error) {
	switch s {
	case "production", "":
		return EncodingProduction, nil
	case "testing":
		return EncodingTesting, nil
	}
	return 0, fmt.Errorf("unknown encoding mode %q", s)
}

// Flags are the arithmetic flags of the machine.
type Flags struct {
	OverflowOrLessThan bool
	Equal              bool
	GreaterThan        bool
}

// LocalState is the part of the machine state a tracer observes before
// each instruction.
type LocalState struct {
	BaseMemoryPage uint32
	PC             uint64
	Flags          Flags
	Registers      [RegisterCount]uint256.Int
}

// BeforeExecutionData describes the instruction that is about to execute.
type BeforeExecutionData struct {
	Opcode Opcode
	Src0   uint256.Int
	Src1   uint256.Int
	PC     uint64
}

// StopReason tells why a run stopped.
type StopReason uint8

const (
	StopVMFinished StopReason = iota
	StopTracerRequested
)

func (r StopReason) String() string {
	switch r {
	case StopVMFinished:
		return "vm_finished"
	case StopTracerRequested:
		return "tracer_requested_stop"
	default:
		return "unknown"
	}
}

// FinalState is the terminal snapshot handed to tracers after a run.
type FinalState struct {
	Local          LocalState
	Memory         Memory
	ExecutionEnded bool
}

// ReturnData dumps the memory referenced by the implicit return data register.
func (s *FinalState) ReturnData() []byte {
	if s.Memory == nil {
		return nil
	}
	ptr := FatPointerFromWord(&s.Local.Registers[RetImplicitReturndataParamsRegister])
	if ptr.Offset > ptr.Length {
		return nil
	}
	return s.Memory.Bytes(ptr.MemoryPage, ptr.Start+ptr.Offset, ptr.Length-ptr.Offset)
}
