package vmtest

import (
	"github.com/holiman/uint256"

	"github.com/mrhapile/bootloader-test-infra/vm"
)

// Layout is the heap layout the scripted bootloader writes hooks with.
type Layout struct {
	HookPosition uint32
	ParamsStart  uint32
}

// Hook discriminants written by the test bootloader.
const (
	DiscriminantTestLog         = 100
	DiscriminantAssertEqFailed  = 101
	DiscriminantRequestedAssert = 102
	DiscriminantTestCount       = 103
	DiscriminantTestStart       = 104
)

// Builder assembles a Program the way the test bootloader emits hooks:
// parameters are stored with heap writes first, then the discriminant is
// written to the hook slot.
type Builder struct {
	layout Layout
	prog   Program
}

func NewBuilder(l Layout) *Builder {
	return &Builder{layout: l}
}

// StringWord packs s left-aligned into a word, zero padded on the right.
func StringWord(s string) *uint256.Int {
	var b [32]byte
	copy(b[:], s)
	return new(uint256.Int).SetBytes32(b[:])
}

// BytesWord packs up to 32 bytes left-aligned into a word.
func BytesWord(data []byte) *uint256.Int {
	var b [32]byte
	copy(b[:], data)
	return new(uint256.Int).SetBytes32(b[:])
}

// Instr appends a non-writing instruction.
func (b *Builder) Instr(op vm.Opcode) *Builder {
	b.prog.Steps = append(b.prog.Steps, Step{Opcode: op})
	return b
}

// Raw appends an arbitrary step.
func (b *Builder) Raw(s Step) *Builder {
	b.prog.Steps = append(b.prog.Steps, s)
	return b
}

// HeapWrite appends a heap write of w at word index idx.
func (b *Builder) HeapWrite(idx uint32, w *uint256.Int) *Builder {
	s := Step{Opcode: vm.OpUMAHeapWrite, Src1: *w}
	s.Src0 = *vm.FatPointer{Offset: idx * vm.WordSize}.Word()
	b.prog.Steps = append(b.prog.Steps, s)
	return b
}

// Hook stores params and then writes discriminant to the hook slot.
func (b *Builder) Hook(discriminant uint64, params ...*uint256.Int) *Builder {
	for i, p := range params {
		if p == nil {
			continue
		}
		b.HeapWrite(b.layout.ParamsStart+uint32(i), p)
	}
	return b.HeapWrite(b.layout.HookPosition, uint256.NewInt(discriminant))
}

func (b *Builder) Log(msg string, value *uint256.Int) *Builder {
	return b.Hook(DiscriminantTestLog, StringWord(msg), value)
}

func (b *Builder) AssertEqFailed(lhs, rhs *uint256.Int, msg string) *Builder {
	return b.Hook(DiscriminantAssertEqFailed, lhs, rhs, nil, StringWord(msg))
}

func (b *Builder) RequestAssert(msg string) *Builder {
	return b.Hook(DiscriminantRequestedAssert, StringWord(msg))
}

func (b *Builder) TestCount(n uint64) *Builder {
	return b.Hook(DiscriminantTestCount, uint256.NewInt(n))
}

func (b *Builder) TestStart(name string) *Builder {
	return b.Hook(DiscriminantTestStart, StringWord(name))
}

// HaltWith ends the run through the outer exception handler.
func (b *Builder) HaltWith(code vm.HaltCode, msg string) *Builder {
	b.prog.Halt = &vm.Halt{Code: code, Message: msg}
	return b
}

// AssertionHalt ends the run the way a failing bootloader assertion does.
func (b *Builder) AssertionHalt(msg string) *Builder {
	return b.HaltWith(vm.HaltUnexpectedVMBehavior, "Assertion error: "+msg)
}

func (b *Builder) HaltAt(pc uint64) *Builder {
	b.prog.HaltPC = &pc
	return b
}

func (b *Builder) HaltFlags(f vm.Flags) *Builder {
	b.prog.HaltFlags = f
	return b
}

func (b *Builder) Panic(v interface{}) *Builder {
	b.prog.Panic = v
	return b
}

func (b *Builder) Build() *Program {
	p := b.prog
	p.Steps = append([]Step(nil), b.prog.Steps...)
	return &p
}
