package hook

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"github.com/mrhapile/bootloader-test-infra/vm"
)

// PayloadError reports a hook payload that cannot be decoded. It means the
// bootloader build is corrupt and is not recoverable.
type PayloadError struct {
	Kind  Kind
	Field string
	Data  []byte
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("malformed %s hook: %s is not valid UTF-8 (%s)", e.Kind, e.Field, hexutil.Encode(e.Data))
}

// Classify decides whether the instruction is a hook write and returns its
// kind without touching memory.
func (p Protocol) Classify(state vm.LocalState, data vm.BeforeExecutionData) Kind {
	if data.Opcode != vm.OpUMAHeapWrite {
		return KindNoHook
	}
	if vm.HeapPageFromBase(state.BaseMemoryPage) != p.HeapPage {
		return KindNoHook
	}
	ptr := vm.FatPointerFromWord(&data.Src0)
	if uint64(ptr.Start)+uint64(ptr.Offset) != uint64(p.HookPosition)*vm.WordSize {
		return KindNoHook
	}
	if !data.Src1.IsUint64() || data.Src1.Uint64() > math.MaxUint32 {
		return KindNoHook
	}
	return kindFromDiscriminant(uint32(data.Src1.Uint64()))
}

// Decode turns a pre-execution event into a hook Event.
func (p Protocol) Decode(state vm.LocalState, data vm.BeforeExecutionData, mem vm.Memory) (Event, error) {
	kind := p.Classify(state, data)
	if kind == KindNoHook {
		return NoHook{}, nil
	}
	return p.DecodeParams(kind, p.ReadParams(mem))
}

// DecodeParams decodes the parameter window of a hook of the given kind.
func (p Protocol) DecodeParams(kind Kind, params []uint256.Int) (Event, error) {
	if need := windowNeeded(kind); len(params) < need {
		return nil, fmt.Errorf("%s hook needs %d parameter words, window has %d", kind, need, len(params))
	}
	switch kind {
	case KindTestLog:
		msg, err := wordString(kind, "message", &params[0])
		if err != nil {
			return nil, err
		}
		return TestLog{Message: msg, Value: FormatValue(&params[1])}, nil

	case KindAssertEqFailed:
		// params[2] is the hook slot itself.
		msg, err := wordString(kind, "message", &params[3])
		if err != nil {
			return nil, err
		}
		return AssertEqFailed{LHS: params[0], RHS: params[1], Message: msg}, nil

	case KindRequestedAssert:
		msg, err := wordString(kind, "message", &params[0])
		if err != nil {
			return nil, err
		}
		return RequestedAssert{Message: msg}, nil

	case KindTestCount:
		return TestCount{Count: uint32(params[0].Uint64())}, nil

	case KindTestStart:
		name, err := wordString(kind, "name", &params[0])
		if err != nil {
			return nil, err
		}
		return TestStart{Name: name}, nil
	}
	return NoHook{}, nil
}

func windowNeeded(kind Kind) int {
	switch kind {
	case KindAssertEqFailed:
		return 4
	case KindTestLog:
		return 2
	case KindNoHook:
		return 0
	default:
		return 1
	}
}

// FormatValue renders values that fit 64 bits in decimal and larger ones as
// a 0x-prefixed 32-byte hex string.
func FormatValue(v *uint256.Int) string {
	if v.IsUint64() {
		return strconv.FormatUint(v.Uint64(), 10)
	}
	b := v.Bytes32()
	return hexutil.Encode(b[:])
}

// TrimTrailingZeros drops the zero padding of a left-aligned byte string.
func TrimTrailingZeros(b []byte) []byte {
	return bytes.TrimRight(b, "\x00")
}

func wordString(kind Kind, field string, w *uint256.Int) (string, error) {
	b := w.Bytes32()
	s := TrimTrailingZeros(b[:])
	if !utf8.Valid(s) {
		return "", &PayloadError{Kind: kind, Field: field, Data: append([]byte(nil), s...)}
	}
	return string(s), nil
}
