// Package wasmvm executes a WASM-compiled test bootloader with WasmEdge.
//
// The bootloader imports its memory instructions from the host module
// "zkevm":
//
//	heap_write(offset i32, value_ptr i32)  store the word at value_ptr to heap offset
//	operator(out_ptr i32)                  write the 32-byte operator word to out_ptr
//	halt(code i32, ptr i32, len i32)       stop through the outer exception handler
//
// Every heap_write is reported to the tracers as an UMA heap-write
// instruction before it is applied. The bootloader heap lives in linear
// memory at Options.HeapBase.
package wasmvm

import (
	"errors"

	"github.com/holiman/uint256"

	"github.com/mrhapile/bootloader-test-infra/vm"
)

// ErrUnavailable is returned when the binary was built without WasmEdge.
var ErrUnavailable = errors.New("wasmvm: built without the integration tag")

// HostModule is the import module name of the host functions.
const HostModule = "zkevm"

// ReturnDataPage is the page halt data is exposed on in the final state.
const ReturnDataPage uint32 = 2

// Options configure the runtime.
type Options struct {
	// Entry is the exported function that runs the bootloader.
	Entry string
	// HeapBase is the linear-memory offset of the bootloader heap page.
	HeapBase uint32
}

// readFunc reads length bytes of linear memory at offset.
type readFunc func(offset, length uint32) ([]byte, error)

// heapView exposes the bootloader heap inside linear memory as vm.Memory.
// Other pages and unreadable ranges read as zero.
type heapView struct {
	read     readFunc
	base     uint32
	heapPage uint32
}

func (h heapView) Words(page uint32, from, to uint32) []uint256.Int {
	if to < from {
		return nil
	}
	out := make([]uint256.Int, to-from)
	raw := h.Bytes(page, from*vm.WordSize, (to-from)*vm.WordSize)
	for i := range out {
		out[i].SetBytes32(raw[i*vm.WordSize : (i+1)*vm.WordSize])
	}
	return out
}

func (h heapView) Bytes(page uint32, start, length uint32) []byte {
	out := make([]byte, length)
	if page != h.heapPage || length == 0 {
		return out
	}
	raw, err := h.read(h.base+start, length)
	if err != nil {
		return out
	}
	copy(out, raw)
	return out
}
