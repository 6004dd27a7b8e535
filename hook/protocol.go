// Package hook decodes the signals a test bootloader sends to the host by
// writing into a reserved slot of its heap.
//
// A hook is an ordinary heap-write instruction that targets the bootloader
// heap page at byte offset HookPosition*32. The written value is the hook
// discriminant; its parameters were stored in the words right before the
// hook slot by earlier writes.
package hook

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/mrhapile/bootloader-test-infra/vm"
)

const (
	DefaultHookPosition uint32 = 1020
	DefaultParamsCount  uint32 = 2
	// DefaultSlack is the number of extra words read past the nominal
	// parameters. Assertion hooks carry their message behind the hook slot.
	DefaultSlack uint32 = 2
)

// Protocol is the heap layout shared by the bootloader and the host.
type Protocol struct {
	HeapPage     uint32
	HookPosition uint32
	ParamsStart  uint32
	ParamsCount  uint32
	Slack        uint32
}

// DefaultProtocol returns the layout of the test bootloader.
func DefaultProtocol() Protocol {
	return Protocol{
		HeapPage:     vm.BootloaderHeapPage,
		HookPosition: DefaultHookPosition,
		ParamsStart:  DefaultHookPosition - DefaultParamsCount,
		ParamsCount:  DefaultParamsCount,
		Slack:        DefaultSlack,
	}
}

// WindowSize is the number of words ReadParams returns.
func (p Protocol) WindowSize() uint32 { return p.ParamsCount + p.Slack }

// ReadParams returns the hook parameter window of mem. Unwritten words read
// as zero; the reserved page is always large enough by convention.
func (p Protocol) ReadParams(mem vm.Memory) []uint256.Int {
	return mem.Words(p.HeapPage, p.ParamsStart, p.ParamsStart+p.WindowSize())
}

// Validate checks that the layout can carry every known hook.
func (p Protocol) Validate() error {
	if p.WindowSize() < 4 {
		return fmt.Errorf("hook parameter window of %d words is too small, need 4", p.WindowSize())
	}
	if p.ParamsCount != 2 {
		return fmt.Errorf("hooks carry 2 parameter words, layout declares %d", p.ParamsCount)
	}
	if p.ParamsStart+p.ParamsCount != p.HookPosition {
		return fmt.Errorf("hook slot %d must directly follow the parameters at %d..%d",
			p.HookPosition, p.ParamsStart, p.ParamsStart+p.ParamsCount)
	}
	return nil
}
