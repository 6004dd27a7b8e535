//go:build !integration
// +build !integration

package wasmvm

import (
	"github.com/mrhapile/bootloader-test-infra/vm"
)

// Runtime is unavailable in builds without the integration tag.
type Runtime struct{}

// New fails with ErrUnavailable. Build with -tags=integration to run
// bootloaders on WasmEdge.
func New(Options) (*Runtime, error) {
	return nil, ErrUnavailable
}

func (r *Runtime) NewVM(vm.BatchEnv, vm.SystemEnv) (vm.VM, error) {
	return nil, ErrUnavailable
}
