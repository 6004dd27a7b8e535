//go:build !integration
// +build !integration

package wasmvm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mrhapile/bootloader-test-infra/vm"
)

func TestStubRuntime(t *testing.T) {
	rt, err := New(Options{Entry: "bootloader_main"})
	assert.Nil(t, rt)
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = (&Runtime{}).NewVM(vm.BatchEnv{}, vm.SystemEnv{})
	assert.ErrorIs(t, err, ErrUnavailable)
}
