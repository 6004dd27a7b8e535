package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrhapile/bootloader-test-infra/hook"
	"github.com/mrhapile/bootloader-test-infra/vm"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, hook.DefaultProtocol(), cfg.HookProtocol())
	assert.Equal(t, uint64(299), cfg.System.ChainID)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeFile(t, "harness.toml", `
[bootloader]
path = "out/bootloader.wasm"
heap_base = 4096

[system]
chain_id = 270
encoding = "testing"

[batch]
number = 42

[batch.first_block]
number = 7
max_virtual_blocks = 3

[log]
verbosity = 5
format = "text"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "out/bootloader.wasm", cfg.Bootloader.Path)
	assert.Equal(t, "bootloader_main", cfg.Bootloader.Entry, "unset keys keep their defaults")
	assert.Equal(t, uint32(4096), cfg.Bootloader.HeapBase)
	assert.Equal(t, uint64(270), cfg.System.ChainID)
	assert.Equal(t, uint32(42), cfg.Batch.Number)
	assert.Equal(t, uint64(14), cfg.Batch.Timestamp)
	assert.Equal(t, FirstBlock{Number: 7, Timestamp: 15, MaxVirtualBlocks: 3}, cfg.Batch.FirstBlock)
	assert.Equal(t, Log{Verbosity: 5, Format: "text"}, cfg.Log)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.toml", "[system\nchain_id = 1"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(*Config)
	}{
		{name: "execution_mode", modify: func(c *Config) { c.System.ExecutionMode = "simulate" }},
		{name: "encoding", modify: func(c *Config) { c.System.Encoding = "debug" }},
		{name: "format", modify: func(c *Config) { c.Log.Format = "xml" }},
		{name: "params_count", modify: func(c *Config) { c.Protocol.ParamsCount = 3 }},
		{name: "small_window", modify: func(c *Config) { c.Protocol.Slack = 0 }},
		{name: "hook_position", modify: func(c *Config) { c.Protocol.HookPosition = 1 }},
		{name: "heap_page", modify: func(c *Config) { c.Protocol.HeapPage = vm.BootloaderHeapPage + 1 }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestEnvironments(t *testing.T) {
	cfg := Default()
	code := []byte{0x00, 0x61, 0x73, 0x6d}

	hcfg, err := cfg.HarnessConfig(code)
	require.NoError(t, err)

	assert.Equal(t, code, hcfg.System.Bootloader)
	assert.Equal(t, crypto.Keccak256Hash(code), hcfg.System.BootloaderHash)
	assert.Equal(t, vm.ExecutionVerifyExecute, hcfg.System.ExecutionMode)
	assert.Equal(t, vm.EncodingProduction, hcfg.System.Encoding)
	assert.Equal(t, uint32(80_000_000), hcfg.System.GasLimit)

	assert.Nil(t, hcfg.Batch.PreviousBatchHash)
	assert.Equal(t, common.Address{}, hcfg.Batch.FeeAccount)
	assert.Equal(t, uint32(13), hcfg.Batch.Number)
	assert.Equal(t, uint64(250_000_000), hcfg.Batch.L1GasPrice)
	assert.Equal(t, vm.LegacyL2BlockHash(0), hcfg.Batch.FirstL2Block.PrevBlockHash)
	assert.Equal(t, uint32(1), hcfg.Batch.FirstL2Block.Number)

	assert.Equal(t, hook.DefaultProtocol(), hcfg.Protocol)
}

func TestReadBootloader(t *testing.T) {
	cfg := Default()
	cfg.Bootloader.Path = writeFile(t, "bootloader.wasm", "\x00asm")

	code, err := cfg.ReadBootloader()
	require.NoError(t, err)
	assert.Equal(t, []byte("\x00asm"), code)

	cfg.Bootloader.Path = filepath.Join(t.TempDir(), "missing.wasm")
	_, err = cfg.ReadBootloader()
	assert.Error(t, err)
}

func TestLoad_RejectsForeignHeapPage(t *testing.T) {
	cfg, err := Load(writeFile(t, "harness.toml", "[protocol]\nheap_page = 11\n"))
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bootloader heap page 10")
}
