// Package config loads the harness configuration from a TOML file.
package config

import (
	"fmt"
	"os"

	tml "github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/mrhapile/bootloader-test-infra/harness"
	"github.com/mrhapile/bootloader-test-infra/hook"
	"github.com/mrhapile/bootloader-test-infra/vm"
)

type Config struct {
	Bootloader Bootloader `toml:"bootloader"`
	System     System     `toml:"system"`
	Batch      Batch      `toml:"batch"`
	Protocol   Protocol   `toml:"protocol"`
	Log        Log        `toml:"log"`
}

type Bootloader struct {
	Path  string `toml:"path"`
	Entry string `toml:"entry"`
	// HeapBase is the linear-memory offset of the emulated bootloader heap.
	HeapBase uint32 `toml:"heap_base"`
}

type System struct {
	ChainID                         uint64 `toml:"chain_id"`
	GasLimit                        uint32 `toml:"gas_limit"`
	ValidationComputationalGasLimit uint32 `toml:"validation_computational_gas_limit"`
	ExecutionMode                   string `toml:"execution_mode"`
	Encoding                        string `toml:"encoding"`
}

type Batch struct {
	Number         uint32     `toml:"number"`
	Timestamp      uint64     `toml:"timestamp"`
	L1GasPrice     uint64     `toml:"l1_gas_price"`
	FairL2GasPrice uint64     `toml:"fair_l2_gas_price"`
	FirstBlock     FirstBlock `toml:"first_block"`
}

type FirstBlock struct {
	Number           uint32 `toml:"number"`
	Timestamp        uint64 `toml:"timestamp"`
	MaxVirtualBlocks uint32 `toml:"max_virtual_blocks"`
}

type Protocol struct {
	HeapPage     uint32 `toml:"heap_page"`
	HookPosition uint32 `toml:"hook_position"`
	ParamsCount  uint32 `toml:"params_count"`
	Slack        uint32 `toml:"slack"`
}

type Log struct {
	Verbosity int    `toml:"verbosity"`
	Format    string `toml:"format"`
}

// Default returns the configuration the bootloader tests were written for.
func Default() *Config {
	proto := hook.DefaultProtocol()
	return &Config{
		Bootloader: Bootloader{
			Path:     "build/artifacts/bootloader_test.wasm",
			Entry:    "bootloader_main",
			HeapBase: 0x10000,
		},
		System: System{
			ChainID:                         299,
			GasLimit:                        80_000_000,
			ValidationComputationalGasLimit: 80_000_000,
			ExecutionMode:                   vm.ExecutionVerifyExecute.String(),
			Encoding:                        vm.EncodingProduction.String(),
		},
		Batch: Batch{
			Number:         13,
			Timestamp:      14,
			L1GasPrice:     250_000_000,
			FairL2GasPrice: 250_000_000,
			FirstBlock:     FirstBlock{Number: 1, Timestamp: 15},
		},
		Protocol: Protocol{
			HeapPage:     proto.HeapPage,
			HookPosition: proto.HookPosition,
			ParamsCount:  proto.ParamsCount,
			Slack:        proto.Slack,
		},
		Log: Log{Verbosity: 3, Format: "json"},
	}
}

// Load reads path over the defaults. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := tml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return cfg, nil
}

// HookProtocol returns the hook layout.
func (c *Config) HookProtocol() hook.Protocol {
	return hook.Protocol{
		HeapPage:     c.Protocol.HeapPage,
		HookPosition: c.Protocol.HookPosition,
		ParamsStart:  c.Protocol.HookPosition - c.Protocol.ParamsCount,
		ParamsCount:  c.Protocol.ParamsCount,
		Slack:        c.Protocol.Slack,
	}
}

// Validate checks the values a run cannot start without.
func (c *Config) Validate() error {
	if c.Protocol.HookPosition < c.Protocol.ParamsCount {
		return fmt.Errorf("hook position %d leaves no room for %d parameters", c.Protocol.HookPosition, c.Protocol.ParamsCount)
	}
	if c.Protocol.HeapPage != vm.BootloaderHeapPage {
		return fmt.Errorf("hook heap page %d is not the bootloader heap page %d", c.Protocol.HeapPage, vm.BootloaderHeapPage)
	}
	if err := c.HookProtocol().Validate(); err != nil {
		return err
	}
	if _, err := vm.ParseExecutionMode(c.System.ExecutionMode); err != nil {
		return err
	}
	if _, err := vm.ParseEncodingMode(c.System.Encoding); err != nil {
		return err
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("unknown report format %q", c.Log.Format)
	}
	return nil
}

// SystemEnv builds the system environment around the given bootloader code.
func (c *Config) SystemEnv(code []byte) (vm.SystemEnv, error) {
	mode, err := vm.ParseExecutionMode(c.System.ExecutionMode)
	if err != nil {
		return vm.SystemEnv{}, err
	}
	enc, err := vm.ParseEncodingMode(c.System.Encoding)
	if err != nil {
		return vm.SystemEnv{}, err
	}
	return vm.SystemEnv{
		ChainID:                         c.System.ChainID,
		GasLimit:                        c.System.GasLimit,
		ValidationComputationalGasLimit: c.System.ValidationComputationalGasLimit,
		ExecutionMode:                   mode,
		Encoding:                        enc,
		Bootloader:                      code,
		BootloaderHash:                  crypto.Keccak256Hash(code),
	}, nil
}

// BatchEnv builds the batch environment. The fee account is left zero; the
// harness stores the test selector there per run.
func (c *Config) BatchEnv() vm.BatchEnv {
	return vm.BatchEnv{
		Number:         c.Batch.Number,
		Timestamp:      c.Batch.Timestamp,
		L1GasPrice:     c.Batch.L1GasPrice,
		FairL2GasPrice: c.Batch.FairL2GasPrice,
		FeeAccount:     common.Address{},
		FirstL2Block: vm.L2BlockEnv{
			Number:           c.Batch.FirstBlock.Number,
			Timestamp:        c.Batch.FirstBlock.Timestamp,
			PrevBlockHash:    vm.LegacyL2BlockHash(0),
			MaxVirtualBlocks: c.Batch.FirstBlock.MaxVirtualBlocks,
		},
	}
}

// ReadBootloader loads the bootloader code from disk.
func (c *Config) ReadBootloader() ([]byte, error) {
	code, err := os.ReadFile(c.Bootloader.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bootloader: %w", err)
	}
	return code, nil
}

// HarnessConfig assembles the orchestrator configuration.
func (c *Config) HarnessConfig(code []byte) (harness.Config, error) {
	sys, err := c.SystemEnv(code)
	if err != nil {
		return harness.Config{}, err
	}
	return harness.Config{
		Batch:    c.BatchEnv(),
		System:   sys,
		Protocol: c.HookProtocol(),
	}, nil
}
