package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/spf13/cobra"

	"github.com/mrhapile/bootloader-test-infra/config"
	"github.com/mrhapile/bootloader-test-infra/harness"
	"github.com/mrhapile/bootloader-test-infra/vm"
	"github.com/mrhapile/bootloader-test-infra/wasmvm"
)

// errTestsFailed is returned when the batch ran but some tests failed.
var errTestsFailed = errors.New("some tests failed")

// newRuntime builds the interpreter the bootloader runs on.
var newRuntime = func(cfg *config.Config) (vm.Runtime, error) {
	rt, err := wasmvm.New(wasmvm.Options{
		Entry:    cfg.Bootloader.Entry,
		HeapBase: cfg.Bootloader.HeapBase,
	})
	if err != nil {
		return nil, err
	}
	return rt, nil
}

type options struct {
	configPath string
	bootloader string
	entry      string
	verbosity  int
	format     string
	tests      []uint
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var opts options

	rootCmd := &cobra.Command{
		Use:           "bootloader-test",
		Short:         "Run the tests embedded in a test bootloader",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "TOML configuration file")
	flags.StringVar(&opts.bootloader, "bootloader", "", "Path to the compiled test bootloader (overrides config)")
	flags.StringVar(&opts.entry, "entry", "", "Exported bootloader entry function (overrides config)")
	flags.IntVar(&opts.verbosity, "verbosity", 3, "Log level 0-5 (0=silent, 5=trace)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Discover the bootloader tests and run them one by one",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, &opts, stderr)
			if err != nil {
				return err
			}
			orch, err := newOrchestrator(cfg)
			if err != nil {
				return err
			}
			ids := make([]uint32, len(opts.tests))
			for i, id := range opts.tests {
				ids[i] = uint32(id)
			}
			report, runErr := orch.Run(ids...)
			if err := writeReport(stdout, report, cfg.Log.Format); err != nil {
				return fmt.Errorf("failed to write report: %w", err)
			}
			if runErr != nil {
				return runErr
			}
			if !report.OK() {
				return errTestsFailed
			}
			return nil
		},
	}
	runCmd.Flags().StringVar(&opts.format, "format", "", "Report format: json or text (overrides config)")
	runCmd.Flags().UintSliceVar(&opts.tests, "test", nil, "Run only these test ids")

	countCmd := &cobra.Command{
		Use:   "count",
		Short: "Print the number of tests the bootloader reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, &opts, stderr)
			if err != nil {
				return err
			}
			orch, err := newOrchestrator(cfg)
			if err != nil {
				return err
			}
			n, err := orch.Discover()
			if err != nil {
				return err
			}
			return json.NewEncoder(stdout).Encode(map[string]uint32{"total_tests": n})
		},
	}

	rootCmd.AddCommand(runCmd, countCmd)
	return rootCmd
}

// loadConfig reads the config file and applies explicitly set flags on top.
func loadConfig(cmd *cobra.Command, opts *options, stderr io.Writer) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, &harness.HarnessError{Stage: harness.StageSetup, Message: "config", Cause: err}
	}
	if opts.bootloader != "" {
		cfg.Bootloader.Path = opts.bootloader
	}
	if opts.entry != "" {
		cfg.Bootloader.Entry = opts.entry
	}
	if cmd.Flags().Changed("verbosity") {
		cfg.Log.Verbosity = opts.verbosity
	}
	if opts.format != "" {
		cfg.Log.Format = opts.format
	}
	if err := cfg.Validate(); err != nil {
		return nil, &harness.HarnessError{Stage: harness.StageSetup, Message: "config", Cause: err}
	}
	setupLogging(stderr, cfg.Log.Verbosity)
	return cfg, nil
}

func newOrchestrator(cfg *config.Config) (*harness.Orchestrator, error) {
	code, err := cfg.ReadBootloader()
	if err != nil {
		return nil, &harness.HarnessError{Stage: harness.StageSetup, Message: "bootloader", Cause: err}
	}
	hcfg, err := cfg.HarnessConfig(code)
	if err != nil {
		return nil, &harness.HarnessError{Stage: harness.StageSetup, Message: "config", Cause: err}
	}
	log.Info("Loaded bootloader", "path", cfg.Bootloader.Path, "size", len(code), "hash", hcfg.System.BootloaderHash)

	rt, err := newRuntime(cfg)
	if err != nil {
		return nil, &harness.HarnessError{Stage: harness.StageSetup, Message: "runtime", Cause: err}
	}
	return harness.New(rt, hcfg), nil
}

func setupLogging(w io.Writer, verbosity int) {
	var lvl slog.Level
	switch {
	case verbosity <= 0:
		lvl = log.LevelCrit
	case verbosity == 1:
		lvl = slog.LevelError
	case verbosity == 2:
		lvl = slog.LevelWarn
	case verbosity == 3:
		lvl = slog.LevelInfo
	case verbosity == 4:
		lvl = slog.LevelDebug
	default:
		lvl = log.LevelTrace
	}
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(w, lvl, false)))
}

func main() {
	// Ensure we never panic from main
	defer func() {
		if r := recover(); r != nil {
			errorResult := map[string]interface{}{
				"error":   "fatal panic in main",
				"details": fmt.Sprintf("%v", r),
			}
			json.NewEncoder(os.Stderr).Encode(errorResult)
			os.Exit(1)
		}
	}()

	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		json.NewEncoder(os.Stderr).Encode(errorResult(err))
		os.Exit(1)
	}
}

// errorResult describes a failed invocation. Harness failures carry their
// stage so they are not mistaken for failing tests.
func errorResult(err error) map[string]string {
	if errors.Is(err, errTestsFailed) {
		return map[string]string{"error": err.Error()}
	}
	result := map[string]string{
		"error":   "harness failure",
		"details": err.Error(),
	}
	var herr *harness.HarnessError
	if errors.As(err, &herr) {
		result["stage"] = string(herr.Stage)
	}
	return result
}
