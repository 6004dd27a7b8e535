package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/mrhapile/bootloader-test-infra/harness"
	"github.com/mrhapile/bootloader-test-infra/tracer"
)

func writeReport(w io.Writer, report harness.Report, format string) error {
	if format == "text" {
		return outputText(w, report)
	}
	return outputJSON(w, report)
}

// outputJSON writes the report as formatted JSON
func outputJSON(w io.Writer, report harness.Report) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

func outputText(w io.Writer, report harness.Report) error {
	var err error
	printf := func(format string, args ...interface{}) {
		if err == nil {
			_, err = fmt.Fprintf(w, format, args...)
		}
	}

	printf(" ==== Running %d tests ====\n", report.TotalTests)
	for _, res := range report.Results {
		label := fmt.Sprintf("%d", res.ID)
		if res.Name != "" {
			label = fmt.Sprintf("%d (%s)", res.ID, res.Name)
		}
		for _, l := range res.Logs {
			printf("    Test log %s %s\n", l.Message, l.Value)
		}
		if res.Verdict == tracer.Pass {
			printf("[PASS] %s\n", label)
		} else {
			printf("[FAIL] %s: %s\n", label, res.Reason)
		}
	}
	printf("%d passed, %d failed\n", report.Passed, report.Failed)
	if report.FatalError != "" {
		printf("HARNESS FAILURE (%s): %s\n", report.FatalStage, report.FatalError)
	}
	return err
}
