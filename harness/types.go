package harness

import (
	"errors"

	"github.com/mrhapile/bootloader-test-infra/hook"
	"github.com/mrhapile/bootloader-test-infra/tracer"
)

// FailureStage represents the stage at which the harness itself failed
type FailureStage string

const (
	StageSetup     FailureStage = "setup"
	StageDiscovery FailureStage = "discovery"
	StageExecute   FailureStage = "execute"
	StageProtocol  FailureStage = "protocol"
)

// LogLine is a test log emitted by the bootloader
type LogLine struct {
	Message string `json:"message"`
	Value   string `json:"value"`
}

// TestResult holds the verdict for a single bootloader test
type TestResult struct {
	ID      uint32         `json:"id"`
	Name    string         `json:"name,omitempty"`
	Verdict tracer.Verdict `json:"verdict"`
	Reason  string         `json:"reason,omitempty"`
	Logs    []LogLine      `json:"logs,omitempty"`
}

// Report holds the complete report for a batch of tests. Results are in
// execution order.
type Report struct {
	TotalTests uint32       `json:"total_tests"`
	Executed   int          `json:"executed"`
	Passed     int          `json:"passed"`
	Failed     int          `json:"failed"`
	Results    []TestResult `json:"results"`
	FatalStage FailureStage `json:"fatal_stage,omitempty"`
	FatalError string       `json:"fatal_error,omitempty"`
}

func (r *Report) add(res TestResult) {
	r.Results = append(r.Results, res)
	r.Executed++
	if res.Verdict == tracer.Pass {
		r.Passed++
	} else {
		r.Failed++
	}
}

func (r *Report) abort(err error) {
	r.FatalStage = StageExecute
	var herr *HarnessError
	if errors.As(err, &herr) {
		r.FatalStage = herr.Stage
	}
	r.FatalError = err.Error()
}

// OK reports whether every executed test passed and nothing aborted the batch.
func (r *Report) OK() bool {
	return r.FatalError == "" && r.Failed == 0
}

func logLines(logs []hook.TestLog) []LogLine {
	if len(logs) == 0 {
		return nil
	}
	out := make([]LogLine, len(logs))
	for i, l := range logs {
		out[i] = LogLine{Message: l.Message, Value: l.Value}
	}
	return out
}
