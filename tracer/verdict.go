package tracer

import "fmt"

// Verdict is the outcome of a single test run.
type Verdict uint8

const (
	Pending Verdict = iota
	Pass
	Fail
)

func (v Verdict) String() string {
	switch v {
	case Pending:
		return "pending"
	case Pass:
		return "pass"
	case Fail:
		return "fail"
	default:
		return fmt.Sprintf("verdict(%d)", uint8(v))
	}
}

func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v *Verdict) UnmarshalText(text []byte) error {
	switch string(text) {
	case "pending":
		*v = Pending
	case "pass":
		*v = Pass
	case "fail":
		*v = Fail
	default:
		return fmt.Errorf("unknown verdict %q", text)
	}
	return nil
}

// Outcome is a verdict with the reason of a failure.
type Outcome struct {
	Verdict Verdict
	Reason  string
}

func passed() Outcome { return Outcome{Verdict: Pass} }

func failed(format string, args ...interface{}) Outcome {
	return Outcome{Verdict: Fail, Reason: fmt.Sprintf(format, args...)}
}
