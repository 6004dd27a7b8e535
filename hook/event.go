package hook

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Kind is the discriminant of a hook.
type Kind uint32

const (
	KindNoHook          Kind = 0
	KindTestLog         Kind = 100
	KindAssertEqFailed  Kind = 101
	KindRequestedAssert Kind = 102
	KindTestCount       Kind = 103
	KindTestStart       Kind = 104
)

func (k Kind) String() string {
	switch k {
	case KindNoHook:
		return "NoHook"
	case KindTestLog:
		return "TestLog"
	case KindAssertEqFailed:
		return "AssertEqFailed"
	case KindRequestedAssert:
		return "RequestedAssert"
	case KindTestCount:
		return "TestCount"
	case KindTestStart:
		return "TestStart"
	default:
		return fmt.Sprintf("Kind(%d)", uint32(k))
	}
}

// kindFromDiscriminant maps a written value to a Kind. Unknown values are
// not an error: the bootloader may know hooks this host does not.
func kindFromDiscriminant(d uint32) Kind {
	switch k := Kind(d); k {
	case KindTestLog, KindAssertEqFailed, KindRequestedAssert, KindTestCount, KindTestStart:
		return k
	default:
		return KindNoHook
	}
}

// Event is a decoded hook. Exactly one Event is produced per inspected
// instruction.
type Event interface {
	Kind() Kind
}

type NoHook struct{}

type TestLog struct {
	Message string
	Value   string
}

type AssertEqFailed struct {
	LHS     uint256.Int
	RHS     uint256.Int
	Message string
}

type RequestedAssert struct {
	Message string
}

type TestCount struct {
	Count uint32
}

type TestStart struct {
	Name string
}

func (NoHook) Kind() Kind          { return KindNoHook }
func (TestLog) Kind() Kind         { return KindTestLog }
func (AssertEqFailed) Kind() Kind  { return KindAssertEqFailed }
func (RequestedAssert) Kind() Kind { return KindRequestedAssert }
func (TestCount) Kind() Kind       { return KindTestCount }
func (TestStart) Kind() Kind       { return KindTestStart }

func (e TestLog) String() string { return e.Message + " " + e.Value }

// String renders the failure the way it is reported for a test.
func (e AssertEqFailed) String() string {
	return fmt.Sprintf("Assert failed: %s is not equal to %s: %s", e.LHS.Dec(), e.RHS.Dec(), e.Message)
}
