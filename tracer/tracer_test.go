package tracer

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrhapile/bootloader-test-infra/hook"
	"github.com/mrhapile/bootloader-test-infra/vm"
	"github.com/mrhapile/bootloader-test-infra/vm/vmtest"
)

var (
	proto   = hook.DefaultProtocol()
	discard = log.NewLogger(log.DiscardHandler())
)

func script() *vmtest.Builder {
	return vmtest.NewBuilder(vmtest.Layout{HookPosition: proto.HookPosition, ParamsStart: proto.ParamsStart})
}

// runTest replays prog under a fresh TestTracer.
func runTest(t *testing.T, prog *vmtest.Program, enc vm.EncodingMode) (*TestTracer, *vmtest.Machine) {
	t.Helper()
	tr := NewTestTracer(proto, enc, discard)
	m := &vmtest.Machine{Program: prog, Encoding: enc}
	_, err := m.InspectBatch([]vm.Tracer{tr})
	require.NoError(t, err)
	return tr, m
}

// TestTestTracer_Verdicts covers the reconciliation of requested asserts
// with the way a run ended.
func TestTestTracer_Verdicts(t *testing.T) {
	pcZero := uint64(0)

	testCases := []struct {
		name       string
		prog       *vmtest.Program
		wantResult Verdict
		wantReason string
	}{
		{
			name:       "plain_pass",
			prog:       script().Instr(vm.OpAdd).Log("step", uint256.NewInt(1)).Build(),
			wantResult: Pass,
		},
		{
			name:       "halt_without_request_passes",
			prog:       script().Instr(vm.OpAdd).AssertionHalt("unexpected").Build(),
			wantResult: Pass,
		},
		{
			name:       "assert_eq_failed",
			prog:       script().AssertEqFailed(uint256.NewInt(10), uint256.NewInt(11), "refund").Build(),
			wantResult: Fail,
			wantReason: "Assert failed: 10 is not equal to 11: refund",
		},
		{
			name:       "requested_assert_matches",
			prog:       script().RequestAssert("Tx data offset is incorrect").AssertionHalt("Tx data offset is incorrect").Build(),
			wantResult: Pass,
		},
		{
			name:       "requested_assert_but_success",
			prog:       script().RequestAssert("Tx data offset is incorrect").Instr(vm.OpRet).Build(),
			wantResult: Fail,
			wantReason: "should have failed with `Tx data offset is incorrect`, but ran successfully",
		},
		{
			name:       "requested_assert_other_message",
			prog:       script().RequestAssert("expected").AssertionHalt("actual").Build(),
			wantResult: Fail,
			wantReason: "should have failed with `expected`, but failed with `actual`",
		},
		{
			name:       "requested_assert_other_halt",
			prog:       script().RequestAssert("expected").HaltWith(vm.HaltTooBigGasLimit, "gas").Build(),
			wantResult: Fail,
			wantReason: "should have failed with `expected`, but failed with `TooBigGasLimit: gas`",
		},
		{
			name: "requested_assert_bootloader_panic",
			prog: script().RequestAssert("expected").
				AssertionHalt("expected").
				HaltFlags(vm.Flags{OverflowOrLessThan: true}).Build(),
			wantResult: Fail,
			wantReason: "should have failed with `expected`, but failed with `bootloader panic`",
		},
		{
			name:       "halt_off_exception_handler",
			prog:       script().RequestAssert("expected").AssertionHalt("expected").HaltAt(pcZero).Build(),
			wantResult: Fail,
			wantReason: "should have failed with `expected`, but ran successfully",
		},
		{
			name:       "requested_assert_last_write_wins",
			prog:       script().RequestAssert("first").RequestAssert("second").AssertionHalt("second").Build(),
			wantResult: Pass,
		},
		{
			name:       "prefix_is_stripped_once",
			prog:       script().RequestAssert("Assertion error: nested").AssertionHalt("Assertion error: nested").Build(),
			wantResult: Pass,
		},
		{
			name:       "failure_beats_requested_assert",
			prog:       script().RequestAssert("x").AssertEqFailed(uint256.NewInt(1), uint256.NewInt(2), "early").AssertionHalt("x").Build(),
			wantResult: Fail,
			wantReason: "Assert failed: 1 is not equal to 2: early",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tr, _ := runTest(t, tc.prog, vm.EncodingProduction)

			require.NoError(t, tr.Err())
			assert.Equal(t, tc.wantResult, tr.Outcome().Verdict)
			assert.Equal(t, tc.wantReason, tr.Outcome().Reason)
		})
	}
}

func TestTestTracer_EncodingModeSelectsHandler(t *testing.T) {
	prog := script().RequestAssert("boom").AssertionHalt("boom").Build()

	tr := NewTestTracer(proto, vm.EncodingTesting, discard)
	m := &vmtest.Machine{Program: prog, Encoding: vm.EncodingTesting}
	_, err := m.InspectBatch([]vm.Tracer{tr})
	require.NoError(t, err)
	assert.Equal(t, Pass, tr.Outcome().Verdict)

	// A production-mode tracer does not recognise the testing-mode handler pc.
	tr = NewTestTracer(proto, vm.EncodingProduction, discard)
	m = &vmtest.Machine{Program: prog, Encoding: vm.EncodingTesting}
	_, err = m.InspectBatch([]vm.Tracer{tr})
	require.NoError(t, err)
	assert.Equal(t, Fail, tr.Outcome().Verdict)
	assert.Contains(t, tr.Outcome().Reason, "ran successfully")
}

func TestTestTracer_StopsOnFailure(t *testing.T) {
	prog := script().
		AssertEqFailed(uint256.NewInt(1), uint256.NewInt(2), "first").
		Instr(vm.OpAdd).
		Instr(vm.OpAdd).
		Build()

	tr, m := runTest(t, prog, vm.EncodingProduction)

	assert.True(t, tr.ShouldStopExecution())
	assert.Equal(t, len(prog.Steps)-2, m.Executed, "execution must stop right after the failing hook")
}

func TestTestTracer_FirstVerdictWins(t *testing.T) {
	tr := NewTestTracer(proto, vm.EncodingProduction, discard)
	mem := vm.NewPageMemory()
	state := vm.LocalState{BaseMemoryPage: vm.InitialBasePage}
	fire := func(kind hook.Kind, params ...*uint256.Int) {
		for i, p := range params {
			mem.WriteWord(proto.HeapPage, proto.ParamsStart+uint32(i), p)
		}
		tr.BeforeExecution(state, vm.BeforeExecutionData{
			Opcode: vm.OpUMAHeapWrite,
			Src0:   *vm.FatPointer{Offset: proto.HookPosition * vm.WordSize}.Word(),
			Src1:   *uint256.NewInt(uint64(kind)),
		}, mem)
	}

	fire(hook.KindAssertEqFailed, uint256.NewInt(1), uint256.NewInt(2), uint256.NewInt(0), vmtest.StringWord("first"))
	fire(hook.KindAssertEqFailed, uint256.NewInt(3), uint256.NewInt(4), uint256.NewInt(0), vmtest.StringWord("second"))
	fire(hook.KindTestLog, vmtest.StringWord("late"), uint256.NewInt(1))
	fire(hook.KindRequestedAssert, vmtest.StringWord("late"))
	tr.AfterVMExecution(&vm.FinalState{ExecutionEnded: true}, vm.StopTracerRequested)

	assert.Equal(t, Outcome{Verdict: Fail, Reason: "Assert failed: 1 is not equal to 2: first"}, tr.Outcome())
	assert.Empty(t, tr.Logs())
	_, requested := tr.RequestedAssert()
	assert.False(t, requested)
}

func TestTestTracer_RecordsNameAndLogs(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewLogger(log.NewTerminalHandler(&buf, false))

	prog := script().
		TestStart("test_fee_charge").
		Log("balance", uint256.NewInt(1000)).
		Log("big", new(uint256.Int).Lsh(uint256.NewInt(1), 64)).
		RequestAssert("out of funds").
		AssertionHalt("out of funds").
		Build()

	tr := NewTestTracer(proto, vm.EncodingProduction, logger)
	_, err := (&vmtest.Machine{Program: prog}).InspectBatch([]vm.Tracer{tr})
	require.NoError(t, err)

	assert.Equal(t, "test_fee_charge", tr.Name())
	require.Len(t, tr.Logs(), 2)
	assert.Equal(t, hook.TestLog{Message: "balance", Value: "1000"}, tr.Logs()[0])
	assert.Equal(t, "0x"+strings.Repeat("00", 23)+"01"+strings.Repeat("00", 8), tr.Logs()[1].Value)
	msg, ok := tr.RequestedAssert()
	assert.True(t, ok)
	assert.Equal(t, "out of funds", msg)
	assert.Equal(t, Pass, tr.Outcome().Verdict)

	out := buf.String()
	assert.Contains(t, out, "Test log")
	assert.Contains(t, out, "test_fee_charge")
}

func TestTestTracer_MalformedHookIsFatal(t *testing.T) {
	prog := script().
		Hook(vmtest.DiscriminantTestStart, vmtest.BytesWord([]byte{0xc3, 0x28})).
		Instr(vm.OpAdd).
		Build()

	tr, m := runTest(t, prog, vm.EncodingProduction)

	var perr *hook.PayloadError
	require.True(t, errors.As(tr.Err(), &perr))
	assert.Equal(t, hook.KindTestStart, perr.Kind)
	assert.True(t, tr.ShouldStopExecution())
	assert.Equal(t, Pending, tr.Outcome().Verdict, "no verdict is derived from a corrupt run")
	assert.Equal(t, len(prog.Steps)-1, m.Executed)
}

func TestTestTracer_IgnoresDiscoveryHooks(t *testing.T) {
	prog := script().TestCount(4).Build()

	tr, _ := runTest(t, prog, vm.EncodingProduction)

	assert.Equal(t, Pass, tr.Outcome().Verdict)
}

func TestVerdictText(t *testing.T) {
	for _, v := range []Verdict{Pending, Pass, Fail} {
		text, err := v.MarshalText()
		require.NoError(t, err)

		var got Verdict
		require.NoError(t, got.UnmarshalText(text))
		assert.Equal(t, v, got)
	}

	var v Verdict
	assert.Error(t, v.UnmarshalText([]byte("skipped")))
	assert.Equal(t, "verdict(9)", Verdict(9).String())
}
