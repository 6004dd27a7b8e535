package vm

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// ExecutionMode is the mode the bootloader processes transactions in.
type ExecutionMode uint8

const (
	ExecutionVerifyExecute ExecutionMode = iota
	ExecutionEstimateFee
	ExecutionEthCall
)

func (m ExecutionMode) String() string {
	switch m {
	case ExecutionVerifyExecute:
		return "verify_execute"
	case ExecutionEstimateFee:
		return "estimate_fee"
	case ExecutionEthCall:
		return "eth_call"
	default:
		return fmt.Sprintf("execution_mode(%d)", uint8(m))
	}
}

// ParseExecutionMode is the inverse of ExecutionMode.String.
func ParseExecutionMode(s string) (ExecutionMode, error) {
	switch s {
	case "verify_execute", "":
		return ExecutionVerifyExecute, nil
	case "estimate_fee":
		return ExecutionEstimateFee, nil
	case "eth_call":
		return ExecutionEthCall, nil
	}
	return 0, fmt.Errorf("unknown execution mode %q", s)
}

// SystemEnv holds the chain-level parameters of a run.
type SystemEnv struct {
	ChainID                         uint64
	GasLimit                        uint32
	ValidationComputationalGasLimit uint32
	ExecutionMode                   ExecutionMode
	Encoding                        EncodingMode
	Bootloader                      []byte
	BootloaderHash                  common.Hash
}

// L2BlockEnv describes the first L2 block of the batch.
type L2BlockEnv struct {
	Number           uint32
	Timestamp        uint64
	PrevBlockHash    common.Hash
	MaxVirtualBlocks uint32
}

// BatchEnv holds the batch-level parameters of a run.
type BatchEnv struct {
	PreviousBatchHash *common.Hash
	Number            uint32
	Timestamp         uint64
	L1GasPrice        uint64
	FairL2GasPrice    uint64
	FeeAccount        common.Address
	FirstL2Block      L2BlockEnv
}

// WithTestSelector returns a copy of b whose fee account carries the test id.
// The test bootloader reads the operator address slot to pick the embedded
// test to run; this is the only place that field is repurposed.
func (b BatchEnv) WithTestSelector(id uint32) BatchEnv {
	b.FeeAccount = common.Address(new(uint256.Int).SetUint64(uint64(id)).Bytes20())
	return b
}

// TestSelector returns the test id carried by the fee account.
func (b BatchEnv) TestSelector() uint32 {
	return binary.BigEndian.Uint32(b.FeeAccount[common.AddressLength-4:])
}

// OperatorWord returns the fee account as a left-padded machine word.
func (b BatchEnv) OperatorWord() *uint256.Int {
	return new(uint256.Int).SetBytes(b.FeeAccount.Bytes())
}

// LegacyL2BlockHash is the hash the bootloader expects for an L2 block
// produced before virtual blocks existed.
func LegacyL2BlockHash(number uint32) common.Hash {
	return crypto.Keccak256Hash(binary.BigEndian.AppendUint32(nil, number))
}
