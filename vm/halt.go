package vm

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// HaltCode is the leading byte of the return data the bootloader emits when
// it stops through its top-level exception handler.
type HaltCode uint8

const (
	HaltEthCall HaltCode = iota
	HaltAccountValidationFailed
	HaltFailedToChargeFee
	HaltFromIsNotAnAccount
	HaltInnerTxError
	HaltUnknown
	HaltUnexpectedVMBehavior
	HaltBootloaderOutOfGas
	HaltTooBigGasLimit
	HaltNotEnoughGasProvided
)

func (c HaltCode) String() string {
	switch c {
	case HaltEthCall:
		return "EthCall"
	case HaltAccountValidationFailed:
		return "AccountValidationFailed"
	case HaltFailedToChargeFee:
		return "FailedToChargeFee"
	case HaltFromIsNotAnAccount:
		return "FromIsNotAnAccount"
	case HaltInnerTxError:
		return "InnerTxError"
	case HaltUnknown:
		return "Unknown"
	case HaltUnexpectedVMBehavior:
		return "UnexpectedVMBehavior"
	case HaltBootloaderOutOfGas:
		return "BootloaderOutOfGas"
	case HaltTooBigGasLimit:
		return "TooBigGasLimit"
	case HaltNotEnoughGasProvided:
		return "NotEnoughGasProvided"
	default:
		return fmt.Sprintf("HaltCode(%d)", uint8(c))
	}
}

// Halt is a decoded bootloader halt.
type Halt struct {
	Code    HaltCode
	Message string
}

func (h Halt) String() string {
	if h.Message == "" {
		return h.Code.String()
	}
	return fmt.Sprintf("%s: %s", h.Code, h.Message)
}

// ParseHalt decodes bootloader return data: one code byte followed by an
// optional ABI encoded Error(string). Payloads that are not ABI encoded are
// kept as text when printable and as hex otherwise.
func ParseHalt(data []byte) Halt {
	if len(data) == 0 {
		return Halt{Code: HaltUnknown}
	}
	h := Halt{Code: HaltCode(data[0])}
	payload := data[1:]
	if len(payload) == 0 {
		return h
	}
	if msg, err := abi.UnpackRevert(payload); err == nil {
		h.Message = msg
		return h
	}
	trimmed := bytes.TrimRight(payload, "\x00")
	if utf8.Valid(trimmed) {
		h.Message = string(trimmed)
	} else {
		h.Message = hexutil.Encode(payload)
	}
	return h
}

// EncodeHalt is the inverse of ParseHalt for Error(string) payloads.
func EncodeHalt(code HaltCode, msg string) []byte {
	out := []byte{byte(code)}
	if msg == "" {
		return out
	}
	return append(out, encodeErrorString(msg)...)
}

var errorSelector = []byte{0x08, 0xc3, 0x79, 0xa0}

func encodeErrorString(msg string) []byte {
	args := abi.Arguments{{Type: stringType}}
	packed, err := args.Pack(msg)
	if err != nil {
		panic(fmt.Sprintf("pack revert reason: %v", err))
	}
	return append(append([]byte{}, errorSelector...), packed...)
}

var stringType = func() abi.Type {
	t, err := abi.NewType("string", "", nil)
	if err != nil {
		panic(err)
	}
	return t
}()
