package ledger

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/alanyoungcy/marketrelay/internal/domain"
)

// Address encodes an account id argument.
func Address(id string) domain.Arg {
	return domain.Arg{Type: domain.ArgAddress, Value: id}
}

// U32 encodes an unsigned 32-bit argument.
func U32(v uint32) domain.Arg {
	return domain.Arg{Type: domain.ArgU32, Value: strconv.FormatUint(uint64(v), 10)}
}

// I128 encodes a signed integer argument. int64 covers every amount the core
// submits; the wire form is base-10 so wider values decode unchanged.
func I128(v int64) domain.Arg {
	return domain.Arg{Type: domain.ArgI128, Value: strconv.FormatInt(v, 10)}
}

// MarketBytes encodes a market id as a fixed 32-byte argument. The id is hex,
// with or without a 0x prefix.
func MarketBytes(id domain.MarketID) (domain.Arg, error) {
	b, err := marketIDBytes(id)
	if err != nil {
		return domain.Arg{}, err
	}
	return domain.Arg{Type: domain.ArgBytes32, Value: hex.EncodeToString(b)}, nil
}

// MarketRawBytes encodes a market id as a variable-length bytes argument, the
// form the oracle contract expects.
func MarketRawBytes(id domain.MarketID) (domain.Arg, error) {
	b, err := marketIDBytes(id)
	if err != nil {
		return domain.Arg{}, err
	}
	return domain.Arg{Type: domain.ArgBytes, Value: hex.EncodeToString(b)}, nil
}

func marketIDBytes(id domain.MarketID) ([]byte, error) {
	s := strings.TrimPrefix(string(id), "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("ledger: market id %q: %w: not hex", id, domain.ErrValidation)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("ledger: market id %q: %w: want 32 bytes, got %d", id, domain.ErrValidation, len(b))
	}
	return b, nil
}
