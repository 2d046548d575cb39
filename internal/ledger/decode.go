package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/alanyoungcy/marketrelay/internal/domain"
)

// bpsScale converts basis-point odds to fractions.
const bpsScale = 10000

// Fallback key order for pool records. Contract versions disagree on field
// names; the first present key wins.
var (
	yesReserveKeys = []string{"r_yes", "yes"}
	noReserveKeys  = []string{"r_no", "no"}
	yesOddsKeys    = []string{"odds_yes", "yes_odds"}
	noOddsKeys     = []string{"odds_no", "no_odds"}
)

const defaultOdds = 0.5

// IsEmpty reports whether raw carries no return value.
func IsEmpty(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

// DecodeInt64 decodes an integer return value encoded as a JSON number or a
// base-10 string.
func DecodeInt64(raw json.RawMessage) (int64, error) {
	if IsEmpty(raw) {
		return 0, fmt.Errorf("ledger: decode int: empty return value")
	}
	v, err := decodeAny(raw)
	if err != nil {
		return 0, err
	}
	return toInt64(v)
}

// DecodeOdds decodes a get_odds return value: a two-element array of basis
// points [yes, no].
func DecodeOdds(raw json.RawMessage) (yes, no float64, err error) {
	v, err := decodeAny(raw)
	if err != nil {
		return 0, 0, err
	}
	arr, ok := v.([]any)
	if !ok || len(arr) != 2 {
		return 0, 0, fmt.Errorf("ledger: decode odds: want [yes, no], got %s", string(raw))
	}
	y, err := toFloat(arr[0])
	if err != nil {
		return 0, 0, err
	}
	n, err := toFloat(arr[1])
	if err != nil {
		return 0, 0, err
	}
	return clampUnit(y / bpsScale), clampUnit(n / bpsScale), nil
}

// DecodePool decodes a get_pool return value into a PoolSnapshot for id.
// Missing reserves decode as 0 and missing odds as 0.5.
func DecodePool(id domain.MarketID, raw json.RawMessage) (domain.PoolSnapshot, error) {
	if IsEmpty(raw) {
		return domain.PoolSnapshot{}, fmt.Errorf("ledger: decode pool: empty return value")
	}
	v, err := decodeAny(raw)
	if err != nil {
		return domain.PoolSnapshot{}, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return domain.PoolSnapshot{}, fmt.Errorf("ledger: decode pool: want object, got %s", string(raw))
	}

	snap := domain.PoolSnapshot{MarketID: id, YesOdds: defaultOdds, NoOdds: defaultOdds}
	if snap.YesReserve, err = lookupInt(m, yesReserveKeys); err != nil {
		return domain.PoolSnapshot{}, err
	}
	if snap.NoReserve, err = lookupInt(m, noReserveKeys); err != nil {
		return domain.PoolSnapshot{}, err
	}
	if snap.YesReserve < 0 || snap.NoReserve < 0 {
		return domain.PoolSnapshot{}, fmt.Errorf("ledger: decode pool: negative reserve")
	}
	if f, ok, err := lookupFloat(m, yesOddsKeys); err != nil {
		return domain.PoolSnapshot{}, err
	} else if ok {
		snap.YesOdds = normalizeOdds(f)
	}
	if f, ok, err := lookupFloat(m, noOddsKeys); err != nil {
		return domain.PoolSnapshot{}, err
	} else if ok {
		snap.NoOdds = normalizeOdds(f)
	}
	return snap, nil
}

// DecodeOutcome decodes an optional outcome index. An empty value means no
// outcome.
func DecodeOutcome(raw json.RawMessage) (domain.Outcome, bool, error) {
	if IsEmpty(raw) {
		return 0, false, nil
	}
	n, err := DecodeInt64(raw)
	if err != nil {
		return 0, false, err
	}
	if n < 0 || n > math.MaxUint32 {
		return 0, false, fmt.Errorf("ledger: decode outcome: out of range %d", n)
	}
	return domain.Outcome(n), true, nil
}

func decodeAny(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("ledger: decode return value: %w", err)
	}
	return v, nil
}

func lookupInt(m map[string]any, keys []string) (int64, error) {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return toInt64(v)
		}
	}
	return 0, nil
}

func lookupFloat(m map[string]any, keys []string) (float64, bool, error) {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			f, err := toFloat(v)
			return f, true, err
		}
	}
	return 0, false, nil
}

func toInt64(v any) (int64, error) {
	var s string
	switch x := v.(type) {
	case json.Number:
		s = x.String()
	case string:
		s = strings.TrimSpace(x)
	default:
		return 0, fmt.Errorf("ledger: want integer, got %T", v)
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return 0, fmt.Errorf("ledger: invalid integer %q", s)
	}
	if !n.IsInt64() {
		return 0, fmt.Errorf("ledger: integer %s overflows int64", s)
	}
	return n.Int64(), nil
}

func toFloat(v any) (float64, error) {
	var s string
	switch x := v.(type) {
	case json.Number:
		s = x.String()
	case string:
		s = strings.TrimSpace(x)
	default:
		return 0, fmt.Errorf("ledger: want number, got %T", v)
	}
	f, ok := new(big.Float).SetString(s)
	if !ok {
		return 0, fmt.Errorf("ledger: invalid number %q", s)
	}
	out, _ := f.Float64()
	return out, nil
}

// normalizeOdds maps a pool odds field to [0,1]; values above 1 are basis
// points.
func normalizeOdds(f float64) float64 {
	if f > 1 {
		f /= bpsScale
	}
	return clampUnit(f)
}

func clampUnit(f float64) float64 {
	switch {
	case math.IsNaN(f) || f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
