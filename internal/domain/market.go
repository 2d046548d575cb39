package domain

import "time"

// MarketID is the 32-byte market identifier shared with the ledger contract,
// carried as its hex string. The core never interprets it beyond encoding it
// into a ledger call.
type MarketID string

func (id MarketID) String() string { return string(id) }

// Outcome indexes a binary market side on the ledger.
type Outcome uint32

const (
	OutcomeNo  Outcome = 0
	OutcomeYes Outcome = 1
)

func (o Outcome) Valid() bool { return o == OutcomeNo || o == OutcomeYes }

// PoolSnapshot is one sample of a market's AMM pool. Odds are fractions in
// [0,1]; they are independent reads and need not sum to 1.
type PoolSnapshot struct {
	MarketID   MarketID `json:"marketId"`
	YesOdds    float64  `json:"yesOdds"`
	NoOdds     float64  `json:"noOdds"`
	YesReserve int64    `json:"yesReserve"`
	NoReserve  int64    `json:"noReserve"`
}

// Direction is the side that gained between two snapshots, derived from the
// yes odds alone.
type Direction string

const (
	DirectionYes       Direction = "YES"
	DirectionNo        Direction = "NO"
	DirectionUnchanged Direction = "UNCHANGED"
)

// EventTypeOddsChanged is the realtime event type emitted by the odds poller.
const EventTypeOddsChanged = "odds_changed"

// OddsChangedEvent is broadcast to a market's subscribers on a significant
// odds move. Direction is never UNCHANGED.
type OddsChangedEvent struct {
	Type      string    `json:"type"`
	MarketID  MarketID  `json:"marketId"`
	YesOdds   float64   `json:"yesOdds"`
	NoOdds    float64   `json:"noOdds"`
	Direction Direction `json:"direction"`
	Timestamp int64     `json:"timestamp"` // unix millis
}

// NewOddsChangedEvent builds the event for snap observed at ts.
func NewOddsChangedEvent(snap PoolSnapshot, dir Direction, ts time.Time) OddsChangedEvent {
	return OddsChangedEvent{
		Type:      EventTypeOddsChanged,
		MarketID:  snap.MarketID,
		YesOdds:   snap.YesOdds,
		NoOdds:    snap.NoOdds,
		Direction: dir,
		Timestamp: ts.UnixMilli(),
	}
}

// OddsQuote is the read-side view of a market's odds and liquidity.
type OddsQuote struct {
	YesOdds        float64 `json:"yesOdds"`
	NoOdds         float64 `json:"noOdds"`
	YesPercentage  int     `json:"yesPercentage"`
	NoPercentage   int     `json:"noPercentage"`
	YesLiquidity   int64   `json:"yesLiquidity"`
	NoLiquidity    int64   `json:"noLiquidity"`
	TotalLiquidity int64   `json:"totalLiquidity"`
}
