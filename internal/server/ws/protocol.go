package ws

import (
	"encoding/json"

	"github.com/alanyoungcy/marketrelay/internal/domain"
)

// Inbound operations.
const (
	OpSubscribeMarket   = "subscribe_market"
	OpUnsubscribeMarket = "unsubscribe_market"
	OpHeartbeat         = "heartbeat"
)

// Outbound acknowledgement types.
const (
	TypeSubscribed   = "subscribed"
	TypeUnsubscribed = "unsubscribed"
	TypeHeartbeatAck = "heartbeat_ack"
	TypeError        = "error"
)

// Client-visible error messages.
const (
	MsgInvalidMarketID   = "Invalid market ID"
	MsgRateLimitExceeded = "Rate limit exceeded"
	MsgUnknownOperation  = "Unknown operation"
	MsgInvalidMessage    = "Invalid message"
)

// inbound is a client frame: {"type":"subscribe_market","marketId":"..."}.
type inbound struct {
	Type     string `json:"type"`
	MarketID string `json:"marketId,omitempty"`
}

type marketAck struct {
	Type     string          `json:"type"`
	MarketID domain.MarketID `json:"marketId"`
}

type heartbeatAck struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"` // server unix millis
}

type errorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// busEnvelope carries an encoded event between gateway instances. Origin
// lets the publishing instance skip its own echo.
type busEnvelope struct {
	Origin   string          `json:"origin"`
	MarketID domain.MarketID `json:"marketId"`
	Event    json.RawMessage `json:"event"`
}
