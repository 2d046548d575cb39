package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/marketrelay/internal/domain"
)

const (
	busChannelPrefix = "market:"
	busPattern       = busChannelPrefix + "*"
	busPublishWait   = 2 * time.Second
)

func busChannel(id domain.MarketID) string {
	return busChannelPrefix + string(id)
}

// fanOut publishes an encoded event for the other instances.
func (g *Gateway) fanOut(ctx context.Context, id domain.MarketID, data []byte) {
	payload, err := json.Marshal(busEnvelope{Origin: g.instanceID, MarketID: id, Event: data})
	if err != nil {
		g.logger.Error("ws: encode bus envelope", slog.String("error", err.Error()))
		return
	}
	ctx, cancel := context.WithTimeout(ctx, busPublishWait)
	defer cancel()
	if err := g.bus.Publish(ctx, busChannel(id), payload); err != nil {
		g.logger.Warn("ws: bus publish failed",
			slog.String("market_id", id.String()),
			slog.String("error", err.Error()),
		)
	}
}

// relay subscribes to every market channel and delivers events published by
// other instances to local subscribers.
func (g *Gateway) relay(ctx context.Context) error {
	msgs, err := g.bus.Subscribe(ctx, busPattern)
	if err != nil {
		return fmt.Errorf("ws: subscribe %s: %w", busPattern, err)
	}
	g.logger.Info("ws: relaying bus events", slog.String("pattern", busPattern))

	go func() {
		for msg := range msgs {
			var env busEnvelope
			if err := json.Unmarshal(msg.Payload, &env); err != nil {
				g.logger.Warn("ws: malformed bus message",
					slog.String("channel", msg.Channel),
					slog.String("error", err.Error()),
				)
				continue
			}
			if env.Origin == g.instanceID {
				continue
			}
			id := env.MarketID
			if id == "" {
				id = domain.MarketID(strings.TrimPrefix(msg.Channel, busChannelPrefix))
			}
			var ev domain.OddsChangedEvent
			if err := json.Unmarshal(env.Event, &ev); err != nil {
				g.logger.Warn("ws: malformed bus event",
					slog.String("market_id", id.String()),
					slog.String("error", err.Error()),
				)
				continue
			}
			g.deliver(id, oddsOf(ev), env.Event)
		}
	}()
	return nil
}
