// Package ws implements the realtime broadcast gateway: authenticated
// websocket connections subscribe to markets and receive odds_changed events.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/marketrelay/internal/domain"
	"github.com/alanyoungcy/marketrelay/internal/metrics"
	"github.com/alanyoungcy/marketrelay/internal/ratelimit"
)

// Config holds gateway timing and validation limits.
type Config struct {
	HeartbeatSweep time.Duration // default 30s
	StaleAfter     time.Duration // default 90s
	PingInterval   time.Duration // default 25s
	PongWait       time.Duration // default 60s
	MaxMarketIDLen int           // default 100
	AllowedOrigins []string      // empty allows all
}

func (c Config) withDefaults() Config {
	if c.HeartbeatSweep <= 0 {
		c.HeartbeatSweep = 30 * time.Second
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 90 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 25 * time.Second
	}
	// Pings must be sent more often than the read deadline expires.
	if c.PingInterval >= c.PongWait {
		c.PingInterval = (c.PongWait * 9) / 10
	}
	if c.MaxMarketIDLen <= 0 {
		c.MaxMarketIDLen = 100
	}
	return c
}

// Option configures optional gateway collaborators.
type Option func(*Gateway)

// WithSignalBus fans published events out to other gateway instances.
func WithSignalBus(bus domain.SignalBus) Option {
	return func(g *Gateway) { g.bus = bus }
}

// WithMarketReleased registers a callback run when a market's last
// subscriber leaves. It is called with the registry locked and must not call
// back into the gateway.
func WithMarketReleased(fn func(domain.MarketID)) Option {
	return func(g *Gateway) { g.onRelease = fn }
}

// WithClock replaces the time source used for heartbeats and staleness.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// Gateway is the BroadcastGateway. The connection table, the subscription
// registry and every client's subscription set share one lock, so a
// disconnect removes all of a connection's state in one step.
type Gateway struct {
	cfg      Config
	verifier domain.IdentityVerifier
	limiter  *ratelimit.Limiter
	logger   *slog.Logger
	upgrader websocket.Upgrader
	now      func() time.Time

	bus        domain.SignalBus
	instanceID string
	onRelease  func(domain.MarketID)

	mu       sync.RWMutex
	clients  map[string]*client
	registry map[domain.MarketID]map[string]*client
	lastSent map[domain.MarketID]oddsPair

	handlers map[string]func(*client, inbound)
}

// New creates a Gateway.
func New(cfg Config, verifier domain.IdentityVerifier, limiter *ratelimit.Limiter, logger *slog.Logger, opts ...Option) *Gateway {
	g := &Gateway{
		cfg:        cfg.withDefaults(),
		verifier:   verifier,
		limiter:    limiter,
		logger:     logger.With(slog.String("component", "gateway")),
		now:        time.Now,
		instanceID: uuid.NewString(),
		clients:    make(map[string]*client),
		registry:   make(map[domain.MarketID]map[string]*client),
		lastSent:   make(map[domain.MarketID]oddsPair),
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.checkOrigin,
	}
	g.handlers = map[string]func(*client, inbound){
		OpSubscribeMarket:   g.handleSubscribe,
		OpUnsubscribeMarket: g.handleUnsubscribe,
		OpHeartbeat:         g.handleHeartbeat,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(g.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range g.cfg.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// HandleWS authenticates the request, then upgrades it. A request that fails
// authentication is refused with 401 before any connection state exists.
// GET /ws
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	ident, err := g.verifier.Verify(r.Context(), bearerToken(r))
	if err != nil {
		metrics.WSRejected.WithLabelValues("auth").Inc()
		g.logger.Warn("ws: authentication failed",
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
		writeUnauthorized(w)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	now := g.now()
	c := &client{
		gw:          g,
		conn:        conn,
		id:          uuid.NewString(),
		identity:    ident,
		connectedAt: now,
		subs:        make(map[domain.MarketID]struct{}),
		send:        make(chan []byte, sendBufferSize),
		done:        make(chan struct{}),
	}
	c.lastBeat.Store(now.UnixNano())

	g.mu.Lock()
	g.clients[c.id] = c
	total := len(g.clients)
	g.mu.Unlock()
	metrics.WSConnections.Inc()

	g.logger.Info("ws: client connected",
		slog.String("conn_id", c.id),
		slog.String("user_id", ident.UserID),
		slog.Int("total_clients", total),
	)

	go c.writePump()
	go c.readPump()
}

func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"authentication failed"}`))
}

func (g *Gateway) dispatch(c *client, msg inbound) {
	h, ok := g.handlers[msg.Type]
	if !ok {
		c.sendError(MsgUnknownOperation)
		return
	}
	h(c, msg)
}

func (g *Gateway) validMarketID(raw string) (domain.MarketID, bool) {
	if raw == "" || len(raw) > g.cfg.MaxMarketIDLen {
		return "", false
	}
	return domain.MarketID(raw), true
}

func (g *Gateway) handleSubscribe(c *client, msg inbound) {
	id, ok := g.validMarketID(msg.MarketID)
	if !ok {
		metrics.WSRejected.WithLabelValues("invalid_market").Inc()
		c.sendError(MsgInvalidMarketID)
		return
	}

	// Limiter windows are only created under g.mu for live connections;
	// disconnect removes them under the same lock.
	g.mu.Lock()
	if _, live := g.clients[c.id]; !live {
		g.mu.Unlock()
		return
	}
	if !g.limiter.Allow(c.id, ratelimit.KindSubscribe) {
		g.mu.Unlock()
		metrics.WSRejected.WithLabelValues("rate_limit").Inc()
		c.sendError(MsgRateLimitExceeded)
		return
	}
	subs, ok := g.registry[id]
	if !ok {
		subs = make(map[string]*client)
		g.registry[id] = subs
	}
	subs[c.id] = c
	c.subs[id] = struct{}{}
	g.mu.Unlock()

	g.logger.Debug("ws: subscribed",
		slog.String("conn_id", c.id),
		slog.String("market_id", id.String()),
	)
	c.sendJSON(marketAck{Type: TypeSubscribed, MarketID: id})
}

func (g *Gateway) handleUnsubscribe(c *client, msg inbound) {
	id, ok := g.validMarketID(msg.MarketID)
	if !ok {
		metrics.WSRejected.WithLabelValues("invalid_market").Inc()
		c.sendError(MsgInvalidMarketID)
		return
	}

	g.mu.Lock()
	if _, live := g.clients[c.id]; !live {
		g.mu.Unlock()
		return
	}
	if !g.limiter.Allow(c.id, ratelimit.KindUnsubscribe) {
		g.mu.Unlock()
		metrics.WSRejected.WithLabelValues("rate_limit").Inc()
		c.sendError(MsgRateLimitExceeded)
		return
	}
	g.leaveLocked(c, id)
	g.mu.Unlock()

	g.logger.Debug("ws: unsubscribed",
		slog.String("conn_id", c.id),
		slog.String("market_id", id.String()),
	)
	c.sendJSON(marketAck{Type: TypeUnsubscribed, MarketID: id})
}

func (g *Gateway) handleHeartbeat(c *client, _ inbound) {
	now := g.now()
	c.lastBeat.Store(now.UnixNano())
	c.sendJSON(heartbeatAck{Type: TypeHeartbeatAck, Timestamp: now.UnixMilli()})
}

// leaveLocked removes c from id's registry entry, deleting the entry and
// releasing the market when it empties. g.mu must be held.
func (g *Gateway) leaveLocked(c *client, id domain.MarketID) {
	delete(c.subs, id)
	subs, ok := g.registry[id]
	if !ok {
		return
	}
	delete(subs, c.id)
	if len(subs) == 0 {
		delete(g.registry, id)
		delete(g.lastSent, id)
		if g.onRelease != nil {
			g.onRelease(id)
		}
	}
}

// disconnect removes every trace of c: connection state, registry
// memberships and rate-limit windows. It is idempotent.
func (g *Gateway) disconnect(c *client, reason string) {
	g.mu.Lock()
	if _, live := g.clients[c.id]; !live {
		g.mu.Unlock()
		return
	}
	delete(g.clients, c.id)
	for id := range c.subs {
		g.leaveLocked(c, id)
	}
	g.limiter.Remove(c.id)
	total := len(g.clients)
	g.mu.Unlock()

	c.close()
	metrics.WSConnections.Dec()
	g.logger.Info("ws: client disconnected",
		slog.String("conn_id", c.id),
		slog.String("reason", reason),
		slog.Duration("connected_for", g.now().Sub(c.connectedAt)),
		slog.Int("total_clients", total),
	)
}

// Publish delivers ev to every local subscriber of id and, with a signal bus,
// to the other instances. Delivery never blocks on a slow connection. An
// unknown market is a no-op.
func (g *Gateway) Publish(ctx context.Context, id domain.MarketID, ev domain.OddsChangedEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		g.logger.Error("ws: encode event", slog.String("error", err.Error()))
		return
	}
	g.deliver(id, oddsOf(ev), data)

	if g.bus != nil {
		g.fanOut(ctx, id, data)
	}
}

// deliver enqueues data for id's local subscribers. With several instances
// polling the same market each one publishes the same change, so an event
// whose odds match the last ones delivered for id is dropped.
func (g *Gateway) deliver(id domain.MarketID, odds oddsPair, data []byte) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	subs, ok := g.registry[id]
	if !ok {
		return 0
	}
	if last, seen := g.lastSent[id]; seen && last == odds {
		metrics.WSDuplicatesDropped.Inc()
		return 0
	}
	g.lastSent[id] = odds
	n := 0
	for _, c := range subs {
		if c.enqueue(data) {
			n++
		}
	}
	return n
}

type oddsPair struct{ yes, no float64 }

func oddsOf(ev domain.OddsChangedEvent) oddsPair {
	return oddsPair{yes: ev.YesOdds, no: ev.NoOdds}
}

// Markets lists markets with at least one subscriber.
func (g *Gateway) Markets() []domain.MarketID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]domain.MarketID, 0, len(g.registry))
	for id := range g.registry {
		out = append(out, id)
	}
	return out
}

// Subscribers returns the number of local subscribers of id.
func (g *Gateway) Subscribers(id domain.MarketID) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.registry[id])
}

// MarketCount returns the number of markets with at least one subscriber.
func (g *Gateway) MarketCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.registry)
}

// ConnectionCount returns the number of open connections.
func (g *Gateway) ConnectionCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}

// Run sweeps stale connections until ctx is cancelled, then closes every
// connection. With a signal bus it also relays events from other instances.
func (g *Gateway) Run(ctx context.Context) error {
	if g.bus != nil {
		if err := g.relay(ctx); err != nil {
			return err
		}
	}

	ticker := time.NewTicker(g.cfg.HeartbeatSweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			g.closeAll()
			return ctx.Err()
		case <-ticker.C:
			g.sweep()
		}
	}
}

// sweep disconnects connections whose last heartbeat is older than
// StaleAfter.
func (g *Gateway) sweep() int {
	cutoff := g.now().Add(-g.cfg.StaleAfter)

	g.mu.RLock()
	var stale []*client
	for _, c := range g.clients {
		if c.lastHeartbeat().Before(cutoff) {
			stale = append(stale, c)
		}
	}
	g.mu.RUnlock()

	for _, c := range stale {
		g.logger.Info("ws: evicting stale client",
			slog.String("conn_id", c.id),
			slog.Time("last_heartbeat", c.lastHeartbeat()),
		)
		g.disconnect(c, "stale")
	}
	return len(stale)
}

func (g *Gateway) closeAll() {
	g.mu.RLock()
	all := make([]*client, 0, len(g.clients))
	for _, c := range g.clients {
		all = append(all, c)
	}
	g.mu.RUnlock()

	for _, c := range all {
		g.disconnect(c, "shutdown")
	}
}
