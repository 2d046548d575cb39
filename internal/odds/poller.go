// Package odds watches pool odds for subscribed markets and emits
// odds_changed events when a move is large enough to matter.
package odds

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/marketrelay/internal/domain"
	"github.com/alanyoungcy/marketrelay/internal/metrics"
)

// PoolReader fetches a fresh pool snapshot. executor.Executor implements it.
type PoolReader interface {
	GetPoolState(ctx context.Context, id domain.MarketID) (domain.PoolSnapshot, error)
}

// MarketSource lists markets that currently have subscribers.
type MarketSource interface {
	Markets() []domain.MarketID
}

// Publisher delivers an event to a market's subscribers.
type Publisher interface {
	Publish(ctx context.Context, id domain.MarketID, ev domain.OddsChangedEvent)
}

// Config holds poller configuration.
type Config struct {
	Interval     time.Duration // default 5s
	ThresholdPct float64       // default 1.0
	Concurrency  int           // max concurrent pool reads per cycle (default 16)
	Timeout      time.Duration // per-market read timeout (default 15s)
}

// DefaultConfig returns the default poller settings.
func DefaultConfig() Config {
	return Config{
		Interval:     5 * time.Second,
		ThresholdPct: 1.0,
		Concurrency:  16,
		Timeout:      15 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.ThresholdPct <= 0 {
		c.ThresholdPct = d.ThresholdPct
	}
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	return c
}

// Poller is the OddsPoller. At most one cycle runs at a time; a tick that
// finds a cycle in flight is dropped.
type Poller struct {
	cfg     Config
	reader  PoolReader
	markets MarketSource
	pub     Publisher
	logger  *slog.Logger
	now     func() time.Time

	running atomic.Bool

	mu        sync.Mutex
	snapshots map[domain.MarketID]domain.PoolSnapshot // last published, or baseline
	forgotten map[domain.MarketID]bool                // forgotten during the current cycle
	failing   map[domain.MarketID]int                 // consecutive fetch failures

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Poller.
func New(cfg Config, reader PoolReader, markets MarketSource, pub Publisher, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		cfg:       cfg.withDefaults(),
		reader:    reader,
		markets:   markets,
		pub:       pub,
		logger:    logger.With(slog.String("component", "odds_poller")),
		now:       time.Now,
		snapshots: make(map[domain.MarketID]domain.PoolSnapshot),
		forgotten: make(map[domain.MarketID]bool),
		failing:   make(map[domain.MarketID]int),
	}
}

// Start begins the polling loop. It returns immediately.
func (p *Poller) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run(ctx)

	p.logger.Info("odds poller started",
		slog.Duration("interval", p.cfg.Interval),
		slog.Float64("threshold_pct", p.cfg.ThresholdPct),
		slog.Int("concurrency", p.cfg.Concurrency),
	)
}

// Stop cancels the loop and waits for an in-flight cycle, bounded by ctx.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("odds poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.wg.Add(1)
			go func() {
				defer p.wg.Done()
				p.PollOnce(ctx)
			}()
		}
	}
}

// PollOnce runs one cycle unless another is in flight. It reports whether a
// cycle ran.
func (p *Poller) PollOnce(ctx context.Context) bool {
	if !p.running.CompareAndSwap(false, true) {
		metrics.PollSkipped.Inc()
		p.logger.DebugContext(ctx, "poll skipped, previous cycle still running")
		return false
	}
	defer p.running.Store(false)

	p.cycle(ctx)
	return true
}

func (p *Poller) cycle(ctx context.Context) {
	start := p.now()

	p.mu.Lock()
	clear(p.forgotten)
	p.mu.Unlock()

	markets := p.markets.Markets()
	if len(markets) == 0 {
		return
	}

	var fetched, failed, published atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for _, id := range markets {
		g.Go(func() error {
			// Errors stay per market so one bad pool never cancels the rest.
			snap, err := p.fetch(gctx, id)
			if err != nil {
				failed.Add(1)
				metrics.OddsFetchErrors.Inc()
				level := slog.LevelWarn
				streak := p.recordFailure(id)
				if streak > 1 {
					level = slog.LevelDebug
				}
				p.logger.Log(ctx, level, "pool fetch failed",
					slog.String("market_id", id.String()),
					slog.Int("consecutive", streak),
					slog.String("error", err.Error()),
				)
				return nil
			}
			fetched.Add(1)
			p.recordSuccess(id)

			ev, ok := p.evaluate(id, snap)
			if !ok {
				return nil
			}
			p.pub.Publish(ctx, id, ev)
			published.Add(1)
			metrics.OddsEvents.Inc()
			return nil
		})
	}
	_ = g.Wait()

	p.logger.DebugContext(ctx, "poll cycle complete",
		slog.Int("markets", len(markets)),
		slog.Int64("fetched", fetched.Load()),
		slog.Int64("errors", failed.Load()),
		slog.Int64("published", published.Load()),
		slog.Duration("duration", p.now().Sub(start)),
	)
}

func (p *Poller) fetch(ctx context.Context, id domain.MarketID) (domain.PoolSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	return p.reader.GetPoolState(ctx, id)
}

// evaluate compares cur against the stored snapshot. The first sample is a
// baseline. A significant sample replaces the stored one even when direction
// is UNCHANGED; an insignificant one leaves it in place so slow drift still
// accumulates against the last published value.
func (p *Poller) evaluate(id domain.MarketID, cur domain.PoolSnapshot) (domain.OddsChangedEvent, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.forgotten[id] {
		return domain.OddsChangedEvent{}, false
	}
	prev, ok := p.snapshots[id]
	if !ok {
		p.snapshots[id] = cur
		return domain.OddsChangedEvent{}, false
	}
	if !HasSignificantChange(prev, cur, p.cfg.ThresholdPct) {
		return domain.OddsChangedEvent{}, false
	}
	p.snapshots[id] = cur

	dir := GetDirection(prev, cur)
	if dir == domain.DirectionUnchanged {
		return domain.OddsChangedEvent{}, false
	}
	return domain.NewOddsChangedEvent(cur, dir, p.now()), true
}

// Forget drops the stored snapshot for id. The gateway calls it when a
// market's last subscriber leaves; a sample fetched concurrently is
// discarded, so the next sample after re-subscribe is a fresh baseline.
func (p *Poller) Forget(id domain.MarketID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.snapshots, id)
	delete(p.failing, id)
	p.forgotten[id] = true
}

// recordFailure returns the market's consecutive failure count.
func (p *Poller) recordFailure(id domain.MarketID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failing[id]++
	return p.failing[id]
}

func (p *Poller) recordSuccess(id domain.MarketID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n, ok := p.failing[id]; ok {
		delete(p.failing, id)
		p.logger.Info("pool fetch recovered",
			slog.String("market_id", id.String()),
			slog.Int("failures", n),
		)
	}
}

// Snapshot returns the stored snapshot for id.
func (p *Poller) Snapshot(id domain.MarketID) (domain.PoolSnapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.snapshots[id]
	return s, ok
}
