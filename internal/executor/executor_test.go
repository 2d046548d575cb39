package executor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketrelay/internal/crypto"
	"github.com/alanyoungcy/marketrelay/internal/domain"
	"github.com/alanyoungcy/marketrelay/internal/ledger"
)

const testMarket = domain.MarketID("0x00000000000000000000000000000000000000000000000000000000000000aa")

// fakeLedger scripts LedgerRPC responses and records calls.
type fakeLedger struct {
	mu sync.Mutex

	accountErr error
	simulate   func(domain.Envelope) (domain.SimulateResult, error)
	sendStatus domain.TxStatus
	sendErr    error
	txResults  []domain.TxResult // consumed in order; last one repeats
	txErrs     []error

	accountCalls int
	simCalls     int
	sendCalls    int
	getTxCalls   int
	sent         []domain.Envelope
}

func (f *fakeLedger) GetAccount(_ context.Context, id string) (domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accountCalls++
	if f.accountErr != nil {
		return domain.Account{}, f.accountErr
	}
	return domain.Account{ID: id, Sequence: 10}, nil
}

func (f *fakeLedger) SimulateTransaction(_ context.Context, env domain.Envelope) (domain.SimulateResult, error) {
	f.mu.Lock()
	f.simCalls++
	sim := f.simulate
	f.mu.Unlock()
	if sim == nil {
		return domain.SimulateResult{MinResourceFee: 50}, nil
	}
	return sim(env)
}

func (f *fakeLedger) PrepareTransaction(ctx context.Context, env domain.Envelope) (domain.Envelope, error) {
	sim, err := f.SimulateTransaction(ctx, env)
	if err != nil {
		return domain.Envelope{}, err
	}
	return ledger.Assemble(env, sim)
}

func (f *fakeLedger) SendTransaction(_ context.Context, env domain.Envelope) (domain.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendCalls++
	f.sent = append(f.sent, env)
	if f.sendErr != nil {
		return domain.SendResult{}, f.sendErr
	}
	status := f.sendStatus
	if status == "" {
		status = domain.TxPending
	}
	return domain.SendResult{Status: status, Hash: "txhash"}, nil
}

func (f *fakeLedger) GetTransaction(_ context.Context, _ string) (domain.TxResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.getTxCalls
	f.getTxCalls++
	var err error
	if i < len(f.txErrs) {
		err = f.txErrs[i]
	}
	if err != nil {
		return domain.TxResult{}, err
	}
	if len(f.txResults) == 0 {
		return domain.TxResult{Status: domain.TxNotFound}, nil
	}
	if i >= len(f.txResults) {
		i = len(f.txResults) - 1
	}
	return f.txResults[i], nil
}

type fakeJournal struct {
	mu      sync.Mutex
	entries []domain.JournalEntry
}

func (j *fakeJournal) Record(_ context.Context, e domain.JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
	return nil
}

func (j *fakeJournal) ListByStatus(context.Context, domain.TxStatus, domain.ListOpts) ([]domain.JournalEntry, error) {
	return nil, nil
}

func (j *fakeJournal) Resolve(context.Context, string, domain.TxStatus) error { return nil }

type fakeAlerter struct {
	events []string
}

func (a *fakeAlerter) Notify(_ context.Context, event, _, _ string) error {
	a.events = append(a.events, event)
	return nil
}

type sleepCounter struct {
	mu    sync.Mutex
	calls int
	total time.Duration
}

func (s *sleepCounter) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.total += d
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	return Config{AMMContract: "CAMM", OracleContract: "CORACLE", Network: "test"}
}

func newTestExecutor(t *testing.T, rpc domain.LedgerRPC, withSigner bool, opts ...Option) (*Executor, *sleepCounter) {
	t.Helper()
	var signer domain.Signer
	if withSigner {
		s, err := crypto.NewEphemeralSigner()
		require.NoError(t, err)
		signer = s
	}
	sc := &sleepCounter{}
	opts = append([]Option{WithClock(time.Now, sc.sleep)}, opts...)
	e, err := New(rpc, signer, testConfig(), discardLogger(), opts...)
	require.NoError(t, err)
	return e, sc
}

func notFound(n int) []domain.TxResult {
	out := make([]domain.TxResult, n)
	for i := range out {
		out[i] = domain.TxResult{Status: domain.TxNotFound}
	}
	return out
}

func TestBuyShares_ConfirmsOnLastAttempt(t *testing.T) {
	results := append(notFound(9), domain.TxResult{Status: domain.TxSuccess, ReturnValue: json.RawMessage(`"2000"`)})
	rpc := &fakeLedger{txResults: results}
	e, sc := newTestExecutor(t, rpc, true)

	res, err := e.BuyShares(context.Background(), domain.BuyParams{
		MarketID: testMarket, Outcome: domain.OutcomeYes, Amount: 1000, MinShares: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2000), res.SharesReceived)
	assert.Equal(t, int64(1000), res.TotalCost)
	assert.InDelta(t, 0.5, res.PricePerUnit, 1e-9)
	assert.InDelta(t, 2.0, res.FeeAmount, 1e-9)
	assert.Equal(t, "txhash", res.TxHash)

	assert.Equal(t, 10, rpc.getTxCalls)
	assert.Equal(t, 9, sc.calls)
	assert.Equal(t, 18*time.Second, sc.total)

	require.Len(t, rpc.sent, 1)
	env := rpc.sent[0]
	assert.Equal(t, int64(11), env.Sequence)
	assert.Equal(t, "buy_shares", env.Call.Function)
	assert.Equal(t, "CAMM", env.Call.Contract)
	require.Len(t, env.Signatures, 1)
	assert.Equal(t, ledger.BaseFee+50, env.Fee)
}

func TestWrite_ConfirmationTimeout(t *testing.T) {
	rpc := &fakeLedger{txResults: notFound(10)}
	journal := &fakeJournal{}
	alerts := &fakeAlerter{}
	e, sc := newTestExecutor(t, rpc, true, WithJournal(journal), WithAlerter(alerts))

	_, err := e.SellShares(context.Background(), domain.SellParams{
		MarketID: testMarket, Outcome: domain.OutcomeNo, Shares: 10, MinPayout: 0,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfirmationTimeout)
	assert.NotErrorIs(t, err, domain.ErrLedgerExecutionFailed)
	assert.True(t, domain.OutcomeUnknown(err))

	var txErr *domain.TxError
	require.True(t, errors.As(err, &txErr))
	assert.Equal(t, "txhash", txErr.TxHash)
	assert.Equal(t, domain.TxTimedOut, txErr.Status)

	assert.Equal(t, 10, rpc.getTxCalls)
	assert.Equal(t, 9, sc.calls)

	require.Len(t, journal.entries, 1)
	assert.Equal(t, domain.TxTimedOut, journal.entries[0].Status)
	assert.Equal(t, []string{EventOutcomeUnknown}, alerts.events)
}

func TestWrite_FailedStopsPolling(t *testing.T) {
	rpc := &fakeLedger{txResults: []domain.TxResult{{Status: domain.TxFailed}}}
	alerts := &fakeAlerter{}
	e, sc := newTestExecutor(t, rpc, true, WithAlerter(alerts))

	_, err := e.SubmitAttestation(context.Background(), testMarket, domain.OutcomeYes)
	assert.ErrorIs(t, err, domain.ErrLedgerExecutionFailed)
	assert.False(t, domain.OutcomeUnknown(err))
	assert.Equal(t, 1, rpc.getTxCalls)
	assert.Zero(t, sc.calls)
	assert.Empty(t, alerts.events)
}

func TestWrite_PollErrorsRetried(t *testing.T) {
	boom := errors.New("connection reset")
	rpc := &fakeLedger{
		txErrs:    []error{boom, boom, nil},
		txResults: []domain.TxResult{{}, {}, {Status: domain.TxSuccess}},
	}
	e, _ := newTestExecutor(t, rpc, true)

	res, err := e.SubmitAttestation(context.Background(), testMarket, domain.OutcomeNo)
	require.NoError(t, err)
	assert.Equal(t, "txhash", res.TxHash)
	assert.Equal(t, 3, rpc.getTxCalls)
}

func TestWrite_LastPollErrorPropagates(t *testing.T) {
	boom := errors.New("connection reset")
	errs := make([]error, 10)
	for i := range errs {
		errs[i] = boom
	}
	rpc := &fakeLedger{txErrs: errs}
	e, _ := newTestExecutor(t, rpc, true)

	_, err := e.SubmitAttestation(context.Background(), testMarket, domain.OutcomeNo)
	assert.ErrorIs(t, err, domain.ErrConfirmationTimeout)
	assert.ErrorIs(t, err, boom)
}

func TestWrite_SubmissionRejectedNotRetried(t *testing.T) {
	rpc := &fakeLedger{sendStatus: domain.TxTryAgainLater}
	e, _ := newTestExecutor(t, rpc, true)

	_, err := e.CreatePool(context.Background(), domain.CreatePoolParams{MarketID: testMarket, InitialLiquidity: 500})
	assert.ErrorIs(t, err, domain.ErrSubmissionRejected)
	assert.Equal(t, 1, rpc.sendCalls)
	assert.Zero(t, rpc.getTxCalls)
}

func TestWrite_ConfigurationFailsBeforeNetwork(t *testing.T) {
	rpc := &fakeLedger{}

	readOnly, _ := newTestExecutor(t, rpc, false)
	assert.True(t, readOnly.ReadOnly())
	_, err := readOnly.BuyShares(context.Background(), domain.BuyParams{MarketID: testMarket, Outcome: domain.OutcomeYes, Amount: 1})
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	signer, err := crypto.NewEphemeralSigner()
	require.NoError(t, err)
	noOracle, err := New(rpc, signer, Config{AMMContract: "CAMM"}, discardLogger())
	require.NoError(t, err)
	_, err = noOracle.SubmitAttestation(context.Background(), testMarket, domain.OutcomeYes)
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	assert.Zero(t, rpc.accountCalls)
	assert.Zero(t, rpc.simCalls)
	assert.Zero(t, rpc.sendCalls)
}

func TestWrite_ValidationFailsBeforeNetwork(t *testing.T) {
	rpc := &fakeLedger{}
	e, _ := newTestExecutor(t, rpc, true)

	_, err := e.BuyShares(context.Background(), domain.BuyParams{MarketID: testMarket, Outcome: 2, Amount: 1})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = e.SellShares(context.Background(), domain.SellParams{MarketID: "0xzz", Outcome: domain.OutcomeYes, Shares: 1})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Zero(t, rpc.accountCalls)
}

func TestCreatePool_ReadsBackPool(t *testing.T) {
	rpc := &fakeLedger{
		txResults: []domain.TxResult{{Status: domain.TxSuccess}},
		simulate: func(env domain.Envelope) (domain.SimulateResult, error) {
			if env.Call.Function == "get_pool" {
				return domain.SimulateResult{ReturnValue: json.RawMessage(`{"r_yes":"500","r_no":"500","odds_yes":5000,"odds_no":5000}`)}, nil
			}
			return domain.SimulateResult{}, nil
		},
	}
	e, _ := newTestExecutor(t, rpc, true)

	res, err := e.CreatePool(context.Background(), domain.CreatePoolParams{MarketID: testMarket, InitialLiquidity: 1000})
	require.NoError(t, err)
	assert.Equal(t, int64(500), res.Pool.YesReserve)
	assert.InDelta(t, 0.5, res.Pool.YesOdds, 1e-9)
}

func TestConcurrentWritesSerialized(t *testing.T) {
	var inFlight, maxInFlight int
	var mu sync.Mutex
	rpc := &fakeLedger{txResults: []domain.TxResult{{Status: domain.TxSuccess}}}
	e, _ := newTestExecutor(t, rpc, true)
	e.sleep = func(context.Context, time.Duration) error { return nil }

	inner := e.rpc
	e.rpc = trackingLedger{LedgerRPC: inner, enter: func() {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()
	}, leave: func() {
		mu.Lock()
		inFlight--
		mu.Unlock()
	}}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.SubmitAttestation(context.Background(), testMarket, domain.OutcomeYes)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxInFlight)
	assert.Equal(t, 5, rpc.sendCalls)
}

func TestQueuedWriteHonoursContext(t *testing.T) {
	rpc := &fakeLedger{txResults: notFound(1)}
	e, _ := newTestExecutor(t, rpc, true)

	entered := make(chan struct{})
	gate := make(chan struct{})
	var once sync.Once
	e.sleep = func(ctx context.Context, _ time.Duration) error {
		once.Do(func() { close(entered) })
		select {
		case <-gate:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = e.SubmitAttestation(firstCtx, testMarket, domain.OutcomeYes)
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := e.SubmitAttestation(ctx, testMarket, domain.OutcomeNo)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)

	rpc.mu.Lock()
	assert.Equal(t, 1, rpc.accountCalls)
	assert.Equal(t, 1, rpc.sendCalls)
	rpc.mu.Unlock()

	cancelFirst()
	close(gate)
	<-done
}

// trackingLedger counts writes between account fetch and confirmation.
type trackingLedger struct {
	domain.LedgerRPC
	enter, leave func()
}

func (t trackingLedger) GetAccount(ctx context.Context, id string) (domain.Account, error) {
	t.enter()
	return t.LedgerRPC.GetAccount(ctx, id)
}

func (t trackingLedger) GetTransaction(ctx context.Context, hash string) (domain.TxResult, error) {
	res, err := t.LedgerRPC.GetTransaction(ctx, hash)
	t.leave()
	return res, err
}

type fakeLocks struct {
	mu       sync.Mutex
	held     map[string]bool
	attempts int
	busyFor  int
}

func (l *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts++
	if l.attempts <= l.busyFor || l.held[key] {
		return nil, domain.ErrLockHeld
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}, nil
}

func TestWrite_WaitsForDistributedLock(t *testing.T) {
	locks := &fakeLocks{held: map[string]bool{}, busyFor: 2}
	rpc := &fakeLedger{txResults: []domain.TxResult{{Status: domain.TxSuccess}}}
	e, sc := newTestExecutor(t, rpc, true, WithLockManager(locks))

	_, err := e.SubmitAttestation(context.Background(), testMarket, domain.OutcomeYes)
	require.NoError(t, err)
	assert.Equal(t, 3, locks.attempts)
	assert.Equal(t, 2, sc.calls)
	assert.Empty(t, locks.held)
}

func TestGetOdds(t *testing.T) {
	rpc := &fakeLedger{
		accountErr: domain.ErrNotFound,
		simulate: func(env domain.Envelope) (domain.SimulateResult, error) {
			switch env.Call.Function {
			case "get_odds":
				return domain.SimulateResult{ReturnValue: json.RawMessage(`[6000, 4000]`)}, nil
			case "get_pool":
				return domain.SimulateResult{ReturnValue: json.RawMessage(`{"yes":300,"no":700}`)}, nil
			}
			return domain.SimulateResult{Error: "unknown"}, nil
		},
	}
	e, _ := newTestExecutor(t, rpc, false)

	q, err := e.GetOdds(context.Background(), testMarket)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, q.YesOdds, 1e-9)
	assert.Equal(t, 60, q.YesPercentage)
	assert.Equal(t, 40, q.NoPercentage)
	assert.Equal(t, int64(1000), q.TotalLiquidity)
	assert.Zero(t, rpc.sendCalls)
}

func TestGetOdds_DefaultsWhenSimulationFails(t *testing.T) {
	rpc := &fakeLedger{
		simulate: func(env domain.Envelope) (domain.SimulateResult, error) {
			if env.Call.Function == "get_odds" {
				return domain.SimulateResult{Error: "trap"}, nil
			}
			return domain.SimulateResult{ReturnValue: json.RawMessage(`{}`)}, nil
		},
	}
	e, _ := newTestExecutor(t, rpc, false)

	q, err := e.GetOdds(context.Background(), testMarket)
	require.NoError(t, err)
	assert.Equal(t, 0.5, q.YesOdds)
	assert.Equal(t, 0.5, q.NoOdds)
	assert.Equal(t, 50, q.YesPercentage)
}

func TestCheckConsensus(t *testing.T) {
	tests := []struct {
		name   string
		sim    domain.SimulateResult
		simErr error
		want   domain.Outcome
		wantOK bool
	}{
		{name: "resolved yes", sim: domain.SimulateResult{ReturnValue: json.RawMessage(`1`)}, want: domain.OutcomeYes, wantOK: true},
		{name: "resolved no", sim: domain.SimulateResult{ReturnValue: json.RawMessage(`0`)}, want: domain.OutcomeNo, wantOK: true},
		{name: "empty value", sim: domain.SimulateResult{}},
		{name: "null value", sim: domain.SimulateResult{ReturnValue: json.RawMessage(`null`)}},
		{name: "simulation failed", sim: domain.SimulateResult{Error: "no votes"}},
		{name: "rpc error", simErr: errors.New("timeout")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rpc := &fakeLedger{simulate: func(domain.Envelope) (domain.SimulateResult, error) {
				return tt.sim, tt.simErr
			}}
			e, _ := newTestExecutor(t, rpc, false)
			got, ok, err := e.CheckConsensus(context.Background(), testMarket)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReads_RequireContract(t *testing.T) {
	e, err := New(&fakeLedger{}, nil, Config{}, discardLogger())
	require.NoError(t, err)
	_, err = e.GetPoolState(context.Background(), testMarket)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	_, _, err = e.CheckConsensus(context.Background(), testMarket)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestEconomics(t *testing.T) {
	price, fee := BuyEconomics(1000, 500)
	assert.InDelta(t, 2.0, price, 1e-9)
	assert.InDelta(t, 2.0, fee, 1e-9)

	price, fee = BuyEconomics(1000, 0)
	assert.Zero(t, price)
	assert.InDelta(t, 2.0, fee, 1e-9)

	price, fee = SellEconomics(998, 100)
	assert.InDelta(t, 9.98, price, 1e-9)
	assert.InDelta(t, 2.0, fee, 1e-9)
}
