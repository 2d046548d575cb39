package ledger

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/alanyoungcy/marketrelay/internal/domain"
)

// codeNotFound is the JSON-RPC error code the ledger returns for a missing
// account or ledger entry.
const codeNotFound = -32001

// ClientConfig holds connection parameters for the ledger RPC client.
type ClientConfig struct {
	URL            string
	RequestTimeout time.Duration
}

// Client implements domain.LedgerRPC over JSON-RPC 2.0. It is safe for
// concurrent use; one Client is shared by the executor and the odds poller.
type Client struct {
	rpc     *rpc.Client
	timeout time.Duration
}

// Dial connects to the ledger RPC endpoint.
func Dial(ctx context.Context, cfg ClientConfig) (*Client, error) {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c, err := rpc.DialOptions(ctx, cfg.URL, rpc.WithHTTPClient(&http.Client{Timeout: timeout}))
	if err != nil {
		return nil, fmt.Errorf("ledger: dial %s: %w", cfg.URL, err)
	}
	return &Client{rpc: c, timeout: timeout}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() {
	c.rpc.Close()
}

// GetAccount fetches the current sequence state of id. A missing account
// yields domain.ErrNotFound.
func (c *Client) GetAccount(ctx context.Context, id string) (domain.Account, error) {
	var acct domain.Account
	if err := c.call(ctx, &acct, "getAccount", map[string]any{"address": id}); err != nil {
		return domain.Account{}, fmt.Errorf("ledger: get account %s: %w", id, err)
	}
	return acct, nil
}

// SimulateTransaction dry-runs env and reports required resources and the
// would-be return value.
func (c *Client) SimulateTransaction(ctx context.Context, env domain.Envelope) (domain.SimulateResult, error) {
	var res domain.SimulateResult
	if err := c.call(ctx, &res, "simulateTransaction", map[string]any{"transaction": env}); err != nil {
		return domain.SimulateResult{}, fmt.Errorf("ledger: simulate %s: %w", env.Call.Function, err)
	}
	return res, nil
}

// PrepareTransaction simulates env and returns it with resources applied.
func (c *Client) PrepareTransaction(ctx context.Context, env domain.Envelope) (domain.Envelope, error) {
	sim, err := c.SimulateTransaction(ctx, env)
	if err != nil {
		return domain.Envelope{}, err
	}
	return Assemble(env, sim)
}

// SendTransaction submits a signed envelope.
func (c *Client) SendTransaction(ctx context.Context, env domain.Envelope) (domain.SendResult, error) {
	var res domain.SendResult
	if err := c.call(ctx, &res, "sendTransaction", map[string]any{"transaction": env}); err != nil {
		return domain.SendResult{}, fmt.Errorf("ledger: send %s: %w", env.Call.Function, err)
	}
	return res, nil
}

// GetTransaction queries the status of a submitted transaction.
func (c *Client) GetTransaction(ctx context.Context, hash string) (domain.TxResult, error) {
	var res domain.TxResult
	if err := c.call(ctx, &res, "getTransaction", map[string]any{"hash": hash}); err != nil {
		return domain.TxResult{}, fmt.Errorf("ledger: get transaction %s: %w", hash, err)
	}
	return res, nil
}

func (c *Client) call(ctx context.Context, result any, method string, params any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.rpc.CallContext(ctx, result, method, params)
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == codeNotFound {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, rpcErr.Error())
	}
	return err
}

var _ domain.LedgerRPC = (*Client)(nil)
