package domain

import (
	"context"
	"encoding/json"
)

// TxStatus is a transaction status as reported by the ledger RPC, plus the
// locally-derived TIMED_OUT terminal state.
type TxStatus string

const (
	TxPending       TxStatus = "PENDING"
	TxSuccess       TxStatus = "SUCCESS"
	TxFailed        TxStatus = "FAILED"
	TxNotFound      TxStatus = "NOT_FOUND"
	TxDuplicate     TxStatus = "DUPLICATE"
	TxTryAgainLater TxStatus = "TRY_AGAIN_LATER"
	TxStatusError   TxStatus = "ERROR"

	// TxTimedOut is never reported by the ledger. It marks a transaction
	// whose finality was not observed within the confirmation budget.
	TxTimedOut TxStatus = "TIMED_OUT"
)

// Terminal reports whether s can no longer change.
func (s TxStatus) Terminal() bool {
	return s == TxSuccess || s == TxFailed || s == TxTimedOut
}

// ArgType names the ledger value type an argument is encoded as.
type ArgType string

const (
	ArgAddress ArgType = "address"
	ArgBytes32 ArgType = "bytes32"
	ArgBytes   ArgType = "bytes"
	ArgU32     ArgType = "u32"
	ArgI128    ArgType = "i128"
)

// Arg is one typed contract argument. Value is the canonical string form:
// hex for byte types, base-10 for integers, the account id for addresses.
type Arg struct {
	Type  ArgType `json:"type"`
	Value string  `json:"value"`
}

// LedgerCall is an intended contract invocation. It is built per request and
// never persisted.
type LedgerCall struct {
	Contract string `json:"contract"`
	Function string `json:"function"`
	Args     []Arg  `json:"args"`
}

// Account is the ledger's view of a source account.
type Account struct {
	ID       string `json:"id"`
	Sequence int64  `json:"sequence,string"`
}

// Signature is one decorated signature over an envelope hash.
type Signature struct {
	PublicKey string `json:"publicKey"`
	Signature string `json:"signature"`
}

// Envelope is a single-operation transaction envelope. MaxTime is the
// client-side validity bound baked into the envelope itself.
type Envelope struct {
	Source      string          `json:"source"`
	Sequence    int64           `json:"sequence,string"`
	Fee         int64           `json:"fee"`
	Network     string          `json:"network"`
	MaxTime     int64           `json:"maxTime"`
	Call        LedgerCall      `json:"call"`
	ResourceFee int64           `json:"resourceFee,omitempty"`
	Footprint   json.RawMessage `json:"footprint,omitempty"`
	Signatures  []Signature     `json:"signatures,omitempty"`
}

// SimulateResult is the response of a simulation. A non-empty Error means the
// simulation failed.
type SimulateResult struct {
	Error          string          `json:"error,omitempty"`
	MinResourceFee int64           `json:"minResourceFee,string,omitempty"`
	Footprint      json.RawMessage `json:"footprint,omitempty"`
	ReturnValue    json.RawMessage `json:"returnValue,omitempty"`
	LatestLedger   int64           `json:"latestLedger,omitempty"`
}

// Success reports whether the simulation succeeded.
func (r SimulateResult) Success() bool { return r.Error == "" }

// SendResult is the initial response to a submission.
type SendResult struct {
	Status      TxStatus `json:"status"`
	Hash        string   `json:"hash"`
	ErrorResult string   `json:"errorResult,omitempty"`
}

// TxResult is a finality query response.
type TxResult struct {
	Status      TxStatus        `json:"status"`
	ReturnValue json.RawMessage `json:"returnValue,omitempty"`
	Ledger      int64           `json:"ledger,omitempty"`
}

// LedgerRPC is the remote ledger endpoint.
type LedgerRPC interface {
	GetAccount(ctx context.Context, id string) (Account, error)
	SimulateTransaction(ctx context.Context, env Envelope) (SimulateResult, error)
	PrepareTransaction(ctx context.Context, env Envelope) (Envelope, error)
	SendTransaction(ctx context.Context, env Envelope) (SendResult, error)
	GetTransaction(ctx context.Context, hash string) (TxResult, error)
}

// Signer holds a keypair. Implementations must never expose the private key.
type Signer interface {
	PublicKey() string
	Sign(digest []byte) ([]byte, error)
}
