package domain

// BuyParams describes a buy_shares call. Amounts are in the collateral's
// base units.
type BuyParams struct {
	MarketID  MarketID
	Outcome   Outcome
	Amount    int64
	MinShares int64
}

// BuyResult is the confirmed economic result of a buy.
type BuyResult struct {
	SharesReceived int64   `json:"sharesReceived"`
	PricePerUnit   float64 `json:"pricePerUnit"`
	TotalCost      int64   `json:"totalCost"`
	FeeAmount      float64 `json:"feeAmount"`
	TxHash         string  `json:"txHash"`
}

// SellParams describes a sell_shares call.
type SellParams struct {
	MarketID  MarketID
	Outcome   Outcome
	Shares    int64
	MinPayout int64
}

// SellResult is the confirmed economic result of a sell. Payout is net of fee.
type SellResult struct {
	Payout       int64   `json:"payout"`
	PricePerUnit float64 `json:"pricePerUnit"`
	FeeAmount    float64 `json:"feeAmount"`
	TxHash       string  `json:"txHash"`
}

// CreatePoolParams seeds a new AMM pool for a market.
type CreatePoolParams struct {
	MarketID         MarketID
	InitialLiquidity int64
}

// CreatePoolResult carries the pool state read back after confirmation.
type CreatePoolResult struct {
	TxHash string       `json:"txHash"`
	Pool   PoolSnapshot `json:"pool"`
}

// AttestationResult is returned by a confirmed oracle attestation.
type AttestationResult struct {
	TxHash string `json:"txHash"`
}
