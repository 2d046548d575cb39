package executor

// FeeRate is the pool's trading fee, charged on collateral in and taken from
// gross payout out.
const FeeRate = 0.002

// BuyEconomics derives the unit price and fee of a buy of amount collateral
// that returned shares. Zero shares yield a zero price.
func BuyEconomics(amount, shares int64) (pricePerUnit, fee float64) {
	fee = float64(amount) * FeeRate
	if shares > 0 {
		pricePerUnit = float64(amount) / float64(shares)
	}
	return pricePerUnit, fee
}

// SellEconomics derives the unit price and fee of a sell of shares that paid
// out payout net of fee.
func SellEconomics(payout, shares int64) (pricePerUnit, fee float64) {
	gross := float64(payout) / (1 - FeeRate)
	fee = gross - float64(payout)
	if shares > 0 {
		pricePerUnit = float64(payout) / float64(shares)
	}
	return pricePerUnit, fee
}
