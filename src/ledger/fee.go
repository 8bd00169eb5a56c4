package ledger

import "github.com/shopspring/decimal"

// FeePolicy charges Rate of the amount, clamped to [Min, Max].
type FeePolicy struct {
	Rate decimal.Decimal
	Min  decimal.Decimal
	Max  decimal.Decimal
}

func DefaultFeePolicy() FeePolicy {
	return DefaultConfig().feePolicy()
}

// Fee is zero for non-positive amounts; any positive amount pays at least Min.
func (p FeePolicy) Fee(amount decimal.Decimal) decimal.Decimal {
	if !amount.IsPositive() {
		return decimal.Zero
	}
	fee := amount.Mul(p.Rate)
	if fee.LessThan(p.Min) {
		return p.Min
	}
	if fee.GreaterThan(p.Max) {
		return p.Max
	}
	return fee
}
