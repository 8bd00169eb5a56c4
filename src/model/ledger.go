package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionKind string
type TransactionStatus string

const (
	TransactionKindTransfer TransactionKind = "transfer"
	TransactionKindMint     TransactionKind = "mint"
)

const ( // needs to match `transaction_status` in pg
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusConfirmed TransactionStatus = "confirmed"
)

// Transaction is an immutable ledger entry. FromUser is empty for mint
// transactions, which credit ToUser out of thin air and pay no fee.
type Transaction struct {
	ID         string
	Seq        uint64
	Kind       TransactionKind
	FromUser   string
	ToUser     string
	Amount     decimal.Decimal
	Fee        decimal.Decimal
	Note       string
	Nonce      string
	References []string
	Timestamp  time.Time
	Signature  string
}

// TotalDebit is what the sender pays for the transaction.
func (t *Transaction) TotalDebit() decimal.Decimal {
	return t.Amount.Add(t.Fee)
}

func (t *Transaction) IsMint() bool {
	return t.Kind == TransactionKindMint
}

// TransactionView is a transaction together with its confirmation state at
// the time the view was taken.
type TransactionView struct {
	Transaction
	// distinct descendants, saturating at the confirmation threshold
	ReferenceCount int
	IsConfirmed    bool
	ConfirmedAt    *time.Time
}

func (v *TransactionView) Status() TransactionStatus {
	if v.IsConfirmed {
		return TransactionStatusConfirmed
	}
	return TransactionStatusPending
}

type Account struct {
	UserID        string
	Username      string
	WalletAddress string
	PublicKey     string
	CreatedAt     time.Time
}

// Balance is the two-balance view of an account. Both values are signed:
// available can dip below confirmed while debits are pending.
type Balance struct {
	UserID         string
	Available      decimal.Decimal
	Confirmed      decimal.Decimal
	PendingInflow  decimal.Decimal
	PendingOutflow decimal.Decimal
}

// PendingIncome is available minus confirmed, clamped at zero for display.
func (b Balance) PendingIncome() decimal.Decimal {
	diff := b.Available.Sub(b.Confirmed)
	if diff.IsNegative() {
		return decimal.Zero
	}
	return diff
}

type DAGStats struct {
	TotalTransactions       int
	ConfirmedTransactions   int
	PendingTransactions     int
	TipsCount               int
	ConfirmationThreshold   int
	AverageConfirmationTime time.Duration
}

type NetworkHealth string

const (
	NetworkHealthExcellent NetworkHealth = "excellent"
	NetworkHealthGood      NetworkHealth = "good"
	NetworkHealthDegraded  NetworkHealth = "degraded"
)

// Health grades the share of confirmed transactions.
func (s DAGStats) Health() NetworkHealth {
	total := s.TotalTransactions
	if total == 0 {
		total = 1
	}
	rate := float64(s.ConfirmedTransactions) / float64(total)
	switch {
	case rate > 0.9:
		return NetworkHealthExcellent
	case rate > 0.7:
		return NetworkHealthGood
	default:
		return NetworkHealthDegraded
	}
}

// AccountRecord is an account as persisted, with the custodial key seed.
type AccountRecord struct {
	Account
	KeySeed string
}

// LedgerSnapshot is the persisted ledger used to rebuild in-memory state.
// Transactions are ordered by Seq.
type LedgerSnapshot struct {
	Accounts     []*AccountRecord
	Transactions []*Transaction
}
