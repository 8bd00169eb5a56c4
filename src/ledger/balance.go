package ledger

import (
	"github.com/onemorebsmith/casha-node/src/model"
	"github.com/shopspring/decimal"
)

// Running balances keep available == confirmed + pendingInflow - pendingOutflow
// at all times. Admission moves funds into the pending columns, confirmation
// moves them into confirmed.

func (s *store) applyPending(tx *model.Transaction) {
	if from, ok := s.accounts[tx.FromUser]; ok && !tx.IsMint() {
		debit := tx.TotalDebit()
		from.available = from.available.Sub(debit)
		from.pendingOutflow = from.pendingOutflow.Add(debit)
	}
	if to, ok := s.accounts[tx.ToUser]; ok {
		to.available = to.available.Add(tx.Amount)
		to.pendingInflow = to.pendingInflow.Add(tx.Amount)
	}
}

func (s *store) applyConfirmed(tx *model.Transaction) {
	if from, ok := s.accounts[tx.FromUser]; ok && !tx.IsMint() {
		debit := tx.TotalDebit()
		from.confirmed = from.confirmed.Sub(debit)
		from.pendingOutflow = from.pendingOutflow.Sub(debit)
	}
	if to, ok := s.accounts[tx.ToUser]; ok {
		to.confirmed = to.confirmed.Add(tx.Amount)
		to.pendingInflow = to.pendingInflow.Sub(tx.Amount)
	}
}

// reconcile recomputes an account's balance from its ledger entries.
func (s *store) reconcile(a *accountState) model.Balance {
	ret := model.Balance{
		UserID:         a.account.UserID,
		Confirmed:      decimal.Zero,
		PendingInflow:  decimal.Zero,
		PendingOutflow: decimal.Zero,
	}
	for _, v := range a.txs {
		tx := v.tx
		if tx.ToUser == a.account.UserID {
			if v.confirmed {
				ret.Confirmed = ret.Confirmed.Add(tx.Amount)
			} else {
				ret.PendingInflow = ret.PendingInflow.Add(tx.Amount)
			}
		}
		if tx.FromUser == a.account.UserID && !tx.IsMint() {
			if v.confirmed {
				ret.Confirmed = ret.Confirmed.Sub(tx.TotalDebit())
			} else {
				ret.PendingOutflow = ret.PendingOutflow.Add(tx.TotalDebit())
			}
		}
	}
	ret.Available = ret.Confirmed.Add(ret.PendingInflow).Sub(ret.PendingOutflow)
	return ret
}
