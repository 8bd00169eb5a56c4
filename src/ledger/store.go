package ledger

import (
	"time"

	"github.com/onemorebsmith/casha-node/src/model"
	"github.com/shopspring/decimal"
)

// vertex is a transaction plus its mutable confirmation state.
type vertex struct {
	tx          *model.Transaction
	refCount    int
	approvers   int
	confirmed   bool
	confirmedAt time.Time
}

func (v *vertex) view() *model.TransactionView {
	ret := &model.TransactionView{
		Transaction:    *v.tx,
		ReferenceCount: v.refCount,
		IsConfirmed:    v.confirmed,
	}
	ret.References = append([]string(nil), v.tx.References...)
	if v.confirmed {
		at := v.confirmedAt
		ret.ConfirmedAt = &at
	}
	return ret
}

type accountState struct {
	account        model.Account
	confirmed      decimal.Decimal
	available      decimal.Decimal
	pendingInflow  decimal.Decimal
	pendingOutflow decimal.Decimal
	txs            []*vertex
	granted        bool
}

func (a *accountState) balance() model.Balance {
	return model.Balance{
		UserID:         a.account.UserID,
		Available:      a.available,
		Confirmed:      a.confirmed,
		PendingInflow:  a.pendingInflow,
		PendingOutflow: a.pendingOutflow,
	}
}

// store is the in-memory ledger: append-only transactions, accounts and
// running balances.
type store struct {
	vertices      map[string]*vertex
	order         []*vertex
	accounts      map[string]*accountState
	accountOrder  []string
	confirmed     int
	lastConfirmed *vertex
	confirmDelay  time.Duration
	// (sender, nonce) pairs of admitted transfers
	nonces map[nonceKey]struct{}
}

type nonceKey struct {
	from  string
	nonce string
}

func newStore() *store {
	return &store{
		vertices: map[string]*vertex{},
		accounts: map[string]*accountState{},
		nonces:   map[nonceKey]struct{}{},
	}
}

func (s *store) nonceUsed(from, nonce string) bool {
	_, ok := s.nonces[nonceKey{from: from, nonce: nonce}]
	return ok
}

func (s *store) nextSeq() uint64 {
	return uint64(len(s.order)) + 1
}

func (s *store) get(id string) (*vertex, bool) {
	v, ok := s.vertices[id]
	return v, ok
}

func (s *store) last() *vertex {
	if len(s.order) == 0 {
		return nil
	}
	return s.order[len(s.order)-1]
}

func (s *store) account(userID string) (*accountState, bool) {
	a, ok := s.accounts[userID]
	return a, ok
}

func (s *store) addAccount(acct model.Account) *accountState {
	st := &accountState{account: acct}
	s.accounts[acct.UserID] = st
	s.accountOrder = append(s.accountOrder, acct.UserID)
	return st
}

func (s *store) append(v *vertex) {
	s.vertices[v.tx.ID] = v
	s.order = append(s.order, v)
	if v.tx.IsMint() {
		if to, ok := s.accounts[v.tx.ToUser]; ok {
			to.granted = true
		}
	} else {
		s.nonces[nonceKey{from: v.tx.FromUser, nonce: v.tx.Nonce}] = struct{}{}
		if from, ok := s.accounts[v.tx.FromUser]; ok {
			from.txs = append(from.txs, v)
		}
	}
	if to, ok := s.accounts[v.tx.ToUser]; ok && v.tx.ToUser != v.tx.FromUser {
		to.txs = append(to.txs, v)
	}
}
