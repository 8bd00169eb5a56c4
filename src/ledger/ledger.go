// Package ledger is the DAG ledger: admission, tip selection, reference
// counted confirmation and the two-balance view of every account.
//
// All mutations go through a single writer token, so the balance check and
// the commit of a transfer can never interleave with another admission.
// Readers take the state read lock and always observe a transaction together
// with its balance effects.
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/onemorebsmith/casha-node/src/keys"
	"github.com/onemorebsmith/casha-node/src/model"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Ledger struct {
	cfg     Config
	fees    FeePolicy
	logger  *zap.Logger
	journal Journal
	keyring *keys.Keyring
	clock   *clock
	engine  *confirmationEngine

	writer chan struct{}

	mu    sync.RWMutex
	state *store
	tips  *TipSet

	observers []CommitObserver
}

type Option func(*Ledger)

func WithJournal(j Journal) Option {
	return func(l *Ledger) { l.journal = j }
}

func WithObserver(o CommitObserver) Option {
	return func(l *Ledger) { l.observers = append(l.observers, o) }
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.clock = newClock(now) }
}

func New(cfg Config, logger *zap.Logger, opts ...Option) *Ledger {
	cfg = cfg.withDefaults()
	l := &Ledger{
		cfg:     cfg,
		fees:    cfg.feePolicy(),
		logger:  logger.Named("ledger"),
		journal: nopJournal{},
		keyring: keys.NewKeyring(),
		clock:   newClock(nil),
		engine:  newConfirmationEngine(cfg.ConfirmationThreshold, cfg.MaxTraversalDepth, logger),
		writer:  make(chan struct{}, 1),
		state:   newStore(),
		tips:    NewTipSet(cfg.MaxFanIn),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *Ledger) Config() Config {
	return l.cfg
}

func (l *Ledger) FeePolicy() FeePolicy {
	return l.fees
}

// acquireWriter takes the single writer token or gives up after the
// configured lock timeout.
func (l *Ledger) acquireWriter(ctx context.Context) (func(), error) {
	timer := time.NewTimer(l.cfg.LockTimeout)
	defer timer.Stop()
	select {
	case l.writer <- struct{}{}:
		return func() { <-l.writer }, nil
	case <-timer.C:
		return nil, errors.Wrapf(ErrConcurrentModification, "ledger busy for %s", l.cfg.LockTimeout)
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "gave up waiting for the ledger")
	}
}

func (l *Ledger) notify(ctx context.Context, view *model.TransactionView) {
	for _, o := range l.observers {
		o.OnCommit(ctx, view)
	}
}

func (l *Ledger) Account(userID string) (*model.Account, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.state.account(userID)
	if !ok {
		return nil, false
	}
	acct := a.account
	return &acct, true
}

func (l *Ledger) Accounts() []*model.Account {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ret := make([]*model.Account, 0, len(l.state.accountOrder))
	for _, id := range l.state.accountOrder {
		acct := l.state.accounts[id].account
		ret = append(ret, &acct)
	}
	return ret
}

// Balance returns the running two-balance view of an account.
func (l *Ledger) Balance(userID string) (model.Balance, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.state.account(userID)
	if !ok {
		return model.Balance{}, errors.Wrap(ErrUnknownAccount, userID)
	}
	return a.balance(), nil
}

// Reconcile recomputes the balance of an account from its ledger entries.
func (l *Ledger) Reconcile(userID string) (model.Balance, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.state.account(userID)
	if !ok {
		return model.Balance{}, errors.Wrap(ErrUnknownAccount, userID)
	}
	return l.state.reconcile(a), nil
}

func (l *Ledger) Transaction(id string) (*model.TransactionView, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	v, ok := l.state.get(id)
	if !ok {
		return nil, false
	}
	return v.view(), true
}

// UserTransactions returns the transactions touching userID, newest first.
// A non-positive limit returns all of them.
func (l *Ledger) UserTransactions(userID string, limit int) ([]*model.TransactionView, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.state.account(userID)
	if !ok {
		return nil, errors.Wrap(ErrUnknownAccount, userID)
	}
	return newestFirst(a.txs, limit), nil
}

// Transactions returns the most recent transactions in the DAG, newest first.
func (l *Ledger) Transactions(limit int) []*model.TransactionView {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return newestFirst(l.state.order, limit)
}

func newestFirst(vs []*vertex, limit int) []*model.TransactionView {
	n := len(vs)
	if limit > 0 && limit < n {
		n = limit
	}
	ret := make([]*model.TransactionView, 0, n)
	for i := len(vs) - 1; i >= 0 && len(ret) < n; i-- {
		ret = append(ret, vs[i].view())
	}
	return ret
}

// Tips returns the current tip set, oldest first.
func (l *Ledger) Tips() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tips.IDs()
}

func (l *Ledger) Stats() model.DAGStats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s := model.DAGStats{
		TotalTransactions:     len(l.state.order),
		ConfirmedTransactions: l.state.confirmed,
		PendingTransactions:   len(l.state.order) - l.state.confirmed,
		TipsCount:             l.tips.Len(),
		ConfirmationThreshold: l.cfg.ConfirmationThreshold,
	}
	if l.state.confirmed > 0 {
		s.AverageConfirmationTime = l.state.confirmDelay / time.Duration(l.state.confirmed)
	}
	return s
}

func (l *Ledger) AccountCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.state.accounts)
}
