package ledger

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Restore rebuilds the in-memory ledger from persisted history by replaying
// every transaction in admission order. Must run before the ledger serves
// requests.
func (l *Ledger) Restore(ctx context.Context, loader JournalLoader) error {
	snapshot, err := loader.LoadLedger(ctx)
	if err != nil {
		return errors.Wrap(err, "failed loading ledger history")
	}

	release, err := l.acquireWriter(ctx)
	if err != nil {
		return err
	}
	defer release()
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.state.order) > 0 || len(l.state.accounts) > 0 {
		return errors.New("restore requires an empty ledger")
	}
	for _, rec := range snapshot.Accounts {
		if err := l.keyring.PutSeed(rec.UserID, rec.KeySeed); err != nil {
			return errors.Wrapf(err, "failed restoring key for %s", rec.UserID)
		}
		l.state.addAccount(rec.Account)
	}
	for _, tx := range snapshot.Transactions {
		if tx.Seq != l.state.nextSeq() {
			return errors.Errorf("gap in ledger history: expected seq %d, got %d", l.state.nextSeq(), tx.Seq)
		}
		for _, ref := range tx.References {
			if _, ok := l.state.get(ref); !ok {
				return errors.Wrapf(ErrDanglingReference, "transaction %s references %s", tx.ID, ref)
			}
		}
		l.apply(tx)
		l.clock.Observe(tx.Timestamp)
	}
	l.logger.Info("restored ledger", zap.Int("accounts", len(snapshot.Accounts)),
		zap.Int("transactions", len(snapshot.Transactions)), zap.Int("confirmed", l.state.confirmed),
		zap.Int("tips", l.tips.Len()))
	return nil
}
