package ledger

import (
	"context"

	"github.com/onemorebsmith/casha-node/src/model"
)

// Journal makes ledger mutations durable. Writes happen before the in-memory
// state changes, so a failed write leaves nothing behind.
type Journal interface {
	PutAccount(ctx context.Context, acct *model.AccountRecord) error
	AppendTransaction(ctx context.Context, tx *model.Transaction) error
}

// JournalLoader reads back everything a Journal wrote.
type JournalLoader interface {
	LoadLedger(ctx context.Context) (*model.LedgerSnapshot, error)
}

// CommitObserver is notified after a transaction is committed, outside of
// any ledger lock.
type CommitObserver interface {
	OnCommit(ctx context.Context, tx *model.TransactionView)
}

type nopJournal struct{}

func (nopJournal) PutAccount(context.Context, *model.AccountRecord) error    { return nil }
func (nopJournal) AppendTransaction(context.Context, *model.Transaction) error { return nil }

// MemoryJournal keeps everything in memory; it doubles as a JournalLoader and
// is what tests restart a ledger from.
type MemoryJournal struct {
	snapshot   model.LedgerSnapshot
	failNext   error
	failAppend error
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{}
}

// FailNext makes the next write return err.
func (mj *MemoryJournal) FailNext(err error) {
	mj.failNext = err
}

// FailNextAppend makes the next AppendTransaction return err, leaving
// account writes alone.
func (mj *MemoryJournal) FailNextAppend(err error) {
	mj.failAppend = err
}

func (mj *MemoryJournal) takeFailure() error {
	err := mj.failNext
	mj.failNext = nil
	return err
}

func (mj *MemoryJournal) PutAccount(_ context.Context, acct *model.AccountRecord) error {
	if err := mj.takeFailure(); err != nil {
		return err
	}
	cp := *acct
	mj.snapshot.Accounts = append(mj.snapshot.Accounts, &cp)
	return nil
}

func (mj *MemoryJournal) AppendTransaction(_ context.Context, tx *model.Transaction) error {
	if err := mj.takeFailure(); err != nil {
		return err
	}
	if err := mj.failAppend; err != nil {
		mj.failAppend = nil
		return err
	}
	cp := *tx
	cp.References = append([]string(nil), tx.References...)
	mj.snapshot.Transactions = append(mj.snapshot.Transactions, &cp)
	return nil
}

func (mj *MemoryJournal) LoadLedger(context.Context) (*model.LedgerSnapshot, error) {
	cp := mj.snapshot
	return &cp, nil
}
