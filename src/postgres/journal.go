package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/onemorebsmith/casha-node/src/model"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Journal persists ledger history to the configured postgres database and
// reads it back for replay.
type Journal struct{}

func NewJournal() *Journal {
	return &Journal{}
}

func (Journal) PutAccount(ctx context.Context, acct *model.AccountRecord) error {
	return DoQuery(ctx, func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, `INSERT INTO accounts(user_id, username, wallet_address, public_key, key_seed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
			acct.UserID, acct.Username, acct.WalletAddress, acct.PublicKey, acct.KeySeed, acct.CreatedAt.UTC())
		if err != nil {
			return errors.Wrapf(err, "failed to record account %s", acct.UserID)
		}
		return nil
	})
}

func (Journal) AppendTransaction(ctx context.Context, tx *model.Transaction) error {
	refs := tx.References
	if refs == nil {
		refs = []string{}
	}
	return DoQuery(ctx, func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, `INSERT INTO transactions(seq, id, kind, from_user, to_user, amount, fee, note, nonce, refs, signature, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8, $9, $10, $11, $12)`,
			int64(tx.Seq), tx.ID, string(tx.Kind), tx.FromUser, tx.ToUser, tx.Amount.String(), tx.Fee.String(),
			tx.Note, tx.Nonce, refs, tx.Signature, tx.Timestamp.UTC())
		if err != nil {
			return errors.Wrapf(err, "failed to record transaction %s", tx.ID)
		}
		return nil
	})
}

func (Journal) LoadLedger(ctx context.Context) (*model.LedgerSnapshot, error) {
	snapshot := &model.LedgerSnapshot{}
	return snapshot, DoQuery(ctx, func(conn *pgx.Conn) error {
		accounts, err := loadAccounts(ctx, conn)
		if err != nil {
			return err
		}
		txs, err := loadTransactions(ctx, conn)
		if err != nil {
			return err
		}
		snapshot.Accounts = accounts
		snapshot.Transactions = txs
		return nil
	})
}

func loadAccounts(ctx context.Context, conn *pgx.Conn) ([]*model.AccountRecord, error) {
	res, err := conn.Query(ctx, `SELECT user_id, username, wallet_address, public_key, key_seed, created_at
		FROM accounts ORDER BY created_at, user_id`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch accounts from database")
	}
	defer res.Close()
	ret := []*model.AccountRecord{}
	for res.Next() {
		rec := &model.AccountRecord{}
		if err := res.Scan(&rec.UserID, &rec.Username, &rec.WalletAddress, &rec.PublicKey,
			&rec.KeySeed, &rec.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed unmarshalling account")
		}
		rec.CreatedAt = rec.CreatedAt.UTC()
		ret = append(ret, rec)
	}
	return ret, errors.Wrap(res.Err(), "failed reading accounts")
}

func loadTransactions(ctx context.Context, conn *pgx.Conn) ([]*model.Transaction, error) {
	res, err := conn.Query(ctx, `SELECT seq, id, kind, from_user, to_user, amount::text, fee::text,
		note, nonce, refs, signature, created_at FROM transactions ORDER BY seq`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch transactions from database")
	}
	defer res.Close()
	ret := []*model.Transaction{}
	for res.Next() {
		tx := &model.Transaction{}
		var seq int64
		var kind, amount, fee string
		if err := res.Scan(&seq, &tx.ID, &kind, &tx.FromUser, &tx.ToUser, &amount, &fee,
			&tx.Note, &tx.Nonce, &tx.References, &tx.Signature, &tx.Timestamp); err != nil {
			return nil, errors.Wrap(err, "failed unmarshalling transaction")
		}
		tx.Seq = uint64(seq)
		tx.Kind = model.TransactionKind(kind)
		tx.Timestamp = tx.Timestamp.UTC()
		if tx.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, errors.Wrapf(err, "bad amount on transaction %s", tx.ID)
		}
		if tx.Fee, err = decimal.NewFromString(fee); err != nil {
			return nil, errors.Wrapf(err, "bad fee on transaction %s", tx.ID)
		}
		if len(tx.References) == 0 {
			tx.References = nil
		}
		ret = append(ret, tx)
	}
	return ret, errors.Wrap(res.Err(), "failed reading transactions")
}
