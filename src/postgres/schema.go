package postgres

import "context"

// Schema is the journal layout. Both tables are append only; seq is the
// ledger's admission order and the replay order.
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
	user_id        text PRIMARY KEY,
	username       text NOT NULL,
	wallet_address text NOT NULL UNIQUE,
	public_key     text NOT NULL,
	key_seed       text NOT NULL,
	created_at     timestamptz NOT NULL
);

CREATE TABLE IF NOT EXISTS transactions (
	seq        bigint PRIMARY KEY,
	id         text NOT NULL UNIQUE,
	kind       text NOT NULL,
	from_user  text NOT NULL DEFAULT '',
	to_user    text NOT NULL REFERENCES accounts (user_id),
	amount     numeric NOT NULL,
	fee        numeric NOT NULL,
	note       text NOT NULL DEFAULT '',
	nonce      text NOT NULL,
	refs       text[] NOT NULL,
	signature  text NOT NULL DEFAULT '',
	created_at timestamptz NOT NULL
);

CREATE INDEX IF NOT EXISTS transactions_from_user ON transactions (from_user);
CREATE INDEX IF NOT EXISTS transactions_to_user ON transactions (to_user);
`

func EnsureSchema(ctx context.Context) error {
	return DoExec(ctx, Schema)
}
