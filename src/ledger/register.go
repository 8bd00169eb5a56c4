package ledger

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"strings"
	"time"

	"github.com/onemorebsmith/casha-node/src/keys"
	"github.com/onemorebsmith/casha-node/src/metrics"
	"github.com/onemorebsmith/casha-node/src/model"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Registration struct {
	Account  model.Account
	Balance  model.Balance
	Existing bool
	Grant    *model.TransactionView
}

// Register creates an account with a fresh custodial key pair and, when
// configured, an initial grant. Registering an existing user id returns the
// existing account, minting its grant if an earlier attempt failed to.
func (l *Ledger) Register(ctx context.Context, userID, username string) (*Registration, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.Wrap(ErrInvalidRequest, "user_id is required")
	}
	if username == "" {
		username = strings.SplitN(userID, "@", 2)[0]
	}
	if existing, ok := l.existingRegistration(userID); ok && !l.owesGrant(userID) {
		return existing, nil
	}

	start := time.Now()
	pub, priv, err := keys.GenerateKey(nil)
	if err != nil {
		return nil, err
	}

	release, err := l.acquireWriter(ctx)
	if err != nil {
		return nil, err
	}
	reg, err := l.registerLocked(ctx, userID, username, pub, priv)
	release()
	if err != nil {
		return nil, err
	}
	if reg.Grant != nil {
		metrics.RecordAdmission(string(model.TransactionKindMint), time.Since(start))
		l.notify(ctx, reg.Grant)
	}
	reg.Balance, _ = l.Balance(userID)
	return reg, nil
}

func (l *Ledger) registerLocked(ctx context.Context, userID, username string,
	pub ed25519.PublicKey, priv ed25519.PrivateKey) (*Registration, error) {
	// lost a race against another registration of the same id, or retrying
	// one whose grant was never written
	if existing, ok := l.existingRegistration(userID); ok {
		if !l.owesGrant(userID) {
			return existing, nil
		}
		grant, err := l.grantLocked(ctx, userID)
		if err != nil {
			return nil, err
		}
		existing.Grant = grant
		return existing, nil
	}

	record := &model.AccountRecord{
		Account: model.Account{
			UserID:        userID,
			Username:      username,
			WalletAddress: keys.WalletAddress(pub),
			PublicKey:     hex.EncodeToString(pub),
			CreatedAt:     l.clock.now().UTC(),
		},
		KeySeed: keys.SeedHex(priv),
	}
	if err := l.journal.PutAccount(ctx, record); err != nil {
		return nil, errors.Wrap(err, "failed to persist account")
	}
	l.keyring.Put(userID, priv)
	l.mu.Lock()
	l.state.addAccount(record.Account)
	l.mu.Unlock()
	l.logger.Info("registered account", zap.String("user_id", userID), zap.String("wallet", record.WalletAddress))

	reg := &Registration{Account: record.Account}
	if l.owesGrant(userID) {
		grant, err := l.grantLocked(ctx, userID)
		if err != nil {
			return nil, err
		}
		reg.Grant = grant
	}
	return reg, nil
}

func (l *Ledger) grantLocked(ctx context.Context, userID string) (*model.TransactionView, error) {
	receipt, err := l.mintLocked(ctx, userID, l.cfg.initialGrant(), "welcome grant")
	if err != nil {
		return nil, errors.Wrapf(err, "account %s has no initial grant yet, register again to retry", userID)
	}
	return receipt.Transaction, nil
}

// owesGrant reports whether grants are enabled and userID never received one.
func (l *Ledger) owesGrant(userID string) bool {
	if !l.cfg.initialGrant().IsPositive() {
		return false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.state.account(userID)
	return ok && !a.granted
}

func (l *Ledger) existingRegistration(userID string) (*Registration, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.state.account(userID)
	if !ok {
		return nil, false
	}
	return &Registration{Account: a.account, Balance: a.balance(), Existing: true}, true
}
