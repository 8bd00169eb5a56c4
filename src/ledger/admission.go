package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/onemorebsmith/casha-node/src/keys"
	"github.com/onemorebsmith/casha-node/src/metrics"
	"github.com/onemorebsmith/casha-node/src/model"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SubmitRequest is a transfer as asked for by a wallet. Nonce, Signature and
// References are optional: without a signature the node signs with the
// sender's custodial key, without references it picks tips.
type SubmitRequest struct {
	FromUser   string
	ToUser     string
	Amount     decimal.Decimal
	Note       string
	Nonce      string
	Signature  string
	References []string
}

// Receipt is what a successful admission returns: the committed transaction
// and both parties' balances around it.
type Receipt struct {
	Transaction    *model.TransactionView
	TotalDebit     decimal.Decimal
	SenderBefore   model.Balance
	SenderAfter    model.Balance
	ReceiverBefore model.Balance
	ReceiverAfter  model.Balance
	NewlyConfirmed []string
}

func (l *Ledger) Submit(ctx context.Context, req SubmitRequest) (*Receipt, error) {
	start := time.Now()
	receipt, err := l.submit(ctx, req)
	if err != nil {
		metrics.RecordAdmissionError(ErrorKind(err))
		l.logger.Debug("submission rejected", zap.String("from", req.FromUser),
			zap.String("to", req.ToUser), zap.String("amount", req.Amount.String()), zap.Error(err))
		return nil, err
	}
	metrics.RecordAdmission(string(model.TransactionKindTransfer), time.Since(start))
	l.notify(ctx, receipt.Transaction)
	return receipt, nil
}

func (l *Ledger) submit(ctx context.Context, req SubmitRequest) (*Receipt, error) {
	if err := checkPrecision(req.Amount); err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() || req.Amount.LessThan(l.cfg.minAmount()) {
		return nil, errors.Wrapf(ErrInvalidAmount, "amount %s is below the minimum of %s",
			req.Amount.String(), l.cfg.minAmount().String())
	}
	if req.FromUser == req.ToUser {
		return nil, errors.Wrap(ErrInvalidAmount, "cannot send to yourself")
	}
	from, ok := l.Account(req.FromUser)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownAccount, "sender %s", req.FromUser)
	}
	if _, ok := l.Account(req.ToUser); !ok {
		return nil, errors.Wrapf(ErrUnknownAccount, "receiver %s", req.ToUser)
	}
	if err := l.checkReferences(req.References); err != nil {
		return nil, err
	}

	fee := l.fees.Fee(req.Amount)
	nonce := req.Nonce
	if nonce == "" {
		nonce = uuid.NewString()
	}
	intent := keys.Intent{
		FromUser: req.FromUser,
		ToUser:   req.ToUser,
		Amount:   req.Amount.String(),
		Note:     req.Note,
		Nonce:    nonce,
	}
	signature, err := l.signature(from, intent, req.Signature)
	if err != nil {
		return nil, err
	}

	release, err := l.acquireWriter(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if l.state.nonceUsed(req.FromUser, nonce) {
		return nil, errors.Wrapf(ErrInvalidRequest, "nonce %q already used by %s", nonce, req.FromUser)
	}

	draft := &model.Transaction{
		Kind:       model.TransactionKindTransfer,
		FromUser:   req.FromUser,
		ToUser:     req.ToUser,
		Amount:     req.Amount,
		Fee:        fee,
		Note:       req.Note,
		Nonce:      nonce,
		Signature:  signature,
		References: dedupe(req.References),
	}

	// only the writer mutates state, so this read cannot go stale before commit
	sender, _ := l.state.account(req.FromUser)
	if required := draft.TotalDebit(); sender.available.LessThan(required) {
		return nil, &InsufficientFundsError{
			Available: sender.available,
			Required:  required,
			Shortfall: required.Sub(sender.available),
		}
	}
	return l.commit(ctx, draft)
}

// Mint credits `to` with a fee-less grant transaction that takes part in the
// DAG like any other transaction.
func (l *Ledger) Mint(ctx context.Context, to string, amount decimal.Decimal, note string) (*Receipt, error) {
	start := time.Now()
	if err := checkPrecision(amount); err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, errors.Wrapf(ErrInvalidAmount, "mint amount %s", amount.String())
	}
	if _, ok := l.Account(to); !ok {
		return nil, errors.Wrapf(ErrUnknownAccount, "receiver %s", to)
	}
	release, err := l.acquireWriter(ctx)
	if err != nil {
		return nil, err
	}
	receipt, err := l.mintLocked(ctx, to, amount, note)
	release()
	if err != nil {
		metrics.RecordAdmissionError(ErrorKind(err))
		return nil, err
	}
	metrics.RecordAdmission(string(model.TransactionKindMint), time.Since(start))
	l.notify(ctx, receipt.Transaction)
	return receipt, nil
}

func (l *Ledger) mintLocked(ctx context.Context, to string, amount decimal.Decimal, note string) (*Receipt, error) {
	return l.commit(ctx, &model.Transaction{
		Kind:   model.TransactionKindMint,
		ToUser: to,
		Amount: amount,
		Fee:    decimal.Zero,
		Note:   note,
		Nonce:  uuid.NewString(),
	})
}

// checkPrecision bounds the exponent and coefficient of an amount before
// any arithmetic rescales it.
func checkPrecision(amount decimal.Decimal) error {
	if exp := amount.Exponent(); exp < -MaxAmountDecimals || exp > maxAmountExponent {
		return errors.Wrapf(ErrInvalidAmount, "amount exponent %d outside [-%d, %d]",
			exp, MaxAmountDecimals, maxAmountExponent)
	}
	if amount.Coefficient().BitLen() > maxAmountBits {
		return errors.Wrap(ErrInvalidAmount, "amount too large")
	}
	return nil
}

func (l *Ledger) signature(from *model.Account, intent keys.Intent, supplied string) (string, error) {
	sig := supplied
	if sig == "" {
		var err error
		sig, err = l.keyring.Sign(from.UserID, intent)
		if err != nil {
			return "", errors.Wrap(ErrInvalidSignature, err.Error())
		}
	}
	if err := keys.Verify(intent, from.PublicKey, sig); err != nil {
		return "", errors.Wrapf(ErrInvalidSignature, "signature does not match %s: %s", from.UserID, err)
	}
	return sig, nil
}

func (l *Ledger) checkReferences(refs []string) error {
	if len(refs) == 0 {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, ref := range refs {
		if _, ok := l.state.get(ref); !ok {
			return errors.Wrapf(ErrDanglingReference, "transaction %s not found", ref)
		}
	}
	return nil
}

func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	ret := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ret = append(ret, id)
	}
	return ret
}

// selectReferences picks tips via TipSet.Select. With no tips it falls back to the
// most recent confirmed transaction, then the most recent one; an empty
// ledger yields the genesis transaction with no references.
func (l *Ledger) selectReferences() []string {
	if refs := l.tips.Select(l.cfg.MaxReferences); len(refs) > 0 {
		return refs
	}
	if l.state.lastConfirmed != nil {
		return []string{l.state.lastConfirmed.tx.ID}
	}
	if last := l.state.last(); last != nil {
		return []string{last.tx.ID}
	}
	return nil
}

// commit finalizes a draft and applies it. Caller holds the writer token.
func (l *Ledger) commit(ctx context.Context, draft *model.Transaction) (*Receipt, error) {
	if len(draft.References) == 0 {
		draft.References = l.selectReferences()
	}
	draft.Seq = l.state.nextSeq()
	draft.Timestamp = l.clock.Next()
	draft.ID = keys.TransactionID(keys.TransactionFields{
		Kind:       string(draft.Kind),
		FromUser:   draft.FromUser,
		ToUser:     draft.ToUser,
		Amount:     draft.Amount.String(),
		Fee:        draft.Fee.String(),
		Note:       draft.Note,
		Nonce:      draft.Nonce,
		References: draft.References,
		Timestamp:  draft.Timestamp,
	})
	if _, exists := l.state.get(draft.ID); exists {
		return nil, errors.Wrapf(ErrInvalidRequest, "duplicate transaction %s", draft.ID)
	}

	if err := l.journal.AppendTransaction(ctx, draft); err != nil {
		return nil, errors.Wrap(err, "failed to persist transaction")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	receipt := &Receipt{TotalDebit: draft.TotalDebit()}
	if draft.IsMint() {
		receipt.TotalDebit = decimal.Zero
	}
	if a, ok := l.state.account(draft.FromUser); ok {
		receipt.SenderBefore = a.balance()
	}
	if a, ok := l.state.account(draft.ToUser); ok {
		receipt.ReceiverBefore = a.balance()
	}

	v, confirmed := l.apply(draft)

	if a, ok := l.state.account(draft.FromUser); ok {
		receipt.SenderAfter = a.balance()
	}
	if a, ok := l.state.account(draft.ToUser); ok {
		receipt.ReceiverAfter = a.balance()
	}
	for _, c := range confirmed {
		receipt.NewlyConfirmed = append(receipt.NewlyConfirmed, c.tx.ID)
	}
	receipt.Transaction = v.view()

	l.logger.Debug("committed transaction", zap.String("id", draft.ID), zap.Uint64("seq", draft.Seq),
		zap.String("kind", string(draft.Kind)), zap.Strings("references", draft.References),
		zap.Int("confirmed", len(confirmed)))
	return receipt, nil
}

// apply adds a finalized transaction to the in-memory ledger. Caller holds
// the state lock.
func (l *Ledger) apply(tx *model.Transaction) (*vertex, []*vertex) {
	v := &vertex{tx: tx}
	l.state.append(v)
	l.state.applyPending(tx)

	for _, ref := range tx.References {
		if r, ok := l.state.get(ref); ok {
			r.approvers++
			l.tips.Approve(ref)
		}
	}
	l.tips.Add(tx.ID, tx.Seq)

	confirmed, truncated := l.engine.propagate(l.state, v, tx.Timestamp)
	if truncated {
		metrics.RecordTruncatedWalk()
	}
	for _, c := range confirmed {
		l.onConfirmed(c)
	}
	return v, confirmed
}

func (l *Ledger) onConfirmed(v *vertex) {
	l.tips.Remove(v.tx.ID)
	l.state.applyConfirmed(v.tx)
	l.state.confirmed++
	if l.state.lastConfirmed == nil || v.tx.Seq > l.state.lastConfirmed.tx.Seq {
		l.state.lastConfirmed = v
	}
	delay := v.confirmedAt.Sub(v.tx.Timestamp)
	l.state.confirmDelay += delay
	metrics.RecordConfirmation(delay)
}
