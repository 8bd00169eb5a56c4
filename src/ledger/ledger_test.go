package ledger

import (
	"context"
	"math/rand"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/onemorebsmith/casha-node/src/common"
	"github.com/onemorebsmith/casha-node/src/keys"
	"github.com/onemorebsmith/casha-node/src/model"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var logger *zap.Logger

func TestMain(m *testing.M) {
	logger = common.ConfigureZap(zap.WarnLevel)
	os.Exit(m.Run())
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func expectAmount(t *testing.T, what, want string, got decimal.Decimal) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Fatalf("%s: expected %s, got %s", what, want, got)
	}
}

func newTestLedger(t *testing.T, cfg Config, opts ...Option) *Ledger {
	t.Helper()
	return New(cfg, logger, opts...)
}

func mustRegister(t *testing.T, l *Ledger, ids ...string) map[string]*Registration {
	t.Helper()
	ret := map[string]*Registration{}
	for _, id := range ids {
		reg, err := l.Register(context.Background(), id, "")
		if err != nil {
			t.Fatalf("failed to register %s: %s", id, err)
		}
		ret[id] = reg
	}
	return ret
}

func mustSubmit(t *testing.T, l *Ledger, req SubmitRequest) *Receipt {
	t.Helper()
	receipt, err := l.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("submit %s -> %s (%s) failed: %s", req.FromUser, req.ToUser, req.Amount, err)
	}
	return receipt
}

func mustBalance(t *testing.T, l *Ledger, userID string) model.Balance {
	t.Helper()
	b, err := l.Balance(userID)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func mustView(t *testing.T, l *Ledger, id string) *model.TransactionView {
	t.Helper()
	v, ok := l.Transaction(id)
	if !ok {
		t.Fatalf("transaction %s not found", id)
	}
	return v
}

func TestRegistration(t *testing.T) {
	l := newTestLedger(t, Config{InitialGrant: 100})
	ctx := context.Background()

	reg, err := l.Register(ctx, "alice@example.com", "")
	if err != nil {
		t.Fatal(err)
	}
	if reg.Existing {
		t.Fatal("fresh registration reported as existing")
	}
	if reg.Account.Username != "alice" {
		t.Fatalf("expected username derived from the email, got %q", reg.Account.Username)
	}
	if !strings.HasPrefix(reg.Account.WalletAddress, keys.WalletAddressPrefix) {
		t.Fatalf("unexpected wallet address %s", reg.Account.WalletAddress)
	}
	if reg.Grant == nil || reg.Grant.Kind != model.TransactionKindMint || reg.Grant.FromUser != "" {
		t.Fatalf("expected a mint grant, got %+v", reg.Grant)
	}
	if len(reg.Grant.References) != 0 {
		t.Fatalf("first transaction should be genesis, got refs %v", reg.Grant.References)
	}
	expectAmount(t, "available after grant", "100", reg.Balance.Available)
	expectAmount(t, "confirmed after grant", "0", reg.Balance.Confirmed)

	again, err := l.Register(ctx, "alice@example.com", "someone else")
	if err != nil {
		t.Fatal(err)
	}
	if !again.Existing || again.Grant != nil {
		t.Fatalf("re-registration should return the existing account without a grant: %+v", again)
	}
	if d := cmp.Diff(reg.Account, again.Account); d != "" {
		t.Fatalf("re-registration changed the account: %s", d)
	}
	if got := l.Stats().TotalTransactions; got != 1 {
		t.Fatalf("expected a single grant transaction, got %d", got)
	}

	if _, err := l.Register(ctx, "   ", ""); ErrorKind(err) != "invalid_request" {
		t.Fatalf("expected invalid_request for a blank user id, got %v", err)
	}
}

func TestRegistrationWithoutGrant(t *testing.T) {
	l := newTestLedger(t, Config{InitialGrant: -1})
	reg := mustRegister(t, l, "bob")["bob"]
	if reg.Grant != nil {
		t.Fatal("grants are disabled but one was minted")
	}
	expectAmount(t, "available", "0", reg.Balance.Available)
	if l.Stats().TotalTransactions != 0 {
		t.Fatal("no transaction expected")
	}
}

// Walks the pending -> confirmed lifecycle of a transfer with the default
// threshold of 3, two references per admission and a fan-in of 4.
func TestTransferLifecycle(t *testing.T) {
	l := newTestLedger(t, Config{InitialGrant: 100})
	regs := mustRegister(t, l, "a", "b", "c", "d")

	// gA is referenced by gB, gC and gD
	expectAmount(t, "a confirmed", "100", mustBalance(t, l, "a").Confirmed)
	expectAmount(t, "b confirmed", "0", mustBalance(t, l, "b").Confirmed)
	if d := cmp.Diff([]string{regs["b"].Grant.ID, regs["c"].Grant.ID, regs["d"].Grant.ID}, l.Tips()); d != "" {
		t.Fatalf("unexpected tips: %s", d)
	}

	x := mustSubmit(t, l, SubmitRequest{FromUser: "a", ToUser: "b", Amount: dec("30"), Note: "lunch"})
	tx := x.Transaction
	expectAmount(t, "fee", "0.3", tx.Fee)
	expectAmount(t, "total debit", "30.3", x.TotalDebit)
	expectAmount(t, "sender before", "100", x.SenderBefore.Available)
	expectAmount(t, "sender after", "69.7", x.SenderAfter.Available)
	expectAmount(t, "sender confirmed", "100", x.SenderAfter.Confirmed)
	expectAmount(t, "receiver before", "100", x.ReceiverBefore.Available)
	expectAmount(t, "receiver after", "130", x.ReceiverAfter.Available)
	if tx.IsConfirmed || tx.ReferenceCount != 0 || tx.Status() != model.TransactionStatusPending {
		t.Fatalf("new transaction should be pending and unreferenced: %+v", tx)
	}
	if tx.Signature == "" || tx.Nonce == "" || tx.ID == "" {
		t.Fatalf("transaction not finalized: %+v", tx)
	}
	if d := cmp.Diff([]string{regs["b"].Grant.ID, regs["d"].Grant.ID}, tx.References); d != "" {
		t.Fatalf("expected the oldest and the newest tip: %s", d)
	}
	if d := cmp.Diff([]string{regs["b"].Grant.ID}, x.NewlyConfirmed); d != "" {
		t.Fatalf("unexpected confirmations: %s", d)
	}
	b := mustBalance(t, l, "b")
	expectAmount(t, "b confirmed", "100", b.Confirmed)
	expectAmount(t, "b available", "130", b.Available)
	expectAmount(t, "b pending income", "30", b.PendingIncome())

	for i := 0; i < 3; i++ {
		if mustView(t, l, tx.ID).IsConfirmed {
			t.Fatalf("confirmed after only %d references", i)
		}
		expectAmount(t, "a confirmed while pending", "100", mustBalance(t, l, "a").Confirmed)
		mustSubmit(t, l, SubmitRequest{FromUser: "c", ToUser: "d", Amount: dec("1"), References: []string{tx.ID}})
	}

	view := mustView(t, l, tx.ID)
	if !view.IsConfirmed || view.ReferenceCount != 3 || view.ConfirmedAt == nil {
		t.Fatalf("expected confirmation after three references: %+v", view)
	}
	if !view.ConfirmedAt.After(view.Timestamp) {
		t.Fatalf("confirmed at %s before the transaction at %s", view.ConfirmedAt, view.Timestamp)
	}
	if got := mustView(t, l, regs["a"].Grant.ID).ReferenceCount; got != 3 {
		t.Fatalf("reference count should stop at the threshold, got %d", got)
	}
	a := mustBalance(t, l, "a")
	expectAmount(t, "a confirmed", "69.7", a.Confirmed)
	expectAmount(t, "a available", "69.7", a.Available)
	b = mustBalance(t, l, "b")
	expectAmount(t, "b confirmed", "130", b.Confirmed)
	expectAmount(t, "b pending income", "0", b.PendingIncome())

	history, err := l.UserTransactions("a", 0)
	if err != nil {
		t.Fatal(err)
	}
	ids := []string{}
	for _, h := range history {
		ids = append(ids, h.ID)
	}
	if d := cmp.Diff([]string{tx.ID, regs["a"].Grant.ID}, ids); d != "" {
		t.Fatalf("unexpected history for a: %s", d)
	}
	if recent := l.Transactions(2); len(recent) != 2 || recent[0].Seq != 8 {
		t.Fatalf("expected the two newest transactions, got %d", len(recent))
	}
}

func TestDiamondCountsDistinctDescendants(t *testing.T) {
	l := newTestLedger(t, Config{InitialGrant: -1, ConfirmationThreshold: 10})
	mustRegister(t, l, "a", "b")
	genesis, err := l.Mint(context.Background(), "a", dec("100"), "seed")
	if err != nil {
		t.Fatal(err)
	}
	g := genesis.Transaction.ID
	left := mustSubmit(t, l, SubmitRequest{FromUser: "a", ToUser: "b", Amount: dec("1"), References: []string{g}})
	right := mustSubmit(t, l, SubmitRequest{FromUser: "a", ToUser: "b", Amount: dec("1"), References: []string{g, g}})
	mustSubmit(t, l, SubmitRequest{FromUser: "a", ToUser: "b", Amount: dec("1"),
		References: []string{left.Transaction.ID, right.Transaction.ID}})

	if got := mustView(t, l, g).ReferenceCount; got != 3 {
		t.Fatalf("genesis has 3 distinct descendants, counted %d", got)
	}
	if got := right.Transaction.References; len(got) != 1 {
		t.Fatalf("duplicate references should collapse, got %v", got)
	}
}

func TestTraversalDepthBound(t *testing.T) {
	l := newTestLedger(t, Config{InitialGrant: -1, MaxTraversalDepth: 1})
	mustRegister(t, l, "a", "b")
	genesis, err := l.Mint(context.Background(), "a", dec("100"), "seed")
	if err != nil {
		t.Fatal(err)
	}
	prev := genesis.Transaction.ID
	for i := 0; i < 3; i++ {
		r := mustSubmit(t, l, SubmitRequest{FromUser: "a", ToUser: "b", Amount: dec("1"), References: []string{prev}})
		prev = r.Transaction.ID
	}
	g := mustView(t, l, genesis.Transaction.ID)
	if g.ReferenceCount != 1 || g.IsConfirmed {
		t.Fatalf("walk should stop at direct references: %+v", g)
	}
}

func TestInsufficientFunds(t *testing.T) {
	l := newTestLedger(t, Config{InitialGrant: 100})
	mustRegister(t, l, "a", "b")
	before := l.Stats()

	_, err := l.Submit(context.Background(), SubmitRequest{FromUser: "a", ToUser: "b", Amount: dec("99.5")})
	var insufficient *InsufficientFundsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientFundsError, got %v", err)
	}
	if !errors.Is(err, ErrInsufficientFunds) || ErrorKind(err) != "insufficient_funds" {
		t.Fatalf("error does not classify as insufficient funds: %v", err)
	}
	expectAmount(t, "required", "100.495", insufficient.Required)
	expectAmount(t, "shortfall", "0.495", insufficient.Shortfall)
	if d := cmp.Diff(before, l.Stats()); d != "" {
		t.Fatalf("rejected transfer changed the dag: %s", d)
	}
	expectAmount(t, "a available", "100", mustBalance(t, l, "a").Available)

	// just under the available balance is fine
	mustSubmit(t, l, SubmitRequest{FromUser: "a", ToUser: "b", Amount: dec("99"), Note: "all in"})
	expectAmount(t, "a available", "0.01", mustBalance(t, l, "a").Available)
}

func TestRejectedSubmissions(t *testing.T) {
	l := newTestLedger(t, Config{InitialGrant: 100})
	mustRegister(t, l, "a", "b")
	before := l.Stats()
	tips := l.Tips()

	cases := []struct {
		name string
		req  SubmitRequest
		kind string
	}{
		{"zero", SubmitRequest{FromUser: "a", ToUser: "b", Amount: dec("0")}, "invalid_amount"},
		{"negative", SubmitRequest{FromUser: "a", ToUser: "b", Amount: dec("-5")}, "invalid_amount"},
		{"dust", SubmitRequest{FromUser: "a", ToUser: "b", Amount: dec("0.001")}, "invalid_amount"},
		{"self", SubmitRequest{FromUser: "a", ToUser: "a", Amount: dec("5")}, "invalid_amount"},
		{"unknown sender", SubmitRequest{FromUser: "x", ToUser: "b", Amount: dec("5")}, "unknown_account"},
		{"unknown receiver", SubmitRequest{FromUser: "a", ToUser: "x", Amount: dec("5")}, "unknown_account"},
		{"bad signature", SubmitRequest{FromUser: "a", ToUser: "b", Amount: dec("5"), Signature: "deadbeef"}, "invalid_signature"},
		{"dangling reference", SubmitRequest{FromUser: "a", ToUser: "b", Amount: dec("5"), References: []string{"nope"}}, "dangling_reference"},
		{"tiny exponent", SubmitRequest{FromUser: "a", ToUser: "b", Amount: dec("1e-20000000")}, "invalid_amount"},
		{"huge exponent", SubmitRequest{FromUser: "a", ToUser: "b", Amount: dec("1e20000000")}, "invalid_amount"},
		{"too precise", SubmitRequest{FromUser: "a", ToUser: "b", Amount: dec("1.000000001")}, "invalid_amount"},
		{"huge coefficient", SubmitRequest{FromUser: "a", ToUser: "b", Amount: dec(strings.Repeat("9", 40))}, "invalid_amount"},
	}
	for _, c := range cases {
		_, err := l.Submit(context.Background(), c.req)
		if got := ErrorKind(err); got != c.kind {
			t.Errorf("%s: expected %s, got %s (%v)", c.name, c.kind, got, err)
		}
		if err != nil && len(err.Error()) > 512 {
			t.Errorf("%s: error message is %d bytes", c.name, len(err.Error()))
		}
	}
	if d := cmp.Diff(before, l.Stats()); d != "" {
		t.Fatalf("rejections changed the dag: %s", d)
	}
	if d := cmp.Diff(tips, l.Tips()); d != "" {
		t.Fatalf("rejections changed the tips: %s", d)
	}
	expectAmount(t, "a available", "100", mustBalance(t, l, "a").Available)
	expectAmount(t, "b available", "100", mustBalance(t, l, "b").Available)
}

func TestSuppliedSignature(t *testing.T) {
	l := newTestLedger(t, Config{InitialGrant: 100})
	mustRegister(t, l, "a", "b")

	intent := keys.Intent{FromUser: "a", ToUser: "b", Amount: "5", Note: "signed", Nonce: "nonce-1"}
	sig, err := l.keyring.Sign("a", intent)
	if err != nil {
		t.Fatal(err)
	}
	r := mustSubmit(t, l, SubmitRequest{FromUser: "a", ToUser: "b", Amount: dec("5"), Note: "signed",
		Nonce: "nonce-1", Signature: sig})
	if r.Transaction.Signature != sig || r.Transaction.Nonce != "nonce-1" {
		t.Fatalf("supplied signature not kept: %+v", r.Transaction)
	}

	// same signature, different amount
	_, err = l.Submit(context.Background(), SubmitRequest{FromUser: "a", ToUser: "b", Amount: dec("6"),
		Note: "signed", Nonce: "nonce-1", Signature: sig})
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected signature mismatch, got %v", err)
	}

	// the published intent cannot be submitted again
	before := l.Stats()
	for i := 0; i < 3; i++ {
		_, err = l.Submit(context.Background(), SubmitRequest{FromUser: "a", ToUser: "b", Amount: dec("5"),
			Note: "signed", Nonce: "nonce-1", Signature: sig})
		if ErrorKind(err) != "invalid_request" {
			t.Fatalf("expected a reused nonce to be rejected, got %v", err)
		}
	}
	if d := cmp.Diff(before, l.Stats()); d != "" {
		t.Fatalf("rejected resubmission changed the dag: %s", d)
	}
	expectAmount(t, "a available", "94.9", mustBalance(t, l, "a").Available)

	// nonces are per sender
	bIntent := keys.Intent{FromUser: "b", ToUser: "a", Amount: "5", Note: "signed", Nonce: "nonce-1"}
	bSig, err := l.keyring.Sign("b", bIntent)
	if err != nil {
		t.Fatal(err)
	}
	mustSubmit(t, l, SubmitRequest{FromUser: "b", ToUser: "a", Amount: dec("5"), Note: "signed",
		Nonce: "nonce-1", Signature: bSig})
}

func TestUsedNoncesSurviveRestore(t *testing.T) {
	journal := NewMemoryJournal()
	original := newTestLedger(t, Config{InitialGrant: 100}, WithJournal(journal))
	mustRegister(t, original, "a", "b")
	req := SubmitRequest{FromUser: "a", ToUser: "b", Amount: dec("10"), Nonce: "once"}
	mustSubmit(t, original, req)

	restored := newTestLedger(t, Config{InitialGrant: 100})
	if err := restored.Restore(context.Background(), journal); err != nil {
		t.Fatal(err)
	}
	if _, err := restored.Submit(context.Background(), req); ErrorKind(err) != "invalid_request" {
		t.Fatalf("expected the restored ledger to reject a used nonce, got %v", err)
	}
}

func TestConcurrentDoubleSpend(t *testing.T) {
	l := newTestLedger(t, Config{InitialGrant: 100})
	mustRegister(t, l, "a", "b")

	start := make(chan struct{})
	results := make([]error, 2)
	wg := sync.WaitGroup{}
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, results[i] = l.Submit(context.Background(), SubmitRequest{FromUser: "a", ToUser: "b", Amount: dec("60")})
		}(i)
	}
	close(start)
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		var insufficient *InsufficientFundsError
		if !errors.As(err, &insufficient) {
			t.Fatalf("unexpected error: %s", err)
		}
		expectAmount(t, "shortfall", "21.2", insufficient.Shortfall)
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one transfer to succeed, got %d", succeeded)
	}
	expectAmount(t, "a available", "39.4", mustBalance(t, l, "a").Available)
}

func TestWriterTimeout(t *testing.T) {
	l := newTestLedger(t, Config{InitialGrant: 100, LockTimeout: 20 * time.Millisecond})
	mustRegister(t, l, "a", "b")

	l.writer <- struct{}{}
	_, err := l.Submit(context.Background(), SubmitRequest{FromUser: "a", ToUser: "b", Amount: dec("1")})
	if ErrorKind(err) != "concurrent_modification" {
		t.Fatalf("expected concurrent_modification, got %v", err)
	}
	<-l.writer
	mustSubmit(t, l, SubmitRequest{FromUser: "a", ToUser: "b", Amount: dec("1")})
}

func TestJournalFailureLeavesNoState(t *testing.T) {
	journal := NewMemoryJournal()
	l := newTestLedger(t, Config{InitialGrant: 100}, WithJournal(journal))
	mustRegister(t, l, "a", "b")
	before := l.Stats()
	tips := l.Tips()

	journal.FailNext(errors.New("disk full"))
	_, err := l.Submit(context.Background(), SubmitRequest{FromUser: "a", ToUser: "b", Amount: dec("10")})
	if err == nil || ErrorKind(err) != "internal" {
		t.Fatalf("expected an internal error, got %v", err)
	}
	if d := cmp.Diff(before, l.Stats()); d != "" {
		t.Fatalf("failed write changed the dag: %s", d)
	}
	if d := cmp.Diff(tips, l.Tips()); d != "" {
		t.Fatalf("failed write changed the tips: %s", d)
	}
	expectAmount(t, "a available", "100", mustBalance(t, l, "a").Available)

	journal.FailNext(errors.New("disk full"))
	if _, err := l.Register(context.Background(), "c", ""); err == nil {
		t.Fatal("expected registration to fail")
	}
	if _, ok := l.Account("c"); ok {
		t.Fatal("failed registration left an account behind")
	}

	mustSubmit(t, l, SubmitRequest{FromUser: "a", ToUser: "b", Amount: dec("10")})
	if got := len(journal.snapshot.Transactions); got != 3 {
		t.Fatalf("expected 3 journaled transactions, got %d", got)
	}

	// the account is written but its grant is not
	journal.FailNextAppend(errors.New("disk full"))
	if _, err := l.Register(context.Background(), "d", ""); err == nil {
		t.Fatal("expected the grant to fail")
	}
	retry, err := l.Register(context.Background(), "d", "")
	if err != nil {
		t.Fatal(err)
	}
	if !retry.Existing || retry.Grant == nil {
		t.Fatalf("retry should mint the missing grant: %+v", retry)
	}
	expectAmount(t, "d available", "100", retry.Balance.Available)
	again, err := l.Register(context.Background(), "d", "")
	if err != nil {
		t.Fatal(err)
	}
	if again.Grant != nil {
		t.Fatal("grant minted twice")
	}
	if got := len(journal.snapshot.Transactions); got != 4 {
		t.Fatalf("expected 4 journaled transactions, got %d", got)
	}
	if got := len(journal.snapshot.Accounts); got != 3 {
		t.Fatalf("expected 3 journaled accounts, got %d", got)
	}
}

func TestRestoreReplaysHistory(t *testing.T) {
	ctx := context.Background()
	journal := NewMemoryJournal()
	original := newTestLedger(t, Config{InitialGrant: 100}, WithJournal(journal))
	users := []string{"a", "b", "c", "d"}
	mustRegister(t, original, users...)
	for i := 0; i < 20; i++ {
		from, to := users[i%4], users[(i+1)%4]
		mustSubmit(t, original, SubmitRequest{FromUser: from, ToUser: to, Amount: decimal.NewFromInt(int64(i + 1))})
	}

	restored := newTestLedger(t, Config{InitialGrant: 100})
	if err := restored.Restore(ctx, journal); err != nil {
		t.Fatal(err)
	}
	if d := cmp.Diff(original.Stats(), restored.Stats()); d != "" {
		t.Fatalf("restored stats differ: %s", d)
	}
	if d := cmp.Diff(original.Tips(), restored.Tips()); d != "" {
		t.Fatalf("restored tips differ: %s", d)
	}
	if d := cmp.Diff(original.Accounts(), restored.Accounts()); d != "" {
		t.Fatalf("restored accounts differ: %s", d)
	}
	for _, u := range users {
		want, got := mustBalance(t, original, u), mustBalance(t, restored, u)
		if !want.Available.Equal(got.Available) || !want.Confirmed.Equal(got.Confirmed) {
			t.Fatalf("restored balance of %s differs: %+v vs %+v", u, want, got)
		}
	}
	wantTxs, gotTxs := original.Transactions(0), restored.Transactions(0)
	for i := range wantTxs {
		if wantTxs[i].ID != gotTxs[i].ID || wantTxs[i].ReferenceCount != gotTxs[i].ReferenceCount ||
			wantTxs[i].IsConfirmed != gotTxs[i].IsConfirmed {
			t.Fatalf("restored transaction %d differs", wantTxs[i].Seq)
		}
	}

	// custodial keys come back with the accounts
	r := mustSubmit(t, restored, SubmitRequest{FromUser: "a", ToUser: "b", Amount: dec("1")})
	if !r.Transaction.Timestamp.After(wantTxs[0].Timestamp) {
		t.Fatal("clock did not move past the restored history")
	}

	if err := restored.Restore(ctx, journal); err == nil {
		t.Fatal("restoring into a populated ledger should fail")
	}
}

// Random transfers with default parameters: reference counts never drop,
// confirmation never reverts, references always point backwards and running
// balances always agree with the ledger entries.
func TestDAGInvariants(t *testing.T) {
	l := newTestLedger(t, Config{InitialGrant: 1000})
	users := []string{"u1", "u2", "u3", "u4", "u5", "u6"}
	mustRegister(t, l, users...)

	threshold := l.Config().ConfirmationThreshold
	rng := rand.New(rand.NewSource(12345678))
	refCounts := map[string]int{}
	confirmed := map[string]bool{}
	for i := 0; i < 150; i++ {
		from := users[rng.Intn(len(users))]
		to := users[rng.Intn(len(users))]
		if from == to {
			continue
		}
		amount := decimal.New(int64(rng.Intn(5000)+1), -2)
		r, err := l.Submit(context.Background(), SubmitRequest{FromUser: from, ToUser: to, Amount: amount})
		if err != nil {
			if errors.Is(err, ErrInsufficientFunds) {
				continue
			}
			t.Fatal(err)
		}
		for _, ref := range r.Transaction.References {
			parent := mustView(t, l, ref)
			if parent.Seq >= r.Transaction.Seq || !parent.Timestamp.Before(r.Transaction.Timestamp) {
				t.Fatalf("%s references %s which is not older", r.Transaction.ID, ref)
			}
		}
		for _, v := range l.Transactions(0) {
			if v.ReferenceCount < refCounts[v.ID] {
				t.Fatalf("reference count of %s dropped from %d to %d", v.ID, refCounts[v.ID], v.ReferenceCount)
			}
			if v.ReferenceCount > threshold {
				t.Fatalf("reference count of %s above the threshold: %d", v.ID, v.ReferenceCount)
			}
			if confirmed[v.ID] && !v.IsConfirmed {
				t.Fatalf("%s lost its confirmation", v.ID)
			}
			refCounts[v.ID] = v.ReferenceCount
			confirmed[v.ID] = v.IsConfirmed
		}
	}

	stats := l.Stats()
	if stats.PendingTransactions != stats.ConfirmationThreshold || stats.TipsCount != stats.ConfirmationThreshold {
		t.Fatalf("only the newest transactions should be pending: %+v", stats)
	}
	if stats.ConfirmedTransactions+stats.PendingTransactions != stats.TotalTransactions {
		t.Fatalf("inconsistent counts: %+v", stats)
	}

	total := decimal.Zero
	fees := decimal.Zero
	for _, v := range l.Transactions(0) {
		fees = fees.Add(v.Fee)
	}
	for _, u := range users {
		running := mustBalance(t, l, u)
		rebuilt, err := l.Reconcile(u)
		if err != nil {
			t.Fatal(err)
		}
		if !running.Available.Equal(rebuilt.Available) || !running.Confirmed.Equal(rebuilt.Confirmed) ||
			!running.PendingInflow.Equal(rebuilt.PendingInflow) || !running.PendingOutflow.Equal(rebuilt.PendingOutflow) {
			t.Fatalf("running balance of %s drifted: %+v vs %+v", u, running, rebuilt)
		}
		if !running.Available.Equal(running.Confirmed.Add(running.PendingInflow).Sub(running.PendingOutflow)) {
			t.Fatalf("available does not match confirmed and pending for %s: %+v", u, running)
		}
		if running.Available.IsNegative() {
			t.Fatalf("%s overdrawn: %s", u, running.Available)
		}
		total = total.Add(running.Available)
	}
	expectAmount(t, "balances plus fees", "6000", total.Add(fees))

	g, err := l.Graph(0)
	if err != nil {
		t.Fatalf("dag is not acyclic: %s", err)
	}
	adjacency, err := g.AdjacencyMap()
	if err != nil {
		t.Fatal(err)
	}
	if len(adjacency) != stats.TotalTransactions {
		t.Fatalf("graph has %d vertices, expected %d", len(adjacency), stats.TotalTransactions)
	}
	window, err := l.Graph(10)
	if err != nil {
		t.Fatal(err)
	}
	if adjacency, _ = window.AdjacencyMap(); len(adjacency) != 10 {
		t.Fatalf("expected a 10 transaction window, got %d", len(adjacency))
	}
}
