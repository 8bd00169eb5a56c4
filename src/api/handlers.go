package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dominikbraun/graph/draw"
	"github.com/onemorebsmith/casha-node/src/feed"
	"github.com/onemorebsmith/casha-node/src/ledger"
	"github.com/onemorebsmith/casha-node/src/model"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultRecentLimit = 20
	defaultDAGLimit    = 50
	defaultGraphLimit  = 100
	maxLimit           = 1000
)

func amount(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func queryLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > maxLimit {
		return maxLimit
	}
	return n
}

func (s *Server) confirmations(v *model.TransactionView) string {
	threshold := s.ledger.Config().ConfirmationThreshold
	n := v.ReferenceCount
	if n > threshold {
		n = threshold
	}
	return fmt.Sprintf("%d/%d", n, threshold)
}

func (s *Server) dagTransaction(v *model.TransactionView) DAGTransaction {
	refs := v.References
	if refs == nil {
		refs = []string{}
	}
	return DAGTransaction{
		TransactionID:  v.ID,
		FromUser:       v.FromUser,
		ToUser:         v.ToUser,
		Amount:         amount(v.Amount),
		Fee:            amount(v.Fee),
		Kind:           string(v.Kind),
		Signature:      v.Signature,
		Timestamp:      timestamp(v.Timestamp),
		References:     refs,
		ReferenceCount: v.ReferenceCount,
		Status:         string(v.Status()),
		Confirmations:  s.confirmations(v),
		Note:           v.Note,
	}
}

func (s *Server) username(userID string) string {
	if userID == "" {
		return ""
	}
	if a, ok := s.ledger.Account(userID); ok {
		return a.Username
	}
	return ""
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, InfoResponse{
		Name:      Name,
		Version:   s.opts.Version,
		Status:    "running",
		Requests:  s.requests.Load(),
		Endpoints: endpoints,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:      "healthy",
		Environment: s.opts.Environment,
		Timestamp:   timestamp(time.Now()),
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	req := RegisterRequest{}
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, errors.Wrap(ledger.ErrInvalidRequest, "malformed registration body"))
		return
	}
	userID := req.UserID
	if userID == "" {
		userID = req.Email
	}
	reg, err := s.ledger.Register(r.Context(), userID, req.Username)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, RegisterResponse{
		Status:        "success",
		UserID:        reg.Account.UserID,
		Username:      reg.Account.Username,
		WalletAddress: reg.Account.WalletAddress,
		PublicKey:     reg.Account.PublicKey,
		Balance:       amount(reg.Balance.Available),
		ExistingUser:  reg.Existing,
	})
}

func (s *Server) handleTransaction(w http.ResponseWriter, r *http.Request) {
	body := SubmitTransactionRequest{}
	if err := decodeBody(w, r, &body); err != nil {
		s.writeError(w, errors.Wrap(ledger.ErrInvalidRequest, "malformed transaction body"))
		return
	}
	req := body.Transaction
	if req.FromUser == "" || req.ToUser == "" {
		s.writeError(w, errors.Wrap(ledger.ErrInvalidRequest, "from_user and to_user are required"))
		return
	}
	receipt, err := s.ledger.Submit(r.Context(), ledger.SubmitRequest{
		FromUser:   req.FromUser,
		ToUser:     req.ToUser,
		Amount:     req.Amount,
		Note:       req.Note,
		Nonce:      req.Nonce,
		Signature:  req.Signature,
		References: req.References,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	tx := receipt.Transaction
	confirmation := "pending"
	if tx.IsConfirmed {
		confirmation = "instant"
	}
	verified := receipt.SenderBefore.Available.Sub(receipt.TotalDebit).Equal(receipt.SenderAfter.Available) &&
		receipt.ReceiverBefore.Available.Add(tx.Amount).Equal(receipt.ReceiverAfter.Available)
	if !verified {
		s.logger.Error("balance changes do not add up", zap.String("tx", tx.ID))
	}
	newlyConfirmed := receipt.NewlyConfirmed
	if newlyConfirmed == nil {
		newlyConfirmed = []string{}
	}
	s.writeJSON(w, http.StatusOK, TransactionResponse{
		Status:             "success",
		TransactionID:      tx.ID,
		Amount:             amount(tx.Amount),
		Fee:                amount(tx.Fee),
		TotalDebit:         amount(receipt.TotalDebit),
		NewBalance:         amount(receipt.SenderAfter.Available),
		ReceiverNewBalance: amount(receipt.ReceiverAfter.Available),
		Signature:          tx.Signature,
		Confirmation:       confirmation,
		DAGReferences:      s.dagTransaction(tx).References,
		NewlyConfirmed:     newlyConfirmed,
		Debug: BalanceDebug{
			SenderBefore:           amount(receipt.SenderBefore.Available),
			SenderAfter:            amount(receipt.SenderAfter.Available),
			ReceiverBefore:         amount(receipt.ReceiverBefore.Available),
			ReceiverAfter:          amount(receipt.ReceiverAfter.Available),
			BalanceChangesVerified: verified,
		},
	})
}

func (s *Server) handleUserTransactions(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	views, err := s.ledger.UserTransactions(userID, queryLimit(r, 0))
	if err != nil {
		s.writeError(w, err)
		return
	}
	ret := make([]Transaction, 0, len(views))
	for _, v := range views {
		tx := Transaction{
			TransactionID:  v.ID,
			FromUser:       v.FromUser,
			ToUser:         v.ToUser,
			FromUsername:   s.username(v.FromUser),
			ToUsername:     s.username(v.ToUser),
			Amount:         amount(v.Amount),
			Fee:            amount(v.Fee),
			Kind:           string(v.Kind),
			Status:         string(v.Status()),
			Timestamp:      timestamp(v.Timestamp),
			Signature:      v.Signature,
			References:     s.dagTransaction(v).References,
			ReferenceCount: v.ReferenceCount,
			Confirmations:  s.confirmations(v),
			IsConfirmed:    v.IsConfirmed,
			Note:           v.Note,
		}
		if v.FromUser == userID && !v.IsMint() {
			tx.Type = "sent"
			tx.NetAmount = -amount(v.TotalDebit())
		} else {
			tx.Type = "received"
			tx.NetAmount = amount(v.Amount)
		}
		ret = append(ret, tx)
	}
	s.writeJSON(w, http.StatusOK, HistoryResponse{UserID: userID, Transactions: ret})
}

func (s *Server) handleRecentTransactions(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, defaultRecentLimit)
	if s.opts.Recent != nil {
		entries, err := s.opts.Recent.Recent(r.Context(), limit)
		if err == nil {
			s.writeJSON(w, http.StatusOK, RecentTransactionsResponse{
				RecentTransactions: s.fromFeed(entries),
				Source:             "feed",
			})
			return
		}
		s.logger.Warn("recent feed unavailable, serving from the ledger", zap.Error(err))
	}
	views := s.ledger.Transactions(limit)
	ret := make([]DAGTransaction, 0, len(views))
	for _, v := range views {
		ret = append(ret, s.dagTransaction(v))
	}
	s.writeJSON(w, http.StatusOK, RecentTransactionsResponse{RecentTransactions: ret, Source: "ledger"})
}

// fromFeed renders feed entries, taking confirmation state from the ledger
// where it knows the transaction.
func (s *Server) fromFeed(entries []feed.Entry) []DAGTransaction {
	ret := make([]DAGTransaction, 0, len(entries))
	for _, e := range entries {
		if v, ok := s.ledger.Transaction(e.ID); ok {
			ret = append(ret, s.dagTransaction(v))
			continue
		}
		v := &model.TransactionView{Transaction: model.Transaction{
			ID:         e.ID,
			Seq:        e.Seq,
			Kind:       model.TransactionKind(e.Kind),
			FromUser:   e.FromUser,
			ToUser:     e.ToUser,
			Amount:     e.Amount,
			Fee:        e.Fee,
			Note:       e.Note,
			References: e.References,
			Timestamp:  e.Timestamp,
		}}
		ret = append(ret, s.dagTransaction(v))
	}
	return ret
}

func (s *Server) handleDAGInfo(w http.ResponseWriter, r *http.Request) {
	stats := s.ledger.Stats()
	s.writeJSON(w, http.StatusOK, DAGInfoResponse{
		TotalTransactions:       stats.TotalTransactions,
		ConfirmedTransactions:   stats.ConfirmedTransactions,
		PendingTransactions:     stats.PendingTransactions,
		TipsCount:               stats.TipsCount,
		ConfirmationThreshold:   stats.ConfirmationThreshold,
		NetworkType:             "DAG",
		Consensus:               "reference-count",
		NetworkHealth:           string(stats.Health()),
		AverageConfirmationTime: stats.AverageConfirmationTime.Seconds(),
		Accounts:                s.ledger.AccountCount(),
		Timestamp:               timestamp(time.Now()),
	})
}

func (s *Server) handleDAGTransactions(w http.ResponseWriter, r *http.Request) {
	views := s.ledger.Transactions(queryLimit(r, defaultDAGLimit))
	ret := make([]DAGTransaction, 0, len(views))
	for _, v := range views {
		ret = append(ret, s.dagTransaction(v))
	}
	s.writeJSON(w, http.StatusOK, DAGTransactionsResponse{Transactions: ret})
}

func (s *Server) handleDAGGraph(w http.ResponseWriter, r *http.Request) {
	g, err := s.ledger.Graph(queryLimit(r, defaultGraphLimit))
	if err != nil {
		s.writeError(w, err)
		return
	}
	buf := bytes.Buffer{}
	if err := draw.DOT(g, &buf); err != nil {
		s.writeError(w, errors.Wrap(err, "failed rendering dag"))
		return
	}
	w.Header().Set("Content-Type", "text/vnd.graphviz; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (s *Server) handlePendingBalance(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	b, err := s.ledger.Balance(userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, PendingBalanceResponse{
		UserID:           userID,
		AvailableBalance: amount(b.Available),
		ConfirmedBalance: amount(b.Confirmed),
		PendingIncome:    amount(b.PendingIncome()),
		PendingOutflow:   amount(b.PendingOutflow),
		Status:           "success",
	})
}

func (s *Server) handleDebugUser(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	acct, ok := s.ledger.Account(userID)
	if !ok {
		s.writeError(w, errors.Wrap(ledger.ErrUnknownAccount, userID))
		return
	}
	b, err := s.ledger.Balance(userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, UserResponse{
		UserID:           acct.UserID,
		Username:         acct.Username,
		WalletAddress:    acct.WalletAddress,
		PublicKey:        acct.PublicKey,
		CreatedAt:        timestamp(acct.CreatedAt),
		Balance:          amount(b.Available),
		ConfirmedBalance: amount(b.Confirmed),
	})
}

func breakdown(b model.Balance) BalanceBreakdown {
	return BalanceBreakdown{
		Available:      amount(b.Available),
		Confirmed:      amount(b.Confirmed),
		PendingInflow:  amount(b.PendingInflow),
		PendingOutflow: amount(b.PendingOutflow),
	}
}

func (s *Server) handleDebugBalance(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	running, err := s.ledger.Balance(userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	reconciled, err := s.ledger.Reconcile(userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	history, err := s.ledger.UserTransactions(userID, 0)
	if err != nil {
		s.writeError(w, err)
		return
	}
	consistent := running.Available.Equal(reconciled.Available) &&
		running.Confirmed.Equal(reconciled.Confirmed) &&
		running.PendingInflow.Equal(reconciled.PendingInflow) &&
		running.PendingOutflow.Equal(reconciled.PendingOutflow)
	if !consistent {
		s.logger.Error("running balance drifted from the ledger", zap.String("user_id", userID),
			zap.String("running", running.Available.String()), zap.String("reconciled", reconciled.Available.String()))
	}
	s.writeJSON(w, http.StatusOK, DebugBalanceResponse{
		UserID:           userID,
		Running:          breakdown(running),
		Reconciled:       breakdown(reconciled),
		Consistent:       consistent,
		TransactionCount: len(history),
	})
}
