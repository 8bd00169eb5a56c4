package api

import "github.com/shopspring/decimal"

// Wire types of the wallet HTTP contract. Amounts are JSON numbers.

type RegisterRequest struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

type RegisterResponse struct {
	Status        string  `json:"status"`
	UserID        string  `json:"user_id"`
	Username      string  `json:"username"`
	WalletAddress string  `json:"wallet_address"`
	PublicKey     string  `json:"public_key"`
	Balance       float64 `json:"balance"`
	ExistingUser  bool    `json:"existing_user"`
}

type TransactionRequest struct {
	FromUser   string          `json:"from_user"`
	ToUser     string          `json:"to_user"`
	Amount     decimal.Decimal `json:"amount"`
	Note       string          `json:"note,omitempty"`
	Nonce      string          `json:"nonce,omitempty"`
	Signature  string          `json:"signature,omitempty"`
	References []string        `json:"references,omitempty"`
}

type SubmitTransactionRequest struct {
	Transaction TransactionRequest `json:"transaction"`
}

type BalanceDebug struct {
	SenderBefore           float64 `json:"sender_before"`
	SenderAfter            float64 `json:"sender_after"`
	ReceiverBefore         float64 `json:"receiver_before"`
	ReceiverAfter          float64 `json:"receiver_after"`
	BalanceChangesVerified bool    `json:"balance_changes_verified"`
}

type TransactionResponse struct {
	Status             string       `json:"status"`
	TransactionID      string       `json:"transaction_id"`
	Amount             float64      `json:"amount"`
	Fee                float64      `json:"fee"`
	TotalDebit         float64      `json:"total_debit"`
	NewBalance         float64      `json:"new_balance"`
	ReceiverNewBalance float64      `json:"receiver_new_balance"`
	Signature          string       `json:"signature"`
	Confirmation       string       `json:"confirmation"`
	DAGReferences      []string     `json:"dag_references"`
	NewlyConfirmed     []string     `json:"newly_confirmed"`
	Debug              BalanceDebug `json:"debug"`
}

// Transaction is an entry of a user's history.
type Transaction struct {
	TransactionID  string   `json:"transaction_id"`
	FromUser       string   `json:"from_user"`
	ToUser         string   `json:"to_user"`
	FromUsername   string   `json:"from_username,omitempty"`
	ToUsername     string   `json:"to_username,omitempty"`
	Amount         float64  `json:"amount"`
	Fee            float64  `json:"fee"`
	Type           string   `json:"type"`
	Kind           string   `json:"kind"`
	Status         string   `json:"status"`
	Timestamp      string   `json:"timestamp"`
	Signature      string   `json:"signature,omitempty"`
	References     []string `json:"references"`
	ReferenceCount int      `json:"reference_count"`
	Confirmations  string   `json:"confirmations"`
	IsConfirmed    bool     `json:"is_confirmed"`
	NetAmount      float64  `json:"net_amount"`
	Note           string   `json:"note,omitempty"`
}

type HistoryResponse struct {
	UserID       string        `json:"user_id"`
	Transactions []Transaction `json:"transactions"`
}

// DAGTransaction is a transaction as shown by the DAG explorer.
// ReferenceCount stops at the confirmation threshold.
type DAGTransaction struct {
	TransactionID  string   `json:"transaction_id"`
	FromUser       string   `json:"from_user"`
	ToUser         string   `json:"to_user"`
	Amount         float64  `json:"amount"`
	Fee            float64  `json:"fee"`
	Kind           string   `json:"kind"`
	Signature      string   `json:"signature"`
	Timestamp      string   `json:"timestamp"`
	References     []string `json:"references"`
	ReferenceCount int      `json:"reference_count"`
	Status         string   `json:"status"`
	Confirmations  string   `json:"confirmations"`
	Note           string   `json:"note,omitempty"`
}

type DAGTransactionsResponse struct {
	Transactions []DAGTransaction `json:"transactions"`
}

type RecentTransactionsResponse struct {
	RecentTransactions []DAGTransaction `json:"recent_transactions"`
	Source             string           `json:"source"`
}

type DAGInfoResponse struct {
	TotalTransactions       int     `json:"total_transactions"`
	ConfirmedTransactions   int     `json:"confirmed_transactions"`
	PendingTransactions     int     `json:"pending_transactions"`
	TipsCount               int     `json:"tips_count"`
	ConfirmationThreshold   int     `json:"confirmation_threshold"`
	NetworkType             string  `json:"network_type"`
	Consensus               string  `json:"consensus"`
	NetworkHealth           string  `json:"network_health"`
	AverageConfirmationTime float64 `json:"average_confirmation_time"`
	Accounts                int     `json:"accounts"`
	Timestamp               string  `json:"timestamp"`
}

type PendingBalanceResponse struct {
	UserID           string  `json:"user_id"`
	AvailableBalance float64 `json:"available_balance"`
	ConfirmedBalance float64 `json:"confirmed_balance"`
	PendingIncome    float64 `json:"pending_income"`
	PendingOutflow   float64 `json:"pending_outflow"`
	Status           string  `json:"status"`
}

type UserResponse struct {
	UserID           string  `json:"user_id"`
	Username         string  `json:"username"`
	WalletAddress    string  `json:"wallet_address"`
	PublicKey        string  `json:"public_key"`
	CreatedAt        string  `json:"created_at"`
	Balance          float64 `json:"balance"`
	ConfirmedBalance float64 `json:"confirmed_balance"`
}

type BalanceBreakdown struct {
	Available      float64 `json:"available"`
	Confirmed      float64 `json:"confirmed"`
	PendingInflow  float64 `json:"pending_inflow"`
	PendingOutflow float64 `json:"pending_outflow"`
}

type DebugBalanceResponse struct {
	UserID           string           `json:"user_id"`
	Running          BalanceBreakdown `json:"running"`
	Reconciled       BalanceBreakdown `json:"reconciled"`
	Consistent       bool             `json:"consistent"`
	TransactionCount int              `json:"transaction_count"`
}

type HealthResponse struct {
	Status      string `json:"status"`
	Environment string `json:"environment"`
	Timestamp   string `json:"timestamp"`
}

type InfoResponse struct {
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	Status    string   `json:"status"`
	Requests  int64    `json:"requests_served"`
	Endpoints []string `json:"endpoints"`
}

type ErrorResponse struct {
	Status    string   `json:"status"`
	Error     string   `json:"error"`
	Code      string   `json:"code"`
	Shortfall *float64 `json:"shortfall,omitempty"`
}
