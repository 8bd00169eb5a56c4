// Package cashaapi is a Go client for the casha-node wallet API.
package cashaapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/onemorebsmith/casha-node/src/api"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// APIError is a non-2xx answer from the node.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Shortfall  *float64
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("casha api returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("casha api returned %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

func NewClient(baseURL string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		logger:  logger.With(zap.String("address", baseURL), zap.String("component", "casha_api")),
	}
}

// WithHTTPClient swaps the underlying http client, e.g. for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed marshalling request")
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrapf(err, "failed building request for %s", path)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s failed", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		raw, _ := io.ReadAll(resp.Body)
		errResp := api.ErrorResponse{}
		if json.Unmarshal(raw, &errResp) == nil && errResp.Code != "" {
			apiErr.Code = errResp.Code
			apiErr.Message = errResp.Error
			apiErr.Shortfall = errResp.Shortfall
		} else {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if w, ok := out.(io.Writer); ok {
		_, err := io.Copy(w, resp.Body)
		return errors.Wrapf(err, "failed reading %s", path)
	}
	return errors.Wrapf(json.NewDecoder(resp.Body).Decode(out), "failed decoding %s", path)
}

func (c *Client) Info(ctx context.Context) (*api.InfoResponse, error) {
	ret := &api.InfoResponse{}
	return ret, c.do(ctx, http.MethodGet, "/", nil, ret)
}

func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	ret := &api.HealthResponse{}
	return ret, c.do(ctx, http.MethodGet, "/health", nil, ret)
}

func (c *Client) Register(ctx context.Context, userID, username string) (*api.RegisterResponse, error) {
	ret := &api.RegisterResponse{}
	if err := c.do(ctx, http.MethodPost, "/register", api.RegisterRequest{UserID: userID, Username: username}, ret); err != nil {
		return nil, err
	}
	c.logger.Info("registered", zap.String("user_id", ret.UserID), zap.Bool("existing", ret.ExistingUser))
	return ret, nil
}

// Send submits a transfer. It is never retried: a timeout leaves the outcome
// unknown and the caller should check History before sending again.
func (c *Client) Send(ctx context.Context, req api.TransactionRequest) (*api.TransactionResponse, error) {
	c.logger.Info("sending", zap.String("from", req.FromUser), zap.String("to", req.ToUser),
		zap.String("amount", req.Amount.String()))
	ret := &api.TransactionResponse{}
	if err := c.do(ctx, http.MethodPost, "/transaction", api.SubmitTransactionRequest{Transaction: req}, ret); err != nil {
		return nil, err
	}
	c.logger.Info("sent", zap.String("tx", ret.TransactionID), zap.Float64("fee", ret.Fee))
	return ret, nil
}

func (c *Client) History(ctx context.Context, userID string) ([]api.Transaction, error) {
	ret := api.HistoryResponse{}
	if err := c.do(ctx, http.MethodGet, "/transactions/user/"+url.PathEscape(userID), nil, &ret); err != nil {
		return nil, err
	}
	return ret.Transactions, nil
}

func (c *Client) PendingBalance(ctx context.Context, userID string) (*api.PendingBalanceResponse, error) {
	ret := &api.PendingBalanceResponse{}
	return ret, c.do(ctx, http.MethodGet, "/user/pending-balance/"+url.PathEscape(userID), nil, ret)
}

func (c *Client) User(ctx context.Context, userID string) (*api.UserResponse, error) {
	ret := &api.UserResponse{}
	return ret, c.do(ctx, http.MethodGet, "/debug/user/"+url.PathEscape(userID), nil, ret)
}

func (c *Client) DebugBalance(ctx context.Context, userID string) (*api.DebugBalanceResponse, error) {
	ret := &api.DebugBalanceResponse{}
	return ret, c.do(ctx, http.MethodGet, "/debug/balance/"+url.PathEscape(userID), nil, ret)
}

func (c *Client) DAGInfo(ctx context.Context) (*api.DAGInfoResponse, error) {
	ret := &api.DAGInfoResponse{}
	return ret, c.do(ctx, http.MethodGet, "/dag/info", nil, ret)
}

func (c *Client) DAGTransactions(ctx context.Context, limit int) ([]api.DAGTransaction, error) {
	ret := api.DAGTransactionsResponse{}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/dag/transactions?limit=%d", limit), nil, &ret); err != nil {
		return nil, err
	}
	return ret.Transactions, nil
}

func (c *Client) Recent(ctx context.Context, limit int) ([]api.DAGTransaction, error) {
	ret := api.RecentTransactionsResponse{}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/transactions/recent?limit=%d", limit), nil, &ret); err != nil {
		return nil, err
	}
	return ret.RecentTransactions, nil
}

// DAGGraph returns the DOT rendering of the most recent `limit` transactions.
func (c *Client) DAGGraph(ctx context.Context, limit int) (string, error) {
	buf := &bytes.Buffer{}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/dag/graph?limit=%d", limit), nil, buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Session binds a client to one wallet user.
type Session struct {
	client *Client
	userID string
}

func (c *Client) Session(userID string) *Session {
	return &Session{client: c, userID: userID}
}

func (s *Session) UserID() string {
	return s.userID
}

func (s *Session) Send(ctx context.Context, to string, amount decimal.Decimal, note string) (*api.TransactionResponse, error) {
	return s.client.Send(ctx, api.TransactionRequest{FromUser: s.userID, ToUser: to, Amount: amount, Note: note})
}

func (s *Session) History(ctx context.Context) ([]api.Transaction, error) {
	return s.client.History(ctx, s.userID)
}

func (s *Session) Balance(ctx context.Context) (*api.PendingBalanceResponse, error) {
	return s.client.PendingBalance(ctx, s.userID)
}
