package ledgerrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// Client provides a thin JSON-RPC wrapper over a ledger node. It covers the
// handful of methods the gateway needs: submitting reward payouts, looking up
// confirmed transactions, and listing account activity for the polling-based
// confirmation flows.
type Client struct {
	url        string
	httpClient *http.Client
	nextID     atomic.Int64
}

// Config represents the client configuration.
type Config struct {
	URL     string
	Timeout time.Duration
}

// NewClient constructs a JSON-RPC client targeting the supplied URL.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		url:        strings.TrimSpace(cfg.URL),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// PaymentRequest describes a token payment submitted on behalf of the
// distributor account.
type PaymentRequest struct {
	Destination string  `json:"destination"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Issuer      string  `json:"issuer"`
}

// TxRecord is the subset of a confirmed ledger transaction the gateway reads.
type TxRecord struct {
	Hash      string `json:"hash"`
	Validated bool   `json:"validated"`
	TokenID   string `json:"token_id"`
	Result    string `json:"result"`
}

// AccountTx summarises one entry of an account's transaction history.
type AccountTx struct {
	Hash        string  `json:"hash"`
	Destination string  `json:"destination"`
	Amount      string  `json:"amount"`
	Validated   bool    `json:"validated"`
	DeliveredAt float64 `json:"delivered_at"`
}

// AccountToken is one token held by an account.
type AccountToken struct {
	TokenID string `json:"token_id"`
	Issuer  string `json:"issuer"`
	URI     string `json:"uri"`
}

// SubmitPayment submits a signed distributor payment and waits for the node's
// verdict. It returns the transaction hash on success.
func (c *Client) SubmitPayment(ctx context.Context, req PaymentRequest) (string, error) {
	dest := strings.TrimSpace(req.Destination)
	if dest == "" {
		return "", fmt.Errorf("ledgerrpc: destination is required")
	}
	if req.Amount <= 0 {
		return "", fmt.Errorf("ledgerrpc: amount must be positive")
	}
	var result struct {
		Hash   string `json:"hash"`
		Result string `json:"result"`
	}
	if err := c.call(ctx, "submit_payment", []interface{}{req}, &result); err != nil {
		return "", err
	}
	if result.Result != "" && !strings.EqualFold(result.Result, "tesSUCCESS") {
		return "", fmt.Errorf("ledgerrpc: payment failed with %s", result.Result)
	}
	if strings.TrimSpace(result.Hash) == "" {
		return "", fmt.Errorf("ledgerrpc: node returned empty transaction hash")
	}
	return result.Hash, nil
}

// Tx retrieves a confirmed transaction by hash.
func (c *Client) Tx(ctx context.Context, hash string) (*TxRecord, error) {
	trimmed := strings.TrimSpace(hash)
	if trimmed == "" {
		return nil, fmt.Errorf("ledgerrpc: transaction hash is required")
	}
	var record TxRecord
	if err := c.call(ctx, "tx", []interface{}{trimmed}, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// AccountTransactions lists confirmed transactions involving the account.
func (c *Client) AccountTransactions(ctx context.Context, account string) ([]AccountTx, error) {
	trimmed := strings.TrimSpace(account)
	if trimmed == "" {
		return nil, fmt.Errorf("ledgerrpc: account is required")
	}
	var txs []AccountTx
	if err := c.call(ctx, "account_tx", []interface{}{trimmed}, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

// AccountTokens lists tokens currently held by the account.
func (c *Client) AccountTokens(ctx context.Context, account string) ([]AccountToken, error) {
	trimmed := strings.TrimSpace(account)
	if trimmed == "" {
		return nil, fmt.Errorf("ledgerrpc: account is required")
	}
	var tokens []AccountToken
	if err := c.call(ctx, "account_nfts", []interface{}{trimmed}, &tokens); err != nil {
		return nil, err
	}
	return tokens, nil
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	if c == nil || c.httpClient == nil {
		return fmt.Errorf("ledgerrpc: client not configured")
	}
	id := c.nextID.Add(1)
	buf, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("ledgerrpc: decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("ledgerrpc: error %d %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("ledgerrpc: unexpected status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if len(rpcResp.Result) == 0 {
		return fmt.Errorf("ledgerrpc: empty result")
	}
	return json.Unmarshal(rpcResp.Result, out)
}
