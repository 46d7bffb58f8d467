package signing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Session is a server-created signing request awaiting wallet-app approval.
type Session struct {
	SessionID   string
	SigningLink string
}

// SessionStatus reflects the resolution state of a signing session. Resolved
// and Signed are independent: a resolved session with Signed=false was
// explicitly declined by the user.
type SessionStatus struct {
	Resolved      bool
	Signed        bool
	ResultAccount string
	ResultTxID    string
}

// Client talks to the wallet-signing gateway HTTP API.
type Client struct {
	baseURL   string
	apiKey    string
	apiSecret string
	returnURL string
	http      *http.Client
}

// Config represents the client configuration.
type Config struct {
	BaseURL   string
	APIKey    string
	APISecret string
	ReturnURL string
	Timeout   time.Duration
}

// NewClient constructs an HTTP client with sane defaults.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		returnURL: strings.TrimSpace(cfg.ReturnURL),
		http:      &http.Client{Timeout: timeout},
	}
}

type createPayloadRequest struct {
	TxJSON  map[string]interface{} `json:"txjson"`
	Options *payloadOptions        `json:"options,omitempty"`
}

type payloadOptions struct {
	ReturnURL returnURL `json:"return_url"`
}

type returnURL struct {
	Web string `json:"web,omitempty"`
	App string `json:"app,omitempty"`
}

type createPayloadResponse struct {
	UUID string `json:"uuid"`
	Next struct {
		Always string `json:"always"`
	} `json:"next"`
}

type payloadStatusResponse struct {
	Meta struct {
		Resolved bool `json:"resolved"`
		Signed   bool `json:"signed"`
	} `json:"meta"`
	Response struct {
		Account string `json:"account"`
		TxID    string `json:"txid"`
	} `json:"response"`
}

// CreateSession registers a transaction template with the gateway and returns
// the session id plus the user-facing signing link.
func (c *Client) CreateSession(ctx context.Context, txJSON map[string]interface{}) (*Session, error) {
	if c == nil || c.http == nil {
		return nil, fmt.Errorf("signing: client not configured")
	}
	payload := createPayloadRequest{TxJSON: txJSON}
	if c.returnURL != "" {
		payload.Options = &payloadOptions{ReturnURL: returnURL{Web: c.returnURL, App: c.returnURL}}
	}
	var resp createPayloadResponse
	if err := c.do(ctx, http.MethodPost, "/payload", payload, &resp); err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.UUID) == "" {
		return nil, fmt.Errorf("signing: gateway returned empty session id")
	}
	return &Session{SessionID: resp.UUID, SigningLink: resp.Next.Always}, nil
}

// GetSession retrieves the resolution state of an existing signing session.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*SessionStatus, error) {
	if c == nil || c.http == nil {
		return nil, fmt.Errorf("signing: client not configured")
	}
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return nil, fmt.Errorf("signing: session id is required")
	}
	var resp payloadStatusResponse
	if err := c.do(ctx, http.MethodGet, "/payload/"+id, nil, &resp); err != nil {
		return nil, err
	}
	return &SessionStatus{
		Resolved:      resp.Meta.Resolved,
		Signed:        resp.Meta.Signed,
		ResultAccount: strings.TrimSpace(resp.Response.Account),
		ResultTxID:    strings.TrimSpace(resp.Response.TxID),
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out interface{}) error {
	var body *bytes.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("X-API-Secret", c.apiSecret)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("signing: %s %s failed: status=%d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
