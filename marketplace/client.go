package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Listing is the public slice of a submission pushed to the marketplace after
// a successful mint.
type Listing struct {
	SubmissionID  uint   `json:"submission_id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	Category      string `json:"category"`
	ImageCID      string `json:"image_cid"`
	MetadataCID   string `json:"metadata_cid"`
	PriceXRP      string `json:"price_xrp,omitempty"`
	PriceRLUSD    string `json:"price_rlusd,omitempty"`
	CreatorWallet string `json:"creator_wallet"`
	Terms         string `json:"terms,omitempty"`
	Website       string `json:"website,omitempty"`
	Quantity      int    `json:"quantity"`
}

// Client posts new listings to the external marketplace backend. Delivery is
// best-effort from the engine's perspective; callers log failures and move on.
type Client struct {
	url  string
	http *http.Client
}

// Config represents the client configuration.
type Config struct {
	URL     string
	Timeout time.Duration
}

// NewClient constructs a notifier targeting the supplied endpoint.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		url:  strings.TrimSpace(cfg.URL),
		http: &http.Client{Timeout: timeout},
	}
}

// Notify announces the listing to the marketplace.
func (c *Client) Notify(ctx context.Context, listing Listing) error {
	if c == nil || c.http == nil || c.url == "" {
		return fmt.Errorf("marketplace: client not configured")
	}
	buf, err := json.Marshal(listing)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("marketplace: notify failed: status=%d", resp.StatusCode)
	}
	return nil
}
