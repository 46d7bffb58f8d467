package rewards

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DefaultRewards is the fallback per-action token award used when a creator
// has not published reward rules for a submission.
var DefaultRewards = map[string]float64{
	"read":     10, // page read, counted after the dwell threshold
	"activity": 20, // book or workshop activity
}

// RuleSource resolves a creator-defined reward override for an action type.
type RuleSource interface {
	Lookup(ctx context.Context, metadataCID, actionType string) (float64, bool)
}

// RuleFetcher loads reward-rule documents from the content gateway. The
// document is creator-supplied JSON whose optional "learn" object maps action
// types to token amounts. Fetches are best-effort and tightly bounded: any
// error or malformed document reads as "no override".
type RuleFetcher struct {
	gatewayBase string
	http        *http.Client
}

// RuleFetcherConfig represents the fetcher configuration.
type RuleFetcherConfig struct {
	GatewayBase string
	Timeout     time.Duration
}

// NewRuleFetcher constructs a fetcher with a short default timeout.
func NewRuleFetcher(cfg RuleFetcherConfig) *RuleFetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	return &RuleFetcher{
		gatewayBase: strings.TrimRight(cfg.GatewayBase, "/"),
		http:        &http.Client{Timeout: timeout},
	}
}

type ruleDocument struct {
	Learn map[string]json.Number `json:"learn"`
}

// Lookup fetches the submission's rule document and returns the override for
// actionType when one is defined.
func (f *RuleFetcher) Lookup(ctx context.Context, metadataCID, actionType string) (float64, bool) {
	if f == nil || f.http == nil || f.gatewayBase == "" {
		return 0, false
	}
	cid := strings.TrimSpace(metadataCID)
	if cid == "" {
		return 0, false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s", f.gatewayBase, cid), nil)
	if err != nil {
		return 0, false
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return 0, false
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return 0, false
	}
	var doc ruleDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return 0, false
	}
	raw, ok := doc.Learn[actionType]
	if !ok {
		return 0, false
	}
	amount, err := raw.Float64()
	if err != nil || amount <= 0 {
		return 0, false
	}
	return amount, true
}
