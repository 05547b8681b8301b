// Package sponsor talks to the external paymaster service that pays gas on
// behalf of eligible users. Every answer here is advisory: a paymaster that
// is down, slow, or confused must never block a mint, so failures collapse to
// "not eligible" / "not sponsored" rather than errors.
package sponsor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"github.com/justcoinit/basemint/internal/wallet"
)

// Client is an authenticated paymaster REST client.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *zap.Logger
}

func NewClient(baseURL, apiKey string, log *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     log,
	}
}

type eligibilityRequest struct {
	UserAddress string `json:"userAddress"`
}

type eligibilityResponse struct {
	Eligible bool `json:"eligible"`
}

type sponsorRequest struct {
	ChainID string `json:"chainId"`
	From    string `json:"from"`
	To      string `json:"to"`
	Data    string `json:"data"`
	Value   string `json:"value"`
}

type sponsoredFees struct {
	GasPrice             string `json:"gasPrice,omitempty"`
	MaxFeePerGas         string `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas string `json:"maxPriorityFeePerGas,omitempty"`
}

type sponsorResponse struct {
	Success              bool           `json:"success"`
	SponsoredTransaction *sponsoredFees `json:"sponsoredTransaction,omitempty"`
	Error                string         `json:"error,omitempty"`
}

func (c *Client) post(ctx context.Context, path string, body any) (*http.Response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	return c.http.Do(req)
}

// CheckEligibility asks whether the address qualifies for sponsored gas.
// Fail-closed: any transport failure, non-2xx status, or malformed body means
// false. The answer is never cached — quota may have been consumed since the
// last mint.
func (c *Client) CheckEligibility(ctx context.Context, address string) bool {
	resp, err := c.post(ctx, "/eligibility", eligibilityRequest{UserAddress: address})
	if err != nil {
		c.log.Warn("paymaster eligibility check failed", zap.Error(err))
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Warn("paymaster eligibility: non-2xx", zap.Int("status", resp.StatusCode))
		return false
	}
	var out eligibilityResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		c.log.Warn("paymaster eligibility: malformed body", zap.Error(err))
		return false
	}
	return out.Eligible
}

// Sponsor submits the economically relevant fields of the request and, on
// success, returns a new request with only fee fields replaced by the
// paymaster's suggestions. Any failure returns nil; callers MUST treat nil as
// "proceed unsponsored", never as a hard failure.
func (c *Client) Sponsor(ctx context.Context, req *wallet.TxRequest) *wallet.TxRequest {
	value := "0"
	if req.Value != nil {
		value = req.Value.String()
	}
	body := sponsorRequest{
		ChainID: req.ChainID.String(),
		From:    req.From.Hex(),
		To:      req.To.Hex(),
		Data:    hexutil.Encode(req.Data),
		Value:   value,
	}

	resp, err := c.post(ctx, "/sponsor", body)
	if err != nil {
		c.log.Warn("paymaster sponsor request failed", zap.Error(err))
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Warn("paymaster sponsor: non-2xx", zap.Int("status", resp.StatusCode))
		return nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.log.Warn("paymaster sponsor: read body", zap.Error(err))
		return nil
	}
	var out sponsorResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		c.log.Warn("paymaster sponsor: malformed body", zap.Error(err))
		return nil
	}
	if !out.Success || out.SponsoredTransaction == nil {
		c.log.Info("paymaster declined sponsorship", zap.String("reason", out.Error))
		return nil
	}

	fees, err := parseFees(out.SponsoredTransaction)
	if err != nil {
		c.log.Warn("paymaster sponsor: bad fee values", zap.Error(err))
		return nil
	}
	return req.WithFees(fees)
}

func parseFees(f *sponsoredFees) (wallet.Fees, error) {
	var fees wallet.Fees
	var err error
	if fees.GasPrice, err = parseWei(f.GasPrice); err != nil {
		return fees, err
	}
	if fees.MaxFeePerGas, err = parseWei(f.MaxFeePerGas); err != nil {
		return fees, err
	}
	if fees.MaxPriorityFeePerGas, err = parseWei(f.MaxPriorityFeePerGas); err != nil {
		return fees, err
	}
	return fees, nil
}

// parseWei accepts decimal or 0x-hex strings; empty means "field omitted".
func parseWei(s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	if len(s) > 2 && s[:2] == "0x" {
		return hexutil.DecodeBig(s)
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid wei value %q", s)
	}
	return n, nil
}
