package klines

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"alphapulse/internal/tournament"
)

// Fetcher is the transport this client rides on; see internal/fetch.
type Fetcher interface {
	Fetch(ctx context.Context, targetURL string) (any, error)
}

// Client selects the right klines endpoint for a token and turns the raw
// response into the published risk series.
type Client struct {
	Fetcher      Fetcher
	AlphaBaseURL string
	AggBaseURL   string
	Interval     string
	LimitHours   int
	Logger       *zap.Logger
}

// QueryQuoteAsset returns the quote asset to use in the klines query.
// Base and Solana-family chains are served under USDC upstream regardless
// of the token's own quote asset; the stored metadata keeps its value.
func QueryQuoteAsset(chainID, quoteAsset string) string {
	cid := strings.ToLower(chainID)
	if cid == "8453" || strings.Contains(cid, "base") || strings.Contains(cid, "sol") {
		return "USDC"
	}
	return quoteAsset
}

// SeriesURL builds the klines query URL for a token: the platform endpoint
// keyed by {alphaId}{quoteAsset} when the token has a platform trading id,
// else the generic aggregated-limit-orders endpoint keyed by chain id and
// contract address. Returns "" when no endpoint applies.
func (c *Client) SeriesURL(tok tournament.ActiveToken) string {
	quote := QueryQuoteAsset(tok.ChainID, tok.QuoteAsset)
	limit := c.LimitHours
	if limit <= 0 {
		limit = 168
	}
	interval := c.Interval
	if interval == "" {
		interval = "1h"
	}

	if tok.AlphaID != "" {
		return fmt.Sprintf("%s?symbol=%s%s&interval=%s&limit=%d",
			c.AlphaBaseURL, tok.AlphaID, quote, interval, limit)
	}
	if c.AggBaseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s?chainId=%s&interval=%s&limit=%d&tokenAddress=%s&dataType=limit",
		c.AggBaseURL, tok.ChainID, interval, limit, tok.Contract)
}

// FetchRiskSeries fetches and aggregates one token's hourly series. A
// response without a data field means no data for this token, not an
// error; the caller omits the token from the artifact.
func (c *Client) FetchRiskSeries(ctx context.Context, tok tournament.ActiveToken) ([]RiskPoint, error) {
	target := c.SeriesURL(tok)
	if target == "" {
		if c.Logger != nil {
			c.Logger.Warn("no klines endpoint for token",
				zap.String("symbol", tok.Symbol), zap.String("chain_id", tok.ChainID))
		}
		return nil, nil
	}

	payload, err := c.Fetcher.Fetch(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("klines fetch %s: %w", tok.Symbol, err)
	}

	return Aggregate(Rows(payload)), nil
}

// Rows extracts the raw kline rows from a response body. Both shapes are
// served upstream: data as a bare array, or data.klineInfos.
func Rows(payload any) []any {
	obj, ok := payload.(map[string]any)
	if !ok {
		return nil
	}
	switch data := obj["data"].(type) {
	case []any:
		return data
	case map[string]any:
		rows, _ := data["klineInfos"].([]any)
		return rows
	default:
		return nil
	}
}
