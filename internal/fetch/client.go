package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Browser-like identity; the upstream market endpoints block default Go
// client fingerprints.
const (
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"
	referer   = "https://www.binance.com/en/alpha"

	defaultRetries = 3

	proxyColdTimeout = 60 * time.Second
	proxyWarmTimeout = 30 * time.Second
	directTimeout    = 15 * time.Second
	retryBackoff     = time.Second
)

// Client fetches JSON through an optional rewriting proxy with a direct
// fallback. It knows nothing about the payloads it carries.
//
// Per attempt: the proxy is tried first (accepted only on status 200 with a
// JSON object body, so a proxy error page can never masquerade as data),
// then the target directly (any 200 JSON is accepted; direct responses skip
// the shape check since they bypass the rewrite risk). Failures at either
// stage are absorbed and retried after a fixed back-off.
type Client struct {
	HTTP     *http.Client
	Logger   *zap.Logger
	ProxyURL string

	// Retries and Backoff default to 3 attempts / 1s when zero.
	Retries int
	Backoff time.Duration
}

func New(logger *zap.Logger, proxyURL string) *Client {
	return &Client{
		HTTP:     &http.Client{},
		Logger:   logger,
		ProxyURL: strings.TrimSpace(proxyURL),
	}
}

// Fetch returns the first accepted JSON payload for targetURL, or an error
// after exhausting all attempts. An empty URL fails fast with no network
// call. Safe to retry; only GETs are issued.
func (c *Client) Fetch(ctx context.Context, targetURL string) (any, error) {
	if targetURL == "" {
		return nil, fmt.Errorf("empty target url")
	}

	retries := c.Retries
	if retries <= 0 {
		retries = defaultRetries
	}
	backoff := c.Backoff
	if backoff <= 0 {
		backoff = retryBackoff
	}

	// Cold-start class proxies need a generous first-attempt timeout.
	coldStart := strings.Contains(c.ProxyURL, "onrender.com")

	for attempt := 0; attempt < retries; attempt++ {
		if c.ProxyURL != "" {
			timeout := proxyWarmTimeout
			if coldStart && attempt == 0 {
				timeout = proxyColdTimeout
			}
			q := url.Values{"url": {targetURL}}
			if obj, ok := c.tryProxy(ctx, c.ProxyURL+"?"+q.Encode(), timeout); ok {
				return obj, nil
			}
		}

		if payload, ok := c.tryDirect(ctx, targetURL); ok {
			return payload, nil
		}

		if attempt < retries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return nil, fmt.Errorf("fetch: exhausted %d attempts for %s", retries, targetURL)
}

func (c *Client) tryProxy(ctx context.Context, proxiedURL string, timeout time.Duration) (map[string]any, bool) {
	body, status, err := c.get(ctx, proxiedURL, timeout)
	if err != nil || status != http.StatusOK {
		c.debug("proxy attempt failed", status, err)
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil || obj == nil {
		c.debug("proxy body is not a JSON object", status, err)
		return nil, false
	}
	return obj, true
}

func (c *Client) tryDirect(ctx context.Context, targetURL string) (any, bool) {
	body, status, err := c.get(ctx, targetURL, directTimeout)
	if err != nil || status != http.StatusOK {
		c.debug("direct attempt failed", status, err)
		return nil, false
	}
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		c.debug("direct body is not JSON", status, err)
		return nil, false
	}
	return payload, true
}

func (c *Client) get(ctx context.Context, rawURL string, timeout time.Duration) ([]byte, int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", referer)
	req.Header.Set("Accept", "application/json")

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func (c *Client) debug(msg string, status int, err error) {
	if c.Logger == nil {
		return
	}
	c.Logger.Debug(msg, zap.Int("status", status), zap.Error(err))
}
