// Package relay is a client for a fee-sponsoring withdrawal relay.
//
// A relay submits the withdraw instruction for a verified output escrow and
// pays the transaction fee, so the recipient's destination never has to hold
// funds beforehand. The relay learns nothing the ledger does not already
// show: the stealth public key and the verified destination.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mr-tron/base58"

	"github.com/stealthpool/client-go/internal/apierrors"
	"github.com/stealthpool/client-go/internal/ledger"
	"github.com/stealthpool/client-go/internal/logging"
	"github.com/stealthpool/client-go/internal/rpc"
)

const maxResponseBytes int64 = 1 << 20

// WithdrawPath is the relay endpoint for withdrawals.
const WithdrawPath = "/v1/withdraw"

// Client talks to one relay.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	retry      *rpc.RetryConfig
	logger     *slog.Logger
}

// Option configures the relay client.
type Option func(*Client)

// WithAPIKey sends key as a bearer token.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRetryConfig replaces the retry policy.
func WithRetryConfig(cfg *rpc.RetryConfig) Option {
	return func(c *Client) {
		c.retry = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logging.Sanitize(l)
	}
}

// New creates a relay client for baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("relay URL is required")
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		retry:  rpc.DefaultRetryConfig(),
		logger: logging.Discard(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// WithdrawRequest asks the relay to withdraw a verified escrow.
type WithdrawRequest struct {
	StealthPubkey [32]byte
	Destination   ledger.Address
}

type withdrawRequestJSON struct {
	StealthPubkey string `json:"stealth_pubkey"`
	Destination   string `json:"destination"`
}

// WithdrawResponse is the relay's acknowledgement.
type WithdrawResponse struct {
	// Signature of the withdraw transaction the relay submitted.
	Signature string `json:"signature"`
	// Confirmed is set when the relay already saw the transaction confirm.
	Confirmed bool `json:"confirmed"`
}

// Withdraw submits req. The relay refuses escrows that are not verified,
// already withdrawn, or verified for another destination; those refusals
// match the corresponding apierrors sentinels.
func (c *Client) Withdraw(ctx context.Context, req WithdrawRequest) (*WithdrawResponse, error) {
	body := withdrawRequestJSON{
		StealthPubkey: base58.Encode(req.StealthPubkey[:]),
		Destination:   req.Destination.String(),
	}
	var out WithdrawResponse
	if err := c.do(ctx, http.MethodPost, WithdrawPath, body, &out); err != nil {
		return nil, err
	}
	if out.Signature == "" {
		return nil, errors.New("relay returned no signature")
	}
	c.logger.Info("relay accepted withdrawal", "stealth_pubkey", req.StealthPubkey[:], "confirmed", out.Confirmed)
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}
	url := c.baseURL + path

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f := rpc.Failure{Transport: true}
			if c.retry.Retryable(attempt, f) {
				if werr := c.retry.Wait(ctx, attempt, f); werr != nil {
					return werr
				}
				continue
			}
			return &apierrors.NetworkError{Err: err, URL: url, Attempt: attempt + 1}
		}

		payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		resp.Body.Close()
		if err != nil {
			return &apierrors.NetworkError{Err: err, URL: url, Attempt: attempt + 1}
		}

		if resp.StatusCode >= 400 {
			f := rpc.Failure{
				Status:     resp.StatusCode,
				RetryAfter: rpc.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
			}
			if c.retry.Retryable(attempt, f) {
				c.logger.Debug("relay error, retrying", "status", resp.StatusCode, "attempt", attempt+1)
				if werr := c.retry.Wait(ctx, attempt, f); werr != nil {
					return werr
				}
				continue
			}
			return parseErrorResponse(resp.StatusCode, payload)
		}

		if result != nil {
			if err := json.Unmarshal(payload, result); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
		}
		return nil
	}
}
