package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/stealthpool/client-go/internal/apierrors"
	"github.com/stealthpool/client-go/internal/ledger"
	"github.com/stealthpool/client-go/internal/logging"
	"github.com/stealthpool/client-go/internal/metrics"
)

// maxResponseBytes bounds a single JSON-RPC response. A full program-accounts
// scan of a busy pool is the largest expected payload.
const maxResponseBytes int64 = 64 << 20

// codeSimulationFailure is the JSON-RPC error of a rejected preflight.
const codeSimulationFailure = -32002

// Client is a JSON-RPC ledger client for one settlement domain.
type Client struct {
	endpoint   string
	domain     ledger.Domain
	httpClient *http.Client
	retry      *RetryConfig
	limiter    *rate.Limiter
	commitment ledger.Commitment
	logger     *slog.Logger
	metrics    *metrics.Metrics
	nextID     atomic.Uint64
}

var _ ledger.Client = (*Client)(nil)

// Option configures the client.
type Option func(*Client)

// WithDomain labels the client's logs and metrics.
func WithDomain(d ledger.Domain) Option {
	return func(c *Client) {
		c.domain = d
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRetryConfig replaces the retry policy.
func WithRetryConfig(cfg *RetryConfig) Option {
	return func(c *Client) {
		c.retry = cfg
	}
}

// WithRateLimit caps outgoing requests. A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

// WithCommitment sets the commitment level sent with reads.
func WithCommitment(level ledger.Commitment) Option {
	return func(c *Client) {
		c.commitment = level
	}
}

// WithLogger sets the logger. It is wrapped in the sanitizing handler.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logging.Sanitize(l)
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// New creates a client for endpoint.
func New(endpoint string, opts ...Option) (*Client, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("RPC endpoint is required")
	}

	c := &Client{
		endpoint: endpoint,
		domain:   ledger.DomainBase,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		retry:      DefaultRetryConfig(),
		commitment: ledger.CommitmentConfirmed,
		logger:     logging.Discard(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Endpoint returns the URL the client talks to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Domain returns the settlement domain this client serves.
func (c *Client) Domain() ledger.Domain {
	return c.domain
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcErrorObject struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcErrorObject `json:"error,omitempty"`
}

func (c *Client) call(ctx context.Context, method string, params []any, result any) (err error) {
	start := time.Now()
	defer func() {
		c.metrics.ObserveRPC(c.domain.String(), method, time.Since(start), err)
	}()

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	for attempt := 0; ; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		resp, err := c.post(ctx, body)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f := Failure{Transport: true}
			if c.retry.Retryable(attempt, f) {
				c.logger.Debug("rpc transport error, retrying", "domain", c.domain, "method", method, "attempt", attempt+1, "error", err)
				if werr := c.retry.Wait(ctx, attempt, f); werr != nil {
					return werr
				}
				continue
			}
			return &apierrors.NetworkError{Err: err, URL: c.endpoint, Attempt: attempt + 1}
		}

		if resp.statusCode >= 400 {
			f := Failure{Status: resp.statusCode, RetryAfter: resp.retryAfter}
			if c.retry.Retryable(attempt, f) {
				c.logger.Debug("rpc http error, retrying", "domain", c.domain, "method", method, "status", resp.statusCode, "attempt", attempt+1)
				if werr := c.retry.Wait(ctx, attempt, f); werr != nil {
					return werr
				}
				continue
			}
			return &apierrors.HTTPError{StatusCode: resp.statusCode, Message: string(bytes.TrimSpace(resp.body))}
		}

		var decoded rpcResponse
		if err := json.Unmarshal(resp.body, &decoded); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}

		if decoded.Error != nil {
			f := Failure{Code: decoded.Error.Code, Status: resp.statusCode, RetryAfter: resp.retryAfter}
			if c.retry.Retryable(attempt, f) {
				c.logger.Debug("rpc node throttled, retrying", "domain", c.domain, "method", method, "code", decoded.Error.Code, "attempt", attempt+1)
				if werr := c.retry.Wait(ctx, attempt, f); werr != nil {
					return werr
				}
				continue
			}
			return decodeRPCError(decoded.Error)
		}

		if result != nil {
			if err := json.Unmarshal(decoded.Result, result); err != nil {
				return fmt.Errorf("failed to decode %s result: %w", method, err)
			}
		}
		return nil
	}
}

type httpResult struct {
	statusCode int
	retryAfter time.Duration
	body       []byte
}

func (c *Client) post(ctx context.Context, body []byte) (*httpResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}
	return &httpResult{
		statusCode: resp.StatusCode,
		retryAfter: ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		body:       data,
	}, nil
}

// simulationData is the data member of a preflight failure.
type simulationData struct {
	Err  json.RawMessage `json:"err"`
	Logs []string        `json:"logs"`
}

func decodeRPCError(obj *rpcErrorObject) error {
	if obj.Code == codeSimulationFailure && len(obj.Data) > 0 {
		var sim simulationData
		if err := json.Unmarshal(obj.Data, &sim); err == nil {
			if rej := ParseTransactionError(sim.Err, sim.Logs); rej != nil {
				return rej
			}
		}
	}
	rpcErr := &apierrors.RPCError{Code: obj.Code, Message: obj.Message, Data: obj.Data}
	if errors.Is(rpcErr, apierrors.ErrBlockhashExpired) {
		return &apierrors.LedgerRejectedError{Reason: "BlockhashNotFound"}
	}
	return rpcErr
}
