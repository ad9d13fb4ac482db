package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Solana RPC error codes for slots that exist but carry no block. Skipped
// slots are normal on mainnet and must not be treated as failures.
const (
	rpcErrSlotSkipped         = -32007
	rpcErrSlotNotAvailable    = -32004
	rpcErrLongTermStorageSlot = -32009
)

// ErrSourceUnavailable wraps RPC failures that exhausted their retries.
type ErrSourceUnavailable struct {
	Method string
	Err    error
}

func (e *ErrSourceUnavailable) Error() string {
	return fmt.Sprintf("source unavailable: %s: %v", e.Method, e.Err)
}

func (e *ErrSourceUnavailable) Unwrap() error { return e.Err }

// Client is a rate-limited Solana JSON-RPC client. Block payloads are
// returned as raw JSON; decoding is the mapper's job.
type Client struct {
	url        string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
}

// Options configures a Client. Zero values fall back to defaults suitable
// for a public RPC endpoint.
type Options struct {
	Timeout      time.Duration
	RateLimit    float64 // requests per second
	MaxRetries   int
	RetryBackoff time.Duration
}

// NewClient builds a client for the given RPC URL.
func NewClient(url string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 10
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 500 * time.Millisecond
	}
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(opts.RateLimit), 1),
		maxRetries: opts.MaxRetries,
		backoff:    opts.RetryBackoff,
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// GetSlot returns the current slot at confirmed commitment.
func (c *Client) GetSlot(ctx context.Context) (uint64, error) {
	result, err := c.call(ctx, "getSlot", []any{map[string]any{"commitment": "confirmed"}})
	if err != nil {
		return 0, err
	}
	var slot uint64
	if err := json.Unmarshal(result, &slot); err != nil {
		return 0, fmt.Errorf("decode getSlot result: %w", err)
	}
	return slot, nil
}

// GetBlockHeight returns the current block height.
func (c *Client) GetBlockHeight(ctx context.Context) (uint64, error) {
	result, err := c.call(ctx, "getBlockHeight", nil)
	if err != nil {
		return 0, err
	}
	var height uint64
	if err := json.Unmarshal(result, &height); err != nil {
		return 0, fmt.Errorf("decode getBlockHeight result: %w", err)
	}
	return height, nil
}

// GetBlock fetches the block at slot with parsed transactions. The second
// return is false when the slot was skipped or holds no block.
func (c *Client) GetBlock(ctx context.Context, slot uint64) (json.RawMessage, bool, error) {
	params := []any{slot, map[string]any{
		"encoding":                       "jsonParsed",
		"transactionDetails":             "full",
		"maxSupportedTransactionVersion": 0,
		"rewards":                        false,
	}}

	result, err := c.call(ctx, "getBlock", params)
	if err != nil {
		var rpcErr *rpcError
		if errors.As(err, &rpcErr) && slotHasNoBlock(rpcErr.Code) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if len(result) == 0 || string(result) == "null" {
		return nil, false, nil
	}
	return result, true, nil
}

func slotHasNoBlock(code int) bool {
	switch code {
	case rpcErrSlotSkipped, rpcErrSlotNotAvailable, rpcErrLongTermStorageSlot:
		return true
	}
	return false
}

// call performs one JSON-RPC request with rate limiting and retries.
// Transport failures and 429/5xx responses retry with exponential backoff;
// RPC-level errors do not, the caller classifies those.
func (c *Client) call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", method, err)
	}

	delay := c.backoff
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
			delay *= 2
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		result, retryable, err := c.doOnce(ctx, method, body)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !retryable {
			return nil, fmt.Errorf("%s: %w", method, err)
		}
	}
	return nil, &ErrSourceUnavailable{Method: method, Err: lastErr}
}

func (c *Client) doOnce(ctx context.Context, method string, body []byte) (json.RawMessage, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		io.Copy(io.Discard, resp.Body)
		return nil, true, fmt.Errorf("%s returned HTTP %d", method, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, false, fmt.Errorf("%s returned HTTP %d", method, resp.StatusCode)
	}

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, true, fmt.Errorf("decode %s response: %w", method, err)
	}
	if decoded.Error != nil {
		return nil, false, decoded.Error
	}
	return decoded.Result, false, nil
}
