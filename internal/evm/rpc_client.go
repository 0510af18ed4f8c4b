package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"poolwatch/internal/domain"
	"poolwatch/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout     = 15 * time.Second
	DefaultMaxRetries  = 2
	DefaultRetryDelay  = 500 * time.Millisecond
	DefaultMaxDelay    = 5 * time.Second
	DefaultBackoffMult = 2.0
)

// HTTPClient implements RPCClient over an HTTP node endpoint with retries.
type HTTPClient struct {
	eth         *ethclient.Client
	httpClient  *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.httpClient.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.httpClient = client
	}
}

// NewHTTPClient creates a node client for an http(s) endpoint.
// No request is made until the first call.
func NewHTTPClient(ctx context.Context, endpoint string, opts ...ClientOption) (*HTTPClient, error) {
	c := &HTTPClient{
		httpClient:  &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}

	rc, err := rpc.DialOptions(ctx, endpoint, rpc.WithHTTPClient(c.httpClient))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	c.eth = ethclient.NewClient(rc)
	return c, nil
}

// Close releases the underlying RPC client.
func (c *HTTPClient) Close() {
	c.eth.Close()
}

// Compile-time interface check.
var _ RPCClient = (*HTTPClient)(nil)

// RPCError is an error object returned by the node.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// call runs fn with retries and exponential backoff and records its latency.
func (c *HTTPClient) call(ctx context.Context, method string, fn func(context.Context) error) error {
	start := time.Now()
	err := c.retry(ctx, method, fn)
	observability.RecordRPCCall(method, time.Since(start).Seconds(), err)
	return err
}

func (c *HTTPClient) retry(ctx context.Context, method string, fn func(context.Context) error) error {
	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var retryable bool
		lastErr, retryable = classify(method, err)
		if !retryable {
			return lastErr
		}
	}

	return fmt.Errorf("%w: max retries exceeded: %v", domain.ErrNetwork, lastErr)
}

// classify maps a go-ethereum client error onto the domain error kinds.
// HTTP status and transport failures are retryable; node errors are wrapped
// with domain.ErrNetwork, malformed responses with domain.ErrDecode.
func classify(method string, err error) (error, bool) {
	if errors.Is(err, ethereum.NotFound) {
		return fmt.Errorf("%s: %w", method, domain.ErrNotFound), false
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return fmt.Errorf("%s: unexpected status %d: %s", method, httpErr.StatusCode, httpErr.Body), true
	}

	var nodeErr rpc.Error
	if errors.As(err, &nodeErr) {
		return fmt.Errorf("%w: %s: %w", domain.ErrNetwork, method, &RPCError{Code: nodeErr.ErrorCode(), Message: nodeErr.Error()}), false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%s: http request: %v", method, err), true
	}

	// What remains is a body or result the client could not decode.
	return fmt.Errorf("%w: %s: %v", domain.ErrDecode, method, err), false
}

// BlockNumber returns the current head block number.
func (c *HTTPClient) BlockNumber(ctx context.Context) (uint64, error) {
	var n uint64
	err := c.call(ctx, "eth_blockNumber", func(ctx context.Context) error {
		var err error
		n, err = c.eth.BlockNumber(ctx)
		return err
	})
	return n, err
}

// GetLogs returns logs matching the filter.
func (c *HTTPClient) GetLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	var logs []types.Log
	err := c.call(ctx, "eth_getLogs", func(ctx context.Context) error {
		var err error
		logs, err = c.eth.FilterLogs(ctx, q)
		return err
	})
	return logs, err
}

// Call executes eth_call against the latest block.
func (c *HTTPClient) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	msg := ethereum.CallMsg{To: &to, Data: data}

	var out []byte
	err := c.call(ctx, "eth_call", func(ctx context.Context) error {
		var err error
		out, err = c.eth.CallContract(ctx, msg, nil)
		return err
	})
	return out, err
}

// BlockTime returns the Unix timestamp of a block.
// Returns domain.ErrNotFound if the node does not know the block.
func (c *HTTPClient) BlockTime(ctx context.Context, number uint64) (uint64, error) {
	var header *types.Header
	err := c.call(ctx, "eth_getBlockByNumber", func(ctx context.Context) error {
		var err error
		header, err = c.eth.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("block %d: %w", number, err)
	}
	return header.Time, nil
}
