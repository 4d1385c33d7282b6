package stratumcore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	rpcRetryDelay = 100 * time.Millisecond
)

var rpcRetryMaxDelay = 5 * time.Second
var rpcRetryJitterFrac = 0.2

// errBlockRejected wraps a submitblock reason string from the node.
var errBlockRejected = errors.New("submitblock rejected")

type rpcRequest struct {
	Jsonrpc string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
	ID     int             `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type httpStatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *httpStatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("rpc http status %s: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("rpc http status %s", e.Status)
}

// rpcObserver is notified after every RPC attempt.
type rpcObserver interface {
	ObserveRPC(method string, elapsed time.Duration, err error)
}

// RPCClient is a minimal bitcoind JSON-RPC client. It implements
// TemplateSource and submits found blocks.
type RPCClient struct {
	url      string
	user     string
	pass     string
	client   *http.Client
	idMu     sync.Mutex
	nextID   int
	observer rpcObserver

	connected   atomic.Bool
	unhealthy   atomic.Bool
	disconnects atomic.Uint64
	reconnects  atomic.Uint64

	lastErrMu sync.RWMutex
	lastErr   error
}

func NewRPCClient(cfg NodeConfig) *RPCClient {
	// One shared transport so calls reuse connections.
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   60 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		IdleConnTimeout:       60 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &RPCClient{
		url:  cfg.RPCURL,
		user: cfg.RPCUser,
		pass: cfg.RPCPass,
		client: &http.Client{
			Timeout:   60 * time.Second,
			Transport: transport,
		},
		nextID: 1,
	}
}

func (c *RPCClient) setObserver(o rpcObserver) {
	c.observer = o
}

func (c *RPCClient) callCtx(ctx context.Context, method string, params interface{}, out interface{}) error {
	retryCount := 0
	for {
		if ctx.Err() != nil {
			c.recordLastError(ctx.Err())
			return ctx.Err()
		}
		err := c.performCall(ctx, method, params, out)
		if err == nil {
			if c.unhealthy.Swap(false) {
				c.reconnects.Add(1)
				logger.Info("rpc reconnected", "endpoint", c.endpointLabel())
			}
			c.connected.Store(true)
			c.recordLastError(nil)
			return nil
		}
		c.recordLastError(err)
		if isRPCConnectivityError(err) && !c.unhealthy.Swap(true) {
			c.disconnects.Add(1)
			logger.Warn("rpc disconnected", "endpoint", c.endpointLabel(), "error", err)
		}
		if shouldRetryRPC(err) {
			retryCount++
			if err := sleepContext(ctx, rpcRetryDelayWithBackoff(retryCount)); err != nil {
				return err
			}
			continue
		}
		return err
	}
}

func (c *RPCClient) endpointLabel() string {
	raw := strings.TrimSpace(c.url)
	if raw == "" {
		return "(unknown)"
	}
	u, err := url.Parse(raw)
	if err == nil && u.Host != "" {
		return u.Host
	}
	// Never include user/pass.
	if idx := strings.Index(raw, "@"); idx != -1 && idx+1 < len(raw) {
		raw = raw[idx+1:]
	}
	raw = strings.TrimLeft(raw, "/")
	if raw == "" {
		return "(unknown)"
	}
	return raw
}

func (c *RPCClient) Healthy() bool {
	if c == nil {
		return false
	}
	return c.connected.Load() && !c.unhealthy.Load()
}

func (c *RPCClient) Disconnects() uint64 {
	return c.disconnects.Load()
}

func (c *RPCClient) Reconnects() uint64 {
	return c.reconnects.Load()
}

func isRPCConnectivityError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusUnauthorized || statusErr.StatusCode >= 500
	}
	return false
}

func (c *RPCClient) performCall(ctx context.Context, method string, params interface{}, out interface{}) (err error) {
	c.idMu.Lock()
	id := c.nextID
	c.nextID++
	c.idMu.Unlock()

	body, err := fastJSONMarshal(rpcRequest{
		Jsonrpc: "1.0",
		ID:      id,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	if c.user != "" || c.pass != "" {
		req.SetBasicAuth(c.user, c.pass)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	if c.observer != nil {
		defer func() { c.observer.ObserveRPC(method, time.Since(start), err) }()
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		// bitcoind reports RPC errors with a non-200 status; surface the RPC
		// error rather than the status when there is one.
		var rpcResp rpcResponse
		if err := fastJSONUnmarshal(data, &rpcResp); err == nil && rpcResp.Error != nil {
			return rpcResp.Error
		}
		return &httpStatusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(bytes.TrimSpace(data))}
	}

	if len(data) == 0 {
		return fmt.Errorf("rpc empty response body")
	}

	var rpcResp rpcResponse
	if err := fastJSONUnmarshal(data, &rpcResp); err != nil {
		return fmt.Errorf("decode rpc response: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if out == nil {
		return nil
	}
	return fastJSONUnmarshal(rpcResp.Result, out)
}

func shouldRetryRPC(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500
	}
	return false
}

func (c *RPCClient) recordLastError(err error) {
	c.lastErrMu.Lock()
	c.lastErr = err
	c.lastErrMu.Unlock()
}

func (c *RPCClient) LastError() error {
	c.lastErrMu.RLock()
	defer c.lastErrMu.RUnlock()
	return c.lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func rpcRetryDelayWithBackoff(attempt int) time.Duration {
	if attempt <= 0 {
		return rpcRetryDelay
	}
	delay := rpcRetryDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if rpcRetryMaxDelay > 0 && delay >= rpcRetryMaxDelay {
			delay = rpcRetryMaxDelay
			break
		}
	}
	if rpcRetryJitterFrac > 0 {
		low := 1 - rpcRetryJitterFrac
		high := 1 + rpcRetryJitterFrac
		jitter := low + (high-low)*rand.Float64()
		delay = time.Duration(float64(delay) * jitter)
		if delay <= 0 {
			delay = time.Millisecond
		}
	}
	return delay
}

var gbtParams = []interface{}{map[string]interface{}{"rules": []string{"segwit"}}}

// FetchTemplate calls getblocktemplate with the segwit rule set.
func (c *RPCClient) FetchTemplate(ctx context.Context) (GetBlockTemplateResult, error) {
	var tpl GetBlockTemplateResult
	if err := c.callCtx(ctx, "getblocktemplate", gbtParams, &tpl); err != nil {
		return GetBlockTemplateResult{}, fmt.Errorf("getblocktemplate: %w", err)
	}
	return tpl, nil
}

// SubmitBlock hands a serialized block to the node. A non-null result is the
// node's rejection reason.
func (c *RPCClient) SubmitBlock(ctx context.Context, blockHex string) error {
	var result *string
	if err := c.callCtx(ctx, "submitblock", []interface{}{blockHex}, &result); err != nil {
		return fmt.Errorf("submitblock: %w", err)
	}
	if result != nil && *result != "" {
		return fmt.Errorf("%w: %s", errBlockRejected, *result)
	}
	return nil
}

// GetBestBlockHash returns the hash of the node's chain tip.
func (c *RPCClient) GetBestBlockHash(ctx context.Context) (string, error) {
	var hash string
	err := c.callCtx(ctx, "getbestblockhash", nil, &hash)
	return hash, err
}
