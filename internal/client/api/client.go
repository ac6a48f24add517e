// Package api is the HTTP client core used by every stockwatch client
// component: bearer auth, response caching with conditional fetches,
// retry with backoff and one-shot session refresh on 401.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"stockwatch/internal/pkg/observable"

	"go.uber.org/zap"
)

const defaultTimeout = 30 * time.Second

// TokenSource supplies the current access token.
type TokenSource interface {
	Get() (string, bool)
}

// Authenticator refreshes the session after a 401. RefreshAccessToken must
// persist the new tokens before returning.
type Authenticator interface {
	RefreshAccessToken(ctx context.Context) (string, error)
	ForceLogout(ctx context.Context)
}

type Config struct {
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
	Retry    RetryPolicy
}

// Status is the in-flight request state.
type Status struct {
	Pending int
	Loading bool
}

// Client is constructed once per application and shared by reference.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	cache      *Cache
	retry      RetryPolicy
	logger     *zap.Logger

	authMu sync.RWMutex
	auth   Authenticator

	pendingMu sync.Mutex
	pending   int
	status    *observable.Subject[Status]

	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, tokens TokenSource, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Retry.BaseDelay <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		tokens:     tokens,
		cache:      NewCache(cfg.CacheTTL),
		retry:      cfg.Retry,
		logger:     logger.With(zap.String("component", "api")),
		status:     observable.NewSubject(Status{}),
		sleep:      sleepContext,
	}
}

// SetAuthenticator wires the session manager in after both are constructed.
func (c *Client) SetAuthenticator(a Authenticator) {
	c.authMu.Lock()
	c.auth = a
	c.authMu.Unlock()
}

func (c *Client) authenticator() Authenticator {
	c.authMu.RLock()
	defer c.authMu.RUnlock()
	return c.auth
}

func (c *Client) Cache() *Cache { return c.cache }

// Status exposes the pending counter and loading flag.
func (c *Client) Status() *observable.Subject[Status] { return c.status }

func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) Get(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return c.call(ctx, NewRequest(http.MethodGet, path, nil, opts...), out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.call(ctx, NewRequest(http.MethodPost, path, body, opts...), out)
}

func (c *Client) Put(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.call(ctx, NewRequest(http.MethodPut, path, body, opts...), out)
}

func (c *Client) Patch(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.call(ctx, NewRequest(http.MethodPatch, path, body, opts...), out)
}

func (c *Client) Delete(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return c.call(ctx, NewRequest(http.MethodDelete, path, nil, opts...), out)
}

func (c *Client) call(ctx context.Context, req *Request, out any) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

// Do runs req through the cache, the retry loop and the 401 refresh path.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	req.Method = strings.ToUpper(req.Method)

	fullURL, err := req.url(c.baseURL)
	if err != nil {
		return nil, requestError(err)
	}

	var key string
	if req.Cacheable() {
		if key, err = CacheKey(req.Method, fullURL, req.Params, req.Body); err != nil {
			return nil, requestError(err)
		}
		if e, ok := c.cache.Get(key); ok {
			return &Response{Status: http.StatusOK, Body: e.Payload, FromCache: true}, nil
		}
	}

	once := func() (*Response, error) { return c.attempt(ctx, req, fullURL, key) }

	var resp *Response
	if req.noRetry {
		resp, err = once()
	} else {
		resp, err = c.withRetry(ctx, req, once)
	}
	if err == nil {
		return resp, nil
	}

	apiErr, ok := AsError(err)
	if !ok || !apiErr.Unauthorized() || req.SkipAuthRefresh {
		return nil, err
	}
	auth := c.authenticator()
	if auth == nil {
		return nil, err
	}

	if _, refreshErr := auth.RefreshAccessToken(ctx); refreshErr != nil {
		c.logger.Warn("session refresh failed, logging out",
			zap.String("path", req.Path), zap.Error(refreshErr))
		auth.ForceLogout(ctx)
		return nil, err
	}

	// Exactly one retry with the new token; its failure is final.
	return once()
}

func (c *Client) trackStart() {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	c.pending++
	c.status.Set(Status{Pending: c.pending, Loading: true})
}

func (c *Client) trackDone() {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	if c.pending > 0 {
		c.pending--
	}
	c.status.Set(Status{Pending: c.pending, Loading: c.pending > 0})
}

// attempt performs one network round trip.
func (c *Client) attempt(ctx context.Context, req *Request, fullURL, key string) (*Response, error) {
	c.trackStart()
	defer c.trackDone()

	body, contentType, length, err := req.body()
	if err != nil {
		return nil, requestError(err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, fullURL, body)
	if err != nil {
		return nil, requestError(err)
	}
	if body != nil {
		httpReq.ContentLength = length
	}
	c.prepare(httpReq, req, contentType, key)

	res, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, requestError(ctxErr)
		}
		return nil, noResponseError(err)
	}
	defer res.Body.Close()

	var reader io.Reader = res.Body
	if req.onDownload != nil {
		reader = &progressReader{r: res.Body, total: res.ContentLength, fn: req.onDownload}
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, requestError(ctxErr)
		}
		return nil, noResponseError(err)
	}

	return c.handle(req, res, data, key)
}

// prepare is the request stage: headers, bearer token, conditional fetch.
func (c *Client) prepare(httpReq *http.Request, req *Request, contentType, key string) {
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")

	if c.tokens != nil {
		if tok, ok := c.tokens.Get(); ok {
			httpReq.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	if key != "" {
		if e, ok := c.cache.Peek(key); ok && e.ETag != "" {
			httpReq.Header.Set("If-None-Match", e.ETag)
		}
	}
}

// handle is the response stage.
func (c *Client) handle(req *Request, res *http.Response, data []byte, key string) (*Response, error) {
	if res.StatusCode == http.StatusNotModified && key != "" {
		if e, ok := c.cache.Peek(key); ok {
			return &Response{Status: http.StatusOK, Header: res.Header, Body: e.Payload, FromCache: true}, nil
		}
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, statusError(res.StatusCode, data)
	}

	if key != "" {
		c.cache.Set(key, data, res.Header.Get("ETag"))
	}
	return &Response{Status: res.StatusCode, Header: res.Header, Body: data}, nil
}

// IsCanceled reports whether err came from the caller's context.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
