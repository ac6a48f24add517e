package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Request describes one call through the Client.
type Request struct {
	Method string
	Path   string
	Params map[string]any
	Body   any
	Header http.Header

	// NoCache opts a GET/HEAD out of the response cache.
	NoCache bool
	// SkipAuthRefresh returns a 401 as-is instead of refreshing the
	// session. Set for the auth endpoints themselves.
	SkipAuthRefresh bool

	// set by Upload and Download
	payload    *payload
	onDownload ProgressFunc
	noRetry    bool
}

// RequestOption customizes a Request built by the verb helpers.
type RequestOption func(*Request)

func WithParams(params map[string]any) RequestOption {
	return func(r *Request) { r.Params = params }
}

func WithHeader(key, value string) RequestOption {
	return func(r *Request) {
		if r.Header == nil {
			r.Header = make(http.Header)
		}
		r.Header.Set(key, value)
	}
}

func NoCache() RequestOption {
	return func(r *Request) { r.NoCache = true }
}

func SkipAuthRefresh() RequestOption {
	return func(r *Request) { r.SkipAuthRefresh = true }
}

// NoRetry sends the request once, outside the generic retry loop.
func NoRetry() RequestOption {
	return func(r *Request) { r.noRetry = true }
}

// NewRequest builds a Request and applies opts.
func NewRequest(method, path string, body any, opts ...RequestOption) *Request {
	r := &Request{Method: method, Path: path, Body: body}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Cacheable reports whether the response may be stored and served from cache.
func (r *Request) Cacheable() bool {
	return (r.Method == http.MethodGet || r.Method == http.MethodHead) && !r.NoCache && r.payload == nil
}

func (r *Request) url(base string) (string, error) {
	u, err := url.Parse(base + r.Path)
	if err != nil {
		return "", err
	}
	if len(r.Params) > 0 {
		q := u.Query()
		for k, v := range r.Params {
			switch vv := v.(type) {
			case []string:
				for _, s := range vv {
					q.Add(k, s)
				}
			case nil:
			default:
				q.Set(k, fmt.Sprint(vv))
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// body returns a fresh reader for every attempt.
func (r *Request) body() (io.Reader, string, int64, error) {
	if r.payload != nil {
		return r.payload.reader(), r.payload.contentType, int64(len(r.payload.data)), nil
	}
	if r.Body == nil {
		return nil, "", 0, nil
	}
	b, err := json.Marshal(r.Body)
	if err != nil {
		return nil, "", 0, fmt.Errorf("encode request body: %w", err)
	}
	return bytes.NewReader(b), "application/json", int64(len(b)), nil
}

// Response is a completed call. FromCache is set when Body came from the
// cache, either directly or through a 304.
type Response struct {
	Status    int
	Header    http.Header
	Body      []byte
	FromCache bool
}

// Decode unmarshals the JSON body into out. A nil out or empty body is a no-op.
func (r *Response) Decode(out any) error {
	if out == nil || len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		return requestError(fmt.Errorf("decode response: %w", err))
	}
	return nil
}
