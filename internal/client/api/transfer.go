package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync"
)

// ProgressFunc receives bytes transferred so far and the total, which is
// -1 when unknown.
type ProgressFunc func(done, total int64)

type payload struct {
	data        []byte
	contentType string
	onProgress  ProgressFunc
}

func (p *payload) reader() io.Reader {
	r := bytes.NewReader(p.data)
	if p.onProgress == nil {
		return r
	}
	return &progressReader{r: r, total: int64(len(p.data)), fn: p.onProgress}
}

type progressReader struct {
	r     io.Reader
	total int64
	done  int64
	fn    ProgressFunc
	mu    sync.Mutex
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.mu.Lock()
		p.done += int64(n)
		done := p.done
		p.mu.Unlock()
		p.fn(done, p.total)
	}
	return n, err
}

// File is one multipart file part.
type File struct {
	Field    string
	Name     string
	Content  io.Reader
	Extra    map[string]string
	Progress ProgressFunc
}

// Upload posts a multipart form. It goes through auth and 401 refresh but
// not the generic retry loop.
func (c *Client) Upload(ctx context.Context, path string, f File, out any, opts ...RequestOption) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range f.Extra {
		if err := mw.WriteField(k, v); err != nil {
			return requestError(fmt.Errorf("write field %s: %w", k, err))
		}
	}
	field := f.Field
	if field == "" {
		field = "file"
	}
	part, err := mw.CreateFormFile(field, f.Name)
	if err != nil {
		return requestError(err)
	}
	if _, err := io.Copy(part, f.Content); err != nil {
		return requestError(fmt.Errorf("read upload: %w", err))
	}
	if err := mw.Close(); err != nil {
		return requestError(err)
	}

	req := NewRequest(http.MethodPost, path, nil, opts...)
	req.payload = &payload{data: buf.Bytes(), contentType: mw.FormDataContentType(), onProgress: f.Progress}
	req.noRetry = true
	return c.call(ctx, req, out)
}

// Download fetches path as raw bytes, bypassing the cache.
func (c *Client) Download(ctx context.Context, path string, progress ProgressFunc, opts ...RequestOption) ([]byte, error) {
	req := NewRequest(http.MethodGet, path, nil, opts...)
	req.NoCache = true
	req.noRetry = true
	req.onDownload = progress
	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
