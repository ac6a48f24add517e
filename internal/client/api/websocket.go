package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
)

// Dialer opens websocket connections. *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, header http.Header) (*websocket.Conn, *http.Response, error)
}

// WebSocketURL maps the REST base URL onto ws/wss and appends path.
func (c *Client) WebSocketURL(path string) (string, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	return u.String(), nil
}

// CreateWebSocket opens an authenticated duplex connection to path.
func (c *Client) CreateWebSocket(ctx context.Context, path string) (*websocket.Conn, error) {
	return c.DialWebSocket(ctx, websocket.DefaultDialer, path)
}

// DialWebSocket is CreateWebSocket with an explicit dialer. The token goes
// both in the Authorization header and the `token` query parameter, since
// some proxies strip headers on upgrade.
func (c *Client) DialWebSocket(ctx context.Context, d Dialer, path string) (*websocket.Conn, error) {
	wsURL, err := c.WebSocketURL(path)
	if err != nil {
		return nil, requestError(err)
	}

	header := make(http.Header)
	if c.tokens != nil {
		if tok, ok := c.tokens.Get(); ok {
			header.Set("Authorization", "Bearer "+tok)
			sep := "?"
			if strings.Contains(wsURL, "?") {
				sep = "&"
			}
			wsURL += sep + "token=" + url.QueryEscape(tok)
		}
	}

	conn, res, err := d.DialContext(ctx, wsURL, header)
	if err != nil {
		if res != nil {
			return nil, &Error{Kind: KindStatus, Status: res.StatusCode,
				Message: fmt.Sprintf("websocket handshake failed: %v", err), Err: err}
		}
		return nil, noResponseError(err)
	}
	return conn, nil
}
