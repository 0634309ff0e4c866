// Package console is a terminal client for the moderation websocket.
package console

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/dkeye/Moderation/internal/adapters/signal"
	"github.com/dkeye/Moderation/internal/domain"
	"github.com/gorilla/websocket"
)

// Client talks to the REST API and keeps the session cookie for the socket.
type Client struct {
	base string
	jar  http.CookieJar
	http *http.Client
}

func NewClient(base string) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	base = strings.TrimRight(base, "/")
	return &Client{base: base, jar: jar, http: &http.Client{Jar: jar}}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, e.Error)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) Login(ctx context.Context, user string) error {
	return c.do(ctx, http.MethodPost, "/api/session", map[string]string{"user_id": user}, nil)
}

func (c *Client) Members(ctx context.Context, roomID domain.RoomID) ([]domain.Member, error) {
	var out struct {
		Members []domain.Member `json:"members"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/rooms/"+url.PathEscape(string(roomID))+"/members", nil, &out); err != nil {
		return nil, err
	}
	return out.Members, nil
}

// Frame is an outbound server frame with its payload left undecoded.
type Frame struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
}

type Conn interface {
	Send(in signal.Inbound) error
	Next() (Frame, error)
	Close() error
}

type wsConn struct {
	conn *websocket.Conn
}

// Dial opens the room socket with the session cookie from Login.
func (c *Client) Dial(ctx context.Context, roomID domain.RoomID) (Conn, error) {
	u, err := url.Parse(c.base)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/api/rooms/" + string(roomID) + "/ws"

	dialer := websocket.Dialer{Jar: c.jar}
	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", u.Redacted(), resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}
	return &wsConn{conn: conn}, nil
}

func (w *wsConn) Send(in signal.Inbound) error { return w.conn.WriteJSON(in) }

func (w *wsConn) Next() (Frame, error) {
	var f Frame
	err := w.conn.ReadJSON(&f)
	return f, err
}

func (w *wsConn) Close() error { return w.conn.Close() }
