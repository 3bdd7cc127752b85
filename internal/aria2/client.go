// Package aria2 talks to an aria2 download manager over its JSON-RPC
// WebSocket interface.
package aria2

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/michaelscutari/dredge/internal/logging"
)

const defaultTimeout = 10 * time.Second

// ErrClosed is returned by calls on a closed client.
var ErrClosed = errors.New("aria2: client closed")

// RPCError is an error object returned by aria2.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("aria2: rpc error %d: %s", e.Code, e.Message)
}

// Options locates the aria2 RPC endpoint.
type Options struct {
	Host   string
	Port   int
	Secure bool
	Path   string
	Token  string

	// Timeout bounds a call when the context has no deadline.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Endpoint returns the WebSocket URL for the options.
func (o Options) Endpoint() string {
	scheme := "ws"
	if o.Secure {
		scheme = "wss"
	}
	p := o.Path
	if p == "" {
		p = "/jsonrpc"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	u := url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(o.Host, strconv.Itoa(o.Port)),
		Path:   p,
	}
	return u.String()
}

// Version is the result of aria2.getVersion.
type Version struct {
	Version         string   `json:"version"`
	EnabledFeatures []string `json:"enabledFeatures"`
}

// Client is an aria2 JSON-RPC client. The connection is dialed on first use
// and calls are serialized over it. A failed call drops the connection; the
// next call redials.
type Client struct {
	opts   Options
	log    *slog.Logger
	dialer websocket.Dialer

	mu     sync.Mutex
	conn   *websocket.Conn
	nextID uint64
	closed bool
}

// NewClient creates a client. No connection is made until the first call.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Client{
		opts:   opts,
		log:    logger.With("component", "aria2"),
		dialer: websocket.Dialer{HandshakeTimeout: opts.Timeout},
	}
}

// Endpoint returns the URL the client dials.
func (c *Client) Endpoint() string {
	return c.opts.Endpoint()
}

// GetVersion calls aria2.getVersion.
func (c *Client) GetVersion(ctx context.Context) (*Version, error) {
	var v Version
	if err := c.call(ctx, "aria2.getVersion", nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// AddURI queues uri for download and returns the download's GID. dir is
// sent as the download directory when non-empty.
func (c *Client) AddURI(ctx context.Context, uri, dir string) (string, error) {
	params := []any{[]string{uri}}
	if dir != "" {
		params = append(params, map[string]string{"dir": dir})
	}
	var gid string
	if err := c.call(ctx, "aria2.addUri", params, &gid); err != nil {
		return "", err
	}
	return gid, nil
}

// Close closes the connection. Later calls return ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type response struct {
	ID     string          `json:"id"`
	Method string          `json:"method"` // set on notifications
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	conn, err := c.connect(ctx)
	if err != nil {
		return err
	}

	if c.opts.Token != "" {
		params = append([]any{"token:" + c.opts.Token}, params...)
	}
	if params == nil {
		params = []any{}
	}
	c.nextID++
	req := request{JSONRPC: "2.0", ID: strconv.FormatUint(c.nextID, 10), Method: method, Params: params}

	// Unblock reads and writes when ctx ends.
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
		conn.SetWriteDeadline(time.Now())
	})
	defer stop()

	if err := conn.WriteJSON(req); err != nil {
		c.drop()
		return c.ctxErr(ctx, fmt.Errorf("aria2: send %s: %w", method, err))
	}

	for {
		var resp response
		if err := conn.ReadJSON(&resp); err != nil {
			c.drop()
			return c.ctxErr(ctx, fmt.Errorf("aria2: read %s: %w", method, err))
		}
		if resp.Method != "" {
			c.log.Debug("notification", "method", resp.Method)
			continue
		}
		if resp.ID != req.ID {
			c.log.Debug("stale response", "id", resp.ID, "want", req.ID)
			continue
		}
		if resp.Error != nil {
			return resp.Error
		}
		if out == nil || len(resp.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("aria2: decode %s result: %w", method, err)
		}
		return nil
	}
}

// connect returns the open connection, dialing if needed. c.mu must be held.
func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	if c.conn != nil {
		return c.conn, nil
	}

	endpoint := c.opts.Endpoint()
	conn, resp, err := c.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("aria2: websocket upgrade failed (%d)", resp.StatusCode)
		}
		return nil, fmt.Errorf("aria2: dial %s: %w", endpoint, err)
	}
	c.log.Debug("connected", "endpoint", endpoint)
	c.conn = conn
	return conn, nil
}

// drop closes a connection left in an unknown state. c.mu must be held.
func (c *Client) drop() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) ctxErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
