// Package push maintains the live update socket and republishes its events
// on the bus.
package push

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/livechat/internal/bus"
	"github.com/matheus3301/livechat/internal/wire"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const (
	DefaultReconnectBase = time.Second
	DefaultReconnectMax  = 30 * time.Second
)

// Config configures the push channel.
type Config struct {
	URL           string
	ReconnectBase time.Duration
	ReconnectMax  time.Duration
}

// Opener decrypts a frame. remote.Envelope satisfies it.
type Opener interface {
	Open(body []byte) ([]byte, error)
}

// Disconnect is the payload of push.disconnected events.
type Disconnect struct {
	Reason string
	Retry  time.Duration
}

// Client reads push frames from a websocket, reconnecting with backoff until
// stopped.
type Client struct {
	cfg    Config
	bus    *bus.Bus
	token  func() string
	opener Opener
	logger *zap.Logger

	mu        sync.Mutex
	connected bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a push client. token is called on every dial; opener may be nil.
func New(cfg Config, b *bus.Bus, token func() string, opener Opener, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ReconnectBase <= 0 {
		cfg.ReconnectBase = DefaultReconnectBase
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = DefaultReconnectMax
	}
	if token == nil {
		token = func() string { return "" }
	}
	return &Client{cfg: cfg, bus: b, token: token, opener: opener, logger: logger}
}

// Start runs the connect/read/reconnect loop in the background. It is a
// no-op when no URL is configured.
func (c *Client) Start(ctx context.Context) {
	if c.cfg.URL == "" {
		c.logger.Info("push channel disabled, no url configured")
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()
	go c.run(ctx)
}

// Stop closes the connection and waits for the loop to exit.
func (c *Client) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Connected reports whether a socket is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)
	recon := newReconnector(c.cfg.ReconnectBase, c.cfg.ReconnectMax)

	for {
		err := c.session(ctx, recon)
		if ctx.Err() != nil {
			return
		}
		delay := recon.nextDelay()
		c.logger.Warn("push channel down, reconnecting",
			zap.Error(err),
			zap.Int("attempt", recon.attempt),
			zap.Duration("delay", delay))
		c.publish(bus.KindPushDisconnected, Disconnect{Reason: err.Error(), Retry: delay})

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

// session dials once and reads until the connection fails.
func (c *Client) session(ctx context.Context, recon *reconnector) error {
	header := http.Header{}
	if tok := c.token(); tok != "" {
		header.Set("Authorization", "Bearer "+tok)
	}
	conn, _, err := websocket.Dial(ctx, socketURL(c.cfg.URL), &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()
	conn.SetReadLimit(4 << 20)

	recon.markConnected()
	c.setConnected(true)
	defer c.setConnected(false)
	c.logger.Info("push channel connected", zap.String("url", c.cfg.URL))
	c.publish(bus.KindPushConnected, nil)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			return fmt.Errorf("websocket read: %w", err)
		}
		c.handleFrame(data)
	}
}

// handleFrame publishes every event in a frame. A frame is one event object
// or an array of them; malformed events are skipped individually.
func (c *Client) handleFrame(data []byte) {
	if c.opener != nil {
		plain, err := c.opener.Open(data)
		if err != nil {
			c.logger.Warn("dropping undecryptable push frame", zap.Error(err))
			return
		}
		data = plain
	}

	root := gjson.ParseBytes(data)
	if !root.IsArray() {
		c.handleEvent(data)
		return
	}
	root.ForEach(func(_, el gjson.Result) bool {
		c.handleEvent([]byte(el.Raw))
		return true
	})
}

func (c *Client) handleEvent(raw []byte) {
	evt, err := wire.DecodePushEvent(raw)
	if err != nil {
		c.logger.Warn("skipping malformed push event", zap.Error(err), zap.Int("bytes", len(raw)))
		return
	}
	kind := bus.KindPushMessage
	if evt.Kind == wire.KindStatus {
		kind = bus.KindPushStatus
	}
	c.publish(kind, evt)
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

func (c *Client) publish(kind string, payload any) {
	if c.bus != nil {
		c.bus.Publish(bus.NewEvent(kind, payload))
	}
}

func socketURL(u string) string {
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}
