// Package remote is the REST collaborator: the paginated chat-sync endpoint
// and the outgoing send endpoint.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/matheus3301/livechat/internal/store"
	"github.com/matheus3301/livechat/internal/wire"
	"go.uber.org/zap"
)

var (
	// ErrServer marks an `{"error": true}` payload or a non-2xx response.
	ErrServer = errors.New("server error")
	// ErrTokenExpired marks a rejected or locally expired access token.
	ErrTokenExpired = errors.New("access token expired")
)

const (
	DefaultSyncPath = "/chat/sync"
	DefaultSendPath = "/chat/send"
	DefaultTimeout  = 30 * time.Second
)

// Config configures a Client.
type Config struct {
	BaseURL  string
	SyncPath string
	SendPath string
	Timeout  time.Duration
	// CryptoKey is a hex-encoded 32-byte key; empty disables the envelope.
	CryptoKey string
}

// Client talks to the REST API.
type Client struct {
	baseURL    string
	syncPath   string
	sendPath   string
	httpClient *http.Client
	envelope   *Envelope
	logger     *zap.Logger
	now        func() time.Time
}

// New creates a client from cfg.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("remote: base URL is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		syncPath:   cfg.SyncPath,
		sendPath:   cfg.SendPath,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
		now:        time.Now,
	}
	if c.syncPath == "" {
		c.syncPath = DefaultSyncPath
	}
	if c.sendPath == "" {
		c.sendPath = DefaultSendPath
	}
	if c.httpClient.Timeout == 0 {
		c.httpClient.Timeout = DefaultTimeout
	}
	if cfg.CryptoKey != "" {
		env, err := NewEnvelope(cfg.CryptoKey)
		if err != nil {
			return nil, err
		}
		c.envelope = env
	}
	return c, nil
}

// FetchChats requests one page of the chat-list snapshot starting after lastID.
func (c *Client) FetchChats(ctx context.Context, tokens Tokens, projectID string, lastID int64) (*wire.SyncPage, error) {
	body, err := c.post(ctx, tokens, c.syncPath, map[string]any{
		"project_id": projectID,
		"last_id":    lastID,
	})
	if err != nil {
		return nil, err
	}
	page, err := wire.DecodeSyncPage(body)
	if err != nil {
		return nil, err
	}
	if page.Skipped > 0 {
		c.logger.Warn("skipped malformed chat records",
			zap.Int("skipped", page.Skipped),
			zap.Int64("last_id", lastID))
	}
	return page, nil
}

// SendRequest is an outgoing text message.
type SendRequest struct {
	ProjectID   string
	ChatNumber  string
	Text        string
	ClientMsgID string
}

// SendMessage posts a text message and returns the server's record of it.
func (c *Client) SendMessage(ctx context.Context, tokens Tokens, req SendRequest) (store.Message, error) {
	body, err := c.post(ctx, tokens, c.sendPath, map[string]any{
		"project_id":    req.ProjectID,
		"number":        req.ChatNumber,
		"message_type":  "text",
		"message":       req.Text,
		"client_msg_id": req.ClientMsgID,
	})
	if err != nil {
		return store.Message{}, err
	}
	m, err := wire.DecodeServerMessage(body)
	if err != nil {
		return store.Message{}, err
	}
	if m.ChatNumber == "" {
		m.ChatNumber = req.ChatNumber
	}
	if m.Type == "" {
		m.Type = store.DirectionOut
	}
	return m, nil
}

func (c *Client) post(ctx context.Context, tokens Tokens, path string, payload any) ([]byte, error) {
	if err := CheckToken(tokens.Access, c.now()); err != nil {
		return nil, err
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	if c.envelope != nil {
		if b, err = c.envelope.Seal(b); err != nil {
			return nil, fmt.Errorf("seal request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if tokens.Access != "" {
		req.Header.Set("Authorization", "Bearer "+tokens.Access)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("%w: %s returned 401", ErrTokenExpired, path)
	}
	if c.envelope != nil {
		if body, err = c.envelope.Open(body); err != nil {
			return nil, err
		}
	}
	if msg, ok := wire.ServerError(body); ok {
		return nil, fmt.Errorf("%w: %s", ErrServer, msg)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%w: %s returned %d", ErrServer, path, resp.StatusCode)
	}
	return body, nil
}
