// Package cache owns the per-project store and the in-memory views built on
// top of it.
package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/matheus3301/livechat/internal/project"
	"github.com/matheus3301/livechat/internal/store"
	"go.uber.org/zap"
)

// ErrUnavailable is returned for writes while the store could not be opened.
var ErrUnavailable = errors.New("local cache unavailable")

// Cache is the explicit replacement for a process-wide store singleton. It is
// constructed once, initialized for one project and passed to the components
// that need it.
type Cache struct {
	logger *zap.Logger
	dbPath func(projectID string) string

	mu        sync.RWMutex
	projectID string
	db        *store.DB
	chats     *ChatList
	initErr   error
}

// New creates an uninitialized cache.
func New(logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{logger: logger, dbPath: project.DBPath}
}

// Init opens and migrates the store for projectID. On failure the cache stays
// unavailable: reads return empty results and writes return ErrUnavailable.
func (c *Cache) Init(projectID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		if c.projectID == projectID {
			return nil
		}
		return fmt.Errorf("cache already initialized for project %q", c.projectID)
	}
	c.projectID = projectID

	db, err := c.open(c.dbPath(projectID))
	if err != nil {
		c.initErr = err
		c.logger.Error("local cache unavailable", zap.Error(err), zap.String("project", projectID))
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	chats := NewChatList()
	if err := chats.Load(db); err != nil {
		_ = db.Close()
		c.initErr = err
		c.logger.Error("load chat list", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	db.OnChange(chats)

	c.db = db
	c.chats = chats
	c.initErr = nil
	return nil
}

func (c *Cache) open(path string) (*store.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	db, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	res, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	c.logger.Info("store ready",
		zap.String("path", path),
		zap.Uint("schema_version", res.Version),
		zap.Bool("dirty", res.Dirty))
	return db, nil
}

// Close closes the store. The cache becomes unavailable.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	c.chats = nil
	return err
}

// Available reports whether the store is open.
func (c *Cache) Available() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db != nil
}

// ProjectID returns the project passed to Init.
func (c *Cache) ProjectID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.projectID
}

// InitErr returns why Init failed, if it did.
func (c *Cache) InitErr() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initErr
}

// DB returns the open store or ErrUnavailable.
func (c *Cache) DB() (*store.DB, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.db == nil {
		return nil, ErrUnavailable
	}
	return c.db, nil
}

// Chats returns the chat list, most recent first. Empty when unavailable.
func (c *Cache) Chats() []store.Chat {
	c.mu.RLock()
	chats := c.chats
	c.mu.RUnlock()
	if chats == nil {
		return nil
	}
	return chats.Snapshot()
}

// Messages returns the messages of a chat in display order. Empty when
// unavailable or on a read error, which is logged.
func (c *Cache) Messages(chatNumber string) []store.Message {
	db, err := c.DB()
	if err != nil {
		return nil
	}
	msgs, err := db.GetMessages(chatNumber)
	if err != nil {
		c.logger.Error("read messages", zap.Error(err), zap.String("chat", chatNumber))
		return nil
	}
	return msgs
}

// Chat returns one chat, or nil when unknown or unavailable.
func (c *Cache) Chat(number string) *store.Chat {
	db, err := c.DB()
	if err != nil {
		return nil
	}
	chat, err := db.GetChat(number)
	if err != nil {
		c.logger.Error("read chat", zap.Error(err), zap.String("chat", number))
		return nil
	}
	return chat
}
