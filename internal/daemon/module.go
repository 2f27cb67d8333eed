package daemon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/livechat/internal/api"
	"github.com/matheus3301/livechat/internal/bus"
	"github.com/matheus3301/livechat/internal/cache"
	"github.com/matheus3301/livechat/internal/config"
	"github.com/matheus3301/livechat/internal/ingest"
	"github.com/matheus3301/livechat/internal/lock"
	"github.com/matheus3301/livechat/internal/logging"
	"github.com/matheus3301/livechat/internal/outbox"
	"github.com/matheus3301/livechat/internal/project"
	"github.com/matheus3301/livechat/internal/push"
	"github.com/matheus3301/livechat/internal/remote"
	"github.com/matheus3301/livechat/internal/status"
	"github.com/matheus3301/livechat/internal/store"
	intsync "github.com/matheus3301/livechat/internal/sync"
	"github.com/matheus3301/livechat/internal/wire"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Params holds the resolved project configuration passed to the fx module.
type Params struct {
	ProjectID  string
	SocketPath string // optional override for testing; empty = use default
	Config     config.Config
	LogLevel   zapcore.Level
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideTracker,
			provideLock,
			provideCache,
			provideView,
			provideRemote,
			providePush,
			provideEngines,
			provideChatService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

// restAPI is the remote surface the engines depend on.
type restAPI interface {
	intsync.Fetcher
	outbox.TextSender
}

var errNoAPI = fmt.Errorf("%w: api base_url is not configured", remote.ErrServer)

// offlineAPI stands in for the REST client when no base URL is configured.
type offlineAPI struct{}

func (offlineAPI) FetchChats(context.Context, remote.Tokens, string, int64) (*wire.SyncPage, error) {
	return nil, errNoAPI
}

func (offlineAPI) SendMessage(context.Context, remote.Tokens, remote.SendRequest) (store.Message, error) {
	return store.Message{}, errNoAPI
}

// engines groups the components that need an open store. All fields are
// nil when the cache is unavailable.
type engines struct {
	Ingestor     *ingest.Ingestor
	Engine       *ingest.Engine
	Sender       *outbox.Sender
	Orchestrator *intsync.Orchestrator
}

func (p Params) tokens() remote.Tokens {
	return remote.Tokens{Access: p.Config.Auth.AccessToken, Refresh: p.Config.Auth.RefreshToken}
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(project.LogPath(p.ProjectID), p.ProjectID, p.LogLevel)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideTracker(m *status.Machine, b *bus.Bus, logger *zap.Logger) *status.Tracker {
	return status.NewTracker(m, b, logger)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := project.EnsureDir(p.ProjectID); err != nil {
		return nil, err
	}
	logger.Info("acquiring project lock", zap.String("project", p.ProjectID))
	l, err := lock.Acquire(project.Dir(p.ProjectID))
	if err != nil {
		return nil, err
	}
	logger.Info("project lock acquired")
	return l, nil
}

// provideCache opens the project store. A store that cannot be opened does
// not stop the daemon: it runs DEGRADED and answers Unavailable.
func provideCache(p Params, _ *lock.Lock, b *bus.Bus, tracker *status.Tracker, logger *zap.Logger) *cache.Cache {
	c := cache.New(logger)
	if err := c.Init(p.ProjectID); err != nil {
		tracker.StoreUnavailable(err.Error())
		return c
	}
	db, _ := c.DB()
	db.OnChange(bus.NewNotifier(b))
	return c
}

func provideView(b *bus.Bus) *cache.ViewState {
	return cache.NewViewState(b)
}

func provideRemote(p Params, logger *zap.Logger) (restAPI, error) {
	cfg := p.Config.API
	if cfg.BaseURL == "" {
		logger.Warn("api base_url not configured, running offline")
		return offlineAPI{}, nil
	}
	return remote.New(remote.Config{
		BaseURL:   cfg.BaseURL,
		SyncPath:  cfg.SyncPath,
		SendPath:  cfg.SendPath,
		Timeout:   cfg.Timeout.Duration,
		CryptoKey: p.Config.Crypto.Key,
	}, logger)
}

func providePush(p Params, b *bus.Bus, logger *zap.Logger) (*push.Client, error) {
	var opener push.Opener
	if key := p.Config.Crypto.Key; key != "" {
		env, err := remote.NewEnvelope(key)
		if err != nil {
			return nil, err
		}
		opener = env
	}
	token := func() string { return p.Config.Auth.AccessToken }
	return push.New(push.Config{
		URL:           p.Config.Push.URL,
		ReconnectBase: p.Config.Push.ReconnectBase.Duration,
		ReconnectMax:  p.Config.Push.ReconnectMax.Duration,
	}, b, token, opener, logger), nil
}

func provideEngines(p Params, c *cache.Cache, view *cache.ViewState, rest restAPI, b *bus.Bus, logger *zap.Logger) engines {
	db, err := c.DB()
	if err != nil {
		logger.Warn("store unavailable, sync and ingest disabled", zap.Error(err))
		return engines{}
	}
	ing := ingest.NewIngestor(db, logger)
	return engines{
		Ingestor:     ing,
		Engine:       ingest.NewEngine(ing, b, view, logger),
		Sender:       outbox.NewSender(db, rest, ing, b, p.ProjectID, p.tokens, logger),
		Orchestrator: intsync.NewOrchestrator(db, rest, b, p.ProjectID, logger),
	}
}

func provideChatService(p Params, c *cache.Cache, view *cache.ViewState, e engines, m *status.Machine, pc *push.Client, b *bus.Bus, logger *zap.Logger) *api.ChatService {
	return api.NewChatService(api.Deps{
		ProjectID: p.ProjectID,
		Cache:     c,
		View:      view,
		Ingestor:  e.Ingestor,
		Sender:    e.Sender,
		Syncer:    e.Orchestrator,
		Tokens:    p.tokens,
		Machine:   m,
		Push:      pc,
		Bus:       b,
		Logger:    logger,
	})
}

func registerLifecycle(lc fx.Lifecycle, p Params, srv *Server, lk *lock.Lock, c *cache.Cache, e engines, pc *push.Client, tracker *status.Tracker, logger *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			tracker.Start(ctx)

			if e.Engine != nil {
				e.Engine.Start(ctx)
				e.Sender.Start(ctx)
				e.Orchestrator.Start(ctx, p.tokens)
			}

			// Start gRPC server in background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			pc.Start(ctx)

			if e.Orchestrator != nil {
				go initialSync(ctx, e.Orchestrator, p.tokens(), logger)
			}
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			pc.Stop()
			srv.Stop(stopCtx)
			if e.Engine != nil {
				e.Orchestrator.Stop()
				e.Sender.Stop()
				e.Engine.Stop()
			}
			tracker.Stop()
			cancel()
			if err := c.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}

func initialSync(ctx context.Context, o *intsync.Orchestrator, tokens remote.Tokens, logger *zap.Logger) {
	start := time.Now()
	sum, err := o.SyncChats(ctx, tokens)
	switch {
	case errors.Is(err, intsync.ErrInProgress):
	case err != nil:
		logger.Warn("initial sync failed", zap.Error(err))
	default:
		logger.Info("initial sync complete",
			zap.Int("pages", sum.Pages),
			zap.Int("chats", sum.Chats),
			zap.Duration("took", time.Since(start)))
	}
}
