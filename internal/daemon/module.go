package daemon

import (
	"context"
	"time"

	"github.com/nestiq/chatsync/internal/auth"
	"github.com/nestiq/chatsync/internal/bridge"
	"github.com/nestiq/chatsync/internal/bus"
	"github.com/nestiq/chatsync/internal/cache"
	"github.com/nestiq/chatsync/internal/config"
	"github.com/nestiq/chatsync/internal/conversation"
	"github.com/nestiq/chatsync/internal/lock"
	"github.com/nestiq/chatsync/internal/logging"
	"github.com/nestiq/chatsync/internal/receipt"
	"github.com/nestiq/chatsync/internal/resolver"
	"github.com/nestiq/chatsync/internal/rest"
	"github.com/nestiq/chatsync/internal/session"
	"github.com/nestiq/chatsync/internal/socket"
	"github.com/nestiq/chatsync/internal/status"
	intsync "github.com/nestiq/chatsync/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideConfig,
			provideBus,
			provideStateMachine,
			provideLock,
			provideCredentials,
			provideRESTClient,
			provideStore,
			provideResolver,
			provideChannel,
			provideReceipts,
			provideBridge,
			provideCache,
			provideMirrorEngine,
			provideWatcher,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideConfig(logger *zap.Logger) (*config.Config, error) {
	cfg, err := config.Load(session.ConfigPath())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger.Info("config loaded",
		zap.String("role", cfg.Identity.Role),
		zap.String("peer", cfg.Watch.PeerID))
	return cfg, nil
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideCredentials(p Params) (*auth.Credentials, error) {
	return auth.Load(session.CredentialsPath(p.SessionName))
}

func provideRESTClient(cfg *config.Config, creds *auth.Credentials) *rest.Client {
	timeout := time.Duration(cfg.API.TimeoutSeconds) * time.Second
	return rest.NewClient(cfg.API.BaseURL, creds, timeout)
}

func provideStore() *conversation.Store {
	return conversation.NewStore()
}

// participants maps the configured identity onto the client/agent pair.
func participants(cfg *config.Config) (clientID, agentID string) {
	if cfg.Identity.Role == string(conversation.RoleClient) {
		return cfg.Identity.UserID, cfg.Watch.PeerID
	}
	return cfg.Watch.PeerID, cfg.Identity.UserID
}

func fallbacks(cfg *config.Config) conversation.Fallbacks {
	fb := conversation.Fallbacks{}
	if cfg.Identity.Role == string(conversation.RoleClient) {
		fb.ClientName = cfg.Identity.DisplayName
		fb.ClientEmail = cfg.Identity.Email
		fb.ClientPhone = cfg.Identity.Phone
	} else {
		fb.AgentName = cfg.Identity.DisplayName
		fb.AgentEmail = cfg.Identity.Email
	}
	return fb
}

func provideResolver(cfg *config.Config, client *rest.Client, logger *zap.Logger) *resolver.Resolver {
	clientID, agentID := participants(cfg)
	return resolver.New(client, clientID, agentID, cfg.Watch.PropertyID, fallbacks(cfg), logger)
}

func provideChannel(cfg *config.Config, m *status.Machine, b *bus.Bus, logger *zap.Logger) *socket.Channel {
	return socket.NewChannel(cfg.Channel.URL, m, b, logger)
}

func provideReceipts(cfg *config.Config, client *rest.Client, ch *socket.Channel, store *conversation.Store, logger *zap.Logger) *receipt.Coordinator {
	return receipt.New(client, ch, store, conversation.Role(cfg.Identity.Role), cfg.Identity.UserID, logger)
}

func provideBridge(cfg *config.Config, ch *socket.Channel, m *status.Machine, res *resolver.Resolver, rc *receipt.Coordinator, store *conversation.Store, b *bus.Bus, logger *zap.Logger) *bridge.Bridge {
	return bridge.New(ch, m, res, rc, store, b, conversation.Role(cfg.Identity.Role), logger)
}

func provideCache(p Params, logger *zap.Logger) (*cache.DB, error) {
	dbPath := session.CacheDBPath(p.SessionName)
	db, err := cache.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("cache initialized", zap.String("path", dbPath))
	return db, nil
}

func provideMirrorEngine(db *cache.DB, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(db, b, logger)
}

func provideWatcher(res *resolver.Resolver, br *bridge.Bridge, rc *receipt.Coordinator, client *rest.Client, store *conversation.Store, b *bus.Bus, logger *zap.Logger) *Watcher {
	return NewWatcher(res, br, rc, client, store, b, logger)
}

func registerLifecycle(lc fx.Lifecycle, sd fx.Shutdowner, lk *lock.Lock, ch *socket.Channel, br *bridge.Bridge, engine *intsync.Engine, w *Watcher, db *cache.DB, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// Start mirror engine (subscribes to conversation.* bus events).
			engine.Start(context.Background())

			ch.RegisterFrameHandler(br.HandleFrame)
			ch.RegisterRejoinHook(br.Rejoin)
			if err := ch.Connect(ctx); err != nil {
				return err
			}

			// Resolve and join in the background; dial-time work only in OnStart.
			go func() {
				if err := w.Open(context.Background()); err != nil {
					logger.Error("conversation open failed", zap.Error(err))
					_ = sd.Shutdown()
				}
			}()

			return nil
		},
		OnStop: func(_ context.Context) error {
			if err := br.Close(); err != nil {
				logger.Warn("error leaving room", zap.Error(err))
			}
			ch.Close()
			engine.Stop()
			_ = db.Close()
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
