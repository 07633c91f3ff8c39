package daemon

import (
	"context"

	"github.com/matheus3301/wpplink/internal/api"
	"github.com/matheus3301/wpplink/internal/attachment"
	"github.com/matheus3301/wpplink/internal/backup"
	"github.com/matheus3301/wpplink/internal/bus"
	"github.com/matheus3301/wpplink/internal/config"
	"github.com/matheus3301/wpplink/internal/journal"
	"github.com/matheus3301/wpplink/internal/linksync"
	"github.com/matheus3301/wpplink/internal/lock"
	"github.com/matheus3301/wpplink/internal/logging"
	"github.com/matheus3301/wpplink/internal/metrics"
	"github.com/matheus3301/wpplink/internal/session"
	"github.com/matheus3301/wpplink/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	SocketPath  string // optional override for testing; empty = use default
	// Config overrides the file at session.ConfigPath when set.
	Config *config.Config
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideMetrics,
			provideBackupManager,
			provideAttachments,
			provideJanitor,
			provideExecutor,
			provideLinkManager,
			provideRecorder,
			provideLinkService,
			NewServer,
			NewMetricsServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	if p.Config != nil {
		return p.Config, nil
	}
	return session.LoadConfig()
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName, "linkd")
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName), "linkd")
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

// provideStore depends on the lock so the database is never opened by a
// second daemon.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.AppDBPath(p.SessionName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("from", result.From), zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideMetrics(b *bus.Bus) (*prometheus.Registry, *metrics.Metrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "wpplink_bus_dropped_events_total",
		Help: "Events not delivered because a subscriber was full.",
	}, func() float64 { return float64(b.Dropped()) }))
	return reg, metrics.New(reg)
}

func provideBackupManager(cfg *config.Config, db *store.DB, logger *zap.Logger, m *metrics.Metrics, b *bus.Bus) *backup.Manager {
	return backup.NewManager(db, cfg.Backup.MinExpireThreshold.Duration, logger.Named("backup"), m, b).
		WithSelfACI(cfg.Account.ACI)
}

func provideAttachments(cfg *config.Config, db *store.DB, logger *zap.Logger) (*attachment.Store, error) {
	client, err := attachment.NewS3Client(context.Background(), cfg.Storage)
	if err != nil {
		return nil, err
	}
	return attachment.NewStore(client, cfg.Storage.Bucket, cfg.Storage.CDN, logger.Named("attachment")).WithTracker(db), nil
}

func provideJanitor(cfg *config.Config, db *store.DB, s *attachment.Store, logger *zap.Logger) *attachment.Janitor {
	return attachment.NewJanitor(db, s, cfg.Storage.TransferTTL.Duration, logger.Named("janitor"))
}

func provideExecutor(cfg *config.Config, logger *zap.Logger) linksync.RequestExecutor {
	return linksync.NewHTTPExecutor(cfg.Relay.BaseURL, cfg.Account.ACI, cfg.Account.DeviceID, cfg.Account.Password, logger.Named("relay"))
}

func provideLinkManager(cfg *config.Config, exec linksync.RequestExecutor, backups *backup.Manager, attachments *attachment.Store, logger *zap.Logger, m *metrics.Metrics, b *bus.Bus) *linksync.Manager {
	return linksync.NewManager(linksync.Config{
		Enabled:      cfg.Link.Enabled,
		Primary:      cfg.Account.Primary,
		WaitTimeout:  cfg.Link.WaitTimeout.Duration,
		RequestSlack: cfg.Link.RequestSlack.Duration,
	}, exec, backups, attachments, logger.Named("linksync"), m, b)
}

func provideRecorder(db *store.DB, b *bus.Bus, logger *zap.Logger) *journal.Recorder {
	return journal.NewRecorder(db, b, logger.Named("journal"))
}

func provideLinkService(p Params, backups *backup.Manager, link *linksync.Manager, db *store.DB, logger *zap.Logger) *api.LinkService {
	return api.NewLinkService(p.SessionName, session.BackupDir(p.SessionName), backups, link, db, logger.Named("api"))
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, ms *MetricsServer, lk *lock.Lock, db *store.DB, svc *api.LinkService, recorder *journal.Recorder, janitor *attachment.Janitor, cfg *config.Config, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Journal first so nothing published by a session is missed.
			recorder.Start(context.Background())
			if cfg.Account.Primary {
				janitor.Start(context.Background())
			}

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()
			ms.Start()

			logger.Info("daemon started",
				zap.Bool("primary", cfg.Account.Primary),
				zap.Bool("link_enabled", cfg.Link.Enabled),
			)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			svc.Close()
			srv.Stop(ctx)
			ms.Stop(ctx)
			janitor.Stop()
			recorder.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
