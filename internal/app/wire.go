package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/predictmarket/internal/access"
	"github.com/alanyoungcy/predictmarket/internal/archive"
	s3blob "github.com/alanyoungcy/predictmarket/internal/blob/s3"
	"github.com/alanyoungcy/predictmarket/internal/cache/redis"
	"github.com/alanyoungcy/predictmarket/internal/config"
	"github.com/alanyoungcy/predictmarket/internal/crypto"
	"github.com/alanyoungcy/predictmarket/internal/domain"
	"github.com/alanyoungcy/predictmarket/internal/events"
	"github.com/alanyoungcy/predictmarket/internal/flash"
	"github.com/alanyoungcy/predictmarket/internal/keeper"
	"github.com/alanyoungcy/predictmarket/internal/ledger"
	"github.com/alanyoungcy/predictmarket/internal/market"
	"github.com/alanyoungcy/predictmarket/internal/notify"
	"github.com/alanyoungcy/predictmarket/internal/oracle"
	"github.com/alanyoungcy/predictmarket/internal/server/handler"
	"github.com/alanyoungcy/predictmarket/internal/server/middleware"
	"github.com/alanyoungcy/predictmarket/internal/server/ws"
	"github.com/alanyoungcy/predictmarket/internal/store/memory"
	"github.com/alanyoungcy/predictmarket/internal/store/postgres"
	"github.com/alanyoungcy/predictmarket/internal/store/sqlite"
	"github.com/alanyoungcy/predictmarket/internal/token"
)

// hostLockKey serialises ledger updates across replicas.
const hostLockKey = "ledger:update"

// Dependencies bundles everything the service goroutines need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Ledger
	Store  domain.KVStore
	Host   *ledger.Host
	Market *market.Market
	Owners *access.Ownable
	Token  *token.Service

	// Owner identity; nil when no key is configured.
	Signer *crypto.Signer

	// Collaborators
	Prices      domain.PriceFeed
	Receivers   *flash.Registry
	RateLimiter domain.RateLimiter
	ReplayGuard domain.ReplayGuard
	Dispatcher  *events.Dispatcher
	Hub         *ws.Hub

	// Optional background services; nil when disabled.
	Keeper   *keeper.Keeper
	Archiver *archive.Archiver

	// Checks feed the health endpoint.
	Checks map[string]handler.Pinger
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{Checks: make(map[string]handler.Pinger)}

	// --- Redis (only when a component needs it) ---
	var redisClient *redis.Client
	if cfg.NeedsRedis() {
		c, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = c.Close() })
		deps.Checks["redis"] = c.Ping
		redisClient = c
	}

	// --- Ledger backend ---
	store, err := openStore(ctx, cfg, redisClient, deps.Checks, &closers)
	if err != nil {
		return fail(err)
	}
	deps.Store = store

	var hostOpts []ledger.HostOption
	if cfg.Storage.Lock {
		hostOpts = append(hostOpts, ledger.WithLocker(redis.NewLockManager(redisClient), hostLockKey, cfg.Storage.LockTTL.Duration))
	}
	deps.Host = ledger.NewHost(store, logger, hostOpts...)
	deps.Owners = access.New(deps.Host)

	// --- Owner key ---
	if cfg.Owner.Configured() {
		signer, err := crypto.LoadSigner(crypto.KeyConfig{
			Hex:      cfg.Owner.PrivateKey,
			File:     cfg.Owner.EncryptedKeyPath,
			Password: cfg.Owner.KeyPassword,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: owner key: %w", err))
		}
		deps.Signer = signer
	}

	// --- Oracle ---
	prices, err := newPriceFeed(cfg, redisClient, logger)
	if err != nil {
		return fail(err)
	}
	deps.Prices = prices

	// --- Events ---
	deps.Dispatcher = events.NewDispatcher(logger, cfg.Events.Buffer)
	var bus domain.SignalBus
	if cfg.Events.Bus {
		bus = redis.NewSignalBus(redisClient)
		deps.Dispatcher.AddSink(events.NewBusSink(bus))
	}

	// --- Market ---
	m, err := openMarket(ctx, cfg, deps, logger)
	if err != nil {
		return fail(err)
	}
	deps.Market = m
	deps.Token = token.NewService(deps.Host, m.Config().Token, deps.Owners)

	// The hub follows the bus when one is wired so every replica's clients
	// see every event; otherwise it is a local sink.
	deps.Hub = ws.NewHub(bus, logger, ws.Config{Market: m.Config().Address, StartedAt: time.Now().UTC()})
	if bus == nil {
		deps.Dispatcher.AddSink(deps.Hub)
	}

	// --- Notifications ---
	notifier, err := newNotifier(cfg.Notify, logger)
	if err != nil {
		return fail(err)
	}
	if notifier != nil {
		deps.Dispatcher.AddSink(notifier)
	}

	// --- Flash receivers ---
	deps.Receivers = flash.NewRegistry()
	for _, a := range cfg.Flash.Repayers {
		if err := deps.Receivers.Register(flash.NewRepayer(common.HexToAddress(a), logger)); err != nil {
			return fail(fmt.Errorf("wire: flash repayer %s: %w", a, err))
		}
	}

	// --- Rate limiter ---
	if cfg.Server.RateLimit > 0 {
		if redisClient != nil {
			deps.RateLimiter = redis.NewRateLimiter(redisClient)
		} else {
			deps.RateLimiter = middleware.NewLocalLimiter()
		}
	}

	// --- Replay guard ---
	// Shared through Redis when connected so replicas refuse each other's
	// already-used signatures.
	if redisClient != nil {
		deps.ReplayGuard = redis.NewReplayGuard(redisClient)
	} else {
		deps.ReplayGuard = middleware.NewLocalReplayGuard()
	}

	// --- Keeper ---
	if cfg.Keeper.Enabled {
		if deps.Signer == nil {
			return fail(errors.New("wire: keeper needs an owner key"))
		}
		opts := []keeper.Option{keeper.WithLogger(logger)}
		if cfg.Keeper.Period.Duration > 0 {
			opts = append(opts, keeper.WithPeriod(cfg.Keeper.Period.Duration))
		}
		if cfg.Keeper.Lock {
			opts = append(opts, keeper.WithLocker(redis.NewLockManager(redisClient), cfg.Keeper.LockKey))
		}
		deps.Keeper = keeper.New(m, deps.Signer.Address(), opts...)
	}

	// --- S3 archive ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		closers = append(closers, func() { _ = s3Client.Close() })
		deps.Checks["s3"] = s3Client.Health
		deps.Archiver = archive.New(m, deps.Host, s3blob.NewWriter(s3Client), cfg.Archive.Batch, logger,
			archive.WithReader(s3blob.NewReader(s3Client)))
	}

	return deps, cleanup, nil
}

// openStore selects the ledger backend named by storage.backend.
func openStore(ctx context.Context, cfg *config.Config, rc *redis.Client, checks map[string]handler.Pinger, closers *[]func()) (domain.KVStore, error) {
	var store domain.KVStore
	switch strings.ToLower(cfg.Storage.Backend) {
	case "memory":
		store = memory.New()
	case "sqlite":
		s, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("wire: sqlite: %w", err)
		}
		store = s
	case "postgres":
		pg, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return nil, fmt.Errorf("wire: postgres: %w", err)
		}
		*closers = append(*closers, pg.Close)
		if cfg.Postgres.RunMigrations {
			if err := pg.RunMigrations(ctx); err != nil {
				return nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
		checks["postgres"] = pg.Pool().Ping
		store = postgres.NewKVStore(pg.Pool())
	case "redis":
		store = redis.NewKVStore(rc)
	default:
		return nil, fmt.Errorf("wire: unknown storage backend %q", cfg.Storage.Backend)
	}
	*closers = append(*closers, func() { _ = store.Close() })
	checks["ledger"] = func(ctx context.Context) error {
		_, err := store.Has(ctx, "cfg")
		return err
	}
	return store, nil
}

func newPriceFeed(cfg *config.Config, rc *redis.Client, logger *slog.Logger) (domain.PriceFeed, error) {
	if strings.EqualFold(cfg.Oracle.Backend, "static") {
		feed := oracle.NewStaticFeed()
		if cfg.Oracle.StaticPrice != "" {
			price, err := domain.ParseAmount(cfg.Oracle.StaticPrice)
			if err != nil {
				return nil, fmt.Errorf("wire: oracle static_price: %w", err)
			}
			feed.Set(cfg.Market.OracleAsset, price, uint64(time.Now().Unix()))
		}
		return feed, nil
	}

	var feed domain.PriceFeed = oracle.NewHTTPFeed(oracle.HTTPConfig{
		BaseURL:      cfg.Oracle.BaseURL,
		APIKey:       cfg.Oracle.APIKey,
		RatePerSec:   cfg.Oracle.RatePerSec,
		Burst:        cfg.Oracle.Burst,
		Timeout:      cfg.Oracle.Timeout.Duration,
		RetryBackoff: cfg.Oracle.RetryBackoff.Duration,
	}, logger)
	if maxAge := cfg.Oracle.CacheMaxAge.Duration; maxAge > 0 {
		feed = oracle.NewCachedFeed(feed, redis.NewPriceCache(rc), maxAge, logger)
	}
	return feed, nil
}

// openMarket loads the deployed market, deploying it with the owner key on
// first start.
func openMarket(ctx context.Context, cfg *config.Config, deps *Dependencies, logger *slog.Logger) (*market.Market, error) {
	mdeps := market.Deps{
		Host:   deps.Host,
		Auth:   deps.Owners,
		Prices: deps.Prices,
		Clock:  domain.SystemClock{},
		Events: deps.Dispatcher,
		Logger: logger,
	}
	m, err := market.Open(ctx, mdeps)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, domain.ErrNotInitialized) {
		return nil, fmt.Errorf("wire: open market: %w", err)
	}

	if deps.Signer == nil {
		return nil, errors.New("wire: market not deployed and no owner key configured")
	}
	mcfg, err := cfg.Market.Domain()
	if err != nil {
		return nil, fmt.Errorf("wire: %w", err)
	}
	m, err = market.Deploy(ctx, mdeps, deps.Signer.Address(), mcfg)
	if err != nil {
		return nil, fmt.Errorf("wire: deploy market: %w", err)
	}
	logger.InfoContext(ctx, "market deployed",
		slog.String("address", mcfg.Address.Hex()),
		slog.String("owner", deps.Signer.Address().Hex()),
	)
	return m, nil
}

func newNotifier(cfg config.NotifyConfig, logger *slog.Logger) (*notify.Notifier, error) {
	var senders []notify.Sender
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		tg, err := notify.NewTelegramSender(notify.TelegramConfig{
			Token:  cfg.TelegramToken,
			ChatID: cfg.TelegramChatID,
		})
		if err != nil {
			return nil, fmt.Errorf("wire: %w", err)
		}
		senders = append(senders, tg)
	}
	if cfg.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.DiscordWebhookURL))
	}
	if len(senders) == 0 {
		return nil, nil
	}
	return notify.NewNotifier(senders, cfg.Events, logger), nil
}
