package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DIGIX666/Arena/internal/amount"
	s3blob "github.com/DIGIX666/Arena/internal/blob/s3"
	"github.com/DIGIX666/Arena/internal/cache/redis"
	"github.com/DIGIX666/Arena/internal/chain"
	"github.com/DIGIX666/Arena/internal/config"
	"github.com/DIGIX666/Arena/internal/crypto"
	"github.com/DIGIX666/Arena/internal/domain"
	"github.com/DIGIX666/Arena/internal/engine"
	"github.com/DIGIX666/Arena/internal/notify"
	"github.com/DIGIX666/Arena/internal/oracle"
	"github.com/DIGIX666/Arena/internal/service"
	"github.com/DIGIX666/Arena/internal/store/postgres"
	"github.com/DIGIX666/Arena/internal/token"
)

// viewCacheTTL bounds how long a cached market view may be served.
const viewCacheTTL = 30 * time.Second

// Dependencies bundles what the application modes operate on. It is
// constructed by Wire and torn down by the returned cleanup function. Members
// a mode does not need stay nil.
type Dependencies struct {
	// Settlement
	Engine  *engine.Engine
	Service *service.ArenaService

	// In-process currencies
	Base      *token.MemoryLedger
	Secondary *token.MemoryLedger
	Fan       *token.MemoryLedger

	// Stores
	LedgerStore *postgres.LedgerStore
	AuditStore  domain.AuditStore

	// Redis
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	Archiver domain.Archiver

	Notifier   *notify.Notifier
	Principals *crypto.PrincipalAuth
}

// needsEngine returns true for modes that load the settlement ledger.
func needsEngine(mode string) bool {
	return mode == "serve" || mode == "report"
}

// needsS3 returns true for modes that write the archive.
func needsS3(mode string) bool {
	return mode == "serve" || mode == "archive"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
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

	deps := &Dependencies{}
	mode := strings.ToLower(cfg.Mode)
	if mode != "serve" && mode != "report" && mode != "archive" {
		return deps, cleanup, nil
	}

	// --- PostgreSQL ---
	var (
		audit    *postgres.AuditStore
		holdings domain.HoldingsStore
	)
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
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
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}

		pool := pgClient.Pool()
		deps.LedgerStore = postgres.NewLedgerStore(pool)
		audit = postgres.NewAuditStore(pool)
		deps.AuditStore = audit
		holdings = postgres.NewHoldingsStore(pool)
	}

	// --- Redis ---
	var (
		redisClient *redis.Client
		bus         *redis.SignalBus
		views       domain.MarketViewCache
	)
	if cfg.Redis.Enabled && mode != "archive" {
		c, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = c.Close() })
		redisClient = c

		deps.RateLimiter = redis.NewRateLimiter(c)
		deps.LockManager = redis.NewLockManager(c)
		bus = redis.NewSignalBus(c)
		deps.SignalBus = bus
		views = redis.NewViewCache(c, viewCacheTTL)
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled && needsS3(mode) && deps.LedgerStore != nil {
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
		if err := s3Client.Health(ctx); err != nil {
			return fail(fmt.Errorf("wire: %w", err))
		}
		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			s3blob.NewReader(s3Client),
			deps.LedgerStore,
			audit,
			audit,
		)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	if cfg.Server.PrincipalSecret != "" {
		deps.Principals = crypto.NewPrincipalAuth(cfg.Server.PrincipalSecret, cfg.Server.PrincipalWindow.Duration)
	}

	if !needsEngine(mode) {
		return deps, cleanup, nil
	}

	// --- Settlement engine ---
	params, err := EngineParams(cfg)
	if err != nil {
		return fail(err)
	}
	deps.Base = token.NewMemoryLedger(cfg.Ledger.BaseSymbol, amount.BaseDecimals)
	deps.Secondary = token.NewMemoryLedger(cfg.Ledger.SecondarySymbol, amount.SecondaryDecimals)
	deps.Fan = token.NewMemoryLedger(cfg.Ledger.FanSymbol, amount.BaseDecimals)
	if err := applyGenesis(cfg.Ledger.Genesis, params.Custody, deps.Base, deps.Secondary, deps.Fan); err != nil {
		return fail(err)
	}

	var fan domain.BalanceReader = deps.Fan
	if cfg.Chain.RPCURL != "" {
		reader, client, err := chain.Dial(ctx, cfg.Chain.RPCURL, common.HexToAddress(cfg.Chain.FanToken))
		if err != nil {
			return fail(fmt.Errorf("wire: chain: %w", err))
		}
		closers = append(closers, client.Close)
		fan = reader
	}

	engDeps := engine.Deps{
		Base:      token.NewCustodian(deps.Base, params.Custody),
		Secondary: token.NewCustodian(deps.Secondary, params.Custody),
		FanTokens: fan,
		Vouchers:  crypto.NewVerifier(VoucherDomain(cfg)),
	}
	if cfg.Oracle.Source == "redis" && redisClient != nil {
		o := redis.NewOracle(redisClient, cfg.Oracle.VolatilityKey, cfg.Oracle.RateKey, 2*params.Seasonal.CheckInterval)
		engDeps.Volatility, engDeps.Rates = o, o
	} else {
		rate, err := amount.Parse(cfg.Oracle.StaticRate, amount.SecondaryDecimals)
		if err != nil {
			return fail(fmt.Errorf("wire: oracle static_rate: %w", err))
		}
		o := oracle.NewStatic(uint64(cfg.Oracle.StaticVolatilityBps), rate)
		engDeps.Volatility, engDeps.Rates = o, o
	}

	deps.Engine, err = engine.New(params, engDeps, logger)
	if err != nil {
		return fail(fmt.Errorf("wire: engine: %w", err))
	}

	opts := service.Options{
		Books: []service.BalanceBook{deps.Base, deps.Secondary, deps.Fan},
		Allowances: map[engine.Currency]service.AllowanceBook{
			engine.CurrencyBase:      deps.Base,
			engine.CurrencySecondary: deps.Secondary,
		},
	}
	if deps.LedgerStore != nil {
		opts.Store = deps.LedgerStore
		opts.Audit = deps.AuditStore
		opts.Holdings = holdings
	}
	if redisClient != nil {
		opts.Bus = bus
		opts.Locks = deps.LockManager
		opts.Views = views
	}
	if deps.Notifier.Enabled() {
		opts.Notifier = deps.Notifier
	}
	deps.Service = service.NewArenaService(deps.Engine, opts, logger)

	if err := deps.Service.Restore(ctx); err != nil {
		return fail(fmt.Errorf("wire: %w", err))
	}
	if mode == "serve" {
		if err := seedResolvers(ctx, deps.Service, params.Operator, Resolvers(cfg)); err != nil {
			return fail(err)
		}
	}

	return deps, cleanup, nil
}

// applyGenesis credits the configured opening balances. Each account
// approves custody for its whole base and secondary balance.
func applyGenesis(genesis []config.GenesisConfig, custody common.Address, base, secondary, fan *token.MemoryLedger) error {
	for i, g := range genesis {
		account := common.HexToAddress(g.Account)
		books := []struct {
			ledger  *token.MemoryLedger
			value   string
			approve bool
		}{
			{base, g.Base, true},
			{secondary, g.Secondary, true},
			{fan, g.Fan, false},
		}
		for _, b := range books {
			if b.value == "" {
				continue
			}
			amt, err := amount.Parse(b.value, b.ledger.Decimals())
			if err != nil {
				return fmt.Errorf("wire: genesis[%d] %s: %w", i, b.ledger.Symbol(), err)
			}
			if err := b.ledger.Mint(account, amt); err != nil {
				return fmt.Errorf("wire: genesis[%d] %s: %w", i, b.ledger.Symbol(), err)
			}
			if b.approve {
				bal, _ := b.ledger.BalanceOf(context.Background(), account)
				if err := b.ledger.Approve(account, custody, bal); err != nil {
					return fmt.Errorf("wire: genesis[%d] %s approve: %w", i, b.ledger.Symbol(), err)
				}
			}
		}
	}
	return nil
}

// seedResolvers authorizes the configured resolvers that are not yet
// authorized.
func seedResolvers(ctx context.Context, svc *service.ArenaService, operator common.Address, resolvers []common.Address) error {
	for _, r := range resolvers {
		if svc.Engine().IsResolver(ctx, r) {
			continue
		}
		if _, err := svc.AuthorizeResolver(ctx, operator, r, true); err != nil {
			return fmt.Errorf("wire: authorize resolver %s: %w", r.Hex(), err)
		}
	}
	return nil
}
