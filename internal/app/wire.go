package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/veritaslabs/arbiterd/internal/archive/s3"
	"github.com/veritaslabs/arbiterd/internal/cache/redis"
	"github.com/veritaslabs/arbiterd/internal/chain"
	"github.com/veritaslabs/arbiterd/internal/config"
	"github.com/veritaslabs/arbiterd/internal/domain"
	"github.com/veritaslabs/arbiterd/internal/metrics"
	"github.com/veritaslabs/arbiterd/internal/notify"
	"github.com/veritaslabs/arbiterd/internal/oracle"
	"github.com/veritaslabs/arbiterd/internal/registry"
	"github.com/veritaslabs/arbiterd/internal/server/handler"
	"github.com/veritaslabs/arbiterd/internal/store/postgres"
)

// Dependencies bundles everything the application modes need. Constructed by
// Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	AuditStore domain.AuditStore

	// Redis
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Core services
	Registry *registry.Registry
	Metrics  *metrics.Metrics
	Notifier *notify.Notifier

	// Chain
	Markets    *chain.MarketContract
	Settlement *chain.SettlementConsumer
	HasWallet  bool

	// Oracle
	Oracle *oracle.Adapter

	// Cold storage
	Archiver   *s3blob.Archiver
	BlobReader domain.BlobReader

	// Health probes for /api/health.
	Pingers []handler.Pinger
}

// Wire constructs all concrete dependency implementations from the
// configuration and returns them with a cleanup function for shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Metrics: metrics.New(),
	}

	// --- PostgreSQL ---
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
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	disputeStore := postgres.NewDisputeStore(pool)
	voteStore := postgres.NewVoteStore(pool)
	payoutStore := postgres.NewPayoutStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)
	deps.Pingers = append(deps.Pingers, handler.Pinger{
		Name: "postgres",
		Ping: pool.Ping,
	})

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	cacheTTL := time.Duration(cfg.Redis.CacheTTLMinutes) * time.Minute
	streamMaxLen := int64(cfg.Redis.StreamMaxLen)

	disputeCache := redis.NewDisputeCache(redisClient, cacheTTL)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient, streamMaxLen)
	deps.Pingers = append(deps.Pingers, handler.Pinger{
		Name: "redis",
		Ping: redisClient.Ping,
	})

	// --- Registry ---
	minDispute, _ := cfg.Registry.MinDisputeStake()
	minVote, _ := cfg.Registry.MinVoteStake()
	reg, err := registry.New(
		disputeStore,
		voteStore,
		payoutStore,
		deps.AuditStore,
		disputeCache,
		deps.SignalBus,
		domain.RegistryParams{
			MinimumDisputeStake: minDispute,
			MinimumVoteStake:    minVote,
			VotingPeriod:        cfg.Registry.VotingPeriod.Duration,
			PlatformFeeBps:      cfg.Registry.PlatformFeeBps,
			ResolutionAuthority: cfg.Registry.ResolutionAuthority,
		},
		logger,
	)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: registry: %w", err)
	}
	deps.Registry = reg

	// --- Chain ---
	chainClient, err := chain.New(ctx, chain.ClientConfig{
		RPCURL:    cfg.Chain.RPCURL,
		ChainID:   cfg.Chain.ChainID,
		TxTimeout: cfg.Chain.TxTimeout.Duration,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: chain: %w", err)
	}
	closers = append(closers, chainClient.Close)

	// A wallet is only configured when a signing key is available. Without
	// one the market contract is read-only, which is all serve mode needs.
	var wallet *chain.Wallet
	if cfg.Chain.PrivateKey != "" || cfg.Chain.EncryptedKeyPath != "" {
		wallet, err = chain.NewWallet(chain.KeyConfig{
			RawPrivateKey:    cfg.Chain.PrivateKey,
			EncryptedKeyPath: cfg.Chain.EncryptedKeyPath,
			KeyPassword:      cfg.Chain.KeyPassword,
		}, chainClient.ChainID())
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: wallet: %w", err)
		}
		deps.HasWallet = true
	}

	deps.Markets, err = chain.NewMarketContract(chainClient, wallet, cfg.Chain.MarketContract, cfg.Chain.GasLimit)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: market contract: %w", err)
	}

	tokens, err := chain.NewTokenReader(chainClient)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: token reader: %w", err)
	}
	deps.Settlement = chain.NewSettlementConsumer(deps.Markets, tokens)

	// --- Oracle ---
	if cfg.Oracle.BaseURL != "" {
		llm := oracle.NewLLMClient(oracle.LLMConfig{
			BaseURL: cfg.Oracle.BaseURL,
			APIKey:  cfg.Oracle.APIKey,
			Model:   cfg.Oracle.Model,
			Timeout: cfg.Oracle.Timeout.Duration,
		})
		var price *oracle.PriceClient
		if cfg.Oracle.PriceAPIURL != "" {
			price = oracle.NewPriceClient(oracle.PriceConfig{
				BaseURL: cfg.Oracle.PriceAPIURL,
				APIKey:  cfg.Oracle.PriceAPIKey,
				Timeout: cfg.Oracle.Timeout.Duration,
			})
		}
		deps.Oracle = oracle.NewAdapter(llm, price, logger)
	}

	// --- S3 cold storage ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.Archive.Endpoint,
			Region:         cfg.Archive.Region,
			Bucket:         cfg.Archive.Bucket,
			AccessKey:      cfg.Archive.AccessKey,
			SecretKey:      cfg.Archive.SecretKey,
			UseSSL:         cfg.Archive.UseSSL,
			ForcePathStyle: cfg.Archive.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		writer := s3blob.NewWriter(s3Client)
		deps.Archiver = s3blob.NewArchiver(writer, reg, payoutStore, deps.AuditStore, logger, s3blob.ArchiverConfig{
			RetentionDays: cfg.Archive.RetentionDays,
			Interval:      cfg.Archive.Interval.Duration,
		})
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Pingers = append(deps.Pingers, handler.Pinger{
			Name: "s3",
			Ping: s3Client.Health,
		})
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
	deps.Notifier = notify.New(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
