package app

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/pavilion/internal/access"
	s3blob "github.com/alanyoungcy/pavilion/internal/blob/s3"
	"github.com/alanyoungcy/pavilion/internal/cache/redis"
	"github.com/alanyoungcy/pavilion/internal/config"
	"github.com/alanyoungcy/pavilion/internal/crypto"
	"github.com/alanyoungcy/pavilion/internal/domain"
	"github.com/alanyoungcy/pavilion/internal/events"
	"github.com/alanyoungcy/pavilion/internal/events/kafka"
	"github.com/alanyoungcy/pavilion/internal/notify"
	"github.com/alanyoungcy/pavilion/internal/payment/erc20"
	"github.com/alanyoungcy/pavilion/internal/payment/memtoken"
	"github.com/alanyoungcy/pavilion/internal/server/handler"
	"github.com/alanyoungcy/pavilion/internal/service"
	"github.com/alanyoungcy/pavilion/internal/store/memory"
	"github.com/alanyoungcy/pavilion/internal/store/postgres"
	"github.com/alanyoungcy/pavilion/internal/units"
)

// Dependencies bundles everything the server mode needs. Optional parts are
// nil when their backend is disabled.
type Dependencies struct {
	Engine   *service.Engine
	Guard    *access.Owner
	Audit    domain.AuditStore
	Decimals uint8

	// Redis
	SignalBus   domain.SignalBus
	RateLimiter domain.RateLimiter

	// Archiver is set when object storage is enabled.
	Archiver *s3blob.Archiver

	// Checks are reported by GET /api/health.
	Checks map[string]handler.Check
}

// Wire builds the dependencies for cfg and returns a cleanup function that
// releases them in reverse order.
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

	deps := &Dependencies{
		Decimals: uint8(cfg.Token.Decimals),
		Checks:   make(map[string]handler.Check),
	}

	// --- Operator ---
	key, err := operatorKey(cfg)
	if err != nil {
		return fail(fmt.Errorf("wire: operator key: %w", err))
	}
	controller, err := operatorAddress(cfg, key)
	if err != nil {
		return fail(fmt.Errorf("wire: operator: %w", err))
	}
	deps.Guard, err = access.NewOwner(controller)
	if err != nil {
		return fail(fmt.Errorf("wire: access guard: %w", err))
	}

	// --- Ledger store ---
	var store domain.LedgerStore
	switch cfg.Store.Backend {
	case "postgres":
		pg, err := openPostgres(ctx, cfg)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, pg.Close)
		if cfg.Postgres.RunMigrations {
			if err := pg.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}
		store = postgres.NewLedgerStore(pg.Pool())
		deps.Audit = postgres.NewAuditStore(pg.Pool())
		deps.Checks["postgres"] = func(ctx context.Context) error { return pg.Pool().Ping(ctx) }
	default:
		store = memory.New()
		deps.Audit = memory.NewAuditStore()
	}

	// --- Payment gateway ---
	var gateway domain.PaymentGateway
	switch cfg.Token.Backend {
	case "erc20":
		gw, err := erc20.Dial(ctx, cfg.Token.RPCURL, erc20.Config{
			Token:          common.HexToAddress(cfg.Token.Address),
			Key:            key,
			ChainID:        chainID(cfg.Token.ChainID),
			ConfirmTimeout: cfg.Token.ConfirmTimeout.Duration,
		}, logger)
		if err != nil {
			return fail(fmt.Errorf("wire: erc20: %w", err))
		}
		closers = append(closers, gw.Close)
		if onChain, err := gw.Decimals(ctx); err != nil {
			logger.WarnContext(ctx, "wire: could not read token decimals", slog.String("error", err.Error()))
		} else if onChain != deps.Decimals {
			return fail(fmt.Errorf("wire: token has %d decimals, config says %d", onChain, deps.Decimals))
		}
		deps.Checks["token"] = func(ctx context.Context) error {
			_, err := gw.PoolBalance(ctx)
			return err
		}
		gateway = gw
		logger.InfoContext(ctx, "wire: erc20 gateway ready",
			slog.String("token", cfg.Token.Address),
			slog.String("pool", gw.Pool().Hex()),
		)
	default:
		tok := memtoken.New(common.HexToAddress(cfg.Token.PoolAddress), deps.Decimals)
		if err := seedBalances(tok, cfg.Token.DevBalances, deps.Decimals); err != nil {
			return fail(fmt.Errorf("wire: dev balances: %w", err))
		}
		gateway = tok
	}

	// --- Redis ---
	var publishers []domain.Publisher
	var locks domain.LockManager
	if cfg.Redis.Enabled {
		rc, err := redis.New(ctx, redis.ClientConfig{
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
		closers = append(closers, func() { _ = rc.Close() })

		bus := redis.NewSignalBus(rc)
		deps.SignalBus = bus
		deps.RateLimiter = redis.NewRateLimiter(rc)
		locks = redis.NewLockManager(rc)
		publishers = append(publishers, bus)
		deps.Checks["redis"] = rc.Ping
	}

	// --- Kafka ---
	if cfg.Kafka.Enabled {
		kp, err := kafka.NewPublisher(kafka.Config{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			BatchTimeout: cfg.Kafka.BatchTimeout.Duration,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: kafka: %w", err))
		}
		closers = append(closers, func() { _ = kp.Close() })
		publishers = append(publishers, kp)
	}

	// --- Notifications ---
	if sink := notifySink(cfg.Notify, logger); sink != nil {
		publishers = append(publishers, sink)
	}

	// --- Engine ---
	deps.Engine, err = service.NewEngine(service.Options{
		Store:     store,
		Gateway:   gateway,
		Guard:     deps.Guard,
		Decimals:  deps.Decimals,
		Locks:     locks,
		LockTTL:   cfg.Redis.LockTTL.Duration,
		Publisher: events.NewFanout(publishers...),
		Audit:     deps.Audit,
		Logger:    logger,
	})
	if err != nil {
		return fail(fmt.Errorf("wire: engine: %w", err))
	}

	// --- S3 ledger archives ---
	if cfg.S3.Enabled {
		sc, err := s3blob.New(ctx, s3blob.ClientConfig{
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
		deps.Archiver = s3blob.NewArchiver(deps.Engine, s3blob.NewWriter(sc), deps.Audit)
		deps.Checks["s3"] = sc.Health
	}

	logger.InfoContext(ctx, "wire: dependencies ready",
		slog.String("store", cfg.Store.Backend),
		slog.String("token", cfg.Token.Backend),
		slog.String("controller", controller.Hex()),
		slog.Bool("redis", cfg.Redis.Enabled),
		slog.Bool("kafka", cfg.Kafka.Enabled),
		slog.Bool("s3", cfg.S3.Enabled),
	)
	return deps, cleanup, nil
}

func openPostgres(ctx context.Context, cfg *config.Config) (*postgres.Client, error) {
	pg, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:            cfg.Postgres.DSN,
		Host:           cfg.Postgres.Host,
		Port:           cfg.Postgres.Port,
		Database:       cfg.Postgres.Database,
		User:           cfg.Postgres.User,
		Password:       cfg.Postgres.Password,
		SSLMode:        cfg.Postgres.SSLMode,
		MaxConns:       cfg.Postgres.PoolMaxConns,
		MinConns:       cfg.Postgres.PoolMinConns,
		ConnectTimeout: cfg.Postgres.ConnectTimeout.Duration,
	})
	if err != nil {
		return nil, fmt.Errorf("wire: postgres: %w", err)
	}
	return pg, nil
}

// operatorKey loads the operator key when one is configured. A nil key with a
// nil error means none is set.
func operatorKey(cfg *config.Config) (*ecdsa.PrivateKey, error) {
	if cfg.Operator.PrivateKey == "" && cfg.Operator.KeyFile == "" {
		return nil, nil
	}
	return crypto.LoadKey(crypto.KeySource{
		RawPrivateKey: cfg.Operator.PrivateKey,
		KeyFile:       cfg.Operator.KeyFile,
		Password:      cfg.Operator.KeyPassword,
	})
}

// operatorAddress is the configured address, else the key's address. When
// both are set they must agree.
func operatorAddress(cfg *config.Config, key *ecdsa.PrivateKey) (common.Address, error) {
	var fromKey common.Address
	if key != nil {
		fromKey = ethcrypto.PubkeyToAddress(key.PublicKey)
	}
	if cfg.Operator.Address == "" {
		if key == nil {
			return common.Address{}, fmt.Errorf("no address or key configured")
		}
		return fromKey, nil
	}
	addr := common.HexToAddress(cfg.Operator.Address)
	if key != nil && addr != fromKey {
		return common.Address{}, fmt.Errorf("address %s does not match key address %s", addr.Hex(), fromKey.Hex())
	}
	return addr, nil
}

func chainID(id int64) *big.Int {
	if id <= 0 {
		return nil
	}
	return big.NewInt(id)
}

// seedBalances mints each amount, given in whole units, and approves the pool
// to spend it.
func seedBalances(tok *memtoken.Token, balances map[string]string, decimals uint8) error {
	for hexAddr, amount := range balances {
		v, err := units.ParseAmount(amount, decimals)
		if err != nil {
			return fmt.Errorf("%s: %w", hexAddr, err)
		}
		addr := common.HexToAddress(hexAddr)
		tok.Mint(addr, v)
		tok.Approve(addr, v)
	}
	return nil
}

// notifySink returns nil when no sender is configured.
func notifySink(cfg config.NotifyConfig, logger *slog.Logger) *notify.EventSink {
	var senders []notify.Sender
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.TelegramToken, cfg.TelegramChatID))
	}
	if cfg.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.DiscordWebhookURL))
	}
	if len(senders) == 0 {
		return nil
	}
	events := make([]string, 0, len(cfg.Events))
	for _, ev := range cfg.Events {
		events = append(events, strings.TrimSpace(ev))
	}
	return notify.NewEventSink(notify.NewNotifier(senders, events, logger))
}
