package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/pavilion/internal/crypto"
	"github.com/alanyoungcy/pavilion/internal/server"
	"github.com/alanyoungcy/pavilion/internal/server/handler"
	"github.com/alanyoungcy/pavilion/internal/server/ws"
)

// ServerMode serves the HTTP API, plus the event stream when Redis is
// enabled, until ctx is cancelled.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")
	g, ctx := errgroup.WithContext(ctx)

	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.cfg.Server.CORSOrigins, a.logger)
		g.Go(func() error {
			if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("ws hub: %w", err)
			}
			return nil
		})
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		SignatureMaxAge: a.cfg.Server.SignatureMaxAge.Duration,
		RateLimit:       a.cfg.Server.RateLimit,
		RateWindow:      a.cfg.Server.RateWindow.Duration,
	}, a.handlers(deps), hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (a *App) handlers(deps *Dependencies) server.Handlers {
	// A nil *Archiver must reach the handler as a nil interface.
	var archiver handler.GameArchiver
	if deps.Archiver != nil {
		archiver = deps.Archiver
	}
	return server.Handlers{
		Health:     handler.NewHealthHandler(deps.Checks, a.logger),
		Games:      handler.NewGameHandler(deps.Engine, a.logger),
		Tickets:    handler.NewTicketHandler(deps.Engine, a.logger),
		Settlement: handler.NewSettlementHandler(deps.Engine, deps.Decimals, a.logger),
		Treasury:   handler.NewTreasuryHandler(deps.Engine, deps.Decimals, a.logger),
		Admin:      handler.NewAdminHandler(deps.Guard, archiver, deps.Audit, a.logger),
	}
}

func (a *App) shutdownTimeout() time.Duration {
	if d := a.cfg.Server.ShutdownTimeout.Duration; d > 0 {
		return d
	}
	return 10 * time.Second
}

// MigrateMode applies the embedded Postgres migrations and exits.
func (a *App) MigrateMode(ctx context.Context) error {
	pg, err := openPostgres(ctx, a.cfg)
	if err != nil {
		return err
	}
	defer pg.Close()
	if err := pg.RunMigrations(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	a.logger.InfoContext(ctx, "migrations applied", slog.String("database", a.cfg.Postgres.Database))
	return nil
}

// EncryptKeyMode encrypts operator.private_key with operator.key_password and
// writes it to operator.key_file.
func (a *App) EncryptKeyMode(ctx context.Context) error {
	key, err := crypto.ParseKey(a.cfg.Operator.PrivateKey)
	if err != nil {
		return fmt.Errorf("encrypt-key: %w", err)
	}
	blob, err := crypto.EncryptKey(key, a.cfg.Operator.KeyPassword)
	if err != nil {
		return fmt.Errorf("encrypt-key: %w", err)
	}
	if err := os.WriteFile(a.cfg.Operator.KeyFile, blob, 0o600); err != nil {
		return fmt.Errorf("encrypt-key: write %s: %w", a.cfg.Operator.KeyFile, err)
	}
	a.logger.InfoContext(ctx, "operator key encrypted", slog.String("key_file", a.cfg.Operator.KeyFile))
	return nil
}
