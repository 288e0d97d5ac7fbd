package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/veritaslabs/arbiterd/internal/poller"
	"github.com/veritaslabs/arbiterd/internal/server"
	"github.com/veritaslabs/arbiterd/internal/server/handler"
	"github.com/veritaslabs/arbiterd/internal/server/ws"
)

// shutdownGrace is how long in-flight HTTP requests get to finish on
// shutdown.
const shutdownGrace = 10 * time.Second

// ServeMode runs the HTTP + WebSocket API without the resolution poller.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startServer(ctx, g, deps)
	return g.Wait()
}

// PollMode runs the resolution poller and the archival sweep without the API
// server.
func (a *App) PollMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting poll mode")

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startPoller(ctx, g, deps); err != nil {
		return err
	}
	return g.Wait()
}

// FullMode runs everything: API server, WebSocket hub, resolution poller,
// and archival sweep.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startServer(ctx, g, deps)
	if err := a.startPoller(ctx, g, deps); err != nil {
		return err
	}
	return g.Wait()
}

// startServer builds the handler set, WebSocket hub, and HTTP server, and
// registers their goroutines on the group.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Server.Enabled {
		a.logger.InfoContext(ctx, "http server disabled by config")
		return
	}

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(deps.Pingers, a.logger),
		Disputes: handler.NewDisputeHandler(deps.Registry, a.logger),
		Audit:    handler.NewAuditHandler(deps.AuditStore, a.logger),
	}
	if deps.Oracle != nil {
		handlers.Oracle = handler.NewOracleHandler(deps.Oracle, a.logger)
	}
	if deps.Settlement != nil {
		handlers.Settlement = handler.NewSettlementHandler(deps.Settlement, a.logger)
	}
	if deps.BlobReader != nil {
		handlers.Evidence = handler.NewEvidenceHandler(deps.BlobReader, a.logger)
	}

	srv := server.New(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// startPoller builds the resolution poller and, when cold storage is
// enabled, the archival sweep, and registers their goroutines on the group.
func (a *App) startPoller(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	if !a.cfg.Poller.Enabled {
		a.logger.InfoContext(ctx, "resolution poller disabled by config")
	} else {
		if !deps.HasWallet {
			return fmt.Errorf("app: the resolution poller requires a signing key (chain.private_key or chain.encrypted_key_path)")
		}
		if deps.Oracle == nil {
			return fmt.Errorf("app: the resolution poller requires an oracle (oracle.base_url)")
		}

		pollerDeps := poller.Deps{
			Markets:  deps.Markets,
			Oracle:   deps.Oracle,
			Registry: deps.Registry,
			Locks:    deps.LockManager,
			Limiter:  deps.RateLimiter,
			Alerts:   deps.Notifier,
			Metrics:  deps.Metrics,
			Logger:   a.logger,
		}
		if deps.Archiver != nil {
			pollerDeps.Evidence = deps.Archiver
		}

		p := poller.New(pollerDeps, poller.Config{
			Interval:              a.cfg.Poller.Interval.Duration,
			AutoResolveThreshold:  a.cfg.Poller.AutoResolveThreshold,
			WriteDelay:            a.cfg.Poller.WriteDelay.Duration,
			CallTimeout:           a.cfg.Poller.CallTimeout.Duration,
			MaxRetries:            a.cfg.Poller.MaxRetries,
			ScanLimit:             a.cfg.Poller.ScanLimit,
			FailureAlertThreshold: a.cfg.Poller.FailureAlertThreshold,
		})
		g.Go(func() error {
			return p.Run(ctx)
		})

		a.logger.InfoContext(ctx, "resolution poller started",
			slog.Duration("interval", a.cfg.Poller.Interval.Duration),
			slog.Int("auto_resolve_threshold", int(a.cfg.Poller.AutoResolveThreshold)),
		)
	}

	if deps.Archiver != nil {
		g.Go(func() error {
			return deps.Archiver.Run(ctx)
		})
	}

	return nil
}
