package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/DIGIX666/Arena/internal/crypto"
	"github.com/DIGIX666/Arena/internal/domain"
	"github.com/DIGIX666/Arena/internal/server"
	"github.com/DIGIX666/Arena/internal/server/handler"
	"github.com/DIGIX666/Arena/internal/server/ws"
)

// ServeMode runs the HTTP API, the WebSocket hub and, when object storage is
// wired, the periodic archiver.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	// With Redis the hub follows the bus, so events committed by any
	// replica reach every client. Without it the service feeds the hub
	// directly.
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		AllowedOrigins: a.cfg.Server.CORSOrigins,
		StartedAt:      time.Now().UTC(),
	})
	if deps.SignalBus == nil {
		deps.Service.OnEvent(hub.Broadcast)
	}
	g.Go(func() error {
		return hub.Run(ctx)
	})

	a.startHTTPServer(ctx, g, deps, hub)

	if deps.Archiver != nil && a.cfg.Archive.Interval.Duration > 0 {
		interval := a.cfg.Archive.Interval.Duration
		g.Go(func() error {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if err := a.archiveOnce(ctx, deps.Archiver); err != nil {
						a.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
					}
				}
			}
		})
		a.logger.InfoContext(ctx, "archiver scheduled", slog.Duration("interval", interval))
	}

	return g.Wait()
}

func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, hub *ws.Hub) {
	eng, svc := deps.Engine, deps.Service
	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(eng, a.logger),
		Markets:  handler.NewMarketHandler(svc, eng, a.logger),
		Admin:    handler.NewAdminHandler(svc, eng, a.logger),
		Raffles:  handler.NewRaffleHandler(svc, eng, a.logger),
		Seasonal: handler.NewSeasonalHandler(svc, eng, a.logger),
	}

	srvDeps := server.Deps{Limiter: deps.RateLimiter}
	if deps.Principals != nil {
		srvDeps.Principals = deps.Principals
	} else {
		a.logger.WarnContext(ctx, "principal_secret not set; principal header is trusted as-is")
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKeys:     a.cfg.Server.APIKeys,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, srvDeps, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)))
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// ArchiveMode copies settled markets and old audit rows to object storage
// once and exits.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	if deps.Archiver == nil {
		return errors.New("archive mode: archiver not wired (postgres and s3 must be enabled)")
	}
	return a.archiveOnce(ctx, deps.Archiver)
}

func (a *App) archiveOnce(ctx context.Context, archiver domain.Archiver) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -a.cfg.Archive.RetentionDays)
	markets, err := archiver.ArchiveMarkets(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive markets: %w", err)
	}
	entries, err := archiver.ArchiveAudit(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive audit: %w", err)
	}
	a.logger.InfoContext(ctx, "archive complete",
		slog.Time("cutoff", cutoff),
		slog.Int64("markets", markets),
		slog.Int64("audit_entries", entries),
	)
	return nil
}

// ReportMode prints the ledger as tables.
func (a *App) ReportMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "writing report")
	return WriteReport(ctx, a.out, deps.Engine)
}

// voucherOutput is what voucher mode prints.
type voucherOutput struct {
	RaffleID  uint64 `json:"raffle_id"`
	User      string `json:"user"`
	Authority string `json:"authority"`
	Signature string `json:"signature"`
}

// VoucherMode signs a raffle voucher with the authority key and prints it.
func (a *App) VoucherMode(ctx context.Context) error {
	if !common.IsHexAddress(a.args.User) {
		return fmt.Errorf("voucher mode: -user %q is not a hex address", a.args.User)
	}
	key, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    a.cfg.Voucher.PrivateKey,
		EncryptedKeyPath: a.cfg.Voucher.EncryptedKeyPath,
		KeyPassword:      a.cfg.Voucher.KeyPassword,
	})
	if err != nil {
		return fmt.Errorf("voucher mode: %w", err)
	}
	signer := crypto.NewSignerFromKey(key, VoucherDomain(a.cfg))
	if a.cfg.Voucher.Authority != "" && signer.Address() != common.HexToAddress(a.cfg.Voucher.Authority) {
		return fmt.Errorf("voucher mode: key belongs to %s, not the configured authority %s",
			signer.Address().Hex(), a.cfg.Voucher.Authority)
	}

	v, err := signer.SignVoucher(a.args.RaffleID, common.HexToAddress(a.args.User))
	if err != nil {
		return fmt.Errorf("voucher mode: sign: %w", err)
	}
	a.logger.InfoContext(ctx, "voucher signed",
		slog.Uint64("raffle_id", v.RaffleID),
		slog.String("user", v.User.Hex()),
	)
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(voucherOutput{
		RaffleID:  v.RaffleID,
		User:      v.User.Hex(),
		Authority: signer.Address().Hex(),
		Signature: crypto.FormatSignature(v.Signature),
	})
}

// EncryptKeyMode seals voucher.private_key into voucher.encrypted_key_path.
func (a *App) EncryptKeyMode(ctx context.Context) error {
	vc := a.cfg.Voucher
	if vc.PrivateKey == "" || vc.EncryptedKeyPath == "" || vc.KeyPassword == "" {
		return errors.New("encrypt-key mode: private_key, encrypted_key_path and key_password are required")
	}
	if err := crypto.WriteEncryptedKey(vc.EncryptedKeyPath, vc.PrivateKey, vc.KeyPassword); err != nil {
		return fmt.Errorf("encrypt-key mode: %w", err)
	}
	a.logger.InfoContext(ctx, "authority key encrypted", slog.String("path", vc.EncryptedKeyPath))
	return nil
}
