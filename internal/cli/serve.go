package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/aorta/internal/access"
	"github.com/ppiankov/aorta/internal/api"
	"github.com/ppiankov/aorta/internal/config"
	"github.com/ppiankov/aorta/internal/credentials"
	"github.com/ppiankov/aorta/internal/digest"
	"github.com/ppiankov/aorta/internal/lifecycle"
	"github.com/ppiankov/aorta/internal/notify"
	"github.com/ppiankov/aorta/internal/session"
	"github.com/ppiankov/aorta/internal/storage"
)

const (
	shutdownTimeout   = 10 * time.Second
	sessionPurgeEvery = time.Hour
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the AORTA server",
	Long: `Serve opens the resource store and serves the API under /aorta/api.

The transport, port and TLS files come from config (protocol, port,
tls_key, tls_cert) or from PROTOCOL, PORT, KEY and CERT. Reports notify
their order creator by mail when smtp_host is set.

The server exits 0 on SIGINT or SIGTERM and 1 on failure.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

// sessionPurger is a session store that needs expired records removed.
type sessionPurger interface {
	Purge(ctx context.Context) (int, error)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return &ValidationError{Message: err.Error()}
	}

	dataDir, err := cfg.GetStoragePath()
	if err != nil {
		return err
	}
	st := storage.NewLocal(dataDir)
	if err := st.EnsureDirectoryExists(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sessions, closeSessions, err := openSessions(ctx, cfg, st)
	if err != nil {
		return err
	}
	defer closeSessions()

	dispatcher := notify.NewDispatcher(newNotifier(cfg, logger), logger, notify.DefaultTimeout)

	manager := lifecycle.New(st,
		lifecycle.WithLogger(logger),
		lifecycle.WithNotifier(dispatcher),
		lifecycle.WithTemplates(digest.NewFileTemplates(cfg.TemplatesDir)),
	)
	gate := access.NewGate(credentials.New(st))

	server := api.NewServer(gate, manager, api.Options{
		Sessions:      sessions,
		Logger:        logger,
		BodyLimit:     cfg.BodyLimit,
		RateLimit:     cfg.RateLimit,
		RateWindow:    cfg.RateWindow,
		SecureCookies: cfg.Protocol == "https",
		TrustProxy:    cfg.TrustProxy,
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server listening", "protocol", cfg.Protocol, "addr", httpServer.Addr, "data_dir", dataDir)
		var err error
		if cfg.Protocol == "https" {
			err = httpServer.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
		} else {
			err = httpServer.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		dispatcher.Wait()
		return err
	})

	if purger, ok := sessions.(sessionPurger); ok {
		g.Go(func() error {
			purgeSessions(gctx, purger, logger)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

// openSessions builds the configured session store.
func openSessions(ctx context.Context, c *config.Config, st *storage.LocalStorage) (session.Store, func(), error) {
	switch c.SessionBackend {
	case "redis":
		client, err := session.NewRedisClient(ctx, session.RedisConfig{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
		})
		if err != nil {
			return nil, nil, err
		}
		return session.NewRedisStore(client, c.SessionTTL), func() { _ = client.Close() }, nil
	default:
		return session.NewFileStore(st.SessionsDir(), c.SessionTTL), func() {}, nil
	}
}

// newNotifier mails through SMTP when a relay is configured and only logs
// otherwise.
func newNotifier(c *config.Config, logger *slog.Logger) notify.Notifier {
	smtpCfg := notify.SMTPConfig{
		Host:     c.SMTPHost,
		Port:     c.SMTPPort,
		User:     c.SMTPUser,
		Password: c.SMTPPassword,
		From:     c.SMTPFrom,
	}
	if smtpCfg.Enabled() {
		return notify.NewSMTP(smtpCfg)
	}
	logger.Warn("smtp relay not configured, notifications are only logged")
	return notify.NewLog(logger)
}

func purgeSessions(ctx context.Context, purger sessionPurger, logger *slog.Logger) {
	ticker := time.NewTicker(sessionPurgeEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := purger.Purge(ctx)
			if err != nil && ctx.Err() == nil {
				logger.Error("session purge failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("expired sessions removed", "count", n)
			}
		}
	}
}
