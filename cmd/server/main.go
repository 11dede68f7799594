package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/willemschots/volunteerhub/assets"
	"github.com/willemschots/volunteerhub/internal"
	"github.com/willemschots/volunteerhub/internal/access"
	"github.com/willemschots/volunteerhub/internal/db"
	"github.com/willemschots/volunteerhub/internal/db/migrate"
	"github.com/willemschots/volunteerhub/internal/email"
	"github.com/willemschots/volunteerhub/internal/email/mailgun"
	"github.com/willemschots/volunteerhub/internal/email/postmark"
	emailview "github.com/willemschots/volunteerhub/internal/email/view"
	"github.com/willemschots/volunteerhub/internal/errorz"
	"github.com/willemschots/volunteerhub/internal/obs"
	"github.com/willemschots/volunteerhub/internal/org"
	"github.com/willemschots/volunteerhub/internal/poll"
	"github.com/willemschots/volunteerhub/internal/portal"
	"github.com/willemschots/volunteerhub/internal/signup"
	"github.com/willemschots/volunteerhub/internal/store"
	"github.com/willemschots/volunteerhub/internal/web"
	"github.com/willemschots/volunteerhub/internal/web/sessions"
	"github.com/willemschots/volunteerhub/internal/web/view"
	"github.com/willemschots/volunteerhub/migrations"
	"golang.org/x/sync/errgroup"
)

// emailClientTimeout limits calls to the email provider APIs.
const emailClientTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Stderr))
}

func run(ctx context.Context, w io.Writer) int {
	logger := slog.New(slog.NewTextHandler(w, nil))

	cfg, err := configFromEnv()
	if err != nil {
		logger.Error("failed to get config from environment", "error", err)
		return 1
	}

	obs.Init()
	obs.InitBuildInfo(internal.BuildRevision, internal.BuildLocalModified)

	sqlDB, err := db.OpenSQLite(cfg.db.file, true)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		return 1
	}

	defer func() {
		err := sqlDB.Close()
		if err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	if cfg.db.migrate {
		logger.Info("attempting to migrate database", "file", cfg.db.file)

		migrateCtx, cancel := context.WithTimeout(ctx, time.Minute)
		ran, err := migrate.RunFS(migrateCtx, sqlDB, migrations.FS, migrate.Metadata{
			AppVersion: internal.BuildRevision,
			Timestamp:  internal.BuildRevisionTime,
		})
		cancel()
		if err != nil {
			logger.Error("failed to migrate database", "error", err)
			return 1
		}

		for _, m := range ran {
			logger.Info("migration ran", "sequence", m.Sequence, "filename", m.Filename)
		}
	}

	sender := newSender(cfg.email, logger)
	emailSvc := email.NewService(
		emailview.NewFSRenderer(assets.EmailFS),
		email.NewRateLimitedSender(sender, cfg.email.rateInterval, cfg.email.rateBurst),
		cfg.email.from,
	)

	// Background work can't report back to the client, so errors end up in the logs.
	errHandler := func(err error) {
		if errors.Is(err, errorz.ErrNotFound) {
			logger.Info("background request for unknown account", "error", err)
			return
		}
		logger.Error("background task failed", "error", err)
	}

	st := store.New(sqlDB)
	tokens := access.NewService(cfg.access)

	orgSvc, err := org.NewService(st.Org(), tokens, emailSvc, errHandler, org.ServiceConfig{
		WorkerTimeout: cfg.workerTimeout,
	})
	if err != nil {
		logger.Error("failed to create org service", "error", err)
		return 1
	}

	portalSvc := portal.NewService(st.Portal(), tokens, emailSvc, errHandler, portal.ServiceConfig{
		WorkerTimeout: cfg.workerTimeout,
	})

	renderer, err := view.NewRenderer(assets.PageFS)
	if err != nil {
		logger.Error("failed to parse pages", "error", err)
		return 1
	}

	keys := make([][]byte, 0, len(cfg.http.cookieKeys))
	for _, k := range cfg.http.cookieKeys {
		keys = append(keys, k.SecretValue())
	}

	server := web.NewServer(&web.ServerDeps{
		Logger:       logger,
		PageRenderer: renderer,
		SessionStore: sessions.NewCookieStore(sessions.Options{
			Keys:   keys,
			MaxAge: int(cfg.http.sessionMaxAge.Seconds()),
			Secure: cfg.http.secureCookie,
		}),
		Org:     orgSvc,
		Signup:  signup.NewService(st.Signup(), tokens, emailSvc),
		Poll:    poll.NewService(st.Poll(), tokens, emailSvc),
		Portal:  portalSvc,
		Metrics: obs.Handler(),
	}, cfg.http.server)

	srv := &http.Server{
		Addr:         cfg.http.addr,
		ReadTimeout:  cfg.http.readTimeout,
		WriteTimeout: cfg.http.writeTimeout,
		IdleTimeout:  cfg.http.idleTimeout,
		Handler:      server,
	}

	// We need to run two tasks concurrently:
	// - Listen and serving of the HTTP server.
	// - Waiting for a signal to stop the server.

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server",
			"addr", cfg.http.addr,
			"emailTransport", cfg.email.transport,
			"buildRevision", internal.BuildRevision,
			"buildRevisionTime", internal.BuildRevisionTime,
			"buildLocalModified", internal.BuildLocalModified,
		)
		// ListenAndServe always returns a non-nil error,
		// g will cancel gCtx when an error is returned, so
		// this will also stop the other goroutine.
		return srv.ListenAndServe()
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("stopping http server")

		shutCtx, cancel := context.WithTimeout(context.Background(), cfg.http.shutdownTimeout)
		defer cancel()

		return srv.Shutdown(shutCtx)
	})

	err = g.Wait()

	// Emails that are still being sent are bounded by the worker timeout.
	logger.Info("waiting for background tasks")
	orgSvc.Wait()
	portalSvc.Wait()

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server stopped with error", "error", err)
		return 1
	}

	logger.Info("http server stopped successfully")

	return 0
}

func newSender(cfg emailConfig, logger *slog.Logger) email.Sender {
	client := &http.Client{
		Timeout: emailClientTimeout,
	}

	switch cfg.transport {
	case "postmark":
		return postmark.NewSender(client, cfg.postmark)
	case "mailgun":
		return mailgun.NewSender(client, cfg.mailgun)
	default:
		return email.NewLogSender(logger)
	}
}
