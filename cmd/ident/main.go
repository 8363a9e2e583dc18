package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/solobay/ident/pkg/account"
	"github.com/solobay/ident/pkg/auth"
	"github.com/solobay/ident/pkg/config"
	"github.com/solobay/ident/pkg/idp"
	"github.com/solobay/ident/pkg/notification"
	"github.com/solobay/ident/pkg/password"
	"github.com/solobay/ident/pkg/profile"
	"github.com/solobay/ident/pkg/token"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting ident service")

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to load .env file", "err", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	idpClient := newIdPClient(cfg)
	profiles, cleanup, err := newProfileStore(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize profile store", "err", err)
		os.Exit(1)
	}
	defer cleanup()

	notifier := newNotifier(cfg)
	notifications := notification.NewManager(notifier, cfg.App.BaseURL)

	tokens := token.NewService(idpClient, cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Audience,
		token.WithSessionExpiry(config.ParseExpiry(cfg.JWT.SessionExpiry, token.DefaultSessionExpiry)),
		token.WithRefreshExpiry(config.ParseExpiry(cfg.JWT.RefreshExpiry, token.DefaultRefreshExpiry)),
		token.WithResetExpiry(config.ParseExpiry(cfg.JWT.ResetExpiry, token.DefaultResetExpiry)),
	)

	passwords := password.NewService(idpClient, profiles, tokens,
		password.WithNotificationManager(notifications),
	)

	accounts := account.NewService(idpClient, profiles, tokens,
		account.WithDefaultRole(cfg.App.DefaultRole),
		account.WithNotificationManager(notifications),
	)

	authService := auth.NewService(tokens, profiles)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	authHandle := account.NewAuthHandle(accounts, passwords, tokens, authService)
	r.Route("/auth", authHandle.Routes)

	userHandle := account.NewHandle(accounts)
	r.Route("/users", func(r chi.Router) {
		r.Use(auth.Verifier(authService))
		userHandle.Routes(r)
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		slog.Info("Listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Graceful shutdown failed", "err", err)
	}
}

func newIdPClient(cfg config.Config) idp.Client {
	if cfg.IdP.BaseURL == "" {
		slog.Warn("No identity provider configured, using in-memory provider")
		return idp.NewInMemoryClient()
	}
	slog.Info("Using REST identity provider", "base_url", cfg.IdP.BaseURL)
	return idp.NewRESTClient(cfg.IdP.BaseURL, cfg.IdP.APIKey)
}

func newProfileStore(ctx context.Context, cfg config.Config) (profile.Store, func(), error) {
	if cfg.Database.Host == "" {
		slog.Warn("No database configured, using in-memory profile store")
		return profile.NewInMemoryStore(), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.Database.ToDatabaseURL())
	if err != nil {
		return nil, nil, err
	}

	store := profile.NewPostgresStore(pool)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	slog.Info("Database connected", "database", cfg.Database.Database, "schema", cfg.Database.Schema)
	return store, pool.Close, nil
}

func newNotifier(cfg config.Config) notification.Notifier {
	if cfg.Email.Host == "" {
		slog.Warn("No SMTP host configured, notifications will not be delivered")
		return &notification.MockNotifier{}
	}

	notifier, err := notification.NewEmailNotifier(notification.SMTPConfig{
		Host:     cfg.Email.Host,
		Port:     cfg.Email.Port,
		TLS:      cfg.Email.TLS,
		Username: cfg.Email.Username,
		Password: cfg.Email.Password,
		From:     cfg.Email.From,
	})
	if err != nil {
		slog.Error("Failed to create email notifier, falling back to mock", "err", err)
		return &notification.MockNotifier{}
	}
	return notifier
}
