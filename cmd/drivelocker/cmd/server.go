package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/jmcleod/drivelocker/account"
	"github.com/jmcleod/drivelocker/api"
	"github.com/jmcleod/drivelocker/blob"
	"github.com/jmcleod/drivelocker/files"
	"github.com/jmcleod/drivelocker/notes"
	"github.com/jmcleod/drivelocker/internal/config"
	"github.com/jmcleod/drivelocker/notify"
	"github.com/jmcleod/drivelocker/otp"
	"github.com/jmcleod/drivelocker/passkey"
	"github.com/jmcleod/drivelocker/password"
	"github.com/jmcleod/drivelocker/storage"
	bboltstorage "github.com/jmcleod/drivelocker/storage/bbolt"
	"github.com/jmcleod/drivelocker/storage/memory"
	"github.com/jmcleod/drivelocker/storage/postgres"
	redisstorage "github.com/jmcleod/drivelocker/storage/redis"
	"github.com/jmcleod/drivelocker/token"
)

const memoryBlobPrefix = "/blobs"

var cfg = config.Default()

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the DriveLocker API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg.ApplyEnv(os.LookupEnv)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration:\n%w", err)
		}
		logger := newLogger(os.Stdout, cfg)

		app, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer app.Close()

		var tlsConfig *tls.Config
		if cfg.TLSCert != "" {
			cert, err := tls.LoadX509KeyPair(cfg.TLSCert, cfg.TLSKey)
			if err != nil {
				return fmt.Errorf("failed to load TLS key pair: %w", err)
			}
			tlsConfig = &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			}
		}

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           app.Handler(),
			TLSConfig:         tlsConfig,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       5 * time.Minute,
			WriteTimeout:      5 * time.Minute,
			IdleTimeout:       60 * time.Second,
		}

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			var err error
			if tlsConfig != nil {
				err = server.ListenAndServeTLS("", "")
			} else {
				err = server.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		printBanner()
		fmt.Printf("Starting server on port %d (env: %s, storage: %s, blob: %s)...\n", cfg.Port, cfg.Env, cfg.Storage, cfg.Blob)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			fmt.Printf("\nReceived %s, shutting down...\n", sig)
			ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
	f := serverCmd.Flags()
	f.IntVarP(&cfg.Port, "port", "p", cfg.Port, "Port to listen on")
	f.StringVar(&cfg.Env, "env", cfg.Env, "Environment: development or production")
	f.StringVar(&cfg.FrontendURL, "frontend-url", "", "Origin allowed to make credentialed cross-origin requests")
	f.StringVar(&cfg.JWTSecret, "jwt-secret", "", "Token signing secret (default $"+config.EnvJWTSecret+")")
	f.IntVar(&cfg.BcryptCost, "bcrypt-cost", 0, "bcrypt cost for passwords and passkeys (0 = library default)")

	f.StringVar(&cfg.Storage, "storage", cfg.Storage, "Storage backend: memory, bbolt, postgres or redis")
	f.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "Directory for the bbolt database")
	f.StringVar(&cfg.DatabaseDSN, "database-dsn", "", "PostgreSQL connection string (default $"+config.EnvDatabaseDSN+")")
	f.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "Redis address")
	f.StringVar(&cfg.RedisPassword, "redis-password", "", "Redis password")
	f.IntVar(&cfg.RedisDB, "redis-db", 0, "Redis database number")

	f.StringVar(&cfg.Blob, "blob", cfg.Blob, "Blob store: memory or s3")
	f.StringVar(&cfg.S3Bucket, "s3-bucket", "", "S3 bucket for uploaded files")
	f.StringVar(&cfg.S3Region, "s3-region", cfg.S3Region, "S3 region")
	f.StringVar(&cfg.S3Endpoint, "s3-endpoint", "", "S3-compatible endpoint URL")
	f.StringVar(&cfg.S3AccessKey, "s3-access-key", "", "S3 access key ID")
	f.StringVar(&cfg.S3SecretKey, "s3-secret-key", "", "S3 secret key (default $"+config.EnvS3SecretKey+")")
	f.BoolVar(&cfg.S3PathStyle, "s3-path-style", false, "Use path-style S3 addressing")
	f.DurationVar(&cfg.S3PresignTTL, "s3-presign-ttl", cfg.S3PresignTTL, "Lifetime of download links")

	f.StringVar(&cfg.SMTPHost, "smtp-host", "", "SMTP server; empty logs emails instead of sending them")
	f.IntVar(&cfg.SMTPPort, "smtp-port", cfg.SMTPPort, "SMTP port")
	f.StringVar(&cfg.SMTPUser, "smtp-user", "", "SMTP username")
	f.StringVar(&cfg.SMTPPassword, "smtp-password", "", "SMTP password (default $"+config.EnvSMTPPassword+")")
	f.StringVar(&cfg.MailFrom, "mail-from", "", "Sender address for outgoing email")

	f.StringVar(&cfg.TLSCert, "tls-cert", "", "Path to TLS certificate file")
	f.StringVar(&cfg.TLSKey, "tls-key", "", "Path to TLS key file")
	f.DurationVar(&cfg.ShutdownGrace, "shutdown-grace", cfg.ShutdownGrace, "Time allowed for in-flight requests on shutdown")
}

func newLogger(w io.Writer, c config.Config) *slog.Logger {
	level := slog.LevelInfo
	if c.Development() {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// app is the wired server: storage, services and HTTP routes.
type app struct {
	api     *api.API
	blobs   blob.Store
	closers []func() error
}

func newApp(ctx context.Context, c config.Config, logger *slog.Logger) (*app, error) {
	a := &app{}

	repo, closeRepo, err := openRepository(ctx, c)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeRepo)

	a.blobs, err = openBlobStore(ctx, c)
	if err != nil {
		a.Close()
		return nil, err
	}

	notifier, err := newNotifier(c, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	tokens, err := token.NewService([]byte(c.JWTSecret))
	if err != nil {
		a.Close()
		return nil, err
	}

	hasher := password.NewHasher(c.BcryptCost)
	accounts := account.NewService(repo, hasher, notifier, account.WithLogger(logger))
	gate := passkey.NewGate(repo, hasher, passkey.WithLogger(logger))

	env := api.EnvProduction
	if c.Development() {
		env = api.EnvDevelopment
	}
	var origins []string
	if c.FrontendURL != "" {
		origins = []string{c.FrontendURL}
	}

	a.api = api.New(api.Services{
		Accounts:  accounts,
		OTP:       otp.NewEngine(repo, notifier, hasher, otp.WithLogger(logger)),
		Passkeys:  gate,
		Files:     files.NewService(repo, accounts, gate, a.blobs, files.WithLogger(logger)),
		Notes:     notes.NewService(repo, accounts, notes.WithLogger(logger)),
		Tokens:    tokens,
		Validator: token.NewValidator(tokens, repo),
	},
		api.WithLogger(logger),
		api.WithSecurityConfig(api.NewSecurityConfig(env, origins)),
	)
	return a, nil
}

// Handler returns the root router: health check, the in-memory blob
// download route when in use, and the API.
func (a *app) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	if mem, ok := a.blobs.(*blob.MemoryStore); ok {
		r.Mount(memoryBlobPrefix, http.StripPrefix(memoryBlobPrefix, mem.Handler()))
	}

	r.Mount("/", a.api.Router())
	return r
}

// Close releases storage connections.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func openRepository(ctx context.Context, c config.Config) (storage.Repository, func() error, error) {
	switch c.Storage {
	case "memory":
		return memory.NewRepository(), func() error { return nil }, nil
	case "bbolt":
		if err := os.MkdirAll(c.DataDir, 0o700); err != nil {
			return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		repo, err := bboltstorage.NewRepositoryFromFile(filepath.Join(c.DataDir, "drivelocker.db"), nil)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open bbolt storage: %w", err)
		}
		return repo, repo.Close, nil
	case "postgres":
		repo, err := postgres.NewRepositoryFromDSN(ctx, c.DatabaseDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres storage: %w", err)
		}
		closeFn := func() error {
			repo.Close()
			return nil
		}
		return repo, closeFn, nil
	case "redis":
		repo, err := redisstorage.NewRepositoryFromAddr(ctx, c.RedisAddr, c.RedisPassword, c.RedisDB)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open redis storage: %w", err)
		}
		return repo, repo.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", c.Storage)
	}
}

func openBlobStore(ctx context.Context, c config.Config) (blob.Store, error) {
	switch c.Blob {
	case "memory":
		scheme := "http"
		if c.TLSCert != "" {
			scheme = "https"
		}
		return blob.NewMemoryStore(fmt.Sprintf("%s://localhost:%d%s", scheme, c.Port, memoryBlobPrefix)), nil
	case "s3":
		s, err := blob.NewS3Store(ctx, blob.S3Config{
			Bucket:       c.S3Bucket,
			Region:       c.S3Region,
			Endpoint:     c.S3Endpoint,
			AccessKey:    c.S3AccessKey,
			SecretKey:    c.S3SecretKey,
			UsePathStyle: c.S3PathStyle,
			PresignTTL:   c.S3PresignTTL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to configure s3: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown blob store %q", c.Blob)
	}
}

func newNotifier(c config.Config, logger *slog.Logger) (notify.Notifier, error) {
	if c.SMTPHost == "" {
		logger.Warn("no SMTP host configured; emails are logged, not sent")
		return notify.NewLogNotifier(logger), nil
	}
	n, err := notify.NewSMTPNotifier(notify.SMTPConfig{
		Host:     c.SMTPHost,
		Port:     c.SMTPPort,
		Username: c.SMTPUser,
		Password: c.SMTPPassword,
		From:     c.MailFrom,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to configure smtp: %w", err)
	}
	return n, nil
}
