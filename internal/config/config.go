// Package config holds the server settings gathered from flags and the
// environment.
package config

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jmcleod/drivelocker/token"
)

// Environment variables that supply secrets when the matching flag is empty.
const (
	EnvJWTSecret    = "DRIVELOCKER_JWT_SECRET"
	EnvSMTPPassword = "DRIVELOCKER_SMTP_PASSWORD"
	EnvS3SecretKey  = "DRIVELOCKER_S3_SECRET_KEY"
	EnvDatabaseDSN  = "DRIVELOCKER_DATABASE_DSN"
)

var (
	storageBackends = []string{"memory", "bbolt", "postgres", "redis"}
	blobBackends    = []string{"memory", "s3"}
	environments    = []string{"development", "production"}
)

// Config is the complete server configuration.
type Config struct {
	Port        int
	Env         string
	FrontendURL string
	JWTSecret   string
	BcryptCost  int

	Storage       string
	DataDir       string
	DatabaseDSN   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Blob          string
	S3Bucket      string
	S3Region      string
	S3Endpoint    string
	S3AccessKey   string
	S3SecretKey   string
	S3PathStyle   bool
	S3PresignTTL  time.Duration
	SMTPHost      string
	SMTPPort      int
	SMTPUser      string
	SMTPPassword  string
	MailFrom      string
	TLSCert       string
	TLSKey        string
	ShutdownGrace time.Duration
}

// Default returns the development defaults.
func Default() Config {
	return Config{
		Port:          4000,
		Env:           "development",
		Storage:       "bbolt",
		DataDir:       "./data",
		RedisAddr:     "localhost:6379",
		Blob:          "memory",
		S3Region:      "us-east-1",
		S3PresignTTL:  15 * time.Minute,
		SMTPPort:      587,
		ShutdownGrace: 10 * time.Second,
	}
}

// ApplyEnv fills empty secret fields from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	fill := func(dst *string, key string) {
		if *dst != "" {
			return
		}
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	fill(&c.JWTSecret, EnvJWTSecret)
	fill(&c.SMTPPassword, EnvSMTPPassword)
	fill(&c.S3SecretKey, EnvS3SecretKey)
	fill(&c.DatabaseDSN, EnvDatabaseDSN)
}

// Development reports whether the server runs with development cookies.
func (c Config) Development() bool {
	return c.Env == "development"
}

// Validate reports every problem with c at once.
func (c Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if !slices.Contains(environments, c.Env) {
		errs = append(errs, fmt.Errorf("env must be one of %v, got %q", environments, c.Env))
	}
	if len(c.JWTSecret) < token.MinSecretLength {
		errs = append(errs, fmt.Errorf("jwt secret must be at least %d bytes (flag --jwt-secret or %s)", token.MinSecretLength, EnvJWTSecret))
	}

	switch {
	case !slices.Contains(storageBackends, c.Storage):
		errs = append(errs, fmt.Errorf("storage must be one of %v, got %q", storageBackends, c.Storage))
	case c.Storage == "bbolt" && c.DataDir == "":
		errs = append(errs, errors.New("bbolt storage requires --data-dir"))
	case c.Storage == "postgres" && c.DatabaseDSN == "":
		errs = append(errs, fmt.Errorf("postgres storage requires --database-dsn or %s", EnvDatabaseDSN))
	case c.Storage == "redis" && c.RedisAddr == "":
		errs = append(errs, errors.New("redis storage requires --redis-addr"))
	}

	switch {
	case !slices.Contains(blobBackends, c.Blob):
		errs = append(errs, fmt.Errorf("blob must be one of %v, got %q", blobBackends, c.Blob))
	case c.Blob == "s3" && c.S3Bucket == "":
		errs = append(errs, errors.New("s3 blob store requires --s3-bucket"))
	}

	if c.SMTPHost != "" && c.MailFrom == "" {
		errs = append(errs, errors.New("smtp delivery requires --mail-from"))
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		errs = append(errs, errors.New("--tls-cert and --tls-key must be given together"))
	}
	return errors.Join(errs...)
}
