package bootstrap

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/target/mmk-media-jobs/config"
)

// NewLogger builds a logger writing to w. format is "text" or "json" (default).
func NewLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h).With("app", applicationName)
}

// InitLogger installs a stdout logger as the slog default and returns it.
func InitLogger(level slog.Level, format string) *slog.Logger {
	logger := NewLogger(os.Stdout, level, format)
	slog.SetDefault(logger)
	return logger
}

// LoadConfig reads optional dotenv files, then the environment. ENV_FILE may
// list files (comma separated); otherwise ./.env is used when present.
func LoadConfig() (config.AppConfig, error) {
	if err := loadDotenv(os.Getenv("ENV_FILE")); err != nil {
		return config.AppConfig{}, err
	}

	var cfg config.AppConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	cfg.Sanitize()
	return cfg, nil
}

func loadDotenv(list string) error {
	var files []string
	for _, f := range strings.Split(list, ",") {
		if f = strings.TrimSpace(f); f != "" {
			files = append(files, f)
		}
	}
	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil {
			return fmt.Errorf("load ENV_FILE: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env file: %w", err)
	}
	return nil
}

// ValidateServiceConfig reports every startup problem at once.
func ValidateServiceConfig(cfg *config.AppConfig) error {
	if cfg == nil {
		return errors.New("service config is required")
	}
	var errs []error
	services, err := cfg.GetEnabledServices()
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("invalid service configuration: %w", err))
	case len(services) == 0:
		errs = append(errs, errors.New("no services enabled"))
	}
	if !cfg.IsDev {
		if cfg.Auth.Mode == config.AuthModeMock {
			errs = append(errs, errors.New("AUTH_MODE=mock is only allowed in development (DEV=true)"))
		}
		if strings.TrimSpace(cfg.EncryptionKey) == "" {
			errs = append(errs, errors.New("ENCRYPTION_KEY is required outside development"))
		}
	}
	return errors.Join(errs...)
}

// GetEnabledServices lists enabled service names in startup order. Invalid
// configuration yields an empty list; ValidateServiceConfig reports it.
func GetEnabledServices(cfg *config.AppConfig) []string {
	if cfg == nil {
		return []string{}
	}
	services, err := cfg.GetEnabledServices()
	if err != nil {
		return []string{}
	}
	out := make([]string, 0, len(services))
	for _, mode := range config.ValidServiceModes() {
		if services[mode] {
			out = append(out, string(mode))
		}
	}
	return out
}
