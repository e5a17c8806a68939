package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/mmk-media-jobs/internal/data/cryptoutil"
)

// CreateSealer builds the AES-GCM sealer protecting webhook signing secrets at rest.
// Development may run without ENCRYPTION_KEY, in which case secrets are stored unsealed.
//
//nolint:ireturn // Returning interface is intentional for sealer abstraction
func CreateSealer(key string, isDev bool, logger *slog.Logger) (cryptoutil.Sealer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if key == "" {
		if !isDev {
			return nil, errors.New("ENCRYPTION_KEY is required outside development")
		}
		logger.Warn("encryption key is empty, webhook secrets are stored unsealed")
		return cryptoutil.NoopSealer{}, nil
	}

	raw, err := cryptoutil.ParseKey(key)
	if err != nil {
		return nil, fmt.Errorf("parse ENCRYPTION_KEY: %w", err)
	}
	sealer, err := cryptoutil.NewGCMSealer(raw)
	if err != nil {
		return nil, fmt.Errorf("create sealer: %w", err)
	}
	return sealer, nil
}
