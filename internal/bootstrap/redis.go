package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/target/mmk-media-jobs/config"
)

// redisTarget is a resolved Redis topology ready to be dialled.
type redisTarget struct {
	mode     string
	addrs    []string
	username string
	password string
	opts     *redis.Options
}

// ConnectRedis builds a direct, sentinel or cluster client and pings it.
//
//nolint:ireturn // callers only need the UniversalClient surface.
func ConnectRedis(cfg DatabaseConfig) (redis.UniversalClient, error) {
	client, desc, err := NewRedisClient(cfg.RedisConfig)
	if err != nil {
		return nil, err
	}

	timeout := cfg.RedisConfig.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if pingErr := client.Ping(ctx).Err(); pingErr != nil {
		if closeErr := client.Close(); closeErr != nil {
			pingErr = errors.Join(pingErr, fmt.Errorf("close redis client: %w", closeErr))
		}
		return nil, fmt.Errorf("ping redis: %w", pingErr)
	}
	if cfg.Logger != nil {
		cfg.Logger.Info("redis connected", "addr", desc)
	}
	return client, nil
}

// NewRedisClient constructs the client without dialling. The returned
// description is safe to log.
//
//nolint:ireturn // topology is chosen at runtime.
func NewRedisClient(cfg config.RedisConfig) (redis.UniversalClient, string, error) {
	t, err := resolveRedis(cfg)
	if err != nil {
		return nil, "", err
	}

	switch t.mode {
	case "cluster":
		opts := &redis.ClusterOptions{
			Addrs:       t.addrs,
			Username:    t.username,
			Password:    t.password,
			ClientName:  applicationName,
			PoolSize:    cfg.PoolSize,
			DialTimeout: cfg.DialTimeout,
		}
		if t.opts != nil {
			opts.TLSConfig = t.opts.TLSConfig
		}
		return redis.NewClusterClient(opts), "cluster:" + strings.Join(t.addrs, ","), nil
	case "sentinel":
		return redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:       cfg.SentinelMasterName,
			SentinelAddrs:    t.addrs,
			Password:         t.password,
			SentinelPassword: cfg.SentinelPassword,
			ClientName:       applicationName,
			PoolSize:         cfg.PoolSize,
			DialTimeout:      cfg.DialTimeout,
		}), "sentinel:" + cfg.SentinelMasterName, nil
	default:
		opts := t.opts
		opts.ClientName = applicationName
		if cfg.PoolSize > 0 {
			opts.PoolSize = cfg.PoolSize
		}
		if cfg.DialTimeout > 0 {
			opts.DialTimeout = cfg.DialTimeout
		}
		return redis.NewClient(opts), opts.Addr, nil
	}
}

func resolveRedis(cfg config.RedisConfig) (*redisTarget, error) {
	uri := strings.TrimSpace(cfg.URI)

	switch {
	case cfg.UseCluster:
		t := &redisTarget{mode: "cluster", addrs: trimAll(cfg.ClusterNodes), password: cfg.Password}
		if len(t.addrs) > 0 || uri == "" {
			if len(t.addrs) == 0 {
				return nil, errors.New("redis cluster configuration requires at least one address")
			}
			return t, nil
		}
		opts, err := parseRedisURI(uri, cfg.Password)
		if err != nil {
			return nil, fmt.Errorf("parse redis cluster url: %w", err)
		}
		t.addrs = []string{opts.Addr}
		t.username = opts.Username
		t.password = opts.Password
		t.opts = opts
		return t, nil

	case cfg.UseSentinel:
		nodes := trimAll(cfg.SentinelNodes)
		if len(nodes) == 0 {
			return nil, errors.New("redis sentinel configuration requires at least one sentinel node")
		}
		return &redisTarget{mode: "sentinel", addrs: nodes, password: cfg.Password}, nil

	default:
		if uri == "" {
			return nil, errors.New("redis direct configuration requires a URI")
		}
		opts, err := parseRedisURI(uri, cfg.Password)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return &redisTarget{mode: "direct", addrs: []string{opts.Addr}, opts: opts}, nil
	}
}

// parseRedisURI accepts redis:// and rediss:// URLs or a bare host:port.
// A password embedded in the URL wins over fallbackPassword.
func parseRedisURI(uri, fallbackPassword string) (*redis.Options, error) {
	if !strings.HasPrefix(uri, "redis://") && !strings.HasPrefix(uri, "rediss://") {
		return &redis.Options{Addr: uri, Password: fallbackPassword}, nil
	}
	opts, err := redis.ParseURL(uri)
	if err != nil {
		return nil, err
	}
	if opts.Password == "" {
		opts.Password = fallbackPassword
	}
	return opts, nil
}

func trimAll(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
