package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/mmk-media-jobs/config"
	"github.com/target/mmk-media-jobs/internal/domain/model"
	"github.com/target/mmk-media-jobs/internal/observability/notify"
	"github.com/target/mmk-media-jobs/internal/service/failurenotifier"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func devConfig() *config.AppConfig {
	cfg := &config.AppConfig{
		IsDev:    true,
		Services: "http,worker,dispatcher,reaper",
		Auth: config.AuthConfig{
			Mode:    config.AuthModeMock,
			DevAuth: config.DevAuthConfig{OwnerID: "dev-owner"},
		},
	}
	cfg.Sanitize()
	return cfg
}

func TestNewServices(t *testing.T) {
	_, client := newTestRedis(t)

	svcs, err := NewServices(context.Background(), &ServiceDeps{
		Config:      devConfig(),
		RedisClient: client,
		Logger:      discardLogger(),
	})
	require.NoError(t, err)

	assert.NotNil(t, svcs.Jobs)
	assert.NotNil(t, svcs.Lifecycle)
	assert.NotNil(t, svcs.Webhooks)
	assert.NotNil(t, svcs.Dispatcher)
	assert.NotNil(t, svcs.Verifier)
	assert.NotNil(t, svcs.Progress)
	assert.Equal(t, "mediajobs:jobs", svcs.JobBroker.Name())
	assert.Equal(t, "mediajobs:webhooks", svcs.WebhookBroker.Name())
	assert.Equal(t, model.DefaultPolicies(), svcs.Policies)
	assert.Nil(t, svcs.Observability.MetricsSink)
	assert.NotNil(t, svcs.Observability.Notifications)
}

func TestNewServices_RequiresEncryptionKeyOutsideDev(t *testing.T) {
	_, client := newTestRedis(t)
	cfg := devConfig()
	cfg.IsDev = false

	_, err := NewServices(context.Background(), &ServiceDeps{Config: cfg, RedisClient: client, Logger: discardLogger()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ENCRYPTION_KEY")
}

func TestLoadPolicies(t *testing.T) {
	policies, err := LoadPolicies(&config.AppConfig{})
	require.NoError(t, err)
	assert.Equal(t, model.DefaultPolicies(), policies)

	_, err = LoadPolicies(&config.AppConfig{PolicyFile: filepath.Join(t.TempDir(), "missing.yaml")})
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "policies.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o600))
	policies, err = LoadPolicies(&config.AppConfig{PolicyFile: path})
	require.NoError(t, err)
	assert.Equal(t, model.DefaultPolicies(), policies)
}

func TestBuildBackgroundServices(t *testing.T) {
	deps := &serviceStartupDeps{
		cfg:    &ServiceOrchestrationConfig{Config: devConfig()},
		logger: discardLogger(),
	}

	var modes []config.ServiceMode
	for _, svc := range buildBackgroundServices(deps) {
		modes = append(modes, svc.mode)
	}
	assert.Equal(t, []config.ServiceMode{
		config.ServiceModeWorker,
		config.ServiceModeDispatcher,
		config.ServiceModeReaper,
	}, modes)
}

func TestLaunchBackground(t *testing.T) {
	ctx := context.Background()
	errCh := make(chan error, 1)
	deps := &serviceStartupDeps{
		ctx:             ctx,
		logger:          discardLogger(),
		enabledServices: map[config.ServiceMode]bool{config.ServiceModeWorker: true},
		errCh:           errCh,
	}

	done := launchBackground(ctx, deps, backgroundService{
		mode:  config.ServiceModeReaper,
		name:  "reaper",
		start: func(context.Context) error { return nil },
	})
	assert.Nil(t, done, "disabled services are not started")

	done = launchBackground(ctx, deps, backgroundService{
		mode:  config.ServiceModeWorker,
		name:  "job worker",
		start: func(context.Context) error { return errors.New("broker unreachable") },
	})
	require.NotNil(t, done)
	<-done

	select {
	case err := <-errCh:
		assert.EqualError(t, err, "job worker failed: broker unreachable")
	case <-time.After(time.Second):
		t.Fatal("expected error from background service")
	}
}

func TestGracefulStop_DrainsFailureAlerts(t *testing.T) {
	delivered := make(chan struct{})
	alerts := failurenotifier.NewService(failurenotifier.Options{
		Sinks: []failurenotifier.SinkRegistration{{Name: "slow", Sink: notify.SinkFunc(
			func(context.Context, notify.JobFailurePayload) error {
				time.Sleep(50 * time.Millisecond)
				close(delivered)
				return nil
			})}},
	})
	alerts.NotifyJobFailure(context.Background(), notify.JobFailurePayload{JobID: "job-1"})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, gracefulStop(shutdownConfig{
		ctx:    ctx,
		cancel: cancel,
		alerts: alerts,
		logger: discardLogger(),
	}))

	select {
	case <-delivered:
	default:
		t.Fatal("graceful stop returned before the alert was delivered")
	}
}

func TestLaunchBackground_CancellationIsNotAnError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	deps := &serviceStartupDeps{
		ctx:             ctx,
		logger:          discardLogger(),
		enabledServices: map[config.ServiceMode]bool{config.ServiceModeReaper: true},
		errCh:           errCh,
	}

	done := launchBackground(ctx, deps, backgroundService{
		mode: config.ServiceModeReaper,
		name: "reaper",
		start: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})
	cancel()
	<-done

	assert.Empty(t, errCh)
}

func TestReadinessChecks(t *testing.T) {
	mr, client := newTestRedis(t)

	checks := readinessChecks(nil, client)
	require.Len(t, checks, 1)
	assert.Equal(t, "redis", checks[0].Name)
	require.NoError(t, checks[0].Check(context.Background()))

	mr.Close()
	require.Error(t, checks[0].Check(context.Background()))
}
