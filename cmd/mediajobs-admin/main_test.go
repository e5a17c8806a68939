package main

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/mmk-media-jobs/config"
	"github.com/target/mmk-media-jobs/internal/bootstrap"
	"github.com/target/mmk-media-jobs/internal/core"
	"github.com/target/mmk-media-jobs/internal/domain/webhook"
)

func testApp(t *testing.T) (*app, redis.UniversalClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	a := newApp(slog.New(slog.NewTextHandler(io.Discard, nil)))
	a.loadConfig = func() (config.AppConfig, error) { return config.AppConfig{}, nil }
	a.connect = func(opts *connectInfraOptions) (*sql.DB, redis.UniversalClient, error) {
		require.False(t, opts.WantDB, "test commands must not need postgres")
		return nil, client, nil
	}
	return a, client
}

func execute(t *testing.T, a *app, stdin string, args ...string) (string, string, error) {
	t.Helper()
	root := newRootCmd(a)
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--no-color"}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestWebhookSignAndVerify(t *testing.T) {
	a := newApp(slog.New(slog.NewTextHandler(io.Discard, nil)))
	body := `{"event":"processing.completed"}`
	want := webhook.Sign([]byte(body), "whsec_test")

	out, _, err := execute(t, a, "", "webhook", "sign", "--secret", "whsec_test", "--body", body)
	require.NoError(t, err)
	assert.Equal(t, want+"\n", out)

	out, _, err = execute(t, a, body, "webhook", "sign", "--secret", "whsec_test", "--body-file", "-")
	require.NoError(t, err)
	assert.Equal(t, want+"\n", out)

	out, _, err = execute(t, a, "", "webhook", "verify", "--secret", "whsec_test", "--body", body, "--signature", want)
	require.NoError(t, err)
	assert.Equal(t, "signature valid\n", out)

	_, _, err = execute(t, a, "", "webhook", "verify", "--secret", "other", "--body", body, "--signature", want)
	require.ErrorIs(t, err, errSignatureMismatch)

	_, _, err = execute(t, a, "", "webhook", "sign", "--body", body)
	require.Error(t, err, "secret is required")

	assert.Nil(t, a.cfg, "signing never loads configuration")
}

func deadLetterOne(t *testing.T, client redis.UniversalClient, id string) {
	t.Helper()
	ctx := context.Background()
	jobs, _, err := bootstrap.BuildBrokers(client, nil)
	require.NoError(t, err)
	require.NoError(t, jobs.Enqueue(ctx, core.EnqueueParams{ID: id, Lane: "high", Payload: []byte(`{}`)}))
	lease, err := jobs.Reserve(ctx, []string{"high"}, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, lease)
	require.NoError(t, jobs.DeadLetter(ctx, lease, "record missing"))
}

func TestQueueStats(t *testing.T) {
	a, client := testApp(t)
	ctx := context.Background()
	jobs, _, err := bootstrap.BuildBrokers(client, nil)
	require.NoError(t, err)
	require.NoError(t, jobs.Enqueue(ctx, core.EnqueueParams{ID: "job-1", Lane: "default", Payload: []byte(`{}`)}))
	require.NoError(t, jobs.Enqueue(ctx, core.EnqueueParams{ID: "job-2", Lane: "low", Payload: []byte(`{}`), Delay: time.Hour}))
	deadLetterOne(t, client, "job-3")

	out, _, err := execute(t, a, "", "queue", "stats")
	require.NoError(t, err)

	assert.Regexp(t, `mediajobs:jobs\s+default\s+1\s+0`, out)
	assert.Regexp(t, `mediajobs:jobs\s+low\s+0\s+1`, out)
	assert.Regexp(t, `mediajobs:webhooks\s+deliveries\s+0\s+0`, out)
	assert.Contains(t, out, "mediajobs:jobs: 0 leased, 1 dead-lettered")

	_, _, err = execute(t, a, "", "queue", "stats", "--queue", "emails")
	require.ErrorIs(t, err, errUsage)
}

func TestDeadLetterListAndReplay(t *testing.T) {
	a, client := testApp(t)
	deadLetterOne(t, client, "job-9")

	out, _, err := execute(t, a, "", "queue", "dead-letter", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "job-9")
	assert.Contains(t, out, "record missing")

	out, errOut, err := execute(t, a, "", "queue", "dlq", "replay", "job-9", "job-404")
	require.Error(t, err)
	assert.Contains(t, out, "replayed job-9")
	assert.Contains(t, errOut, "job-404 is not dead-lettered")

	out, _, err = execute(t, a, "", "queue", "dead-letter", "list")
	require.NoError(t, err)
	assert.Equal(t, "no dead-lettered items\n", out)

	stats, err := mustJobBroker(t, client).Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Ready["high"])
}

func mustJobBroker(t *testing.T, client redis.UniversalClient) core.Broker {
	t.Helper()
	jobs, _, err := bootstrap.BuildBrokers(client, nil)
	require.NoError(t, err)
	return jobs
}

func TestDevSeedRequiresDevMode(t *testing.T) {
	a, _ := testApp(t)

	_, _, err := execute(t, a, "", "dev-seed")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "DEV=true")
}
