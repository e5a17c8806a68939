package config

import (
	"strings"
	"time"
)

const defaultObservabilityName = "mediajobs"

// ObservabilityConfig groups configuration that controls metrics, completion notices and
// operator alerts.
type ObservabilityConfig struct {
	Metrics       ObservabilityMetricsConfig
	Notifications ObservabilityNotificationsConfig
	Completion    CompletionNotifyConfig
}

// Sanitize applies guardrails to observability sub-configs.
func (c *ObservabilityConfig) Sanitize() {
	c.Metrics.Sanitize()
	c.Notifications.Sanitize()
	c.Completion.Sanitize()
}

// ObservabilityMetricsConfig controls emission of metrics to external sinks such as StatsD.
type ObservabilityMetricsConfig struct {
	Enabled       bool   `env:"OBSERVABILITY_METRICS_ENABLED"        envDefault:"false"`
	StatsdAddress string `env:"OBSERVABILITY_METRICS_STATSD_ADDRESS" envDefault:"127.0.0.1:8125"`
	Prefix        string `env:"OBSERVABILITY_METRICS_PREFIX"         envDefault:"mediajobs"`
	// Tags are added to every metric, e.g. "env:prod,region:us-east".
	Tags map[string]string `env:"OBSERVABILITY_METRICS_TAGS"`
}

// Sanitize normalises derived fields and enforces safe defaults.
func (c *ObservabilityMetricsConfig) Sanitize() {
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	if c.StatsdAddress == "" {
		c.Enabled = false
	}
}

// IsEnabled returns true when metrics emission is active after sanitisation.
func (c *ObservabilityMetricsConfig) IsEnabled() bool {
	return c.Enabled && c.StatsdAddress != ""
}

// ObservabilityNotificationsConfig controls operator alerts for jobs that fail terminally.
type ObservabilityNotificationsConfig struct {
	Enabled    bool                    `env:"OBSERVABILITY_NOTIFICATIONS_ENABLED"     envDefault:"false"`
	Timeout    time.Duration           `env:"OBSERVABILITY_NOTIFICATIONS_TIMEOUT"     envDefault:"5s"`
	RetryLimit int                     `env:"OBSERVABILITY_NOTIFICATIONS_RETRY_LIMIT" envDefault:"3"`
	Slack      SlackNotificationConfig `                                                                 envPrefix:"OBSERVABILITY_NOTIFICATIONS_SLACK_"`
}

// Sanitize normalises notification configuration values.
func (c *ObservabilityNotificationsConfig) Sanitize() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.RetryLimit < 0 {
		c.RetryLimit = 0
	}

	c.Slack.sanitize()

	if !c.Enabled {
		c.Slack.Enabled = false
		return
	}

	if c.Slack.Enabled && c.Slack.WebhookURL == "" {
		c.Slack.Enabled = false
	}
}

// SlackNotificationConfig controls Slack webhook fan-out.
type SlackNotificationConfig struct {
	Enabled       bool   `env:"ENABLED"         envDefault:"false"`
	WebhookURL    string `env:"WEBHOOK_URL"`
	Channel       string `env:"CHANNEL"`
	Username      string `env:"USERNAME"        envDefault:"mediajobs"`
	SiteURLPrefix string `env:"SITE_URL_PREFIX"`
}

func (c *SlackNotificationConfig) sanitize() {
	c.WebhookURL = strings.TrimSpace(c.WebhookURL)
	c.Channel = strings.TrimSpace(c.Channel)
	c.SiteURLPrefix = strings.TrimSpace(c.SiteURLPrefix)
	if c.Username == "" {
		c.Username = defaultObservabilityName
	}
}

// CompletionNotifyConfig controls the completion notice sent to job owners through the
// email collaborator.
type CompletionNotifyConfig struct {
	// Endpoint is the email collaborator URL; empty logs notices only.
	Endpoint string        `env:"NOTIFY_ENDPOINT"`
	Timeout  time.Duration `env:"NOTIFY_TIMEOUT"  envDefault:"10s"`

	// OAuth2 client credentials for the collaborator; all three enable authentication.
	ClientID     string   `env:"NOTIFY_CLIENT_ID"`
	ClientSecret string   `env:"NOTIFY_CLIENT_SECRET"`
	TokenURL     string   `env:"NOTIFY_TOKEN_URL"`
	Scopes       []string `env:"NOTIFY_SCOPES"        envSeparator:","`

	// AssetBaseURL builds the asset link when a notice has no better name.
	AssetBaseURL string `env:"ASSET_BASE_URL" envDefault:"http://localhost:8080/assets"`
	DashboardURL string `env:"DASHBOARD_URL"`
}

// Sanitize trims URLs.
func (c *CompletionNotifyConfig) Sanitize() {
	c.Endpoint = strings.TrimSpace(c.Endpoint)
	c.TokenURL = strings.TrimSpace(c.TokenURL)
	c.AssetBaseURL = strings.TrimRight(strings.TrimSpace(c.AssetBaseURL), "/")
	c.DashboardURL = strings.TrimRight(strings.TrimSpace(c.DashboardURL), "/")
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
}

// OAuthEnabled reports whether client-credentials authentication is configured.
func (c *CompletionNotifyConfig) OAuthEnabled() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.TokenURL != ""
}
