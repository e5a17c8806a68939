package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// HTTPSinkConfig configures delivery to the email collaborator.
type HTTPSinkConfig struct {
	Endpoint string
	Timeout  time.Duration
	// Client overrides the transport. When OAuth2 credentials are set it becomes the
	// base client used for token requests and calls.
	Client *http.Client

	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

// HTTPSink POSTs messages as JSON to the email collaborator.
type HTTPSink struct {
	endpoint string
	client   *http.Client
}

// NewHTTPSink builds an HTTPSink. With ClientID and TokenURL set, requests carry a bearer
// token obtained through the OAuth2 client credentials grant.
func NewHTTPSink(cfg HTTPSinkConfig) (*HTTPSink, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("notification endpoint is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	base := cfg.Client
	if base == nil {
		base = &http.Client{Timeout: timeout}
	}

	client := base
	if cfg.ClientID != "" && cfg.TokenURL != "" {
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		client = cc.Client(ctx)
		client.Timeout = timeout
	}
	return &HTTPSink{endpoint: endpoint, client: client}, nil
}

// SendCompletion posts msg and expects a 2xx.
func (h *HTTPSink) SendCompletion(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("notification request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notification endpoint %s: %s", resp.Status, strings.TrimSpace(string(excerpt)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
