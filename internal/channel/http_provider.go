package channel

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gojektech/heimdall/v6"
	"github.com/gojektech/heimdall/v6/httpclient"

	"github.com/fanstage/live-service/internal/config"
	"github.com/fanstage/live-service/pkg/log"
)

// HTTPProvider drives the encoder control API over HTTP. Calls are
// retried with constant backoff since a transient encoder hiccup should
// not fail a lifecycle transition outright.
type HTTPProvider struct {
	client  *httpclient.Client
	baseURL string
	apiKey  string
}

// NewHTTPProvider creates an encoder control client.
func NewHTTPProvider(cfg config.EncoderConfig) *HTTPProvider {
	backoff := heimdall.NewConstantBackoff(cfg.RetryWait, 5*time.Millisecond)
	retrier := heimdall.NewRetrier(backoff)

	client := httpclient.NewClient(
		httpclient.WithHTTPTimeout(cfg.RequestTimeout),
		httpclient.WithRetrier(retrier),
		httpclient.WithRetryCount(cfg.RetryCount),
	)

	return &HTTPProvider{
		client:  client,
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
	}
}

// StartChannel asks the encoder to begin ingesting for channelRef.
func (p *HTTPProvider) StartChannel(ctx context.Context, channelRef string) error {
	return p.command(ctx, channelRef, "start")
}

// StopChannel asks the encoder to stop ingesting for channelRef.
func (p *HTTPProvider) StopChannel(ctx context.Context, channelRef string) error {
	return p.command(ctx, channelRef, "stop")
}

func (p *HTTPProvider) command(ctx context.Context, channelRef, action string) error {
	url := fmt.Sprintf("%s/v1/channels/%s/%s", p.baseURL, channelRef, action)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build encoder request: %w", err)
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("encoder %s call failed: %w", action, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("encoder %s returned status %d", action, resp.StatusCode)
	}

	l := log.Ctx(ctx)
	l.Debug().Str("channel_ref", channelRef).Str("action", action).Msg("encoder command accepted")
	return nil
}
