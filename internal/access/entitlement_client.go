package access

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gojektech/heimdall/v6"
	"github.com/gojektech/heimdall/v6/httpclient"

	"github.com/fanstage/live-service/internal/config"
)

// HTTPEntitlementClient calls the billing service's entitlement API.
type HTTPEntitlementClient struct {
	client  *httpclient.Client
	baseURL string
}

// NewHTTPEntitlementClient creates an entitlement client with retries.
func NewHTTPEntitlementClient(cfg config.EntitlementConfig) *HTTPEntitlementClient {
	backoff := heimdall.NewConstantBackoff(cfg.RetryWait, 5*time.Millisecond)
	retrier := heimdall.NewRetrier(backoff)

	client := httpclient.NewClient(
		httpclient.WithHTTPTimeout(cfg.RequestTimeout),
		httpclient.WithRetrier(retrier),
		httpclient.WithRetryCount(cfg.RetryCount),
	)

	return &HTTPEntitlementClient{
		client:  client,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
	}
}

// HasActiveTier reports whether the user holds an active subscription at
// any of the given tiers.
func (c *HTTPEntitlementClient) HasActiveTier(ctx context.Context, userID string, tierIDs []string) (bool, error) {
	endpoint := fmt.Sprintf("%s/v1/users/%s/tiers/active?tier_ids=%s",
		c.baseURL, url.PathEscape(userID), url.QueryEscape(strings.Join(tierIDs, ",")))
	return c.boolQuery(ctx, endpoint)
}

// HasPaid reports whether the user has a valid payment record for the
// session.
func (c *HTTPEntitlementClient) HasPaid(ctx context.Context, userID, sessionID string) (bool, error) {
	endpoint := fmt.Sprintf("%s/v1/users/%s/payments/%s",
		c.baseURL, url.PathEscape(userID), url.PathEscape(sessionID))
	return c.boolQuery(ctx, endpoint)
}

// OwnsTiers reports whether every tier id belongs to the given creator.
// Used when gated sessions are created.
func (c *HTTPEntitlementClient) OwnsTiers(ctx context.Context, ownerID string, tierIDs []string) (bool, error) {
	endpoint := fmt.Sprintf("%s/v1/creators/%s/tiers/contains?tier_ids=%s",
		c.baseURL, url.PathEscape(ownerID), url.QueryEscape(strings.Join(tierIDs, ",")))
	return c.boolQuery(ctx, endpoint)
}

func (c *HTTPEntitlementClient) boolQuery(ctx context.Context, endpoint string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("failed to build entitlement request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("entitlement call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("entitlement service returned status %d", resp.StatusCode)
	}

	var body struct {
		Entitled bool `json:"entitled"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("failed to decode entitlement response: %w", err)
	}
	return body.Entitled, nil
}
