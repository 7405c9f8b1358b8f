// Package layerv talks to the LayerV QURL API and its OAuth token endpoint.
package layerv

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	defaultExpiresIn = "24h"
	defaultTokenTTL  = 3600 * time.Second
	// Tokens are refreshed once they are within this window of expiry.
	tokenRefreshSlack = 5 * time.Minute
)

type Config struct {
	APIURL           string
	TokenURL         string
	ClientID         string
	ClientSecret     string
	Audience         string
	DefaultExpiresIn string
	HTTPClient       *http.Client
	Logger           *slog.Logger
	Now              func() time.Time
}

type Client struct {
	http             *http.Client
	apiURL           string
	tokenURL         string
	clientID         string
	clientSecret     string
	audience         string
	defaultExpiresIn string
	logger           *slog.Logger
	nowFn            func() time.Time

	mu             sync.Mutex
	token          string
	tokenExpiresAt time.Time
	refresh        singleflight.Group
}

func New(cfg Config) (*Client, error) {
	apiURL := strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	if apiURL == "" {
		return nil, fmt.Errorf("layerv api url is required")
	}
	tokenURL := strings.TrimSpace(cfg.TokenURL)
	if tokenURL == "" {
		return nil, fmt.Errorf("layerv token url is required")
	}
	clientID := strings.TrimSpace(cfg.ClientID)
	if clientID == "" {
		return nil, fmt.Errorf("layerv client id is required")
	}
	clientSecret := strings.TrimSpace(cfg.ClientSecret)
	if clientSecret == "" {
		return nil, fmt.Errorf("layerv client secret is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	expiresIn := strings.TrimSpace(cfg.DefaultExpiresIn)
	if expiresIn == "" {
		expiresIn = defaultExpiresIn
	}
	return &Client{
		http:             httpClient,
		apiURL:           apiURL,
		tokenURL:         tokenURL,
		clientID:         clientID,
		clientSecret:     clientSecret,
		audience:         strings.TrimSpace(cfg.Audience),
		defaultExpiresIn: expiresIn,
		logger:           logger,
		nowFn:            nowFn,
	}, nil
}

// APIError carries the provider's error detail for a failed QURL request.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	return e.Detail
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// AccessToken returns the cached bearer token, refreshing it when absent or
// within five minutes of expiry. Concurrent callers needing a refresh share
// a single token exchange.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	if token, ok := c.cachedToken(); ok {
		return token, nil
	}

	fresh, err, _ := c.refresh.Do("token", func() (any, error) {
		// A sibling flight may have refreshed between the staleness check
		// and entering the flight; reuse its token instead of exchanging.
		if token, ok := c.cachedToken(); ok {
			return token, nil
		}
		return c.exchangeToken(ctx)
	})
	if err != nil {
		return "", err
	}
	return fresh.(string), nil
}

func (c *Client) cachedToken() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" || !c.nowFn().Before(c.tokenExpiresAt.Add(-tokenRefreshSlack)) {
		return "", false
	}
	return c.token, true
}

func (c *Client) exchangeToken(ctx context.Context) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"client_id":     c.clientID,
		"client_secret": c.clientSecret,
		"audience":      c.audience,
		"grant_type":    "client_credentials",
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("layerv token exchange: %w", err)
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return "", readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("layerv token exchange http %d", resp.StatusCode)
	}
	var out tokenResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("layerv token exchange: %w", err)
	}
	token := strings.TrimSpace(out.AccessToken)
	if token == "" {
		return "", fmt.Errorf("layerv token exchange returned empty access_token")
	}
	ttl := defaultTokenTTL
	if out.ExpiresIn > 0 {
		ttl = time.Duration(out.ExpiresIn) * time.Second
	}

	c.mu.Lock()
	c.token = token
	c.tokenExpiresAt = c.nowFn().Add(ttl)
	c.mu.Unlock()
	c.logger.Debug("layerv_token_refreshed", "ttl", ttl.String())
	return token, nil
}

type CreateRequest struct {
	TargetURL   string
	ExpiresIn   string
	Description string
	OneTimeUse  bool
}

type QURL struct {
	ResourceID string
	Link       string
	Site       string
	ExpiresAt  string
}

type createPayload struct {
	TargetURL   string `json:"target_url"`
	ExpiresIn   string `json:"expires_in"`
	OneTimeUse  bool   `json:"one_time_use"`
	Description string `json:"description,omitempty"`
}

type createResponse struct {
	Data struct {
		ResourceID string `json:"resource_id"`
		QURLLink   string `json:"qurl_link"`
		QURLSite   string `json:"qurl_site"`
		ExpiresAt  string `json:"expires_at"`
	} `json:"data"`
	Error struct {
		Detail string `json:"detail"`
	} `json:"error"`
}

// CreateQURL mints one proxy link for req.TargetURL. Calls for different
// URLs are independent and safe to issue concurrently.
func (c *Client) CreateQURL(ctx context.Context, req CreateRequest) (QURL, error) {
	target := strings.TrimSpace(req.TargetURL)
	if target == "" {
		return QURL{}, fmt.Errorf("target url is required")
	}
	token, err := c.AccessToken(ctx)
	if err != nil {
		return QURL{}, err
	}

	expiresIn := strings.TrimSpace(req.ExpiresIn)
	if expiresIn == "" {
		expiresIn = c.defaultExpiresIn
	}
	payload, err := json.Marshal(createPayload{
		TargetURL:   target,
		ExpiresIn:   expiresIn,
		OneTimeUse:  req.OneTimeUse,
		Description: strings.TrimSpace(req.Description),
	})
	if err != nil {
		return QURL{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/v1/qurl", bytes.NewReader(payload))
	if err != nil {
		return QURL{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return QURL{}, fmt.Errorf("layerv create qurl: %w", err)
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return QURL{}, readErr
	}

	var out createResponse
	if err := json.Unmarshal(raw, &out); err != nil && resp.StatusCode == http.StatusCreated {
		return QURL{}, fmt.Errorf("layerv create qurl: %w", err)
	}
	if resp.StatusCode != http.StatusCreated {
		detail := strings.TrimSpace(out.Error.Detail)
		if detail == "" {
			detail = "Unknown error"
		}
		return QURL{}, &APIError{Status: resp.StatusCode, Detail: detail}
	}
	return QURL{
		ResourceID: out.Data.ResourceID,
		Link:       out.Data.QURLLink,
		Site:       out.Data.QURLSite,
		ExpiresAt:  out.Data.ExpiresAt,
	}, nil
}
