package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/planvisor/planvisor/pkg/telemetry"
)

const (
	defaultRequestTimeout = 60 * time.Second
	maxErrorBody          = 512
)

// Config holds the connection settings for the analysis service.
type Config struct {
	// BaseURL is the service API root, e.g. "https://turbo.example.com/api/v2".
	BaseURL string
	// Username and Password select basic authentication.
	Username string
	Password string
	// Token selects bearer authentication and takes precedence over
	// Username/Password.
	Token string
	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool
	// RequestTimeout bounds each individual request.
	RequestTimeout time.Duration

	Logger  zerolog.Logger
	Metrics *telemetry.Metrics
}

// Client is the HTTP implementation of the analysis-service handle. All
// methods are safe for concurrent use.
type Client struct {
	base    string
	cfg     Config
	http    *http.Client
	log     zerolog.Logger
	metrics *telemetry.Metrics

	mu      sync.Mutex
	version string
}

// NewClient creates a client for the service at cfg.BaseURL.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("api: base URL is required")
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Client{
		base: strings.TrimSuffix(cfg.BaseURL, "/"),
		cfg:  cfg,
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.RequestTimeout,
		},
		log:     cfg.Logger.With().Str("component", "api-client").Logger(),
		metrics: cfg.Metrics,
	}, nil
}

// Version returns the protocol version the service reports. The value is
// cached after the first successful call.
func (c *Client) Version(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.version != "" {
		return c.version, nil
	}
	var info versionInfo
	if err := c.do(ctx, http.MethodGet, "admin/versions", nil, nil, &info); err != nil {
		return "", err
	}
	if info.Version == "" {
		return "", fmt.Errorf("api: service did not report a version")
	}
	c.version = info.Version
	return c.version, nil
}

// CreateScenario creates a scenario from the wire DTO. The display name is
// embedded in the DTO.
func (c *Client) CreateScenario(ctx context.Context, dto map[string]any) (*Resource, error) {
	var res Resource
	if err := c.do(ctx, http.MethodPost, "scenarios", nil, dto, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// CreateScenarioNamed creates a scenario on the legacy name-addressed path.
func (c *Client) CreateScenarioNamed(ctx context.Context, name string, dto map[string]any) (*Resource, error) {
	var res Resource
	path := "scenarios/" + url.PathEscape(name)
	if err := c.do(ctx, http.MethodPost, path, nil, dto, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ApplyScenario creates a plan market by applying a scenario to the base
// market.
func (c *Client) ApplyScenario(ctx context.Context, baseMarket, scenarioID string, params url.Values) (*Resource, error) {
	var res Resource
	path := fmt.Sprintf("markets/%s/scenarios/%s", url.PathEscape(baseMarket), url.PathEscape(scenarioID))
	if err := c.do(ctx, http.MethodPost, path, params, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Market fetches the current state of a market.
func (c *Client) Market(ctx context.Context, id string) (*Market, error) {
	var m Market
	if err := c.do(ctx, http.MethodGet, "markets/"+url.PathEscape(id), nil, nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// StopMarket requests a stop of a running market. The stop is asynchronous;
// callers observe the outcome by polling.
func (c *Client) StopMarket(ctx context.Context, id string) error {
	params := url.Values{"operation": []string{"stop"}}
	return c.do(ctx, http.MethodPut, "markets/"+url.PathEscape(id), params, nil, nil)
}

// DeleteMarket removes a plan market.
func (c *Client) DeleteMarket(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "markets/"+url.PathEscape(id), nil, nil, nil)
}

// DeleteScenario removes a scenario.
func (c *Client) DeleteScenario(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "scenarios/"+url.PathEscape(id), nil, nil, nil)
}

// LookupEntity fetches a single topology entity or group by UUID.
func (c *Client) LookupEntity(ctx context.Context, id string) (*Entity, error) {
	var e Entity
	if err := c.do(ctx, http.MethodGet, "entities/"+url.PathEscape(id), nil, nil, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// SearchEntities lists entities of the given type within a scope.
func (c *Client) SearchEntities(ctx context.Context, entityType string, scope []string) ([]Entity, error) {
	params := url.Values{"types": []string{entityType}}
	for _, s := range scope {
		params.Add("scopes", s)
	}
	var out []Entity
	if err := c.do(ctx, http.MethodGet, "search", params, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body, out any) error {
	endpoint := c.base + "/" + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("api: build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case c.cfg.Token != "":
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	case c.cfg.Username != "":
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.RecordAPICall(method, path, 0, time.Since(start))
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	c.metrics.RecordAPICall(method, path, resp.StatusCode, time.Since(start))
	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("api call")

	if resp.StatusCode >= 300 {
		bodyText := ""
		if err == nil {
			bodyText = string(data)
			if len(bodyText) > maxErrorBody {
				bodyText = bodyText[:maxErrorBody]
			}
		}
		return &StatusError{
			StatusCode: resp.StatusCode,
			Method:     method,
			Path:       path,
			Body:       strings.TrimSpace(bodyText),
		}
	}
	if err != nil {
		return fmt.Errorf("api: read %s %s: %w", method, path, err)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("api: decode %s %s: %w", method, path, err)
		}
	}
	return nil
}
