package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/backend-pos/internal/resilience"
)

var (
	// ErrUnavailable wraps transport failures and 5xx answers of the catalog backend.
	ErrUnavailable = errors.New("catalog unavailable")
	// ErrNotFound is returned when the backend does not know the product.
	ErrNotFound = errors.New("product not found")
)

var clientNopLogger = zerolog.Nop()

// ClientConfig configures the catalog backend client.
type ClientConfig struct {
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
	Cache       *Cache
	// Transport overrides the base round tripper. It is wrapped with otelhttp.
	Transport http.RoundTripper
	Breaker   *resilience.Breaker
	Logger    *zerolog.Logger
}

// Client talks to the product search, price and entry settings endpoints.
type Client struct {
	base   *url.URL
	http   resilience.HTTPClient
	cache  *Cache
	logger *zerolog.Logger
	// searches collapses identical concurrent queries from different sessions.
	searches singleflight.Group
}

type envelope[T any] struct {
	Data T `json:"data"`
}

// NewClient constructs a Client.
func NewClient(cfg ClientConfig) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errors.New("catalog: base url is required")
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("catalog: parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("catalog: base url %q must be absolute", raw)
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 2
	}
	breaker := cfg.Breaker
	if breaker == nil {
		breaker = resilience.NewBreaker(10, 0.5, 15*time.Second).WithTarget("catalog")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = &clientNopLogger
	}
	return &Client{
		base: base,
		http: resilience.HTTPClient{
			Client:      &http.Client{Transport: otelhttp.NewTransport(transport)},
			Breaker:     breaker,
			BaseBackoff: 50 * time.Millisecond,
			MaxAttempts: attempts,
			Jitter:      0.2,
			Timeout:     timeout,
		},
		cache:  cfg.Cache,
		logger: logger,
	}, nil
}

// Search returns the products matching query on code or description.
// Results are cached; a cache failure only costs a backend round trip.
func (c *Client) Search(ctx context.Context, query string) ([]Product, error) {
	key := searchKey(query)
	if c.cache.Enabled() {
		var cached []Product
		ok, err := c.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			c.logger.Warn().Err(err).Msg("catalog_cache_read_failed")
		} else if ok {
			return cached, nil
		}
	}

	ch := c.searches.DoChan(key, func() (any, error) {
		var out envelope[[]Product]
		params := url.Values{"q": []string{query}}
		if err := c.get(context.WithoutCancel(ctx), "/api/products/search", params, &out); err != nil {
			return nil, err
		}
		if out.Data == nil {
			out.Data = []Product{}
		}
		if c.cache.Enabled() {
			if err := c.cache.SetJSON(context.WithoutCancel(ctx), key, out.Data); err != nil {
				c.logger.Warn().Err(err).Msg("catalog_cache_write_failed")
			}
		}
		return out.Data, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		products := res.Val.([]Product)
		return append([]Product(nil), products...), nil
	}
}

// Price asks for the unit price of a product under list. Never cached.
func (c *Client) Price(ctx context.Context, productID int64, list PriceList) (PriceQuote, error) {
	var out envelope[PriceQuote]
	path := "/api/products/" + strconv.FormatInt(productID, 10) + "/price"
	params := url.Values{"list": []string{string(list)}}
	if err := c.get(ctx, path, params, &out); err != nil {
		return PriceQuote{}, err
	}
	return out.Data, nil
}

// EntrySettings returns the backend entry configuration.
func (c *Client) EntrySettings(ctx context.Context) (EntrySettings, error) {
	var out envelope[EntrySettings]
	if err := c.get(ctx, "/api/settings/entry", nil, &out); err != nil {
		return EntrySettings{}, err
	}
	return out.Data, nil
}

// Ping checks that the backend answers the settings endpoint.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.EntrySettings(ctx)
	return err
}

func (c *Client) get(ctx context.Context, path string, params url.Values, dst any) error {
	u := *c.base
	u.Path = c.base.Path + path
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%w: GET %s: %w", ErrUnavailable, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("GET %s: %w", path, ErrNotFound)
	case resp.StatusCode >= 300:
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: GET %s: status %d", ErrUnavailable, path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: GET %s: decode: %w", ErrUnavailable, path, err)
	}
	return nil
}
