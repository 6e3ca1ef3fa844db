package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/matzehuels/metarender/pkg/cache"
)

const httpTimeout = 30 * time.Second

// ErrNotFound is returned when a channel has no index for a subdir.
var ErrNotFound = errors.New("resource not found")

// httpClient provides cached, retried JSON requests.
type httpClient struct {
	http      *http.Client
	cache     cache.Cache
	keyPrefix string
	ttl       time.Duration
	headers   map[string]string
	backoff   cache.Backoff
}

func newHTTPClient(backend cache.Cache, keyPrefix string, ttl time.Duration, headers map[string]string) *httpClient {
	if backend == nil {
		backend = cache.NewNullCache()
	}
	return &httpClient{
		http:      &http.Client{Timeout: httpTimeout},
		cache:     backend,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		headers:   headers,
		backoff:   cache.DefaultBackoff,
	}
}

// cached retrieves v from the cache or runs fetch and stores the result.
// With refresh the cache is bypassed.
func (c *httpClient) cached(ctx context.Context, key string, refresh bool, v any, fetch func() error) error {
	key = c.keyPrefix + key
	if !refresh {
		if data, ok, err := c.cache.Get(ctx, key); err == nil && ok {
			if json.Unmarshal(data, v) == nil {
				return nil
			}
		}
	}
	if err := c.backoff.Retry(ctx, fetch); err != nil {
		return err
	}
	if data, err := json.Marshal(v); err == nil {
		_ = c.cache.Set(ctx, key, data, c.ttl)
	}
	return nil
}

// get performs a GET request and JSON-decodes the response into v.
func (c *httpClient) get(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	for k, val := range c.headers {
		req.Header.Set(k, val)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return cache.Retryable(fmt.Errorf("%w: %v", cache.ErrNetwork, err))
	}
	defer resp.Body.Close()

	if err := checkStatus(resp.StatusCode); err != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%s: %w", url, err)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func checkStatus(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code >= 500:
		return cache.Retryable(fmt.Errorf("%w: status %d", cache.ErrNetwork, code))
	default:
		return fmt.Errorf("%w: status %d", cache.ErrNetwork, code)
	}
}
