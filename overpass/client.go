// Package overpass retrieves the reference dataset from an Overpass API
// endpoint, with a content-addressed response cache so repeated runs over
// the same area do not hammer the server.
package overpass

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/valyala/fasthttp"
)

const DefaultEndpoint = "https://overpass-api.de/api/interpreter"

const queryTimeout = 5 * time.Minute

// Client posts Overpass QL queries and caches raw responses on disk, keyed
// by the query hash. An empty cache dir disables caching.
type Client struct {
	endpoint string
	cacheDir string
	http     *fasthttp.Client
	log      *slog.Logger

	requests  *xsync.Counter
	cacheHits *xsync.Counter
}

func NewClient(endpoint, cacheDir string) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		endpoint: endpoint,
		cacheDir: cacheDir,
		http: &fasthttp.Client{
			ReadTimeout:  queryTimeout,
			WriteTimeout: time.Minute,
		},
		log:       slog.With("component", "overpass"),
		requests:  xsync.NewCounter(),
		cacheHits: xsync.NewCounter(),
	}
}

// Requests returns how many queries were served, and how many of those came
// from the response cache.
func (c *Client) Requests() (total, cached int64) {
	return c.requests.Value(), c.cacheHits.Value()
}

// Query runs one Overpass QL query, returning the raw JSON response.
func (c *Client) Query(ctx context.Context, query string) ([]byte, error) {
	c.requests.Inc()

	key := sha256.Sum256([]byte(query))
	cachePath := ""
	if c.cacheDir != "" {
		cachePath = filepath.Join(c.cacheDir, hex.EncodeToString(key[:])+".json")
		if body, err := os.ReadFile(cachePath); err == nil {
			c.cacheHits.Inc()
			c.log.DebugContext(ctx, "cache hit", "file", filepath.Base(cachePath))
			return body, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.endpoint)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/x-www-form-urlencoded")
	req.SetBodyString("data=" + url.QueryEscape(query))

	deadline := time.Now().Add(queryTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.log.InfoContext(ctx, "querying overpass", "endpoint", c.endpoint, "bytes", len(query))
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return nil, fmt.Errorf("overpass request: %w", err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("overpass returned status %d: %s", resp.StatusCode(), truncate(resp.Body(), 200))
	}

	body := append([]byte(nil), resp.Body()...)
	if cachePath != "" {
		if err := os.MkdirAll(c.cacheDir, 0755); err == nil {
			if err := os.WriteFile(cachePath, body, 0644); err != nil {
				c.log.WarnContext(ctx, "cache write failed", "error", err)
			}
		}
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
