package sec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/lysyi3m/sec-comb/app/filing"
)

var (
	// ErrNetwork marks transport failures: connection errors and timeouts.
	ErrNetwork = errors.New("network error")
	// ErrAPI marks non-2xx responses and payloads that do not match the schema.
	ErrAPI = errors.New("api error")
)

const maxErrorBody = 500

type Options struct {
	URL        string
	APIKey     string
	AuthScheme string // "bearer" or "x-api-key"
	UserAgent  string
	Timeout    time.Duration
}

type Client struct {
	httpClient *http.Client
	opts       Options
}

func NewClient(httpClient *http.Client, opts Options) *Client {
	return &Client{
		httpClient: httpClient,
		opts:       opts,
	}
}

// Search sends the query and returns the filings it matched.
// When the configured endpoint answers 404 or 405 and is not already
// a /query path, the request is sent once more to <url>/query.
func (c *Client) Search(ctx context.Context, q Query) ([]filing.Hit, error) {
	payload, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}

	endpoints := []string{c.opts.URL}
	if !strings.HasSuffix(c.opts.URL, "/query") {
		endpoints = append(endpoints, c.opts.URL+"/query")
	}

	for i, endpoint := range endpoints {
		data, status, err := c.post(ctx, endpoint, payload)
		if err != nil {
			if i+1 < len(endpoints) && (status == http.StatusNotFound || status == http.StatusMethodNotAllowed) {
				slog.Warn("Endpoint rejected query, trying fallback", "query", q.Name, "endpoint", endpoint, "status", status)
				continue
			}
			return nil, err
		}

		hits, err := decodeHits(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrAPI, endpoint, err)
		}

		slog.Debug("Query completed", "query", q.Name, "endpoint", endpoint, "hits", len(hits))
		return hits, nil
	}

	return nil, fmt.Errorf("%w: no endpoint accepted the query", ErrAPI)
}

func (c *Client) post(ctx context.Context, url string, payload []byte) ([]byte, int, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.opts.UserAgent)
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: request to %s failed: %w", ErrNetwork, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: failed to read response body: %w", ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, fmt.Errorf("%w: HTTP %d from %s: %s", ErrAPI, resp.StatusCode, url, snippet(data))
	}

	return data, resp.StatusCode, nil
}

func (c *Client) setAuth(req *http.Request) {
	if strings.EqualFold(c.opts.AuthScheme, "x-api-key") {
		req.Header.Set("x-api-key", c.opts.APIKey)
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
}

func decodeHits(data []byte) ([]filing.Hit, error) {
	var resp searchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("malformed JSON: %w", err)
	}

	filings, err := resp.filings()
	if err != nil {
		return nil, err
	}

	hits := make([]filing.Hit, 0, len(filings))
	for _, f := range filings {
		hit, err := f.toHit()
		if err != nil {
			return nil, err
		}
		hits = append(hits, hit)
	}

	return hits, nil
}

func snippet(data []byte) string {
	s := strings.TrimSpace(string(data))
	if len(s) <= maxErrorBody {
		return s
	}

	cut := maxErrorBody
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
