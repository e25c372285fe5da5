// Package pubmed is a rate-limited client for the NCBI E-utilities: esearch
// for PMID discovery and efetch for full article XML.
package pubmed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

	// DefaultMaxPerQuery caps results per search term; esearchHardCap is the
	// retmax ceiling sent to the API regardless of the caller's ask.
	DefaultMaxPerQuery = 100
	esearchHardCap     = 200

	// DefaultFetchBatchSize keeps efetch URLs within NCBI's limits.
	DefaultFetchBatchSize = 100

	// rateDelay spaces requests to stay under NCBI's 3 req/s unauthenticated
	// limit with headroom.
	rateDelay = 350 * time.Millisecond
)

type Config struct {
	BaseURL     string
	MaxPerQuery int
	HTTPClient  *http.Client
}

type Client struct {
	cfg     Config
	limiter <-chan time.Time
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.MaxPerQuery <= 0 {
		cfg.MaxPerQuery = DefaultMaxPerQuery
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	ticker := time.NewTicker(rateDelay)
	return &Client{cfg: cfg, limiter: ticker.C}
}

type esearchResponse struct {
	Result struct {
		Count  string   `json:"count"`
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

// Search returns PMIDs for one query term, most relevant first.
func (c *Client) Search(ctx context.Context, term string, max int) ([]string, error) {
	if max <= 0 || max > c.cfg.MaxPerQuery {
		max = c.cfg.MaxPerQuery
	}
	if max > esearchHardCap {
		max = esearchHardCap
	}

	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("term", term)
	params.Set("retmax", strconv.Itoa(max))
	params.Set("retmode", "json")
	params.Set("sort", "relevance")

	if err := c.waitRateLimit(ctx); err != nil {
		return nil, err
	}
	body, _, err := c.executeWithRetry(ctx, "/esearch.fcgi", params)
	if err != nil {
		return nil, fmt.Errorf("esearch: %w", err)
	}

	var parsed esearchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("esearch parse: %w", err)
	}
	return parsed.Result.IDList, nil
}

// SearchAll runs every query and unions the PMIDs in first-seen order, capped
// at limit when limit > 0. Individual query failures are logged and skipped;
// an error is returned only when every query fails.
func (c *Client) SearchAll(ctx context.Context, queries []string, limit int) ([]string, error) {
	seen := map[string]struct{}{}
	var pmids []string
	failed := 0

	for _, q := range queries {
		ids, err := c.Search(ctx, q, c.cfg.MaxPerQuery)
		if err != nil {
			if ctx.Err() != nil {
				return pmids, ctx.Err()
			}
			failed++
			log.Printf("pubmed search failed query=%q err=%v", q, err)
			continue
		}
		log.Printf("pubmed search query=%q results=%d", q, len(ids))
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			pmids = append(pmids, id)
		}
	}

	if len(queries) > 0 && failed == len(queries) {
		return nil, errors.New("all PubMed queries failed")
	}
	if limit > 0 && len(pmids) > limit {
		pmids = pmids[:limit]
	}
	return pmids, nil
}

// Fetch retrieves article XML for one batch of PMIDs.
func (c *Client) Fetch(ctx context.Context, pmids []string) (string, error) {
	if len(pmids) == 0 {
		return "", nil
	}
	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("id", strings.Join(pmids, ","))
	params.Set("retmode", "xml")

	if err := c.waitRateLimit(ctx); err != nil {
		return "", err
	}
	body, _, err := c.executeWithRetry(ctx, "/efetch.fcgi", params)
	if err != nil {
		return "", fmt.Errorf("efetch: %w", err)
	}
	return string(body), nil
}

// FetchBatches fetches all PMIDs in batches and concatenates the XML
// documents. A failed batch is logged and skipped.
func (c *Client) FetchBatches(ctx context.Context, pmids []string, batchSize int) (string, error) {
	if batchSize <= 0 {
		batchSize = DefaultFetchBatchSize
	}
	var docs []string
	for start := 0; start < len(pmids); start += batchSize {
		end := start + batchSize
		if end > len(pmids) {
			end = len(pmids)
		}
		xml, err := c.Fetch(ctx, pmids[start:end])
		if err != nil {
			if ctx.Err() != nil {
				return strings.Join(docs, "\n"), ctx.Err()
			}
			log.Printf("pubmed fetch batch failed start=%d size=%d err=%v", start, end-start, err)
			continue
		}
		docs = append(docs, xml)
	}
	if len(pmids) > 0 && len(docs) == 0 {
		return "", errors.New("all PubMed fetch batches failed")
	}
	return strings.Join(docs, "\n"), nil
}

func (c *Client) waitRateLimit(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.limiter:
		return nil
	}
}

func (c *Client) executeWithRetry(ctx context.Context, path string, params url.Values) ([]byte, int, error) {
	var lastErr error
	statusCode := 0
	timeoutRetried := false
	for attempt := 1; attempt <= 4; attempt++ {
		body, code, retryAfter, err := c.executeOnce(ctx, path, params)
		statusCode = code
		if err == nil {
			return body, statusCode, nil
		}
		lastErr = err

		if code == http.StatusBadRequest || code == http.StatusForbidden {
			return nil, statusCode, err
		}
		if code == http.StatusTooManyRequests {
			if attempt == 4 {
				break
			}
			sleep := retryAfter
			if sleep <= 0 {
				sleep = backoffDelay(attempt)
			}
			if err := sleepCtx(ctx, sleep); err != nil {
				return nil, statusCode, err
			}
			continue
		}
		if code >= 500 || isTimeoutError(err) {
			if isTimeoutError(err) {
				if timeoutRetried {
					break
				}
				timeoutRetried = true
			}
			if attempt == 4 {
				break
			}
			if err := sleepCtx(ctx, backoffDelay(attempt)); err != nil {
				return nil, statusCode, err
			}
			continue
		}
		return nil, statusCode, err
	}
	return nil, statusCode, lastErr
}

func (c *Client) executeOnce(ctx context.Context, path string, params url.Values) ([]byte, int, time.Duration, error) {
	u := strings.TrimRight(c.cfg.BaseURL, "/") + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, 0, err
	}

	res, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, 0, err
	}
	defer res.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(res.Body, 32<<20))

	retryAfter := parseRetryAfter(res.Header.Get("Retry-After"))
	if res.StatusCode >= 400 {
		return nil, res.StatusCode, retryAfter, fmt.Errorf("status code: %d", res.StatusCode)
	}
	return b, res.StatusCode, retryAfter, nil
}

func parseRetryAfter(v string) time.Duration {
	if strings.TrimSpace(v) == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err == nil {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func backoffDelay(attempt int) time.Duration {
	switch attempt {
	case 1:
		return 1 * time.Second
	case 2:
		return 2 * time.Second
	default:
		return 4 * time.Second
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
