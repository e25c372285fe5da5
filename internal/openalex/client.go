// Package openalex is a best-effort client for the OpenAlex works API, used
// to enrich PubMed papers with citation counts and concepts and to search
// works beyond PubMed's coverage.
package openalex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joelkehle/research-agency/internal/corpus"
)

const (
	DefaultBaseURL = "https://api.openalex.org"

	// mailto puts us in the polite pool.
	mailto = "research-agent@example.com"

	// enrichBatchSize keeps the doi OR-filter under URL length limits.
	enrichBatchSize = 50
	batchDelay      = 100 * time.Millisecond

	maxConcepts   = 5
	maxPerPage    = 100
	maxConceptAge = 10
)

type Config struct {
	BaseURL    string
	HTTPClient *http.Client
}

type Client struct {
	cfg Config
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{cfg: cfg}
}

type worksResponse struct {
	Results []work `json:"results"`
	GroupBy []struct {
		Key   string `json:"key"`
		Count int    `json:"count"`
	} `json:"group_by"`
}

type work struct {
	DOI           string `json:"doi"`
	Title         string `json:"title"`
	PublicationYr int    `json:"publication_year"`
	CitedByCount  int    `json:"cited_by_count"`
	Concepts      []struct {
		DisplayName string `json:"display_name"`
	} `json:"concepts"`
	OpenAccess struct {
		IsOA bool `json:"is_oa"`
	} `json:"open_access"`
	AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index"`
}

// EnrichByDOI fills citation counts, concepts, and open access flags on
// papers that carry a DOI, in place. Failures are logged and skipped; the
// corpus is usable either way. Returns how many papers were enriched.
func (c *Client) EnrichByDOI(ctx context.Context, papers []corpus.Paper) int {
	byDOI := map[string]*corpus.Paper{}
	var dois []string
	for i := range papers {
		doi := normalizeDOI(papers[i].DOI)
		if doi == "" {
			continue
		}
		if _, ok := byDOI[doi]; ok {
			continue
		}
		byDOI[doi] = &papers[i]
		dois = append(dois, doi)
	}
	if len(dois) == 0 {
		return 0
	}

	enriched := 0
	for start := 0; start < len(dois); start += enrichBatchSize {
		if ctx.Err() != nil {
			return enriched
		}
		end := start + enrichBatchSize
		if end > len(dois) {
			end = len(dois)
		}
		batch := dois[start:end]

		params := url.Values{}
		params.Set("filter", "doi:"+strings.Join(batch, "|"))
		params.Set("per-page", strconv.Itoa(len(batch)))
		resp, err := c.getWorks(ctx, params)
		if err != nil {
			log.Printf("openalex enrich batch failed start=%d err=%v", start, err)
			continue
		}

		for _, w := range resp.Results {
			p := byDOI[normalizeDOI(w.DOI)]
			if p == nil {
				continue
			}
			count := w.CitedByCount
			p.CitationCount = &count
			p.OpenAccess = w.OpenAccess.IsOA
			p.Concepts = nil
			for i, concept := range w.Concepts {
				if i == maxConcepts {
					break
				}
				p.Concepts = append(p.Concepts, concept.DisplayName)
			}
			enriched++
		}

		if end < len(dois) {
			if err := sleepCtx(ctx, batchDelay); err != nil {
				return enriched
			}
		}
	}
	log.Printf("openalex enrich dois=%d enriched=%d", len(dois), enriched)
	return enriched
}

// Search queries works by relevance, excluding paratext. Abstracts come back
// as inverted indexes and are reconstructed.
func (c *Client) Search(ctx context.Context, query string, max int) ([]corpus.Paper, error) {
	if max <= 0 || max > maxPerPage {
		max = maxPerPage
	}
	params := url.Values{}
	params.Set("search", query)
	params.Set("per-page", strconv.Itoa(max))
	params.Set("sort", "relevance_score:desc")
	params.Set("filter", "is_paratext:false")

	resp, err := c.getWorks(ctx, params)
	if err != nil {
		return nil, err
	}

	papers := make([]corpus.Paper, 0, len(resp.Results))
	for _, w := range resp.Results {
		count := w.CitedByCount
		p := corpus.Paper{
			Title:         w.Title,
			Abstract:      reconstructAbstract(w.AbstractInvertedIndex),
			Year:          w.PublicationYr,
			DOI:           normalizeDOI(w.DOI),
			Source:        corpus.SourceOpenAlex,
			CitationCount: &count,
			OpenAccess:    w.OpenAccess.IsOA,
		}
		for i, concept := range w.Concepts {
			if i == maxConcepts {
				break
			}
			p.Concepts = append(p.Concepts, concept.DisplayName)
		}
		papers = append(papers, p)
	}
	return papers, nil
}

type YearCount struct {
	Year  int `json:"year"`
	Count int `json:"count"`
}

// ConceptTrends returns publication counts per year for a concept over the
// last decade, oldest first.
func (c *Client) ConceptTrends(ctx context.Context, concept string) ([]YearCount, error) {
	now := time.Now().Year()
	params := url.Values{}
	params.Set("search", concept)
	params.Set("group_by", "publication_year")
	params.Set("filter", fmt.Sprintf("publication_year:%d-%d", now-maxConceptAge, now))

	resp, err := c.getWorks(ctx, params)
	if err != nil {
		return nil, err
	}

	var out []YearCount
	for _, g := range resp.GroupBy {
		year, err := strconv.Atoi(g.Key)
		if err != nil {
			continue
		}
		out = append(out, YearCount{Year: year, Count: g.Count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out, nil
}

func (c *Client) getWorks(ctx context.Context, params url.Values) (worksResponse, error) {
	params.Set("mailto", mailto)
	u := strings.TrimRight(c.cfg.BaseURL, "/") + "/works?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return worksResponse{}, err
	}

	res, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return worksResponse{}, err
	}
	defer res.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(res.Body, 16<<20))
	if res.StatusCode >= 400 {
		return worksResponse{}, fmt.Errorf("status code: %d", res.StatusCode)
	}

	var parsed worksResponse
	if err := json.Unmarshal(b, &parsed); err != nil {
		return worksResponse{}, fmt.Errorf("works parse: %w", err)
	}
	return parsed, nil
}

// reconstructAbstract rebuilds text from OpenAlex's word -> positions index.
func reconstructAbstract(index map[string][]int) string {
	if len(index) == 0 {
		return ""
	}
	maxPos := -1
	for _, positions := range index {
		for _, p := range positions {
			if p > maxPos {
				maxPos = p
			}
		}
	}
	if maxPos < 0 {
		return ""
	}
	words := make([]string, maxPos+1)
	for word, positions := range index {
		for _, p := range positions {
			if p >= 0 && p <= maxPos {
				words[p] = word
			}
		}
	}
	var sb strings.Builder
	for _, w := range words {
		if w == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(w)
	}
	return sb.String()
}

func normalizeDOI(doi string) string {
	doi = strings.TrimSpace(strings.ToLower(doi))
	doi = strings.TrimPrefix(doi, "https://doi.org/")
	doi = strings.TrimPrefix(doi, "http://doi.org/")
	return doi
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
