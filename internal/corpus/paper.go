// Package corpus turns raw PubMed efetch XML into canonical paper records and
// deduplicates them. No LLM involved.
package corpus

import (
	"strings"

	"github.com/joelkehle/research-agency/internal/pico"
)

const (
	SourcePubmed   = "pubmed"
	SourceOpenAlex = "openalex"
)

// Paper is the canonical record shared by the fetch, aggregation, and
// analysis stages.
type Paper struct {
	PMID             string       `json:"pmid,omitempty"`
	Title            string       `json:"title,omitempty"`
	Abstract         string       `json:"abstract,omitempty"`
	Year             int          `json:"year,omitempty"`
	Journal          string       `json:"journal,omitempty"`
	Authors          []string     `json:"authors,omitempty"`
	MeshTerms        []string     `json:"mesh_terms,omitempty"`
	PublicationTypes []string     `json:"publication_types,omitempty"`
	DOI              string       `json:"doi,omitempty"`
	PICO             pico.Mapping `json:"pico"`
	Source           string       `json:"source"`

	// OpenAlex enrichment, best effort.
	CitationCount *int     `json:"citation_count,omitempty"`
	Concepts      []string `json:"openalex_concepts,omitempty"`
	OpenAccess    bool     `json:"open_access,omitempty"`
}

// Deduplicate removes duplicate papers, preserving input order. A paper is a
// duplicate when its PMID was already seen, or failing that when its
// lowercased trimmed title exactly matches a seen title.
func Deduplicate(papers []Paper) []Paper {
	seenPMIDs := map[string]struct{}{}
	seenTitles := map[string]struct{}{}
	unique := make([]Paper, 0, len(papers))

	for _, p := range papers {
		title := strings.TrimSpace(strings.ToLower(p.Title))
		if p.PMID != "" {
			if _, ok := seenPMIDs[p.PMID]; ok {
				continue
			}
		}
		if title != "" {
			if _, ok := seenTitles[title]; ok {
				continue
			}
		}
		if p.PMID != "" {
			seenPMIDs[p.PMID] = struct{}{}
		}
		if title != "" {
			seenTitles[title] = struct{}{}
		}
		unique = append(unique, p)
	}
	return unique
}
