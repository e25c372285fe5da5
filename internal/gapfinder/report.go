package gapfinder

import (
	"fmt"
	"strings"
	"time"

	"github.com/joelkehle/research-agency/internal/aggregate"
)

// BuildReportMarkdown renders a full gap analysis report from a pipeline
// result, including the degraded variants.
func BuildReportMarkdown(result Result) string {
	var b strings.Builder
	buildHeader(&b, result)

	if result.Metadata.Degraded {
		fmt.Fprintf(&b, "> **Degraded run:** %s\n\n", safe(result.Metadata.DegradedReason))
	}

	fmt.Fprintf(&b, "## Executive Summary\n\n")
	if summary := getString(result.Gaps, "synthesis_summary"); summary != "" {
		fmt.Fprintf(&b, "%s\n\n", safe(summary))
	} else {
		fmt.Fprintf(&b, "No synthesis available for this run.\n\n")
	}
	if obs := getString(result.Gaps, "field_observations"); obs != "" {
		fmt.Fprintf(&b, "%s\n\n", safe(obs))
	}

	buildSearchSection(&b, result)
	buildGapsSection(&b, result)
	buildExcludedSection(&b, result)
	buildCorpusSection(&b, result)
	buildReportMetadata(&b, result)
	return b.String()
}

func buildHeader(b *strings.Builder, result Result) {
	fmt.Fprintf(b, "# Research Gap Analysis Report\n\n")
	fmt.Fprintf(b, "- Question: %s\n", safe(result.Question))
	fmt.Fprintf(b, "- Date: %s\n\n", time.Now().Format(time.RFC3339))
}

func buildSearchSection(b *strings.Builder, result Result) {
	fmt.Fprintf(b, "## Search Strategy\n\n")
	if domain := getString(result.Plan, "domain_summary"); domain != "" {
		fmt.Fprintf(b, "%s\n\n", safe(domain))
	}
	for i, q := range result.Queries {
		fmt.Fprintf(b, "%d. `%s`\n", i+1, q)
	}
	b.WriteString("\n")
	if rationale := getString(result.Plan, "search_rationale"); rationale != "" {
		fmt.Fprintf(b, "Rationale: %s\n\n", safe(rationale))
	}
}

func buildGapsSection(b *strings.Builder, result Result) {
	gaps := getMapSlice(result.Gaps, "research_gaps")
	fmt.Fprintf(b, "## Research Gaps\n\n")
	if len(gaps) == 0 {
		fmt.Fprintf(b, "No structured gaps available.\n\n")
		if raw := getString(result.Gaps, "raw_synthesis"); raw != "" {
			fmt.Fprintf(b, "### Raw Synthesis\n\n%s\n\n", raw)
		}
		return
	}

	for _, gap := range gaps {
		rank := "?"
		if r, ok := gap["rank"]; ok {
			rank = fmt.Sprintf("%v", r)
		}
		fmt.Fprintf(b, "### #%s: %s\n\n", rank, safe(getString(gap, "title")))
		if desc := getString(gap, "description"); desc != "" {
			fmt.Fprintf(b, "%s\n\n", safe(desc))
		}
		fmt.Fprintf(b, "- Category: `%s`\n", safe(getString(gap, "category")))
		fmt.Fprintf(b, "- Impact: `%s`, Feasibility: `%s`, Novelty: `%s`\n",
			ratingOrNA(gap, "impact_rating"), ratingOrNA(gap, "feasibility_rating"), ratingOrNA(gap, "novelty_rating"))
		if sig := getString(gap, "clinical_significance"); sig != "" {
			fmt.Fprintf(b, "- Clinical significance: %s\n", safe(sig))
		}
		if evidence := getMap(gap, "evidence_summary"); len(evidence) > 0 {
			if stat := getString(evidence, "key_statistic"); stat != "" {
				fmt.Fprintf(b, "- Evidence: %s\n", safe(stat))
			}
		}

		hypothesis := getMap(gap, "hypothesis")
		if statement := getString(hypothesis, "statement"); statement != "" {
			fmt.Fprintf(b, "\n**Hypothesis:** %s\n", safe(statement))
			if outcome := getString(hypothesis, "primary_outcome"); outcome != "" {
				fmt.Fprintf(b, "\n- Primary outcome: %s\n", safe(outcome))
			}
			if direction := getString(hypothesis, "expected_direction"); direction != "" {
				fmt.Fprintf(b, "- Expected direction: %s\n", safe(direction))
			}
		}

		if study := getMap(gap, "suggested_study_design"); len(study) > 0 {
			fmt.Fprintf(b, "\n**Suggested study design**\n\n")
			for _, field := range []struct{ key, label string }{
				{"design", "Design"},
				{"setting", "Setting"},
				{"population", "Population"},
				{"sample_size_estimate", "Sample size"},
				{"duration", "Duration"},
			} {
				if v := getString(study, field.key); v != "" {
					fmt.Fprintf(b, "- %s: %s\n", field.label, safe(v))
				}
			}
		}

		if challenges := getStringSlice(gap, "challenges"); len(challenges) > 0 {
			fmt.Fprintf(b, "\nChallenges: %s\n", strings.Join(challenges, "; "))
		}
		b.WriteString("\n")
	}

	if recs := getStringSlice(result.Gaps, "methodological_recommendations"); len(recs) > 0 {
		fmt.Fprintf(b, "### Methodological Recommendations\n\n")
		for _, rec := range recs {
			fmt.Fprintf(b, "- %s\n", safe(rec))
		}
		b.WriteString("\n")
	}
}

func buildExcludedSection(b *strings.Builder, result Result) {
	excluded := getMapSlice(result.Gaps, "excluded_gaps")
	if len(excluded) == 0 {
		return
	}
	fmt.Fprintf(b, "## Excluded Gaps\n\n")
	for _, item := range excluded {
		fmt.Fprintf(b, "- %s — %s\n", safe(getString(item, "gap")), safe(getString(item, "reason")))
	}
	b.WriteString("\n")
}

func buildCorpusSection(b *strings.Builder, result Result) {
	stats := result.Statistics
	fmt.Fprintf(b, "## Corpus Overview\n\n")
	fmt.Fprintf(b, "- Papers analyzed: %d\n", stats.TotalPapers)
	if stats.YearRange.Min != "" {
		fmt.Fprintf(b, "- Year range: %s - %s\n", stats.YearRange.Min, stats.YearRange.Max)
	}
	fmt.Fprintf(b, "- Publication trend: %s\n", stats.TemporalTrends.Trend)
	fmt.Fprintf(b, "- Sparse population-intervention combinations: %d\n\n", len(stats.SparseCombinations))

	if len(stats.SparseCombinations) > 0 {
		fmt.Fprintf(b, "| Combination | Papers |\n|---|---:|\n")
		for _, cell := range stats.SparseCombinations {
			fmt.Fprintf(b, "| %s | %d |\n", cell.Display, cell.Count)
		}
		b.WriteString("\n")
	}

	understudied := stats.Understudied
	if len(understudied.Populations)+len(understudied.Interventions)+len(understudied.Outcomes) > 0 {
		fmt.Fprintf(b, "### Understudied Categories\n\n")
		for _, section := range []struct {
			label string
			items []aggregate.UnderstudiedCategory
		}{
			{"Populations", understudied.Populations},
			{"Interventions", understudied.Interventions},
			{"Outcomes", understudied.Outcomes},
		} {
			if len(section.items) == 0 {
				continue
			}
			fmt.Fprintf(b, "**%s**\n\n", section.label)
			for _, item := range section.items {
				fmt.Fprintf(b, "- %s: %d papers (%v%%)\n", item.DisplayName, item.Count, item.Percentage)
			}
			b.WriteString("\n")
		}
	}
}

func buildReportMetadata(b *strings.Builder, result Result) {
	fmt.Fprintf(b, "## Metadata\n\n")
	fmt.Fprintf(b, "- Runtime (ms): %d\n", result.Metadata.DurationMS)
	fmt.Fprintf(b, "- Model: %s\n", safe(result.Metadata.Model))
	fmt.Fprintf(b, "- Queries used: %d\n", result.Metadata.QueriesUsed)
	fmt.Fprintf(b, "- Stages executed: %s\n", strings.Join(result.Metadata.StagesExecuted, ", "))
	if len(result.Metadata.StagesFailed) > 0 {
		fmt.Fprintf(b, "- Stages failed: %s\n", strings.Join(result.Metadata.StagesFailed, ", "))
	}
	b.WriteString("\n")
}

func safe(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(none)"
	}
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}
