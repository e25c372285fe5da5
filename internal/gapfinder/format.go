package gapfinder

import (
	"fmt"
	"sort"
	"strings"

	"github.com/joelkehle/research-agency/internal/aggregate"
)

// FormatStatisticsForPrompt renders the statistics bundle as readable text
// for the literature analyzer.
func FormatStatisticsForPrompt(stats aggregate.Summary) string {
	var lines []string

	lines = append(lines, fmt.Sprintf("CORPUS SUMMARY: %d papers", stats.TotalPapers))
	if stats.YearRange.Min != "" && stats.YearRange.Max != "" {
		lines = append(lines, fmt.Sprintf("Year range: %s - %s", stats.YearRange.Min, stats.YearRange.Max))
	}
	lines = append(lines, "")

	for _, section := range []struct {
		header string
		dim    string
	}{
		{"POPULATION DISTRIBUTION:", "population"},
		{"INTERVENTION DISTRIBUTION:", "intervention"},
		{"OUTCOME DISTRIBUTION:", "outcome"},
		{"STUDY TYPE DISTRIBUTION:", "study_type"},
	} {
		lines = append(lines, section.header)
		for _, stat := range sortedByCount(stats.Distributions[section.dim], 0) {
			lines = append(lines, fmt.Sprintf("  - %s: %d papers (%v%%)", stat.DisplayName, stat.Count, stat.Percentage))
		}
		lines = append(lines, "")
	}

	lines = append(lines, "SPARSE POPULATION-INTERVENTION COMBINATIONS (< 3 papers):")
	sparse := stats.SparseCombinations
	if len(sparse) > 15 {
		sparse = sparse[:15]
	}
	for _, cell := range sparse {
		lines = append(lines, fmt.Sprintf("  - %s: %d papers", cell.Display, cell.Count))
	}
	lines = append(lines, "")

	lines = append(lines, "TEMPORAL TRENDS:")
	lines = append(lines, fmt.Sprintf("  Overall trend: %s", stats.TemporalTrends.Trend))
	lines = append(lines, fmt.Sprintf("  Recent avg change: %v%%", stats.TemporalTrends.AvgRecentChange))
	if stats.TemporalTrends.PeakYear != "" {
		lines = append(lines, fmt.Sprintf("  Peak year: %s (%d papers)", stats.TemporalTrends.PeakYear, stats.TemporalTrends.PeakCount))
	}
	lines = append(lines, "")

	lines = append(lines, "SAMPLE ABSTRACTS FOR REVIEW:")
	samples := stats.SampleAbstracts
	if len(samples) > 10 {
		samples = samples[:10]
	}
	for i, sample := range samples {
		title := sample.Title
		if title == "" {
			title = "Untitled"
		}
		year := "N/A"
		if sample.Year > 0 {
			year = fmt.Sprintf("%d", sample.Year)
		}
		lines = append(lines, fmt.Sprintf("\n[%d] %s (%s)", i+1, title, year))
		if len(sample.StudyType) > 0 {
			lines = append(lines, fmt.Sprintf("    Type: %s", strings.Join(sample.StudyType, ", ")))
		}
		if sample.Abstract != "" {
			abstract := sample.Abstract
			if len(abstract) > 300 {
				abstract = abstract[:300]
			}
			lines = append(lines, fmt.Sprintf("    Abstract: %s...", abstract))
		}
	}

	return strings.Join(lines, "\n")
}

// FormatAnalysisForPrompt renders the analyzer's findings for the synthesizer.
func FormatAnalysisForPrompt(analysis map[string]any, stats aggregate.Summary, domain string) string {
	var lines []string

	lines = append(lines, fmt.Sprintf("RESEARCH DOMAIN: %s", domain))
	lines = append(lines, fmt.Sprintf("PAPERS ANALYZED: %d", stats.TotalPapers))
	lines = append(lines, "")

	dist := getMap(analysis, "distribution_insights")

	lines = append(lines, "UNDERSTUDIED POPULATIONS:")
	for _, item := range getMapSlice(dist, "understudied_populations") {
		lines = append(lines, fmt.Sprintf("  - %s: %v%% - %s", getString(item, "category"), item["percentage"], getString(item, "significance")))
	}
	lines = append(lines, "")

	lines = append(lines, "UNDERSTUDIED INTERVENTIONS:")
	for _, item := range getMapSlice(dist, "understudied_interventions") {
		lines = append(lines, fmt.Sprintf("  - %s: %v%% - %s", getString(item, "category"), item["percentage"], getString(item, "significance")))
	}
	lines = append(lines, "")

	lines = append(lines, "UNDERSTUDIED OUTCOMES:")
	for _, item := range getMapSlice(dist, "understudied_outcomes") {
		lines = append(lines, fmt.Sprintf("  - %s: %v%% - %s", getString(item, "category"), item["percentage"], getString(item, "significance")))
	}
	lines = append(lines, "")

	if obs := getString(dist, "methodological_observations"); obs != "" {
		lines = append(lines, fmt.Sprintf("METHODOLOGICAL OBSERVATIONS: %s", obs))
		lines = append(lines, "")
	}

	lines = append(lines, "HIGH-PRIORITY SPARSE COMBINATIONS:")
	highPriority := 0
	for _, combo := range getMapSlice(analysis, "sparse_combination_analysis") {
		if getString(combo, "priority") != "high" && !getBool(combo, "is_genuine_gap") {
			continue
		}
		if highPriority == 10 {
			break
		}
		highPriority++
		lines = append(lines, fmt.Sprintf("  - %s: %v papers", getString(combo, "combination"), combo["paper_count"]))
		sig := getString(combo, "clinical_significance")
		if sig == "" {
			sig = "N/A"
		}
		lines = append(lines, fmt.Sprintf("    Significance: %s", sig))
	}
	lines = append(lines, "")

	temporal := getMap(analysis, "temporal_insights")
	lines = append(lines, "TEMPORAL INSIGHTS:")
	trend := getString(temporal, "overall_trend")
	if trend == "" {
		trend = "unknown"
	}
	lines = append(lines, fmt.Sprintf("  Overall trend: %s", trend))
	if topics := getStringSlice(temporal, "emerging_topics"); len(topics) > 0 {
		lines = append(lines, fmt.Sprintf("  Emerging topics: %s", strings.Join(topics, ", ")))
	}
	if topics := getStringSlice(temporal, "declining_topics"); len(topics) > 0 {
		lines = append(lines, fmt.Sprintf("  Declining topics: %s", strings.Join(topics, ", ")))
	}
	lines = append(lines, "")

	if debates := getMapSlice(analysis, "contradictions_and_debates"); len(debates) > 0 {
		lines = append(lines, "ACTIVE DEBATES/CONTRADICTIONS:")
		for _, debate := range debates {
			lines = append(lines, fmt.Sprintf("  - %s: %s", getString(debate, "topic"), getString(debate, "summary")))
		}
	}
	lines = append(lines, "")

	if summary := getString(analysis, "key_findings_summary"); summary != "" {
		lines = append(lines, fmt.Sprintf("ANALYZER SUMMARY: %s", summary))
	}

	return strings.Join(lines, "\n")
}

// --- Stage display formatters (what the UI shows on stage completion) ---

func formatPlannerOutput(question string, plan map[string]any, queries []string) string {
	domain := getString(plan, "domain_summary")
	if domain == "" {
		domain = question
	}
	lines := []string{
		fmt.Sprintf("Domain: %s", domain),
		"",
		"Search Queries Generated:",
	}
	for i, q := range queries {
		lines = append(lines, fmt.Sprintf("  %d. %s", i+1, q))
	}
	if rationale := getString(plan, "search_rationale"); rationale != "" {
		lines = append(lines, "", fmt.Sprintf("Rationale: %s", rationale))
	}
	return strings.Join(lines, "\n")
}

func formatAggregatorOutput(stats aggregate.Summary) string {
	lines := []string{fmt.Sprintf("Analyzed %d papers", stats.TotalPapers), ""}

	if pop := sortedByCount(stats.Distributions["population"], 5); len(pop) > 0 {
		lines = append(lines, "Population Coverage:")
		for _, stat := range pop {
			lines = append(lines, fmt.Sprintf("  - %s: %d (%v%%)", stat.DisplayName, stat.Count, stat.Percentage))
		}
	}
	if interv := sortedByCount(stats.Distributions["intervention"], 5); len(interv) > 0 {
		lines = append(lines, "\nIntervention Coverage:")
		for _, stat := range interv {
			lines = append(lines, fmt.Sprintf("  - %s: %d (%v%%)", stat.DisplayName, stat.Count, stat.Percentage))
		}
	}
	if n := len(stats.SparseCombinations); n > 0 {
		lines = append(lines, fmt.Sprintf("\nIdentified %d sparse combinations (potential gaps)", n))
	}
	return strings.Join(lines, "\n")
}

func formatAnalyzerOutput(analysis map[string]any) string {
	if errMsg := getString(analysis, "error"); errMsg != "" {
		return fmt.Sprintf("Error: %s", errMsg)
	}

	var lines []string
	if summary := getString(analysis, "key_findings_summary"); summary != "" {
		lines = append(lines, fmt.Sprintf("Summary: %s", summary), "")
	}

	dist := getMap(analysis, "distribution_insights")

	if pops := getMapSlice(dist, "understudied_populations"); len(pops) > 0 {
		lines = append(lines, "Understudied Populations:")
		for i, item := range pops {
			if i == 5 {
				break
			}
			status := "✓"
			if valid, ok := item["is_valid_intervention_target"].(bool); ok && !valid {
				status = "✗"
			}
			cat := getString(item, "category")
			if cat == "" {
				cat = "Unknown"
			}
			lines = append(lines, fmt.Sprintf("  %s %s (%v%%): %s", status, cat, item["percentage"], getString(item, "significance")))
		}
	}

	if intervs := getMapSlice(dist, "understudied_interventions"); len(intervs) > 0 {
		lines = append(lines, "\nUnderstudied Interventions:")
		for i, item := range intervs {
			if i == 5 {
				break
			}
			lines = append(lines, fmt.Sprintf("  - %s: %s", getString(item, "category"), getString(item, "significance")))
		}
	}

	var genuine []map[string]any
	for _, combo := range getMapSlice(analysis, "sparse_combination_analysis") {
		if getBool(combo, "is_genuine_gap") {
			genuine = append(genuine, combo)
		}
	}
	if len(genuine) > 0 {
		lines = append(lines, fmt.Sprintf("\nGenuine Research Gaps (%d):", len(genuine)))
		for i, gap := range genuine {
			if i == 5 {
				break
			}
			lines = append(lines, fmt.Sprintf("  - %s: %v papers", getString(gap, "combination"), gap["paper_count"]))
		}
	}

	if temporal := getMap(analysis, "temporal_insights"); len(temporal) > 0 {
		trend := getString(temporal, "overall_trend")
		if trend == "" {
			trend = "unknown"
		}
		lines = append(lines, fmt.Sprintf("\nField Trend: %s", trend))
	}

	if len(lines) == 0 {
		return "Analysis completed"
	}
	return strings.Join(lines, "\n")
}

func formatSynthesizerOutput(gaps map[string]any) string {
	if errMsg := getString(gaps, "error"); errMsg != "" {
		return fmt.Sprintf("Error: %s", errMsg)
	}

	var lines []string
	if summary := getString(gaps, "synthesis_summary"); summary != "" {
		lines = append(lines, fmt.Sprintf("SUMMARY: %s", summary), "")
	}

	researchGaps := getMapSlice(gaps, "research_gaps")
	if len(researchGaps) > 0 {
		rule := strings.Repeat("=", 50)
		lines = append(lines, rule, fmt.Sprintf("TOP %d RESEARCH GAPS", len(researchGaps)), rule)

		for _, gap := range researchGaps {
			rank := "?"
			if r, ok := gap["rank"]; ok {
				rank = fmt.Sprintf("%v", r)
			}
			title := getString(gap, "title")
			if title == "" {
				title = "Untitled"
			}
			lines = append(lines, fmt.Sprintf("\n#%s: %s", rank, title))
			lines = append(lines, strings.Repeat("-", 40))

			if desc := getString(gap, "description"); desc != "" {
				lines = append(lines, fmt.Sprintf("Description: %s", desc))
			}

			lines = append(lines, fmt.Sprintf("Ratings: Impact=%s, Feasibility=%s, Novelty=%s",
				ratingOrNA(gap, "impact_rating"), ratingOrNA(gap, "feasibility_rating"), ratingOrNA(gap, "novelty_rating")))

			hypothesis := getMap(gap, "hypothesis")
			if statement := getString(hypothesis, "statement"); statement != "" {
				lines = append(lines, fmt.Sprintf("Hypothesis: %s", statement))
			}

			if study := getMap(gap, "suggested_study_design"); len(study) > 0 {
				design := getString(study, "design")
				if design == "" {
					design = "N/A"
				}
				population := getString(study, "population")
				if population == "" {
					population = "N/A"
				}
				lines = append(lines, fmt.Sprintf("Study Design: %s - %s", design, population))
			}
		}
	}

	if recs := getStringSlice(gaps, "methodological_recommendations"); len(recs) > 0 {
		lines = append(lines, "\nRecommendations:")
		for i, rec := range recs {
			if i == 3 {
				break
			}
			lines = append(lines, fmt.Sprintf("  • %s", rec))
		}
	}

	if len(lines) == 0 {
		return "Synthesis completed"
	}
	return strings.Join(lines, "\n")
}

func ratingOrNA(m map[string]any, key string) string {
	if v := getString(m, key); v != "" {
		return v
	}
	return "N/A"
}

// sortedByCount orders a distribution by count descending, category name
// breaking ties. limit 0 means all.
func sortedByCount(d aggregate.Distribution, limit int) []aggregate.CategoryStat {
	type entry struct {
		cat  string
		stat aggregate.CategoryStat
	}
	entries := make([]entry, 0, len(d))
	for cat, stat := range d {
		entries = append(entries, entry{cat, stat})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].stat.Count != entries[j].stat.Count {
			return entries[i].stat.Count > entries[j].stat.Count
		}
		return entries[i].cat < entries[j].cat
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]aggregate.CategoryStat, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.stat)
	}
	return out
}

// --- loose JSON navigation helpers for repaired model output ---

func getString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func getBool(m map[string]any, key string) bool {
	if m == nil {
		return false
	}
	b, _ := m[key].(bool)
	return b
}

func getMap(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	sub, _ := m[key].(map[string]any)
	return sub
}

func getMapSlice(m map[string]any, key string) []map[string]any {
	if m == nil {
		return nil
	}
	arr, _ := m[key].([]any)
	out := make([]map[string]any, 0, len(arr))
	for _, item := range arr {
		if sub, ok := item.(map[string]any); ok {
			out = append(out, sub)
		}
	}
	return out
}

func getStringSlice(m map[string]any, key string) []string {
	if m == nil {
		return nil
	}
	var out []string
	switch v := m[key].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	case []string:
		out = v
	}
	return out
}
