// Package aggregate computes corpus statistics over canonical papers:
// frequency distributions across PICO dimensions, co-occurrence matrices,
// sparse cells, temporal trends, understudied categories, and a stratified
// abstract sample. Pure computation, no LLM.
package aggregate

import (
	"math"
	"math/rand"
	"sort"
	"strconv"

	"github.com/joelkehle/research-agency/internal/corpus"
	"github.com/joelkehle/research-agency/internal/pico"
)

const (
	// SparseCellThreshold marks population x intervention cells with fewer
	// papers as potential gaps.
	SparseCellThreshold = 3
	// SampleAbstractsCount is how many abstracts the summary carries for
	// contradiction review.
	SampleAbstractsCount = 15
	// MaxSparseCombinations caps the sparse cell list in the summary.
	MaxSparseCombinations = 20

	understudiedPopulationPct   = 5.0
	understudiedInterventionPct = 5.0
	understudiedOutcomePct      = 10.0

	abstractExcerptLen = 500
)

type CategoryStat struct {
	Count       int     `json:"count"`
	Percentage  float64 `json:"percentage"`
	DisplayName string  `json:"display_name"`
}

// Distribution maps category slug to its stats within one dimension.
type Distribution map[string]CategoryStat

type SparseCell struct {
	Dimension1 string `json:"dimension1"`
	Dimension2 string `json:"dimension2"`
	Count      int    `json:"count"`
	Display    string `json:"display"`
}

type YearChange struct {
	FromYear  string  `json:"from_year"`
	ToYear    string  `json:"to_year"`
	FromCount int     `json:"from_count"`
	ToCount   int     `json:"to_count"`
	PctChange float64 `json:"pct_change"`
}

type TemporalTrends struct {
	Trend           string       `json:"trend"`
	AvgRecentChange float64      `json:"avg_recent_change,omitempty"`
	Changes         []YearChange `json:"changes"`
	PeakYear        string       `json:"peak_year,omitempty"`
	PeakCount       int          `json:"peak_count,omitempty"`
}

const TrendInsufficientData = "insufficient_data"

type UnderstudiedCategory struct {
	Category    string  `json:"category"`
	DisplayName string  `json:"display_name"`
	Count       int     `json:"count"`
	Percentage  float64 `json:"percentage"`
}

type UnderstudiedSet struct {
	Populations   []UnderstudiedCategory `json:"populations"`
	Interventions []UnderstudiedCategory `json:"interventions"`
	Outcomes      []UnderstudiedCategory `json:"outcomes"`
}

type SampleAbstract struct {
	PMID      string   `json:"pmid,omitempty"`
	Title     string   `json:"title"`
	Abstract  string   `json:"abstract"`
	Year      int      `json:"year,omitempty"`
	StudyType []string `json:"study_type"`
}

type YearRange struct {
	Min string `json:"min,omitempty"`
	Max string `json:"max,omitempty"`
}

// Summary is the complete statistics bundle handed to the analysis stage.
type Summary struct {
	TotalPapers        int                       `json:"total_papers"`
	YearRange          YearRange                 `json:"year_range"`
	Distributions      map[string]Distribution   `json:"distributions"`
	TemporalTrends     TemporalTrends            `json:"temporal_trends"`
	SparseCombinations []SparseCell              `json:"sparse_combinations"`
	Understudied       UnderstudiedSet           `json:"understudied"`
	SampleAbstracts    []SampleAbstract          `json:"sample_abstracts"`
	RawCounts          map[string]map[string]int `json:"raw_counts"`
}

// counts tracks per-category tallies plus first-appearance order, so every
// derived listing is deterministic for a given corpus order.
type counts struct {
	byCat map[string]int
	order []string
}

func newCounts() *counts {
	return &counts{byCat: map[string]int{}}
}

func (c *counts) add(cat string) {
	if _, ok := c.byCat[cat]; !ok {
		c.order = append(c.order, cat)
	}
	c.byCat[cat]++
}

// Summarize builds the full statistics bundle. rng drives abstract sampling;
// pass a seeded source for reproducible output.
func Summarize(papers []corpus.Paper, rng *rand.Rand) Summary {
	total := len(papers)

	dims := map[pico.Dimension]*counts{}
	for _, d := range pico.Dimensions {
		dims[d] = newCounts()
	}
	yearCounts := newCounts()

	for _, p := range papers {
		for _, d := range pico.Dimensions {
			for _, cat := range p.PICO.Get(d) {
				dims[d].add(cat)
			}
		}
		if p.Year > 0 {
			yearCounts.add(strconv.Itoa(p.Year))
		}
	}

	popInterv := Cooccurrence(papers, pico.DimPopulation, pico.DimIntervention)
	sparse := FindSparseCells(popInterv, dims[pico.DimPopulation].order, dims[pico.DimIntervention].order, SparseCellThreshold)
	if len(sparse) > MaxSparseCombinations {
		sparse = sparse[:MaxSparseCombinations]
	}

	distributions := map[string]Distribution{}
	rawCounts := map[string]map[string]int{}
	for _, d := range pico.Dimensions {
		distributions[string(d)] = distribution(dims[d], total)
	}
	for _, d := range []pico.Dimension{pico.DimPopulation, pico.DimIntervention, pico.DimOutcome, pico.DimStudyType} {
		rawCounts[string(d)] = copyCounts(dims[d].byCat)
	}

	samples := SampleAbstracts(papers, SampleAbstractsCount, rng)
	sampleOut := make([]SampleAbstract, 0, len(samples))
	for _, p := range samples {
		abstract := p.Abstract
		if len(abstract) > abstractExcerptLen {
			abstract = abstract[:abstractExcerptLen]
		}
		st := p.PICO.StudyType
		if st == nil {
			st = []string{}
		}
		sampleOut = append(sampleOut, SampleAbstract{
			PMID:      p.PMID,
			Title:     p.Title,
			Abstract:  abstract,
			Year:      p.Year,
			StudyType: st,
		})
	}

	minYear, maxYear := yearBounds(yearCounts)

	return Summary{
		TotalPapers:        total,
		YearRange:          YearRange{Min: minYear, Max: maxYear},
		Distributions:      distributions,
		TemporalTrends:     Trends(yearCounts.byCat),
		SparseCombinations: sparse,
		Understudied: UnderstudiedSet{
			Populations:   Understudied(dims[pico.DimPopulation], total, understudiedPopulationPct),
			Interventions: Understudied(dims[pico.DimIntervention], total, understudiedInterventionPct),
			Outcomes:      Understudied(dims[pico.DimOutcome], total, understudiedOutcomePct),
		},
		SampleAbstracts: sampleOut,
		RawCounts:       rawCounts,
	}
}

// Cooccurrence counts papers carrying a category in each of two dimensions.
// matrix[catA][catB] = number of papers where both appear.
func Cooccurrence(papers []corpus.Paper, dimA, dimB pico.Dimension) map[string]map[string]int {
	matrix := map[string]map[string]int{}
	for _, p := range papers {
		for _, a := range p.PICO.Get(dimA) {
			row := matrix[a]
			if row == nil {
				row = map[string]int{}
				matrix[a] = row
			}
			for _, b := range p.PICO.Get(dimB) {
				row[b]++
			}
		}
	}
	return matrix
}

// FindSparseCells lists cells below threshold over the given (active)
// category lists, most sparse first. Ties keep the cats1 x cats2 scan order.
func FindSparseCells(matrix map[string]map[string]int, cats1, cats2 []string, threshold int) []SparseCell {
	var sparse []SparseCell
	for _, c1 := range cats1 {
		for _, c2 := range cats2 {
			count := matrix[c1][c2]
			if count < threshold {
				sparse = append(sparse, SparseCell{
					Dimension1: c1,
					Dimension2: c2,
					Count:      count,
					Display:    pico.DisplayName(c1) + " + " + pico.DisplayName(c2),
				})
			}
		}
	}
	sort.SliceStable(sparse, func(i, j int) bool { return sparse[i].Count < sparse[j].Count })
	return sparse
}

// Trends computes year-over-year changes and the overall trend from
// the mean of the last (up to) three changes: above +15 growing, below -15
// declining, otherwise stable.
func Trends(yearCounts map[string]int) TemporalTrends {
	if len(yearCounts) < 2 {
		return TemporalTrends{Trend: TrendInsufficientData, Changes: []YearChange{}}
	}

	years := make([]string, 0, len(yearCounts))
	for y := range yearCounts {
		years = append(years, y)
	}
	sort.Strings(years)

	changes := make([]YearChange, 0, len(years)-1)
	for i := 1; i < len(years); i++ {
		prev, curr := yearCounts[years[i-1]], yearCounts[years[i]]
		var pct float64
		if prev > 0 {
			pct = float64(curr-prev) / float64(prev) * 100
		} else if curr > 0 {
			pct = 100
		}
		changes = append(changes, YearChange{
			FromYear:  years[i-1],
			ToYear:    years[i],
			FromCount: prev,
			ToCount:   curr,
			PctChange: round1(pct),
		})
	}

	recent := changes
	if len(recent) > 3 {
		recent = recent[len(recent)-3:]
	}
	sum := 0.0
	for _, c := range recent {
		sum += c.PctChange
	}
	avg := sum / float64(len(recent))

	trend := "stable"
	switch {
	case avg > 15:
		trend = "growing"
	case avg < -15:
		trend = "declining"
	}

	peakYear, peakCount := "", 0
	for _, y := range years {
		if yearCounts[y] > peakCount {
			peakYear, peakCount = y, yearCounts[y]
		}
	}

	return TemporalTrends{
		Trend:           trend,
		AvgRecentChange: round1(avg),
		Changes:         changes,
		PeakYear:        peakYear,
		PeakCount:       peakCount,
	}
}

// Understudied lists categories below the percentage threshold, most
// understudied first.
func Understudied(c *counts, total int, thresholdPct float64) []UnderstudiedCategory {
	var out []UnderstudiedCategory
	for _, cat := range c.order {
		count := c.byCat[cat]
		pct := percentage(count, total)
		if pct < thresholdPct {
			out = append(out, UnderstudiedCategory{
				Category:    cat,
				DisplayName: pico.DisplayName(cat),
				Count:       count,
				Percentage:  round1(pct),
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Percentage < out[j].Percentage })
	return out
}

// SampleAbstracts picks up to n papers with abstracts, stratified by primary
// study type so reviews, trials and observational work all appear, then fills
// remaining slots randomly.
func SampleAbstracts(papers []corpus.Paper, n int, rng *rand.Rand) []corpus.Paper {
	var withAbstracts []corpus.Paper
	for _, p := range papers {
		if p.Abstract != "" {
			withAbstracts = append(withAbstracts, p)
		}
	}
	if len(withAbstracts) <= n {
		return withAbstracts
	}

	groups := map[string][]corpus.Paper{}
	var groupOrder []string
	for _, p := range withAbstracts {
		st := "unknown"
		if len(p.PICO.StudyType) > 0 {
			st = p.PICO.StudyType[0]
		}
		if _, ok := groups[st]; !ok {
			groupOrder = append(groupOrder, st)
		}
		groups[st] = append(groups[st], p)
	}

	perType := n / len(groups)
	if perType < 1 {
		perType = 1
	}

	var sampled []corpus.Paper
	taken := map[string]struct{}{}
	for _, st := range groupOrder {
		available := notTaken(groups[st], taken)
		k := perType
		if k > len(available) {
			k = len(available)
		}
		for _, p := range pickRandom(available, k, rng) {
			sampled = append(sampled, p)
			taken[sampleKey(p)] = struct{}{}
		}
	}

	if remaining := n - len(sampled); remaining > 0 {
		available := notTaken(withAbstracts, taken)
		for _, p := range pickRandom(available, min(remaining, len(available)), rng) {
			sampled = append(sampled, p)
			taken[sampleKey(p)] = struct{}{}
		}
	}

	if len(sampled) > n {
		sampled = sampled[:n]
	}
	return sampled
}

func sampleKey(p corpus.Paper) string {
	if p.PMID != "" {
		return p.PMID
	}
	return "t:" + p.Title
}

func notTaken(papers []corpus.Paper, taken map[string]struct{}) []corpus.Paper {
	var out []corpus.Paper
	for _, p := range papers {
		if _, ok := taken[sampleKey(p)]; !ok {
			out = append(out, p)
		}
	}
	return out
}

func pickRandom(papers []corpus.Paper, k int, rng *rand.Rand) []corpus.Paper {
	if k <= 0 {
		return nil
	}
	if k >= len(papers) {
		return papers
	}
	idx := rng.Perm(len(papers))[:k]
	sort.Ints(idx)
	out := make([]corpus.Paper, 0, k)
	for _, i := range idx {
		out = append(out, papers[i])
	}
	return out
}

func distribution(c *counts, total int) Distribution {
	d := Distribution{}
	for cat, count := range c.byCat {
		d[cat] = CategoryStat{
			Count:       count,
			Percentage:  round1(percentage(count, total)),
			DisplayName: pico.DisplayName(cat),
		}
	}
	return d
}

func yearBounds(c *counts) (string, string) {
	if len(c.order) == 0 {
		return "", ""
	}
	years := append([]string(nil), c.order...)
	sort.Strings(years)
	return years[0], years[len(years)-1]
}

func percentage(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(count) / float64(total) * 100
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}

func copyCounts(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

