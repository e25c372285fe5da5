package aggregate

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/joelkehle/research-agency/internal/corpus"
	"github.com/joelkehle/research-agency/internal/pico"
)

func paper(year int, pop, interv, outcome, study string) corpus.Paper {
	p := corpus.Paper{
		PMID:     fmt.Sprintf("pmid-%d-%s-%s", year, pop, interv),
		Title:    fmt.Sprintf("%s %s study", pop, interv),
		Abstract: "Some abstract text.",
		Year:     year,
	}
	if pop != "" {
		p.PICO.Population = []string{pop}
	}
	if interv != "" {
		p.PICO.Intervention = []string{interv}
	}
	if outcome != "" {
		p.PICO.Outcome = []string{outcome}
	}
	if study != "" {
		p.PICO.StudyType = []string{study}
	}
	return p
}

func TestSummarizeDistributions(t *testing.T) {
	papers := []corpus.Paper{
		paper(2020, "adults", "nrt", "cessation", "rct"),
		paper(2021, "adults", "counseling", "cessation", "rct"),
		paper(2022, "pregnant_women", "nrt", "quit_attempts", "cohort"),
	}
	s := Summarize(papers, rand.New(rand.NewSource(1)))

	if s.TotalPapers != 3 {
		t.Fatalf("total = %d", s.TotalPapers)
	}
	if s.YearRange.Min != "2020" || s.YearRange.Max != "2022" {
		t.Fatalf("year range = %+v", s.YearRange)
	}

	popDist := s.Distributions["population"]
	adults := popDist["adults"]
	if adults.Count != 2 || adults.Percentage != 66.7 || adults.DisplayName != "Adults" {
		t.Fatalf("adults stat = %+v", adults)
	}
	if s.RawCounts["intervention"]["nrt"] != 2 {
		t.Fatalf("raw nrt count = %d", s.RawCounts["intervention"]["nrt"])
	}
}

func TestCooccurrence(t *testing.T) {
	papers := []corpus.Paper{
		paper(2020, "adults", "nrt", "", ""),
		paper(2020, "adults", "nrt", "", ""),
		paper(2020, "adults", "counseling", "", ""),
	}
	m := Cooccurrence(papers, pico.DimPopulation, pico.DimIntervention)
	if m["adults"]["nrt"] != 2 || m["adults"]["counseling"] != 1 {
		t.Fatalf("matrix = %v", m)
	}
}

func TestFindSparseCellsAscendingAndActiveOnly(t *testing.T) {
	matrix := map[string]map[string]int{
		"adults": {"nrt": 5, "counseling": 1},
		"youth":  {"nrt": 2},
	}
	cells := FindSparseCells(matrix, []string{"adults", "youth"}, []string{"nrt", "counseling"}, 3)

	// adults+nrt is above threshold; youth+counseling is a zero cell over
	// active categories and must appear.
	if len(cells) != 3 {
		t.Fatalf("cells = %v", cells)
	}
	if cells[0].Count != 0 || cells[0].Dimension1 != "youth" || cells[0].Dimension2 != "counseling" {
		t.Fatalf("first cell = %+v", cells[0])
	}
	if cells[1].Count != 1 || cells[2].Count != 2 {
		t.Fatalf("order = %v", cells)
	}
	if cells[0].Display != "Youth + Counseling" {
		t.Fatalf("display = %q", cells[0].Display)
	}
}

func TestTrendsInsufficientData(t *testing.T) {
	tr := Trends(map[string]int{"2021": 4})
	if tr.Trend != TrendInsufficientData || len(tr.Changes) != 0 {
		t.Fatalf("trends = %+v", tr)
	}
}

func TestTrendsGrowing(t *testing.T) {
	tr := Trends(map[string]int{"2019": 10, "2020": 15, "2021": 20, "2022": 28})
	if tr.Trend != "growing" {
		t.Fatalf("trend = %q (avg %v)", tr.Trend, tr.AvgRecentChange)
	}
	// Changes are 50, 33.3, 40; mean of the last three rounded to one place.
	if tr.AvgRecentChange != 41.1 {
		t.Fatalf("avg recent change = %v", tr.AvgRecentChange)
	}
	if tr.PeakYear != "2022" || tr.PeakCount != 28 {
		t.Fatalf("peak = %s/%d", tr.PeakYear, tr.PeakCount)
	}
	if tr.Changes[0].PctChange != 50.0 {
		t.Fatalf("first change = %+v", tr.Changes[0])
	}
}

func TestTrendsZeroPrevYear(t *testing.T) {
	tr := Trends(map[string]int{"2020": 0, "2021": 7})
	if tr.Changes[0].PctChange != 100 {
		t.Fatalf("change from zero = %+v", tr.Changes[0])
	}
	tr = Trends(map[string]int{"2020": 0, "2021": 0, "2022": 3})
	if tr.Changes[0].PctChange != 0 {
		t.Fatalf("zero to zero = %+v", tr.Changes[0])
	}
}

func TestTrendsDeclining(t *testing.T) {
	tr := Trends(map[string]int{"2020": 40, "2021": 20, "2022": 10})
	if tr.Trend != "declining" {
		t.Fatalf("trend = %q", tr.Trend)
	}
	if tr.PeakYear != "2020" {
		t.Fatalf("peak year = %q", tr.PeakYear)
	}
}

func TestUnderstudiedThresholdAndOrder(t *testing.T) {
	c := newCounts()
	for i := 0; i < 50; i++ {
		c.add("adults")
	}
	c.add("pregnant_women")
	c.add("homeless")
	c.add("homeless")

	got := Understudied(c, 53, 5.0)
	if len(got) != 2 {
		t.Fatalf("understudied = %v", got)
	}
	if got[0].Category != "pregnant_women" || got[0].Count != 1 {
		t.Fatalf("first = %+v", got[0])
	}
	if got[1].Category != "homeless" || got[1].Percentage != 3.8 {
		t.Fatalf("second = %+v", got[1])
	}
}

func TestSampleAbstractsReturnsAllWhenSmall(t *testing.T) {
	papers := []corpus.Paper{
		paper(2020, "adults", "nrt", "", "rct"),
		paper(2021, "adults", "nrt", "", "cohort"),
	}
	got := SampleAbstracts(papers, 15, rand.New(rand.NewSource(1)))
	if len(got) != 2 {
		t.Fatalf("got %d papers", len(got))
	}
}

func TestSampleAbstractsSkipsEmptyAbstracts(t *testing.T) {
	withAbs := paper(2020, "adults", "nrt", "", "rct")
	noAbs := paper(2021, "adults", "nrt", "", "rct")
	noAbs.Abstract = ""
	got := SampleAbstracts([]corpus.Paper{withAbs, noAbs}, 15, rand.New(rand.NewSource(1)))
	if len(got) != 1 || got[0].Abstract == "" {
		t.Fatalf("got %v", got)
	}
}

func TestSampleAbstractsStratifiesByStudyType(t *testing.T) {
	var papers []corpus.Paper
	for i := 0; i < 30; i++ {
		p := paper(2020, "adults", "nrt", "", "rct")
		p.PMID = fmt.Sprintf("rct-%d", i)
		papers = append(papers, p)
	}
	for i := 0; i < 30; i++ {
		p := paper(2020, "adults", "nrt", "", "cohort")
		p.PMID = fmt.Sprintf("cohort-%d", i)
		papers = append(papers, p)
	}
	rare := paper(2020, "adults", "nrt", "", "qualitative")
	rare.PMID = "qual-1"
	papers = append(papers, rare)

	got := SampleAbstracts(papers, 15, rand.New(rand.NewSource(7)))
	if len(got) != 15 {
		t.Fatalf("got %d papers", len(got))
	}

	types := map[string]int{}
	seen := map[string]int{}
	for _, p := range got {
		types[p.PICO.StudyType[0]]++
		seen[p.PMID]++
	}
	for pmid, n := range seen {
		if n > 1 {
			t.Fatalf("paper %s sampled %d times", pmid, n)
		}
	}
	// Each study type contributes at least one sample.
	for _, st := range []string{"rct", "cohort", "qualitative"} {
		if types[st] == 0 {
			t.Fatalf("study type %s missing from sample: %v", st, types)
		}
	}
}

func TestSampleAbstractsDeterministicForSeed(t *testing.T) {
	var papers []corpus.Paper
	for i := 0; i < 40; i++ {
		p := paper(2020, "adults", "nrt", "", "rct")
		p.PMID = fmt.Sprintf("p-%d", i)
		papers = append(papers, p)
	}
	a := SampleAbstracts(papers, 15, rand.New(rand.NewSource(42)))
	b := SampleAbstracts(papers, 15, rand.New(rand.NewSource(42)))
	for i := range a {
		if a[i].PMID != b[i].PMID {
			t.Fatalf("sample differs at %d: %s vs %s", i, a[i].PMID, b[i].PMID)
		}
	}
}

func TestSummarizeAbstractExcerptCapped(t *testing.T) {
	long := make([]byte, 900)
	for i := range long {
		long[i] = 'a'
	}
	p := paper(2020, "adults", "nrt", "", "rct")
	p.Abstract = string(long)
	s := Summarize([]corpus.Paper{p}, rand.New(rand.NewSource(1)))
	if len(s.SampleAbstracts) != 1 || len(s.SampleAbstracts[0].Abstract) != 500 {
		t.Fatalf("excerpt len = %d", len(s.SampleAbstracts[0].Abstract))
	}
}

func TestSummarizeEmptyCorpus(t *testing.T) {
	s := Summarize(nil, rand.New(rand.NewSource(1)))
	if s.TotalPapers != 0 {
		t.Fatalf("total = %d", s.TotalPapers)
	}
	if s.TemporalTrends.Trend != TrendInsufficientData {
		t.Fatalf("trend = %q", s.TemporalTrends.Trend)
	}
	if len(s.SparseCombinations) != 0 {
		t.Fatalf("sparse = %v", s.SparseCombinations)
	}
}
