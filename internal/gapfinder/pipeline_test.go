package gapfinder

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/joelkehle/research-agency/internal/corpus"
	"github.com/joelkehle/research-agency/internal/events"
	"github.com/joelkehle/research-agency/internal/llm"
)

const testArticleXML = `<?xml version="1.0" ?>
<PubmedArticleSet>
  <PubmedArticle>
    <MedlineCitation>
      <PMID>11111</PMID>
      <Article>
        <Journal>
          <Title>Test Journal</Title>
          <JournalIssue><PubDate><Year>2022</Year></PubDate></JournalIssue>
        </Journal>
        <ArticleTitle>Counseling for adults</ArticleTitle>
        <Abstract><AbstractText>A counseling trial in adults.</AbstractText></Abstract>
        <PublicationTypeList>
          <PublicationType>Randomized Controlled Trial</PublicationType>
        </PublicationTypeList>
      </Article>
      <MeshHeadingList>
        <MeshHeading><DescriptorName>Adult</DescriptorName></MeshHeading>
        <MeshHeading><DescriptorName>Counseling</DescriptorName></MeshHeading>
      </MeshHeadingList>
    </MedlineCitation>
  </PubmedArticle>
</PubmedArticleSet>`

type fakeGenerator struct {
	responses map[string]string
	errs      map[string]error
	calls     []string
	prompts   map[string]llm.Request
}

func (f *fakeGenerator) Generate(_ context.Context, stage string, req llm.Request) (string, error) {
	f.calls = append(f.calls, stage)
	if f.prompts == nil {
		f.prompts = map[string]llm.Request{}
	}
	f.prompts[stage] = req
	if err := f.errs[stage]; err != nil {
		return "", err
	}
	return f.responses[stage], nil
}

func (f *fakeGenerator) ModelName() string { return "test-model" }

type fakeSearcher struct {
	pmids     []string
	xml       string
	searchErr error
	queries   []string
}

func (f *fakeSearcher) SearchAll(_ context.Context, queries []string, limit int) ([]string, error) {
	f.queries = queries
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if limit > 0 && len(f.pmids) > limit {
		return f.pmids[:limit], nil
	}
	return f.pmids, nil
}

func (f *fakeSearcher) FetchBatches(context.Context, []string, int) (string, error) {
	return f.xml, nil
}

type fakeEnricher struct{ calls int }

func (f *fakeEnricher) EnrichByDOI(_ context.Context, papers []corpus.Paper) int {
	f.calls++
	return 0
}

func collectEvents(sink *[]events.Event) events.Sink {
	return func(e events.Event) { *sink = append(*sink, e) }
}

func validStageResponses() map[string]string {
	return map[string]string{
		StageQueryPlanner: `{"domain_summary": "Smoking cessation counseling",
			"search_queries": ["'Smoking Cessation'[MeSH] AND counseling", "tobacco cessation AND adults"],
			"search_rationale": "Covers MeSH and free text"}`,
		StageLiteratureAnalyzer: `{"key_findings_summary": "Counseling dominates; digital tools are rare.",
			"distribution_insights": {"understudied_populations": [
				{"category": "homeless", "percentage": 2, "significance": "high burden", "is_valid_intervention_target": true}]},
			"sparse_combination_analysis": [
				{"combination": "Homeless + Mobile Sms", "paper_count": 1, "is_genuine_gap": true, "priority": "high",
				 "clinical_significance": "reachable population"}],
			"temporal_insights": {"overall_trend": "growing"}}`,
		StageGapSynthesizer: `{"synthesis_summary": "One high-priority gap identified.",
			"research_gaps": [{"rank": 1, "title": "SMS support for homeless smokers",
				"description": "No trials target this group.",
				"impact_rating": "high", "feasibility_rating": "medium", "novelty_rating": "high",
				"hypothesis": {"statement": "SMS support increases quit rates."},
				"suggested_study_design": {"design": "RCT", "population": "homeless adults"}}],
			"methodological_recommendations": ["Use biochemical verification"]}`,
	}
}

func TestPipelineHappyPath(t *testing.T) {
	gen := &fakeGenerator{responses: validStageResponses()}
	search := &fakeSearcher{pmids: []string{"11111"}, xml: testArticleXML}
	enrich := &fakeEnricher{}
	p := NewPipeline(gen, search, enrich, rand.New(rand.NewSource(1)))

	var got []events.Event
	res, err := p.Run(context.Background(), "smoking cessation counseling", collectEvents(&got))
	if err != nil {
		t.Fatal(err)
	}

	if len(res.Queries) != 2 || !strings.Contains(res.Queries[0], "Smoking Cessation") {
		t.Fatalf("queries = %v", res.Queries)
	}
	if res.Statistics.TotalPapers != 1 {
		t.Fatalf("total papers = %d", res.Statistics.TotalPapers)
	}
	if res.Metadata.Degraded {
		t.Fatalf("unexpected degraded run: %+v", res.Metadata)
	}
	if len(res.Metadata.StagesExecuted) != 5 {
		t.Fatalf("stages executed = %v", res.Metadata.StagesExecuted)
	}
	if getString(res.Gaps, "synthesis_summary") == "" {
		t.Fatalf("gaps = %v", res.Gaps)
	}

	if got[0].Type != events.PipelineStart || got[0].Question != "smoking cessation counseling" {
		t.Fatalf("first event = %+v", got[0])
	}
	last := got[len(got)-1]
	if last.Type != events.PipelineComplete {
		t.Fatalf("last event = %+v", last)
	}
	if !strings.Contains(string(last.Result), `"total_papers":1`) {
		t.Fatalf("result payload = %s", last.Result)
	}

	completes := 0
	for _, e := range got {
		if e.Type == events.StageComplete {
			completes++
		}
	}
	if completes != 5 {
		t.Fatalf("stage_complete count = %d", completes)
	}
	if enrich.calls != 1 {
		t.Fatalf("enrich calls = %d", enrich.calls)
	}

	// The analyzer prompt carries the statistics, the synthesizer the
	// analyzer's findings.
	if !strings.Contains(gen.prompts[StageLiteratureAnalyzer].Prompt, "CORPUS SUMMARY: 1 papers") {
		t.Fatal("analyzer prompt missing statistics")
	}
	if !strings.Contains(gen.prompts[StageGapSynthesizer].Prompt, "ANALYZER SUMMARY:") {
		t.Fatal("synthesizer prompt missing analyzer summary")
	}
	if gen.prompts[StageGapSynthesizer].Temperature != llm.TemperatureCreative {
		t.Fatalf("synthesizer temperature = %v", gen.prompts[StageGapSynthesizer].Temperature)
	}
}

func TestPipelinePlannerFallbackQueries(t *testing.T) {
	responses := validStageResponses()
	responses[StageQueryPlanner] = "I could not produce structured output, apologies."
	gen := &fakeGenerator{responses: responses}
	search := &fakeSearcher{pmids: []string{"11111"}, xml: testArticleXML}
	p := NewPipeline(gen, search, nil, rand.New(rand.NewSource(1)))

	var got []events.Event
	res, err := p.Run(context.Background(), "sleep hygiene", collectEvents(&got))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"sleep hygiene", "sleep hygiene[Title/Abstract]"}
	if len(res.Queries) != 2 || res.Queries[0] != want[0] || res.Queries[1] != want[1] {
		t.Fatalf("queries = %v", res.Queries)
	}
	if getString(res.Plan, "search_rationale") != "Fallback search due to parsing error" {
		t.Fatalf("plan = %v", res.Plan)
	}
}

func TestPipelinePlannerPatternExtraction(t *testing.T) {
	responses := validStageResponses()
	responses[StageQueryPlanner] = `Here are some options:
"'Sleep Hygiene'[MeSH] AND adolescents" and also
"school-based programs AND (sleep OR insomnia) outcomes" might work.`
	gen := &fakeGenerator{responses: responses}
	search := &fakeSearcher{pmids: []string{"11111"}, xml: testArticleXML}
	p := NewPipeline(gen, search, nil, rand.New(rand.NewSource(1)))

	var got []events.Event
	res, err := p.Run(context.Background(), "adolescent sleep", collectEvents(&got))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Queries) != 2 {
		t.Fatalf("queries = %v", res.Queries)
	}
	if getString(res.Plan, "search_rationale") != "Extracted via pattern matching" {
		t.Fatalf("plan = %v", res.Plan)
	}
}

func TestPipelineDegradesWhenSearchFails(t *testing.T) {
	gen := &fakeGenerator{responses: validStageResponses()}
	search := &fakeSearcher{searchErr: errors.New("pubmed down")}
	p := NewPipeline(gen, search, nil, rand.New(rand.NewSource(1)))

	var got []events.Event
	res, err := p.Run(context.Background(), "smoking cessation", collectEvents(&got))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Metadata.Degraded {
		t.Fatal("expected degraded run")
	}
	failed := strings.Join(res.Metadata.StagesFailed, ",")
	if !strings.Contains(failed, StageDataFetcher) || !strings.Contains(failed, StageAggregator) {
		t.Fatalf("stages failed = %v", res.Metadata.StagesFailed)
	}
	if getString(res.Analysis, "error") != "No statistics to analyze" {
		t.Fatalf("analysis = %v", res.Analysis)
	}
	if getString(res.Gaps, "error") != "No analysis to synthesize" {
		t.Fatalf("gaps = %v", res.Gaps)
	}
	// LLM stages after the planner never ran.
	for _, call := range gen.calls[1:] {
		if call == StageLiteratureAnalyzer || call == StageGapSynthesizer {
			t.Fatalf("unexpected call to %s", call)
		}
	}
	last := got[len(got)-1]
	if last.Type != events.PipelineComplete || !strings.Contains(string(last.Result), `"total_papers":0`) {
		t.Fatalf("last event = %+v", last)
	}
}

func TestPipelineAnalyzerRepairFallbackToRaw(t *testing.T) {
	responses := validStageResponses()
	responses[StageLiteratureAnalyzer] = "no json here at all"
	gen := &fakeGenerator{responses: responses}
	search := &fakeSearcher{pmids: []string{"11111"}, xml: testArticleXML}
	p := NewPipeline(gen, search, nil, rand.New(rand.NewSource(1)))

	var got []events.Event
	res, err := p.Run(context.Background(), "smoking cessation", collectEvents(&got))
	if err != nil {
		t.Fatal(err)
	}
	if getString(res.Analysis, "raw_analysis") != "no json here at all" {
		t.Fatalf("analysis = %v", res.Analysis)
	}
	if b, _ := res.Analysis["parse_error"].(bool); !b {
		t.Fatalf("parse_error missing: %v", res.Analysis)
	}
	// A raw analysis still flows into the synthesizer.
	if getString(res.Gaps, "synthesis_summary") == "" {
		t.Fatalf("gaps = %v", res.Gaps)
	}
}

func TestPipelineRequiresQuestion(t *testing.T) {
	p := NewPipeline(&fakeGenerator{}, &fakeSearcher{}, nil, rand.New(rand.NewSource(1)))
	if _, err := p.Run(context.Background(), "   ", nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestValidateConfig(t *testing.T) {
	if err := (&Pipeline{}).ValidateConfig(); err == nil {
		t.Fatal("expected error for missing generator")
	}
	p := NewPipeline(&fakeGenerator{}, &fakeSearcher{}, nil, nil)
	if err := p.ValidateConfig(); err != nil {
		t.Fatal(err)
	}
}
