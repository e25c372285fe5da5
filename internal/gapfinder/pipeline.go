// Package gapfinder orchestrates the research gap pipeline: query planning,
// literature fetch, aggregation, analysis, and gap synthesis. LLM stages
// degrade rather than abort; a failed stage is reported and the pipeline
// carries whatever survived forward.
package gapfinder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/joelkehle/research-agency/internal/aggregate"
	"github.com/joelkehle/research-agency/internal/corpus"
	"github.com/joelkehle/research-agency/internal/events"
	"github.com/joelkehle/research-agency/internal/jsonrepair"
	"github.com/joelkehle/research-agency/internal/llm"
)

const (
	// PipelineName identifies this pipeline on the wire.
	PipelineName = "gap_finder"

	// MaxPapersTotal caps the corpus across all queries.
	MaxPapersTotal = 500

	fetchBatchSize     = 50
	enrichDOILimit     = 50
	maxFallbackQueries = 6
)

// andOrQueryRe recovers search queries from free text when JSON repair fails.
var andOrQueryRe = regexp.MustCompile(`"([^"]{10,}(?:AND|OR)[^"]{5,})"`)

type Generator interface {
	Generate(ctx context.Context, stage string, req llm.Request) (string, error)
	ModelName() string
}

type Searcher interface {
	SearchAll(ctx context.Context, queries []string, limit int) ([]string, error)
	FetchBatches(ctx context.Context, pmids []string, batchSize int) (string, error)
}

type Enricher interface {
	EnrichByDOI(ctx context.Context, papers []corpus.Paper) int
}

type Metadata struct {
	StartedAt      time.Time `json:"started_at"`
	CompletedAt    time.Time `json:"completed_at"`
	DurationMS     int64     `json:"duration_ms"`
	Model          string    `json:"model"`
	StagesExecuted []string  `json:"stages_executed"`
	StagesFailed   []string  `json:"stages_failed,omitempty"`
	Degraded       bool      `json:"degraded,omitempty"`
	DegradedReason string    `json:"degraded_reason,omitempty"`
	PaperCount     int       `json:"paper_count"`
	QueriesUsed    int       `json:"queries_used"`
}

type Result struct {
	Question   string            `json:"question"`
	Plan       map[string]any    `json:"plan,omitempty"`
	Queries    []string          `json:"queries"`
	Papers     []corpus.Paper    `json:"-"`
	Statistics aggregate.Summary `json:"statistics"`
	Analysis   map[string]any    `json:"analysis,omitempty"`
	Gaps       map[string]any    `json:"gaps,omitempty"`
	Metadata   Metadata          `json:"metadata"`
}

type Pipeline struct {
	gen    Generator
	search Searcher
	enrich Enricher
	rng    *rand.Rand
	tracer trace.Tracer
}

// NewPipeline wires the three backends. enrich may be nil to skip OpenAlex.
func NewPipeline(gen Generator, search Searcher, enrich Enricher, rng *rand.Rand) *Pipeline {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Pipeline{
		gen:    gen,
		search: search,
		enrich: enrich,
		rng:    rng,
		tracer: otel.Tracer("research-agency/gapfinder"),
	}
}

func (p *Pipeline) ValidateConfig() error {
	if p.gen == nil {
		return errors.New("generator is required")
	}
	if p.search == nil {
		return errors.New("searcher is required")
	}
	return nil
}

// Run executes all five stages and emits progress on sink.
func (p *Pipeline) Run(ctx context.Context, question string, sink events.Sink) (Result, error) {
	question = strings.TrimSpace(question)
	res := Result{
		Question: question,
		Metadata: Metadata{StartedAt: time.Now(), Model: p.gen.ModelName()},
	}
	if question == "" {
		return res, errors.New("question is required")
	}

	sink.Emit(events.Event{Type: events.PipelineStart, Pipeline: PipelineName, Question: question})

	p.runQueryPlanner(ctx, question, sink, &res)
	p.runDataFetcher(ctx, sink, &res)
	p.runAggregator(ctx, sink, &res)
	p.runLiteratureAnalyzer(ctx, question, sink, &res)
	p.runGapSynthesizer(ctx, question, sink, &res)

	res.Metadata.PaperCount = len(res.Papers)
	res.Metadata.QueriesUsed = len(res.Queries)
	res.Metadata.CompletedAt = time.Now()
	res.Metadata.DurationMS = res.Metadata.CompletedAt.Sub(res.Metadata.StartedAt).Milliseconds()

	final, _ := json.Marshal(map[string]any{
		"gaps": res.Gaps,
		"statistics": map[string]any{
			"total_papers": len(res.Papers),
			"queries_used": len(res.Queries),
		},
	})
	sink.Emit(events.Event{Type: events.PipelineComplete, Pipeline: PipelineName, Result: final})
	return res, ctx.Err()
}

func (p *Pipeline) runQueryPlanner(ctx context.Context, question string, sink events.Sink, res *Result) {
	ctx, span := p.tracer.Start(ctx, StageQueryPlanner)
	defer span.End()
	p.beginStage(sink, StageQueryPlanner, "Generating search strategy...")

	prompt := fmt.Sprintf(`Research domain: %s

Generate a comprehensive PubMed search strategy for research gap analysis.

IMPORTANT: Respond with ONLY a valid JSON object. No markdown code blocks, no explanations, just the raw JSON.`, question)

	var plan map[string]any
	var queries []string
	raw, err := p.gen.Generate(ctx, StageQueryPlanner, llm.Request{
		System:      queryPlannerSystemPrompt,
		Prompt:      prompt,
		Temperature: llm.TemperatureAnalysis,
	})
	if err != nil {
		span.RecordError(err)
		p.failStage(sink, StageQueryPlanner, err, res)
		queries = []string{question}
	} else {
		repaired, rerr := jsonrepair.Repair(raw)
		if rerr == nil {
			plan = repaired.Data
			queries = getStringSlice(plan, "search_queries")
		}
		if len(queries) == 0 {
			// The response was prose or the array did not survive repair.
			// Scrape boolean-looking queries, then fall back to the raw
			// question.
			for _, m := range andOrQueryRe.FindAllStringSubmatch(raw, -1) {
				queries = append(queries, m[1])
				if len(queries) == maxFallbackQueries {
					break
				}
			}
			if len(queries) > 0 {
				plan = map[string]any{"domain_summary": question, "search_rationale": "Extracted via pattern matching"}
			} else {
				queries = []string{question, question + "[Title/Abstract]"}
				plan = map[string]any{"domain_summary": question, "search_rationale": "Fallback search due to parsing error"}
			}
			log.Printf("gap-finder planner_fallback queries=%d", len(queries))
		}
		res.Metadata.StagesExecuted = append(res.Metadata.StagesExecuted, StageQueryPlanner)
	}

	res.Plan = plan
	res.Queries = queries
	sink.Emit(events.Event{
		Type:   events.StageComplete,
		Stage:  StageQueryPlanner,
		Output: formatPlannerOutput(question, plan, queries),
	})
}

func (p *Pipeline) runDataFetcher(ctx context.Context, sink events.Sink, res *Result) {
	ctx, span := p.tracer.Start(ctx, StageDataFetcher)
	defer span.End()
	p.beginStage(sink, StageDataFetcher, "Searching PubMed...")

	papers, err := p.fetchPapers(ctx, res.Queries)
	if err != nil {
		span.RecordError(err)
		p.failStage(sink, StageDataFetcher, err, res)
	} else {
		res.Metadata.StagesExecuted = append(res.Metadata.StagesExecuted, StageDataFetcher)
	}
	res.Papers = papers

	sink.Emit(events.Event{
		Type:   events.StageComplete,
		Stage:  StageDataFetcher,
		Output: fmt.Sprintf("Retrieved %d papers from PubMed.\nPapers enriched with citation data.", len(papers)),
	})
}

func (p *Pipeline) fetchPapers(ctx context.Context, queries []string) ([]corpus.Paper, error) {
	if len(queries) == 0 {
		return nil, errors.New("no search queries provided")
	}

	pmids, err := p.search.SearchAll(ctx, queries, MaxPapersTotal)
	if err != nil {
		return nil, fmt.Errorf("pubmed search: %w", err)
	}
	if len(pmids) == 0 {
		return nil, errors.New("no papers found for search queries")
	}

	xml, err := p.search.FetchBatches(ctx, pmids, fetchBatchSize)
	if err != nil {
		return nil, fmt.Errorf("pubmed fetch: %w", err)
	}

	papers := corpus.Deduplicate(corpus.ParsePubmedXML(xml))
	log.Printf("gap-finder fetched pmids=%d papers=%d", len(pmids), len(papers))

	if p.enrich != nil && len(papers) > 0 {
		// Enrichment is best effort and capped to the first papers carrying a
		// DOI; a dead OpenAlex never sinks the run.
		cut := len(papers)
		withDOI := 0
		for i := range papers {
			if papers[i].DOI != "" {
				withDOI++
				if withDOI == enrichDOILimit {
					cut = i + 1
					break
				}
			}
		}
		p.enrich.EnrichByDOI(ctx, papers[:cut])
	}
	return papers, nil
}

func (p *Pipeline) runAggregator(ctx context.Context, sink events.Sink, res *Result) {
	_, span := p.tracer.Start(ctx, StageAggregator)
	defer span.End()
	p.beginStage(sink, StageAggregator, "Building statistics...")

	if len(res.Papers) == 0 {
		err := errors.New("no papers available for aggregation")
		span.RecordError(err)
		p.failStage(sink, StageAggregator, err, res)
	} else {
		res.Statistics = aggregate.Summarize(res.Papers, p.rng)
		res.Metadata.StagesExecuted = append(res.Metadata.StagesExecuted, StageAggregator)
	}

	sink.Emit(events.Event{
		Type:   events.StageComplete,
		Stage:  StageAggregator,
		Output: formatAggregatorOutput(res.Statistics),
	})
}

func (p *Pipeline) runLiteratureAnalyzer(ctx context.Context, question string, sink events.Sink, res *Result) {
	ctx, span := p.tracer.Start(ctx, StageLiteratureAnalyzer)
	defer span.End()
	p.beginStage(sink, StageLiteratureAnalyzer, "Analyzing literature patterns...")

	var analysis map[string]any
	if res.Statistics.TotalPapers == 0 {
		analysis = map[string]any{"error": "No statistics to analyze"}
	} else {
		prompt := fmt.Sprintf(`RESEARCH DOMAIN: %s

%s

Analyze these statistics and identify research gaps, patterns, and opportunities.

IMPORTANT: Respond with ONLY valid JSON. No markdown code blocks.`, question, FormatStatisticsForPrompt(res.Statistics))

		raw, err := p.gen.Generate(ctx, StageLiteratureAnalyzer, llm.Request{
			System:      literatureAnalyzerSystemPrompt,
			Prompt:      prompt,
			Temperature: llm.TemperatureAnalysis,
		})
		if err != nil {
			span.RecordError(err)
			p.failStage(sink, StageLiteratureAnalyzer, err, res)
			analysis = map[string]any{"error": err.Error()}
		} else {
			repaired, rerr := jsonrepair.Repair(raw)
			if rerr != nil {
				log.Printf("gap-finder analyzer_repair_failed err=%v", rerr)
				analysis = map[string]any{"raw_analysis": raw, "parse_error": true}
			} else {
				analysis = repaired.Data
				if repaired.Partial {
					analysis["partial_parse"] = true
				}
			}
			res.Metadata.StagesExecuted = append(res.Metadata.StagesExecuted, StageLiteratureAnalyzer)
		}
	}

	res.Analysis = analysis
	sink.Emit(events.Event{
		Type:   events.StageComplete,
		Stage:  StageLiteratureAnalyzer,
		Output: formatAnalyzerOutput(analysis),
	})
}

func (p *Pipeline) runGapSynthesizer(ctx context.Context, question string, sink events.Sink, res *Result) {
	ctx, span := p.tracer.Start(ctx, StageGapSynthesizer)
	defer span.End()
	p.beginStage(sink, StageGapSynthesizer, "Synthesizing research gaps and generating hypotheses...")

	var gaps map[string]any
	if res.Analysis == nil || getString(res.Analysis, "error") != "" {
		gaps = map[string]any{"error": "No analysis to synthesize"}
	} else {
		prompt := FormatAnalysisForPrompt(res.Analysis, res.Statistics, question) +
			"\n\nIMPORTANT: Respond with ONLY valid JSON. No markdown code blocks."

		raw, err := p.gen.Generate(ctx, StageGapSynthesizer, llm.Request{
			System:      gapSynthesizerSystemPrompt,
			Prompt:      prompt,
			Temperature: llm.TemperatureCreative,
		})
		if err != nil {
			span.RecordError(err)
			p.failStage(sink, StageGapSynthesizer, err, res)
			gaps = map[string]any{"error": err.Error()}
		} else {
			repaired, rerr := jsonrepair.Repair(raw)
			if rerr != nil {
				log.Printf("gap-finder synthesizer_repair_failed err=%v", rerr)
				gaps = map[string]any{"raw_synthesis": raw, "parse_error": true}
			} else {
				gaps = repaired.Data
				if repaired.Partial {
					gaps["partial_parse"] = true
				}
			}
			res.Metadata.StagesExecuted = append(res.Metadata.StagesExecuted, StageGapSynthesizer)
		}
	}

	res.Gaps = gaps
	sink.Emit(events.Event{
		Type:   events.StageComplete,
		Stage:  StageGapSynthesizer,
		Output: formatSynthesizerOutput(gaps),
	})
}

func (p *Pipeline) beginStage(sink events.Sink, stage, progress string) {
	sink.Emit(events.Event{Type: events.StageThinking, Stage: stage, Message: stageMetadata[stage].Thinking})
	sink.Emit(events.Event{Type: events.StageProgress, Stage: stage, Message: progress})
}

func (p *Pipeline) failStage(sink events.Sink, stage string, err error, res *Result) {
	log.Printf("gap-finder stage_failed stage=%s err=%v", stage, err)
	sink.Emit(events.Event{Type: events.StageError, Stage: stage, Error: err.Error()})
	res.Metadata.StagesFailed = append(res.Metadata.StagesFailed, stage)
	res.Metadata.Degraded = true
	if res.Metadata.DegradedReason == "" {
		res.Metadata.DegradedReason = fmt.Sprintf("%s failed: %s", stage, err)
	}
}
