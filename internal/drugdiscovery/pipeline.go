// Package drugdiscovery runs the six-agent hypothesis generation pipeline
// with controller-driven routing. Scoring agents carry explicit rubrics so
// their confidence values stay comparable across runs.
package drugdiscovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/joelkehle/research-agency/internal/events"
	"github.com/joelkehle/research-agency/internal/llm"
)

const (
	PipelineName = "drug_discovery"

	// DefaultMaxLoops bounds controller-requested refinement iterations.
	DefaultMaxLoops = 3
)

// Generator produces one completion per agent turn, forwarding text deltas
// as they arrive so callers can surface live output.
type Generator interface {
	GenerateStream(ctx context.Context, stage string, req llm.Request, onDelta func(text string)) (string, error)
	ModelName() string
}

// Metadata records run bookkeeping that does not belong to any agent.
type Metadata struct {
	Model      string `json:"model"`
	DurationMS int64  `json:"duration_ms"`
}

// Result is the final pipeline state after the controller has decided.
type Result struct {
	Question     string             `json:"question"`
	Hypothesis   string             `json:"hypothesis"`
	Evidence     string             `json:"evidence"`
	Druggability string             `json:"druggability"`
	Novelty      string             `json:"novelty"`
	Preclinical  string             `json:"preclinical"`
	Controller   string             `json:"controller"`
	Scores       map[string]float64 `json:"scores"`
	Decision     string             `json:"decision"`
	Iterations   int                `json:"iterations"`
	LoopsUsed    int                `json:"loops_used"`
	Metadata     Metadata           `json:"metadata"`
}

// state carries the working outputs between agents. Score pointers are nil
// until the owning agent has run, so downstream prompts can distinguish
// "not yet scored" from a genuine low score.
type state struct {
	question string
	feedback string

	hypothesis   string
	evidence     string
	druggability string
	novelty      string
	preclinical  string

	evidenceScore     *float64
	druggabilityScore *float64
	noveltyScore      *float64
	feasibilityScore  *float64

	loopsUsed int
}

func (st *state) scores() map[string]float64 {
	scores := map[string]float64{}
	if st.evidenceScore != nil {
		scores["evidence"] = *st.evidenceScore
	}
	if st.druggabilityScore != nil {
		scores["druggability"] = *st.druggabilityScore
	}
	if st.noveltyScore != nil {
		scores["novelty"] = *st.noveltyScore
	}
	if st.feasibilityScore != nil {
		scores["feasibility"] = *st.feasibilityScore
	}
	return scores
}

type Pipeline struct {
	gen      Generator
	maxLoops int
	tracer   trace.Tracer
}

func NewPipeline(gen Generator, maxLoops int) *Pipeline {
	if maxLoops <= 0 {
		maxLoops = DefaultMaxLoops
	}
	return &Pipeline{
		gen:      gen,
		maxLoops: maxLoops,
		tracer:   otel.Tracer("research-agency/drugdiscovery"),
	}
}

func (p *Pipeline) ValidateConfig() error {
	if p.gen == nil {
		return errors.New("drug-discovery pipeline requires a generator")
	}
	return nil
}

// Run walks the agent sequence, re-entering at the controller's loop target
// until the loop budget is exhausted or a GO/NO_GO decision lands.
func (p *Pipeline) Run(ctx context.Context, question string, sink events.Sink) (Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Result{}, errors.New("question must not be empty")
	}
	if err := p.ValidateConfig(); err != nil {
		return Result{}, err
	}

	start := time.Now()
	st := &state{question: question}
	res := Result{
		Question: question,
		Metadata: Metadata{Model: p.gen.ModelName()},
	}
	sink.Emit(events.Event{Type: events.PipelineStart, Pipeline: PipelineName, Question: question})

	iteration := 1
	idx := 0
	for idx < len(agentSequence) {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		agentID := agentSequence[idx]
		output, err := p.runAgent(ctx, agentID, st, sink)
		if err != nil {
			log.Printf("drug-discovery agent_failed agent=%s err=%q", agentID, err.Error())
			sink.Emit(events.Event{Type: events.PipelineError, Pipeline: PipelineName, Stage: agentID, Error: err.Error()})
			return res, fmt.Errorf("%s: %w", agentID, err)
		}

		applyAgentOutput(agentID, output, st)
		scores := st.scores()
		sink.Emit(events.Event{Type: events.StageComplete, Pipeline: PipelineName, Stage: agentID, Output: output, Scores: scores})

		if agentID != AgentController {
			idx++
			continue
		}

		decision, loopTarget := ParseDecision(output)
		remaining := p.maxLoops - st.loopsUsed

		if decision == DecisionLoop && remaining > 0 {
			st.loopsUsed++
			iteration++
			st.feedback = fmt.Sprintf("Iteration %d: Controller requested refinement due to low scores. Focus on improving the weakest aspects.", iteration)
			log.Printf("drug-discovery loop iteration=%d target=%s scores=%v", iteration, loopTarget, scores)
			sink.Emit(events.Event{Type: events.Loop, Pipeline: PipelineName, From: AgentController, To: loopTarget, Iteration: iteration, Scores: scores})
			idx = agentIndex(loopTarget)
			continue
		}
		if decision == DecisionLoop {
			// Loop budget exhausted but the controller still asked for one.
			// Settle on the average score.
			avg := (scoreOr(st.evidenceScore, 0.5) + scoreOr(st.druggabilityScore, 0.5) +
				scoreOr(st.noveltyScore, 0.5) + scoreOr(st.feasibilityScore, 0.5)) / 4
			if avg >= 0.50 {
				decision = DecisionGo
			} else {
				decision = DecisionNoGo
			}
		}

		res.Hypothesis = st.hypothesis
		res.Evidence = st.evidence
		res.Druggability = st.druggability
		res.Novelty = st.novelty
		res.Preclinical = st.preclinical
		res.Controller = output
		res.Scores = scores
		res.Decision = decision
		res.Iterations = iteration
		res.LoopsUsed = st.loopsUsed
		res.Metadata.DurationMS = time.Since(start).Milliseconds()

		payload, err := json.Marshal(map[string]any{
			"decision":   decision,
			"scores":     scores,
			"iterations": iteration,
		})
		if err != nil {
			return res, fmt.Errorf("marshal result: %w", err)
		}
		sink.Emit(events.Event{
			Type:      events.PipelineComplete,
			Pipeline:  PipelineName,
			Decision:  decision,
			Scores:    scores,
			Iteration: iteration,
			Result:    payload,
		})
		return res, nil
	}
	return res, errors.New("agent sequence ended without a controller decision")
}

func (p *Pipeline) runAgent(ctx context.Context, agentID string, st *state, sink events.Sink) (string, error) {
	config := agentConfigs[agentID]
	ctx, span := p.tracer.Start(ctx, agentID)
	defer span.End()

	sink.Emit(events.Event{Type: events.StageThinking, Pipeline: PipelineName, Stage: agentID, Message: config.Thinking})

	system := config.System
	if agentID == AgentController {
		system = p.buildControllerSystem(st)
	}
	temperature := llm.TemperatureAnalysis
	if config.Creative {
		temperature = llm.TemperatureCreative
	}

	output, err := p.gen.GenerateStream(ctx, agentID, llm.Request{
		System:      system,
		Prompt:      buildAgentInput(agentID, st),
		Temperature: temperature,
	}, func(text string) {
		sink.Emit(events.Event{Type: events.StageProgress, Pipeline: PipelineName, Stage: agentID, Message: text})
	})
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return output, nil
}

// buildControllerSystem fills the controller template with the collected
// scores and the iteration budget.
func (p *Pipeline) buildControllerSystem(st *state) string {
	remaining := p.maxLoops - st.loopsUsed

	var loopRules string
	if remaining <= 0 {
		loopRules = "You have NO remaining loops. You MUST choose GO or NO_GO only."
	} else {
		loopRules = fmt.Sprintf(`You have %d loop(s) remaining.

Decision Guidelines:
- All scores >= 0.55: Consider GO (adequate across all dimensions)
- Any score < 0.40: Critical weakness - LOOP to improve or NO_GO if unfixable
- Scores 0.40-0.54: Weak but potentially acceptable - use judgment

LOOP targets:
- Low evidence -> LOOP to literature_evidence (re-evaluate with different framing)
- Low druggability or novelty -> LOOP to target_hypothesis (consider different target/mechanism)
- Low feasibility -> LOOP to preclinical_design (simplify experimental plan)

Choose NO_GO only if the hypothesis is fundamentally flawed and cannot be salvaged.`, remaining)
	}

	return strings.NewReplacer(
		"{evidence_score}", fmt.Sprintf("%.2f", scoreOr(st.evidenceScore, 0.5)),
		"{druggability_score}", fmt.Sprintf("%.2f", scoreOr(st.druggabilityScore, 0.5)),
		"{novelty_score}", fmt.Sprintf("%.2f", scoreOr(st.noveltyScore, 0.5)),
		"{feasibility_score}", fmt.Sprintf("%.2f", scoreOr(st.feasibilityScore, 0.5)),
		"{loops_used}", fmt.Sprintf("%d", st.loopsUsed),
		"{max_loops}", fmt.Sprintf("%d", p.maxLoops),
		"{remaining_loops}", fmt.Sprintf("%d", remaining),
		"{loop_rules}", loopRules,
	).Replace(agentConfigs[AgentController].System)
}

func buildAgentInput(agentID string, st *state) string {
	switch agentID {
	case AgentTargetHypothesis:
		inp := fmt.Sprintf("Research Question: %s", st.question)
		if st.feedback != "" && st.loopsUsed > 0 {
			inp += fmt.Sprintf("\n\n[REFINEMENT REQUEST - Iteration %d]\n%s\n\nPrevious hypothesis had weaknesses. Please refine with a stronger, more differentiated approach.", st.loopsUsed+1, st.feedback)
		}
		return inp
	case AgentLiteratureEvidence:
		return fmt.Sprintf("Evaluate this drug discovery hypothesis:\n\n%s", st.hypothesis)
	case AgentDruggability:
		return fmt.Sprintf("HYPOTHESIS:\n%s\n\nEVIDENCE CONTEXT:\n%s", st.hypothesis, truncate(st.evidence, 2000))
	case AgentNovelty:
		return fmt.Sprintf("HYPOTHESIS:\n%s\n\nCONTEXT:\n- Evidence confidence: %.2f\n- Druggability score: %.2f",
			st.hypothesis, scoreOr(st.evidenceScore, 0.5), scoreOr(st.druggabilityScore, 0.5))
	case AgentPreclinicalDesign:
		inp := fmt.Sprintf(`HYPOTHESIS:
%s

CONTEXT:
- Evidence confidence: %.2f
- Druggability score: %.2f
- Novelty score: %.2f

DRUGGABILITY ASSESSMENT:
%s`, st.hypothesis, scoreOr(st.evidenceScore, 0.5), scoreOr(st.druggabilityScore, 0.5),
			scoreOr(st.noveltyScore, 0.5), truncate(st.druggability, 1500))
		if st.feedback != "" && st.loopsUsed > 0 {
			inp += "\n\n[REFINEMENT REQUEST]\nPrevious experimental plan had feasibility concerns. Please design a more practical, resource-efficient approach with clearer go/no-go criteria."
		}
		return inp
	case AgentController:
		return "Review all scores and make your portfolio decision."
	}
	return st.question
}

func applyAgentOutput(agentID, output string, st *state) {
	switch agentID {
	case AgentTargetHypothesis:
		st.hypothesis = output
	case AgentLiteratureEvidence:
		st.evidence = output
		st.evidenceScore = scorePtr(ParseScore(output, "EVIDENCE_CONFIDENCE"))
	case AgentDruggability:
		st.druggability = output
		st.druggabilityScore = scorePtr(ParseScore(output, "DRUGGABILITY_SCORE"))
	case AgentNovelty:
		st.novelty = output
		st.noveltyScore = scorePtr(ParseScore(output, "NOVELTY_SCORE"))
	case AgentPreclinicalDesign:
		st.preclinical = output
		st.feasibilityScore = scorePtr(ParseScore(output, "FEASIBILITY_SCORE"))
	}
}

func agentIndex(agentID string) int {
	for i, id := range agentSequence {
		if id == agentID {
			return i
		}
	}
	return 0
}

func scorePtr(v float64) *float64 { return &v }

func scoreOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
