package drugdiscovery

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/joelkehle/research-agency/internal/events"
	"github.com/joelkehle/research-agency/internal/llm"
)

// fakeGenerator replays scripted responses per agent, consuming the head of
// the list so loop iterations can answer differently. Each response is
// delivered as two deltas to exercise the streaming path.
type fakeGenerator struct {
	responses map[string][]string
	errs      map[string]error
	calls     []string
	requests  map[string][]llm.Request
}

func (f *fakeGenerator) GenerateStream(_ context.Context, stage string, req llm.Request, onDelta func(string)) (string, error) {
	f.calls = append(f.calls, stage)
	if f.requests == nil {
		f.requests = map[string][]llm.Request{}
	}
	f.requests[stage] = append(f.requests[stage], req)
	if err := f.errs[stage]; err != nil {
		return "", err
	}
	rs := f.responses[stage]
	if len(rs) == 0 {
		return "", errors.New("no scripted response for " + stage)
	}
	if len(rs) > 1 {
		f.responses[stage] = rs[1:]
	}
	out := rs[0]
	if onDelta != nil {
		half := len(out) / 2
		onDelta(out[:half])
		onDelta(out[half:])
	}
	return out, nil
}

func (f *fakeGenerator) ModelName() string { return "test-model" }

func collectEvents(sink *[]events.Event) events.Sink {
	return func(e events.Event) { *sink = append(*sink, e) }
}

func scriptedResponses(controller string) map[string][]string {
	return map[string][]string{
		AgentTargetHypothesis:   {"HYPOTHESIS: Inhibiting XYZ kinase reduces fibrosis.\nTARGET: XYZ kinase domain"},
		AgentLiteratureEvidence: {"EVIDENCE SYNTHESIS: strong genetics.\nEVIDENCE_CONFIDENCE: 0.80\nJustification: GWAS hits."},
		AgentDruggability:       {"STRUCTURAL DRUGGABILITY: good pocket.\nDRUGGABILITY_SCORE: 0.70\nJustification: kinase precedent."},
		AgentNovelty:            {"COMPETITIVE INTELLIGENCE: open space.\nNOVELTY_SCORE: 0.60\nJustification: few programs."},
		AgentPreclinicalDesign:  {"EXPERIMENTAL STRATEGY: CRISPR plus tool compound.\nFEASIBILITY_SCORE: 0.75\nJustification: standard assays."},
		AgentController:         {controller},
	}
}

func TestPipelineGoDecision(t *testing.T) {
	gen := &fakeGenerator{responses: scriptedResponses("PORTFOLIO ANALYSIS: all adequate.\nDECISION: GO\nREASONING: scores strong.")}
	p := NewPipeline(gen, 0)

	var got []events.Event
	res, err := p.Run(context.Background(), "What kinase drives pulmonary fibrosis?", collectEvents(&got))
	if err != nil {
		t.Fatal(err)
	}

	if res.Decision != DecisionGo {
		t.Fatalf("decision = %q", res.Decision)
	}
	if res.Iterations != 1 || res.LoopsUsed != 0 {
		t.Fatalf("iterations = %d loops = %d", res.Iterations, res.LoopsUsed)
	}
	want := map[string]float64{"evidence": 0.80, "druggability": 0.70, "novelty": 0.60, "feasibility": 0.75}
	for k, v := range want {
		if res.Scores[k] != v {
			t.Fatalf("scores[%s] = %v", k, res.Scores[k])
		}
	}
	if !strings.Contains(res.Hypothesis, "XYZ kinase") || res.Controller == "" {
		t.Fatalf("result = %+v", res)
	}

	if got[0].Type != events.PipelineStart || got[0].Pipeline != PipelineName {
		t.Fatalf("first event = %+v", got[0])
	}
	completes := 0
	for _, e := range got {
		if e.Type == events.StageComplete {
			completes++
		}
	}
	if completes != 6 {
		t.Fatalf("stage_complete count = %d", completes)
	}
	last := got[len(got)-1]
	if last.Type != events.PipelineComplete || last.Decision != DecisionGo {
		t.Fatalf("last event = %+v", last)
	}
	if !strings.Contains(string(last.Result), `"decision":"GO"`) {
		t.Fatalf("result payload = %s", last.Result)
	}

	// Streamed deltas reassemble into the agent's full output, in order.
	var streamed strings.Builder
	for _, e := range got {
		if e.Type == events.StageProgress && e.Stage == AgentTargetHypothesis {
			streamed.WriteString(e.Message)
		}
	}
	if streamed.String() != res.Hypothesis {
		t.Fatalf("streamed = %q, hypothesis = %q", streamed.String(), res.Hypothesis)
	}

	// Downstream prompts carry the upstream outputs and scores.
	drugReq := gen.requests[AgentDruggability][0]
	if !strings.Contains(drugReq.Prompt, "XYZ kinase") || !strings.Contains(drugReq.Prompt, "EVIDENCE CONTEXT:") {
		t.Fatalf("druggability prompt = %q", drugReq.Prompt)
	}
	noveltyReq := gen.requests[AgentNovelty][0]
	if !strings.Contains(noveltyReq.Prompt, "Evidence confidence: 0.80") {
		t.Fatalf("novelty prompt = %q", noveltyReq.Prompt)
	}
	ctrlReq := gen.requests[AgentController][0]
	if ctrlReq.Prompt != "Review all scores and make your portfolio decision." {
		t.Fatalf("controller prompt = %q", ctrlReq.Prompt)
	}
	for _, want := range []string{
		"- Evidence Confidence: 0.80",
		"- Feasibility Score: 0.75",
		"Loops used: 0 of 3",
		"You have 3 loop(s) remaining.",
	} {
		if !strings.Contains(ctrlReq.System, want) {
			t.Fatalf("controller system missing %q", want)
		}
	}
	// The hypothesis agent runs hot, the scorers cold.
	if gen.requests[AgentTargetHypothesis][0].Temperature != llm.TemperatureCreative {
		t.Fatal("hypothesis temperature")
	}
	if gen.requests[AgentLiteratureEvidence][0].Temperature != llm.TemperatureAnalysis {
		t.Fatal("evidence temperature")
	}
}

func TestPipelineLoopThenGo(t *testing.T) {
	responses := scriptedResponses("")
	responses[AgentController] = []string{
		"Weak evidence.\nDECISION: LOOP\nLOOP_TARGET: literature_evidence",
		"Better now.\nDECISION: GO",
	}
	responses[AgentLiteratureEvidence] = []string{
		"Thin literature.\nEVIDENCE_CONFIDENCE: 0.35",
		"Found stronger support.\nEVIDENCE_CONFIDENCE: 0.70",
	}
	gen := &fakeGenerator{responses: responses}
	p := NewPipeline(gen, 0)

	var got []events.Event
	res, err := p.Run(context.Background(), "question", collectEvents(&got))
	if err != nil {
		t.Fatal(err)
	}

	if res.Decision != DecisionGo || res.LoopsUsed != 1 || res.Iterations != 2 {
		t.Fatalf("result = %+v", res)
	}
	if res.Scores["evidence"] != 0.70 {
		t.Fatalf("evidence score = %v", res.Scores["evidence"])
	}

	var loop *events.Event
	for i := range got {
		if got[i].Type == events.Loop {
			loop = &got[i]
		}
	}
	if loop == nil || loop.From != AgentController || loop.To != AgentLiteratureEvidence || loop.Iteration != 2 {
		t.Fatalf("loop event = %+v", loop)
	}

	// The loop re-enters at literature_evidence, not at the top.
	hypothesisRuns := 0
	evidenceRuns := 0
	for _, call := range gen.calls {
		switch call {
		case AgentTargetHypothesis:
			hypothesisRuns++
		case AgentLiteratureEvidence:
			evidenceRuns++
		}
	}
	if hypothesisRuns != 1 || evidenceRuns != 2 {
		t.Fatalf("hypothesis runs = %d evidence runs = %d", hypothesisRuns, evidenceRuns)
	}

	// Second controller call reflects the consumed loop budget.
	second := gen.requests[AgentController][1]
	if !strings.Contains(second.System, "Loops used: 1 of 3") {
		t.Fatalf("controller system = %q", second.System)
	}
}

func TestPipelineExhaustedLoopsAveragesToGo(t *testing.T) {
	responses := scriptedResponses("Still weak.\nDECISION: LOOP\nLOOP_TARGET: target_hypothesis")
	responses[AgentTargetHypothesis] = []string{
		"HYPOTHESIS: first attempt.",
		"HYPOTHESIS: refined attempt.",
	}
	gen := &fakeGenerator{responses: responses}
	p := NewPipeline(gen, 1)

	var got []events.Event
	res, err := p.Run(context.Background(), "question", collectEvents(&got))
	if err != nil {
		t.Fatal(err)
	}

	// Scores average to 0.7125, so the exhausted LOOP settles on GO.
	if res.Decision != DecisionGo || res.LoopsUsed != 1 || res.Iterations != 2 {
		t.Fatalf("result = %+v", res)
	}
	second := gen.requests[AgentController][1]
	if !strings.Contains(second.System, "You have NO remaining loops. You MUST choose GO or NO_GO only.") {
		t.Fatalf("controller system = %q", second.System)
	}
	if !strings.Contains(res.Hypothesis, "refined attempt") {
		t.Fatalf("hypothesis = %q", res.Hypothesis)
	}
}

func TestPipelineExhaustedLoopsAveragesToNoGo(t *testing.T) {
	responses := map[string][]string{
		AgentTargetHypothesis:   {"HYPOTHESIS: weak idea."},
		AgentLiteratureEvidence: {"EVIDENCE_CONFIDENCE: 0.30"},
		AgentDruggability:       {"DRUGGABILITY_SCORE: 0.35"},
		AgentNovelty:            {"NOVELTY_SCORE: 0.30"},
		AgentPreclinicalDesign:  {"FEASIBILITY_SCORE: 0.40"},
		AgentController: {
			"DECISION: LOOP\nLOOP_TARGET: preclinical_design",
			"DECISION: LOOP\nLOOP_TARGET: preclinical_design",
		},
	}
	gen := &fakeGenerator{responses: responses}
	p := NewPipeline(gen, 1)

	res, err := p.Run(context.Background(), "question", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Decision != DecisionNoGo {
		t.Fatalf("decision = %q", res.Decision)
	}
}

func TestPipelineAgentFailure(t *testing.T) {
	gen := &fakeGenerator{
		responses: scriptedResponses("DECISION: GO"),
		errs:      map[string]error{AgentLiteratureEvidence: errors.New("api down")},
	}
	p := NewPipeline(gen, 0)

	var got []events.Event
	_, err := p.Run(context.Background(), "question", collectEvents(&got))
	if err == nil || !strings.Contains(err.Error(), AgentLiteratureEvidence) {
		t.Fatalf("err = %v", err)
	}
	last := got[len(got)-1]
	if last.Type != events.PipelineError || last.Stage != AgentLiteratureEvidence {
		t.Fatalf("last event = %+v", last)
	}
}

func TestPipelineRefinementFeedbackInPrompt(t *testing.T) {
	responses := scriptedResponses("")
	responses[AgentController] = []string{
		"DECISION: LOOP\nLOOP_TARGET: target_hypothesis",
		"DECISION: GO",
	}
	responses[AgentTargetHypothesis] = []string{
		"HYPOTHESIS: first.",
		"HYPOTHESIS: second.",
	}
	gen := &fakeGenerator{responses: responses}
	p := NewPipeline(gen, 0)

	if _, err := p.Run(context.Background(), "question", nil); err != nil {
		t.Fatal(err)
	}
	second := gen.requests[AgentTargetHypothesis][1]
	if !strings.Contains(second.Prompt, "[REFINEMENT REQUEST - Iteration 2]") {
		t.Fatalf("refined prompt = %q", second.Prompt)
	}
	if !strings.Contains(second.Prompt, "Controller requested refinement due to low scores.") {
		t.Fatalf("refined prompt = %q", second.Prompt)
	}
}

func TestPipelineRequiresQuestion(t *testing.T) {
	p := NewPipeline(&fakeGenerator{}, 0)
	if _, err := p.Run(context.Background(), "  ", nil); err == nil {
		t.Fatal("expected error")
	}
}
