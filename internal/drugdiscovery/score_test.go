package drugdiscovery

import "testing"

func TestParseScoreExactKey(t *testing.T) {
	text := "EVIDENCE ASSESSMENT:\nSolid genetics.\n\nEVIDENCE_CONFIDENCE: 0.82\nJustification: strong GWAS support."
	if got := ParseScore(text, "EVIDENCE_CONFIDENCE"); got != 0.82 {
		t.Fatalf("score = %v", got)
	}
}

func TestParseScoreSpacedKey(t *testing.T) {
	if got := ParseScore("Druggability Score: 0.65 based on pocket analysis", "DRUGGABILITY_SCORE"); got != 0.65 {
		t.Fatalf("score = %v", got)
	}
}

func TestParseScoreStrippedSuffix(t *testing.T) {
	if got := ParseScore("NOVELTY: 0.9", "NOVELTY_SCORE"); got != 0.9 {
		t.Fatalf("score = %v", got)
	}
}

func TestParseScoreClamped(t *testing.T) {
	if got := ParseScore("FEASIBILITY_SCORE: 1.8", "FEASIBILITY_SCORE"); got != 1.0 {
		t.Fatalf("score = %v", got)
	}
}

func TestParseScoreOverallNearKey(t *testing.T) {
	text := `FEASIBILITY_SCORE assessment follows
- Technical feasibility: strong
- Overall: 0.71`
	if got := ParseScore(text, "FEASIBILITY_SCORE"); got != 0.71 {
		t.Fatalf("score = %v", got)
	}
}

func TestParseScoreNearbyDecimalFallback(t *testing.T) {
	if got := ParseScore("the novelty score lands around 0.45 overall", "NOVELTY_SCORE"); got != 0.45 {
		t.Fatalf("score = %v", got)
	}
}

func TestParseScoreDefault(t *testing.T) {
	if got := ParseScore("no numbers anywhere in this text", "EVIDENCE_CONFIDENCE"); got != defaultScore {
		t.Fatalf("score = %v", got)
	}
}

func TestParseDecision(t *testing.T) {
	cases := []struct {
		text       string
		decision   string
		loopTarget string
	}{
		{"DECISION: GO\nREASONING: all strong", DecisionGo, ""},
		{"decision: no_go", DecisionNoGo, ""},
		{"DECISION: NO-GO", DecisionNoGo, ""},
		{"DECISION: LOOP\nLOOP_TARGET: literature_evidence", DecisionLoop, AgentLiteratureEvidence},
		{"DECISION: LOOP\nLOOP_TARGET: preclinical", DecisionLoop, AgentPreclinicalDesign},
		{"DECISION: LOOP\nLOOP_TARGET: druggability", DecisionLoop, AgentTargetHypothesis},
		{"DECISION: LOOP\nLOOP_TARGET: novelty", DecisionLoop, AgentTargetHypothesis},
		{"DECISION: LOOP", DecisionLoop, AgentTargetHypothesis},
		{"no decision line at all", DecisionGo, ""},
	}
	for _, tc := range cases {
		decision, target := ParseDecision(tc.text)
		if decision != tc.decision || target != tc.loopTarget {
			t.Fatalf("ParseDecision(%q) = %q, %q", tc.text, decision, target)
		}
	}
}
