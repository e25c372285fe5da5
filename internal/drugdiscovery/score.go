package drugdiscovery

import (
	"regexp"
	"strconv"
	"strings"
)

// Controller decisions.
const (
	DecisionGo   = "GO"
	DecisionNoGo = "NO_GO"
	DecisionLoop = "LOOP"
)

// defaultScore sits in the middle of the "adequate" band and is returned when
// no score can be extracted from an agent's output.
const defaultScore = 0.55

var (
	decisionRe   = regexp.MustCompile(`DECISION:\s*(GO|NO_GO|NO-GO|LOOP)`)
	loopTargetRe = regexp.MustCompile(`(?i)LOOP_TARGET:\s*(\w+)`)
	overallRe    = regexp.MustCompile(`(?i)Overall[:\s]+([0-1]\.\d+)`)
	decimalRe    = regexp.MustCompile(`\d+\.\d+`)
)

// ParseScore extracts a 0..1 score labeled with key from free-form agent
// output. The agents are told to emit "KEY: 0.72" but in practice vary the
// label, so the key is also tried with spaces and with the _SCORE and
// _CONFIDENCE suffixes stripped, then the per-dimension "Overall:" line near
// the key, then any plausible decimal in the key's vicinity.
func ParseScore(text, key string) float64 {
	searchKeys := []string{
		key,
		strings.ReplaceAll(key, "_", " "),
		strings.ReplaceAll(key, "_SCORE", ""),
		strings.ReplaceAll(key, "_CONFIDENCE", ""),
	}

	for _, sk := range searchKeys {
		re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(sk) + `[:\s]+([0-1]\.?\d*)`)
		if m := re.FindStringSubmatch(text); len(m) == 2 {
			if val, err := strconv.ParseFloat(m[1], 64); err == nil {
				return clamp01(val)
			}
		}
	}

	lower := strings.ToLower(text)
	for _, sk := range searchKeys {
		pos := strings.Index(lower, strings.ToLower(sk))
		if pos < 0 {
			continue
		}
		snippet := text[pos:min(pos+200, len(text))]
		if m := overallRe.FindStringSubmatch(snippet); len(m) == 2 {
			if val, err := strconv.ParseFloat(m[1], 64); err == nil {
				return clamp01(val)
			}
		}
	}

	for _, sk := range searchKeys {
		pos := strings.Index(lower, strings.ToLower(sk))
		if pos < 0 {
			continue
		}
		snippet := text[pos:min(pos+50, len(text))]
		for _, d := range decimalRe.FindAllString(snippet, -1) {
			val, err := strconv.ParseFloat(d, 64)
			if err == nil && val <= 1.0 {
				return val
			}
			break
		}
	}

	return defaultScore
}

// ParseDecision reads the controller's DECISION line and, for LOOP, resolves
// the loop target to one of the re-runnable agents. Weak druggability or
// novelty routes back to target_hypothesis since those call for a different
// target, not a re-assessment.
func ParseDecision(text string) (decision, loopTarget string) {
	decision = DecisionGo
	if m := decisionRe.FindStringSubmatch(strings.ToUpper(text)); len(m) == 2 {
		switch {
		case m[1] == "LOOP":
			decision = DecisionLoop
		case strings.Contains(m[1], "NO"):
			decision = DecisionNoGo
		}
	}
	if decision != DecisionLoop {
		return decision, ""
	}

	if m := loopTargetRe.FindStringSubmatch(text); len(m) == 2 {
		t := strings.ToLower(m[1])
		switch {
		case strings.Contains(t, "hypothesis"), strings.Contains(t, "target"):
			loopTarget = AgentTargetHypothesis
		case strings.Contains(t, "evidence"), strings.Contains(t, "literature"):
			loopTarget = AgentLiteratureEvidence
		case strings.Contains(t, "preclinical"), strings.Contains(t, "design"), strings.Contains(t, "feasibility"):
			loopTarget = AgentPreclinicalDesign
		case strings.Contains(t, "druggability"), strings.Contains(t, "novelty"):
			loopTarget = AgentTargetHypothesis
		}
	}
	if loopTarget == "" {
		loopTarget = AgentTargetHypothesis
	}
	return decision, loopTarget
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
