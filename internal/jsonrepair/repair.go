// Package jsonrepair recovers structured output from model responses that are
// almost but not quite valid JSON. Repairs are applied as an escalating
// ladder; the last rung extracts known fields by pattern and flags the result
// as partial.
package jsonrepair

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// Stage names which rung of the ladder produced the result.
type Stage string

const (
	StageStrict         Stage = "strict"
	StageTrailingCommas Stage = "trailing_commas"
	StageQuoteFix       Stage = "quote_fix"
	StageExtraction     Stage = "extraction"
)

// Result carries the recovered object. Partial means the object was rebuilt
// field by field and anything unrecognized was lost.
type Result struct {
	Data    map[string]any
	Stage   Stage
	Partial bool
}

var ErrNoObject = errors.New("jsonrepair: no JSON object found")

var (
	trailingObjComma = regexp.MustCompile(`,\s*}`)
	trailingArrComma = regexp.MustCompile(`,\s*]`)

	// Search queries quote MeSH terms inside JSON strings, which breaks the
	// string ("\"smoking\"[MeSH]"). Swap those inner quotes for single quotes.
	quotedTerm1 = regexp.MustCompile(`"(\w+)"\[`)
	quotedTerm2 = regexp.MustCompile(`"(\w+ \w+)"\[`)
	quotedTerm3 = regexp.MustCompile(`"(\w+ \w+ \w+)"\[`)

	searchQueriesRe = regexp.MustCompile(`(?s)"search_queries"\s*:\s*\[(.*?)\]`)
	querySplitRe    = regexp.MustCompile(`,\s*\n`)
)

// stringFieldRes extracts simple string fields during last-resort recovery.
var stringFieldRes = map[string]*regexp.Regexp{}

func init() {
	for _, f := range []string{
		"domain_summary",
		"search_rationale",
		"key_findings_summary",
		"synthesis_summary",
		"field_observations",
	} {
		stringFieldRes[f] = regexp.MustCompile(`"` + f + `"\s*:\s*"([^"]*)"`)
	}
}

// Repair runs the ladder over a raw model response.
func Repair(raw string) (Result, error) {
	s := StripCodeFences(raw)

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return Result{}, ErrNoObject
	}
	s = s[start : end+1]

	if data, ok := tryParse(s); ok {
		return Result{Data: data, Stage: StageStrict}, nil
	}

	fixed := trailingObjComma.ReplaceAllString(s, "}")
	fixed = trailingArrComma.ReplaceAllString(fixed, "]")
	if data, ok := tryParse(fixed); ok {
		return Result{Data: data, Stage: StageTrailingCommas}, nil
	}

	fixed = quotedTerm3.ReplaceAllString(fixed, "'$1'[")
	fixed = quotedTerm2.ReplaceAllString(fixed, "'$1'[")
	fixed = quotedTerm1.ReplaceAllString(fixed, "'$1'[")
	if data, ok := tryParse(fixed); ok {
		return Result{Data: data, Stage: StageQuoteFix}, nil
	}

	data := extractFields(s)
	if len(data) == 0 {
		return Result{}, errors.New("jsonrepair: unable to recover any fields")
	}
	return Result{Data: data, Stage: StageExtraction, Partial: true}, nil
}

// StripCodeFences removes a surrounding markdown code fence if present.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = s[len("```json"):]
	} else if strings.HasPrefix(s, "```") {
		s = s[3:]
	}
	if strings.HasSuffix(s, "```") {
		s = s[:len(s)-3]
	}
	return strings.TrimSpace(s)
}

func tryParse(s string) (map[string]any, bool) {
	var data map[string]any
	if err := json.Unmarshal([]byte(s), &data); err != nil {
		return nil, false
	}
	return data, true
}

// extractFields rebuilds whatever fields it can recognize by pattern alone.
func extractFields(s string) map[string]any {
	data := map[string]any{}

	if m := searchQueriesRe.FindStringSubmatch(s); m != nil {
		var queries []string
		for _, part := range querySplitRe.Split(m[1], -1) {
			q := strings.TrimSpace(part)
			q = strings.Trim(q, `",`)
			q = strings.TrimSpace(q)
			if len(q) > 5 {
				queries = append(queries, q)
			}
		}
		if len(queries) > 0 {
			data["search_queries"] = queries
		}
	}

	for field, re := range stringFieldRes {
		if m := re.FindStringSubmatch(s); m != nil && m[1] != "" {
			data[field] = m[1]
		}
	}
	return data
}
