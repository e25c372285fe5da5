// Package events defines the progress event protocol shared by the pipelines,
// the HTTP stream, and the run store.
package events

import "encoding/json"

type Type string

const (
	PipelineStart    Type = "pipeline_start"
	StageThinking    Type = "stage_thinking"
	StageProgress    Type = "stage_progress"
	StageComplete    Type = "stage_complete"
	StageError       Type = "stage_error"
	Loop             Type = "loop"
	PipelineComplete Type = "pipeline_complete"
	PipelineError    Type = "pipeline_error"
)

// Event is one progress record. Fields beyond Type are populated per event
// type; zero values are omitted on the wire.
type Event struct {
	Type      Type               `json:"type"`
	Pipeline  string             `json:"pipeline,omitempty"`
	Question  string             `json:"question,omitempty"`
	Stage     string             `json:"stage,omitempty"`
	Message   string             `json:"message,omitempty"`
	Output    string             `json:"output,omitempty"`
	Query     string             `json:"query,omitempty"`
	Scores    map[string]float64 `json:"scores,omitempty"`
	Decision  string             `json:"decision,omitempty"`
	From      string             `json:"from,omitempty"`
	To        string             `json:"to,omitempty"`
	Iteration int                `json:"iteration,omitempty"`
	Result    json.RawMessage    `json:"result,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// Sink receives pipeline events. A nil Sink discards them.
type Sink func(Event)

func (s Sink) Emit(e Event) {
	if s != nil {
		s(e)
	}
}
