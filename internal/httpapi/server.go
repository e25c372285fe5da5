// Package httpapi exposes the research pipelines over HTTP. Pipeline runs
// stream their progress events as SSE; finished runs are served from the run
// store.
package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/joelkehle/research-agency/internal/drugdiscovery"
	"github.com/joelkehle/research-agency/internal/events"
	"github.com/joelkehle/research-agency/internal/gapfinder"
	"github.com/joelkehle/research-agency/internal/runstore"
)

// Pipeline type identifiers accepted by the stream endpoint.
const (
	PipelineDrugDiscovery = "drug_discovery"
	PipelineResearchGap   = "research_gap"
)

const keepAliveInterval = 15 * time.Second

// GapRunner runs the research gap pipeline.
type GapRunner interface {
	Run(ctx context.Context, question string, sink events.Sink) (gapfinder.Result, error)
}

// DrugRunner runs the drug discovery pipeline.
type DrugRunner interface {
	Run(ctx context.Context, question string, sink events.Sink) (drugdiscovery.Result, error)
}

// ReportRenderer turns a markdown report into a PDF.
type ReportRenderer interface {
	Render(ctx context.Context, title, markdown string) ([]byte, error)
}

type Server struct {
	gap  GapRunner
	drug DrugRunner
	runs *runstore.Store
	pdf  ReportRenderer
}

// NewServer wires the pipelines and an optional run store into a handler.
// A nil store disables persistence but not streaming; a nil renderer
// disables the PDF form of the report endpoint.
func NewServer(gap GapRunner, drug DrugRunner, runs *runstore.Store, pdf ReportRenderer) http.Handler {
	s := &Server{gap: gap, drug: drug, runs: runs, pdf: pdf}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/pipeline/stream", s.handleStream)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/pipelines", s.handlePipelines)
	mux.HandleFunc("/api/runs", s.handleListRuns)
	mux.HandleFunc("/api/runs/", s.handleRun)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

func methodOnly(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func parseInt(value string, def int) int {
	if strings.TrimSpace(value) == "" {
		return def
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return v
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodPost) {
		return
	}
	blob, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	var req struct {
		Question     string `json:"question"`
		PipelineType string `json:"pipeline_type"`
	}
	if len(blob) > 0 {
		if err := json.Unmarshal(blob, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "Question is required")
		return
	}
	pipelineType := strings.TrimSpace(req.PipelineType)
	if pipelineType == "" {
		pipelineType = PipelineDrugDiscovery
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	var runID string
	if s.runs != nil {
		run, err := s.runs.CreateRun(pipelineType, req.Question)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "create run: "+err.Error())
			return
		}
		runID = run.RunID
		w.Header().Set("X-Run-ID", runID)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	ch := make(chan events.Event, 64)
	go s.runPipeline(ctx, pipelineType, req.Question, runID, ch)

	bw := bufio.NewWriter(w)
	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()
	eventID := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			if _, err := bw.WriteString(": keep-alive\n\n"); err != nil {
				return
			}
			if err := bw.Flush(); err != nil {
				return
			}
			flusher.Flush()
		case e, open := <-ch:
			if !open {
				return
			}
			blob, err := json.Marshal(e)
			if err != nil {
				continue
			}
			eventID++
			if _, err := bw.WriteString(fmt.Sprintf("id: %d\n", eventID)); err != nil {
				return
			}
			if _, err := bw.WriteString(fmt.Sprintf("event: %s\n", e.Type)); err != nil {
				return
			}
			if _, err := bw.WriteString("data: "); err != nil {
				return
			}
			if _, err := bw.Write(blob); err != nil {
				return
			}
			if _, err := bw.WriteString("\n\n"); err != nil {
				return
			}
			if err := bw.Flush(); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// runPipeline executes the requested pipeline, fanning events out to the
// stream channel and the run store, and closes the channel when done.
func (s *Server) runPipeline(ctx context.Context, pipelineType, question, runID string, ch chan<- events.Event) {
	defer close(ch)

	var final events.Event
	sink := events.Sink(func(e events.Event) {
		if e.Type == events.PipelineComplete {
			final = e
		}
		if s.runs != nil && runID != "" {
			if err := s.runs.AppendEvent(runID, e); err != nil {
				log.Printf("httpapi event_persist_failed run=%s err=%q", runID, err.Error())
			}
		}
		select {
		case ch <- e:
		case <-ctx.Done():
		}
	})

	var (
		err        error
		resultJSON json.RawMessage
	)
	switch pipelineType {
	case PipelineResearchGap:
		var res gapfinder.Result
		res, err = s.gap.Run(ctx, question, sink)
		if err == nil {
			resultJSON, err = json.Marshal(res)
		}
	default:
		var res drugdiscovery.Result
		res, err = s.drug.Run(ctx, question, sink)
		if err == nil {
			resultJSON, err = json.Marshal(res)
		}
	}

	if err != nil {
		log.Printf("httpapi pipeline_failed pipeline=%s run=%s err=%q", pipelineType, runID, err.Error())
		sink(events.Event{Type: events.PipelineError, Pipeline: pipelineType, Error: err.Error()})
		if s.runs != nil && runID != "" {
			if ferr := s.runs.FailRun(runID, err.Error()); ferr != nil {
				log.Printf("httpapi fail_run_failed run=%s err=%q", runID, ferr.Error())
			}
		}
		return
	}
	if s.runs != nil && runID != "" {
		if cerr := s.runs.CompleteRun(runID, final.Decision, resultJSON); cerr != nil {
			log.Printf("httpapi complete_run_failed run=%s err=%q", runID, cerr.Error())
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, 200, map[string]any{
		"status":    "healthy",
		"pipelines": []string{PipelineDrugDiscovery, PipelineResearchGap},
	})
}

func (s *Server) handlePipelines(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, 200, map[string]any{
		"pipelines": []map[string]any{
			{
				"id":          PipelineDrugDiscovery,
				"name":        "Drug Discovery Pipeline",
				"description": "6-agent hypothesis generation with dynamic routing",
				"agents":      drugdiscovery.Agents(),
			},
			{
				"id":          PipelineResearchGap,
				"name":        "Research Gap Finder",
				"description": "5-agent literature gap analysis",
				"agents":      gapfinder.Stages(),
			},
		},
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	if s.runs == nil {
		writeError(w, http.StatusNotFound, "run store not configured")
		return
	}
	limit := parseInt(r.URL.Query().Get("limit"), 50)
	runs, err := s.runs.ListRuns(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, 200, map[string]any{"runs": runs})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	if s.runs == nil {
		writeError(w, http.StatusNotFound, "run store not configured")
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	runID, rest, _ := strings.Cut(path, "/")
	if runID == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch rest {
	case "":
		run, ok, err := s.runs.GetRun(runID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if !ok {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		writeJSON(w, 200, run)
	case "events":
		if _, ok, err := s.runs.GetRun(runID); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		} else if !ok {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		eventList, err := s.runs.ListEvents(runID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, 200, map[string]any{"run_id": runID, "events": eventList})
	case "report":
		s.handleRunReport(w, r, runID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// handleRunReport rebuilds the gap-analysis markdown from a completed run's
// stored result, optionally rendered to PDF with ?format=pdf.
func (s *Server) handleRunReport(w http.ResponseWriter, r *http.Request, runID string) {
	run, ok, err := s.runs.GetRun(runID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if run.Pipeline != PipelineResearchGap {
		writeError(w, http.StatusBadRequest, "reports are only available for research_gap runs")
		return
	}
	if run.Status != runstore.StatusCompleted {
		writeError(w, http.StatusConflict, "run is not completed")
		return
	}

	var result gapfinder.Result
	if err := json.Unmarshal(run.Result, &result); err != nil {
		writeError(w, http.StatusInternalServerError, "decode stored result: "+err.Error())
		return
	}
	markdown := gapfinder.BuildReportMarkdown(result)

	if r.URL.Query().Get("format") == "pdf" {
		if s.pdf == nil {
			writeError(w, http.StatusNotImplemented, "PDF rendering is not configured")
			return
		}
		blob, err := s.pdf.Render(r.Context(), "Research Gap Analysis Report", markdown)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "render pdf: "+err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", runID+"-report.pdf"))
		_, _ = w.Write(blob)
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	_, _ = io.WriteString(w, markdown)
}
