package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joelkehle/research-agency/internal/events"
	"github.com/joelkehle/research-agency/internal/gapfinder"
	"github.com/joelkehle/research-agency/internal/llm"
	"github.com/joelkehle/research-agency/internal/openalex"
	"github.com/joelkehle/research-agency/internal/pubmed"
)

func main() {
	question := flag.String("question", "", "Research domain or question to analyze")
	outputPath := flag.String("output", "", "Path to write the markdown report (defaults to stdout)")
	jsonOutputPath := flag.String("json-output", "", "Optional path to write the full result JSON")
	flag.Parse()

	if strings.TrimSpace(*question) == "" {
		log.Fatal("missing required -question")
	}

	caller, err := llm.NewAnthropicCallerFromEnv()
	if err != nil {
		log.Fatal(err)
	}
	exec := llm.NewExecutor(caller)
	search := pubmed.NewClient(pubmed.Config{
		MaxPerQuery: envInt("PUBMED_MAX_PER_QUERY", pubmed.DefaultMaxPerQuery),
	})
	enrich := openalex.NewClient(openalex.Config{})

	pipeline := gapfinder.NewPipeline(exec, search, enrich, rand.New(rand.NewSource(time.Now().UnixNano())))
	if err := pipeline.ValidateConfig(); err != nil {
		log.Fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	result, err := pipeline.Run(ctx, *question, progressSink())
	if err != nil {
		log.Fatal(err)
	}
	if result.Metadata.Degraded {
		log.Printf("run degraded: %s", result.Metadata.DegradedReason)
	}

	markdown := gapfinder.BuildReportMarkdown(result)
	if err := writeOutput(*outputPath, markdown); err != nil {
		log.Fatalf("write report: %v", err)
	}
	if *jsonOutputPath != "" {
		blob, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			log.Fatalf("encode result: %v", err)
		}
		if err := os.WriteFile(*jsonOutputPath, blob, 0o644); err != nil {
			log.Fatalf("write json output: %v", err)
		}
	}
}

func progressSink() events.Sink {
	return func(e events.Event) {
		switch e.Type {
		case events.StageThinking:
			log.Printf("[%s] %s", e.Stage, e.Message)
		case events.StageError:
			log.Printf("[%s] error: %s", e.Stage, e.Error)
		case events.StageComplete:
			log.Printf("[%s] done", e.Stage)
		}
	}
}

func writeOutput(path, markdown string) error {
	if path == "" {
		_, err := fmt.Print(markdown)
		return err
	}
	return os.WriteFile(path, []byte(markdown), 0o644)
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	if n <= 0 {
		return fallback
	}
	return n
}
