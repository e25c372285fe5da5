package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joelkehle/research-agency/internal/drugdiscovery"
	"github.com/joelkehle/research-agency/internal/events"
	"github.com/joelkehle/research-agency/internal/llm"
)

func main() {
	question := flag.String("question", "", "Research question to turn into a drug discovery hypothesis")
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
	pipeline := drugdiscovery.NewPipeline(exec, envInt("DRUG_MAX_LOOPS", drugdiscovery.DefaultMaxLoops))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	result, err := pipeline.Run(ctx, *question, progressSink())
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("DECISION: %s (iterations: %d)\n", result.Decision, result.Iterations)
	for _, dim := range []string{"evidence", "druggability", "novelty", "feasibility"} {
		if v, ok := result.Scores[dim]; ok {
			fmt.Printf("  %s: %.2f\n", dim, v)
		}
	}
	fmt.Printf("\n%s\n", result.Controller)

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
		case events.StageComplete:
			log.Printf("[%s] done (scores: %v)", e.Stage, e.Scores)
		case events.Loop:
			log.Printf("[controller] loop -> %s (iteration %d)", e.To, e.Iteration)
		}
	}
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
