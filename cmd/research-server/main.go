package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joelkehle/research-agency/internal/drugdiscovery"
	"github.com/joelkehle/research-agency/internal/gapfinder"
	"github.com/joelkehle/research-agency/internal/httpapi"
	"github.com/joelkehle/research-agency/internal/llm"
	"github.com/joelkehle/research-agency/internal/openalex"
	"github.com/joelkehle/research-agency/internal/pubmed"
	"github.com/joelkehle/research-agency/internal/report"
	"github.com/joelkehle/research-agency/internal/runstore"
	"github.com/joelkehle/research-agency/internal/telemetry"
)

func main() {
	dbFlag := flag.String("db", "", "path to SQLite database file (overrides DB_PATH env var)")
	flag.Parse()

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.Init(ctx, "research-server")
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Printf("telemetry shutdown: %v", err)
		}
	}()

	caller, err := llm.NewAnthropicCallerFromEnv()
	if err != nil {
		log.Fatal(err)
	}
	exec := llm.NewExecutor(caller)

	search := pubmed.NewClient(pubmed.Config{
		MaxPerQuery: envInt("PUBMED_MAX_PER_QUERY", pubmed.DefaultMaxPerQuery),
	})
	enrich := openalex.NewClient(openalex.Config{})

	gap := gapfinder.NewPipeline(exec, search, enrich, rand.New(rand.NewSource(time.Now().UnixNano())))
	if err := gap.ValidateConfig(); err != nil {
		log.Fatal(err)
	}
	drug := drugdiscovery.NewPipeline(exec, envInt("DRUG_MAX_LOOPS", drugdiscovery.DefaultMaxLoops))

	dbPath := *dbFlag
	if dbPath == "" {
		dbPath = strings.TrimSpace(os.Getenv("DB_PATH"))
	}
	if dbPath == "" {
		dbPath = "./data/runs.db"
	}
	store, err := runstore.NewStore(dbPath)
	if err != nil {
		log.Fatalf("failed to initialize run store (%s): %v", dbPath, err)
	}
	defer store.Close()
	log.Printf("using run store at %s", dbPath)

	srv := &http.Server{
		Addr:    addr,
		Handler: httpapi.NewServer(gap, drug, store, report.NewChromiumPDFRenderer()),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("research-server listening on %s (model=%s)", addr, exec.ModelName())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
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
