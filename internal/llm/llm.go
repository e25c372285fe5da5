// Package llm wraps the Anthropic client behind a small Caller interface and
// adds transport-level retry with classified failures.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"regexp"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

const (
	DefaultModel     = "claude-sonnet-4-20250514"
	DefaultMaxTokens = 4096

	// TemperatureAnalysis suits extraction and scoring stages,
	// TemperatureCreative suits hypothesis and synthesis stages.
	TemperatureAnalysis = 0.3
	TemperatureCreative = 0.7
)

var statusCodeRe = regexp.MustCompile(`(?:status(?:\s+code)?[:=\s]+)(\d{3})`)

type failureClass int

const (
	failureNone failureClass = iota
	failureTimeout
	failureRateLimit
	failureServer
	failureClient
)

// Request is one generation call. System and Prompt are required; zero
// Temperature and MaxTokens take the defaults.
type Request struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int64
}

type Caller interface {
	Generate(ctx context.Context, req Request) (string, error)
	ModelName() string
}

// StreamCaller is implemented by callers that can deliver the response
// incrementally. onDelta receives each text fragment in arrival order; the
// concatenated full response is returned once the stream ends.
type StreamCaller interface {
	Caller
	GenerateStream(ctx context.Context, req Request, onDelta func(text string)) (string, error)
}

type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
	NewStreaming(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[anthropic.MessageStreamEventUnion]
}

type AnthropicCaller struct {
	messages AnthropicMessager
	model    string
}

type AnthropicClientCreator func(apiKey string) AnthropicMessager

func defaultAnthropicCreator(apiKey string) AnthropicMessager {
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &c.Messages
}

var newAnthropicClient AnthropicClientCreator = defaultAnthropicCreator

// NewAnthropicCallerFromEnv reads ANTHROPIC_API_KEY and RESEARCH_LLM_MODEL.
func NewAnthropicCallerFromEnv() (*AnthropicCaller, error) {
	apiKey := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY not configured")
	}
	model := strings.TrimSpace(os.Getenv("RESEARCH_LLM_MODEL"))
	if model == "" {
		model = DefaultModel
	}
	return &AnthropicCaller{messages: newAnthropicClient(apiKey), model: model}, nil
}

func (a *AnthropicCaller) ModelName() string { return a.model }

func (a *AnthropicCaller) params(req Request) anthropic.MessageNewParams {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: maxTokens,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt))},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	return params
}

func (a *AnthropicCaller) Generate(ctx context.Context, req Request) (string, error) {
	resp, err := a.messages.New(ctx, a.params(req))
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String(), nil
}

// GenerateStream forwards text deltas in arrival order and returns the
// concatenated response.
func (a *AnthropicCaller) GenerateStream(ctx context.Context, req Request, onDelta func(text string)) (string, error) {
	stream := a.messages.NewStreaming(ctx, a.params(req))
	defer stream.Close()

	var sb strings.Builder
	for stream.Next() {
		event := stream.Current()
		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			switch delta := ev.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if delta.Text == "" {
					continue
				}
				sb.WriteString(delta.Text)
				if onDelta != nil {
					onDelta(delta.Text)
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// Executor retries transient transport failures with backoff. Content-level
// repair (bad JSON, missing fields) is the pipelines' business, not ours.
type Executor struct {
	caller Caller
}

func NewExecutor(caller Caller) *Executor {
	return &Executor{caller: caller}
}

func (e *Executor) ModelName() string {
	if e == nil || e.caller == nil {
		return DefaultModel
	}
	return e.caller.ModelName()
}

func (e *Executor) Generate(ctx context.Context, stage string, req Request) (string, error) {
	for attempt := 1; attempt <= 3; attempt++ {
		attemptStart := time.Now()
		log.Printf("llm attempt_start stage=%s attempt=%d", stage, attempt)
		raw, err := e.caller.Generate(ctx, req)
		if err != nil {
			class := classifyTransportError(err)
			log.Printf("llm attempt_transport_error stage=%s attempt=%d class=%d elapsed_ms=%d err=%q", stage, attempt, class, time.Since(attemptStart).Milliseconds(), err.Error())
			if class == failureTimeout || class == failureRateLimit || class == failureServer {
				if attempt < 3 {
					if err := sleepCtx(ctx, backoffDelay(attempt)); err != nil {
						return "", err
					}
					continue
				}
			}
			return "", fmt.Errorf("%s transport failure: %w", stage, err)
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			log.Printf("llm attempt_empty stage=%s attempt=%d elapsed_ms=%d", stage, attempt, time.Since(attemptStart).Milliseconds())
			if attempt < 3 {
				continue
			}
			return "", fmt.Errorf("%s failed: empty response", stage)
		}
		log.Printf("llm attempt_success stage=%s attempt=%d elapsed_ms=%d response_chars=%d", stage, attempt, time.Since(attemptStart).Milliseconds(), len(raw))
		return raw, nil
	}
	return "", fmt.Errorf("%s failed after retries", stage)
}

// GenerateStream behaves like Generate but forwards text deltas as they
// arrive. Transport failures retry only while nothing has been forwarded yet;
// once the consumer has seen a delta a mid-stream failure is returned as-is,
// never replayed. Callers without streaming support get the full response as
// a single delta.
func (e *Executor) GenerateStream(ctx context.Context, stage string, req Request, onDelta func(text string)) (string, error) {
	sc, ok := e.caller.(StreamCaller)
	if !ok {
		raw, err := e.Generate(ctx, stage, req)
		if err != nil {
			return "", err
		}
		if onDelta != nil {
			onDelta(raw)
		}
		return raw, nil
	}

	for attempt := 1; attempt <= 3; attempt++ {
		attemptStart := time.Now()
		log.Printf("llm stream_attempt_start stage=%s attempt=%d", stage, attempt)
		forwarded := false
		raw, err := sc.GenerateStream(ctx, req, func(text string) {
			forwarded = true
			if onDelta != nil {
				onDelta(text)
			}
		})
		if err != nil {
			class := classifyTransportError(err)
			log.Printf("llm stream_attempt_error stage=%s attempt=%d class=%d forwarded=%t elapsed_ms=%d err=%q", stage, attempt, class, forwarded, time.Since(attemptStart).Milliseconds(), err.Error())
			if !forwarded && (class == failureTimeout || class == failureRateLimit || class == failureServer) {
				if attempt < 3 {
					if err := sleepCtx(ctx, backoffDelay(attempt)); err != nil {
						return "", err
					}
					continue
				}
			}
			return "", fmt.Errorf("%s transport failure: %w", stage, err)
		}
		if strings.TrimSpace(raw) == "" {
			log.Printf("llm stream_attempt_empty stage=%s attempt=%d elapsed_ms=%d", stage, attempt, time.Since(attemptStart).Milliseconds())
			if attempt < 3 {
				continue
			}
			return "", fmt.Errorf("%s failed: empty response", stage)
		}
		log.Printf("llm stream_attempt_success stage=%s attempt=%d elapsed_ms=%d response_chars=%d", stage, attempt, time.Since(attemptStart).Milliseconds(), len(raw))
		return raw, nil
	}
	return "", fmt.Errorf("%s failed after retries", stage)
}

func classifyTransportError(err error) failureClass {
	msg := strings.ToLower(err.Error())
	if errors.Is(err, context.DeadlineExceeded) {
		return failureTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return failureTimeout
	}
	m := statusCodeRe.FindStringSubmatch(msg)
	if len(m) == 2 {
		switch {
		case strings.HasPrefix(m[1], "429"):
			return failureRateLimit
		case strings.HasPrefix(m[1], "5"):
			return failureServer
		case strings.HasPrefix(m[1], "4"):
			return failureClient
		}
	}
	switch {
	case strings.Contains(msg, "status 429"), strings.Contains(msg, "status=429"), strings.Contains(msg, "rate limit"):
		return failureRateLimit
	case strings.Contains(msg, "status 5"), strings.Contains(msg, "status=5"), strings.Contains(msg, "status code: 5"), strings.Contains(msg, "server error"):
		return failureServer
	case strings.Contains(msg, "status 4"), strings.Contains(msg, "status=4"), strings.Contains(msg, "status code: 4"):
		return failureClient
	default:
		return failureServer
	}
}

func backoffDelay(attempt int) time.Duration {
	switch attempt {
	case 1:
		return 1 * time.Second
	case 2:
		return 2 * time.Second
	default:
		return 4 * time.Second
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
