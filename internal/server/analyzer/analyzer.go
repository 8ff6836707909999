// Package analyzer generates a title, summary and outline for extracted
// material text using an OpenAI-compatible chat model.
package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"

	"github.com/dmitrijs2005/materialkeeper/internal/logging"
)

const maxAttempts = 3

// ErrMalformedResponse is returned when the model never produced valid JSON.
var ErrMalformedResponse = errors.New("malformed analysis response")

// OutlineRow is one heading of the generated outline. Level starts at 1.
type OutlineRow struct {
	Title   string `json:"title"`
	Level   int    `json:"level"`
	Summary string `json:"summary"`
}

// Analysis is the model output. Any field may be empty.
type Analysis struct {
	Title   string       `json:"title"`
	Summary string       `json:"summary"`
	Outline []OutlineRow `json:"outline"`
}

// Options tunes the analyzer.
type Options struct {
	// MaxChars caps the text sent to the model; 0 sends everything.
	MaxChars int
	// RPS limits requests per second; 0 disables limiting.
	RPS float64
}

// Analyzer calls the chat model once per material, retrying on malformed JSON.
type Analyzer struct {
	model    llms.Model
	limiter  *rate.Limiter
	maxChars int
	log      logging.Logger
}

// NewChatModel builds an OpenAI-compatible chat client. An empty token is
// sent as "none" for local servers that ignore authentication.
func NewChatModel(host, token, model string) (llms.Model, error) {
	if token == "" {
		token = "none"
	}
	return openai.New(
		openai.WithBaseURL(host),
		openai.WithToken(token),
		openai.WithModel(model),
	)
}

// New wraps model into an Analyzer limited to opts.RPS requests per second.
func New(model llms.Model, opts Options, log logging.Logger) *Analyzer {
	limit := rate.Inf
	if opts.RPS > 0 {
		limit = rate.Limit(opts.RPS)
	}
	return &Analyzer{
		model:    model,
		limiter:  rate.NewLimiter(limit, 1),
		maxChars: opts.MaxChars,
		log:      log.With("module", "analyzer"),
	}
}

// Analyze asks the model for a structured analysis of fullText.
func (a *Analyzer) Analyze(ctx context.Context, materialID, fullText, mimeType string) (*Analysis, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt(truncateRunes(fullText, a.maxChars), mimeType)),
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("analysis rate limit: %w", err)
		}

		resp, err := a.model.GenerateContent(ctx, content, llms.WithTemperature(0.0), llms.WithJSONMode())
		if err != nil {
			a.log.Error(ctx, "failed to generate analysis", "material_id", materialID, "attempt", attempt, "err", err)
			return nil, fmt.Errorf("generate analysis: %w", err)
		}
		if len(resp.Choices) == 0 {
			a.log.Warn(ctx, "no choices returned from model", "material_id", materialID)
			return &Analysis{}, nil
		}

		var out Analysis
		if err := json.Unmarshal([]byte(stripFences(resp.Choices[0].Content)), &out); err != nil {
			lastErr = err
			a.log.Warn(ctx, "error parsing analysis response", "material_id", materialID, "attempt", attempt, "err", err)
			continue
		}
		return normalize(&out), nil
	}

	return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, lastErr)
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func normalize(a *Analysis) *Analysis {
	a.Title = strings.TrimSpace(a.Title)
	a.Summary = strings.TrimSpace(a.Summary)

	rows := a.Outline[:0]
	for _, r := range a.Outline {
		r.Title = strings.TrimSpace(r.Title)
		if r.Title == "" {
			continue
		}
		if r.Level < 1 {
			r.Level = 1
		}
		r.Summary = strings.TrimSpace(r.Summary)
		rows = append(rows, r)
	}
	a.Outline = rows
	return a
}

func truncateRunes(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
