package gemini

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/goliatone/go-interview-scoring/core"
	glog "github.com/goliatone/go-logger/glog"
)

//go:embed prompt.md
var promptTemplate string

const defaultMaxLogLength = 200

type contentGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

// RubricSource resolves the rubric text for a rubric id.
type RubricSource interface {
	Rubric(ctx context.Context, rubricID string) (string, error)
}

// TranscriptSource resolves the interview transcript for a session.
type TranscriptSource interface {
	Transcript(ctx context.Context, sessionID string) (string, error)
}

type StaticRubrics map[string]string

func (r StaticRubrics) Rubric(_ context.Context, rubricID string) (string, error) {
	text, ok := r[strings.TrimSpace(rubricID)]
	if !ok || strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("gemini: unknown rubric %q", rubricID)
	}
	return text, nil
}

type TranscriptSourceFunc func(ctx context.Context, sessionID string) (string, error)

func (f TranscriptSourceFunc) Transcript(ctx context.Context, sessionID string) (string, error) {
	return f(ctx, sessionID)
}

type EngineConfig struct {
	Rubrics      RubricSource
	Transcripts  TranscriptSource
	Logger       glog.Logger
	MaxLogLength int
}

// Engine is the core.ScoringEngine backed by Gemini. The runner owns the
// timeout; Score only honors ctx.
type Engine struct {
	generator   contentGenerator
	rubrics     RubricSource
	transcripts TranscriptSource
	logger      glog.Logger
	maxLogLen   int
}

func NewEngine(generator contentGenerator, cfg EngineConfig) (*Engine, error) {
	if generator == nil {
		return nil, fmt.Errorf("gemini: generator is required")
	}
	if cfg.Rubrics == nil {
		return nil, fmt.Errorf("gemini: rubric source is required")
	}
	if cfg.Transcripts == nil {
		return nil, fmt.Errorf("gemini: transcript source is required")
	}
	maxLogLen := cfg.MaxLogLength
	if maxLogLen <= 0 {
		maxLogLen = defaultMaxLogLength
	}
	return &Engine{
		generator:   generator,
		rubrics:     cfg.Rubrics,
		transcripts: cfg.Transcripts,
		logger:      glog.Ensure(cfg.Logger),
		maxLogLen:   maxLogLen,
	}, nil
}

func (e *Engine) Score(ctx context.Context, req core.ScoreRequest) (core.ScoreResult, error) {
	if e == nil || e.generator == nil {
		return core.ScoreResult{}, fmt.Errorf("gemini: engine is not configured")
	}
	rubric, err := e.rubrics.Rubric(ctx, req.RubricID)
	if err != nil {
		return core.ScoreResult{}, err
	}
	transcript, err := e.transcripts.Transcript(ctx, req.SessionID)
	if err != nil {
		return core.ScoreResult{}, fmt.Errorf("gemini: load transcript: %w", err)
	}
	if strings.TrimSpace(transcript) == "" {
		return core.ScoreResult{}, fmt.Errorf("gemini: transcript for session %q is empty", req.SessionID)
	}

	prompt := buildPrompt(req.RubricID, rubric, transcript)
	e.logger.Debug("gemini score request",
		"session_id", req.SessionID,
		"rubric_id", req.RubricID,
		"prompt_length", utf8.RuneCountInString(prompt),
	)

	raw, err := e.generator.GenerateContent(ctx, prompt)
	if err != nil {
		return core.ScoreResult{}, err
	}
	e.logger.Debug("gemini score response",
		"session_id", req.SessionID,
		"response_length", utf8.RuneCountInString(raw),
		"response_preview", truncateForLog(raw, e.maxLogLen),
	)
	return parseResponse(raw)
}

func buildPrompt(rubricID, rubric, transcript string) string {
	template := promptTemplate
	if strings.TrimSpace(template) == "" {
		template = "Rubric:\n{{RUBRIC}}\n\nTranscript:\n{{TRANSCRIPT}}\n\nJSON Response:"
	}
	prompt := strings.ReplaceAll(template, "{{RUBRIC_ID}}", strings.TrimSpace(rubricID))
	prompt = strings.ReplaceAll(prompt, "{{RUBRIC}}", strings.TrimSpace(rubric))
	prompt = strings.ReplaceAll(prompt, "{{TRANSCRIPT}}", strings.TrimSpace(transcript))
	return prompt
}

func parseResponse(raw string) (core.ScoreResult, error) {
	cleaned := extractJSON(raw)
	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return core.ScoreResult{}, fmt.Errorf("gemini: parse score response: %w", err)
	}
	summary := coerceString(data["summary"])
	if summary == "" {
		return core.ScoreResult{}, fmt.Errorf("gemini: score response has no summary")
	}
	score := coerceFloat(data["overall_score"])
	if math.IsNaN(score) {
		return core.ScoreResult{}, fmt.Errorf("gemini: score response has no overall_score")
	}
	data["overall_score"] = math.Max(0, math.Min(100, score))
	return core.ScoreResult{Summary: summary, Payload: data}, nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

func coerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", val))
	}
}

func truncateForLog(s string, limit int) string {
	s = strings.TrimSpace(s)
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

var _ core.ScoringEngine = (*Engine)(nil)
