// Package insight asks a hosted language model for a short summary of chart data.
package insight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jon4hz/chartwise/internal/apperr"
	"github.com/jon4hz/chartwise/internal/config"
	"github.com/jon4hz/chartwise/internal/sheet"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	// SystemPrompt is sent with every request.
	SystemPrompt = "You are a data analyst who explains chart data clearly."
	// Fallback is returned when the model answers with nothing.
	Fallback = "No clear insight generated."
)

var ErrNotConfigured = errors.New("no insight provider configured")

// Generator is the part of llms.Model the requester needs.
type Generator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// Request describes the chart to summarize.
type Request struct {
	ChartType string
	XKey      string
	YKey      string
	Data      sheet.Rows
}

// Options tune a completion request.
type Options struct {
	MaxRows     int
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int
}

// Requester sends chart summaries to the language model. A Requester without
// a model fails every request with an upstream error.
type Requester struct {
	model Generator
	opts  Options
}

// New creates a Requester for the configured provider.
func New(cfg *config.InsightConfig) (*Requester, error) {
	opts := Options{
		MaxRows:     cfg.MaxRows,
		Timeout:     cfg.Timeout,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}

	switch cfg.Provider {
	case config.InsightProviderNone:
		log.Warn("no insight provider configured, summaries are disabled")
		return NewWithModel(nil, opts), nil
	case config.InsightProviderOpenAI:
		model, err := createOpenAILLM(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create openai client: %w", err)
		}
		return NewWithModel(model, opts), nil
	default:
		return nil, fmt.Errorf("unsupported insight provider %q", cfg.Provider)
	}
}

func createOpenAILLM(cfg *config.InsightConfig) (llms.Model, error) {
	opts := []openai.Option{
		openai.WithModel(cfg.Model),
	}
	if cfg.APIKey != "" {
		opts = append(opts, openai.WithToken(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	return openai.New(opts...)
}

// NewWithModel creates a Requester around an existing model.
func NewWithModel(model Generator, opts Options) *Requester {
	if opts.MaxRows <= 0 || opts.MaxRows > config.MaxInsightRows {
		opts.MaxRows = config.MaxInsightRows
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Requester{model: model, opts: opts}
}

// BuildPrompt renders the user prompt with at most maxRows rows of sample data.
func BuildPrompt(req Request, maxRows int) (string, error) {
	rows := req.Data.Head(maxRows)
	if rows == nil {
		rows = sheet.Rows{}
	}
	sample, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode sample: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the following %s chart.\n", req.ChartType)
	fmt.Fprintf(&b, "X-Axis: %s\n", req.XKey)
	fmt.Fprintf(&b, "Y-Axis: %s\n", req.YKey)
	fmt.Fprintf(&b, "Data Sample:\n%s\n\n", sample)
	b.WriteString("Write a short summary of the trends in 2-3 sentences, professional tone.")
	return b.String(), nil
}

// Summarize returns the model's summary of the chart. Any transport, endpoint
// or timeout failure is an upstream error; the detail is only logged.
func (r *Requester) Summarize(ctx context.Context, req Request) (string, error) {
	if r.model == nil {
		return "", apperr.Upstream("insight request failed", ErrNotConfigured)
	}

	prompt, err := BuildPrompt(req, r.opts.MaxRows)
	if err != nil {
		return "", apperr.Upstream("insight request failed", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, SystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}
	callOpts := []llms.CallOption{llms.WithTemperature(r.opts.Temperature)}
	if r.opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(r.opts.MaxTokens))
	}

	start := time.Now()
	resp, err := r.model.GenerateContent(ctx, messages, callOpts...)
	if err != nil {
		log.Error("insight request failed", "chart_type", req.ChartType, "rows", len(req.Data), "duration", time.Since(start), "error", err)
		return "", apperr.Upstream("insight request failed", err)
	}
	log.Debug("insight generated", "chart_type", req.ChartType, "duration", time.Since(start))

	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return Fallback, nil
	}
	text := strings.TrimSpace(resp.Choices[0].Content)
	if text == "" {
		return Fallback, nil
	}
	return text, nil
}
