// Package claude sends documents to the Anthropic Messages API.
package claude

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/kpi-extractor/internal/llm"
)

const defaultModel = "claude-sonnet-4-5"

// Config for the Anthropic client.
type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int64
	Temperature float32
	// BaseURL overrides the API endpoint; empty uses the SDK default.
	BaseURL string
}

// Client implements llm.DocumentExtractor.
type Client struct {
	cfg    Config
	client anthropic.Client
	log    *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if logger == nil {
		logger = slog.Default()
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Client{cfg: cfg, client: anthropic.NewClient(opts...), log: logger}
}

func (c *Client) Provider() string { return "Claude" }

// ExtractDocuments sends one user message holding every document followed by
// the prompt, and returns the first text block of the reply.
func (c *Client) ExtractDocuments(ctx context.Context, prompt string, docs []llm.Document) (string, error) {
	rid := uuid.New().String()
	start := time.Now()
	c.log.Info("llm.extract.start",
		"req_id", rid,
		"provider", c.Provider(),
		"model", c.cfg.Model,
		"documents", len(docs),
	)

	blocks, err := contentBlocks(prompt, docs)
	if err != nil {
		c.log.Error("llm.extract.read_error", "req_id", rid, "error", err)
		return "", err
	}

	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.cfg.Model),
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: anthropic.Float(float64(c.cfg.Temperature)),
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
	})
	if err != nil {
		c.log.Error("llm.extract.api_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", errors.New("no text content in anthropic response")
	}
	c.log.Info("llm.extract.ok",
		"req_id", rid,
		"chars", b.Len(),
		"tokens_in", msg.Usage.InputTokens,
		"tokens_out", msg.Usage.OutputTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return b.String(), nil
}

func contentBlocks(prompt string, docs []llm.Document) ([]anthropic.ContentBlockParamUnion, error) {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(docs)+1)
	for _, d := range docs {
		data, err := os.ReadFile(d.Path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", d.Name, err)
		}
		blocks = append(blocks, anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{
			Data: base64.StdEncoding.EncodeToString(data),
		}))
	}
	return append(blocks, anthropic.NewTextBlock(prompt)), nil
}
