package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/kpi-extractor/internal/llm"
)

// Provider implements llm.DocumentExtractor.
func (c *Client) Provider() string { return "OpenAI" }

// ExtractDocuments sends the prompt and every document in a single
// chat/completions request and returns the first choice's content.
func (c *Client) ExtractDocuments(ctx context.Context, prompt string, docs []llm.Document) (string, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.log.Info("llm.extract.start",
		"req_id", rid,
		"provider", c.Provider(),
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"documents", len(docs),
	)

	content := []map[string]any{{"type": "text", "text": prompt}}
	for _, d := range docs {
		part, err := filePart(d)
		if err != nil {
			c.log.Error("llm.extract.read_error", "req_id", rid, "file", d.Name, "error", err)
			return "", err
		}
		content = append(content, part)
	}

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "user", "content": content},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
	raw, status, err := llm.SendJSON(ctx, c.httpClient, endpoint, body, headers, c.log)
	if err != nil {
		c.log.Error("llm.extract.http_error",
			"req_id", rid, "status", status, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		if msg := apiErrorMessage(raw); msg != "" {
			return "", fmt.Errorf("openai status %d: %s", status, msg)
		}
		return "", err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.log.Error("llm.extract.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", fmt.Errorf("decode openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		c.log.Error("llm.extract.no_choices",
			"req_id", rid, "raw", string(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", errors.New("no choices in openai response")
	}

	text := cc.Choices[0].Message.Content
	c.log.Info("llm.extract.ok",
		"req_id", rid,
		"chars", len(text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

func filePart(d llm.Document) (map[string]any, error) {
	data, err := os.ReadFile(d.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", d.Name, err)
	}
	mime := d.MIMEType
	if mime == "" {
		mime = "application/pdf"
	}
	return map[string]any{
		"type": "file",
		"file": map[string]any{
			"filename":  d.Name,
			"file_data": "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data),
		},
	}, nil
}

func apiErrorMessage(raw []byte) string {
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(raw, &e) != nil {
		return ""
	}
	return e.Error.Message
}
