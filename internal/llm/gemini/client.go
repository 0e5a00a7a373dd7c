package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"cloud.google.com/go/vertexai/genai"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"

	"github.com/joseph-ayodele/kpi-extractor/constants"
	"github.com/joseph-ayodele/kpi-extractor/internal/llm"
)

// Client implements llm.DocumentExtractor on Vertex AI.
type Client struct {
	cfg     Config
	genai   *genai.Client
	model   *genai.GenerativeModel
	storage *storage.Client // nil unless a staging bucket is configured
	log     *slog.Logger
}

// NewClient dials Vertex AI (and Cloud Storage when cfg.StagingBucket is set).
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if err := cfg.withDefaults(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	gc, err := genai.NewClient(ctx, cfg.ProjectID, cfg.Region, opts...)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	model := gc.GenerativeModel(cfg.Model)
	model.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr[float32](cfg.Temperature),
	}

	c := &Client{cfg: cfg, genai: gc, model: model, log: logger}
	if cfg.StagingBucket != "" {
		sc, err := storage.NewClient(ctx, opts...)
		if err != nil {
			_ = gc.Close()
			return nil, fmt.Errorf("storage.NewClient: %w", err)
		}
		c.storage = sc
	}
	return c, nil
}

func (c *Client) Provider() string { return "Gemini" }

// ExtractDocuments issues one GenerateContent call carrying the prompt and
// every document, and returns the first candidate's text.
func (c *Client) ExtractDocuments(ctx context.Context, prompt string, docs []llm.Document) (string, error) {
	rid := uuid.New().String()
	start := time.Now()
	c.log.Info("llm.extract.start",
		"req_id", rid,
		"provider", c.Provider(),
		"model", c.cfg.Model,
		"documents", len(docs),
		"via_bucket", c.storage != nil,
	)

	var (
		docParts []genai.Part
		err      error
	)
	if c.storage != nil {
		var objects []string
		docParts, objects, err = c.uploadDocuments(ctx, docs)
		// Objects are removed even when the upload of a sibling failed.
		defer c.deleteObjects(objects)
	} else {
		docParts, err = inlineParts(docs)
	}
	if err != nil {
		c.log.Error("llm.extract.prepare_error", "req_id", rid, "error", err)
		return "", err
	}

	resp, err := c.model.GenerateContent(ctx, buildParts(prompt, docParts)...)
	if err != nil {
		c.log.Error("llm.extract.generate_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", fmt.Errorf("generate content: %w", err)
	}

	text, err := responseText(resp)
	if err != nil {
		c.log.Error("llm.extract.empty_response", "req_id", rid, "error", err)
		return "", err
	}
	c.log.Info("llm.extract.ok",
		"req_id", rid,
		"chars", len(text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

// Close releases the Vertex AI and Cloud Storage clients.
func (c *Client) Close() error {
	var errs []error
	if c.storage != nil {
		errs = append(errs, c.storage.Close())
	}
	if c.genai != nil {
		errs = append(errs, c.genai.Close())
	}
	return errors.Join(errs...)
}

func (c *Client) uploadDocuments(ctx context.Context, docs []llm.Document) ([]genai.Part, []string, error) {
	parts := make([]genai.Part, len(docs))
	objects := make([]string, len(docs))
	for i := range docs {
		objects[i] = "uploads/" + uuid.NewString() + ".pdf"
	}

	eg, gctx := errgroup.WithContext(ctx)
	for i, d := range docs {
		eg.Go(func() error {
			if err := c.uploadFile(gctx, d.Path, objects[i]); err != nil {
				return fmt.Errorf("upload %s: %w", d.Name, err)
			}
			parts[i] = genai.FileData{
				MIMEType: mimeOf(d),
				FileURI:  fmt.Sprintf("gs://%s/%s", c.cfg.StagingBucket, objects[i]),
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, objects, err
	}
	return parts, objects, nil
}

func (c *Client) uploadFile(ctx context.Context, path, object string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := c.storage.Bucket(c.cfg.StagingBucket).Object(object).NewWriter(ctx)
	w.ContentType = constants.PDFMIMEType
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return fmt.Errorf("copy to gcs: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize gcs write: %w", err)
	}
	return nil
}

func (c *Client) deleteObjects(objects []string) {
	// the request context may already be cancelled
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	bucket := c.storage.Bucket(c.cfg.StagingBucket)
	for _, o := range objects {
		err := bucket.Object(o).Delete(ctx)
		if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			c.log.Warn("llm.gcs.delete_error", "object", o, "error", err)
		}
	}
}

func inlineParts(docs []llm.Document) ([]genai.Part, error) {
	parts := make([]genai.Part, 0, len(docs))
	for _, d := range docs {
		data, err := os.ReadFile(d.Path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", d.Name, err)
		}
		parts = append(parts, genai.Blob{MIMEType: mimeOf(d), Data: data})
	}
	return parts, nil
}

// buildParts puts the instruction first, followed by the documents in upload order.
func buildParts(prompt string, docs []genai.Part) []genai.Part {
	parts := make([]genai.Part, 0, len(docs)+1)
	parts = append(parts, genai.Text(prompt))
	return append(parts, docs...)
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("gemini returned no candidates")
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	if b.Len() == 0 {
		return "", errors.New("gemini returned no text")
	}
	return b.String(), nil
}

func mimeOf(d llm.Document) string {
	if d.MIMEType != "" {
		return d.MIMEType
	}
	return constants.PDFMIMEType
}
