// Package pipeline runs stage → extract → normalize → coerce for uploaded documents.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joseph-ayodele/kpi-extractor/constants"
	"github.com/joseph-ayodele/kpi-extractor/internal/common"
	"github.com/joseph-ayodele/kpi-extractor/internal/entity"
	"github.com/joseph-ayodele/kpi-extractor/internal/export"
	"github.com/joseph-ayodele/kpi-extractor/internal/llm"
	"github.com/joseph-ayodele/kpi-extractor/internal/staging"
)

// Config holds behavior flags for the pipeline.
type Config struct {
	// ExtractTimeout bounds one remote extraction call; 0 means no extra bound.
	ExtractTimeout time.Duration
}

type Pipeline struct {
	Logger    *slog.Logger
	Cfg       Config
	Stager    *staging.Stager
	Extractor llm.DocumentExtractor
	Coercer   *llm.Coercer
	Artifacts *export.Artifacts

	singlePrompt string
	multiPrompt  string
}

func NewPipeline(
	logger *slog.Logger,
	cfg Config,
	stager *staging.Stager,
	extractor llm.DocumentExtractor,
	coercer *llm.Coercer,
	artifacts *export.Artifacts,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	cat := coercer.Catalog()
	return &Pipeline{
		Logger:       logger,
		Cfg:          cfg,
		Stager:       stager,
		Extractor:    extractor,
		Coercer:      coercer,
		Artifacts:    artifacts,
		singlePrompt: llm.BuildExtractionPrompt(cat, false),
		multiPrompt:  llm.BuildExtractionPrompt(cat, true),
	}
}

// ExtractSingle combines every upload into one record without a File Name tag.
// The returned error is non-nil only when the uploads could not be staged;
// extraction failures are carried in Result.Err.
func (p *Pipeline) ExtractSingle(ctx context.Context, uploads []staging.Upload) (Result, error) {
	batch, err := p.Stager.Stage(ctx, uploads)
	if err != nil {
		return Result{}, err
	}
	defer p.cleanup(ctx, batch)
	return p.extract(ctx, batch, ""), nil
}

// ExtractBatch runs one combined extraction over all uploads, tags the record
// with the first document's filename, and publishes it as the download artifact.
// The artifact path is empty when the extraction did not produce a record.
func (p *Pipeline) ExtractBatch(ctx context.Context, uploads []staging.Upload) (Result, string, error) {
	batch, err := p.Stager.Stage(ctx, uploads)
	if err != nil {
		return Result{}, "", err
	}
	defer p.cleanup(ctx, batch)

	res := p.extract(ctx, batch, batch.Documents[0].Filename)
	if !res.OK() {
		return res, "", nil
	}
	path, err := p.Artifacts.Publish(ctx, []*entity.KpiRecord{res.Record}, true)
	if err != nil {
		return res, "", fmt.Errorf("publish spreadsheet: %w", err)
	}
	return res, path, nil
}

// ExtractFile stages a local file and extracts a record tagged with its base name.
func (p *Pipeline) ExtractFile(ctx context.Context, path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	name := filepath.Base(path)
	batch, err := p.Stager.Stage(ctx, []staging.Upload{{Filename: name, Content: f}})
	if err != nil {
		return Result{}, err
	}
	defer p.cleanup(ctx, batch)
	return p.extract(ctx, batch, name), nil
}

func (p *Pipeline) extract(ctx context.Context, batch *staging.Batch, fileName string) Result {
	log := common.LoggerFromContext(ctx, p.Logger)
	start := time.Now()

	prompt := p.singlePrompt
	if len(batch.Documents) > 1 {
		prompt = p.multiPrompt
	}
	docs := make([]llm.Document, len(batch.Documents))
	for i, d := range batch.Documents {
		docs[i] = llm.Document{Name: d.Filename, Path: d.Path, MIMEType: constants.PDFMIMEType}
	}

	callCtx := ctx
	if p.Cfg.ExtractTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.Cfg.ExtractTimeout)
		defer cancel()
	}

	log.Info("pipeline.extract.start",
		"provider", p.Extractor.Provider(),
		"documents", len(docs),
		"prompt_version", p.Coercer.Catalog().Version,
	)
	raw, err := p.Extractor.ExtractDocuments(callCtx, prompt, docs)
	if err != nil {
		log.Error("pipeline.extract.upstream_error", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return Result{Err: upstreamError(p.Extractor.Provider(), err)}
	}

	n := llm.Normalize(raw)
	switch n.Kind {
	case llm.NormalizedParseError:
		log.Warn("pipeline.normalize.parse_error", "error", n.Err, "chars", len(raw))
		return Result{Err: parseError(n.Text)}
	case llm.NormalizedShapeError:
		log.Warn("pipeline.normalize.shape_error", "error", n.Err)
		return Result{Err: shapeError(n.Text)}
	}

	if drift := p.Coercer.SchemaDrift(n.Candidate); drift != "" {
		log.Warn("pipeline.coerce.schema_drift", "detail", drift)
	}
	rec := p.Coercer.Coerce(n.Candidate, fileName)

	log.Info("pipeline.extract.ok",
		"documents", len(docs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return Result{Record: rec}
}

func (p *Pipeline) cleanup(ctx context.Context, batch *staging.Batch) {
	if err := batch.Cleanup(); err != nil {
		common.LoggerFromContext(ctx, p.Logger).Warn("pipeline.cleanup_error", "dir", batch.Dir, "error", err)
	}
}
