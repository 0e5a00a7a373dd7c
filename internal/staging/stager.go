// Package staging copies uploaded documents to request-scoped temp storage.
package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/joseph-ayodele/kpi-extractor/constants"
	"github.com/joseph-ayodele/kpi-extractor/internal/common"
)

const requestDirPrefix = "req-"

var (
	ErrNoDocuments = fmt.Errorf("%w: no documents uploaded", common.ErrInvalidInput)
	ErrTooLarge    = fmt.Errorf("%w: document exceeds upload limit", common.ErrInvalidInput)
	ErrNotPDF      = fmt.Errorf("%w: document is not a readable PDF", common.ErrInvalidInput)
)

// Config for the stager.
type Config struct {
	Dir         string
	MaxBytes    int64 // per document; <= 0 disables the limit
	ValidatePDF bool
}

// Upload is one incoming document.
type Upload struct {
	Filename string
	Content  io.Reader
}

// Document is a staged copy of an upload.
type Document struct {
	Filename string // original name as uploaded
	Path     string
	Size     int64
	Pages    int // 0 when validation is off
}

// Batch is the set of documents staged for one request. Callers must defer Cleanup.
type Batch struct {
	Dir       string
	Documents []Document
}

// Cleanup removes every file staged for the batch. Safe to call more than once.
func (b *Batch) Cleanup() error {
	if b == nil || b.Dir == "" {
		return nil
	}
	return os.RemoveAll(b.Dir)
}

// Stager writes uploads under a per-request directory with collision-free names.
type Stager struct {
	cfg Config
	log *slog.Logger
}

func NewStager(cfg Config, logger *slog.Logger) (*Stager, error) {
	if cfg.Dir == "" {
		cfg.Dir = os.TempDir()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return &Stager{cfg: cfg, log: logger}, nil
}

// Stage copies every upload to disk. On any failure the partially staged
// batch is removed before the error is returned.
func (s *Stager) Stage(ctx context.Context, uploads []Upload) (*Batch, error) {
	if len(uploads) == 0 {
		return nil, ErrNoDocuments
	}
	dir, err := os.MkdirTemp(s.cfg.Dir, requestDirPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("create request dir: %w", err)
	}
	batch := &Batch{Dir: dir}

	start := time.Now()
	for _, u := range uploads {
		if err := ctx.Err(); err != nil {
			_ = batch.Cleanup()
			return nil, err
		}
		doc, err := s.stageOne(dir, u)
		if err != nil {
			s.log.Warn("staging.reject", "file", u.Filename, "error", err)
			_ = batch.Cleanup()
			return nil, err
		}
		batch.Documents = append(batch.Documents, doc)
	}

	s.log.Debug("staging.ok",
		"dir", dir,
		"documents", len(batch.Documents),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return batch, nil
}

func (s *Stager) stageOne(dir string, u Upload) (Document, error) {
	name := filepath.Base(strings.TrimSpace(u.Filename))
	ext := constants.NormalizeExt(filepath.Ext(name))
	if _, ok := constants.AllowedExtensions[ext]; !ok {
		return Document{}, fmt.Errorf("%w: unsupported file type %q", common.ErrInvalidInput, u.Filename)
	}

	path := filepath.Join(dir, uuid.NewString()+".pdf")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return Document{}, fmt.Errorf("create staged file: %w", err)
	}

	src := u.Content
	if s.cfg.MaxBytes > 0 {
		src = io.LimitReader(u.Content, s.cfg.MaxBytes+1)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return Document{}, fmt.Errorf("write staged file %s: %w", name, err)
	}
	if s.cfg.MaxBytes > 0 && n > s.cfg.MaxBytes {
		return Document{}, fmt.Errorf("%w: %s", ErrTooLarge, name)
	}

	doc := Document{Filename: name, Path: path, Size: n}
	if s.cfg.ValidatePDF {
		pages, err := pageCount(path)
		if err != nil {
			return Document{}, fmt.Errorf("%w: %s: %v", ErrNotPDF, name, err)
		}
		doc.Pages = pages
	}
	return doc, nil
}

func pageCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	n, err := api.PageCount(f, conf)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, errors.New("document has no pages")
	}
	return n, nil
}
