package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/joseph-ayodele/kpi-extractor/internal/common"
	"github.com/joseph-ayodele/kpi-extractor/internal/entity"
)

var ErrArtifactNotFound = fmt.Errorf("%w: no spreadsheet has been produced yet", common.ErrNotFound)

// Artifacts owns the single downloadable spreadsheet. Each Publish replaces
// it atomically; Open fails until the first Publish of this process.
type Artifacts struct {
	path     string
	svc      *Service
	logger   *slog.Logger
	mu       sync.RWMutex
	produced bool
}

func NewArtifacts(path string, svc *Service, logger *slog.Logger) *Artifacts {
	if logger == nil {
		logger = slog.Default()
	}
	return &Artifacts{path: path, svc: svc, logger: logger}
}

// Publish renders records and replaces the artifact. It returns the artifact path.
func (a *Artifacts) Publish(ctx context.Context, records []*entity.KpiRecord, withFileName bool) (string, error) {
	data, err := a.svc.RenderXLSX(ctx, records, withFileName)
	if err != nil {
		return "", err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	dir := filepath.Dir(a.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".export-*.xlsx")
	if err != nil {
		return "", fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write temp artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("close temp artifact: %w", err)
	}
	if err := os.Rename(tmpName, a.path); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("replace artifact: %w", err)
	}
	a.produced = true

	a.logger.Info("export.artifact.published", "path", a.path, "rows", len(records), "bytes", len(data))
	return a.path, nil
}

// Open returns the current artifact for reading. The handle stays valid even
// if a later Publish replaces the file.
func (a *Artifacts) Open() (*os.File, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.produced {
		return nil, ErrArtifactNotFound
	}
	f, err := os.Open(a.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrArtifactNotFound
		}
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	return f, nil
}
