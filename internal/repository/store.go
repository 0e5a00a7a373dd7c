package repository

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joseph-ayodele/kpi-extractor/constants"
	"github.com/joseph-ayodele/kpi-extractor/internal/common"
	"github.com/joseph-ayodele/kpi-extractor/internal/entity"
)

// AppendOutcome is the non-error result of an append.
type AppendOutcome int

const (
	Saved AppendOutcome = iota
	Duplicate
)

func (o AppendOutcome) String() string {
	if o == Duplicate {
		return "duplicate"
	}
	return "saved"
}

var (
	ErrStoreNotFound = fmt.Errorf("%w: record store does not exist yet", common.ErrNotFound)
	ErrMissingKey    = fmt.Errorf("%w: record has no key value", common.ErrValidation)
)

const maxKeyLength = 128

// RecordStore is the durable table of saved KPI records, unique on the
// catalog key field. Rows are never updated or deleted.
type RecordStore interface {
	// Append stores rec unless a row with the same key exists, in which
	// case it returns Duplicate and leaves the store untouched.
	Append(ctx context.Context, rec *entity.KpiRecord) (AppendOutcome, error)
	// ReadAll returns every row, oldest first.
	ReadAll(ctx context.Context) ([]entity.Row, error)
	Close() error
}

// Open builds the store selected by cfg.Backend.
func Open(ctx context.Context, cfg common.StoreConfig, cat *constants.Catalog, logger *slog.Logger) (RecordStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Backend {
	case common.StoreCSV, "":
		return NewCSVStore(cfg.Path, cat, logger), nil
	case common.StoreSQLite:
		db, err := OpenSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}
		s, err := NewSQLStore(ctx, db, DialectSQLite, cat, logger)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return s, nil
	case common.StorePostgres:
		db, pool, err := OpenPostgres(ctx, Config{DSN: cfg.DSN, MaxConns: cfg.MaxConns}, logger)
		if err != nil {
			return nil, err
		}
		s, err := NewSQLStore(ctx, db, DialectPostgres, cat, logger)
		if err != nil {
			_ = db.Close()
			pool.Close()
			return nil, err
		}
		s.onClose = pool.Close
		return s, nil
	default:
		return nil, common.NewAppError("CONFIG_ERROR", "unknown record store "+cfg.Backend, common.ErrInvalidInput)
	}
}

// recordKey extracts and validates the identity value of rec.
func recordKey(cat *constants.Catalog, rec *entity.KpiRecord) (string, error) {
	kf := cat.KeyField()
	v, ok := rec.Get(kf.Name)
	if !ok || v.IsBlank() {
		return "", ErrMissingKey
	}
	key := strings.TrimSpace(v.String())
	val := common.NewValidator().Field(kf.Name, key, common.Required, common.MaxLength(maxKeyLength))
	if val.HasErrors() {
		return "", fmt.Errorf("%w: %s", ErrMissingKey, val.ErrorMessage())
	}
	return key, nil
}
