package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/joseph-ayodele/kpi-extractor/constants"
	"github.com/joseph-ayodele/kpi-extractor/internal/common"
	"github.com/joseph-ayodele/kpi-extractor/internal/entity"
)

// Dialect selects DDL and placeholder style.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

const recordsTable = "kpi_records"

var ddl = map[Dialect]string{
	DialectSQLite: `CREATE TABLE IF NOT EXISTS kpi_records (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		po_no      TEXT NOT NULL UNIQUE,
		payload    TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	DialectPostgres: `CREATE TABLE IF NOT EXISTS kpi_records (
		seq        BIGSERIAL PRIMARY KEY,
		po_no      TEXT NOT NULL UNIQUE,
		payload    TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// SQLStore keeps each record as a JSON payload keyed by a unique po_no
// column. Uniqueness is enforced by the database, not by the process.
type SQLStore struct {
	db      *sql.DB
	sb      sq.StatementBuilderType
	catalog *constants.Catalog
	logger  *slog.Logger
	onClose func()
}

// NewSQLStore creates the table if needed.
func NewSQLStore(ctx context.Context, db *sql.DB, dialect Dialect, cat *constants.Catalog, logger *slog.Logger) (*SQLStore, error) {
	stmt, ok := ddl[dialect]
	if !ok {
		return nil, fmt.Errorf("unsupported sql dialect %q", dialect)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return nil, fmt.Errorf("%w: create %s: %w", common.ErrDatabase, recordsTable, err)
	}

	sb := sq.StatementBuilder.PlaceholderFormat(sq.Question)
	if dialect == DialectPostgres {
		sb = sb.PlaceholderFormat(sq.Dollar)
	}
	return &SQLStore{db: db, sb: sb, catalog: cat, logger: logger.With("dialect", string(dialect))}, nil
}

func (s *SQLStore) Append(ctx context.Context, rec *entity.KpiRecord) (AppendOutcome, error) {
	key, err := recordKey(s.catalog, rec)
	if err != nil {
		return Saved, err
	}
	header := s.catalog.Names()
	payload, err := json.Marshal(entity.NewRow(header, rec.Cells(header)))
	if err != nil {
		return Saved, fmt.Errorf("encode record: %w", err)
	}

	start := time.Now()
	query, args, err := s.sb.Insert(recordsTable).
		Columns("po_no", "payload").
		Values(key, string(payload)).
		Suffix("ON CONFLICT (po_no) DO NOTHING").
		ToSql()
	if err != nil {
		return Saved, fmt.Errorf("build insert: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		s.logger.Error("store.sql.append_error", "key", key, "error", err)
		return Saved, fmt.Errorf("%w: insert record: %w", common.ErrDatabase, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Saved, fmt.Errorf("%w: rows affected: %w", common.ErrDatabase, err)
	}
	if n == 0 {
		s.logger.Info("store.sql.duplicate", "key", key)
		return Duplicate, nil
	}
	s.logger.Info("store.sql.append", "key", key, "elapsed_ms", time.Since(start).Milliseconds())
	return Saved, nil
}

func (s *SQLStore) ReadAll(ctx context.Context) ([]entity.Row, error) {
	query, args, err := s.sb.Select("payload").From(recordsTable).OrderBy("seq").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query records: %w", common.ErrDatabase, err)
	}
	defer rows.Close()

	header := s.catalog.Names()
	out := []entity.Row{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("%w: scan record: %w", common.ErrDatabase, err)
		}
		var cells map[string]string
		if err := json.Unmarshal([]byte(payload), &cells); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		row := entity.Row{Columns: header, Values: make(map[string]string, len(header))}
		for _, h := range header {
			row.Values[h] = cells[h]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate records: %w", common.ErrDatabase, err)
	}
	return out, nil
}

func (s *SQLStore) Close() error {
	err := s.db.Close()
	if s.onClose != nil {
		s.onClose()
	}
	return err
}
