package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zombor/docextract/internal/extraction"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id           TEXT PRIMARY KEY,
	filename     TEXT NOT NULL,
	content_type TEXT NOT NULL,
	kind         TEXT NOT NULL,
	locator      TEXT NOT NULL,
	status       TEXT NOT NULL,
	error        TEXT NOT NULL DEFAULT '',
	format       TEXT NOT NULL DEFAULT '',
	confidence   DOUBLE PRECISION NOT NULL DEFAULT 0,
	version      INTEGER NOT NULL DEFAULT 0,
	attempts     INTEGER NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS document_fields (
	document_id           TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	name                  TEXT NOT NULL,
	value                 TEXT NOT NULL,
	raw_value             TEXT NOT NULL DEFAULT '',
	confidence            DOUBLE PRECISION NOT NULL,
	extraction_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	is_valid              BOOLEAN,
	position              INTEGER NOT NULL,
	PRIMARY KEY (document_id, name)
);`

const documentColumns = `id, filename, content_type, kind, locator, status, error, format,
	confidence, version, attempts, created_at, updated_at`

const upsertField = `
INSERT INTO document_fields (document_id, name, value, raw_value, confidence, extraction_confidence, is_valid, position)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (document_id, name) DO UPDATE SET
	value = EXCLUDED.value,
	raw_value = EXCLUDED.raw_value,
	confidence = EXCLUDED.confidence,
	extraction_confidence = EXCLUDED.extraction_confidence,
	is_valid = EXCLUDED.is_valid,
	position = EXCLUDED.position`

// PostgresConfig holds connection pool settings.
type PostgresConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	DialTimeout     time.Duration
}

// PostgresDB implements the DB interface on a pgx pool. Fields live in their
// own table keyed by (document_id, name), so corrections are row upserts.
type PostgresDB struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresDB connects to Postgres and creates the schema when missing.
func NewPostgresDB(ctx context.Context, cfg PostgresConfig, logger *slog.Logger) (*PostgresDB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "docextract"

	dialCtx := ctx
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	db := &PostgresDB{pool: pool, logger: logger}
	if err := db.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("connected to database")
	return db, nil
}

// Migrate creates the tables used by the store.
func (p *PostgresDB) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

func (p *PostgresDB) SaveDocument(ctx context.Context, doc *Document) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
INSERT INTO documents (`+documentColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (id) DO UPDATE SET
	filename = EXCLUDED.filename,
	content_type = EXCLUDED.content_type,
	kind = EXCLUDED.kind,
	locator = EXCLUDED.locator,
	status = EXCLUDED.status,
	error = EXCLUDED.error,
	format = EXCLUDED.format,
	confidence = EXCLUDED.confidence,
	version = EXCLUDED.version,
	attempts = EXCLUDED.attempts,
	updated_at = EXCLUDED.updated_at`,
			doc.ID, doc.Filename, doc.ContentType, doc.Kind, doc.Locator, string(doc.Status), doc.Error,
			string(doc.Format), doc.Confidence, doc.Version, doc.Attempts, doc.CreatedAt, doc.UpdatedAt)
		if err != nil {
			return fmt.Errorf("saving document: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM document_fields WHERE document_id = $1`, doc.ID); err != nil {
			return fmt.Errorf("clearing fields: %w", err)
		}
		return writeFields(ctx, tx, doc.ID, mergeFields(nil, doc.Fields))
	})
}

func (p *PostgresDB) GetDocument(ctx context.Context, id string) (*Document, error) {
	doc, err := scanDocument(p.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading document: %w", err)
	}
	if doc.Fields, err = readFields(ctx, p.pool, id); err != nil {
		return nil, err
	}
	return doc, nil
}

func (p *PostgresDB) ListDocuments(ctx context.Context) ([]*Document, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	docs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Document, error) {
		return scanDocument(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scanning documents: %w", err)
	}

	for _, doc := range docs {
		if doc.Fields, err = readFields(ctx, p.pool, doc.ID); err != nil {
			return nil, err
		}
	}
	return docs, nil
}

func (p *PostgresDB) DeleteDocument(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (p *PostgresDB) UpsertFields(ctx context.Context, id string, fields []extraction.Field, at time.Time) (*Document, error) {
	var doc *Document
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		var err error
		doc, err = scanDocument(tx.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1 FOR UPDATE`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("loading document: %w", err)
		}
		if doc.Fields, err = readFields(ctx, tx, id); err != nil {
			return err
		}

		applyFieldUpdates(doc, fields, at)

		_, err = tx.Exec(ctx, `UPDATE documents SET confidence = $2, version = $3, updated_at = $4 WHERE id = $1`,
			id, doc.Confidence, doc.Version, doc.UpdatedAt)
		if err != nil {
			return fmt.Errorf("updating document: %w", err)
		}
		return writeFields(ctx, tx, id, doc.Fields)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Close closes the connection pool
func (p *PostgresDB) Close() error {
	p.pool.Close()
	p.logger.Info("database connections closed")
	return nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func scanDocument(row pgx.Row) (*Document, error) {
	var (
		doc    Document
		status string
		format string
	)
	err := row.Scan(&doc.ID, &doc.Filename, &doc.ContentType, &doc.Kind, &doc.Locator, &status, &doc.Error,
		&format, &doc.Confidence, &doc.Version, &doc.Attempts, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	doc.Status = Status(status)
	doc.Format = extraction.Format(format)
	return &doc, nil
}

func readFields(ctx context.Context, q querier, id string) ([]extraction.Field, error) {
	rows, err := q.Query(ctx, `
SELECT name, value, raw_value, confidence, extraction_confidence, is_valid
FROM document_fields WHERE document_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("loading fields: %w", err)
	}
	fields, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (extraction.Field, error) {
		var f extraction.Field
		err := row.Scan(&f.Name, &f.Value, &f.RawValue, &f.Confidence, &f.ExtractionConfidence, &f.IsValid)
		return f, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning fields: %w", err)
	}
	return fields, nil
}

func writeFields(ctx context.Context, tx pgx.Tx, id string, fields []extraction.Field) error {
	batch := &pgx.Batch{}
	for i, f := range fields {
		batch.Queue(upsertField, id, f.Name, f.Value, f.RawValue, f.Confidence, f.ExtractionConfidence, f.IsValid, i)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("writing fields: %w", err)
	}
	return nil
}
