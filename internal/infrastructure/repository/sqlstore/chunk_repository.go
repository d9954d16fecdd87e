// Package sqlstore keeps the prepared corpus in a SQL table so that deployments
// without a shared filesystem can load it from PostgreSQL or a SQLite file.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/jien0404/zalo-legal-chatbot/internal/core/domain"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

type ChunkRepository struct {
	db      *sql.DB
	dialect Dialect
}

func NewChunkRepository(db *sql.DB, dialect Dialect) *ChunkRepository {
	return &ChunkRepository{db: db, dialect: dialect}
}

// OpenDB opens and pings the database for dialect. dsn is a libpq URL for
// postgres and a file path for sqlite.
func OpenDB(dialect Dialect, dsn string) (*sql.DB, error) {
	var driver string
	switch dialect {
	case DialectPostgres:
		driver = "pgx"
	case DialectSQLite:
		driver = "sqlite"
	default:
		return nil, fmt.Errorf("unsupported sql dialect %q", dialect)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	if dialect == DialectSQLite {
		// Single writer; readers share the connection.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *ChunkRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if r.dialect == DialectPostgres {
		// Serialize bootstrap DDL across api/worker startups.
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101801)); err != nil {
			return fmt.Errorf("acquire schema lock: %w", err)
		}
	}

	const query = `
CREATE TABLE IF NOT EXISTS legal_chunks (
	position INTEGER PRIMARY KEY,
	chunk_id TEXT NOT NULL UNIQUE,
	doc_id TEXT NOT NULL,
	text TEXT NOT NULL,
	tokens TEXT NOT NULL
)`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_legal_chunks_doc_id ON legal_chunks(doc_id)`); err != nil {
		return fmt.Errorf("execute index ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// Load returns every chunk in position order with its stored token form.
func (r *ChunkRepository) Load(ctx context.Context) ([]domain.Chunk, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT chunk_id, doc_id, text, tokens
FROM legal_chunks
ORDER BY position
`)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCorpusIntegrity, "query chunks", err)
	}
	defer rows.Close()

	out := make([]domain.Chunk, 0, 1024)
	for rows.Next() {
		var chunk domain.Chunk
		var tokens string
		if err := rows.Scan(&chunk.ChunkID, &chunk.DocID, &chunk.Text, &tokens); err != nil {
			return nil, domain.WrapError(domain.ErrCorpusIntegrity, "scan chunk", err)
		}
		chunk.Tokens = strings.Fields(tokens)
		out = append(out, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrCorpusIntegrity, "iterate chunks", err)
	}
	return out, nil
}

// ReplaceAll swaps the table contents for chunks inside one transaction.
func (r *ChunkRepository) ReplaceAll(ctx context.Context, chunks []domain.Chunk) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM legal_chunks`); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, r.insertQuery())
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, chunk := range chunks {
		if _, err := stmt.ExecContext(ctx, i, chunk.ChunkID, chunk.DocID, chunk.Text, strings.Join(chunk.Tokens, " ")); err != nil {
			return fmt.Errorf("insert chunk %s: %w", chunk.ChunkID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit import tx: %w", err)
	}
	return nil
}

func (r *ChunkRepository) insertQuery() string {
	if r.dialect == DialectSQLite {
		return `INSERT INTO legal_chunks (position, chunk_id, doc_id, text, tokens) VALUES (?, ?, ?, ?, ?)`
	}
	return `INSERT INTO legal_chunks (position, chunk_id, doc_id, text, tokens) VALUES ($1, $2, $3, $4, $5)`
}
