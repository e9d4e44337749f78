package datastore

import (
	"database/sql"
	"fmt"
	"io"
	"log/slog"
)

// SetupSchema creates the tables the Store needs. It is idempotent and safe to
// call on an already-initialized database.
func SetupSchema(db *sql.DB) error {

	const (
		schemaDocuments = `
CREATE TABLE IF NOT EXISTS lex_documents (
    doc_id INTEGER PRIMARY KEY,
    doc_name TEXT NOT NULL,
    doc_kind TEXT NOT NULL,
    doc_body TEXT NOT NULL,
    updated_at INTEGER NOT NULL,
    UNIQUE (doc_kind, doc_name)
);
`
		indexKind = `CREATE INDEX IF NOT EXISTS idx_lex_documents_kind ON lex_documents (doc_kind, doc_name);`
	)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.Exec(schemaDocuments); err != nil {
		return fmt.Errorf("could not create schema: %w", err)
	}
	if _, err = tx.Exec(indexKind); err != nil {
		return fmt.Errorf("could not create index: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	return nil
}

// Store reads and writes template documents. It holds the database handle and
// the prepared statements used by every operation.
type Store struct {
	db         *sql.DB
	stmtPut    *sql.Stmt
	stmtGet    *sql.Stmt
	stmtList   *sql.Stmt
	stmtDelete *sql.Stmt
	logger     *slog.Logger
}

// New returns a Store for db. The schema must already exist.
func New(db *sql.DB) (*Store, error) {
	stmtPut, err := db.Prepare(`
INSERT INTO lex_documents (doc_name, doc_kind, doc_body, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT(doc_kind, doc_name) DO UPDATE SET doc_body = excluded.doc_body, updated_at = excluded.updated_at;`)
	if err != nil {
		return nil, err
	}

	stmtGet, err := db.Prepare(`SELECT doc_id, doc_body, updated_at FROM lex_documents WHERE doc_kind = ? AND doc_name = ?;`)
	if err != nil {
		return nil, err
	}

	stmtList, err := db.Prepare(`SELECT doc_id, doc_name, doc_kind, length(doc_body), updated_at FROM lex_documents WHERE doc_kind = ? OR ? = '' ORDER BY doc_kind, doc_name;`)
	if err != nil {
		return nil, err
	}

	stmtDelete, err := db.Prepare(`DELETE FROM lex_documents WHERE doc_kind = ? AND doc_name = ?;`)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:         db,
		stmtPut:    stmtPut,
		stmtGet:    stmtGet,
		stmtList:   stmtList,
		stmtDelete: stmtDelete,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, nil
}

// SetLogger sets the logger for the Store. By default, all logs are discarded.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Close releases the prepared statements. It does not close the database.
func (s *Store) Close() {
	for _, stmt := range []*sql.Stmt{s.stmtPut, s.stmtGet, s.stmtList, s.stmtDelete} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
}
