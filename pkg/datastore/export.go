package datastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// ExportedBundle is the serializable form of a Store, used for JSON-based
// import and export.
type ExportedBundle struct {
	Exported  time.Time  `json:"exported"`
	Documents []Document `json:"documents"`
}

// Export writes every document to w as an indented JSON bundle.
func (s *Store) Export(ctx context.Context, w io.Writer) error {
	rows, err := s.db.QueryContext(ctx, "SELECT doc_id, doc_kind, doc_name, doc_body, updated_at FROM lex_documents ORDER BY doc_kind, doc_name")
	if err != nil {
		return fmt.Errorf("could not query documents for export: %w", err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	bundle := ExportedBundle{Exported: time.Now().UTC(), Documents: []Document{}}
	for rows.Next() {
		var doc Document
		var kind string
		var updated int64
		if err := rows.Scan(&doc.ID, &kind, &doc.Name, &doc.Body, &updated); err != nil {
			return err
		}
		doc.Kind = Kind(kind)
		doc.UpdatedAt = time.Unix(updated, 0).UTC()
		bundle.Documents = append(bundle.Documents, doc)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Documents exported", slog.Int("documents_exported", len(bundle.Documents)))

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(bundle)
}

// Import reads a bundle written by Export and stores its documents, replacing
// documents with the same kind and name. Nothing is stored unless every
// document is valid.
func (s *Store) Import(ctx context.Context, r io.Reader) (int, error) {
	var bundle ExportedBundle
	if err := json.NewDecoder(r).Decode(&bundle); err != nil {
		return 0, fmt.Errorf("failed to decode json bundle: %w", err)
	}
	for _, doc := range bundle.Documents {
		if err := validate(doc); err != nil {
			return 0, err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("could not begin transaction for import: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	stmtPut := tx.StmtContext(ctx, s.stmtPut)
	now := time.Now()
	for _, doc := range bundle.Documents {
		updated := doc.UpdatedAt
		if updated.IsZero() {
			updated = now
		}
		if _, err = stmtPut.ExecContext(ctx, doc.Name, string(doc.Kind), doc.Body, updated.Unix()); err != nil {
			return 0, fmt.Errorf("failed to import %s %q: %w", doc.Kind, doc.Name, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, err
	}
	s.logger.InfoContext(ctx, "Documents imported", slog.Int("documents_imported", len(bundle.Documents)))
	return len(bundle.Documents), nil
}
