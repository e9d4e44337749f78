package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pagestudiocms/pagestudio-template-development-server/pkg/lex"
)

// Kind names a class of stored document.
type Kind string

const (
	// KindData documents are JSON objects merged into the Global Data of a render.
	KindData Kind = "data"
	// KindSnippet documents are template text served by content:snippet.
	KindSnippet Kind = "snippet"
	// KindPartial documents are template text served by template:partial.
	KindPartial Kind = "partial"
)

// ErrInvalidDocument is returned by Put for documents that cannot be stored.
var ErrInvalidDocument = errors.New("invalid document")

// ParseKind converts s to a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindData, KindSnippet, KindPartial:
		return k, nil
	}
	return "", fmt.Errorf("unknown document kind %q", s)
}

// Document is a stored piece of template content.
type Document struct {
	ID        int       `json:"-"`
	Kind      Kind      `json:"kind"`
	Name      string    `json:"name"`
	Body      string    `json:"body"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DocumentInfo is the metadata of a stored document, as returned by List.
type DocumentInfo struct {
	ID        int       `json:"id"`
	Kind      Kind      `json:"kind"`
	Name      string    `json:"name"`
	Size      int       `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

func validate(doc Document) error {
	if _, err := ParseKind(string(doc.Kind)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if doc.Name == "" || strings.ContainsAny(doc.Name, "/\\") {
		return fmt.Errorf("%w: bad name %q", ErrInvalidDocument, doc.Name)
	}
	if doc.Kind == KindData {
		v, err := lex.DecodeJSON(strings.NewReader(doc.Body))
		if err != nil {
			return fmt.Errorf("%w: data document %q: %v", ErrInvalidDocument, doc.Name, err)
		}
		if _, ok := v.(*lex.Map); !ok {
			return fmt.Errorf("%w: data document %q is not a JSON object", ErrInvalidDocument, doc.Name)
		}
	}
	return nil
}

// Put inserts doc, replacing any document with the same kind and name. A zero
// UpdatedAt is set to the current time.
func (s *Store) Put(ctx context.Context, doc Document) error {
	if err := validate(doc); err != nil {
		return err
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = time.Now()
	}
	if _, err := s.stmtPut.ExecContext(ctx, doc.Name, string(doc.Kind), doc.Body, doc.UpdatedAt.Unix()); err != nil {
		return fmt.Errorf("failed to store %s %q: %w", doc.Kind, doc.Name, err)
	}
	s.logger.InfoContext(ctx, "Document stored",
		slog.String("kind", string(doc.Kind)),
		slog.String("name", doc.Name),
		slog.Int("size", len(doc.Body)),
	)
	return nil
}

// Get returns the document with the given kind and name. It returns
// sql.ErrNoRows when there is none.
func (s *Store) Get(ctx context.Context, kind Kind, name string) (Document, error) {
	doc := Document{Kind: kind, Name: name}
	var updated int64
	if err := s.stmtGet.QueryRowContext(ctx, string(kind), name).Scan(&doc.ID, &doc.Body, &updated); err != nil {
		return Document{}, err
	}
	doc.UpdatedAt = time.Unix(updated, 0)
	return doc, nil
}

// List returns the metadata of every document of kind, ordered by kind and
// name. An empty kind lists all documents.
func (s *Store) List(ctx context.Context, kind Kind) ([]DocumentInfo, error) {
	rows, err := s.stmtList.QueryContext(ctx, string(kind), string(kind))
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var infos []DocumentInfo
	for rows.Next() {
		var info DocumentInfo
		var k string
		var updated int64
		if err = rows.Scan(&info.ID, &info.Name, &k, &info.Size, &updated); err != nil {
			return nil, err
		}
		info.Kind = Kind(k)
		info.UpdatedAt = time.Unix(updated, 0)
		infos = append(infos, info)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return infos, nil
}

// Delete removes the document with the given kind and name. It returns
// sql.ErrNoRows when there is none.
func (s *Store) Delete(ctx context.Context, kind Kind, name string) error {
	res, err := s.stmtDelete.ExecContext(ctx, string(kind), name)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	s.logger.InfoContext(ctx, "Document removed",
		slog.String("kind", string(kind)),
		slog.String("name", name),
	)
	return nil
}

// GlobalData decodes every data document and returns them as one map keyed by
// document name, in name order.
func (s *Store) GlobalData(ctx context.Context) (*lex.Map, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT doc_name, doc_body FROM lex_documents WHERE doc_kind = ? ORDER BY doc_name", string(KindData))
	if err != nil {
		return nil, fmt.Errorf("could not query data documents: %w", err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	out := lex.NewMap()
	for rows.Next() {
		var name, body string
		if err = rows.Scan(&name, &body); err != nil {
			return nil, err
		}
		v, err := lex.DecodeJSON(strings.NewReader(body))
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping unreadable data document",
				slog.String("name", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		out.Set(name, v)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
