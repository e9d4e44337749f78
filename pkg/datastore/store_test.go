package datastore

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB creates a new SQLite database and a Store for testing.
func setupTestDB(t *testing.T) (*sql.DB, *Store) {
	t.Helper()
	dbFile := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", dbFile+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := SetupSchema(db); err != nil {
		t.Fatalf("failed to set up schema: %v", err)
	}
	s, err := New(db)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(s.Close)
	return db, s
}

func TestSetupSchema_Idempotent(t *testing.T) {
	db, _ := setupTestDB(t)
	require.NoError(t, SetupSchema(db))
}

func TestStore_PutGet(t *testing.T) {
	_, s := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, Document{Kind: KindSnippet, Name: "intro", Body: "<p>{{ title }}</p>"}))
	doc, err := s.Get(ctx, KindSnippet, "intro")
	require.NoError(t, err)
	assert.Equal(t, "<p>{{ title }}</p>", doc.Body)
	assert.False(t, doc.UpdatedAt.IsZero())

	stamp := time.Unix(1700000000, 0)
	require.NoError(t, s.Put(ctx, Document{Kind: KindSnippet, Name: "intro", Body: "replaced", UpdatedAt: stamp}))
	doc, err = s.Get(ctx, KindSnippet, "intro")
	require.NoError(t, err)
	assert.Equal(t, "replaced", doc.Body)
	assert.True(t, doc.UpdatedAt.Equal(stamp))

	_, err = s.Get(ctx, KindPartial, "intro")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestStore_PutRejectsInvalid(t *testing.T) {
	_, s := setupTestDB(t)
	ctx := context.Background()
	tests := []struct {
		name string
		doc  Document
	}{
		{"unknown kind", Document{Kind: "layout", Name: "x", Body: "x"}},
		{"empty name", Document{Kind: KindSnippet, Body: "x"}},
		{"path name", Document{Kind: KindPartial, Name: "../x", Body: "x"}},
		{"bad json", Document{Kind: KindData, Name: "site", Body: "{"}},
		{"json array", Document{Kind: KindData, Name: "site", Body: "[1,2]"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, s.Put(ctx, tt.doc), ErrInvalidDocument)
		})
	}
}

func TestStore_ListAndDelete(t *testing.T) {
	_, s := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, Document{Kind: KindSnippet, Name: "b", Body: "bb"}))
	require.NoError(t, s.Put(ctx, Document{Kind: KindSnippet, Name: "a", Body: "a"}))
	require.NoError(t, s.Put(ctx, Document{Kind: KindPartial, Name: "nav", Body: "<nav>"}))

	snippets, err := s.List(ctx, KindSnippet)
	require.NoError(t, err)
	require.Len(t, snippets, 2)
	assert.Equal(t, "a", snippets[0].Name)
	assert.Equal(t, 2, snippets[1].Size)

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, s.Delete(ctx, KindSnippet, "a"))
	assert.ErrorIs(t, s.Delete(ctx, KindSnippet, "a"), sql.ErrNoRows)
	snippets, err = s.List(ctx, KindSnippet)
	require.NoError(t, err)
	assert.Len(t, snippets, 1)
}

func TestStore_GlobalData(t *testing.T) {
	_, s := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, Document{Kind: KindData, Name: "site", Body: `{"name":"Demo","tags":["a","b"]}`}))
	require.NoError(t, s.Put(ctx, Document{Kind: KindData, Name: "author", Body: `{"name":"Sam"}`}))
	require.NoError(t, s.Put(ctx, Document{Kind: KindSnippet, Name: "ignored", Body: "x"}))

	data, err := s.GlobalData(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"author", "site"}, data.Keys())

	site, ok := data.Get("site")
	require.True(t, ok)
	b, err := site.(interface{ MarshalJSON() ([]byte, error) }).MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Demo","tags":["a","b"]}`, string(b))
}

func TestStore_ExportImport(t *testing.T) {
	_, src := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, src.Put(ctx, Document{Kind: KindData, Name: "site", Body: `{"name":"Demo"}`}))
	require.NoError(t, src.Put(ctx, Document{Kind: KindSnippet, Name: "intro", Body: "hello"}))

	var buf bytes.Buffer
	require.NoError(t, src.Export(ctx, &buf))

	_, dst := setupTestDB(t)
	require.NoError(t, dst.Put(ctx, Document{Kind: KindSnippet, Name: "intro", Body: "old"}))
	n, err := dst.Import(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	doc, err := dst.Get(ctx, KindSnippet, "intro")
	require.NoError(t, err)
	assert.Equal(t, "hello", doc.Body)
	_, err = dst.Get(ctx, KindData, "site")
	assert.NoError(t, err)
}

func TestStore_ImportIsAllOrNothing(t *testing.T) {
	_, s := setupTestDB(t)
	ctx := context.Background()
	bundle := `{"documents":[{"kind":"snippet","name":"ok","body":"x"},{"kind":"data","name":"bad","body":"nope"}]}`
	_, err := s.Import(ctx, strings.NewReader(bundle))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidDocument))

	infos, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, infos)

	_, err = s.Import(ctx, strings.NewReader("not json"))
	assert.Error(t, err)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Snippet ")
	require.NoError(t, err)
	assert.Equal(t, KindSnippet, k)
	_, err = ParseKind("layout")
	assert.Error(t, err)
}
