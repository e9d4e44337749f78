package main

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pagestudiocms/pagestudio-template-development-server/pkg/datastore"
)

// DataAPI holds the dependencies for the content store API handlers.
type DataAPI struct {
	store  *datastore.Store
	logger *slog.Logger
}

// NewDataAPI creates a new instance of the DataAPI.
func NewDataAPI(store *datastore.Store, logger *slog.Logger) *DataAPI {
	return &DataAPI{
		store:  store,
		logger: logger,
	}
}

// RegisterRoutes sets up the routing for all /api/data endpoints.
func (a *DataAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/data/documents", a.handleList)
	mux.HandleFunc("/api/data/documents/", a.handleDocument)
	mux.HandleFunc("/api/data/export", a.handleExport)
	mux.HandleFunc("/api/data/import", a.handleImport)
}

// handleList returns the metadata of the stored documents, optionally
// filtered by the 'kind' query parameter.
func (a *DataAPI) handleList(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	var kind datastore.Kind
	if raw := r.URL.Query().Get("kind"); raw != "" {
		k, err := datastore.ParseKind(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		kind = k
	}
	infos, err := a.store.List(r.Context(), kind)
	if err != nil {
		a.logger.Error("Failed to list documents", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to list documents")
		return
	}
	if infos == nil {
		infos = []datastore.DocumentInfo{}
	}
	respondWithJSON(w, http.StatusOK, infos)
}

// handleDocument manages a single document, addressed as
// /api/data/documents/<kind>/<name>. PUT stores the raw request body.
func (a *DataAPI) handleDocument(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/data/documents/")
	rawKind, name, ok := strings.Cut(rest, "/")
	if !ok || name == "" {
		respondWithError(w, http.StatusNotFound, "Not Found")
		return
	}
	kind, err := datastore.ParseKind(rawKind)
	if err != nil {
		respondWithError(w, http.StatusNotFound, err.Error())
		return
	}

	switch r.Method {
	case http.MethodGet:
		doc, err := a.store.Get(r.Context(), kind, name)
		if errors.Is(err, sql.ErrNoRows) {
			respondWithError(w, http.StatusNotFound, "Document not found")
			return
		}
		if err != nil {
			a.logger.Error("Failed to read document", "kind", kind, "name", name, "error", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to read document")
			return
		}
		respondWithJSON(w, http.StatusOK, doc)

	case http.MethodPut:
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTemplateBody))
		if err != nil {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Failed to read request body: %v", err))
			return
		}
		err = a.store.Put(r.Context(), datastore.Document{Kind: kind, Name: name, Body: string(body)})
		if errors.Is(err, datastore.ErrInvalidDocument) {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err != nil {
			a.logger.Error("Failed to store document", "kind", kind, "name", name, "error", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to store document")
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case http.MethodDelete:
		err := a.store.Delete(r.Context(), kind, name)
		if errors.Is(err, sql.ErrNoRows) {
			respondWithError(w, http.StatusNotFound, "Document not found")
			return
		}
		if err != nil {
			a.logger.Error("Failed to delete document", "kind", kind, "name", name, "error", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to delete document")
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.Header().Set("Allow", "GET, PUT, DELETE")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleExport streams every stored document as a JSON bundle.
func (a *DataAPI) handleExport(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	var buf bytes.Buffer
	if err := a.store.Export(r.Context(), &buf); err != nil {
		a.logger.Error("Failed to export documents", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to export documents")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="pagestudio-documents.json"`)
	_, _ = buf.WriteTo(w)
}

// handleImport stores the documents of a bundle produced by the export
// endpoint.
func (a *DataAPI) handleImport(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	n, err := a.store.Import(r.Context(), r.Body)
	if err != nil {
		a.logger.Warn("Document import failed", "error", err)
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Import failed: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int{"imported": n})
}
