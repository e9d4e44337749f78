package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/pagestudiocms/pagestudio-template-development-server/pkg/lex"
	"github.com/pagestudiocms/pagestudio-template-development-server/pkg/templating"
)

// maxTemplateBody bounds the size of template uploads and test renders.
const maxTemplateBody = 4 << 20

// TemplateAPI holds the dependencies for the template API handlers.
type TemplateAPI struct {
	tm     *templating.TemplateManager
	logger *slog.Logger
}

// TemplateList is the response of the template listing endpoint.
type TemplateList struct {
	Layouts   []string `json:"layouts"`
	Partials  []string `json:"partials"`
	Callbacks []string `json:"callbacks"`
}

// TestRequest is the JSON form of a test render: a template and the context
// to render it against.
type TestRequest struct {
	Template string          `json:"template"`
	Data     json.RawMessage `json:"data"`
}

// NewTemplateAPI creates a new instance of the TemplateAPI.
func NewTemplateAPI(tm *templating.TemplateManager, logger *slog.Logger) *TemplateAPI {
	return &TemplateAPI{
		tm:     tm,
		logger: logger,
	}
}

// RegisterRoutes sets up the routing for all /api/templates endpoints.
func (t *TemplateAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/templates/refresh", t.handleRefresh)
	mux.HandleFunc("/api/templates/test", t.handleTest)
	mux.HandleFunc("/api/templates/preview", t.handlePreview)
	mux.HandleFunc("/api/templates", t.handleList)
	mux.HandleFunc("/api/templates/", t.handleFile)
}

// handleRefresh triggers a manual refresh of templates from disk.
func (t *TemplateAPI) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	if err := t.tm.Refresh(); err != nil {
		t.logger.Error("API triggered refresh failed", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to refresh templates: %v", err))
		return
	}
	t.logger.Info("Templates refreshed via API")
	w.WriteHeader(http.StatusNoContent)
}

// handleList returns the names of the loaded layouts, partials and callbacks.
func (t *TemplateAPI) handleList(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	respondWithJSON(w, http.StatusOK, TemplateList{
		Layouts:   t.tm.GetLayoutNames(),
		Partials:  t.tm.GetPartialNames(),
		Callbacks: t.tm.GetCallbackNames(),
	})
}

// handleTest renders a template from the request body without saving it. A
// JSON body is read as a TestRequest; any other body is the template itself,
// rendered against an empty context.
func (t *TemplateAPI) handleTest(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTemplateBody))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Failed to read request body: %v", err))
		return
	}

	text := string(body)
	var data any = lex.NewMap()
	if mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mediaType == "application/json" {
		var req TestRequest
		if err = json.Unmarshal(body, &req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
			return
		}
		text = req.Template
		if len(req.Data) > 0 {
			if data, err = lex.DecodeJSON(bytes.NewReader(req.Data)); err != nil {
				respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid data: %v", err))
				return
			}
		}
	}

	var buf bytes.Buffer
	if err = t.tm.ExecuteTemplateString(&buf, text, data); err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Template execution failed: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// handlePreview renders a loaded layout against its data file.
func (t *TemplateAPI) handlePreview(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		respondWithError(w, http.StatusBadRequest, "Query parameter 'name' is required")
		return
	}

	var buf bytes.Buffer
	if err := t.tm.Execute(&buf, name, nil); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			respondWithError(w, http.StatusNotFound, fmt.Sprintf("Layout '%s' not found", name))
			return
		}
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to render preview: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// handleFile manages CRUD operations for a single layout or partial file,
// addressed as /api/templates/{layouts|partials}/<path>.html.
func (t *TemplateAPI) handleFile(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/templates/")
	kind, name, ok := strings.Cut(rest, "/")
	if !ok || name == "" || strings.HasSuffix(name, "/") {
		respondWithError(w, http.StatusNotFound, "Not Found")
		return
	}
	dir, ok := t.tm.DirFor(kind)
	if !ok {
		respondWithError(w, http.StatusNotFound, "Not Found")
		return
	}
	if strings.Contains(name, "..") || !strings.HasSuffix(name, ".html") || (kind == "partials" && strings.Contains(name, "/")) {
		respondWithError(w, http.StatusBadRequest, "Invalid template name format")
		return
	}

	baseDir, err := filepath.Abs(dir)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to resolve template directory")
		return
	}
	path, err := filepath.Abs(filepath.Join(baseDir, filepath.FromSlash(name)))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid path")
		return
	}
	if !strings.HasPrefix(path, baseDir+string(filepath.Separator)) {
		respondWithError(w, http.StatusForbidden, "Access denied: Path outside template directory")
		return
	}

	switch r.Method {
	case http.MethodGet:
		content, err := os.ReadFile(path)
		if err != nil {
			respondWithError(w, http.StatusNotFound, "Template not found")
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write(content)

	case http.MethodPut:
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTemplateBody))
		if err != nil {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Failed to read request body: %v", err))
			return
		}
		if err = os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to create directory: %v", err))
			return
		}
		if err = atomic.WriteFile(path, bytes.NewReader(body)); err != nil {
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to write template file: %v", err))
			return
		}
		t.refreshAfterWrite(kind, name)
		w.WriteHeader(http.StatusNoContent)

	case http.MethodDelete:
		if err := os.Remove(path); err != nil {
			if os.IsNotExist(err) {
				respondWithError(w, http.StatusNotFound, "Template not found")
				return
			}
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to delete template file: %v", err))
			return
		}
		t.refreshAfterWrite(kind, name)
		w.WriteHeader(http.StatusNoContent)

	default:
		w.Header().Set("Allow", "GET, PUT, DELETE")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (t *TemplateAPI) refreshAfterWrite(kind, name string) {
	t.logger.Info("Template file changed via API", "kind", kind, "name", name)
	if err := t.tm.Refresh(); err != nil {
		t.logger.Error("Refresh after template change failed", "error", err)
	}
}
