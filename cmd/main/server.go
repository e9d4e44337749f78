package main

import (
	"bytes"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/pagestudiocms/pagestudio-template-development-server/pkg/datastore"
	"github.com/pagestudiocms/pagestudio-template-development-server/pkg/templating"
)

// Server wires the template manager and content store to the preview and API
// muxes.
type Server struct {
	cm          *ConfigManager
	logger      *slog.Logger
	store       *datastore.Store
	tm          *templating.TemplateManager
	templateAPI *TemplateAPI
	dataAPI     *DataAPI
	serverAPI   *ServerAPI
	filter      *ClientFilter
	previewMux  *http.ServeMux
	apiMux      *http.ServeMux
}

// NewServer creates the Server and registers every route.
func NewServer(cm *ConfigManager, logger *slog.Logger, store *datastore.Store, tm *templating.TemplateManager, actionChan chan string) *Server {
	server := &Server{
		cm:          cm,
		logger:      logger,
		store:       store,
		tm:          tm,
		templateAPI: NewTemplateAPI(tm, logger),
		dataAPI:     NewDataAPI(store, logger),
		serverAPI:   NewServerAPI(cm, actionChan, logger),
		filter:      NewClientFilter(cm, logger),
		previewMux:  http.NewServeMux(),
		apiMux:      http.NewServeMux(),
	}

	apiMux := http.NewServeMux()
	server.templateAPI.RegisterRoutes(apiMux)
	server.dataAPI.RegisterRoutes(apiMux)
	server.serverAPI.RegisterRoutes(apiMux)

	// The health check bypasses the client filter so container health checks can reach it.
	server.apiMux.HandleFunc("/api/health", server.serverAPI.handleHealthCheck)
	server.apiMux.Handle("/api/", server.filter.Middleware(apiMux))

	assets := http.FileServer(http.Dir(filepath.Join(tm.GetSourceDir(), "assets")))
	server.previewMux.Handle("/assets/", http.StripPrefix("/assets/", assets))
	server.previewMux.HandleFunc("/favicon.ico", handleFavicon)
	server.previewMux.HandleFunc("/", server.handlePreview)

	return server
}

// handlePreview renders the layout named by the request path: /blog/post.html
// and /blog/post render layout "blog/post", / renders "index".
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	name := layoutForPath(r.URL.Path)

	var buf bytes.Buffer
	if err := s.tm.Execute(&buf, name, nil); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug("No layout for preview request", "path", r.URL.Path, "layout", name)
			http.NotFound(w, r)
			return
		}
		s.logger.Error("Failed to render layout", "layout", name, "error", err)
		http.Error(w, "Internal Server Error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	s.logger.Debug("Serving preview", "layout", name, "size", buf.Len())
	setPreviewHeaders(w)
	_, _ = buf.WriteTo(w)
}

func layoutForPath(path string) string {
	name := strings.Trim(path, "/")
	if name == "" || strings.HasSuffix(path, "/") {
		name = strings.TrimPrefix(name+"/index", "/")
	}
	return strings.TrimSuffix(name, ".html")
}

func setPreviewHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store, no-cache")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
}

// handleFavicon answers favicon requests with no content so they do not show
// up as missing layouts.
func handleFavicon(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
