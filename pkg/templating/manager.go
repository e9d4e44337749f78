package templating

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pagestudiocms/pagestudio-template-development-server/pkg/datastore"
	"github.com/pagestudiocms/pagestudio-template-development-server/pkg/lex"
)

// TemplateManager is the central controller for a theme. It holds the loaded
// layouts, partials, site configuration and callback registry, and renders
// layouts in a concurrent-safe manner.
type TemplateManager struct {
	logger      *slog.Logger
	config      *TemplateConfig
	store       *datastore.Store
	layouts     map[string]string
	layoutNames []string
	partials    map[string]string
	site        *lex.Map
	scripts     []*luaScript
	registry    *lex.Registry
	srcDir      string
	mu          sync.RWMutex
}

// NewTemplateManager creates, initializes, and returns a new TemplateManager for
// the theme in srcDir. store may be nil, in which case snippets, stored
// partials and data documents are unavailable. It performs an initial Refresh.
func NewTemplateManager(logger *slog.Logger, store *datastore.Store, config *TemplateConfig, srcDir string) (*TemplateManager, error) {
	if config == nil {
		def := DefaultConfig()
		config = &def
	}
	if err := config.Engine.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}

	tm := &TemplateManager{
		logger: logger,
		store:  store,
		config: config,
		srcDir: srcDir,
	}
	if err := tm.Refresh(); err != nil {
		return nil, err
	}

	logger.Info("Template manager initialized", "source", srcDir)
	return tm, nil
}

// makeRegistry registers the callback scripts and the built-in callbacks. A
// script with the name of a built-in replaces it.
func (tm *TemplateManager) makeRegistry(scripts []*luaScript) (*lex.Registry, error) {
	reg := lex.NewRegistry()
	for _, s := range scripts {
		if err := reg.Register(s.name, s.call); err != nil {
			return nil, err
		}
	}

	builtins := []struct {
		name string
		cb   lex.Callback
	}{
		// Content (from plugins_content.go)
		{"content:snippet", tm.contentSnippet},
		{"format", tm.format},
		{"format:text", tm.format},
		{"title", tm.title},
		{"date:format", tm.dateFormat},
		{"plugin:users", tm.pluginUsers},

		// Structure (from plugins_structure.go)
		{"navigations:nav", tm.navigationsNav},
		{"template:headers", tm.templateHeaders},
		{"template:footers", tm.templateFooters},
		{"template:partial", tm.templatePartial},
	}
	for _, b := range builtins {
		if _, ok := reg.Lookup(b.name); ok {
			tm.logger.Info("Callback script replaces built-in callback", "callback", b.name)
			continue
		}
		if err := reg.Register(b.name, b.cb); err != nil {
			return nil, err
		}
	}
	reg.Freeze()
	return reg, nil
}

// SetConfig applies a new configuration. It takes effect for directories on
// the next Refresh and for rendering immediately.
func (tm *TemplateManager) SetConfig(config *TemplateConfig) error {
	if err := config.Engine.Validate(); err != nil {
		return err
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.config = config
	return nil
}

// Refresh reloads layouts, partials, the site configuration and callback
// scripts from the filesystem and rebuilds the callback registry.
func (tm *TemplateManager) Refresh() error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	tm.logger.Info("Loading layout files...")
	layouts, err := readTemplates(filepath.Join(tm.srcDir, tm.config.LayoutsDir), true)
	if err != nil {
		tm.logger.Error("failed to load layouts", "error", err)
		return err
	}
	if len(layouts) == 0 {
		tm.logger.Warn("No layout files found", "dir", filepath.Join(tm.srcDir, tm.config.LayoutsDir))
	}

	tm.logger.Info("Loading partial files...")
	partials, err := readTemplates(filepath.Join(tm.srcDir, tm.config.PartialsDir), false)
	if err != nil {
		tm.logger.Error("failed to load partials", "error", err)
		return err
	}

	site, sitePath, err := loadSiteConfig(tm.srcDir)
	if err != nil {
		tm.logger.Error("failed to load site config", "error", err)
		return err
	}
	if sitePath != "" {
		tm.logger.Info("Loaded site config", "path", sitePath)
	}

	scripts, err := loadScripts(filepath.Join(tm.srcDir, tm.config.CallbacksDir))
	if err != nil {
		tm.logger.Error("failed to load callback scripts", "error", err)
		return err
	}
	registry, err := tm.makeRegistry(scripts)
	if err != nil {
		closeScripts(scripts)
		return err
	}

	closeScripts(tm.scripts)
	tm.layouts = layouts
	tm.layoutNames = sortedNames(layouts)
	tm.partials = partials
	tm.site = site
	tm.scripts = scripts
	tm.registry = registry
	tm.logger.Info("Loaded theme",
		"layouts", len(layouts),
		"partials", len(partials),
		"scripts", len(scripts),
		"callbacks", len(registry.Names()),
	)
	return nil
}

// readTemplates reads the .html files of dir, keyed by their slash-separated
// path relative to dir without the extension. Subdirectories are read only
// when recursive is set. A missing directory yields an empty map.
func readTemplates(dir string, recursive bool) (map[string]string, error) {
	out := make(map[string]string)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir && os.IsNotExist(err) {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() {
			if path != dir && !recursive {
				return fs.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), ".html") {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		out[strings.TrimSuffix(filepath.ToSlash(rel), filepath.Ext(rel))] = string(raw)
		return nil
	})
	return out, err
}

func sortedNames(m map[string]string) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close releases the callback scripts.
func (tm *TemplateManager) Close() {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	closeScripts(tm.scripts)
	tm.scripts = nil
}

// Execute renders the named layout against its data file, with extra overlaid
// on top, and writes the output to w. Recoverable template errors are logged;
// fatal ones are returned.
func (tm *TemplateManager) Execute(w io.Writer, name string, extra any) error {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	text, ok := tm.layouts[name]
	if !ok {
		return fmt.Errorf("layout %q: %w", name, fs.ErrNotExist)
	}
	ctx, err := tm.layoutData(name)
	if err != nil {
		return err
	}
	if m, ok := lex.AsMap(extra); ok {
		ctx.Merge(m)
	}
	return tm.render(w, name, text, ctx)
}

// ExecuteTemplateString renders a raw template string against data. This is
// ideal for testing or previewing templates without saving them to disk.
func (tm *TemplateManager) ExecuteTemplateString(w io.Writer, content string, data any) error {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.render(w, "string", content, data)
}

func (tm *TemplateManager) render(w io.Writer, name, text string, ctx any) error {
	parser, err := lex.NewParser(tm.config.Engine)
	if err != nil {
		return err
	}
	parser.SetLogger(tm.logger.With("template", name))

	data, err := tm.globalData(ctx)
	if err != nil {
		return err
	}
	out, err := parser.ParseWithData(text, ctx, data, tm.registry)
	if err != nil {
		if lex.IsFatal(err) {
			return fmt.Errorf("failed to render %s: %w", name, err)
		}
		tm.logger.Warn("Template rendered with errors", "template", name, "error", err)
	}
	_, err = io.WriteString(w, out)
	return err
}

// globalData is the site configuration overlaid with the stored data documents
// and the render context.
func (tm *TemplateManager) globalData(ctx any) (*lex.Map, error) {
	data := tm.site.Clone()
	if tm.store != nil {
		stored, err := tm.store.GlobalData(context.Background())
		if err != nil {
			return nil, fmt.Errorf("failed to load data documents: %w", err)
		}
		data.Merge(stored)
	}
	if m, ok := lex.AsMap(ctx); ok {
		data.Merge(m)
	}
	return data, nil
}

// LayoutData returns the context of the named layout: the contents of its data
// file, or an empty map when it has none.
func (tm *TemplateManager) LayoutData(name string) (*lex.Map, error) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.layoutData(name)
}

func (tm *TemplateManager) layoutData(name string) (*lex.Map, error) {
	base := filepath.Join(tm.srcDir, tm.config.DataDir, filepath.Base(filepath.FromSlash(name))+".data")
	path := findDataFile(base)
	if path == "" {
		tm.logger.Debug("No data found for layout, using empty context", "layout", name)
		return lex.NewMap(), nil
	}
	v, err := LoadDataFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read data file %s: %w", path, err)
	}
	m, ok := v.(*lex.Map)
	if !ok {
		return nil, fmt.Errorf("data file %s is not an object", path)
	}
	return m.Clone(), nil
}

// GetConfig returns a copy of the current configuration.
func (tm *TemplateManager) GetConfig() TemplateConfig {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return *tm.config
}

// GetLayoutNames returns the names of the loaded layouts in sorted order.
func (tm *TemplateManager) GetLayoutNames() []string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return append([]string(nil), tm.layoutNames...)
}

// GetPartialNames returns the names of the loaded partial files in sorted order.
func (tm *TemplateManager) GetPartialNames() []string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return sortedNames(tm.partials)
}

// GetCallbackNames returns the names of the registered callbacks.
func (tm *TemplateManager) GetCallbackNames() []string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.registry.Names()
}

// GetSourceDir returns the theme source directory.
func (tm *TemplateManager) GetSourceDir() string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.srcDir
}

// DirFor returns the directory holding templates of the given kind, "layouts"
// or "partials".
func (tm *TemplateManager) DirFor(kind string) (string, bool) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	switch kind {
	case "layouts":
		return filepath.Join(tm.srcDir, tm.config.LayoutsDir), true
	case "partials":
		return filepath.Join(tm.srcDir, tm.config.PartialsDir), true
	}
	return "", false
}
