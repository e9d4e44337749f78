package templating

import (
	"github.com/pagestudiocms/pagestudio-template-development-server/pkg/lex"
)

// TemplateConfig holds all configuration options for the template manager.
// Directory names are relative to the source directory of the manager.
type TemplateConfig struct {
	// LayoutsDir holds the page layouts. Every .html file below it, in any
	// subdirectory, is a layout named by its path without the extension.
	LayoutsDir string `json:"layouts_dir"`

	// PartialsDir holds the partials served by template:partial.
	PartialsDir string `json:"partials_dir"`

	// DataDir holds the per-layout context files, <layout>.data.json or
	// <layout>.data.yaml.
	DataDir string `json:"data_dir"`

	// CallbacksDir holds Lua callback scripts. A script named
	// content_snippet.lua serves {{ content:snippet }}.
	CallbacksDir string `json:"callbacks_dir"`

	// AssetPrefix is prepended to relative stylesheet, webfont and script
	// paths from the site configuration.
	AssetPrefix string `json:"asset_prefix"`

	// DefaultNav is the navigation used by navigations:nav when the tag has no
	// nav_id parameter.
	DefaultNav string `json:"default_nav"`

	// Engine configures the template parser.
	Engine lex.Config `json:"engine"`
}

// DefaultConfig returns a TemplateConfig matching the conventional theme layout:
// src/layouts, src/partials, src/data and src/callbacks.
func DefaultConfig() TemplateConfig {
	engine := lex.DefaultConfig()
	engine.MergeGlobalData = true
	return TemplateConfig{
		LayoutsDir:   "layouts",
		PartialsDir:  "partials",
		DataDir:      "data",
		CallbacksDir: "callbacks",
		AssetPrefix:  "assets/",
		DefaultNav:   "primary-navigation",
		Engine:       engine,
	}
}
