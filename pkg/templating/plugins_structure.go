package templating

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/pagestudiocms/pagestudio-template-development-server/pkg/datastore"
	"github.com/pagestudiocms/pagestudio-template-development-server/pkg/lex"
)

var vendorScripts = []string{
	"https://cdn.pagestudiocms.com/assets/vendors/jquery/jquery-2.1.4.min.js",
	"https://cdn.pagestudiocms.com/assets/vendors/bootstrap/3.3.6/js/bootstrap.min.js",
	"https://cdn.pagestudiocms.com/assets/vendors/wow/1.1.0/dist/wow.min.js",
	"https://cdn.pagestudiocms.com/assets/vendors/jquery-validate/1.17.0/jquery.validate.min.js",
}

func (tm *TemplateManager) path(segments ...string) string {
	return strings.Join(segments, tm.config.Engine.ScopeGlue)
}

// assetURLs returns the values of the site config group key, with relative
// paths prefixed by the asset prefix.
func (tm *TemplateManager) assetURLs(data *lex.Map, key string) []string {
	group, _ := data.Get(key)
	items, _ := lex.Items(group)
	urls := make([]string, 0, len(items))
	for _, item := range items {
		href := lex.Stringify(item)
		if href == "" {
			continue
		}
		if !strings.HasPrefix(href, "http://") && !strings.HasPrefix(href, "https://") && !strings.HasPrefix(href, "//") {
			href = tm.config.AssetPrefix + href
		}
		urls = append(urls, href)
	}
	return urls
}

// templateHeaders renders the page title, meta tags and the webfont and
// stylesheet links of the site configuration.
func (tm *TemplateManager) templateHeaders(_ lex.Params, _ any, content string, data *lex.Map) (string, error) {
	site := func(key string) string {
		v, _ := lex.Lookup(data, tm.path("site", key), tm.config.Engine.ScopeGlue)
		return html.EscapeString(lex.Stringify(v))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "<title>%s</title>\n", site("title"))
	for _, key := range []string{"author", "description", "keywords"} {
		fmt.Fprintf(&b, "<meta name=%q content=\"%s\">\n", key, site(key))
	}
	b.WriteString("<link rel=\"preconnect\" href=\"https://fonts.googleapis.com\">\n")
	b.WriteString("<link rel=\"preconnect\" href=\"https://fonts.gstatic.com\" crossorigin>\n")
	for _, href := range tm.assetURLs(data, "webfonts") {
		fmt.Fprintf(&b, "<link rel=\"stylesheet\" href=\"%s\">\n", href)
	}
	for _, href := range tm.assetURLs(data, "stylesheets") {
		fmt.Fprintf(&b, "<link rel=\"stylesheet\" href=\"%s\">\n", href)
	}
	b.WriteString(strings.TrimSpace(content))
	return b.String(), nil
}

// templateFooters renders the vendor and theme script tags followed by the
// tag content.
func (tm *TemplateManager) templateFooters(_ lex.Params, _ any, content string, data *lex.Map) (string, error) {
	var b strings.Builder
	for _, src := range append(vendorScripts, tm.assetURLs(data, "javascripts")...) {
		fmt.Fprintf(&b, "<script src=\"%s\"></script>\n", src)
	}
	b.WriteString(strings.TrimSpace(content))
	return b.String(), nil
}

// navigationsNav renders the menu registered under nav_id in the navigations
// of the site configuration as a Bootstrap navbar list.
func (tm *TemplateManager) navigationsNav(params lex.Params, _ any, content string, data *lex.Map) (string, error) {
	key := params.Get("nav_id", tm.config.DefaultNav)
	navs, _ := lex.Lookup(data, tm.path("navigations", "items"), tm.config.Engine.ScopeGlue)
	items, _ := lex.Items(navs)

	var menu []any
	for _, nav := range items {
		name, _ := lex.Lookup(nav, "name", tm.config.Engine.ScopeGlue)
		if lex.Stringify(name) == key {
			m, _ := lex.Lookup(nav, "menu", tm.config.Engine.ScopeGlue)
			menu, _ = lex.Items(m)
			break
		}
	}
	if menu == nil {
		tm.logger.Debug("Navigation not found", "nav_id", key)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<ul class=\"%s\">\n", strings.TrimSpace("nav navbar-nav "+params["class"]))
	tm.writeMenu(&b, menu)
	b.WriteString("</ul>\n")
	b.WriteString(strings.TrimSpace(content))
	return b.String(), nil
}

func (tm *TemplateManager) writeMenu(b *strings.Builder, items []any) {
	field := func(item any, key string) any {
		v, _ := lex.Lookup(item, key, tm.config.Engine.ScopeGlue)
		return v
	}
	for i, item := range items {
		if lex.Truthy(field(item, "divider")) {
			b.WriteString("<li role=\"separator\" class=\"divider\"></li>\n")
			continue
		}
		var classes []string
		if i == 0 {
			classes = append(classes, "first")
		}
		if lex.Truthy(field(item, "active")) {
			classes = append(classes, "active")
		}
		if c := lex.Stringify(field(item, "class")); c != "" {
			classes = append(classes, c)
		}
		label := lex.Stringify(field(item, "label"))
		url := lex.Stringify(field(item, "url"))

		if children, ok := lex.Items(field(item, "children")); ok {
			if url == "" {
				url = "#"
			}
			classes = append([]string{"dropdown"}, classes...)
			fmt.Fprintf(b, "<li class=\"%s\">\n", strings.Join(classes, " "))
			fmt.Fprintf(b, "<a href=\"%s\" class=\"dropdown-toggle\" data-toggle=\"dropdown\" role=\"button\" aria-haspopup=\"true\" aria-expanded=\"false\">%s <span class=\"caret\"></span></a>\n", url, label)
			b.WriteString("<ul class=\"dropdown-menu\">\n")
			tm.writeMenu(b, children)
			b.WriteString("</ul>\n</li>\n")
			continue
		}
		fmt.Fprintf(b, "<li class=\"%s\"><a href=\"%s\">%s</a></li>\n", strings.Join(classes, " "), url, label)
	}
}

// templatePartial renders the partial named by the name parameter in the
// current scope. Partial files win over stored partials.
func (tm *TemplateManager) templatePartial(params lex.Params, _ any, _ string, _ *lex.Map) (string, error) {
	name := params["name"]
	if name == "" {
		return "", errors.New("template:partial needs a name")
	}
	if text, ok := tm.partials[name]; ok {
		return text, nil
	}
	if tm.store != nil {
		doc, err := tm.store.Get(context.Background(), datastore.KindPartial, name)
		if err == nil {
			return doc.Body, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("failed to load partial %q: %w", name, err)
		}
	}
	tm.logger.Warn("Partial not found", "partial", name)
	return "", nil
}
