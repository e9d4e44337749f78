package templating

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/pagestudiocms/pagestudio-template-development-server/pkg/datastore"
	"github.com/pagestudiocms/pagestudio-template-development-server/pkg/lex"
)

// contentSnippet renders the stored snippet named by the name parameter. Without
// one it renders a debug block showing its parameter, content and data.
func (tm *TemplateManager) contentSnippet(params lex.Params, _ any, content string, data *lex.Map) (string, error) {
	if name := params["name"]; name != "" && tm.store != nil {
		doc, err := tm.store.Get(context.Background(), datastore.KindSnippet, name)
		switch {
		case err == nil:
			return doc.Body, nil
		case !errors.Is(err, sql.ErrNoRows):
			return "", fmt.Errorf("failed to load snippet %q: %w", name, err)
		}
		tm.logger.Debug("Snippet not stored, rendering debug block", "snippet", name)
	}
	dump, err := data.MarshalJSON()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(`<div class="snippet">`)
	fmt.Fprintf(&b, "\n  <p>Param: %s</p>", params["param"])
	fmt.Fprintf(&b, "\n  <p>Content: %s</p>", strings.TrimSpace(content))
	fmt.Fprintf(&b, "\n  <p>Data: %s</p>", dump)
	b.WriteString("\n</div>")
	return b.String(), nil
}

// format renders a value with a text format. The value comes from the context
// variable named by the variable parameter, or from the value parameter.
func (tm *TemplateManager) format(params lex.Params, ctx any, _ string, _ *lex.Map) (string, error) {
	value := params["value"]
	if name := params["variable"]; name != "" {
		v, _ := lex.Lookup(ctx, name, tm.config.Engine.ScopeGlue)
		value = lex.Stringify(v)
	}
	return applyFormat(value, params["format"]), nil
}

// title renders the page title: the title value of the Global Data, falling
// back to site.title.
func (tm *TemplateManager) title(params lex.Params, _ any, _ string, data *lex.Map) (string, error) {
	v, ok := data.Get("title")
	if !ok || lex.Stringify(v) == "" {
		v, _ = lex.Lookup(data, "site"+tm.config.Engine.ScopeGlue+"title", tm.config.Engine.ScopeGlue)
	}
	return applyFormat(lex.Stringify(v), params["format"]), nil
}

func applyFormat(value, format string) string {
	switch strings.ToLower(format) {
	case "uppercase", "upper":
		return strings.ToUpper(value)
	case "lowercase", "lower":
		return strings.ToLower(value)
	case "title":
		prev := ' '
		return strings.Map(func(r rune) rune {
			defer func() { prev = r }()
			if unicode.IsSpace(prev) || prev == '-' {
				return unicode.ToTitle(r)
			}
			return r
		}, value)
	case "trim":
		return strings.TrimSpace(value)
	}
	return value
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006",
	"January 2, 2006",
	"Jan 2, 2006",
	time.RFC1123Z,
	time.RFC1123,
}

// dateFormat formats the date in the value parameter, or the date variable of
// the context, with a PHP-style or Go layout in the format parameter. Without
// a format the date is rendered as given.
func (tm *TemplateManager) dateFormat(params lex.Params, ctx any, _ string, _ *lex.Map) (string, error) {
	raw := params["value"]
	if raw == "" {
		v, _ := lex.Lookup(ctx, "date", tm.config.Engine.ScopeGlue)
		raw = lex.Stringify(v)
	}
	if raw == "" {
		return "", nil
	}
	layout := params["format"]
	if layout == "" {
		return raw, nil
	}
	t, err := parseDate(raw)
	if err != nil {
		return "", err
	}
	if strings.Contains(layout, "2006") || strings.Contains(layout, "Jan") {
		return t.Format(layout), nil
	}
	return t.Format(phpLayout(layout)), nil
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", raw)
}

var phpLayoutChars = map[byte]string{
	'd': "02", 'D': "Mon", 'j': "2", 'l': "Monday",
	'F': "January", 'M': "Jan", 'm': "01", 'n': "1",
	'Y': "2006", 'y': "06",
	'a': "pm", 'A': "PM", 'g': "3", 'G': "15", 'h': "03", 'H': "15",
	'i': "04", 's': "05", 'T': "MST", 'e': "MST", 'O': "-0700", 'P': "-07:00",
}

// phpLayout converts a PHP date() format to a Go time layout. A backslash
// escapes the next character.
func phpLayout(format string) string {
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c == '\\' && i+1 < len(format) {
			i++
			b.WriteByte(format[i])
			continue
		}
		if s, ok := phpLayoutChars[c]; ok {
			b.WriteString(s)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// pluginUsers renders its content once per demo user.
func (tm *TemplateManager) pluginUsers(_ lex.Params, _ any, content string, _ *lex.Map) (string, error) {
	users := map[string]any{
		"users": []any{
			map[string]any{"name": "John Doe", "email": "john@demowebsite.com"},
			map[string]any{"name": "Jane Doe", "email": "jane@demowebsite.com"},
		},
	}
	p, err := lex.NewParser(tm.config.Engine)
	if err != nil {
		return "", err
	}
	return p.ResolveVariables("{{ users }} "+content+" {{ /users }}", users, tm.registry)
}
