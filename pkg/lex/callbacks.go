package lex

import (
	"strings"
)

// Params holds the key="value" pairs of a callback tag.
type Params map[string]string

// Get returns the value of key, or def when it is missing or empty.
func (p Params) Get(key, def string) string {
	if v, ok := p[key]; ok && v != "" {
		return v
	}
	return def
}

// Callback renders a plugin tag. params holds the tag parameters, context the
// scope active at the tag, content the inner content of a block tag (empty for
// single tags) and data the Global Data of the call. The returned string is
// rendered again before it replaces the tag.
type Callback func(params Params, context any, content string, data *Map) (string, error)

// Resolver finds the callback registered for a tag name.
type Resolver interface {
	Lookup(name string) (Callback, bool)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(name string) (Callback, bool)

// Lookup calls f(name).
func (f ResolverFunc) Lookup(name string) (Callback, bool) {
	return f(name)
}

func (r *run) callback(name string) (Callback, bool) {
	if r.resolver == nil {
		return nil, false
	}
	return r.resolver.Lookup(name)
}

// deferrable reports whether a name that did not resolve as a variable should
// be left for the callback pass.
func (r *run) deferrable(name string) bool {
	if r.p.isCallbackName(name) {
		return true
	}
	_, ok := r.callback(name)
	return ok
}

// dispatch invokes the callback for name and renders its output. Unknown
// names pass their content through.
func (r *run) dispatch(name string, params Params, content string, ctx any, depth int) (string, error) {
	out := content
	if cb, ok := r.callback(name); ok {
		res, err := cb(params, ctx, content, r.data)
		if err != nil {
			r.p.logger.Warn("Callback failed", "callback", name, "error", err)
			r.errs = append(r.errs, &CallbackError{Name: name, Err: err})
			return "", nil
		}
		out = res
	} else {
		r.p.logger.Debug("No callback registered, passing content through", "callback", name)
	}
	return r.parse(out, ctx, depth+1)
}

// resolveCallbacks renders every callback tag left in text.
func (r *run) resolveCallbacks(text string, ctx any, depth int) (string, error) {
	tags := r.p.ScanTags(text)
	var b strings.Builder
	last := 0
	for i := 0; i < len(tags); i++ {
		t := tags[i]
		if t.Start < last || t.Closing || t.Literal || t.Kind == TagConditional {
			continue
		}
		if t.Kind != TagCallback {
			if _, ok := r.callback(t.Name); !ok {
				continue
			}
		}
		content, end := "", t.End
		if !t.SelfClosing {
			if c, e, ok := r.captureContent(text, t); ok {
				content, end = c, e
			}
		}
		params, err := r.parseParams(t.Params, ctx, depth)
		if err != nil {
			return text, err
		}
		out, err := r.dispatch(t.Name, params, content, ctx, depth)
		if err != nil {
			return text, err
		}
		b.WriteString(text[last:t.Start])
		b.WriteString(out)
		last = end
	}
	if last == 0 {
		return text, nil
	}
	b.WriteString(text[last:])
	return b.String(), nil
}

// captureContent finds the closing tag for open and returns the content in
// between and the end offset of the closing tag. Same-named blocks nested in
// the content are set aside first so they cannot pair with the outer closer.
func (r *run) captureContent(text string, open Tag) (string, int, bool) {
	region := text[open.End:]
	for {
		closeAt, openAt := -1, -1
		tags := r.p.ScanTags(region)
		for j, t := range tags {
			if t.Name != open.Name || t.Literal {
				continue
			}
			if t.Closing {
				closeAt = j
				break
			}
			if !t.SelfClosing {
				openAt = j
			}
		}
		if closeAt < 0 {
			return "", 0, false
		}
		closer := tags[closeAt]
		if openAt < 0 {
			content := r.store.Inject(region[:closer.Start], NestedLoopedTags)
			end := len(text) - (len(region) - closer.End)
			return content, end, true
		}
		inner := tags[openAt]
		token := r.store.Extract(NestedLoopedTags, region[inner.Start:closer.End])
		region = region[:inner.Start] + token + region[closer.End:]
	}
}

// parseParams turns a parameter span into Params. Quoted values are literal;
// bare values are variable paths, or callback names that are rendered, and
// fall back to their own text.
func (r *run) parseParams(raw string, ctx any, depth int) (Params, error) {
	params := Params{}
	if raw == "" {
		return params, nil
	}
	masked := quotedLiteral.ReplaceAllStringFunc(raw, func(s string) string {
		return r.store.Extract(ParamStr, s)
	})
	defer r.store.Discard(masked, ParamStr)

	for _, m := range paramPair.FindAllStringSubmatch(masked, -1) {
		key, val := m[1], m[2]
		if isToken(val) {
			params[key] = unquote(r.store.Inject(val, ParamStr))
			continue
		}
		if r.p.isCallbackName(val) {
			if _, ok := r.callback(val); ok {
				out, err := r.dispatch(val, Params{}, "", ctx, depth)
				if err != nil {
					return nil, err
				}
				params[key] = out
				continue
			}
		}
		if v, ok := r.lookup(ctx, val); ok {
			params[key] = Stringify(v)
			continue
		}
		params[key] = val
	}
	return params, nil
}
