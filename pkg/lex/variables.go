package lex

import (
	"strings"
)

func (r *run) lookup(ctx any, path string) (any, bool) {
	v, ok := Lookup(ctx, path, r.p.config.ScopeGlue)
	if !ok && r.p.config.MergeGlobalData && r.data != nil {
		return Lookup(r.data, path, r.p.config.ScopeGlue)
	}
	return v, ok
}

// resolveVariables replaces variable tags with their values and expands loop
// blocks. Names that do not resolve but may belong to a callback are left in
// place; loop blocks of such names are set aside as callback blocks. Params on
// a tag no callback serves are ignored.
func (r *run) resolveVariables(text string, ctx any, depth int) (string, error) {
	tags := r.p.ScanTags(text)
	if len(tags) == 0 {
		return text, nil
	}
	var b strings.Builder
	last := 0
	emit := func(t Tag, s string) {
		b.WriteString(text[last:t.Start])
		b.WriteString(s)
		last = t.End
	}
	for i := 0; i < len(tags); i++ {
		t := tags[i]
		if t.Closing || t.Kind == TagConditional {
			continue
		}
		if t.Literal {
			emit(t, unquote(t.Name))
			continue
		}
		// Params and the self-closing mark belong to callbacks. Tags that no
		// callback can serve render as plain variables and loops.
		if (t.Params != "" || t.SelfClosing) && r.deferrable(t.Name) {
			continue
		}
		if t.opensBlock() {
			if j := matchClose(tags, i); j >= 0 {
				out, err := r.resolveLoop(text, t, tags[j], ctx, depth)
				if err != nil {
					return text, err
				}
				b.WriteString(text[last:t.Start])
				b.WriteString(out)
				last = tags[j].End
				i = j
				continue
			}
		}
		if t.Kind == TagCallback {
			continue
		}
		v, ok := r.lookup(ctx, t.Name)
		if !ok && r.deferrable(t.Name) {
			continue
		}
		emit(t, Stringify(v))
	}
	b.WriteString(text[last:])
	return b.String(), nil
}

// resolveLoop renders the block between open and closer once per item of the
// named value. Scalars render nothing; missing or false values of names a
// callback may serve are set aside for the callback pass.
func (r *run) resolveLoop(text string, open, closer Tag, ctx any, depth int) (string, error) {
	v, ok := r.lookup(ctx, open.Name)
	if ok {
		if items, isList := Items(v); isList {
			body := text[open.End:closer.Start]
			var b strings.Builder
			for _, item := range items {
				out, err := r.render(body, item, depth+1)
				if err != nil {
					return "", err
				}
				b.WriteString(out)
			}
			return b.String(), nil
		}
		if Truthy(v) {
			return "", nil
		}
	}
	if r.deferrable(open.Name) {
		return r.store.Extract(CallbackBlocks, text[open.Start:closer.End]), nil
	}
	return "", nil
}
