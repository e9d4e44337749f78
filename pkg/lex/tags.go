package lex

import (
	"fmt"
	"regexp"
	"strings"
)

// TagKind classifies a scanned tag.
type TagKind int

const (
	// TagText is a run of text between tags.
	TagText TagKind = iota
	// TagVariable is a variable reference or the opening tag of a loop block.
	TagVariable
	// TagLoopBoundary is a closing tag such as {{ /items }}.
	TagLoopBoundary
	// TagConditional is one of if, unless, elseif, elseunless, else, endif.
	TagConditional
	// TagCallback is a tag whose name contains the callback glue.
	TagCallback
)

func (k TagKind) String() string {
	switch k {
	case TagText:
		return "text"
	case TagVariable:
		return "variable"
	case TagLoopBoundary:
		return "loop-boundary"
	case TagConditional:
		return "conditional"
	case TagCallback:
		return "callback"
	}
	return fmt.Sprintf("TagKind(%d)", int(k))
}

// Tag is one `{{ ... }}` unit. Start and End are byte offsets into the text
// that was scanned.
type Tag struct {
	Kind        TagKind
	Name        string
	Params      string
	Closing     bool
	SelfClosing bool
	Literal     bool
	Start       int
	End         int
	Raw         string
}

var conditionalKeywords = map[string]struct{}{
	"if":         {},
	"unless":     {},
	"elseif":     {},
	"elseunless": {},
	"else":       {},
	"endif":      {},
}

const quotedPattern = `"(?:\\.|[^"\\])*"|'(?:\\.|[^'\\])*'`

var (
	commentPattern = regexp.MustCompile(`(?s)\{\{#.*?#\}\}`)
	noparsePattern = regexp.MustCompile(`(?s)\{\{\s*noparse\s*\}\}(.*?)\{\{\s*/noparse\s*\}\}`)
	quotedLiteral  = regexp.MustCompile(quotedPattern)
	paramPair      = regexp.MustCompile(`([A-Za-z0-9_-]+)\s*=\s*(` + quotedPattern + `|\x1alex:param_str:[0-9a-f]+\x1a|[^\s"']+)`)
)

// buildTagPattern compiles the tag grammar for a pair of glues:
// `{{ [/] name [params] [/] }}` where name is made of word characters and
// glue characters, or a quoted literal.
func buildTagPattern(scopeGlue, callbackGlue string) *regexp.Regexp {
	var class strings.Builder
	class.WriteString(`A-Za-z0-9_`)
	for _, r := range scopeGlue + callbackGlue {
		fmt.Fprintf(&class, `\x{%x}`, r)
	}
	name := `[` + class.String() + `]+|"[^"]*"|'[^']*'`
	params := `(?:[\s(!](?:` + quotedPattern + `|[^"'{}])*?)?`
	return regexp.MustCompile(`\{\{\s*(/)?\s*(` + name + `)(` + params + `)\s*(/)?\s*\}\}`)
}

// ScanTags returns every well-formed tag in text, in order.
func (p *Parser) ScanTags(text string) []Tag {
	if !strings.Contains(text, "{{") {
		return nil
	}
	matches := p.tagPattern.FindAllStringSubmatchIndex(text, -1)
	tags := make([]Tag, 0, len(matches))
	for _, m := range matches {
		t := Tag{
			Name:        text[m[4]:m[5]],
			Params:      strings.TrimSpace(text[m[6]:m[7]]),
			Closing:     m[2] >= 0,
			SelfClosing: m[8] >= 0,
			Start:       m[0],
			End:         m[1],
			Raw:         text[m[0]:m[1]],
		}
		t.Literal = t.Name[0] == '"' || t.Name[0] == '\''
		t.Kind = p.classify(t)
		tags = append(tags, t)
	}
	return tags
}

// Tokenize splits text into text runs and tags.
func (p *Parser) Tokenize(text string) []Tag {
	var out []Tag
	last := 0
	for _, t := range p.ScanTags(text) {
		if t.Start > last {
			out = append(out, Tag{Kind: TagText, Start: last, End: t.Start, Raw: text[last:t.Start]})
		}
		out = append(out, t)
		last = t.End
	}
	if last < len(text) {
		out = append(out, Tag{Kind: TagText, Start: last, End: len(text), Raw: text[last:]})
	}
	return out
}

func (p *Parser) classify(t Tag) TagKind {
	switch {
	case t.Closing:
		return TagLoopBoundary
	case t.Literal:
		return TagVariable
	}
	if _, ok := conditionalKeywords[t.Name]; ok {
		return TagConditional
	}
	if p.isCallbackName(t.Name) {
		return TagCallback
	}
	return TagVariable
}

func (p *Parser) isCallbackName(name string) bool {
	if _, ok := conditionalKeywords[name]; ok {
		return false
	}
	return strings.Contains(name, p.config.CallbackGlue)
}

// opensBlock reports whether t can be the opening tag of a block.
func (t Tag) opensBlock() bool {
	return !t.Closing && !t.SelfClosing && !t.Literal && t.Kind != TagConditional
}

// matchClose returns the index of the tag closing tags[i], counting nested
// openers with the same name, or -1 when the block is never closed.
func matchClose(tags []Tag, i int) int {
	name := tags[i].Name
	depth := 0
	for j := i; j < len(tags); j++ {
		t := tags[j]
		if t.Name != name || t.Literal {
			continue
		}
		switch {
		case t.Closing:
			depth--
			if depth == 0 {
				return j
			}
		case !t.SelfClosing:
			depth++
		}
	}
	return -1
}

// hasParams reports whether a parameter span holds at least one key=value pair.
func hasParams(params string) bool {
	return params != "" && paramPair.MatchString(params)
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		s = s[1 : len(s)-1]
	}
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
