package lex

import (
	"errors"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"sync"
)

// Parser renders templates. The first call to Parse fixes the Global Data
// baseline of the session; later calls overlay their own data on it.
type Parser struct {
	config     Config
	logger     *slog.Logger
	tagPattern *regexp.Regexp
	mu         sync.Mutex
	static     *Map
	noparse    *Store
}

// NewParser returns a Parser for config, or an error if config is invalid.
func NewParser(config Config) (*Parser, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Parser{
		config:     config,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		tagPattern: buildTagPattern(config.ScopeGlue, config.CallbackGlue),
		noparse:    NewStore(),
	}, nil
}

// Parse renders text once with a default Parser.
func Parse(text string, context any, resolver Resolver) (string, error) {
	p, err := NewParser(DefaultConfig())
	if err != nil {
		return "", err
	}
	return p.Parse(text, context, resolver)
}

// SetLogger sets the logger for the Parser. By default, all logs are discarded.
func (p *Parser) SetLogger(logger *slog.Logger) {
	if logger != nil {
		p.logger = logger
	}
}

// Config returns the configuration of the Parser.
func (p *Parser) Config() Config {
	return p.config
}

// Reset forgets the Global Data baseline and any pending noparse regions.
func (p *Parser) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.static = nil
	p.noparse.Reset()
}

// Parse renders text against context. The context also serves as the Global
// Data of the call. resolver may be nil, in which case callback tags pass
// their content through.
//
// The returned error joins every problem met during the render. When
// IsFatal reports true the output holds only what was processed before the
// failure; otherwise the output is complete.
func (p *Parser) Parse(text string, context any, resolver Resolver) (string, error) {
	return p.ParseWithData(text, context, context, resolver)
}

// ParseWithData renders text against context and hands data, overlaid on the
// session baseline, to every callback.
func (p *Parser) ParseWithData(text string, context, data any, resolver Resolver) (string, error) {
	r := p.newRun(resolver, p.accumulate(data))
	out, err := r.parse(text, context, 0)
	out = r.store.Inject(out)
	return out, r.result(err)
}

// InjectNoparse restores the noparse regions that cumulative noparse mode
// left in text.
func (p *Parser) InjectNoparse(text string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.noparse.Inject(text, Noparse)
}

// ResolveVariables runs only the variable and loop pass over text.
func (p *Parser) ResolveVariables(text string, context any, resolver Resolver) (string, error) {
	r := p.newRun(resolver, p.peekData(context))
	out, err := r.resolveVariables(text, context, 0)
	out = r.store.Inject(out)
	return out, r.result(err)
}

// ResolveConditionals runs only the conditional pass over text.
func (p *Parser) ResolveConditionals(text string, context any) (string, error) {
	r := p.newRun(nil, p.peekData(context))
	out, err := r.resolveConditionals(text, context, 0)
	return out, r.result(err)
}

// ResolveCallbacks runs only the callback pass over text.
func (p *Parser) ResolveCallbacks(text string, context any, resolver Resolver) (string, error) {
	r := p.newRun(resolver, p.peekData(context))
	out, err := r.resolveCallbacks(text, context, 0)
	out = r.store.Inject(out)
	return out, r.result(err)
}

// Evaluate reports the truth value of a conditional expression.
func (p *Parser) Evaluate(expr string, context any) (bool, error) {
	r := p.newRun(nil, p.peekData(context))
	return r.evaluate(expr, context, 0)
}

// accumulate records the Global Data baseline on the first call of a session
// and returns the data a call sees: the baseline overlaid with its own data.
func (p *Parser) accumulate(data any) *Map {
	p.mu.Lock()
	defer p.mu.Unlock()
	incoming, _ := AsMap(data)
	if p.static == nil {
		p.static = incoming.Clone()
		return p.static.Clone()
	}
	merged := p.static.Clone()
	merged.Merge(incoming)
	return merged
}

func (p *Parser) peekData(data any) *Map {
	p.mu.Lock()
	defer p.mu.Unlock()
	incoming, _ := AsMap(data)
	merged := p.static.Clone()
	merged.Merge(incoming)
	return merged
}

// run holds the state of one top-level render.
type run struct {
	p        *Parser
	store    *Store
	noparse  *Store
	resolver Resolver
	data     *Map
	errs     []error
}

func (p *Parser) newRun(resolver Resolver, data *Map) *run {
	r := &run{p: p, store: NewStore(), resolver: resolver, data: data}
	r.noparse = r.store
	if p.config.CumulativeNoparse {
		r.noparse = p.noparse
	}
	return r
}

func (r *run) result(fatal error) error {
	if fatal != nil {
		return errors.Join(append(r.errs, fatal)...)
	}
	return errors.Join(r.errs...)
}

// parse strips comments, sets noparse regions aside and renders the rest.
// Noparse regions are restored by the top-level caller only.
func (r *run) parse(text string, ctx any, depth int) (string, error) {
	text = commentPattern.ReplaceAllString(text, "")
	text = r.extractNoparse(text)
	return r.render(text, ctx, depth)
}

// render runs the block, conditional, variable and callback passes in order.
func (r *run) render(text string, ctx any, depth int) (string, error) {
	if depth > r.p.config.MaxDepth {
		return text, &RecursionLimitError{Limit: r.p.config.MaxDepth, Near: excerpt(text)}
	}
	text, err := r.extractBlocks(text)
	if err != nil {
		return text, err
	}
	if text, err = r.resolveConditionals(text, ctx, depth); err != nil {
		return text, err
	}
	text = r.store.Inject(text, LoopedTags)
	if text, err = r.resolveVariables(text, ctx, depth); err != nil {
		return text, err
	}
	text = r.store.Inject(text, CallbackBlocks)
	return r.resolveCallbacks(text, ctx, depth)
}

func (r *run) extractNoparse(text string) string {
	matches := noparsePattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text
	}
	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(text[last:m[0]])
		b.WriteString(r.noparse.Extract(Noparse, text[m[2]:m[3]]))
		last = m[1]
	}
	b.WriteString(text[last:])
	return b.String()
}

// extractBlocks sets every block aside: blocks whose opening tag carries
// key=value parameters and names a callback go to CallbackBlocks, the rest to
// LoopedTags.
func (r *run) extractBlocks(text string) (string, error) {
	tags := r.p.ScanTags(text)
	if len(tags) == 0 {
		return text, nil
	}
	var b strings.Builder
	last := 0
	for i := 0; i < len(tags); i++ {
		t := tags[i]
		if t.Closing {
			return text, &StructuralError{Tag: t.Raw, Msg: "closing tag without an open block"}
		}
		if !t.opensBlock() {
			continue
		}
		j := matchClose(tags, i)
		if j < 0 {
			continue
		}
		category := LoopedTags
		if hasParams(t.Params) && r.deferrable(t.Name) {
			category = CallbackBlocks
		}
		b.WriteString(text[last:t.Start])
		b.WriteString(r.store.Extract(category, text[t.Start:tags[j].End]))
		last = tags[j].End
		i = j
	}
	b.WriteString(text[last:])
	return b.String(), nil
}

func excerpt(text string) string {
	const limit = 40
	text = strings.TrimSpace(text)
	if len(text) > limit {
		return text[:limit] + "..."
	}
	return text
}
