package lex

import (
	"strings"
)

type condBranch struct {
	keyword string
	expr    string
	raw     string
	body    []condNode
}

// condNode is either a run of text or a complete if/unless chain.
type condNode struct {
	text  string
	chain []condBranch
}

type condParser struct {
	text string
	tags []Tag
	i    int
	pos  int
}

// parseConditionals builds the branch tree for the conditional tags in text.
func parseConditionals(text string, tags []Tag) ([]condNode, error) {
	c := &condParser{text: text, tags: tags}
	nodes, err := c.seq()
	if err != nil {
		return nil, err
	}
	if c.i < len(c.tags) {
		t := c.tags[c.i]
		return nil, &StructuralError{Tag: t.Raw, Msg: t.Name + " without an open if or unless"}
	}
	return nodes, nil
}

// seq collects nodes until a branch tag of the enclosing chain or the end of
// the text.
func (c *condParser) seq() ([]condNode, error) {
	var nodes []condNode
	for c.i < len(c.tags) {
		t := c.tags[c.i]
		if t.Start > c.pos {
			nodes = append(nodes, condNode{text: c.text[c.pos:t.Start]})
		}
		c.pos = t.Start
		if t.Name != "if" && t.Name != "unless" {
			return nodes, nil
		}
		c.i++
		c.pos = t.End
		chain, err := c.chain(t)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, condNode{chain: chain})
	}
	if c.pos < len(c.text) {
		nodes = append(nodes, condNode{text: c.text[c.pos:]})
		c.pos = len(c.text)
	}
	return nodes, nil
}

func (c *condParser) chain(open Tag) ([]condBranch, error) {
	branches := []condBranch{{keyword: open.Name, expr: open.Params, raw: open.Raw}}
	sawElse := false
	for {
		body, err := c.seq()
		if err != nil {
			return nil, err
		}
		branches[len(branches)-1].body = body
		if c.i >= len(c.tags) {
			return nil, &StructuralError{Tag: open.Raw, Msg: "missing endif"}
		}
		t := c.tags[c.i]
		c.i++
		c.pos = t.End
		switch t.Name {
		case "endif":
			return branches, nil
		case "else":
			if sawElse {
				return nil, &StructuralError{Tag: t.Raw, Msg: "second else in one chain"}
			}
			sawElse = true
			branches = append(branches, condBranch{keyword: "else", raw: t.Raw})
		default:
			if sawElse {
				return nil, &StructuralError{Tag: t.Raw, Msg: t.Name + " after else"}
			}
			branches = append(branches, condBranch{keyword: t.Name, expr: t.Params, raw: t.Raw})
		}
	}
}

// resolveConditionals replaces every conditional chain in text with the body
// of its first matching branch.
func (r *run) resolveConditionals(text string, ctx any, depth int) (string, error) {
	var tags []Tag
	for _, t := range r.p.ScanTags(text) {
		if t.Kind == TagConditional {
			tags = append(tags, t)
		}
	}
	if len(tags) == 0 {
		return text, nil
	}
	nodes, err := parseConditionals(text, tags)
	if err != nil {
		return text, err
	}
	var b strings.Builder
	if err = r.renderConditionals(&b, nodes, ctx, depth); err != nil {
		return text, err
	}
	return b.String(), nil
}

func (r *run) renderConditionals(b *strings.Builder, nodes []condNode, ctx any, depth int) error {
	for _, n := range nodes {
		if n.chain == nil {
			b.WriteString(n.text)
			continue
		}
		for _, br := range n.chain {
			if br.keyword == "else" {
				if err := r.renderConditionals(b, br.body, ctx, depth); err != nil {
					return err
				}
				break
			}
			ok, err := r.evaluate(br.expr, ctx, depth)
			if err != nil {
				if IsFatal(err) {
					return err
				}
				r.p.logger.Warn("Conditional expression failed", "tag", br.raw, "error", err)
				r.errs = append(r.errs, err)
				continue
			}
			if br.keyword == "unless" || br.keyword == "elseunless" {
				ok = !ok
			}
			if ok {
				if err = r.renderConditionals(b, br.body, ctx, depth); err != nil {
					return err
				}
				break
			}
		}
	}
	return nil
}

// evaluate resolves expr against ctx. Names containing the callback glue are
// rendered through the resolver when it knows them.
func (r *run) evaluate(expr string, ctx any, depth int) (bool, error) {
	tokens, lexErr := lexExpression(expr, r.p.config.ScopeGlue+r.p.config.CallbackGlue)
	if lexErr != nil {
		return false, lexErr
	}
	e := &exprParser{
		src:    expr,
		tokens: tokens,
		eval: func(name string) (operand, error) {
			if r.p.isCallbackName(name) {
				if _, ok := r.callback(name); !ok {
					return operand{}, nil
				}
				out, err := r.dispatch(name, Params{}, "", ctx, depth)
				if err != nil {
					return operand{}, err
				}
				return operand{value: out, present: true}, nil
			}
			v, ok := r.lookup(ctx, name)
			return operand{value: v, present: ok}, nil
		},
	}
	return e.run()
}
