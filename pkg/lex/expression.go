package lex

import (
	"strings"
	"unicode"
)

type exprTokenKind int

const (
	tokEOF exprTokenKind = iota
	tokString
	tokNumber
	tokIdent
	tokOp
	tokLParen
	tokRParen
)

type exprToken struct {
	kind exprTokenKind
	text string
	pos  int
}

// operand is a typed expression value. present is false for names that did
// not resolve.
type operand struct {
	value   any
	present bool
}

// exprParser evaluates a conditional expression by recursive descent:
//
//	expr    := unary { ("and" | "or" | "&&" | "||") unary }
//	unary   := ("not" | "!") unary | compare
//	compare := operand [ ("==" | "!=" | ">" | "<" | ">=" | "<=") operand ]
//	operand := "(" expr ")" | "exists" path | string | number | path
//
// "and" and "or" share one precedence level and fold left to right.
type exprParser struct {
	src    string
	tokens []exprToken
	pos    int
	eval   func(name string) (operand, error)
}

func (e *exprParser) fail(pos int, msg string) *ExpressionError {
	return &ExpressionError{Expr: e.src, Pos: pos, Msg: msg}
}

func (e *exprParser) peek() exprToken {
	return e.tokens[e.pos]
}

func (e *exprParser) next() exprToken {
	t := e.tokens[e.pos]
	if t.kind != tokEOF {
		e.pos++
	}
	return t
}

func (e *exprParser) run() (bool, error) {
	if len(e.tokens) == 1 {
		return false, e.fail(0, "empty expression")
	}
	v, err := e.expr()
	if err != nil {
		return false, err
	}
	if t := e.peek(); t.kind != tokEOF {
		return false, e.fail(t.pos, "unexpected "+quoteToken(t))
	}
	return v.present && Truthy(v.value), nil
}

func (e *exprParser) expr() (operand, error) {
	left, err := e.unary()
	if err != nil {
		return operand{}, err
	}
	for {
		t := e.peek()
		var and bool
		switch {
		case t.kind == tokOp && t.text == "&&", t.kind == tokIdent && t.text == "and":
			and = true
		case t.kind == tokOp && t.text == "||", t.kind == tokIdent && t.text == "or":
			and = false
		default:
			return left, nil
		}
		e.next()
		right, err := e.unary()
		if err != nil {
			return operand{}, err
		}
		l, r := truth(left), truth(right)
		if and {
			left = operand{value: l && r, present: true}
		} else {
			left = operand{value: l || r, present: true}
		}
	}
}

func (e *exprParser) unary() (operand, error) {
	t := e.peek()
	if (t.kind == tokOp && t.text == "!") || (t.kind == tokIdent && t.text == "not") {
		e.next()
		v, err := e.unary()
		if err != nil {
			return operand{}, err
		}
		return operand{value: !truth(v), present: true}, nil
	}
	return e.compare()
}

func (e *exprParser) compare() (operand, error) {
	left, err := e.operand()
	if err != nil {
		return operand{}, err
	}
	t := e.peek()
	if t.kind != tokOp || !isComparison(t.text) {
		return left, nil
	}
	e.next()
	right, err := e.operand()
	if err != nil {
		return operand{}, err
	}
	return operand{value: compareOperands(t.text, left, right), present: true}, nil
}

func (e *exprParser) operand() (operand, error) {
	t := e.next()
	switch t.kind {
	case tokLParen:
		v, err := e.expr()
		if err != nil {
			return operand{}, err
		}
		if c := e.next(); c.kind != tokRParen {
			return operand{}, e.fail(c.pos, "expected )")
		}
		return v, nil
	case tokString:
		return operand{value: unquote(t.text), present: true}, nil
	case tokNumber:
		return operand{value: t.text, present: true}, nil
	case tokIdent:
		switch t.text {
		case "true":
			return operand{value: true, present: true}, nil
		case "false":
			return operand{value: false, present: true}, nil
		case "null":
			return operand{value: nil, present: true}, nil
		case "and", "or", "not":
			return operand{}, e.fail(t.pos, "missing operand before "+t.text)
		case "exists":
			path := e.next()
			if path.kind != tokIdent {
				return operand{}, e.fail(path.pos, "exists needs a variable name")
			}
			v, err := e.eval(path.text)
			if err != nil {
				return operand{}, err
			}
			return operand{value: v.present, present: true}, nil
		}
		return e.eval(t.text)
	case tokEOF:
		return operand{}, e.fail(t.pos, "unexpected end of expression")
	}
	return operand{}, e.fail(t.pos, "unexpected "+quoteToken(t))
}

func truth(v operand) bool {
	return v.present && Truthy(v.value)
}

func isComparison(op string) bool {
	switch op {
	case "==", "!=", ">", "<", ">=", "<=":
		return true
	}
	return false
}

// compareOperands compares numerically when both sides are numbers and as
// strings otherwise. A missing name equals only another missing name and is
// never ordered.
func compareOperands(op string, a, b operand) bool {
	if !a.present || !b.present {
		switch op {
		case "==":
			return !a.present && !b.present
		case "!=":
			return a.present || b.present
		}
		return false
	}
	if x, ok := Number(a.value); ok {
		if y, ok := Number(b.value); ok {
			return ordered(op, compareFloat(x, y))
		}
	}
	_, aBool := a.value.(bool)
	_, bBool := b.value.(bool)
	if aBool || bBool || a.value == nil || b.value == nil {
		if op != "==" && op != "!=" {
			return false
		}
		var equal bool
		if a.value == nil || b.value == nil {
			equal = a.value == nil && b.value == nil
		} else {
			equal = Truthy(a.value) == Truthy(b.value)
		}
		return (op == "==") == equal
	}
	return ordered(op, strings.Compare(Stringify(a.value), Stringify(b.value)))
}

func compareFloat(x, y float64) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

func ordered(op string, c int) bool {
	switch op {
	case "==":
		return c == 0
	case "!=":
		return c != 0
	case ">":
		return c > 0
	case "<":
		return c < 0
	case ">=":
		return c >= 0
	case "<=":
		return c <= 0
	}
	return false
}

func quoteToken(t exprToken) string {
	if t.kind == tokEOF {
		return "end of expression"
	}
	return "\"" + t.text + "\""
}

// lexExpression splits src into tokens. identChars are the characters besides
// letters, digits and underscores that may appear inside a name.
func lexExpression(src, identChars string) ([]exprToken, *ExpressionError) {
	var tokens []exprToken
	isIdent := func(r rune) bool {
		return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune(identChars, r)
	}
	rs := []rune(src)
	offset := func(i int) int { return len(string(rs[:i])) }
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '"' || r == '\'':
			j := i + 1
			for j < len(rs) && rs[j] != r {
				if rs[j] == '\\' {
					j++
				}
				j++
			}
			if j >= len(rs) {
				return nil, &ExpressionError{Expr: src, Pos: offset(i), Msg: "unterminated string"}
			}
			tokens = append(tokens, exprToken{kind: tokString, text: string(rs[i : j+1]), pos: offset(i)})
			i = j + 1
		case r == '(':
			tokens = append(tokens, exprToken{kind: tokLParen, text: "(", pos: offset(i)})
			i++
		case r == ')':
			tokens = append(tokens, exprToken{kind: tokRParen, text: ")", pos: offset(i)})
			i++
		case strings.ContainsRune("=!<>&|", r):
			j := i + 1
			for j < len(rs) && strings.ContainsRune("=&|", rs[j]) && j-i < 3 {
				j++
			}
			op := string(rs[i:j])
			switch op {
			case "===":
				op = "=="
			case "!==":
				op = "!="
			}
			switch op {
			case "==", "!=", ">", "<", ">=", "<=", "&&", "||", "!":
			default:
				return nil, &ExpressionError{Expr: src, Pos: offset(i), Msg: "unknown operator " + op}
			}
			tokens = append(tokens, exprToken{kind: tokOp, text: op, pos: offset(i)})
			i = j
		case (r == '-' || r == '+') && i+1 < len(rs) && unicode.IsDigit(rs[i+1]), unicode.IsDigit(r):
			j := i + 1
			for j < len(rs) && (unicode.IsDigit(rs[j]) || rs[j] == '.') {
				j++
			}
			if j < len(rs) && isIdent(rs[j]) && !unicode.IsDigit(rs[j]) {
				for j < len(rs) && isIdent(rs[j]) {
					j++
				}
				tokens = append(tokens, exprToken{kind: tokIdent, text: string(rs[i:j]), pos: offset(i)})
			} else {
				tokens = append(tokens, exprToken{kind: tokNumber, text: string(rs[i:j]), pos: offset(i)})
			}
			i = j
		case isIdent(r):
			j := i + 1
			for j < len(rs) && isIdent(rs[j]) {
				j++
			}
			tokens = append(tokens, exprToken{kind: tokIdent, text: string(rs[i:j]), pos: offset(i)})
			i = j
		default:
			return nil, &ExpressionError{Expr: src, Pos: offset(i), Msg: "unexpected character " + string(r)}
		}
	}
	tokens = append(tokens, exprToken{kind: tokEOF, pos: len(src)})
	return tokens, nil
}
