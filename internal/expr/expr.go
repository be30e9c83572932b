// Package expr evaluates the small arithmetic expressions typed into price
// and quantity fields, such as "3×2.5" or "12÷4+1".
package expr

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrEmpty is returned when nothing is left after sanitizing.
	ErrEmpty = errors.New("empty expression")

	// ErrSyntax is returned for operators or numbers in the wrong place.
	ErrSyntax = errors.New("malformed expression")

	// ErrDivisionByZero is returned when a divisor evaluates to zero.
	ErrDivisionByZero = errors.New("division by zero")
)

// Evaluator adapts Evaluate to the unitprice.Evaluator interface.
type Evaluator struct{}

func (Evaluator) Evaluate(text string) (float64, error) { return Evaluate(text) }

// Sanitize maps × and ÷ to * and / and strips every character outside
// [0-9+-*/.].
func Sanitize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case r == '×':
			b.WriteByte('*')
		case r == '÷':
			b.WriteByte('/')
		case r >= '0' && r <= '9', r == '+', r == '-', r == '*', r == '/', r == '.':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Evaluate sanitizes text and computes its value with the usual precedence:
// unary sign, then * and /, then + and -, all left-associative.
func Evaluate(text string) (float64, error) {
	src := Sanitize(text)
	if src == "" {
		return 0, ErrEmpty
	}

	p := &parser{src: src}
	v, err := p.expr()
	if err != nil {
		return 0, err
	}
	if p.pos != len(p.src) {
		return 0, fmt.Errorf("%w: unexpected %q at %d", ErrSyntax, p.src[p.pos], p.pos)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: result is not finite", ErrSyntax)
	}
	return v, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) peek() byte {
	if p.pos < len(p.src) {
		return p.src[p.pos]
	}
	return 0
}

func (p *parser) expr() (float64, error) {
	left, err := p.term()
	if err != nil {
		return 0, err
	}
	for {
		op := p.peek()
		if op != '+' && op != '-' {
			return left, nil
		}
		p.pos++
		right, err := p.term()
		if err != nil {
			return 0, err
		}
		if op == '+' {
			left += right
		} else {
			left -= right
		}
	}
}

func (p *parser) term() (float64, error) {
	left, err := p.unary()
	if err != nil {
		return 0, err
	}
	for {
		op := p.peek()
		if op != '*' && op != '/' {
			return left, nil
		}
		p.pos++
		right, err := p.unary()
		if err != nil {
			return 0, err
		}
		if op == '*' {
			left *= right
			continue
		}
		if right == 0 {
			return 0, ErrDivisionByZero
		}
		left /= right
	}
}

func (p *parser) unary() (float64, error) {
	switch p.peek() {
	case '-':
		p.pos++
		v, err := p.unary()
		return -v, err
	case '+':
		p.pos++
		return p.unary()
	}
	return p.number()
}

func (p *parser) number() (float64, error) {
	start := p.pos
	dots := 0
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == '.' {
			dots++
		} else if c < '0' || c > '9' {
			break
		}
		p.pos++
	}
	lit := p.src[start:p.pos]
	if lit == "" {
		if start == len(p.src) {
			return 0, fmt.Errorf("%w: unexpected end", ErrSyntax)
		}
		return 0, fmt.Errorf("%w: unexpected %q at %d", ErrSyntax, p.src[start], start)
	}
	if dots > 1 || lit == "." {
		return 0, fmt.Errorf("%w: bad number %q", ErrSyntax, lit)
	}
	v, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad number %q", ErrSyntax, lit)
	}
	return v, nil
}
