package dsl

import (
	"fmt"
	"strings"

	"github.com/reoring/bitskema/internal/expr"
)

// alt is one alternative of a variant id pattern.
type alt struct {
	wildcard  bool
	ranged    bool
	inclusive bool
	lit       any
	lo, hi    any
}

// pattern selects a variant from the evaluated key. Supported forms:
//
//	5            literal (any CEL constant)
//	1 | 2 | 3    alternatives
//	1..=9, 1..9  inclusive and half-open integer ranges
//	_            wildcard
//	x if x > 9   binding with guard; x is visible to the guard and the
//	             variant's fields
//	pat if cond  any of the above with a guard
type pattern struct {
	src     string
	alts    []alt
	binding string
	guard   *expr.Program
}

// parsePattern returns the pattern and the guard source, which is compiled
// later in the variant's environment.
func parsePattern(src string) (pattern, string, error) {
	p := pattern{src: strings.TrimSpace(src)}
	head, guard, _ := strings.Cut(p.src, " if ")
	head, guard = strings.TrimSpace(head), strings.TrimSpace(guard)
	if head == "" {
		return p, "", fmt.Errorf("empty id pattern")
	}
	if head != "_" && expr.ValidName(head) == nil {
		p.binding = head
		return p, guard, nil
	}
	for _, part := range splitAlts(head) {
		a, err := parseAlt(part)
		if err != nil {
			return p, "", fmt.Errorf("id %q: %w", p.src, err)
		}
		p.alts = append(p.alts, a)
	}
	return p, guard, nil
}

func parseAlt(s string) (alt, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return alt{}, fmt.Errorf("empty alternative")
	}
	if s == "_" {
		return alt{wildcard: true}, nil
	}
	if s[0] != '"' && s[0] != '\'' {
		if lo, hi, ok := strings.Cut(s, "..="); ok {
			return rangeAlt(lo, hi, true)
		}
		if lo, hi, ok := strings.Cut(s, ".."); ok {
			return rangeAlt(lo, hi, false)
		}
	}
	v, err := expr.Constant(s)
	if err != nil {
		return alt{}, err
	}
	return alt{lit: v}, nil
}

func rangeAlt(loSrc, hiSrc string, inclusive bool) (alt, error) {
	lo, err := expr.Constant(loSrc)
	if err != nil {
		return alt{}, err
	}
	hi, err := expr.Constant(hiSrc)
	if err != nil {
		return alt{}, err
	}
	if _, ok := expr.Compare(lo, hi); !ok {
		return alt{}, fmt.Errorf("range bounds %v and %v must be integers", lo, hi)
	}
	return alt{ranged: true, inclusive: inclusive, lo: lo, hi: hi}, nil
}

// splitAlts splits on single '|' outside string literals; "||" is left to
// the expression language.
func splitAlts(s string) []string {
	var (
		out   []string
		quote rune
		start int
	)
	rs := []rune(s)
	for i, r := range rs {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case r == '|':
			if (i > 0 && rs[i-1] == '|') || (i+1 < len(rs) && rs[i+1] == '|') {
				continue
			}
			out = append(out, string(rs[start:i]))
			start = i + 1
		}
	}
	return append(out, string(rs[start:]))
}

// matches reports whether key satisfies the structural part of the pattern.
// The guard is evaluated by the caller.
func (p *pattern) matches(key any) bool {
	if p.binding != "" {
		return true
	}
	for _, a := range p.alts {
		switch {
		case a.wildcard:
			return true
		case a.ranged:
			lo, ok1 := expr.Compare(key, a.lo)
			hi, ok2 := expr.Compare(key, a.hi)
			if ok1 && ok2 && lo >= 0 && (hi < 0 || (a.inclusive && hi == 0)) {
				return true
			}
		default:
			if expr.Equal(key, a.lit) {
				return true
			}
		}
	}
	return false
}
