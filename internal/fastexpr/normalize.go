// Package fastexpr repairs model-written alpha expressions before they are
// sent for simulation.
package fastexpr

import (
	"regexp"
	"strings"
)

// KeywordRule names a function whose last positional argument must be
// passed by keyword.
type KeywordRule struct {
	Func string `yaml:"func" json:"func"`
	Key  string `yaml:"key" json:"key"`
}

// DefaultRules are the operators the platform rejects without a keyword.
var DefaultRules = []KeywordRule{
	{Func: "winsorize", Key: "std="},
	{Func: "hump", Key: "hump="},
}

var separator = regexp.MustCompile(`;\s*`)

// Normalizer applies statement-separator and keyword-argument repair.
// The zero value uses no keyword rules; use NewNormalizer for the defaults.
type Normalizer struct {
	Rules []KeywordRule
}

// NewNormalizer returns a normalizer for rules, or DefaultRules when none
// are given.
func NewNormalizer(rules ...KeywordRule) *Normalizer {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &Normalizer{Rules: append([]KeywordRule(nil), rules...)}
}

// Normalize terminates every statement with exactly ";\n", applies the
// keyword rules and trims the result. It is idempotent.
func (n *Normalizer) Normalize(expr string) string {
	expr = strings.ReplaceAll(expr, "\n", "")
	expr = separator.ReplaceAllString(expr, ";\n")
	for _, rule := range n.Rules {
		expr = FixKeywordArg(expr, rule.Func, rule.Key)
	}
	return strings.TrimSpace(expr)
}

// Normalize runs the default normalizer.
func Normalize(expr string) string {
	return NewNormalizer().Normalize(expr)
}

// FixKeywordArg makes key (e.g. "std=") prefix the last top-level argument
// of every fn call in code, including calls nested in arguments. Calls with
// a single argument are left alone. An unbalanced call leaves code as is.
func FixKeywordArg(code, fn, key string) string {
	token := fn + "("
	start := indexCall(code, token)
	if start < 0 {
		return code
	}
	open := start + len(token)

	depth, comma, end := 0, -1, -1
scan:
	for i := open; i < len(code); i++ {
		switch code[i] {
		case '(':
			depth++
		case ')':
			if depth == 0 {
				end = i
				break scan
			}
			depth--
		case ',':
			if depth == 0 {
				comma = i
			}
		}
	}
	if end < 0 {
		return code
	}

	prefix := code[:start]
	suffix := FixKeywordArg(code[end+1:], fn, key)

	if comma < 0 {
		return prefix + token + FixKeywordArg(code[open:end], fn, key) + ")" + suffix
	}

	head := FixKeywordArg(code[open:comma], fn, key)
	last := code[comma+1 : end]
	if !strings.HasPrefix(strings.ReplaceAll(last, " ", ""), key) {
		last = " " + key + strings.Trim(last, " \t")
	}
	last = FixKeywordArg(last, fn, key)

	return prefix + token + head + "," + last + ")" + suffix
}

// indexCall finds token where it is not the tail of a longer identifier,
// so "my_hump(" does not match "hump(".
func indexCall(code, token string) int {
	from := 0
	for {
		i := strings.Index(code[from:], token)
		if i < 0 {
			return -1
		}
		i += from
		if i == 0 || !isIdentByte(code[i-1]) {
			return i
		}
		from = i + 1
	}
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '.' ||
		('a' <= c && c <= 'z') ||
		('A' <= c && c <= 'Z') ||
		('0' <= c && c <= '9')
}
