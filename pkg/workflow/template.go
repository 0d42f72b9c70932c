package workflow

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Context is the variable scope substituted into a webhook node's url,
// headers, and body (spec.md §4.6 step 1).
type Context map[string]any

// dottedPathRE matches ${dotted.path} lookups.
var dottedPathRE = regexp.MustCompile(`\$\{([a-zA-Z0-9_.\[\]]+)\}`)

// expressionRE matches $(expression) arithmetic/comparison/concatenation forms.
var expressionRE = regexp.MustCompile(`\$\(([^)]*)\)`)

// Substitute applies both substitution forms spec.md §4.6 requires:
// ${dotted.path} for safe variable lookup, and $(expression) for
// arithmetic/comparison/string concatenation evaluated in a sandbox that
// exposes only ctx and no built-ins.
func Substitute(template string, ctx Context) string {
	out := dottedPathRE.ReplaceAllStringFunc(template, func(m string) string {
		path := dottedPathRE.FindStringSubmatch(m)[1]
		v, ok := lookupPath(ctx, path)
		if !ok {
			return m
		}
		return fmt.Sprint(v)
	})

	out = expressionRE.ReplaceAllStringFunc(out, func(m string) string {
		expr := expressionRE.FindStringSubmatch(m)[1]
		v, err := evalExpression(expr, ctx)
		if err != nil {
			return m
		}
		return v
	})

	return out
}

// lookupPath resolves a dotted path (a.b.c) against a Context, treating the
// context as a JSON-like tree of maps. Missing segments yield (nil, false).
func lookupPath(ctx Context, path string) (any, bool) {
	segments := strings.Split(path, ".")
	var cur any = map[string]any(ctx)
	for _, seg := range segments {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[seg]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// sandboxTokenRE recognizes only identifiers, numbers, strings, whitespace,
// and the arithmetic/comparison/concatenation operators the sandbox allows.
// Anything else (function calls, built-ins) is rejected outright.
var sandboxTokenRE = regexp.MustCompile(`^[\sa-zA-Z0-9_."'+\-*/<>=!]+$`)

// evalExpression evaluates a tiny, safe subset of expressions against ctx:
// string concatenation with +, numeric arithmetic (+ - * /), and comparisons
// (== != < > <= >=) between two operands. No built-ins or function calls are
// reachable — the grammar simply has no call syntax.
func evalExpression(expr string, ctx Context) (string, error) {
	expr = strings.TrimSpace(expr)
	if !sandboxTokenRE.MatchString(expr) {
		return "", fmt.Errorf("workflow: expression contains disallowed characters")
	}

	for _, op := range []string{"==", "!=", "<=", ">=", "<", ">"} {
		if idx := strings.Index(expr, op); idx > 0 {
			left := resolveOperand(strings.TrimSpace(expr[:idx]), ctx)
			right := resolveOperand(strings.TrimSpace(expr[idx+len(op):]), ctx)
			return strconv.FormatBool(compare(left, right, op)), nil
		}
	}

	for _, op := range []string{"+", "-", "*", "/"} {
		if idx := strings.LastIndex(expr, op); idx > 0 {
			leftRaw := strings.TrimSpace(expr[:idx])
			rightRaw := strings.TrimSpace(expr[idx+1:])
			left := resolveOperand(leftRaw, ctx)
			right := resolveOperand(rightRaw, ctx)

			if op == "+" {
				if lf, lok := toFloat(left); lok {
					if rf, rok := toFloat(right); rok {
						return formatFloat(lf + rf), nil
					}
				}
				return fmt.Sprint(left) + fmt.Sprint(right), nil
			}

			lf, lok := toFloat(left)
			rf, rok := toFloat(right)
			if !lok || !rok {
				return "", fmt.Errorf("workflow: non-numeric operands for %q", op)
			}
			switch op {
			case "-":
				return formatFloat(lf - rf), nil
			case "*":
				return formatFloat(lf * rf), nil
			case "/":
				if rf == 0 {
					return "", fmt.Errorf("workflow: division by zero")
				}
				return formatFloat(lf / rf), nil
			}
		}
	}

	return fmt.Sprint(resolveOperand(expr, ctx)), nil
}

func resolveOperand(s string, ctx Context) any {
	if strings.HasPrefix(s, "\"") && strings.HasSuffix(s, "\"") && len(s) >= 2 {
		return s[1 : len(s)-1]
	}
	if strings.HasPrefix(s, "'") && strings.HasSuffix(s, "'") && len(s) >= 2 {
		return s[1 : len(s)-1]
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if v, ok := lookupPath(ctx, s); ok {
		return v
	}
	return s
}

func compare(left, right any, op string) bool {
	if lf, lok := toFloat(left); lok {
		if rf, rok := toFloat(right); rok {
			switch op {
			case "==":
				return lf == rf
			case "!=":
				return lf != rf
			case "<":
				return lf < rf
			case ">":
				return lf > rf
			case "<=":
				return lf <= rf
			case ">=":
				return lf >= rf
			}
		}
	}
	ls, rs := fmt.Sprint(left), fmt.Sprint(right)
	switch op {
	case "==":
		return ls == rs
	case "!=":
		return ls != rs
	default:
		return ls < rs
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ExtractPath reads a dotted-with-array-index path (a.b[0].c) out of a JSON
// document, returning nil for any missing segment rather than an error
// (spec.md §4.6 step 6).
func ExtractPath(jsonDoc, path string) any {
	res := gjson.Get(jsonDoc, gjsonPath(path))
	if !res.Exists() {
		return nil
	}
	return res.Value()
}

// gjsonPath rewrites "a.b[0].c" into gjson's "a.b.0.c" dot-path form.
func gjsonPath(path string) string {
	replaced := strings.ReplaceAll(path, "[", ".")
	replaced = strings.ReplaceAll(replaced, "]", "")
	return replaced
}
