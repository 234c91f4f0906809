package conditions

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/sgchris/greq-sub000/packages/core/parser"
	greqhttp "github.com/sgchris/greq-sub000/packages/http"
)

// Evaluate computes one boolean for a condition against an observed
// response. Comment conditions always hold. The raw comparison is XOR-ed
// with the condition's not flag.
func Evaluate(resp *greqhttp.Response, c *parser.Condition) bool {
	if c.IsComment {
		return true
	}

	actual := actualValue(resp, c.Key)
	expected := c.Value
	if !c.IsCaseSensitive {
		actual = strings.ToLower(actual)
		expected = strings.ToLower(expected)
	}

	return compare(actual, c.Operator, expected) != c.HasNot
}

func compare(actual string, op parser.Operator, expected string) bool {
	switch op {
	case parser.OpEquals:
		return actual == expected
	case parser.OpContains:
		return strings.Contains(actual, expected)
	case parser.OpStartsWith:
		return strings.HasPrefix(actual, expected)
	case parser.OpEndsWith:
		return strings.HasSuffix(actual, expected)
	case parser.OpMatchesRegex:
		re, err := regexp.Compile(expected)
		if err != nil {
			return false
		}
		return re.MatchString(actual)
	case parser.OpGreaterThan, parser.OpGreaterThanOrEqual,
		parser.OpLessThan, parser.OpLessThanOrEqual:
		return compareNumeric(actual, op, expected)
	case parser.OpExists:
		want, ok := parser.ParseBool(expected)
		if !ok {
			return false
		}
		return want == (actual != "")
	default:
		return false
	}
}

func compareNumeric(actual string, op parser.Operator, expected string) bool {
	a, errA := strconv.ParseFloat(strings.TrimSpace(actual), 64)
	b, errB := strconv.ParseFloat(strings.TrimSpace(expected), 64)
	if errA != nil || errB != nil {
		return false
	}
	switch op {
	case parser.OpGreaterThan:
		return a > b
	case parser.OpGreaterThanOrEqual:
		return a >= b
	case parser.OpLessThan:
		return a < b
	case parser.OpLessThanOrEqual:
		return a <= b
	}
	return false
}

// actualValue extracts the observed value a condition key refers to.
// Missing headers and JSON paths yield the empty string, so "exists: false"
// can assert absence.
func actualValue(resp *greqhttp.Response, key string) string {
	switch {
	case key == "status-code":
		return strconv.Itoa(resp.StatusCode)
	case key == "latency":
		return strconv.FormatInt(resp.DurationMs(), 10)
	case key == "response-body":
		return resp.BodyString()
	case strings.HasPrefix(key, "response-body."):
		return bodyPathValue(resp, key[len("response-body."):])
	case strings.HasPrefix(key, "headers."):
		return resp.Header(key[len("headers."):])
	}
	return ""
}

func bodyPathValue(resp *greqhttp.Response, path string) string {
	body := resp.BodyString()
	if !gjson.Valid(body) {
		return ""
	}
	result := gjson.Get(body, convertBracketNotation(path))
	if !result.Exists() {
		return ""
	}
	switch result.Type {
	case gjson.Null:
		return "null"
	case gjson.JSON:
		return result.Raw
	default:
		return result.String()
	}
}

var bracketIndexPattern = regexp.MustCompile(`\[(\d+)\]`)

// convertBracketNotation rewrites array indices to gjson dot form:
// "items[0].id" becomes "items.0.id".
func convertBracketNotation(path string) string {
	return strings.TrimPrefix(bracketIndexPattern.ReplaceAllString(path, ".$1"), ".")
}

// Describe renders a condition the way it was written, minus any leading
// "or" (the group report joins members with OR already).
func Describe(c *parser.Condition) string {
	if c.IsComment {
		return c.Key
	}
	var parts []string
	if c.HasNot {
		parts = append(parts, "not")
	}
	parts = append(parts, c.Key, c.Operator.String())
	if c.IsCaseSensitive {
		parts = append(parts, "case-sensitive")
	}
	return strings.Join(parts, " ") + ": " + c.Value
}

// EvaluateAll folds conditions into AND-ed groups, where a condition with
// the or flag joins the previous condition's group as an alternative. The
// assertion passes when every group has at least one satisfied member;
// each failing group contributes one OR-joined description.
func EvaluateAll(resp *greqhttp.Response, conds []*parser.Condition) (bool, []string) {
	type group struct {
		members   []*parser.Condition
		satisfied bool
	}

	var groups []*group
	for _, c := range conds {
		if c.IsComment {
			continue
		}
		ok := Evaluate(resp, c)
		if c.HasOr && len(groups) > 0 {
			g := groups[len(groups)-1]
			g.members = append(g.members, c)
			g.satisfied = g.satisfied || ok
		} else {
			groups = append(groups, &group{members: []*parser.Condition{c}, satisfied: ok})
		}
	}

	var failed []string
	for _, g := range groups {
		if g.satisfied {
			continue
		}
		descriptions := make([]string, len(g.members))
		for i, m := range g.members {
			descriptions[i] = Describe(m)
		}
		failed = append(failed, strings.Join(descriptions, " OR "))
	}
	return len(failed) == 0, failed
}
