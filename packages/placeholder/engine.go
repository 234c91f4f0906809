package placeholder

import (
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	greqhttp "github.com/sgchris/greq-sub000/packages/http"
)

const (
	environmentPrefix = "environment."
	dependencyPrefix  = "dependency."
	depPrefix         = "dep."
)

// Error is an unresolvable placeholder reference, carrying the file and the
// field where the reference appears.
type Error struct {
	File    string
	Field   string
	Path    string
	Message string
}

func (e *Error) Error() string {
	s := "cannot resolve $(" + e.Path + ")"
	if e.File != "" {
		s += " in " + e.File
	}
	if e.Field != "" {
		s += " (" + e.Field + ")"
	}
	if e.Message != "" {
		s += ": " + e.Message
	}
	return s
}

// WarnFunc receives warnings such as dependency-failed substitutions.
type WarnFunc func(format string, args ...any)

// Engine rewrites $(...) references in the textual fields of one document.
// Dependency references resolve against the captured upstream response;
// environment references against the process environment.
type Engine struct {
	file          string
	depResponse   *greqhttp.Response
	hasDependency bool
	depFailed     bool
	warnFunc      WarnFunc
	warned        bool
}

type Option func(*Engine)

// WithDependency attaches the captured response of the document's
// depends-on target.
func WithDependency(resp *greqhttp.Response) Option {
	return func(e *Engine) {
		e.hasDependency = true
		e.depResponse = resp
	}
}

// WithFailedDependency marks the depends-on target as failed: every
// dependency reference substitutes to the empty string instead of erroring.
func WithFailedDependency() Option {
	return func(e *Engine) {
		e.hasDependency = true
		e.depFailed = true
	}
}

func WithWarnFunc(fn WarnFunc) Option {
	return func(e *Engine) {
		e.warnFunc = fn
	}
}

func New(file string, opts ...Option) *Engine {
	e := &Engine{file: file}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Substitute rewrites every unescaped $(path) reference in text. The field
// name only labels errors. A reference preceded by an odd number of
// backslashes is escaped: it is emitted literally with the escaping
// backslash dropped. An even count leaves the reference unescaped.
func (e *Engine) Substitute(field, text string) (string, error) {
	if !strings.Contains(text, "$(") {
		return text, nil
	}

	var b strings.Builder
	rest := text
	for {
		idx := strings.Index(rest, "$(")
		if idx < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		closing := strings.IndexByte(rest[idx:], ')')
		if closing < 0 {
			// unterminated reference, emit as-is
			b.WriteString(rest)
			return b.String(), nil
		}
		closing += idx

		backslashes := 0
		for backslashes < idx && rest[idx-backslashes-1] == '\\' {
			backslashes++
		}
		if backslashes%2 == 1 {
			b.WriteString(rest[:idx-1])
			b.WriteString(rest[idx : closing+1])
			rest = rest[closing+1:]
			continue
		}

		path := rest[idx+2 : closing]
		value, err := e.resolve(field, path)
		if err != nil {
			return "", err
		}
		b.WriteString(rest[:idx])
		b.WriteString(value)
		rest = rest[closing+1:]
	}
}

func (e *Engine) resolve(field, path string) (string, error) {
	if strings.HasPrefix(path, environmentPrefix) {
		return e.resolveEnvironment(field, path)
	}

	var rest string
	switch {
	case strings.HasPrefix(path, dependencyPrefix):
		rest = path[len(dependencyPrefix):]
	case strings.HasPrefix(path, depPrefix):
		rest = path[len(depPrefix):]
	default:
		return "", e.errorf(field, path, "unknown placeholder root")
	}

	if !e.hasDependency {
		return "", e.errorf(field, path, "document declares no depends-on")
	}
	if e.depFailed {
		if !e.warned {
			e.warned = true
			e.warn("dependency of %s failed, substituting empty values", e.file)
		}
		return "", nil
	}
	return e.resolveResponse(field, path, rest)
}

func (e *Engine) resolveEnvironment(field, path string) (string, error) {
	name := path[len(environmentPrefix):]
	if name == "" {
		return "", e.errorf(field, path, "empty environment variable name")
	}
	value, ok := os.LookupEnv(name)
	if !ok {
		return "", e.errorf(field, path, "environment variable is not set")
	}
	return value, nil
}

func (e *Engine) resolveResponse(field, path, sub string) (string, error) {
	resp := e.depResponse
	switch {
	case sub == "status-code":
		return strconv.Itoa(resp.StatusCode), nil
	case sub == "latency":
		return strconv.FormatInt(resp.DurationMs(), 10), nil
	case sub == "response-body":
		return resp.BodyString(), nil
	case strings.HasPrefix(sub, "response-body."):
		return e.resolveBodyPath(field, path, sub[len("response-body."):])
	case sub == "headers":
		return serializeHeaders(resp.Headers), nil
	case strings.HasPrefix(sub, "headers."):
		// missing header resolves to empty, not an error
		return resp.Header(sub[len("headers."):]), nil
	}
	return "", e.errorf(field, path, "unknown response projection")
}

// resolveBodyPath navigates a dot/bracket JSON path into the dependency's
// body. Scalar leaves render in their natural string form; null renders as
// the literal "null".
func (e *Engine) resolveBodyPath(field, path, jsonPath string) (string, error) {
	body := e.depResponse.BodyString()
	if !gjson.Valid(body) {
		return "", e.errorf(field, path, "response body is not valid JSON")
	}
	result := gjson.Get(body, convertBracketNotation(jsonPath))
	if !result.Exists() {
		return "", e.errorf(field, path, "no such property or index in response body")
	}
	switch result.Type {
	case gjson.Null:
		return "null", nil
	case gjson.JSON:
		return result.Raw, nil
	default:
		return result.String(), nil
	}
}

var bracketIndexPattern = regexp.MustCompile(`\[(\d+)\]`)

// convertBracketNotation rewrites array indices to gjson dot form:
// "items[0].id" becomes "items.0.id".
func convertBracketNotation(path string) string {
	return strings.TrimPrefix(bracketIndexPattern.ReplaceAllString(path, ".$1"), ".")
}

// serializeHeaders renders the whole header map as sorted "name: value"
// lines, deterministic for assertions.
func serializeHeaders(headers map[string]string) string {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(headers[name])
	}
	return b.String()
}

func (e *Engine) errorf(field, path, message string) error {
	return &Error{File: e.file, Field: field, Path: path, Message: message}
}

func (e *Engine) warn(format string, args ...any) {
	if e.warnFunc != nil {
		e.warnFunc(format, args...)
	}
}
