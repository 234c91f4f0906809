package parser

import (
	"strings"
	"time"
)

const (
	// DefaultDelimiter separates the three document sections.
	DefaultDelimiter = byte('=')
	// DefaultHTTPVersion is used when the request line omits a version.
	DefaultHTTPVersion = "HTTP/1.1"
	// DefaultCommentMarker prefixes lines that are ignored everywhere.
	DefaultCommentMarker = "#"
)

// Document is the parsed representation of one request-definition file:
// execution metadata (header), the HTTP request (content) and the list of
// assertions (footer). Raw section text is retained for diagnostics.
type Document struct {
	Path    string
	Header  Header
	Content Content
	Footer  Footer
	Raw     RawSections
}

// RawSections holds the unparsed text of each section.
type RawSections struct {
	Header  string
	Content string
	Footer  string
}

// Header carries the execution metadata of a document.
type Header struct {
	Project                string
	IsHTTP                 bool
	Delimiter              byte
	Extends                string
	DependsOn              string
	NumberOfRetries        int
	Timeout                time.Duration
	AllowDependencyFailure bool
	ShowWarnings           *bool
}

// GetShowWarnings returns the show-warnings setting, defaulting to true.
func (h *Header) GetShowWarnings() bool {
	if h.ShowWarnings == nil {
		return true
	}
	return *h.ShowWarnings
}

// Content is the HTTP request half of a document. Hostname and CustomPort
// are extracted from the Host header; CustomPort is zero when the Host
// header names no port.
type Content struct {
	Method      string
	URI         string
	HTTPVersion string
	Hostname    string
	CustomPort  int
	Headers     map[string]string
	Body        string
}

// Header looks up a request header case-insensitively. Key case is
// preserved in the Headers map for replay.
func (c *Content) Header(key string) string {
	for k, v := range c.Headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

// Footer is the ordered list of assertion conditions.
type Footer struct {
	Conditions []*Condition
}

// Condition is one footer assertion line.
type Condition struct {
	Key             string
	Operator        Operator
	Value           string
	HasNot          bool
	HasOr           bool
	IsCaseSensitive bool
	IsComment       bool
	Line            int
}

// Operator is the closed set of condition comparison operators.
type Operator int

const (
	OpEquals Operator = iota
	OpContains
	OpStartsWith
	OpEndsWith
	OpMatchesRegex
	OpGreaterThan
	OpGreaterThanOrEqual
	OpLessThan
	OpLessThanOrEqual
	OpExists
)

func (op Operator) String() string {
	switch op {
	case OpEquals:
		return "equals"
	case OpContains:
		return "contains"
	case OpStartsWith:
		return "starts-with"
	case OpEndsWith:
		return "ends-with"
	case OpMatchesRegex:
		return "matches-regex"
	case OpGreaterThan:
		return "greater-than"
	case OpGreaterThanOrEqual:
		return "greater-than-or-equal"
	case OpLessThan:
		return "less-than"
	case OpLessThanOrEqual:
		return "less-than-or-equal"
	case OpExists:
		return "exists"
	default:
		return "unknown"
	}
}

// ParseOperator maps a footer token to its operator.
func ParseOperator(tok string) (Operator, bool) {
	switch tok {
	case "equals":
		return OpEquals, true
	case "contains":
		return OpContains, true
	case "starts-with":
		return OpStartsWith, true
	case "ends-with":
		return OpEndsWith, true
	case "matches-regex":
		return OpMatchesRegex, true
	case "greater-than":
		return OpGreaterThan, true
	case "greater-than-or-equal":
		return OpGreaterThanOrEqual, true
	case "less-than":
		return OpLessThan, true
	case "less-than-or-equal":
		return OpLessThanOrEqual, true
	case "exists":
		return OpExists, true
	}
	return 0, false
}

var validMethods = map[string]bool{
	"GET":     true,
	"POST":    true,
	"PUT":     true,
	"DELETE":  true,
	"HEAD":    true,
	"OPTIONS": true,
	"PATCH":   true,
	"TRACE":   true,
	"CONNECT": true,
}

// IsValidMethod reports whether m is in the fixed HTTP method set.
func IsValidMethod(m string) bool {
	return validMethods[m]
}

// ParseBool accepts true/yes/1 and false/no/0 case-insensitively.
func ParseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "1":
		return true, true
	case "false", "no", "0":
		return false, true
	}
	return false, false
}

// Validate checks the invariants that only hold on a complete document,
// after any inheritance chain has been merged: the request line, the Host
// header, and header-field combinations.
func (d *Document) Validate() error {
	if d.Header.AllowDependencyFailure && d.Header.DependsOn == "" {
		return &ParseError{
			Kind:    InvalidHeaderValue,
			File:    d.Path,
			Message: "allow-dependency-failure requires depends-on",
		}
	}
	if d.Content.URI == "" {
		return &ParseError{Kind: MissingUri, File: d.Path, Message: "request line has no URI"}
	}
	if strings.TrimSpace(d.Content.Header("Host")) == "" {
		return &ParseError{Kind: MissingHost, File: d.Path, Message: "Host header is missing or empty"}
	}
	return nil
}
