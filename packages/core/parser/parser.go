package parser

import (
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var httpVersionPattern = regexp.MustCompile(`^HTTP/\d\.\d$`)

// Parser splits a document into its three sections and parses each of them.
// A zero-configured parser uses "#" as the comment marker.
type Parser struct {
	commentMarker string
}

type Option func(*Parser)

// WithCommentMarker overrides the prefix of lines that are ignored
// everywhere, including when scanning for delimiter lines.
func WithCommentMarker(marker string) Option {
	return func(p *Parser) {
		if marker != "" {
			p.commentMarker = marker
		}
	}
}

func New(opts ...Option) *Parser {
	p := &Parser{commentMarker: DefaultCommentMarker}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseFile reads and parses one request-definition file. The returned
// document is structurally checked only; call Document.Validate once any
// inheritance chain has been merged.
func (p *Parser) ParseFile(path string) (*Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return p.Parse(string(content), path)
}

func (p *Parser) Parse(input, filename string) (*Document, error) {
	doc := &Document{Path: filename}
	doc.Header.Delimiter = DefaultDelimiter

	sections, err := p.splitSections(input, filename)
	if err != nil {
		return nil, err
	}
	doc.Raw = RawSections{
		Header:  sections[0].raw(),
		Content: sections[1].raw(),
		Footer:  sections[2].raw(),
	}

	if err := p.parseHeader(doc, sections[0]); err != nil {
		return nil, err
	}
	if err := p.parseContent(doc, sections[1]); err != nil {
		return nil, err
	}
	if err := p.parseFooter(doc, sections[2]); err != nil {
		return nil, err
	}
	return doc, nil
}

type section struct {
	start int // 1-based line number of the first line
	lines []string
}

func (s section) raw() string {
	return strings.Join(s.lines, "\n")
}

func (p *Parser) isComment(trimmed string) bool {
	return strings.HasPrefix(trimmed, p.commentMarker)
}

// isDelimiterLine reports whether the line consists solely of the delimiter
// character repeated at least four times, whitespace tolerated.
func isDelimiterLine(line string, delim byte) bool {
	count := 0
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case delim:
			count++
		case ' ', '\t':
		default:
			return false
		}
	}
	return count >= 4
}

func isAlphanumeric(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// splitSections cuts the input into header, content and footer. The
// delimiter character defaults to '=' and may be overridden by a
// "delimiter:" header line appearing before the first boundary.
func (p *Parser) splitSections(input, filename string) ([3]section, error) {
	var out [3]section
	delim := DefaultDelimiter

	var sections []section
	cur := section{start: 1}
	lines := strings.Split(input, "\n")
	for i, raw := range lines {
		line := strings.TrimRight(raw, "\r")
		trimmed := strings.TrimSpace(line)
		if !p.isComment(trimmed) {
			if isDelimiterLine(trimmed, delim) {
				sections = append(sections, cur)
				cur = section{start: i + 2}
				continue
			}
			if len(sections) == 0 {
				if key, value, ok := strings.Cut(trimmed, ":"); ok {
					if strings.EqualFold(strings.TrimSpace(key), "delimiter") {
						v := strings.TrimSpace(value)
						if len(v) == 1 && !isAlphanumeric(v[0]) {
							delim = v[0]
						}
					}
				}
			}
		}
		cur.lines = append(cur.lines, line)
	}
	sections = append(sections, cur)

	switch {
	case len(sections) < 3:
		return out, &ParseError{
			Kind:    TooFewSections,
			File:    filename,
			Message: "expected 2 delimiter lines, found " + strconv.Itoa(len(sections)-1),
		}
	case len(sections) > 3:
		return out, &ParseError{
			Kind:    TooManySections,
			File:    filename,
			Message: "expected 2 delimiter lines, found " + strconv.Itoa(len(sections)-1),
		}
	}
	copy(out[:], sections)
	return out, nil
}

// parseHeader parses line-oriented "key: value" pairs. Keys are
// case-insensitive and the last occurrence of a duplicate key wins.
func (p *Parser) parseHeader(doc *Document, sec section) error {
	h := &doc.Header
	for i, line := range sec.lines {
		lineNum := sec.start + i
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || p.isComment(trimmed) {
			continue
		}
		key, value, ok := strings.Cut(trimmed, ":")
		if !ok {
			return &ParseError{
				Kind:    LineHasNoColonSign,
				File:    doc.Path,
				Line:    lineNum,
				Message: strconv.Quote(trimmed),
			}
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "project":
			h.Project = value
		case "is-http":
			b, ok := ParseBool(value)
			if !ok {
				return p.headerValueError(doc, lineNum, key, value, "expected true/yes/1 or false/no/0")
			}
			h.IsHTTP = b
		case "delimiter":
			if len(value) != 1 || isAlphanumeric(value[0]) {
				return p.headerValueError(doc, lineNum, key, value, "expected a single non-alphanumeric character")
			}
			h.Delimiter = value[0]
		case "extends":
			h.Extends = value
		case "depends-on":
			h.DependsOn = value
		case "number-of-retries":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return p.headerValueError(doc, lineNum, key, value, "expected a non-negative integer")
			}
			h.NumberOfRetries = n
		case "timeout":
			d, err := parseTimeout(value)
			if err != nil {
				return p.headerValueError(doc, lineNum, key, value, "expected a duration or milliseconds")
			}
			h.Timeout = d
		case "allow-dependency-failure":
			b, ok := ParseBool(value)
			if !ok {
				return p.headerValueError(doc, lineNum, key, value, "expected true/yes/1 or false/no/0")
			}
			h.AllowDependencyFailure = b
		case "show-warnings":
			b, ok := ParseBool(value)
			if !ok {
				return p.headerValueError(doc, lineNum, key, value, "expected true/yes/1 or false/no/0")
			}
			h.ShowWarnings = &b
		default:
			return &ParseError{
				Kind:    UnknownHeader,
				File:    doc.Path,
				Line:    lineNum,
				Message: strconv.Quote(key),
			}
		}
	}
	return nil
}

func (p *Parser) headerValueError(doc *Document, line int, key, value, hint string) error {
	return &ParseError{
		Kind:    InvalidHeaderValue,
		File:    doc.Path,
		Line:    line,
		Message: key + ": " + strconv.Quote(value) + ", " + hint,
	}
}

// parseTimeout accepts a Go duration string or a bare integer meaning
// milliseconds.
func parseTimeout(value string) (time.Duration, error) {
	if ms, err := strconv.Atoi(value); err == nil {
		if ms < 0 {
			return 0, strconv.ErrRange
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, strconv.ErrRange
	}
	return d, nil
}

// parseContent parses the request line, the request headers up to the first
// blank line, and the body after it. An empty content section is tolerated:
// documents in an inheritance chain may leave the request to their base.
func (p *Parser) parseContent(doc *Document, sec section) error {
	c := &doc.Content

	i := 0
	for ; i < len(sec.lines); i++ {
		trimmed := strings.TrimSpace(sec.lines[i])
		if trimmed == "" || p.isComment(trimmed) {
			continue
		}
		if err := p.parseRequestLine(doc, trimmed, sec.start+i); err != nil {
			return err
		}
		i++
		break
	}

	// headers until the first blank line
	for ; i < len(sec.lines); i++ {
		lineNum := sec.start + i
		trimmed := strings.TrimSpace(sec.lines[i])
		if trimmed == "" {
			i++
			break
		}
		if p.isComment(trimmed) {
			continue
		}
		key, value, ok := strings.Cut(trimmed, ":")
		if !ok {
			return &ParseError{
				Kind:    InvalidHeaderLine,
				File:    doc.Path,
				Line:    lineNum,
				Message: strconv.Quote(trimmed),
			}
		}
		if c.Headers == nil {
			c.Headers = make(map[string]string)
		}
		c.Headers[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	// body: everything after the first blank line
	var body []string
	for ; i < len(sec.lines); i++ {
		line := sec.lines[i]
		if p.isComment(strings.TrimSpace(line)) {
			continue
		}
		body = append(body, line)
	}
	for len(body) > 0 && strings.TrimSpace(body[len(body)-1]) == "" {
		body = body[:len(body)-1]
	}
	c.Body = strings.Join(body, "\n")

	if host := strings.TrimSpace(c.Header("Host")); host != "" {
		return p.parseHost(doc, host)
	}
	return nil
}

func (p *Parser) parseRequestLine(doc *Document, line string, lineNum int) error {
	c := &doc.Content
	fields := strings.Fields(line)

	method := fields[0]
	if !IsValidMethod(method) {
		return &ParseError{
			Kind:    InvalidHttpMethod,
			File:    doc.Path,
			Line:    lineNum,
			Message: strconv.Quote(method),
		}
	}
	c.Method = method

	if len(fields) < 2 {
		return &ParseError{
			Kind:    MissingUri,
			File:    doc.Path,
			Line:    lineNum,
			Message: "request line has no URI",
		}
	}
	c.URI = fields[1]

	c.HTTPVersion = DefaultHTTPVersion
	if len(fields) >= 3 {
		if !httpVersionPattern.MatchString(fields[2]) {
			return &ParseError{
				Kind:    InvalidHttpVersion,
				File:    doc.Path,
				Line:    lineNum,
				Message: strconv.Quote(fields[2]),
			}
		}
		c.HTTPVersion = fields[2]
	}
	return nil
}

// parseHost splits "hostname[:port]" out of the Host header value.
func (p *Parser) parseHost(doc *Document, host string) error {
	hostname, port, err := SplitHostPort(host)
	if err != nil {
		if perr, ok := err.(*ParseError); ok {
			perr.File = doc.Path
		}
		return err
	}
	doc.Content.Hostname = hostname
	doc.Content.CustomPort = port
	return nil
}

// SplitHostPort splits a "hostname[:port]" Host value. The port, when
// present, must be in 1..65535. Callers that substitute placeholders into
// the Host header re-derive hostname and port through this function.
func SplitHostPort(host string) (string, int, error) {
	idx := strings.LastIndexByte(host, ':')
	if idx < 0 {
		return host, 0, nil
	}
	portStr := host[idx+1:]
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, &ParseError{
			Kind:    InvalidPort,
			Message: strconv.Quote(portStr),
		}
	}
	return host[:idx], port, nil
}

// parseFooter parses each non-blank line into one condition. Comment lines
// are retained as always-true comment conditions so a documented line stays
// visible in results.
func (p *Parser) parseFooter(doc *Document, sec section) error {
	for i, line := range sec.lines {
		lineNum := sec.start + i
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if p.isComment(trimmed) {
			doc.Footer.Conditions = append(doc.Footer.Conditions, &Condition{
				Key:       trimmed,
				IsComment: true,
				Line:      lineNum,
			})
			continue
		}
		cond, err := p.parseCondition(doc, trimmed, lineNum)
		if err != nil {
			return err
		}
		doc.Footer.Conditions = append(doc.Footer.Conditions, cond)
	}
	return nil
}

// parseCondition parses "[or] [not] key operator [case-sensitive]: value".
// The "or" token may only appear first; "not" at most once.
func (p *Parser) parseCondition(doc *Document, line string, lineNum int) (*Condition, error) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return nil, &ParseError{
			Kind:    LineHasNoColonSign,
			File:    doc.Path,
			Line:    lineNum,
			Message: strconv.Quote(line),
		}
	}
	cond := &Condition{
		Value: strings.TrimSpace(line[idx+1:]),
		Line:  lineNum,
	}

	tokens := strings.Fields(line[:idx])
	i := 0
	if i < len(tokens) && tokens[i] == "or" {
		cond.HasOr = true
		i++
	}
	if i < len(tokens) && tokens[i] == "not" {
		cond.HasNot = true
		i++
	}
	if i >= len(tokens) {
		return nil, p.keyError(doc, lineNum, line, "missing condition key")
	}

	key := tokens[i]
	i++
	if err := p.validateKey(doc, lineNum, key); err != nil {
		return nil, err
	}
	cond.Key = key

	if i >= len(tokens) {
		return nil, p.keyError(doc, lineNum, line, "missing operator after "+strconv.Quote(key))
	}
	op, ok := ParseOperator(tokens[i])
	if !ok {
		return nil, p.keyError(doc, lineNum, line, "unknown operator "+strconv.Quote(tokens[i]))
	}
	cond.Operator = op
	i++

	if i < len(tokens) && tokens[i] == "case-sensitive" {
		cond.IsCaseSensitive = true
		i++
	}
	if i < len(tokens) {
		return nil, p.keyError(doc, lineNum, line, "unexpected token "+strconv.Quote(tokens[i]))
	}
	return cond, nil
}

func (p *Parser) validateKey(doc *Document, lineNum int, key string) error {
	switch {
	case key == "status-code", key == "latency", key == "response-body":
		return nil
	case strings.HasPrefix(key, "response-body."):
		return nil
	case key == "headers" || strings.HasPrefix(key, "headers."):
		name := strings.TrimPrefix(key, "headers")
		name = strings.TrimPrefix(name, ".")
		if name == "" || strings.Contains(name, ".") {
			return &ParseError{
				Kind:    InvalidHeaderKey,
				File:    doc.Path,
				Line:    lineNum,
				Message: strconv.Quote(key),
			}
		}
		return nil
	}
	return &ParseError{
		Kind:    InvalidKey,
		File:    doc.Path,
		Line:    lineNum,
		Message: strconv.Quote(key) + ` (response header conditions use the "headers." prefix)`,
	}
}

func (p *Parser) keyError(doc *Document, lineNum int, line, msg string) error {
	return &ParseError{
		Kind:    InvalidKey,
		File:    doc.Path,
		Line:    lineNum,
		Message: msg + " in " + strconv.Quote(line),
	}
}
