package parser

import "strconv"

// ErrorKind is the closed set of document format errors.
type ErrorKind int

const (
	TooFewSections ErrorKind = iota
	TooManySections
	LineHasNoColonSign
	UnknownHeader
	InvalidHeaderValue
	InvalidHttpMethod
	MissingUri
	InvalidHttpVersion
	InvalidHeaderLine
	MissingHost
	InvalidPort
	InvalidKey
	InvalidHeaderKey
)

func (k ErrorKind) String() string {
	switch k {
	case TooFewSections:
		return "too few sections"
	case TooManySections:
		return "too many sections"
	case LineHasNoColonSign:
		return "line has no colon sign"
	case UnknownHeader:
		return "unknown header"
	case InvalidHeaderValue:
		return "invalid header value"
	case InvalidHttpMethod:
		return "invalid http method"
	case MissingUri:
		return "missing uri"
	case InvalidHttpVersion:
		return "invalid http version"
	case InvalidHeaderLine:
		return "invalid header line"
	case MissingHost:
		return "missing host"
	case InvalidPort:
		return "invalid port"
	case InvalidKey:
		return "invalid key"
	case InvalidHeaderKey:
		return "invalid header key"
	default:
		return "unknown error"
	}
}

// ParseError is a format error attributable to one file and, when
// line-scoped, one 1-based line.
type ParseError struct {
	Kind    ErrorKind
	File    string
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	s := ""
	if e.File != "" {
		s = e.File
		if e.Line > 0 {
			s += ":" + strconv.Itoa(e.Line)
		}
		s += ": "
	} else if e.Line > 0 {
		s = "line " + strconv.Itoa(e.Line) + ": "
	}
	s += e.Kind.String()
	if e.Message != "" {
		s += ": " + e.Message
	}
	return s
}
