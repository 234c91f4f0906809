package http

import (
	"strconv"
	"strings"
	"time"

	"github.com/sgchris/greq-sub000/packages/core/parser"
)

// Request is one outgoing HTTP call, fully resolved: placeholders are
// already substituted and the URL is absolute.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    string
	Timeout time.Duration
}

func NewRequest(method, requestURL string) *Request {
	return &Request{
		Method:  method,
		URL:     requestURL,
		Headers: make(map[string]string),
	}
}

func (r *Request) SetHeader(key, value string) *Request {
	r.Headers[key] = value
	return r
}

func (r *Request) SetBody(body string) *Request {
	r.Body = body
	return r
}

func (r *Request) SetTimeout(d time.Duration) *Request {
	r.Timeout = d
	return r
}

// BuildRequest composes the outgoing request from a resolved document: the
// scheme comes from is-http (https unless set), host and port from the Host
// header, and the path from the request line. An absolute URI in the
// request line is sent as-is.
func BuildRequest(doc *parser.Document) *Request {
	c := &doc.Content
	r := NewRequest(c.Method, buildURL(doc))
	for k, v := range c.Headers {
		// Host travels in the URL, not as a replayed header.
		if strings.EqualFold(k, "Host") {
			continue
		}
		r.SetHeader(k, v)
	}
	r.SetBody(c.Body)
	r.SetTimeout(doc.Header.Timeout)
	return r
}

func buildURL(doc *parser.Document) string {
	c := &doc.Content
	if strings.HasPrefix(c.URI, "http://") || strings.HasPrefix(c.URI, "https://") {
		return c.URI
	}

	scheme := "https"
	if doc.Header.IsHTTP {
		scheme = "http"
	}
	host := c.Hostname
	if c.CustomPort > 0 {
		host += ":" + strconv.Itoa(c.CustomPort)
	}
	path := c.URI
	if path == "" {
		path = "/"
	} else if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return scheme + "://" + host + path
}
