package http

import (
	"strings"
	"time"
)

// Response is the observed result of one request. Header keys are stored
// lower-cased. Immutable once captured; dependents share it by reference.
type Response struct {
	StatusCode   int
	ReasonPhrase string
	Headers      map[string]string
	Body         []byte
	Duration     time.Duration
}

func (r *Response) BodyString() string {
	return string(r.Body)
}

// Header looks up a response header case-insensitively. Missing headers
// yield the empty string.
func (r *Response) Header(key string) string {
	return r.Headers[strings.ToLower(key)]
}

func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

func (r *Response) DurationMs() int64 {
	return r.Duration.Milliseconds()
}
