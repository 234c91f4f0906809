// Package placeholder resolves $(...) references in document fields from
// the process environment or from the response captured for the document's
// depends-on target, including dot/bracket JSON paths into the body.
package placeholder
