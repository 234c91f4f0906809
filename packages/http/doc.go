// Package http wraps the standard HTTP client into the transport
// collaborator the engine needs: send one resolved request, get back
// status, headers, body and elapsed time.
package http
