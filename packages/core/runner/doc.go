// Package runner orchestrates document execution: it resolves the
// dependency chain, substitutes placeholders, sends each request with retry
// and backoff, evaluates footer conditions, and folds dependency failures
// per the configured policy. Batches of unrelated files run concurrently as
// isolated instances of the per-file pipeline.
package runner
