package runner

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/sgchris/greq-sub000/packages/conditions"
	"github.com/sgchris/greq-sub000/packages/core/graph"
	"github.com/sgchris/greq-sub000/packages/core/parser"
	greqhttp "github.com/sgchris/greq-sub000/packages/http"
	"github.com/sgchris/greq-sub000/packages/placeholder"
)

const (
	// DefaultConcurrency bounds concurrent top-level executions in a batch.
	DefaultConcurrency = 5
	// retryBaseDelay seeds the exponential backoff between send attempts.
	retryBaseDelay = 100 * time.Millisecond
)

// Config carries the runner settings shared by every execution.
type Config struct {
	Timeout        time.Duration
	FollowRedirect bool
	ValidateSSL    bool
	Proxy          string
	DefaultHeaders map[string]string
	CommentMarker  string
	Concurrency    int
	Rate           float64 // requests per second across the batch, 0 = unlimited
}

// WarnFunc receives non-fatal diagnostics such as dependency-failed
// substitutions.
type WarnFunc func(format string, args ...any)

// Runner drives the per-file pipeline: resolve the dependency chain,
// substitute placeholders, send, evaluate conditions, and fold partial
// failures per the configured policy.
type Runner struct {
	client   *greqhttp.Client
	loader   *graph.Loader
	config   *Config
	limiter  *rate.Limiter
	warnFunc WarnFunc
}

func NewRunner(cfg *Config) *Runner {
	if cfg == nil {
		cfg = &Config{FollowRedirect: true, ValidateSSL: true}
	}

	clientOpts := []greqhttp.ClientOption{
		greqhttp.WithFollowRedirects(cfg.FollowRedirect),
		greqhttp.WithValidateSSL(cfg.ValidateSSL),
	}
	if cfg.Timeout > 0 {
		clientOpts = append(clientOpts, greqhttp.WithTimeout(cfg.Timeout))
	}
	if cfg.Proxy != "" {
		clientOpts = append(clientOpts, greqhttp.WithProxy(cfg.Proxy))
	}
	if len(cfg.DefaultHeaders) > 0 {
		clientOpts = append(clientOpts, greqhttp.WithDefaultHeaders(cfg.DefaultHeaders))
	}

	var parserOpts []parser.Option
	if cfg.CommentMarker != "" {
		parserOpts = append(parserOpts, parser.WithCommentMarker(cfg.CommentMarker))
	}

	var limiter *rate.Limiter
	if cfg.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Rate), 1)
	}

	return &Runner{
		client:  greqhttp.NewClient(clientOpts...),
		loader:  graph.NewLoader(parser.New(parserOpts...)),
		config:  cfg,
		limiter: limiter,
	}
}

// SetWarnFunc routes warnings (safe to set once, before executing).
func (r *Runner) SetWarnFunc(fn WarnFunc) {
	r.warnFunc = fn
}

func (r *Runner) warn(format string, args ...any) {
	if r.warnFunc != nil {
		r.warnFunc(format, args...)
	}
}

// ExecutionResult is the outcome for one requested file. It is created once
// per execution and never mutated after return.
type ExecutionResult struct {
	ID               string
	Path             string
	Success          bool
	Response         *greqhttp.Response
	FailedConditions []string
	FailedDependency string
	Err              error
	Duration         time.Duration
}

// Execute runs one file and its dependency chain. Dependencies run strictly
// before dependents; each dependency's captured response becomes the
// interpolation context of the file that depends on it.
func (r *Runner) Execute(ctx context.Context, path string) *ExecutionResult {
	result := &ExecutionResult{ID: uuid.New().String(), Path: path}
	start := time.Now()
	defer func() { result.Duration = time.Since(start) }()

	chain, err := r.loader.ResolveOrder(path)
	if err != nil {
		result.Err = err
		return result
	}

	// Response cache and failure set for this chain. The cache is
	// append-only: there is no way to overwrite or remove an entry.
	cache := make(map[string]*greqhttp.Response, len(chain))
	failed := make(map[string]bool)

	for i, file := range chain {
		doc := file.Document
		isTarget := i == len(chain)-1

		resp, failure := r.executeFile(ctx, chain, i, cache, failed)
		if failure != nil {
			if isTarget {
				result.Err = failure
				return result
			}
			// Intermediate failure: the dependent decides whether the
			// chain survives.
			dependent := chain[i+1].Document
			if dependent.Header.AllowDependencyFailure {
				failed[file.Path] = true
				continue
			}
			result.FailedDependency = file.Path
			result.Err = fmt.Errorf("dependency %s failed: %w", file.Path, failure)
			return result
		}

		passed, failures := conditions.EvaluateAll(resp, doc.Footer.Conditions)
		if isTarget {
			result.Response = resp
			result.Success = passed
			result.FailedConditions = failures
			return result
		}
		if !passed {
			dependent := chain[i+1].Document
			if dependent.Header.AllowDependencyFailure {
				failed[file.Path] = true
				continue
			}
			result.FailedDependency = file.Path
			result.Err = fmt.Errorf("dependency %s failed: %s", file.Path, failures[0])
			return result
		}
		cache[file.Path] = resp
	}
	return result
}

// executeFile substitutes, sends and returns the response for one chain
// member, or the failure that kept it from producing one.
func (r *Runner) executeFile(
	ctx context.Context,
	chain []*graph.ResolvedFile,
	i int,
	cache map[string]*greqhttp.Response,
	failed map[string]bool,
) (*greqhttp.Response, error) {
	file := chain[i]
	doc := file.Document

	var opts []placeholder.Option
	if doc.Header.DependsOn != "" && i > 0 {
		depPath := chain[i-1].Path
		if failed[depPath] {
			opts = append(opts, placeholder.WithFailedDependency())
			if doc.Header.GetShowWarnings() {
				opts = append(opts, placeholder.WithWarnFunc(placeholder.WarnFunc(r.warn)))
			}
		} else {
			opts = append(opts, placeholder.WithDependency(cache[depPath]))
		}
	}
	engine := placeholder.New(file.Path, opts...)

	sub, err := substituteDocument(engine, doc)
	if err != nil {
		return nil, err
	}

	req := greqhttp.BuildRequest(sub)
	return r.send(ctx, req, doc.Header.NumberOfRetries)
}

// send issues the request with up to retries+1 attempts and exponential
// backoff. Only transport errors are retried; the last one surfaces.
func (r *Runner) send(ctx context.Context, req *greqhttp.Request, retries int) (*greqhttp.Response, error) {
	attempts := retries + 1
	var resp *greqhttp.Response
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if r.limiter != nil {
			if werr := r.limiter.Wait(ctx); werr != nil {
				return nil, werr
			}
		}
		resp, err = r.client.Do(ctx, req)
		if err == nil {
			return resp, nil
		}
		if attempt < attempts {
			backoff := retryBaseDelay * (1 << (attempt - 1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return nil, err
}

// substituteDocument rewrites the textual request fields and condition
// values, leaving the original document untouched.
func substituteDocument(engine *placeholder.Engine, doc *parser.Document) (*parser.Document, error) {
	sub := *doc
	sub.Content.Headers = make(map[string]string, len(doc.Content.Headers))
	sub.Footer.Conditions = make([]*parser.Condition, len(doc.Footer.Conditions))

	uri, err := engine.Substitute("uri", doc.Content.URI)
	if err != nil {
		return nil, err
	}
	sub.Content.URI = uri

	for k, v := range doc.Content.Headers {
		value, err := engine.Substitute("header "+k, v)
		if err != nil {
			return nil, err
		}
		sub.Content.Headers[k] = value
	}

	body, err := engine.Substitute("body", doc.Content.Body)
	if err != nil {
		return nil, err
	}
	sub.Content.Body = body

	// The Host header may carry placeholders, so hostname and port are
	// re-derived from the substituted value.
	if host := strings.TrimSpace(sub.Content.Header("Host")); host != "" {
		hostname, port, err := parser.SplitHostPort(host)
		if err != nil {
			return nil, err
		}
		sub.Content.Hostname = hostname
		sub.Content.CustomPort = port
	}

	for i, c := range doc.Footer.Conditions {
		value, err := engine.Substitute("condition "+c.Key, c.Value)
		if err != nil {
			return nil, err
		}
		cc := *c
		cc.Value = value
		sub.Footer.Conditions[i] = &cc
	}
	return &sub, nil
}

// ExecuteAll runs a batch of independently requested files concurrently,
// each as an isolated instance of the per-file state machine. Results keep
// the order of the input paths.
func (r *Runner) ExecuteAll(ctx context.Context, paths []string) []*ExecutionResult {
	concurrency := r.config.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	results := make([]*ExecutionResult, len(paths))
	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency)

	for i, path := range paths {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, p string) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = r.Execute(ctx, p)
		}(i, path)
	}

	wg.Wait()
	return results
}
