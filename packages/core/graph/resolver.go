package graph

import (
	"path/filepath"

	"github.com/sgchris/greq-sub000/packages/core/parser"
)

// CycleError names both endpoints of the edge that closed a cycle.
type CycleError struct {
	Relation string // "extends" or "depends-on"
	From     string
	To       string
}

func (e *CycleError) Error() string {
	return "circular " + e.Relation + ": " + e.From + " -> " + e.To
}

// Loader reads documents from the filesystem, resolving extends chains and
// depends-on orderings over canonical paths.
type Loader struct {
	parser *parser.Parser
}

func NewLoader(p *parser.Parser) *Loader {
	if p == nil {
		p = parser.New()
	}
	return &Loader{parser: p}
}

// Canonical resolves relative segments and symlinks so that distinct
// textual paths naming the same file compare equal.
func Canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return filepath.Clean(abs), nil
}

// resolveRelative interprets a referenced path relative to the directory of
// the referencing file.
func resolveRelative(from, ref string) string {
	if filepath.IsAbs(ref) {
		return ref
	}
	return filepath.Join(filepath.Dir(from), ref)
}

// Load parses the file at path and merges its extends chain, repeatedly
// enriching with each base until the chain ends. The chain is cycle-checked
// against a per-chain visited set, and the merged document is validated.
func (l *Loader) Load(path string) (*parser.Document, error) {
	doc, _, err := l.load(path)
	return doc, err
}

// load additionally reports the canonical path of the file whose header
// declared the merged depends-on reference, so a relative reference
// inherited through extends resolves against the declaring file's
// directory, not the inheriting file's.
func (l *Loader) load(path string) (*parser.Document, string, error) {
	canonical, err := Canonical(path)
	if err != nil {
		return nil, "", err
	}
	doc, err := l.parser.ParseFile(canonical)
	if err != nil {
		return nil, "", err
	}

	depFrom := canonical
	visited := map[string]bool{canonical: true}
	current := canonical
	ref := doc.Header.Extends
	for ref != "" {
		baseCanonical, err := Canonical(resolveRelative(current, ref))
		if err != nil {
			return nil, "", err
		}
		if visited[baseCanonical] {
			return nil, "", &CycleError{Relation: "extends", From: current, To: baseCanonical}
		}
		visited[baseCanonical] = true

		base, err := l.parser.ParseFile(baseCanonical)
		if err != nil {
			return nil, "", err
		}
		if doc.Header.DependsOn == "" && base.Header.DependsOn != "" {
			depFrom = baseCanonical
		}
		doc.EnrichWith(base)
		current = baseCanonical
		ref = base.Header.Extends
	}

	if err := doc.Validate(); err != nil {
		return nil, "", err
	}
	return doc, depFrom, nil
}

// ResolvedFile pairs a canonical path with its loaded, merged document.
type ResolvedFile struct {
	Path     string
	Document *parser.Document
}

// ResolveOrder walks depends-on edges from the starting file and returns
// the files to execute, dependencies strictly before dependents, no path
// repeated. A target that is already pending closes a cycle.
func (l *Loader) ResolveOrder(start string) ([]*ResolvedFile, error) {
	var chain []*ResolvedFile
	visited := make(map[string]bool)

	current := start
	from := ""
	for {
		canonical, err := Canonical(current)
		if err != nil {
			return nil, err
		}
		if visited[canonical] {
			return nil, &CycleError{Relation: "depends-on", From: from, To: canonical}
		}
		visited[canonical] = true

		doc, depFrom, err := l.load(canonical)
		if err != nil {
			return nil, err
		}
		chain = append(chain, &ResolvedFile{Path: canonical, Document: doc})

		dep := doc.Header.DependsOn
		if dep == "" {
			break
		}
		from = canonical
		current = resolveRelative(depFrom, dep)
	}

	// reverse: the deepest dependency runs first
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}
