package chunker

import (
	"path/filepath"
	"strings"
	"sync"

	errors "github.com/Laisky/errors/v2"
	sitter "github.com/smacker/go-tree-sitter"
)

// LanguageSpec defines the tree-sitter grammar and query for a language.
type LanguageSpec struct {
	Language *sitter.Language
	// Query captures definitions with @chunk for the outer node
	// and @name for the identifier (optional).
	Query      string
	Extensions []string

	queryOnce sync.Once
	query     *sitter.Query
	queryErr  error
}

// compiledQuery compiles Query once; the compiled query is shared by all cursors.
func (s *LanguageSpec) compiledQuery() (*sitter.Query, error) {
	s.queryOnce.Do(func() {
		s.query, s.queryErr = sitter.NewQuery([]byte(s.Query), s.Language)
		if s.queryErr != nil {
			s.queryErr = errors.Wrap(s.queryErr, "compile query")
		}
	})
	return s.query, s.queryErr
}

// Registry maps file extensions to language specs.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]*LanguageSpec // extension (without dot) → spec
	names map[*LanguageSpec]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		specs: make(map[string]*LanguageSpec),
		names: make(map[*LanguageSpec]string),
	}
}

// Register adds a language spec under the given name.
func (r *Registry) Register(name string, spec *LanguageSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names[spec] = name
	for _, ext := range spec.Extensions {
		r.specs[strings.ToLower(ext)] = spec
	}
}

// Lookup returns the spec for a file path based on its extension, or nil.
func (r *Registry) Lookup(path string) (spec *LanguageSpec, lang string) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.specs[ext]
	if !ok {
		return nil, ""
	}
	return s, r.names[s]
}

// Extensions returns the set of all registered file extensions (without dot).
func (r *Registry) Extensions() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make(map[string]bool, len(r.specs))
	for ext := range r.specs {
		exts[ext] = true
	}
	return exts
}
