package schema

import (
	"strings"
	"sync"
)

// Registry maps endpoint path patterns to expected response shapes. Patterns
// may contain single-segment wildcards written as {name}. Lookup tries an
// exact match first, then walks patterns in registration order, so more
// specific literal registrations should be added before wildcard ones.
type Registry struct {
	mu       sync.RWMutex
	patterns []string
	shapes   map[string]*Shape
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{shapes: make(map[string]*Shape)}
}

// Register adds or overwrites the shape for a pattern.
func (r *Registry) Register(pattern string, shape *Shape) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.shapes[pattern]; !exists {
		r.patterns = append(r.patterns, pattern)
	}
	r.shapes[pattern] = shape
}

// Resolve returns the shape whose pattern matches path, or nil if no pattern
// matches. The first matching pattern in registration order wins.
func (r *Registry) Resolve(path string) *Shape {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if shape, ok := r.shapes[path]; ok {
		return shape
	}

	for _, pattern := range r.patterns {
		if matchesPattern(path, pattern) {
			return r.shapes[pattern]
		}
	}
	return nil
}

// List returns pattern → shape name for every registration.
func (r *Registry) List() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string, len(r.shapes))
	for pattern, shape := range r.shapes {
		out[pattern] = shape.Name
	}
	return out
}

// matchesPattern reports whether a concrete path matches a pattern. Segment
// counts must be equal; a {param} segment matches any concrete segment.
func matchesPattern(path, pattern string) bool {
	pathParts := strings.Split(strings.Trim(path, "/"), "/")
	patternParts := strings.Split(strings.Trim(pattern, "/"), "/")

	if len(pathParts) != len(patternParts) {
		return false
	}

	for i, pat := range patternParts {
		if strings.HasPrefix(pat, "{") && strings.HasSuffix(pat, "}") {
			continue
		}
		if pathParts[i] != pat {
			return false
		}
	}
	return true
}
