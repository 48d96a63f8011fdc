// Package catalog maps manifest-declared target paths to values registered by
// the host binary, such as route registrars and initializer factories.
package catalog

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Catalog is a path-keyed registry.
//
// Keys are cleaned slash paths. A lookup first tries the exact path and then
// the longest key that matches a trailing run of whole path elements, so a
// key "users/router" resolves "/srv/modules/users/router". Catalog is not safe
// for concurrent registration; fill it before boot.
type Catalog[T any] struct {
	kind    string
	entries map[string]T
}

// New returns an empty catalog. kind names the entries in error messages.
func New[T any](kind string) *Catalog[T] {
	return &Catalog[T]{kind: kind, entries: make(map[string]T)}
}

// Register adds v under key. Registering the same key twice is an error.
func (c *Catalog[T]) Register(key string, v T) error {
	k := normalize(key)
	if k == "" || k == "." {
		return fmt.Errorf("register %s: empty key", c.kind)
	}
	if _, exists := c.entries[k]; exists {
		return fmt.Errorf("register %s %q: already registered", c.kind, key)
	}
	c.entries[k] = v
	return nil
}

// MustRegister is like Register but panics on error. It is meant for
// package init functions.
func (c *Catalog[T]) MustRegister(key string, v T) {
	if err := c.Register(key, v); err != nil {
		panic(err)
	}
}

// Lookup resolves target against the registered keys.
func (c *Catalog[T]) Lookup(target string) (T, bool) {
	t := normalize(target)
	if v, ok := c.entries[t]; ok {
		return v, true
	}

	var (
		best  string
		found T
		ok    bool
	)
	for k, v := range c.entries {
		if !strings.HasSuffix(t, "/"+k) {
			continue
		}
		if len(k) > len(best) {
			best, found, ok = k, v, true
		}
	}
	return found, ok
}

// Resolve is Lookup returning an error for unknown targets.
func (c *Catalog[T]) Resolve(target string) (T, error) {
	v, ok := c.Lookup(target)
	if !ok {
		var zero T
		return zero, fmt.Errorf("resolve %s %q: not registered", c.kind, target)
	}
	return v, nil
}

// Keys returns the registered keys in sorted order.
func (c *Catalog[T]) Keys() []string {
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of entries.
func (c *Catalog[T]) Len() int {
	return len(c.entries)
}

func normalize(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	return filepath.ToSlash(filepath.Clean(p))
}
