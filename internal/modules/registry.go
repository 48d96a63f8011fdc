// Package modules discovers the modules listed in a root manifest and
// aggregates their routing, static and initializer declarations.
package modules

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/simp-lee/gomount/internal/domain"
	"github.com/simp-lee/gomount/internal/manifest"
	"github.com/simp-lee/gomount/internal/relay"
)

// Kind selects which route capability of a manifest to aggregate.
// KindStatic only labels static declarations once they are attached.
type Kind string

const (
	KindRouter Kind = "router"
	KindAPI    Kind = "api"
	KindStatic Kind = "static"
)

// RouteDeclaration is a target mounted under a prefix.
type RouteDeclaration struct {
	Module string `json:"module"`
	Mount  string `json:"mount"`
	Target string `json:"target"`
}

// StaticDeclaration is a directory served under a prefix.
type StaticDeclaration struct {
	Module string `json:"module"`
	Mount  string `json:"mount"`
	Path   string `json:"path"`
}

// Set is the insertion-ordered result of module discovery.
type Set struct {
	order  []string
	byName map[string]*manifest.File
}

func newSet() *Set {
	return &Set{byName: make(map[string]*manifest.File)}
}

func (s *Set) add(f *manifest.File) {
	s.order = append(s.order, f.Name())
	s.byName[f.Name()] = f
}

// Get returns the module named name, or nil.
func (s *Set) Get(name string) *manifest.File {
	return s.byName[name]
}

// Names returns module names in discovery order.
func (s *Set) Names() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// All returns the module manifests in discovery order.
func (s *Set) All() []*manifest.File {
	out := make([]*manifest.File, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.byName[name])
	}
	return out
}

// Len returns the number of modules.
func (s *Set) Len() int {
	return len(s.order)
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger. It is also handed to every manifest.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// Registry is built lazily: nothing is read from disk until the first call
// that needs it, and every derived list is computed once and cached.
type Registry struct {
	root   string
	base   string
	logger *slog.Logger
	relay  *relay.Relay

	application lazy[*manifest.File]
	modules     lazy[*Set]
	requires    lazy[map[string][]string]
	routers     lazy[[]RouteDeclaration]
	apis        lazy[[]RouteDeclaration]
	inits       lazy[[]string]
	statics     lazy[[]StaticDeclaration]
}

// New returns a registry for the root manifest directory root. Module entries
// are resolved against base; an empty base resolves them against the working
// directory.
func New(root, base string, opts ...Option) (*Registry, error) {
	if root == "" {
		return nil, domain.ErrMissingRootPath
	}
	if base == "" {
		base = "."
	}

	r := &Registry{
		root:   root,
		base:   base,
		logger: slog.Default(),
		relay:  relay.New(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Root returns the root manifest directory.
func (r *Registry) Root() string {
	return r.root
}

// Base returns the directory module entries are resolved against.
func (r *Registry) Base() string {
	return r.base
}

// Relay forwards events from every manifest the registry loads, notably
// manifest.EventInvalid.
func (r *Registry) Relay() *relay.Relay {
	return r.relay
}

// Application returns the loaded root manifest.
func (r *Registry) Application() (*manifest.File, error) {
	return r.application.get(func() (*manifest.File, error) {
		return r.load(r.root)
	})
}

func (r *Registry) load(dir string) (*manifest.File, error) {
	f, err := manifest.New(dir, manifest.WithLogger(r.logger))
	if err != nil {
		return nil, err
	}
	r.relay.Bond(f.Relay())
	if err := f.Load(); err != nil {
		return nil, err
	}
	return f, nil
}

// Modules discovers every module listed in the root manifest, in list order,
// and validates their requirements. The result is computed once.
func (r *Registry) Modules() (*Set, error) {
	return r.modules.get(r.discover)
}

func (r *Registry) discover() (*Set, error) {
	app, err := r.Application()
	if err != nil {
		return nil, err
	}
	m, err := app.Manifest()
	if err != nil {
		return nil, err
	}

	set := newSet()
	for _, entry := range m.Modules {
		dir := filepath.Join(r.base, entry)
		f, err := r.load(dir)
		if err != nil {
			return nil, fmt.Errorf("load module %q: %w", entry, err)
		}

		r.logger.Info("loading module", slog.String("module", f.Name()), slog.String("path", dir))

		if existing := set.Get(f.Name()); existing != nil {
			conflict := &NameConflictError{Name: f.Name(), Path: f.Path(), ExistingPath: existing.Path()}
			r.logger.Error(conflict.Error())
			return nil, conflict
		}

		set.add(f)
		r.logger.Debug("adding module", slog.String("module", f.Name()))
	}

	if err := required(set, requiresOf(set)); err != nil {
		return nil, err
	}
	return set, nil
}

// Module returns the module named name, or nil when no such module exists.
func (r *Registry) Module(name string) (*manifest.File, error) {
	if name == "" {
		return nil, domain.ErrMissingModuleName
	}
	set, err := r.Modules()
	if err != nil {
		return nil, err
	}
	return set.Get(name), nil
}

// Requires maps every module that declares requirements to its requires list.
func (r *Registry) Requires() (map[string][]string, error) {
	return r.requires.get(func() (map[string][]string, error) {
		set, err := r.Modules()
		if err != nil {
			return nil, err
		}
		return requiresOf(set), nil
	})
}

func requiresOf(set *Set) map[string][]string {
	out := make(map[string][]string)
	for _, f := range set.All() {
		if !f.Has("requires") {
			continue
		}
		m, _ := f.Manifest()
		reqs := make([]string, len(m.Requires))
		copy(reqs, m.Requires)
		out[f.Name()] = reqs
	}
	return out
}

// Required checks that every requirement names a discovered module.
// Discovery already runs this check, so on a registry whose Modules call
// succeeded it always returns nil.
func (r *Registry) Required() error {
	set, err := r.Modules()
	if err != nil {
		return err
	}
	reqs, err := r.Requires()
	if err != nil {
		return err
	}
	return required(set, reqs)
}

// required walks modules in discovery order and requirements in declared
// order, so the first missing pair reported is deterministic.
func required(set *Set, reqs map[string][]string) error {
	for _, name := range set.order {
		for _, req := range reqs[name] {
			if set.Get(req) == nil {
				return &MissingDependencyError{Module: name, Requirement: req}
			}
		}
	}
	return nil
}

// Routers returns the router declarations of every module with both a mount
// and a router, in discovery order.
func (r *Registry) Routers() ([]RouteDeclaration, error) {
	return r.routers.get(func() ([]RouteDeclaration, error) {
		return r.allRoutes(KindRouter)
	})
}

// API returns the API declarations of every module with both a mount and an
// api, in discovery order.
func (r *Registry) API() ([]RouteDeclaration, error) {
	return r.apis.get(func() ([]RouteDeclaration, error) {
		return r.allRoutes(KindAPI)
	})
}

func (r *Registry) allRoutes(kind Kind) ([]RouteDeclaration, error) {
	set, err := r.Modules()
	if err != nil {
		return nil, err
	}

	out := make([]RouteDeclaration, 0)
	for _, f := range set.All() {
		if !f.Has("mount") || !f.Has(string(kind)) {
			continue
		}
		m, _ := f.Manifest()
		target := m.Router
		if kind == KindAPI {
			target = m.API
		}
		out = append(out, RouteDeclaration{
			Module: f.Name(),
			Mount:  m.Mount,
			Target: filepath.Join(f.Path(), target),
		})
	}
	return out, nil
}

// Inits returns the initializer path of every module that declares one, in
// discovery order.
func (r *Registry) Inits() ([]string, error) {
	return r.inits.get(func() ([]string, error) {
		set, err := r.Modules()
		if err != nil {
			return nil, err
		}

		out := make([]string, 0)
		for _, f := range set.All() {
			if !f.Has("init") {
				continue
			}
			m, _ := f.Manifest()
			out = append(out, filepath.Join(f.Path(), m.Init))
		}
		return out, nil
	})
}

// StaticPaths returns the static directory of every module that declares
// one, in discovery order.
func (r *Registry) StaticPaths() ([]StaticDeclaration, error) {
	return r.statics.get(func() ([]StaticDeclaration, error) {
		set, err := r.Modules()
		if err != nil {
			return nil, err
		}

		out := make([]StaticDeclaration, 0)
		for _, f := range set.All() {
			if !f.Has("static") {
				continue
			}
			m, _ := f.Manifest()
			out = append(out, StaticDeclaration{
				Module: f.Name(),
				Mount:  m.Mount,
				Path:   filepath.Join(f.Path(), m.Static),
			})
		}
		return out, nil
	})
}
