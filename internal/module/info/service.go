package info

import (
	"context"
	"fmt"

	"github.com/simp-lee/pagination"

	"github.com/simp-lee/gomount/internal/domain"
	"github.com/simp-lee/gomount/internal/manifest"
	"github.com/simp-lee/gomount/internal/modules"
	"github.com/simp-lee/gomount/internal/pkg"
)

// Source is the part of the module registry the info module reads.
// *modules.Registry satisfies it.
type Source interface {
	Application() (*manifest.File, error)
	Modules() (*modules.Set, error)
}

// Service answers module listing queries from a Source.
type Service struct {
	src Source
	env func() string
}

// NewService creates a Service. env reports the application environment and
// may be nil.
func NewService(src Source, env func() string) *Service {
	if src == nil {
		panic("info.NewService: source must not be nil")
	}
	if env == nil {
		env = func() string { return "" }
	}
	return &Service{src: src, env: env}
}

var summaryFields = map[string]pkg.Field[ModuleSummary]{
	"name":    func(m ModuleSummary) string { return m.Name },
	"version": func(m ModuleSummary) string { return m.Version },
	"mount":   func(m ModuleSummary) string { return m.Mount },
}

// App summarizes the root manifest.
func (s *Service) App() (*AppSummary, error) {
	f, err := s.src.Application()
	if err != nil {
		return nil, err
	}
	m, err := f.Manifest()
	if err != nil {
		return nil, err
	}
	set, err := s.src.Modules()
	if err != nil {
		return nil, err
	}
	return &AppSummary{
		Name:        m.Name,
		Version:     m.Version,
		Description: m.Description,
		Env:         s.env(),
		Modules:     set.Names(),
	}, nil
}

// List returns one page of module summaries. Without a sort the modules keep
// discovery order. A page past the end yields the last page.
func (s *Service) List(ctx context.Context, req domain.PageRequest) (*pagination.Pagination[ModuleSummary], error) {
	set, err := s.src.Modules()
	if err != nil {
		return nil, err
	}

	all := make([]ModuleSummary, 0, set.Len())
	for _, f := range set.All() {
		all = append(all, summarize(f))
	}

	matched := pkg.Sort(pkg.Filter(all, req, summaryFields), req, summaryFields)

	p := pagination.NewPaginator(
		pagination.WithItemsPerPage[ModuleSummary](req.PageSize),
		pagination.WithKnownTotal[ModuleSummary](int64(len(matched))),
		pagination.WithSliceCallback(func(_ context.Context, offset, limit int) ([]ModuleSummary, error) {
			if offset >= len(matched) {
				return nil, nil
			}
			return matched[offset:min(offset+limit, len(matched))], nil
		}),
	)
	return p.Paginate(ctx, req.Page)
}

// Get returns the summary of the module named name.
func (s *Service) Get(name string) (*ModuleSummary, error) {
	if name == "" {
		return nil, domain.ErrMissingModuleName
	}
	set, err := s.src.Modules()
	if err != nil {
		return nil, err
	}
	f := set.Get(name)
	if f == nil {
		return nil, domain.NewAppError(domain.CodeModuleNotFound, fmt.Sprintf("module %s not found", name), nil)
	}
	summary := summarize(f)
	return &summary, nil
}

func summarize(f *manifest.File) ModuleSummary {
	m, _ := f.Manifest()
	requires := make([]string, len(m.Requires))
	copy(requires, m.Requires)
	return ModuleSummary{
		Name:        m.Name,
		Version:     m.Version,
		Description: m.Description,
		Path:        f.Path(),
		Mount:       m.Mount,
		Requires:    requires,
		Router:      f.Has("router"),
		API:         f.Has("api"),
		Static:      f.Has("static"),
		Init:        f.Has("init"),
	}
}
