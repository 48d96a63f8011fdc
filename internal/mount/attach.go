package mount

import (
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/gomount/internal/manifest"
	"github.com/simp-lee/gomount/internal/modules"
)

func (r *Runner) attachRoutes() error {
	routers, err := r.registry.Routers()
	if err != nil {
		return err
	}
	apis, err := r.registry.API()
	if err != nil {
		return err
	}

	app, err := r.App()
	if err != nil {
		return err
	}
	api, err := r.API()
	if err != nil {
		return err
	}
	prefix, err := r.prefix("api_prefix", DefaultAPIPrefix)
	if err != nil {
		return err
	}

	for _, decl := range routers {
		if err := r.attachRoute(app, modules.KindRouter, decl, route(decl.Mount)); err != nil {
			return err
		}
	}
	for _, decl := range apis {
		if err := r.attachRoute(api, modules.KindAPI, decl, joinRoute(prefix, decl.Mount)); err != nil {
			return err
		}
	}

	r.logger.Debug("mounting api", slog.String("prefix", prefix))
	return r.mountSub(app, "api", prefix, api)
}

// attachRoute registers one declaration on e. at is where the declaration
// ends up on the main application once e is mounted.
func (r *Runner) attachRoute(e *gin.Engine, kind modules.Kind, decl modules.RouteDeclaration, at string) error {
	if r.opts.Resolver == nil {
		return fmt.Errorf("resolve %s %q: no resolver configured", kind, decl.Target)
	}
	target, err := r.opts.Resolver.Resolve(decl.Target)
	if err != nil {
		return err
	}

	if err := r.relay.Trigger(EventRouteAttachPre, kind, decl); err != nil {
		return err
	}
	if err := guard(func() { target.RegisterRoutes(e.Group(route(decl.Mount))) }); err != nil {
		return fmt.Errorf("attach %s of module %s: %w", kind, decl.Module, err)
	}
	r.logger.Debug("route attached",
		slog.String("kind", string(kind)),
		slog.String("module", decl.Module),
		slog.String("mount", at),
	)
	r.owners.add(decl.Module, kind, at)
	return r.relay.Trigger(EventRouteAttachPost, kind, decl)
}

func (r *Runner) attachStatic() error {
	statics, err := r.registry.StaticPaths()
	if err != nil {
		return err
	}
	root, err := r.registry.Application()
	if err != nil {
		return err
	}

	static, err := r.Static()
	if err != nil {
		return err
	}
	prefix, err := r.prefix("assets_prefix", DefaultAssetsPrefix)
	if err != nil {
		return err
	}

	if root.Has("static") {
		m, err := root.Manifest()
		if err != nil {
			return err
		}
		global, err := r.prefix("global_assets_prefix", DefaultGlobalAssetsPrefix)
		if err != nil {
			return err
		}
		dir := filepath.Join(root.Path(), m.Static)
		if err := serveDir(static, global, dir); err != nil {
			return fmt.Errorf("global static: %w", err)
		}
		r.logger.Debug("static attached", slog.String("mount", route(global)), slog.String("dir", dir))
		r.owners.add(m.Name, modules.KindStatic, joinRoute(prefix, global))
	}

	for _, decl := range statics {
		if err := serveDir(static, decl.Mount, decl.Path); err != nil {
			return fmt.Errorf("static of module %s: %w", decl.Module, err)
		}
		r.logger.Debug("static attached",
			slog.String("module", decl.Module),
			slog.String("mount", route(decl.Mount)),
			slog.String("dir", decl.Path),
		)
		r.owners.add(decl.Module, modules.KindStatic, joinRoute(prefix, decl.Mount))
	}

	app, err := r.App()
	if err != nil {
		return err
	}
	r.logger.Debug("mounting static", slog.String("prefix", prefix))
	return r.mountSub(app, "static", prefix, static)
}

// prefix reads a prefix field of the root manifest, falling back to def when
// the field is absent. An empty value means the root path.
func (r *Runner) prefix(key, def string) (string, error) {
	root, err := r.registry.Application()
	if err != nil {
		return "", err
	}
	v, err := root.Find(key)
	if err != nil {
		return "", err
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	if v != manifest.Absent {
		return "", fmt.Errorf("%s: expected a string, got %T", key, v)
	}
	return def, nil
}

// mountSub mounts a sub-application on the main one. Only one of them may
// take the root path, since it is served from the main engine's NoRoute.
func (r *Runner) mountSub(app *gin.Engine, name, prefix string, child *gin.Engine) error {
	if route(prefix) == "/" {
		if r.rootMount != "" {
			return fmt.Errorf("mount %s at /: %s is already mounted there", name, r.rootMount)
		}
		r.rootMount = name
	}
	return mountEngine(app, prefix, child)
}

func serveDir(e *gin.Engine, prefix, dir string) error {
	return guard(func() { e.Static(route(prefix), dir) })
}

// mountEngine serves child under prefix on parent. The child sees request
// paths with the prefix stripped.
func mountEngine(parent *gin.Engine, prefix string, child *gin.Engine) error {
	p := route(prefix)
	if p == "/" {
		parent.NoRoute(gin.WrapH(child))
		return nil
	}
	h := gin.WrapH(http.StripPrefix(p, child))
	return guard(func() { parent.Any(p+"/*path", h) })
}

// route turns a manifest prefix into a router path.
func route(prefix string) string {
	return "/" + strings.Trim(prefix, "/")
}

// guard converts gin registration panics, such as conflicting paths, into
// errors.
func guard(fn func()) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%v", rec)
		}
	}()
	fn()
	return nil
}
