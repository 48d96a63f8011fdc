// Package mount composes the modules of a root manifest into one gin
// application.
//
// A Runner owns three engines: the main application, the API application
// mounted under the API prefix and the static application mounted under the
// assets prefix. Mount boots them in three phases (init, routes, static),
// each of which runs at most once.
package mount

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/knadh/koanf/v2"

	"github.com/simp-lee/gomount/internal/domain"
	"github.com/simp-lee/gomount/internal/initd"
	"github.com/simp-lee/gomount/internal/modules"
	"github.com/simp-lee/gomount/internal/relay"
)

// Lifecycle events triggered on the runner relay.
const (
	// EventAppCreated, EventAPICreated and EventStaticCreated carry the new
	// *gin.Engine.
	EventAppCreated    = "emount.app.created"
	EventAPICreated    = "emount.api.created"
	EventStaticCreated = "emount.static.created"

	// EventRouteAttachPre and EventRouteAttachPost carry the modules.Kind and
	// the modules.RouteDeclaration being attached.
	EventRouteAttachPre  = "emount.app.event.route.attach.pre"
	EventRouteAttachPost = "emount.app.event.route.attach.post"

	// EventMounted fires once all three phases completed.
	EventMounted = "emount.mounted"
)

// Default mount prefixes.
const (
	DefaultAPIPrefix          = "api"
	DefaultAssetsPrefix       = "assets"
	DefaultGlobalAssetsPrefix = "all"
)

// Settings keys that also configure the main engine.
const (
	SettingTrustedProxies        = "trusted_proxies"
	SettingRedirectTrailingSlash = "redirect_trailing_slash"
)

// Router is a router or api target. It registers its routes on the group
// for its module's mount prefix.
type Router interface {
	RegisterRoutes(r gin.IRouter)
}

// RouterFunc adapts a function to Router.
type RouterFunc func(r gin.IRouter)

// RegisterRoutes implements Router.
func (f RouterFunc) RegisterRoutes(r gin.IRouter) {
	f(r)
}

// Resolver maps a resolved target path to its Router.
// *catalog.Catalog[Router] satisfies it.
type Resolver interface {
	Resolve(target string) (Router, error)
}

// Options configures a Runner.
type Options struct {
	// ModulePath is the directory module entries are resolved against.
	// Defaults to the root directory.
	ModulePath string
	// AutoMount runs Mount from New.
	AutoMount bool
	// Loader loads initializer units. Defaults to a ScriptLoader without
	// fallback.
	Loader initd.Loader
	// Resolver resolves router and api targets.
	Resolver Resolver
	// Middlewares are the handlers initializers may enable by name.
	Middlewares map[string]gin.HandlerFunc
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Runner drives the boot of a root manifest.
type Runner struct {
	root     string
	opts     Options
	logger   *slog.Logger
	registry *modules.Registry
	relay    *relay.Relay
	settings *koanf.Koanf

	app    *gin.Engine
	api    *gin.Engine
	static *gin.Engine
	env    string

	// rootMount names the sub-application mounted at "/", if any.
	rootMount string
	owners    owners

	initDone       bool
	routesAttached bool
	staticAttached bool
}

// New returns a Runner for the root manifest directory root.
func New(root string, opts Options) (*Runner, error) {
	if root == "" {
		return nil, domain.ErrMissingRootPath
	}
	if opts.ModulePath == "" {
		opts.ModulePath = root
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Loader == nil {
		opts.Loader = &initd.ScriptLoader{Logger: logger}
	}

	registry, err := modules.New(root, opts.ModulePath, modules.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	r := &Runner{
		root:     root,
		opts:     opts,
		logger:   logger,
		registry: registry,
		relay:    relay.New(),
		settings: koanf.New("."),
	}
	r.relay.Bond(registry.Relay())

	if opts.AutoMount {
		if err := r.Mount(); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Registry returns the module registry.
func (r *Runner) Registry() *modules.Registry {
	return r.registry
}

// Relay returns the runner relay. It receives the lifecycle events, the
// handlers initializers register and every manifest notification.
func (r *Runner) Relay() *relay.Relay {
	return r.relay
}

// On registers h for event on the runner relay.
func (r *Runner) On(event string, h relay.Handler) {
	r.relay.On(event, h)
}

// Once registers h for the next occurrence of event on the runner relay.
func (r *Runner) Once(event string, h relay.Handler) {
	r.relay.Once(event, h)
}

// Trigger triggers event on the runner relay.
func (r *Runner) Trigger(event string, args ...any) error {
	return r.relay.Trigger(event, args...)
}

// Settings returns the values stored by SetOption commands.
func (r *Runner) Settings() *koanf.Koanf {
	return r.settings
}

// Env returns the gin mode captured when the main engine was created, or ""
// before that.
func (r *Runner) Env() string {
	return r.env
}

// App returns the main engine, creating it on first call. A failing
// EventAppCreated handler is reported only by the call that created it.
func (r *Runner) App() (*gin.Engine, error) {
	if r.app != nil {
		return r.app, nil
	}
	r.app = gin.New()
	r.env = gin.Mode()
	return r.app, r.created(EventAppCreated, r.app)
}

// API returns the API engine, creating it on first call.
func (r *Runner) API() (*gin.Engine, error) {
	if r.api != nil {
		return r.api, nil
	}
	r.api = gin.New()
	return r.api, r.created(EventAPICreated, r.api)
}

// Static returns the static engine, creating it on first call.
func (r *Runner) Static() (*gin.Engine, error) {
	if r.static != nil {
		return r.static, nil
	}
	r.static = gin.New()
	return r.static, r.created(EventStaticCreated, r.static)
}

func (r *Runner) created(event string, e *gin.Engine) error {
	r.logger.Debug("engine created", slog.String("event", event))
	if err := r.relay.Trigger(event, e); err != nil {
		return fmt.Errorf("%s: %w", event, err)
	}
	return nil
}

// Done reports whether all three boot phases completed.
func (r *Runner) Done() bool {
	return r.initDone && r.routesAttached && r.staticAttached
}

// Mount runs the boot phases that have not completed yet, in order: init,
// routes, static. The first failure is returned and later phases do not run.
// Calling Mount after a successful boot does nothing.
func (r *Runner) Mount() error {
	if r.Done() {
		return nil
	}

	if !r.initDone {
		if err := r.runInits(); err != nil {
			return fmt.Errorf("init: %w", err)
		}
		r.initDone = true
	}

	if !r.routesAttached {
		if err := r.attachRoutes(); err != nil {
			return fmt.Errorf("attach routes: %w", err)
		}
		r.routesAttached = true
	}

	if !r.staticAttached {
		if err := r.attachStatic(); err != nil {
			return fmt.Errorf("attach static: %w", err)
		}
		r.staticAttached = true
	}

	r.logger.Info("modules mounted", slog.String("root", r.root))
	return r.relay.Trigger(EventMounted, r)
}

func (r *Runner) runInits() error {
	inits, err := r.registry.Inits()
	if err != nil {
		return err
	}
	if len(inits) == 0 {
		r.logger.Debug("no initializers declared")
		return nil
	}

	seq, err := initd.New(inits, r.opts.Loader, initd.WithLogger(r.logger))
	if err != nil {
		return err
	}
	seq.Relay().On(initd.EventAppUpdate, func(args ...any) error {
		cmd, ok := first[initd.Command](args)
		if !ok {
			return errors.New("app update without command")
		}
		return r.apply(cmd)
	})
	seq.Relay().On(initd.EventAppEventAdd, func(args ...any) error {
		reg, ok := first[initd.Registration](args)
		if !ok {
			return errors.New("event registration without payload")
		}
		if reg.Once {
			r.relay.Once(reg.Event, reg.Handler)
		} else {
			r.relay.On(reg.Event, reg.Handler)
		}
		return nil
	})

	r.logger.Info("running initializers", slog.Int("count", len(inits)))
	return seq.Init()
}

func first[T any](args []any) (T, bool) {
	var zero T
	if len(args) == 0 {
		return zero, false
	}
	v, ok := args[0].(T)
	return v, ok
}

// apply executes an initializer command against the main engine.
func (r *Runner) apply(cmd initd.Command) error {
	app, err := r.App()
	if err != nil {
		return err
	}

	switch c := cmd.(type) {
	case initd.SetOption:
		if err := r.settings.Set(c.Key, c.Value); err != nil {
			return fmt.Errorf("set %s: %w", c.Key, err)
		}
		switch c.Key {
		case SettingTrustedProxies:
			if err := app.SetTrustedProxies(r.settings.Strings(c.Key)); err != nil {
				return fmt.Errorf("set %s: %w", c.Key, err)
			}
		case SettingRedirectTrailingSlash:
			app.RedirectTrailingSlash = r.settings.Bool(c.Key)
		}
		r.logger.Debug("setting applied", slog.String("key", c.Key))
		return nil

	case initd.UseMiddleware:
		h := c.Handler
		if h == nil {
			var ok bool
			h, ok = r.opts.Middlewares[c.Ref]
			if !ok || h == nil {
				return fmt.Errorf("use: unknown middleware %q", c.Ref)
			}
		}
		app.Use(h)
		r.logger.Debug("middleware added", slog.String("ref", c.Ref))
		return nil

	default:
		return fmt.Errorf("unsupported command %q", cmd.Name())
	}
}
