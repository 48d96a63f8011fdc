package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/simp-lee/logger"

	"github.com/simp-lee/gomount/internal/catalog"
	"github.com/simp-lee/gomount/internal/config"
	"github.com/simp-lee/gomount/internal/initd"
	"github.com/simp-lee/gomount/internal/module/info"
	"github.com/simp-lee/gomount/internal/mount"
)

// App holds the module runner, its logger and the HTTP server settings.
type App struct {
	runner *mount.Runner
	logger *logger.Logger
	cfg    *config.Config
}

type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

var newHTTPServer = func(addr string, handler http.Handler, writeTimeout time.Duration) httpServer {
	if writeTimeout <= 0 {
		writeTimeout = 60 * time.Second
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       120 * time.Second,
	}
}

var notifyContext = func(parent context.Context, signals ...os.Signal) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, signals...)
}

// New creates and wires an App from the given Config.
//
// It sets up logging, the router and initializer catalogs, the compiled-in
// modules, the named middleware and the module runner. With mount.auto_mount
// set the modules are booted before New returns; otherwise Run boots them.
func New(cfg *config.Config, modules ...Module) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	success := false

	// 1. Setup logger.
	log, err := config.SetupLogger(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("setup logger: %w", err)
	}

	if cfg.Server.Mode == gin.DebugMode && cfg.Server.Host == "0.0.0.0" {
		log.Warn("insecure server config: debug mode on 0.0.0.0 may expose debug behavior and permissive CORS")
	}
	defer func() {
		if success {
			return
		}
		if err := log.Close(); err != nil {
			slog.Error("logger close error", slog.Any("error", err))
		}
	}()

	// 2. Gin mode must be set before the runner creates any engine.
	if err := validateGinMode(cfg.Server.Mode); err != nil {
		return nil, err
	}
	gin.SetMode(cfg.Server.Mode)

	// 3. Catalogs for compiled-in targets.
	routers := catalog.New[mount.Router]("router")
	inits := catalog.New[initd.Factory]("initializer")
	for i, m := range modules {
		if m == nil {
			return nil, fmt.Errorf("module at index %d is nil", i)
		}
		if err := m.Register(routers, inits); err != nil {
			return nil, fmt.Errorf("register module: %w", err)
		}
	}

	middlewares, err := namedMiddlewares(cfg, log.Logger)
	if err != nil {
		return nil, err
	}

	// 4. Module runner. Scripts are loaded by goja, everything else by the
	// initializer catalog.
	runner, err := mount.New(cfg.Mount.Root, mount.Options{
		ModulePath: cfg.Mount.ModulePath,
		Loader: &initd.ScriptLoader{
			Fallback: initd.FactoryLoader{Catalog: inits},
			Logger:   log.Logger,
		},
		Resolver:    routers,
		Middlewares: middlewares,
		Logger:      log.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("setup runner: %w", err)
	}

	runner.On(mount.EventAppCreated, func(args ...any) error {
		e, ok := args[0].(*gin.Engine)
		if !ok {
			return fmt.Errorf("%s: unexpected payload %T", mount.EventAppCreated, args[0])
		}
		installBase(e, log.Logger, runner, func(path string) (string, bool) {
			o, ok := runner.Owner(path)
			return o.Module, ok
		})
		return nil
	})
	// Sub-applications answer unknown paths below their prefix, and the one
	// mounted at the root answers for the main engine too.
	for _, event := range []string{mount.EventAPICreated, mount.EventStaticCreated} {
		runner.On(event, func(args ...any) error {
			e, ok := args[0].(*gin.Engine)
			if !ok {
				return fmt.Errorf("%s: unexpected payload %T", event, args[0])
			}
			e.NoRoute(noRouteHandler())
			return nil
		})
	}
	runner.On(mount.EventRouteAttachPost, func(args ...any) error {
		log.Debug("route attached", slog.Any("kind", args[0]), slog.Any("declaration", args[1]))
		return nil
	})

	// 5. Built-in modules.
	if err := info.Register(routers, info.NewHandler(info.NewService(runner.Registry(), runner.Env))); err != nil {
		return nil, fmt.Errorf("register info module: %w", err)
	}

	a := &App{
		runner: runner,
		logger: log,
		cfg:    cfg,
	}

	if cfg.Mount.AutoMount {
		if err := runner.Mount(); err != nil {
			return nil, fmt.Errorf("mount modules: %w", err)
		}
	}

	success = true
	return a, nil
}

// Runner returns the module runner.
func (a *App) Runner() *mount.Runner {
	return a.runner
}

// Handler boots any phase that has not run yet and returns the main engine.
func (a *App) Handler() (http.Handler, error) {
	if a == nil || a.runner == nil {
		return nil, errors.New("app runner is nil")
	}
	if err := a.runner.Mount(); err != nil {
		return nil, fmt.Errorf("mount modules: %w", err)
	}
	return a.runner.App()
}

func validateGinMode(mode string) error {
	switch mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
		return nil
	default:
		return fmt.Errorf("invalid server.mode %q: must be one of %q, %q, %q", mode, gin.DebugMode, gin.ReleaseMode, gin.TestMode)
	}
}

// Run boots the modules, starts the HTTP server and blocks until a shutdown
// signal is received. It performs graceful shutdown with a 5-second timeout.
func (a *App) Run() error {
	if a == nil {
		return errors.New("app is nil")
	}
	if a.cfg == nil {
		return errors.New("app config is nil")
	}

	handler, err := a.Handler()
	if err != nil {
		a.closeLogger()
		return err
	}

	// server.timeout was validated by config.Validate.
	timeout, _ := time.ParseDuration(a.cfg.Server.Timeout)

	addr := fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port)
	srv := newHTTPServer(addr, handler, timeout)

	// Listen for SIGINT / SIGTERM.
	ctx, stop := notifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		a.log().Info("server started", slog.String("addr", addr), slog.String("env", a.runner.Env()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		a.log().Info("shutdown signal received")
	case err := <-errCh:
		runErr = fmt.Errorf("server error: %w", err)
	}

	if runErr == nil {
		// Graceful shutdown with 5-second deadline.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log().Error("server shutdown error", slog.Any("error", err))
		}
	}

	a.log().Info("server stopped")
	a.closeLogger()

	return runErr
}

func (a *App) log() *slog.Logger {
	if a.logger != nil {
		return a.logger.Logger
	}
	return slog.Default()
}

func (a *App) closeLogger() {
	if a.logger == nil {
		return
	}
	if err := a.logger.Close(); err != nil {
		slog.Error("logger close error", slog.Any("error", err))
	}
	a.logger = nil
}
