package mount

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/gomount/internal/catalog"
	"github.com/simp-lee/gomount/internal/domain"
	"github.com/simp-lee/gomount/internal/initd"
	"github.com/simp-lee/gomount/internal/manifest"
	"github.com/simp-lee/gomount/internal/modules"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

// writeFiles writes files relative to a fresh temp dir and returns the dir.
func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		full := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", full, err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", full, err)
		}
	}
	return root
}

func shopTree(t *testing.T) string {
	return writeFiles(t, map[string]string{
		manifest.FileName: `{"name": "emount.test", "static": "public",
			"modules": ["shop", "blog"]}`,
		"public/site.txt": "global",
		"shop/" + manifest.FileName: `{"name": "shop", "mount": "shop",
			"router": "router", "api": "api", "static": "static",
			"requires": ["blog"]}`,
		"shop/static/logo.txt": "shop logo",
		"blog/" + manifest.FileName: `{"name": "blog", "mount": "blog", "router": "router"}`,
	})
}

type counter struct {
	calls map[string]int
}

func (c *counter) router(name, body string) Router {
	return RouterFunc(func(r gin.IRouter) {
		c.calls[name]++
		r.GET("/hello", func(ctx *gin.Context) {
			ctx.String(http.StatusOK, body)
		})
	})
}

func newCatalog(c *counter) *catalog.Catalog[Router] {
	cat := catalog.New[Router]("router")
	cat.MustRegister("shop/router", c.router("shop/router", "shop page"))
	cat.MustRegister("shop/api", c.router("shop/api", "shop api"))
	cat.MustRegister("blog/router", c.router("blog/router", "blog page"))
	return cat
}

func newRunner(t *testing.T, root string, opts Options) (*Runner, *counter) {
	t.Helper()
	c := &counter{calls: make(map[string]int)}
	if opts.Resolver == nil {
		opts.Resolver = newCatalog(c)
	}
	opts.Logger = quietLogger()
	r, err := New(root, opts)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return r, c
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	h.ServeHTTP(w, req)
	return w
}

func countRoutes(e *gin.Engine, path string) int {
	n := 0
	for _, ri := range e.Routes() {
		if ri.Path == path {
			n++
		}
	}
	return n
}

func TestNew_RequiresRoot(t *testing.T) {
	_, err := New("", Options{})
	if !errors.Is(err, domain.ErrMissingRootPath) {
		t.Fatalf("New(\"\") error = %v, want ErrMissingRootPath", err)
	}
}

func TestRunner_EnginesAreMemoized(t *testing.T) {
	r, _ := newRunner(t, shopTree(t), Options{})

	created := map[string]int{}
	for _, event := range []string{EventAppCreated, EventAPICreated, EventStaticCreated} {
		r.On(event, func(args ...any) error {
			if _, ok := args[0].(*gin.Engine); !ok {
				t.Errorf("%s payload = %T, want *gin.Engine", event, args[0])
			}
			created[event]++
			return nil
		})
	}

	if r.Env() != "" {
		t.Errorf("Env() before App() = %q, want empty", r.Env())
	}

	a1, _ := r.App()
	a2, _ := r.App()
	p1, _ := r.API()
	p2, _ := r.API()
	s1, _ := r.Static()
	s2, _ := r.Static()

	if a1 != a2 || p1 != p2 || s1 != s2 {
		t.Fatal("engines should be created once")
	}
	if a1 == p1 || p1 == s1 {
		t.Fatal("engines should be distinct")
	}
	for event, n := range created {
		if n != 1 {
			t.Errorf("%s fired %d times, want 1", event, n)
		}
	}
	if len(created) != 3 {
		t.Errorf("created events = %v, want all three", created)
	}
	if r.Env() != gin.TestMode {
		t.Errorf("Env() = %q, want %q", r.Env(), gin.TestMode)
	}
}

func TestRunner_CreatedHandlerError(t *testing.T) {
	r, _ := newRunner(t, shopTree(t), Options{})
	boom := errors.New("boom")
	r.On(EventAppCreated, func(args ...any) error { return boom })

	if _, err := r.App(); !errors.Is(err, boom) {
		t.Fatalf("App() error = %v, want %v", err, boom)
	}
}

func TestRunner_MountServesEverything(t *testing.T) {
	r, _ := newRunner(t, shopTree(t), Options{})

	if err := r.Mount(); err != nil {
		t.Fatalf("Mount error: %v", err)
	}
	if !r.Done() {
		t.Fatal("Done() = false after Mount")
	}

	app, _ := r.App()
	tests := []struct {
		path string
		want string
	}{
		{"/shop/hello", "shop page"},
		{"/blog/hello", "blog page"},
		{"/api/shop/hello", "shop api"},
		{"/assets/shop/logo.txt", "shop logo"},
		{"/assets/all/site.txt", "global"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := get(t, app, tt.path)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", w.Code)
			}
			if got := w.Body.String(); got != tt.want {
				t.Errorf("body = %q, want %q", got, tt.want)
			}
		})
	}

	if w := get(t, app, "/api/blog/hello"); w.Code != http.StatusNotFound {
		t.Errorf("blog has no api, status = %d, want 404", w.Code)
	}
}

func TestRunner_MountTwiceAttachesOnce(t *testing.T) {
	r, c := newRunner(t, shopTree(t), Options{})

	mounted := 0
	r.On(EventMounted, func(args ...any) error {
		mounted++
		return nil
	})

	for i := 0; i < 3; i++ {
		if err := r.Mount(); err != nil {
			t.Fatalf("Mount #%d error: %v", i+1, err)
		}
	}

	want := map[string]int{"shop/router": 1, "shop/api": 1, "blog/router": 1}
	if !reflect.DeepEqual(c.calls, want) {
		t.Errorf("attach calls = %v, want %v", c.calls, want)
	}
	if mounted != 1 {
		t.Errorf("EventMounted fired %d times, want 1", mounted)
	}

	app, _ := r.App()
	api, _ := r.API()
	static, _ := r.Static()
	if n := countRoutes(app, "/shop/hello"); n != 1 {
		t.Errorf("/shop/hello routes = %d, want 1", n)
	}
	if n := countRoutes(api, "/shop/hello"); n != 1 {
		t.Errorf("api /shop/hello routes = %d, want 1", n)
	}
	// Static registers GET and HEAD.
	if n := countRoutes(static, "/shop/*filepath"); n != 2 {
		t.Errorf("static /shop routes = %d, want 2", n)
	}
}

func TestRunner_CustomPrefixes(t *testing.T) {
	root := writeFiles(t, map[string]string{
		manifest.FileName: `{"name": "emount.test", "static": "public",
			"api_prefix": "v1", "assets_prefix": "files", "global_assets_prefix": "common",
			"modules": ["shop", "blog"]}`,
		"public/site.txt": "global",
		"shop/" + manifest.FileName: `{"name": "shop", "mount": "shop",
			"router": "router", "api": "api", "static": "static"}`,
		"shop/static/logo.txt": "shop logo",
		"blog/" + manifest.FileName: `{"name": "blog", "mount": "blog", "router": "router"}`,
	})
	r, _ := newRunner(t, root, Options{})
	if err := r.Mount(); err != nil {
		t.Fatalf("Mount error: %v", err)
	}

	app, _ := r.App()
	for _, path := range []string{"/v1/shop/hello", "/files/shop/logo.txt", "/files/common/site.txt"} {
		if w := get(t, app, path); w.Code != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, w.Code)
		}
	}
	if w := get(t, app, "/api/shop/hello"); w.Code != http.StatusNotFound {
		t.Errorf("default api prefix still served, status = %d", w.Code)
	}
}

func TestRunner_EmptyPrefixMountsAtRoot(t *testing.T) {
	root := writeFiles(t, map[string]string{
		manifest.FileName: `{"name": "emount.test", "api_prefix": "", "static": "public",
			"global_assets_prefix": "", "modules": ["shop"]}`,
		"public/site.txt": "global",
		"shop/" + manifest.FileName: `{"name": "shop", "mount": "shop", "api": "api"}`,
	})
	r, _ := newRunner(t, root, Options{})
	if err := r.Mount(); err != nil {
		t.Fatalf("Mount error: %v", err)
	}

	app, _ := r.App()
	if w := get(t, app, "/shop/hello"); w.Code != http.StatusOK || w.Body.String() != "shop api" {
		t.Errorf("GET /shop/hello = %d %q, want api served at root", w.Code, w.Body.String())
	}
	if w := get(t, app, "/assets/site.txt"); w.Code != http.StatusOK {
		t.Errorf("GET /assets/site.txt status = %d, want global static at assets root", w.Code)
	}
}

func TestRunner_SecondRootMountFails(t *testing.T) {
	root := writeFiles(t, map[string]string{
		manifest.FileName: `{"name": "emount.test", "api_prefix": "", "assets_prefix": "/",
			"modules": ["shop"]}`,
		"shop/" + manifest.FileName: `{"name": "shop", "mount": "shop", "api": "api"}`,
	})
	r, _ := newRunner(t, root, Options{})

	err := r.Mount()
	if err == nil || !strings.Contains(err.Error(), "mount static at /: api is already mounted there") {
		t.Fatalf("Mount error = %v, want root mount conflict", err)
	}
	if r.Done() {
		t.Error("Done() should be false after a failed static phase")
	}
}

func TestRunner_NoGlobalStatic(t *testing.T) {
	root := writeFiles(t, map[string]string{
		manifest.FileName:           `{"name": "emount.test", "modules": ["blog"]}`,
		"blog/" + manifest.FileName: `{"name": "blog", "mount": "blog", "router": "router"}`,
	})
	r, _ := newRunner(t, root, Options{})
	if err := r.Mount(); err != nil {
		t.Fatalf("Mount error: %v", err)
	}

	static, _ := r.Static()
	if n := len(static.Routes()); n != 0 {
		t.Errorf("static routes = %d, want 0", n)
	}
}

func TestRunner_ModulePath(t *testing.T) {
	modulesDir := writeFiles(t, map[string]string{
		"blog/" + manifest.FileName: `{"name": "blog", "mount": "blog", "router": "router"}`,
	})
	root := writeFiles(t, map[string]string{
		manifest.FileName: `{"name": "emount.test", "modules": ["blog"]}`,
	})

	r, _ := newRunner(t, root, Options{ModulePath: modulesDir})
	if err := r.Mount(); err != nil {
		t.Fatalf("Mount error: %v", err)
	}
	app, _ := r.App()
	if w := get(t, app, "/blog/hello"); w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestRunner_MissingDependencyStopsBeforeRoutes(t *testing.T) {
	root := writeFiles(t, map[string]string{
		manifest.FileName: `{"name": "emount.test", "modules": ["m1"]}`,
		"m1/" + manifest.FileName: `{"name": "m1", "mount": "m1", "router": "router",
			"requires": ["m3"]}`,
	})
	r, c := newRunner(t, root, Options{})

	attaching := 0
	r.On(EventRouteAttachPre, func(args ...any) error {
		attaching++
		return nil
	})

	err := r.Mount()
	var missing *modules.MissingDependencyError
	if !errors.As(err, &missing) {
		t.Fatalf("Mount error = %v, want *MissingDependencyError", err)
	}
	if missing.Module != "m1" || missing.Requirement != "m3" {
		t.Errorf("error = %+v, want {m1 m3}", missing)
	}
	if attaching != 0 || len(c.calls) != 0 {
		t.Errorf("routes attached before failure: events=%d calls=%v", attaching, c.calls)
	}
	if r.Done() {
		t.Error("Done() = true after failure")
	}
}

func TestRunner_UnresolvedTarget(t *testing.T) {
	root := writeFiles(t, map[string]string{
		manifest.FileName:           `{"name": "emount.test", "modules": ["news"]}`,
		"news/" + manifest.FileName: `{"name": "news", "mount": "news", "router": "router"}`,
	})
	r, _ := newRunner(t, root, Options{})

	err := r.Mount()
	if err == nil || !strings.Contains(err.Error(), "not registered") {
		t.Fatalf("Mount error = %v, want not registered", err)
	}
}

func TestRunner_ConflictingRoutesBecomeErrors(t *testing.T) {
	root := writeFiles(t, map[string]string{
		manifest.FileName:        `{"name": "emount.test", "modules": ["a", "b"]}`,
		"a/" + manifest.FileName: `{"name": "a", "mount": "same", "router": "router"}`,
		"b/" + manifest.FileName: `{"name": "b", "mount": "same", "router": "router"}`,
	})
	c := &counter{calls: make(map[string]int)}
	cat := catalog.New[Router]("router")
	cat.MustRegister("a/router", c.router("a", "a"))
	cat.MustRegister("b/router", c.router("b", "b"))

	r, _ := newRunner(t, root, Options{Resolver: cat})
	err := r.Mount()
	if err == nil || !strings.Contains(err.Error(), "module b") {
		t.Fatalf("Mount error = %v, want conflict on module b", err)
	}
}

func TestRunner_RouteAttachEvents(t *testing.T) {
	r, _ := newRunner(t, shopTree(t), Options{})

	var trace []string
	r.On(EventRouteAttachPre, func(args ...any) error {
		decl := args[1].(modules.RouteDeclaration)
		trace = append(trace, "pre:"+string(args[0].(modules.Kind))+":"+decl.Module)
		return nil
	})
	r.On(EventRouteAttachPost, func(args ...any) error {
		decl := args[1].(modules.RouteDeclaration)
		trace = append(trace, "post:"+string(args[0].(modules.Kind))+":"+decl.Module)
		return nil
	})

	if err := r.Mount(); err != nil {
		t.Fatalf("Mount error: %v", err)
	}
	want := []string{
		"pre:router:shop", "post:router:shop",
		"pre:router:blog", "post:router:blog",
		"pre:api:shop", "post:api:shop",
	}
	if !reflect.DeepEqual(trace, want) {
		t.Errorf("trace = %v, want %v", trace, want)
	}
}

func TestRunner_AutoMount(t *testing.T) {
	r, c := newRunner(t, shopTree(t), Options{AutoMount: true})
	if !r.Done() {
		t.Fatal("AutoMount should complete the boot")
	}
	if c.calls["shop/router"] != 1 {
		t.Errorf("shop/router calls = %d, want 1", c.calls["shop/router"])
	}
}

func TestRunner_AutoMountError(t *testing.T) {
	root := writeFiles(t, map[string]string{
		manifest.FileName: `{"modules": []}`,
	})
	_, err := New(root, Options{AutoMount: true, Logger: quietLogger()})
	if !domain.IsInvalidManifest(err) {
		t.Fatalf("New error = %v, want invalid manifest", err)
	}
}

func TestRunner_InvalidManifestReachesRelay(t *testing.T) {
	root := writeFiles(t, map[string]string{
		manifest.FileName: `{"version": "1"}`,
	})
	r, _ := newRunner(t, root, Options{})

	seen := 0
	r.On(manifest.EventInvalid, func(args ...any) error {
		seen++
		return nil
	})
	if err := r.Mount(); err == nil {
		t.Fatal("expected error")
	}
	if seen != 1 {
		t.Errorf("%s seen %d times, want 1", manifest.EventInvalid, seen)
	}
}

// goInit is a Go initializer driven through a FactoryLoader.
type goInit struct {
	initd.Base
	run func(app *initd.Proxy) error
}

func (g *goInit) Init(app *initd.Proxy) error { return g.run(app) }

func initTree(t *testing.T, initFile, script string) string {
	files := map[string]string{
		manifest.FileName: `{"name": "emount.test", "modules": ["blog"]}`,
		"blog/" + manifest.FileName: `{"name": "blog", "mount": "blog", "router": "router",
			"init": "` + initFile + `"}`,
	}
	if script != "" {
		files["blog/"+initFile] = script
	}
	return writeFiles(t, files)
}

func TestRunner_ScriptInitializer(t *testing.T) {
	root := initTree(t, "init.js", `
function isInit() { return true; }
function init(app) {
  app.set("title", "Blog");
  app.set("redirect_trailing_slash", false);
  app.use("stamp");
}
`)
	stamp := func(c *gin.Context) {
		c.Header("X-Stamp", "1")
		c.Next()
	}
	r, _ := newRunner(t, root, Options{Middlewares: map[string]gin.HandlerFunc{"stamp": stamp}})

	if err := r.Mount(); err != nil {
		t.Fatalf("Mount error: %v", err)
	}

	if got := r.Settings().String("title"); got != "Blog" {
		t.Errorf("title = %q, want Blog", got)
	}
	app, _ := r.App()
	if app.RedirectTrailingSlash {
		t.Error("RedirectTrailingSlash should be false")
	}
	w := get(t, app, "/blog/hello")
	if w.Header().Get("X-Stamp") != "1" {
		t.Errorf("middleware not applied, headers = %v", w.Header())
	}
}

func TestRunner_UnknownMiddleware(t *testing.T) {
	root := initTree(t, "init.js", `
function isInit() { return true; }
function init(app) { app.use("nope"); }
`)
	r, c := newRunner(t, root, Options{})

	err := r.Mount()
	if err == nil || !strings.Contains(err.Error(), `unknown middleware "nope"`) {
		t.Fatalf("Mount error = %v, want unknown middleware", err)
	}
	if len(c.calls) != 0 {
		t.Errorf("routes attached after init failure: %v", c.calls)
	}
}

func TestRunner_InitializerHandlersCascade(t *testing.T) {
	root := initTree(t, "init", "")

	var trace []string
	factories := catalog.New[initd.Factory]("initializer")
	factories.MustRegister("blog/init", func() any {
		return &goInit{run: func(app *initd.Proxy) error {
			if err := app.Use(func(c *gin.Context) { c.Next() }); err != nil {
				return err
			}
			if err := app.Once(EventAPICreated, func(args ...any) error {
				trace = append(trace, "api created")
				return nil
			}); err != nil {
				return err
			}
			return app.On(EventMounted, func(args ...any) error {
				trace = append(trace, "mounted")
				return nil
			})
		}}
	})

	r, _ := newRunner(t, root, Options{Loader: initd.FactoryLoader{Catalog: factories}})
	if err := r.Mount(); err != nil {
		t.Fatalf("Mount error: %v", err)
	}
	if err := r.Trigger(EventMounted); err != nil {
		t.Fatalf("Trigger error: %v", err)
	}

	want := []string{"api created", "mounted", "mounted"}
	if !reflect.DeepEqual(trace, want) {
		t.Errorf("trace = %v, want %v", trace, want)
	}
}

func TestRunner_NotAnInitializer(t *testing.T) {
	root := initTree(t, "init.js", `function init(app) {}`)
	r, _ := newRunner(t, root, Options{})

	err := r.Mount()
	if !domain.IsNotAnInitializer(err) {
		t.Fatalf("Mount error = %v, want not an initializer", err)
	}
}

func TestRunner_TrustedProxies(t *testing.T) {
	root := initTree(t, "init.js", `
function isInit() { return true; }
function init(app) { app.set("trusted_proxies", ["10.0.0.1"]); }
`)
	r, _ := newRunner(t, root, Options{})
	if err := r.Mount(); err != nil {
		t.Fatalf("Mount error: %v", err)
	}
	if got := r.Settings().Strings(SettingTrustedProxies); !reflect.DeepEqual(got, []string{"10.0.0.1"}) {
		t.Errorf("trusted_proxies = %v", got)
	}
}

func TestRoute(t *testing.T) {
	tests := map[string]string{
		"":       "/",
		"/":      "/",
		"shop":   "/shop",
		"/shop/": "/shop",
		"a/b":    "/a/b",
	}
	for in, want := range tests {
		if got := route(in); got != want {
			t.Errorf("route(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMountEngine_StripsPrefix(t *testing.T) {
	parent := gin.New()
	child := gin.New()
	child.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, c.Request.URL.Path)
	})

	if err := mountEngine(parent, "sub", child); err != nil {
		t.Fatalf("mountEngine error: %v", err)
	}
	w := get(t, parent, "/sub/ping")
	body, _ := io.ReadAll(w.Body)
	if w.Code != http.StatusOK || string(body) != "/ping" {
		t.Errorf("got %d %q, want 200 /ping", w.Code, body)
	}
}

func TestMountEngine_Root(t *testing.T) {
	parent := gin.New()
	child := gin.New()
	child.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	if err := mountEngine(parent, "/", child); err != nil {
		t.Fatalf("mountEngine error: %v", err)
	}
	if w := get(t, parent, "/ping"); w.Body.String() != "pong" {
		t.Errorf("body = %q, want pong", w.Body.String())
	}
}

func TestRunner_Owner(t *testing.T) {
	r, _ := newRunner(t, shopTree(t), Options{})
	if _, ok := r.Owner("/shop/hello"); ok {
		t.Fatal("Owner before Mount should know nothing")
	}
	if err := r.Mount(); err != nil {
		t.Fatalf("Mount error: %v", err)
	}

	tests := []struct {
		path   string
		want   Owner
		wantOK bool
	}{
		{"/shop/hello", Owner{Module: "shop", Kind: modules.KindRouter, Prefix: "/shop"}, true},
		{"/blog", Owner{Module: "blog", Kind: modules.KindRouter, Prefix: "/blog"}, true},
		{"/api/shop/hello", Owner{Module: "shop", Kind: modules.KindAPI, Prefix: "/api/shop"}, true},
		{"/assets/shop/logo.txt", Owner{Module: "shop", Kind: modules.KindStatic, Prefix: "/assets/shop"}, true},
		{"/assets/all/site.txt", Owner{Module: "emount.test", Kind: modules.KindStatic, Prefix: "/assets/all"}, true},
		{"/blogger", Owner{}, false},
		{"/health", Owner{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := r.Owner(tt.path)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("Owner(%q) = %+v, %v, want %+v, %v", tt.path, got, ok, tt.want, tt.wantOK)
			}
		})
	}

	if n := len(r.Owners()); n != 5 {
		t.Errorf("Owners() = %d entries, want 5", n)
	}
}

func TestJoinRoute(t *testing.T) {
	tests := []struct {
		prefix, mount, want string
	}{
		{"api", "shop", "/api/shop"},
		{"/v1/", "/shop/", "/v1/shop"},
		{"", "shop", "/shop"},
		{"assets", "", "/assets"},
		{"", "", "/"},
	}
	for _, tt := range tests {
		if got := joinRoute(tt.prefix, tt.mount); got != tt.want {
			t.Errorf("joinRoute(%q, %q) = %q, want %q", tt.prefix, tt.mount, got, tt.want)
		}
	}
}

func TestOwners_LongestPrefixWins(t *testing.T) {
	var o owners
	o.add("app", modules.KindRouter, "/")
	o.add("shop", modules.KindRouter, "/shop")
	o.add("cart", modules.KindRouter, "/shop/cart")

	for path, want := range map[string]string{
		"/":               "app",
		"/elsewhere":      "app",
		"/shop":           "shop",
		"/shopping":       "app",
		"/shop/cart/item": "cart",
	} {
		got, ok := o.lookup(path)
		if !ok || got.Module != want {
			t.Errorf("lookup(%q) = %q, %v, want %q", path, got.Module, ok, want)
		}
	}
}
