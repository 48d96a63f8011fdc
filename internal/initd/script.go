package initd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dop251/goja"
)

// ScriptLoader runs ".js" initializers with goja and hands every other path
// to Fallback.
//
// A script initializer defines two globals:
//
//	function isInit() { return true; }
//	function init(app) {
//	    app.set("title", "shop");
//	    app.use("cors");
//	    app.on("emount.mounted", function () { console.log("ready"); });
//	}
//
// app.use only accepts middleware names: the script runtime is single
// threaded and cannot serve requests.
type ScriptLoader struct {
	Fallback Loader
	Logger   *slog.Logger
}

// Load implements Loader.
func (l *ScriptLoader) Load(path string) (any, error) {
	if !strings.EqualFold(filepath.Ext(path), ".js") {
		if l.Fallback == nil {
			return nil, fmt.Errorf("resolve initializer %q: not a script and no fallback loader", path)
		}
		return l.Fallback.Load(path)
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}

	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}

	vm := goja.New()

	console := vm.NewObject()
	_ = console.Set("log", func(call goja.FunctionCall) goja.Value {
		args := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			args[i] = arg.String()
		}
		logger.Info(strings.Join(args, " "), slog.String("script", path))
		return goja.Undefined()
	})
	if err := vm.Set("console", console); err != nil {
		return nil, fmt.Errorf("set console: %w", err)
	}

	if _, err := vm.RunScript(path, string(src)); err != nil {
		return nil, fmt.Errorf("script error: %w", err)
	}

	return &scriptInit{vm: vm, path: path}, nil
}

type scriptInit struct {
	vm   *goja.Runtime
	path string
}

// IsInit calls the script's isInit function; a missing or failing function
// means the script is not an initializer.
func (s *scriptInit) IsInit() bool {
	fn, ok := goja.AssertFunction(s.vm.Get("isInit"))
	if !ok {
		return false
	}
	v, err := fn(goja.Undefined())
	if err != nil {
		return false
	}
	return v.ToBoolean()
}

func (s *scriptInit) Init(app *Proxy) error {
	fn, ok := goja.AssertFunction(s.vm.Get("init"))
	if !ok {
		return fmt.Errorf("script %s does not define init(app)", s.path)
	}

	if _, err := fn(goja.Undefined(), s.appObject(app)); err != nil {
		return fmt.Errorf("script error: %w", err)
	}
	return nil
}

// appObject exposes the Proxy to the script. Proxy errors are thrown as
// script exceptions.
func (s *scriptInit) appObject(app *Proxy) *goja.Object {
	vm := s.vm
	obj := vm.NewObject()

	throw := func(err error) {
		panic(vm.NewGoError(err))
	}

	_ = obj.Set("set", func(call goja.FunctionCall) goja.Value {
		if err := app.Set(call.Argument(0).String(), call.Argument(1).Export()); err != nil {
			throw(err)
		}
		return goja.Undefined()
	})

	_ = obj.Set("use", func(call goja.FunctionCall) goja.Value {
		ref, ok := call.Argument(0).Export().(string)
		if !ok {
			throw(errors.New("use: scripts may only pass a middleware name"))
		}
		if err := app.UseNamed(ref); err != nil {
			throw(err)
		}
		return goja.Undefined()
	})

	register := func(once bool) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			event := call.Argument(0).String()
			cb, ok := goja.AssertFunction(call.Argument(1))
			if !ok {
				throw(fmt.Errorf("handler for %q is not a function", event))
			}

			handler := func(args ...any) error {
				vals := make([]goja.Value, len(args))
				for i, a := range args {
					vals[i] = vm.ToValue(a)
				}
				_, err := cb(goja.Undefined(), vals...)
				return err
			}

			var err error
			if once {
				err = app.Once(event, handler)
			} else {
				err = app.On(event, handler)
			}
			if err != nil {
				throw(err)
			}
			return goja.Undefined()
		}
	}
	_ = obj.Set("on", register(false))
	_ = obj.Set("once", register(true))

	return obj
}
