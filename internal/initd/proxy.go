package initd

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/gomount/internal/relay"
)

// Events an initializer emits through its Proxy.
const (
	// EventAppUpdate carries a single Command.
	EventAppUpdate = "emount.app.update"
	// EventAppEventAdd carries a single Registration.
	EventAppEventAdd = "emount.app.event.add"
)

// Command is a mutation an initializer asks the host application to apply.
// The set of commands is closed: SetOption and UseMiddleware.
type Command interface {
	// Name is the command verb, "set" or "use".
	Name() string
}

// SetOption stores a named application setting.
type SetOption struct {
	Key   string
	Value any
}

// Name implements Command.
func (SetOption) Name() string { return "set" }

// UseMiddleware adds middleware to the main application. Exactly one of
// Handler and Ref is set; Ref names middleware the host provides.
type UseMiddleware struct {
	Ref     string
	Handler gin.HandlerFunc
}

// Name implements Command.
func (UseMiddleware) Name() string { return "use" }

// Registration asks the host to subscribe Handler to Event on its own relay.
type Registration struct {
	Event   string
	Handler relay.Handler
	Once    bool
}

// Proxy is the only handle an initializer gets on the host application.
// Every call is published on the initializer's relay and applied by whoever
// listens there; errors from the listener are returned to the caller.
type Proxy struct {
	relay *relay.Relay
}

// NewProxy returns a Proxy publishing on r.
func NewProxy(r *relay.Relay) *Proxy {
	return &Proxy{relay: r}
}

func (p *Proxy) send(cmd Command) error {
	return p.relay.Trigger(EventAppUpdate, cmd)
}

// Set stores value under key in the application settings.
func (p *Proxy) Set(key string, value any) error {
	if key == "" {
		return errors.New("set: key is required")
	}
	return p.send(SetOption{Key: key, Value: value})
}

// Use adds h as middleware on the main application.
func (p *Proxy) Use(h gin.HandlerFunc) error {
	if h == nil {
		return errors.New("use: handler is nil")
	}
	return p.send(UseMiddleware{Handler: h})
}

// UseNamed adds host-provided middleware by name.
func (p *Proxy) UseNamed(ref string) error {
	if ref == "" {
		return errors.New("use: middleware name is required")
	}
	return p.send(UseMiddleware{Ref: ref})
}

// On subscribes h to event on the host relay.
func (p *Proxy) On(event string, h relay.Handler) error {
	return p.register(event, h, false)
}

// Once subscribes h to the next occurrence of event on the host relay.
func (p *Proxy) Once(event string, h relay.Handler) error {
	return p.register(event, h, true)
}

func (p *Proxy) register(event string, h relay.Handler, once bool) error {
	if event == "" {
		return errors.New("register handler: event is required")
	}
	if h == nil {
		return errors.New("register handler: handler is nil")
	}
	return p.relay.Trigger(EventAppEventAdd, Registration{Event: event, Handler: h, Once: once})
}
