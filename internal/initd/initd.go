// Package initd runs module initializers in declaration order.
//
// An initializer never touches the host application directly. It receives a
// Proxy whose calls are published as events; the Sequencer forwards them to
// its own relay, where the host applies them.
package initd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/simp-lee/gomount/internal/catalog"
	"github.com/simp-lee/gomount/internal/domain"
	"github.com/simp-lee/gomount/internal/relay"
)

// Initializer is a loaded initializer unit.
type Initializer interface {
	// IsInit must return true for the unit to run.
	IsInit() bool
	// Init runs once at boot.
	Init(app *Proxy) error
}

// Base can be embedded to satisfy the IsInit half of Initializer. It also
// gives the initializer a relay of its own: the Proxy passed to Init publishes
// on it, and the Sequencer bonds it, so handlers the initializer adds there
// see its calls before the host does.
type Base struct {
	relay *relay.Relay
}

// IsInit implements Initializer.
func (Base) IsInit() bool { return true }

// Relay returns the initializer's relay, creating it on first use.
func (b *Base) Relay() *relay.Relay {
	if b.relay == nil {
		b.relay = relay.New()
	}
	return b.relay
}

// relayed is an initializer that brings its own relay.
type relayed interface {
	Relay() *relay.Relay
}

// Loader turns an initializer path into an instance. The instance is checked
// for the Initializer contract by the Sequencer, not by the Loader.
type Loader interface {
	Load(path string) (any, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(path string) (any, error)

// Load implements Loader.
func (f LoaderFunc) Load(path string) (any, error) {
	return f(path)
}

// Factory builds a fresh initializer instance.
type Factory func() any

// FactoryLoader loads initializers registered as Go factories.
type FactoryLoader struct {
	Catalog *catalog.Catalog[Factory]
}

// Load implements Loader.
func (l FactoryLoader) Load(path string) (any, error) {
	if l.Catalog == nil {
		return nil, fmt.Errorf("resolve initializer %q: no catalog configured", path)
	}
	factory, err := l.Catalog.Resolve(path)
	if err != nil {
		return nil, err
	}
	return factory(), nil
}

// NotAnInitializerError reports a unit that does not satisfy Initializer or
// whose IsInit returned false.
type NotAnInitializerError struct {
	Path string
}

func (e *NotAnInitializerError) Error() string {
	return fmt.Sprintf("%s is not an initializer", e.Path)
}

func (e *NotAnInitializerError) Unwrap() error {
	return domain.ErrNotAnInitializer
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithLogger sets the sequencer logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sequencer) {
		if l != nil {
			s.logger = l
		}
	}
}

// Sequencer loads and runs initializers one after another.
type Sequencer struct {
	inits  []string
	loader Loader
	relay  *relay.Relay
	logger *slog.Logger
}

// New returns a Sequencer for the given initializer paths.
func New(inits []string, loader Loader, opts ...Option) (*Sequencer, error) {
	if len(inits) == 0 {
		return nil, domain.ErrMissingInitializers
	}
	if loader == nil {
		return nil, errors.New("initd: loader is nil")
	}

	s := &Sequencer{
		inits:  append([]string(nil), inits...),
		loader: loader,
		relay:  relay.New(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Relay carries EventAppUpdate and EventAppEventAdd from every initializer.
func (s *Sequencer) Relay() *relay.Relay {
	return s.relay
}

// Init runs every initializer in order and stops at the first failure.
// Callers run it once.
func (s *Sequencer) Init() error {
	for _, path := range s.inits {
		s.logger.Info("initializing", slog.String("init", path))

		v, err := s.loader.Load(path)
		if err != nil {
			return fmt.Errorf("load initializer %s: %w", path, err)
		}

		unit, ok := v.(Initializer)
		if !ok || !unit.IsInit() {
			return &NotAnInitializerError{Path: path}
		}

		var own *relay.Relay
		if r, ok := v.(relayed); ok {
			own = r.Relay()
		}
		if own == nil {
			own = relay.New()
		}
		s.relay.Bond(own)

		if err := unit.Init(NewProxy(own)); err != nil {
			return fmt.Errorf("run initializer %s: %w", path, err)
		}
	}
	return nil
}
