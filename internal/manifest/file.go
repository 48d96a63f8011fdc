// Package manifest loads and validates mount.json module declarations.
package manifest

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"github.com/tidwall/gjson"

	"github.com/simp-lee/gomount/internal/domain"
	"github.com/simp-lee/gomount/internal/relay"
)

// FileName is the manifest file looked up inside every module directory.
const FileName = "mount.json"

// EventInvalid is triggered on a File's relay when schema validation fails,
// before Load returns. Handlers receive the manifest path and the violation:
// validator.ValidationErrors for constraint failures, or the decode error
// when a field has the wrong JSON type.
const EventInvalid = "schema.invalid"

type absent struct{}

func (absent) String() string { return "<absent>" }

// Absent is returned by Find when the requested path does not exist.
var Absent any = absent{}

// NotFoundError reports a manifest file that could not be read.
type NotFoundError struct {
	Path string
	Err  error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("mount file %s not found: %v", e.Path, e.Err)
}

// Unwrap exposes both domain.ErrManifestNotFound and the underlying I/O error.
func (e *NotFoundError) Unwrap() []error {
	return []error{domain.ErrManifestNotFound, e.Err}
}

// InvalidError reports a manifest that failed to parse or validate.
type InvalidError struct {
	Path string
	Err  error
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("the config file %s isn't a valid mount file: %v", e.Path, e.Err)
}

// Unwrap exposes both domain.ErrInvalidManifest and the parse or schema error.
func (e *InvalidError) Unwrap() []error {
	return []error{domain.ErrInvalidManifest, e.Err}
}

// Option configures a File.
type Option func(*File)

// WithLogger sets the logger used to report schema violations.
func WithLogger(l *slog.Logger) Option {
	return func(f *File) {
		if l != nil {
			f.logger = l
		}
	}
}

// File is one module's manifest. It is loaded lazily and at most once;
// a failed load is retried on the next call.
type File struct {
	dir    string
	logger *slog.Logger
	relay  *relay.Relay

	loaded   bool
	raw      []byte
	k        *koanf.Koanf
	manifest Manifest
}

// New returns an unloaded File for the manifest inside dir.
func New(dir string, opts ...Option) (*File, error) {
	if dir == "" {
		return nil, errors.New("manifest: a configuration path is required")
	}

	f := &File{
		dir:    dir,
		logger: slog.Default(),
		relay:  relay.New(),
	}
	for _, opt := range opts {
		opt(f)
	}

	f.relay.On(EventInvalid, func(args ...any) error {
		attrs := []any{slog.String("file", f.ConfigFile())}
		if len(args) > 1 {
			attrs = append(attrs, slog.Any("error", args[1]))
		}
		f.logger.Error("mount file schema violation", attrs...)
		return nil
	})

	return f, nil
}

// Path returns the module directory.
func (f *File) Path() string {
	return f.dir
}

// ConfigFile returns the full path of the manifest file.
func (f *File) ConfigFile() string {
	return filepath.Join(f.dir, FileName)
}

// Relay returns the relay EventInvalid is published on.
func (f *File) Relay() *relay.Relay {
	return f.relay
}

// Loaded reports whether Load has completed successfully.
func (f *File) Loaded() bool {
	return f.loaded
}

// Load reads, parses and validates the manifest file. It is a no-op once the
// file has been loaded.
func (f *File) Load() error {
	if f.loaded {
		return nil
	}

	file := f.ConfigFile()
	data, err := os.ReadFile(file)
	if err != nil {
		return &NotFoundError{Path: file, Err: err}
	}

	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), json.Parser()); err != nil {
		return &InvalidError{Path: file, Err: err}
	}

	var m Manifest
	if err := k.UnmarshalWithConf("", &m, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &m,
			WeaklyTypedInput: false,
		},
	}); err != nil {
		// A field of the wrong JSON type is a schema violation too.
		return f.invalid(file, err, err)
	}

	if err := schema.Struct(&m); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return f.invalid(file, err, verrs)
		}
		return &InvalidError{Path: file, Err: err}
	}

	f.raw = data
	f.k = k
	f.manifest = m
	f.loaded = true
	return nil
}

// invalid publishes a schema violation on EventInvalid and returns the
// InvalidError for it. A failing handler is joined into the returned error.
func (f *File) invalid(file string, err error, violation any) error {
	if terr := f.relay.Trigger(EventInvalid, file, violation); terr != nil {
		err = errors.Join(err, terr)
	}
	return &InvalidError{Path: file, Err: err}
}

// Manifest returns the decoded manifest, loading it first if needed.
func (f *File) Manifest() (*Manifest, error) {
	if err := f.Load(); err != nil {
		return nil, err
	}
	return &f.manifest, nil
}

// Name returns the declared module name, or "" before a successful load.
func (f *File) Name() string {
	return f.manifest.Name
}

// Find returns the value at a dotted path such as "version" or "modules.0",
// loading the file first if needed. Missing paths yield Absent and a nil error.
func (f *File) Find(path string) (any, error) {
	if err := f.Load(); err != nil {
		return nil, err
	}

	res := gjson.GetBytes(f.raw, path)
	if !res.Exists() {
		return Absent, nil
	}
	return res.Value(), nil
}

// Has reports whether a dotted path exists. An unloaded File has nothing.
func (f *File) Has(path string) bool {
	if !f.loaded {
		return false
	}
	return gjson.GetBytes(f.raw, path).Exists()
}

// Data returns the whole manifest as a nested map.
func (f *File) Data() map[string]any {
	if !f.loaded {
		return nil
	}
	return f.k.Raw()
}
