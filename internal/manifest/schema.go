package manifest

import (
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// SchemaVersion is the manifest schema revision this package validates
// against. A manifest may pin it through the optional "schema" field.
const SchemaVersion = "1"

// Manifest is the decoded content of a mount.json file.
//
// The struct tags are the schema: koanf tags name the JSON fields and validate
// tags carry the constraints. Modules, APIPrefix, AssetsPrefix,
// GlobalAssetsPrefix and, for the global asset directory, Static are only
// meaningful on the root manifest.
type Manifest struct {
	Schema      string   `koanf:"schema" validate:"omitempty,oneof=1"`
	Name        string   `koanf:"name" validate:"required,max=128"`
	Version     string   `koanf:"version" validate:"omitempty,max=64"`
	Description string   `koanf:"description"`
	Requires    []string `koanf:"requires" validate:"omitempty,unique,dive,required"`
	Init        string   `koanf:"init"`
	Router      string   `koanf:"router"`
	API         string   `koanf:"api"`
	Static      string   `koanf:"static"`
	Mount       string   `koanf:"mount" validate:"omitempty,prefix"`

	Modules            []string `koanf:"modules" validate:"omitempty,dive,required"`
	APIPrefix          string   `koanf:"api_prefix" validate:"omitempty,prefix"`
	AssetsPrefix       string   `koanf:"assets_prefix" validate:"omitempty,prefix"`
	GlobalAssetsPrefix string   `koanf:"global_assets_prefix" validate:"omitempty,prefix"`
}

// schema is the shared validator for Manifest values.
var schema = newSchema()

func newSchema() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report field errors with their manifest key instead of the Go field name.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("koanf"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})

	if err := v.RegisterValidation("prefix", validPrefix); err != nil {
		panic("manifest: register prefix validation: " + err.Error())
	}
	return v
}

// validPrefix accepts mount prefixes that can be used verbatim as a router
// path segment: no whitespace, no router wildcards, no parent references.
func validPrefix(fl validator.FieldLevel) bool {
	p := fl.Field().String()
	if strings.Contains(p, "..") {
		return false
	}
	for _, r := range p {
		if unicode.IsSpace(r) {
			return false
		}
		switch r {
		case '*', ':', '?', '#', '\\':
			return false
		}
	}
	return true
}
