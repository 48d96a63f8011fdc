package mount

import (
	"strings"

	"github.com/simp-lee/gomount/internal/modules"
)

// Owner is the module whose declaration serves a path of the main
// application.
type Owner struct {
	Module string       `json:"module"`
	Kind   modules.Kind `json:"kind"`
	// Prefix is the full path prefix on the main application, such as
	// "/api/catalog".
	Prefix string `json:"prefix"`
}

// owners is filled while routes and static directories are attached and only
// read after boot.
type owners []Owner

func (o *owners) add(module string, kind modules.Kind, prefix string) {
	*o = append(*o, Owner{Module: module, Kind: kind, Prefix: prefix})
}

// lookup returns the owner with the longest prefix containing path. Prefixes
// match whole segments, so "/shop" owns "/shop/cart" but not "/shopping".
func (o owners) lookup(path string) (Owner, bool) {
	var (
		best  Owner
		found bool
	)
	for _, own := range o {
		if !underPrefix(path, own.Prefix) {
			continue
		}
		if !found || len(own.Prefix) > len(best.Prefix) {
			best, found = own, true
		}
	}
	return best, found
}

func underPrefix(path, prefix string) bool {
	if prefix == "/" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// joinRoute places a module mount under a sub-application prefix.
func joinRoute(prefix, mount string) string {
	p, m := route(prefix), route(mount)
	switch {
	case p == "/":
		return m
	case m == "/":
		return p
	default:
		return p + m
	}
}

// Owner reports which module serves path on the main application. It is
// answered from the declarations attached so far, so it knows nothing before
// Mount.
func (r *Runner) Owner(path string) (Owner, bool) {
	return r.owners.lookup(path)
}

// Owners returns the attached declarations in attach order.
func (r *Runner) Owners() []Owner {
	out := make([]Owner, len(r.owners))
	copy(out, r.owners)
	return out
}
