package app

import (
	"github.com/simp-lee/gomount/internal/catalog"
	"github.com/simp-lee/gomount/internal/initd"
	"github.com/simp-lee/gomount/internal/mount"
)

// Module is a module compiled into the binary. It registers the router and
// api targets and the initializer factories its manifest refers to.
type Module interface {
	Register(routers *catalog.Catalog[mount.Router], inits *catalog.Catalog[initd.Factory]) error
}

// ModuleFunc adapts a function to Module.
type ModuleFunc func(routers *catalog.Catalog[mount.Router], inits *catalog.Catalog[initd.Factory]) error

// Register implements Module.
func (f ModuleFunc) Register(routers *catalog.Catalog[mount.Router], inits *catalog.Catalog[initd.Factory]) error {
	return f(routers, inits)
}
