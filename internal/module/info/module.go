// Package info is a built-in module that reports the mounted modules.
//
// A module uses it by naming the targets in its manifest:
//
//	{"name": "info", "mount": "_info", "router": "builtin:info", "api": "builtin:info/api"}
package info

import (
	"github.com/gin-gonic/gin"

	"github.com/simp-lee/gomount/internal/catalog"
	"github.com/simp-lee/gomount/internal/mount"
)

// Target names under which Register adds the info routers.
const (
	RouterTarget = "builtin:info"
	APITarget    = "builtin:info/api"
)

type router struct {
	h *Handler
}

func (r router) RegisterRoutes(g gin.IRouter) {
	g.GET("/", r.h.App)
}

type api struct {
	h *Handler
}

func (a api) RegisterRoutes(g gin.IRouter) {
	g.GET("/modules", a.h.List)
	g.GET("/modules/:name", a.h.Get)
}

// Router returns the router target.
func Router(h *Handler) mount.Router {
	if h == nil {
		panic("info.Router: handler must not be nil")
	}
	return router{h: h}
}

// API returns the api target.
func API(h *Handler) mount.Router {
	if h == nil {
		panic("info.API: handler must not be nil")
	}
	return api{h: h}
}

// Register adds both targets to c.
func Register(c *catalog.Catalog[mount.Router], h *Handler) error {
	if err := c.Register(RouterTarget, Router(h)); err != nil {
		return err
	}
	return c.Register(APITarget, API(h))
}
