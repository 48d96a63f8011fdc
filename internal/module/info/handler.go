package info

import (
	"github.com/gin-gonic/gin"

	"github.com/simp-lee/gomount/internal/pkg"
)

// Handler serves the info endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a new Handler with the given service.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// App handles GET / on the router target.
func (h *Handler) App(c *gin.Context) {
	summary, err := h.svc.App()
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, summary)
}

// List handles GET /modules on the api target.
func (h *Handler) List(c *gin.Context) {
	req := pkg.ParsePageRequest(c)

	result, err := h.svc.List(c.Request.Context(), req)
	if err != nil {
		pkg.Error(c, err)
		return
	}

	pkg.List(c, result)
}

// Get handles GET /modules/:name on the api target.
func (h *Handler) Get(c *gin.Context) {
	summary, err := h.svc.Get(c.Param("name"))
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, summary)
}
