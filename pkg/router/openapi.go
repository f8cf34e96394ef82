package router

import (
	"net/http"

	"chat-risk-analysis/backend/pkg/validator"

	"github.com/gin-gonic/gin"
)

// addOpenAPI serves the API document and, when validate is set, checks every
// described request against it before the handlers run.
func (r *Router) addOpenAPI(spec []byte, validate bool) {
	r.Engine.GET("/api/docs/openapi.yaml", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/yaml", spec)
	})
	r.Logger.Info("OpenAPI schema available at", "url", "/api/docs/openapi.yaml")

	if !validate {
		return
	}

	v, err := validator.NewOpenAPIValidator(spec)
	if err != nil {
		r.Logger.Error("Failed to initialize OpenAPI validator", "error", err)
		return
	}

	r.Engine.Use(v.Middleware())
	r.Logger.Info("OpenAPI validation enabled", "title", v.Document().Info.Title)
}
