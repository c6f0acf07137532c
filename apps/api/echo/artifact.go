package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/susahesumudu/mit-erp/core/grade"
)

type artifactApi struct {
	store *grade.ArtifactStore
}

func registerArtifactAPI(g *echo.Group, jwt echo.MiddlewareFunc, store *grade.ArtifactStore) {
	api := artifactApi{store: store}

	ag := g.Group("/artifacts", jwt, adminMiddleware())
	ag.GET("", api.status)
	ag.POST("/reload", api.reload)
}

func (api *artifactApi) status(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, api.store.Status())
}

// reload re-reads the artifacts; the resulting status is returned even when loading fails.
func (api *artifactApi) reload(ctx echo.Context) error {
	code := http.StatusOK
	if err := api.store.Reload(); err != nil {
		code = http.StatusServiceUnavailable
	}
	return ctx.JSON(code, api.store.Status())
}
