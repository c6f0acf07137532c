package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/susahesumudu/mit-erp/core/grade"
	"github.com/susahesumudu/mit-erp/core/user"
)

type marksApi struct {
	usrSvc user.Service
	svc    grade.Service
}

func registerMarksAPI(g *echo.Group, jwt echo.MiddlewareFunc, usrSvc user.Service, svc grade.Service) {
	api := marksApi{usrSvc: usrSvc, svc: svc}

	mg := g.Group("/marks", jwt)
	mg.GET("/me", api.retrieveOwn)
	mg.GET("", api.query, teacherMiddleware())
	mg.GET("/:studentID", api.retrieve, teacherMiddleware())
	mg.PUT("/:studentID", api.update, teacherMiddleware())
}

func (api *marksApi) query(ctx echo.Context) error {
	filter := new(grade.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []grade.MarksRecord{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	records, err := api.svc.QueryMarks(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying marks records")
	}
	return ctx.JSON(http.StatusOK, records)
}

// retrieveOwn returns the student's own record, creating it on first access.
func (api *marksApi) retrieveOwn(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	if !claims.IsStudent {
		return errHttpForbidden
	}

	rec, err := api.svc.GetOrCreateMarks(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "getting own marks record")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *marksApi) retrieve(ctx echo.Context) error {
	rec, err := api.svc.GetOrCreateMarks(ctx.Request().Context(), ctx.Param("studentID"))
	if err != nil {
		return errors.Wrap(err, "getting marks record")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *marksApi) update(ctx echo.Context) error {
	var data grade.UpdateMarks
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateMarks")
	}

	rec, err := api.svc.UpdateMarks(ctx.Request().Context(), ctx.Param("studentID"), data)
	if err != nil {
		return errors.Wrap(err, "updating marks record")
	}
	return ctx.JSON(http.StatusOK, rec)
}
