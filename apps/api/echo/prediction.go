package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/susahesumudu/mit-erp/core/grade"
	"github.com/susahesumudu/mit-erp/core/user"
)

type predictionApi struct {
	usrSvc user.Service
	svc    grade.Service
}

func registerPredictionAPI(g *echo.Group, jwt echo.MiddlewareFunc, usrSvc user.Service, svc grade.Service) {
	api := predictionApi{usrSvc: usrSvc, svc: svc}

	pg := g.Group("/predictions", jwt, teacherMiddleware())
	pg.GET("/:studentID", api.form)
	pg.POST("/:studentID", api.predict)
}

type PredictionResponse struct {
	Result     string            `json:"result"`
	Label      grade.Label       `json:"label"`
	Student    grade.Student     `json:"student"`
	Features   []float64         `json:"features"`
	Normalized []float64         `json:"normalized"`
	Record     grade.MarksRecord `json:"record"`
}

func (api *predictionApi) form(ctx echo.Context) error {
	form, err := api.svc.PredictionForm(ctx.Request().Context(), ctx.Param("studentID"))
	if err != nil {
		return errors.Wrap(err, "building prediction form")
	}
	return ctx.JSON(http.StatusOK, form)
}

func (api *predictionApi) predict(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	pred, err := api.svc.Predict(ctx.Request().Context(), grade.PredictRequest{
		StudentID:   ctx.Param("studentID"),
		RequestedBy: claims.Subject,
	})
	if err != nil {
		return errors.Wrap(err, "predicting final grade")
	}
	return ctx.JSON(http.StatusOK, PredictionResponse{
		Result:     pred.Result,
		Label:      pred.Label,
		Student:    pred.Student,
		Features:   pred.Features,
		Normalized: pred.Normalized,
		Record:     pred.Record,
	})
}
