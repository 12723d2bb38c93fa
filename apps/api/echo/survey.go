package echoapi

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ustawi/core/survey"
)

type surveyApi struct {
	svc      survey.Service
	validate *validator.Validate
}

func registerSurveyAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *Deps) {
	api := surveyApi{
		svc:      deps.SurveySvc,
		validate: deps.Validate,
	}

	sg := g.Group("/surveys", jwt)
	sg.POST("", api.create)
	sg.GET("/assigned", api.queryAssigned)
	sg.POST("/assignments", api.assign)
	sg.GET("/assignments", api.queryAssignments)
	sg.GET("/assignments/completed", api.queryCompleted)
	sg.GET("/assignments/:id", api.retrieveAssignment)
	sg.PUT("/assignments/:id", api.updateAssignment)
	sg.POST("/submissions", api.submit)
	sg.GET("/submissions/:id", api.retrieveSubmission)
	sg.GET("/:id", api.retrieve)
	sg.GET("/:id/results", api.results)
	sg.POST("/:id/export", api.export)
}

// Handlers

func (api *surveyApi) create(ctx echo.Context) error {
	var data survey.NewSurvey
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSurvey")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	s, err := api.svc.Create(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating survey")
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api *surveyApi) retrieve(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	s, err := api.svc.GetByID(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding survey by ID")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *surveyApi) queryAssigned(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	assigned, err := api.svc.ListAssigned(ctx.Request().Context(), actor)
	if err != nil {
		return errors.Wrap(err, "listing assigned surveys")
	}
	if assigned == nil {
		assigned = []survey.AssignedSurvey{}
	}
	return ctx.JSON(http.StatusOK, assigned)
}

func (api *surveyApi) assign(ctx echo.Context) error {
	var data survey.NewAssignment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAssignment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	a, err := api.svc.Assign(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "assigning survey")
	}
	return ctx.JSON(http.StatusCreated, a)
}

func (api *surveyApi) queryAssignments(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	details, err := api.svc.ListAssignments(ctx.Request().Context(), actor)
	if err != nil {
		return errors.Wrap(err, "listing assignments")
	}
	if details == nil {
		details = []survey.AssignmentDetail{}
	}
	return ctx.JSON(http.StatusOK, details)
}

func (api *surveyApi) queryCompleted(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	details, err := api.svc.ListCompleted(ctx.Request().Context(), actor)
	if err != nil {
		return errors.Wrap(err, "listing completed assignments")
	}
	if details == nil {
		details = []survey.AssignmentDetail{}
	}
	return ctx.JSON(http.StatusOK, details)
}

func (api *surveyApi) retrieveAssignment(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	detail, err := api.svc.GetAssignment(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding assignment by ID")
	}
	return ctx.JSON(http.StatusOK, detail)
}

func (api *surveyApi) updateAssignment(ctx echo.Context) error {
	var data survey.UpdateAssignment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateAssignment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	a, err := api.svc.UpdateAssignment(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating assignment")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *surveyApi) submit(ctx echo.Context) error {
	var data survey.NewSubmission
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubmission")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	sub, err := api.svc.Submit(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "submitting survey")
	}
	return ctx.JSON(http.StatusCreated, sub)
}

func (api *surveyApi) retrieveSubmission(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	detail, err := api.svc.GetSubmission(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding submission by ID")
	}
	return ctx.JSON(http.StatusOK, detail)
}

func (api *surveyApi) results(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	agg, err := api.svc.Results(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "aggregating results")
	}
	return ctx.JSON(http.StatusOK, agg)
}

func (api *surveyApi) export(ctx echo.Context) error {
	var params survey.ExportParams
	if err := ctx.Bind(&params); err != nil {
		return errors.Wrap(err, "binding to ExportParams")
	}
	if err := params.Validate(api.validate); err != nil {
		return err
	}
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	file, err := api.svc.Export(ctx.Request().Context(), actor, ctx.Param("id"), params)
	if err != nil {
		return errors.Wrap(err, "exporting results")
	}

	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", file.Filename))
	return ctx.Blob(http.StatusOK, file.ContentType, file.Data)
}
