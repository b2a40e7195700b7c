package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolstats/core"
	"github.com/trezcool/schoolstats/core/report"
)

type reportApi struct {
	svc        *report.Service
	validate   *validator.Validate
	translator ut.Translator
}

func registerReportAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *Deps) {
	api := reportApi{
		svc:        deps.ReportSvc,
		validate:   deps.Validate,
		translator: deps.Translator,
	}

	rg := g.Group("/reports", jwt)
	rg.GET("/config/:type", api.sections)
	rg.GET("/schema/:type/:key", api.schema)
	rg.GET("", api.listOwn)
	rg.GET("/summary", api.query, adminMiddleware())
	rg.POST("", api.create)
	rg.PUT("/child", api.commit)

	// detail endpoints
	rg.GET("/:id", api.retrieve)
	rg.DELETE("/:id", api.destroy)
	rg.GET("/:id/progress", api.progress)
	rg.GET("/:id/:key", api.child)

	g.GET("/dashboard/progress", api.dashboard, jwt, adminMiddleware())
}

// Handlers

func (api *reportApi) sections(ctx echo.Context) error {
	sections, err := api.svc.Sections(ctx.Request().Context(), ctx.Param("type"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sections)
}

func (api *reportApi) schema(ctx echo.Context) error {
	doc, err := api.svc.Schema(ctx.Request().Context(), ctx.Param("type"), ctx.Param("key"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, doc)
}

func (api *reportApi) listOwn(ctx echo.Context) error {
	id, err := getContextIdentity(ctx)
	if err != nil {
		return err
	}
	var ord Ordering
	ord.Bind(ctx, report.Orderings...)

	reports, err := api.svc.ListOwn(ctx.Request().Context(), id, ord.Orderings...)
	if err != nil {
		return errors.Wrap(err, "listing own reports")
	}
	return ctx.JSON(http.StatusOK, reports)
}

func (api *reportApi) query(ctx echo.Context) error {
	var filter ReportFilter
	filter.Bind(ctx)

	reports, err := api.svc.Filter(ctx.Request().Context(), filter.QueryFilter())
	if err != nil {
		return errors.Wrap(err, "filtering reports")
	}
	return ctx.JSON(http.StatusOK, reports)
}

func (api *reportApi) create(ctx echo.Context) error {
	id, err := getContextIdentity(ctx)
	if err != nil {
		return err
	}
	var data report.NewReport
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewReport")
	}
	// the school of the acting user is the default
	if data.Province == "" {
		data.Province = id.Province
	}
	if data.Ward == "" {
		data.Ward = id.Ward
	}
	if data.School == "" {
		data.School = id.School
	}
	if err := api.validate.Struct(data); err != nil {
		return core.TranslateValidationErrors(err, api.translator)
	}

	r, err := api.svc.Create(ctx.Request().Context(), data, id)
	if err != nil {
		return errors.Wrap(err, "creating report")
	}
	return ctx.JSON(http.StatusCreated, r)
}

func (api *reportApi) retrieve(ctx echo.Context) error {
	id, err := getContextIdentity(ctx)
	if err != nil {
		return err
	}
	r, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"), id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, r)
}

func (api *reportApi) destroy(ctx echo.Context) error {
	id, err := getContextIdentity(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id"), id); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *reportApi) progress(ctx echo.Context) error {
	id, err := getContextIdentity(ctx)
	if err != nil {
		return err
	}
	p, err := api.svc.Progress(ctx.Request().Context(), ctx.Param("id"), id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *reportApi) child(ctx echo.Context) error {
	id, err := getContextIdentity(ctx)
	if err != nil {
		return err
	}
	child, err := api.svc.GetChild(ctx.Request().Context(), ctx.Param("id"), ctx.Param("key"), id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, child)
}

func (api *reportApi) commit(ctx echo.Context) error {
	id, err := getContextIdentity(ctx)
	if err != nil {
		return err
	}
	var data report.CommitChild
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CommitChild")
	}
	if err := api.validate.Struct(data); err != nil {
		return core.TranslateValidationErrors(err, api.translator)
	}

	child, err := api.svc.Commit(ctx.Request().Context(), data, id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, child)
}

type (
	groupProgress struct {
		Group string `json:"group"`
		report.Progress
	}

	dashboardResponse struct {
		Groups []groupProgress  `json:"groups"`
		Total  report.Progress `json:"total"`
	}
)

var groupBys = map[string]report.GroupBy{
	"province": report.ByProvince,
	"ward":     report.ByWard,
	"type":     report.ByType,
}

func (api *reportApi) dashboard(ctx echo.Context) error {
	groupParam := ctx.QueryParam("group_by")
	if groupParam == "" {
		groupParam = "ward"
	}
	groupBy, ok := groupBys[groupParam]
	if !ok {
		return core.NewFieldError("group_by", "group_by must be one of province, ward or type")
	}
	category, err := report.ParseSchoolCategory(ctx.QueryParam("school_type"))
	if err != nil {
		return core.NewFieldError("school_type", err.Error())
	}
	var filter ReportFilter
	filter.Bind(ctx)

	sum, err := api.svc.Dashboard(ctx.Request().Context(), filter.QueryFilter(), category, groupBy)
	if err != nil {
		return errors.Wrap(err, "summarizing reports")
	}
	names := sum.GroupNames()
	resp := dashboardResponse{Groups: make([]groupProgress, len(names)), Total: sum.Total}
	for i, g := range names {
		resp.Groups[i] = groupProgress{Group: g, Progress: sum.Groups[g]}
	}
	return ctx.JSON(http.StatusOK, resp)
}
