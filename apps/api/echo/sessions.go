package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolstats/core"
	"github.com/trezcool/schoolstats/core/form"
	"github.com/trezcool/schoolstats/core/report"
	"github.com/trezcool/schoolstats/core/valuetree"
	"github.com/trezcool/schoolstats/core/widget"
)

type (
	OpenSessionRequest struct {
		ReportID   string `json:"reportId" validate:"required"`
		SectionKey string `json:"reportKey" validate:"required,fieldkey"`
	}

	// PatchRequest carries either a widget operation or raw edits.
	PatchRequest struct {
		Op    *widget.Op       `json:"op"`
		Edits []valuetree.Edit `json:"edits" validate:"dive"`
	}

	SaveRequest struct {
		Temporary bool `json:"temporary"`
	}

	formView struct {
		Key  string `json:"key"`
		Name string `json:"name"`
	}

	sessionView struct {
		ID         string         `json:"id"`
		ReportID   string         `json:"reportId"`
		SectionKey string         `json:"reportKey"`
		Forms      []formView     `json:"forms"`
		Data       valuetree.Tree `json:"data"`
		Dirty      []string       `json:"dirty"`
		// Missing lists the required fields left blank. It never blocks a save.
		Missing []string `json:"missing"`
	}

	renderView struct {
		Units []form.Unit    `json:"units"`
		Data  valuetree.Tree `json:"data"`
	}

	patchView struct {
		Edits []valuetree.Edit `json:"edits"`
		Data  valuetree.Tree   `json:"data"`
		Dirty []string         `json:"dirty"`
	}
)

func newSessionView(sess *form.Session) sessionView {
	tree := sess.Tree()
	forms := sess.Forms()
	v := sessionView{
		ID:         sess.ID,
		ReportID:   sess.ReportID,
		SectionKey: sess.SectionKey,
		Forms:      make([]formView, len(forms)),
		Data:       tree,
		Dirty:      sess.Dirty(),
		Missing:    form.MissingRequired(sess.Doc(), tree),
	}
	for i, f := range forms {
		v.Forms[i] = formView{Key: f.Key, Name: f.Name}
	}
	return v
}

type sessionApi struct {
	svc           *report.Service
	validate      *validator.Validate
	translator    ut.Translator
	maxUploadSize int64
}

func registerSessionAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *Deps) {
	api := sessionApi{
		svc:           deps.ReportSvc,
		validate:      deps.Validate,
		translator:    deps.Translator,
		maxUploadSize: deps.Conf.Storage.MaxUploadSize,
	}

	sg := g.Group("/sessions", jwt)
	sg.POST("", api.open)

	// detail endpoints
	sg.GET("/:sid", api.retrieve)
	sg.PATCH("/:sid", api.patch)
	sg.DELETE("/:sid", api.close)
	sg.GET("/:sid/sections/:section", api.render)
	sg.POST("/:sid/reset/:section", api.reset)
	sg.POST("/:sid/files", api.selectFile)
	sg.POST("/:sid/save", api.save)
}

func (api *sessionApi) getSession(ctx echo.Context) (*form.Session, error) {
	id, err := getContextIdentity(ctx)
	if err != nil {
		return nil, err
	}
	return api.svc.Session(ctx.Param("sid"), id)
}

// Handlers

func (api *sessionApi) open(ctx echo.Context) error {
	id, err := getContextIdentity(ctx)
	if err != nil {
		return err
	}
	var data OpenSessionRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to OpenSessionRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return core.TranslateValidationErrors(err, api.translator)
	}

	sess, err := api.svc.OpenSession(ctx.Request().Context(), data.ReportID, data.SectionKey, id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, newSessionView(sess))
}

func (api *sessionApi) retrieve(ctx echo.Context) error {
	sess, err := api.getSession(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, newSessionView(sess))
}

func (api *sessionApi) render(ctx echo.Context) error {
	sess, err := api.getSession(ctx)
	if err != nil {
		return err
	}
	units, err := sess.Render(ctx.Param("section"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, renderView{Units: units, Data: sess.Tree()})
}

func (api *sessionApi) patch(ctx echo.Context) error {
	sess, err := api.getSession(ctx)
	if err != nil {
		return err
	}
	var data PatchRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PatchRequest")
	}

	var edits []valuetree.Edit
	switch {
	case data.Op != nil:
		if err := api.validate.Struct(data.Op); err != nil {
			return core.TranslateValidationErrors(err, api.translator, "op")
		}
		if edits, err = sess.Do(*data.Op); err != nil {
			return err
		}
	case len(data.Edits) > 0:
		if err := api.validate.Struct(data); err != nil {
			return core.TranslateValidationErrors(err, api.translator)
		}
		edits = data.Edits
		if _, err := sess.Apply(edits...); err != nil {
			return err
		}
	default:
		return core.NewFieldError("op", "an operation or edits are required")
	}

	return ctx.JSON(http.StatusOK, patchView{Edits: edits, Data: sess.Tree(), Dirty: sess.Dirty()})
}

func (api *sessionApi) selectFile(ctx echo.Context) error {
	sess, err := api.getSession(ctx)
	if err != nil {
		return err
	}
	path := ctx.FormValue("path")
	if path == "" {
		return core.NewFieldError("path", "this field is required")
	}
	att, err := bindAttachment(ctx, api.maxUploadSize)
	if err != nil {
		return err
	}
	if err := sess.SelectFile(path, att); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, patchView{Data: sess.Tree(), Dirty: sess.Dirty()})
}

func (api *sessionApi) reset(ctx echo.Context) error {
	sess, err := api.getSession(ctx)
	if err != nil {
		return err
	}
	if err := sess.Reset(ctx.Param("section")); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, patchView{Data: sess.Tree(), Dirty: sess.Dirty()})
}

func (api *sessionApi) save(ctx echo.Context) error {
	sess, err := api.getSession(ctx)
	if err != nil {
		return err
	}
	var data SaveRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SaveRequest")
	}

	child, err := api.svc.Save(ctx.Request().Context(), sess, data.Temporary)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, child)
}

func (api *sessionApi) close(ctx echo.Context) error {
	id, err := getContextIdentity(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.CloseSession(ctx.Param("sid"), id); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}
