package echoapi

import (
	"io/ioutil"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolstats/core"
	"github.com/trezcool/schoolstats/core/report"
)

var (
	orderingParam = "ordering"
	fileParam     = "file"
)

type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind reads the `ordering` query param. Fields not in allowed are ignored.
func (ord *Ordering) Bind(ctx echo.Context, allowed ...string) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}
	ord.Orderings = core.ParseOrderings(val, allowed...)
}

// ReportFilter binds the report listing query params.
type ReportFilter struct {
	Ordering
	ReportType string
	Province   string
	Ward       string
	School     string
}

func (f *ReportFilter) Bind(ctx echo.Context) {
	f.ReportType = ctx.QueryParam("reportType")
	f.Province = ctx.QueryParam("province")
	f.Ward = ctx.QueryParam("ward")
	f.School = ctx.QueryParam("school")
	f.Ordering.Bind(ctx, report.Orderings...)
}

func (f ReportFilter) QueryFilter() report.QueryFilter {
	return report.QueryFilter{
		ReportType: f.ReportType,
		Province:   f.Province,
		Ward:       f.Ward,
		School:     f.School,
		Ordering:   f.Orderings,
	}
}

// bindAttachment reads the multipart `file` param of the request, up to maxSize bytes.
func bindAttachment(ctx echo.Context, maxSize int64) (*core.Attachment, error) {
	fh, err := ctx.FormFile(fileParam)
	if err != nil {
		if err == http.ErrMissingFile {
			return nil, core.NewFieldError(fileParam, "this field is required")
		}
		return nil, core.NewFieldError(fileParam, err.Error())
	}
	if maxSize > 0 && fh.Size > maxSize {
		return nil, core.NewFieldError(fileParam, "file is too large")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, errors.Wrap(err, "opening form file")
	}
	defer func() { _ = f.Close() }()

	content, err := ioutil.ReadAll(f)
	if err != nil {
		return nil, errors.Wrap(err, "reading form file")
	}
	return core.NewAttachment(fh.Filename, content, fh.Header.Get("Content-Type")), nil
}
