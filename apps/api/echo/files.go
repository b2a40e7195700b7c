package echoapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolstats/core"
)

const defaultUploadDir = "uploads"

type fileApi struct {
	storage       core.FileStorage
	maxUploadSize int64
}

func registerFileAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *Deps) {
	if deps.Storage == nil {
		return
	}
	api := fileApi{storage: deps.Storage, maxUploadSize: deps.Conf.Storage.MaxUploadSize}

	fg := g.Group("/files", jwt)
	fg.POST("/upload", api.upload)
}

// upload stores the multipart `file` under `dir` (uploads by default), named `name`
// or after the file itself.
func (api *fileApi) upload(ctx echo.Context) error {
	if _, err := getContextIdentity(ctx); err != nil {
		return err
	}
	att, err := bindAttachment(ctx, api.maxUploadSize)
	if err != nil {
		return err
	}
	dir := ctx.FormValue("dir")
	if dir == "" {
		dir = defaultUploadDir
	}
	for _, seg := range strings.Split(dir, "/") {
		if seg == ".." {
			return core.NewFieldError("dir", "invalid directory")
		}
	}
	name := ctx.FormValue("name")
	if name == "" {
		name = strings.TrimSuffix(att.Filename, att.Ext())
	}

	uploaded, err := api.storage.Upload(ctx.Request().Context(), att, name, dir)
	if err != nil {
		return errors.Wrap(err, "uploading file")
	}
	return ctx.JSON(http.StatusCreated, uploaded)
}
