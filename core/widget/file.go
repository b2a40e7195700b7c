package widget

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/schoolstats/core"
	"github.com/trezcool/schoolstats/core/schema"
	"github.com/trezcool/schoolstats/core/valuetree"
)

const (
	fileKey     = "file"
	fileNameKey = "fileName"
	urlKey      = "url"
	pathKey     = "path"

	previewScheme = "blob:"
)

type fileWidget struct {
	maxSize int64
}

// Accepts reports whether a file of contentType named filename passes the accept filter:
// a comma separated list of MIME types, `type/*` prefixes or `.ext` extensions.
// An empty filter accepts anything.
func Accepts(accept, contentType, filename string) bool {
	accept = strings.TrimSpace(accept)
	if accept == "" {
		return true
	}
	contentType = strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	for _, a := range strings.Split(accept, ",") {
		a = strings.ToLower(strings.TrimSpace(a))
		switch {
		case a == "", a == "*", a == "*/*":
			return true
		case strings.HasPrefix(a, "."):
			if strings.HasSuffix(strings.ToLower(filename), a) {
				return true
			}
		case strings.HasSuffix(a, "/*"):
			if strings.HasPrefix(contentType, strings.TrimSuffix(a, "*")) {
				return true
			}
		case a == contentType:
			return true
		}
	}
	return false
}

// SelectFile stores att as a pending attachment, to be uploaded when the report is saved.
// Disallowed types and oversized files are rejected without any edit.
func SelectFile(f *schema.Field, path string, att *core.Attachment, maxSize int64) ([]valuetree.Edit, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxUploadSize
	}
	var cfg schema.FileConfig
	if c := f.File(); c != nil {
		cfg = *c
	}
	if att == nil || att.Filename == "" {
		return nil, core.NewFieldError(path, "no file selected")
	}
	if !Accepts(cfg.Accept, att.ContentType, att.Filename) {
		return nil, core.NewFieldError(path, fmt.Sprintf("invalid file: only %s files are accepted", cfg.Accept))
	}
	if att.Size() > maxSize {
		return nil, core.NewFieldError(path, fmt.Sprintf("invalid file: files must be smaller than %gMB", float64(maxSize)/1024/1024))
	}
	return edit(path, map[string]interface{}{
		fileKey:     att,
		fileNameKey: att.Filename,
		urlKey:      previewScheme + uuid.NewString(),
		pathKey:     cfg.Path,
	}), nil
}

// DeleteFile removes the file value.
func DeleteFile(path string) []valuetree.Edit {
	return edit(path, nil)
}

// PendingFile returns the raw attachment of a file value that has not been uploaded yet.
func PendingFile(v interface{}) (*core.Attachment, map[string]interface{}, bool) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, nil, false
	}
	att, ok := m[fileKey].(*core.Attachment)
	if !ok || att == nil {
		return nil, nil, false
	}
	return att, m, true
}

// UploadedFile returns the stored value of a completed upload.
func UploadedFile(fileName, url string) map[string]interface{} {
	return map[string]interface{}{fileNameKey: fileName, urlKey: url}
}

// ViewURL adds a cache busting version to the URL of files stored under dir.
func ViewURL(url, dir string) string {
	if url == "" || dir == "" || strings.HasPrefix(url, previewScheme) || !strings.Contains(url, dir) || strings.Contains(url, "?v=") {
		return url
	}
	return url + "?v=" + uuid.NewString()[:3]
}

func (w fileWidget) Render(ctx RenderContext) (View, []valuetree.Edit) {
	v := baseView(ctx)
	fv := &FileView{MaxSize: w.maxSize}
	var dir string
	if cfg := ctx.Field.File(); cfg != nil {
		fv.Accept = cfg.Accept
		dir = cfg.Path
	}
	if m, ok := ctx.Value.(map[string]interface{}); ok {
		fv.FileName, _ = m[fileNameKey].(string)
		fv.URL, _ = m[urlKey].(string)
		fv.Filled = fv.FileName != ""
		_, _, fv.Pending = PendingFile(m)
		fv.ViewURL = ViewURL(fv.URL, dir)
		v.Display = fv.FileName
	}
	v.File = fv
	return v, nil
}
