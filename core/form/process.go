package form

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/schoolstats/core"
	"github.com/trezcool/schoolstats/core/schema"
	"github.com/trezcool/schoolstats/core/valuetree"
	"github.com/trezcool/schoolstats/core/widget"
)

// Naming is the context uploaded files are named and stored with.
type Naming struct {
	ReportID   string
	SectionKey string
	UserID     string
}

// UploadHook is notified of every upload attempt.
type UploadHook func(att *core.Attachment, err error)

// Processor prepares an edited value tree for persistence.
type Processor struct {
	storage  core.FileStorage
	onUpload UploadHook
}

func NewProcessor(storage core.FileStorage, onUpload ...UploadHook) *Processor {
	p := &Processor{storage: storage}
	if len(onUpload) > 0 {
		p.onUpload = onUpload[0]
	}
	return p
}

// Process returns a processed copy of tree, laid out by doc:
//   - summary fields hold their result computed from the whole of tree (null when not finite),
//   - pending file attachments are uploaded and replaced with {fileName, url},
//   - groups and allowAdd rows are processed recursively.
//
// Siblings are processed concurrently; the first error aborts the pass and tree is left untouched.
func (p *Processor) Process(ctx context.Context, doc schema.Fields, tree valuetree.Tree, n Naming) (valuetree.Tree, error) {
	ps := &pass{proc: p, full: tree, naming: n}
	out, err := ps.fields(ctx, doc, tree, "")
	if err != nil {
		return nil, err
	}
	return valuetree.FromMap(out), nil
}

type pass struct {
	proc   *Processor
	full   valuetree.Tree
	naming Naming
}

func (ps *pass) fields(ctx context.Context, fields schema.Fields, data map[string]interface{}, prefix string) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		out[k] = v
	}

	all := fields.All()
	results := make([]interface{}, len(all))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range all {
		i, f := i, f
		value := data[f.Key]
		g.Go(func() error {
			v, err := ps.field(gctx, f, value, prefix)
			if err != nil {
				return err
			}
			results[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, f := range all {
		v := results[i]
		if v == nil {
			if _, ok := data[f.Key]; !ok && f.Type != schema.TypeSummary {
				continue
			}
		}
		out[f.Key] = v
	}
	return out, nil
}

func (ps *pass) field(ctx context.Context, f *schema.Field, value interface{}, prefix string) (interface{}, error) {
	if f.HasFields() {
		sub, _ := value.(map[string]interface{})
		processed, err := ps.fields(ctx, f.Fields, sub, f.Key)
		if err != nil {
			return nil, err
		}
		value = processed
	}

	switch f.Type {
	case schema.TypeFile:
		att, pending, ok := widget.PendingFile(value)
		if !ok {
			return value, nil
		}
		dir, _ := pending["path"].(string)
		uploaded, err := ps.upload(ctx, att, core.JoinNonEmpty("_", prefix, ps.naming.UserID), dir)
		if err != nil {
			return nil, err
		}
		fileName, _ := pending["fileName"].(string)
		return widget.UploadedFile(fileName, uploaded.URL), nil

	case schema.TypeAllowAdd:
		rows := widget.RowsOf(value)
		processed := make([]interface{}, len(rows))
		g, gctx := errgroup.WithContext(ctx)
		for i, row := range rows {
			i, row := i, row
			g.Go(func() error {
				m, _ := row.(map[string]interface{})
				out, err := ps.fields(gctx, f.RowFields(), m, fmt.Sprintf("%s_%d", f.Key, i))
				if err != nil {
					return err
				}
				processed[i] = out
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return processed, nil

	case schema.TypeSummary:
		result := widget.ComputeSummary(f.Summary(), ps.full)
		if math.IsNaN(result) || math.IsInf(result, 0) {
			return nil, nil
		}
		return result, nil
	}
	return value, nil
}

func (ps *pass) upload(ctx context.Context, att *core.Attachment, name, dir string) (core.FileUploaded, error) {
	path := strings.Trim(strings.Join([]string{strings.Trim(dir, "/"), ps.naming.ReportID, ps.naming.SectionKey}, "/"), "/")
	if ps.proc.storage == nil {
		return core.FileUploaded{}, errors.Errorf("uploading %s: no file storage", att.Filename)
	}
	uploaded, err := ps.proc.storage.Upload(ctx, att, name, path)
	if ps.proc.onUpload != nil {
		ps.proc.onUpload(att, err)
	}
	if err != nil {
		return core.FileUploaded{}, errors.Wrapf(err, "uploading %s", att.Filename)
	}
	return uploaded, nil
}
