package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/schoolstats/core/report"
	"github.com/trezcool/schoolstats/core/schema"
)

// SchemaSource reads the report sections from report_config and their documents from report_schema.
type SchemaSource struct {
	db *sqlx.DB
}

var _ report.SchemaSource = (*SchemaSource)(nil) // interface compliance check

func NewSchemaSource(db *sqlx.DB) *SchemaSource {
	return &SchemaSource{db: db}
}

func (src *SchemaSource) Sections(ctx context.Context, reportType string) ([]report.Section, error) {
	var sections []report.Section
	err := src.db.SelectContext(ctx, &sections, `
		SELECT name, section_key AS sectionkey FROM report_config
		WHERE report_type = $1 ORDER BY position, section_key`,
		reportType)
	if err != nil {
		return nil, errors.Wrap(err, "querying report sections")
	}
	if len(sections) == 0 {
		return nil, errors.Wrapf(report.ErrSchemaNotFound, "%q", reportType)
	}
	return sections, nil
}

func (src *SchemaSource) Schema(ctx context.Context, reportType, sectionKey string) (schema.Fields, error) {
	var doc []byte
	err := src.db.GetContext(ctx, &doc,
		`SELECT document FROM report_schema WHERE report_type = $1 AND section_key = $2`,
		reportType, sectionKey)
	if err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return schema.Fields{}, errors.Wrapf(report.ErrSchemaNotFound, "%s/%s", reportType, sectionKey)
		}
		return schema.Fields{}, errors.Wrap(err, "finding report schema")
	}
	var fields schema.Fields
	if err := json.Unmarshal(doc, &fields); err != nil {
		return schema.Fields{}, errors.Wrapf(err, "decoding %s/%s schema", reportType, sectionKey)
	}
	return fields, nil
}

// Put stores the sections of reportType with their documents, replacing the previous ones.
func (src *SchemaSource) Put(ctx context.Context, reportType string, sections []report.Section, docs map[string]schema.Fields, description string) error {
	tx, err := src.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM report_config WHERE report_type = $1`, reportType); err != nil {
		return errors.Wrap(err, "clearing report sections")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM report_schema WHERE report_type = $1`, reportType); err != nil {
		return errors.Wrap(err, "clearing report schemas")
	}
	desc := null.NewString(description, description != "")
	now := time.Now().UTC()
	for i, s := range sections {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO report_config (report_type, position, section_key, name) VALUES ($1, $2, $3, $4)`,
			reportType, i, s.SectionKey, s.Name); err != nil {
			return errors.Wrapf(err, "inserting section %s", s.SectionKey)
		}
		b, err := json.Marshal(docs[s.SectionKey])
		if err != nil {
			return errors.Wrapf(err, "encoding %s schema", s.SectionKey)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO report_schema (report_type, section_key, document, description, updated_at) VALUES ($1, $2, $3, $4, $5)`,
			reportType, s.SectionKey, b, desc, now); err != nil {
			return errors.Wrapf(err, "inserting %s schema", s.SectionKey)
		}
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}
