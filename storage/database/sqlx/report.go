// Package sqlxrepos implements the repositories over PostgreSQL with sqlx.
package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/schoolstats/core/report"
)

const uniqueViolation = "23505"

type (
	reportRow struct {
		ID         string      `db:"id"`
		Province   string      `db:"province"`
		Ward       string      `db:"ward"`
		School     string      `db:"school"`
		ReportType string      `db:"report_type"`
		Pending    stringList  `db:"pending"`
		Done       stringList  `db:"done"`
		UserID     null.String `db:"user_id"`
		CreatedAt  time.Time   `db:"created_at"`
		UpdatedAt  time.Time   `db:"updated_at"`
	}

	childRow struct {
		ID         string     `db:"id"`
		ReportID   string     `db:"report_id"`
		SectionKey string     `db:"section_key"`
		Status     string     `db:"status"`
		Data       treeColumn `db:"data"`
		UpdatedAt  time.Time  `db:"updated_at"`
	}
)

const reportColumns = "id, province, ward, school, report_type, pending, done, user_id, created_at, updated_at"

// orderColumns maps the allowed orderings to their column.
var orderColumns = map[string]string{
	report.OrderByUpdatedAt: "updated_at",
	report.OrderBySchool:    "school",
	report.OrderByWard:      "ward",
}

type reportRepository struct {
	db *sqlx.DB
}

var _ report.Repository = (*reportRepository)(nil) // interface compliance check

func NewReportRepository(db *sqlx.DB) report.Repository {
	return &reportRepository{db: db}
}

func toRow(r report.Report) reportRow {
	return reportRow{
		ID:         r.ID,
		Province:   r.Province,
		Ward:       r.Ward,
		School:     r.School,
		ReportType: r.ReportType,
		Pending:    r.Status.Pending,
		Done:       r.Status.Done,
		UserID:     null.NewString(r.User, r.User != ""),
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
}

func (row reportRow) report() report.Report {
	return report.Report{
		ID:         row.ID,
		Province:   row.Province,
		Ward:       row.Ward,
		School:     row.School,
		ReportType: row.ReportType,
		Status:     report.StatusSets{Pending: row.Pending, Done: row.Done},
		User:       row.UserID.String,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}
}

func (row childRow) child() report.ChildReport {
	return report.ChildReport{
		ID:         row.ID,
		ReportID:   row.ReportID,
		SectionKey: row.SectionKey,
		Status:     report.Status(row.Status),
		Data:       map[string]interface{}(row.Data),
		UpdatedAt:  row.UpdatedAt,
	}
}

// trapNoRowsErr maps psql "no rows" err to report.ErrNotFound
func trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return report.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo reportRepository) CreateReport(ctx context.Context, r report.Report) (report.Report, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO report (`+reportColumns+`)
		VALUES (:id, :province, :ward, :school, :report_type, :pending, :done, :user_id, :created_at, :updated_at)`,
		toRow(r))
	if err != nil {
		if pqErr, ok := errors.Cause(err).(*pq.Error); ok && pqErr.Code == uniqueViolation {
			return report.Report{}, report.ErrReportExists
		}
		return report.Report{}, errors.Wrap(err, "inserting report")
	}
	return r, nil
}

func (repo reportRepository) GetReport(ctx context.Context, id string) (report.Report, error) {
	if _, err := uuid.Parse(id); err != nil {
		return report.Report{}, report.ErrNotFound
	}
	var row reportRow
	if err := repo.db.GetContext(ctx, &row, `SELECT `+reportColumns+` FROM report WHERE id = $1`, id); err != nil {
		return report.Report{}, trapNoRowsErr(err, "finding report by ID")
	}
	return row.report(), nil
}

func (repo reportRepository) FilterReports(ctx context.Context, filter report.QueryFilter) ([]report.Report, error) {
	var (
		where []string
		args  []interface{}
	)
	add := func(column, value string) {
		if value != "" {
			args = append(args, value)
			where = append(where, fmt.Sprintf("%s = $%d", column, len(args)))
		}
	}
	add("user_id", filter.User)
	add("report_type", filter.ReportType)
	add("province", filter.Province)
	add("ward", filter.Ward)
	add("school", filter.School)

	query := `SELECT ` + reportColumns + ` FROM report`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	orderList := make([]string, 0, len(filter.Ordering)+1)
	for _, ord := range filter.Ordering {
		if col, ok := orderColumns[ord.Field]; ok {
			ord.Field = col
			orderList = append(orderList, ord.String())
		}
	}
	query += ` ORDER BY ` + strings.Join(append(orderList, "id ASC"), ", ")

	var rows []reportRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying reports")
	}
	reports := make([]report.Report, 0, len(rows))
	for _, row := range rows {
		reports = append(reports, row.report())
	}
	return reports, nil
}

func (repo reportRepository) DeleteReport(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return report.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx, `DELETE FROM report WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting report")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return report.ErrNotFound
	}
	return nil
}

func (repo reportRepository) GetChildReport(ctx context.Context, reportID, sectionKey string) (report.ChildReport, error) {
	if _, err := uuid.Parse(reportID); err != nil {
		return report.ChildReport{}, report.ErrNotFound
	}
	var row childRow
	err := repo.db.GetContext(ctx, &row, `
		SELECT id, report_id, section_key, status, data, updated_at
		FROM child_report WHERE report_id = $1 AND section_key = $2`,
		reportID, sectionKey)
	if err != nil {
		return report.ChildReport{}, trapNoRowsErr(err, "finding child report")
	}
	return row.child(), nil
}

func (repo reportRepository) CommitChildReport(ctx context.Context, child report.ChildReport) (report.ChildReport, report.Report, error) {
	if _, err := uuid.Parse(child.ReportID); err != nil {
		return report.ChildReport{}, report.Report{}, report.ErrNotFound
	}
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return report.ChildReport{}, report.Report{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	var row reportRow
	err = tx.GetContext(ctx, &row, `SELECT `+reportColumns+` FROM report WHERE id = $1 FOR UPDATE`, child.ReportID)
	if err != nil {
		return report.ChildReport{}, report.Report{}, trapNoRowsErr(err, "locking report")
	}

	if child.ID == "" {
		child.ID = uuid.NewString()
	}
	crow := childRow{
		ID:         child.ID,
		ReportID:   child.ReportID,
		SectionKey: child.SectionKey,
		Status:     string(child.Status),
		Data:       treeColumn(child.Data),
		UpdatedAt:  child.UpdatedAt.UTC(),
	}
	err = tx.GetContext(ctx, &crow.ID, `
		INSERT INTO child_report (id, report_id, section_key, status, data, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (report_id, section_key)
		DO UPDATE SET status = EXCLUDED.status, data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
		RETURNING id`,
		crow.ID, crow.ReportID, crow.SectionKey, crow.Status, crow.Data, crow.UpdatedAt)
	if err != nil {
		return report.ChildReport{}, report.Report{}, errors.Wrap(err, "upserting child report")
	}

	r := row.report()
	r.Status = r.Status.Move(child.SectionKey, child.Status)
	r.UpdatedAt = crow.UpdatedAt
	if _, err := tx.ExecContext(ctx,
		`UPDATE report SET pending = $1, done = $2, updated_at = $3 WHERE id = $4`,
		stringList(r.Status.Pending), stringList(r.Status.Done), r.UpdatedAt, r.ID); err != nil {
		return report.ChildReport{}, report.Report{}, errors.Wrap(err, "updating report status")
	}

	if err := tx.Commit(); err != nil {
		return report.ChildReport{}, report.Report{}, errors.Wrap(err, "committing transaction")
	}
	return crow.child(), r, nil
}
