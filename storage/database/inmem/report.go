package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/schoolstats/core"
	"github.com/trezcool/schoolstats/core/report"
	"github.com/trezcool/schoolstats/core/valuetree"
)

type reportRepository struct {
	db *DB
}

var _ report.Repository = (*reportRepository)(nil) // interface compliance check

func NewReportRepository(db *DB) report.Repository {
	return &reportRepository{db: db}
}

func copyReport(r report.Report) report.Report {
	r.Status = report.StatusSets{
		Pending: append([]string{}, r.Status.Pending...),
		Done:    append([]string{}, r.Status.Done...),
	}
	return r
}

func (repo *reportRepository) CreateReport(_ context.Context, r report.Report) (report.Report, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	for _, other := range repo.db.report {
		if other.ReportType == r.ReportType && other.School == r.School {
			return report.Report{}, report.ErrReportExists
		}
	}
	r = copyReport(r)
	repo.db.report[r.ID] = &r
	return copyReport(r), nil
}

func (repo *reportRepository) GetReport(_ context.Context, id string) (report.Report, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if r, ok := repo.db.report[id]; ok {
		return copyReport(*r), nil
	}
	return report.Report{}, report.ErrNotFound
}

func match(value, filter string) bool {
	return filter == "" || value == filter
}

func (repo *reportRepository) FilterReports(_ context.Context, filter report.QueryFilter) ([]report.Report, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	reports := make([]report.Report, 0)
	for _, r := range repo.db.report {
		if match(r.User, filter.User) &&
			match(r.ReportType, filter.ReportType) &&
			match(r.Province, filter.Province) &&
			match(r.Ward, filter.Ward) &&
			match(r.School, filter.School) {
			reports = append(reports, copyReport(*r))
		}
	}
	sortReports(reports, filter.Ordering)
	return reports, nil
}

// sortReports sorts by the given orderings, by ID when none applies.
func sortReports(reports []report.Report, ordering []core.DBOrdering) {
	sort.SliceStable(reports, func(i, j int) bool {
		a, b := reports[i], reports[j]
		for _, ord := range ordering {
			var cmp int
			switch ord.Field {
			case report.OrderByUpdatedAt:
				switch {
				case a.UpdatedAt.Before(b.UpdatedAt):
					cmp = -1
				case a.UpdatedAt.After(b.UpdatedAt):
					cmp = 1
				}
			case report.OrderBySchool:
				cmp = strings.Compare(a.School, b.School)
			case report.OrderByWard:
				cmp = strings.Compare(a.Ward, b.Ward)
			}
			if cmp != 0 {
				return (cmp < 0) == ord.Ascending
			}
		}
		return a.ID < b.ID
	})
}

func (repo *reportRepository) DeleteReport(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.report[id]; !ok {
		return report.ErrNotFound
	}
	delete(repo.db.report, id)
	for k := range repo.db.child {
		if k.reportID == id {
			delete(repo.db.child, k)
		}
	}
	return nil
}

func (repo *reportRepository) GetChildReport(_ context.Context, reportID, sectionKey string) (report.ChildReport, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if c, ok := repo.db.child[childKey{reportID, sectionKey}]; ok {
		child := *c
		child.Data = valuetree.Clone(c.Data)
		return child, nil
	}
	return report.ChildReport{}, report.ErrNotFound
}

func (repo *reportRepository) CommitChildReport(_ context.Context, child report.ChildReport) (report.ChildReport, report.Report, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	r, ok := repo.db.report[child.ReportID]
	if !ok {
		return report.ChildReport{}, report.Report{}, report.ErrNotFound
	}
	key := childKey{child.ReportID, child.SectionKey}
	if existing, ok := repo.db.child[key]; ok {
		child.ID = existing.ID
	} else if child.ID == "" {
		child.ID = uuid.NewString()
	}
	child.Data = valuetree.Clone(child.Data)
	repo.db.child[key] = &child

	r.Status = r.Status.Move(child.SectionKey, child.Status)
	r.UpdatedAt = child.UpdatedAt

	saved := child
	saved.Data = valuetree.Clone(child.Data)
	return saved, copyReport(*r), nil
}
