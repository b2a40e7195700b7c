package report

import (
	"context"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// ErrSchoolCategory is returned for an unknown school category.
var ErrSchoolCategory = errors.New("school type must be one of all, cl, ncl or nl")

// School is an entry of the school directory.
type School struct {
	Code     string `json:"code" yaml:"code"`
	Name     string `json:"name" yaml:"name"`
	Province string `json:"province" yaml:"province"`
	Ward     string `json:"ward" yaml:"ward"`
	// Ownership is "cl" for public schools.
	Ownership string `json:"ownership" yaml:"ownership"`
	// ReportType is the one report type the school fills in.
	ReportType string `json:"reportType" yaml:"reportType"`
}

// SchoolDirectory lists every school expected to report.
type SchoolDirectory interface {
	Schools(ctx context.Context) ([]School, error)
}

// SchoolList is a fixed SchoolDirectory.
type SchoolList []School

func (l SchoolList) Schools(context.Context) ([]School, error) {
	return l, nil
}

// SchoolCategory selects the schools counted by a dashboard.
type SchoolCategory string

const (
	CategoryAll         SchoolCategory = ""
	CategoryPublic      SchoolCategory = "cl"
	CategoryNonPublic   SchoolCategory = "ncl"
	CategoryIndependent SchoolCategory = "nl"
)

// independent class groups are told apart by their name only
var independentName = regexp.MustCompile(`(?i)NLĐL|MNĐL|NTĐL`)

// ParseSchoolCategory parses a category, "all" and "" being CategoryAll.
func ParseSchoolCategory(s string) (SchoolCategory, error) {
	switch c := SchoolCategory(strings.ToLower(strings.TrimSpace(s))); c {
	case "all":
		return CategoryAll, nil
	case CategoryAll, CategoryPublic, CategoryNonPublic, CategoryIndependent:
		return c, nil
	}
	return "", ErrSchoolCategory
}

// Match reports whether school belongs to c.
func (c SchoolCategory) Match(school School) bool {
	switch c {
	case CategoryPublic:
		return school.Ownership == "cl"
	case CategoryNonPublic:
		return school.Ownership != "cl"
	case CategoryIndependent:
		return independentName.MatchString(school.Name)
	}
	return true
}

// FilterSchools returns the schools of category c matching the location,
// school and report type fields of filter.
func FilterSchools(schools []School, filter QueryFilter, c SchoolCategory) []School {
	out := make([]School, 0, len(schools))
	for _, s := range schools {
		switch {
		case filter.Province != "" && s.Province != filter.Province,
			filter.Ward != "" && s.Ward != filter.Ward,
			filter.School != "" && s.Code != filter.School,
			filter.ReportType != "" && s.ReportType != filter.ReportType,
			!c.Match(s):
			continue
		}
		out = append(out, s)
	}
	return out
}
