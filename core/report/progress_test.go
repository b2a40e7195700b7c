package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountProgress(t *testing.T) {
	tests := []struct {
		name   string
		total  int
		status StatusSets
		want   Progress
	}{
		{
			name:   "mixed",
			total:  5,
			status: StatusSets{Pending: []string{"a"}, Done: []string{"b", "c"}},
			want:   Progress{Todo: 2, Pending: 1, Done: 2, Total: 5},
		},
		{name: "nothing yet", total: 3, want: Progress{Todo: 3, Total: 3}},
		{
			name:   "stale keys",
			total:  1,
			status: StatusSets{Done: []string{"a", "gone"}},
			want:   Progress{Done: 2, Total: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CountProgress(tt.total, tt.status))
		})
	}
}

func TestStatusSets(t *testing.T) {
	s := StatusSets{Pending: []string{"a"}, Done: []string{"b"}}
	assert.Equal(t, StatusPending, s.Of("a"))
	assert.Equal(t, StatusDone, s.Of("b"))
	assert.Equal(t, StatusTodo, s.Of("c"))
	assert.True(t, s.Has("a"))
	assert.False(t, s.Has("c"))

	moved := s.Move("a", StatusDone)
	assert.Equal(t, StatusSets{Pending: []string{}, Done: []string{"b", "a"}}, moved)
	assert.Equal(t, []string{"a"}, s.Pending, "the original sets are left untouched")

	moved = moved.Move("b", StatusTodo)
	assert.Equal(t, StatusSets{Pending: []string{}, Done: []string{"a"}}, moved)
	assert.Equal(t, StatusPending, moved.Move("a", StatusPending).Of("a"))
}

func TestSchoolStatus(t *testing.T) {
	keys := func(n int) []string {
		list := make([]string, n)
		for i := range list {
			list[i] = string(rune('a' + i))
		}
		return list
	}
	tests := []struct {
		name     string
		status   StatusSets
		expected int
		want     Status
	}{
		{name: "all done", status: StatusSets{Done: keys(8)}, expected: 8, want: StatusDone},
		{name: "some done", status: StatusSets{Done: keys(7)}, expected: 8, want: StatusTodo},
		{name: "one pending", status: StatusSets{Pending: []string{"x"}, Done: keys(7)}, expected: 8, want: StatusPending},
		{name: "default expected", status: StatusSets{Done: keys(2)}, expected: 2, want: StatusDone},
		{name: "empty", expected: 2, want: StatusTodo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SchoolStatus(Report{Status: tt.status}, tt.expected))
		})
	}
}

func TestNewReportProgress(t *testing.T) {
	sections := []Section{{Name: "A", SectionKey: "a"}, {Name: "B", SectionKey: "b"}, {Name: "C", SectionKey: "c"}}
	rp := NewReportProgress(Report{Status: StatusSets{Pending: []string{"c"}, Done: []string{"a"}}}, sections)

	assert.Equal(t, Progress{Todo: 1, Pending: 1, Done: 1, Total: 3}, rp.Progress)
	statuses := make([]Status, len(rp.Sections))
	for i, s := range rp.Sections {
		statuses[i] = s.Status
	}
	assert.Equal(t, []Status{StatusDone, StatusTodo, StatusPending}, statuses)
}

func TestSummarize(t *testing.T) {
	expected := func(reportType string) int {
		if reportType == "mn" {
			return 3
		}
		return 1
	}
	reports := []Report{
		{Ward: "w1", ReportType: "mn", Status: StatusSets{Done: []string{"a", "b", "c"}}},
		{Ward: "w1", ReportType: "mn", Status: StatusSets{Pending: []string{"a"}}},
		{Ward: "w2", ReportType: "th", Status: StatusSets{Done: []string{"a"}}},
		{Ward: "w2", ReportType: "th"},
	}

	sum := Summarize(reports, ByWard, expected)
	assert.Equal(t, Summary{
		Groups: map[string]Progress{
			"w1": {Pending: 1, Done: 1, Total: 2},
			"w2": {Todo: 1, Done: 1, Total: 2},
		},
		Total: Progress{Todo: 1, Pending: 1, Done: 2, Total: 4},
	}, sum)
	assert.Equal(t, []string{"w1", "w2"}, sum.GroupNames())

	assert.Equal(t, Summary{Groups: map[string]Progress{}}, Summarize(nil, ByProvince, expected))
}

func TestSummarize_groupNamedTotal(t *testing.T) {
	reports := []Report{
		{Ward: "total", ReportType: "th", Status: StatusSets{Done: []string{"a"}}},
		{Ward: "w1", ReportType: "th"},
	}
	sum := Summarize(reports, ByWard, func(string) int { return 1 })
	assert.Equal(t, Progress{Done: 1, Total: 1}, sum.Groups["total"])
	assert.Equal(t, Progress{Todo: 1, Done: 1, Total: 2}, sum.Total)
	assert.Equal(t, []string{"total", "w1"}, sum.GroupNames())
}

func TestSummarizeSchools(t *testing.T) {
	expected := func(reportType string) int {
		if reportType == "mn" {
			return 8
		}
		return 2
	}
	schools := []School{
		{Code: "S1", Province: "68", Ward: "w1", ReportType: "mn"},
		{Code: "S2", Province: "68", Ward: "w1", ReportType: "mn"},
		{Code: "S3", Province: "68", Ward: "w2", ReportType: "th"},
		{Code: "S4", Province: "68", Ward: "w2", ReportType: "th"},
	}
	reports := []Report{
		{School: "S1", Ward: "w1", ReportType: "mn", Status: StatusSets{Done: []string{"a", "b", "c", "d", "e", "f", "g", "h"}}},
		{School: "S3", Ward: "w2", ReportType: "th", Status: StatusSets{Pending: []string{"a"}}},
		// another report type than the school's own
		{School: "S4", Ward: "w2", ReportType: "mn", Status: StatusSets{Pending: []string{"a"}}},
		// not in the directory
		{School: "S9", Ward: "w9", ReportType: "th", Status: StatusSets{Done: []string{"a", "b"}}},
	}

	sum := SummarizeSchools(schools, reports, ByWard, expected)
	assert.Equal(t, Summary{
		Groups: map[string]Progress{
			"w1": {Todo: 1, Done: 1, Total: 2},
			"w2": {Todo: 1, Pending: 1, Total: 2},
		},
		Total: Progress{Todo: 2, Pending: 1, Done: 1, Total: 4},
	}, sum)

	sum = SummarizeSchools(schools, nil, ByProvince, expected)
	assert.Equal(t, Progress{Todo: 4, Total: 4}, sum.Groups["68"])
	assert.Equal(t, sum.Groups["68"], sum.Total)
}

func TestParseSchoolCategory(t *testing.T) {
	tests := []struct {
		in      string
		want    SchoolCategory
		wantErr bool
	}{
		{in: "", want: CategoryAll},
		{in: "all", want: CategoryAll},
		{in: " CL ", want: CategoryPublic},
		{in: "ncl", want: CategoryNonPublic},
		{in: "nl", want: CategoryIndependent},
		{in: "tt", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSchoolCategory(tt.in)
			if tt.wantErr {
				assert.Equal(t, ErrSchoolCategory, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilterSchools(t *testing.T) {
	schools := []School{
		{Code: "S1", Name: "Hoa Sen", Province: "68", Ward: "w1", Ownership: "cl", ReportType: "mn"},
		{Code: "S2", Name: "Nhóm lớp NLĐL Sao Mai", Province: "68", Ward: "w1", Ownership: "dl", ReportType: "mn"},
		{Code: "S3", Name: "mnđl Tuổi Thơ", Province: "68", Ward: "w2", Ownership: "tt", ReportType: "mn"},
		{Code: "S4", Name: "Anh Duong", Province: "68", Ward: "w2", Ownership: "cl", ReportType: "th"},
	}
	codes := func(list []School) []string {
		out := make([]string, len(list))
		for i, s := range list {
			out[i] = s.Code
		}
		return out
	}

	tests := []struct {
		name     string
		filter   QueryFilter
		category SchoolCategory
		want     []string
	}{
		{name: "everything", want: []string{"S1", "S2", "S3", "S4"}},
		{name: "public", category: CategoryPublic, want: []string{"S1", "S4"}},
		{name: "non public", category: CategoryNonPublic, want: []string{"S2", "S3"}},
		{name: "independent ignores case", category: CategoryIndependent, want: []string{"S2", "S3"}},
		{name: "ward", filter: QueryFilter{Ward: "w2"}, want: []string{"S3", "S4"}},
		{name: "report type and category", filter: QueryFilter{ReportType: "mn"}, category: CategoryPublic, want: []string{"S1"}},
		{name: "school", filter: QueryFilter{School: "S4"}, want: []string{"S4"}},
		{name: "no match", filter: QueryFilter{Province: "01"}, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, codes(FilterSchools(schools, tt.filter, tt.category)))
		})
	}
}
