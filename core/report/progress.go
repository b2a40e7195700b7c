package report

import "sort"

// Progress counts the sections (or schools) of each status.
type Progress struct {
	Todo    int `json:"todo"`
	Pending int `json:"pending"`
	Done    int `json:"done"`
	Total   int `json:"total"`
}

func (p *Progress) add(s Status) {
	switch s {
	case StatusDone:
		p.Done++
	case StatusPending:
		p.Pending++
	default:
		p.Todo++
	}
	p.Total++
}

// CountProgress counts the sections of a report with total sections.
// Todo is what remains once done and pending are taken out, never less than 0.
func CountProgress(total int, status StatusSets) Progress {
	p := Progress{Pending: len(status.Pending), Done: len(status.Done), Total: total}
	if todo := total - p.Done - p.Pending; todo > 0 {
		p.Todo = todo
	}
	return p
}

// SectionStatus returns the status of the section keyed key.
func SectionStatus(key string, status StatusSets) Status {
	return status.Of(key)
}

// SchoolStatus returns the overall status of a school report: done once all
// the expected sections are done, pending as soon as one section is pending.
func SchoolStatus(r Report, expected int) Status {
	switch {
	case len(r.Status.Done) == expected:
		return StatusDone
	case len(r.Status.Pending) > 0:
		return StatusPending
	}
	return StatusTodo
}

// SectionProgress is the status of one section of a report.
type SectionProgress struct {
	Section
	Status Status `json:"status"`
}

// ReportProgress is the detailed progress of one report.
type ReportProgress struct {
	Progress
	Sections []SectionProgress `json:"sections"`
}

// NewReportProgress computes the progress of r over its report type sections.
func NewReportProgress(r Report, sections []Section) ReportProgress {
	rp := ReportProgress{
		Progress: CountProgress(len(sections), r.Status),
		Sections: make([]SectionProgress, len(sections)),
	}
	for i, s := range sections {
		rp.Sections[i] = SectionProgress{Section: s, Status: SectionStatus(s.SectionKey, r.Status)}
	}
	return rp
}

// Summary is the school progress per group, along with the total of every group.
type Summary struct {
	Groups map[string]Progress `json:"groups"`
	Total  Progress            `json:"total"`
}

func newSummary() Summary {
	return Summary{Groups: make(map[string]Progress)}
}

func (s *Summary) add(group string, st Status) {
	p := s.Groups[group]
	p.add(st)
	s.Groups[group] = p
	s.Total.add(st)
}

// GroupNames returns the groups of s sorted.
func (s Summary) GroupNames() []string {
	groups := make([]string, 0, len(s.Groups))
	for g := range s.Groups {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups
}

// GroupBy returns the group of a report in a Summary.
type GroupBy func(r Report) string

var (
	ByProvince GroupBy = func(r Report) string { return r.Province }
	ByWard     GroupBy = func(r Report) string { return r.Ward }
	ByType     GroupBy = func(r Report) string { return r.ReportType }
)

// Summarize counts the status of every school report per group.
// expected returns the number of sections a school must complete for a report type.
func Summarize(reports []Report, groupBy GroupBy, expected func(reportType string) int) Summary {
	sum := newSummary()
	for _, r := range reports {
		sum.add(groupBy(r), SchoolStatus(r, expected(r.ReportType)))
	}
	return sum
}

// SummarizeSchools counts the status of every school of a directory per group.
// A school is matched with its report of its own report type; a school without
// one is todo. Reports of schools missing from schools are left out.
func SummarizeSchools(schools []School, reports []Report, groupBy GroupBy, expected func(reportType string) int) Summary {
	byKey := make(map[string]Report, len(reports))
	for _, r := range reports {
		byKey[r.School+"/"+r.ReportType] = r
	}

	sum := newSummary()
	for _, sc := range schools {
		r, ok := byKey[sc.Code+"/"+sc.ReportType]
		if !ok {
			sum.add(groupBy(Report{Province: sc.Province, Ward: sc.Ward, School: sc.Code, ReportType: sc.ReportType}), StatusTodo)
			continue
		}
		sum.add(groupBy(r), SchoolStatus(r, expected(sc.ReportType)))
	}
	return sum
}
