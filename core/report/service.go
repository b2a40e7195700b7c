// Package report manages school reports: their sections, the child reports
// holding the answers of each section, editing sessions and progress.
package report

import (
	"context"
	"fmt"
	"net/mail"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolstats/core"
	"github.com/trezcool/schoolstats/core/form"
	"github.com/trezcool/schoolstats/core/schema"
	"github.com/trezcool/schoolstats/core/valuetree"
	"github.com/trezcool/schoolstats/core/widget"
)

var (
	// errors
	ErrNotFound        = errors.New("report not found")
	ErrSchemaNotFound  = errors.New("report schema not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrForbidden       = errors.New("you do not have access to this report")
	ErrReportExists    = errors.New("a report of this type already exists for this school")
)

type (
	Repository interface {
		CreateReport(ctx context.Context, r Report) (Report, error)
		GetReport(ctx context.Context, id string) (Report, error)
		// FilterReports applies AND operation on available QueryFilter fields.
		FilterReports(ctx context.Context, filter QueryFilter) ([]Report, error)
		// DeleteReport deletes a report along with its child reports.
		DeleteReport(ctx context.Context, id string) error
		GetChildReport(ctx context.Context, reportID, sectionKey string) (ChildReport, error)
		// CommitChildReport upserts child and moves its section key to the status set
		// of child.Status in the parent report, atomically.
		CommitChildReport(ctx context.Context, child ChildReport) (ChildReport, Report, error)
	}

	// SchemaSource provides the sections and the schema documents of report types.
	SchemaSource interface {
		Sections(ctx context.Context, reportType string) ([]Section, error)
		Schema(ctx context.Context, reportType, sectionKey string) (schema.Fields, error)
	}

	// Metrics observes the report operations.
	Metrics interface {
		SaveObserved(status Status, d time.Duration, err error)
		UploadObserved(size int64, err error)
		SessionsOpen(n int)
	}

	// Deps holds the collaborators of a Service. Only Repository and Schemas are required.
	Deps struct {
		Repository Repository
		Schemas    SchemaSource
		Schools    SchoolDirectory
		Storage    core.FileStorage
		Email      core.EmailService
		Events     core.EventPublisher
		Logger     core.Logger
		Metrics    Metrics
		Registry   *widget.Registry
		Config     core.ReportsConfig
		Location   *time.Location
	}

	Service struct {
		repo    Repository
		schemas SchemaSource
		schools SchoolDirectory
		email   core.EmailService
		events  core.EventPublisher
		logger  core.Logger
		metrics Metrics
		reg     *widget.Registry
		proc    *form.Processor
		conf    core.ReportsConfig
		loc     *time.Location

		cacheMu  sync.RWMutex
		sections map[string][]Section
		docs     map[string]schema.Fields

		sessMu   sync.Mutex
		sessions map[string]*form.Session
	}
)

var nowFunc = func() time.Time { return time.Now().UTC() }

func NewService(deps Deps) *Service {
	svc := &Service{
		repo:     deps.Repository,
		schemas:  deps.Schemas,
		schools:  deps.Schools,
		email:    deps.Email,
		events:   deps.Events,
		logger:   deps.Logger,
		metrics:  deps.Metrics,
		reg:      deps.Registry,
		conf:     deps.Config,
		loc:      deps.Location,
		sections: make(map[string][]Section),
		docs:     make(map[string]schema.Fields),
		sessions: make(map[string]*form.Session),
	}
	if svc.reg == nil {
		svc.reg = widget.NewRegistry(widget.Options{})
	}
	if svc.loc == nil {
		svc.loc = time.Local
	}
	svc.proc = form.NewProcessor(deps.Storage, func(att *core.Attachment, err error) {
		if svc.metrics != nil {
			svc.metrics.UploadObserved(att.Size(), err)
		}
	})
	return svc
}

// Schemas

// Sections returns the sections of reportType, cached after the first fetch.
func (svc *Service) Sections(ctx context.Context, reportType string) ([]Section, error) {
	svc.cacheMu.RLock()
	sections, ok := svc.sections[reportType]
	svc.cacheMu.RUnlock()
	if ok {
		return sections, nil
	}

	sections, err := svc.schemas.Sections(ctx, reportType)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching %s sections", reportType)
	}
	svc.cacheMu.Lock()
	svc.sections[reportType] = sections
	svc.cacheMu.Unlock()
	return sections, nil
}

// Schema returns the schema document of a section, cached after the first fetch.
// The document is shared: callers must not modify it.
func (svc *Service) Schema(ctx context.Context, reportType, sectionKey string) (schema.Fields, error) {
	key := reportType + "/" + sectionKey
	svc.cacheMu.RLock()
	doc, ok := svc.docs[key]
	svc.cacheMu.RUnlock()
	if ok {
		return doc, nil
	}

	doc, err := svc.schemas.Schema(ctx, reportType, sectionKey)
	if err != nil {
		return schema.Fields{}, errors.Wrapf(err, "fetching %s schema", key)
	}
	if doc.IsZero() {
		return schema.Fields{}, errors.Wrapf(ErrSchemaNotFound, "%s", key)
	}
	svc.cacheMu.Lock()
	svc.docs[key] = doc
	svc.cacheMu.Unlock()
	return doc, nil
}

// InvalidateSchemas drops the cached sections and schemas of reportTypes, of all types when none is given.
// Open sessions keep the schema they were opened with.
func (svc *Service) InvalidateSchemas(reportTypes ...string) {
	svc.cacheMu.Lock()
	defer svc.cacheMu.Unlock()
	if len(reportTypes) == 0 {
		svc.sections = make(map[string][]Section)
		svc.docs = make(map[string]schema.Fields)
		return
	}
	for _, t := range reportTypes {
		delete(svc.sections, t)
		for key := range svc.docs {
			if len(key) > len(t) && key[:len(t)+1] == t+"/" {
				delete(svc.docs, key)
			}
		}
	}
}

// ExpectedSections returns the number of sections a school must complete for reportType.
func (svc *Service) ExpectedSections(reportType string) int {
	return svc.conf.ExpectedFor(reportType)
}

// Reports

func canAccess(r Report, id core.Identity) bool {
	return id.IsAdmin || (r.User != "" && r.User == id.ID)
}

func (svc *Service) Create(ctx context.Context, nr NewReport, id core.Identity) (Report, error) {
	if _, err := svc.Sections(ctx, nr.ReportType); err != nil {
		return Report{}, err
	}
	school := core.CleanString(nr.School)
	existing, err := svc.repo.FilterReports(ctx, QueryFilter{ReportType: nr.ReportType, School: school})
	if err != nil {
		return Report{}, err
	}
	if len(existing) > 0 {
		return Report{}, core.NewValidationError(ErrReportExists, core.FieldError{Field: "school", Error: ErrReportExists.Error()})
	}

	now := nowFunc()
	return svc.repo.CreateReport(ctx, Report{
		ID:         uuid.NewString(),
		Province:   core.CleanString(nr.Province),
		Ward:       core.CleanString(nr.Ward),
		School:     school,
		ReportType: nr.ReportType,
		Status:     StatusSets{Pending: []string{}, Done: []string{}},
		User:       id.ID,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
}

func (svc *Service) Get(ctx context.Context, reportID string, id core.Identity) (Report, error) {
	r, err := svc.repo.GetReport(ctx, reportID)
	if err != nil {
		return Report{}, err
	}
	if !canAccess(r, id) {
		return Report{}, ErrForbidden
	}
	return r, nil
}

// ListOwn returns the reports of the acting user.
func (svc *Service) ListOwn(ctx context.Context, id core.Identity, ordering ...core.DBOrdering) ([]Report, error) {
	return svc.repo.FilterReports(ctx, QueryFilter{User: id.ID, Ordering: ordering})
}

// Filter returns every report matching filter. It is meant for administrators.
func (svc *Service) Filter(ctx context.Context, filter QueryFilter) ([]Report, error) {
	return svc.repo.FilterReports(ctx, filter)
}

func (svc *Service) Delete(ctx context.Context, reportID string, id core.Identity) error {
	if _, err := svc.Get(ctx, reportID, id); err != nil {
		return err
	}
	svc.closeSessions(func(s *form.Session) bool { return s.ReportID == reportID })
	return svc.repo.DeleteReport(ctx, reportID)
}

// Progress returns the per section progress of a report.
func (svc *Service) Progress(ctx context.Context, reportID string, id core.Identity) (ReportProgress, error) {
	r, err := svc.Get(ctx, reportID, id)
	if err != nil {
		return ReportProgress{}, err
	}
	sections, err := svc.Sections(ctx, r.ReportType)
	if err != nil {
		return ReportProgress{}, err
	}
	return NewReportProgress(r, sections), nil
}

// Dashboard summarizes the status of the schools matching filter and category, per group.
// With a school directory every listed school is counted, todo when it has no report yet;
// without one only the existing reports are, and category must be CategoryAll.
func (svc *Service) Dashboard(ctx context.Context, filter QueryFilter, category SchoolCategory, groupBy GroupBy) (Summary, error) {
	if svc.schools == nil && category != CategoryAll {
		return Summary{}, core.NewFieldError("school_type", "no school directory is configured")
	}
	reports, err := svc.repo.FilterReports(ctx, filter)
	if err != nil {
		return Summary{}, err
	}
	if svc.schools == nil {
		return Summarize(reports, groupBy, svc.ExpectedSections), nil
	}
	schools, err := svc.schools.Schools(ctx)
	if err != nil {
		return Summary{}, errors.Wrap(err, "listing schools")
	}
	return SummarizeSchools(FilterSchools(schools, filter, category), reports, groupBy, svc.ExpectedSections), nil
}

// Child reports

func (svc *Service) checkSection(ctx context.Context, reportType, sectionKey string) error {
	sections, err := svc.Sections(ctx, reportType)
	if err != nil {
		return err
	}
	for _, s := range sections {
		if s.SectionKey == sectionKey {
			return nil
		}
	}
	return errors.Wrapf(ErrSchemaNotFound, "%s/%s", reportType, sectionKey)
}

// GetChild returns the child report of a section, an empty todo one when nothing was saved yet.
func (svc *Service) GetChild(ctx context.Context, reportID, sectionKey string, id core.Identity) (ChildReport, error) {
	r, err := svc.Get(ctx, reportID, id)
	if err != nil {
		return ChildReport{}, err
	}
	if err := svc.checkSection(ctx, r.ReportType, sectionKey); err != nil {
		return ChildReport{}, err
	}
	return svc.getChild(ctx, r, sectionKey)
}

func (svc *Service) getChild(ctx context.Context, r Report, sectionKey string) (ChildReport, error) {
	child, err := svc.repo.GetChildReport(ctx, r.ID, sectionKey)
	switch errors.Cause(err) {
	case nil:
		if child.Data == nil {
			child.Data = valuetree.New()
		}
		return child, nil
	case ErrNotFound:
		return ChildReport{ReportID: r.ID, SectionKey: sectionKey, Status: StatusTodo, Data: valuetree.New()}, nil
	}
	return ChildReport{}, err
}

// Commit writes a child report as is.
func (svc *Service) Commit(ctx context.Context, cc CommitChild, id core.Identity) (ChildReport, error) {
	if !cc.Status.Valid() {
		return ChildReport{}, core.NewFieldError("status", statusText)
	}
	r, err := svc.Get(ctx, cc.ReportID, id)
	if err != nil {
		return ChildReport{}, err
	}
	if err := svc.checkSection(ctx, r.ReportType, cc.SectionKey); err != nil {
		return ChildReport{}, err
	}
	return svc.commit(ctx, r, cc.SectionKey, cc.Status, cc.Data, id)
}

func (svc *Service) commit(ctx context.Context, r Report, sectionKey string, status Status, data valuetree.Tree, id core.Identity) (ChildReport, error) {
	if data == nil {
		data = valuetree.New()
	}
	child, updated, err := svc.repo.CommitChildReport(ctx, ChildReport{
		ReportID:   r.ID,
		SectionKey: sectionKey,
		Status:     status,
		Data:       data,
		UpdatedAt:  nowFunc(),
	})
	if err != nil {
		return ChildReport{}, errors.Wrapf(err, "committing %s/%s", r.ID, sectionKey)
	}
	svc.afterCommit(ctx, updated, child, id)
	return child, nil
}

// afterCommit notifies the interested parties of a commit. Failures are logged only:
// the commit itself already succeeded.
func (svc *Service) afterCommit(ctx context.Context, r Report, child ChildReport, id core.Identity) {
	if svc.events != nil {
		evt := ChildCommitted{
			ReportID:   r.ID,
			SectionKey: child.SectionKey,
			Status:     child.Status,
			ReportType: r.ReportType,
			School:     r.School,
			User:       id.ID,
			At:         child.UpdatedAt,
		}
		if err := svc.events.Publish(ctx, core.SubjectChildCommitted, evt); err != nil {
			svc.log(fmt.Sprintf("report.publish(%s/%s): %v", r.ID, child.SectionKey, err), err, id)
		}
	}

	if svc.email != nil && child.Status == StatusDone && id.Email != "" {
		svc.email.SendMessages(&core.EmailMessage{
			To:           []mail.Address{{Name: id.Username, Address: id.Email}},
			Subject:      "Report submitted",
			TemplateName: "report_submitted",
			TemplateData: map[string]interface{}{
				"School":     r.School,
				"ReportType": r.ReportType,
				"Section":    child.SectionKey,
				"ReportID":   r.ID,
				"Progress":   CountProgress(svc.ExpectedSections(r.ReportType), r.Status),
			},
		})
	}
}

func (svc *Service) log(msg string, args ...interface{}) {
	if svc.logger != nil {
		svc.logger.Error(msg, args...)
	}
}

// Sessions

// OpenSession opens an editing session on a section of a report, starting from its saved answers.
func (svc *Service) OpenSession(ctx context.Context, reportID, sectionKey string, id core.Identity) (*form.Session, error) {
	r, err := svc.Get(ctx, reportID, id)
	if err != nil {
		return nil, err
	}
	if err := svc.checkSection(ctx, r.ReportType, sectionKey); err != nil {
		return nil, err
	}
	doc, err := svc.Schema(ctx, r.ReportType, sectionKey)
	if err != nil {
		return nil, err
	}
	child, err := svc.getChild(ctx, r, sectionKey)
	if err != nil {
		return nil, err
	}

	sess := form.NewSession(form.SessionConfig{
		ReportID:   r.ID,
		SectionKey: sectionKey,
		Identity:   id,
		Doc:        doc,
		Data:       child.Data,
		Registry:   svc.reg,
		Location:   svc.loc,
	})
	prefill, err := form.Prefill(doc, child.Data, func(sectionKey string) (valuetree.Tree, error) {
		src, err := svc.getChild(ctx, r, sectionKey)
		return src.Data, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "prefilling session")
	}
	if len(prefill) > 0 {
		if _, err := sess.Apply(prefill...); err != nil {
			return nil, errors.Wrap(err, "prefilling session")
		}
	}

	svc.sessMu.Lock()
	svc.sessions[sess.ID] = sess
	n := len(svc.sessions)
	svc.sessMu.Unlock()
	if svc.metrics != nil {
		svc.metrics.SessionsOpen(n)
	}
	return sess, nil
}

// Session returns the open session sessionID of the acting user.
func (svc *Service) Session(sessionID string, id core.Identity) (*form.Session, error) {
	svc.sessMu.Lock()
	sess, ok := svc.sessions[sessionID]
	svc.sessMu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	if sess.Identity.ID != id.ID {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (svc *Service) CloseSession(sessionID string, id core.Identity) error {
	if _, err := svc.Session(sessionID, id); err != nil {
		return err
	}
	svc.closeSessions(func(s *form.Session) bool { return s.ID == sessionID })
	return nil
}

// PurgeSessions closes the sessions untouched for longer than idle and returns how many were closed.
func (svc *Service) PurgeSessions(idle time.Duration) int {
	deadline := time.Now().Add(-idle)
	return svc.closeSessions(func(s *form.Session) bool { return s.LastTouched().Before(deadline) })
}

func (svc *Service) closeSessions(match func(s *form.Session) bool) int {
	svc.sessMu.Lock()
	var closed int
	for sid, s := range svc.sessions {
		if match(s) {
			delete(svc.sessions, sid)
			closed++
		}
	}
	n := len(svc.sessions)
	svc.sessMu.Unlock()
	if closed > 0 && svc.metrics != nil {
		svc.metrics.SessionsOpen(n)
	}
	return closed
}

// Save processes the tree of sess and commits it: done when submitted, pending when temporary.
// When anything fails nothing is persisted and the session keeps its edits.
func (svc *Service) Save(ctx context.Context, sess *form.Session, temporary bool) (ChildReport, error) {
	status := StatusDone
	if temporary {
		status = StatusPending
	}
	start := time.Now()

	var child ChildReport
	_, err := sess.Save(ctx, func(ctx context.Context, tree valuetree.Tree) (valuetree.Tree, error) {
		r, err := svc.Get(ctx, sess.ReportID, sess.Identity)
		if err != nil {
			return nil, err
		}
		processed, err := svc.proc.Process(ctx, sess.Doc(), tree, form.Naming{
			ReportID:   r.ID,
			SectionKey: sess.SectionKey,
			UserID:     sess.Identity.ID,
		})
		if err != nil {
			return nil, errors.Wrap(err, "processing report data")
		}
		child, err = svc.commit(ctx, r, sess.SectionKey, status, processed, sess.Identity)
		if err != nil {
			return nil, err
		}
		return child.Data, nil
	})

	if svc.metrics != nil && errors.Cause(err) != form.ErrSaveInFlight {
		svc.metrics.SaveObserved(status, time.Since(start), err)
	}
	if err != nil {
		return ChildReport{}, err
	}
	return child, nil
}
