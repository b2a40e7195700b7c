package report_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/schoolstats/core"
	"github.com/trezcool/schoolstats/core/form"
	"github.com/trezcool/schoolstats/core/report"
	"github.com/trezcool/schoolstats/core/schema"
	"github.com/trezcool/schoolstats/core/valuetree"
	dummydb "github.com/trezcool/schoolstats/storage/database/dummy"
	inmemdb "github.com/trezcool/schoolstats/storage/database/inmem"
)

var (
	owner = core.Identity{ID: "u1", Username: "jane", Email: "jane@school.test"}
	other = core.Identity{ID: "u2", Username: "john"}
	admin = core.Identity{ID: "a1", IsAdmin: true}
)

type (
	recordingEmail struct {
		mu   sync.Mutex
		sent []*core.EmailMessage
	}

	recordingEvents struct {
		mu     sync.Mutex
		events []report.ChildCommitted
		err    error
	}

	failingStorage struct{ err error }

	recordingMetrics struct {
		mu       sync.Mutex
		saves    []error
		sessions int
	}

	testEnv struct {
		svc     *report.Service
		schemas *dummydb.SchemaStore
		email   *recordingEmail
		events  *recordingEvents
		metrics *recordingMetrics
	}
)

func (e *recordingEmail) SendMessages(messages ...*core.EmailMessage) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sent = append(e.sent, messages...)
}

func (e *recordingEvents) Publish(_ context.Context, subject string, payload interface{}) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if subject == core.SubjectChildCommitted {
		e.events = append(e.events, payload.(report.ChildCommitted))
	}
	return e.err
}

func (s failingStorage) Upload(context.Context, *core.Attachment, string, string) (core.FileUploaded, error) {
	return core.FileUploaded{}, s.err
}

func (m *recordingMetrics) SaveObserved(_ report.Status, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves = append(m.saves, err)
}

func (m *recordingMetrics) UploadObserved(int64, error) {}

func (m *recordingMetrics) SessionsOpen(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = n
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

func infoDoc() schema.Fields {
	return schema.NewFields(
		&schema.Field{Key: "info", Name: "General information", Fields: schema.NewFields(
			&schema.Field{Key: "x", Name: "Boys", Type: schema.TypeNumber},
			&schema.Field{Key: "y", Name: "Girls", Type: schema.TypeNumber},
			&schema.Field{Key: "total", Name: "Pupils", Type: schema.TypeSummary, Config: &schema.SummaryConfig{SummaryFields: []string{"info.x", "info.y"}}},
			&schema.Field{Key: "proof", Name: "Proof", Type: schema.TypeFile, Config: &schema.FileConfig{Path: "proofs"}},
		)},
	)
}

func newTestEnv(t *testing.T, storage core.FileStorage) *testEnv {
	t.Helper()
	schemas := dummydb.NewSchemaStore()
	for _, key := range []string{"a", "b", "c", "d", "e"} {
		schemas.Put("th", report.Section{Name: "Section " + key, SectionKey: key}, infoDoc())
	}
	env := &testEnv{
		schemas: schemas,
		email:   &recordingEmail{},
		events:  &recordingEvents{},
		metrics: &recordingMetrics{},
	}
	env.svc = report.NewService(report.Deps{
		Repository: inmemdb.NewReportRepository(inmemdb.Open()),
		Schemas:    schemas,
		Storage:    storage,
		Email:      env.email,
		Events:     env.events,
		Logger:     nopLogger{},
		Metrics:    env.metrics,
		Config:     core.ReportsConfig{ExpectedSections: map[string]int{"mn": 8}, DefaultExpectedSections: 5},
	})
	return env
}

func (env *testEnv) createReport(t *testing.T, id core.Identity) report.Report {
	t.Helper()
	r, err := env.svc.Create(context.Background(), report.NewReport{Province: "P1", Ward: "W1", School: "School " + id.ID, ReportType: "th"}, id)
	require.NoError(t, err)
	return r
}

func TestService_Create(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	r := env.createReport(t, owner)
	assert.Equal(t, owner.ID, r.User)
	assert.Equal(t, report.StatusSets{Pending: []string{}, Done: []string{}}, r.Status)

	_, err := env.svc.Create(ctx, report.NewReport{Province: "P1", Ward: "W1", School: " School u1 ", ReportType: "th"}, other)
	require.Error(t, err)
	assert.True(t, core.IsValidationError(err), "one report per school and type")

	_, err = env.svc.Create(ctx, report.NewReport{Province: "P1", Ward: "W1", School: "S", ReportType: "nope"}, owner)
	assert.Equal(t, report.ErrSchemaNotFound, errors.Cause(err))
}

func TestService_Get_access(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	r := env.createReport(t, owner)

	tests := []struct {
		name    string
		id      core.Identity
		wantErr error
	}{
		{name: "owner", id: owner},
		{name: "admin", id: admin},
		{name: "someone else", id: other, wantErr: report.ErrForbidden},
		{name: "anonymous", id: core.Identity{}, wantErr: report.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Get(ctx, r.ID, tt.id)
			assert.Equal(t, tt.wantErr, err)
		})
	}

	_, err := env.svc.Get(ctx, "missing", owner)
	assert.Equal(t, report.ErrNotFound, errors.Cause(err))
}

func TestService_Commit_progress(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	r := env.createReport(t, owner)

	commits := []report.CommitChild{
		{ReportID: r.ID, SectionKey: "a", Status: report.StatusPending},
		{ReportID: r.ID, SectionKey: "b", Status: report.StatusDone},
		{ReportID: r.ID, SectionKey: "c", Status: report.StatusDone},
	}
	for _, cc := range commits {
		_, err := env.svc.Commit(ctx, cc, owner)
		require.NoError(t, err)
	}

	p, err := env.svc.Progress(ctx, r.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, report.Progress{Todo: 2, Pending: 1, Done: 2, Total: 5}, p.Progress)
	assert.Equal(t, report.StatusTodo, p.Sections[3].Status)

	_, err = env.svc.Commit(ctx, report.CommitChild{ReportID: r.ID, SectionKey: "a", Status: "finished"}, owner)
	assert.True(t, core.IsValidationError(err))
	_, err = env.svc.Commit(ctx, report.CommitChild{ReportID: r.ID, SectionKey: "z", Status: report.StatusDone}, owner)
	assert.Equal(t, report.ErrSchemaNotFound, errors.Cause(err))
	_, err = env.svc.Commit(ctx, report.CommitChild{ReportID: r.ID, SectionKey: "a", Status: report.StatusDone}, other)
	assert.Equal(t, report.ErrForbidden, err)

	assert.Len(t, env.events.events, 3)
	assert.Len(t, env.email.sent, 2, "a receipt per submitted section")
}

func TestService_GetChild_empty(t *testing.T) {
	env := newTestEnv(t, nil)
	r := env.createReport(t, owner)

	child, err := env.svc.GetChild(context.Background(), r.ID, "a", owner)
	require.NoError(t, err)
	assert.Equal(t, report.StatusTodo, child.Status)
	assert.Equal(t, valuetree.Tree{}, child.Data)
}

type memStorage struct{}

func (memStorage) Upload(_ context.Context, att *core.Attachment, name, path string) (core.FileUploaded, error) {
	return core.FileUploaded{FileName: name + att.Ext(), URL: "/files/" + path + "/" + name + att.Ext()}, nil
}

func TestService_Save(t *testing.T) {
	env := newTestEnv(t, memStorage{})
	ctx := context.Background()
	r := env.createReport(t, owner)

	sess, err := env.svc.OpenSession(ctx, r.ID, "a", owner)
	require.NoError(t, err)
	assert.Equal(t, 1, env.metrics.sessions)

	_, err = sess.Apply(valuetree.Edit{Path: "info.x", Value: 3.0}, valuetree.Edit{Path: "info.y", Value: 4.0})
	require.NoError(t, err)
	require.NoError(t, sess.SelectFile("info.proof", core.NewAttachment("p.png", []byte("x"), "image/png")))

	child, err := env.svc.Save(ctx, sess, true)
	require.NoError(t, err)
	assert.Equal(t, report.StatusPending, child.Status)
	assert.Equal(t, 7.0, valuetree.Lookup(child.Data, "info.total"))
	assert.Equal(t, map[string]interface{}{"fileName": "p.png", "url": "/files/proofs/" + r.ID + "/a/info_u1.png"}, valuetree.Lookup(child.Data, "info.proof"))
	assert.Empty(t, sess.Dirty())
	assert.Empty(t, env.email.sent, "no receipt for temporary saves")

	stored, err := env.svc.Get(ctx, r.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, stored.Status.Pending)

	child, err = env.svc.Save(ctx, sess, false)
	require.NoError(t, err)
	assert.Equal(t, report.StatusDone, child.Status)
	require.Len(t, env.email.sent, 1)
	assert.Equal(t, "report_submitted", env.email.sent[0].TemplateName)
	assert.Equal(t, owner.Email, env.email.sent[0].To[0].Address)

	stored, err = env.svc.Get(ctx, r.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, report.StatusSets{Pending: []string{}, Done: []string{"a"}}, stored.Status)

	require.Len(t, env.events.events, 2)
	assert.Equal(t, report.StatusDone, env.events.events[1].Status)
	assert.Equal(t, owner.ID, env.events.events[1].User)

	reopened, err := env.svc.OpenSession(ctx, r.ID, "a", owner)
	require.NoError(t, err)
	assert.Equal(t, 7.0, valuetree.Lookup(reopened.Tree(), "info.total"))
	assert.Len(t, env.metrics.saves, 2)
}

func TestService_Save_uploadFailure(t *testing.T) {
	env := newTestEnv(t, failingStorage{err: errors.New("bucket unavailable")})
	ctx := context.Background()
	r := env.createReport(t, owner)

	sess, err := env.svc.OpenSession(ctx, r.ID, "a", owner)
	require.NoError(t, err)
	_, err = sess.Apply(valuetree.Edit{Path: "info.x", Value: 3.0})
	require.NoError(t, err)
	require.NoError(t, sess.SelectFile("info.proof", core.NewAttachment("p.png", []byte("x"), "image/png")))

	_, saveErr := env.svc.Save(ctx, sess, false)
	require.Error(t, saveErr)
	assert.Contains(t, saveErr.Error(), "bucket unavailable")

	child, err := env.svc.GetChild(ctx, r.ID, "a", owner)
	require.NoError(t, err)
	assert.Equal(t, report.StatusTodo, child.Status, "nothing is persisted")
	assert.Equal(t, 3.0, valuetree.Lookup(sess.Tree(), "info.x"), "the session keeps its edits")
	assert.Empty(t, env.events.events)
	assert.Equal(t, []error{saveErr}, env.metrics.saves)
}

func TestService_Save_eventFailureIsLogged(t *testing.T) {
	env := newTestEnv(t, nil)
	env.events.err = errors.New("nats down")
	ctx := context.Background()
	r := env.createReport(t, owner)

	sess, err := env.svc.OpenSession(ctx, r.ID, "b", owner)
	require.NoError(t, err)
	_, err = env.svc.Save(ctx, sess, true)
	assert.NoError(t, err)
}

func TestService_sessions(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	r := env.createReport(t, owner)

	_, err := env.svc.OpenSession(ctx, r.ID, "a", other)
	assert.Equal(t, report.ErrForbidden, err)
	_, err = env.svc.OpenSession(ctx, r.ID, "z", owner)
	assert.Equal(t, report.ErrSchemaNotFound, errors.Cause(err))

	sess, err := env.svc.OpenSession(ctx, r.ID, "a", owner)
	require.NoError(t, err)

	got, err := env.svc.Session(sess.ID, owner)
	require.NoError(t, err)
	assert.Same(t, sess, got)
	_, err = env.svc.Session(sess.ID, other)
	assert.Equal(t, report.ErrSessionNotFound, err)

	assert.Equal(t, 0, env.svc.PurgeSessions(time.Hour))
	assert.Equal(t, report.ErrSessionNotFound, env.svc.CloseSession(sess.ID, other))
	require.NoError(t, env.svc.CloseSession(sess.ID, owner))
	_, err = env.svc.Session(sess.ID, owner)
	assert.Equal(t, report.ErrSessionNotFound, err)

	sess, err = env.svc.OpenSession(ctx, r.ID, "b", owner)
	require.NoError(t, err)
	require.NoError(t, env.svc.Delete(ctx, r.ID, owner))
	_, err = env.svc.Session(sess.ID, owner)
	assert.Equal(t, report.ErrSessionNotFound, err, "deleting a report closes its sessions")
	assert.Equal(t, 0, env.metrics.sessions)
}

func TestService_OpenSession_prefill(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.schemas.Put("th", report.Section{Name: "Facilities", SectionKey: "f"}, schema.NewFields(
		&schema.Field{Key: "facts", Name: "Facilities", Fields: schema.NewFields(
			&schema.Field{Key: "pupils", Name: "Pupils", Type: schema.TypeNumber, From: &schema.Source{Section: "a", Path: "info.total"}},
			&schema.Field{Key: "perRoom", Name: "Pupils per room", Type: schema.TypeSummary, Config: &schema.SummaryConfig{DivideFields: []string{"facts.pupils", "facts.rooms"}}},
			&schema.Field{Key: "rooms", Name: "Rooms", Type: schema.TypeNumber},
		)},
	))
	env.svc.InvalidateSchemas()
	r := env.createReport(t, owner)

	sess, err := env.svc.OpenSession(ctx, r.ID, "f", owner)
	require.NoError(t, err)
	assert.Empty(t, sess.Dirty(), "nothing to copy yet")

	_, err = env.svc.Commit(ctx, report.CommitChild{
		ReportID:   r.ID,
		SectionKey: "a",
		Status:     report.StatusDone,
		Data:       valuetree.Tree{"info": map[string]interface{}{"x": "30", "y": "12", "total": float64(42)}},
	}, owner)
	require.NoError(t, err)

	sess, err = env.svc.OpenSession(ctx, r.ID, "f", owner)
	require.NoError(t, err)
	assert.Equal(t, float64(42), valuetree.Lookup(sess.Tree(), "facts.pupils"))
	assert.Equal(t, []string{"facts"}, sess.Dirty(), "copied values are saved with the section")

	_, err = sess.Apply(valuetree.Edit{Path: "facts.rooms", Value: "6"})
	require.NoError(t, err)
	assert.Equal(t, float64(7), valuetree.Lookup(sess.Tree(), "facts.perRoom"))
}

func TestService_Save_inFlight(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	r := env.createReport(t, owner)
	sess, err := env.svc.OpenSession(ctx, r.ID, "a", owner)
	require.NoError(t, err)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error)
	go func() {
		_, err := sess.Save(ctx, func(ctx context.Context, tree valuetree.Tree) (valuetree.Tree, error) {
			close(started)
			<-release
			return tree, nil
		})
		done <- err
	}()
	<-started

	_, err = env.svc.Save(ctx, sess, false)
	assert.Equal(t, form.ErrSaveInFlight, errors.Cause(err))
	assert.Empty(t, env.metrics.saves, "rejected saves are not observed")

	close(release)
	assert.NoError(t, <-done)
}

func TestService_Dashboard(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	r1 := env.createReport(t, owner)
	env.createReport(t, other)

	for _, key := range []string{"a", "b", "c", "d", "e"} {
		_, err := env.svc.Commit(ctx, report.CommitChild{ReportID: r1.ID, SectionKey: key, Status: report.StatusDone}, owner)
		require.NoError(t, err)
	}

	sum, err := env.svc.Dashboard(ctx, report.QueryFilter{ReportType: "th"}, report.CategoryAll, report.ByWard)
	require.NoError(t, err)
	assert.Equal(t, report.Progress{Todo: 1, Done: 1, Total: 2}, sum.Groups["W1"])
	assert.Equal(t, sum.Groups["W1"], sum.Total)

	_, err = env.svc.Dashboard(ctx, report.QueryFilter{}, report.CategoryPublic, report.ByWard)
	assert.True(t, core.IsValidationError(err), "a category needs a school directory")
}

func TestService_Dashboard_schoolDirectory(t *testing.T) {
	schemas := dummydb.NewSchemaStore()
	schemas.Put("th", report.Section{Name: "Section a", SectionKey: "a"}, infoDoc())
	schools := report.SchoolList{
		{Code: "S1", Name: "Hoa Sen", Province: "P1", Ward: "W1", Ownership: "cl", ReportType: "th"},
		{Code: "S2", Name: "NLĐL Binh Minh", Province: "P1", Ward: "W1", Ownership: "dl", ReportType: "th"},
		{Code: "S3", Name: "Anh Duong", Province: "P1", Ward: "total", Ownership: "cl", ReportType: "th"},
	}
	svc := report.NewService(report.Deps{
		Repository: inmemdb.NewReportRepository(inmemdb.Open()),
		Schemas:    schemas,
		Schools:    schools,
		Config:     core.ReportsConfig{DefaultExpectedSections: 1},
	})
	ctx := context.Background()

	r, err := svc.Create(ctx, report.NewReport{Province: "P1", Ward: "W1", School: "S1", ReportType: "th"}, owner)
	require.NoError(t, err)
	_, err = svc.Commit(ctx, report.CommitChild{ReportID: r.ID, SectionKey: "a", Status: report.StatusDone}, owner)
	require.NoError(t, err)
	// not listed: left out
	_, err = svc.Create(ctx, report.NewReport{Province: "P1", Ward: "W1", School: "S9", ReportType: "th"}, other)
	require.NoError(t, err)

	tests := []struct {
		name     string
		category report.SchoolCategory
		groups   map[string]report.Progress
		total    report.Progress
	}{
		{
			name:     "all",
			category: report.CategoryAll,
			groups: map[string]report.Progress{
				"W1":    {Todo: 1, Done: 1, Total: 2},
				"total": {Todo: 1, Total: 1},
			},
			total: report.Progress{Todo: 2, Done: 1, Total: 3},
		},
		{
			name:     "public",
			category: report.CategoryPublic,
			groups: map[string]report.Progress{
				"W1":    {Done: 1, Total: 1},
				"total": {Todo: 1, Total: 1},
			},
			total: report.Progress{Todo: 1, Done: 1, Total: 2},
		},
		{
			name:     "non public",
			category: report.CategoryNonPublic,
			groups:   map[string]report.Progress{"W1": {Todo: 1, Total: 1}},
			total:    report.Progress{Todo: 1, Total: 1},
		},
		{
			name:     "independent",
			category: report.CategoryIndependent,
			groups:   map[string]report.Progress{"W1": {Todo: 1, Total: 1}},
			total:    report.Progress{Todo: 1, Total: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sum, err := svc.Dashboard(ctx, report.QueryFilter{ReportType: "th"}, tt.category, report.ByWard)
			require.NoError(t, err)
			assert.Equal(t, tt.groups, sum.Groups)
			assert.Equal(t, tt.total, sum.Total)
		})
	}
}

func TestService_InvalidateSchemas(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	sections, err := env.svc.Sections(ctx, "th")
	require.NoError(t, err)
	require.Len(t, sections, 5)

	env.schemas.Put("th", report.Section{Name: "Section f", SectionKey: "f"}, infoDoc())
	sections, err = env.svc.Sections(ctx, "th")
	require.NoError(t, err)
	assert.Len(t, sections, 5, "sections are cached")

	env.svc.InvalidateSchemas("th")
	sections, err = env.svc.Sections(ctx, "th")
	require.NoError(t, err)
	assert.Len(t, sections, 6)
}
