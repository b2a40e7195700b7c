package tests

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	. "github.com/trezcool/schoolstats/apps/api/echo"
	"github.com/trezcool/schoolstats/core"
	"github.com/trezcool/schoolstats/core/report"
	"github.com/trezcool/schoolstats/core/schema"
	"github.com/trezcool/schoolstats/services/filestore"
	"github.com/trezcool/schoolstats/services/metrics"
	dummydb "github.com/trezcool/schoolstats/storage/database/dummy"
	inmemdb "github.com/trezcool/schoolstats/storage/database/inmem"
)

var (
	testConf = &core.Config{
		AppName:   "SchoolStats",
		SecretKey: "test-secret",
		TestMode:  true,
		Server:    core.ServerConfig{JWTExpiration: time.Hour},
		Storage:   core.StorageConfig{BaseURL: "/files", MaxUploadSize: 1 << 20},
		Reports:   core.ReportsConfig{DefaultExpectedSections: 2},
	}

	owner = core.Identity{ID: "u1", Username: "jane", Province: "P1", Ward: "W1", School: "Lycee Umoja"}
	other = core.Identity{ID: "u2", Username: "john", Province: "P1", Ward: "W2", School: "EP Amani"}
	admin = core.Identity{ID: "a1", Username: "admin", IsAdmin: true}

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
)

type testApp struct {
	Server
	svc     *report.Service
	storage *filestore.MemoryStorage
}

func infoDoc() schema.Fields {
	return schema.NewFields(
		&schema.Field{Key: "info", Name: "General information", Fields: schema.NewFields(
			&schema.Field{Key: "x", Name: "Boys", Type: schema.TypeNumber},
			&schema.Field{Key: "y", Name: "Girls", Type: schema.TypeNumber, Required: true},
			&schema.Field{Key: "total", Name: "Pupils", Type: schema.TypeSummary, Config: &schema.SummaryConfig{SummaryFields: []string{"info.x", "info.y"}}},
			&schema.Field{Key: "proof", Name: "Proof", Type: schema.TypeFile, Config: &schema.FileConfig{Path: "proofs"}},
		)},
	)
}

// setup starts an app, counting the given schools on the dashboard when there are any.
func setup(t *testing.T, schools ...report.School) *testApp {
	t.Helper()

	// set up DB & repos
	repo := inmemdb.NewReportRepository(inmemdb.Open())
	schemas := dummydb.NewSchemaStore().
		Put("th", report.Section{Name: "Pupils", SectionKey: "a"}, infoDoc()).
		Put("th", report.Section{Name: "Staff", SectionKey: "b"}, infoDoc())

	// set up services
	validate, translator := core.NewValidator()
	report.InitValidators(validate, translator)
	schema.InitValidators(validate, translator)
	storage := filestore.NewMemoryStorage(testConf.Storage.BaseURL)
	var directory report.SchoolDirectory
	if len(schools) > 0 {
		directory = report.SchoolList(schools)
	}
	svc := report.NewService(report.Deps{
		Repository: repo,
		Schemas:    schemas,
		Schools:    directory,
		Storage:    storage,
		Config:     testConf.Reports,
		Location:   time.UTC,
	})

	// set up server
	app := NewServer(
		"",  /* addr */
		nil, /* shutdown */
		&Deps{
			Conf:       testConf,
			ReportSvc:  svc,
			Storage:    storage,
			Metrics:    metricsvc.New("test"),
			Validate:   validate,
			Translator: translator,
		},
	)
	return &testApp{Server: app, svc: svc, storage: storage}
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

// newFileRequest builds a multipart request holding content as `file` along with fields.
func newFileRequest(t *testing.T, path, token, filename string, content []byte, fields map[string]string) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req, httptest.NewRecorder()
}

func getToken(t *testing.T, id core.Identity) string {
	token, err := GenerateToken(NewClaims(id, testConf), testConf.SecretKey)
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func unmarchallObj(t *testing.T, rec *httptest.ResponseRecorder, obj interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), obj); err != nil {
		t.Fatalf("unmarchallObj(%s): %v", rec.Body.String(), err)
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, app http.Handler, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}
