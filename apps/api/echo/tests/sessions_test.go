package tests

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/schoolstats/core/form"
	"github.com/trezcool/schoolstats/core/report"
	"github.com/trezcool/schoolstats/core/valuetree"
	"github.com/trezcool/schoolstats/services/filestore"
)

type sessionResp struct {
	ID         string              `json:"id"`
	ReportID   string              `json:"reportId"`
	SectionKey string              `json:"reportKey"`
	Forms      []map[string]string `json:"forms"`
	Data       valuetree.Tree      `json:"data"`
	Dirty      []string            `json:"dirty"`
	Missing    []string            `json:"missing"`
}

func openSession(t *testing.T, app *testApp, token, reportID, key string) sessionResp {
	t.Helper()
	body := []byte(`{"reportId":"` + reportID + `","reportKey":"` + key + `"}`)
	req, rec := newAuthRequest(http.MethodPost, "/v1/sessions", token, body)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var sess sessionResp
	unmarchallObj(t, rec, &sess)
	return sess
}

func Test_sessionApi_open(t *testing.T) {
	app := setup(t)
	ownerToken := getToken(t, owner)
	otherToken := getToken(t, other)
	r := createReport(t, app, owner)

	sess := openSession(t, app, ownerToken, r.ID, "a")
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, r.ID, sess.ReportID)
	assert.Equal(t, []map[string]string{{"key": "info", "name": "General information"}}, sess.Forms)
	assert.Equal(t, []string{"info.y"}, sess.Missing)
	assert.Empty(t, sess.Dirty)

	tests := []httpTest{
		{
			name:     "missing section",
			method:   http.MethodPost,
			path:     "/v1/sessions",
			body:     []byte(`{"reportId":"` + r.ID + `"}`),
			token:    ownerToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"reportKey": "this field is required"}),
		},
		{
			name:     "report of another user",
			method:   http.MethodPost,
			path:     "/v1/sessions",
			body:     []byte(`{"reportId":"` + r.ID + `","reportKey":"a"}`),
			token:    otherToken,
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: report.ErrForbidden.Error()}),
		},
		{
			name:     "session of another user",
			method:   http.MethodGet,
			path:     "/v1/sessions/" + sess.ID,
			token:    otherToken,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: report.ErrSessionNotFound.Error()}),
		},
		{
			name:     "unknown form",
			method:   http.MethodGet,
			path:     "/v1/sessions/" + sess.ID + "/sections/nope",
			token:    ownerToken,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: form.ErrFormNotFound.Error()}),
		},
	}
	runHTTPTests(t, app, tests)

	t.Run("render", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/sessions/"+sess.ID+"/sections/info", ownerToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp struct {
			Units []struct {
				Kind string `json:"kind"`
				Path string `json:"path"`
			} `json:"units"`
		}
		unmarchallObj(t, rec, &resp)
		require.NotEmpty(t, resp.Units)
		assert.Equal(t, "section", resp.Units[0].Kind)
		assert.Equal(t, "info", resp.Units[0].Path)
	})
}

func Test_sessionApi_patch(t *testing.T) {
	app := setup(t)
	ownerToken := getToken(t, owner)
	r := createReport(t, app, owner)
	sess := openSession(t, app, ownerToken, r.ID, "a")
	path := "/v1/sessions/" + sess.ID

	tests := []httpTest{
		{
			name:     "nothing to do",
			method:   http.MethodPatch,
			path:     path,
			body:     []byte(`{}`),
			token:    ownerToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"op": "an operation or edits are required"}),
		},
		{
			name:     "operation without kind",
			method:   http.MethodPatch,
			path:     path,
			body:     []byte(`{"op":{"path":"info.x"}}`),
			token:    ownerToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"op.op": "this field is required"}),
		},
		{
			name:     "operation on unknown field",
			method:   http.MethodPatch,
			path:     path,
			body:     []byte(`{"op":{"op":"set","path":"info.zz","value":"1"}}`),
			token:    ownerToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"info.zz": form.ErrUnknownField.Error()}),
		},
		{
			name:     "edit of unknown form",
			method:   http.MethodPatch,
			path:     path,
			body:     []byte(`{"edits":[{"path":"zz.x","value":1}]}`),
			token:    ownerToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"zz.x": form.ErrUnknownField.Error()}),
		},
		{
			name:     "edit far past the end of a sequence",
			method:   http.MethodPatch,
			path:     path,
			body:     []byte(`{"edits":[{"path":"info.x.4611686018427387903","value":1}]}`),
			token:    ownerToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"info.x.4611686018427387903": form.ErrIndexOutOfRange.Error()}),
		},
		{
			name:     "second edit out of range rejects the batch",
			method:   http.MethodPatch,
			path:     path,
			body:     []byte(`{"edits":[{"path":"info.x","value":9},{"path":"info.list.1","value":1}]}`),
			token:    ownerToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"info.list.1": form.ErrIndexOutOfRange.Error()}),
		},
	}
	runHTTPTests(t, app, tests)

	t.Run("edits", func(t *testing.T) {
		body := []byte(`{"edits":[{"path":"info.x","value":3},{"path":"info.y","value":4}]}`)
		req, rec := newAuthRequest(http.MethodPatch, path, ownerToken, body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp struct {
			Edits []valuetree.Edit `json:"edits"`
			Data  valuetree.Tree   `json:"data"`
			Dirty []string         `json:"dirty"`
		}
		unmarchallObj(t, rec, &resp)
		assert.Len(t, resp.Edits, 2)
		assert.Equal(t, 3.0, valuetree.Lookup(resp.Data, "info.x"))
		assert.Equal(t, []string{"info"}, resp.Dirty)
	})

	t.Run("reset", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, path+"/reset/info", ownerToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp struct {
			Data valuetree.Tree `json:"data"`
		}
		unmarchallObj(t, rec, &resp)
		_, ok := valuetree.Get(resp.Data, "info.x")
		assert.False(t, ok)
	})
}

func Test_sessionApi_save(t *testing.T) {
	app := setup(t)
	ownerToken := getToken(t, owner)
	r := createReport(t, app, owner)
	sess := openSession(t, app, ownerToken, r.ID, "a")
	path := "/v1/sessions/" + sess.ID

	req, rec := newAuthRequest(http.MethodPatch, path, ownerToken, []byte(`{"edits":[{"path":"info.x","value":3},{"path":"info.y","value":4}]}`))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	t.Run("select file", func(t *testing.T) {
		req, rec := newFileRequest(t, path+"/files", ownerToken, "p.png", []byte("x"), map[string]string{"path": "info.proof"})
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		req, rec = newFileRequest(t, path+"/files", ownerToken, "p.png", []byte("x"), nil)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"path":"this field is required"}`, rec.Body.String())
	})

	t.Run("temporary save", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, path+"/save", ownerToken, []byte(`{"temporary":true}`))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var child report.ChildReport
		unmarchallObj(t, rec, &child)
		assert.Equal(t, report.StatusPending, child.Status)
		assert.Equal(t, 7.0, valuetree.Lookup(child.Data, "info.total"))

		rel := "proofs/" + r.ID + "/a/info_" + owner.ID + ".png"
		assert.Equal(t, "/files/"+rel+"?v="+filestore.Version([]byte("x")), valuetree.Lookup(child.Data, "info.proof.url"))
		content, ok := app.storage.File(rel)
		require.True(t, ok)
		assert.Equal(t, []byte("x"), content)
	})

	t.Run("submit", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, path+"/save", ownerToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		stored, err := app.svc.Get(req.Context(), r.ID, owner)
		require.NoError(t, err)
		assert.Equal(t, report.StatusSets{Pending: []string{}, Done: []string{"a"}}, stored.Status)
	})

	t.Run("close", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, path, ownerToken)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		req, rec = newAuthRequest(http.MethodPost, path+"/save", ownerToken)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func Test_fileApi_upload(t *testing.T) {
	app := setup(t)
	ownerToken := getToken(t, owner)

	req, rec := newFileRequest(t, "/v1/files/upload", ownerToken, "logo.png", []byte("png"), map[string]string{"dir": "logos"})
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{
		"fileName": "logo.png",
		"url": "/files/logos/logo.png?v=`+filestore.Version([]byte("png"))+`",
		"path": "logos/logo.png"
	}`, rec.Body.String())

	req, rec = newFileRequest(t, "/v1/files/upload", ownerToken, "logo.png", []byte("png"), map[string]string{"dir": "../etc"})
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"dir":"invalid directory"}`, rec.Body.String())
}

func Test_metrics(t *testing.T) {
	app := setup(t)

	req, rec := newRequest(http.MethodGet, "/v1/reports/config/th")
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req, rec = newRequest(http.MethodGet, "/metrics")
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `test_http_request_duration_seconds_count{code="401",method="GET",route="/v1/reports/config/:type"} 1`))
}
