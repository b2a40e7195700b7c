package metricsvc

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/schoolstats/core/report"
)

func TestMetrics(t *testing.T) {
	m := New("schoolstats")

	m.SaveObserved(report.StatusDone, time.Second, nil)
	m.SaveObserved(report.StatusDone, time.Second, errors.New("boom"))
	m.SaveObserved(report.StatusPending, time.Second, nil)
	m.UploadObserved(100, nil)
	m.UploadObserved(50, errors.New("boom"))
	m.SessionsOpen(3)
	m.ObserveRequest(http.MethodGet, "/v1/reports", 200, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.saves.WithLabelValues("done", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.saves.WithLabelValues("done", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.uploads.WithLabelValues("error")))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.uploadBytes), "failed uploads are not counted")
	assert.Equal(t, 3.0, testutil.ToFloat64(m.sessions))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `schoolstats_report_saves_total{result="ok",status="pending"} 1`)
	assert.Contains(t, string(body), `schoolstats_http_request_duration_seconds_count{code="200",method="GET",route="/v1/reports"} 1`)
}
