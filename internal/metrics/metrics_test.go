package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_CountsByLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAuthRejection("expired")
	c.RecordAuthRejection("expired")
	c.RecordAuthRejection("missing_token")
	c.RecordLogin("success")
	c.RecordVerification("invalid_code")

	assert.Equal(t, 2.0, counterValue(t, c.authRejections.WithLabelValues("expired")))
	assert.Equal(t, 1.0, counterValue(t, c.authRejections.WithLabelValues("missing_token")))
	assert.Equal(t, 1.0, counterValue(t, c.logins.WithLabelValues("success")))
	assert.Equal(t, 1.0, counterValue(t, c.verifications.WithLabelValues("invalid_code")))
}

func counterValue(t *testing.T, counter prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, counter.Write(&m))
	return m.GetCounter().GetValue()
}

func TestHandler_ExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg).RecordLogin("failure")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `venuely_logins_total{outcome="failure"} 1`)
}
