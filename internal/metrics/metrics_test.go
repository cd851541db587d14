package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservePrediction(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	m.ObservePrediction(StatusSuccess, 20*time.Millisecond)
	m.ObservePrediction(StatusSuccess, 30*time.Millisecond)
	m.ObservePrediction(StatusInferenceFailure, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PredictionTotal.WithLabelValues(StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PredictionTotal.WithLabelValues(StatusInferenceFailure)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.PredictionDuration))
}

func TestObserveDiagnosisAndModelLoaded(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	m.ObserveDiagnosis("Tomato_healthy", "severe")
	m.SetModelLoaded(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DiagnosisTotal.WithLabelValues("Tomato_healthy", "severe")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ModelLoaded))

	m.SetModelLoaded(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ModelLoaded))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m, err := New()
	require.NoError(t, err)
	m.ObservePrediction(StatusSuccess, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `plantdx_predictions_total{status="success"} 1`), body)
	assert.Contains(t, body, "plantdx_prediction_duration_seconds_bucket")
	assert.Contains(t, body, "go_goroutines")
}

func TestNewUsesIndependentRegistries(t *testing.T) {
	a, err := New()
	require.NoError(t, err)
	b, err := New()
	require.NoError(t, err)
	assert.NotSame(t, a.Registry(), b.Registry())
}
