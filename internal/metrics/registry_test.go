package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordIteration(t *testing.T) {
	r := NewRegistry()

	r.RecordIteration(false, map[string]float64{"Sharpe": 1.42, "Fitness": 1.01})
	r.RecordIteration(true, map[string]float64{"Sharpe": 1.61})

	assert.Equal(t, 1.0, testutil.ToFloat64(r.Iterations.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Iterations.WithLabelValues("submittable")))

	v, ok := r.LastValue("Sharpe")
	require.True(t, ok)
	assert.Equal(t, 1.61, v)
	assert.Equal(t, 1.01, testutil.ToFloat64(r.LastMetric.WithLabelValues("Fitness")))
}

func TestStepTimer(t *testing.T) {
	r := NewRegistry()
	r.StartStep("simulate").Stop(nil)
	r.StartStep("simulate").Stop(errors.New("boom"))

	assert.Equal(t, 2, testutil.CollectAndCount(r.StepDuration))
}

func TestHandler(t *testing.T) {
	r := NewRegistry()
	r.ModelRetries.Inc()
	r.Simulations.WithLabelValues("complete").Inc()

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "alphaloop_model_retries_total 1")
	assert.Contains(t, string(body), `alphaloop_simulations_total{status="complete"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
