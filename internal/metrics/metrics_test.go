package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	r := NewRecorder()

	r.ObserveCorrelation("fft", 1, 20*time.Millisecond, 12.5)
	r.ObserveCorrelation("fft", 2, 30*time.Millisecond, 8)
	r.ObserveSolve("joint", "converged (gradient)", 6)
	r.SetErrors("measured", 3.5, 0.25)
	r.TrialDone()

	assert.Equal(t, 2.0, testutil.ToFloat64(r.correlations.WithLabelValues("fft")))
	assert.Equal(t, 8.0, testutil.ToFloat64(r.confidence.WithLabelValues("2")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.solves.WithLabelValues("joint", "converged (gradient)")))
	assert.Equal(t, 3.5, testutil.ToFloat64(r.positionError.WithLabelValues("measured")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.trialsCompleted))
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	r.ObserveCorrelation("fft", 1, time.Second, 1)
	r.ObserveSolve("tdoa", "stalled", 1)
	r.SetErrors("truth", 0, 0)
	r.TrialDone()
	assert.NoError(t, r.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
	assert.Nil(t, r.Registry())
}

func TestWriteTextfile(t *testing.T) {
	r := NewRecorder()
	r.ObserveSolve("tdoa", "converged (step)", 4)

	path := filepath.Join(t.TempDir(), "ls_tdoa.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `ls_tdoa_solves_total{mode="tdoa",status="converged (step)"} 1`)
}

func TestPush(t *testing.T) {
	var body string
	var method, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		method, path = req.Method, req.URL.Path
		b, _ := io.ReadAll(req.Body)
		body = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := NewRecorder()
	r.TrialDone()
	require.NoError(t, r.Push(srv.URL, "ls_tdoa"))

	assert.Equal(t, http.MethodPut, method)
	assert.True(t, strings.HasPrefix(path, "/metrics/job/ls_tdoa"), path)
	assert.NotEmpty(t, body)
}
