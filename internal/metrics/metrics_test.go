package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counters(t *testing.T) {
	r := NewRecorder()

	r.IncidentsListed(3)
	r.IncidentStored()
	r.IncidentSkipped()
	r.RawArchived()
	r.ObserveDetailFetch(120 * time.Millisecond)
	r.RunFinished(true, time.Unix(1700000000, 0))

	assert.Equal(t, 3.0, testutil.ToFloat64(r.listed))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.stored))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.skipped))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.archived))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.lastSuccess))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(r.lastFinished))

	r.RunFinished(false, time.Unix(1700000100, 0))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.lastSuccess))
}

func TestRecorder_Push(t *testing.T) {
	var gotMethod, gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotMethod = req.Method
		gotPath = req.URL.Path
		body, _ := io.ReadAll(req.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := NewRecorder()
	r.IncidentStored()

	require.NoError(t, r.Push(context.Background(), srv.URL, ""))
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/metrics/job/"+DefaultJob, gotPath)
	assert.NotEmpty(t, gotBody)
}

func TestRecorder_PushFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewRecorder().Push(context.Background(), srv.URL, "job")
	assert.Error(t, err)
}
