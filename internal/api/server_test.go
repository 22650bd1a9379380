package api

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/LBJ-Wade/GSKY/internal/cosmo"
	"github.com/LBJ-Wade/GSKY/internal/like"
	"github.com/LBJ-Wade/GSKY/internal/persistence"
	"github.com/LBJ-Wade/GSKY/internal/sacc"
	"github.com/LBJ-Wade/GSKY/internal/theory"
	"github.com/LBJ-Wade/GSKY/internal/tracer"
)

func gaussianTracer(name string, q tracer.Quantity, mean float64) tracer.Tracer {
	z := floats.Span(make([]float64, 100), 0.01, 2)
	nz := make([]float64, len(z))
	for i, zz := range z {
		d := (zz - mean) / 0.15
		nz[i] = math.Exp(-0.5 * d * d)
	}
	return tracer.Tracer{Name: name, Quantity: q, Z: z, NZ: nz}
}

// newTestServer builds a server whose data vector equals the theory of the
// fiducial configuration, so the fiducial log-likelihood is exactly zero.
func newTestServer(t *testing.T, withDB bool) *Server {
	t.Helper()
	tracers := []tracer.Tracer{
		gaussianTracer("gc_0", tracer.GalaxyDensity, 0.5),
		gaussianTracer("wl_0", tracer.GalaxyShear, 0.8),
	}
	eng, err := theory.New(tracers, nil, cosmo.MustNew(cosmo.DefaultParams()))
	require.NoError(t, err)

	ds := &sacc.DataSet{
		Tracers: tracers,
		Points: []sacc.Point{
			{Tracer1: "gc_0", Tracer2: "gc_0", Ell: 100},
			{Tracer1: "gc_0", Tracer2: "wl_0", Ell: 100},
			{Tracer1: "gc_0", Tracer2: "gc_0", Ell: 300},
		},
	}
	vec, err := ds.TheoryVector(eng)
	require.NoError(t, err)
	cov := make([][]float64, len(vec))
	for i := range vec {
		ds.Points[i].Value = vec[i]
		cov[i] = make([]float64, len(vec))
		cov[i][i] = math.Pow(0.1*vec[i], 2)
	}
	ds.Covariance = cov
	lk, err := like.New(ds.Mean(), nil, cov)
	require.NoError(t, err)

	s := &Server{Engine: eng, Data: ds, Like: lk}
	if withDB {
		db, err := persistence.Open("sqlite", filepath.Join(t.TempDir(), "runs.db"))
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		s.DB = db
	}
	return s
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestStatusAndTracers(t *testing.T) {
	s := newTestServer(t, false)
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode(t, rec)
	assert.Equal(t, s.Engine.Stamp(), status["stamp"])
	assert.EqualValues(t, 2, status["tracers"])
	assert.EqualValues(t, 3, status["data_points"])

	rec = do(t, h, http.MethodGet, "/api/v1/tracers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"gc_0", "wl_0"}, decode(t, rec)["tracers"])

	rec = do(t, h, http.MethodPost, "/api/v1/status", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestClsEndpoint(t *testing.T) {
	s := newTestServer(t, true)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/cls", clsRequest{Tracer1: "wl_0", Tracer2: "gc_0", Ells: []float64{100}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Cls   []float64 `json:"cls"`
		RunID string    `json:"run_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Cls, 1)
	assert.Equal(t, s.Data.Points[1].Value, resp.Cls[0])
	require.NotEmpty(t, resp.RunID)

	rec = do(t, h, http.MethodGet, "/api/v1/runs/"+resp.RunID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var run persistence.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, "cls", run.Kind)
	require.Len(t, run.Spectra, 1)
	assert.Equal(t, resp.Cls, run.Spectra[0].Cls)
}

func TestClsErrors(t *testing.T) {
	h := newTestServer(t, false).Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/cls", clsRequest{Tracer1: "gc_0", Tracer2: "nope", Ells: []float64{100}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "UNKNOWN_TRACER", decode(t, rec)["code"])

	rec = do(t, h, http.MethodPost, "/api/v1/cls", clsRequest{Tracer1: "gc_0"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cls", bytes.NewBufferString("{"))
	raw := httptest.NewRecorder()
	h.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestLogLikeAtFiducialIsZero(t *testing.T) {
	s := newTestServer(t, true)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/loglike", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode(t, rec)
	assert.InDelta(t, 0, out["loglike"], 1e-9)
	assert.NotEmpty(t, out["run_id"])

	rec = do(t, h, http.MethodGet, "/api/v1/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	runs := decode(t, rec)["runs"].([]any)
	assert.Len(t, runs, 1)
}

func TestLogLikeMovesWithCosmology(t *testing.T) {
	s := newTestServer(t, false)
	h := s.Handler()
	before := s.Engine.Stamp()

	p := cosmo.DefaultParams()
	p.Sigma8 = 0.9
	rec := do(t, h, http.MethodPost, "/api/v1/loglike", logLikeRequest{Cosmology: &p})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode(t, rec)
	assert.Less(t, out["loglike"].(float64), -1.0)
	assert.NotEqual(t, before, out["stamp"])
}

func TestLogLikeRejectsBadParamsWithoutMutation(t *testing.T) {
	s := newTestServer(t, false)
	h := s.Handler()
	before := s.Engine.Stamp()

	rec := do(t, h, http.MethodPost, "/api/v1/loglike", logLikeRequest{Params: theory.Params{"bogus_key": 1}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "CONFIG_INVALID", decode(t, rec)["code"])
	assert.Equal(t, before, s.Engine.Stamp())
}

func TestLogLikeWithCosmologyAndBadParamsKeepsEngine(t *testing.T) {
	s := newTestServer(t, false)
	h := s.Handler()
	before := s.Engine.Stamp()
	cosID := s.Engine.Cosmology().ID()

	p := cosmo.DefaultParams()
	p.Sigma8 = 0.9
	rec := do(t, h, http.MethodPost, "/api/v1/loglike",
		logLikeRequest{Cosmology: &p, Params: theory.Params{"bogus_key": 1}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "CONFIG_INVALID", decode(t, rec)["code"])

	assert.Equal(t, before, s.Engine.Stamp())
	assert.Equal(t, cosID, s.Engine.Cosmology().ID())
	assert.Equal(t, cosmo.DefaultParams().Sigma8, s.Engine.Cosmology().Params().Sigma8)
}

func TestLogLikeWithCosmologyKeepsEarlierParams(t *testing.T) {
	s := newTestServer(t, false)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/params", map[string]any{"corr_halo_mod": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	p := cosmo.DefaultParams()
	p.Sigma8 = 0.9
	rec = do(t, h, http.MethodPost, "/api/v1/loglike",
		logLikeRequest{Cosmology: &p, Params: theory.Params{"massdef": "M200c"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := s.Engine.Params()
	assert.Equal(t, true, got["corr_halo_mod"])
	assert.Equal(t, "M200c", got["mass_def"])
	assert.Equal(t, 0.9, s.Engine.Cosmology().Params().Sigma8)
}

func TestLogLikeWithoutData(t *testing.T) {
	s := newTestServer(t, false)
	s.Data, s.Like = nil, nil
	rec := do(t, s.Handler(), http.MethodPost, "/api/v1/loglike", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestParamsEndpoint(t *testing.T) {
	s := newTestServer(t, false)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/params", map[string]any{"corr_halo_mod": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	params := decode(t, rec)["params"].(map[string]any)
	assert.Equal(t, true, params["corr_halo_mod"])

	rec = do(t, h, http.MethodGet, "/api/v1/params", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, s.Engine.Stamp(), decode(t, rec)["stamp"])
}

func TestRunsDisabledWithoutDB(t *testing.T) {
	h := newTestServer(t, false).Handler()
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/api/v1/runs", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/api/v1/runs/x", nil).Code)
}

func TestUnknownRunIsNotFound(t *testing.T) {
	h := newTestServer(t, true).Handler()
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/v1/runs/missing", nil).Code)
}

func TestMetricsExposed(t *testing.T) {
	s := newTestServer(t, false)
	h := s.Handler()
	do(t, h, http.MethodPost, "/api/v1/cls", clsRequest{Tracer1: "gc_0", Tracer2: "gc_0", Ells: []float64{100}})

	rec := do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gsky_cl_evaluations_total")
}

func TestCORS(t *testing.T) {
	h := newTestServer(t, false).Handler()
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/cls", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimitedEndpoint(t *testing.T) {
	s := newTestServer(t, false)
	s.Limiter = NewRateLimiter(1, 1)
	now := time.Unix(1000, 0)
	s.Limiter.now = func() time.Time { return now }
	h := s.Handler()

	body := clsRequest{Tracer1: "gc_0", Tracer2: "gc_0", Ells: []float64{100}}
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/v1/cls", body).Code)
	rec := do(t, h, http.MethodPost, "/api/v1/cls", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// Reads are not limited.
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/v1/status", nil).Code)
}
