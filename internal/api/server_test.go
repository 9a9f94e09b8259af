package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/config"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/dbexec"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/errors"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/metrics"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/store"
)

type errBody struct {
	OK      bool   `json:"ok"`
	TraceID string `json:"traceId"`
	Error   struct {
		Message string   `json:"message"`
		Kind    string   `json:"kind"`
		Hints   []string `json:"hints"`
		Run     string   `json:"run"`
		Stage   string   `json:"stage"`
	} `json:"error"`
}

type stageBody struct {
	OK   bool `json:"ok"`
	Data struct {
		Stage    string         `json:"stage"`
		Skipped  bool           `json:"skipped"`
		Artifact map[string]any `json:"artifact"`
	} `json:"data"`
	TraceID string `json:"traceId"`
}

const (
	localRemoteAddr = "127.0.0.1:12345"
	stage1Path      = "/api/v1/runs/run-1/stages/stage1"
	stage2Path      = "/api/v1/runs/run-1/stages/stage2"
)

type call struct {
	runID string
	stage string
	force bool
}

type fakeRunner struct {
	calls []call
	err   error
}

func (f *fakeRunner) run(_ context.Context, runID, stage string, force bool) (any, bool, error) {
	f.calls = append(f.calls, call{runID, stage, force})
	if f.err != nil {
		return nil, false, f.err
	}
	return map[string]any{"stage": stage}, !force, nil
}

func noArtifact(context.Context, string, string) (any, error) {
	return nil, errors.Wrap(store.ErrNotFound, "load stage2")
}

func stubVersion(_ context.Context, side config.Side) (string, error) {
	if side == config.Right {
		return "", errors.Mark(errors.New("dial tcp 127.0.0.1:9030: connection refused"), dbexec.ErrUnreachable)
	}
	return "PostgreSQL 16.2", nil
}

func newLocalRequest(method, target string, body io.Reader) *http.Request {
	r := httptest.NewRequest(method, target, body)
	r.RemoteAddr = localRemoteAddr
	return r
}

func newLocalJSONRequest(method, target, body string) *http.Request {
	r := newLocalRequest(method, target, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func decodeErrBody(t *testing.T, w *httptest.ResponseRecorder) errBody {
	t.Helper()
	var body errBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode response failed: %v", err)
	}
	return body
}

func assertStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("unexpected status: %d, body %q", w.Code, w.Body.String())
	}
}

func assertErrContains(t *testing.T, w *httptest.ResponseRecorder, status int, wantKind, wantSubstr string) errBody {
	t.Helper()
	assertStatus(t, w, status)
	body := decodeErrBody(t, w)
	if body.Error.Kind != wantKind {
		t.Fatalf("unexpected error kind: %q, want %q", body.Error.Kind, wantKind)
	}
	if body.OK {
		t.Fatalf("unexpected ok=true")
	}
	if body.TraceID == "" {
		t.Fatalf("missing traceId")
	}
	if !strings.Contains(body.Error.Message, wantSubstr) {
		t.Fatalf("unexpected error message: %q", body.Error.Message)
	}
	return body
}

func TestServerErrorResponses(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	defaultHandler := NewServer(runner.run, noArtifact, stubVersion, nil, 0)
	failing := func(err error) http.Handler {
		return NewServer((&fakeRunner{err: err}).run, noArtifact, stubVersion, nil, 0)
	}
	cases := []struct {
		name            string
		handler         http.Handler
		req             *http.Request
		wantStatus      int
		wantKind        string
		wantErrContains string
	}{
		{
			name:    "reject non-loopback remote addr",
			handler: defaultHandler,
			req: func() *http.Request {
				r := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
				r.RemoteAddr = "192.0.2.1:12345"
				return r
			}(),
			wantStatus:      http.StatusForbidden,
			wantKind:        "request",
			wantErrContains: "loopback only",
		},
		{
			name:    "reject disallowed origin",
			handler: defaultHandler,
			req: func() *http.Request {
				r := newLocalRequest(http.MethodGet, "/api/v1/health", nil)
				r.Header.Set("Origin", "https://evil.invalid")
				return r
			}(),
			wantStatus:      http.StatusForbidden,
			wantKind:        "request",
			wantErrContains: "origin not allowed",
		},
		{
			name:    "reject non-json content type",
			handler: defaultHandler,
			req: func() *http.Request {
				r := newLocalRequest(http.MethodPost, stage1Path, strings.NewReader(`{"force":true}`))
				r.Header.Set("Content-Type", "text/plain")
				return r
			}(),
			wantStatus:      http.StatusBadRequest,
			wantKind:        "request",
			wantErrContains: "Content-Type must be application/json",
		},
		{
			name:            "reject unknown field",
			handler:         defaultHandler,
			req:             newLocalJSONRequest(http.MethodPost, stage1Path, `{"forced":true}`),
			wantStatus:      http.StatusBadRequest,
			wantKind:        "request",
			wantErrContains: "unknown field",
		},
		{
			name:            "reject trailing json",
			handler:         defaultHandler,
			req:             newLocalJSONRequest(http.MethodPost, stage1Path, `{"force":true}{}`),
			wantStatus:      http.StatusBadRequest,
			wantKind:        "request",
			wantErrContains: "unexpected trailing JSON",
		},
		{
			name:            "unknown stage",
			handler:         defaultHandler,
			req:             newLocalRequest(http.MethodGet, "/api/v1/runs/run-1/stages/stage9", nil),
			wantStatus:      http.StatusNotFound,
			wantKind:        "request",
			wantErrContains: "unknown stage stage9",
		},
		{
			name:            "method not allowed",
			handler:         defaultHandler,
			req:             newLocalRequest(http.MethodDelete, stage1Path, nil),
			wantStatus:      http.StatusMethodNotAllowed,
			wantKind:        "request",
			wantErrContains: "method not allowed",
		},
		{
			name:            "missing artifact",
			handler:         defaultHandler,
			req:             newLocalRequest(http.MethodGet, stage2Path, nil),
			wantStatus:      http.StatusNotFound,
			wantKind:        "not_found",
			wantErrContains: "not found",
		},
		{
			name:            "unknown side",
			handler:         defaultHandler,
			req:             newLocalRequest(http.MethodGet, "/api/v1/backends/middle/version", nil),
			wantStatus:      http.StatusNotFound,
			wantKind:        "request",
			wantErrContains: "unknown side middle",
		},
		{
			name:            "unreachable backend",
			handler:         defaultHandler,
			req:             newLocalRequest(http.MethodGet, "/api/v1/backends/right/version", nil),
			wantStatus:      http.StatusBadGateway,
			wantKind:        "unreachable",
			wantErrContains: "connection refused",
		},
		{
			name:            "fatal stage error",
			handler:         failing(errors.Fatal("run-1", "stage1", errors.New("left backend unreachable"))),
			req:             newLocalJSONRequest(http.MethodPost, stage1Path, `{}`),
			wantStatus:      http.StatusBadGateway,
			wantKind:        "fatal",
			wantErrContains: "run run-1 stage stage1",
		},
		{
			name:            "other stage error",
			handler:         failing(errors.New("boom")),
			req:             newLocalJSONRequest(http.MethodPost, stage1Path, `{}`),
			wantStatus:      http.StatusInternalServerError,
			wantKind:        "other",
			wantErrContains: "boom",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tc.handler.ServeHTTP(w, tc.req)
			assertErrContains(t, w, tc.wantStatus, tc.wantKind, tc.wantErrContains)
		})
	}
}

func TestFailureEnvelopeCarriesTaxonomy(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
		wantRun    string
		wantStage  string
		wantHint   string
	}{
		{
			name:       "fatal names run and stage",
			err:        errors.Fatal("run-1", "stage2", errors.Mark(errors.New("connection refused"), dbexec.ErrUnreachable)),
			wantStatus: http.StatusBadGateway,
			wantKind:   "unreachable",
			wantRun:    "run-1",
			wantStage:  "stage2",
		},
		{
			name:       "missing previous artifact keeps hint",
			err:        errors.WithHintf(errors.Wrap(store.ErrNotFound, "load stage1"), "run %s first", "stage1"),
			wantStatus: http.StatusNotFound,
			wantKind:   "not_found",
			wantHint:   "run stage1 first",
		},
		{
			name:       "access error",
			err:        errors.Access(errors.New("permission denied"), "doris query"),
			wantStatus: http.StatusBadGateway,
			wantKind:   "access",
		},
		{
			name:       "deadline",
			err:        errors.Wrap(context.DeadlineExceeded, "stage3"),
			wantStatus: http.StatusGatewayTimeout,
			wantKind:   "timeout",
		},
		{
			name:       "schema error",
			err:        errors.Schema("no common columns"),
			wantStatus: http.StatusInternalServerError,
			wantKind:   "schema",
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h := NewServer((&fakeRunner{err: tc.err}).run, noArtifact, stubVersion, nil, 0)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, newLocalJSONRequest(http.MethodPost, stage2Path, `{}`))
			body := assertErrContains(t, w, tc.wantStatus, tc.wantKind, "")
			if body.Error.Run != tc.wantRun || body.Error.Stage != tc.wantStage {
				t.Fatalf("unexpected run/stage: %q/%q", body.Error.Run, body.Error.Stage)
			}
			if tc.wantHint != "" && (len(body.Error.Hints) != 1 || body.Error.Hints[0] != tc.wantHint) {
				t.Fatalf("unexpected hints: %v", body.Error.Hints)
			}
		})
	}
}

func TestRunStage(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	h := NewServer(runner.run, noArtifact, stubVersion, nil, 0)

	r := newLocalJSONRequest(http.MethodPost, stage2Path, `{"force":true}`)
	r.Header.Set("X-Request-Id", "req-42")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assertStatus(t, w, http.StatusOK)
	if got := w.Header().Get("X-Trace-Id"); got != "req-42" {
		t.Fatalf("unexpected trace header: %q", got)
	}
	var body stageBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode response failed: %v", err)
	}
	if !body.OK || body.TraceID != "req-42" || body.Data.Stage != "stage2" || body.Data.Skipped {
		t.Fatalf("unexpected body: %+v", body)
	}

	// An empty body runs without force.
	w = httptest.NewRecorder()
	h.ServeHTTP(w, newLocalRequest(http.MethodPost, stage1Path, nil))
	assertStatus(t, w, http.StatusOK)

	want := []call{{"run-1", "stage2", true}, {"run-1", "stage1", false}}
	if len(runner.calls) != len(want) {
		t.Fatalf("unexpected calls: %+v", runner.calls)
	}
	for i := range want {
		if runner.calls[i] != want[i] {
			t.Fatalf("call %d = %+v, want %+v", i, runner.calls[i], want[i])
		}
	}
}

func TestGetArtifact(t *testing.T) {
	t.Parallel()

	load := func(_ context.Context, runID, stage string) (any, error) {
		return map[string]string{"run": runID, "stage": stage}, nil
	}
	h := NewServer((&fakeRunner{}).run, load, stubVersion, nil, 0)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, newLocalRequest(http.MethodGet, stage1Path, nil))
	assertStatus(t, w, http.StatusOK)
	if !strings.Contains(w.Body.String(), `"data":{"run":"run-1","stage":"stage1"}`) {
		t.Fatalf("unexpected response body: %q", w.Body.String())
	}
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()

	m := metrics.NewCollector()
	m.RecordTable("stage1", "validated")
	h := NewServer((&fakeRunner{}).run, noArtifact, stubVersion, m.Handler(), 0)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, newLocalRequest(http.MethodGet, "/api/v1/health", nil))
	assertStatus(t, w, http.StatusOK)
	if strings.TrimSpace(w.Body.String()) != `{"ok":true}` {
		t.Fatalf("unexpected health body: %q", w.Body.String())
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, newLocalRequest(http.MethodGet, "/metrics", nil))
	assertStatus(t, w, http.StatusOK)
	if !strings.Contains(w.Body.String(), "recond_stage_tables_total") {
		t.Fatalf("metrics missing stage tables: %q", w.Body.String())
	}
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()

	h := NewServer((&fakeRunner{}).run, noArtifact, stubVersion, nil, 0)
	r := newLocalRequest(http.MethodOptions, stage1Path, nil)
	r.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assertStatus(t, w, http.StatusNoContent)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("unexpected allow origin: %q", got)
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"127.0.0.1:8080": true,
		"localhost:8080": true,
		"[::1]:8080":     true,
		"0.0.0.0:8080":   false,
		":8080":          false,
		"10.0.0.5:80":    false,
		"nonsense":       false,
	}
	for addr, want := range cases {
		if got := IsLoopbackAddr(addr); got != want {
			t.Fatalf("IsLoopbackAddr(%q) = %v, want %v", addr, got, want)
		}
	}
}

func TestBackendVersion(t *testing.T) {
	t.Parallel()

	h := NewServer((&fakeRunner{}).run, noArtifact, stubVersion, nil, 0)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, newLocalRequest(http.MethodGet, "/api/v1/backends/left/version", nil))
	assertStatus(t, w, http.StatusOK)
	if !strings.Contains(w.Body.String(), `"version":"PostgreSQL 16.2"`) {
		t.Fatalf("unexpected response body: %q", w.Body.String())
	}
}
