package api

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/artifact"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/dbexec"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/errors"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/store"
)

// Error kinds beyond the artifact issue kinds.
const (
	kindRequest     = "request"
	kindNotFound    = "not_found"
	kindTimeout     = "timeout"
	kindUnreachable = "unreachable"
	kindFatal       = "fatal"
)

type envelope struct {
	OK      bool     `json:"ok"`
	Data    any      `json:"data,omitempty"`
	Error   *failure `json:"error,omitempty"`
	TraceID string   `json:"traceId"`
}

// failure is the error half of an envelope. Run and Stage are set for
// fatal stage errors.
type failure struct {
	Message string   `json:"message"`
	Kind    string   `json:"kind"`
	Hints   []string `json:"hints,omitempty"`
	Run     string   `json:"run,omitempty"`
	Stage   string   `json:"stage,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeEnvelope(w, r, status, envelope{OK: true, Data: data})
}

// writeRequestError rejects a request before any work was attempted.
func writeRequestError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeEnvelope(w, r, status, envelope{Error: &failure{Message: message, Kind: kindRequest}})
}

// writeFailure classifies err and answers with the matching status.
func writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status, f := classify(err)
	writeEnvelope(w, r, status, envelope{Error: &f})
}

func writeEnvelope(w http.ResponseWriter, r *http.Request, status int, body envelope) {
	body.TraceID = resolveTraceID(r)
	w.Header().Set("X-Trace-Id", body.TraceID)
	writeJSON(w, status, body)
}

func classify(err error) (int, failure) {
	f := failure{Message: err.Error(), Hints: errors.GetAllHints(err)}
	var fatalErr *errors.FatalError
	if errors.As(err, &fatalErr) {
		f.Run, f.Stage = fatalErr.RunID, fatalErr.Stage
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		f.Kind = kindNotFound
		return http.StatusNotFound, f
	case errors.Is(err, context.DeadlineExceeded):
		f.Kind = kindTimeout
		return http.StatusGatewayTimeout, f
	case errors.Is(err, dbexec.ErrUnreachable):
		f.Kind = kindUnreachable
		return http.StatusBadGateway, f
	case errors.Is(err, errors.ErrFatal):
		// The artifact store is the only other source of fatal errors.
		f.Kind = kindFatal
		return http.StatusBadGateway, f
	}
	kind := artifact.NewIssue(err).Kind
	f.Kind = string(kind)
	if kind == artifact.KindAccess {
		return http.StatusBadGateway, f
	}
	return http.StatusInternalServerError, f
}

func resolveTraceID(r *http.Request) string {
	if r != nil {
		for _, key := range []string{"X-Trace-Id", "X-Request-Id"} {
			v := strings.TrimSpace(r.Header.Get(key))
			if v != "" {
				return v
			}
		}
	}
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mt != "application/json" {
		return errors.New("Content-Type must be application/json")
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err == nil {
		return errors.New("unexpected trailing JSON")
	} else if !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func readJSONOrWriteError(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := readJSON(w, r, dst); err != nil {
		writeRequestError(w, r, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func requireMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	writeRequestError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	return false
}
