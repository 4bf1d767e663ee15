package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/alphaloop/internal/alpha"
	"github.com/sawpanic/alphaloop/internal/explain"
	"github.com/sawpanic/alphaloop/internal/gates"
	"github.com/sawpanic/alphaloop/internal/metrics"
	"github.com/sawpanic/alphaloop/internal/persistence"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// HealthResponse is the /health body.
type HealthResponse struct {
	Status  string                   `json:"status"`
	Time    time.Time                `json:"time"`
	Storage *persistence.HealthCheck `json:"storage,omitempty"`
}

// EvaluateResponse is the /evaluate body.
type EvaluateResponse struct {
	AlphaID     string          `json:"alpha_id,omitempty"`
	Submittable bool            `json:"submittable"`
	Feedback    string          `json:"feedback"`
	Report      *explain.Report `json:"report"`
}

// NormalizeRequest is the /normalize body.
type NormalizeRequest struct {
	Expression string `json:"expression"`
}

// NormalizeResponse is the /normalize reply.
type NormalizeResponse struct {
	Expression string `json:"expression"`
	Changed    bool   `json:"changed"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error(), RequestID: RequestID(r.Context())})
}

func notFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeError(w, r, http.StatusNotFound, errors.New("not found"))
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "healthy", Time: time.Now().UTC()}
	status := http.StatusOK
	if s.deps.Storage != nil {
		h := s.deps.Storage.Health(r.Context())
		resp.Storage = &h
		if !h.Healthy {
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, resp)
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body := io.Reader(r.Body)
	if s.config.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	}
	return io.ReadAll(body)
}

func (s *Server) evaluate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	cfg := s.deps.Gates
	if m := q.Get("mode"); m != "" {
		mode, err := gates.ParseMode(m)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err)
			return
		}
		cfg.Mode = mode
	}
	if cfg.Mode == "" {
		cfg.Mode = gates.ModeAdvisory
	}

	window := s.deps.ReversalWindow
	if v := q.Get("window"); v != "" {
		parsed, err := explain.ParseWindow(v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err)
			return
		}
		window = parsed
	}
	opts := []explain.Option{explain.WithReversalWindow(window)}
	if v := q.Get("derived"); v != "" {
		include, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, errors.New("derived must be a boolean"))
			return
		}
		opts = append(opts, explain.WithDerived(include))
	}

	data, err := s.readBody(w, r)
	if err != nil {
		writeError(w, r, http.StatusRequestEntityTooLarge, err)
		return
	}
	result, err := alpha.Decode(data)
	if err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, err)
		return
	}

	report, err := explain.NewBuilder(cfg, opts...).Build(result)
	if err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, err)
		return
	}
	s.deps.Metrics.Evaluations.WithLabelValues(string(cfg.Mode), metrics.Verdict(report.Submittable)).Inc()

	writeJSON(w, http.StatusOK, EvaluateResponse{
		AlphaID:     report.AlphaID,
		Submittable: report.Submittable,
		Feedback:    explain.Format(report),
		Report:      report,
	})
}

func (s *Server) normalize(w http.ResponseWriter, r *http.Request) {
	data, err := s.readBody(w, r)
	if err != nil {
		writeError(w, r, http.StatusRequestEntityTooLarge, err)
		return
	}
	var req NormalizeRequest
	if err := json.Unmarshal(data, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	out := s.deps.Normalizer.Normalize(req.Expression)
	writeJSON(w, http.StatusOK, NormalizeResponse{Expression: out, Changed: out != req.Expression})
}
