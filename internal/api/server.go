package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is instrumentsd's HTTP API server.
type Server struct {
	app *App
}

// NewServer constructs a Server over app.
func NewServer(app *App) *Server {
	return &Server{app: app}
}

// Handler returns the chi router with every route mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/strategies", s.handleListStrategies)
	r.Post("/observe", s.handleObserve)
	r.Post("/choose", s.handleChoose)
	r.Post("/choose/async", s.handleChooseAsync)
	r.Get("/decisions", s.handleDecisions)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListStrategies(w http.ResponseWriter, r *http.Request) {
	singular := make([]string, len(s.app.Singulars))
	for i, st := range s.app.Singulars {
		singular[i] = st.Name()
	}
	redundant := make([]string, len(s.app.Redundants))
	for i, st := range s.app.Redundants {
		redundant[i] = st.Name()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"singular":  singular,
		"redundant": redundant,
	})
}

type observeRequest struct {
	Estimator   string  `json:"estimator"`
	Value       float64 `json:"value"`
	NewEstimate float64 `json:"new_estimate,omitempty"`
	External    bool    `json:"external,omitempty"`
}

func (s *Server) handleObserve(w http.ResponseWriter, r *http.Request) {
	var req observeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	e, err := s.app.Registry.Get(req.Estimator)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	var oldEst, newEst float64
	if req.External {
		oldEst, newEst = e.AddObservationExternal(req.Value, req.NewEstimate)
	} else {
		oldEst, newEst = e.AddObservation(req.Value)
	}

	writeJSON(w, http.StatusOK, map[string]float64{
		"old_estimate": oldEst,
		"new_estimate": newEst,
	})
}

type chooseRequest struct {
	ChooserArg float64 `json:"chooser_arg"`
}

type chooseResponse struct {
	Strategy string  `json:"strategy"`
	Time     float64 `json:"expected_time"`
}

func (s *Server) handleChoose(w http.ResponseWriter, r *http.Request) {
	var req chooseRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	span := s.app.Tracer.StartSpan(r.Context(), "api_choose", nil)
	winner, err := s.app.Chooser.Choose(s.app.Evaluator, s.app.Singulars, s.app.Redundants, req.ChooserArg)
	s.app.Tracer.EndSpan(span, err)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	t, _ := s.app.Chooser.GetLastStrategyTime(winner.Name())
	if _, err := s.app.Decisions.RecordDecision(winner.Name(), s.app.Config.Evaluator.Method, req.ChooserArg, 0); err != nil {
		s.app.Log.Error("record decision failed", "err", err)
	}
	writeJSON(w, http.StatusOK, chooseResponse{Strategy: winner.Name(), Time: t})
}

func (s *Server) handleChooseAsync(w http.ResponseWriter, r *http.Request) {
	var req chooseRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	err := s.app.Pool.ChooseStrategyAsync(r.Context(), func() any {
		winner, err := s.app.Chooser.Choose(s.app.Evaluator, s.app.Singulars, s.app.Redundants, req.ChooserArg)
		if err != nil {
			return err
		}
		return winner.Name()
	}, func(result any) {
		if name, ok := result.(string); ok {
			if _, err := s.app.Decisions.RecordDecision(name, s.app.Config.Evaluator.Method, req.ChooserArg, 0); err != nil {
				s.app.Log.Error("record async decision failed", "err", err)
			}
		}
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	records, err := s.app.Decisions.TailDecisions(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
