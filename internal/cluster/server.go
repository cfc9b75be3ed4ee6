package cluster

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/armon/go-metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/misalcedo/fermentation/breaker"
	"go.uber.org/zap"
	"k8s.io/utils/clock"
)

// Server exposes a node's breaker over HTTP.
type Server struct {
	breaker *breaker.Breaker
	peers   func() map[string]breaker.State
	onState func(breaker.State)
	sink    *metrics.InmemSink
	clock   clock.PassiveClock
	logger  *zap.Logger
	router  chi.Router
}

// NewServer creates a Server. peers and onState may be nil when the node is not gossiping.
func NewServer(b *breaker.Breaker, peers func() map[string]breaker.State, onState func(breaker.State), sink *metrics.InmemSink, clock clock.PassiveClock, logger *zap.Logger) *Server {
	s := &Server{
		breaker: b,
		peers:   peers,
		onState: onState,
		sink:    sink,
		clock:   clock,
		logger:  logger,
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/state", s.handleState)
	r.Post("/success", s.handleOutcome(s.breaker.Success))
	r.Post("/failure", s.handleOutcome(s.breaker.Failure))

	if s.sink != nil {
		r.Get("/metrics", s.handleMetrics)
	}

	s.router = r
}

type stateResponse struct {
	State     string            `json:"state"`
	Successes int               `json:"successes"`
	Failures  int               `json:"failures"`
	ErrorRate float64           `json:"error_rate"`
	Peers     map[string]string `json:"peers"`
}

// writeJSON logs encoding failures since the status line has already been sent.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", zap.Int("status", status), zap.Error(err))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	now := s.clock.Now()

	response := stateResponse{
		State:     s.breaker.State(now).String(),
		Successes: s.breaker.Successes(now),
		Failures:  s.breaker.Failures(now),
		Peers:     map[string]string{},
	}

	// NaN is not valid JSON, so an empty window reports no errors.
	if rate := s.breaker.ErrorRate(now); !math.IsNaN(rate) {
		response.ErrorRate = rate
	}

	if s.peers != nil {
		for name, state := range s.peers() {
			response.Peers[name] = state.String()
		}
	}

	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleOutcome(record func(timestamp time.Time) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := s.clock.Now()
		before := s.breaker.Current()

		err := record(now)

		after := s.breaker.State(now)
		if after != before && s.onState != nil {
			s.onState(after)
		}

		if errors.Is(err, breaker.OpenBreakerErr) {
			s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error(), "state": after.String()})
			return
		}

		if err != nil {
			s.logger.Error("failed to record outcome", zap.Error(err))
			s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}

		s.writeJSON(w, http.StatusOK, map[string]string{"state": after.String()})
	}
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	summary, err := s.sink.DisplayMetrics(w, r)
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	s.writeJSON(w, http.StatusOK, summary)
}
