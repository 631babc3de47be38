package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vaultchain/services/reconciler/models"
	"vaultchain/services/reconciler/store"
)

const defaultListLimit = 100

// Server exposes the reconciler's read/resolve API: recent payouts,
// outstanding cache failures, and the operator resolution endpoint used
// after replaying a failed view-cache push.
type Server struct {
	store     *store.Store
	secret    []byte
	issuer    string
	logger    *slog.Logger
	now       func() time.Time
	router    chi.Router
	requests  *prometheus.CounterVec
	durations *prometheus.HistogramVec
	registry  *prometheus.Registry
}

// New wires the HTTP server around the store. The JWT secret gates every
// /v1 route with HS256 bearer tokens.
func New(st *store.Store, secret, issuer string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vault",
		Subsystem: "reconciler_http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed by the reconciler API.",
	}, []string{"route", "method", "status"})
	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "vault",
		Subsystem: "reconciler_http",
		Name:      "request_duration_seconds",
		Help:      "Duration of reconciler API requests in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})
	registry.MustRegister(requests, durations)

	srv := &Server{
		store:     st,
		secret:    []byte(secret),
		issuer:    strings.TrimSpace(issuer),
		logger:    logger,
		now:       time.Now,
		requests:  requests,
		durations: durations,
		registry:  registry,
	}
	srv.router = srv.buildRouter()
	return srv
}

// SetNowFunc overrides the resolution timestamp source for tests.
func (s *Server) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	s.now = now
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealthz)
	// The default gatherer carries the ingest and export collectors.
	gatherers := prometheus.Gatherers{s.registry, prometheus.DefaultGatherer}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{}))
	r.Route("/v1", func(api chi.Router) {
		api.Use(s.authenticate)
		api.Get("/payouts", s.instrument("/v1/payouts", s.handlePayouts))
		api.Get("/repayments", s.instrument("/v1/repayments", s.handleRepayments))
		api.Get("/parameter-changes", s.instrument("/v1/parameter-changes", s.handleParameterChanges))
		api.Get("/cache-failures", s.instrument("/v1/cache-failures", s.handleCacheFailures))
		api.Post("/cache-failures/{id}/resolve", s.instrument("/v1/cache-failures/resolve", s.handleResolveCacheFailure))
	})
	return r
}

func (s *Server) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(recorder, r)
		s.requests.WithLabelValues(route, r.Method, strconv.Itoa(recorder.status)).Inc()
		s.durations.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(header, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
		if s.issuer != "" {
			opts = append(opts, jwt.WithIssuer(s.issuer))
		}
		token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
			return s.secret, nil
		}, opts...)
		if err != nil || !token.Valid {
			writeError(w, http.StatusUnauthorized, "invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePayouts(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.Payouts(r.Context(), parseLimit(r))
	if err != nil {
		s.logger.Error("list payouts failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list payouts failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"payouts": records})
}

func (s *Server) handleRepayments(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	records, err := s.store.RepaymentsBetween(r.Context(), start, end)
	if err != nil {
		s.logger.Error("list repayments failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list repayments failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"repayments": records})
}

func (s *Server) handleParameterChanges(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ParameterChanges(r.Context(), parseLimit(r))
	if err != nil {
		s.logger.Error("list parameter changes failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list parameter changes failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"parameterChanges": records})
}

func (s *Server) handleCacheFailures(w http.ResponseWriter, r *http.Request) {
	var resolved *bool
	if raw := strings.TrimSpace(r.URL.Query().Get("resolved")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "resolved must be a boolean")
			return
		}
		resolved = &value
	}
	records, err := s.store.CacheFailures(r.Context(), resolved, parseLimit(r))
	if err != nil {
		s.logger.Error("list cache failures failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list cache failures failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"cacheFailures": records})
}

type resolveRequest struct {
	Note string `json:"note"`
}

func (s *Server) handleResolveCacheFailure(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid cache failure id")
		return
	}
	// An empty body resolves without a note.
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	record, err := s.store.ResolveCacheFailure(r.Context(), id, req.Note, s.now().UTC())
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "cache failure not found")
		return
	case errors.Is(err, store.ErrAlreadyResolved):
		writeError(w, http.StatusConflict, "cache failure already resolved")
		return
	case err != nil:
		s.logger.Error("resolve cache failure failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "resolve failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]models.CacheFailureRecord{"cacheFailure": record})
}

func parseLimit(r *http.Request) int {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return defaultListLimit
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return defaultListLimit
	}
	return limit
}

func parseWindow(r *http.Request) (time.Time, time.Time, error) {
	end := time.Now().UTC()
	start := end.Add(-24 * time.Hour)
	if raw := strings.TrimSpace(r.URL.Query().Get("start")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("start must be RFC3339")
		}
		start = parsed.UTC()
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("end")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("end must be RFC3339")
		}
		end = parsed.UTC()
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, errors.New("end must be after start")
	}
	return start, end, nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
