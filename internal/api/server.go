package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ridemetrics/internal/analysis"
	"ridemetrics/internal/config"
	"ridemetrics/internal/instrument"
	"ridemetrics/internal/logging"
	"ridemetrics/internal/service"
	"ridemetrics/internal/store"
)

// Queries is the read side served by the API
type Queries interface {
	TrainingLoad(ctx context.Context, user string) ([]analysis.TrainingLoadPoint, error)
	PowerCurve(ctx context.Context, user string, weighted bool) (analysis.PowerDurationCurve, error)
	CriticalPower(ctx context.Context, user string) (*analysis.CriticalPowerModel, error)
	VO2max(ctx context.Context, user string) ([]analysis.VO2maxEstimate, error)
	Zones(ctx context.Context, user string) (*service.ZoneSummary, error)
	PowerBests(ctx context.Context, user string) (*analysis.BestPowers, error)
	Activities(ctx context.Context, user string, limit int) ([]store.Activity, error)
	Summary(ctx context.Context, user string) (*service.Summary, error)
}

// Scheduler queues background rebuilds
type Scheduler interface {
	ScheduleWith(user string, opts service.Options) bool
}

// Server is the HTTP API over the derived artifacts
type Server struct {
	router  *mux.Router
	queries Queries
	trigger Scheduler
	log     logging.Logger
}

// NewServer creates the API server and registers its routes
func NewServer(q Queries, trigger Scheduler, log logging.Logger) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		queries: q,
		trigger: trigger,
		log:     log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(metricsMiddleware)

	s.router.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	u := s.router.PathPrefix("/users/{user}").Subrouter()
	u.HandleFunc("/summary", s.summaryHandler).Methods(http.MethodGet)
	u.HandleFunc("/activities", s.activitiesHandler).Methods(http.MethodGet)
	u.HandleFunc("/training-load", s.trainingLoadHandler).Methods(http.MethodGet)
	u.HandleFunc("/power-curve", s.powerCurveHandler).Methods(http.MethodGet)
	u.HandleFunc("/critical-power", s.criticalPowerHandler).Methods(http.MethodGet)
	u.HandleFunc("/vo2max", s.vo2maxHandler).Methods(http.MethodGet)
	u.HandleFunc("/zones", s.zonesHandler).Methods(http.MethodGet)
	u.HandleFunc("/power-bests", s.powerBestsHandler).Methods(http.MethodGet)
	u.HandleFunc("/rebuild", s.rebuildHandler).Methods(http.MethodPost)
}

// ServeHTTP makes the server usable as an http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		s.log.Info("server is shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("could not gracefully shut down the server: %v", err)
		}
	}()

	s.log.Infof("listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("could not listen on %s: %w", addr, err)
	}

	<-done
	s.log.Info("server stopped")
	return nil
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) summaryHandler(w http.ResponseWriter, r *http.Request) {
	summary, err := s.queries.Summary(r.Context(), mux.Vars(r)["user"])
	s.respond(w, summary, err)
}

func (s *Server) activitiesHandler(w http.ResponseWriter, r *http.Request) {
	limit := service.RecentActivitiesLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	activities, err := s.queries.Activities(r.Context(), mux.Vars(r)["user"], limit)
	s.respond(w, activities, err)
}

func (s *Server) trainingLoadHandler(w http.ResponseWriter, r *http.Request) {
	load, err := s.queries.TrainingLoad(r.Context(), mux.Vars(r)["user"])
	s.respond(w, load, err)
}

func (s *Server) powerCurveHandler(w http.ResponseWriter, r *http.Request) {
	weighted, err := queryBool(r, "weighted")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	curve, err := s.queries.PowerCurve(r.Context(), mux.Vars(r)["user"], weighted)
	s.respond(w, curve, err)
}

func (s *Server) criticalPowerHandler(w http.ResponseWriter, r *http.Request) {
	model, err := s.queries.CriticalPower(r.Context(), mux.Vars(r)["user"])
	s.respond(w, model, err)
}

func (s *Server) vo2maxHandler(w http.ResponseWriter, r *http.Request) {
	estimates, err := s.queries.VO2max(r.Context(), mux.Vars(r)["user"])
	s.respond(w, estimates, err)
}

func (s *Server) zonesHandler(w http.ResponseWriter, r *http.Request) {
	zones, err := s.queries.Zones(r.Context(), mux.Vars(r)["user"])
	s.respond(w, zones, err)
}

func (s *Server) powerBestsHandler(w http.ResponseWriter, r *http.Request) {
	bests, err := s.queries.PowerBests(r.Context(), mux.Vars(r)["user"])
	s.respond(w, bests, err)
}

func (s *Server) rebuildHandler(w http.ResponseWriter, r *http.Request) {
	user, err := config.NormalizeUser(mux.Vars(r)["user"])
	if err != nil {
		s.respond(w, nil, err)
		return
	}

	var opts service.Options
	if v := r.URL.Query().Get("modules"); v != "" {
		opts.Modules = strings.Split(v, ",")
	}
	if err := service.ValidateModules(opts.Modules); err != nil {
		s.respond(w, nil, err)
		return
	}
	if opts.Selective, err = queryBool(r, "selective"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !s.trigger.ScheduleWith(user, opts) {
		writeError(w, http.StatusServiceUnavailable, "rebuilds are not accepted")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled", "user": user})
}

// respond writes v, or maps err to a status code
func (s *Server) respond(w http.ResponseWriter, v interface{}, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, v)
	case errors.Is(err, store.ErrArtifactNotFound):
		writeError(w, http.StatusNotFound, "not computed yet")
	case errors.Is(err, config.ErrInvalidUser), errors.Is(err, service.ErrUnknownModule):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Errorf("request failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func queryBool(r *http.Request, name string) (bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean", name)
	}
	return b, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusRecorder captures the status code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// metricsMiddleware counts requests by route template
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tmpl, err := cur.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		instrument.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		instrument.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
	})
}
