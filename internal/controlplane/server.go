package controlplane

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/rik-org/riklet/internal/metrics"
	"github.com/rik-org/riklet/internal/model"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 30 * time.Second

	// defaultNamespace is used for every WorkloadDefinition; the wire
	// shape carries no namespace field.
	defaultNamespace = "default"
)

// Server wraps the chi router and control-plane dependencies.
type Server struct {
	router    *chi.Mux
	store     *Store
	scheduler *Scheduler
	broker    *StatusBroker
	logger    *slog.Logger
	addr      string
}

// NewServer creates and configures a new control-plane HTTP server.
func NewServer(addr string, store *Store, scheduler *Scheduler, broker *StatusBroker, logger *slog.Logger) *Server {
	srv := &Server{
		router:    chi.NewRouter(),
		store:     store,
		scheduler: scheduler,
		broker:    broker,
		logger:    logger,
		addr:      addr,
	}

	srv.router.Use(middleware.RequestID)
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(srv.loggingMiddleware)
	srv.router.Use(metrics.Middleware)
	srv.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	srv.routes()
	return srv
}

func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", metrics.Handler())

	s.router.Route("/v1/workloads", func(r chi.Router) {
		r.Post("/", s.handleCreateWorkload)
		r.Get("/", s.handleListWorkloads)
		r.Get("/{name}", s.handleGetWorkload)
		r.Post("/{name}/schedule", s.handleScheduleWorkload)
		r.Get("/{name}/status", s.handleStreamStatus)
	})
}

// Router exposes the underlying chi router, mainly for tests.
func (s *Server) Router() *chi.Mux { return s.router }

// Run starts the HTTP server and blocks until it receives SIGINT/SIGTERM,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("control plane listening", "addr", s.addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("control plane stopped")
	return nil
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, errorResponse{Error: message})
}

type healthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (s *Server) handleCreateWorkload(w http.ResponseWriter, r *http.Request) {
	var def model.WorkloadDefinition
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := def.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := s.store.Create(r.Context(), defaultNamespace, def)
	if errors.Is(err, ErrConflict) {
		s.writeError(w, http.StatusConflict, "workload already exists")
		return
	}
	if err != nil {
		s.logger.Error("create workload", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to create workload")
		return
	}

	s.broker.Publish(rec.Name, model.StatusEvent{Status: model.StatusScheduled, At: time.Now().UTC()})
	s.writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleGetWorkload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	rec, err := s.store.Get(r.Context(), defaultNamespace, name)
	if errors.Is(err, ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "workload not found")
		return
	}
	if err != nil {
		s.logger.Error("get workload", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get workload")
		return
	}

	s.writeJSON(w, http.StatusOK, rec)
}

type listWorkloadsResponse struct {
	Workloads []*WorkloadRecord `json:"workloads"`
}

func (s *Server) handleListWorkloads(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.List(r.Context(), defaultNamespace)
	if err != nil {
		s.logger.Error("list workloads", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list workloads")
		return
	}
	if records == nil {
		records = []*WorkloadRecord{}
	}

	s.writeJSON(w, http.StatusOK, listWorkloadsResponse{Workloads: records})
}

type scheduleResponse struct {
	InstanceID string `json:"instance_id"`
	Worker     string `json:"worker"`
	Accepted   bool   `json:"accepted"`
}

func (s *Server) handleScheduleWorkload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	rec, err := s.store.Get(r.Context(), defaultNamespace, name)
	if errors.Is(err, ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "workload not found")
		return
	}
	if err != nil {
		s.logger.Error("get workload for scheduling", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get workload")
		return
	}

	var def model.WorkloadDefinition
	if err := json.Unmarshal([]byte(rec.Definition), &def); err != nil {
		s.logger.Error("decode stored definition", "error", err)
		s.writeError(w, http.StatusInternalServerError, "corrupt workload definition")
		return
	}

	instanceID, worker, ack, err := s.scheduler.Schedule(r.Context(), def)
	if err != nil {
		s.logger.Error("schedule workload", "error", err)
		s.writeError(w, http.StatusServiceUnavailable, "failed to schedule workload")
		return
	}

	s.broker.Publish(name, model.StatusEvent{
		InstanceID: instanceID,
		Status:     model.StatusPending,
		At:         time.Now().UTC(),
	})

	s.writeJSON(w, http.StatusAccepted, scheduleResponse{
		InstanceID: instanceID,
		Worker:     worker,
		Accepted:   ack.Accepted,
	})
}

func (s *Server) handleStreamStatus(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if _, err := s.store.Get(r.Context(), defaultNamespace, name); errors.Is(err, ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "workload not found")
		return
	} else if err != nil {
		s.logger.Error("get workload for status stream", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get workload")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Error("set write deadline for SSE", "error", err)
	}

	ch, unsub := s.broker.Subscribe(name)
	defer unsub()

	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)
	if canFlush {
		flusher.Flush()
	}

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := writeSSEEvent(w, ev); err != nil {
				return
			}
			if canFlush {
				flusher.Flush()
			}
		case <-r.Context().Done():
			return
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, ev model.StatusEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	for _, seg := range strings.Split(string(body), "\n") {
		if _, err := fmt.Fprintf(w, "data: %s\n", seg); err != nil {
			return err
		}
	}
	_, err = fmt.Fprint(w, "\n")
	return err
}
