package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/viniciushammett/go-behaviour-monitor/internal/coordinator"
	"github.com/viniciushammett/go-behaviour-monitor/internal/ingest"
	"github.com/viniciushammett/go-behaviour-monitor/internal/logger"
	"github.com/viniciushammett/go-behaviour-monitor/internal/metrics"
	"github.com/viniciushammett/go-behaviour-monitor/internal/store"
)

var tracer = otel.Tracer("api")

type Deps struct {
	Log         *logger.Logger
	Store       *store.Store
	Ingest      *ingest.Ingestor
	Coordinator *coordinator.Coordinator
	AuthToken   string
}

type Config struct{ Addr string }

type Server struct {
	d Deps
	c Config
}

func NewServer(d Deps, c Config) *Server { return &Server{d: d, c: c} }

func (s *Server) Run(ctx context.Context) error {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) { metrics.Handler().ServeHTTP(w, r) })
	r.Post("/v1/events", s.handleEvents)
	r.Get("/v1/status", s.handleStatus)
	r.Get("/v1/anomalies", s.handleAnomalies)
	r.Put("/v1/holiday", s.handleHoliday)
	r.Delete("/v1/holiday", s.handleHolidayOff)
	r.Put("/v1/snooze", s.handleSnooze)
	r.Delete("/v1/snooze", s.handleSnoozeOff)

	srv := &http.Server{Addr: s.c.Addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.d.Log.Info().Str("addr", s.c.Addr).Msg("api listening")

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shCtx)
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) auth(r *http.Request) bool {
	if s.d.AuthToken == "" {
		return true
	}
	got := r.Header.Get("Authorization")
	return strings.HasPrefix(got, "Bearer ") && strings.TrimPrefix(got, "Bearer ") == s.d.AuthToken
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	_, span := tracer.Start(r.Context(), "POST /v1/events")
	defer span.End()

	if !s.auth(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var p ingest.Payload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.String("entity", p.EntityID))

	if err := s.d.Ingest.Submit(p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	_, span := tracer.Start(r.Context(), "GET /v1/status")
	defer span.End()

	if !s.auth(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	res := s.d.Coordinator.LastResult()
	if res == nil {
		// primeiro retrato sob demanda
		res = s.d.Coordinator.Tick()
	}
	writeJSON(w, res)
}

func (s *Server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	_, span := tracer.Start(r.Context(), "GET /v1/anomalies")
	defer span.End()

	if !s.auth(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	arr, _ := s.d.Store.ListAnomalies(200)
	writeJSON(w, arr)
}

func (s *Server) handleHoliday(w http.ResponseWriter, r *http.Request) {
	_, span := tracer.Start(r.Context(), "PUT /v1/holiday")
	defer span.End()

	if !s.auth(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	s.d.Coordinator.EnableHolidayMode()
	writeJSON(w, map[string]bool{"holiday_mode": true})
}

func (s *Server) handleHolidayOff(w http.ResponseWriter, r *http.Request) {
	_, span := tracer.Start(r.Context(), "DELETE /v1/holiday")
	defer span.End()

	if !s.auth(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	s.d.Coordinator.DisableHolidayMode()
	writeJSON(w, map[string]bool{"holiday_mode": false})
}

type snoozePayload struct {
	Duration string `json:"duration"` // off|1h|4h|8h|24h
}

func (s *Server) handleSnooze(w http.ResponseWriter, r *http.Request) {
	_, span := tracer.Start(r.Context(), "PUT /v1/snooze")
	defer span.End()

	if !s.auth(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var p snoozePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.String("duration", p.Duration))
	if err := s.d.Coordinator.Snooze(p.Duration); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if until, ok := s.d.Coordinator.SnoozeUntil(); ok {
		writeJSON(w, map[string]string{"snooze_until": until.UTC().Format(time.RFC3339)})
		return
	}
	// "off": soneca limpa, resposta sem timestamp
	writeJSON(w, map[string]bool{"snoozed": false})
}

func (s *Server) handleSnoozeOff(w http.ResponseWriter, r *http.Request) {
	_, span := tracer.Start(r.Context(), "DELETE /v1/snooze")
	defer span.End()

	if !s.auth(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	s.d.Coordinator.ClearSnooze()
	writeJSON(w, map[string]bool{"snoozed": false})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
