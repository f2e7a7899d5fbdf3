package relay

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cipherclients/internal/domain"
	"cipherclients/internal/observability/logging"
	"cipherclients/internal/observability/metrics"
	"cipherclients/internal/protocol/x3dh"
)

// Server is an in-memory bundle relay.
type Server struct {
	mu      sync.Mutex
	bundles map[domain.DeviceID]domain.PreKeyBundle
	log     logging.Logger
	router  chi.Router
}

func NewServer(log logging.Logger) *Server {
	s := &Server{
		bundles: make(map[domain.DeviceID]domain.PreKeyBundle),
		log:     log.With("component", "relay"),
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(withMetrics)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/v1/bundles", func(r chi.Router) {
		r.Post("/", s.register)
		r.Get("/{device}", s.fetch)
	})
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var b domain.PreKeyBundle
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if b.DeviceID.IsZero() {
		http.Error(w, "missing device_id", http.StatusBadRequest)
		return
	}
	if !x3dh.VerifySignedPreKey(b.SigningKey, b.SignedPreKey, b.SignedPreKeySignature) {
		http.Error(w, "invalid signed pre-key", http.StatusBadRequest)
		s.log.Warn(ctx, "rejected bundle", "device", b.DeviceID, "request_id", chimw.GetReqID(ctx))
		return
	}

	s.mu.Lock()
	s.bundles[b.DeviceID] = b
	s.mu.Unlock()

	s.log.Info(ctx, "bundle registered",
		"device", b.DeviceID, "one_time_pre_keys", len(b.OneTimePreKeys), "request_id", chimw.GetReqID(ctx))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) fetch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	device := domain.DeviceID(chi.URLParam(r, "device"))

	s.mu.Lock()
	b, ok := s.bundles[device]
	if ok && len(b.OneTimePreKeys) > 0 {
		stored := b
		stored.OneTimePreKeys = append([]domain.OneTimePreKeyPublic(nil), b.OneTimePreKeys[1:]...)
		s.bundles[device] = stored
		b.OneTimePreKeys = b.OneTimePreKeys[:1]
	}
	s.mu.Unlock()

	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	s.log.Debug(ctx, "bundle fetched",
		"device", device, "has_one_time", len(b.OneTimePreKeys) > 0, "request_id", chimw.GetReqID(ctx))
	writeJSON(w, http.StatusOK, b)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		if route == "/metrics" {
			return
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RelayRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		metrics.RelayRequestDurationSeconds.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
