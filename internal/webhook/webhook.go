// Package webhook receives GitLab webhook deliveries and relays them to
// the authorized chats.
package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/danhigham/tglab/internal/formatter"
	"github.com/danhigham/tglab/internal/metrics"
)

const (
	maxBodySize         = 25 << 20
	deduplicationWindow = time.Hour
	unknownKind         = "(could not detect event type)"
)

// kindKeys are the payload fields that may name the event, by priority.
var kindKeys = []string{"object_kind", "event_type", "event_name"}

// Broadcaster delivers rendered text to every listening chat.
type Broadcaster interface {
	Broadcast(ctx context.Context, text string) int
}

type Options struct {
	// Token is compared with X-Gitlab-Token. Empty accepts every delivery.
	Token       string
	Broadcaster Broadcaster
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer
	Now      func() time.Time
}

type Handler struct {
	token       []byte
	broadcaster Broadcaster
	logger      *zap.Logger
	metrics     *metrics.Metrics
	now         func() time.Time

	mu         sync.Mutex
	deliveries map[string]time.Time
}

// NewRouter builds the HTTP surface: the delivery endpoint, a health
// probe and the Prometheus scrape endpoint.
func NewRouter(opts Options) http.Handler {
	h := New(opts)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h.logger))

	r.Post("/", h.ServeDelivery)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "ok")
	})
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func New(opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Handler{
		token:       []byte(opts.Token),
		broadcaster: opts.Broadcaster,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		now:         opts.Now,
		deliveries:  make(map[string]time.Time),
	}
}

// ServeDelivery authenticates a delivery, renders it and broadcasts it.
func (h *Handler) ServeDelivery(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		h.metrics.Delivery("unknown", "unauthorized")
		h.logger.Warn("webhook token mismatch", zap.String("remote_addr", r.RemoteAddr))
		writeStatus(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeStatus(w, status, "bad request")
		return
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		h.metrics.Delivery("unknown", "invalid")
		writeStatus(w, http.StatusBadRequest, "bad request")
		return
	}
	kind := eventKind(fields)

	deliveryID := r.Header.Get("X-Gitlab-Event-UUID")
	logger := h.logger.With(zap.String("kind", kind))
	if deliveryID != "" {
		logger = logger.With(zap.String("delivery_id", deliveryID))
		if h.isDuplicate(deliveryID) {
			h.metrics.Delivery(kind, "duplicate")
			logger.Debug("duplicate delivery ignored")
			writeStatus(w, http.StatusOK, "ok")
			return
		}
	} else {
		logger = logger.With(zap.String("request_id", uuid.NewString()))
	}

	text := formatter.Render(kind, body)
	sent := h.broadcaster.Broadcast(r.Context(), text)

	outcome := "rendered"
	if !formatter.Supported(kind) {
		outcome = "raw"
	}
	h.metrics.Delivery(kind, outcome)
	logger.Info("delivery relayed", zap.Int("chats", sent), zap.String("outcome", outcome))

	writeStatus(w, http.StatusOK, "ok")
}

func (h *Handler) authorized(r *http.Request) bool {
	if len(h.token) == 0 {
		return true
	}
	got := []byte(r.Header.Get("X-Gitlab-Token"))
	return subtle.ConstantTimeCompare(got, h.token) == 1
}

// isDuplicate records deliveryID and reports whether it was already seen
// within the deduplication window. Expired entries are pruned on every
// call.
func (h *Handler) isDuplicate(deliveryID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	for id, receivedAt := range h.deliveries {
		if now.Sub(receivedAt) > deduplicationWindow {
			delete(h.deliveries, id)
		}
	}

	if _, ok := h.deliveries[deliveryID]; ok {
		return true
	}
	h.deliveries[deliveryID] = now
	return false
}

func eventKind(fields map[string]json.RawMessage) string {
	for _, key := range kindKeys {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var kind string
		if err := json.Unmarshal(raw, &kind); err == nil && kind != "" {
			return kind
		}
	}
	return unknownKind
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("dur", time.Since(start)),
			)
		})
	}
}
