package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	appAuth "github.com/trade-hub/trade-hub/internal/application/auth"
	appConversation "github.com/trade-hub/trade-hub/internal/application/conversation"
	appLock "github.com/trade-hub/trade-hub/internal/application/lock"
	appSettlement "github.com/trade-hub/trade-hub/internal/application/settlement"
	"github.com/trade-hub/trade-hub/internal/domain/fault"
	"github.com/trade-hub/trade-hub/internal/metrics"
	"github.com/trade-hub/trade-hub/internal/realtime"
)

// Pinger reports store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options tune the HTTP surface.
type Options struct {
	RateLimitRequests  int
	RateLimitWindow    time.Duration
	CORSAllowedOrigins []string
	WSFramesPerSecond  float64
	WSFrameBurst       int
	RequestTimeout     time.Duration
}

func (o Options) withDefaults() Options {
	if o.RateLimitRequests <= 0 {
		o.RateLimitRequests = 120
	}
	if o.RateLimitWindow <= 0 {
		o.RateLimitWindow = time.Minute
	}
	if len(o.CORSAllowedOrigins) == 0 {
		o.CORSAllowedOrigins = []string{"https://*", "http://*"}
	}
	if o.WSFramesPerSecond <= 0 {
		o.WSFramesPerSecond = 10
	}
	if o.WSFrameBurst <= 0 {
		o.WSFrameBurst = 20
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 30 * time.Second
	}
	return o
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	conversationSvc *appConversation.Service
	lockSvc         *appLock.Service
	settlementSvc   *appSettlement.Service
	authSvc         *appAuth.Service
	hub             *realtime.Hub
	pinger          Pinger
	opts            Options
	logger          zerolog.Logger
}

func NewServer(
	conversationSvc *appConversation.Service,
	lockSvc *appLock.Service,
	settlementSvc *appSettlement.Service,
	authSvc *appAuth.Service,
	hub *realtime.Hub,
	pinger Pinger,
	opts Options,
	logger zerolog.Logger,
) *Server {
	return &Server{
		conversationSvc: conversationSvc,
		lockSvc:         lockSvc,
		settlementSvc:   settlementSvc,
		authSvc:         authSvc,
		hub:             hub,
		pinger:          pinger,
		opts:            opts.withDefaults(),
		logger:          logger.With().Str("component", "http").Logger(),
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(s.logger))
	r.Use(hlog.AccessHandler(accessLog))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.With(s.requireAuth).Get("/ws", s.websocketEndpoint)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.opts.RequestTimeout))
		r.Use(s.requireAuth)
		r.Use(rateLimit(s.opts.RateLimitRequests, s.opts.RateLimitWindow))

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", s.listConversations)
			r.Route("/{other}", func(r chi.Router) {
				r.Get("/", s.getConversation)
				r.Delete("/", s.deleteConversation)
				r.Post("/messages", s.appendMessage)
				r.Get("/trade-proposal", s.getTradeProposal)
				r.Post("/trade-proposal", s.setTradeProposal)
				r.Post("/trade-proposal/accept", s.acceptTradeProposal)
				r.Post("/trade-proposal/reject", s.rejectTradeProposal)
				r.Patch("/lock", s.lockConversation)
				r.Get("/settlement", s.getConversationSettlement)
			})
		})

		r.Post("/execute-trade", s.executeTrade)
		r.Get("/settlements/{settlementId}", s.getSettlement)
	})

	return r
}

func accessLog(r *http.Request, status, size int, duration time.Duration) {
	route := r.URL.Path
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		route = rctx.RoutePattern()
	}
	metrics.RequestDuration.WithLabelValues(r.Method, route, strconv.Itoa(status)).Observe(duration.Seconds())
	hlog.FromRequest(r).Info().
		Str("method", r.Method).
		Str("route", route).
		Int("status", status).
		Int("size", size).
		Dur("duration", duration).
		Str("request_id", middleware.GetReqID(r.Context())).
		Msg("request completed")
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("store health check failed")
			respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "store unavailable")
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"sessions": s.hub.SessionCount(),
	})
}

// Helpers
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

var faultStatus = map[fault.Kind]int{
	fault.KindValidation:   http.StatusBadRequest,
	fault.KindOwnership:    http.StatusBadRequest,
	fault.KindNotFound:     http.StatusNotFound,
	fault.KindLocked:       http.StatusLocked,
	fault.KindAborted:      http.StatusInternalServerError,
	fault.KindUnauthorized: http.StatusUnauthorized,
}

// respondFault maps business failures to their status. Anything else is an opaque 500.
func respondFault(w http.ResponseWriter, r *http.Request, err error) {
	var fe *fault.Error
	if !errors.As(err, &fe) {
		hlog.FromRequest(r).Error().Err(err).Msg("request failed")
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
		return
	}
	status, ok := faultStatus[fe.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Msg("request failed")
	}
	body := map[string]interface{}{
		"error":   fe.Message,
		"message": fe.Message,
		"code":    fe.Kind,
	}
	if fe.Asset != nil {
		body["asset"] = fe.Asset
	}
	respondJSON(w, status, body)
}

func parseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	val := chi.URLParam(r, key)
	return uuid.Parse(val)
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// decodeOptionalBody is decodeBody that accepts an empty body.
func decodeOptionalBody(r *http.Request, v interface{}) error {
	if err := decodeBody(r, v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func parseLimitOffset(r *http.Request, defaultLimit, maxLimit int) (int, int) {
	limit := defaultLimit
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil {
			limit = l
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if o, err := strconv.Atoi(v); err == nil {
			offset = o
		}
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
