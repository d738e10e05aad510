package httpapi

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/hoohoot/michel/internal/bridge"
)

// Dispatcher is the router side the webhook endpoint hands notifications to.
type Dispatcher interface {
	HandleNotification(ctx context.Context, n bridge.Notification) error
}

type ServerConfig struct {
	// WebhookToken, when set, must match the Authorization header Seerr
	// sends with each delivery.
	WebhookToken string
	// AdminToken gates the /v1/admin endpoints. When empty they are
	// disabled outright.
	AdminToken   string
	MaxBodyBytes int64
}

type Server struct {
	dispatcher Dispatcher
	store      bridge.CorrelationStore
	activity   *bridge.ActivityFeed
	cfg        ServerConfig
	log        *slog.Logger
}

func NewServer(dispatcher Dispatcher, store bridge.CorrelationStore, activity *bridge.ActivityFeed, cfg ServerConfig, logger *slog.Logger) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		dispatcher: dispatcher,
		store:      store,
		activity:   activity,
		cfg:        cfg,
		log:        logger,
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/health" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case r.URL.Path == "/webhook/seerr" && r.Method == http.MethodPost:
		s.handleWebhook(w, r)
	case r.URL.Path == "/v1/admin/issues" && r.Method == http.MethodGet:
		s.handleAdminIssues(w, r)
	case r.URL.Path == "/v1/admin/activity" && r.Method == http.MethodGet:
		s.handleAdminActivity(w, r)
	default:
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	}
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if s.cfg.WebhookToken != "" && !tokenMatches(r.Header.Get("Authorization"), s.cfg.WebhookToken) {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid webhook token")
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "unable to read request body")
		return
	}
	n, err := parseWebhookBody(body)
	if err != nil {
		s.log.Warn("webhook payload rejected", "err", err)
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if err := s.dispatcher.HandleNotification(r.Context(), n); err != nil {
		// Already logged with context by the router; the upstream source
		// may redeliver, which the store makes safe.
		writeError(w, http.StatusInternalServerError, "dispatch_failed", "notification processing failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdminIssues(w http.ResponseWriter, r *http.Request) {
	if !s.adminAuthorized(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid admin token")
		return
	}
	records, err := s.store.List(r.Context())
	if err != nil {
		s.log.Error("issue listing failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "issue listing failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"issues": records})
}

func (s *Server) handleAdminActivity(w http.ResponseWriter, r *http.Request) {
	if !s.adminAuthorized(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid admin token")
		return
	}
	if s.activity == nil {
		writeError(w, http.StatusNotFound, "not_found", "activity feed disabled")
		return
	}
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("activity stream accept failed", "err", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	ctx := r.Context()
	events, cancel := s.activity.Subscribe()
	defer cancel()

	for _, ev := range s.activity.Recent() {
		if err := wsjson.Write(ctx, conn, ev); err != nil {
			return
		}
	}
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case ev, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			if err := wsjson.Write(ctx, conn, ev); err != nil {
				return
			}
		}
	}
}

// adminAuthorized checks the bearer token; websocket clients that cannot
// set headers may pass it as the access_token query parameter instead.
func (s *Server) adminAuthorized(r *http.Request) bool {
	if s.cfg.AdminToken == "" {
		return false
	}
	if tokenMatches(r.Header.Get("Authorization"), s.cfg.AdminToken) {
		return true
	}
	query := r.URL.Query().Get("access_token")
	return query != "" && hmac.Equal([]byte(query), []byte(s.cfg.AdminToken))
}

func tokenMatches(authHeader, expected string) bool {
	supplied := strings.TrimPrefix(authHeader, "Bearer ")
	return supplied != "" && hmac.Equal([]byte(supplied), []byte(expected))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}
