package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"studypal/internal/app"
	"studypal/internal/ratelimit"
	"studypal/internal/util"
	"studypal/pkg/ai"
	"studypal/pkg/auth"
	"studypal/pkg/domain"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App             *app.App
	Tokens          *auth.TokenManager
	ChatLimiter     *ratelimit.FixedWindowLimiter
	WhatsAppWebhook http.Handler
	TelegramWebhook http.Handler
	AllowedOrigins  []string
	TrustedProxies  *util.TrustedProxies
	MaxUploadBytes  int64
}

// Server exposes the HTTP API.
type Server struct {
	app            *app.App
	tokens         *auth.TokenManager
	chatLimiter    *ratelimit.FixedWindowLimiter
	trustedProxies *util.TrustedProxies
	allowedOrigins []string
	maxUploadBytes int64
	mux            *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = 50 << 20
	}
	s := &Server{
		app:            cfg.App,
		tokens:         cfg.Tokens,
		chatLimiter:    cfg.ChatLimiter,
		trustedProxies: cfg.TrustedProxies,
		allowedOrigins: cfg.AllowedOrigins,
		maxUploadBytes: maxUploadBytes,
		mux:            http.NewServeMux(),
	}
	s.routes(cfg.WhatsAppWebhook, cfg.TelegramWebhook)
	return s
}

// Router returns the configured handler wrapped in shared middleware.
func (s *Server) Router() http.Handler {
	handler := util.WithRequestLog(s.mux)
	handler = util.WithRequestID(handler)
	handler = util.WithCORS(s.allowedOrigins, handler)
	return util.WithSecurityHeaders(handler)
}

func (s *Server) routes(whatsAppWebhook, telegramWebhook http.Handler) {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	s.mux.HandleFunc("POST /api/v1/auth/register", s.handleRegister)
	s.mux.HandleFunc("POST /api/v1/auth/login", s.handleLogin)
	s.mux.Handle("GET /api/v1/auth/me", s.withUser(s.handleMe))

	s.mux.Handle("POST /api/v1/documents", s.withUser(s.handleUploadDocument))
	s.mux.Handle("GET /api/v1/documents", s.withUser(s.handleListDocuments))
	s.mux.Handle("GET /api/v1/documents/{id}", s.withUser(s.handleGetDocument))
	s.mux.Handle("DELETE /api/v1/documents/{id}", s.withUser(s.handleDeleteDocument))
	s.mux.Handle("GET /api/v1/jobs/{id}", s.withUser(s.handleGetJob))

	s.mux.Handle("POST /api/v1/documents/{id}/chat", s.withUser(s.handleChat))
	s.mux.Handle("GET /api/v1/documents/{id}/chat/sessions", s.withUser(s.handleChatSessions))
	s.mux.Handle("GET /api/v1/documents/{id}/chat/sessions/{sessionID}/messages", s.withUser(s.handleSessionMessages))

	s.mux.Handle("GET /api/v1/documents/{id}/summary", s.withUser(s.handleSummary))
	s.mux.Handle("GET /api/v1/documents/{id}/study-questions", s.withUser(s.handleStudyQuestions))
	s.mux.Handle("GET /api/v1/documents/{id}/mind-map", s.withUser(s.handleMindMap))

	s.mux.Handle("POST /api/v1/telegram/link", s.withUser(s.handleTelegramLink))
	s.mux.Handle("GET /api/v1/telegram/status", s.withUser(s.handleTelegramStatus))
	s.mux.Handle("DELETE /api/v1/telegram/link", s.withUser(s.handleTelegramUnlink))

	s.mux.Handle("POST /api/v1/whatsapp/link", s.withUser(s.handleWhatsAppLink))
	s.mux.Handle("GET /api/v1/whatsapp/status", s.withUser(s.handleWhatsAppStatus))
	s.mux.Handle("DELETE /api/v1/whatsapp/link", s.withUser(s.handleWhatsAppUnlink))

	if whatsAppWebhook != nil {
		s.mux.Handle("/webhooks/whatsapp", whatsAppWebhook)
	}
	if telegramWebhook != nil {
		s.mux.Handle("POST /webhooks/telegram", telegramWebhook)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		userID, err := s.tokens.VerifySubject(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		user, found, err := s.app.Store().GetUserByID(userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if !found || !user.IsActive {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, user)
	})
}

// writeAppError maps application sentinels to HTTP statuses.
// aiErrors selects 502 instead of 500 for unclassified failures, for
// handlers whose main failure mode is the upstream model.
func writeAppError(w http.ResponseWriter, err error, aiErrors bool) {
	switch {
	case errors.Is(err, app.ErrDocumentNotFound):
		writeError(w, http.StatusNotFound, "document not found")
	case errors.Is(err, app.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "chat session not found")
	case errors.Is(err, app.ErrForbidden):
		writeError(w, http.StatusForbidden, "access denied")
	case errors.Is(err, app.ErrDocumentNotReady):
		writeError(w, http.StatusBadRequest, "document not ready")
	case errors.Is(err, app.ErrUnsupportedFile):
		writeError(w, http.StatusBadRequest, "unsupported file type")
	case errors.Is(err, app.ErrFileTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "file too large")
	case errors.Is(err, app.ErrLinkTokenInvalid):
		writeError(w, http.StatusBadRequest, "invalid or expired link token")
	case errors.Is(err, app.ErrAlreadyLinked):
		writeError(w, http.StatusConflict, "account already linked")
	case errors.Is(err, app.ErrNotLinked):
		writeError(w, http.StatusNotFound, "no linked account")
	case errors.Is(err, app.ErrEmailTaken):
		writeError(w, http.StatusConflict, "email already registered")
	case errors.Is(err, app.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, ai.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "AI features not configured")
	case aiErrors:
		writeError(w, http.StatusBadGateway, "AI service unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}
