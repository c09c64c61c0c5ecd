package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"studypal/internal/util"
	"studypal/pkg/domain"
)

type chatRequest struct {
	Content string `json:"content"`
}

type chatResponse struct {
	SessionID  string             `json:"sessionId"`
	Message    domain.ChatMessage `json:"message"`
	AIResponse domain.ChatMessage `json:"aiResponse"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, user domain.User) {
	if s.chatLimiter != nil {
		key := "chat:" + user.ID
		if user.ID == "" {
			key = "chat:" + util.ClientIP(r, s.trustedProxies)
		}
		if !s.chatLimiter.Allow(key) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
	}
	var req chatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	turn, err := s.app.ContinueConversation(r.Context(), user, r.PathValue("id"), req.Content)
	if err != nil {
		writeAppError(w, err, true)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{
		SessionID:  turn.Session.ID,
		Message:    turn.UserMessage,
		AIResponse: turn.AssistantMessage,
	})
}

func (s *Server) handleChatSessions(w http.ResponseWriter, r *http.Request, user domain.User) {
	sessions, err := s.app.ChatSessions(user, r.PathValue("id"))
	if err != nil {
		writeAppError(w, err, false)
		return
	}
	if sessions == nil {
		sessions = []domain.ChatSession{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleSessionMessages(w http.ResponseWriter, r *http.Request, user domain.User) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	messages, err := s.app.SessionMessages(user, r.PathValue("id"), r.PathValue("sessionID"), limit)
	if err != nil {
		writeAppError(w, err, false)
		return
	}
	if messages == nil {
		messages = []domain.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, messages)
}

type textArtifactResponse struct {
	DocumentID  string    `json:"documentId"`
	Content     string    `json:"content"`
	GeneratedAt time.Time `json:"generatedAt"`
	Cached      bool      `json:"cached"`
}

type mindMapResponse struct {
	DocumentID  string         `json:"documentId"`
	MindMap     domain.MindMap `json:"mindMap"`
	GeneratedAt time.Time      `json:"generatedAt"`
	Cached      bool           `json:"cached"`
	Degraded    bool           `json:"degraded,omitempty"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request, user domain.User) {
	documentID := r.PathValue("id")
	artifact, err := s.app.Summary(r.Context(), user, documentID)
	if err != nil {
		writeAppError(w, err, true)
		return
	}
	writeJSON(w, http.StatusOK, textArtifactResponse{
		DocumentID:  documentID,
		Content:     artifact.Content,
		GeneratedAt: artifact.GeneratedAt,
		Cached:      artifact.Cached,
	})
}

func (s *Server) handleStudyQuestions(w http.ResponseWriter, r *http.Request, user domain.User) {
	documentID := r.PathValue("id")
	artifact, err := s.app.StudyQuestions(r.Context(), user, documentID)
	if err != nil {
		writeAppError(w, err, true)
		return
	}
	writeJSON(w, http.StatusOK, textArtifactResponse{
		DocumentID:  documentID,
		Content:     artifact.Content,
		GeneratedAt: artifact.GeneratedAt,
		Cached:      artifact.Cached,
	})
}

func (s *Server) handleMindMap(w http.ResponseWriter, r *http.Request, user domain.User) {
	documentID := r.PathValue("id")
	artifact, err := s.app.MindMap(r.Context(), user, documentID)
	if err != nil {
		writeAppError(w, err, true)
		return
	}
	writeJSON(w, http.StatusOK, mindMapResponse{
		DocumentID:  documentID,
		MindMap:     artifact.MindMap,
		GeneratedAt: artifact.GeneratedAt,
		Cached:      artifact.Cached,
		Degraded:    artifact.Degraded,
	})
}
