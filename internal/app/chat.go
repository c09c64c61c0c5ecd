package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"studypal/internal/util"
	"studypal/pkg/ai"
	"studypal/pkg/domain"
)

// historyWindowSize bounds how many stored messages feed one reply.
const historyWindowSize = 20

// Turn is the outcome of one chat exchange. AssistantMessage is zero
// when the responder failed after the user message was stored.
type Turn struct {
	Session          domain.ChatSession
	UserMessage      domain.ChatMessage
	AssistantMessage domain.ChatMessage
}

// ContinueConversation appends the user's message to the per-document
// session and produces an AI reply. The user message is persisted before
// the responder runs, so a responder failure leaves the conversation log
// with an unanswered question rather than losing it.
func (a *App) ContinueConversation(ctx context.Context, viewer domain.User, documentID, text string) (Turn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Turn{}, fmt.Errorf("message required")
	}
	doc, ok, err := a.store.GetDocument(documentID)
	if err != nil {
		return Turn{}, fmt.Errorf("load document: %w", err)
	}
	if !ok {
		return Turn{}, ErrDocumentNotFound
	}
	if !canChat(viewer, doc) {
		return Turn{}, ErrForbidden
	}
	if doc.Status != domain.StatusProcessed {
		return Turn{}, ErrDocumentNotReady
	}

	session, err := a.store.CreateSessionIfAbsent(doc.ID, viewer.ID, "Chat with "+doc.OriginalFilename)
	if err != nil {
		return Turn{}, fmt.Errorf("resolve session: %w", err)
	}

	userMsg := domain.ChatMessage{
		ID:        util.NewID(),
		SessionID: session.ID,
		Role:      domain.MessageRoleUser,
		Content:   text,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.AppendMessage(session.ID, userMsg); err != nil {
		return Turn{}, fmt.Errorf("save user message: %w", err)
	}

	history, err := a.historyWindow(session.ID)
	if err != nil {
		return Turn{}, fmt.Errorf("load history: %w", err)
	}

	aiCtx, cancel := context.WithTimeout(ctx, a.aiTimeout)
	defer cancel()
	reply, err := a.responder.ChatTurn(aiCtx, doc.ProcessedText, text, history)
	if err != nil {
		return Turn{Session: session, UserMessage: userMsg}, err
	}

	assistantMsg := domain.ChatMessage{
		ID:        util.NewID(),
		SessionID: session.ID,
		Role:      domain.MessageRoleAssistant,
		Content:   reply,
		Metadata:  map[string]string{"model_used": a.responder.Model()},
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.AppendMessage(session.ID, assistantMsg); err != nil {
		return Turn{Session: session, UserMessage: userMsg}, fmt.Errorf("save assistant message: %w", err)
	}
	// Both halves of the turn are durable at this point; a failed
	// updated-at bump is not worth reporting the turn as failed.
	if err := a.store.TouchSession(session.ID, assistantMsg.CreatedAt); err != nil {
		slog.Warn("touch session", "session_id", session.ID, "error", err)
	}
	return Turn{Session: session, UserMessage: userMsg, AssistantMessage: assistantMsg}, nil
}

// historyWindow returns up to historyWindowSize prior turns in
// chronological order, excluding the just-appended in-flight message.
func (a *App) historyWindow(sessionID string) ([]ai.HistoryMessage, error) {
	recent, err := a.store.ListRecentMessages(sessionID, historyWindowSize+1)
	if err != nil {
		return nil, err
	}
	if len(recent) == 0 {
		return nil, nil
	}
	// recent is newest-first; recent[0] is the in-flight message.
	prior := recent[1:]
	history := make([]ai.HistoryMessage, 0, len(prior))
	for i := len(prior) - 1; i >= 0; i-- {
		history = append(history, ai.HistoryMessage{
			Role:    prior[i].Role,
			Content: prior[i].Content,
		})
	}
	return history, nil
}

// ChatSessions lists the viewer's sessions for a document, most recent
// first.
func (a *App) ChatSessions(viewer domain.User, documentID string) ([]domain.ChatSession, error) {
	doc, ok, err := a.store.GetDocument(documentID)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	if !ok {
		return nil, ErrDocumentNotFound
	}
	if !canView(viewer, doc) {
		return nil, ErrForbidden
	}
	sessions, err := a.store.ListSessionsForDocument(doc.ID, viewer.ID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// SessionMessages returns a session's messages in chronological order.
// Only the session owner or an admin may read them.
func (a *App) SessionMessages(viewer domain.User, documentID, sessionID string, limit int) ([]domain.ChatMessage, error) {
	session, ok, err := a.store.FindSession(documentID, viewer.ID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if !ok || session.ID != sessionID {
		if viewer.Role != domain.RoleAdmin {
			return nil, ErrSessionNotFound
		}
	}
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	messages, err := a.store.ListSessionMessages(sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}
