package store

import (
	"errors"
	"time"

	"studypal/pkg/domain"
)

// ErrInvalidMessageRole is returned when a message carries a role outside
// the user/assistant set.
var ErrInvalidMessageRole = errors.New("invalid message role")

// DocumentFilter narrows document listings. Role rules: students see
// processed documents only; instructors see their own plus processed
// documents from others; admins see everything.
type DocumentFilter struct {
	ViewerID   string
	ViewerRole domain.UserRole
	Status     domain.DocumentStatus
	Offset     int
	Limit      int
}

// Store defines persistence operations for users, documents, chat
// sessions, messages, and chat-platform account links.
type Store interface {
	// users
	SaveUser(domain.User) error
	HasUserEmail(email string) (bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)

	// documents
	SaveDocument(domain.Document) error
	GetDocument(id string) (domain.Document, bool, error)
	ListDocuments(filter DocumentFilter) ([]domain.Document, int, error)
	SetDocumentStatus(id string, status domain.DocumentStatus) error
	SetDocumentText(id string, rawText, processedText string, metadata map[string]string, processedAt time.Time) error
	SetDocumentFailed(id string, metadata map[string]string) error
	DeleteDocument(id string) error

	// cached artifacts; value and timestamp are written atomically
	SetDocumentSummary(id string, summary string, generatedAt time.Time) error
	SetDocumentStudyQuestions(id string, questions string, generatedAt time.Time) error
	SetDocumentMindMap(id string, mindMap domain.MindMap, generatedAt time.Time) error

	// chat sessions; creation is idempotent per (document, user) pair
	FindSession(documentID, userID string) (domain.ChatSession, bool, error)
	CreateSessionIfAbsent(documentID, userID, sessionName string) (domain.ChatSession, error)
	ListSessionsForDocument(documentID, userID string) ([]domain.ChatSession, error)
	TouchSession(id string, at time.Time) error
	DeleteSessionsForDocument(documentID string) error

	// chat messages; append-only, ordered by creation time
	AppendMessage(sessionID string, msg domain.ChatMessage) error
	ListRecentMessages(sessionID string, limit int) ([]domain.ChatMessage, error)
	ListSessionMessages(sessionID string, limit int) ([]domain.ChatMessage, error)

	// telegram account links
	SaveTelegramUser(domain.TelegramUser) error
	GetTelegramUserByTelegramID(telegramID int64) (domain.TelegramUser, bool, error)
	GetTelegramUserByLinkToken(token string, now time.Time) (domain.TelegramUser, bool, error)
	GetLinkedTelegramUser(userID string) (domain.TelegramUser, bool, error)
	SetTelegramLinkToken(id, token string, expiresAt time.Time) error
	LinkTelegramUser(id, userID string, at time.Time) error
	UnlinkTelegramUser(id string) error

	// whatsapp account links
	SaveWhatsAppUser(domain.WhatsAppUser) error
	GetWhatsAppUserByPhone(phone string) (domain.WhatsAppUser, bool, error)
	GetWhatsAppUserByLinkToken(token string, now time.Time) (domain.WhatsAppUser, bool, error)
	GetLinkedWhatsAppUser(userID string) (domain.WhatsAppUser, bool, error)
	SetWhatsAppLinkToken(id, token string, expiresAt time.Time) error
	LinkWhatsAppUser(id, userID string, at time.Time) error
	UnlinkWhatsAppUser(id string) error
}
