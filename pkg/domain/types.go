package domain

import "time"

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusProcessed  DocumentStatus = "processed"
	StatusFailed     DocumentStatus = "failed"
)

type UserRole string

const (
	RoleAdmin      UserRole = "admin"
	RoleInstructor UserRole = "instructor"
	RoleStudent    UserRole = "student"
)

// Message roles form a closed set; the store rejects anything else.
const (
	MessageRoleUser      = "user"
	MessageRoleAssistant = "assistant"
)

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FullName     string    `json:"fullName"`
	Role         UserRole  `json:"role"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Document carries the extracted text plus three independently cached
// AI artifacts. A slot and its generated-at timestamp are always set
// together; slots are never cleared once generated.
type Document struct {
	ID               string            `json:"id"`
	UploadedBy       string            `json:"uploadedBy"`
	OriginalFilename string            `json:"originalFilename"`
	StorageKey       string            `json:"-"`
	SizeBytes        int64             `json:"sizeBytes"`
	MimeType         string            `json:"mimeType"`
	Status           DocumentStatus    `json:"status"`
	RawText          string            `json:"-"`
	ProcessedText    string            `json:"-"`
	FileMetadata     map[string]string `json:"fileMetadata,omitempty"`

	CachedSummary        string     `json:"-"`
	CachedStudyQuestions string     `json:"-"`
	CachedMindMap        *MindMap   `json:"-"`
	SummaryGeneratedAt   *time.Time `json:"-"`
	QuestionsGeneratedAt *time.Time `json:"-"`
	MindMapGeneratedAt   *time.Time `json:"-"`

	CreatedAt   time.Time  `json:"createdAt"`
	ProcessedAt *time.Time `json:"processedAt,omitempty"`
}

// ChatSession is the unique conversation scope for one (document, user)
// pair. At most one session exists per pair.
type ChatSession struct {
	ID          string    `json:"id"`
	DocumentID  string    `json:"documentId"`
	UserID      string    `json:"userId"`
	SessionName string    `json:"sessionName"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ChatMessage is one immutable half of a turn inside a session.
type ChatMessage struct {
	ID        string            `json:"id"`
	SessionID string            `json:"sessionId"`
	Role      string            `json:"role"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// MindMap is the structured artifact returned by the mind-map generator.
type MindMap struct {
	Title    string        `json:"title"`
	Children []MindMapNode `json:"children,omitempty"`
}

type MindMapNode struct {
	Name     string        `json:"name"`
	Children []MindMapNode `json:"children,omitempty"`
}

// TelegramUser binds a Telegram account to a platform user via a
// short-lived link token.
type TelegramUser struct {
	ID                 string     `json:"id"`
	UserID             string     `json:"userId,omitempty"`
	TelegramID         int64      `json:"telegramId"`
	Username           string     `json:"username,omitempty"`
	FirstName          string     `json:"firstName,omitempty"`
	LastName           string     `json:"lastName,omitempty"`
	IsLinked           bool       `json:"isLinked"`
	LinkToken          string     `json:"-"`
	LinkTokenExpiresAt *time.Time `json:"-"`
	LinkedAt           *time.Time `json:"linkedAt,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// WhatsAppUser is the WhatsApp counterpart, keyed by phone number.
type WhatsAppUser struct {
	ID                 string     `json:"id"`
	UserID             string     `json:"userId,omitempty"`
	Phone              string     `json:"phone"`
	ProfileName        string     `json:"profileName,omitempty"`
	IsLinked           bool       `json:"isLinked"`
	LinkToken          string     `json:"-"`
	LinkTokenExpiresAt *time.Time `json:"-"`
	LinkedAt           *time.Time `json:"linkedAt,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}
