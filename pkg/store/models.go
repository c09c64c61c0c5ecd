package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	FullName     string `gorm:"not null"`
	Role         string `gorm:"not null"`
	IsActive     bool
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

type DocumentModel struct {
	ID               string `gorm:"primaryKey"`
	UploadedBy       string `gorm:"index"`
	OriginalFilename string `gorm:"not null"`
	StorageKey       string
	SizeBytes        int64  `gorm:"not null"`
	MimeType         string
	Status           string `gorm:"not null;index"`
	RawText          string `gorm:"type:text"`
	ProcessedText    string `gorm:"type:text"`
	FileMetadata     datatypes.JSON `gorm:"type:jsonb"`

	CachedSummary        string         `gorm:"type:text"`
	CachedStudyQuestions string         `gorm:"type:text"`
	CachedMindMap        datatypes.JSON `gorm:"type:jsonb"`
	SummaryGeneratedAt   *time.Time
	QuestionsGeneratedAt *time.Time
	MindMapGeneratedAt   *time.Time

	CreatedAt   time.Time `gorm:"not null;index"`
	ProcessedAt *time.Time
}

// ChatSessionModel allows at most one session per (document, user) via a
// composite unique index; concurrent creators converge on one row.
type ChatSessionModel struct {
	ID          string    `gorm:"primaryKey"`
	DocumentID  string    `gorm:"not null;uniqueIndex:idx_sessions_document_user"`
	UserID      string    `gorm:"not null;uniqueIndex:idx_sessions_document_user"`
	SessionName string
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null;index"`
}

// ChatMessageModel carries a serial Seq so ordering stays stable when
// two messages land on the same created_at value.
type ChatMessageModel struct {
	ID        string         `gorm:"primaryKey"`
	Seq       int64          `gorm:"autoIncrement;uniqueIndex"`
	SessionID string         `gorm:"not null;index"`
	Role      string         `gorm:"not null"`
	Content   string         `gorm:"type:text;not null"`
	Metadata  datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt time.Time      `gorm:"not null;index"`
}

type TelegramUserModel struct {
	ID                 string `gorm:"primaryKey"`
	UserID             *string `gorm:"uniqueIndex"`
	TelegramID         int64  `gorm:"uniqueIndex;not null"`
	Username           string
	FirstName          string
	LastName           string
	IsLinked           bool
	LinkToken          *string `gorm:"uniqueIndex"`
	LinkTokenExpiresAt *time.Time
	LinkedAt           *time.Time
	CreatedAt          time.Time `gorm:"not null"`
	UpdatedAt          time.Time
}

type WhatsAppUserModel struct {
	ID                 string  `gorm:"primaryKey"`
	UserID             *string `gorm:"uniqueIndex"`
	Phone              string  `gorm:"uniqueIndex;not null"`
	ProfileName        string
	IsLinked           bool
	LinkToken          *string `gorm:"uniqueIndex"`
	LinkTokenExpiresAt *time.Time
	LinkedAt           *time.Time
	CreatedAt          time.Time `gorm:"not null"`
	UpdatedAt          time.Time
}
