package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"studypal/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(
		&UserModel{},
		&DocumentModel{},
		&ChatSessionModel{},
		&ChatMessageModel{},
		&TelegramUserModel{},
		&WhatsAppUserModel{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	if err := db.Exec(`
		DO $$
		BEGIN
			IF NOT EXISTS (
				SELECT 1 FROM information_schema.table_constraints
				WHERE table_schema = 'public'
				AND table_name = 'chat_session_models'
				AND constraint_name = 'chat_session_models_document_id_fkey'
			) THEN
				ALTER TABLE chat_session_models
				ADD CONSTRAINT chat_session_models_document_id_fkey
				FOREIGN KEY (document_id) REFERENCES document_models(id) ON DELETE CASCADE;
			END IF;
			IF NOT EXISTS (
				SELECT 1 FROM information_schema.table_constraints
				WHERE table_schema = 'public'
				AND table_name = 'chat_message_models'
				AND constraint_name = 'chat_message_models_session_id_fkey'
			) THEN
				ALTER TABLE chat_message_models
				ADD CONSTRAINT chat_message_models_session_id_fkey
				FOREIGN KEY (session_id) REFERENCES chat_session_models(id) ON DELETE CASCADE;
			END IF;
		END $$;
	`).Error; err != nil {
		return nil, fmt.Errorf("add chat foreign keys: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	if err := s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&model).Error; err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func (s *GormStore) HasUserEmail(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	return count > 0, nil
}

func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	err := s.db.Where("email = ?", email).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.User{}, false, nil
	}
	if err != nil {
		return domain.User{}, false, fmt.Errorf("get user by email: %w", err)
	}
	return modelToUser(model), true, nil
}

func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	err := s.db.First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.User{}, false, nil
	}
	if err != nil {
		return domain.User{}, false, fmt.Errorf("get user: %w", err)
	}
	return modelToUser(model), true, nil
}

func (s *GormStore) SaveDocument(d domain.Document) error {
	model, err := documentToModel(d)
	if err != nil {
		return err
	}
	if err := s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&model).Error; err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	return nil
}

func (s *GormStore) GetDocument(id string) (domain.Document, bool, error) {
	var model DocumentModel
	err := s.db.First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Document{}, false, nil
	}
	if err != nil {
		return domain.Document{}, false, fmt.Errorf("get document: %w", err)
	}
	doc, err := modelToDocument(model)
	if err != nil {
		return domain.Document{}, false, err
	}
	return doc, true, nil
}

func (s *GormStore) ListDocuments(filter DocumentFilter) ([]domain.Document, int, error) {
	query := s.db.Model(&DocumentModel{})
	switch filter.ViewerRole {
	case domain.RoleStudent:
		query = query.Where("status = ?", string(domain.StatusProcessed))
	case domain.RoleInstructor:
		query = query.Where("uploaded_by = ? OR status = ?", filter.ViewerID, string(domain.StatusProcessed))
	}
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count documents: %w", err)
	}
	var models []DocumentModel
	listQuery := query.Order("created_at DESC")
	if filter.Offset > 0 {
		listQuery = listQuery.Offset(filter.Offset)
	}
	if filter.Limit > 0 {
		listQuery = listQuery.Limit(filter.Limit)
	}
	if err := listQuery.Find(&models).Error; err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}
	docs := make([]domain.Document, 0, len(models))
	for _, model := range models {
		doc, err := modelToDocument(model)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, doc)
	}
	return docs, int(total), nil
}

func (s *GormStore) SetDocumentStatus(id string, status domain.DocumentStatus) error {
	res := s.db.Model(&DocumentModel{}).Where("id = ?", id).Update("status", string(status))
	if res.Error != nil {
		return fmt.Errorf("set document status: %w", res.Error)
	}
	return nil
}

func (s *GormStore) SetDocumentText(id string, rawText, processedText string, metadata map[string]string, processedAt time.Time) error {
	meta, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode file metadata: %w", err)
	}
	res := s.db.Model(&DocumentModel{}).Where("id = ?", id).Updates(map[string]any{
		"raw_text":       rawText,
		"processed_text": processedText,
		"file_metadata":  meta,
		"status":         string(domain.StatusProcessed),
		"processed_at":   processedAt,
	})
	if res.Error != nil {
		return fmt.Errorf("set document text: %w", res.Error)
	}
	return nil
}

func (s *GormStore) SetDocumentFailed(id string, metadata map[string]string) error {
	meta, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode file metadata: %w", err)
	}
	res := s.db.Model(&DocumentModel{}).Where("id = ?", id).Updates(map[string]any{
		"file_metadata": meta,
		"status":        string(domain.StatusFailed),
	})
	if res.Error != nil {
		return fmt.Errorf("set document failed: %w", res.Error)
	}
	return nil
}

func (s *GormStore) DeleteDocument(id string) error {
	if err := s.db.Delete(&DocumentModel{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

func (s *GormStore) SetDocumentSummary(id string, summary string, generatedAt time.Time) error {
	res := s.db.Model(&DocumentModel{}).Where("id = ?", id).Updates(map[string]any{
		"cached_summary":       summary,
		"summary_generated_at": generatedAt,
	})
	if res.Error != nil {
		return fmt.Errorf("set document summary: %w", res.Error)
	}
	return nil
}

func (s *GormStore) SetDocumentStudyQuestions(id string, questions string, generatedAt time.Time) error {
	res := s.db.Model(&DocumentModel{}).Where("id = ?", id).Updates(map[string]any{
		"cached_study_questions": questions,
		"questions_generated_at": generatedAt,
	})
	if res.Error != nil {
		return fmt.Errorf("set document study questions: %w", res.Error)
	}
	return nil
}

func (s *GormStore) SetDocumentMindMap(id string, mindMap domain.MindMap, generatedAt time.Time) error {
	encoded, err := json.Marshal(mindMap)
	if err != nil {
		return fmt.Errorf("encode mind map: %w", err)
	}
	res := s.db.Model(&DocumentModel{}).Where("id = ?", id).Updates(map[string]any{
		"cached_mind_map":       encoded,
		"mind_map_generated_at": generatedAt,
	})
	if res.Error != nil {
		return fmt.Errorf("set document mind map: %w", res.Error)
	}
	return nil
}

func (s *GormStore) FindSession(documentID, userID string) (domain.ChatSession, bool, error) {
	var model ChatSessionModel
	err := s.db.Where("document_id = ? AND user_id = ?", documentID, userID).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ChatSession{}, false, nil
	}
	if err != nil {
		return domain.ChatSession{}, false, fmt.Errorf("find session: %w", err)
	}
	return modelToSession(model), true, nil
}

// CreateSessionIfAbsent inserts with ON CONFLICT DO NOTHING on the
// (document_id, user_id) unique index and rereads, so concurrent first
// messages from the same pair converge on a single session.
func (s *GormStore) CreateSessionIfAbsent(documentID, userID, sessionName string) (domain.ChatSession, error) {
	now := time.Now().UTC()
	model := ChatSessionModel{
		ID:          newEntityID(),
		DocumentID:  documentID,
		UserID:      userID,
		SessionName: sessionName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "document_id"}, {Name: "user_id"}},
		DoNothing: true,
	}).Create(&model).Error
	if err != nil {
		return domain.ChatSession{}, fmt.Errorf("create session: %w", err)
	}
	session, ok, err := s.FindSession(documentID, userID)
	if err != nil {
		return domain.ChatSession{}, err
	}
	if !ok {
		return domain.ChatSession{}, fmt.Errorf("create session: row missing after insert")
	}
	return session, nil
}

func (s *GormStore) ListSessionsForDocument(documentID, userID string) ([]domain.ChatSession, error) {
	var models []ChatSessionModel
	err := s.db.Where("document_id = ? AND user_id = ?", documentID, userID).
		Order("updated_at DESC").Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	sessions := make([]domain.ChatSession, 0, len(models))
	for _, model := range models {
		sessions = append(sessions, modelToSession(model))
	}
	return sessions, nil
}

func (s *GormStore) TouchSession(id string, at time.Time) error {
	res := s.db.Model(&ChatSessionModel{}).Where("id = ?", id).Update("updated_at", at)
	if res.Error != nil {
		return fmt.Errorf("touch session: %w", res.Error)
	}
	return nil
}

func (s *GormStore) DeleteSessionsForDocument(documentID string) error {
	err := s.db.Where("session_id IN (?)",
		s.db.Model(&ChatSessionModel{}).Select("id").Where("document_id = ?", documentID),
	).Delete(&ChatMessageModel{}).Error
	if err != nil {
		return fmt.Errorf("delete session messages: %w", err)
	}
	if err := s.db.Delete(&ChatSessionModel{}, "document_id = ?", documentID).Error; err != nil {
		return fmt.Errorf("delete sessions: %w", err)
	}
	return nil
}

func (s *GormStore) AppendMessage(sessionID string, msg domain.ChatMessage) error {
	if msg.Role != domain.MessageRoleUser && msg.Role != domain.MessageRoleAssistant {
		return ErrInvalidMessageRole
	}
	model, err := messageToModel(sessionID, msg)
	if err != nil {
		return err
	}
	if err := s.db.Create(&model).Error; err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// ListRecentMessages returns up to limit messages, newest first.
func (s *GormStore) ListRecentMessages(sessionID string, limit int) ([]domain.ChatMessage, error) {
	var models []ChatMessageModel
	err := s.db.Where("session_id = ?", sessionID).
		Order("seq DESC").Limit(limit).Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("list recent messages: %w", err)
	}
	return modelsToMessages(models)
}

// ListSessionMessages returns up to limit messages in chronological order.
func (s *GormStore) ListSessionMessages(sessionID string, limit int) ([]domain.ChatMessage, error) {
	var models []ChatMessageModel
	query := s.db.Where("session_id = ?", sessionID).Order("seq ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list session messages: %w", err)
	}
	return modelsToMessages(models)
}

func (s *GormStore) SaveTelegramUser(tu domain.TelegramUser) error {
	model := telegramToModel(tu)
	if err := s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&model).Error; err != nil {
		return fmt.Errorf("save telegram user: %w", err)
	}
	return nil
}

func (s *GormStore) GetTelegramUserByTelegramID(telegramID int64) (domain.TelegramUser, bool, error) {
	var model TelegramUserModel
	err := s.db.Where("telegram_id = ?", telegramID).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.TelegramUser{}, false, nil
	}
	if err != nil {
		return domain.TelegramUser{}, false, fmt.Errorf("get telegram user: %w", err)
	}
	return modelToTelegram(model), true, nil
}

func (s *GormStore) GetTelegramUserByLinkToken(token string, now time.Time) (domain.TelegramUser, bool, error) {
	var model TelegramUserModel
	err := s.db.Where("link_token = ? AND link_token_expires_at > ?", token, now).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.TelegramUser{}, false, nil
	}
	if err != nil {
		return domain.TelegramUser{}, false, fmt.Errorf("get telegram user by token: %w", err)
	}
	return modelToTelegram(model), true, nil
}

func (s *GormStore) GetLinkedTelegramUser(userID string) (domain.TelegramUser, bool, error) {
	var model TelegramUserModel
	err := s.db.Where("user_id = ? AND is_linked = ?", userID, true).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.TelegramUser{}, false, nil
	}
	if err != nil {
		return domain.TelegramUser{}, false, fmt.Errorf("get linked telegram user: %w", err)
	}
	return modelToTelegram(model), true, nil
}

func (s *GormStore) SetTelegramLinkToken(id, token string, expiresAt time.Time) error {
	res := s.db.Model(&TelegramUserModel{}).Where("id = ?", id).Updates(map[string]any{
		"link_token":            token,
		"link_token_expires_at": expiresAt,
	})
	if res.Error != nil {
		return fmt.Errorf("set telegram link token: %w", res.Error)
	}
	return nil
}

func (s *GormStore) LinkTelegramUser(id, userID string, at time.Time) error {
	res := s.db.Model(&TelegramUserModel{}).Where("id = ?", id).Updates(map[string]any{
		"user_id":               userID,
		"is_linked":             true,
		"linked_at":             at,
		"link_token":            nil,
		"link_token_expires_at": nil,
	})
	if res.Error != nil {
		return fmt.Errorf("link telegram user: %w", res.Error)
	}
	return nil
}

func (s *GormStore) UnlinkTelegramUser(id string) error {
	res := s.db.Model(&TelegramUserModel{}).Where("id = ?", id).Updates(map[string]any{
		"user_id":               nil,
		"is_linked":             false,
		"linked_at":             nil,
		"link_token":            nil,
		"link_token_expires_at": nil,
	})
	if res.Error != nil {
		return fmt.Errorf("unlink telegram user: %w", res.Error)
	}
	return nil
}

func (s *GormStore) SaveWhatsAppUser(wu domain.WhatsAppUser) error {
	model := whatsappToModel(wu)
	if err := s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&model).Error; err != nil {
		return fmt.Errorf("save whatsapp user: %w", err)
	}
	return nil
}

func (s *GormStore) GetWhatsAppUserByPhone(phone string) (domain.WhatsAppUser, bool, error) {
	var model WhatsAppUserModel
	err := s.db.Where("phone = ?", phone).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.WhatsAppUser{}, false, nil
	}
	if err != nil {
		return domain.WhatsAppUser{}, false, fmt.Errorf("get whatsapp user: %w", err)
	}
	return modelToWhatsApp(model), true, nil
}

func (s *GormStore) GetWhatsAppUserByLinkToken(token string, now time.Time) (domain.WhatsAppUser, bool, error) {
	var model WhatsAppUserModel
	err := s.db.Where("link_token = ? AND link_token_expires_at > ?", token, now).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.WhatsAppUser{}, false, nil
	}
	if err != nil {
		return domain.WhatsAppUser{}, false, fmt.Errorf("get whatsapp user by token: %w", err)
	}
	return modelToWhatsApp(model), true, nil
}

func (s *GormStore) GetLinkedWhatsAppUser(userID string) (domain.WhatsAppUser, bool, error) {
	var model WhatsAppUserModel
	err := s.db.Where("user_id = ? AND is_linked = ?", userID, true).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.WhatsAppUser{}, false, nil
	}
	if err != nil {
		return domain.WhatsAppUser{}, false, fmt.Errorf("get linked whatsapp user: %w", err)
	}
	return modelToWhatsApp(model), true, nil
}

func (s *GormStore) SetWhatsAppLinkToken(id, token string, expiresAt time.Time) error {
	res := s.db.Model(&WhatsAppUserModel{}).Where("id = ?", id).Updates(map[string]any{
		"link_token":            token,
		"link_token_expires_at": expiresAt,
	})
	if res.Error != nil {
		return fmt.Errorf("set whatsapp link token: %w", res.Error)
	}
	return nil
}

func (s *GormStore) LinkWhatsAppUser(id, userID string, at time.Time) error {
	res := s.db.Model(&WhatsAppUserModel{}).Where("id = ?", id).Updates(map[string]any{
		"user_id":               userID,
		"is_linked":             true,
		"linked_at":             at,
		"link_token":            nil,
		"link_token_expires_at": nil,
	})
	if res.Error != nil {
		return fmt.Errorf("link whatsapp user: %w", res.Error)
	}
	return nil
}

func (s *GormStore) UnlinkWhatsAppUser(id string) error {
	res := s.db.Model(&WhatsAppUserModel{}).Where("id = ?", id).Updates(map[string]any{
		"user_id":               nil,
		"is_linked":             false,
		"linked_at":             nil,
		"link_token":            nil,
		"link_token_expires_at": nil,
	})
	if res.Error != nil {
		return fmt.Errorf("unlink whatsapp user: %w", res.Error)
	}
	return nil
}
