package store

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"studypal/pkg/domain"
)

func newEntityID() string {
	return uuid.NewString()
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		FullName:     u.FullName,
		Role:         string(u.Role),
		IsActive:     u.IsActive,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func modelToUser(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		FullName:     m.FullName,
		Role:         domain.UserRole(m.Role),
		IsActive:     m.IsActive,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func documentToModel(d domain.Document) (DocumentModel, error) {
	model := DocumentModel{
		ID:                   d.ID,
		UploadedBy:           d.UploadedBy,
		OriginalFilename:     d.OriginalFilename,
		StorageKey:           d.StorageKey,
		SizeBytes:            d.SizeBytes,
		MimeType:             d.MimeType,
		Status:               string(d.Status),
		RawText:              d.RawText,
		ProcessedText:        d.ProcessedText,
		CachedSummary:        d.CachedSummary,
		CachedStudyQuestions: d.CachedStudyQuestions,
		SummaryGeneratedAt:   d.SummaryGeneratedAt,
		QuestionsGeneratedAt: d.QuestionsGeneratedAt,
		MindMapGeneratedAt:   d.MindMapGeneratedAt,
		CreatedAt:            d.CreatedAt,
		ProcessedAt:          d.ProcessedAt,
	}
	if d.FileMetadata != nil {
		meta, err := json.Marshal(d.FileMetadata)
		if err != nil {
			return DocumentModel{}, fmt.Errorf("encode file metadata: %w", err)
		}
		model.FileMetadata = meta
	}
	if d.CachedMindMap != nil {
		encoded, err := json.Marshal(d.CachedMindMap)
		if err != nil {
			return DocumentModel{}, fmt.Errorf("encode mind map: %w", err)
		}
		model.CachedMindMap = encoded
	}
	return model, nil
}

func modelToDocument(m DocumentModel) (domain.Document, error) {
	doc := domain.Document{
		ID:                   m.ID,
		UploadedBy:           m.UploadedBy,
		OriginalFilename:     m.OriginalFilename,
		StorageKey:           m.StorageKey,
		SizeBytes:            m.SizeBytes,
		MimeType:             m.MimeType,
		Status:               domain.DocumentStatus(m.Status),
		RawText:              m.RawText,
		ProcessedText:        m.ProcessedText,
		CachedSummary:        m.CachedSummary,
		CachedStudyQuestions: m.CachedStudyQuestions,
		SummaryGeneratedAt:   m.SummaryGeneratedAt,
		QuestionsGeneratedAt: m.QuestionsGeneratedAt,
		MindMapGeneratedAt:   m.MindMapGeneratedAt,
		CreatedAt:            m.CreatedAt,
		ProcessedAt:          m.ProcessedAt,
	}
	if len(m.FileMetadata) > 0 {
		if err := json.Unmarshal(m.FileMetadata, &doc.FileMetadata); err != nil {
			return domain.Document{}, fmt.Errorf("decode file metadata: %w", err)
		}
	}
	if len(m.CachedMindMap) > 0 {
		var mindMap domain.MindMap
		if err := json.Unmarshal(m.CachedMindMap, &mindMap); err != nil {
			return domain.Document{}, fmt.Errorf("decode mind map: %w", err)
		}
		doc.CachedMindMap = &mindMap
	}
	return doc, nil
}

func modelToSession(m ChatSessionModel) domain.ChatSession {
	return domain.ChatSession{
		ID:          m.ID,
		DocumentID:  m.DocumentID,
		UserID:      m.UserID,
		SessionName: m.SessionName,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func messageToModel(sessionID string, msg domain.ChatMessage) (ChatMessageModel, error) {
	model := ChatMessageModel{
		ID:        msg.ID,
		SessionID: sessionID,
		Role:      msg.Role,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	}
	if msg.Metadata != nil {
		meta, err := json.Marshal(msg.Metadata)
		if err != nil {
			return ChatMessageModel{}, fmt.Errorf("encode message metadata: %w", err)
		}
		model.Metadata = meta
	}
	return model, nil
}

func modelsToMessages(models []ChatMessageModel) ([]domain.ChatMessage, error) {
	messages := make([]domain.ChatMessage, 0, len(models))
	for _, m := range models {
		msg := domain.ChatMessage{
			ID:        m.ID,
			SessionID: m.SessionID,
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		}
		if len(m.Metadata) > 0 {
			if err := json.Unmarshal(m.Metadata, &msg.Metadata); err != nil {
				return nil, fmt.Errorf("decode message metadata: %w", err)
			}
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func telegramToModel(tu domain.TelegramUser) TelegramUserModel {
	model := TelegramUserModel{
		ID:                 tu.ID,
		TelegramID:         tu.TelegramID,
		Username:           tu.Username,
		FirstName:          tu.FirstName,
		LastName:           tu.LastName,
		IsLinked:           tu.IsLinked,
		LinkTokenExpiresAt: tu.LinkTokenExpiresAt,
		LinkedAt:           tu.LinkedAt,
		CreatedAt:          tu.CreatedAt,
		UpdatedAt:          tu.UpdatedAt,
	}
	if tu.UserID != "" {
		userID := tu.UserID
		model.UserID = &userID
	}
	if tu.LinkToken != "" {
		token := tu.LinkToken
		model.LinkToken = &token
	}
	return model
}

func modelToTelegram(m TelegramUserModel) domain.TelegramUser {
	tu := domain.TelegramUser{
		ID:                 m.ID,
		TelegramID:         m.TelegramID,
		Username:           m.Username,
		FirstName:          m.FirstName,
		LastName:           m.LastName,
		IsLinked:           m.IsLinked,
		LinkTokenExpiresAt: m.LinkTokenExpiresAt,
		LinkedAt:           m.LinkedAt,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
	if m.UserID != nil {
		tu.UserID = *m.UserID
	}
	if m.LinkToken != nil {
		tu.LinkToken = *m.LinkToken
	}
	return tu
}

func whatsappToModel(wu domain.WhatsAppUser) WhatsAppUserModel {
	model := WhatsAppUserModel{
		ID:                 wu.ID,
		Phone:              wu.Phone,
		ProfileName:        wu.ProfileName,
		IsLinked:           wu.IsLinked,
		LinkTokenExpiresAt: wu.LinkTokenExpiresAt,
		LinkedAt:           wu.LinkedAt,
		CreatedAt:          wu.CreatedAt,
		UpdatedAt:          wu.UpdatedAt,
	}
	if wu.UserID != "" {
		userID := wu.UserID
		model.UserID = &userID
	}
	if wu.LinkToken != "" {
		token := wu.LinkToken
		model.LinkToken = &token
	}
	return model
}

func modelToWhatsApp(m WhatsAppUserModel) domain.WhatsAppUser {
	wu := domain.WhatsAppUser{
		ID:                 m.ID,
		Phone:              m.Phone,
		ProfileName:        m.ProfileName,
		IsLinked:           m.IsLinked,
		LinkTokenExpiresAt: m.LinkTokenExpiresAt,
		LinkedAt:           m.LinkedAt,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
	if m.UserID != nil {
		wu.UserID = *m.UserID
	}
	if m.LinkToken != nil {
		wu.LinkToken = *m.LinkToken
	}
	return wu
}
