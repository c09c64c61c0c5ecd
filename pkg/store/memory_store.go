package store

import (
	"sync"
	"time"

	"studypal/pkg/domain"
)

// MemoryStore keeps everything in-process. It backs tests and local
// development without Postgres.
type MemoryStore struct {
	mu        sync.Mutex
	users     map[string]domain.User
	emails    map[string]string // email -> user ID
	documents map[string]domain.Document
	docOrder  []string
	sessions  map[string]domain.ChatSession   // session ID -> session
	pairs     map[string]string               // documentID|userID -> session ID
	messages  map[string][]domain.ChatMessage // session ID -> append order
	telegram  map[string]domain.TelegramUser  // record ID -> record
	whatsapp  map[string]domain.WhatsAppUser
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[string]domain.User),
		emails:    make(map[string]string),
		documents: make(map[string]domain.Document),
		sessions:  make(map[string]domain.ChatSession),
		pairs:     make(map[string]string),
		messages:  make(map[string][]domain.ChatMessage),
		telegram:  make(map[string]domain.TelegramUser),
		whatsapp:  make(map[string]domain.WhatsAppUser),
	}
}

func pairKey(documentID, userID string) string {
	return documentID + "|" + userID
}

func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	m.emails[u.Email] = u.ID
	return nil
}

func (m *MemoryStore) HasUserEmail(email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.emails[email]
	return ok, nil
}

func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.emails[email]
	if !ok {
		return domain.User{}, false, nil
	}
	user, ok := m.users[id]
	return user, ok, nil
}

func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	return user, ok, nil
}

func (m *MemoryStore) SaveDocument(d domain.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.documents[d.ID]; !exists {
		m.docOrder = append(m.docOrder, d.ID)
	}
	m.documents[d.ID] = d
	return nil
}

func (m *MemoryStore) GetDocument(id string) (domain.Document, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.documents[id]
	return doc, ok, nil
}

func (m *MemoryStore) ListDocuments(filter DocumentFilter) ([]domain.Document, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var visible []domain.Document
	// newest first, mirroring the SQL ordering
	for i := len(m.docOrder) - 1; i >= 0; i-- {
		doc, ok := m.documents[m.docOrder[i]]
		if !ok {
			continue
		}
		switch filter.ViewerRole {
		case domain.RoleStudent:
			if doc.Status != domain.StatusProcessed {
				continue
			}
		case domain.RoleInstructor:
			if doc.UploadedBy != filter.ViewerID && doc.Status != domain.StatusProcessed {
				continue
			}
		}
		if filter.Status != "" && doc.Status != filter.Status {
			continue
		}
		visible = append(visible, doc)
	}
	total := len(visible)
	if filter.Offset > 0 {
		if filter.Offset >= len(visible) {
			return nil, total, nil
		}
		visible = visible[filter.Offset:]
	}
	if filter.Limit > 0 && len(visible) > filter.Limit {
		visible = visible[:filter.Limit]
	}
	return visible, total, nil
}

func (m *MemoryStore) SetDocumentStatus(id string, status domain.DocumentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.documents[id]
	if !ok {
		return nil
	}
	doc.Status = status
	m.documents[id] = doc
	return nil
}

func (m *MemoryStore) SetDocumentText(id string, rawText, processedText string, metadata map[string]string, processedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.documents[id]
	if !ok {
		return nil
	}
	doc.RawText = rawText
	doc.ProcessedText = processedText
	doc.FileMetadata = metadata
	doc.Status = domain.StatusProcessed
	doc.ProcessedAt = &processedAt
	m.documents[id] = doc
	return nil
}

func (m *MemoryStore) SetDocumentFailed(id string, metadata map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.documents[id]
	if !ok {
		return nil
	}
	doc.FileMetadata = metadata
	doc.Status = domain.StatusFailed
	m.documents[id] = doc
	return nil
}

func (m *MemoryStore) DeleteDocument(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.documents, id)
	for i, docID := range m.docOrder {
		if docID == id {
			m.docOrder = append(m.docOrder[:i], m.docOrder[i+1:]...)
			break
		}
	}
	for sessionID, session := range m.sessions {
		if session.DocumentID == id {
			delete(m.sessions, sessionID)
			delete(m.pairs, pairKey(session.DocumentID, session.UserID))
			delete(m.messages, sessionID)
		}
	}
	return nil
}

func (m *MemoryStore) SetDocumentSummary(id string, summary string, generatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.documents[id]
	if !ok {
		return nil
	}
	doc.CachedSummary = summary
	doc.SummaryGeneratedAt = &generatedAt
	m.documents[id] = doc
	return nil
}

func (m *MemoryStore) SetDocumentStudyQuestions(id string, questions string, generatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.documents[id]
	if !ok {
		return nil
	}
	doc.CachedStudyQuestions = questions
	doc.QuestionsGeneratedAt = &generatedAt
	m.documents[id] = doc
	return nil
}

func (m *MemoryStore) SetDocumentMindMap(id string, mindMap domain.MindMap, generatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.documents[id]
	if !ok {
		return nil
	}
	doc.CachedMindMap = &mindMap
	doc.MindMapGeneratedAt = &generatedAt
	m.documents[id] = doc
	return nil
}

func (m *MemoryStore) FindSession(documentID, userID string) (domain.ChatSession, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sessionID, ok := m.pairs[pairKey(documentID, userID)]
	if !ok {
		return domain.ChatSession{}, false, nil
	}
	session, ok := m.sessions[sessionID]
	return session, ok, nil
}

func (m *MemoryStore) CreateSessionIfAbsent(documentID, userID, sessionName string) (domain.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey(documentID, userID)
	if sessionID, ok := m.pairs[key]; ok {
		return m.sessions[sessionID], nil
	}
	now := time.Now().UTC()
	session := domain.ChatSession{
		ID:          newEntityID(),
		DocumentID:  documentID,
		UserID:      userID,
		SessionName: sessionName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.sessions[session.ID] = session
	m.pairs[key] = session.ID
	return session, nil
}

func (m *MemoryStore) ListSessionsForDocument(documentID, userID string) ([]domain.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sessions []domain.ChatSession
	for _, session := range m.sessions {
		if session.DocumentID == documentID && session.UserID == userID {
			sessions = append(sessions, session)
		}
	}
	return sessions, nil
}

func (m *MemoryStore) TouchSession(id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil
	}
	session.UpdatedAt = at
	m.sessions[id] = session
	return nil
}

func (m *MemoryStore) DeleteSessionsForDocument(documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for sessionID, session := range m.sessions {
		if session.DocumentID == documentID {
			delete(m.sessions, sessionID)
			delete(m.pairs, pairKey(session.DocumentID, session.UserID))
			delete(m.messages, sessionID)
		}
	}
	return nil
}

func (m *MemoryStore) AppendMessage(sessionID string, msg domain.ChatMessage) error {
	if msg.Role != domain.MessageRoleUser && msg.Role != domain.MessageRoleAssistant {
		return ErrInvalidMessageRole
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[sessionID] = append(m.messages[sessionID], msg)
	return nil
}

func (m *MemoryStore) ListRecentMessages(sessionID string, limit int) ([]domain.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.messages[sessionID]
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	recent := make([]domain.ChatMessage, 0, limit)
	for i := len(all) - 1; i >= len(all)-limit; i-- {
		recent = append(recent, all[i])
	}
	return recent, nil
}

func (m *MemoryStore) ListSessionMessages(sessionID string, limit int) ([]domain.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.messages[sessionID]
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	out := make([]domain.ChatMessage, limit)
	copy(out, all[:limit])
	return out, nil
}

func (m *MemoryStore) SaveTelegramUser(tu domain.TelegramUser) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.telegram[tu.ID] = tu
	return nil
}

func (m *MemoryStore) GetTelegramUserByTelegramID(telegramID int64) (domain.TelegramUser, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tu := range m.telegram {
		if tu.TelegramID == telegramID {
			return tu, true, nil
		}
	}
	return domain.TelegramUser{}, false, nil
}

func (m *MemoryStore) GetTelegramUserByLinkToken(token string, now time.Time) (domain.TelegramUser, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tu := range m.telegram {
		if tu.LinkToken == token && tu.LinkTokenExpiresAt != nil && tu.LinkTokenExpiresAt.After(now) {
			return tu, true, nil
		}
	}
	return domain.TelegramUser{}, false, nil
}

func (m *MemoryStore) GetLinkedTelegramUser(userID string) (domain.TelegramUser, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tu := range m.telegram {
		if tu.UserID == userID && tu.IsLinked {
			return tu, true, nil
		}
	}
	return domain.TelegramUser{}, false, nil
}

func (m *MemoryStore) SetTelegramLinkToken(id, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tu, ok := m.telegram[id]
	if !ok {
		return nil
	}
	tu.LinkToken = token
	tu.LinkTokenExpiresAt = &expiresAt
	m.telegram[id] = tu
	return nil
}

func (m *MemoryStore) LinkTelegramUser(id, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tu, ok := m.telegram[id]
	if !ok {
		return nil
	}
	tu.UserID = userID
	tu.IsLinked = true
	tu.LinkedAt = &at
	tu.LinkToken = ""
	tu.LinkTokenExpiresAt = nil
	m.telegram[id] = tu
	return nil
}

func (m *MemoryStore) UnlinkTelegramUser(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tu, ok := m.telegram[id]
	if !ok {
		return nil
	}
	tu.UserID = ""
	tu.IsLinked = false
	tu.LinkedAt = nil
	tu.LinkToken = ""
	tu.LinkTokenExpiresAt = nil
	m.telegram[id] = tu
	return nil
}

func (m *MemoryStore) SaveWhatsAppUser(wu domain.WhatsAppUser) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.whatsapp[wu.ID] = wu
	return nil
}

func (m *MemoryStore) GetWhatsAppUserByPhone(phone string) (domain.WhatsAppUser, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, wu := range m.whatsapp {
		if wu.Phone == phone {
			return wu, true, nil
		}
	}
	return domain.WhatsAppUser{}, false, nil
}

func (m *MemoryStore) GetWhatsAppUserByLinkToken(token string, now time.Time) (domain.WhatsAppUser, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, wu := range m.whatsapp {
		if wu.LinkToken == token && wu.LinkTokenExpiresAt != nil && wu.LinkTokenExpiresAt.After(now) {
			return wu, true, nil
		}
	}
	return domain.WhatsAppUser{}, false, nil
}

func (m *MemoryStore) GetLinkedWhatsAppUser(userID string) (domain.WhatsAppUser, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, wu := range m.whatsapp {
		if wu.UserID == userID && wu.IsLinked {
			return wu, true, nil
		}
	}
	return domain.WhatsAppUser{}, false, nil
}

func (m *MemoryStore) SetWhatsAppLinkToken(id, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	wu, ok := m.whatsapp[id]
	if !ok {
		return nil
	}
	wu.LinkToken = token
	wu.LinkTokenExpiresAt = &expiresAt
	m.whatsapp[id] = wu
	return nil
}

func (m *MemoryStore) LinkWhatsAppUser(id, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	wu, ok := m.whatsapp[id]
	if !ok {
		return nil
	}
	wu.UserID = userID
	wu.IsLinked = true
	wu.LinkedAt = &at
	wu.LinkToken = ""
	wu.LinkTokenExpiresAt = nil
	m.whatsapp[id] = wu
	return nil
}

func (m *MemoryStore) UnlinkWhatsAppUser(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	wu, ok := m.whatsapp[id]
	if !ok {
		return nil
	}
	wu.UserID = ""
	wu.IsLinked = false
	wu.LinkedAt = nil
	wu.LinkToken = ""
	wu.LinkTokenExpiresAt = nil
	m.whatsapp[id] = wu
	return nil
}
