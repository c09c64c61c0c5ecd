package whatsapp

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"studypal/internal/app"
	"studypal/pkg/ai"
	"studypal/pkg/domain"
	"studypal/pkg/store"
)

type recordingSender struct {
	mu       sync.Mutex
	messages []string
	to       []string
}

func (s *recordingSender) SendText(_ context.Context, to, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.to = append(s.to, to)
	s.messages = append(s.messages, body)
	return nil
}

func (s *recordingSender) last(t *testing.T) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		t.Fatal("no messages sent")
	}
	return s.messages[len(s.messages)-1]
}

type nopObjects struct{}

func (nopObjects) Put(context.Context, string, io.Reader, int64, string) error { return nil }
func (nopObjects) Get(context.Context, string) (io.ReadCloser, error) {
	return nil, errors.New("not stored")
}
func (nopObjects) Delete(context.Context, string) error { return nil }

type scriptedGenerator struct{ reply string }

func (g *scriptedGenerator) GenerateText(_ context.Context, _, _ string) (string, error) {
	return g.reply, nil
}

type webhookFixture struct {
	webhook *Webhook
	sender  *recordingSender
	app     *app.App
	store   *store.MemoryStore
	user    domain.User
	doc     domain.Document
}

const (
	testVerifyToken = "verify-me"
	testAppSecret   = "app-secret"
	testPhone       = "15551230042"
)

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	return newWebhookFixtureWithResponder(t, ai.NewResponder(&scriptedGenerator{reply: "the answer"}, "test-model"))
}

func newWebhookFixtureWithResponder(t *testing.T, responder *ai.Responder) *webhookFixture {
	t.Helper()
	memStore := store.NewMemoryStore()
	application, err := app.New(app.Config{
		Store:     memStore,
		Objects:   nopObjects{},
		Responder: responder,
	})
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}

	now := time.Now().UTC()
	user := domain.User{ID: "user-1", Email: "s@example.com", FullName: "Stu Dent", Role: domain.RoleStudent, IsActive: true, CreatedAt: now}
	if err := memStore.SaveUser(user); err != nil {
		t.Fatalf("save user: %v", err)
	}
	doc := domain.Document{
		ID:               "doc-1",
		UploadedBy:       "instructor-1",
		OriginalFilename: "water-cycle.pdf",
		Status:           domain.StatusProcessed,
		ProcessedText:    "Evaporation, condensation, precipitation.",
		CreatedAt:        now,
		ProcessedAt:      &now,
	}
	if err := memStore.SaveDocument(doc); err != nil {
		t.Fatalf("save document: %v", err)
	}

	sender := &recordingSender{}
	return &webhookFixture{
		webhook: NewWebhook(application, sender, testVerifyToken, testAppSecret, nil),
		sender:  sender,
		app:     application,
		store:   memStore,
		user:    user,
		doc:     doc,
	}
}

func messagePayload(phone, text string) []byte {
	return []byte(fmt.Sprintf(`{
		"entry": [{"changes": [{"value": {
			"contacts": [{"wa_id": %q, "profile": {"name": "Stu"}}],
			"messages": [{"from": %q, "type": "text", "text": {"body": %q}}]
		}}]}]
	}`, phone, phone, text))
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testAppSecret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func (f *webhookFixture) post(t *testing.T, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", sign(body))
	rec := httptest.NewRecorder()
	f.webhook.ServeHTTP(rec, req)
	return rec
}

func (f *webhookFixture) send(t *testing.T, text string) {
	t.Helper()
	rec := f.post(t, messagePayload(testPhone, text))
	if rec.Code != http.StatusOK {
		t.Fatalf("webhook status = %d", rec.Code)
	}
}

func (f *webhookFixture) link(t *testing.T) {
	t.Helper()
	f.send(t, "link")
	reply := f.sender.last(t)
	var token string
	for _, word := range strings.Fields(reply) {
		if len(word) == 32 {
			token = word
		}
	}
	if token == "" {
		t.Fatalf("no token in reply %q", reply)
	}
	if _, err := f.app.CompleteWhatsAppLink(f.user.ID, token); err != nil {
		t.Fatalf("CompleteWhatsAppLink: %v", err)
	}
}

func TestVerifyEchoesChallenge(t *testing.T) {
	f := newWebhookFixture(t)
	req := httptest.NewRequest(http.MethodGet,
		"/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token="+testVerifyToken+"&hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	f.webhook.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.String() != "12345" {
		t.Fatalf("body = %q, want challenge echo", rec.Body.String())
	}
}

func TestVerifyRejectsWrongToken(t *testing.T) {
	f := newWebhookFixture(t)
	req := httptest.NewRequest(http.MethodGet,
		"/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	f.webhook.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestReceiveRejectsBadSignature(t *testing.T) {
	f := newWebhookFixture(t)
	body := messagePayload(testPhone, "link")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")
	rec := httptest.NewRecorder()
	f.webhook.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestLinkStatusUnlinkFlow(t *testing.T) {
	f := newWebhookFixture(t)
	f.link(t)

	f.send(t, "status")
	if reply := f.sender.last(t); !strings.Contains(reply, "s@example.com") {
		t.Fatalf("status reply = %q", reply)
	}

	f.send(t, "unlink")
	if reply := f.sender.last(t); !strings.Contains(reply, "unlinked") {
		t.Fatalf("unlink reply = %q", reply)
	}

	f.send(t, "status")
	if reply := f.sender.last(t); !strings.Contains(reply, "No linked account") {
		t.Fatalf("status after unlink = %q", reply)
	}
}

func TestDocsSelectChat(t *testing.T) {
	f := newWebhookFixture(t)
	f.link(t)

	f.send(t, "docs")
	if reply := f.sender.last(t); !strings.Contains(reply, "1. water-cycle.pdf") {
		t.Fatalf("docs reply = %q", reply)
	}

	f.send(t, "doc 1")
	if reply := f.sender.last(t); !strings.Contains(reply, "water-cycle.pdf") {
		t.Fatalf("select reply = %q", reply)
	}

	f.send(t, "What is evaporation?")
	if reply := f.sender.last(t); reply != "the answer" {
		t.Fatalf("chat reply = %q", reply)
	}

	session, ok, err := f.store.FindSession(f.doc.ID, f.user.ID)
	if err != nil || !ok {
		t.Fatalf("FindSession: ok=%v err=%v", ok, err)
	}
	messages, err := f.store.ListSessionMessages(session.ID, 10)
	if err != nil {
		t.Fatalf("ListSessionMessages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("message count = %d, want 2", len(messages))
	}
}

func TestQuestionWhenAIUnavailable(t *testing.T) {
	f := newWebhookFixtureWithResponder(t, ai.NewResponder(nil, ""))
	f.link(t)
	f.send(t, "docs")
	f.send(t, "doc 1")
	f.send(t, "What is evaporation?")
	reply := f.sender.last(t)
	if !strings.Contains(reply, "not available") {
		t.Fatalf("reply = %q, want fixed unavailable message", reply)
	}
	if strings.Contains(strings.ToLower(reply), "try again") {
		t.Fatalf("reply = %q suggests retrying a permanent failure", reply)
	}
}

func TestUnlinkedQuestionGetsHelp(t *testing.T) {
	f := newWebhookFixture(t)
	f.send(t, "what is this?")
	if reply := f.sender.last(t); !strings.Contains(reply, "link - Link your StudyPal account") {
		t.Fatalf("reply = %q", reply)
	}
}

func TestNonTextMessagesIgnored(t *testing.T) {
	f := newWebhookFixture(t)
	body := []byte(fmt.Sprintf(`{
		"entry": [{"changes": [{"value": {
			"messages": [{"from": %q, "type": "image"}]
		}}]}]
	}`, testPhone))
	rec := f.post(t, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	f.sender.mu.Lock()
	defer f.sender.mu.Unlock()
	if len(f.sender.messages) != 0 {
		t.Fatalf("expected no replies, got %v", f.sender.messages)
	}
}
