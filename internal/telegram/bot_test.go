package telegram

import (
	"context"
	"errors"
	"io"
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
	chatIDs  []int64
}

func (s *recordingSender) SendMessage(_ context.Context, chatID int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, text)
	s.chatIDs = append(s.chatIDs, chatID)
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

type botFixture struct {
	bot    *Bot
	sender *recordingSender
	app    *app.App
	store  *store.MemoryStore
	user   domain.User
	doc    domain.Document
}

func newBotFixture(t *testing.T) *botFixture {
	t.Helper()
	return newBotFixtureWithResponder(t, ai.NewResponder(&scriptedGenerator{reply: "the answer"}, "test-model"))
}

func newBotFixtureWithResponder(t *testing.T, responder *ai.Responder) *botFixture {
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
	return &botFixture{
		bot:    NewBot(application, sender, nil),
		sender: sender,
		app:    application,
		store:  memStore,
		user:   user,
		doc:    doc,
	}
}

func (f *botFixture) send(text string) {
	f.bot.HandleUpdate(context.Background(), Update{
		UpdateID: 1,
		Message: &Message{
			From: &Peer{ID: 42, Username: "stu", FirstName: "Stu"},
			Chat: Chat{ID: 42},
			Text: text,
		},
	})
}

func (f *botFixture) link(t *testing.T) {
	t.Helper()
	f.send("/link")
	reply := f.sender.last(t)
	// The token is the only 32-char hex word in the reply.
	var token string
	for _, word := range strings.Fields(reply) {
		if len(word) == 32 {
			token = word
		}
	}
	if token == "" {
		t.Fatalf("no token in reply %q", reply)
	}
	if _, err := f.app.CompleteTelegramLink(f.user.ID, token); err != nil {
		t.Fatalf("CompleteTelegramLink: %v", err)
	}
}

func TestStartCommandListsCommands(t *testing.T) {
	f := newBotFixture(t)
	f.send("/start")
	reply := f.sender.last(t)
	if !strings.Contains(reply, "/link") || !strings.Contains(reply, "/docs") {
		t.Fatalf("start reply missing commands: %q", reply)
	}
}

func TestLinkFlowViaBot(t *testing.T) {
	f := newBotFixture(t)
	f.link(t)

	f.send("/status")
	if reply := f.sender.last(t); !strings.Contains(reply, "s@example.com") {
		t.Fatalf("status reply = %q", reply)
	}
}

func TestLinkWhenAlreadyLinked(t *testing.T) {
	f := newBotFixture(t)
	f.link(t)
	f.send("/link")
	if reply := f.sender.last(t); !strings.Contains(reply, "already linked") {
		t.Fatalf("reply = %q", reply)
	}
}

func TestUnlinkViaBot(t *testing.T) {
	f := newBotFixture(t)
	f.link(t)
	f.send("/unlink")
	if reply := f.sender.last(t); !strings.Contains(reply, "unlinked") {
		t.Fatalf("reply = %q", reply)
	}
	f.send("/status")
	if reply := f.sender.last(t); !strings.Contains(reply, "No linked account") {
		t.Fatalf("status after unlink = %q", reply)
	}
}

func TestDocsAndSelectAndChat(t *testing.T) {
	f := newBotFixture(t)
	f.link(t)

	f.send("/docs")
	if reply := f.sender.last(t); !strings.Contains(reply, "1. water-cycle.pdf") {
		t.Fatalf("docs reply = %q", reply)
	}

	f.send("/doc 1")
	if reply := f.sender.last(t); !strings.Contains(reply, "water-cycle.pdf") {
		t.Fatalf("select reply = %q", reply)
	}

	f.send("What is evaporation?")
	if reply := f.sender.last(t); reply != "the answer" {
		t.Fatalf("chat reply = %q", reply)
	}

	// The exchange landed in the shared per-document session.
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

func TestQuestionWithoutLinkPrompts(t *testing.T) {
	f := newBotFixture(t)
	f.send("hello?")
	if reply := f.sender.last(t); !strings.Contains(reply, "/link") {
		t.Fatalf("reply = %q", reply)
	}
}

func TestQuestionWithoutActiveDocPrompts(t *testing.T) {
	f := newBotFixture(t)
	f.link(t)
	f.send("hello?")
	if reply := f.sender.last(t); !strings.Contains(reply, "/docs") {
		t.Fatalf("reply = %q", reply)
	}
}

func TestSelectDocOutOfRange(t *testing.T) {
	f := newBotFixture(t)
	f.link(t)
	f.send("/docs")
	f.send("/doc 5")
	if reply := f.sender.last(t); !strings.Contains(reply, "number from the /docs list") {
		t.Fatalf("reply = %q", reply)
	}
}

func TestQuestionWhenAIUnavailable(t *testing.T) {
	f := newBotFixtureWithResponder(t, ai.NewResponder(nil, ""))
	f.link(t)
	f.send("/docs")
	f.send("/doc 1")
	f.send("What is evaporation?")
	reply := f.sender.last(t)
	if !strings.Contains(reply, "not available") {
		t.Fatalf("reply = %q, want fixed unavailable message", reply)
	}
	if strings.Contains(strings.ToLower(reply), "try again") {
		t.Fatalf("reply = %q suggests retrying a permanent failure", reply)
	}
}

func TestUnknownCommand(t *testing.T) {
	f := newBotFixture(t)
	f.send("/frobnicate")
	if reply := f.sender.last(t); !strings.Contains(reply, "Unknown command") {
		t.Fatalf("reply = %q", reply)
	}
}
