package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"studypal/pkg/domain"
)

func TestCreateSessionIfAbsentIsIdempotent(t *testing.T) {
	m := NewMemoryStore()
	first, err := m.CreateSessionIfAbsent("doc-1", "user-1", "Chat with notes.pdf")
	if err != nil {
		t.Fatalf("CreateSessionIfAbsent: %v", err)
	}
	second, err := m.CreateSessionIfAbsent("doc-1", "user-1", "different name")
	if err != nil {
		t.Fatalf("CreateSessionIfAbsent: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("session IDs differ: %q vs %q", first.ID, second.ID)
	}
	if second.SessionName != "Chat with notes.pdf" {
		t.Fatalf("session name replaced: %q", second.SessionName)
	}
}

func TestCreateSessionIfAbsentConcurrent(t *testing.T) {
	m := NewMemoryStore()
	const workers = 16
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := m.CreateSessionIfAbsent("doc-1", "user-1", "s")
			if err != nil {
				t.Errorf("CreateSessionIfAbsent: %v", err)
				return
			}
			ids[i] = s.ID
		}(i)
	}
	wg.Wait()
	for i := 1; i < workers; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("concurrent creates produced distinct sessions: %q vs %q", ids[i], ids[0])
		}
	}
}

func TestSessionsIsolatedPerUser(t *testing.T) {
	m := NewMemoryStore()
	a, _ := m.CreateSessionIfAbsent("doc-1", "user-a", "s")
	b, _ := m.CreateSessionIfAbsent("doc-1", "user-b", "s")
	if a.ID == b.ID {
		t.Fatal("different users share a session")
	}
}

func TestListRecentMessagesNewestFirst(t *testing.T) {
	m := NewMemoryStore()
	session, _ := m.CreateSessionIfAbsent("doc-1", "user-1", "s")
	for i := 0; i < 5; i++ {
		err := m.AppendMessage(session.ID, domain.ChatMessage{
			ID:        fmt.Sprintf("msg-%d", i),
			SessionID: session.ID,
			Role:      domain.MessageRoleUser,
			Content:   fmt.Sprintf("m%d", i),
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	recent, err := m.ListRecentMessages(session.ID, 3)
	if err != nil {
		t.Fatalf("ListRecentMessages: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("len = %d", len(recent))
	}
	if recent[0].Content != "m4" || recent[2].Content != "m2" {
		t.Fatalf("order wrong: %q ... %q", recent[0].Content, recent[2].Content)
	}

	// Limit beyond length returns everything.
	all, _ := m.ListRecentMessages(session.ID, 100)
	if len(all) != 5 {
		t.Fatalf("len = %d", len(all))
	}
}

func TestListRecentMessagesStableForEqualTimestamps(t *testing.T) {
	m := NewMemoryStore()
	session, _ := m.CreateSessionIfAbsent("doc-1", "user-1", "s")
	// Same created_at for every message; append order must still win,
	// because the newest entry is treated as the in-flight message.
	at := time.Now().UTC()
	for i := 0; i < 4; i++ {
		err := m.AppendMessage(session.ID, domain.ChatMessage{
			ID:        fmt.Sprintf("msg-%d", i),
			SessionID: session.ID,
			Role:      domain.MessageRoleUser,
			Content:   fmt.Sprintf("m%d", i),
			CreatedAt: at,
		})
		if err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}
	recent, err := m.ListRecentMessages(session.ID, 4)
	if err != nil {
		t.Fatalf("ListRecentMessages: %v", err)
	}
	for i, msg := range recent {
		want := fmt.Sprintf("m%d", 3-i)
		if msg.Content != want {
			t.Fatalf("recent[%d] = %q, want %q", i, msg.Content, want)
		}
	}
}

func TestAppendMessageRejectsUnknownRole(t *testing.T) {
	m := NewMemoryStore()
	session, _ := m.CreateSessionIfAbsent("doc-1", "user-1", "s")
	err := m.AppendMessage(session.ID, domain.ChatMessage{ID: "x", Role: "system", Content: "c"})
	if err == nil {
		t.Fatal("expected role rejection")
	}
}

func TestDeleteSessionsForDocument(t *testing.T) {
	m := NewMemoryStore()
	session, _ := m.CreateSessionIfAbsent("doc-1", "user-1", "s")
	_ = m.AppendMessage(session.ID, domain.ChatMessage{ID: "m1", Role: domain.MessageRoleUser, Content: "hi"})
	keep, _ := m.CreateSessionIfAbsent("doc-2", "user-1", "s")

	if err := m.DeleteSessionsForDocument("doc-1"); err != nil {
		t.Fatalf("DeleteSessionsForDocument: %v", err)
	}
	if _, ok, _ := m.FindSession("doc-1", "user-1"); ok {
		t.Fatal("session survived delete")
	}
	if msgs, _ := m.ListSessionMessages(session.ID, 0); len(msgs) != 0 {
		t.Fatalf("messages survived delete: %d", len(msgs))
	}
	if _, ok, _ := m.FindSession("doc-2", "user-1"); !ok || keep.ID == "" {
		t.Fatal("unrelated session removed")
	}
}

func TestLinkTokenExpiryHonored(t *testing.T) {
	m := NewMemoryStore()
	tg := domain.TelegramUser{ID: "tg-1", TelegramID: 42, CreatedAt: time.Now().UTC()}
	if err := m.SaveTelegramUser(tg); err != nil {
		t.Fatalf("SaveTelegramUser: %v", err)
	}
	expires := time.Now().UTC().Add(time.Hour)
	if err := m.SetTelegramLinkToken("tg-1", "tok-abc", expires); err != nil {
		t.Fatalf("SetTelegramLinkToken: %v", err)
	}

	if _, ok, _ := m.GetTelegramUserByLinkToken("tok-abc", time.Now().UTC()); !ok {
		t.Fatal("valid token not found")
	}
	if _, ok, _ := m.GetTelegramUserByLinkToken("tok-abc", expires.Add(time.Minute)); ok {
		t.Fatal("expired token still redeemable")
	}
	if _, ok, _ := m.GetTelegramUserByLinkToken("other", time.Now().UTC()); ok {
		t.Fatal("unknown token matched")
	}
}

func TestLinkClearsToken(t *testing.T) {
	m := NewMemoryStore()
	_ = m.SaveTelegramUser(domain.TelegramUser{ID: "tg-1", TelegramID: 42})
	_ = m.SetTelegramLinkToken("tg-1", "tok-abc", time.Now().UTC().Add(time.Hour))
	if err := m.LinkTelegramUser("tg-1", "user-1", time.Now().UTC()); err != nil {
		t.Fatalf("LinkTelegramUser: %v", err)
	}

	linked, ok, _ := m.GetLinkedTelegramUser("user-1")
	if !ok || !linked.IsLinked {
		t.Fatalf("linked user missing: %+v", linked)
	}
	if _, ok, _ := m.GetTelegramUserByLinkToken("tok-abc", time.Now().UTC()); ok {
		t.Fatal("token redeemable after link")
	}

	if err := m.UnlinkTelegramUser("tg-1"); err != nil {
		t.Fatalf("UnlinkTelegramUser: %v", err)
	}
	if _, ok, _ := m.GetLinkedTelegramUser("user-1"); ok {
		t.Fatal("user still linked after unlink")
	}
}
