package app

import (
	"errors"
	"testing"
	"time"

	"studypal/pkg/domain"
)

func TestTelegramLinkLifecycle(t *testing.T) {
	f := newFixture(nil)
	user := f.addUser(domain.RoleStudent)

	if _, err := f.app.RegisterTelegramContact(1001, "student1", "Stu", "Dent"); err != nil {
		t.Fatalf("RegisterTelegramContact: %v", err)
	}

	token, expiresAt, err := f.app.BeginTelegramLink(1001)
	if err != nil {
		t.Fatalf("BeginTelegramLink: %v", err)
	}
	if len(token) != 32 {
		t.Fatalf("token length = %d, want 32", len(token))
	}
	if until := time.Until(expiresAt); until < 55*time.Minute || until > 65*time.Minute {
		t.Fatalf("expiry %v not about an hour out", until)
	}

	linked, err := f.app.CompleteTelegramLink(user.ID, token)
	if err != nil {
		t.Fatalf("CompleteTelegramLink: %v", err)
	}
	if !linked.IsLinked || linked.UserID != user.ID {
		t.Fatalf("linked = %+v", linked)
	}
	if linked.LinkToken != "" {
		t.Fatal("token should be cleared after redemption")
	}

	status, ok, err := f.app.TelegramLinkStatus(user.ID)
	if err != nil || !ok {
		t.Fatalf("TelegramLinkStatus: ok=%v err=%v", ok, err)
	}
	if status.TelegramID != 1001 {
		t.Fatalf("telegramId = %d", status.TelegramID)
	}

	if err := f.app.UnlinkTelegram(user.ID); err != nil {
		t.Fatalf("UnlinkTelegram: %v", err)
	}
	if _, ok, _ := f.app.TelegramLinkStatus(user.ID); ok {
		t.Fatal("link should be gone")
	}
	if err := f.app.UnlinkTelegram(user.ID); !errors.Is(err, ErrNotLinked) {
		t.Fatalf("second unlink err = %v, want ErrNotLinked", err)
	}
}

func TestTelegramLinkTokenSingleUse(t *testing.T) {
	f := newFixture(nil)
	alice := f.addUser(domain.RoleStudent)
	bob := f.addUser(domain.RoleStudent)

	if _, err := f.app.RegisterTelegramContact(1002, "", "", ""); err != nil {
		t.Fatalf("RegisterTelegramContact: %v", err)
	}
	token, _, err := f.app.BeginTelegramLink(1002)
	if err != nil {
		t.Fatalf("BeginTelegramLink: %v", err)
	}
	if _, err := f.app.CompleteTelegramLink(alice.ID, token); err != nil {
		t.Fatalf("CompleteTelegramLink: %v", err)
	}
	if _, err := f.app.CompleteTelegramLink(bob.ID, token); !errors.Is(err, ErrLinkTokenInvalid) {
		t.Fatalf("reuse err = %v, want ErrLinkTokenInvalid", err)
	}
}

func TestTelegramLinkTokenExpiry(t *testing.T) {
	f := newFixture(nil)
	user := f.addUser(domain.RoleStudent)

	tgUser, err := f.app.RegisterTelegramContact(1003, "", "", "")
	if err != nil {
		t.Fatalf("RegisterTelegramContact: %v", err)
	}
	// Write an already-expired token directly.
	if err := f.store.SetTelegramLinkToken(tgUser.ID, "expiredexpiredexpiredexpired1234", time.Now().UTC().Add(-time.Minute)); err != nil {
		t.Fatalf("SetTelegramLinkToken: %v", err)
	}
	if _, err := f.app.CompleteTelegramLink(user.ID, "expiredexpiredexpiredexpired1234"); !errors.Is(err, ErrLinkTokenInvalid) {
		t.Fatalf("err = %v, want ErrLinkTokenInvalid", err)
	}
}

func TestTelegramLinkRejectsSecondLinkForUser(t *testing.T) {
	f := newFixture(nil)
	user := f.addUser(domain.RoleStudent)

	if _, err := f.app.RegisterTelegramContact(1004, "", "", ""); err != nil {
		t.Fatalf("RegisterTelegramContact: %v", err)
	}
	token, _, err := f.app.BeginTelegramLink(1004)
	if err != nil {
		t.Fatalf("BeginTelegramLink: %v", err)
	}
	if _, err := f.app.CompleteTelegramLink(user.ID, token); err != nil {
		t.Fatalf("CompleteTelegramLink: %v", err)
	}

	if _, err := f.app.RegisterTelegramContact(1005, "", "", ""); err != nil {
		t.Fatalf("RegisterTelegramContact: %v", err)
	}
	token2, _, err := f.app.BeginTelegramLink(1005)
	if err != nil {
		t.Fatalf("BeginTelegramLink: %v", err)
	}
	if _, err := f.app.CompleteTelegramLink(user.ID, token2); !errors.Is(err, ErrAlreadyLinked) {
		t.Fatalf("err = %v, want ErrAlreadyLinked", err)
	}
}

func TestBeginTelegramLinkAlreadyLinked(t *testing.T) {
	f := newFixture(nil)
	user := f.addUser(domain.RoleStudent)

	if _, err := f.app.RegisterTelegramContact(1006, "", "", ""); err != nil {
		t.Fatalf("RegisterTelegramContact: %v", err)
	}
	token, _, err := f.app.BeginTelegramLink(1006)
	if err != nil {
		t.Fatalf("BeginTelegramLink: %v", err)
	}
	if _, err := f.app.CompleteTelegramLink(user.ID, token); err != nil {
		t.Fatalf("CompleteTelegramLink: %v", err)
	}
	if _, _, err := f.app.BeginTelegramLink(1006); !errors.Is(err, ErrAlreadyLinked) {
		t.Fatalf("err = %v, want ErrAlreadyLinked", err)
	}
}

func TestWhatsAppLinkLifecycle(t *testing.T) {
	f := newFixture(nil)
	user := f.addUser(domain.RoleStudent)

	if _, err := f.app.RegisterWhatsAppContact("15551230001", "Stu"); err != nil {
		t.Fatalf("RegisterWhatsAppContact: %v", err)
	}
	token, _, err := f.app.BeginWhatsAppLink("15551230001")
	if err != nil {
		t.Fatalf("BeginWhatsAppLink: %v", err)
	}
	linked, err := f.app.CompleteWhatsAppLink(user.ID, token)
	if err != nil {
		t.Fatalf("CompleteWhatsAppLink: %v", err)
	}
	if !linked.IsLinked || linked.UserID != user.ID {
		t.Fatalf("linked = %+v", linked)
	}

	status, ok, err := f.app.WhatsAppLinkStatus(user.ID)
	if err != nil || !ok {
		t.Fatalf("WhatsAppLinkStatus: ok=%v err=%v", ok, err)
	}
	if status.Phone != "15551230001" {
		t.Fatalf("phone = %q", status.Phone)
	}

	if err := f.app.UnlinkWhatsApp(user.ID); err != nil {
		t.Fatalf("UnlinkWhatsApp: %v", err)
	}
	if _, ok, _ := f.app.WhatsAppLinkStatus(user.ID); ok {
		t.Fatal("link should be gone")
	}
}

func TestCompleteWhatsAppLinkUnknownToken(t *testing.T) {
	f := newFixture(nil)
	user := f.addUser(domain.RoleStudent)
	if _, err := f.app.CompleteWhatsAppLink(user.ID, "nope"); !errors.Is(err, ErrLinkTokenInvalid) {
		t.Fatalf("err = %v, want ErrLinkTokenInvalid", err)
	}
}
