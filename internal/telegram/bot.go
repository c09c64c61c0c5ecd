package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"studypal/internal/app"
	"studypal/internal/ratelimit"
	"studypal/pkg/ai"
	"studypal/pkg/domain"
)

// chatState remembers the last document listing and the active document
// per Telegram chat, so "/doc 2" and plain questions resolve.
type chatState struct {
	docIDs    []string
	activeDoc string
}

// Bot dispatches inbound Telegram updates to the application.
type Bot struct {
	app     *app.App
	sender  Sender
	limiter *ratelimit.FixedWindowLimiter

	mu    sync.Mutex
	chats map[int64]*chatState
}

// NewBot wires the bot. limiter may be nil to disable rate limiting.
func NewBot(application *app.App, sender Sender, limiter *ratelimit.FixedWindowLimiter) *Bot {
	return &Bot{
		app:     application,
		sender:  sender,
		limiter: limiter,
		chats:   map[int64]*chatState{},
	}
}

// HandleUpdate processes one update. Errors are reported to the chat
// and logged, never returned, so a bad update cannot stall the poller.
func (b *Bot) HandleUpdate(ctx context.Context, update Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	if _, err := b.app.RegisterTelegramContact(msg.From.ID, msg.From.Username, msg.From.FirstName, msg.From.LastName); err != nil {
		slog.Error("register telegram contact", "telegram_id", msg.From.ID, "error", err)
		return
	}

	switch {
	case strings.HasPrefix(text, "/start"):
		b.handleStart(ctx, msg)
	case strings.HasPrefix(text, "/link"):
		b.handleLink(ctx, msg)
	case strings.HasPrefix(text, "/status"):
		b.handleStatus(ctx, msg)
	case strings.HasPrefix(text, "/unlink"):
		b.handleUnlink(ctx, msg)
	case strings.HasPrefix(text, "/docs"):
		b.handleDocs(ctx, msg)
	case strings.HasPrefix(text, "/doc"):
		b.handleSelectDoc(ctx, msg, text)
	case strings.HasPrefix(text, "/"):
		b.reply(ctx, msg.Chat.ID, "Unknown command. Available: /start /link /status /unlink /docs /doc <n>")
	default:
		b.handleQuestion(ctx, msg, text)
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *Message) {
	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "there"
	}
	b.reply(ctx, msg.Chat.ID, fmt.Sprintf(
		"Hi %s! I'm the StudyPal bot. Chat with your course documents right here.\n\n"+
			"Commands:\n"+
			"/link - Link your StudyPal account\n"+
			"/status - Check linking status\n"+
			"/unlink - Unlink your account\n"+
			"/docs - List available documents\n"+
			"/doc <n> - Pick a document to chat about\n\n"+
			"Start by linking your account with /link.", name))
}

func (b *Bot) handleLink(ctx context.Context, msg *Message) {
	token, expiresAt, err := b.app.BeginTelegramLink(msg.From.ID)
	if errors.Is(err, app.ErrAlreadyLinked) {
		b.reply(ctx, msg.Chat.ID, "Your account is already linked. Use /status to view details or /unlink to disconnect.")
		return
	}
	if err != nil {
		slog.Error("begin telegram link", "telegram_id", msg.From.ID, "error", err)
		b.reply(ctx, msg.Chat.ID, "Sorry, something went wrong. Please try again.")
		return
	}
	b.reply(ctx, msg.Chat.ID, fmt.Sprintf(
		"To link your StudyPal account, open the settings page and paste this token:\n\n%s\n\n"+
			"The token expires at %s.", token, expiresAt.Format("15:04 MST")))
}

func (b *Bot) handleStatus(ctx context.Context, msg *Message) {
	user, ok := b.linkedUser(msg.From.ID)
	if !ok {
		b.reply(ctx, msg.Chat.ID, "No linked account. Use /link to connect your StudyPal account.")
		return
	}
	b.reply(ctx, msg.Chat.ID, fmt.Sprintf("Linked to %s (%s).", user.FullName, user.Email))
}

func (b *Bot) handleUnlink(ctx context.Context, msg *Message) {
	err := b.app.UnlinkTelegramByTelegramID(msg.From.ID)
	if errors.Is(err, app.ErrNotLinked) {
		b.reply(ctx, msg.Chat.ID, "No linked account found. Use /link to connect your StudyPal account.")
		return
	}
	if err != nil {
		slog.Error("unlink telegram", "telegram_id", msg.From.ID, "error", err)
		b.reply(ctx, msg.Chat.ID, "Sorry, something went wrong. Please try again.")
		return
	}
	b.reply(ctx, msg.Chat.ID, "Account unlinked. Use /link to connect again anytime.")
}

func (b *Bot) handleDocs(ctx context.Context, msg *Message) {
	user, ok := b.linkedUser(msg.From.ID)
	if !ok {
		b.reply(ctx, msg.Chat.ID, "Please link your account first with /link.")
		return
	}
	docs, _, err := b.app.ListDocuments(user, domain.StatusProcessed, 0, 20)
	if err != nil {
		slog.Error("list documents for telegram", "error", err)
		b.reply(ctx, msg.Chat.ID, "Sorry, something went wrong. Please try again.")
		return
	}
	if len(docs) == 0 {
		b.reply(ctx, msg.Chat.ID, "No documents are ready to chat with yet.")
		return
	}

	state := b.chatStateFor(msg.Chat.ID)
	var sb strings.Builder
	sb.WriteString("Available documents:\n")
	ids := make([]string, 0, len(docs))
	for i, doc := range docs {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, doc.OriginalFilename)
		ids = append(ids, doc.ID)
	}
	sb.WriteString("\nPick one with /doc <n>, then just type your questions.")
	b.mu.Lock()
	state.docIDs = ids
	b.mu.Unlock()
	b.reply(ctx, msg.Chat.ID, sb.String())
}

func (b *Bot) handleSelectDoc(ctx context.Context, msg *Message, text string) {
	user, ok := b.linkedUser(msg.From.ID)
	if !ok {
		b.reply(ctx, msg.Chat.ID, "Please link your account first with /link.")
		return
	}
	fields := strings.Fields(text)
	if len(fields) < 2 {
		b.reply(ctx, msg.Chat.ID, "Usage: /doc <n> - pick a document from /docs.")
		return
	}
	n, err := strconv.Atoi(fields[1])
	state := b.chatStateFor(msg.Chat.ID)
	b.mu.Lock()
	ids := state.docIDs
	b.mu.Unlock()
	if err != nil || n < 1 || n > len(ids) {
		b.reply(ctx, msg.Chat.ID, "Pick a number from the /docs list.")
		return
	}
	docID := ids[n-1]
	doc, err := b.app.GetDocument(user, docID)
	if err != nil {
		b.reply(ctx, msg.Chat.ID, "That document is no longer available. Run /docs again.")
		return
	}
	b.mu.Lock()
	state.activeDoc = doc.ID
	b.mu.Unlock()
	b.reply(ctx, msg.Chat.ID, fmt.Sprintf("Now chatting about %s. Ask me anything!", doc.OriginalFilename))
}

func (b *Bot) handleQuestion(ctx context.Context, msg *Message, text string) {
	user, ok := b.linkedUser(msg.From.ID)
	if !ok {
		b.reply(ctx, msg.Chat.ID, "Please link your account first with /link.")
		return
	}
	if b.limiter != nil && !b.limiter.Allow("tg:"+strconv.FormatInt(msg.From.ID, 10)) {
		b.reply(ctx, msg.Chat.ID, "You're sending messages too quickly. Please wait a moment.")
		return
	}
	state := b.chatStateFor(msg.Chat.ID)
	b.mu.Lock()
	docID := state.activeDoc
	b.mu.Unlock()
	if docID == "" {
		b.reply(ctx, msg.Chat.ID, "Pick a document first: /docs then /doc <n>.")
		return
	}

	turn, err := b.app.ContinueConversation(ctx, user, docID, text)
	switch {
	case errors.Is(err, app.ErrDocumentNotFound):
		b.reply(ctx, msg.Chat.ID, "That document is gone. Run /docs to pick another.")
	case errors.Is(err, app.ErrDocumentNotReady):
		b.reply(ctx, msg.Chat.ID, "That document isn't ready yet. Try again shortly.")
	case errors.Is(err, ai.ErrNotConfigured):
		// Permanent; retrying will not help.
		b.reply(ctx, msg.Chat.ID, "AI features are not available on this server.")
	case err != nil:
		slog.Error("telegram chat turn", "document_id", docID, "error", err)
		b.reply(ctx, msg.Chat.ID, "I'm having trouble answering right now. Please try again.")
	default:
		b.reply(ctx, msg.Chat.ID, turn.AssistantMessage.Content)
	}
}

func (b *Bot) linkedUser(telegramID int64) (domain.User, bool) {
	tgUser, ok, err := b.app.Store().GetTelegramUserByTelegramID(telegramID)
	if err != nil || !ok || !tgUser.IsLinked {
		return domain.User{}, false
	}
	user, ok, err := b.app.Store().GetUserByID(tgUser.UserID)
	if err != nil || !ok || !user.IsActive {
		return domain.User{}, false
	}
	return user, true
}

func (b *Bot) chatStateFor(chatID int64) *chatState {
	b.mu.Lock()
	defer b.mu.Unlock()
	state, ok := b.chats[chatID]
	if !ok {
		state = &chatState{}
		b.chats[chatID] = state
	}
	return state
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if err := b.sender.SendMessage(ctx, chatID, text); err != nil {
		slog.Error("telegram send message", "chat_id", chatID, "error", err)
	}
}
