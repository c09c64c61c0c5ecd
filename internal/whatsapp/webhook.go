package whatsapp

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"studypal/internal/app"
	"studypal/internal/ratelimit"
	"studypal/pkg/ai"
	"studypal/pkg/domain"
)

// webhookPayload mirrors the Cloud API webhook envelope down to the
// fields we read.
type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Contacts []struct {
					WaID    string `json:"wa_id"`
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
				} `json:"contacts"`
				Messages []inboundMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type inboundMessage struct {
	From string `json:"from"`
	Type string `json:"type"`
	Text struct {
		Body string `json:"body"`
	} `json:"text"`
}

// contactState mirrors the Telegram bot's per-chat memory, keyed by
// phone number.
type contactState struct {
	docIDs    []string
	activeDoc string
}

// Webhook handles Cloud API verification and inbound messages.
type Webhook struct {
	app         *app.App
	sender      Sender
	verifyToken string
	appSecret   string
	limiter     *ratelimit.FixedWindowLimiter

	mu       sync.Mutex
	contacts map[string]*contactState
}

// NewWebhook wires the webhook handler. appSecret may be empty to skip
// signature checks; limiter may be nil.
func NewWebhook(application *app.App, sender Sender, verifyToken, appSecret string, limiter *ratelimit.FixedWindowLimiter) *Webhook {
	return &Webhook{
		app:         application,
		sender:      sender,
		verifyToken: verifyToken,
		appSecret:   appSecret,
		limiter:     limiter,
		contacts:    map[string]*contactState{},
	}
}

// ServeHTTP implements the webhook endpoint: GET for subscription
// verification, POST for events.
func (w *Webhook) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		w.verify(rw, r)
	case http.MethodPost:
		w.receive(rw, r)
	default:
		rw.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (w *Webhook) verify(rw http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") == "subscribe" && q.Get("hub.verify_token") == w.verifyToken {
		rw.Header().Set("Content-Type", "text/plain")
		_, _ = rw.Write([]byte(q.Get("hub.challenge")))
		return
	}
	http.Error(rw, "verification failed", http.StatusForbidden)
}

func (w *Webhook) receive(rw http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(rw, "read body", http.StatusBadRequest)
		return
	}
	if w.appSecret != "" && !w.validSignature(body, r.Header.Get("X-Hub-Signature-256")) {
		http.Error(rw, "invalid signature", http.StatusForbidden)
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(rw, "invalid payload", http.StatusBadRequest)
		return
	}

	// Always 200 after signature passes; the Cloud API retries
	// non-2xx deliveries aggressively.
	rw.WriteHeader(http.StatusOK)

	ctx := r.Context()
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			names := map[string]string{}
			for _, contact := range change.Value.Contacts {
				names[contact.WaID] = contact.Profile.Name
			}
			for _, msg := range change.Value.Messages {
				if msg.Type != "text" {
					continue
				}
				w.handleMessage(ctx, msg.From, names[msg.From], msg.Text.Body)
			}
		}
	}
}

func (w *Webhook) validSignature(body []byte, header string) bool {
	header = strings.TrimSpace(header)
	if !strings.HasPrefix(header, "sha256=") {
		return false
	}
	want, err := hex.DecodeString(strings.TrimPrefix(header, "sha256="))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(w.appSecret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}

func (w *Webhook) handleMessage(ctx context.Context, phone, profileName, text string) {
	text = strings.TrimSpace(text)
	if phone == "" || text == "" {
		return
	}
	if _, err := w.app.RegisterWhatsAppContact(phone, profileName); err != nil {
		slog.Error("register whatsapp contact", "error", err)
		return
	}

	lower := strings.ToLower(text)
	switch {
	case lower == "link":
		w.handleLink(ctx, phone)
	case lower == "status":
		w.handleStatus(ctx, phone)
	case lower == "unlink":
		w.handleUnlink(ctx, phone)
	case lower == "docs":
		w.handleDocs(ctx, phone)
	case strings.HasPrefix(lower, "doc "):
		w.handleSelectDoc(ctx, phone, text)
	case lower == "help":
		w.sendHelp(ctx, phone)
	default:
		w.handleQuestion(ctx, phone, text)
	}
}

func (w *Webhook) sendHelp(ctx context.Context, phone string) {
	w.reply(ctx, phone,
		"StudyPal commands:\n"+
			"link - Link your StudyPal account\n"+
			"status - Check linking status\n"+
			"unlink - Unlink your account\n"+
			"docs - List available documents\n"+
			"doc <n> - Pick a document to chat about\n\n"+
			"Once linked with a document selected, just type your questions.")
}

func (w *Webhook) handleLink(ctx context.Context, phone string) {
	token, expiresAt, err := w.app.BeginWhatsAppLink(phone)
	if errors.Is(err, app.ErrAlreadyLinked) {
		w.reply(ctx, phone, "Your account is already linked. Send 'status' for details or 'unlink' to disconnect.")
		return
	}
	if err != nil {
		slog.Error("begin whatsapp link", "error", err)
		w.reply(ctx, phone, "Sorry, something went wrong. Please try again.")
		return
	}
	w.reply(ctx, phone, fmt.Sprintf(
		"To link your StudyPal account, open the settings page and paste this token:\n\n%s\n\n"+
			"The token expires at %s.", token, expiresAt.Format("15:04 MST")))
}

func (w *Webhook) handleStatus(ctx context.Context, phone string) {
	user, ok := w.linkedUser(phone)
	if !ok {
		w.reply(ctx, phone, "No linked account. Send 'link' to connect your StudyPal account.")
		return
	}
	w.reply(ctx, phone, fmt.Sprintf("Linked to %s (%s).", user.FullName, user.Email))
}

func (w *Webhook) handleUnlink(ctx context.Context, phone string) {
	err := w.app.UnlinkWhatsAppByPhone(phone)
	if errors.Is(err, app.ErrNotLinked) {
		w.reply(ctx, phone, "No linked account found. Send 'link' to connect your StudyPal account.")
		return
	}
	if err != nil {
		slog.Error("unlink whatsapp", "error", err)
		w.reply(ctx, phone, "Sorry, something went wrong. Please try again.")
		return
	}
	w.reply(ctx, phone, "Account unlinked. Send 'link' to connect again anytime.")
}

func (w *Webhook) handleDocs(ctx context.Context, phone string) {
	user, ok := w.linkedUser(phone)
	if !ok {
		w.reply(ctx, phone, "Please link your account first: send 'link'.")
		return
	}
	docs, _, err := w.app.ListDocuments(user, domain.StatusProcessed, 0, 20)
	if err != nil {
		slog.Error("list documents for whatsapp", "error", err)
		w.reply(ctx, phone, "Sorry, something went wrong. Please try again.")
		return
	}
	if len(docs) == 0 {
		w.reply(ctx, phone, "No documents are ready to chat with yet.")
		return
	}
	state := w.stateFor(phone)
	var sb strings.Builder
	sb.WriteString("Available documents:\n")
	ids := make([]string, 0, len(docs))
	for i, doc := range docs {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, doc.OriginalFilename)
		ids = append(ids, doc.ID)
	}
	sb.WriteString("\nPick one with 'doc <n>', then just type your questions.")
	w.mu.Lock()
	state.docIDs = ids
	w.mu.Unlock()
	w.reply(ctx, phone, sb.String())
}

func (w *Webhook) handleSelectDoc(ctx context.Context, phone, text string) {
	user, ok := w.linkedUser(phone)
	if !ok {
		w.reply(ctx, phone, "Please link your account first: send 'link'.")
		return
	}
	fields := strings.Fields(text)
	if len(fields) < 2 {
		w.reply(ctx, phone, "Usage: doc <n> - pick a document from 'docs'.")
		return
	}
	n, err := strconv.Atoi(fields[1])
	state := w.stateFor(phone)
	w.mu.Lock()
	ids := state.docIDs
	w.mu.Unlock()
	if err != nil || n < 1 || n > len(ids) {
		w.reply(ctx, phone, "Pick a number from the 'docs' list.")
		return
	}
	doc, err := w.app.GetDocument(user, ids[n-1])
	if err != nil {
		w.reply(ctx, phone, "That document is no longer available. Send 'docs' again.")
		return
	}
	w.mu.Lock()
	state.activeDoc = doc.ID
	w.mu.Unlock()
	w.reply(ctx, phone, fmt.Sprintf("Now chatting about %s. Ask me anything!", doc.OriginalFilename))
}

func (w *Webhook) handleQuestion(ctx context.Context, phone, text string) {
	user, ok := w.linkedUser(phone)
	if !ok {
		w.sendHelp(ctx, phone)
		return
	}
	if w.limiter != nil && !w.limiter.Allow("wa:"+phone) {
		w.reply(ctx, phone, "You're sending messages too quickly. Please wait a moment.")
		return
	}
	state := w.stateFor(phone)
	w.mu.Lock()
	docID := state.activeDoc
	w.mu.Unlock()
	if docID == "" {
		w.reply(ctx, phone, "Pick a document first: send 'docs' then 'doc <n>'.")
		return
	}

	turn, err := w.app.ContinueConversation(ctx, user, docID, text)
	switch {
	case errors.Is(err, app.ErrDocumentNotFound):
		w.reply(ctx, phone, "That document is gone. Send 'docs' to pick another.")
	case errors.Is(err, app.ErrDocumentNotReady):
		w.reply(ctx, phone, "That document isn't ready yet. Try again shortly.")
	case errors.Is(err, ai.ErrNotConfigured):
		// Permanent; retrying will not help.
		w.reply(ctx, phone, "AI features are not available on this server.")
	case err != nil:
		slog.Error("whatsapp chat turn", "document_id", docID, "error", err)
		w.reply(ctx, phone, "I'm having trouble answering right now. Please try again.")
	default:
		w.reply(ctx, phone, turn.AssistantMessage.Content)
	}
}

func (w *Webhook) linkedUser(phone string) (domain.User, bool) {
	waUser, ok, err := w.app.Store().GetWhatsAppUserByPhone(phone)
	if err != nil || !ok || !waUser.IsLinked {
		return domain.User{}, false
	}
	user, ok, err := w.app.Store().GetUserByID(waUser.UserID)
	if err != nil || !ok || !user.IsActive {
		return domain.User{}, false
	}
	return user, true
}

func (w *Webhook) stateFor(phone string) *contactState {
	w.mu.Lock()
	defer w.mu.Unlock()
	state, ok := w.contacts[phone]
	if !ok {
		state = &contactState{}
		w.contacts[phone] = state
	}
	return state
}

func (w *Webhook) reply(ctx context.Context, phone, text string) {
	if err := w.sender.SendText(ctx, phone, text); err != nil {
		slog.Error("whatsapp send message", "error", err)
	}
}
