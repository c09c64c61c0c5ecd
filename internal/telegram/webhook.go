package telegram

import (
	"encoding/json"
	"io"
	"net/http"
)

// Webhook receives Bot API updates pushed by Telegram. When a secret
// token is configured, the X-Telegram-Bot-Api-Secret-Token header must
// match; Telegram echoes back the value given to setWebhook.
type Webhook struct {
	bot         *Bot
	secretToken string
}

func NewWebhook(bot *Bot, secretToken string) *Webhook {
	return &Webhook{bot: bot, secretToken: secretToken}
}

func (w *Webhook) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if w.secretToken != "" && r.Header.Get("X-Telegram-Bot-Api-Secret-Token") != w.secretToken {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return
	}
	var update Update
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&update); err != nil {
		http.Error(rw, "invalid payload", http.StatusBadRequest)
		return
	}
	// Telegram retries non-2xx deliveries, so the update is always
	// acknowledged before being handled.
	rw.WriteHeader(http.StatusOK)
	w.bot.HandleUpdate(r.Context(), update)
}
