package app

import (
	"fmt"
	"strings"
	"time"

	"studypal/internal/util"
	"studypal/pkg/domain"
)

// linkTokenTTL bounds how long a minted link token stays redeemable.
const linkTokenTTL = time.Hour

// RegisterTelegramContact records or refreshes the Telegram-side profile
// for a chat peer. It is called on every inbound update.
func (a *App) RegisterTelegramContact(telegramID int64, username, firstName, lastName string) (domain.TelegramUser, error) {
	tgUser, ok, err := a.store.GetTelegramUserByTelegramID(telegramID)
	if err != nil {
		return domain.TelegramUser{}, fmt.Errorf("load telegram user: %w", err)
	}
	now := time.Now().UTC()
	if !ok {
		tgUser = domain.TelegramUser{
			ID:         util.NewID(),
			TelegramID: telegramID,
			CreatedAt:  now,
		}
	}
	tgUser.Username = username
	tgUser.FirstName = firstName
	tgUser.LastName = lastName
	tgUser.UpdatedAt = now
	if err := a.store.SaveTelegramUser(tgUser); err != nil {
		return domain.TelegramUser{}, fmt.Errorf("save telegram user: %w", err)
	}
	return tgUser, nil
}

// BeginTelegramLink mints a short-lived token the Telegram user enters
// on the web side to claim the link.
func (a *App) BeginTelegramLink(telegramID int64) (string, time.Time, error) {
	tgUser, ok, err := a.store.GetTelegramUserByTelegramID(telegramID)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("load telegram user: %w", err)
	}
	if !ok {
		return "", time.Time{}, ErrNotLinked
	}
	if tgUser.IsLinked {
		return "", time.Time{}, ErrAlreadyLinked
	}
	token := util.NewLinkToken()
	expiresAt := time.Now().UTC().Add(linkTokenTTL)
	if err := a.store.SetTelegramLinkToken(tgUser.ID, token, expiresAt); err != nil {
		return "", time.Time{}, fmt.Errorf("save link token: %w", err)
	}
	return token, expiresAt, nil
}

// CompleteTelegramLink redeems a link token for the authenticated user.
// Expired or unknown tokens fail with ErrLinkTokenInvalid; a user may
// hold at most one Telegram link.
func (a *App) CompleteTelegramLink(userID, token string) (domain.TelegramUser, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.TelegramUser{}, ErrLinkTokenInvalid
	}
	if _, ok, err := a.store.GetLinkedTelegramUser(userID); err != nil {
		return domain.TelegramUser{}, fmt.Errorf("check existing link: %w", err)
	} else if ok {
		return domain.TelegramUser{}, ErrAlreadyLinked
	}
	tgUser, ok, err := a.store.GetTelegramUserByLinkToken(token, time.Now().UTC())
	if err != nil {
		return domain.TelegramUser{}, fmt.Errorf("load link token: %w", err)
	}
	if !ok {
		return domain.TelegramUser{}, ErrLinkTokenInvalid
	}
	if tgUser.IsLinked {
		return domain.TelegramUser{}, ErrAlreadyLinked
	}
	if err := a.store.LinkTelegramUser(tgUser.ID, userID, time.Now().UTC()); err != nil {
		return domain.TelegramUser{}, fmt.Errorf("link telegram user: %w", err)
	}
	linked, _, err := a.store.GetTelegramUserByTelegramID(tgUser.TelegramID)
	if err != nil {
		return domain.TelegramUser{}, fmt.Errorf("reload telegram user: %w", err)
	}
	return linked, nil
}

// TelegramLinkStatus reports the user's Telegram link, if any.
func (a *App) TelegramLinkStatus(userID string) (domain.TelegramUser, bool, error) {
	return a.store.GetLinkedTelegramUser(userID)
}

// UnlinkTelegram severs the user's Telegram link.
func (a *App) UnlinkTelegram(userID string) error {
	tgUser, ok, err := a.store.GetLinkedTelegramUser(userID)
	if err != nil {
		return fmt.Errorf("load linked telegram user: %w", err)
	}
	if !ok {
		return ErrNotLinked
	}
	if err := a.store.UnlinkTelegramUser(tgUser.ID); err != nil {
		return fmt.Errorf("unlink telegram user: %w", err)
	}
	return nil
}

// UnlinkTelegramByTelegramID severs the link from the bot side.
func (a *App) UnlinkTelegramByTelegramID(telegramID int64) error {
	tgUser, ok, err := a.store.GetTelegramUserByTelegramID(telegramID)
	if err != nil {
		return fmt.Errorf("load telegram user: %w", err)
	}
	if !ok || !tgUser.IsLinked {
		return ErrNotLinked
	}
	if err := a.store.UnlinkTelegramUser(tgUser.ID); err != nil {
		return fmt.Errorf("unlink telegram user: %w", err)
	}
	return nil
}

// RegisterWhatsAppContact records or refreshes the WhatsApp-side profile
// for a phone number.
func (a *App) RegisterWhatsAppContact(phone, profileName string) (domain.WhatsAppUser, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return domain.WhatsAppUser{}, fmt.Errorf("phone required")
	}
	waUser, ok, err := a.store.GetWhatsAppUserByPhone(phone)
	if err != nil {
		return domain.WhatsAppUser{}, fmt.Errorf("load whatsapp user: %w", err)
	}
	now := time.Now().UTC()
	if !ok {
		waUser = domain.WhatsAppUser{
			ID:        util.NewID(),
			Phone:     phone,
			CreatedAt: now,
		}
	}
	if profileName != "" {
		waUser.ProfileName = profileName
	}
	waUser.UpdatedAt = now
	if err := a.store.SaveWhatsAppUser(waUser); err != nil {
		return domain.WhatsAppUser{}, fmt.Errorf("save whatsapp user: %w", err)
	}
	return waUser, nil
}

// BeginWhatsAppLink mints a link token for a WhatsApp contact.
func (a *App) BeginWhatsAppLink(phone string) (string, time.Time, error) {
	waUser, ok, err := a.store.GetWhatsAppUserByPhone(phone)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("load whatsapp user: %w", err)
	}
	if !ok {
		return "", time.Time{}, ErrNotLinked
	}
	if waUser.IsLinked {
		return "", time.Time{}, ErrAlreadyLinked
	}
	token := util.NewLinkToken()
	expiresAt := time.Now().UTC().Add(linkTokenTTL)
	if err := a.store.SetWhatsAppLinkToken(waUser.ID, token, expiresAt); err != nil {
		return "", time.Time{}, fmt.Errorf("save link token: %w", err)
	}
	return token, expiresAt, nil
}

// CompleteWhatsAppLink redeems a WhatsApp link token for the
// authenticated user.
func (a *App) CompleteWhatsAppLink(userID, token string) (domain.WhatsAppUser, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.WhatsAppUser{}, ErrLinkTokenInvalid
	}
	if _, ok, err := a.store.GetLinkedWhatsAppUser(userID); err != nil {
		return domain.WhatsAppUser{}, fmt.Errorf("check existing link: %w", err)
	} else if ok {
		return domain.WhatsAppUser{}, ErrAlreadyLinked
	}
	waUser, ok, err := a.store.GetWhatsAppUserByLinkToken(token, time.Now().UTC())
	if err != nil {
		return domain.WhatsAppUser{}, fmt.Errorf("load link token: %w", err)
	}
	if !ok {
		return domain.WhatsAppUser{}, ErrLinkTokenInvalid
	}
	if waUser.IsLinked {
		return domain.WhatsAppUser{}, ErrAlreadyLinked
	}
	if err := a.store.LinkWhatsAppUser(waUser.ID, userID, time.Now().UTC()); err != nil {
		return domain.WhatsAppUser{}, fmt.Errorf("link whatsapp user: %w", err)
	}
	linked, _, err := a.store.GetWhatsAppUserByPhone(waUser.Phone)
	if err != nil {
		return domain.WhatsAppUser{}, fmt.Errorf("reload whatsapp user: %w", err)
	}
	return linked, nil
}

// WhatsAppLinkStatus reports the user's WhatsApp link, if any.
func (a *App) WhatsAppLinkStatus(userID string) (domain.WhatsAppUser, bool, error) {
	return a.store.GetLinkedWhatsAppUser(userID)
}

// UnlinkWhatsApp severs the user's WhatsApp link.
func (a *App) UnlinkWhatsApp(userID string) error {
	waUser, ok, err := a.store.GetLinkedWhatsAppUser(userID)
	if err != nil {
		return fmt.Errorf("load linked whatsapp user: %w", err)
	}
	if !ok {
		return ErrNotLinked
	}
	if err := a.store.UnlinkWhatsAppUser(waUser.ID); err != nil {
		return fmt.Errorf("unlink whatsapp user: %w", err)
	}
	return nil
}

// UnlinkWhatsAppByPhone severs the link from the webhook side.
func (a *App) UnlinkWhatsAppByPhone(phone string) error {
	waUser, ok, err := a.store.GetWhatsAppUserByPhone(phone)
	if err != nil {
		return fmt.Errorf("load whatsapp user: %w", err)
	}
	if !ok || !waUser.IsLinked {
		return ErrNotLinked
	}
	if err := a.store.UnlinkWhatsAppUser(waUser.ID); err != nil {
		return fmt.Errorf("unlink whatsapp user: %w", err)
	}
	return nil
}
