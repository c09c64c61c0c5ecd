package server

import (
	"encoding/json"
	"io"
	"net/http"

	"studypal/pkg/domain"
)

type linkRequest struct {
	Token string `json:"token"`
}

func (s *Server) handleTelegramLink(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req linkRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	linked, err := s.app.CompleteTelegramLink(user.ID, req.Token)
	if err != nil {
		writeAppError(w, err, false)
		return
	}
	writeJSON(w, http.StatusOK, linked)
}

func (s *Server) handleTelegramStatus(w http.ResponseWriter, _ *http.Request, user domain.User) {
	linked, ok, err := s.app.TelegramLinkStatus(user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]bool{"linked": false})
		return
	}
	writeJSON(w, http.StatusOK, linked)
}

func (s *Server) handleTelegramUnlink(w http.ResponseWriter, _ *http.Request, user domain.User) {
	if err := s.app.UnlinkTelegram(user.ID); err != nil {
		writeAppError(w, err, false)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unlinked"})
}

func (s *Server) handleWhatsAppLink(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req linkRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	linked, err := s.app.CompleteWhatsAppLink(user.ID, req.Token)
	if err != nil {
		writeAppError(w, err, false)
		return
	}
	writeJSON(w, http.StatusOK, linked)
}

func (s *Server) handleWhatsAppStatus(w http.ResponseWriter, _ *http.Request, user domain.User) {
	linked, ok, err := s.app.WhatsAppLinkStatus(user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]bool{"linked": false})
		return
	}
	writeJSON(w, http.StatusOK, linked)
}

func (s *Server) handleWhatsAppUnlink(w http.ResponseWriter, _ *http.Request, user domain.User) {
	if err := s.app.UnlinkWhatsApp(user.ID); err != nil {
		writeAppError(w, err, false)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unlinked"})
}
