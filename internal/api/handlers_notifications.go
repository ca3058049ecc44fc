package api

import (
	"net/http"
	"strings"

	"github.com/safar/smartgrocer/internal/apperr"
	"github.com/safar/smartgrocer/internal/models"
	"github.com/safar/smartgrocer/internal/store"
)

func (s *Server) myNotifications(w http.ResponseWriter, r *http.Request) {
	notifications, err := store.ListNotifications(r.Context(), s.db, claimsFrom(r.Context()).UserID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, notifications)
}

func (s *Server) sendReminders(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CustomMessage string `json:"customMessage"`
	}
	if err := decodeOptionalJSON(r, &body); err != nil {
		s.respondError(w, r, err)
		return
	}

	summary, err := s.reminders.Send(r.Context(), body.CustomMessage)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	requestLogger(r).WithField("sent", summary.RemindersSent).Info("Reminders sent")
	respondJSON(w, http.StatusOK, summary)
}

func (s *Server) updateToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.respondError(w, r, err)
		return
	}
	if strings.TrimSpace(body.Token) == "" {
		s.respondError(w, r, apperr.Validation("Token required"))
		return
	}

	if err := store.UpdateNotificationToken(r.Context(), s.db, claimsFrom(r.Context()).UserID, body.Token); err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, messageBody{Message: "Token updated"})
}

func (s *Server) managerDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := store.ManagerDashboard(r.Context(), s.db, s.now())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) customerDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := store.CustomerDashboard(r.Context(), s.db, claimsFrom(r.Context()).UserID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	role := models.Role(strings.ToUpper(r.URL.Query().Get("role")))
	if role != "" && !role.Valid() {
		s.respondError(w, r, apperr.Validation("unknown role %q", role))
		return
	}

	page, err := store.ListUsers(r.Context(), s.db, role,
		queryInt(r, "page", 1), queryInt(r, "pageSize", store.DefaultPageSize))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}
