package api

import (
	"net/http"

	"github.com/safar/smartgrocer/internal/apperr"
	"github.com/safar/smartgrocer/internal/models"
	"github.com/safar/smartgrocer/internal/store"
)

type sessionResponse struct {
	*models.User
	Token string `json:"token"`
}

func (s *Server) sendOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone string `json:"phone"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	if err := s.otp.Send(r.Context(), req.Phone); err != nil {
		s.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, messageBody{Message: "OTP sent successfully"})
}

// verifyOTP logs a user in, registering them first when the phone is new.
func (s *Server) verifyOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone string      `json:"phone"`
		OTP   string      `json:"otp"`
		Name  string      `json:"name"`
		Role  models.Role `json:"role"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if req.Phone == "" || req.OTP == "" {
		s.respondError(w, r, apperr.Validation("phone and OTP required"))
		return
	}

	ctx := r.Context()

	user, err := store.GetUserByPhone(ctx, s.db, req.Phone)
	register := apperr.Is(err, apperr.KindNotFound)
	if err != nil && !register {
		s.respondError(w, r, err)
		return
	}

	if register {
		if req.Name == "" {
			s.respondError(w, r, apperr.NotFound("user not found, provide a name to register"))
			return
		}
		if req.Role == "" {
			req.Role = models.RoleCustomer
		}
		if req.Role == models.RoleManager && !s.auth.IsManagerPhone(req.Phone) {
			s.respondError(w, r, apperr.Forbidden("manager registration is not allowed for this phone"))
			return
		}
	}

	if err := s.otp.Verify(ctx, req.Phone, req.OTP); err != nil {
		s.respondError(w, r, err)
		return
	}

	if register {
		user, err = store.CreateUser(ctx, s.db, store.CreateUserRequest{
			Name:  req.Name,
			Phone: req.Phone,
			Role:  req.Role,
		})
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		requestLogger(r).WithField("user_id", user.ID).Info("Registered user")
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, sessionResponse{User: user, Token: token})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	user, err := store.GetUser(r.Context(), s.db, claimsFrom(r.Context()).UserID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}
