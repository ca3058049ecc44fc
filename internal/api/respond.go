package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/safar/smartgrocer/internal/apperr"
	log "github.com/sirupsen/logrus"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

type messageBody struct {
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.WithError(err).Error("Error encoding JSON response")
	}
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperr.KindAuthorization:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindDependency:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError maps err to its status code. Internal failures are logged with their stack and,
// outside production, return it to the caller.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	body := errorBody{Error: kind.String(), Message: err.Error()}

	logger := requestLogger(r).WithError(err).WithField("status", status)
	if status >= http.StatusInternalServerError {
		logger.WithField("stack", fmt.Sprintf("%+v", err)).Error("Request failed")
	} else {
		logger.Info("Request rejected")
	}

	if kind == apperr.KindInternal {
		if s.production {
			body.Message = "internal server error"
		} else {
			body.Stack = fmt.Sprintf("%+v", err)
		}
	}

	respondJSON(w, status, body)
}

func decodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Validation("invalid request body: %v", err)
	}
	return nil
}

// decodeOptionalJSON is decodeJSON for endpoints whose body may be empty, including chunked
// requests of unknown length.
func decodeOptionalJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return apperr.Validation("invalid request body: %v", err)
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid id %q", mux.Vars(r)["id"])
	}
	return id, nil
}

func queryInt(r *http.Request, name string, fallback int) int {
	value, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return fallback
	}
	return value
}
