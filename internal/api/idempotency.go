package api

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/safar/smartgrocer/internal/apperr"
	"github.com/safar/smartgrocer/internal/kv"
)

const (
	idempotencyHeader = "Idempotency-Key"
	idempotencyTTL    = 24 * time.Hour
)

type idempotencyRecord struct {
	BodyHash string `json:"bodyHash"`
	Done     bool   `json:"done"`
	Status   int    `json:"status,omitempty"`
	Response []byte `json:"response,omitempty"`
}

type captureWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (c *captureWriter) WriteHeader(status int) {
	c.status = status
	c.ResponseWriter.WriteHeader(status)
}

func (c *captureWriter) Write(b []byte) (int, error) {
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

// idempotent replays the first completed response for a repeated Idempotency-Key. Keys are scoped
// to the caller. Requests without the header pass straight through.
func (s *Server) idempotent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(idempotencyHeader)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			s.respondError(w, r, apperr.Validation("read request body: %v", err))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		sum := sha256.Sum256(body)
		hash := hex.EncodeToString(sum[:])

		var owner int64
		if claims := claimsFrom(r.Context()); claims != nil {
			owner = claims.UserID
		}
		storeKey := fmt.Sprintf("idem:%d:%s:%s", owner, r.URL.Path, key)

		pending, _ := json.Marshal(idempotencyRecord{BodyHash: hash})
		acquired, err := s.kv.SetNX(r.Context(), storeKey, string(pending), idempotencyTTL)
		if err != nil {
			s.respondError(w, r, errors.Wrap(err, "reserve idempotency key"))
			return
		}

		if !acquired {
			s.replay(w, r, storeKey, hash)
			return
		}

		rec := &captureWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if rec.status >= http.StatusInternalServerError {
			if err := s.kv.Del(r.Context(), storeKey); err != nil {
				requestLogger(r).WithError(err).Warn("Failed to release idempotency key")
			}
			return
		}

		done, _ := json.Marshal(idempotencyRecord{
			BodyHash: hash,
			Done:     true,
			Status:   rec.status,
			Response: rec.body.Bytes(),
		})
		if err := s.kv.Set(r.Context(), storeKey, string(done), idempotencyTTL); err != nil {
			requestLogger(r).WithError(err).Warn("Failed to store idempotent response")
		}
	})
}

func (s *Server) replay(w http.ResponseWriter, r *http.Request, storeKey, hash string) {
	raw, err := s.kv.Get(r.Context(), storeKey)
	if errors.Is(err, kv.ErrNotFound) {
		s.respondError(w, r, apperr.Conflict("idempotency key expired during request, retry"))
		return
	}
	if err != nil {
		s.respondError(w, r, errors.Wrap(err, "load idempotency key"))
		return
	}

	var record idempotencyRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		s.respondError(w, r, errors.Wrap(err, "decode idempotency record"))
		return
	}

	switch {
	case record.BodyHash != hash:
		s.respondError(w, r, apperr.Conflict("idempotency key reused with a different request body"))
	case !record.Done:
		s.respondError(w, r, apperr.Conflict("a request with this idempotency key is still in progress"))
	default:
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Idempotent-Replayed", "true")
		w.WriteHeader(record.Status)
		if _, err := w.Write(record.Response); err != nil {
			requestLogger(r).WithError(err).Error("Error writing replayed response")
		}
	}
}
