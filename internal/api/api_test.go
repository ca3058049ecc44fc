package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/safar/smartgrocer/internal/apperr"
	"github.com/safar/smartgrocer/internal/auth"
	"github.com/safar/smartgrocer/internal/config"
	"github.com/safar/smartgrocer/internal/kv"
	"github.com/safar/smartgrocer/internal/models"
	"github.com/safar/smartgrocer/internal/notify"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, env string) *Server {
	t.Helper()

	cfg := &config.Config{
		Env: env,
		Auth: config.AuthConfig{
			JWTSecret: "test-secret",
			TokenTTL:  time.Hour,
			OTPTTL:    time.Minute,
			RateLimit: 1,
			RateBurst: 2,
		},
		Server:       config.ServerConfig{ClientURL: "*"},
		Notification: config.NotificationConfig{OverdueThresholdDays: 7},
	}

	return NewServer(cfg, nil, kv.NewMemory(), notify.NewLogSender())
}

func bearer(t *testing.T, s *Server, id int64, role models.Role) string {
	t.Helper()
	token, err := s.tokens.Issue(&models.User{ID: id, Role: role})
	require.NoError(t, err)
	return "Bearer " + token
}

func do(s *Server, method, path, authorization, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestProtectedRouteRequiresToken(t *testing.T) {
	s := newTestServer(t, "test")

	rec := do(s, http.MethodGet, "/auth/me", "", "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthenticated", decodeError(t, rec).Error)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestProtectedRouteRejectsForeignToken(t *testing.T) {
	s := newTestServer(t, "test")
	foreign, err := auth.NewTokens("another-secret", time.Hour).Issue(&models.User{ID: 1, Role: models.RoleManager})
	require.NoError(t, err)

	rec := do(s, http.MethodGet, "/dashboard/manager", "Bearer "+foreign, "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestManagerRouteRejectsCustomer(t *testing.T) {
	s := newTestServer(t, "test")

	for _, path := range []string{"/dashboard/manager", "/transactions/dues", "/users", "/products/low-stock"} {
		rec := do(s, http.MethodGet, path, bearer(t, s, 5, models.RoleCustomer), "")
		assert.Equal(t, http.StatusForbidden, rec.Code, path)
	}
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t, "test")

	rec := do(s, http.MethodGet, "/nowhere", "", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Error)
}

func TestPlaceOrderValidation(t *testing.T) {
	s := newTestServer(t, "test")
	customer := bearer(t, s, 5, models.RoleCustomer)

	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "malformed", body: `{"orderItems":`, want: http.StatusBadRequest},
		{name: "empty items", body: `{"orderItems":[]}`, want: http.StatusBadRequest},
		{name: "zero quantity", body: `{"orderItems":[{"productId":1,"quantity":0}]}`, want: http.StatusBadRequest},
		{name: "negative payment", body: `{"orderItems":[{"id":1,"quantity":1}],"amountPaid":-5}`, want: http.StatusBadRequest},
		{name: "billing someone else", body: `{"customerId":9,"orderItems":[{"product":1,"quantity":1}]}`, want: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(s, http.MethodPost, "/orders", customer, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestPayDuesForAnotherUserNeedsManager(t *testing.T) {
	s := newTestServer(t, "test")

	rec := do(s, http.MethodPost, "/transactions/pay", bearer(t, s, 5, models.RoleCustomer), `{"userId":6,"amount":10}`)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListOrdersRejectsBadCursor(t *testing.T) {
	s := newTestServer(t, "test")

	rec := do(s, http.MethodGet, "/orders?cursor=not-a-cursor", bearer(t, s, 1, models.RoleManager), "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateTokenRequiresValue(t *testing.T) {
	s := newTestServer(t, "test")

	rec := do(s, http.MethodPut, "/notifications/token", bearer(t, s, 5, models.RoleCustomer), `{"token":"  "}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Token required", decodeError(t, rec).Message)
}

func TestVerifyOTPRequiresPhoneAndCode(t *testing.T) {
	s := newTestServer(t, "test")

	rec := do(s, http.MethodPost, "/auth/verify-otp", "", `{"phone":"+911234567890"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTargetUser(t *testing.T) {
	customer := &auth.Claims{UserID: 5, Role: models.RoleCustomer}
	manager := &auth.Claims{UserID: 1, Role: models.RoleManager}

	id, err := targetUser(customer, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(5), id)

	id, err = targetUser(customer, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), id)

	_, err = targetUser(customer, 6)
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))

	id, err = targetUser(manager, 6)
	require.NoError(t, err)
	assert.Equal(t, int64(6), id)

	assert.True(t, canView(customer, 5))
	assert.False(t, canView(customer, 6))
	assert.True(t, canView(manager, 6))
}

func TestOrderItemProductAliases(t *testing.T) {
	assert.Equal(t, int64(3), orderItemBody{ProductID: 3, Product: 4, ID: 5}.productID())
	assert.Equal(t, int64(4), orderItemBody{Product: 4, ID: 5}.productID())
	assert.Equal(t, int64(5), orderItemBody{ID: 5}.productID())
}

func TestRespondErrorStack(t *testing.T) {
	internal := errors.New("connection reset")

	dev := newTestServer(t, "development")
	rec := httptest.NewRecorder()
	dev.respondError(rec, httptest.NewRequest(http.MethodGet, "/", nil), internal)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "connection reset", body.Message)
	assert.NotEmpty(t, body.Stack)

	prod := newTestServer(t, config.EnvProduction)
	rec = httptest.NewRecorder()
	prod.respondError(rec, httptest.NewRequest(http.MethodGet, "/", nil), internal)

	body = decodeError(t, rec)
	assert.Equal(t, "internal server error", body.Message)
	assert.Empty(t, body.Stack)

	rec = httptest.NewRecorder()
	prod.respondError(rec, httptest.NewRequest(http.MethodGet, "/", nil), apperr.Conflict("stale version"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "stale version", decodeError(t, rec).Message)
}

func TestIdempotentReplaysCompletedResponse(t *testing.T) {
	s := newTestServer(t, "test")

	calls := 0
	handler := s.idempotent(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		respondJSON(w, http.StatusCreated, map[string]int{"call": calls})
	}))

	send := func(key, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
		req.Header.Set(idempotencyHeader, key)
		req = req.WithContext(context.WithValue(req.Context(), claimsKey, &auth.Claims{UserID: 5}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	first := send("k1", `{"a":1}`)
	second := send("k1", `{"a":1}`)

	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, 1, calls)

	mismatch := send("k1", `{"a":2}`)
	assert.Equal(t, http.StatusConflict, mismatch.Code)

	send("k2", `{"a":1}`)
	assert.Equal(t, 2, calls)
}

func TestIdempotentReleasesKeyAfterServerError(t *testing.T) {
	s := newTestServer(t, "test")

	calls := 0
	handler := s.idempotent(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			respondJSON(w, http.StatusInternalServerError, errorBody{Error: "internal_error"})
			return
		}
		respondJSON(w, http.StatusCreated, messageBody{Message: "ok"})
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/transactions/pay", strings.NewReader(`{}`))
		req.Header.Set(idempotencyHeader, "retry-me")
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	assert.Equal(t, 2, calls)
}

func TestIdempotentRejectsInFlightDuplicate(t *testing.T) {
	s := newTestServer(t, "test")
	require.NoError(t, s.kv.Set(context.Background(), "idem:0:/orders:busy",
		`{"bodyHash":"44136fa355b3678a1146ad16f7e8649e94fb4fc21fe77e8310c060f61caaff8a"}`, time.Minute))

	handler := s.idempotent(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{}`))
	req.Header.Set(idempotencyHeader, "busy")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRateLimitPerClient(t *testing.T) {
	s := newTestServer(t, "test")
	handler := s.rateLimit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	hit := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/auth/send-otp", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, hit("10.0.0.1:1000"))
	assert.Equal(t, http.StatusNoContent, hit("10.0.0.1:1001"))
	assert.Equal(t, http.StatusTooManyRequests, hit("10.0.0.1:1002"))
	assert.Equal(t, http.StatusNoContent, hit("10.0.0.2:1000"))
}

func TestRateLimiterForgetsIdleClients(t *testing.T) {
	now := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	rl := newIPRateLimiter(0.001, 1)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow("10.0.0.1"))
	assert.False(t, rl.allow("10.0.0.1"))

	now = now.Add(time.Hour)
	assert.True(t, rl.allow("10.0.0.2"))
	assert.NotContains(t, rl.visitors, "10.0.0.1")
}

func TestDecodeOptionalJSON(t *testing.T) {
	chunked := func(body string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/notifications/reminders", strings.NewReader(body))
		req.ContentLength = -1
		req.TransferEncoding = []string{"chunked"}
		return req
	}

	var body struct {
		CustomMessage string `json:"customMessage"`
	}

	require.NoError(t, decodeOptionalJSON(chunked(""), &body))
	assert.Empty(t, body.CustomMessage)

	require.NoError(t, decodeOptionalJSON(chunked(`{"customMessage":"Closed Sunday"}`), &body))
	assert.Equal(t, "Closed Sunday", body.CustomMessage)

	err := decodeOptionalJSON(chunked(`{"customMessage":`), &body)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

type brokenWriter struct {
	header http.Header
	status int
}

func (b *brokenWriter) Header() http.Header {
	return b.header
}

func (b *brokenWriter) WriteHeader(status int) {
	b.status = status
}

func (b *brokenWriter) Write([]byte) (int, error) {
	return 0, errors.New("connection closed")
}

func TestIdempotentReplayLogsWriteFailure(t *testing.T) {
	s := newTestServer(t, "test")
	hook := test.NewGlobal()
	defer hook.Reset()

	done, err := json.Marshal(idempotencyRecord{
		BodyHash: "44136fa355b3678a1146ad16f7e8649e94fb4fc21fe77e8310c060f61caaff8a",
		Done:     true,
		Status:   http.StatusCreated,
		Response: []byte(`{"id":1}`),
	})
	require.NoError(t, err)
	require.NoError(t, s.kv.Set(context.Background(), "idem:0:/orders:replay", string(done), time.Minute))

	handler := s.idempotent(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{}`))
	req.Header.Set(idempotencyHeader, "replay")
	w := &brokenWriter{header: http.Header{}}
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.status)
	assert.Equal(t, "true", w.header.Get("Idempotent-Replayed"))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "Error writing replayed response", hook.LastEntry().Message)
}
