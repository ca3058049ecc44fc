package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/safar/smartgrocer/internal/apperr"
	"github.com/safar/smartgrocer/internal/kv"
	"github.com/safar/smartgrocer/internal/models"
	"github.com/safar/smartgrocer/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokensRoundTrip(t *testing.T) {
	tokens := NewTokens("secret", time.Hour)

	signed, err := tokens.Issue(&models.User{ID: 7, Role: models.RoleManager})
	require.NoError(t, err)

	claims, err := tokens.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.UserID)
	assert.Equal(t, models.RoleManager, claims.Role)
}

func TestTokensRejectExpiredAndForeign(t *testing.T) {
	tokens := NewTokens("secret", time.Hour)
	signed, err := tokens.Issue(&models.User{ID: 7, Role: models.RoleCustomer})
	require.NoError(t, err)

	tokens.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = tokens.Parse(signed)
	assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))

	other := NewTokens("other-secret", time.Hour)
	_, err = other.Parse(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokensRejectNoneAlgorithm(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: 1, Role: models.RoleManager})
	unsigned, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewTokens("secret", time.Hour).Parse(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

type captureSender struct {
	sent []notify.Message
}

func (c *captureSender) Send(ctx context.Context, msg notify.Message) error {
	c.sent = append(c.sent, msg)
	return nil
}

func TestOTPSendAndVerify(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	sender := &captureSender{}
	otp := NewOTP(store, sender, 5*time.Minute)
	otp.generate = func() (string, error) { return "424242", nil }

	require.NoError(t, otp.Send(ctx, "+911234567890"))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "+911234567890", sender.sent[0].Token)
	assert.Contains(t, sender.sent[0].Body, "424242")

	stored, err := store.Get(ctx, otpKey("+911234567890"))
	require.NoError(t, err)
	assert.NotEqual(t, "424242", stored)

	assert.ErrorIs(t, otp.Verify(ctx, "+911234567890", "000000"), ErrInvalidOTP)
	require.NoError(t, otp.Verify(ctx, "+911234567890", "424242"))
	assert.ErrorIs(t, otp.Verify(ctx, "+911234567890", "424242"), ErrInvalidOTP, "code is single use")
}

func TestOTPValidation(t *testing.T) {
	otp := NewOTP(kv.NewMemory(), &captureSender{}, time.Minute)

	assert.Equal(t, apperr.KindValidation, apperr.KindOf(otp.Send(context.Background(), "")))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(otp.Verify(context.Background(), "+91", "")))
}

func TestRandomCodeIsSixDigits(t *testing.T) {
	code, err := randomCode()
	require.NoError(t, err)
	assert.Regexp(t, `^\d{6}$`, code)
}
