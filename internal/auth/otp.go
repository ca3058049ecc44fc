package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/pkg/errors"
	"github.com/safar/smartgrocer/internal/apperr"
	"github.com/safar/smartgrocer/internal/kv"
	"github.com/safar/smartgrocer/internal/notify"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidOTP = apperr.Validation("invalid or expired OTP")

const otpDigits = 6

// OTP issues one-time login codes. Only a bcrypt hash of each code is stored, and a code is
// consumed by its first successful verification.
type OTP struct {
	store    kv.Store
	sender   notify.Sender
	ttl      time.Duration
	generate func() (string, error)
}

func NewOTP(store kv.Store, sender notify.Sender, ttl time.Duration) *OTP {
	return &OTP{
		store:    store,
		sender:   sender,
		ttl:      ttl,
		generate: randomCode,
	}
}

func otpKey(phone string) string {
	return "otp:" + phone
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", errors.Wrap(err, "generate otp")
	}
	return fmt.Sprintf("%0*d", otpDigits, n.Int64()), nil
}

func (o *OTP) Send(ctx context.Context, phone string) error {
	if phone == "" {
		return apperr.Validation("phone number required")
	}

	code, err := o.generate()
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return errors.Wrap(err, "hash otp")
	}

	if err := o.store.Set(ctx, otpKey(phone), string(hash), o.ttl); err != nil {
		return err
	}

	err = o.sender.Send(ctx, notify.Message{
		Token: phone,
		Title: "SmartGrocer login code",
		Body:  fmt.Sprintf("Your code is %s. It expires in %s.", code, o.ttl),
	})
	if err != nil {
		return errors.Wrap(apperr.Dependency("could not deliver OTP"), err.Error())
	}

	log.WithField("phone", phone).Debug("OTP issued")
	return nil
}

func (o *OTP) Verify(ctx context.Context, phone, code string) error {
	if phone == "" || code == "" {
		return apperr.Validation("phone and OTP required")
	}

	hash, err := o.store.Get(ctx, otpKey(phone))
	if errors.Is(err, kv.ErrNotFound) {
		return ErrInvalidOTP
	}
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)); err != nil {
		return ErrInvalidOTP
	}

	return o.store.Del(ctx, otpKey(phone))
}
