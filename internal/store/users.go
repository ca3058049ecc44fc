package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/safar/smartgrocer/internal/apperr"
	"github.com/safar/smartgrocer/internal/database"
	"github.com/safar/smartgrocer/internal/models"
	"github.com/shopspring/decimal"
)

const userColumns = `id, name, phone, email, address, role, pending_dues, notification_token, created_at, updated_at`

type CreateUserRequest struct {
	Name    string
	Phone   string
	Email   *string
	Address *string
	Role    models.Role
}

func (r CreateUserRequest) validate() error {
	if strings.TrimSpace(r.Name) == "" || strings.TrimSpace(r.Phone) == "" {
		return apperr.Validation("name and phone are required")
	}
	if !r.Role.Valid() {
		return apperr.Validation("unknown role %q", r.Role)
	}
	return nil
}

func CreateUser(ctx context.Context, db *sqlx.DB, req CreateUserRequest) (*models.User, error) {
	if req.Role == "" {
		req.Role = models.RoleCustomer
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	user := &models.User{}

	query := `
		INSERT INTO users (name, phone, email, address, role, pending_dues, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, NOW(), NOW())
		RETURNING ` + userColumns

	err := sqlx.GetContext(ctx, db, user, query, req.Name, req.Phone, req.Email, req.Address, req.Role)
	if err != nil {
		if database.IsUniqueViolation(err, "users_phone_key") {
			return nil, errors.Wrapf(database.ErrPhoneTaken, "phone %s", req.Phone)
		}
		if database.IsUniqueViolation(err, "users_email_key") {
			return nil, apperr.Conflict("email already registered")
		}
		return nil, errors.Wrap(err, "create user")
	}

	return user, nil
}

func GetUser(ctx context.Context, db sqlx.QueryerContext, id int64) (*models.User, error) {
	user := &models.User{}

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	err := sqlx.GetContext(ctx, db, user, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(database.ErrUserNotFound, "user %d", id)
		}
		return nil, errors.Wrap(err, "get user")
	}

	return user, nil
}

func GetUserByPhone(ctx context.Context, db *sqlx.DB, phone string) (*models.User, error) {
	user := &models.User{}

	query := `SELECT ` + userColumns + ` FROM users WHERE phone = $1`

	err := sqlx.GetContext(ctx, db, user, query, phone)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(database.ErrUserNotFound, "phone %s", phone)
		}
		return nil, errors.Wrap(err, "get user by phone")
	}

	return user, nil
}

// ListUsers pages through users, newest first. An empty role lists everyone.
func ListUsers(ctx context.Context, db *sqlx.DB, role models.Role, page, pageSize int) (*OffsetPage, error) {
	if page < 1 {
		page = 1
	}
	pageSize = ClampLimit(pageSize)

	var total int64
	err := db.QueryRowxContext(ctx,
		`SELECT COUNT(*) FROM users WHERE ($1 = '' OR role = $1)`,
		string(role)).Scan(&total)
	if err != nil {
		return nil, errors.Wrap(err, "count users")
	}

	offset := (page - 1) * pageSize
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE ($1 = '' OR role = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	users := []models.User{}
	if err := sqlx.SelectContext(ctx, db, &users, query, string(role), pageSize, offset); err != nil {
		return nil, errors.Wrap(err, "list users")
	}

	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}

	return &OffsetPage{
		Items:      users,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}

// ListDebtors returns every user who owes money, largest balance first.
func ListDebtors(ctx context.Context, db *sqlx.DB) ([]models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE pending_dues > 0
		ORDER BY pending_dues DESC, id`

	users := []models.User{}
	if err := sqlx.SelectContext(ctx, db, &users, query); err != nil {
		return nil, errors.Wrap(err, "list debtors")
	}

	return users, nil
}

// UpdateNotificationToken stores the push/chat address used for reminders. An empty token clears it.
func UpdateNotificationToken(ctx context.Context, db *sqlx.DB, userID int64, token string) error {
	var value *string
	if token != "" {
		value = &token
	}

	result, err := db.ExecContext(ctx,
		`UPDATE users SET notification_token = $1, updated_at = NOW() WHERE id = $2`,
		value, userID)
	if err != nil {
		return errors.Wrap(err, "update notification token")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "get rows affected")
	}

	if rowsAffected == 0 {
		return errors.Wrapf(database.ErrUserNotFound, "user %d", userID)
	}

	return nil
}

// adjustDues moves the cached balance by delta. The row lock it takes serializes concurrent
// ledger writes for the same user.
func adjustDues(ctx context.Context, tx *sqlx.Tx, userID int64, delta decimal.Decimal) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE users
		 SET pending_dues = pending_dues + $1,
		     updated_at = NOW()
		 WHERE id = $2`,
		delta, userID)
	if err != nil {
		return errors.Wrap(err, "adjust dues")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "get rows affected")
	}

	if rowsAffected == 0 {
		return errors.Wrapf(database.ErrUserNotFound, "user %d", userID)
	}

	return nil
}
