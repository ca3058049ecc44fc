package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/safar/smartgrocer/internal/database"
	"github.com/safar/smartgrocer/internal/models"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const transactionColumns = `id, user_id, order_id, amount, type, description, payment_method, date`

// ledgerBalance is the signed sum of a user's transactions, DEBIT positive and CREDIT negative.
const ledgerBalance = `COALESCE(SUM(CASE WHEN t.type = 'DEBIT' THEN t.amount ELSE -t.amount END), 0)`

// appendEntry writes one ledger line and moves the cached balance in the same transaction.
func appendEntry(ctx context.Context, tx *sqlx.Tx, entry *models.Transaction) error {
	if !entry.Amount.IsPositive() {
		return errors.Wrapf(database.ErrInvalidAmount, "ledger entry for user %d", entry.UserID)
	}

	query := `
		INSERT INTO transactions (user_id, order_id, amount, type, description, payment_method, date)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, date`

	err := tx.QueryRowxContext(ctx, query,
		entry.UserID, entry.OrderID, entry.Amount, entry.Type, entry.Description, entry.PaymentMethod,
	).Scan(&entry.ID, &entry.Date)
	if err != nil {
		return errors.Wrap(err, "insert transaction")
	}

	return adjustDues(ctx, tx, entry.UserID, entry.DuesDelta())
}

// RecordCharge debits a user for an order total.
func RecordCharge(ctx context.Context, tx *sqlx.Tx, userID, orderID int64, amount decimal.Decimal, description string) (*models.Transaction, error) {
	entry := &models.Transaction{
		UserID:      userID,
		OrderID:     &orderID,
		Amount:      amount,
		Type:        models.TransactionDebit,
		Description: description,
	}

	if err := appendEntry(ctx, tx, entry); err != nil {
		return nil, err
	}

	return entry, nil
}

type PaymentEntry struct {
	UserID      int64
	OrderID     *int64
	Amount      decimal.Decimal
	Method      string
	Description string
}

// RecordPayment credits a user. Overpayment is allowed and leaves a negative balance as store credit.
func RecordPayment(ctx context.Context, tx *sqlx.Tx, payment PaymentEntry) (*models.Transaction, error) {
	method := payment.Method
	if method == "" {
		method = models.PaymentMethodCash
	}

	entry := &models.Transaction{
		UserID:        payment.UserID,
		OrderID:       payment.OrderID,
		Amount:        payment.Amount,
		Type:          models.TransactionCredit,
		Description:   payment.Description,
		PaymentMethod: &method,
	}

	if err := appendEntry(ctx, tx, entry); err != nil {
		return nil, err
	}

	return entry, nil
}

type PayDuesRequest struct {
	UserID      int64
	Amount      decimal.Decimal
	Method      string
	Description string
}

// PayDues records a standalone payment against a user's running balance.
func PayDues(ctx context.Context, db *sqlx.DB, req PayDuesRequest) (*models.Transaction, error) {
	if !req.Amount.IsPositive() {
		return nil, database.ErrInvalidAmount
	}

	description := req.Description
	if description == "" {
		description = "Dues Payment"
	}
	if req.Method != "" {
		description += " (" + req.Method + ")"
	}

	var entry *models.Transaction

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sqlx.Tx) error {
		if _, err := GetUser(ctx, tx, req.UserID); err != nil {
			return err
		}

		var err error
		entry, err = RecordPayment(ctx, tx, PaymentEntry{
			UserID:      req.UserID,
			Amount:      req.Amount,
			Method:      req.Method,
			Description: description,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	return entry, nil
}

// ListTransactions returns a user's ledger, most recent first.
func ListTransactions(ctx context.Context, db *sqlx.DB, userID int64) ([]models.Transaction, error) {
	if _, err := GetUser(ctx, db, userID); err != nil {
		return nil, err
	}

	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE user_id = $1
		ORDER BY date DESC, id DESC`

	transactions := []models.Transaction{}
	if err := sqlx.SelectContext(ctx, db, &transactions, query, userID); err != nil {
		return nil, errors.Wrap(err, "list transactions")
	}

	return transactions, nil
}

type DuesDiscrepancy struct {
	UserID int64           `json:"userId" db:"id"`
	Name   string          `json:"name" db:"name"`
	Cached decimal.Decimal `json:"cached" db:"cached"`
	Ledger decimal.Decimal `json:"ledger" db:"ledger"`
}

func (d DuesDiscrepancy) Drift() decimal.Decimal {
	return d.Cached.Sub(d.Ledger)
}

func (d DuesDiscrepancy) String() string {
	return fmt.Sprintf("user %d (%s): cached %s, ledger %s", d.UserID, d.Name, d.Cached.String(), d.Ledger.String())
}

// ReconcileDues lists users whose cached pending dues disagree with the sum of their ledger.
func ReconcileDues(ctx context.Context, db *sqlx.DB) ([]DuesDiscrepancy, error) {
	query := `
		SELECT u.id, u.name, u.pending_dues AS cached, ` + ledgerBalance + ` AS ledger
		FROM users u
		LEFT JOIN transactions t ON t.user_id = u.id
		GROUP BY u.id, u.name, u.pending_dues
		HAVING u.pending_dues <> ` + ledgerBalance + `
		ORDER BY u.id`

	discrepancies := []DuesDiscrepancy{}
	if err := sqlx.SelectContext(ctx, db, &discrepancies, query); err != nil {
		return nil, errors.Wrap(err, "reconcile dues")
	}

	return discrepancies, nil
}

// RepairDues rewrites every drifted cached balance from the ledger and returns how many users changed.
// Ledger inserts are blocked while it runs so no payment lands between the sum and the write.
func RepairDues(ctx context.Context, db *sqlx.DB) (int64, error) {
	var repaired int64

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `LOCK TABLE transactions IN SHARE MODE`); err != nil {
			return errors.Wrap(err, "lock transactions")
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE users u
			SET pending_dues = l.balance, updated_at = NOW()
			FROM (
				SELECT u2.id, `+ledgerBalance+` AS balance
				FROM users u2
				LEFT JOIN transactions t ON t.user_id = u2.id
				GROUP BY u2.id
			) l
			WHERE u.id = l.id AND u.pending_dues <> l.balance`)
		if err != nil {
			return errors.Wrap(err, "repair dues")
		}

		repaired, err = result.RowsAffected()
		if err != nil {
			return errors.Wrap(err, "get rows affected")
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	if repaired > 0 {
		log.WithField("users", repaired).Warn("Repaired drifted pending dues")
	}

	return repaired, nil
}
