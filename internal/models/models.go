package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleManager  Role = "MANAGER"
	RoleCustomer Role = "CUSTOMER"
)

func (r Role) Valid() bool {
	return r == RoleManager || r == RoleCustomer
}

// CanManageStore covers inventory edits, ledger views of other users and reminder batches.
func (r Role) CanManageStore() bool {
	return r == RoleManager
}

// CanBillOthers reports whether orders and payments may target a user other than the caller.
func (r Role) CanBillOthers() bool {
	return r == RoleManager
}

type User struct {
	ID                int64           `json:"id" db:"id"`
	Name              string          `json:"name" db:"name"`
	Phone             string          `json:"phone" db:"phone"`
	Email             *string         `json:"email,omitempty" db:"email"`
	Address           *string         `json:"address,omitempty" db:"address"`
	Role              Role            `json:"role" db:"role"`
	PendingDues       decimal.Decimal `json:"pendingDues" db:"pending_dues"`
	NotificationToken *string         `json:"-" db:"notification_token"`
	CreatedAt         time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt         time.Time       `json:"updatedAt" db:"updated_at"`
}

// Contact returns the best human identifier for error reports.
func (u *User) Contact() string {
	if u.Email != nil && *u.Email != "" {
		return *u.Email
	}
	return u.Phone
}

func (u *User) HasNotificationToken() bool {
	return u.NotificationToken != nil && *u.NotificationToken != ""
}

type Product struct {
	ID            int64               `json:"id" db:"id"`
	Name          string              `json:"name" db:"name"`
	Category      string              `json:"category" db:"category"`
	Price         decimal.Decimal     `json:"price" db:"price"`
	OriginalPrice decimal.NullDecimal `json:"originalPrice" db:"original_price"`
	Stock         int                 `json:"stock" db:"stock"`
	Unit          string              `json:"unit" db:"unit"`
	Description   string              `json:"description,omitempty" db:"description"`
	ImageURL      string              `json:"imageUrl,omitempty" db:"image_url"`
	IsActive      bool                `json:"isActive" db:"is_active"`
	CreatedAt     time.Time           `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time           `json:"updatedAt" db:"updated_at"`
	Version       int                 `json:"version" db:"version"`
}

func (p *Product) HasDiscount() bool {
	return p.OriginalPrice.Valid && p.OriginalPrice.Decimal.GreaterThan(p.Price)
}

type PaymentStatus string

const (
	PaymentStatusPaid    PaymentStatus = "PAID"
	PaymentStatusPartial PaymentStatus = "PARTIAL"
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusFailed  PaymentStatus = "FAILED"
)

const (
	PaymentMethodCash    = "CASH"
	PaymentMethodOnline  = "ONLINE"
	PaymentMethodCard    = "CARD"
	PaymentMethodPending = "PENDING"
)

type Pricing struct {
	Subtotal decimal.Decimal `json:"subtotal" db:"subtotal"`
	Tax      decimal.Decimal `json:"tax" db:"tax"`
	Discount decimal.Decimal `json:"discount" db:"discount"`
	Total    decimal.Decimal `json:"total" db:"total"`
}

type Payment struct {
	AmountPaid decimal.Decimal `json:"amountPaid" db:"amount_paid"`
	Status     PaymentStatus   `json:"status" db:"payment_status"`
	Method     string          `json:"method" db:"payment_method"`
}

type Order struct {
	ID          int64       `json:"id" db:"id"`
	OrderNumber string      `json:"orderNumber" db:"order_number"`
	CustomerID  int64       `json:"customerId" db:"customer_id"`
	Items       []OrderItem `json:"items" db:"-"`
	Pricing     Pricing     `json:"pricing" db:"-"`
	Payment     Payment     `json:"payment" db:"-"`
	CreatedAt   time.Time   `json:"createdAt" db:"created_at"`
}

// OrderItem is a frozen copy of the product taken when the order was placed.
type OrderItem struct {
	ID        int64           `json:"id" db:"id"`
	OrderID   int64           `json:"orderId" db:"order_id"`
	ProductID int64           `json:"productId" db:"product_id"`
	Name      string          `json:"name" db:"name"`
	Price     decimal.Decimal `json:"price" db:"unit_price"`
	Quantity  int             `json:"quantity" db:"quantity"`
	LineTotal decimal.Decimal `json:"lineTotal" db:"line_total"`
}

type TransactionType string

const (
	TransactionDebit  TransactionType = "DEBIT"
	TransactionCredit TransactionType = "CREDIT"
)

type Transaction struct {
	ID            int64           `json:"id" db:"id"`
	UserID        int64           `json:"userId" db:"user_id"`
	OrderID       *int64          `json:"orderId,omitempty" db:"order_id"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	Type          TransactionType `json:"type" db:"type"`
	Description   string          `json:"description" db:"description"`
	PaymentMethod *string         `json:"paymentMethod,omitempty" db:"payment_method"`
	Date          time.Time       `json:"date" db:"date"`
}

// DuesDelta is the signed change this entry applies to the owner's pending dues.
func (t *Transaction) DuesDelta() decimal.Decimal {
	if t.Type == TransactionCredit {
		return t.Amount.Neg()
	}
	return t.Amount
}

type NotificationType string

const (
	NotificationReminder  NotificationType = "REMINDER"
	NotificationPromotion NotificationType = "PROMOTION"
	NotificationSystem    NotificationType = "SYSTEM"
)

type Notification struct {
	ID      int64            `json:"id" db:"id"`
	UserID  int64            `json:"userId" db:"user_id"`
	Title   string           `json:"title" db:"title"`
	Message string           `json:"message" db:"message"`
	Type    NotificationType `json:"type" db:"type"`
	IsRead  bool             `json:"isRead" db:"is_read"`
	SentAt  time.Time        `json:"sentAt" db:"sent_at"`
}

// ReminderCandidate is a user who owes money and can be reached, with the date of their most recent
// ledger entry if they have one.
type ReminderCandidate struct {
	User
	LastTransactionAt *time.Time `json:"lastTransactionAt,omitempty" db:"last_transaction_at"`
}
