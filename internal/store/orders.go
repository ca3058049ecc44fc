package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/safar/smartgrocer/internal/apperr"
	"github.com/safar/smartgrocer/internal/database"
	"github.com/safar/smartgrocer/internal/models"
	"github.com/safar/smartgrocer/internal/pricing"
	"github.com/shopspring/decimal"
)

const orderColumns = `id, order_number, customer_id, subtotal, tax, discount, total,
	amount_paid, payment_status, payment_method, created_at`

var ErrNegativePayment = apperr.Validation("amount paid must not be negative")

type PlaceOrderRequest struct {
	CustomerID    int64
	Items         []OrderItemRequest
	AmountPaid    decimal.Decimal
	PaymentMethod string
}

type OrderItemRequest struct {
	ProductID int64
	Quantity  int
}

func (r PlaceOrderRequest) validate() error {
	if len(r.Items) == 0 {
		return database.ErrEmptyOrder
	}
	for _, item := range r.Items {
		if item.Quantity <= 0 {
			return errors.Wrapf(database.ErrInvalidQuantity, "product %d", item.ProductID)
		}
	}
	if r.AmountPaid.IsNegative() {
		return ErrNegativePayment
	}
	return nil
}

// demand sums requested quantities per product, keeping first-seen product order.
func (r PlaceOrderRequest) demand() ([]int64, map[int64]int) {
	ids := make([]int64, 0, len(r.Items))
	quantities := make(map[int64]int, len(r.Items))
	for _, item := range r.Items {
		if _, seen := quantities[item.ProductID]; !seen {
			ids = append(ids, item.ProductID)
		}
		quantities[item.ProductID] += item.Quantity
	}
	return ids, quantities
}

func generateOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), suffix)
}

// PlaceOrder validates stock, snapshots prices, decrements inventory, persists the order and posts
// its charge and optional payment to the customer's ledger. Either all of it commits or none does.
func PlaceOrder(ctx context.Context, db *sqlx.DB, req PlaceOrderRequest) (*models.Order, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	ids, quantities := req.demand()

	var order *models.Order

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sqlx.Tx) error {
		if _, err := GetUser(ctx, tx, req.CustomerID); err != nil {
			return err
		}

		products, err := lockProducts(ctx, tx, ids)
		if err != nil {
			return err
		}

		for _, id := range ids {
			product, ok := products[id]
			if !ok || !product.IsActive {
				return errors.Wrapf(database.ErrProductNotFound, "product %d", id)
			}
			if product.Stock < quantities[id] {
				return errors.Wrapf(database.ErrInsufficientStock, "%s: requested %d, available %d",
					product.Name, quantities[id], product.Stock)
			}
		}

		lines := make([]pricing.Line, 0, len(req.Items))
		for _, item := range req.Items {
			product := products[item.ProductID]
			lines = append(lines, pricing.Line{
				ProductID: product.ID,
				Name:      product.Name,
				Price:     product.Price,
				Quantity:  item.Quantity,
			})
		}
		quote := pricing.Price(lines)

		for _, id := range ids {
			if err := DecrementStock(ctx, tx, id, quantities[id]); err != nil {
				return err
			}
		}

		order = &models.Order{
			OrderNumber: generateOrderNumber(time.Now()),
			CustomerID:  req.CustomerID,
			Items:       quote.Items,
			Pricing:     quote.Pricing,
			Payment: models.Payment{
				AmountPaid: req.AmountPaid,
				Status:     pricing.PaymentStatus(quote.Pricing.Total, req.AmountPaid),
				Method:     pricing.PaymentMethod(req.PaymentMethod, req.AmountPaid),
			},
		}

		if err := insertOrder(ctx, tx, order); err != nil {
			return err
		}

		_, err = RecordCharge(ctx, tx, order.CustomerID, order.ID, order.Pricing.Total,
			fmt.Sprintf("Order #%s Charge", order.OrderNumber))
		if err != nil {
			return err
		}

		if order.Payment.AmountPaid.IsPositive() {
			_, err = RecordPayment(ctx, tx, PaymentEntry{
				UserID:      order.CustomerID,
				OrderID:     &order.ID,
				Amount:      order.Payment.AmountPaid,
				Method:      order.Payment.Method,
				Description: fmt.Sprintf("Payment for Order #%s", order.OrderNumber),
			})
			if err != nil {
				return err
			}
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return order, nil
}

func insertOrder(ctx context.Context, tx *sqlx.Tx, order *models.Order) error {
	err := tx.QueryRowxContext(ctx,
		`INSERT INTO orders (order_number, customer_id, subtotal, tax, discount, total,
		                     amount_paid, payment_status, payment_method, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		 RETURNING id, created_at`,
		order.OrderNumber, order.CustomerID,
		order.Pricing.Subtotal, order.Pricing.Tax, order.Pricing.Discount, order.Pricing.Total,
		order.Payment.AmountPaid, order.Payment.Status, order.Payment.Method,
	).Scan(&order.ID, &order.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "create order")
	}

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID

		err := tx.QueryRowxContext(ctx,
			`INSERT INTO order_items (order_id, product_id, name, unit_price, quantity, line_total)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING id`,
			item.OrderID, item.ProductID, item.Name, item.Price, item.Quantity, item.LineTotal,
		).Scan(&item.ID)
		if err != nil {
			return errors.Wrap(err, "create order item")
		}
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner, order *models.Order) error {
	return row.Scan(
		&order.ID,
		&order.OrderNumber,
		&order.CustomerID,
		&order.Pricing.Subtotal,
		&order.Pricing.Tax,
		&order.Pricing.Discount,
		&order.Pricing.Total,
		&order.Payment.AmountPaid,
		&order.Payment.Status,
		&order.Payment.Method,
		&order.CreatedAt,
	)
}

func GetOrder(ctx context.Context, db *sqlx.DB, id int64) (*models.Order, error) {
	order := &models.Order{}

	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	if err := scanOrder(db.QueryRowxContext(ctx, query, id), order); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(database.ErrOrderNotFound, "order %d", id)
		}
		return nil, errors.Wrap(err, "get order")
	}

	orders := []models.Order{*order}
	if err := loadItems(ctx, db, orders); err != nil {
		return nil, err
	}

	return &orders[0], nil
}

// loadItems fills Items for every order with a single query.
func loadItems(ctx context.Context, db sqlx.QueryerContext, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]int64, len(orders))
	index := make(map[int64]int, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		index[orders[i].ID] = i
		orders[i].Items = []models.OrderItem{}
	}

	query := `
		SELECT id, order_id, product_id, name, unit_price, quantity, line_total
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, id`

	var items []models.OrderItem
	if err := sqlx.SelectContext(ctx, db, &items, query, pq.Array(ids)); err != nil {
		return errors.Wrap(err, "get order items")
	}

	for _, item := range items {
		i := index[item.OrderID]
		orders[i].Items = append(orders[i].Items, item)
	}

	return nil
}

// ListOrders pages orders newest first. A zero customerID lists every customer's orders.
func ListOrders(ctx context.Context, db *sqlx.DB, customerID int64, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}
	limit = ClampLimit(limit)

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE ($1::bigint = 0 OR customer_id = $1)
		  AND (created_at, id) < ($2, $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4`

	orders, err := queryOrders(ctx, db, query, customerID, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, err
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	if err := loadItems(ctx, db, orders); err != nil {
		return nil, err
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		lastOrder := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			CreatedAt: lastOrder.CreatedAt,
			ID:        lastOrder.ID,
		})
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// RecentOrders returns the n newest orders with their items. A zero customerID covers the whole store.
func RecentOrders(ctx context.Context, db *sqlx.DB, customerID int64, n int) ([]models.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE ($1::bigint = 0 OR customer_id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	orders, err := queryOrders(ctx, db, query, customerID, n)
	if err != nil {
		return nil, err
	}

	if err := loadItems(ctx, db, orders); err != nil {
		return nil, err
	}

	return orders, nil
}

func queryOrders(ctx context.Context, db *sqlx.DB, query string, args ...interface{}) ([]models.Order, error) {
	rows, err := db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		var order models.Order
		if err := scanOrder(rows, &order); err != nil {
			return nil, errors.Wrap(err, "scan order")
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "rows error")
	}

	return orders, nil
}
