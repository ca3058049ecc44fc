package store

import (
	"context"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/safar/smartgrocer/internal/models"
	"github.com/shopspring/decimal"
)

const (
	TopProductsLimit     = 5
	ManagerRecentOrders  = 5
	CustomerRecentOrders = 3
)

type ProductSales struct {
	Name     string `json:"name" db:"name"`
	Quantity int64  `json:"quantity" db:"quantity"`
}

type ManagerStats struct {
	TodaysSales      decimal.Decimal `json:"todaysSales"`
	TotalRevenue     decimal.Decimal `json:"totalRevenue"`
	TotalPendingDues decimal.Decimal `json:"totalPendingDues"`
	LowStockCount    int             `json:"lowStockCount"`
	RecentOrders     []models.Order  `json:"recentOrders"`
	TopProducts      []ProductSales  `json:"topProducts"`
}

type CustomerStats struct {
	TotalOrders  int             `json:"totalOrders"`
	TotalSpent   decimal.Decimal `json:"totalSpent"`
	PendingDues  decimal.Decimal `json:"pendingDues"`
	RecentOrders []models.Order  `json:"recentOrders"`
}

// DayBounds returns the first and last representable instants of now's calendar day in now's location.
func DayBounds(now time.Time) (time.Time, time.Time) {
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	end := start.AddDate(0, 0, 1).Add(-time.Microsecond)
	return start, end
}

func ManagerDashboard(ctx context.Context, db *sqlx.DB, now time.Time) (*ManagerStats, error) {
	stats := &ManagerStats{}
	start, end := DayBounds(now)

	err := db.QueryRowxContext(ctx,
		`SELECT COALESCE(SUM(total) FILTER (WHERE created_at BETWEEN $1 AND $2), 0),
		        COALESCE(SUM(total), 0)
		 FROM orders`,
		start, end).Scan(&stats.TodaysSales, &stats.TotalRevenue)
	if err != nil {
		return nil, errors.Wrap(err, "sum sales")
	}

	err = db.QueryRowxContext(ctx,
		`SELECT COALESCE(SUM(pending_dues), 0) FROM users`,
	).Scan(&stats.TotalPendingDues)
	if err != nil {
		return nil, errors.Wrap(err, "sum pending dues")
	}

	err = db.QueryRowxContext(ctx,
		`SELECT COUNT(*) FROM products WHERE is_active AND stock < $1`,
		LowStockThreshold).Scan(&stats.LowStockCount)
	if err != nil {
		return nil, errors.Wrap(err, "count low stock")
	}

	stats.RecentOrders, err = RecentOrders(ctx, db, 0, ManagerRecentOrders)
	if err != nil {
		return nil, err
	}

	var sales []ProductSales
	err = sqlx.SelectContext(ctx, db, &sales,
		`SELECT name, SUM(quantity) AS quantity
		 FROM order_items
		 GROUP BY name
		 ORDER BY MIN(id)`)
	if err != nil {
		return nil, errors.Wrap(err, "product sales")
	}
	stats.TopProducts = RankTopProducts(sales, TopProductsLimit)

	return stats, nil
}

// RankTopProducts orders sales by quantity, highest first. Ties keep the input order.
func RankTopProducts(sales []ProductSales, n int) []ProductSales {
	ranked := make([]ProductSales, len(sales))
	copy(ranked, sales)

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Quantity > ranked[j].Quantity
	})

	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

func CustomerDashboard(ctx context.Context, db *sqlx.DB, customerID int64) (*CustomerStats, error) {
	user, err := GetUser(ctx, db, customerID)
	if err != nil {
		return nil, err
	}

	stats := &CustomerStats{PendingDues: user.PendingDues}

	err = db.QueryRowxContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(total), 0) FROM orders WHERE customer_id = $1`,
		customerID).Scan(&stats.TotalOrders, &stats.TotalSpent)
	if err != nil {
		return nil, errors.Wrap(err, "customer totals")
	}

	stats.RecentOrders, err = RecentOrders(ctx, db, customerID, CustomerRecentOrders)
	if err != nil {
		return nil, err
	}

	return stats, nil
}
