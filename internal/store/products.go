package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/safar/smartgrocer/internal/apperr"
	"github.com/safar/smartgrocer/internal/database"
	"github.com/safar/smartgrocer/internal/models"
	"github.com/shopspring/decimal"
)

// LowStockThreshold marks active products whose stock is strictly below it.
const LowStockThreshold = 10

const productColumns = `id, name, category, price, original_price, stock, unit, description, image_url,
	is_active, created_at, updated_at, version`

var ErrDiscountNotBelowPrice = apperr.Validation("discounted price must be below the regular price")

type CreateProductRequest struct {
	Name          string
	Category      string
	Price         decimal.Decimal
	OriginalPrice decimal.NullDecimal
	Stock         int
	Unit          string
	Description   string
	ImageURL      string
}

func (r CreateProductRequest) validate() error {
	if strings.TrimSpace(r.Name) == "" || strings.TrimSpace(r.Category) == "" || strings.TrimSpace(r.Unit) == "" {
		return apperr.Validation("name, category and unit are required")
	}
	if !r.Price.IsPositive() {
		return database.ErrInvalidPrice
	}
	if r.Stock < 0 {
		return database.ErrInvalidStock
	}
	if r.OriginalPrice.Valid && !r.OriginalPrice.Decimal.GreaterThan(r.Price) {
		return ErrDiscountNotBelowPrice
	}
	return nil
}

func CreateProduct(ctx context.Context, db *sqlx.DB, req CreateProductRequest) (*models.Product, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	product := &models.Product{}

	query := `
		INSERT INTO products (name, category, price, original_price, stock, unit, description, image_url,
		                      is_active, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, NOW(), NOW(), 1)
		RETURNING ` + productColumns

	err := sqlx.GetContext(ctx, db, product, query,
		req.Name, req.Category, req.Price, req.OriginalPrice, req.Stock, req.Unit, req.Description, req.ImageURL)
	if err != nil {
		return nil, errors.Wrap(err, "create product")
	}

	return product, nil
}

func GetProduct(ctx context.Context, db sqlx.QueryerContext, id int64) (*models.Product, error) {
	product := &models.Product{}

	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	err := sqlx.GetContext(ctx, db, product, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(database.ErrProductNotFound, "product %d", id)
		}
		return nil, errors.Wrap(err, "get product")
	}

	return product, nil
}

// ListProducts returns active products, optionally filtered by a case-insensitive name match.
func ListProducts(ctx context.Context, db *sqlx.DB, keyword string) ([]models.Product, error) {
	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE is_active
		  AND ($1 = '' OR name ILIKE '%' || $1 || '%' ESCAPE '\')
		ORDER BY name, id`

	products := []models.Product{}
	if err := sqlx.SelectContext(ctx, db, &products, query, escapeLike(keyword)); err != nil {
		return nil, errors.Wrap(err, "list products")
	}

	return products, nil
}

func ListLowStockProducts(ctx context.Context, db *sqlx.DB) ([]models.Product, error) {
	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE is_active AND stock < $1
		ORDER BY stock, name`

	products := []models.Product{}
	if err := sqlx.SelectContext(ctx, db, &products, query, LowStockThreshold); err != nil {
		return nil, errors.Wrap(err, "list low stock products")
	}

	return products, nil
}

// UpdateProductRequest carries a partial update. Nil fields are left unchanged. A zero Version
// skips the optimistic check.
type UpdateProductRequest struct {
	Name        *string
	Category    *string
	Price       *decimal.Decimal
	Stock       *int
	Unit        *string
	Description *string
	ImageURL    *string
	IsActive    *bool
	Version     int
}

func (r UpdateProductRequest) apply(p *models.Product) error {
	if r.Name != nil && *r.Name != "" {
		p.Name = *r.Name
	}
	if r.Category != nil && *r.Category != "" {
		p.Category = *r.Category
	}
	if r.Unit != nil && *r.Unit != "" {
		p.Unit = *r.Unit
	}
	if r.Description != nil {
		p.Description = *r.Description
	}
	if r.ImageURL != nil {
		p.ImageURL = *r.ImageURL
	}
	if r.IsActive != nil {
		p.IsActive = *r.IsActive
	}
	if r.Stock != nil {
		if *r.Stock < 0 {
			return database.ErrInvalidStock
		}
		p.Stock = *r.Stock
	}
	if r.Price != nil {
		if !r.Price.IsPositive() {
			return database.ErrInvalidPrice
		}
		p.Price = *r.Price
		if p.OriginalPrice.Valid && !p.OriginalPrice.Decimal.GreaterThan(p.Price) {
			p.OriginalPrice = decimal.NullDecimal{}
		}
	}
	return nil
}

func UpdateProduct(ctx context.Context, db *sqlx.DB, id int64, req UpdateProductRequest) (*models.Product, error) {
	return modifyProduct(ctx, db, id, func(product *models.Product) (bool, error) {
		if req.Version != 0 && req.Version != product.Version {
			return false, errors.Wrapf(database.ErrOptimisticLockFailed, "product %d", id)
		}
		if err := req.apply(product); err != nil {
			return false, err
		}
		return true, nil
	})
}

// modifyProduct runs fn against the product row locked FOR UPDATE and saves it when fn reports a
// change. Stock is read under the same lock that order placement takes.
func modifyProduct(ctx context.Context, db *sqlx.DB, id int64, fn func(*models.Product) (bool, error)) (*models.Product, error) {
	var saved *models.Product

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sqlx.Tx) error {
		locked, err := lockProducts(ctx, tx, []int64{id})
		if err != nil {
			return err
		}
		product, ok := locked[id]
		if !ok {
			return errors.Wrapf(database.ErrProductNotFound, "product %d", id)
		}

		changed, err := fn(&product)
		if err != nil {
			return err
		}
		if !changed {
			saved = &product
			return nil
		}

		saved, err = saveProduct(ctx, tx, &product)
		return err
	})
	if err != nil {
		return nil, err
	}

	return saved, nil
}

// saveProduct writes every mutable column of a row the caller holds locked.
func saveProduct(ctx context.Context, tx *sqlx.Tx, p *models.Product) (*models.Product, error) {
	saved := &models.Product{}

	query := `
		UPDATE products
		SET name = $1, category = $2, price = $3, original_price = $4, stock = $5, unit = $6,
		    description = $7, image_url = $8, is_active = $9,
		    version = version + 1, updated_at = NOW()
		WHERE id = $10 AND version = $11
		RETURNING ` + productColumns

	err := sqlx.GetContext(ctx, tx, saved, query,
		p.Name, p.Category, p.Price, p.OriginalPrice, p.Stock, p.Unit,
		p.Description, p.ImageURL, p.IsActive,
		p.ID, p.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(database.ErrOptimisticLockFailed, "product %d", p.ID)
		}
		return nil, errors.Wrap(err, "update product")
	}

	return saved, nil
}

// DeactivateProduct hides a product from the catalog. Historical order lines keep referencing it.
func DeactivateProduct(ctx context.Context, db *sqlx.DB, id int64) error {
	result, err := db.ExecContext(ctx,
		`UPDATE products
		 SET is_active = FALSE, version = version + 1, updated_at = NOW()
		 WHERE id = $1`,
		id)
	if err != nil {
		return errors.Wrap(err, "deactivate product")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "get rows affected")
	}

	if rowsAffected == 0 {
		return errors.Wrapf(database.ErrProductNotFound, "product %d", id)
	}

	return nil
}

// ApplyDiscount sets a new selling price and remembers the regular price as the was-price.
// Repeated discounts keep the first regular price.
func ApplyDiscount(ctx context.Context, db *sqlx.DB, id int64, newPrice decimal.Decimal) (*models.Product, error) {
	if !newPrice.IsPositive() {
		return nil, database.ErrInvalidPrice
	}

	return modifyProduct(ctx, db, id, func(product *models.Product) (bool, error) {
		regular := product.Price
		if product.OriginalPrice.Valid {
			regular = product.OriginalPrice.Decimal
		}
		if !newPrice.LessThan(regular) {
			return false, ErrDiscountNotBelowPrice
		}

		product.OriginalPrice = decimal.NewNullDecimal(regular)
		product.Price = newPrice
		return true, nil
	})
}

func ClearDiscount(ctx context.Context, db *sqlx.DB, id int64) (*models.Product, error) {
	return modifyProduct(ctx, db, id, func(product *models.Product) (bool, error) {
		if !product.OriginalPrice.Valid {
			return false, nil
		}

		product.Price = product.OriginalPrice.Decimal
		product.OriginalPrice = decimal.NullDecimal{}
		return true, nil
	})
}

// lockProducts takes row locks on every requested product in id order, so concurrent orders
// over overlapping products queue instead of deadlocking.
func lockProducts(ctx context.Context, tx *sqlx.Tx, ids []int64) (map[int64]models.Product, error) {
	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE`

	var locked []models.Product
	if err := sqlx.SelectContext(ctx, tx, &locked, query, pq.Array(ids)); err != nil {
		return nil, errors.Wrap(err, "lock products")
	}

	products := make(map[int64]models.Product, len(locked))
	for _, p := range locked {
		products[p.ID] = p
	}

	return products, nil
}

// DecrementStock removes quantity units only if that many are on hand.
func DecrementStock(ctx context.Context, tx *sqlx.Tx, productID int64, quantity int) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE products
		 SET stock = stock - $1,
		     updated_at = NOW()
		 WHERE id = $2
		   AND stock >= $1`,
		quantity, productID)
	if err != nil {
		return errors.Wrap(err, "decrement stock")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "get rows affected")
	}

	if rowsAffected == 0 {
		return errors.Wrapf(database.ErrInsufficientStock, "product %d", productID)
	}

	return nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
