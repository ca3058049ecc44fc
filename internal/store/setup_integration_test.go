//go:build integration

package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/safar/smartgrocer/internal/database"
	"github.com/safar/smartgrocer/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:14-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpass",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	postgres, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "start postgres container")

	host, err := postgres.Host(ctx)
	require.NoError(t, err, "container host")

	port, err := postgres.MappedPort(ctx, "5432")
	require.NoError(t, err, "container port")

	dsn := fmt.Sprintf("postgres://testuser:testpass@%s:%s/testdb?sslmode=disable", host, port.Port())

	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err, "connect to database")

	require.NoError(t, database.Migrate(db.DB, database.MigrateUp), "run migrations")

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Failed to close database: %v", err)
		}
		if err := postgres.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	return db
}

func mustCreateCustomer(t *testing.T, db *sqlx.DB, phone string) *models.User {
	t.Helper()
	user, err := CreateUser(context.Background(), db, CreateUserRequest{
		Name:  "Customer " + phone,
		Phone: phone,
		Role:  models.RoleCustomer,
	})
	require.NoError(t, err)
	return user
}

func mustCreateProduct(t *testing.T, db *sqlx.DB, name, price string, stock int) *models.Product {
	t.Helper()
	product, err := CreateProduct(context.Background(), db, CreateProductRequest{
		Name:     name,
		Category: "Grocery",
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
		Unit:     "pcs",
	})
	require.NoError(t, err)
	return product
}
