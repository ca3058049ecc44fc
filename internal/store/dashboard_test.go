package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRankTopProducts(t *testing.T) {
	sales := []ProductSales{
		{Name: "Milk", Quantity: 4},
		{Name: "Bread", Quantity: 9},
		{Name: "Eggs", Quantity: 4},
		{Name: "Rice", Quantity: 1},
		{Name: "Salt", Quantity: 4},
		{Name: "Tea", Quantity: 7},
		{Name: "Sugar", Quantity: 2},
	}

	top := RankTopProducts(sales, 5)

	assert.Equal(t, []ProductSales{
		{Name: "Bread", Quantity: 9},
		{Name: "Tea", Quantity: 7},
		{Name: "Milk", Quantity: 4},
		{Name: "Eggs", Quantity: 4},
		{Name: "Salt", Quantity: 4},
	}, top)
	assert.Equal(t, "Milk", sales[0].Name, "input must not be reordered")
}

func TestRankTopProductsShortList(t *testing.T) {
	top := RankTopProducts([]ProductSales{{Name: "Milk", Quantity: 1}}, 5)
	assert.Len(t, top, 1)

	assert.Empty(t, RankTopProducts(nil, 5))
}

func TestDayBounds(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*60*60)
	now := time.Date(2024, time.March, 10, 15, 30, 0, 0, loc)

	start, end := DayBounds(now)

	assert.Equal(t, time.Date(2024, time.March, 10, 0, 0, 0, 0, loc), start)
	assert.Equal(t, time.Date(2024, time.March, 10, 23, 59, 59, 999999000, loc), end)
}
