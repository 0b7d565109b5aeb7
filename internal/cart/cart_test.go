package cart

import (
	"testing"

	"till-service/internal/models"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var decimalEqual = cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })

func catalog() []models.Product {
	return []models.Product{
		{ID: 1, Name: "Brownie", Price: decimal.RequireFromString("2.50"), Quantity: 10, ImageURL: "/img/brownie.jpg"},
		{ID: 2, Name: "Lemon cake", Price: decimal.RequireFromString("3.20"), Quantity: 1},
		{ID: 3, Name: "Paperback", Price: decimal.RequireFromString("1.00"), Quantity: 0},
	}
}

func randomCatalog(n int) []models.Product {
	products := make([]models.Product, n)
	for i := range products {
		products[i] = models.Product{
			ID:       int64(i + 1),
			Name:     gofakeit.ProductName(),
			Price:    decimal.NewFromFloat(gofakeit.Price(0.1, 50)).Round(2),
			Quantity: gofakeit.IntRange(1, 20),
			ImageURL: gofakeit.URL(),
		}
	}
	return products
}

func TestApplyAddCreatesLineAndEchoesStock(t *testing.T) {
	s := New(catalog())

	next, err := s.ApplyAdd(1, 9)
	require.NoError(t, err)

	line, ok := next.Line(1)
	require.True(t, ok)
	assert.Equal(t, 1, line.Quantity)
	assert.Equal(t, "Brownie", line.Name)
	assert.True(t, line.UnitPrice.Equal(decimal.RequireFromString("2.50")))

	p, _ := next.Product(1)
	assert.Equal(t, 9, p.Quantity)
}

func TestApplyAddSameProductTwiceMergesLine(t *testing.T) {
	s := New(catalog())

	s, err := s.ApplyAdd(1, 9)
	require.NoError(t, err)
	s, err = s.ApplyAdd(1, 8)
	require.NoError(t, err)

	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 2, lines[0].Quantity)

	p, _ := s.Product(1)
	assert.Equal(t, 8, p.Quantity)
}

func TestApplyAddDoesNotMutateReceiver(t *testing.T) {
	before := New(catalog())
	linesBefore := before.Lines()
	productsBefore := before.Products()

	_, err := before.ApplyAdd(2, 0)
	require.NoError(t, err)

	assert.Empty(t, cmp.Diff(linesBefore, before.Lines(), decimalEqual))
	assert.Empty(t, cmp.Diff(productsBefore, before.Products(), decimalEqual))
}

func TestApplyAddUnknownProductLeavesStateUnchanged(t *testing.T) {
	s := New(catalog())

	next, err := s.ApplyAdd(42, 3)
	assert.ErrorIs(t, err, ErrUnknownProduct)
	assert.True(t, next.IsEmpty())
	assert.Empty(t, cmp.Diff(s.Products(), next.Products(), decimalEqual))
}

func TestApplyAddRejectsNegativeRemaining(t *testing.T) {
	s := New(catalog())

	next, err := s.ApplyAdd(1, -1)
	assert.Error(t, err)
	assert.True(t, next.IsEmpty())
	p, _ := next.Product(1)
	assert.Equal(t, 10, p.Quantity)
}

func TestTotalMatchesIndependentSum(t *testing.T) {
	products := randomCatalog(gofakeit.IntRange(2, 12))
	s := New(products)

	for _, p := range products {
		adds := gofakeit.IntRange(1, p.Quantity)
		for i := 0; i < adds; i++ {
			var err error
			s, err = s.ApplyAdd(p.ID, p.Quantity-i-1)
			require.NoError(t, err)
		}
	}

	expected := decimal.Zero
	for _, l := range s.Lines() {
		expected = expected.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	assert.True(t, expected.Equal(s.Total()), "expected %s, got %s", expected, s.Total())
	assert.Len(t, s.Lines(), len(products))
}

func TestTotalKeepsFullPrecision(t *testing.T) {
	products := []models.Product{{ID: 7, Name: "Cookie", Price: decimal.RequireFromString("0.333"), Quantity: 100}}
	s := New(products)

	for i := 0; i < 3; i++ {
		var err error
		s, err = s.ApplyAdd(7, 99-i)
		require.NoError(t, err)
	}

	assert.Equal(t, "0.999", s.Total().String())
}

func TestClearKeepsCatalog(t *testing.T) {
	s, err := New(catalog()).ApplyAdd(1, 9)
	require.NoError(t, err)

	cleared := s.Clear()
	assert.True(t, cleared.IsEmpty())
	assert.True(t, cleared.Total().IsZero())
	p, _ := cleared.Product(1)
	assert.Equal(t, 9, p.Quantity)
}

func TestWithCatalogKeepsLines(t *testing.T) {
	s, err := New(catalog()).ApplyAdd(2, 0)
	require.NoError(t, err)

	refreshed := s.WithCatalog([]models.Product{{ID: 2, Name: "Lemon cake", Price: decimal.RequireFromString("3.20"), Quantity: 5}})
	line, ok := refreshed.Line(2)
	require.True(t, ok)
	assert.Equal(t, 1, line.Quantity)
	p, _ := refreshed.Product(2)
	assert.Equal(t, 5, p.Quantity)
	_, ok = refreshed.Product(1)
	assert.False(t, ok)
}

func TestWithLinesDropsEmptyLines(t *testing.T) {
	s := New(catalog()).WithLines([]models.CartLine{
		{ProductID: 1, Name: "Brownie", UnitPrice: decimal.RequireFromString("2.50"), Quantity: 2},
		{ProductID: 2, Name: "Lemon cake", UnitPrice: decimal.RequireFromString("3.20"), Quantity: 0},
	})

	require.Len(t, s.Lines(), 1)
	assert.Equal(t, "5", s.Total().String())
}

func TestItemsOrderedByProduct(t *testing.T) {
	s := New(catalog())
	s, _ = s.ApplyAdd(2, 0)
	s, _ = s.ApplyAdd(1, 9)
	s, _ = s.ApplyAdd(1, 8)

	assert.Equal(t, []models.CheckoutItem{
		{ProductID: 1, Quantity: 2},
		{ProductID: 2, Quantity: 1},
	}, s.Items())
}
