// Package cart holds the till's client-local cart together with its cached copy
// of the catalog. State values are immutable: every transition returns a new
// State and leaves the receiver untouched.
package cart

import (
	"errors"
	"fmt"
	"sort"

	"till-service/internal/models"

	"github.com/shopspring/decimal"
)

var ErrUnknownProduct = errors.New("product not in catalog")

// State is the cart plus the catalog stock it was built against.
type State struct {
	products []models.Product
	index    map[int64]int
	lines    map[int64]models.CartLine
}

// New returns an empty cart over the given catalog.
func New(products []models.Product) State {
	return State{}.WithCatalog(products)
}

// WithCatalog replaces the cached catalog and keeps the cart lines as they are.
func (s State) WithCatalog(products []models.Product) State {
	next := State{
		products: append([]models.Product(nil), products...),
		index:    make(map[int64]int, len(products)),
		lines:    s.lines,
	}
	for i, p := range next.products {
		next.index[p.ID] = i
	}
	return next
}

// WithLines replaces the cart lines, used when restoring a persisted snapshot.
// Lines with a non-positive quantity are dropped; duplicates collapse onto the
// last one seen.
func (s State) WithLines(lines []models.CartLine) State {
	next := s
	next.lines = make(map[int64]models.CartLine, len(lines))
	for _, l := range lines {
		if l.Quantity < 1 {
			continue
		}
		next.lines[l.ProductID] = l
	}
	return next
}

// ApplyAdd records one confirmed unit of productID and sets the cached stock to
// the quantity the server reported. Both effects land in the returned State or,
// on error, neither does.
func (s State) ApplyAdd(productID int64, remaining int) (State, error) {
	i, ok := s.index[productID]
	if !ok {
		return s, fmt.Errorf("%w: %d", ErrUnknownProduct, productID)
	}
	if remaining < 0 {
		return s, fmt.Errorf("negative remaining quantity %d for product %d", remaining, productID)
	}

	product := s.products[i]

	lines := make(map[int64]models.CartLine, len(s.lines)+1)
	for id, l := range s.lines {
		lines[id] = l
	}
	line, ok := lines[productID]
	if !ok {
		line = models.CartLine{
			ProductID: product.ID,
			Name:      product.Name,
			UnitPrice: product.Price,
		}
	}
	line.Quantity++
	lines[productID] = line

	products := append([]models.Product(nil), s.products...)
	products[i].Quantity = remaining

	return State{products: products, index: s.index, lines: lines}, nil
}

// Clear empties the cart and keeps the catalog.
func (s State) Clear() State {
	return State{products: s.products, index: s.index}
}

// Total sums unit price times quantity over all lines at full precision.
func (s State) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range s.lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

func (s State) IsEmpty() bool {
	return len(s.lines) == 0
}

// Lines returns the cart lines ordered by product id.
func (s State) Lines() []models.CartLine {
	out := make([]models.CartLine, 0, len(s.lines))
	for _, l := range s.lines {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

// Line returns the cart line for productID, if any.
func (s State) Line(productID int64) (models.CartLine, bool) {
	l, ok := s.lines[productID]
	return l, ok
}

// Items returns the lines in the shape the checkout endpoint expects.
func (s State) Items() []models.CheckoutItem {
	lines := s.Lines()
	items := make([]models.CheckoutItem, len(lines))
	for i, l := range lines {
		items[i] = models.CheckoutItem{ProductID: l.ProductID, Quantity: l.Quantity}
	}
	return items
}

// Products returns a copy of the cached catalog in backend order.
func (s State) Products() []models.Product {
	return append([]models.Product(nil), s.products...)
}

// Product looks up a cached catalog entry.
func (s State) Product(id int64) (models.Product, bool) {
	i, ok := s.index[id]
	if !ok {
		return models.Product{}, false
	}
	return s.products[i], true
}
