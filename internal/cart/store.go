package cart

import (
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pos/internal/catalog"
	"github.com/noah-isme/backend-pos/internal/pricing"
)

// ErrInvalidInput is returned when an add or edit carries an invalid value.
var ErrInvalidInput = errors.New("invalid input")

// ErrNotFound indicates the referenced line does not exist.
var ErrNotFound = errors.New("line item not found")

// MergePolicy decides which unit price survives when a product already in
// the cart is added again.
type MergePolicy int

const (
	// MergeKeepPrice keeps the price the line was created with. Changing it
	// requires an explicit SetUnitPrice.
	MergeKeepPrice MergePolicy = iota
	// MergeReplacePrice overwrites the line price with the newly supplied one.
	MergeReplacePrice
)

// LineItem is one row of an in-progress document.
type LineItem struct {
	ProductID   int64           `json:"productId"`
	Code        string          `json:"code"`
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	TaxRate     decimal.Decimal `json:"taxRate"`

	Product catalog.Product `json:"-"`
}

func (li *LineItem) recompute() {
	li.Subtotal = pricing.Subtotal(li.Quantity, li.UnitPrice)
}

// Store keeps the ordered line items of one document. At most one line
// exists per product id.
type Store struct {
	mu    sync.Mutex
	merge MergePolicy
	items []*LineItem
	index map[int64]int
}

// NewStore constructs an empty store using the given merge policy.
func NewStore(merge MergePolicy) *Store {
	return &Store{merge: merge, index: make(map[int64]int)}
}

// Add inserts a line for product or merges qty into the existing one.
func (s *Store) Add(product *catalog.Product, qty int, unitPrice decimal.Decimal) (LineItem, error) {
	if product == nil || product.ID == 0 {
		return LineItem{}, fmt.Errorf("product is required: %w", ErrInvalidInput)
	}
	if qty <= 0 {
		return LineItem{}, fmt.Errorf("qty must be positive: %w", ErrInvalidInput)
	}
	if unitPrice.IsNegative() {
		return LineItem{}, fmt.Errorf("unit price must not be negative: %w", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if pos, ok := s.index[product.ID]; ok {
		item := s.items[pos]
		item.Quantity += qty
		if s.merge == MergeReplacePrice {
			item.UnitPrice = unitPrice
		}
		item.recompute()
		return *item, nil
	}

	item := &LineItem{
		ProductID:   product.ID,
		Code:        product.Code,
		Description: product.Description,
		Quantity:    qty,
		UnitPrice:   unitPrice,
		TaxRate:     product.TaxRate,
		Product:     *product,
	}
	item.recompute()
	s.index[product.ID] = len(s.items)
	s.items = append(s.items, item)
	return *item, nil
}

// SetQuantity replaces the quantity of a line. Quantities below one are ignored.
func (s *Store) SetQuantity(productID int64, qty int) (LineItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.index[productID]
	if !ok {
		return LineItem{}, false
	}
	item := s.items[pos]
	if qty < 1 {
		return *item, false
	}
	item.Quantity = qty
	item.recompute()
	return *item, true
}

// SetUnitPrice is the explicit price edit of an existing line.
func (s *Store) SetUnitPrice(productID int64, price decimal.Decimal) (LineItem, error) {
	if price.IsNegative() {
		return LineItem{}, fmt.Errorf("unit price must not be negative: %w", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.index[productID]
	if !ok {
		return LineItem{}, ErrNotFound
	}
	item := s.items[pos]
	item.UnitPrice = price
	item.recompute()
	return *item, nil
}

// Remove deletes the line for productID. Removing an absent line is a no-op.
func (s *Store) Remove(productID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.index[productID]
	if !ok {
		return
	}
	s.items = append(s.items[:pos], s.items[pos+1:]...)
	delete(s.index, productID)
	for i := pos; i < len(s.items); i++ {
		s.index[s.items[i].ProductID] = i
	}
}

// Reprice replaces every unit price with the value returned by price and
// recomputes subtotals. Order and identities are preserved.
func (s *Store) Reprice(price func(LineItem) decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.items {
		item.UnitPrice = price(*item)
		item.recompute()
	}
}

// Items returns a copy of the lines in insertion order.
func (s *Store) Items() []LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LineItem, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, *item)
	}
	return out
}

// Quantity returns the quantity already committed for productID.
func (s *Store) Quantity(productID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pos, ok := s.index[productID]; ok {
		return s.items[pos].Quantity
	}
	return 0
}

// Len returns the number of lines.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Reset discards every line.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	s.index = make(map[int64]int)
}

// Totals derives net, tax and gross totals from the current lines.
func (s *Store) Totals() pricing.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines := make([]pricing.Line, 0, len(s.items))
	for _, item := range s.items {
		lines = append(lines, pricing.Line{Qty: item.Quantity, UnitPrice: item.UnitPrice, TaxRate: item.TaxRate})
	}
	return pricing.Summarize(lines)
}

// Total is the gross sum of all subtotals.
func (s *Store) Total() decimal.Decimal { return s.Totals().Gross }

// TotalNet is the sum of per-line net amounts.
func (s *Store) TotalNet() decimal.Decimal { return s.Totals().Net }

// TotalTax is the sum of per-line tax amounts.
func (s *Store) TotalTax() decimal.Decimal { return s.Totals().Tax }
