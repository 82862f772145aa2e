package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pos/internal/catalog"
)

// Selector is the payment method / price list chosen for an open document.
type Selector string

const (
	Cash     Selector = "CASH"
	Card     Selector = "CARD"
	Account  Selector = "ACCOUNT"
	Transfer Selector = "TRANSFER"
	Check    Selector = "CHECK"
)

// ParseSelector normalises a raw selector value.
func ParseSelector(value string) (Selector, error) {
	switch s := Selector(strings.ToUpper(strings.TrimSpace(value))); s {
	case Cash, Card, Account, Transfer, Check:
		return s, nil
	case "":
		return Cash, nil
	default:
		return "", fmt.Errorf("unknown price selector %q", value)
	}
}

// Policy maps selectors to the product price list that applies.
type Policy struct {
	Routes   map[Selector]catalog.PriceList
	Fallback catalog.PriceList
}

// SalePolicy prices card payments from the card list and everything else from cash.
func SalePolicy() Policy {
	return Policy{
		Routes:   map[Selector]catalog.PriceList{Card: catalog.ListCard},
		Fallback: catalog.ListCash,
	}
}

// CostPolicy always prices from the cost list, whatever the selector.
func CostPolicy() Policy {
	return Policy{Fallback: catalog.ListCost}
}

// List returns the price list used for sel.
func (p Policy) List(sel Selector) catalog.PriceList {
	if list, ok := p.Routes[sel]; ok {
		return list
	}
	if p.Fallback == "" {
		return catalog.ListCash
	}
	return p.Fallback
}

// Resolve returns the unit price of product under sel. It reports false when
// the product does not carry a usable price for that list, in which case the
// caller should ask the price endpoint.
func (p Policy) Resolve(product catalog.Product, sel Selector) (Money, bool) {
	price, ok := product.Price(p.List(sel))
	if !ok {
		return decimal.Zero, false
	}
	return price, true
}
