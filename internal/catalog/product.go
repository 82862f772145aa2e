package catalog

import (
	"github.com/shopspring/decimal"
)

// PriceList names one of the price columns carried by a product.
type PriceList string

const (
	ListCash    PriceList = "cash"
	ListCard    PriceList = "card"
	ListAccount PriceList = "account"
	ListCost    PriceList = "cost"
)

// Product is the read-only view of a catalog item returned by the lookup backend.
type Product struct {
	ID          int64                         `json:"id"`
	Code        string                        `json:"code"`
	Description string                        `json:"description"`
	Stock       int                           `json:"stock"`
	Prices      map[PriceList]decimal.Decimal `json:"prices"`
	TaxRate     decimal.Decimal               `json:"taxRate"`
}

// Price returns the price stored for list. Missing and non-positive prices report false.
func (p Product) Price(list PriceList) (decimal.Decimal, bool) {
	if p.Prices == nil {
		return decimal.Zero, false
	}
	price, ok := p.Prices[list]
	if !ok || !price.IsPositive() {
		return decimal.Zero, false
	}
	return price, true
}

// PriceQuote is the answer of the price-by-list endpoint.
type PriceQuote struct {
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Stock     int             `json:"stock"`
}

// EntrySettings is the per-screen configuration served by the backend.
type EntrySettings struct {
	BarcodeMode       string `json:"barcodeMode"`
	AutoFocusCode     bool   `json:"autoFocusCode"`
	AutoFocusQuantity bool   `json:"autoFocusQuantity"`
}
