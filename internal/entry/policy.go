package entry

import (
	"fmt"
	"strings"

	"github.com/noah-isme/backend-pos/internal/cart"
	"github.com/noah-isme/backend-pos/internal/pricing"
	"github.com/noah-isme/backend-pos/internal/stock"
)

// DocumentType names the transaction screen a session belongs to.
type DocumentType string

const (
	Sale         DocumentType = "sale"
	Purchase     DocumentType = "purchase"
	Quote        DocumentType = "quote"
	CreditNote   DocumentType = "credit_note"
	DebitNote    DocumentType = "debit_note"
	DeliveryNote DocumentType = "delivery_note"
)

// ParseDocumentType validates a raw document type.
func ParseDocumentType(value string) (DocumentType, error) {
	switch t := DocumentType(strings.ToLower(strings.TrimSpace(value))); t {
	case Sale, Purchase, Quote, CreditNote, DebitNote, DeliveryNote:
		return t, nil
	default:
		return "", fmt.Errorf("unknown document type %q", value)
	}
}

// Policy holds the per-document rules of the entry engine.
type Policy struct {
	Type         DocumentType
	Prices       pricing.Policy
	Stock        stock.Mode
	Merge        cart.MergePolicy
	RequirePrice bool
}

// PolicyFor returns the built-in policy of t. strictStock turns the
// overridable stock warning of outgoing documents into a hard block.
func PolicyFor(t DocumentType, strictStock bool) (Policy, error) {
	outgoing := stock.Warn
	if strictStock {
		outgoing = stock.Block
	}
	p := Policy{
		Type:         t,
		Prices:       pricing.SalePolicy(),
		Stock:        stock.NoCheck,
		Merge:        cart.MergeKeepPrice,
		RequirePrice: true,
	}
	switch t {
	case Sale:
		p.Stock = outgoing
	case DeliveryNote:
		p.Stock = outgoing
		p.RequirePrice = false
	case Purchase:
		p.Prices = pricing.CostPolicy()
	case Quote, CreditNote, DebitNote:
	default:
		return Policy{}, fmt.Errorf("unknown document type %q", t)
	}
	return p, nil
}
