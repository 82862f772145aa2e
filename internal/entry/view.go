package entry

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pos/internal/cart"
	"github.com/noah-isme/backend-pos/internal/pricing"
	"github.com/noah-isme/backend-pos/internal/search"
	"github.com/noah-isme/backend-pos/internal/suggest"
)

// Fields mirrors the entry form inputs.
type Fields struct {
	Code        string          `json:"code"`
	Description string          `json:"description"`
	ProductID   int64           `json:"productId,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	PriceManual bool            `json:"priceManual"`
}

// PendingView describes an addition waiting for a stock override.
type PendingView struct {
	ProductID   int64           `json:"productId"`
	Code        string          `json:"code"`
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Available   int             `json:"available"`
	InCart      int             `json:"inCart"`
	Exceeds     int             `json:"exceeds"`
}

// View is everything the view layer needs to render the entry screen.
type View struct {
	ID           string                   `json:"id"`
	DocumentType DocumentType             `json:"documentType"`
	Selector     pricing.Selector         `json:"selector"`
	BarcodeMode  string                   `json:"barcodeMode"`
	Fields       Fields                   `json:"fields"`
	Focus        string                   `json:"focus,omitempty"`
	SelectAll    bool                     `json:"selectAll"`
	Suggestions  map[string]suggest.State `json:"suggestions"`
	Items        []cart.LineItem          `json:"items"`
	Totals       pricing.Summary          `json:"totals"`
	Pending      *PendingView             `json:"pending,omitempty"`
	Notice       string                   `json:"notice,omitempty"`
}

// Payload is the save request body handed to the document backend.
type Payload struct {
	DocumentType DocumentType     `json:"documentType"`
	Selector     pricing.Selector `json:"selector"`
	Items        []cart.LineItem  `json:"items"`
	Totals       pricing.Summary  `json:"totals"`
}

// Snapshot returns a consistent copy of the session state.
func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	code := s.search.State(search.ChannelCode)
	desc := s.search.State(search.ChannelDescription)
	v := View{
		ID:           s.id,
		DocumentType: s.policy.Type,
		Selector:     s.selector,
		BarcodeMode:  string(s.mode.Mode()),
		Fields: Fields{
			Code:        code.Query,
			Description: desc.Query,
			Quantity:    s.quantity,
			UnitPrice:   s.price,
			PriceManual: s.priceManual,
		},
		Focus:     string(s.focus),
		SelectAll: s.selectAll,
		Suggestions: map[string]suggest.State{
			string(search.ChannelCode):        code,
			string(search.ChannelDescription): desc,
		},
		Items:  s.cart.Items(),
		Totals: s.cart.Totals(),
		Notice: s.notice,
	}
	if s.current != nil {
		v.Fields.ProductID = s.current.ID
	}
	if p := s.pending; p != nil {
		v.Pending = &PendingView{
			ProductID:   p.Product.ID,
			Code:        p.Product.Code,
			Description: p.Product.Description,
			Quantity:    p.Quantity,
			UnitPrice:   p.UnitPrice,
			Available:   p.Decision.Available,
			InCart:      p.Decision.InCart,
			Exceeds:     p.Decision.Exceeds(),
		}
	}
	return v
}

// Payload builds the save body. An empty cart yields ErrEmptyDocument.
func (s *Session) Payload() (Payload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cart.Len() == 0 {
		return Payload{}, ErrEmptyDocument
	}
	return Payload{
		DocumentType: s.policy.Type,
		Selector:     s.selector,
		Items:        s.cart.Items(),
		Totals:       s.cart.Totals(),
	}, nil
}
