package stock

import (
	"errors"
	"fmt"

	"github.com/noah-isme/backend-pos/internal/catalog"
)

// ErrInsufficient is wrapped by ConflictError when a request exceeds availability.
var ErrInsufficient = errors.New("insufficient stock")

// Mode controls how strictly a document type treats overselling.
type Mode int

const (
	// NoCheck skips the guard entirely (quotes, incoming goods).
	NoCheck Mode = iota
	// Warn lets the user confirm an add that exceeds stock.
	Warn
	// Block refuses any add that exceeds stock.
	Block
)

func (m Mode) String() string {
	switch m {
	case NoCheck:
		return "none"
	case Warn:
		return "warn"
	case Block:
		return "block"
	default:
		return "unknown"
	}
}

// Outcome is the verdict of a stock check.
type Outcome int

const (
	Allow Outcome = iota
	WarnOverridable
	Blocked
)

func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case WarnOverridable:
		return "warn"
	case Blocked:
		return "block"
	default:
		return "unknown"
	}
}

// Decision carries the outcome with the figures that produced it.
type Decision struct {
	Outcome   Outcome `json:"-"`
	Available int     `json:"available"`
	Requested int     `json:"requested"`
	InCart    int     `json:"inCart"`
}

// Exceeds reports how many units the request goes over stock.
func (d Decision) Exceeds() int {
	over := d.InCart + d.Requested - d.Available
	if over < 0 {
		return 0
	}
	return over
}

// Guard checks requested quantities against product stock.
type Guard struct {
	Mode Mode
}

// Check decides whether requested more units may join the inCart already committed.
func (g Guard) Check(product catalog.Product, requested, inCart int) Decision {
	d := Decision{Outcome: Allow, Available: product.Stock, Requested: requested, InCart: inCart}
	if g.Mode == NoCheck {
		return d
	}
	if inCart+requested <= product.Stock {
		return d
	}
	if g.Mode == Block {
		d.Outcome = Blocked
		return d
	}
	d.Outcome = WarnOverridable
	return d
}

// ConflictError reports a stock decision that did not allow the add.
type ConflictError struct {
	ProductID int64
	Code      string
	Decision  Decision
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("product %s: requested %d with %d in cart, %d available: %s",
		e.Code, e.Decision.Requested, e.Decision.InCart, e.Decision.Available, ErrInsufficient)
}

// Unwrap exposes ErrInsufficient to errors.Is.
func (e *ConflictError) Unwrap() error { return ErrInsufficient }

// Overridable reports whether the user may confirm the add anyway.
func (e *ConflictError) Overridable() bool { return e.Decision.Outcome == WarnOverridable }
