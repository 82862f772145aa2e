package barcode

import (
	"fmt"
	"strings"
)

// Mode is the barcode entry behaviour configured for a session.
type Mode string

const (
	Default  Mode = "DEFAULT"
	Cantidad Mode = "CANTIDAD"
	Directo  Mode = "DIRECTO"
)

// ParseMode normalises a configured mode. An empty value means Default.
func ParseMode(value string) (Mode, error) {
	switch m := Mode(strings.ToUpper(strings.TrimSpace(value))); m {
	case "":
		return Default, nil
	case Default, Cantidad, Directo:
		return m, nil
	default:
		return "", fmt.Errorf("unknown barcode mode %q", value)
	}
}

// Field names an input of the entry form.
type Field string

const (
	FieldCode        Field = "code"
	FieldDescription Field = "description"
	FieldQuantity    Field = "quantity"
	FieldPrice       Field = "price"
)

// ActionKind tells the session what to do after a product is resolved.
type ActionKind int

const (
	// Populate only fills the product fields.
	Populate ActionKind = iota
	// FocusQuantity moves focus to the quantity input and selects its content.
	FocusQuantity
	// AddNow adds one unit immediately and refocuses the code input.
	AddNow
	// FocusPrice asks for a manual price because none could be resolved.
	FocusPrice
)

// Action is the controller's verdict. An empty Focus leaves focus where it is.
type Action struct {
	Kind      ActionKind
	Focus     Field
	SelectAll bool
}

// Controller applies a fixed Mode for the lifetime of one session.
type Controller struct {
	mode Mode
}

// NewController returns a controller for mode. Unknown modes behave as Default.
func NewController(mode Mode) Controller {
	switch mode {
	case Cantidad, Directo:
		return Controller{mode: mode}
	default:
		return Controller{mode: Default}
	}
}

// Mode returns the configured mode.
func (c Controller) Mode() Mode { return c.mode }

// Resolved decides the follow-up for a product resolved from field.
// priced reports whether a positive unit price is known.
func (c Controller) Resolved(field Field, priced bool) Action {
	if field != FieldCode {
		return Action{Kind: FocusQuantity, Focus: FieldQuantity, SelectAll: true}
	}
	switch c.mode {
	case Cantidad:
		return Action{Kind: FocusQuantity, Focus: FieldQuantity, SelectAll: true}
	case Directo:
		if !priced {
			return Action{Kind: FocusPrice, Focus: FieldPrice, SelectAll: true}
		}
		return Action{Kind: AddNow, Focus: FieldCode}
	default:
		return Action{Kind: Populate}
	}
}
