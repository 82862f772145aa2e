package search

import (
	"fmt"
	"strings"
	"sync"

	"github.com/noah-isme/backend-pos/internal/catalog"
	"github.com/noah-isme/backend-pos/internal/suggest"
)

// Channel identifies one of the two search inputs.
type Channel string

const (
	ChannelCode        Channel = "code"
	ChannelDescription Channel = "description"
)

// ParseChannel validates a channel name.
func ParseChannel(value string) (Channel, error) {
	switch c := Channel(strings.ToLower(strings.TrimSpace(value))); c {
	case ChannelCode, ChannelDescription:
		return c, nil
	default:
		return "", fmt.Errorf("unknown search channel %q", value)
	}
}

// SelectFunc is invoked once per resolved product.
type SelectFunc func(product catalog.Product, from Channel)

// KeyResult reports what a key press did on a channel.
type KeyResult struct {
	Effect   suggest.Effect
	Selected *catalog.Product
}

// Coordinator joins the code and description inputs behind one selection
// contract. Whichever channel resolves a product fills both inputs, clears
// both dropdowns and notifies the caller exactly once.
type Coordinator struct {
	mu       sync.Mutex
	code     *suggest.Source
	desc     *suggest.Source
	selected *catalog.Product
	onSelect SelectFunc
	// codeHasNext enables the empty-query Enter shortcut on the code input.
	codeHasNext bool
}

// Config wires the two sources of a Coordinator.
type Config struct {
	Code        *suggest.Source
	Description *suggest.Source
	OnSelect    SelectFunc
	CodeHasNext bool
}

// NewCoordinator constructs a Coordinator.
func NewCoordinator(cfg Config) *Coordinator {
	return &Coordinator{
		code:        cfg.Code,
		desc:        cfg.Description,
		onSelect:    cfg.OnSelect,
		codeHasNext: cfg.CodeHasNext,
	}
}

func (c *Coordinator) source(ch Channel) *suggest.Source {
	if ch == ChannelDescription {
		return c.desc
	}
	return c.code
}

// Input forwards typed text to the channel's source.
func (c *Coordinator) Input(ch Channel, text string) {
	c.source(ch).QueryChanged(text)
}

// Key forwards a navigation key. A commit resolves the product.
func (c *Coordinator) Key(ch Channel, key suggest.Key) KeyResult {
	hasNext := ch == ChannelCode && c.codeHasNext
	eff, picked := c.source(ch).Key(key, hasNext)
	if picked == nil {
		return KeyResult{Effect: eff}
	}
	c.Choose(*picked, ch)
	return KeyResult{Effect: eff, Selected: picked}
}

// Pick resolves the candidate at index of the channel's open dropdown.
func (c *Coordinator) Pick(ch Channel, index int) (catalog.Product, bool) {
	product, ok := c.source(ch).Pick(index)
	if !ok {
		return catalog.Product{}, false
	}
	c.Choose(product, ch)
	return product, true
}

// Choose applies the selection contract for product.
func (c *Coordinator) Choose(product catalog.Product, from Channel) {
	c.mu.Lock()
	c.code.Settle(product.Code)
	c.desc.Settle(product.Description)
	p := product
	c.selected = &p
	onSelect := c.onSelect
	c.mu.Unlock()
	if onSelect != nil {
		onSelect(product, from)
	}
}

// Blur schedules the channel's dropdown to close.
func (c *Coordinator) Blur(ch Channel) { c.source(ch).Blur() }

// Focus cancels a pending blur close on the channel.
func (c *Coordinator) Focus(ch Channel) { c.source(ch).Focus() }

// Selected returns the last resolved product, if any.
func (c *Coordinator) Selected() (catalog.Product, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selected == nil {
		return catalog.Product{}, false
	}
	return *c.selected, true
}

// State returns the suggestion state of a channel.
func (c *Coordinator) State(ch Channel) suggest.State { return c.source(ch).State() }

// Reset clears both inputs and the current selection.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.code.Settle("")
	c.desc.Settle("")
	c.selected = nil
}

// Stop cancels all pending work of both sources.
func (c *Coordinator) Stop() {
	c.code.Stop()
	c.desc.Stop()
}
