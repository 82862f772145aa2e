package entry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pos/internal/barcode"
	"github.com/noah-isme/backend-pos/internal/cart"
	"github.com/noah-isme/backend-pos/internal/catalog"
	"github.com/noah-isme/backend-pos/internal/obs"
	"github.com/noah-isme/backend-pos/internal/pricing"
	"github.com/noah-isme/backend-pos/internal/search"
	"github.com/noah-isme/backend-pos/internal/stock"
	"github.com/noah-isme/backend-pos/internal/suggest"
)

var sessionNopLogger = zerolog.Nop()

// PriceSource answers the price-by-list endpoint.
type PriceSource interface {
	Price(ctx context.Context, productID int64, list catalog.PriceList) (catalog.PriceQuote, error)
}

// Settings is the configuration a session is constructed with. It does not
// change for the lifetime of the session.
type Settings struct {
	BarcodeMode          barcode.Mode
	AutoFocusCode        bool
	AutoFocusQuantity    bool
	StrictStock          bool
	Debounce             time.Duration
	BlurGrace            time.Duration
	CodeMinLength        int
	DescriptionMinLength int
	MaxSuggestions       int
	PriceTimeout         time.Duration
	Scheduler            suggest.Scheduler
}

// Deps are the collaborators of a session.
type Deps struct {
	Lookup suggest.Lookup
	Prices PriceSource
	Logger *zerolog.Logger
	Now    func() time.Time
}

// Pending is an addition waiting for the user to override a stock warning.
type Pending struct {
	Product   catalog.Product
	Quantity  int
	UnitPrice decimal.Decimal
	Decision  stock.Decision
}

// Session is the line item entry state of one open document screen.
type Session struct {
	mu       sync.Mutex
	id       string
	policy   Policy
	settings Settings
	mode     barcode.Controller
	guard    stock.Guard
	search   *search.Coordinator
	cart     *cart.Store
	prices   PriceSource
	logger   *zerolog.Logger
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	selector    pricing.Selector
	current     *catalog.Product
	quantity    int
	price       decimal.Decimal
	priceManual bool
	focus       barcode.Field
	selectAll   bool
	pending     *Pending
	notice      string

	lastActive atomic.Int64
}

// NewSession builds a session for policy.
func NewSession(id string, policy Policy, selector pricing.Selector, settings Settings, deps Deps) *Session {
	if settings.PriceTimeout <= 0 {
		settings.PriceTimeout = 3 * time.Second
	}
	if settings.DescriptionMinLength <= 0 {
		settings.DescriptionMinLength = 2
	}
	logger := deps.Logger
	if logger == nil {
		logger = &sessionNopLogger
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	if selector == "" {
		selector = pricing.Cash
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:       id,
		policy:   policy,
		settings: settings,
		mode:     barcode.NewController(settings.BarcodeMode),
		guard:    stock.Guard{Mode: policy.Stock},
		cart:     cart.NewStore(policy.Merge),
		prices:   deps.Prices,
		logger:   logger,
		now:      now,
		ctx:      ctx,
		cancel:   cancel,
		selector: selector,
		quantity: 1,
		price:    decimal.Zero,
	}
	if settings.AutoFocusCode {
		s.focus = barcode.FieldCode
	}
	onError := func(error) {
		s.mu.Lock()
		s.notice = "product search unavailable, keep typing to retry"
		s.mu.Unlock()
	}
	code := suggest.NewSource(deps.Lookup, suggest.Config{
		Channel:    string(search.ChannelCode),
		Debounce:   settings.Debounce,
		MinLength:  settings.CodeMinLength,
		MaxResults: settings.MaxSuggestions,
		BlurGrace:  settings.BlurGrace,
		Scheduler:  settings.Scheduler,
		Logger:     logger,
		OnError:    onError,
	})
	desc := suggest.NewSource(deps.Lookup, suggest.Config{
		Channel:    string(search.ChannelDescription),
		Debounce:   settings.Debounce,
		MinLength:  settings.DescriptionMinLength,
		MaxResults: settings.MaxSuggestions,
		BlurGrace:  settings.BlurGrace,
		Scheduler:  settings.Scheduler,
		Logger:     logger,
		OnError:    onError,
	})
	s.search = search.NewCoordinator(search.Config{
		Code:        code,
		Description: desc,
		OnSelect:    s.selected,
		CodeHasNext: true,
	})
	s.touch()
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Policy returns the document policy.
func (s *Session) Policy() Policy { return s.policy }

// LastActive returns the time of the last event handled by the session.
func (s *Session) LastActive() time.Time { return time.Unix(0, s.lastActive.Load()) }

func (s *Session) touch() { s.lastActive.Store(s.now().UnixNano()) }

// Input forwards typed text of a search channel.
func (s *Session) Input(ch search.Channel, text string) {
	s.touch()
	s.mu.Lock()
	s.notice = ""
	s.mu.Unlock()
	s.search.Input(ch, text)
}

// Key forwards a navigation key of a search channel.
func (s *Session) Key(ch search.Channel, key suggest.Key) suggest.Effect {
	s.touch()
	res := s.search.Key(ch, key)
	if res.Effect.Kind == suggest.EffectFocusNext {
		s.mu.Lock()
		s.focus = barcode.FieldDescription
		s.selectAll = false
		s.mu.Unlock()
	}
	return res.Effect
}

// Pick resolves the suggestion at index, as a pointer click would.
func (s *Session) Pick(ch search.Channel, index int) (catalog.Product, bool) {
	s.touch()
	return s.search.Pick(ch, index)
}

// Blur schedules the channel's dropdown to close.
func (s *Session) Blur(ch search.Channel) {
	s.touch()
	s.search.Blur(ch)
}

// Focus records that the channel input gained focus.
func (s *Session) Focus(ch search.Channel) {
	s.touch()
	s.search.Focus(ch)
	s.mu.Lock()
	s.focus = barcode.Field(ch)
	s.selectAll = false
	s.mu.Unlock()
}

// selected is the coordinator callback: a product was resolved by one of the channels.
// The detail lookup runs without s.mu so the session keeps answering meanwhile.
func (s *Session) selected(product catalog.Product, from search.Channel) {
	cur := &product
	s.mu.Lock()
	s.current = cur
	s.quantity = 1
	s.price = decimal.Zero
	s.priceManual = false
	s.notice = ""
	sel := s.selector
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(s.ctx, s.settings.PriceTimeout)
	quote, err := s.resolve(ctx, product, sel)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != cur {
		// added, reset or replaced while the lookup ran
		return
	}
	cur.Stock = quote.Stock
	if err != nil {
		s.notice = "price lookup failed, enter the price manually"
		s.logger.Warn().Err(err).Str("session_id", s.id).Int64("product_id", product.ID).Msg("entry_price_lookup_failed")
	}
	// a selector change during the lookup already repriced the entry
	if !s.priceManual && s.selector == sel {
		s.price = quote.UnitPrice
	}
	price := s.price

	action := s.mode.Resolved(barcode.Field(from), price.IsPositive())
	if action.Kind == barcode.AddNow {
		if _, err := s.addLocked(*cur, 1, price); err != nil {
			var conflict *stock.ConflictError
			if !errors.As(err, &conflict) {
				s.notice = err.Error()
			}
		}
		return
	}
	if action.Kind == barcode.Populate && s.settings.AutoFocusQuantity {
		action.Focus = barcode.FieldQuantity
	}
	if action.Focus != "" {
		s.focus = action.Focus
		s.selectAll = action.SelectAll
	}
}

// resolve returns the unit price under sel and the live stock of product.
// The detail endpoint is authoritative for both; search data, which may come
// from the cache, only fills in when the endpoint is unavailable and the
// product carries the price itself.
func (s *Session) resolve(ctx context.Context, product catalog.Product, sel pricing.Selector) (catalog.PriceQuote, error) {
	fallback, priced := s.policy.Prices.Resolve(product, sel)
	out := catalog.PriceQuote{UnitPrice: fallback, Stock: product.Stock}
	if s.prices == nil {
		return out, nil
	}
	quote, err := s.prices.Price(ctx, product.ID, s.policy.Prices.List(sel))
	if err != nil {
		if priced {
			s.logger.Warn().Err(err).Str("session_id", s.id).Int64("product_id", product.ID).Msg("entry_detail_lookup_fallback")
			return out, nil
		}
		return catalog.PriceQuote{UnitPrice: decimal.Zero, Stock: product.Stock},
			fmt.Errorf("%w: product %d: %w", ErrPriceUnavailable, product.ID, err)
	}
	out.Stock = quote.Stock
	if quote.UnitPrice.IsPositive() {
		out.UnitPrice = quote.UnitPrice
	}
	return out, nil
}

// resolvePrice is resolve without the stock.
func (s *Session) resolvePrice(ctx context.Context, product catalog.Product, sel pricing.Selector) (decimal.Decimal, error) {
	quote, err := s.resolve(ctx, product, sel)
	return quote.UnitPrice, err
}

// SetQuantityInput records the quantity field.
func (s *Session) SetQuantityInput(qty int) error {
	s.touch()
	if qty < 1 {
		return invalid(string(barcode.FieldQuantity), fmt.Errorf("quantity must be at least 1: %w", cart.ErrInvalidInput))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quantity = qty
	return nil
}

// SetPriceInput records a manually entered unit price.
func (s *Session) SetPriceInput(price decimal.Decimal) error {
	s.touch()
	if price.IsNegative() {
		return invalid(string(barcode.FieldPrice), fmt.Errorf("price must not be negative: %w", cart.ErrInvalidInput))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.price = price
	s.priceManual = true
	return nil
}

// Add commits the entry fields to the cart. A stock warning leaves the
// addition pending and returns a *stock.ConflictError.
func (s *Session) Add(ctx context.Context) (cart.LineItem, error) {
	s.touch()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return cart.LineItem{}, invalid(string(barcode.FieldCode), ErrProductRequired)
	}
	if s.quantity < 1 {
		return cart.LineItem{}, invalid(string(barcode.FieldQuantity), cart.ErrInvalidInput)
	}
	price := s.price
	if !s.priceManual && !price.IsPositive() {
		quote, err := s.resolve(ctx, *s.current, s.selector)
		if err != nil {
			return cart.LineItem{}, err
		}
		price = quote.UnitPrice
		s.price = quote.UnitPrice
		s.current.Stock = quote.Stock
	}
	return s.addLocked(*s.current, s.quantity, price)
}

func (s *Session) addLocked(product catalog.Product, qty int, price decimal.Decimal) (cart.LineItem, error) {
	doc := string(s.policy.Type)
	if s.policy.RequirePrice && !price.IsPositive() {
		s.focus = barcode.FieldPrice
		s.selectAll = true
		return cart.LineItem{}, invalid(string(barcode.FieldPrice), ErrPriceRequired)
	}
	decision := s.guard.Check(product, qty, s.cart.Quantity(product.ID))
	obs.ObserveStockDecision(doc, decision.Outcome.String())
	if decision.Outcome != stock.Allow {
		conflict := &stock.ConflictError{ProductID: product.ID, Code: product.Code, Decision: decision}
		if decision.Outcome == stock.WarnOverridable {
			s.pending = &Pending{Product: product, Quantity: qty, UnitPrice: price, Decision: decision}
		}
		s.logger.Info().Str("session_id", s.id).Str("document", doc).Int64("product_id", product.ID).
			Str("outcome", decision.Outcome.String()).Int("exceeds", decision.Exceeds()).Msg("stock_conflict")
		return cart.LineItem{}, conflict
	}
	item, err := s.cart.Add(&product, qty, price)
	if err != nil {
		return cart.LineItem{}, invalid(string(barcode.FieldQuantity), err)
	}
	obs.ObserveCartMutation(doc, "add")
	s.clearEntryLocked()
	return item, nil
}

// ConfirmPending performs the addition the user chose to keep despite the stock warning.
func (s *Session) ConfirmPending() (cart.LineItem, error) {
	s.touch()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return cart.LineItem{}, ErrNoPending
	}
	p := s.pending
	s.pending = nil
	item, err := s.cart.Add(&p.Product, p.Quantity, p.UnitPrice)
	if err != nil {
		return cart.LineItem{}, invalid(string(barcode.FieldQuantity), err)
	}
	obs.ObserveCartMutation(string(s.policy.Type), "add_override")
	s.clearEntryLocked()
	return item, nil
}

// DeclinePending drops the pending addition and leaves the entry fields as they were.
func (s *Session) DeclinePending() error {
	s.touch()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return ErrNoPending
	}
	s.pending = nil
	s.focus = barcode.FieldQuantity
	s.selectAll = true
	return nil
}

// UpdateQuantity edits the quantity of an existing line. Quantities below one are ignored.
func (s *Session) UpdateQuantity(productID int64, qty int) (cart.LineItem, error) {
	s.touch()
	s.mu.Lock()
	defer s.mu.Unlock()
	item, changed := s.cart.SetQuantity(productID, qty)
	if item.ProductID == 0 {
		return cart.LineItem{}, cart.ErrNotFound
	}
	if changed {
		obs.ObserveCartMutation(string(s.policy.Type), "set_quantity")
	}
	return item, nil
}

// UpdatePrice is the explicit price edit of an existing line.
func (s *Session) UpdatePrice(productID int64, price decimal.Decimal) (cart.LineItem, error) {
	s.touch()
	s.mu.Lock()
	defer s.mu.Unlock()
	item, err := s.cart.SetUnitPrice(productID, price)
	if err != nil {
		if errors.Is(err, cart.ErrInvalidInput) {
			return cart.LineItem{}, invalid("unitPrice", err)
		}
		return cart.LineItem{}, err
	}
	obs.ObserveCartMutation(string(s.policy.Type), "set_price")
	return item, nil
}

// Remove deletes a line. Removing an absent line is a no-op.
func (s *Session) Remove(productID int64) {
	s.touch()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cart.Remove(productID)
	obs.ObserveCartMutation(string(s.policy.Type), "remove")
}

// SetSelector switches the price selector and re-derives every line price.
// All prices are resolved before any line changes, so a failed lookup
// leaves the cart and the selector untouched.
func (s *Session) SetSelector(ctx context.Context, sel pricing.Selector) error {
	s.touch()
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.cart.Items()
	prices := make(map[int64]decimal.Decimal, len(items))
	for _, it := range items {
		price, err := s.resolvePrice(ctx, it.Product, sel)
		if err != nil {
			s.repriceFailedLocked(sel, err)
			return err
		}
		prices[it.ProductID] = price
	}
	var pendingPrice, currentPrice decimal.Decimal
	if s.pending != nil {
		price, err := s.resolvePrice(ctx, s.pending.Product, sel)
		if err != nil {
			s.repriceFailedLocked(sel, err)
			return err
		}
		pendingPrice = price
	}
	if s.current != nil && !s.priceManual {
		price, err := s.resolvePrice(ctx, *s.current, sel)
		if err != nil {
			s.repriceFailedLocked(sel, err)
			return err
		}
		currentPrice = price
	}

	s.cart.Reprice(func(li cart.LineItem) decimal.Decimal { return prices[li.ProductID] })
	if s.pending != nil {
		s.pending.UnitPrice = pendingPrice
	}
	if s.current != nil && !s.priceManual {
		s.price = currentPrice
	}
	s.selector = sel
	obs.ObserveCartMutation(string(s.policy.Type), "reprice")
	return nil
}

func (s *Session) repriceFailedLocked(sel pricing.Selector, err error) {
	s.notice = "price lookup failed, payment method not changed"
	s.logger.Warn().Err(err).Str("session_id", s.id).Str("selector", string(sel)).Msg("entry_reprice_failed")
}

// Selector returns the active price selector.
func (s *Session) Selector() pricing.Selector {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selector
}

// Items returns the current lines.
func (s *Session) Items() []cart.LineItem { return s.cart.Items() }

// Reset discards the cart and the entry fields.
func (s *Session) Reset() {
	s.touch()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cart.Reset()
	s.pending = nil
	s.notice = ""
	s.clearEntryLocked()
	obs.ObserveCartMutation(string(s.policy.Type), "reset")
}

// Close cancels every pending timer and lookup of the session.
func (s *Session) Close() {
	s.cancel()
	s.search.Stop()
}

func (s *Session) clearEntryLocked() {
	s.search.Reset()
	s.current = nil
	s.quantity = 1
	s.price = decimal.Zero
	s.priceManual = false
	s.focus = barcode.FieldCode
	s.selectAll = false
}
