package entry_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pos/internal/catalog"
	"github.com/noah-isme/backend-pos/internal/suggest"
)

type stepTimer struct {
	f    func()
	done bool
}

func (t *stepTimer) Stop() bool {
	was := !t.done
	t.done = true
	return was
}

// stepScheduler holds callbacks until flush is called.
type stepScheduler struct {
	mu     sync.Mutex
	timers []*stepTimer
}

func (s *stepScheduler) AfterFunc(_ time.Duration, f func()) suggest.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &stepTimer{f: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *stepScheduler) flush() {
	s.mu.Lock()
	timers := s.timers
	s.timers = nil
	s.mu.Unlock()
	for _, t := range timers {
		if !t.done {
			t.done = true
			t.f()
		}
	}
}

func money(v string) decimal.Decimal { return decimal.RequireFromString(v) }

var (
	yerba = catalog.Product{
		ID: 1, Code: "7790", Description: "Yerba 1kg", Stock: 4, TaxRate: money("21"),
		Prices: map[catalog.PriceList]decimal.Decimal{
			catalog.ListCash: money("1500"),
			catalog.ListCard: money("1650"),
			catalog.ListCost: money("900"),
		},
	}
	sugar = catalog.Product{ID: 2, Code: "5501", Description: "Azucar 1kg", Stock: 10, TaxRate: money("10.5")}
	bag   = catalog.Product{ID: 3, Code: "0001", Description: "Bolsa", Stock: 100}
)

// fakeCatalog serves search results from products. The detail endpoint
// answers from prices, then the product's own lists, and reports live
// stock, which setStock can move away from what search returns.
type fakeCatalog struct {
	mu         sync.Mutex
	products   []catalog.Product
	prices     map[int64]map[catalog.PriceList]decimal.Decimal
	stock      map[int64]int
	failSearch bool
	failPrice  bool
	priceCalls int
	// priceHook runs before the detail endpoint answers, without f.mu held.
	priceHook func()
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		products: []catalog.Product{yerba, sugar, bag},
		stock:    map[int64]int{},
		prices: map[int64]map[catalog.PriceList]decimal.Decimal{
			sugar.ID: {catalog.ListCash: money("200"), catalog.ListCard: money("220")},
			bag.ID:   {catalog.ListCash: decimal.Zero},
		},
	}
}

func (f *fakeCatalog) Search(_ context.Context, query string) ([]catalog.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSearch {
		return nil, errors.New("catalog unavailable")
	}
	q := strings.ToLower(query)
	var out []catalog.Product
	for _, p := range f.products {
		if strings.Contains(strings.ToLower(p.Code), q) || strings.Contains(strings.ToLower(p.Description), q) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeCatalog) Price(_ context.Context, id int64, list catalog.PriceList) (catalog.PriceQuote, error) {
	f.mu.Lock()
	hook := f.priceHook
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.priceCalls++
	if f.failPrice {
		return catalog.PriceQuote{}, catalog.ErrUnavailable
	}
	for _, p := range f.products {
		if p.ID != id {
			continue
		}
		quote := catalog.PriceQuote{Stock: p.Stock}
		if live, ok := f.stock[id]; ok {
			quote.Stock = live
		}
		if lists, ok := f.prices[id]; ok {
			quote.UnitPrice = lists[list]
		} else {
			quote.UnitPrice, _ = p.Price(list)
		}
		return quote, nil
	}
	return catalog.PriceQuote{}, catalog.ErrNotFound
}

func (f *fakeCatalog) setStock(id int64, n int) {
	f.mu.Lock()
	f.stock[id] = n
	f.mu.Unlock()
}

func (f *fakeCatalog) setPriceHook(hook func()) {
	f.mu.Lock()
	f.priceHook = hook
	f.mu.Unlock()
}

func (f *fakeCatalog) setFailPrice(v bool) {
	f.mu.Lock()
	f.failPrice = v
	f.mu.Unlock()
}

func (f *fakeCatalog) setFailSearch(v bool) {
	f.mu.Lock()
	f.failSearch = v
	f.mu.Unlock()
}

type fakeSettings struct {
	mu       sync.Mutex
	settings catalog.EntrySettings
	err      error
	calls    int
}

func (f *fakeSettings) EntrySettings(context.Context) (catalog.EntrySettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.settings, f.err
}
