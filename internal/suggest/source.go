package suggest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pos/internal/catalog"
	"github.com/noah-isme/backend-pos/internal/obs"
)

var sourceNopLogger = zerolog.Nop()

// Lookup resolves a query fragment into candidate products.
type Lookup interface {
	Search(ctx context.Context, query string) ([]catalog.Product, error)
}

// LookupFunc adapts a function to Lookup.
type LookupFunc func(ctx context.Context, query string) ([]catalog.Product, error)

// Search calls f.
func (f LookupFunc) Search(ctx context.Context, query string) ([]catalog.Product, error) {
	return f(ctx, query)
}

// Timer is a cancelable scheduled callback.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type wallClock struct{}

func (wallClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// WallClock schedules callbacks with time.AfterFunc.
var WallClock Scheduler = wallClock{}

// Config tunes a Source.
type Config struct {
	Channel    string
	Debounce   time.Duration
	MinLength  int
	MaxResults int
	BlurGrace  time.Duration
	Scheduler  Scheduler
	Logger     *zerolog.Logger
	// OnChange receives a copy of the state after every change.
	OnChange func(State)
	// OnError receives lookup failures. Candidates keep their last state.
	OnError func(error)
}

// State is the observable suggestion state of one input.
type State struct {
	Query      string            `json:"query"`
	Candidates []catalog.Product `json:"candidates"`
	Open       bool              `json:"open"`
	Highlight  int               `json:"highlight"`
	Loading    bool              `json:"loading"`
	Error      string            `json:"error,omitempty"`
}

// Source debounces lookups for one input and keeps its dropdown state.
// A newer query always supersedes an older one: pending timers are stopped,
// in-flight lookups are canceled and late responses are dropped.
type Source struct {
	mu     sync.Mutex
	lookup Lookup
	cfg    Config
	state  State

	gen       uint64
	timer     Timer
	cancel    context.CancelFunc
	blurTimer Timer
	blurGen   uint64
	// blurred is set once the blur grace ran out. A lookup resolving
	// afterwards stores its candidates without opening the dropdown.
	blurred bool
}

// NewSource constructs a Source with defaults for unset configuration.
func NewSource(lookup Lookup, cfg Config) *Source {
	if cfg.Debounce <= 0 {
		cfg.Debounce = 250 * time.Millisecond
	}
	if cfg.MinLength < 1 {
		cfg.MinLength = 1
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 50
	}
	if cfg.BlurGrace <= 0 {
		cfg.BlurGrace = 200 * time.Millisecond
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = WallClock
	}
	if cfg.Logger == nil {
		cfg.Logger = &sourceNopLogger
	}
	if strings.TrimSpace(cfg.Channel) == "" {
		cfg.Channel = "default"
	}
	return &Source{lookup: lookup, cfg: cfg, state: State{Highlight: -1}}
}

// QueryChanged records a new input value and schedules a lookup.
func (s *Source) QueryChanged(text string) {
	s.mu.Lock()
	s.supersedeLocked()
	s.blurred = false
	if text != s.state.Query {
		// candidates of the previous text must not stay navigable
		s.clearLocked()
	}
	s.state.Query = text
	s.state.Error = ""
	query := strings.TrimSpace(text)
	if utf8.RuneCountInString(query) < s.cfg.MinLength {
		s.clearLocked()
		st := s.snapshotLocked()
		s.mu.Unlock()
		s.notify(st)
		return
	}
	gen := s.gen
	s.state.Loading = true
	s.timer = s.cfg.Scheduler.AfterFunc(s.cfg.Debounce, func() { s.fire(gen, query) })
	st := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(st)
}

func (s *Source) fire(gen uint64, query string) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.timer = nil
	s.cancel = cancel
	s.mu.Unlock()

	start := time.Now()
	results, err := s.lookup.Search(ctx, query)
	cancel()
	took := time.Since(start)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		obs.ObserveStale(s.cfg.Channel)
		s.cfg.Logger.Debug().Str("channel", s.cfg.Channel).Str("query", query).Msg("suggest_stale_response")
		return
	}
	s.cancel = nil
	s.state.Loading = false
	if err != nil {
		if errors.Is(err, context.Canceled) {
			s.mu.Unlock()
			return
		}
		s.state.Error = err.Error()
		st := s.snapshotLocked()
		s.mu.Unlock()
		obs.ObserveLookup(s.cfg.Channel, "error", took)
		s.cfg.Logger.Warn().Err(err).Str("channel", s.cfg.Channel).Str("query", query).Msg("suggest_lookup_failed")
		if s.cfg.OnError != nil {
			s.cfg.OnError(err)
		}
		s.notify(st)
		return
	}
	if len(results) > s.cfg.MaxResults {
		results = results[:s.cfg.MaxResults]
	}
	s.state.Candidates = results
	if len(results) > 0 && !s.blurred {
		s.state.Open = true
		s.state.Highlight = 0
	} else {
		s.state.Open = false
		s.state.Highlight = -1
	}
	st := s.snapshotLocked()
	s.mu.Unlock()
	result := "hit"
	if len(results) == 0 {
		result = "empty"
	}
	obs.ObserveLookup(s.cfg.Channel, result, took)
	s.notify(st)
}

// Key applies a navigation key. When the key commits a candidate the
// selected product is returned.
func (s *Source) Key(key Key, hasNext bool) (Effect, *catalog.Product) {
	s.mu.Lock()
	nav := NavState{
		Open:       s.state.Open,
		Highlight:  s.state.Highlight,
		Length:     len(s.state.Candidates),
		QueryEmpty: strings.TrimSpace(s.state.Query) == "",
	}
	next, eff := Navigate(nav, key, hasNext)
	s.state.Open = next.Open
	s.state.Highlight = next.Highlight
	var picked *catalog.Product
	if eff.Kind == EffectCommit {
		p := s.state.Candidates[eff.Index]
		picked = &p
	}
	st := s.snapshotLocked()
	s.mu.Unlock()
	if eff.Kind != EffectNone {
		s.notify(st)
	}
	return eff, picked
}

// Pick returns the candidate at index of an open dropdown, as a pointer click would.
func (s *Source) Pick(index int) (catalog.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.Open || index < 0 || index >= len(s.state.Candidates) {
		return catalog.Product{}, false
	}
	return s.state.Candidates[index], true
}

// Blur closes the dropdown after the grace delay so a pointer pick on a
// suggestion still lands.
func (s *Source) Blur() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopBlurLocked()
	gen := s.blurGen
	s.blurTimer = s.cfg.Scheduler.AfterFunc(s.cfg.BlurGrace, func() {
		s.mu.Lock()
		if gen != s.blurGen {
			s.mu.Unlock()
			return
		}
		s.blurred = true
		s.blurTimer = nil
		if !s.state.Open {
			s.mu.Unlock()
			return
		}
		s.state.Open = false
		s.state.Highlight = -1
		st := s.snapshotLocked()
		s.mu.Unlock()
		s.notify(st)
	})
}

// Focus cancels a pending blur close.
func (s *Source) Focus() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopBlurLocked()
	s.blurred = false
}

// Settle writes text without triggering a lookup and clears the dropdown.
// Used when a selection fills the field programmatically.
func (s *Source) Settle(text string) {
	s.mu.Lock()
	s.supersedeLocked()
	s.stopBlurLocked()
	s.state.Query = text
	s.state.Error = ""
	s.clearLocked()
	st := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(st)
}

// Stop cancels pending and in-flight work. Late responses are discarded.
func (s *Source) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.supersedeLocked()
	s.stopBlurLocked()
	s.state.Loading = false
}

// State returns a copy of the current state.
func (s *Source) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Channel returns the configured channel name.
func (s *Source) Channel() string { return s.cfg.Channel }

func (s *Source) supersedeLocked() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Source) stopBlurLocked() {
	s.blurGen++
	if s.blurTimer != nil {
		s.blurTimer.Stop()
		s.blurTimer = nil
	}
}

func (s *Source) clearLocked() {
	s.state.Candidates = nil
	s.state.Open = false
	s.state.Highlight = -1
	s.state.Loading = false
}

func (s *Source) snapshotLocked() State {
	st := s.state
	if s.state.Candidates != nil {
		st.Candidates = append([]catalog.Product(nil), s.state.Candidates...)
	}
	return st
}

func (s *Source) notify(st State) {
	if s.cfg.OnChange != nil {
		s.cfg.OnChange(st)
	}
}
