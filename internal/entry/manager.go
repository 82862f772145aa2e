package entry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pos/internal/barcode"
	"github.com/noah-isme/backend-pos/internal/catalog"
	"github.com/noah-isme/backend-pos/internal/obs"
	"github.com/noah-isme/backend-pos/internal/pricing"
	"github.com/noah-isme/backend-pos/internal/suggest"
)

const defaultSessionTTL = 2 * time.Hour

// SettingsSource serves the entry configuration of the backend.
type SettingsSource interface {
	EntrySettings(ctx context.Context) (catalog.EntrySettings, error)
}

// ManagerConfig wires a Manager.
type ManagerConfig struct {
	Lookup   suggest.Lookup
	Prices   PriceSource
	Settings SettingsSource
	// Defaults apply when the backend configuration cannot be fetched.
	Defaults Settings
	TTL      time.Duration
	Logger   *zerolog.Logger
	Now      func() time.Time
}

// Manager keeps the open sessions of the process.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	lookup   suggest.Lookup
	prices   PriceSource
	settings SettingsSource
	defaults Settings
	ttl      time.Duration
	logger   *zerolog.Logger
	now      func() time.Time
}

// NewManager constructs a Manager.
func NewManager(cfg ManagerConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = &sessionNopLogger
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &Manager{
		sessions: make(map[string]*Session),
		lookup:   cfg.Lookup,
		prices:   cfg.Prices,
		settings: cfg.Settings,
		defaults: cfg.Defaults,
		ttl:      ttl,
		logger:   logger,
		now:      now,
	}
}

// Open starts a session for a document screen. The backend entry
// configuration is read once here and fixed for the session lifetime.
func (m *Manager) Open(ctx context.Context, docType DocumentType, selector pricing.Selector) (*Session, error) {
	policy, err := PolicyFor(docType, m.defaults.StrictStock)
	if err != nil {
		return nil, invalid("documentType", err)
	}
	settings := m.resolveSettings(ctx)

	id := uuid.NewString()
	session := NewSession(id, policy, selector, settings, Deps{
		Lookup: m.lookup,
		Prices: m.prices,
		Logger: m.logger,
		Now:    m.now,
	})

	m.mu.Lock()
	m.sessions[id] = session
	m.mu.Unlock()
	obs.SessionOpened()

	m.logger.Info().Str("session_id", id).Str("document", string(docType)).
		Str("barcode_mode", string(settings.BarcodeMode)).Msg("entry_session_opened")
	return session, nil
}

func (m *Manager) resolveSettings(ctx context.Context) Settings {
	settings := m.defaults
	if m.settings == nil {
		return settings
	}
	remote, err := m.settings.EntrySettings(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("entry_settings_fallback")
		return settings
	}
	if remote.BarcodeMode != "" {
		mode, err := barcode.ParseMode(remote.BarcodeMode)
		if err != nil {
			m.logger.Warn().Err(err).Msg("entry_settings_invalid_barcode_mode")
		} else {
			settings.BarcodeMode = mode
		}
	}
	settings.AutoFocusCode = remote.AutoFocusCode
	settings.AutoFocusQuantity = remote.AutoFocusQuantity
	return settings
}

// Get returns the session with id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	session, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Close discards the session with id.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	session, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	session.Close()
	obs.SessionClosed()
	return nil
}

// Sweep discards sessions idle for longer than the TTL and reports how many were removed.
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-m.ttl)
	var expired []*Session
	m.mu.Lock()
	for id, session := range m.sessions {
		if session.LastActive().Before(cutoff) {
			expired = append(expired, session)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()
	for _, session := range expired {
		session.Close()
		obs.SessionClosed()
	}
	if len(expired) > 0 {
		m.logger.Info().Int("count", len(expired)).Msg("entry_sessions_expired")
	}
	return len(expired)
}

// Run sweeps idle sessions until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.ttl / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Shutdown discards every open session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, session := range sessions {
		session.Close()
		obs.SessionClosed()
	}
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
