package entry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pos/internal/barcode"
	"github.com/noah-isme/backend-pos/internal/catalog"
	"github.com/noah-isme/backend-pos/internal/entry"
	"github.com/noah-isme/backend-pos/internal/pricing"
	"github.com/noah-isme/backend-pos/internal/search"
	"github.com/noah-isme/backend-pos/internal/suggest"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newManager(t *testing.T, settings entry.SettingsSource, clk *clock) *entry.Manager {
	t.Helper()
	cat := newFakeCatalog()
	m := entry.NewManager(entry.ManagerConfig{
		Lookup:   cat,
		Prices:   cat,
		Settings: settings,
		Defaults: entry.Settings{BarcodeMode: barcode.Default, AutoFocusCode: true, Scheduler: &stepScheduler{}},
		TTL:      time.Hour,
		Now:      clk.Now,
	})
	t.Cleanup(m.Shutdown)
	return m
}

func TestManagerReadsSettingsOncePerSession(t *testing.T) {
	remote := &fakeSettings{settings: catalog.EntrySettings{BarcodeMode: "directo", AutoFocusCode: true}}
	m := newManager(t, remote, &clock{now: time.Now()})

	s, err := m.Open(context.Background(), entry.Sale, pricing.Cash)
	require.NoError(t, err)
	require.Equal(t, "DIRECTO", s.Snapshot().BarcodeMode)
	require.Equal(t, 1, remote.calls)

	remote.mu.Lock()
	remote.settings.BarcodeMode = "CANTIDAD"
	remote.mu.Unlock()
	require.Equal(t, "DIRECTO", s.Snapshot().BarcodeMode, "an open session keeps its mode")

	other, err := m.Open(context.Background(), entry.Quote, pricing.Card)
	require.NoError(t, err)
	require.Equal(t, "CANTIDAD", other.Snapshot().BarcodeMode)
	require.Equal(t, pricing.Card, other.Selector())
	require.Equal(t, 2, remote.calls)
	require.Equal(t, 2, m.Len())
	require.NotEqual(t, s.ID(), other.ID())
}

func TestManagerFallsBackToDefaults(t *testing.T) {
	remote := &fakeSettings{err: errors.New("connection refused")}
	m := newManager(t, remote, &clock{now: time.Now()})

	s, err := m.Open(context.Background(), entry.Sale, pricing.Cash)
	require.NoError(t, err)
	require.Equal(t, "DEFAULT", s.Snapshot().BarcodeMode)

	remote.err = nil
	remote.settings = catalog.EntrySettings{BarcodeMode: "SCANNER"}
	s, err = m.Open(context.Background(), entry.Sale, pricing.Cash)
	require.NoError(t, err)
	require.Equal(t, "DEFAULT", s.Snapshot().BarcodeMode, "unknown modes are ignored")
}

func TestManagerRejectsUnknownDocument(t *testing.T) {
	m := newManager(t, nil, &clock{now: time.Now()})

	_, err := m.Open(context.Background(), entry.DocumentType("invoice"), pricing.Cash)
	var verr *entry.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "documentType", verr.Field)
	require.Zero(t, m.Len())
}

func TestManagerGetAndClose(t *testing.T) {
	m := newManager(t, nil, &clock{now: time.Now()})

	s, err := m.Open(context.Background(), entry.Sale, pricing.Cash)
	require.NoError(t, err)

	got, err := m.Get(s.ID())
	require.NoError(t, err)
	require.Same(t, s, got)

	require.NoError(t, m.Close(s.ID()))
	_, err = m.Get(s.ID())
	require.ErrorIs(t, err, entry.ErrSessionNotFound)
	require.ErrorIs(t, m.Close(s.ID()), entry.ErrSessionNotFound)
}

func TestManagerSweepsIdleSessions(t *testing.T) {
	clk := &clock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	m := newManager(t, nil, clk)

	idle, err := m.Open(context.Background(), entry.Sale, pricing.Cash)
	require.NoError(t, err)
	clk.now = clk.now.Add(50 * time.Minute)
	active, err := m.Open(context.Background(), entry.Sale, pricing.Cash)
	require.NoError(t, err)

	clk.now = clk.now.Add(20 * time.Minute)
	require.NoError(t, active.SetQuantityInput(2))
	require.Equal(t, 1, m.Sweep())

	_, err = m.Get(idle.ID())
	require.ErrorIs(t, err, entry.ErrSessionNotFound)
	_, err = m.Get(active.ID())
	require.NoError(t, err)
	require.Zero(t, m.Sweep())
}

func TestManagerAppliesRemoteQuantityFocus(t *testing.T) {
	sched := &stepScheduler{}
	cat := newFakeCatalog()
	remote := &fakeSettings{settings: catalog.EntrySettings{BarcodeMode: "DEFAULT", AutoFocusQuantity: true}}
	m := entry.NewManager(entry.ManagerConfig{
		Lookup:   cat,
		Prices:   cat,
		Settings: remote,
		Defaults: entry.Settings{BarcodeMode: barcode.Default, AutoFocusCode: true, Scheduler: sched},
		TTL:      time.Hour,
	})
	t.Cleanup(m.Shutdown)

	s, err := m.Open(context.Background(), entry.Sale, pricing.Cash)
	require.NoError(t, err)
	s.Input(search.ChannelCode, "7790")
	sched.flush()
	s.Key(search.ChannelCode, suggest.KeyEnter)
	require.Equal(t, "quantity", s.Snapshot().Focus)
}
