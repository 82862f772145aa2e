package entry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pos/internal/barcode"
	"github.com/noah-isme/backend-pos/internal/cart"
	"github.com/noah-isme/backend-pos/internal/entry"
	"github.com/noah-isme/backend-pos/internal/pricing"
	"github.com/noah-isme/backend-pos/internal/search"
	"github.com/noah-isme/backend-pos/internal/stock"
	"github.com/noah-isme/backend-pos/internal/suggest"
)

type harness struct {
	session *entry.Session
	sched   *stepScheduler
	catalog *fakeCatalog
}

func newHarness(t *testing.T, doc entry.DocumentType, mode barcode.Mode, strict bool) *harness {
	t.Helper()
	policy, err := entry.PolicyFor(doc, strict)
	require.NoError(t, err)
	h := &harness{sched: &stepScheduler{}, catalog: newFakeCatalog()}
	h.session = entry.NewSession("s-test", policy, pricing.Cash, entry.Settings{
		BarcodeMode:   mode,
		AutoFocusCode: true,
		Scheduler:     h.sched,
	}, entry.Deps{Lookup: h.catalog, Prices: h.catalog})
	t.Cleanup(h.session.Close)
	return h
}

// scan types text into the code input and presses Enter once suggestions arrive.
func (h *harness) scan(t *testing.T, text string) suggest.Effect {
	t.Helper()
	h.session.Input(search.ChannelCode, text)
	h.sched.flush()
	return h.session.Key(search.ChannelCode, suggest.KeyEnter)
}

func TestDirectoScanAddsOneUnitAndRefocusesCode(t *testing.T) {
	h := newHarness(t, entry.Sale, barcode.Directo, false)

	eff := h.scan(t, "7790")
	require.Equal(t, suggest.EffectCommit, eff.Kind)

	items := h.session.Items()
	require.Len(t, items, 1)
	require.Equal(t, yerba.ID, items[0].ProductID)
	require.Equal(t, 1, items[0].Quantity)
	require.True(t, items[0].UnitPrice.Equal(money("1500")))

	v := h.session.Snapshot()
	require.Equal(t, "code", v.Focus)
	require.Empty(t, v.Fields.Code)
	require.Empty(t, v.Fields.Description)
	require.Zero(t, v.Fields.ProductID)
	require.Equal(t, 1, v.Fields.Quantity)

	h.scan(t, "7790")
	items = h.session.Items()
	require.Len(t, items, 1, "same product merges into one line")
	require.Equal(t, 2, items[0].Quantity)
	require.True(t, items[0].Subtotal.Equal(money("3000")))
}

func TestCantidadFocusesQuantityWithoutAdding(t *testing.T) {
	h := newHarness(t, entry.Sale, barcode.Cantidad, false)

	h.scan(t, "7790")
	v := h.session.Snapshot()
	require.Equal(t, "quantity", v.Focus)
	require.True(t, v.SelectAll)
	require.Equal(t, "7790", v.Fields.Code)
	require.Equal(t, "Yerba 1kg", v.Fields.Description)
	require.True(t, v.Fields.UnitPrice.Equal(money("1500")))
	require.Empty(t, v.Items)

	require.NoError(t, h.session.SetQuantityInput(3))
	item, err := h.session.Add(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, item.Quantity)
	require.True(t, item.Subtotal.Equal(money("4500")))
}

func TestDefaultModeOnlyPopulates(t *testing.T) {
	h := newHarness(t, entry.Sale, barcode.Default, false)

	h.scan(t, "7790")
	v := h.session.Snapshot()
	require.Equal(t, "code", v.Focus)
	require.Equal(t, yerba.ID, v.Fields.ProductID)
	require.Empty(t, v.Items)
}

func TestDescriptionSelectionFocusesQuantityInEveryMode(t *testing.T) {
	for _, mode := range []barcode.Mode{barcode.Default, barcode.Cantidad, barcode.Directo} {
		t.Run(string(mode), func(t *testing.T) {
			h := newHarness(t, entry.Sale, mode, false)

			h.session.Input(search.ChannelDescription, "azu")
			h.sched.flush()
			eff := h.session.Key(search.ChannelDescription, suggest.KeyEnter)
			require.Equal(t, suggest.EffectCommit, eff.Kind)

			v := h.session.Snapshot()
			require.Equal(t, "quantity", v.Focus)
			require.Equal(t, "5501", v.Fields.Code)
			require.True(t, v.Fields.UnitPrice.Equal(money("200")), "price comes from the price endpoint")
			require.Empty(t, v.Items)
		})
	}
}

func TestPickFromDescriptionDropdown(t *testing.T) {
	h := newHarness(t, entry.Sale, barcode.Default, false)

	h.session.Input(search.ChannelDescription, "yer")
	h.sched.flush()
	h.session.Blur(search.ChannelDescription)

	product, ok := h.session.Pick(search.ChannelDescription, 0)
	require.True(t, ok)
	require.Equal(t, yerba.ID, product.ID)
	require.Equal(t, "7790", h.session.Snapshot().Fields.Code)
}

func TestEmptyCodeEnterMovesToDescription(t *testing.T) {
	h := newHarness(t, entry.Sale, barcode.Default, false)

	eff := h.session.Key(search.ChannelCode, suggest.KeyEnter)
	require.Equal(t, suggest.EffectFocusNext, eff.Kind)
	require.Equal(t, "description", h.session.Snapshot().Focus)

	h.session.Focus(search.ChannelCode)
	require.Equal(t, "code", h.session.Snapshot().Focus)
}

func TestStockWarningCanBeConfirmed(t *testing.T) {
	h := newHarness(t, entry.Sale, barcode.Cantidad, false)

	h.scan(t, "7790")
	require.NoError(t, h.session.SetQuantityInput(6))
	_, err := h.session.Add(context.Background())

	var conflict *stock.ConflictError
	require.ErrorAs(t, err, &conflict)
	require.True(t, conflict.Overridable())
	require.ErrorIs(t, err, stock.ErrInsufficient)
	require.Empty(t, h.session.Items())

	v := h.session.Snapshot()
	require.NotNil(t, v.Pending)
	require.Equal(t, 6, v.Pending.Quantity)
	require.Equal(t, 4, v.Pending.Available)
	require.Equal(t, 2, v.Pending.Exceeds)

	item, err := h.session.ConfirmPending()
	require.NoError(t, err)
	require.Equal(t, 6, item.Quantity)
	require.Nil(t, h.session.Snapshot().Pending)
	require.Equal(t, "code", h.session.Snapshot().Focus)

	_, err = h.session.ConfirmPending()
	require.ErrorIs(t, err, entry.ErrNoPending)
}

func TestStockWarningDeclineKeepsFields(t *testing.T) {
	h := newHarness(t, entry.Sale, barcode.Cantidad, false)

	h.scan(t, "7790")
	require.NoError(t, h.session.SetQuantityInput(6))
	_, err := h.session.Add(context.Background())
	require.Error(t, err)

	require.NoError(t, h.session.DeclinePending())
	v := h.session.Snapshot()
	require.Nil(t, v.Pending)
	require.Equal(t, "quantity", v.Focus)
	require.True(t, v.SelectAll)
	require.Equal(t, yerba.ID, v.Fields.ProductID)
	require.Equal(t, 6, v.Fields.Quantity)
	require.Empty(t, v.Items)

	require.NoError(t, h.session.SetQuantityInput(4))
	_, err = h.session.Add(context.Background())
	require.NoError(t, err)
	require.ErrorIs(t, h.session.DeclinePending(), entry.ErrNoPending)
}

func TestStrictStockBlocks(t *testing.T) {
	h := newHarness(t, entry.Sale, barcode.Cantidad, true)

	h.scan(t, "7790")
	require.NoError(t, h.session.SetQuantityInput(5))
	_, err := h.session.Add(context.Background())

	var conflict *stock.ConflictError
	require.ErrorAs(t, err, &conflict)
	require.False(t, conflict.Overridable())
	require.Nil(t, h.session.Snapshot().Pending)
	_, err = h.session.ConfirmPending()
	require.ErrorIs(t, err, entry.ErrNoPending)
}

func TestDirectoStockWarningLeavesPending(t *testing.T) {
	h := newHarness(t, entry.Sale, barcode.Directo, false)

	for i := 0; i < 4; i++ {
		h.scan(t, "7790")
	}
	h.scan(t, "7790")
	require.Equal(t, 4, h.session.Items()[0].Quantity)
	v := h.session.Snapshot()
	require.NotNil(t, v.Pending)
	require.Equal(t, 4, v.Pending.InCart)
	require.Equal(t, 1, v.Pending.Exceeds)
}

func TestSelectorChangeRepricesEveryLine(t *testing.T) {
	h := newHarness(t, entry.Sale, barcode.Directo, false)
	ctx := context.Background()

	h.scan(t, "7790")
	h.scan(t, "5501")
	require.Len(t, h.session.Items(), 2)

	require.NoError(t, h.session.SetSelector(ctx, pricing.Card))
	items := h.session.Items()
	require.True(t, items[0].UnitPrice.Equal(money("1650")))
	require.True(t, items[1].UnitPrice.Equal(money("220")))
	require.Equal(t, pricing.Card, h.session.Selector())

	require.NoError(t, h.session.SetSelector(ctx, pricing.Cash))
	items = h.session.Items()
	require.True(t, items[0].UnitPrice.Equal(money("1500")))
	require.True(t, items[1].UnitPrice.Equal(money("200")))
	require.Equal(t, yerba.ID, items[0].ProductID, "order is preserved")
}

func TestSelectorChangeFailureLeavesCartUntouched(t *testing.T) {
	h := newHarness(t, entry.Sale, barcode.Directo, false)

	h.scan(t, "7790")
	h.scan(t, "5501")
	h.catalog.setFailPrice(true)

	err := h.session.SetSelector(context.Background(), pricing.Card)
	require.ErrorIs(t, err, entry.ErrPriceUnavailable)

	items := h.session.Items()
	require.True(t, items[0].UnitPrice.Equal(money("1500")))
	require.True(t, items[1].UnitPrice.Equal(money("200")))
	require.Equal(t, pricing.Cash, h.session.Selector())
	require.NotEmpty(t, h.session.Snapshot().Notice)
}

func TestPurchaseUsesCostList(t *testing.T) {
	h := newHarness(t, entry.Purchase, barcode.Cantidad, false)
	require.NoError(t, h.session.SetSelector(context.Background(), pricing.Card))

	h.scan(t, "7790")
	require.NoError(t, h.session.SetQuantityInput(10))
	item, err := h.session.Add(context.Background())
	require.NoError(t, err, "incoming goods skip the stock check")
	require.True(t, item.UnitPrice.Equal(money("900")))
}

func TestPriceRequiredUnlessDeliveryNote(t *testing.T) {
	h := newHarness(t, entry.Sale, barcode.Cantidad, false)

	h.scan(t, "0001")
	_, err := h.session.Add(context.Background())
	var verr *entry.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "price", verr.Field)
	require.ErrorIs(t, err, entry.ErrPriceRequired)
	require.Equal(t, "price", h.session.Snapshot().Focus)

	require.NoError(t, h.session.SetPriceInput(money("50")))
	item, err := h.session.Add(context.Background())
	require.NoError(t, err)
	require.True(t, item.UnitPrice.Equal(money("50")))

	d := newHarness(t, entry.DeliveryNote, barcode.Cantidad, false)
	d.scan(t, "0001")
	item, err = d.session.Add(context.Background())
	require.NoError(t, err)
	require.True(t, item.UnitPrice.IsZero())
}

func TestDirectoWithoutPriceAsksForPrice(t *testing.T) {
	h := newHarness(t, entry.Sale, barcode.Directo, false)

	h.scan(t, "0001")
	v := h.session.Snapshot()
	require.Empty(t, v.Items)
	require.Equal(t, "price", v.Focus)
	require.True(t, v.SelectAll)
}

func TestPriceLookupFailureAllowsManualPrice(t *testing.T) {
	h := newHarness(t, entry.Sale, barcode.Cantidad, false)
	h.catalog.setFailPrice(true)

	h.scan(t, "5501")
	require.NotEmpty(t, h.session.Snapshot().Notice)

	_, err := h.session.Add(context.Background())
	require.ErrorIs(t, err, entry.ErrPriceUnavailable)

	require.NoError(t, h.session.SetPriceInput(money("190")))
	item, err := h.session.Add(context.Background())
	require.NoError(t, err)
	require.True(t, item.UnitPrice.Equal(money("190")))
}

func TestSearchFailureSetsNotice(t *testing.T) {
	h := newHarness(t, entry.Sale, barcode.Default, false)
	h.catalog.setFailSearch(true)

	h.session.Input(search.ChannelCode, "7790")
	h.sched.flush()
	v := h.session.Snapshot()
	require.NotEmpty(t, v.Notice)
	require.NotEmpty(t, v.Suggestions["code"].Error)

	h.catalog.setFailSearch(false)
	h.session.Input(search.ChannelCode, "779")
	require.Empty(t, h.session.Snapshot().Notice)
	h.sched.flush()
	require.Len(t, h.session.Snapshot().Suggestions["code"].Candidates, 1)
}

func TestEntryInputValidation(t *testing.T) {
	h := newHarness(t, entry.Sale, barcode.Default, false)

	var verr *entry.ValidationError
	err := h.session.SetQuantityInput(0)
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "quantity", verr.Field)

	require.ErrorIs(t, h.session.SetPriceInput(money("-1")), cart.ErrInvalidInput)

	_, err = h.session.Add(context.Background())
	require.ErrorIs(t, err, entry.ErrProductRequired)
}

func TestLineEdits(t *testing.T) {
	h := newHarness(t, entry.Sale, barcode.Directo, false)
	h.scan(t, "7790")

	item, err := h.session.UpdateQuantity(yerba.ID, 3)
	require.NoError(t, err)
	require.True(t, item.Subtotal.Equal(money("4500")))

	item, err = h.session.UpdateQuantity(yerba.ID, 0)
	require.NoError(t, err)
	require.Equal(t, 3, item.Quantity, "quantities below one are ignored")

	_, err = h.session.UpdateQuantity(99, 1)
	require.ErrorIs(t, err, cart.ErrNotFound)

	_, err = h.session.UpdatePrice(yerba.ID, money("-5"))
	var verr *entry.ValidationError
	require.ErrorAs(t, err, &verr)

	item, err = h.session.UpdatePrice(yerba.ID, money("1400"))
	require.NoError(t, err)
	require.True(t, item.Subtotal.Equal(money("4200")))

	_, err = h.session.UpdatePrice(99, money("1"))
	require.True(t, errors.Is(err, cart.ErrNotFound))

	h.session.Remove(yerba.ID)
	h.session.Remove(yerba.ID)
	require.Empty(t, h.session.Items())
}

func TestPayloadAndReset(t *testing.T) {
	h := newHarness(t, entry.Sale, barcode.Directo, false)

	_, err := h.session.Payload()
	require.ErrorIs(t, err, entry.ErrEmptyDocument)

	h.scan(t, "7790")
	payload, err := h.session.Payload()
	require.NoError(t, err)
	require.Equal(t, entry.Sale, payload.DocumentType)
	require.Equal(t, pricing.Cash, payload.Selector)
	require.Len(t, payload.Items, 1)
	require.True(t, payload.Totals.Gross.Equal(money("1500")))
	require.True(t, payload.Totals.Net.Add(payload.Totals.Tax).Equal(payload.Totals.Gross))

	h.session.Reset()
	v := h.session.Snapshot()
	require.Empty(t, v.Items)
	require.True(t, v.Totals.Gross.IsZero())
	require.Equal(t, "code", v.Focus)
}

func TestPolicyFor(t *testing.T) {
	_, err := entry.PolicyFor("invoice", false)
	require.Error(t, err)

	p, err := entry.PolicyFor(entry.Quote, true)
	require.NoError(t, err)
	require.Equal(t, stock.NoCheck, p.Stock)

	p, err = entry.PolicyFor(entry.DeliveryNote, true)
	require.NoError(t, err)
	require.Equal(t, stock.Block, p.Stock)
	require.False(t, p.RequirePrice)

	doc, err := entry.ParseDocumentType(" Credit_Note ")
	require.NoError(t, err)
	require.Equal(t, entry.CreditNote, doc)
}

func TestRetypedCodeDoesNotAddPreviousSuggestion(t *testing.T) {
	h := newHarness(t, entry.Sale, barcode.Directo, false)

	h.session.Input(search.ChannelCode, "Yerba")
	h.sched.flush()
	h.session.Input(search.ChannelCode, "5501")

	eff := h.session.Key(search.ChannelCode, suggest.KeyEnter)
	require.Equal(t, suggest.EffectNone, eff.Kind)
	require.Empty(t, h.session.Items())

	h.sched.flush()
	eff = h.session.Key(search.ChannelCode, suggest.KeyEnter)
	require.Equal(t, suggest.EffectCommit, eff.Kind)
	items := h.session.Items()
	require.Len(t, items, 1)
	require.Equal(t, sugar.ID, items[0].ProductID)
}

func TestSelectionChecksLiveStock(t *testing.T) {
	h := newHarness(t, entry.Sale, barcode.Cantidad, false)
	h.catalog.setStock(yerba.ID, 1)

	h.scan(t, "7790")
	require.NoError(t, h.session.SetQuantityInput(2))
	_, err := h.session.Add(context.Background())

	var conflict *stock.ConflictError
	require.ErrorAs(t, err, &conflict)
	v := h.session.Snapshot()
	require.NotNil(t, v.Pending)
	require.Equal(t, 1, v.Pending.Available, "search said 4, the detail endpoint says 1")
}

func TestDetailLookupFailureFallsBackToSearchPrice(t *testing.T) {
	h := newHarness(t, entry.Sale, barcode.Directo, false)
	h.catalog.setFailPrice(true)

	h.scan(t, "7790")
	items := h.session.Items()
	require.Len(t, items, 1)
	require.True(t, items[0].UnitPrice.Equal(money("1500")))
	require.Empty(t, h.session.Snapshot().Notice)
}

func TestDetailLookupRunsOutsideSessionLock(t *testing.T) {
	h := newHarness(t, entry.Sale, barcode.Directo, false)

	var answered, reset bool
	h.catalog.setPriceHook(func() {
		h.catalog.setPriceHook(nil)
		done := make(chan struct{})
		go func() {
			defer close(done)
			h.session.Snapshot()
			h.session.Reset()
		}()
		select {
		case <-done:
			answered, reset = true, true
		case <-time.After(time.Second):
		}
	})

	h.scan(t, "7790")
	require.True(t, answered, "the session must answer while the detail lookup runs")
	require.True(t, reset)
	require.Empty(t, h.session.Items(), "a reset during the lookup drops the selection")
	require.Zero(t, h.session.Snapshot().Fields.ProductID)

	h.scan(t, "7790")
	require.Len(t, h.session.Items(), 1)
}

func TestSelectorFailureOnEntrySetsNotice(t *testing.T) {
	t.Run("current", func(t *testing.T) {
		h := newHarness(t, entry.Sale, barcode.Cantidad, false)
		h.scan(t, "5501")
		require.Empty(t, h.session.Snapshot().Notice)
		h.catalog.setFailPrice(true)

		err := h.session.SetSelector(context.Background(), pricing.Card)
		require.ErrorIs(t, err, entry.ErrPriceUnavailable)
		v := h.session.Snapshot()
		require.NotEmpty(t, v.Notice)
		require.Equal(t, pricing.Cash, v.Selector)
		require.True(t, v.Fields.UnitPrice.Equal(money("200")))
	})

	t.Run("pending", func(t *testing.T) {
		h := newHarness(t, entry.Sale, barcode.Cantidad, false)
		h.scan(t, "5501")
		require.NoError(t, h.session.SetQuantityInput(11))
		_, err := h.session.Add(context.Background())
		require.Error(t, err)
		h.catalog.setFailPrice(true)

		err = h.session.SetSelector(context.Background(), pricing.Card)
		require.ErrorIs(t, err, entry.ErrPriceUnavailable)
		v := h.session.Snapshot()
		require.NotEmpty(t, v.Notice)
		require.NotNil(t, v.Pending)
		require.True(t, v.Pending.UnitPrice.Equal(money("200")))
		require.Equal(t, pricing.Cash, v.Selector)
	})
}

func TestAutoFocusQuantityMovesFocusAfterCodeSelection(t *testing.T) {
	policy, err := entry.PolicyFor(entry.Sale, false)
	require.NoError(t, err)
	sched := &stepScheduler{}
	fc := newFakeCatalog()
	session := entry.NewSession("s-focus", policy, pricing.Cash, entry.Settings{
		BarcodeMode:       barcode.Default,
		AutoFocusCode:     true,
		AutoFocusQuantity: true,
		Scheduler:         sched,
	}, entry.Deps{Lookup: fc, Prices: fc})
	t.Cleanup(session.Close)

	session.Input(search.ChannelCode, "7790")
	sched.flush()
	session.Key(search.ChannelCode, suggest.KeyEnter)

	v := session.Snapshot()
	require.Equal(t, "quantity", v.Focus)
	require.Equal(t, yerba.ID, v.Fields.ProductID)
	require.Empty(t, v.Items)
}
