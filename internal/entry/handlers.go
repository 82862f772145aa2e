package entry

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pos/internal/cart"
	"github.com/noah-isme/backend-pos/internal/catalog"
	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/pricing"
	"github.com/noah-isme/backend-pos/internal/search"
	"github.com/noah-isme/backend-pos/internal/stock"
	"github.com/noah-isme/backend-pos/internal/suggest"
)

// Handler exposes the entry session endpoints.
type Handler struct {
	manager    *Manager
	validate   *validator.Validate
	inputLimit func(http.Handler) http.Handler
	openLimit  func(http.Handler) http.Handler
	logger     *zerolog.Logger
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Manager *Manager
	// InputLimit wraps the field input route, typically a rate limiter.
	InputLimit func(http.Handler) http.Handler
	// OpenLimit wraps session creation.
	OpenLimit func(http.Handler) http.Handler
	Logger    *zerolog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	logger := cfg.Logger
	if logger == nil {
		logger = &sessionNopLogger
	}
	return &Handler{manager: cfg.Manager, validate: v, inputLimit: cfg.InputLimit, openLimit: cfg.OpenLimit, logger: logger}
}

type openRequest struct {
	DocumentType string `json:"documentType" validate:"required"`
	Selector     string `json:"selector"`
}

type fieldRequest struct {
	Text string `json:"text" validate:"max=200"`
}

type keyRequest struct {
	Key string `json:"key" validate:"required"`
}

type quantityRequest struct {
	Quantity int `json:"quantity" validate:"gte=1"`
}

type priceRequest struct {
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

type selectorRequest struct {
	Selector string `json:"selector" validate:"required"`
}

type itemPatchRequest struct {
	Quantity  *int             `json:"quantity" validate:"omitempty,gte=1"`
	UnitPrice *decimal.Decimal `json:"unitPrice"`
}

// Routes mounts the entry endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.With(passthrough(h.openLimit)).Post("/", h.Open)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Snapshot)
		r.Delete("/", h.Discard)
		r.Route("/fields/{channel}", func(r chi.Router) {
			r.With(passthrough(h.inputLimit)).Put("/", h.Input)
			r.Post("/keys", h.Key)
			r.Post("/blur", h.Blur)
			r.Post("/focus", h.Focus)
			r.Post("/suggestions/{index}", h.Pick)
		})
		r.Put("/quantity", h.Quantity)
		r.Put("/price", h.Price)
		r.Put("/selector", h.Selector)
		r.Post("/items", h.Add)
		r.Patch("/items/{productId}", h.EditItem)
		r.Delete("/items/{productId}", h.RemoveItem)
		r.Post("/pending/confirm", h.Confirm)
		r.Post("/pending/decline", h.Decline)
		r.Get("/payload", h.Payload)
		r.Post("/reset", h.Reset)
	})
}

func passthrough(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	if mw == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return mw
}

// Open handles POST /api/v1/entries.
func (h *Handler) Open(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if !h.decode(w, r, &req) {
		return
	}
	docType, err := ParseDocumentType(req.DocumentType)
	if err != nil {
		h.writeError(w, invalid("documentType", err))
		return
	}
	selector, err := pricing.ParseSelector(req.Selector)
	if err != nil {
		h.writeError(w, invalid("selector", err))
		return
	}
	session, err := h.manager.Open(r.Context(), docType, selector)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, session.Snapshot())
}

// Snapshot handles GET /api/v1/entries/{id}.
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	h.render(w, session)
}

// Discard handles DELETE /api/v1/entries/{id}.
func (h *Handler) Discard(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Close(chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Input handles PUT /api/v1/entries/{id}/fields/{channel}.
func (h *Handler) Input(w http.ResponseWriter, r *http.Request) {
	session, ch, ok := h.channel(w, r)
	if !ok {
		return
	}
	var req fieldRequest
	if !h.decode(w, r, &req) {
		return
	}
	session.Input(ch, req.Text)
	h.render(w, session)
}

// Key handles POST /api/v1/entries/{id}/fields/{channel}/keys.
func (h *Handler) Key(w http.ResponseWriter, r *http.Request) {
	session, ch, ok := h.channel(w, r)
	if !ok {
		return
	}
	var req keyRequest
	if !h.decode(w, r, &req) {
		return
	}
	key, err := suggest.ParseKey(req.Key)
	if err != nil {
		h.writeError(w, invalid("key", err))
		return
	}
	eff := session.Key(ch, key)
	common.JSON(w, http.StatusOK, map[string]any{
		"data": session.Snapshot(),
		"effect": map[string]any{
			"kind":  eff.Kind.String(),
			"index": eff.Index,
		},
	})
}

// Blur handles POST /api/v1/entries/{id}/fields/{channel}/blur.
func (h *Handler) Blur(w http.ResponseWriter, r *http.Request) {
	session, ch, ok := h.channel(w, r)
	if !ok {
		return
	}
	session.Blur(ch)
	h.render(w, session)
}

// Focus handles POST /api/v1/entries/{id}/fields/{channel}/focus.
func (h *Handler) Focus(w http.ResponseWriter, r *http.Request) {
	session, ch, ok := h.channel(w, r)
	if !ok {
		return
	}
	session.Focus(ch)
	h.render(w, session)
}

// Pick handles POST /api/v1/entries/{id}/fields/{channel}/suggestions/{index}.
func (h *Handler) Pick(w http.ResponseWriter, r *http.Request) {
	session, ch, ok := h.channel(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		h.writeError(w, invalid("index", err))
		return
	}
	if _, ok := session.Pick(ch, index); !ok {
		common.JSONError(w, http.StatusNotFound, "SUGGESTION_NOT_FOUND", "no suggestion at that position", nil)
		return
	}
	h.render(w, session)
}

// Quantity handles PUT /api/v1/entries/{id}/quantity.
func (h *Handler) Quantity(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req quantityRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := session.SetQuantityInput(req.Quantity); err != nil {
		h.writeError(w, err)
		return
	}
	h.render(w, session)
}

// Price handles PUT /api/v1/entries/{id}/price.
func (h *Handler) Price(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req priceRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := session.SetPriceInput(req.UnitPrice); err != nil {
		h.writeError(w, err)
		return
	}
	h.render(w, session)
}

// Selector handles PUT /api/v1/entries/{id}/selector.
func (h *Handler) Selector(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req selectorRequest
	if !h.decode(w, r, &req) {
		return
	}
	selector, err := pricing.ParseSelector(req.Selector)
	if err != nil {
		h.writeError(w, invalid("selector", err))
		return
	}
	if err := session.SetSelector(r.Context(), selector); err != nil {
		h.writeError(w, err)
		return
	}
	h.render(w, session)
}

// Add handles POST /api/v1/entries/{id}/items.
func (h *Handler) Add(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	if _, err := session.Add(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, session.Snapshot())
}

// EditItem handles PATCH /api/v1/entries/{id}/items/{productId}.
func (h *Handler) EditItem(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	productID, ok := h.productID(w, r)
	if !ok {
		return
	}
	var req itemPatchRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Quantity == nil && req.UnitPrice == nil {
		h.writeError(w, invalid("quantity", errors.New("quantity or unitPrice is required")))
		return
	}
	if req.UnitPrice != nil {
		if _, err := session.UpdatePrice(productID, *req.UnitPrice); err != nil {
			h.writeError(w, err)
			return
		}
	}
	if req.Quantity != nil {
		if _, err := session.UpdateQuantity(productID, *req.Quantity); err != nil {
			h.writeError(w, err)
			return
		}
	}
	h.render(w, session)
}

// RemoveItem handles DELETE /api/v1/entries/{id}/items/{productId}.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	productID, ok := h.productID(w, r)
	if !ok {
		return
	}
	session.Remove(productID)
	h.render(w, session)
}

// Confirm handles POST /api/v1/entries/{id}/pending/confirm.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	if _, err := session.ConfirmPending(); err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, session.Snapshot())
}

// Decline handles POST /api/v1/entries/{id}/pending/decline.
func (h *Handler) Decline(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := session.DeclinePending(); err != nil {
		h.writeError(w, err)
		return
	}
	h.render(w, session)
}

// Payload handles GET /api/v1/entries/{id}/payload.
func (h *Handler) Payload(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	payload, err := session.Payload()
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, payload)
}

// Reset handles POST /api/v1/entries/{id}/reset.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	session.Reset()
	h.render(w, session)
}

func (h *Handler) render(w http.ResponseWriter, session *Session) {
	common.Data(w, http.StatusOK, session.Snapshot())
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	session, err := h.manager.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return nil, false
	}
	return session, true
}

func (h *Handler) channel(w http.ResponseWriter, r *http.Request) (*Session, search.Channel, bool) {
	session, ok := h.session(w, r)
	if !ok {
		return nil, "", false
	}
	ch, err := search.ParseChannel(chi.URLParam(r, "channel"))
	if err != nil {
		h.writeError(w, invalid("channel", err))
		return nil, "", false
	}
	return session, ch, true
}

func (h *Handler) productID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "productId"), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, invalid("productId", errors.New("product id must be a positive integer")))
		return 0, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, common.NewAppError("BAD_REQUEST", "invalid request payload", http.StatusBadRequest, err))
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			h.writeError(w, invalid(verrs[0].Field(), err))
			return false
		}
		h.writeError(w, err)
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	appErr := toAppError(err)
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("code", appErr.Code).Msg("entry_request_failed")
	}
	var details any
	if appErr.Details != nil {
		details = appErr.Details
	}
	if appErr.Err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(appErr.Err, &syntaxErr) {
			details = map[string]any{"offset": syntaxErr.Offset}
		}
	}
	common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, details)
}

// toAppError maps domain errors onto the canonical HTTP error shape.
func toAppError(err error) *common.AppError {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		out := *appErr
		if out.HTTPStatus == 0 {
			out.HTTPStatus = http.StatusInternalServerError
		}
		if out.Code == "" {
			out.Code = "INTERNAL"
		}
		if out.Message == "" {
			out.Message = "internal error"
		}
		return &out
	}

	var conflict *stock.ConflictError
	if errors.As(err, &conflict) {
		code := "STOCK_WARNING"
		if !conflict.Overridable() {
			code = "STOCK_BLOCKED"
		}
		return common.NewAppError(code, conflict.Error(), http.StatusConflict, err).WithDetails(map[string]any{
			"productId":   conflict.ProductID,
			"code":        conflict.Code,
			"available":   conflict.Decision.Available,
			"requested":   conflict.Decision.Requested,
			"inCart":      conflict.Decision.InCart,
			"exceeds":     conflict.Decision.Exceeds(),
			"overridable": conflict.Overridable(),
		})
	}

	var verr *ValidationError
	if errors.As(err, &verr) {
		return common.NewAppError("VALIDATION_ERROR", verr.Error(), http.StatusUnprocessableEntity, err).
			WithDetails(map[string]any{"field": verr.Field})
	}

	switch {
	case errors.Is(err, ErrSessionNotFound):
		return common.NewAppError("NOT_FOUND", "entry session not found", http.StatusNotFound, err)
	case errors.Is(err, cart.ErrNotFound):
		return common.NewAppError("ITEM_NOT_FOUND", "line item not found", http.StatusNotFound, err)
	case errors.Is(err, ErrNoPending):
		return common.NewAppError("NO_PENDING", "no pending addition", http.StatusConflict, err)
	case errors.Is(err, ErrEmptyDocument):
		return common.NewAppError("EMPTY_DOCUMENT", "document has no items", http.StatusUnprocessableEntity, err)
	case errors.Is(err, cart.ErrInvalidInput):
		return common.NewAppError("VALIDATION_ERROR", err.Error(), http.StatusUnprocessableEntity, err)
	case errors.Is(err, ErrPriceUnavailable), errors.Is(err, catalog.ErrUnavailable):
		return common.NewAppError("UPSTREAM_UNAVAILABLE", "price lookup failed, try again", http.StatusBadGateway, err)
	default:
		return common.NewAppError("INTERNAL", "internal error", http.StatusInternalServerError, err)
	}
}
