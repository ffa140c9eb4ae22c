package billing

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-pos/internal/catalog"
	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/coupon"
	"github.com/noah-isme/backend-pos/internal/pricing"
	"github.com/noah-isme/backend-pos/internal/resilience"
)

// Handler wires the billing service to HTTP.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate

	// CouponLimit, when set, rate limits the coupon endpoints per terminal.
	CouponLimit func(http.Handler) http.Handler
}

func (h *Handler) couponLimit() func(http.Handler) http.Handler {
	if h.CouponLimit != nil {
		return h.CouponLimit
	}
	return func(next http.Handler) http.Handler { return next }
}

// Mount registers the session routes on the router.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/products", h.SearchProducts)
	r.Post("/sessions", h.CreateSession)
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", h.GetSession)
		r.Delete("/", h.DeleteSession)
		r.Post("/items", h.AddItem)
		r.Patch("/items/{index}", h.UpdateItem)
		r.Delete("/items/{index}", h.RemoveItem)
		r.Put("/discount", h.SetDiscount)
		r.Put("/customer", h.AttachCustomer)
		r.Put("/loyalty", h.UseLoyalty)
		r.With(h.couponLimit()).Post("/coupon", h.ApplyCoupon)
		r.Delete("/coupon", h.RemoveCoupon)
		r.With(h.couponLimit()).Get("/coupons", h.ListCoupons)
		r.Put("/payment-method", h.SetPaymentMethod)
		r.Get("/totals", h.GetTotals)
		r.Post("/bill", h.GenerateBill)
		r.Post("/clear", h.Clear)
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, payload any) bool {
	if err := json.NewDecoder(r.Body).Decode(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid payload", nil)
		return false
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(payload); err != nil {
			common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, err.Error(), nil)
			return false
		}
	}
	return true
}

// SearchProducts proxies product search to the catalog for cashier lookup.
func (h *Handler) SearchProducts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	products, err := h.Svc.Catalog.SearchProducts(r.Context(), query)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": products})
}

// CreateSession opens a new billing session for the calling terminal.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	terminalID, _ := common.TerminalID(r.Context())
	snap := h.Svc.NewSession(terminalID)
	common.JSON(w, http.StatusCreated, map[string]any{"data": snap})
}

// GetSession returns the session state and totals.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Svc.View(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": snap})
}

// DeleteSession discards the session entirely.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.Svc.View(id); err != nil {
		h.writeError(w, err)
		return
	}
	h.Svc.Store.Delete(id)
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"deleted": true}})
}

// AddItem adds a product to the cart.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ProductID string `json:"productId" validate:"required"`
		Qty       int    `json:"qty" validate:"gt=0"`
	}
	if !h.decode(w, r, &payload) {
		return
	}
	snap, err := h.Svc.AddItem(r.Context(), chi.URLParam(r, "id"), payload.ProductID, payload.Qty)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": snap})
}

// UpdateItem changes the quantity of the cart line at the index.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid index", nil)
		return
	}
	var payload struct {
		Qty int `json:"qty"`
	}
	if !h.decode(w, r, &payload) {
		return
	}
	snap, err := h.Svc.UpdateQuantity(chi.URLParam(r, "id"), index, payload.Qty)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": snap})
}

// RemoveItem deletes the cart line at the index.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid index", nil)
		return
	}
	snap, err := h.Svc.RemoveItem(chi.URLParam(r, "id"), index)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": snap})
}

// SetDiscount sets the manual discount in basis points.
func (h *Handler) SetDiscount(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Bps int `json:"bps" validate:"gte=0,lte=10000"`
	}
	if !h.decode(w, r, &payload) {
		return
	}
	snap, err := h.Svc.SetManualDiscount(chi.URLParam(r, "id"), payload.Bps)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": snap})
}

// AttachCustomer resolves and attaches a customer by phone number.
func (h *Handler) AttachCustomer(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Phone string `json:"phone" validate:"required"`
	}
	if !h.decode(w, r, &payload) {
		return
	}
	snap, err := h.Svc.AttachCustomer(r.Context(), chi.URLParam(r, "id"), strings.TrimSpace(payload.Phone))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": snap})
}

// UseLoyalty selects the number of loyalty points to redeem.
func (h *Handler) UseLoyalty(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Points int `json:"points" validate:"gte=0"`
	}
	if !h.decode(w, r, &payload) {
		return
	}
	snap, err := h.Svc.UseLoyaltyPoints(chi.URLParam(r, "id"), payload.Points)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": snap})
}

// ApplyCoupon validates and applies a coupon code.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Code string `json:"code" validate:"required"`
	}
	if !h.decode(w, r, &payload) {
		return
	}
	snap, err := h.Svc.ApplyCoupon(r.Context(), chi.URLParam(r, "id"), payload.Code)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": snap})
}

// RemoveCoupon clears the applied coupon.
func (h *Handler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Svc.RemoveCoupon(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": snap})
}

// ListCoupons returns the coupons applicable to the current cart.
func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	options, err := h.Svc.ListApplicableCoupons(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": options})
}

// SetPaymentMethod records the chosen payment method.
func (h *Handler) SetPaymentMethod(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Method string `json:"method" validate:"required,oneof=cash card upi wallet"`
	}
	if !h.decode(w, r, &payload) {
		return
	}
	snap, err := h.Svc.SetPaymentMethod(chi.URLParam(r, "id"), payload.Method)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": snap})
}

// GetTotals returns freshly computed totals for the session.
func (h *Handler) GetTotals(w http.ResponseWriter, r *http.Request) {
	totals, err := h.Svc.Totals(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": totals})
}

// GenerateBill finalizes the transaction.
func (h *Handler) GenerateBill(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		PaidAmount pricing.Money `json:"paidAmount" validate:"gte=0"`
	}
	if r.ContentLength != 0 {
		if !h.decode(w, r, &payload) {
			return
		}
	}
	bill, err := h.Svc.GenerateBill(r.Context(), chi.URLParam(r, "id"), payload.PaidAmount)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": bill})
}

// Clear resets the session to its initial empty state.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Svc.Clear(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": snap})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if err == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "unknown error", nil)
		return
	}
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusBadRequest
		}
		code := appErr.Code
		if code == "" {
			code = common.CodeBadRequest
		}
		common.JSONError(w, status, code, appErr.Message, appErr.Details)
		return
	}
	switch {
	case errors.Is(err, ErrSessionNotFound):
		common.JSONError(w, http.StatusNotFound, common.CodeSessionNotFound, err.Error(), nil)
	case errors.Is(err, ErrEmptyCart):
		common.JSONError(w, http.StatusConflict, common.CodeEmptyCart, err.Error(), nil)
	case errors.Is(err, ErrInsufficientStock):
		common.JSONError(w, http.StatusConflict, common.CodeInsufficientStock, err.Error(), nil)
	case errors.Is(err, ErrIndexOutOfRange):
		common.JSONError(w, http.StatusBadRequest, common.CodeIndexOutOfRange, err.Error(), nil)
	case errors.Is(err, ErrInvalidPhone):
		common.JSONError(w, http.StatusBadRequest, common.CodeInvalidPhone, err.Error(), nil)
	case errors.Is(err, ErrPaidBelowNet):
		common.JSONError(w, http.StatusBadRequest, common.CodePaymentInsufficient, err.Error(), nil)
	case errors.Is(err, ErrBillGeneration):
		common.JSONError(w, http.StatusBadGateway, common.CodeBillGeneration, err.Error(), nil)
	case errors.Is(err, ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, err.Error(), nil)
	case errors.Is(err, coupon.ErrNotFound):
		common.JSONError(w, http.StatusNotFound, common.CodeCouponNotFound, err.Error(), nil)
	case errors.Is(err, coupon.ErrBelowMinimum):
		common.JSONError(w, http.StatusConflict, common.CodeCouponBelowMin, err.Error(), nil)
	case errors.Is(err, coupon.ErrTierIneligible):
		common.JSONError(w, http.StatusConflict, common.CodeCouponTier, err.Error(), nil)
	case errors.Is(err, coupon.ErrExhausted):
		common.JSONError(w, http.StatusConflict, common.CodeCouponExhausted, err.Error(), nil)
	case errors.Is(err, coupon.ErrInactive), errors.Is(err, coupon.ErrExpired):
		common.JSONError(w, http.StatusConflict, common.CodeCouponExpired, err.Error(), nil)
	case errors.Is(err, catalog.ErrProductNotFound):
		common.JSONError(w, http.StatusNotFound, common.CodeNotFound, err.Error(), nil)
	case errors.Is(err, resilience.ErrOpenCircuit):
		common.JSONError(w, http.StatusServiceUnavailable, common.CodeInternal, "upstream temporarily unavailable", nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, err.Error(), nil)
	}
}
