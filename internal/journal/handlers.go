package journal

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-pos/internal/billing"
	"github.com/noah-isme/backend-pos/internal/bills"
	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/receipt"
)

// Bill converts the journal entry back into the immutable bill record.
func (e Entry) Bill() billing.Bill {
	return billing.Bill{
		BillID:     e.BillID,
		BillNumber: e.BillNumber,
		CreateRequest: bills.CreateRequest{
			TerminalID:        e.TerminalID,
			Items:             e.Items,
			Subtotal:          e.Subtotal,
			DiscountKind:      e.DiscountKind,
			DiscountAmount:    e.DiscountAmount,
			LoyaltyPointsUsed: e.LoyaltyPointsUsed,
			LoyaltyDiscount:   e.LoyaltyDiscount,
			Tax:               e.Tax,
			NetAmount:         e.NetAmount,
			PaidAmount:        e.PaidAmount,
			ChangeAmount:      e.ChangeAmount,
			PaymentMethod:     e.PaymentMethod,
			CustomerID:        e.CustomerID,
			CustomerPhone:     e.CustomerPhone,
			CouponCode:        e.CouponCode,
			PointsEarned:      e.PointsEarned,
			CreatedAt:         e.CreatedAt,
		},
	}
}

// Handler serves the local sales journal.
type Handler struct {
	Store *Store
	R     *redis.Client
}

// Mount registers the journal routes on the router.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/bills/recent", h.Recent)
	r.Get("/bills/{number}", h.ByNumber)
	r.Get("/bills/{number}/receipt", h.Receipt)
}

// Recent returns the latest journaled bills.
func (h *Handler) Recent(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}
	entries, err := h.Store.Recent(r.Context(), limit)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "unable to load bills", nil)
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": entries})
}

// ByNumber returns one journaled bill.
func (h *Handler) ByNumber(w http.ResponseWriter, r *http.Request) {
	entry, err := h.Store.ByNumber(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "bill not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "unable to load bill", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": entry})
}

// Receipt serves the rendered receipt text, rendering on demand when the
// background worker has not produced one yet.
func (h *Handler) Receipt(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	if h.R != nil {
		if text, err := receipt.Fetch(r.Context(), h.R, number); err == nil {
			writeReceipt(w, text)
			return
		}
	}
	entry, err := h.Store.ByNumber(r.Context(), number)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "bill not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "unable to load bill", nil)
		return
	}
	writeReceipt(w, receipt.Render(entry.Bill()))
}

func writeReceipt(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(text))
}
