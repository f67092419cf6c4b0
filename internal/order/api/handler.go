package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"ms-lectures/internal/auth"
	"ms-lectures/internal/ledger"
	"ms-lectures/internal/logger"
	"ms-lectures/internal/order"
	"ms-lectures/internal/reconcile"
	"ms-lectures/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	Service    *order.Service
	Reconciler *reconcile.Reconciler
	Log        *logger.Logger
}

func NewHandler(service *order.Service, reconciler *reconcile.Reconciler, log *logger.Logger) *Handler {
	return &Handler{Service: service, Reconciler: reconciler, Log: log}
}

// CreateCheckout issues a checkout intent and the provisional order.
func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req order.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request payload", err.Error()))
		return
	}

	provisional, err := h.Service.CreateCheckoutIntent(r.Context(), req)
	if err != nil {
		if errors.Is(err, order.ErrInvalidLevel) {
			utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid reading level", err.Error()))
			return
		}
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Could not create checkout", err.Error()))
		return
	}

	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Checkout intent created", provisional))
}

// SubmitOrder creates the full order from the post-payment submission.
func (h *Handler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req order.SubmissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request payload", err.Error()))
		return
	}

	created, err := h.Service.SubmitOrder(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrValidation), errors.Is(err, order.ErrInvalidLevel):
			utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request", err.Error()))
		case errors.Is(err, ledger.ErrNotFound):
			utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("Checkout not found", err.Error()))
		default:
			utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Could not create order", err.Error()))
		}
		return
	}

	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Order created", created))
}

// GetOrder resolves a lookup key (internal id or payment reference) into
// the unified order view.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	view, err := h.Reconciler.Resolve(r.Context(), key)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			utils.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "Order not found"})
			return
		}
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Lookup failed", err.Error()))
		return
	}

	utils.WriteJSON(w, http.StatusOK, view)
}

// SubmitReview records the authenticated expert's review.
func (h *Handler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	var req struct {
		Notes string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request payload", err.Error()))
		return
	}

	updated, err := h.Service.AttachReview(r.Context(), orderID, auth.UserID(r.Context()), req.Notes)
	if err != nil {
		h.writeOrderError(w, err, "Could not attach review")
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Review recorded", updated))
}

// ValidateOrder applies the expert validation decision.
func (h *Handler) ValidateOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	var req struct {
		Approved bool   `json:"approved"`
		Comment  string `json:"comment,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request payload", err.Error()))
		return
	}

	updated, err := h.Service.Validate(r.Context(), orderID, auth.UserID(r.Context()), req.Approved, req.Comment)
	if err != nil {
		h.writeOrderError(w, err, "Could not validate order")
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Validation recorded", updated))
}

func (h *Handler) writeOrderError(w http.ResponseWriter, err error, message string) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("Order not found", err.Error()))
	case errors.Is(err, order.ErrInvalidState):
		utils.WriteJSON(w, http.StatusConflict, utils.ErrorResponse(message, err.Error()))
	default:
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse(message, err.Error()))
	}
}
