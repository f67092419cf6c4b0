package webhook

import (
	"errors"
	"io"
	"net/http"

	"ms-lectures/internal/logger"
	"ms-lectures/internal/utils"
)

// Stripe caps webhook payloads well below this.
const maxPayloadBytes = 65536

type Handler struct {
	Ingestor *Ingestor
	Log      *logger.Logger
}

func NewHandler(ingestor *Ingestor, log *logger.Logger) *Handler {
	return &Handler{Ingestor: ingestor, Log: log}
}

// HandleWebhook reads the raw body before any parsing so the signature is
// recomputed over the provider's exact signing input. 400 means terminal
// (bad signature, not retried); 500 signals the provider to redeliver.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid payload", err.Error()))
		return
	}

	err = h.Ingestor.Process(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, ErrSignatureInvalid) {
			utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Signature verification failed", err.Error()))
			return
		}
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Webhook processing failed", err.Error()))
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
}
