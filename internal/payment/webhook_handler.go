package payment

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/frahmantamala/dental-credit/internal/transport"
)

type WebhookHandler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewWebhookHandler(svc ServiceAPI, lg *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     svc,
	}
}

// PaymentCallbackRequest is the body the processor posts on every status change.
type PaymentCallbackRequest struct {
	ProcessorID   string `json:"processor_id"`
	Status        string `json:"status"`
	FailureReason string `json:"failure_reason,omitempty"`
}

type PaymentCallbackResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// HandlePaymentCallback handles POST /payments/webhook
func (h *WebhookHandler) HandlePaymentCallback(w http.ResponseWriter, r *http.Request) {
	var req PaymentCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("invalid payment callback request", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.Logger.Info("received payment callback",
		"processor_id", req.ProcessorID,
		"status", req.Status)

	if req.ProcessorID == "" {
		h.WriteError(w, http.StatusBadRequest, "processor_id is required")
		return
	}
	status := MapProcessorStatus(req.Status)
	if status == "" {
		h.Logger.Warn("payment callback with unknown status", "processor_id", req.ProcessorID, "status", req.Status)
		h.WriteError(w, http.StatusBadRequest, "unknown status")
		return
	}

	callback, _ := json.Marshal(map[string]interface{}{
		"processor_id":   req.ProcessorID,
		"gateway_status": req.Status,
		"failure_reason": req.FailureReason,
		"callback_time":  time.Now().UTC(),
	})

	p, err := h.Service.UpdatePaymentStatus(r.Context(), req.ProcessorID, status, req.FailureReason, callback)
	if err != nil {
		h.Logger.Error("failed to process payment callback",
			"processor_id", req.ProcessorID,
			"status", req.Status,
			"error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("payment callback processed",
		"payment_id", p.ID,
		"processor_id", req.ProcessorID,
		"status", p.Status)
	h.WriteJSON(w, http.StatusOK, PaymentCallbackResponse{
		Status:  "success",
		Message: "callback processed successfully",
	})
}
