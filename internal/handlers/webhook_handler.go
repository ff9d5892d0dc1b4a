package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"growvia-service/internal/services"
	"growvia-service/pkg/common"
)

const paystackSignatureHeader = "X-Paystack-Signature"

// PaystackWebhook applies transfer outcomes. Anything other than a bad
// signature is acknowledged with 200 so Paystack stops redelivering.
func (h *Handler) PaystackWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		respondError(c, &common.ValidationError{Message: "could not read body", Cause: err})
		return
	}
	if h.Webhooks == nil || !h.Webhooks.VerifySignature(body, c.GetHeader(paystackSignatureHeader)) {
		c.JSON(http.StatusUnauthorized, common.NewErrorResponse("invalid signature", nil, http.StatusUnauthorized))
		return
	}

	event, err := services.ParseTransferEvent(body)
	if err != nil {
		respondError(c, err)
		return
	}
	log := logrus.WithFields(logrus.Fields{"event": event.Event, "reference": event.Reference})
	switch event.Event {
	case services.TransferEventSuccess, services.TransferEventFailed, services.TransferEventReversed:
	default:
		log.Debug("ignoring paystack event")
		c.Status(http.StatusOK)
		return
	}

	payout, err := h.Payouts.HandleTransferEvent(c.Request.Context(), event)
	if err != nil {
		if common.StatusCode(err) == http.StatusInternalServerError {
			// Let Paystack retry.
			respondError(c, err)
			return
		}
		log.WithError(err).Warn("paystack event not applied")
		c.Status(http.StatusOK)
		return
	}
	log.WithField("status", payout.Status).Info("paystack event applied")
	c.Status(http.StatusOK)
}
