package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"growvia-service/internal/services"
)

func (h *Handler) GetWallet(c *gin.Context) {
	wallet, err := h.Wallet.GetWallet(c.Request.Context(), actorFrom(c), c.Param("user_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, wallet, "Wallet fetched")
}

type transferRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (h *Handler) TransferPoints(c *gin.Context) {
	var req transferRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.Wallet.TransferPointsToWallet(c.Request.Context(), actorFrom(c), services.TransferPointsDTO{
		UserID: c.Param("user_id"),
		Amount: req.Amount,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, result, "Points transferred to wallet")
}

type affiliatePaymentRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Note      string          `json:"note"`
	Reference string          `json:"reference"`
}

func (h *Handler) CreditAffiliatePayment(c *gin.Context) {
	var req affiliatePaymentRequest
	if !bindJSON(c, &req) {
		return
	}
	row, err := h.Wallet.CreditAffiliatePayment(c.Request.Context(), actorFrom(c), services.CreditAffiliatePaymentDTO{
		UserID:    c.Param("user_id"),
		Amount:    req.Amount,
		Note:      req.Note,
		Reference: req.Reference,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, row, "Affiliate payment credited")
}
