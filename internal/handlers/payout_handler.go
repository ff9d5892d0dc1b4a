package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"growvia-service/internal/models"
	"growvia-service/internal/services"
)

type addPayoutMethodRequest struct {
	BankCode      string `json:"bank_code"`
	BankName      string `json:"bank_name"`
	AccountNumber string `json:"account_number"`
}

func (h *Handler) AddPayoutMethod(c *gin.Context) {
	var req addPayoutMethodRequest
	if !bindJSON(c, &req) {
		return
	}
	method, err := h.Methods.AddMethod(c.Request.Context(), actorFrom(c), services.AddPayoutMethodDTO{
		UserID:        c.Param("user_id"),
		BankCode:      req.BankCode,
		BankName:      req.BankName,
		AccountNumber: req.AccountNumber,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, method, "Payout method added, verify it with the code we send you")
}

func (h *Handler) ListPayoutMethods(c *gin.Context) {
	methods, err := h.Methods.ListMethods(c.Request.Context(), actorFrom(c), c.Param("user_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, methods, "Payout methods fetched")
}

func (h *Handler) SetDefaultPayoutMethod(c *gin.Context) {
	method, err := h.Methods.SetDefault(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, method, "Default payout method updated")
}

func (h *Handler) RemovePayoutMethod(c *gin.Context) {
	if err := h.Methods.RemoveMethod(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil, "Payout method removed")
}

func (h *Handler) SendPayoutMethodOTP(c *gin.Context) {
	expiresAt, err := h.Methods.SendOTP(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"expires_at": expiresAt}, "Verification code sent")
}

type verifyOTPRequest struct {
	Code string `json:"code" binding:"required"`
}

func (h *Handler) VerifyPayoutMethod(c *gin.Context) {
	var req verifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, newBindError("code", err))
		return
	}
	method, err := h.Methods.VerifyOTP(c.Request.Context(), actorFrom(c), c.Param("id"), req.Code)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, method, "Payout method verified")
}

type withdrawalRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	PayoutMethodID string          `json:"payout_method_id"`
	TransactionID  string          `json:"transaction_id"`
}

func (h *Handler) RequestWithdrawal(c *gin.Context) {
	var req withdrawalRequest
	if !bindJSON(c, &req) {
		return
	}
	payout, err := h.Payouts.RequestWithdrawal(c.Request.Context(), actorFrom(c), services.RequestWithdrawalDTO{
		UserID:         c.Param("user_id"),
		Amount:         req.Amount,
		PayoutMethodID: req.PayoutMethodID,
		TransactionID:  req.TransactionID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, payout, "Withdrawal request received")
}

func (h *Handler) ListPayouts(c *gin.Context) {
	page, limit := pageParams(c)
	status := models.PayoutStatus(c.Query("status"))
	result, err := h.Payouts.ListForUser(c.Request.Context(), actorFrom(c), c.Param("user_id"), status, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) CreateManualPayout(c *gin.Context) {
	var req services.ManualPayoutDTO
	if !bindJSON(c, &req) {
		return
	}
	payout, err := h.Payouts.CreateManualPayout(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, payout, "Payout created")
}

func (h *Handler) GetPayout(c *gin.Context) {
	payout, err := h.Payouts.Get(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, payout, "Payout fetched")
}

func (h *Handler) ProcessPayout(c *gin.Context) {
	payout, err := h.Payouts.Process(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, payout, "Payout is processing")
}

type settleRequest struct {
	ProviderReference string `json:"provider_reference" binding:"max=150"`
}

func (h *Handler) SettlePayout(c *gin.Context) {
	var req settleRequest
	if !bindJSON(c, &req) {
		return
	}
	payout, err := h.Payouts.Settle(c.Request.Context(), actorFrom(c), c.Param("id"), req.ProviderReference)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, payout, "Payout settled")
}

func (h *Handler) FailPayout(c *gin.Context) {
	var req reasonRequest
	if !bindJSON(c, &req) {
		return
	}
	payout, err := h.Payouts.Fail(c.Request.Context(), actorFrom(c), c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, payout, "Payout failed and funds released")
}

func (h *Handler) ReversePayout(c *gin.Context) {
	var req reasonRequest
	if !bindJSON(c, &req) {
		return
	}
	payout, err := h.Payouts.Reverse(c.Request.Context(), actorFrom(c), c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, payout, "Payout reversed")
}
