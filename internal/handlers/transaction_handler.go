package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"growvia-service/internal/models"
	"growvia-service/internal/services"
)

func (h *Handler) GetTransactions(c *gin.Context) {
	page, limit := pageParams(c)
	txType := models.WalletTransactionType(c.Query("type"))
	result, err := h.Wallet.ListTransactions(c.Request.Context(), actorFrom(c), c.Param("user_id"), txType, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Reconcile replays the user's ledger against the stored balance.
func (h *Handler) Reconcile(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.Access.Authorize(ctx, actorFrom(c), services.Resource{}, services.ActionReconcileWallet); err != nil {
		respondError(c, err)
		return
	}
	rec, err := h.Wallet.Reconcile(ctx, c.Param("user_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, rec, "Reconciliation complete")
}
