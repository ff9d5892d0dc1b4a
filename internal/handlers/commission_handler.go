package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"growvia-service/internal/models"
	"growvia-service/internal/services"
)

// RecordCommission accrues a conversion reported by the tracking pipeline.
func (h *Handler) RecordCommission(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.Access.Authorize(ctx, actorFrom(c), services.Resource{}, services.ActionTrackConversion); err != nil {
		respondError(c, err)
		return
	}
	var req services.RecordEntryDTO
	if !bindJSON(c, &req) {
		return
	}
	entry, err := h.Commissions.RecordEntry(ctx, req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, entry, "Commission recorded")
}

func (h *Handler) ApproveCommission(c *gin.Context) {
	entry, err := h.Commissions.Approve(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, entry, "Commission approved")
}

func (h *Handler) RejectCommission(c *gin.Context) {
	var req reasonRequest
	if !bindJSON(c, &req) {
		return
	}
	entry, err := h.Commissions.Reject(c.Request.Context(), actorFrom(c), c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, entry, "Commission rejected")
}

func (h *Handler) ListCommissions(c *gin.Context) {
	page, limit := pageParams(c)
	filter := services.EntryFilter{
		UserID:         c.Query("user_id"),
		CampaignID:     c.Query("campaign_id"),
		OrganizationID: c.Query("organization_id"),
		Status:         models.CommissionStatus(c.Query("status")),
	}
	result, err := h.Commissions.ListEntries(c.Request.Context(), actorFrom(c), filter, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) GetEarnings(c *gin.Context) {
	earnings, err := h.Commissions.Earnings(c.Request.Context(), actorFrom(c), c.Param("user_id"), c.Query("campaign_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, earnings, "Earnings fetched")
}
