package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"growvia-service/internal/models"
	"growvia-service/internal/services"
)

type assignRequest struct {
	UserID         string `json:"user_id"`
	OrganizationID string `json:"organization_id"`
	Notes          string `json:"notes"`
}

func (h *Handler) AssignAffiliate(c *gin.Context) {
	var req assignRequest
	if !bindJSON(c, &req) {
		return
	}
	assignment, err := h.Affiliates.Assign(c.Request.Context(), actorFrom(c), services.AssignAffiliateDTO{
		CampaignID:     c.Param("campaign_id"),
		UserID:         req.UserID,
		OrganizationID: req.OrganizationID,
		Notes:          req.Notes,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, assignment, "Affiliate invited")
}

func (h *Handler) ListAffiliates(c *gin.Context) {
	page, limit := pageParams(c)
	status := models.AffiliateStatus(c.Query("status"))
	result, err := h.Affiliates.ListByCampaign(c.Request.Context(), actorFrom(c), c.Param("campaign_id"), status, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type applyRequest struct {
	Notes string `json:"notes" binding:"max=2000"`
}

func (h *Handler) ApplyToCampaign(c *gin.Context) {
	var req applyRequest
	if !bindJSON(c, &req) {
		return
	}
	assignment, err := h.Affiliates.Apply(c.Request.Context(), actorFrom(c), c.Param("campaign_id"), req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, assignment, "Application submitted")
}

func (h *Handler) AcceptInvitation(c *gin.Context) {
	assignment, err := h.Affiliates.AcceptInvitation(c.Request.Context(), actorFrom(c), c.Param("campaign_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, assignment, "Invitation accepted")
}

func (h *Handler) DeclineInvitation(c *gin.Context) {
	var req reasonRequest
	if !bindJSON(c, &req) {
		return
	}
	assignment, err := h.Affiliates.DeclineInvitation(c.Request.Context(), actorFrom(c), c.Param("campaign_id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, assignment, "Invitation declined")
}

func (h *Handler) SuspendAffiliate(c *gin.Context) {
	var req reasonRequest
	if !bindJSON(c, &req) {
		return
	}
	assignment, err := h.Affiliates.Suspend(c.Request.Context(), actorFrom(c), c.Param("campaign_id"), c.Param("user_id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, assignment, "Affiliate suspended")
}

func (h *Handler) ReactivateAffiliate(c *gin.Context) {
	var req reasonRequest
	if !bindJSON(c, &req) {
		return
	}
	assignment, err := h.Affiliates.Reactivate(c.Request.Context(), actorFrom(c), c.Param("campaign_id"), c.Param("user_id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, assignment, "Affiliate reactivated")
}

func (h *Handler) RemoveAffiliate(c *gin.Context) {
	err := h.Affiliates.Remove(c.Request.Context(), actorFrom(c), c.Param("campaign_id"), c.Param("user_id"), c.Query("reason"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil, "Affiliate removed")
}

// RecordClick is called by the tracking pipeline, not by end users.
func (h *Handler) RecordClick(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.Access.Authorize(ctx, actorFrom(c), services.Resource{}, services.ActionTrackConversion); err != nil {
		respondError(c, err)
		return
	}
	if err := h.Affiliates.RecordClick(ctx, c.Param("campaign_id"), c.Param("user_id")); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil, "Click recorded")
}
