package handlers

import (
	"github.com/gin-gonic/gin"

	"growvia-service/internal/services"
)

func (h *Handler) GetKYC(c *gin.Context) {
	ctx := c.Request.Context()
	userID := c.Param("user_id")
	if err := h.Access.Authorize(ctx, actorFrom(c), services.Resource{OwnerID: userID}, services.ActionViewKYC); err != nil {
		respondError(c, err)
		return
	}
	record, err := h.KYC.GetOrCreate(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, record, "Verification status fetched")
}

func (h *Handler) SubmitKYCDocuments(c *gin.Context) {
	record, err := h.KYC.SubmitDocuments(c.Request.Context(), actorFrom(c), c.Param("user_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, record, "Documents submitted for review")
}

type reviewRequest struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason" binding:"max=500"`
}

func (h *Handler) ReviewKYCDocuments(c *gin.Context) {
	var req reviewRequest
	if !bindJSON(c, &req) {
		return
	}
	record, err := h.KYC.ReviewDocuments(c.Request.Context(), actorFrom(c), c.Param("user_id"), req.Approved, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, record, "Documents reviewed")
}

// RecordEmailVerified and RecordBVNResult receive outcomes from the identity service.
func (h *Handler) RecordEmailVerified(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.Access.Authorize(ctx, actorFrom(c), services.Resource{}, services.ActionRecordVerification); err != nil {
		respondError(c, err)
		return
	}
	record, err := h.KYC.MarkEmailVerified(ctx, c.Param("user_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, record, "Email verification recorded")
}

type bvnRequest struct {
	Matched bool   `json:"matched"`
	Reason  string `json:"reason" binding:"max=500"`
}

func (h *Handler) RecordBVNResult(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.Access.Authorize(ctx, actorFrom(c), services.Resource{}, services.ActionRecordVerification); err != nil {
		respondError(c, err)
		return
	}
	var req bvnRequest
	if !bindJSON(c, &req) {
		return
	}
	record, err := h.KYC.RecordBVNResult(ctx, c.Param("user_id"), req.Matched, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, record, "BVN result recorded")
}
