package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"growvia-service/internal/metrics"
	"growvia-service/internal/services"
	"growvia-service/pkg/common"
)

// The upstream gateway authenticates the caller and forwards its identity.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

// WebhookVerifier checks a provider signature over the raw request body.
type WebhookVerifier interface {
	VerifySignature(body []byte, signature string) bool
}

type Handler struct {
	Wallet      *services.WalletService
	Payouts     *services.PayoutService
	Methods     *services.PayoutMethodService
	Affiliates  *services.CampaignAffiliateService
	Commissions *services.CommissionService
	KYC         *services.KYCService
	Access      *services.Authorizer
	Webhooks    WebhookVerifier
}

func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), metrics.GinMiddleware(), requestLogger())

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "Welcome To Growvia Wallet service",
		})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := r.Group("/api/v1")

	users := v1.Group("/users/:user_id")
	users.GET("/wallet", h.GetWallet)
	users.POST("/wallet/transfers", h.TransferPoints)
	users.POST("/wallet/affiliate-payments", h.CreditAffiliatePayment)
	users.GET("/wallet/transactions", h.GetTransactions)
	users.GET("/wallet/reconciliation", h.Reconcile)
	users.GET("/payout-methods", h.ListPayoutMethods)
	users.POST("/payout-methods", h.AddPayoutMethod)
	users.POST("/withdrawals", h.RequestWithdrawal)
	users.GET("/payouts", h.ListPayouts)
	users.GET("/earnings", h.GetEarnings)
	users.GET("/kyc", h.GetKYC)
	users.POST("/kyc/documents", h.SubmitKYCDocuments)
	users.POST("/kyc/review", h.ReviewKYCDocuments)
	users.POST("/kyc/email-verification", h.RecordEmailVerified)
	users.POST("/kyc/bvn", h.RecordBVNResult)

	methods := v1.Group("/payout-methods/:id")
	methods.PUT("/default", h.SetDefaultPayoutMethod)
	methods.DELETE("", h.RemovePayoutMethod)
	methods.POST("/otp", h.SendPayoutMethodOTP)
	methods.POST("/verify", h.VerifyPayoutMethod)

	payouts := v1.Group("/payouts")
	payouts.POST("/manual", h.CreateManualPayout)
	payouts.GET("/:id", h.GetPayout)
	payouts.POST("/:id/process", h.ProcessPayout)
	payouts.POST("/:id/settle", h.SettlePayout)
	payouts.POST("/:id/fail", h.FailPayout)
	payouts.POST("/:id/reverse", h.ReversePayout)

	campaigns := v1.Group("/campaigns/:campaign_id")
	campaigns.POST("/affiliates", h.AssignAffiliate)
	campaigns.GET("/affiliates", h.ListAffiliates)
	campaigns.POST("/applications", h.ApplyToCampaign)
	campaigns.POST("/invitation/accept", h.AcceptInvitation)
	campaigns.POST("/invitation/decline", h.DeclineInvitation)
	campaigns.POST("/affiliates/:user_id/suspend", h.SuspendAffiliate)
	campaigns.POST("/affiliates/:user_id/reactivate", h.ReactivateAffiliate)
	campaigns.DELETE("/affiliates/:user_id", h.RemoveAffiliate)
	campaigns.POST("/affiliates/:user_id/clicks", h.RecordClick)

	commissions := v1.Group("/commissions")
	commissions.POST("", h.RecordCommission)
	commissions.GET("", h.ListCommissions)
	commissions.POST("/:id/approve", h.ApproveCommission)
	commissions.POST("/:id/reject", h.RejectCommission)

	v1.POST("/webhooks/paystack", h.PaystackWebhook)
	return r
}

func actorFrom(c *gin.Context) services.Actor {
	role := services.PlatformRole(c.GetHeader(HeaderUserRole))
	if role != services.PlatformAdmin && role != services.PlatformSystem {
		role = services.PlatformUser
	}
	return services.Actor{UserID: c.GetHeader(HeaderUserID), Role: role}
}

func respondError(c *gin.Context, err error) {
	res := common.ErrorResponseFrom(err)
	if res.Status == http.StatusInternalServerError {
		logrus.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	}
	c.JSON(res.Status, res)
}

func respondOK(c *gin.Context, data interface{}, message string) {
	c.JSON(http.StatusOK, common.NewSuccessResponse(data, message))
}

func respondCreated(c *gin.Context, data interface{}, message string) {
	c.JSON(http.StatusCreated, common.NewCreatedResponse(data, message))
}

// bindJSON decodes the body; an empty body leaves dst untouched.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, &common.ValidationError{Message: "invalid request body", Cause: err})
		return false
	}
	return true
}

func newBindError(field string, err error) error {
	return &common.ValidationError{Field: field, Message: field + " is required", Cause: err}
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	return page, limit
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logrus.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"user_id":  c.GetHeader(HeaderUserID),
			"duration": time.Since(start).String(),
		}).Debug("request handled")
	}
}

type reasonRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}
