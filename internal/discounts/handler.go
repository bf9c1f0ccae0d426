package discounts

import (
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kampus-akademi/backend/internal/auth"
	"github.com/kampus-akademi/backend/internal/middleware"
	"github.com/kampus-akademi/backend/pkg/response"
)

// ApplyRequest is the body for POST /discounts/apply.
type ApplyRequest struct {
	Code           string          `json:"code" binding:"required"`
	UserID         string          `json:"userId"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	CoursePrice    decimal.Decimal `json:"coursePrice"`
}

// QuoteRequest is the body for POST /discounts/quote.
type QuoteRequest struct {
	Code        string          `json:"code" binding:"required"`
	CoursePrice decimal.Decimal `json:"coursePrice"`
}

// Handler handles discount and referral endpoints.
type Handler struct {
	ledger *Ledger
	logger *zap.Logger
}

// NewHandler creates a discounts handler.
func NewHandler(ledger *Ledger, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{ledger: ledger, logger: logger}
}

// RegisterPublic mounts the unauthenticated pricing routes. A bearer token, when present,
// names the user an applied code is marked against.
func (h *Handler) RegisterPublic(r gin.IRoutes, jwtService *auth.JWTService) {
	r.POST("/discounts/apply", middleware.OptionalJWT(jwtService), h.Apply)
	r.POST("/discounts/quote", h.Quote)
}

// Apply handles POST /discounts/apply. It validates the code without consuming its balance.
func (h *Handler) Apply(c *gin.Context) {
	var req ApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID := req.UserID
	if id, _, ok := middleware.CurrentUser(c); ok {
		userID = id
	}
	if err := h.ledger.ValidateAndReserveDiscount(c.Request.Context(), req.Code, userID, req.DiscountAmount, req.CoursePrice); err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, nil)
}

// Quote handles POST /discounts/quote.
func (h *Handler) Quote(c *gin.Context) {
	var req QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	amount, d, err := h.ledger.Quote(c.Request.Context(), req.Code, req.CoursePrice)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, gin.H{"code": d.Code, "discountAmount": amount, "isReferral": d.IsReferral})
}

// MyReferral handles GET /me/referral.
func (h *Handler) MyReferral(c *gin.Context) {
	userID, _, ok := middleware.CurrentUser(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	code, usages, err := h.ledger.ReferralSummary(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, gin.H{"code": code, "referrals": usages})
}

// IssueReferral handles POST /me/referral. It returns the caller's code, creating it if needed.
func (h *Handler) IssueReferral(c *gin.Context) {
	userID, _, ok := middleware.CurrentUser(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	code, err := h.ledger.IssueReferralCode(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("issue referral code failed", zap.Error(err), zap.String("user_id", userID))
		response.FromError(c, err)
		return
	}
	response.Created(c, code)
}
