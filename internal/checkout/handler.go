package checkout

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kampus-akademi/backend/internal/middleware"
	"github.com/kampus-akademi/backend/internal/payment"
	"github.com/kampus-akademi/backend/pkg/response"
)

const maxWebhookBody = 1 << 20

// CreateOrderRequest is the body for POST /orders.
type CreateOrderRequest struct {
	CourseID      string           `json:"courseId" binding:"required"`
	Email         string           `json:"email" binding:"required,email"`
	Name          string           `json:"name" binding:"required"`
	Phone         string           `json:"phone"`
	Amount        *decimal.Decimal `json:"amount"`
	DiscountCodes []string         `json:"discountCodes" binding:"max=5"`
	ReferralCode  string           `json:"referralCode"`
	Locale        string           `json:"locale"`
	UserID        string           `json:"userId"`
}

// Handler exposes the checkout workflow over HTTP.
type Handler struct {
	svc           *Service
	webhookSecret string
	logger        *zap.Logger
}

// NewHandler creates a checkout handler. An empty webhookSecret disables signature checks.
func NewHandler(svc *Service, webhookSecret string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, webhookSecret: webhookSecret, logger: logger}
}

// CreateOrder handles POST /orders.
func (h *Handler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	authID, _, _ := middleware.CurrentUser(c)
	res, err := h.svc.CreateOrder(c.Request.Context(), CreateOrderInput{
		CourseID:      req.CourseID,
		Email:         req.Email,
		Name:          req.Name,
		Phone:         req.Phone,
		Amount:        req.Amount,
		DiscountCodes: req.DiscountCodes,
		ReferralCode:  req.ReferralCode,
		Locale:        req.Locale,
		UserID:        req.UserID,
		AuthUserID:    authID,
		ClientIP:      c.ClientIP(),
		UserAgent:     c.Request.UserAgent(),
	})
	if err != nil {
		h.logger.Warn("create order failed", zap.String("course_id", req.CourseID), zap.Error(err))
		response.FromError(c, err)
		return
	}
	response.Fields(c, gin.H{
		"orderId":     res.OrderID,
		"redirectUrl": res.RedirectURL,
		"status":      res.Status,
		"amount":      res.Amount,
		"enrolled":    res.Enrolled,
	})
}

// Callback handles GET|POST /payments/callback and always answers with a redirect.
func (h *Handler) Callback(c *gin.Context) {
	res := h.svc.ReconcileCallback(c.Request.Context(), CallbackInput{
		Code:             param(c, "code"),
		State:            param(c, "state"),
		Error:            param(c, "error"),
		ErrorDescription: param(c, "error_description"),
	})
	status := http.StatusFound
	if c.Request.Method == http.MethodPost {
		status = http.StatusSeeOther
	}
	c.Redirect(status, res.RedirectURL)
}

// Webhook handles POST /payments/webhook.
func (h *Handler) Webhook(c *gin.Context) {
	body, err := readLimited(c, maxWebhookBody)
	if err != nil {
		response.BadRequest(c, "unreadable body")
		return
	}
	if !payment.VerifyWebhookSignature(h.webhookSecret, body, c.GetHeader(payment.SignatureHeader)) {
		h.logger.Warn("webhook signature mismatch", zap.String("client_ip", c.ClientIP()))
		response.Unauthorized(c, "invalid signature")
		return
	}
	ev, err := payment.ParseWebhook(c.ContentType(), body)
	if err != nil {
		response.FromError(c, err)
		return
	}
	res, err := h.svc.ReconcileWebhook(c.Request.Context(), ev)
	if err != nil {
		h.logger.Error("webhook reconciliation failed", zap.String("product_id", ev.ProductID), zap.Error(err))
		response.FromError(c, err)
		return
	}
	response.Fields(c, gin.H{
		"orderId":   res.OrderID,
		"courseId":  res.CourseID,
		"status":    res.Status,
		"enrolled":  res.Enrolled,
		"duplicate": res.Duplicate,
	})
}

// Lookup handles GET /orders/lookup?orderId=.
func (h *Handler) Lookup(c *gin.Context) {
	o, err := h.svc.Lookup(c.Request.Context(), c.Query("orderId"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Fields(c, gin.H{
		"orderId":    o.ID,
		"courseId":   o.CourseID,
		"courseName": o.CourseName,
		"status":     o.Status,
	})
}

// Sync handles POST /orders/sync for the authenticated caller.
func (h *Handler) Sync(c *gin.Context) {
	userID, email, ok := middleware.CurrentUser(c)
	if !ok || email == "" {
		response.Unauthorized(c, "missing user context")
		return
	}
	n, err := h.svc.DeferredSync(c.Request.Context(), userID, email)
	if err != nil {
		h.logger.Error("deferred sync failed", zap.String("user_id", userID), zap.Error(err))
		response.FromError(c, err)
		return
	}
	response.Fields(c, gin.H{"synced": n})
}

func param(c *gin.Context, key string) string {
	if v := c.Query(key); v != "" {
		return v
	}
	return c.PostForm(key)
}

func readLimited(c *gin.Context, limit int64) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	return c.GetRawData()
}
