package emaillogs

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kampus-akademi/backend/internal/models"
	"github.com/kampus-akademi/backend/pkg/response"
)

// Lister is the read side of the email log.
type Lister interface {
	List(ctx context.Context, f Filter) ([]*models.EmailLog, error)
}

// Resender re-sends the purchase confirmation for an order.
type Resender interface {
	ResendPurchaseConfirmation(ctx context.Context, orderID string) error
}

// Handler handles email log HTTP endpoints.
type Handler struct {
	repo     Lister
	resender Resender
}

// NewHandler creates an email logs handler.
func NewHandler(repo Lister, resender Resender) *Handler {
	return &Handler{repo: repo, resender: resender}
}

// List handles GET /admin/emails?order_id=&status=&limit=. Call after RequireRole(admin).
func (h *Handler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	logs, err := h.repo.List(c.Request.Context(), Filter{
		OrderID: c.Query("order_id"),
		Status:  c.Query("status"),
		Limit:   limit,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, logs)
}

// Resend handles POST /admin/orders/:id/resend-confirmation.
func (h *Handler) Resend(c *gin.Context) {
	if err := h.resender.ResendPurchaseConfirmation(c.Request.Context(), c.Param("id")); err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, gin.H{"message": "resend queued"})
}
