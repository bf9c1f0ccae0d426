package courses

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kampus-akademi/backend/internal/models"
	"github.com/kampus-akademi/backend/pkg/response"
)

// UpsertRequest is the body for PUT /admin/courses/:id.
type UpsertRequest struct {
	Slug             string          `json:"slug" binding:"required"`
	Name             string          `json:"name" binding:"required"`
	Description      string          `json:"description"`
	Category         string          `json:"category"`
	Level            string          `json:"level" binding:"omitempty,oneof=beginner intermediate advanced"`
	Locale           string          `json:"locale" binding:"omitempty,oneof=tr en"`
	Price            decimal.Decimal `json:"price"`
	Currency         string          `json:"currency" binding:"omitempty,len=3"`
	GatewayProductID *string         `json:"gateway_product_id"`
	IsActive         *bool           `json:"is_active"`
}

// Handler handles catalog HTTP endpoints.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates a courses handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, logger: logger}
}

// List handles GET /courses?category=&level=&locale=&q=&free=&limit=&offset=.
func (h *Handler) List(c *gin.Context) {
	f := models.CourseFilter{
		Category: c.Query("category"),
		Level:    c.Query("level"),
		Locale:   c.Query("locale"),
		Query:    c.Query("q"),
		FreeOnly: c.Query("free") == "true",
	}
	f.Limit, _ = strconv.Atoi(c.Query("limit"))
	f.Offset, _ = strconv.Atoi(c.Query("offset"))
	if f.Offset < 0 {
		f.Offset = 0
	}
	list, err := h.repo.List(c.Request.Context(), f)
	if err != nil {
		h.logger.Error("list courses failed", zap.Error(err))
		response.FromError(c, err)
		return
	}
	response.OK(c, list)
}

// Get handles GET /courses/:id.
func (h *Handler) Get(c *gin.Context) {
	course, err := h.repo.GetActive(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, course)
}

// Upsert handles PUT /admin/courses/:id.
func (h *Handler) Upsert(c *gin.Context) {
	var req UpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.Price.IsNegative() {
		response.BadRequest(c, "price must not be negative")
		return
	}
	course := &models.Course{
		ID:               c.Param("id"),
		Slug:             req.Slug,
		Name:             req.Name,
		Description:      req.Description,
		Category:         req.Category,
		Level:            req.Level,
		Locale:           orDefault(req.Locale, "tr"),
		Price:            req.Price,
		Currency:         orDefault(req.Currency, "TRY"),
		GatewayProductID: req.GatewayProductID,
		IsActive:         req.IsActive == nil || *req.IsActive,
	}
	if err := h.repo.Upsert(c.Request.Context(), course); err != nil {
		h.logger.Error("upsert course failed", zap.Error(err), zap.String("course_id", course.ID))
		response.FromError(c, err)
		return
	}
	response.OK(c, course)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
