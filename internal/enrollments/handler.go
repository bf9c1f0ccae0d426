package enrollments

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kampus-akademi/backend/internal/middleware"
	"github.com/kampus-akademi/backend/pkg/response"
)

// Handler handles enrollment HTTP endpoints.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates an enrollments handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, logger: logger}
}

// ListMine handles GET /me/enrollments. Guest enrollments made under the caller's email are included.
func (h *Handler) ListMine(c *gin.Context) {
	userID, email, ok := middleware.CurrentUser(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	list, err := h.repo.ListActiveByUser(c.Request.Context(), userID, email)
	if err != nil {
		h.logger.Error("list enrollments failed", zap.Error(err), zap.String("user_id", userID))
		response.FromError(c, err)
		return
	}
	response.OK(c, list)
}

// Deactivate handles DELETE /admin/enrollments?user_id=&course_id=. Call after RequireRole(admin).
func (h *Handler) Deactivate(c *gin.Context) {
	userID, courseID := c.Query("user_id"), c.Query("course_id")
	if userID == "" || courseID == "" {
		response.BadRequest(c, "user_id and course_id are required")
		return
	}
	if err := h.repo.Deactivate(c.Request.Context(), userID, courseID); err != nil {
		h.logger.Warn("deactivate enrollment failed", zap.Error(err), zap.String("user_id", userID), zap.String("course_id", courseID))
		response.FromError(c, err)
		return
	}
	response.OK(c, gin.H{"user_id": userID, "course_id": courseID, "is_active": false})
}
