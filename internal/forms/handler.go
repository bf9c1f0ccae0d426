// Package forms accepts the site's dynamic forms (careers, club, contact, instructor) and lists them for admins.
package forms

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kampus-akademi/backend/internal/models"
	"github.com/kampus-akademi/backend/pkg/response"
	"github.com/kampus-akademi/backend/pkg/storage"
)

const maxFormBody = storage.MaxAttachmentSize + 1<<20

// Store persists submissions.
type Store interface {
	Create(ctx context.Context, s *models.FormSubmission) error
	List(ctx context.Context, kind string, limit int) ([]*models.FormSubmission, error)
}

// Attachments stores uploaded files.
type Attachments interface {
	Upload(ctx context.Context, bucket, key, contentType string, body io.Reader, contentLength int64) error
	DeleteObject(ctx context.Context, bucket, key string) error
	GeneratePresignedDownloadURL(ctx context.Context, bucket, key string, expires time.Duration) (string, error)
	PresignExpire() time.Duration
	FormsBucket() string
}

// Notifier forwards new submissions.
type Notifier interface {
	FormReceived(ctx context.Context, sub *models.FormSubmission) error
}

// Handler handles form endpoints.
type Handler struct {
	store         Store
	files         Attachments
	notifier      Notifier
	defaultLocale string
	logger        *zap.Logger
}

// NewHandler creates a forms handler. files may be nil, in which case attachments are refused.
func NewHandler(store Store, files Attachments, notifier Notifier, defaultLocale string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, files: files, notifier: notifier, defaultLocale: defaultLocale, logger: logger}
}

// Submit handles POST /forms/:kind. Accepts JSON or multipart with an optional "attachment" file.
func (h *Handler) Submit(c *gin.Context) {
	kind := c.Param("kind")
	rule, ok := kinds[kind]
	if !ok {
		response.NotFound(c, "unknown form")
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxFormBody)

	form := rule.newForm()
	if err := c.ShouldBind(form); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	base := form.base()
	sub := &models.FormSubmission{
		ID:       uuid.New(),
		Kind:     kind,
		Email:    strings.ToLower(strings.TrimSpace(base.Email)),
		FullName: strings.TrimSpace(base.FullName),
		Locale:   base.Locale,
	}
	if sub.Locale == "" {
		sub.Locale = h.defaultLocale
	}
	fields, err := extraFields(form)
	if err != nil {
		response.Internal(c, "failed to encode form")
		return
	}
	sub.Fields = fields

	file, err := c.FormFile("attachment")
	switch {
	case err == nil:
		if h.files == nil {
			response.BadRequest(c, "attachments are not accepted")
			return
		}
		ct, vErr := storage.ValidateAttachment(file.Filename, file.Size)
		if vErr != nil {
			response.BadRequest(c, vErr.Error())
			return
		}
		f, oErr := file.Open()
		if oErr != nil {
			response.BadRequest(c, "unreadable attachment")
			return
		}
		key := storage.AttachmentKey(kind, sub.ID.String(), file.Filename)
		uErr := h.files.Upload(c.Request.Context(), h.files.FormsBucket(), key, ct, f, file.Size)
		_ = f.Close()
		if uErr != nil {
			h.logger.Error("attachment upload failed", zap.String("kind", kind), zap.Error(uErr))
			response.Internal(c, "failed to store attachment")
			return
		}
		sub.AttachmentKey = &key
	case rule.attachmentRequired:
		response.BadRequest(c, "attachment is required")
		return
	}

	if err := h.store.Create(c.Request.Context(), sub); err != nil {
		h.logger.Error("store form submission failed", zap.String("kind", kind), zap.Error(err))
		if sub.AttachmentKey != nil {
			if dErr := h.files.DeleteObject(c.Request.Context(), h.files.FormsBucket(), *sub.AttachmentKey); dErr != nil {
				h.logger.Warn("orphaned attachment", zap.String("key", *sub.AttachmentKey), zap.Error(dErr))
			}
		}
		response.FromError(c, err)
		return
	}
	if h.notifier != nil {
		if err := h.notifier.FormReceived(c.Request.Context(), sub); err != nil {
			h.logger.Warn("form notification failed", zap.String("submission_id", sub.ID.String()), zap.Error(err))
		}
	}
	h.logger.Info("form submitted", zap.String("kind", kind), zap.String("submission_id", sub.ID.String()))
	response.Created(c, gin.H{"id": sub.ID})
}

// List handles GET /admin/forms?kind=&limit=. Attachments come back as presigned download URLs.
func (h *Handler) List(c *gin.Context) {
	kind := c.Query("kind")
	if _, ok := kinds[kind]; kind != "" && !ok {
		response.BadRequest(c, "unknown form kind")
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	list, err := h.store.List(c.Request.Context(), kind, limit)
	if err != nil {
		response.FromError(c, err)
		return
	}
	if h.files != nil {
		for _, s := range list {
			if s.AttachmentKey == nil {
				continue
			}
			u, err := h.files.GeneratePresignedDownloadURL(c.Request.Context(), h.files.FormsBucket(), *s.AttachmentKey, h.files.PresignExpire())
			if err != nil {
				h.logger.Warn("presign attachment failed", zap.String("key", *s.AttachmentKey), zap.Error(err))
				continue
			}
			s.AttachmentURL = u
		}
	}
	response.OK(c, list)
}

// extraFields returns the kind-specific fields as a JSON object.
func extraFields(form submission) (json.RawMessage, error) {
	raw, err := json.Marshal(form)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	delete(m, "fullName")
	delete(m, "email")
	delete(m, "locale")
	return json.Marshal(m)
}
