package discounts

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kampus-akademi/backend/internal/auth"
	"github.com/kampus-akademi/backend/internal/models"
)

func setupRouter(t *testing.T) (*gin.Engine, *memStore, *auth.JWTService) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := newMemStore(&models.DiscountCode{
		Code: "SPRING", DiscountType: models.DiscountTypeFixed, DiscountValue: dec("50"),
		MaxUsage: 10, ValidFrom: time.Now().Add(-time.Hour),
	})
	jwtSvc := auth.NewJWTService("jwt-secret", 1)
	r := gin.New()
	NewHandler(newTestLedger(t, store, 3), nil).RegisterPublic(r, jwtSvc)
	return r, store, jwtSvc
}

func postApply(r http.Handler, body gin.H, token string) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/discounts/apply", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestApplyMarksCodeAgainstTokenUser(t *testing.T) {
	r, store, jwtSvc := setupRouter(t)
	id := uuid.New()
	tok, err := jwtSvc.Generate(id, "buyer@example.com", "student")
	require.NoError(t, err)

	w := postApply(r, gin.H{"code": "spring", "userId": "someone-else", "discountAmount": "50", "coursePrice": "200"}, tok)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	d, err := store.GetCode(context.Background(), "SPRING")
	require.NoError(t, err)
	require.NotNil(t, d.UsedBy)
	assert.Equal(t, id.String(), *d.UsedBy)
}

func TestApplyAsGuestUsesBodyUser(t *testing.T) {
	r, store, _ := setupRouter(t)

	w := postApply(r, gin.H{"code": "SPRING", "userId": "guest@example.com", "discountAmount": "20", "coursePrice": "200"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	d, err := store.GetCode(context.Background(), "SPRING")
	require.NoError(t, err)
	require.NotNil(t, d.UsedBy)
	assert.Equal(t, "guest@example.com", *d.UsedBy)
}

func TestApplyRejectsOverGrant(t *testing.T) {
	r, store, _ := setupRouter(t)

	w := postApply(r, gin.H{"code": "SPRING", "discountAmount": "80", "coursePrice": "200"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, store.markUsed)
}
