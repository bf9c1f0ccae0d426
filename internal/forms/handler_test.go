package forms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kampus-akademi/backend/internal/apperr"
	"github.com/kampus-akademi/backend/internal/models"
)

type memStore struct {
	subs []*models.FormSubmission
	err  error
}

func (m *memStore) Create(_ context.Context, s *models.FormSubmission) error {
	if m.err != nil {
		return m.err
	}
	s.CreatedAt = time.Now()
	m.subs = append(m.subs, s)
	return nil
}

func (m *memStore) List(_ context.Context, kind string, _ int) ([]*models.FormSubmission, error) {
	var out []*models.FormSubmission
	for _, s := range m.subs {
		if kind == "" || s.Kind == kind {
			out = append(out, s)
		}
	}
	return out, nil
}

type memFiles struct {
	objects map[string][]byte
	deleted []string
}

func (f *memFiles) Upload(_ context.Context, _, key, _ string, body io.Reader, _ int64) error {
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.objects[key] = b
	return nil
}

func (f *memFiles) DeleteObject(_ context.Context, _, key string) error {
	f.deleted = append(f.deleted, key)
	delete(f.objects, key)
	return nil
}

func (f *memFiles) GeneratePresignedDownloadURL(_ context.Context, bucket, key string, _ time.Duration) (string, error) {
	return "https://" + bucket + ".s3.test/" + key + "?sig=1", nil
}

func (f *memFiles) PresignExpire() time.Duration { return time.Minute }
func (f *memFiles) FormsBucket() string          { return "forms-bucket" }

type memNotifier struct{ got []*models.FormSubmission }

func (n *memNotifier) FormReceived(_ context.Context, s *models.FormSubmission) error {
	n.got = append(n.got, s)
	return nil
}

func setup(t *testing.T) (*gin.Engine, *memStore, *memFiles, *memNotifier) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store, files, notifier := &memStore{}, &memFiles{objects: map[string][]byte{}}, &memNotifier{}
	h := NewHandler(store, files, notifier, "tr", nil)
	r := gin.New()
	r.POST("/forms/:kind", h.Submit)
	r.GET("/admin/forms", h.List)
	return r, store, files, notifier
}

func multipartBody(t *testing.T, fields map[string]string, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("attachment", filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestSubmitContactJSON(t *testing.T) {
	r, store, _, notifier := setup(t)
	body := `{"fullName":"Ann","email":"Ann@Example.com","subject":"Hello","message":"Question about Go"}`

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/forms/contact", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.Len(t, store.subs, 1)
	sub := store.subs[0]
	assert.Equal(t, "ann@example.com", sub.Email)
	assert.Equal(t, "tr", sub.Locale)
	assert.JSONEq(t, `{"subject":"Hello","message":"Question about Go"}`, string(sub.Fields))
	assert.Nil(t, sub.AttachmentKey)
	assert.Len(t, notifier.got, 1)
}

func TestSubmitCareersWithAttachment(t *testing.T) {
	r, store, files, _ := setup(t)
	buf, ct := multipartBody(t, map[string]string{
		"fullName": "Bob", "email": "bob@example.com", "phone": "+905551112233", "position": "Backend",
	}, "cv.pdf", []byte("%PDF-1.4"))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/forms/careers", buf)
	req.Header.Set("Content-Type", ct)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	sub := store.subs[0]
	require.NotNil(t, sub.AttachmentKey)
	assert.Equal(t, "forms/careers/"+sub.ID.String()+".pdf", *sub.AttachmentKey)
	assert.Equal(t, []byte("%PDF-1.4"), files.objects[*sub.AttachmentKey])
}

func TestSubmitRejects(t *testing.T) {
	cases := []struct {
		name     string
		kind     string
		fields   map[string]string
		filename string
		status   int
	}{
		{"unknown kind", "newsletter", map[string]string{"fullName": "A", "email": "a@b.co"}, "", http.StatusNotFound},
		{"missing required field", "contact", map[string]string{"fullName": "A", "email": "a@b.co", "subject": "s"}, "", http.StatusBadRequest},
		{"bad email", "club", map[string]string{"fullName": "A", "email": "nope", "university": "ITU"}, "", http.StatusBadRequest},
		{"careers without cv", "careers", map[string]string{"fullName": "A", "email": "a@b.co", "phone": "1", "position": "p"}, "", http.StatusBadRequest},
		{"wrong file type", "instructor", map[string]string{"fullName": "A", "email": "a@b.co", "expertise": "Go"}, "cv.exe", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, store, _, _ := setup(t)
			buf, ct := multipartBody(t, tc.fields, tc.filename, []byte("x"))
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/forms/"+tc.kind, buf)
			req.Header.Set("Content-Type", ct)
			r.ServeHTTP(w, req)

			assert.Equal(t, tc.status, w.Code, w.Body.String())
			assert.Empty(t, store.subs)
		})
	}
}

func TestSubmitStoreFailureRemovesAttachment(t *testing.T) {
	r, store, files, _ := setup(t)
	store.err = apperr.Persistence("insert form submission", errors.New("db down"))
	buf, ct := multipartBody(t, map[string]string{"fullName": "A", "email": "a@b.co", "expertise": "Go"}, "cv.docx", []byte("doc"))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/forms/instructor", buf)
	req.Header.Set("Content-Type", ct)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Len(t, files.deleted, 1)
	assert.Empty(t, files.objects)
}

func TestListPresignsAttachments(t *testing.T) {
	r, store, _, _ := setup(t)
	key := "forms/careers/x.pdf"
	store.subs = []*models.FormSubmission{
		{Kind: models.FormKindCareers, Email: "a@b.co", AttachmentKey: &key, Fields: json.RawMessage(`{}`)},
		{Kind: models.FormKindContact, Email: "c@d.co", Fields: json.RawMessage(`{}`)},
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/forms?kind=careers", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data []models.FormSubmission `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "https://forms-bucket.s3.test/forms/careers/x.pdf?sig=1", body.Data[0].AttachmentURL)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/forms?kind=bogus", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
