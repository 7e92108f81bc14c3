package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/trowool/yarnshop/internal/models"
)

func newReviewHandler(t *testing.T) (*ReviewHandler, *gorm.DB) {
	t.Helper()
	db := newHandlerDB(t)
	return &ReviewHandler{DB: db, UploadDir: t.TempDir()}, db
}

func reviewForm(t *testing.T, userID uint, fields map[string]string, imageNames ...string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for _, name := range imageNames {
		fw, err := w.CreateFormFile("images", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte("fake image bytes"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reviews", &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if userID != 0 {
		c.Set("userID", userID)
	}
	return c, rec
}

func TestCreateReview(t *testing.T) {
	h, db := newReviewHandler(t)

	c, rec := reviewForm(t, 1, map[string]string{"rating": "5", "text": "lovely wool"}, "a.jpg", "b.jpg")
	require.NoError(t, h.Create(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var review models.Review
	require.NoError(t, db.Where("user_id = ?", 1).First(&review).Error)
	require.Equal(t, uint(5), review.Rating)
	require.Equal(t, "lovely wool", review.Text)
	require.Len(t, review.Images, 2)
}

func TestCreateReviewWithoutImages(t *testing.T) {
	h, _ := newReviewHandler(t)

	c, rec := reviewForm(t, 1, map[string]string{"rating": "4", "text": "good service"})
	require.NoError(t, h.Create(c))
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestCreateReviewDuplicateUser(t *testing.T) {
	h, _ := newReviewHandler(t)

	c, rec := reviewForm(t, 1, map[string]string{"rating": "5", "text": "first"})
	require.NoError(t, h.Create(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	c, rec = reviewForm(t, 1, map[string]string{"rating": "3", "text": "second"})
	require.NoError(t, h.Create(c))
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateReviewInvalidRating(t *testing.T) {
	h, _ := newReviewHandler(t)

	c, rec := reviewForm(t, 1, map[string]string{"rating": "6", "text": "nope"})
	require.NoError(t, h.Create(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateReviewTooManyImages(t *testing.T) {
	h, _ := newReviewHandler(t)

	c, rec := reviewForm(t, 1, map[string]string{"rating": "5", "text": "spam"},
		"1.jpg", "2.jpg", "3.jpg", "4.jpg", "5.jpg", "6.jpg")
	require.NoError(t, h.Create(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListReviewsWithUsernames(t *testing.T) {
	h, db := newReviewHandler(t)
	require.NoError(t, db.Create(&models.User{Username: "knitpicker", PasswordHash: "x", Role: "user"}).Error)

	c, rec := reviewForm(t, 1, map[string]string{"rating": "5", "text": "lovely"})
	require.NoError(t, h.Create(c))

	c, rec = cartRequest(0, http.MethodGet, "/api/v1/reviews", "")
	require.NoError(t, h.List(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var out []reviewResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	require.Equal(t, "knitpicker", out[0].Username)
}
