package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/trowool/yarnshop/internal/logging"
	"github.com/trowool/yarnshop/internal/models"
	"github.com/trowool/yarnshop/internal/service/token"
)

const maxReviewImages = 5

type ReviewHandler struct {
	DB        *gorm.DB
	UploadDir string
}

type reviewResponse struct {
	ID        uint      `json:"id"`
	UserID    uint      `json:"user_id"`
	Username  string    `json:"username"`
	Rating    uint      `json:"rating"`
	Text      string    `json:"text"`
	Images    []string  `json:"images"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *ReviewHandler) List(c echo.Context) error {
	var reviews []models.Review
	err := h.DB.WithContext(c.Request().Context()).
		Order("created_at DESC").
		Find(&reviews).Error
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}

	userIDs := make([]uint, 0, len(reviews))
	for _, r := range reviews {
		userIDs = append(userIDs, r.UserID)
	}
	names := map[uint]string{}
	if len(userIDs) > 0 {
		var users []models.User
		if err := h.DB.Where("id IN ?", userIDs).Find(&users).Error; err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
		}
		for _, u := range users {
			names[u.ID] = u.Username
		}
	}

	out := make([]reviewResponse, 0, len(reviews))
	for _, r := range reviews {
		out = append(out, reviewResponse{
			ID:        r.ID,
			UserID:    r.UserID,
			Username:  names[r.UserID],
			Rating:    r.Rating,
			Text:      r.Text,
			Images:    r.Images,
			CreatedAt: r.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, out)
}

// Create accepts a multipart form: rating, text and up to five images.
// A user may leave a single review.
func (h *ReviewHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()
	userID, err := token.CurrentUserID(c)
	if err != nil {
		return err
	}

	rating, err := strconv.Atoi(c.FormValue("rating"))
	if err != nil || rating < 1 || rating > 5 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "rating must be between 1 and 5", "field": "rating"})
	}
	text := c.FormValue("text")
	if text == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "text is required", "field": "text"})
	}

	var existing models.Review
	err = h.DB.WithContext(ctx).Where("user_id = ?", userID).First(&existing).Error
	if err == nil {
		return c.JSON(http.StatusConflict, echo.Map{"error": "user already has a review"})
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}

	saved, err := h.saveImages(c)
	if err != nil {
		logging.FromContext(ctx).Error("review image upload failed", "user_id", userID, "error", err)
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "could not store images"})
	}

	review := models.Review{
		UserID: userID,
		Rating: uint(rating),
		Text:   text,
		Images: saved,
	}
	if err := h.DB.WithContext(ctx).Create(&review).Error; err != nil {
		h.cleanup(saved)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}

	return c.JSON(http.StatusCreated, review)
}

func (h *ReviewHandler) saveImages(c echo.Context) ([]string, error) {
	form, err := c.MultipartForm()
	if err != nil {
		// Plain form without attachments is fine.
		return nil, nil
	}
	files := form.File["images"]
	if len(files) == 0 {
		return nil, nil
	}
	if len(files) > maxReviewImages {
		return nil, fmt.Errorf("too many images: %d", len(files))
	}

	if err := os.MkdirAll(h.UploadDir, 0o755); err != nil {
		return nil, err
	}

	var saved []string
	for _, fh := range files {
		path, err := h.saveOne(fh)
		if err != nil {
			h.cleanup(saved)
			return nil, err
		}
		saved = append(saved, path)
	}
	return saved, nil
}

func (h *ReviewHandler) saveOne(fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	name := uuid.NewString() + filepath.Ext(fh.Filename)
	path := filepath.Join(h.UploadDir, name)

	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

func (h *ReviewHandler) cleanup(paths []string) {
	for _, p := range paths {
		os.Remove(p)
	}
}
