package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/trowool/yarnshop/internal/models"
	"github.com/trowool/yarnshop/internal/service/token"
)

func newAuthHandler(t *testing.T) (*AuthHandler, *gorm.DB) {
	t.Helper()
	db := newHandlerDB(t)
	return &AuthHandler{
		DB:     db,
		Tokens: &token.Service{DB: db, JWTSecret: []byte("test-access"), RefreshSecret: []byte("test-refresh")},
	}, db
}

func TestRegister(t *testing.T) {
	h, db := newAuthHandler(t)

	c, rec := cartRequest(0, http.MethodPost, "/api/v1/register",
		`{"username": "knitpicker", "password": "wool4ever"}`)
	require.NoError(t, h.Register(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var user models.User
	require.NoError(t, db.Where("username = ?", "knitpicker").First(&user).Error)
	require.Equal(t, "user", user.Role)
	require.NotEqual(t, "wool4ever", user.PasswordHash)

	// Password hash never leaves the server.
	require.NotContains(t, rec.Body.String(), user.PasswordHash)
}

func TestRegisterDuplicateUsername(t *testing.T) {
	h, _ := newAuthHandler(t)

	c, rec := cartRequest(0, http.MethodPost, "/api/v1/register",
		`{"username": "knitpicker", "password": "wool4ever"}`)
	require.NoError(t, h.Register(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	c, rec = cartRequest(0, http.MethodPost, "/api/v1/register",
		`{"username": "knitpicker", "password": "other"}`)
	require.NoError(t, h.Register(c))
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestRegisterMissingFields(t *testing.T) {
	h, _ := newAuthHandler(t)

	c, rec := cartRequest(0, http.MethodPost, "/api/v1/register", `{"username": "knitpicker"}`)
	require.NoError(t, h.Register(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin(t *testing.T) {
	h, _ := newAuthHandler(t)

	c, rec := cartRequest(0, http.MethodPost, "/api/v1/register",
		`{"username": "knitpicker", "password": "wool4ever"}`)
	require.NoError(t, h.Register(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	c, rec = cartRequest(0, http.MethodPost, "/api/v1/login",
		`{"username": "knitpicker", "password": "wool4ever"}`)
	require.NoError(t, h.Login(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body["access_token"])
	require.NotEmpty(t, body["refresh_token"])
	require.Equal(t, false, body["is_admin"])

	cookies := rec.Result().Cookies()
	names := make([]string, 0, len(cookies))
	for _, ck := range cookies {
		names = append(names, ck.Name)
	}
	require.Contains(t, names, "accessToken")
	require.Contains(t, names, "refreshToken")

	claims, err := token.ParseAccess(body["access_token"].(string), h.Tokens.JWTSecret)
	require.NoError(t, err)
	require.Equal(t, "user", claims.Role)
}

func TestLoginWrongPassword(t *testing.T) {
	h, _ := newAuthHandler(t)

	c, rec := cartRequest(0, http.MethodPost, "/api/v1/register",
		`{"username": "knitpicker", "password": "wool4ever"}`)
	require.NoError(t, h.Register(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	c, _ = cartRequest(0, http.MethodPost, "/api/v1/login",
		`{"username": "knitpicker", "password": "nope"}`)
	err := h.Login(c)

	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusUnauthorized, httpErr.Code)
}

func TestLoginUnknownUser(t *testing.T) {
	h, _ := newAuthHandler(t)

	c, _ := cartRequest(0, http.MethodPost, "/api/v1/login",
		`{"username": "ghost", "password": "whatever"}`)
	err := h.Login(c)

	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusUnauthorized, httpErr.Code)
}

func TestLogoutRevokesRefresh(t *testing.T) {
	h, db := newAuthHandler(t)

	c, rec := cartRequest(0, http.MethodPost, "/api/v1/register",
		`{"username": "knitpicker", "password": "wool4ever"}`)
	require.NoError(t, h.Register(c))

	c, rec = cartRequest(0, http.MethodPost, "/api/v1/login",
		`{"username": "knitpicker", "password": "wool4ever"}`)
	require.NoError(t, h.Login(c))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	refresh := body["refresh_token"].(string)

	c, rec = cartRequest(0, http.MethodPost, "/api/v1/logout", "")
	c.Request().AddCookie(&http.Cookie{Name: "refreshToken", Value: refresh})
	require.NoError(t, h.Logout(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var stored models.RefreshToken
	require.NoError(t, db.Where("token = ?", refresh).First(&stored).Error)
	require.True(t, stored.Revoked)
}

func TestLogoutWithoutCookie(t *testing.T) {
	h, _ := newAuthHandler(t)

	c, rec := cartRequest(0, http.MethodPost, "/api/v1/logout", "")
	require.NoError(t, h.Logout(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
