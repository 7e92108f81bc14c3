package token

import (
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// AutoRefresh authenticates the request from the access cookie, transparently
// rotating an expired access token when a valid refresh cookie is present.
// On success the user id and role are placed in the echo context.
func (s *Service) AutoRefresh(next echo.HandlerFunc) echo.HandlerFunc {
	return s.requireAuth(next, nil)
}

// RequireAdmin is AutoRefresh plus an admin role check.
func (s *Service) RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return s.requireAuth(next, func(claims *AccessClaims) error {
		if claims.Role != "admin" {
			return echo.NewHTTPError(http.StatusForbidden, "admin access required")
		}
		return nil
	})
}

func (s *Service) requireAuth(next echo.HandlerFunc, validate func(*AccessClaims) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		accessCookie, err := c.Cookie("accessToken")
		if err != nil || accessCookie.Value == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
		}

		claims, err := ParseAccess(accessCookie.Value, s.JWTSecret)
		if err == nil {
			if validate != nil {
				if vErr := validate(claims); vErr != nil {
					return vErr
				}
			}
			return setUserContext(c, claims, next)
		}

		if !errors.Is(err, jwt.ErrTokenExpired) {
			clearAuthCookies(c)
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid access token")
		}

		refreshCookie, rErr := c.Cookie("refreshToken")
		if rErr != nil || refreshCookie.Value == "" {
			clearAuthCookies(c)
			return echo.NewHTTPError(http.StatusUnauthorized, "refresh token missing")
		}

		newAccess, newRefresh, rotErr := s.Rotate(refreshCookie.Value)
		if rotErr != nil {
			clearAuthCookies(c)
			return echo.NewHTTPError(http.StatusUnauthorized, "cannot rotate token: "+rotErr.Error())
		}

		c.SetCookie(CreateCookie("accessToken", newAccess, "/", time.Now().Add(AccessTTL)))
		c.SetCookie(CreateCookie("refreshToken", newRefresh, "/", time.Now().Add(RefreshTTL)))

		newClaims, pErr := ParseAccess(newAccess, s.JWTSecret)
		if pErr != nil {
			clearAuthCookies(c)
			return echo.NewHTTPError(http.StatusUnauthorized, "new access token invalid")
		}
		if validate != nil {
			if vErr := validate(newClaims); vErr != nil {
				clearAuthCookies(c)
				return vErr
			}
		}
		return setUserContext(c, newClaims, next)
	}
}

func setUserContext(c echo.Context, claims *AccessClaims, next echo.HandlerFunc) error {
	userID, err := claims.UserID()
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid subject claim")
	}
	c.Set("userID", userID)
	c.Set("role", claims.Role)
	return next(c)
}

func clearAuthCookies(c echo.Context) {
	c.SetCookie(DeleteCookie("accessToken", "/"))
	c.SetCookie(DeleteCookie("refreshToken", "/"))
}

// CurrentUserID reads the authenticated user id set by the middleware.
func CurrentUserID(c echo.Context) (uint, error) {
	id, ok := c.Get("userID").(uint)
	if !ok || id == 0 {
		return 0, echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	return id, nil
}
