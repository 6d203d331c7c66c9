package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/mdouchement/aletsch/internal/emulator/weberror"
)

// Authenticate rejects the requests without the given token.
func Authenticate(token string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			if c.Request().Header.Get("X-Auth-Token") != token {
				return weberror.New(http.StatusUnauthorized, "the security token included in the request is invalid")
			}

			return next(c)
		}
	}
}
