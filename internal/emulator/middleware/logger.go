package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/mdouchement/logger"
)

// Logger logs every handled request.
func Logger(log logger.Logger) echo.MiddlewareFunc {
	log = log.WithPrefix("[emulator]")

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			log.Infof("%s %s %d %s %v",
				c.Request().Method,
				c.Request().URL.Path,
				c.Response().Status,
				time.Since(start),
				c.Get("handler_method"),
			)
			return nil
		}
	}
}
