package factory

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

func NewModuleLogger(module string) logrus.FieldLogger {
	return logrus.WithField("module", module)
}

// LoggerWithContext decorates logger with the request id of the current HTTP request.
func LoggerWithContext(logger logrus.FieldLogger, ctx echo.Context) logrus.FieldLogger {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if ctx == nil {
		return logger
	}

	requestID := strings.TrimSpace(ctx.Request().Header.Get(echo.HeaderXRequestID))
	if requestID == "" {
		requestID = strings.TrimSpace(ctx.Response().Header().Get(echo.HeaderXRequestID))
	}
	if requestID == "" {
		return logger
	}

	return logger.WithField("request_id", requestID)
}
