package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"receipt-ledger/core/logger"
)

// RequestLogger logs every request with its ray id, status and duration.
func RequestLogger(log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		l := logger.WithRayID(log, c)

		err := c.Next()

		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.String("ip", c.IP()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("duration", time.Since(start)),
		}
		if err != nil {
			l.Error("Request error", append(fields, zap.Error(err))...)
			return err
		}
		l.Info("Request handled", fields...)
		return nil
	}
}
