package middleware

import (
	"strings"
	"time"
	"unicode"

	"stock-ledger-service/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	HeaderActor = "X-Actor"
	CtxActor    = "actor"

	maxActorLen = 128
)

// Actor кладёт значение X-Actor в контекст запроса, откуда его берёт журнал
// корректировок. Аутентификации нет, заголовок принимается как есть.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := SanitizeActor(c.GetHeader(HeaderActor))
		if actor != "" {
			c.Set(CtxActor, actor)
			c.Request = c.Request.WithContext(service.WithActor(c.Request.Context(), actor))
		}
		c.Next()
	}
}

// SanitizeActor убирает управляющие символы и обрезает слишком длинные значения.
func SanitizeActor(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(s)
	if len(s) > maxActorLen {
		s = s[:maxActorLen]
	}
	return s
}

// RequestLogger пишет одну строку на запрос через zap.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if actor, ok := c.Get(CtxActor); ok {
			fields = append(fields, zap.Any("actor", actor))
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			log.Error("HTTP запрос", fields...)
		case status >= 400:
			log.Info("HTTP запрос", fields...)
		default:
			log.Debug("HTTP запрос", fields...)
		}
	}
}
