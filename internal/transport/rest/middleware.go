package rest

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
)

const (
	// HeaderIdempotencyKey — заголовок ключа идемпотентности.
	HeaderIdempotencyKey = "Idempotency-Key"
	// HeaderIdempotentReplay выставляется, если ответ взят из кэша.
	HeaderIdempotentReplay = "Idempotent-Replayed"

	loggerKey = "logger"
)

func (s *Server) requestID(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Request().Header.Get(echo.HeaderXRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Response().Header().Set(echo.HeaderXRequestID, id)
		c.Set(loggerKey, s.logger.WithField("request_id", id))
		return next(c)
	}
}

func (s *Server) accessLog(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}

		req, res := c.Request(), c.Response()
		elapsed := time.Since(start)
		s.metrics.Observe(req.Method, c.Path(), res.Status, elapsed)

		entry := loggerFrom(c).WithFields(log.Fields{
			"method":     req.Method,
			"path":       req.URL.Path,
			"status":     res.Status,
			"latency_ms": elapsed.Milliseconds(),
			"bytes":      res.Size,
		})
		if actor := actorFrom(c); actor.UserID != 0 {
			entry = entry.WithField("user_id", actor.UserID)
		}
		switch {
		case res.Status >= http.StatusInternalServerError:
			entry.Error("request failed")
		case res.Status >= http.StatusBadRequest:
			entry.Info("request rejected")
		default:
			entry.Debug("request served")
		}
		return nil
	}
}

func loggerFrom(c echo.Context) *log.Entry {
	if entry, ok := c.Get(loggerKey).(*log.Entry); ok {
		return entry
	}
	return log.WithField("component", "http")
}

// bodyRecorder копирует тело ответа для кэша идемпотентности.
type bodyRecorder struct {
	http.ResponseWriter
	buf bytes.Buffer
}

func (r *bodyRecorder) Write(p []byte) (int, error) {
	r.buf.Write(p)
	return r.ResponseWriter.Write(p)
}

// idempotent отдаёт сохранённый ответ для повторного запроса с тем же Idempotency-Key.
// Без заголовка запрос выполняется как обычно.
func (s *Server) idempotent(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		key := strings.TrimSpace(c.Request().Header.Get(HeaderIdempotencyKey))
		if key == "" || s.guard == nil {
			return next(c)
		}

		req := c.Request()
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
		}
		req.Body = io.NopCloser(bytes.NewReader(body))

		actor := actorFrom(c)
		hash := idempotency.RequestHash(req.Method, req.URL.Path, strconv.FormatInt(actor.UserID, 10), body)
		cached, replay, err := s.guard.Begin(req.Context(), key, hash)
		if err != nil {
			return err
		}
		if replay {
			c.Response().Header().Set(HeaderIdempotentReplay, "true")
			return c.JSONBlob(cached.Status, cached.Body)
		}

		recorder := &bodyRecorder{ResponseWriter: c.Response().Writer}
		c.Response().Writer = recorder
		if err := next(c); err != nil {
			c.Error(err)
		}

		// Ответ уже отправлен: ошибка сохранения только логируется.
		if err := s.guard.Finish(req.Context(), key, idempotency.Response{
			Status: c.Response().Status,
			Body:   recorder.buf.Bytes(),
		}); err != nil {
			loggerFrom(c).WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotent response")
		}
		return nil
	}
}
