// server/http/router.go
package http

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/zerolog"

	"github.com/vinizap/mindmap/server/auth"
	"github.com/vinizap/mindmap/server/metrics"
)

type Options struct {
	Token     string
	BodyLimit int
}

// NewApp builds the fiber application serving s.
func NewApp(s *Server, opts Options) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "mindmap",
		BodyLimit:             opts.BodyLimit,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(s.log),
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(requestLogger(s.log, s.metrics))

	guard := auth.Middleware(opts.Token)

	app.Get("/", s.HandleIndex)
	app.Post("/save", guard, s.HandleSave)
	app.Get("/get_mind_map", s.HandleGetMindMap)
	app.Get("/export", s.HandleExport)
	app.Get("/healthz", s.HandleHealth)
	app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))

	app.Use("/ws", guard, func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(s.HandleWebSocket))

	return app
}

func errorHandler(log zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}

		if code >= fiber.StatusInternalServerError {
			log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
		}

		return c.Status(code).JSON(fiber.Map{"error": err.Error()})
	}
}

// requestLogger writes one line per request and feeds the HTTP metrics.
// Errors are rendered here so the logged status is the one the client sees.
func requestLogger(log zerolog.Logger, m *metrics.Collector) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		if err := c.Next(); err != nil {
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				log.Error().Err(herr).AnErr("cause", err).Str("path", c.Path()).Msg("error handler failed")
				if serr := c.SendStatus(fiber.StatusInternalServerError); serr != nil {
					log.Error().Err(serr).Str("path", c.Path()).Msg("failed to send error status")
				}
			}
		}

		status := c.Response().StatusCode()
		route := c.Route().Path
		if status == fiber.StatusNotFound {
			route = "unmatched"
		}
		elapsed := time.Since(start)

		m.HTTPRequests.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		m.HTTPDuration.WithLabelValues(c.Method(), route).Observe(elapsed.Seconds())

		rid, _ := c.Locals("requestid").(string)
		log.Info().
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", status).
			Dur("latency", elapsed).
			Str("request_id", rid).
			Msg("request")

		return nil
	}
}
