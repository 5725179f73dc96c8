package server

import (
	"context"
	"errors"
	"time"

	"github.com/bsmi021/eahub-shopco/pkg/mylogger"
	"github.com/bsmi021/eahub-shopco/pkg/utils"
	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

// NewHTTPApp returns a fiber app with tracing, rate limiting and /health.
// Errors returned by handlers are mapped through utils.HTTPStatus.
func NewHTTPApp(name string, logger *zap.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               name,
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
			}

			status := utils.HTTPStatus(err)
			if status >= fiber.StatusInternalServerError {
				mylogger.Error(c.UserContext(), logger, "Request failed",
					zap.String("path", c.Path()),
					zap.Error(err),
				)
			}

			return c.Status(status).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(recover.New())
	app.Use(otelfiber.Middleware())
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: time.Second,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests. Try again later.",
			})
		},
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": name})
	})

	return app
}

// RunHTTP listens on addr until ctx is done.
func RunHTTP(ctx context.Context, app *fiber.App, addr string, logger *zap.Logger) error {
	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			mylogger.Warn(shutdownCtx, logger, "Error shutting down HTTP app", zap.Error(err))
		}
	}()

	mylogger.Info(ctx, logger, "HTTP server listening", zap.String("addr", addr))

	return app.Listen(addr)
}
