package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const readinessTimeout = 2 * time.Second

// SQLPinger is satisfied by *sql.DB.
type SQLPinger interface {
	PingContext(ctx context.Context) error
}

// BrokerHealth is satisfied by *events.RabbitMQ.
type BrokerHealth interface {
	Healthy() bool
}

// RegisterHealthRoutes wires liveness and readiness. broker may be nil when
// completion events are disabled; it is reported but never fails readiness.
func RegisterHealthRoutes(app fiber.Router, sqlDB SQLPinger, rdb redis.UniversalClient, broker BrokerHealth) {
	app.Get("/livez", LivezHandler())
	app.Get("/readyz", ReadyzHandler(sqlDB, rdb, broker))
}

func LivezHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
		})
	}
}

func ReadyzHandler(sqlDB SQLPinger, rdb redis.UniversalClient, broker BrokerHealth) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), readinessTimeout)
		defer cancel()

		pgErr := sqlDB.PingContext(ctx)
		redisErr := rdb.Ping(ctx).Err()

		pgStatus := "ok"
		if pgErr != nil {
			pgStatus = "down"
		}
		redisStatus := "ok"
		if redisErr != nil {
			redisStatus = "down"
		}

		checks := fiber.Map{
			"postgres": pgStatus,
			"redis":    redisStatus,
		}
		switch {
		case broker == nil:
			checks["rabbitmq"] = "disabled"
		case broker.Healthy():
			checks["rabbitmq"] = "ok"
		default:
			checks["rabbitmq"] = "degraded"
		}

		status := "ready"
		statusCode := fiber.StatusOK
		if pgErr != nil || redisErr != nil {
			status = "not_ready"
			statusCode = fiber.StatusServiceUnavailable
		}

		return c.Status(statusCode).JSON(fiber.Map{
			"status": status,
			"checks": checks,
		})
	}
}
