package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// HealthHandler returns a basic liveness check.
func HealthHandler(deps *Dependencies) fiber.Handler {
	startedAt := time.Now()

	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"uptime":  time.Since(startedAt).String(),
			"version": "dev",
		})
	}
}

// readinessCheck checks one dependency. required marks dependencies whose
// absence alone makes the node unready.
type readinessCheck struct {
	name     string
	required bool
	run      func(ctx context.Context) (state string, ok bool)
}

func readinessChecks(deps *Dependencies) []readinessCheck {
	return []readinessCheck{
		{name: "database", required: true, run: func(ctx context.Context) (string, bool) {
			if deps.DB == nil {
				return "", false
			}
			return pingState(deps.DB.Ping(ctx))
		}},
		// A configured but dropped NATS connection means cache invalidation
		// events are lost.
		{name: "nats", run: func(ctx context.Context) (string, bool) {
			if deps.NATS == nil {
				return "", false
			}
			if !deps.NATS.IsConnected() {
				return "disconnected", false
			}
			return "ok", true
		}},
		{name: "cache", run: func(ctx context.Context) (string, bool) {
			if deps.Cache == nil {
				return "", false
			}
			return pingState(deps.Cache.Ping(ctx))
		}},
	}
}

func pingState(err error) (string, bool) {
	if err != nil {
		return "error: " + err.Error(), false
	}
	return "ok", true
}

// ReadyHandler checks DB, NATS, and track cache connectivity.
func ReadyHandler(deps *Dependencies) fiber.Handler {
	checks := readinessChecks(deps)

	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
		defer cancel()

		results := make(map[string]string, len(checks))
		allOK := true
		for _, chk := range checks {
			state, ok := chk.run(ctx)
			switch {
			case state == "":
				results[chk.name] = "not configured"
				if chk.required {
					allOK = false
				}
			case !ok:
				results[chk.name] = state
				allOK = false
			default:
				results[chk.name] = state
			}
		}

		if !allOK {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "not ready",
				"checks": results,
			})
		}
		return c.JSON(fiber.Map{"status": "ready", "checks": results})
	}
}
