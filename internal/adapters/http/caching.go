package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CachingMiddleware sets Cache-Control headers on GET responses based on endpoint.
// Adds sensible defaults if not already set by the handler.
func CachingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		// Only set on GET requests
		if c.Method() != "GET" {
			return err
		}

		// Don't override if already set
		if existing := c.Get("Cache-Control"); existing != "" {
			return err
		}

		path := c.Path()
		var ttl string

		switch {
		case path == "/v1/health" || path == "/v1/ready":
			ttl = "public, max-age=10" // Very short for system checks

		case path == "/metrics":
			ttl = "no-cache" // Metrics are real-time

		case path == "/v1/detections/latest":
			ttl = "no-cache" // Replaced wholesale on every pass

		case strings.HasPrefix(path, "/v1/runs"):
			ttl = "private, max-age=30"

		case strings.HasPrefix(path, "/v1/"):
			ttl = "private, max-age=0" // Pipeline endpoints are stateful
		}

		if ttl != "" {
			c.Set("Cache-Control", ttl)
		}

		return err
	}
}
