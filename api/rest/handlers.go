package rest

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"yqhp/bench-engine/internal/alert"
	"yqhp/bench-engine/pkg/types"
)

func (s *Server) healthCheck(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:  "ok",
		Uptime:  time.Since(s.started).Round(time.Second).String(),
		Clients: s.hub.Clients(),
	})
}

func (s *Server) getResult(c *fiber.Ctx) error {
	var result *types.SuiteResult
	if s.results != nil {
		result = s.results.Latest()
	}
	if result == nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error:   "not_found",
			Message: "no completed suite run yet",
		})
	}
	return c.JSON(result)
}

func (s *Server) listAlerts(c *fiber.Ctx) error {
	if s.alerts == nil {
		return c.JSON([]types.Alert{})
	}
	list := s.alerts.Alerts()
	if state := c.Query("state"); state != "" {
		filtered := make([]types.Alert, 0, len(list))
		for _, a := range list {
			if string(a.State) == state {
				filtered = append(filtered, a)
			}
		}
		list = filtered
	}
	if list == nil {
		list = []types.Alert{}
	}
	return c.JSON(list)
}

func (s *Server) acknowledgeAlert(c *fiber.Ctx) error {
	return s.alertAction(c, "acknowledged", func(id string) error { return s.alerts.Acknowledge(id) })
}

func (s *Server) resolveAlert(c *fiber.Ctx) error {
	return s.alertAction(c, "resolved", func(id string) error { return s.alerts.Resolve(id) })
}

func (s *Server) alertAction(c *fiber.Ctx, action string, fn func(id string) error) error {
	if s.alerts == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "alerting is not enabled")
	}
	id := c.Params("id")
	if err := fn(id); err != nil {
		switch {
		case errors.Is(err, alert.ErrAlertNotFound):
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		case errors.Is(err, alert.ErrAlreadyResolved):
			return fiber.NewError(fiber.StatusConflict, err.Error())
		default:
			return err
		}
	}
	return c.JSON(AlertActionResponse{ID: id, Action: action})
}
