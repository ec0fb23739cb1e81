package http

import (
	"errors"
	"net/http"

	"github.com/jmehdipour/vps-billing/internal/scheduler"
	echo "github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

func triggerSweepHandler(sweeps SweepTrigger, lg *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		task := c.Param("task")

		err := sweeps.Trigger(task)
		switch {
		case err == nil:
			lg.Info("sweep triggered", zap.String("task", task), zap.String("remote", c.RealIP()))
			return c.JSON(http.StatusAccepted, map[string]any{"task": task, "queued": true})
		case errors.Is(err, scheduler.ErrUnknownTask):
			return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown task"})
		case errors.Is(err, scheduler.ErrPending):
			return c.JSON(http.StatusConflict, map[string]string{"error": "task already pending"})
		default:
			lg.Error("sweep trigger failed", zap.String("task", task), zap.Error(err))
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "trigger failed"})
		}
	}
}
