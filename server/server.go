// Package server exposes the partitioner over HTTP.
package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/don7panic/script-partitioner/analyzer"
	"github.com/don7panic/script-partitioner/partitioner"
	"github.com/don7panic/script-partitioner/pyast"
)

const API_ROOT = "/v1"

type PartitionRequest struct {
	Script     string `json:"script"`
	EntryPoint string `json:"entry_point"`
	KeyPrefix  string `json:"key_prefix,omitempty"`
}

func BuildServer(p *partitioner.Partitioner, logger *slog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.HTTPErrorHandler = func(err error, c echo.Context) {
		e.DefaultHTTPErrorHandler(err, c)
		logger.ErrorContext(c.Request().Context(), "request failed",
			slog.String("path", c.Request().URL.Path),
			slog.Any("error", err),
		)
	}

	e.Use(middleware.Recover())

	// logging for server-side latency.
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			begin := time.Now()
			err := next(c)
			logger.InfoContext(c.Request().Context(), "request",
				slog.String("method", c.Request().Method),
				slog.String("path", c.Request().URL.Path),
				slog.Int("status", c.Response().Status),
				slog.Duration("elapsed", time.Since(begin)),
			)
			return err
		}
	})

	e.GET("/healthz", HealthHandler())
	e.POST(API_ROOT+"/partitions", PartitionHandler(p))
	return e
}

func HealthHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}
}

// PartitionHandler partitions the posted script. A missing entry point is
// reported with status 422 and the partitioner's message; scripts that do
// not parse get 400.
func PartitionHandler(p *partitioner.Partitioner) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := PartitionRequest{}
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "request body should be a JSON object").SetInternal(err)
		}
		if req.Script == "" {
			return echo.NewHTTPError(http.StatusBadRequest, `"script" is required`)
		}
		if req.EntryPoint == "" {
			return echo.NewHTTPError(http.StatusBadRequest, `"entry_point" is required`)
		}

		var overrides []partitioner.Option
		if req.KeyPrefix != "" {
			overrides = append(overrides, partitioner.WithKeyPrefix(req.KeyPrefix))
		}

		res, err := p.Partition(c.Request().Context(), []byte(req.Script), req.EntryPoint, overrides...)
		switch {
		case err == nil:
			return c.JSON(http.StatusOK, res)
		case errors.Is(err, partitioner.ErrEntryPointNotFound),
			errors.Is(err, partitioner.ErrEntryPointNotFunction):
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error()).SetInternal(err)
		case errors.Is(err, pyast.ErrSyntax),
			errors.Is(err, analyzer.ErrDuplicateDeclaration):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
		default:
			return err
		}
	}
}
