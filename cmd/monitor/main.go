package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/xka/flowmon/cmd/monitor/container"
	monitormw "github.com/xka/flowmon/cmd/monitor/middleware"
	"github.com/xka/flowmon/cmd/monitor/routes"
	"github.com/xka/flowmon/common/bootstrap"
	"github.com/xka/flowmon/common/server"
)

func main() {
	ctx := context.Background()

	// Bootstrap common components (config, logger, session store, telemetry)
	components, err := bootstrap.Setup(ctx, "monitor")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap monitor: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	// Initialize service container (resumes stored sessions)
	serviceContainer, err := container.NewContainer(ctx, components)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize service container: %v\n", err)
		os.Exit(1)
	}
	defer serviceContainer.Close()

	e := NewEcho(serviceContainer)

	srv := server.New("monitor", components.Config.Service.Port, e, components.Logger)
	if err := srv.Start(); err != nil {
		components.Logger.Error("Server error", "error", err)
	}
}

// NewEcho builds the echo server with middleware and all routes
func NewEcho(c *container.Container) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())
	e.Use(monitormw.PropagateRequestID())

	e.GET("/health", func(ec echo.Context) error {
		if err := c.Components.Health(ec.Request().Context()); err != nil {
			return ec.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}
		return ec.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "monitor",
		})
	})

	routes.RegisterEditorRoutes(e, c)
	return e
}
