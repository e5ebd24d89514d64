package main

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/xka/flowmon/cmd/engine-sim/routes"
	"github.com/xka/flowmon/cmd/engine-sim/security"
	"github.com/xka/flowmon/cmd/engine-sim/service"
	"github.com/xka/flowmon/common/bootstrap"
	"github.com/xka/flowmon/common/server"
)

func main() {
	ctx := context.Background()

	components, err := bootstrap.Setup(ctx, "engine-sim", bootstrap.WithoutSessions())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap engine simulator: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	cfg := components.Config
	engine := service.NewEngineService(cfg.Simulator.Step, cfg.Simulator.TimeScale, components.Logger)
	if cfg.Simulator.ResolveHosts {
		engine.SetURLValidator(security.NewURLValidator().WithLookup(net.LookupIP))
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	routes.RegisterWorkflowRoutes(e, cfg.WorkerManager.APIVersion, engine, components.Logger)

	// Listens where the monitor expects the worker manager
	srv := server.New("engine-sim", cfg.WorkerManager.Port, e, components.Logger)
	if err := srv.Start(); err != nil {
		components.Logger.Error("Server error", "error", err)
	}
}
