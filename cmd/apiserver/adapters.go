package main

import (
	"github.com/turtacn/SMARTSexplore/internal/app"
	"github.com/turtacn/SMARTSexplore/internal/interfaces/http/handlers"
)

// healthCheckers exposes the application's dependency probes to /readyz.
func healthCheckers(a *app.App) []handlers.HealthChecker {
	checks := a.HealthChecks()
	out := make([]handlers.HealthChecker, 0, len(checks))
	for _, c := range checks {
		out = append(out, handlers.CheckFunc{Component: c.Name, Fn: c.Check})
	}
	return out
}
