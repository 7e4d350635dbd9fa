package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/pscheid92/aurahealth/internal/domain"
	"github.com/pscheid92/aurahealth/internal/platform/version"
)

const (
	startupProbeTimeout   = 2 * time.Second
	readinessProbeTimeout = 5 * time.Second

	checkPassed = "ok"
)

// HealthCheck is a named dependency probe.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type healthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

type livenessReport struct {
	Status        string       `json:"status"`
	UptimeSeconds float64      `json:"uptime_seconds"`
	SessionPhase  domain.Phase `json:"session_phase"`
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health/startup", s.probe(startupProbeTimeout))
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.probe(readinessProbeTimeout))
	s.echo.GET("/version", s.handleVersion)
}

// handleLiveness never consults dependencies.
func (s *Server) handleLiveness(c echo.Context) error {
	return c.JSON(http.StatusOK, livenessReport{
		Status:        "ok",
		UptimeSeconds: time.Since(s.startTime).Seconds(),
		SessionPhase:  s.session.State().Phase,
	})
}

// probe runs every health check and reports each result. Any failure
// answers 503.
func (s *Server) probe(timeout time.Duration) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
		defer cancel()

		report := healthReport{Status: "ready"}
		if len(s.healthChecks) > 0 {
			report.Checks = make(map[string]string, len(s.healthChecks))
		}
		for _, hc := range s.healthChecks {
			if err := hc.Check(ctx); err != nil {
				report.Status = "unhealthy"
				report.Checks[hc.Name] = err.Error()
				continue
			}
			report.Checks[hc.Name] = checkPassed
		}

		status := http.StatusOK
		if report.Status != "ready" {
			status = http.StatusServiceUnavailable
		}
		return c.JSON(status, report)
	}
}

func (s *Server) handleVersion(c echo.Context) error {
	return c.JSON(http.StatusOK, version.Get())
}
