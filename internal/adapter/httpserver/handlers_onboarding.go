package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pscheid92/aurahealth/internal/domain"
	"github.com/pscheid92/aurahealth/internal/onboarding"
	apperrors "github.com/pscheid92/aurahealth/internal/platform/errors"
)

type roleRequest struct {
	Role string `json:"role"`
}

type fieldRequest struct {
	Path  string `json:"path"`
	Value string `json:"value"`
}

type removeRequest struct {
	Path  string `json:"path"`
	Index int    `json:"index"`
}

type educationRequest struct {
	Degree      string `json:"degree"`
	Institution string `json:"institution"`
	Year        string `json:"year"`
}

type nextResponse struct {
	ReadyToSubmit bool                `json:"ready_to_submit"`
	Wizard        onboarding.Snapshot `json:"wizard"`
}

func (s *Server) registerOnboardingRoutes(csrfMiddleware echo.MiddlewareFunc) {
	s.echo.POST("/api/role", s.handleSelectRole, s.requireUser, csrfMiddleware)
	s.echo.GET("/onboarding/:role", s.handleGetWizard, s.requireUser, csrfMiddleware)

	g := s.echo.Group("/api/onboarding/:role", s.requireUser, csrfMiddleware)
	g.GET("", s.handleGetWizard)
	g.POST("/field", s.handleSetField)
	g.POST("/items", s.handleAddItem)
	g.POST("/items/remove", s.handleRemoveItem)
	g.POST("/toggle", s.handleToggle)
	g.POST("/education", s.handleAddEducation)
	g.POST("/next", s.handleNext)
	g.POST("/back", s.handleBack)
	g.POST("/submit", s.handleSubmit)
}

func (s *Server) handleSelectRole(c echo.Context) error {
	var req roleRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	user, err := s.onboarding.SelectRole(c.Request().Context(), domain.Role(req.Role))
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, user)
}

func (s *Server) handleGetWizard(c echo.Context) error {
	w, err := s.wizard(c)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, w.Snapshot())
}

func (s *Server) handleSetField(c echo.Context) error {
	return s.editWizard(c, func(w *onboarding.Wizard) error {
		var req fieldRequest
		if err := bind(c, &req); err != nil {
			return err
		}
		return w.Set(req.Path, req.Value)
	})
}

func (s *Server) handleAddItem(c echo.Context) error {
	return s.editWizard(c, func(w *onboarding.Wizard) error {
		var req fieldRequest
		if err := bind(c, &req); err != nil {
			return err
		}
		return w.Add(req.Path, req.Value)
	})
}

func (s *Server) handleRemoveItem(c echo.Context) error {
	return s.editWizard(c, func(w *onboarding.Wizard) error {
		var req removeRequest
		if err := bind(c, &req); err != nil {
			return err
		}
		return w.Remove(req.Path, req.Index)
	})
}

func (s *Server) handleToggle(c echo.Context) error {
	return s.editWizard(c, func(w *onboarding.Wizard) error {
		var req fieldRequest
		if err := bind(c, &req); err != nil {
			return err
		}
		return w.Toggle(req.Path, req.Value)
	})
}

func (s *Server) handleAddEducation(c echo.Context) error {
	return s.editWizard(c, func(w *onboarding.Wizard) error {
		var req educationRequest
		if err := bind(c, &req); err != nil {
			return err
		}
		return w.AddEducation(domain.Education{Degree: req.Degree, Institution: req.Institution, Year: req.Year})
	})
}

func (s *Server) handleNext(c echo.Context) error {
	w, err := s.wizard(c)
	if err != nil {
		return err
	}
	ready, err := w.Next()
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, nextResponse{ReadyToSubmit: ready, Wizard: w.Snapshot()})
}

func (s *Server) handleBack(c echo.Context) error {
	return s.editWizard(c, func(w *onboarding.Wizard) error {
		w.Back()
		return nil
	})
}

func (s *Server) handleSubmit(c echo.Context) error {
	role, err := parseRole(c.Param("role"))
	if err != nil {
		return err
	}

	user, err := s.onboarding.Submit(c.Request().Context(), role)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, user)
}

// editWizard applies edit and answers with the updated wizard.
func (s *Server) editWizard(c echo.Context, edit func(w *onboarding.Wizard) error) error {
	w, err := s.wizard(c)
	if err != nil {
		return err
	}
	if err := edit(w); err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, w.Snapshot())
}

func (s *Server) wizard(c echo.Context) (*onboarding.Wizard, error) {
	role, err := parseRole(c.Param("role"))
	if err != nil {
		return nil, err
	}
	return s.onboarding.Wizard(role)
}

func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return apperrors.ValidationError("invalid request body").WithCause(err)
	}
	return nil
}
