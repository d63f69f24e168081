package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"tenantd/internal/credentials"
	"tenantd/internal/orchestrator"
	"tenantd/internal/status"
	"tenantd/pkg/logging"
)

type createTenantRequest struct {
	Name         string `json:"name"`
	OwnerContact string `json:"ownerContact"`
	SizingClass  string `json:"sizingClass"`
}

// createTenantResponse is the only place credentials ever leave the
// service.
type createTenantResponse struct {
	Tenant      status.TenantView `json:"tenant"`
	Credentials credentials.Set   `json:"credentials"`
	URL         string            `json:"url"`
	AdminURL    string            `json:"adminUrl"`
}

func (s *Server) handleCreateTenant(c echo.Context) error {
	var req createTenantRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	result, err := s.orch.CreateTenant(c.Request().Context(), orchestrator.CreateRequest{
		Name:         req.Name,
		OwnerContact: req.OwnerContact,
		SizingClass:  req.SizingClass,
	})
	if err != nil {
		return s.mapError(c, err)
	}

	view, err := s.reporter.Get(c.Request().Context(), result.Tenant.ID)
	if err != nil {
		return s.mapError(c, err)
	}

	return c.JSON(http.StatusCreated, createTenantResponse{
		Tenant:      view,
		Credentials: result.Credentials,
		URL:         result.URL,
		AdminURL:    result.AdminURL,
	})
}

func (s *Server) handleListTenants(c echo.Context) error {
	views, err := s.reporter.List(c.Request().Context())
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"tenants": views})
}

func (s *Server) handleGetTenant(c echo.Context) error {
	view, err := s.reporter.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (s *Server) handleDeleteTenant(c echo.Context) error {
	id := c.Param("id")
	if err := s.orch.DeleteTenant(c.Request().Context(), id); err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "tenant deleted", "id": id})
}

func (s *Server) handleHealthz(c echo.Context) error {
	ctx := c.Request().Context()
	components := echo.Map{"cluster": "ok", "deployer": "ok"}
	healthy := true

	if err := s.gateway.CheckAPIHealth(ctx); err != nil {
		components["cluster"] = err.Error()
		healthy = false
	}
	if err := s.driver.Version(ctx); err != nil {
		components["deployer"] = err.Error()
		healthy = false
	}

	code := http.StatusOK
	state := "ok"
	if !healthy {
		code = http.StatusServiceUnavailable
		state = "degraded"
	}
	return c.JSON(code, echo.Map{
		"status":     state,
		"version":    s.version,
		"components": components,
	})
}

// mapError translates domain errors into HTTP responses. Internal
// concurrency signals never reach the client unlabelled: an abandoned
// operation reports as a conflict.
func (s *Server) mapError(c echo.Context, err error) error {
	var validationErr *orchestrator.ValidationError
	var provisioningErr *orchestrator.ProvisioningError

	switch {
	case errors.As(err, &validationErr):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": validationErr.Error()})
	case errors.Is(err, orchestrator.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "tenant id already in use"})
	case errors.Is(err, orchestrator.ErrAborted):
		return c.JSON(http.StatusConflict, echo.Map{"error": "operation superseded by a concurrent operation"})
	case errors.Is(err, orchestrator.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "tenant not found"})
	case errors.As(err, &provisioningErr):
		return c.JSON(http.StatusBadGateway, echo.Map{
			"error": provisioningErr.Error(),
			"id":    provisioningErr.TenantID,
		})
	default:
		requestID, _ := c.Get("request_id").(string)
		logging.Error("Server", err, "[%s] Request failed", requestID)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}
