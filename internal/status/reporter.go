// Package status answers read-only questions about tenants. It projects
// registry records into API-facing views, stripping credentials and
// enriching in-flight tenants with live workload readiness from the
// cluster.
package status

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tenantd/internal/cluster"
	"tenantd/internal/orchestrator"
	"tenantd/internal/registry"
	"tenantd/pkg/logging"
)

// TenantView is the externally visible shape of a tenant. It never carries
// credentials; those are handed out exactly once at create time.
type TenantView struct {
	ID               string    `json:"id"`
	OwnerContact     string    `json:"ownerContact"`
	SizingClass      string    `json:"sizingClass"`
	State            string    `json:"state"`
	URL              string    `json:"url,omitempty"`
	AdminURL         string    `json:"adminUrl,omitempty"`
	FailureReason    string    `json:"failureReason,omitempty"`
	ReadyWorkloads   int       `json:"readyWorkloads"`
	TotalWorkloads   int       `json:"totalWorkloads"`
	Progress         string    `json:"progress,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	LastTransitionAt time.Time `json:"lastTransitionAt"`
}

// Reporter builds tenant views.
type Reporter struct {
	cfg     orchestrator.Config
	reg     registry.Registry
	gateway cluster.Gateway
}

// NewReporter creates a Reporter sharing the orchestrator's configuration
// so URLs are composed identically on both paths.
func NewReporter(cfg orchestrator.Config, reg registry.Registry, gateway cluster.Gateway) *Reporter {
	return &Reporter{cfg: cfg, reg: reg, gateway: gateway}
}

// Get returns the view for one tenant. Deleted tenants report their
// terminal state rather than pretending the id was never used.
func (r *Reporter) Get(ctx context.Context, id string) (TenantView, error) {
	tenant, err := r.reg.Get(ctx, id)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return TenantView{}, orchestrator.ErrNotFound
		}
		return TenantView{}, fmt.Errorf("failed to load tenant %s: %w", id, err)
	}
	return r.view(ctx, tenant), nil
}

// List returns views for all tenants in stable creation order.
func (r *Reporter) List(ctx context.Context) ([]TenantView, error) {
	tenants, err := r.reg.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	views := make([]TenantView, 0, len(tenants))
	for _, tenant := range tenants {
		views = append(views, r.view(ctx, tenant))
	}
	return views, nil
}

func (r *Reporter) view(ctx context.Context, tenant registry.Tenant) TenantView {
	view := TenantView{
		ID:               tenant.ID,
		OwnerContact:     tenant.OwnerContact,
		SizingClass:      tenant.SizingClass,
		State:            string(tenant.State),
		FailureReason:    tenant.FailureReason,
		CreatedAt:        tenant.CreatedAt,
		LastTransitionAt: tenant.LastTransitionAt,
	}
	if tenant.State == registry.StateReady {
		view.URL = r.cfg.TenantURL(tenant.ID)
		view.AdminURL = r.cfg.AdminURL(tenant.ID)
	}

	// For in-flight tenants the registry only says "in progress"; the
	// cluster says how far along the workloads are. A failed probe
	// degrades the view, it does not fail the request.
	if tenant.State.InProgress() && tenant.NamespaceRef != "" {
		status, err := r.gateway.ListWorkloadStatus(ctx, tenant.NamespaceRef)
		if err != nil {
			logging.Debug("StatusReporter", "Workload probe for tenant %s failed: %v", tenant.ID, err)
		} else {
			view.ReadyWorkloads = status.ReadyPods
			view.TotalWorkloads = status.TotalPods
			view.Progress = fmt.Sprintf("%d/%d pods ready", status.ReadyPods, status.TotalPods)
		}
	}
	return view
}
