package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"tenantd/internal/cluster"
	"tenantd/internal/config"
	"tenantd/internal/credentials"
	"tenantd/internal/metrics"
	"tenantd/internal/registry"
	"tenantd/internal/release"
	"tenantd/pkg/logging"
)

// tenant names become DNS labels (namespace, ingress hostname), so beyond
// the documented lowercase-alphanumeric-and-hyphens rule the first and last
// character must be alphanumeric.
var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*[a-z0-9]$`)

const (
	nameMinLength = 3
	nameMaxLength = 20
)

// Config carries the orchestrator's provisioning knobs, resolved from the
// application configuration at startup.
type Config struct {
	NamespacePrefix       string
	ChartRef              string
	BaseDomain            string
	AdminPath             string
	InstallTimeout        time.Duration
	PollInterval          time.Duration
	ProvisionDeadline     time.Duration
	DeleteConfirmDeadline time.Duration
	SizingClasses         map[string]config.SizingClass
	DefaultSizingClass    string
}

// TenantURL returns the public URL for a tenant id.
func (c Config) TenantURL(id string) string {
	return fmt.Sprintf("http://%s.%s", id, c.BaseDomain)
}

// AdminURL returns the admin console URL for a tenant id.
func (c Config) AdminURL(id string) string {
	return c.TenantURL(id) + c.AdminPath
}

// Orchestrator drives tenants through their lifecycle: it sequences
// credential generation, namespace creation, and release installation,
// persists every state transition to the registry, and enforces at most one
// in-flight operation per tenant id.
type Orchestrator struct {
	cfg     Config
	reg     registry.Registry
	gateway cluster.Gateway
	driver  release.Driver
	locks   *lockTable
}

// New creates an orchestrator. It does not touch the cluster; call Resume
// once at startup to re-drive tenants left mid-operation by a previous
// process.
func New(cfg Config, reg registry.Registry, gateway cluster.Gateway, driver release.Driver) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		reg:     reg,
		gateway: gateway,
		driver:  driver,
		locks:   newLockTable(),
	}
}

// CreateRequest is the input to CreateTenant.
type CreateRequest struct {
	Name         string
	OwnerContact string
	SizingClass  string // empty selects the configured default class
}

// CreateResult is returned on provisioning success. Credentials appear here
// exactly once; no subsequent read path ever re-exposes them.
type CreateResult struct {
	Tenant      registry.Tenant
	Credentials credentials.Set
	URL         string
	AdminURL    string
}

// CreateTenant provisions a new tenant end to end: it validates the
// request, reserves the id in the registry, creates the namespace, installs
// the release, and polls until the workloads are ready or the provisioning
// deadline elapses. On failure the tenant is left in the Failed state with
// its cluster resources intact for diagnosis; cleanup happens only through
// an explicit DeleteTenant.
func (o *Orchestrator) CreateTenant(ctx context.Context, req CreateRequest) (CreateResult, error) {
	if err := o.validateCreate(&req); err != nil {
		return CreateResult{}, err
	}
	id := req.Name
	opID := uuid.NewString()
	started := time.Now()

	creds, err := credentials.Generate()
	if err != nil {
		return CreateResult{}, fmt.Errorf("failed to generate credentials: %w", err)
	}

	tenant, err := o.reg.Create(ctx, registry.Tenant{
		ID:           id,
		OwnerContact: req.OwnerContact,
		SizingClass:  req.SizingClass,
		State:        registry.StatePending,
	})
	if err != nil {
		if errors.Is(err, registry.ErrAlreadyExists) {
			logging.Info("Orchestrator", "[%s] Rejected duplicate create for tenant %s", opID, id)
			return CreateResult{}, ErrConflict
		}
		return CreateResult{}, fmt.Errorf("failed to persist tenant %s: %w", id, err)
	}

	entry := o.locks.acquire(id)
	defer o.locks.release(id, entry)

	logging.Info("Orchestrator", "[%s] Provisioning tenant %s (owner %s, class %s)", opID, id, req.OwnerContact, req.SizingClass)

	// The namespace and release references plus the generated credentials
	// are persisted before the first cluster-mutating call, so a crash can
	// never leave cluster resources without a corresponding record.
	tenant, err = o.reg.CompareAndSwap(ctx, id, tenant.Generation, func(t *registry.Tenant) {
		t.State = registry.StateProvisioning
		t.NamespaceRef = o.cfg.NamespacePrefix + id
		t.ReleaseRef = id
		t.Credentials = creds
	})
	if err != nil {
		mapped := o.abandonOnStale(opID, id, err)
		if errors.Is(mapped, ErrAborted) {
			metrics.RecordProvision("aborted", started)
		}
		return CreateResult{}, mapped
	}
	o.updateStateGauge(ctx)

	tenant, err = o.provision(ctx, opID, tenant)
	if err != nil {
		// An aborted create lost a race, it did not fail provisioning.
		outcome := "failed"
		if errors.Is(err, ErrAborted) {
			outcome = "aborted"
		}
		metrics.RecordProvision(outcome, started)
		o.updateStateGauge(ctx)
		return CreateResult{}, err
	}

	metrics.RecordProvision("ready", started)
	o.updateStateGauge(ctx)
	logging.Info("Orchestrator", "[%s] Tenant %s is ready", opID, id)

	return CreateResult{
		Tenant:      tenant,
		Credentials: creds,
		URL:         o.cfg.TenantURL(id),
		AdminURL:    o.cfg.AdminURL(id),
	}, nil
}

// provision executes the cluster-facing half of a create: namespace,
// release install, readiness poll, and the terminal transition to Ready or
// Failed. The tenant passed in must already be in Provisioning.
func (o *Orchestrator) provision(ctx context.Context, opID string, tenant registry.Tenant) (registry.Tenant, error) {
	provisionCtx, cancel := context.WithTimeout(ctx, o.cfg.ProvisionDeadline)
	defer cancel()

	annotations := map[string]string{
		"tenantd.io/owner-contact": tenant.OwnerContact,
		"tenantd.io/created-at":    tenant.CreatedAt.UTC().Format(time.RFC3339),
	}
	labels := map[string]string{"tenant-name": tenant.ID}

	if err := o.gateway.CreateNamespace(provisionCtx, tenant.NamespaceRef, labels, annotations); err != nil {
		return o.markFailed(ctx, opID, tenant, fmt.Sprintf("namespace creation failed: %v", err))
	}

	outcome, err := o.driver.Install(provisionCtx, tenant.ReleaseRef, tenant.NamespaceRef, o.cfg.ChartRef, o.releaseValues(tenant), o.cfg.InstallTimeout)
	if err != nil {
		return o.markFailed(ctx, opID, tenant, fmt.Sprintf("release install could not be invoked: %v", err))
	}
	switch outcome.Phase {
	case release.PhaseFailed:
		return o.markFailed(ctx, opID, tenant, fmt.Sprintf("release install failed: %s", outcome.Detail))
	case release.PhaseUnknown:
		logging.Warn("Orchestrator", "[%s] Install outcome for tenant %s unknown, continuing via status polls", opID, tenant.ID)
	}

	if reason, ok := o.awaitReady(provisionCtx, opID, tenant); !ok {
		return o.markFailed(ctx, opID, tenant, reason)
	}

	updated, err := o.reg.CompareAndSwap(ctx, tenant.ID, tenant.Generation, func(t *registry.Tenant) {
		t.State = registry.StateReady
		t.FailureReason = ""
	})
	if err != nil {
		return registry.Tenant{}, o.abandonOnStale(opID, tenant.ID, err)
	}
	return updated, nil
}

// awaitReady polls release status and workload readiness until the tenant's
// workloads are healthy, the release reports failure, or the deadline
// passes. It returns ok=false with a human-readable reason on failure.
func (o *Orchestrator) awaitReady(ctx context.Context, opID string, tenant registry.Tenant) (string, bool) {
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		phase, err := o.driver.Status(ctx, tenant.ReleaseRef, tenant.NamespaceRef)
		if err != nil {
			logging.Debug("Orchestrator", "[%s] Status query for tenant %s failed: %v", opID, tenant.ID, err)
		} else if phase == release.PhaseFailed {
			return "release reported failure", false
		}

		status, err := o.gateway.ListWorkloadStatus(ctx, tenant.NamespaceRef)
		if err != nil {
			logging.Debug("Orchestrator", "[%s] Workload status for tenant %s failed: %v", opID, tenant.ID, err)
		} else if status.Ready && phase == release.PhaseDeployed {
			return "", true
		} else {
			logging.Debug("Orchestrator", "[%s] Tenant %s not ready: %s", opID, tenant.ID, status.Reason)
		}

		select {
		case <-ctx.Done():
			return "provisioning deadline elapsed before workloads became ready", false
		case <-ticker.C:
		}
	}
}

// markFailed records the terminal Failed state for a create attempt.
// Cluster resources are deliberately left in place for diagnosis.
func (o *Orchestrator) markFailed(ctx context.Context, opID string, tenant registry.Tenant, reason string) (registry.Tenant, error) {
	logging.Error("Orchestrator", nil, "[%s] Provisioning of tenant %s failed: %s", opID, tenant.ID, reason)

	_, err := o.reg.CompareAndSwap(ctx, tenant.ID, tenant.Generation, func(t *registry.Tenant) {
		t.State = registry.StateFailed
		t.FailureReason = reason
	})
	if err != nil {
		return registry.Tenant{}, o.abandonOnStale(opID, tenant.ID, err)
	}
	return registry.Tenant{}, &ProvisioningError{TenantID: tenant.ID, Reason: reason}
}

// DeleteTenant tears a tenant down from any state. Deletion may be
// requested while a create is in flight; it runs as soon as the per-tenant
// lock is released. The final transition to Deleted happens only once the
// namespace is confirmed absent.
func (o *Orchestrator) DeleteTenant(ctx context.Context, id string) error {
	tenant, err := o.reg.Get(ctx, id)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to load tenant %s: %w", id, err)
	}
	if tenant.State == registry.StateDeleted {
		return ErrNotFound
	}

	opID := uuid.NewString()
	entry := o.locks.acquire(id)
	defer o.locks.release(id, entry)

	// Re-read under the lock; the record may have advanced while we waited.
	tenant, err = o.reg.Get(ctx, id)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to load tenant %s: %w", id, err)
	}
	if tenant.State == registry.StateDeleted {
		return ErrNotFound
	}

	logging.Info("Orchestrator", "[%s] Deleting tenant %s (was %s)", opID, id, tenant.State)

	tenant, err = o.reg.CompareAndSwap(ctx, id, tenant.Generation, func(t *registry.Tenant) {
		t.State = registry.StateDeleting
		t.FailureReason = ""
	})
	if err != nil {
		metrics.RecordDeletion("aborted")
		return o.abandonOnStale(opID, id, err)
	}
	o.updateStateGauge(ctx)

	if err := o.teardown(ctx, opID, tenant); err != nil {
		// The tenant stays in Deleting; a later attempt or startup
		// recovery re-runs the idempotent teardown.
		metrics.RecordDeletion("retrying")
		return err
	}

	_, err = o.reg.CompareAndSwap(ctx, id, tenant.Generation, func(t *registry.Tenant) {
		t.State = registry.StateDeleted
	})
	if err != nil {
		metrics.RecordDeletion("aborted")
		return o.abandonOnStale(opID, id, err)
	}

	metrics.RecordDeletion("deleted")
	o.updateStateGauge(ctx)
	logging.Info("Orchestrator", "[%s] Tenant %s deleted", opID, id)
	return nil
}

// teardown removes the tenant's cluster resources and waits for the
// namespace to be confirmed gone. Every step is idempotent, so teardown is
// safe to re-run after a crash or a missed deadline.
func (o *Orchestrator) teardown(ctx context.Context, opID string, tenant registry.Tenant) error {
	// A tenant that never left Pending owns no cluster resources.
	if tenant.NamespaceRef == "" {
		return nil
	}

	confirmCtx, cancel := context.WithTimeout(ctx, o.cfg.DeleteConfirmDeadline)
	defer cancel()

	if tenant.ReleaseRef != "" {
		if err := o.driver.Uninstall(confirmCtx, tenant.ReleaseRef, tenant.NamespaceRef); err != nil {
			return fmt.Errorf("failed to uninstall release for tenant %s: %w", tenant.ID, err)
		}
	}

	if err := o.gateway.DeleteNamespace(confirmCtx, tenant.NamespaceRef); err != nil {
		return fmt.Errorf("failed to delete namespace for tenant %s: %w", tenant.ID, err)
	}

	// Namespace deletion is asynchronous; finalizers may hold it for a
	// while. Poll until it is gone or the confirmation deadline passes.
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()
	for {
		exists, err := o.gateway.NamespaceExists(confirmCtx, tenant.NamespaceRef)
		if err != nil {
			logging.Debug("Orchestrator", "[%s] Namespace check for tenant %s failed: %v", opID, tenant.ID, err)
		} else if !exists {
			return nil
		}

		select {
		case <-confirmCtx.Done():
			return fmt.Errorf("namespace %s still present after %s; deletion will be retried", tenant.NamespaceRef, o.cfg.DeleteConfirmDeadline)
		case <-ticker.C:
		}
	}
}

// abandonOnStale converts a stale-generation failure into the abandoned
// sentinel and passes every other error through. A stale generation means
// another operation already progressed this tenant; the loser must not
// retry blindly.
func (o *Orchestrator) abandonOnStale(opID, id string, err error) error {
	if errors.Is(err, registry.ErrStaleGeneration) {
		logging.Warn("Orchestrator", "[%s] Abandoning operation on tenant %s: another operation progressed it", opID, id)
		return ErrAborted
	}
	return fmt.Errorf("failed to persist state transition for tenant %s: %w", id, err)
}

func (o *Orchestrator) validateCreate(req *CreateRequest) error {
	name := req.Name
	if len(name) < nameMinLength || len(name) > nameMaxLength {
		return &ValidationError{Field: "name", Reason: fmt.Sprintf("length must be %d-%d characters", nameMinLength, nameMaxLength)}
	}
	if !namePattern.MatchString(name) {
		return &ValidationError{Field: "name", Reason: "only lowercase letters, digits and hyphens are allowed, starting and ending with a letter or digit"}
	}
	if !strings.Contains(req.OwnerContact, "@") {
		return &ValidationError{Field: "ownerContact", Reason: "must be an email address"}
	}
	if req.SizingClass == "" {
		req.SizingClass = o.cfg.DefaultSizingClass
	}
	if _, ok := o.cfg.SizingClasses[req.SizingClass]; !ok {
		return &ValidationError{Field: "sizingClass", Reason: fmt.Sprintf("unknown sizing class %q", req.SizingClass)}
	}
	return nil
}

// releaseValues renders the deployer values for a tenant. The map carries
// secret material and must never be logged.
func (o *Orchestrator) releaseValues(tenant registry.Tenant) release.Values {
	sizing := o.cfg.SizingClasses[tenant.SizingClass]
	return release.Values{
		"wordpressUsername":                tenant.Credentials.AdminUser,
		"wordpressPassword":                tenant.Credentials.AdminPassword,
		"wordpressEmail":                   tenant.OwnerContact,
		"wordpressBlogName":                fmt.Sprintf("%s Store", tenant.ID),
		"mariadb.auth.password":            tenant.Credentials.DBPassword,
		"ingress.enabled":                  "true",
		"ingress.ingressClassName":         "nginx",
		"ingress.hostname":                 fmt.Sprintf("%s.%s", tenant.ID, o.cfg.BaseDomain),
		"persistence.size":                 sizing.AppVolumeSize,
		"mariadb.primary.persistence.size": sizing.DataVolumeSize,
	}
}

// updateStateGauge recounts tenants per lifecycle state after a transition.
func (o *Orchestrator) updateStateGauge(ctx context.Context) {
	tenants, err := o.reg.List(ctx)
	if err != nil {
		logging.Debug("Orchestrator", "Failed to refresh tenant state gauge: %v", err)
		return
	}
	counts := map[registry.LifecycleState]int{}
	for _, t := range tenants {
		counts[t.State]++
	}
	for _, state := range []registry.LifecycleState{
		registry.StatePending, registry.StateProvisioning, registry.StateReady,
		registry.StateDeleting, registry.StateFailed, registry.StateDeleted,
	} {
		metrics.TenantsByState.WithLabelValues(string(state)).Set(float64(counts[state]))
	}
}
