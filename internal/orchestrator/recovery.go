package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"tenantd/internal/metrics"
	"tenantd/internal/registry"
	"tenantd/internal/release"
	"tenantd/pkg/logging"
)

// Resume scans the registry for tenants a previous process left
// mid-operation and re-drives each one to a terminal state. Tenants in
// Provisioning are resumed forward (the cluster steps are idempotent, so
// re-running them is safe); tenants in Deleting get their teardown re-run.
// Resume blocks until every recovered tenant has settled.
func (o *Orchestrator) Resume(ctx context.Context) error {
	tenants, err := o.reg.List(ctx)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	recovered := 0
	for _, tenant := range tenants {
		if !tenant.State.InProgress() {
			continue
		}
		recovered++
		wg.Add(1)
		go func(t registry.Tenant) {
			defer wg.Done()
			o.recoverTenant(ctx, t)
		}(tenant)
	}

	if recovered > 0 {
		logging.Info("Orchestrator", "Resuming %d tenant(s) left mid-operation", recovered)
	}
	wg.Wait()
	o.updateStateGauge(ctx)
	return nil
}

func (o *Orchestrator) recoverTenant(ctx context.Context, tenant registry.Tenant) {
	opID := uuid.NewString()
	entry := o.locks.acquire(tenant.ID)
	defer o.locks.release(tenant.ID, entry)

	// Re-read under the lock; an API call may have raced recovery.
	current, err := o.reg.Get(ctx, tenant.ID)
	if err != nil {
		logging.Error("Orchestrator", err, "[%s] Failed to reload tenant %s during recovery", opID, tenant.ID)
		return
	}

	switch current.State {
	case registry.StateProvisioning:
		o.resumeProvisioning(ctx, opID, current)
	case registry.StateDeleting:
		o.resumeDeletion(ctx, opID, current)
	}
}

// resumeProvisioning picks up a create that died mid-flight. The release
// may be absent, installing, deployed, or failed; the deployer's status
// answer decides whether to reinstall, wait, or conclude.
func (o *Orchestrator) resumeProvisioning(ctx context.Context, opID string, tenant registry.Tenant) {
	logging.Info("Orchestrator", "[%s] Resuming provisioning of tenant %s", opID, tenant.ID)
	started := time.Now()

	phase, err := o.driver.Status(ctx, tenant.ReleaseRef, tenant.NamespaceRef)
	if err != nil {
		logging.Warn("Orchestrator", "[%s] Status of release for tenant %s unknown, reinstalling: %v", opID, tenant.ID, err)
		phase = release.PhaseUnknown
	}

	switch phase {
	case release.PhaseFailed:
		_, _ = o.markFailed(ctx, opID, tenant, "release reported failure after restart")
		metrics.RecordProvision("failed", started)
		return
	case release.PhaseDeployed, release.PhaseInstalling:
		// Install already landed or is progressing; go straight to the
		// readiness poll.
		provisionCtx, cancel := context.WithTimeout(ctx, o.cfg.ProvisionDeadline)
		if reason, ok := o.awaitReady(provisionCtx, opID, tenant); !ok {
			cancel()
			_, _ = o.markFailed(ctx, opID, tenant, reason)
			metrics.RecordProvision("failed", started)
			return
		}
		cancel()
		if _, err := o.reg.CompareAndSwap(ctx, tenant.ID, tenant.Generation, func(t *registry.Tenant) {
			t.State = registry.StateReady
			t.FailureReason = ""
		}); err != nil {
			if !errors.Is(err, registry.ErrStaleGeneration) {
				logging.Error("Orchestrator", err, "[%s] Failed to mark tenant %s ready", opID, tenant.ID)
			}
			return
		}
		metrics.RecordProvision("ready", started)
		logging.Info("Orchestrator", "[%s] Tenant %s is ready after resume", opID, tenant.ID)
		return
	default:
		// No release record: the process died before or during install.
		// Namespace creation and install are both idempotent, so run the
		// full provisioning sequence again.
		if _, err := o.provision(ctx, opID, tenant); err != nil {
			metrics.RecordProvision("failed", started)
			return
		}
		metrics.RecordProvision("ready", started)
		logging.Info("Orchestrator", "[%s] Tenant %s is ready after resume", opID, tenant.ID)
	}
}

// resumeDeletion re-runs the idempotent teardown for a tenant stuck in
// Deleting and records the terminal Deleted state once the namespace is
// confirmed gone.
func (o *Orchestrator) resumeDeletion(ctx context.Context, opID string, tenant registry.Tenant) {
	logging.Info("Orchestrator", "[%s] Resuming deletion of tenant %s", opID, tenant.ID)

	if err := o.teardown(ctx, opID, tenant); err != nil {
		logging.Error("Orchestrator", err, "[%s] Teardown of tenant %s did not complete", opID, tenant.ID)
		metrics.RecordDeletion("retrying")
		return
	}

	if _, err := o.reg.CompareAndSwap(ctx, tenant.ID, tenant.Generation, func(t *registry.Tenant) {
		t.State = registry.StateDeleted
	}); err != nil {
		if !errors.Is(err, registry.ErrStaleGeneration) {
			logging.Error("Orchestrator", err, "[%s] Failed to mark tenant %s deleted", opID, tenant.ID)
		}
		metrics.RecordDeletion("aborted")
		return
	}
	metrics.RecordDeletion("deleted")
	logging.Info("Orchestrator", "[%s] Tenant %s deleted after resume", opID, tenant.ID)
}
