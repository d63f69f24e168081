// Package release is the facade over the package deployer. It installs,
// removes, and inspects the versioned application bundle behind a tenant,
// identified by a release id within the tenant's namespace.
package release

import (
	"context"
	"time"
)

// Phase is the deployer's view of a release.
type Phase string

const (
	PhaseInstalling Phase = "Installing"
	PhaseDeployed   Phase = "Deployed"
	PhaseFailed     Phase = "Failed"
	PhaseUnknown    Phase = "Unknown"
)

// Outcome is the result of an install attempt. A timed-out install reports
// PhaseUnknown, not PhaseFailed: the underlying installation may still be
// progressing out-of-band and callers must poll Status before concluding.
type Outcome struct {
	Phase  Phase
	Detail string
}

// Values are the template parameters passed to the deployer. They may carry
// secret material and must never be logged.
type Values map[string]string

// Driver is the package deployer contract.
type Driver interface {
	// Install deploys chartRef as releaseID into namespace, waiting up to
	// timeout for the release to settle. The returned Outcome's phase is
	// Deployed, Failed, or Unknown (deadline hit). The error is reserved
	// for invocation problems, not deployment failures.
	Install(ctx context.Context, releaseID, namespace, chartRef string, values Values, timeout time.Duration) (Outcome, error)

	// Uninstall removes the release. Uninstalling a nonexistent release is
	// success, not an error.
	Uninstall(ctx context.Context, releaseID, namespace string) error

	// Status queries the release's current phase. A release the deployer
	// has no record of reports PhaseUnknown.
	Status(ctx context.Context, releaseID, namespace string) (Phase, error)

	// Version verifies the deployer tooling is available.
	Version(ctx context.Context) error
}
