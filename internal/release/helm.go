package release

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"

	"tenantd/pkg/logging"
)

// runCommand executes an external command and returns its stdout/stderr.
// Package-level variable so tests can stub out the helm binary.
var runCommand = func(ctx context.Context, name string, args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// helmDriver implements Driver by shelling out to the helm binary, the same
// transport the deployer's own CLI users exercise.
type helmDriver struct {
	binary string
}

// NewHelmDriver returns a Driver backed by the given helm executable.
func NewHelmDriver(binary string) Driver {
	if binary == "" {
		binary = "helm"
	}
	return &helmDriver{binary: binary}
}

func (h *helmDriver) Install(ctx context.Context, releaseID, namespace, chartRef string, values Values, timeout time.Duration) (Outcome, error) {
	args := []string{
		"install", releaseID, chartRef,
		"--namespace", namespace,
		"--wait",
		fmt.Sprintf("--timeout=%s", timeout),
	}
	// Deterministic flag order keeps invocations reproducible.
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--set", fmt.Sprintf("%s=%s", k, values[k]))
	}

	// The exec deadline runs a little past helm's own --timeout so helm
	// gets the chance to report in its own words first.
	installCtx, cancel := context.WithTimeout(ctx, timeout+30*time.Second)
	defer cancel()

	logging.Info("ReleaseDriver", "Installing release %s (chart %s) into %s", releaseID, chartRef, namespace)
	_, stderr, err := runCommand(installCtx, h.binary, args...)
	if err != nil {
		if errors.Is(installCtx.Err(), context.DeadlineExceeded) || strings.Contains(stderr, "timed out waiting") {
			// The install may still be progressing; callers must poll Status.
			logging.Warn("ReleaseDriver", "Install of release %s hit its deadline; outcome unknown", releaseID)
			return Outcome{Phase: PhaseUnknown, Detail: "install deadline exceeded"}, nil
		}
		logging.Error("ReleaseDriver", err, "Install of release %s failed", releaseID)
		return Outcome{Phase: PhaseFailed, Detail: firstLine(stderr)}, nil
	}

	logging.Info("ReleaseDriver", "Release %s deployed into %s", releaseID, namespace)
	return Outcome{Phase: PhaseDeployed}, nil
}

func (h *helmDriver) Uninstall(ctx context.Context, releaseID, namespace string) error {
	_, stderr, err := runCommand(ctx, h.binary, "uninstall", releaseID, "--namespace", namespace)
	if err != nil {
		if isReleaseNotFound(stderr) {
			// Already gone; uninstall is idempotent.
			logging.Debug("ReleaseDriver", "Release %s not found in %s, nothing to uninstall", releaseID, namespace)
			return nil
		}
		return fmt.Errorf("failed to uninstall release %s: %s: %w", releaseID, firstLine(stderr), err)
	}
	logging.Info("ReleaseDriver", "Uninstalled release %s from %s", releaseID, namespace)
	return nil
}

// helmStatus is the subset of `helm status -o json` output we consume.
type helmStatus struct {
	Info struct {
		Status string `json:"status"`
	} `json:"info"`
}

func (h *helmDriver) Status(ctx context.Context, releaseID, namespace string) (Phase, error) {
	stdout, stderr, err := runCommand(ctx, h.binary, "status", releaseID, "--namespace", namespace, "-o", "json")
	if err != nil {
		if isReleaseNotFound(stderr) {
			return PhaseUnknown, nil
		}
		return PhaseUnknown, fmt.Errorf("failed to query status of release %s: %s: %w", releaseID, firstLine(stderr), err)
	}

	var status helmStatus
	if err := json.Unmarshal([]byte(stdout), &status); err != nil {
		return PhaseUnknown, fmt.Errorf("failed to parse status of release %s: %w", releaseID, err)
	}

	switch status.Info.Status {
	case "deployed":
		return PhaseDeployed, nil
	case "failed":
		return PhaseFailed, nil
	case "pending-install", "pending-upgrade", "pending-rollback", "uninstalling":
		return PhaseInstalling, nil
	default:
		return PhaseUnknown, nil
	}
}

func (h *helmDriver) Version(ctx context.Context) error {
	_, stderr, err := runCommand(ctx, h.binary, "version", "--short")
	if err != nil {
		return fmt.Errorf("helm not available: %s: %w", firstLine(stderr), err)
	}
	return nil
}

// isReleaseNotFound matches helm's exact "release: not found" marker. A
// looser match would swallow unrelated failures that merely mention a
// missing object (charts, namespaces, kubeconfig contexts).
func isReleaseNotFound(stderr string) bool {
	return strings.Contains(stderr, "release: not found")
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
