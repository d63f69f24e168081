package release

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubCommand replaces runCommand for one test and records the invocation.
func stubCommand(t *testing.T, fn func(ctx context.Context, name string, args ...string) (string, string, error)) *[][]string {
	t.Helper()
	original := runCommand
	t.Cleanup(func() { runCommand = original })

	var calls [][]string
	runCommand = func(ctx context.Context, name string, args ...string) (string, string, error) {
		calls = append(calls, append([]string{name}, args...))
		return fn(ctx, name, args...)
	}
	return &calls
}

func TestInstallSuccess(t *testing.T) {
	calls := stubCommand(t, func(ctx context.Context, name string, args ...string) (string, string, error) {
		return "STATUS: deployed", "", nil
	})

	driver := NewHelmDriver("helm")
	outcome, err := driver.Install(context.Background(), "alice", "tenant-alice", "bitnami/wordpress", Values{
		"wordpressUsername": "admin",
		"ingress.hostname":  "alice.localhost",
	}, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, PhaseDeployed, outcome.Phase)

	require.Len(t, *calls, 1)
	args := (*calls)[0]
	assert.Equal(t, "helm", args[0])
	assert.Contains(t, args, "install")
	assert.Contains(t, args, "--wait")
	assert.Contains(t, args, "--timeout=5m0s")
	// --set flags are emitted in sorted key order.
	assert.Contains(t, args, "ingress.hostname=alice.localhost")
	assert.Contains(t, args, "wordpressUsername=admin")
	hostnameIdx, usernameIdx := -1, -1
	for i, a := range args {
		switch a {
		case "ingress.hostname=alice.localhost":
			hostnameIdx = i
		case "wordpressUsername=admin":
			usernameIdx = i
		}
	}
	assert.Less(t, hostnameIdx, usernameIdx)
}

func TestInstallFailureReportsFirstStderrLine(t *testing.T) {
	stubCommand(t, func(ctx context.Context, name string, args ...string) (string, string, error) {
		return "", "Error: chart \"bitnami/wordpress\" not found\nmore detail", errors.New("exit status 1")
	})

	driver := NewHelmDriver("helm")
	outcome, err := driver.Install(context.Background(), "alice", "tenant-alice", "bitnami/wordpress", nil, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, PhaseFailed, outcome.Phase)
	assert.Equal(t, "Error: chart \"bitnami/wordpress\" not found", outcome.Detail)
}

func TestInstallTimeoutIsUnknownNotFailed(t *testing.T) {
	stubCommand(t, func(ctx context.Context, name string, args ...string) (string, string, error) {
		return "", "Error: INSTALLATION FAILED: timed out waiting for the condition", errors.New("exit status 1")
	})

	driver := NewHelmDriver("helm")
	outcome, err := driver.Install(context.Background(), "alice", "tenant-alice", "bitnami/wordpress", nil, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, PhaseUnknown, outcome.Phase)
}

func TestUninstallIdempotentOnMissingRelease(t *testing.T) {
	stubCommand(t, func(ctx context.Context, name string, args ...string) (string, string, error) {
		return "", "Error: uninstall: Release not loaded: alice: release: not found", errors.New("exit status 1")
	})

	driver := NewHelmDriver("helm")
	err := driver.Uninstall(context.Background(), "alice", "tenant-alice")
	assert.NoError(t, err)
}

func TestUninstallOnlyTreatsMissingReleaseAsSuccess(t *testing.T) {
	// Failures that merely mention a missing object elsewhere (here the
	// chart repo) must still surface as errors.
	stubCommand(t, func(ctx context.Context, name string, args ...string) (string, string, error) {
		return "", "Error: repo bitnami not found in repositories.yaml", errors.New("exit status 1")
	})

	driver := NewHelmDriver("helm")
	err := driver.Uninstall(context.Background(), "alice", "tenant-alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repo bitnami not found")
}

func TestUninstallPropagatesOtherFailures(t *testing.T) {
	stubCommand(t, func(ctx context.Context, name string, args ...string) (string, string, error) {
		return "", "Error: Kubernetes cluster unreachable", errors.New("exit status 1")
	})

	driver := NewHelmDriver("helm")
	err := driver.Uninstall(context.Background(), "alice", "tenant-alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cluster unreachable")
}

func TestStatusParsing(t *testing.T) {
	tests := []struct {
		name     string
		stdout   string
		expected Phase
	}{
		{"deployed", `{"info":{"status":"deployed"}}`, PhaseDeployed},
		{"failed", `{"info":{"status":"failed"}}`, PhaseFailed},
		{"pending install", `{"info":{"status":"pending-install"}}`, PhaseInstalling},
		{"uninstalling", `{"info":{"status":"uninstalling"}}`, PhaseInstalling},
		{"unexpected value", `{"info":{"status":"superseded"}}`, PhaseUnknown},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			stubCommand(t, func(ctx context.Context, name string, args ...string) (string, string, error) {
				return tc.stdout, "", nil
			})

			driver := NewHelmDriver("helm")
			phase, err := driver.Status(context.Background(), "alice", "tenant-alice")
			require.NoError(t, err)
			assert.Equal(t, tc.expected, phase)
		})
	}
}

func TestStatusMissingReleaseIsUnknown(t *testing.T) {
	stubCommand(t, func(ctx context.Context, name string, args ...string) (string, string, error) {
		return "", "Error: release: not found", errors.New("exit status 1")
	})

	driver := NewHelmDriver("helm")
	phase, err := driver.Status(context.Background(), "alice", "tenant-alice")
	require.NoError(t, err)
	assert.Equal(t, PhaseUnknown, phase)
}

func TestVersion(t *testing.T) {
	stubCommand(t, func(ctx context.Context, name string, args ...string) (string, string, error) {
		assert.Equal(t, []string{"version", "--short"}, args)
		return "v3.14.0", "", nil
	})

	driver := NewHelmDriver("helm")
	assert.NoError(t, driver.Version(context.Background()))

	stubCommand(t, func(ctx context.Context, name string, args ...string) (string, string, error) {
		return "", "command not found", errors.New("exec: \"helm\": executable file not found in $PATH")
	})
	assert.Error(t, driver.Version(context.Background()))
}
