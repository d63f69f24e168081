package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenantd/internal/cluster"
	"tenantd/internal/config"
	"tenantd/internal/orchestrator"
	"tenantd/internal/registry"
	"tenantd/internal/release"
	"tenantd/internal/status"
	"tenantd/pkg/logging"
)

func TestMain(m *testing.M) {
	logging.Init(logging.LevelError, io.Discard)
	os.Exit(m.Run())
}

// fakeGateway keeps namespaces in a map and reports every workload as
// immediately ready so provisioning settles on the first poll.
type fakeGateway struct {
	mu         sync.Mutex
	namespaces map[string]bool
	healthErr  error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{namespaces: make(map[string]bool)}
}

func (f *fakeGateway) NamespaceExists(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.namespaces[name], nil
}

func (f *fakeGateway) CreateNamespace(ctx context.Context, name string, labels, annotations map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.namespaces[name] = true
	return nil
}

func (f *fakeGateway) DeleteNamespace(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.namespaces, name)
	return nil
}

func (f *fakeGateway) ListWorkloadStatus(ctx context.Context, namespace string) (cluster.WorkloadStatus, error) {
	return cluster.WorkloadStatus{Ready: true, ReadyPods: 2, TotalPods: 2}, nil
}

func (f *fakeGateway) CheckAPIHealth(ctx context.Context) error {
	return f.healthErr
}

// fakeDriver deploys everything instantly.
type fakeDriver struct {
	versionErr error
}

func (f *fakeDriver) Install(ctx context.Context, releaseID, namespace, chartRef string, values release.Values, timeout time.Duration) (release.Outcome, error) {
	return release.Outcome{Phase: release.PhaseDeployed}, nil
}

func (f *fakeDriver) Uninstall(ctx context.Context, releaseID, namespace string) error {
	return nil
}

func (f *fakeDriver) Status(ctx context.Context, releaseID, namespace string) (release.Phase, error) {
	return release.PhaseDeployed, nil
}

func (f *fakeDriver) Version(ctx context.Context) error {
	return f.versionErr
}

// staleRegistry loses every swap, as if a concurrent writer always got
// there first.
type staleRegistry struct {
	registry.Registry
}

func (s *staleRegistry) CompareAndSwap(ctx context.Context, id string, expectedGeneration int64, mutate registry.Mutation) (registry.Tenant, error) {
	return registry.Tenant{}, registry.ErrStaleGeneration
}

func newTestServer(t *testing.T) (*Server, *fakeGateway, *fakeDriver) {
	t.Helper()
	return newTestServerWithRegistry(t, registry.NewMemory())
}

func newTestServerWithRegistry(t *testing.T, reg registry.Registry) (*Server, *fakeGateway, *fakeDriver) {
	t.Helper()
	gateway := newFakeGateway()
	driver := &fakeDriver{}

	orchCfg := orchestrator.Config{
		NamespacePrefix:       "tenant-",
		ChartRef:              "bitnami/wordpress",
		BaseDomain:            "localhost",
		AdminPath:             "/wp-admin",
		InstallTimeout:        time.Second,
		PollInterval:          time.Millisecond,
		ProvisionDeadline:     time.Second,
		DeleteConfirmDeadline: time.Second,
		SizingClasses: map[string]config.SizingClass{
			"small": {AppVolumeSize: "5Gi", DataVolumeSize: "3Gi"},
		},
		DefaultSizingClass: "small",
	}
	orch := orchestrator.New(orchCfg, reg, gateway, driver)
	reporter := status.NewReporter(orchCfg, reg, gateway)

	serverCfg := config.ServerConfig{Host: "127.0.0.1", Port: 8080, AllowedOrigins: []string{"*"}}
	return New(serverCfg, orch, reporter, gateway, driver, "test"), gateway, driver
}

func doJSON(t *testing.T, handler http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestCreateTenantEndpoint(t *testing.T) {
	srv, gateway, _ := newTestServer(t)

	rec, body := doJSON(t, srv.Handler(), http.MethodPost, "/tenants",
		`{"name":"alice","ownerContact":"alice@example.com"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	tenant := body["tenant"].(map[string]any)
	assert.Equal(t, "alice", tenant["id"])
	assert.Equal(t, "Ready", tenant["state"])
	assert.Equal(t, "http://alice.localhost", body["url"])
	assert.Equal(t, "http://alice.localhost/wp-admin", body["adminUrl"])

	creds := body["credentials"].(map[string]any)
	assert.Equal(t, "admin", creds["adminUser"])
	assert.NotEmpty(t, creds["adminPassword"])
	assert.NotEmpty(t, creds["dbPassword"])

	assert.True(t, gateway.namespaces["tenant-alice"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestCreateTenantEndpointValidation(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec, body := doJSON(t, srv.Handler(), http.MethodPost, "/tenants",
		`{"name":"A!","ownerContact":"alice@example.com"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["error"], "name")
}

func TestCreateTenantEndpointConflict(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec, _ := doJSON(t, srv.Handler(), http.MethodPost, "/tenants",
		`{"name":"alice","ownerContact":"alice@example.com"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, body := doJSON(t, srv.Handler(), http.MethodPost, "/tenants",
		`{"name":"alice","ownerContact":"alice@example.com"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, body["error"], "already in use")
}

func TestCreateTenantEndpointAbortedMapsToConflict(t *testing.T) {
	// Every swap loses the generation race, so the create abandons; the
	// internal concurrency signal must surface as a conflict, never a 500.
	srv, _, _ := newTestServerWithRegistry(t, &staleRegistry{Registry: registry.NewMemory()})

	rec, body := doJSON(t, srv.Handler(), http.MethodPost, "/tenants",
		`{"name":"alice","ownerContact":"alice@example.com"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, body["error"], "superseded")
}

func TestGetTenantEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec, _ := doJSON(t, srv.Handler(), http.MethodPost, "/tenants",
		`{"name":"alice","ownerContact":"alice@example.com"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, body := doJSON(t, srv.Handler(), http.MethodGet, "/tenants/alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", body["id"])
	assert.Equal(t, "Ready", body["state"])

	// Reads never re-expose credentials.
	assert.NotContains(t, rec.Body.String(), "Password")
	assert.NotContains(t, rec.Body.String(), "credentials")
}

func TestGetTenantEndpointNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec, body := doJSON(t, srv.Handler(), http.MethodGet, "/tenants/ghost", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "tenant not found", body["error"])
}

func TestListTenantsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	for _, name := range []string{"alice", "bob"} {
		rec, _ := doJSON(t, srv.Handler(), http.MethodPost, "/tenants",
			`{"name":"`+name+`","ownerContact":"`+name+`@example.com"}`)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec, body := doJSON(t, srv.Handler(), http.MethodGet, "/tenants", "")
	require.Equal(t, http.StatusOK, rec.Code)
	tenants := body["tenants"].([]any)
	assert.Len(t, tenants, 2)
}

func TestDeleteTenantEndpoint(t *testing.T) {
	srv, gateway, _ := newTestServer(t)

	rec, _ := doJSON(t, srv.Handler(), http.MethodPost, "/tenants",
		`{"name":"alice","ownerContact":"alice@example.com"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, body := doJSON(t, srv.Handler(), http.MethodDelete, "/tenants/alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", body["id"])
	assert.False(t, gateway.namespaces["tenant-alice"])

	// The record remains, terminally Deleted.
	rec, body = doJSON(t, srv.Handler(), http.MethodGet, "/tenants/alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Deleted", body["state"])

	// A second delete is a miss.
	rec, _ = doJSON(t, srv.Handler(), http.MethodDelete, "/tenants/alice", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthzEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec, body := doJSON(t, srv.Handler(), http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestHealthzEndpointDegraded(t *testing.T) {
	srv, _, driver := newTestServer(t)
	driver.versionErr = errors.New("helm not available")

	rec, body := doJSON(t, srv.Handler(), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", body["status"])
	components := body["components"].(map[string]any)
	assert.Contains(t, components["deployer"], "helm not available")
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tenantd_")
}
