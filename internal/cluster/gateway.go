package cluster

import (
	"context"
	"errors"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/retry"

	"tenantd/pkg/logging"
)

// NewK8sClientsetFromConfig is a package-level variable for creating a
// clientset from rest.Config. Exported to allow overriding in tests.
var NewK8sClientsetFromConfig = func(c *rest.Config) (kubernetes.Interface, error) {
	return kubernetes.NewForConfig(c)
}

// transientBackoff bounds retries of transient API errors: base 500ms,
// doubling, capped at 8s, at most 5 attempts.
var transientBackoff = wait.Backoff{
	Duration: 500 * time.Millisecond,
	Factor:   2.0,
	Jitter:   0.1,
	Steps:    5,
	Cap:      8 * time.Second,
}

// defaultLabels are stamped onto every namespace the gateway creates so
// tenant namespaces are discoverable with a label selector.
var defaultLabels = map[string]string{
	"app":        "tenant",
	"managed-by": "tenantd",
}

type gateway struct {
	clientset kubernetes.Interface
}

// NewGateway builds a Gateway from the local kubeconfig. An empty
// kubeContext uses the current context.
func NewGateway(kubeContext string) (Gateway, error) {
	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	configOverrides := &clientcmd.ConfigOverrides{}
	if kubeContext != "" {
		configOverrides.CurrentContext = kubeContext
	}
	kubeConfig := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, configOverrides)

	restConfig, err := kubeConfig.ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to get REST config for context %q: %w", kubeContext, err)
	}
	restConfig.Timeout = 15 * time.Second

	clientset, err := NewK8sClientsetFromConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kubernetes clientset: %w", err)
	}
	return NewGatewayWithClientset(clientset), nil
}

// NewGatewayWithClientset wraps an existing clientset. Used by tests with
// the fake clientset.
func NewGatewayWithClientset(clientset kubernetes.Interface) Gateway {
	return &gateway{clientset: clientset}
}

// isTransient classifies an error as retryable. API status errors carrying a
// definitive reason (not found, forbidden, invalid) are final; server-side
// 5xx conditions and raw transport errors are worth retrying.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	switch {
	case apierrors.IsNotFound(err),
		apierrors.IsAlreadyExists(err),
		apierrors.IsForbidden(err),
		apierrors.IsUnauthorized(err),
		apierrors.IsInvalid(err),
		apierrors.IsBadRequest(err),
		apierrors.IsConflict(err):
		return false
	case apierrors.IsServerTimeout(err),
		apierrors.IsServiceUnavailable(err),
		apierrors.IsInternalError(err),
		apierrors.IsTooManyRequests(err),
		apierrors.IsTimeout(err):
		return true
	}
	// Anything that is not a structured API status error is a transport
	// failure (connection reset, EOF) and gets retried.
	var statusErr *apierrors.StatusError
	return !errors.As(err, &statusErr)
}

// withRetry runs fn under the transient-error retry policy.
func withRetry(fn func() error) error {
	return retry.OnError(transientBackoff, isTransient, fn)
}

func (g *gateway) NamespaceExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := withRetry(func() error {
		_, err := g.clientset.CoreV1().Namespaces().Get(ctx, name, metav1.GetOptions{})
		if apierrors.IsNotFound(err) {
			exists = false
			return nil
		}
		if err != nil {
			return err
		}
		exists = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to check namespace %s: %w", name, err)
	}
	return exists, nil
}

func (g *gateway) CreateNamespace(ctx context.Context, name string, labels, annotations map[string]string) error {
	merged := make(map[string]string, len(defaultLabels)+len(labels))
	for k, v := range defaultLabels {
		merged[k] = v
	}
	for k, v := range labels {
		merged[k] = v
	}

	ns := &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{
			Name:        name,
			Labels:      merged,
			Annotations: annotations,
		},
	}

	err := withRetry(func() error {
		_, err := g.clientset.CoreV1().Namespaces().Create(ctx, ns, metav1.CreateOptions{})
		if apierrors.IsAlreadyExists(err) {
			// Resumed provisioning recreates its own namespace.
			logging.Warn("ClusterGateway", "Namespace %s already exists", name)
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to create namespace %s: %w", name, err)
	}
	logging.Info("ClusterGateway", "Created namespace: %s", name)
	return nil
}

func (g *gateway) DeleteNamespace(ctx context.Context, name string) error {
	err := withRetry(func() error {
		err := g.clientset.CoreV1().Namespaces().Delete(ctx, name, metav1.DeleteOptions{})
		if apierrors.IsNotFound(err) {
			// Already gone; deletion is idempotent.
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete namespace %s: %w", name, err)
	}
	logging.Info("ClusterGateway", "Requested deletion of namespace: %s", name)
	return nil
}

func (g *gateway) ListWorkloadStatus(ctx context.Context, namespace string) (WorkloadStatus, error) {
	var pods *corev1.PodList
	err := withRetry(func() error {
		var err error
		pods, err = g.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{})
		return err
	})
	if err != nil {
		return WorkloadStatus{}, fmt.Errorf("failed to list pods in namespace %s: %w", namespace, err)
	}

	status := WorkloadStatus{TotalPods: len(pods.Items)}
	if status.TotalPods == 0 {
		status.Reason = "no workloads observed yet"
		return status, nil
	}

	for _, pod := range pods.Items {
		if podReady(&pod) {
			status.ReadyPods++
		}
	}
	if status.ReadyPods == status.TotalPods {
		status.Ready = true
	} else {
		status.Reason = fmt.Sprintf("%d/%d pods ready", status.ReadyPods, status.TotalPods)
	}
	return status, nil
}

func (g *gateway) CheckAPIHealth(ctx context.Context) error {
	err := withRetry(func() error {
		_, err := g.clientset.Discovery().ServerVersion()
		return err
	})
	if err != nil {
		return fmt.Errorf("cluster API not reachable: %w", err)
	}
	return nil
}

// podReady reports whether the pod is running with every container ready.
func podReady(pod *corev1.Pod) bool {
	if pod.Status.Phase != corev1.PodRunning {
		return false
	}
	if len(pod.Status.ContainerStatuses) == 0 {
		return false
	}
	for _, cs := range pod.Status.ContainerStatuses {
		if !cs.Ready {
			return false
		}
	}
	return true
}
