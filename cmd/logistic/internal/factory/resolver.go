package factory

import (
	"context"
	"fmt"
	"os"

	"github.com/hasirciogluhq/xlogistic/cmd/logistic/internal/config"
	"github.com/hasirciogluhq/xlogistic/cmd/logistic/internal/core"
	"github.com/hasirciogluhq/xlogistic/cmd/logistic/internal/discovery/kubernetes"
	"github.com/hasirciogluhq/xlogistic/cmd/logistic/internal/discovery/memory"
	"github.com/hasirciogluhq/xlogistic/cmd/logistic/internal/logger"

	k8s "k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// ResolverFactory creates the resolver drivers use to find the server
type ResolverFactory struct {
	cfg *config.Config
}

// NewResolverFactory creates a new resolver factory
func NewResolverFactory(cfg *config.Config) *ResolverFactory {
	return &ResolverFactory{cfg: cfg}
}

// Create creates a backend resolver based on configuration
func (f *ResolverFactory) Create(ctx context.Context) (core.BackendResolver, error) {
	switch f.cfg.DiscoveryMode {
	case config.DiscoveryStatic:
		return f.createStaticResolver()
	case config.DiscoveryKubernetes:
		return f.createKubernetesResolver(ctx)
	default:
		return nil, fmt.Errorf("unknown discovery mode: %s", f.cfg.DiscoveryMode)
	}
}

// createStaticResolver maps the target service to the local listener unless
// STATIC_BACKENDS names it explicitly.
func (f *ResolverFactory) createStaticResolver() (core.BackendResolver, error) {
	logger.Info("Creating Static Backend Resolver", "backends", f.cfg.StaticBackends)

	resolver, err := memory.NewResolver(f.cfg.StaticBackends)
	if err != nil {
		return nil, fmt.Errorf("failed to create static resolver: %w", err)
	}

	if _, err := resolver.Resolve(context.Background(), f.cfg.TargetMetadata()); err != nil {
		resolver.Set(f.cfg.TargetService, f.cfg.ListenAddr)
	}

	return resolver, nil
}

func (f *ResolverFactory) createKubernetesResolver(ctx context.Context) (core.BackendResolver, error) {
	logger.Info("Creating Kubernetes Backend Resolver",
		"kubeconfig", f.cfg.KubeConfigPath,
		"context", f.cfg.KubeContext,
		"namespace", f.cfg.Namespace)

	kubeconfig := f.cfg.KubeConfigPath
	if kubeconfig == "" {
		if home := os.Getenv("HOME"); home != "" {
			if _, err := os.Stat(home + "/.kube/config"); err == nil {
				kubeconfig = home + "/.kube/config"
			}
		}
	}

	configOverrides := &clientcmd.ConfigOverrides{}
	if f.cfg.KubeContext != "" {
		configOverrides.CurrentContext = f.cfg.KubeContext
		logger.Info("Using specific Kubernetes context", "context", f.cfg.KubeContext)
	}

	var restConfig *rest.Config
	var err error

	// Try kubeconfig first (out-of-cluster or explicit config)
	if kubeconfig != "" {
		restConfig, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
			&clientcmd.ClientConfigLoadingRules{ExplicitPath: kubeconfig},
			configOverrides,
		).ClientConfig()

		if err != nil {
			logger.Warn("Failed to load kubeconfig, will try in-cluster config", "error", err)
		}
	}

	// Fallback to in-cluster config
	if restConfig == nil {
		logger.Info("Attempting in-cluster Kubernetes configuration")
		restConfig, err = rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to build kubernetes config (tried kubeconfig and in-cluster): %w", err)
		}
	}

	clientset, err := k8s.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}

	resolver, err := kubernetes.NewK8sResolver(ctx, clientset, f.cfg.Namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to start kubernetes resolver: %w", err)
	}
	logger.Info("Kubernetes resolver created successfully")
	return resolver, nil
}
