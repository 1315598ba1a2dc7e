package kubernetes

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/informers"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/cache"

	"github.com/hasirciogluhq/xlogistic/cmd/logistic/internal/core"
	"github.com/hasirciogluhq/xlogistic/cmd/logistic/internal/discovery/memory"
)

// Service labels consulted by the resolver.
const (
	LabelEnabled = "xlogistic-enabled"
	LabelService = "xlogistic-service"
	// LabelPort optionally names the service port to use; the first port otherwise.
	LabelPort = "xlogistic-port"
)

type K8sResolver struct {
	store cache.Store
}

// NewK8sResolver starts a Service informer (scoped to namespace unless it is
// empty) and blocks until its cache is synced. The informer stops with ctx.
func NewK8sResolver(ctx context.Context, clientset kubernetes.Interface, namespace string) (*K8sResolver, error) {
	var opts []informers.SharedInformerOption
	if namespace != "" {
		opts = append(opts, informers.WithNamespace(namespace))
	}
	factory := informers.NewSharedInformerFactoryWithOptions(clientset, 10*time.Minute, opts...)
	serviceInformer := factory.Core().V1().Services().Informer()

	factory.Start(ctx.Done())
	for typ, synced := range factory.WaitForCacheSync(ctx.Done()) {
		if !synced {
			return nil, fmt.Errorf("failed to sync informer cache for %v", typ)
		}
	}

	return &K8sResolver{
		store: serviceInformer.GetStore(),
	}, nil
}

func (r *K8sResolver) Resolve(ctx context.Context, metadata core.RoutingMetadata) (string, error) {
	service, ok := metadata[memory.ServiceKey]
	if !ok {
		return "", fmt.Errorf("metadata missing '%s'", memory.ServiceKey)
	}

	// Scan services for matching labels
	for _, obj := range r.store.List() {
		svc, ok := obj.(*corev1.Service)
		if !ok {
			continue
		}

		labels := svc.Labels
		if labels[LabelEnabled] != "true" || labels[LabelService] != service {
			continue
		}

		port := servicePort(svc, labels[LabelPort])
		if port == 0 {
			continue
		}

		return fmt.Sprintf("%s.%s.svc.cluster.local:%d", svc.Name, svc.Namespace, port), nil
	}

	return "", fmt.Errorf("service not found for %s='%s'", LabelService, service)
}

func servicePort(svc *corev1.Service, name string) int32 {
	if len(svc.Spec.Ports) == 0 {
		return 0
	}
	if name == "" {
		return svc.Spec.Ports[0].Port
	}
	for _, p := range svc.Spec.Ports {
		if p.Name == name {
			return p.Port
		}
	}
	return 0
}
