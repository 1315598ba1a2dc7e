package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hasirciogluhq/xlogistic/cmd/logistic/internal/core"
	"github.com/hasirciogluhq/xlogistic/cmd/logistic/internal/logger"
)

// ServiceKey is the metadata key naming the server a driver wants.
const ServiceKey = "service"

type Resolver struct {
	backends map[string]string
	mu       sync.RWMutex
}

// NewResolver creates a new memory resolver from a comma-separated string
// Format: "service=host:port,..."
// Example: "logistic=127.0.0.1:7878,staging=10.0.0.5:7878"
func NewResolver(mappingStr string) (*Resolver, error) {
	backends := make(map[string]string)
	if strings.TrimSpace(mappingStr) == "" {
		return &Resolver{backends: backends}, nil
	}

	pairs := strings.Split(mappingStr, ",")
	for _, pair := range pairs {
		parts := strings.Split(strings.TrimSpace(pair), "=")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid mapping format: %s", pair)
		}
		key := strings.TrimSpace(parts[0])
		addr := strings.TrimSpace(parts[1])
		if key == "" || addr == "" {
			return nil, fmt.Errorf("invalid mapping format: %s", pair)
		}
		backends[key] = addr
	}

	return &Resolver{backends: backends}, nil
}

// Set adds or replaces the address for a service.
func (r *Resolver) Set(service, addr string) {
	r.mu.Lock()
	r.backends[service] = addr
	r.mu.Unlock()
}

func (r *Resolver) Resolve(ctx context.Context, metadata core.RoutingMetadata) (string, error) {
	service, ok := metadata[ServiceKey]
	if !ok {
		return "", fmt.Errorf("metadata missing '%s'", ServiceKey)
	}

	r.mu.RLock()
	addr, ok := r.backends[service]
	r.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("backend not found for service: %s", service)
	}

	logger.Debug("MemoryResolver: routing", "service", service, "addr", addr)
	return addr, nil
}
