package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hasirciogluhq/xlogistic/cmd/logistic/internal/core"
	"github.com/hasirciogluhq/xlogistic/cmd/logistic/internal/discovery/memory"
)

// DiscoveryMode represents how drivers find the server
type DiscoveryMode string

const (
	DiscoveryKubernetes DiscoveryMode = "kubernetes"
	DiscoveryStatic     DiscoveryMode = "static"
)

// Config holds all application configuration
type Config struct {
	// Core
	Debug     bool
	LogFormat string // text, json

	// Server
	ListenAddr          string
	PollInterval        time.Duration
	HealthServerEnabled bool
	HealthServerPort    string

	// Driver
	DriverClients  int // 0 serves until SIGINT/SIGTERM
	DriverMessages int
	DriverInitial  float64
	DriverStep     float64
	DriverDelay    bool

	// Driver target discovery
	DiscoveryMode  DiscoveryMode
	StaticBackends string
	TargetService  string
	KubeConfigPath string
	KubeContext    string
	Namespace      string
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		// Core
		Debug:     getEnvBool("DEBUG", false),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),

		// Server
		ListenAddr:          getEnv("LISTEN_ADDR", "127.0.0.1:7878"),
		PollInterval:        time.Duration(getEnvInt("POLL_INTERVAL_MS", 100)) * time.Millisecond,
		HealthServerEnabled: getEnvBool("HEALTH_SERVER_ENABLED", true),
		HealthServerPort:    getEnv("HEALTH_SERVER_PORT", "8080"),

		// Driver
		DriverClients:  getEnvInt("DRIVER_CLIENTS", 5),
		DriverMessages: getEnvInt("DRIVER_MESSAGES", 50),
		DriverInitial:  getEnvFloat("DRIVER_INITIAL", 0.2),
		DriverStep:     getEnvFloat("DRIVER_STEP", 0.02),
		DriverDelay:    getEnvBool("DRIVER_DELAY", true),

		// Discovery
		DiscoveryMode:  determineDiscoveryMode(),
		StaticBackends: getEnv("STATIC_BACKENDS", ""),
		TargetService:  getEnv("TARGET_SERVICE", "logistic"),
		KubeConfigPath: getEnv("KUBECONFIG", ""),
		KubeContext:    getEnv("KUBE_CONTEXT", ""),
		Namespace:      getEnv("NAMESPACE", ""),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// TargetMetadata is the routing metadata drivers resolve.
func (c *Config) TargetMetadata() core.RoutingMetadata {
	return core.RoutingMetadata{memory.ServiceKey: c.TargetService}
}

// validate ensures configuration is coherent
func (c *Config) validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("LISTEN_ADDR must not be empty")
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL_MS must be positive, got %s", c.PollInterval)
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("unsupported LOG_FORMAT: %s (supported: text, json)", c.LogFormat)
	}

	if c.DriverClients < 0 {
		return fmt.Errorf("DRIVER_CLIENTS must not be negative, got %d", c.DriverClients)
	}
	if c.DriverMessages < 0 {
		return fmt.Errorf("DRIVER_MESSAGES must not be negative, got %d", c.DriverMessages)
	}

	if c.DiscoveryMode != DiscoveryStatic && c.DiscoveryMode != DiscoveryKubernetes {
		return fmt.Errorf("unsupported DISCOVERY_MODE: %s (supported: static, kubernetes)", c.DiscoveryMode)
	}

	if c.TargetService == "" {
		return fmt.Errorf("TARGET_SERVICE must not be empty")
	}

	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return floatValue
}

func determineDiscoveryMode() DiscoveryMode {
	// Explicit mode
	if mode := os.Getenv("DISCOVERY_MODE"); mode != "" {
		switch strings.ToLower(mode) {
		case "static", "memory":
			return DiscoveryStatic
		case "kubernetes", "k8s":
			return DiscoveryKubernetes
		}
		return DiscoveryMode(mode)
	}

	return DiscoveryStatic
}
