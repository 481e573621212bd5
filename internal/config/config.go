/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v2"

	"github.com/projectbeskar/virtrigaud-gcp/internal/obs/logging"
)

// Config holds all configuration for the GCP provider adapter
type Config struct {
	// GCP connection settings
	GCP GCPConfig `yaml:"gcp"`

	// Waiter bounds for long-running backend operations
	Waiter WaiterConfig `yaml:"waiter"`

	// Polling bounds for eventually consistent state
	Polling PollingConfig `yaml:"polling"`

	// Logging configuration
	Log LogConfig `yaml:"log"`

	// Tracing configuration
	Tracing TracingConfig `yaml:"tracing"`

	// Retry configuration for read-only backend calls
	Retry RetryConfig `yaml:"retry"`

	// Circuit breaker configuration
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`

	// Lifecycle event publishing
	Events EventsConfig `yaml:"events"`

	// Health and metrics endpoint
	Server ServerConfig `yaml:"server"`
}

// GCPConfig holds the project and location the adapter works in
type GCPConfig struct {
	Project         string `yaml:"project"`
	Zone            string `yaml:"zone"`
	Region          string `yaml:"region"`
	CredentialsFile string `yaml:"credentialsFile"`
	// Public attaches an external address to the first interface by default
	Public bool `yaml:"public"`
	// Endpoint overrides the compute API base path
	Endpoint string `yaml:"endpoint"`
	// UserAgent is sent with every backend request
	UserAgent string `yaml:"userAgent"`
}

// WaiterConfig bounds the operation waiter
type WaiterConfig struct {
	PollInterval time.Duration `yaml:"pollInterval"`
	MaxAttempts  int           `yaml:"maxAttempts"`
}

// PollBudgetConfig bounds one poll loop: Limit/Step checks, Interval apart
type PollBudgetConfig struct {
	Limit    int           `yaml:"limit"`
	Step     int           `yaml:"step"`
	Interval time.Duration `yaml:"interval"`
}

// PollingConfig holds the eventual-consistency poll loops
type PollingConfig struct {
	DiskReady          PollBudgetConfig `yaml:"diskReady"`
	Address            PollBudgetConfig `yaml:"address"`
	ForwardingRuleGone PollBudgetConfig `yaml:"forwardingRuleGone"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	Sampling    bool   `yaml:"sampling"`
	Development bool   `yaml:"development"`
}

// TracingConfig holds tracing configuration
type TracingConfig struct {
	Enabled           bool    `yaml:"enabled"`
	Endpoint          string  `yaml:"endpoint"`
	SamplingRatio     float64 `yaml:"samplingRatio"`
	InsecureTransport bool    `yaml:"insecureTransport"`
}

// RetryConfig holds retry configuration
type RetryConfig struct {
	MaxAttempts int           `yaml:"maxAttempts"`
	BaseDelay   time.Duration `yaml:"baseDelay"`
	MaxDelay    time.Duration `yaml:"maxDelay"`
	Multiplier  float64       `yaml:"multiplier"`
	Jitter      bool          `yaml:"jitter"`
}

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	FailureThreshold int           `yaml:"failureThreshold"`
	ResetTimeout     time.Duration `yaml:"resetTimeout"`
	HalfOpenMaxCalls int           `yaml:"halfOpenMaxCalls"`
}

// EventsConfig holds lifecycle event publishing configuration
type EventsConfig struct {
	Enabled       bool          `yaml:"enabled"`
	NATSURL       string        `yaml:"natsURL"`
	SubjectPrefix string        `yaml:"subjectPrefix"`
	Timeout       time.Duration `yaml:"timeout"`
}

// ServerConfig holds the health and metrics endpoint configuration
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		GCP: GCPConfig{
			Project:         getEnvWithDefault("GCP_PROJECT", ""),
			Zone:            getEnvWithDefault("GCP_ZONE", "europe-west1-b"),
			Region:          getEnvWithDefault("GCP_REGION", "europe-west1"),
			CredentialsFile: getEnvWithDefault("GOOGLE_APPLICATION_CREDENTIALS", ""),
			Public:          getEnvBoolWithDefault("GCP_PUBLIC", true),
			Endpoint:        getEnvWithDefault("GCP_COMPUTE_ENDPOINT", ""),
			UserAgent:       getEnvWithDefault("GCP_USER_AGENT", "virtrigaud-gcp"),
		},
		Waiter: WaiterConfig{
			PollInterval: getEnvDurationWithDefault("WAITER_POLL_INTERVAL", time.Second),
			MaxAttempts:  getEnvIntWithDefault("WAITER_MAX_ATTEMPTS", 60),
		},
		Polling: PollingConfig{
			// Gives up once the counter passes 60
			DiskReady:          PollBudgetConfig{Limit: 65, Step: 5, Interval: 5 * time.Second},
			Address:            PollBudgetConfig{Limit: 100, Step: 10, Interval: 5 * time.Second},
			ForwardingRuleGone: PollBudgetConfig{Limit: 60, Step: 5, Interval: 5 * time.Second},
		},
		Log: LogConfig{
			Level:       getEnvWithDefault("LOG_LEVEL", "info"),
			Format:      getEnvWithDefault("LOG_FORMAT", "console"),
			Sampling:    getEnvBoolWithDefault("LOG_SAMPLING", false),
			Development: getEnvBoolWithDefault("LOG_DEVELOPMENT", false),
		},
		Tracing: TracingConfig{
			Enabled:           getEnvBoolWithDefault("VIRTRIGAUD_TRACING_ENABLED", false),
			Endpoint:          getEnvWithDefault("VIRTRIGAUD_TRACING_ENDPOINT", ""),
			SamplingRatio:     getEnvFloatWithDefault("VIRTRIGAUD_TRACING_SAMPLING_RATIO", 0.1),
			InsecureTransport: getEnvBoolWithDefault("VIRTRIGAUD_TRACING_INSECURE", true),
		},
		Retry: RetryConfig{
			MaxAttempts: getEnvIntWithDefault("RETRY_MAX_ATTEMPTS", 5),
			BaseDelay:   getEnvDurationWithDefault("RETRY_BASE_DELAY", 500*time.Millisecond),
			MaxDelay:    getEnvDurationWithDefault("RETRY_MAX_DELAY", 30*time.Second),
			Multiplier:  getEnvFloatWithDefault("RETRY_MULTIPLIER", 2.0),
			Jitter:      getEnvBoolWithDefault("RETRY_JITTER", true),
		},
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold: getEnvIntWithDefault("CB_FAILURE_THRESHOLD", 10),
			ResetTimeout:     getEnvDurationWithDefault("CB_RESET_TIMEOUT", 60*time.Second),
			HalfOpenMaxCalls: getEnvIntWithDefault("CB_HALF_OPEN_MAX_CALLS", 3),
		},
		Events: EventsConfig{
			Enabled:       getEnvBoolWithDefault("EVENTS_ENABLED", false),
			NATSURL:       getEnvWithDefault("NATS_URL", "nats://127.0.0.1:4222"),
			SubjectPrefix: getEnvWithDefault("EVENTS_SUBJECT_PREFIX", "virtrigaud.gcp"),
			Timeout:       getEnvDurationWithDefault("EVENTS_TIMEOUT", 5*time.Second),
		},
		Server: ServerConfig{
			Addr: getEnvWithDefault("VIRTRIGAUD_SERVER_ADDR", ":8080"),
		},
	}
}

// Validate checks the configuration for missing or inconsistent values
func (c *Config) Validate() error {
	var problems []string
	if c.GCP.Project == "" {
		problems = append(problems, "gcp.project is required")
	}
	if c.GCP.Zone == "" {
		problems = append(problems, "gcp.zone is required")
	}
	if c.GCP.Region == "" {
		problems = append(problems, "gcp.region is required")
	} else if c.GCP.Zone != "" && !strings.HasPrefix(c.GCP.Zone, c.GCP.Region+"-") {
		problems = append(problems, fmt.Sprintf("gcp.zone %s is not in region %s", c.GCP.Zone, c.GCP.Region))
	}
	if c.Waiter.MaxAttempts <= 0 {
		problems = append(problems, "waiter.maxAttempts must be positive")
	}
	if c.Events.Enabled && c.Events.NATSURL == "" {
		problems = append(problems, "events.natsURL is required when events are enabled")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Manager manages configuration with hot-reload capability
type Manager struct {
	mu       sync.RWMutex
	config   *Config
	watchers []chan *Config
	watcher  *fsnotify.Watcher
	file     string
}

// NewManager creates a new configuration manager
func NewManager(configFile string) (*Manager, error) {
	config := DefaultConfig()

	if configFile != "" {
		if err := loadFromFile(configFile, config); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	manager := &Manager{
		config:   config,
		watchers: make([]chan *Config, 0),
		file:     configFile,
	}

	return manager, nil
}

// Get returns the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Watch returns a channel that receives configuration updates
func (m *Manager) Watch() <-chan *Config {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan *Config, 1)
	m.watchers = append(m.watchers, ch)

	// Send current config immediately
	ch <- m.config

	return ch
}

// Update updates the configuration and notifies watchers
func (m *Manager) Update(config *Config) {
	m.mu.Lock()
	m.config = config
	watchers := make([]chan *Config, len(m.watchers))
	copy(watchers, m.watchers)
	m.mu.Unlock()

	for _, watcher := range watchers {
		select {
		case watcher <- config:
		default:
			// Channel is full, skip this update
		}
	}
}

// Close closes the configuration manager and cleans up resources
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, watcher := range m.watchers {
		close(watcher)
	}
	m.watchers = nil

	if m.watcher != nil {
		return m.watcher.Close()
	}

	return nil
}

// StartWatching reloads the configuration whenever the file is written.
// Only long running commands such as serve need this.
func (m *Manager) StartWatching() error {
	if m.file == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.watcher = watcher
	m.mu.Unlock()

	go func() {
		log := logging.Logger().WithName("config")
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					m.reloadConfig()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Error(err, "Config file watcher error")
			}
		}
	}()

	return watcher.Add(m.file)
}

// reloadConfig reloads configuration from file
func (m *Manager) reloadConfig() {
	log := logging.Logger().WithName("config")
	config := DefaultConfig()
	if err := loadFromFile(m.file, config); err != nil {
		log.Error(err, "Error reloading config", "file", m.file)
		return
	}

	log.Info("Configuration reloaded from file", "file", m.file)
	m.Update(config)
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(filename string, config *Config) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, config)
}

// Helper functions for environment variable parsing

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloatWithDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
