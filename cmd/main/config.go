package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/natefinch/atomic"
	"github.com/pagestudiocms/pagestudio-template-development-server/pkg/templating"
)

// ServerConfig holds the configuration for the HTTP servers and the compiler.
type ServerConfig struct {
	ServerAddr      string   `json:"server_addr"`
	ApiAddr         string   `json:"api_addr"`
	LogLevel        string   `json:"log_level"`
	LogFormat       string   `json:"log_format"`
	AllowedClients  []string `json:"allowed_clients"`
	SourceDir       string   `json:"source_dir"`
	DestDir         string   `json:"dest_dir"`
	DatabasePath    string   `json:"database_path"`
	WatchIntervalMs int      `json:"watch_interval_ms"`
}

// Config is the top-level configuration struct that aggregates all other configs.
type Config struct {
	Server    *ServerConfig              `json:"server_config"`
	Templates *templating.TemplateConfig `json:"template_config"`
}

// DefaultServerConfig creates a server configuration with default values.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ServerAddr:      ":8080",
		ApiAddr:         "127.0.0.1:8081",
		LogLevel:        "info",
		LogFormat:       "text",
		AllowedClients:  []string{"127.0.0.0/8", "::1"},
		SourceDir:       "./src",
		DestDir:         "./dist",
		DatabasePath:    "./pagestudio.db?_journal_mode=WAL&_busy_timeout=5000",
		WatchIntervalMs: 0,
	}
}

// DefaultConfig returns a Config with every section set to its defaults.
func DefaultConfig() *Config {
	tmpl := templating.DefaultConfig()
	return &Config{
		Server:    DefaultServerConfig(),
		Templates: &tmpl,
	}
}

// LoadConfig reads the configuration from a JSON file at the given path.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			var data []byte
			data, err = json.MarshalIndent(config, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("failed to marshal default config: %w", err)
			}
			if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
				// The server can still run with defaults.
				fmt.Fprintf(os.Stderr, "warning: failed to write default config file: %v\n", err)
			}
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err = json.Unmarshal(file, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err = config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) validate() error {
	if c.Server == nil {
		return fmt.Errorf("config: server_config is required")
	}
	if c.Templates == nil {
		return fmt.Errorf("config: template_config is required")
	}
	if err := c.Templates.Engine.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// ConfigManager handles thread-safe access to configuration and derived state
// (the allowed API client networks).
type ConfigManager struct {
	config      *Config
	mu          sync.RWMutex
	allowedNets []*net.IPNet
	allowedIPs  []net.IP
	configPath  string
	logger      *slog.Logger
	tm          *templating.TemplateManager
}

// NewConfigManager loads the config and initializes the manager.
func NewConfigManager(path string) (*ConfigManager, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return newConfigManager(cfg, path), nil
}

func newConfigManager(cfg *Config, path string) *ConfigManager {
	cm := &ConfigManager{
		config:     cfg,
		configPath: path,
		// Log to stderr before the application-specific logger is set.
		logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{})),
	}
	cm.refreshCache()
	return cm
}

// SetTemplateManager registers the template manager to receive config updates.
func (cm *ConfigManager) SetTemplateManager(tm *templating.TemplateManager) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.tm = tm
}

// SetLogger sets the logger.
func (cm *ConfigManager) SetLogger(logger *slog.Logger) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.logger = logger
}

// Get returns a copy of the current configuration.
func (cm *ConfigManager) Get() Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	server := *cm.config.Server
	server.AllowedClients = append([]string(nil), server.AllowedClients...)
	tmpl := *cm.config.Templates
	return Config{Server: &server, Templates: &tmpl}
}

// Update validates the configuration, applies it to the template manager,
// saves it to disk and refreshes derived state. A template configuration the
// manager cannot load is rolled back.
func (cm *ConfigManager) Update(newConfig Config) error {
	if err := newConfig.validate(); err != nil {
		return err
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.tm != nil {
		oldTmplConfig := cm.config.Templates
		if err := cm.tm.SetConfig(newConfig.Templates); err != nil {
			return fmt.Errorf("template configuration rejected: %w", err)
		}
		if err := cm.tm.Refresh(); err != nil {
			_ = cm.tm.SetConfig(oldTmplConfig)
			_ = cm.tm.Refresh()
			return fmt.Errorf("template configuration rejected: %w", err)
		}
	}

	cm.config = &newConfig
	cm.refreshCache()

	data, err := json.MarshalIndent(cm.config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := atomic.WriteFile(cm.configPath, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// IsAllowed reports whether a client address may use the API. An empty
// allow list admits every client.
func (cm *ConfigManager) IsAllowed(ipAddr string) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if len(cm.allowedNets) == 0 && len(cm.allowedIPs) == 0 {
		return true
	}
	parsedIP := net.ParseIP(ipAddr)
	if parsedIP == nil {
		return false
	}
	for _, ipNet := range cm.allowedNets {
		if ipNet.Contains(parsedIP) {
			return true
		}
	}
	for _, ip := range cm.allowedIPs {
		if ip.Equal(parsedIP) {
			return true
		}
	}
	return false
}

// refreshCache rebuilds the binary IP lists from the config strings.
func (cm *ConfigManager) refreshCache() {
	var nets []*net.IPNet
	var ips []net.IP

	for _, entry := range cm.config.Server.AllowedClients {
		if strings.Contains(entry, "/") {
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				cm.logger.Warn("Failed to parse allowed client CIDR", "cidr", entry, "error", err)
				continue
			}
			nets = append(nets, ipNet)
			continue
		}
		if ip := net.ParseIP(entry); ip != nil {
			ips = append(ips, ip)
		} else {
			cm.logger.Warn("Failed to parse allowed client IP", "ip", entry)
		}
	}
	cm.allowedNets = nets
	cm.allowedIPs = ips
}
