package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	mu        sync.RWMutex
	v         *viper.Viper
	config    *Config
	callbacks []func(*Config)
}

// NewManager creates a new config manager and loads initial config.
func NewManager(cfgFile string) (*Manager, error) {
	cm := &Manager{
		v:         viper.New(),
		callbacks: make([]func(*Config), 0),
	}

	if err := cm.initViper(cfgFile); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// initViper sets up viper with defaults and config file.
func (cm *Manager) initViper(cfgFile string) error {
	v := cm.v
	d := DefaultConfig()
	v.SetDefault("folder", d.Folder)
	v.SetDefault("output.name", d.Output.Name)
	v.SetDefault("output.toc", d.Output.TOC)
	v.SetDefault("toc.font_size", d.TOC.FontSize)
	v.SetDefault("toc.page_width", d.TOC.PageWidth)
	v.SetDefault("toc.page_height", d.TOC.PageHeight)
	v.SetDefault("toc.left_margin", d.TOC.LeftMargin)
	v.SetDefault("toc.right_margin", d.TOC.RightMargin)
	v.SetDefault("toc.top_margin", d.TOC.TopMargin)
	v.SetDefault("toc.gap", d.TOC.Gap)
	v.SetDefault("toc.heading", d.TOC.Heading)
	v.SetDefault("scan.refresh_interval", d.Scan.RefreshInterval)
	v.SetDefault("scan.watch", d.Scan.Watch)
	v.SetDefault("converter.backend", d.Converter.Backend)
	v.SetDefault("converter.retries", d.Converter.Retries)
	v.SetDefault("converter.libreoffice.binary", d.Converter.LibreOffice.Binary)
	v.SetDefault("converter.libreoffice.timeout", d.Converter.LibreOffice.Timeout)
	v.SetDefault("converter.gotenberg.url", d.Converter.Gotenberg.URL)
	v.SetDefault("converter.gotenberg.container_name", d.Converter.Gotenberg.ContainerName)
	v.SetDefault("converter.gotenberg.image", d.Converter.Gotenberg.Image)
	v.SetDefault("converter.gotenberg.port", d.Converter.Gotenberg.Port)
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)

	// Environment variables with TLFPACK_ prefix, nested keys joined by _
	v.SetEnvPrefix("TLFPACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.tlfpack")
	}

	// Try to read config file (not required)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := cm.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Folder = ResolveEnvVars(cfg.Folder)
	cfg.Converter.Gotenberg.URL = ResolveEnvVars(cfg.Converter.Gotenberg.URL)
	return &cfg, nil
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// ConfigFile returns the config file in use, empty when running on
// defaults and environment only.
func (cm *Manager) ConfigFile() string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.v.ConfigFileUsed()
}

// Set overrides a single key, e.g. from a command-line flag, and reloads.
func (cm *Manager) Set(key string, value any) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.v.Set(key, value)
	cfg, err := cm.load()
	if err != nil {
		return err
	}
	cm.config = cfg
	return nil
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration.
func (cm *Manager) WatchConfig() {
	cm.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	cm.v.WatchConfig()
}

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	pattern := regexp.MustCompile(`\$\{([^}]+)\}`)
	return pattern.ReplaceAllStringFunc(value, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# tlfpack configuration
# String values accept ${ENV_VAR} references, e.g. folder: ${TLF_OUTPUT_DIR}
# Every key can also be set from the environment: TLFPACK_OUTPUT_TOC=false

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
