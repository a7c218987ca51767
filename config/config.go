package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"headerswitch/logger"

	"github.com/spf13/viper"
)

const (
	ProxyModeDeclarative = "declarative"
	ProxyModeLive        = "live"
)

type DefaultPaths struct {
	ConfigDir    string
	LogPathApp   string
	LogPathProxy string
	CACertPath   string
	CAKeyPath    string
	DBPath       string
	LogLevel     string
}

type Configuration struct {
	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`
	Server struct {
		Port    string `mapstructure:"port"`
		LogPath string `mapstructure:"log_path"`
	} `mapstructure:"server"`
	Proxy struct {
		Port       string `mapstructure:"port"`
		Mode       string `mapstructure:"mode"` // "declarative" or "live"
		CACertPath string `mapstructure:"ca_cert_path"`
		CAKeyPath  string `mapstructure:"ca_key_path"`
		LogPath    string `mapstructure:"log_path"`
	} `mapstructure:"proxy"`
	Settings struct {
		PollInterval time.Duration `mapstructure:"poll_interval"`
		LiveRulesKey string        `mapstructure:"live_rules_key"`
	} `mapstructure:"settings"`
	Browser struct {
		ControlURL string `mapstructure:"control_url"`
	} `mapstructure:"browser"`
	Logging struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"logging"`
}

var AppConfig Configuration

func expandTilde(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, path[1:]), nil
}

// ExpandTilde is exported for the cmd package, which resolves --dbpath itself.
func ExpandTilde(path string) (string, error) {
	return expandTilde(path)
}

func GetDefaultConfigPaths() DefaultPaths {
	var paths DefaultPaths
	userConfigDir, err := os.UserConfigDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not get user config dir: %v. Using current directory.\n", err)
		userConfigDir = "."
	}

	paths.ConfigDir = filepath.Join(userConfigDir, "headerswitch")
	logDir := filepath.Join(paths.ConfigDir, "logs")

	paths.LogPathApp = filepath.Join(logDir, "app.log")
	paths.LogPathProxy = filepath.Join(logDir, "proxy.log")
	paths.CACertPath = filepath.Join(paths.ConfigDir, "headerswitch-ca.crt")
	paths.CAKeyPath = filepath.Join(paths.ConfigDir, "headerswitch-ca.key")
	paths.DBPath = filepath.Join(paths.ConfigDir, "headerswitch.db")
	paths.LogLevel = "INFO"
	return paths
}

func setDefaults(v *viper.Viper, defaults DefaultPaths) {
	v.SetDefault("database.path", defaults.DBPath)
	v.SetDefault("server.port", "8778")
	v.SetDefault("server.log_path", defaults.LogPathApp)
	v.SetDefault("proxy.port", "8777")
	v.SetDefault("proxy.mode", ProxyModeDeclarative)
	v.SetDefault("proxy.ca_cert_path", defaults.CACertPath)
	v.SetDefault("proxy.ca_key_path", defaults.CAKeyPath)
	v.SetDefault("proxy.log_path", defaults.LogPathProxy)
	v.SetDefault("settings.poll_interval", 2*time.Second)
	v.SetDefault("settings.live_rules_key", "headerRules")
	v.SetDefault("browser.control_url", "")
	v.SetDefault("logging.level", defaults.LogLevel)
}

// Load reads the config file (or the default search paths) plus HEADERSWITCH_* environment
// variables into a Configuration without touching globals or loggers.
func Load(cfgFile string) (Configuration, string, error) {
	v := viper.New()
	setDefaults(v, GetDefaultConfigPaths())

	if cfgFile != "" {
		expandedCfgFile, err := expandTilde(cfgFile)
		if err != nil {
			expandedCfgFile = cfgFile
		}
		v.SetConfigFile(expandedCfgFile)
	} else {
		v.AddConfigPath(GetDefaultConfigPaths().ConfigDir)
		v.AddConfigPath(".")
		v.SetConfigName("config")
	}
	v.SetConfigType("yaml")

	v.SetEnvPrefix("HEADERSWITCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configUsedMsg := "Using default/environment configuration."
	if readErr := v.ReadInConfig(); readErr == nil {
		configUsedMsg = fmt.Sprintf("Using config file: %s", v.ConfigFileUsed())
	} else if _, ok := readErr.(viper.ConfigFileNotFoundError); !ok || cfgFile != "" {
		return Configuration{}, "", fmt.Errorf("error reading config file %s: %w", cfgFile, readErr)
	}

	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return Configuration{}, "", fmt.Errorf("unable to decode config into struct: %w", err)
	}

	cfg.Proxy.Mode = strings.ToLower(strings.TrimSpace(cfg.Proxy.Mode))
	if cfg.Proxy.Mode != ProxyModeDeclarative && cfg.Proxy.Mode != ProxyModeLive {
		return Configuration{}, "", fmt.Errorf("invalid proxy.mode %q (want %q or %q)", cfg.Proxy.Mode, ProxyModeDeclarative, ProxyModeLive)
	}
	if cfg.Settings.PollInterval <= 0 {
		cfg.Settings.PollInterval = 2 * time.Second
	}

	for _, p := range []*string{&cfg.Database.Path, &cfg.Proxy.CACertPath, &cfg.Proxy.CAKeyPath, &cfg.Server.LogPath, &cfg.Proxy.LogPath} {
		expanded, err := expandTilde(*p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Could not expand tilde in '%s': %v.\n", *p, err)
			continue
		}
		*p = expanded
	}
	return cfg, configUsedMsg, nil
}

func Init(cfgFile string, flagAppLogPath, flagProxyLogPath, flagLogLevel string) error {
	cfg, configUsedMsg, err := Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: %v\n", err)
		return err
	}
	AppConfig = cfg

	// Apply flag overrides
	if flagAppLogPath != "" {
		if expanded, err := expandTilde(flagAppLogPath); err == nil {
			AppConfig.Server.LogPath = expanded
		} else {
			AppConfig.Server.LogPath = flagAppLogPath
		}
	}
	if flagProxyLogPath != "" {
		if expanded, err := expandTilde(flagProxyLogPath); err == nil {
			AppConfig.Proxy.LogPath = expanded
		} else {
			AppConfig.Proxy.LogPath = flagProxyLogPath
		}
	}
	if flagLogLevel != "" {
		AppConfig.Logging.Level = strings.ToUpper(flagLogLevel)
	}

	if err := os.MkdirAll(GetDefaultConfigPaths().ConfigDir, 0750); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not create main config directory: %v\n", err)
	}

	if err := logger.InitGlobalLoggers(AppConfig.Server.LogPath, AppConfig.Proxy.LogPath, AppConfig.Logging.Level); err != nil {
		return fmt.Errorf("failed to initialize global loggers with final config: %w", err)
	}

	logger.Info(configUsedMsg)
	logger.Info("Proxy mode: %s", AppConfig.Proxy.Mode)
	if AppConfig.Browser.ControlURL != "" {
		logger.Info("Browser attach ENABLED. Control URL: %s", AppConfig.Browser.ControlURL)
	}
	logger.Debug("Final AppConfig Initialized: %+v", AppConfig)
	return nil
}
