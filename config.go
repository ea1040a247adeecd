package hatsetup

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	configFilename = "config.yml"
	// defaultEnvFile may override any configured path, mainly so that the
	// whole tool can be pointed at a scratch tree on non-Pi machines.
	defaultEnvFile = "/etc/default/meshadv-setup"
	envFileVar     = "MESHADV_SETUP_ENV"
)

// Config holds the paths and names of everything the tool touches on the
// system, plus the variables available to message string templates. The
// defaults ship as an embedded YAML resource.
type Config struct {
	RepoDir          string `yaml:"repo_dir"`
	KeyDir           string `yaml:"key_dir"`
	OSVersion        string `yaml:"os_version"`
	RepoPrefix       string `yaml:"repo_prefix"`
	PackageName      string `yaml:"package_name"`
	DaemonBinary     string `yaml:"daemon_binary"`
	ConfigDir        string `yaml:"config_dir"`
	BootConfig       string `yaml:"boot_config"`
	AvahiServiceFile string `yaml:"avahi_service_file"`
	DevDir           string `yaml:"dev_dir"`
	DeviceTreeDir    string `yaml:"device_tree_dir"`

	DefaultTimeoutSec int `yaml:"default_timeout_sec"`
	AptTimeoutSec     int `yaml:"apt_timeout_sec"`
	CLITimeoutSec     int `yaml:"cli_timeout_sec"`

	Variables StringMap `yaml:"variables"`
}

// NewConfig parses the embedded config resource and applies any environment
// overrides from the optional env file.
func NewConfig() (*Config, error) {
	config := &Config{}
	err := yaml.Unmarshal([]byte(MustGetResource(configFilename)), config)
	if err != nil {
		log.Printf("Unable to parse config file %s\n", configFilename)
		return config, err
	}
	if config.Variables == nil {
		config.Variables = StringMap{}
	}
	loadEnvFile()
	config.applyEnvOverrides(os.Getenv)
	return config, nil
}

func loadEnvFile() {
	envFile := os.Getenv(envFileVar)
	if envFile == "" {
		envFile = defaultEnvFile
	}
	if _, err := os.Stat(envFile); err != nil {
		return
	}
	if err := godotenv.Load(envFile); err != nil {
		log.Printf("Unable to load env file %s: %s", envFile, err)
	}
}

// applyEnvOverrides replaces single config values from the environment. Only
// path- and name-like values can be overridden, not timeouts or variables.
func (c *Config) applyEnvOverrides(getenv func(string) string) {
	overrides := []struct {
		key   string
		field *string
	}{
		{"MESHADV_REPO_DIR", &c.RepoDir},
		{"MESHADV_KEY_DIR", &c.KeyDir},
		{"MESHADV_OS_VERSION", &c.OSVersion},
		{"MESHADV_DAEMON_BINARY", &c.DaemonBinary},
		{"MESHADV_CONFIG_DIR", &c.ConfigDir},
		{"MESHADV_BOOT_CONFIG", &c.BootConfig},
		{"MESHADV_AVAHI_SERVICE_FILE", &c.AvahiServiceFile},
		{"MESHADV_DEV_DIR", &c.DevDir},
		{"MESHADV_DEVICE_TREE_DIR", &c.DeviceTreeDir},
	}
	for _, override := range overrides {
		if value := getenv(override.key); value != "" {
			*override.field = value
		}
	}
}

func (c *Config) DefaultTimeout() time.Duration {
	return time.Duration(c.DefaultTimeoutSec) * time.Second
}
func (c *Config) AptTimeout() time.Duration { return time.Duration(c.AptTimeoutSec) * time.Second }
func (c *Config) CLITimeout() time.Duration { return time.Duration(c.CLITimeoutSec) * time.Second }
