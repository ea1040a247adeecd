package hatsetup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestApplyEnvOverrides(t *testing.T) {
	config := &Config{
		RepoDir:    "/etc/apt/sources.list.d",
		KeyDir:     "/etc/apt/trusted.gpg.d",
		OSVersion:  "Raspbian_12",
		ConfigDir:  "/etc/meshtasticd",
		BootConfig: "/boot/firmware/config.txt",
	}
	env := map[string]string{
		"MESHADV_REPO_DIR":    "/tmp/sources",
		"MESHADV_BOOT_CONFIG": "/tmp/config.txt",
	}
	config.applyEnvOverrides(func(key string) string { return env[key] })

	assert.Equal(t, "/tmp/sources", config.RepoDir)
	assert.Equal(t, "/tmp/config.txt", config.BootConfig)
	// Everything without an override keeps its configured value.
	assert.Equal(t, "/etc/apt/trusted.gpg.d", config.KeyDir)
	assert.Equal(t, "Raspbian_12", config.OSVersion)
	assert.Equal(t, "/etc/meshtasticd", config.ConfigDir)
}

func TestApplyEnvOverridesIgnoresEmpty(t *testing.T) {
	config := &Config{RepoDir: "/etc/apt/sources.list.d"}
	config.applyEnvOverrides(func(string) string { return "" })
	assert.Equal(t, "/etc/apt/sources.list.d", config.RepoDir)
}

func TestTimeoutDurations(t *testing.T) {
	config := &Config{DefaultTimeoutSec: 300, AptTimeoutSec: 600, CLITimeoutSec: 30}
	assert.Equal(t, 5*time.Minute, config.DefaultTimeout())
	assert.Equal(t, 10*time.Minute, config.AptTimeout())
	assert.Equal(t, 30*time.Second, config.CLITimeout())
}
