package hatsetup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Report is a snapshot of the node's setup state, gathered without changing
// anything.
type Report struct {
	Model         string
	HATName       string
	DaemonPresent bool
	DaemonVersion string
	DaemonEnabled bool
	DaemonActive  bool
	SPIEnabled    bool
	SPIDevices    []string
	I2CEnabled    bool
	I2CDevices    []string
	UARTEnabled   bool
	HATConfigured bool
	ActiveConfigs []string
	ConfigFile    string
	CLIVersion    string
	Region        string
	AvahiEnabled  bool
}

// DaemonInstalled reports whether the daemon is on the system, through dpkg
// or otherwise.
func (r Report) DaemonInstalled() bool { return r.DaemonPresent || r.DaemonVersion != "" }

// CLIInstalled reports whether the meshtastic client is on the system.
func (r Report) CLIInstalled() bool { return r.CLIVersion != "" }

// Status collects a Report from the boot configuration, the device tree,
// /dev, dpkg and systemd.
type Status struct {
	sys      *System
	hw       *Hardware
	boot     *BootConfig
	services *Services
	configs  *HATConfigs
	cli      *MeshCLI
	avahi    *Avahi
}

func NewStatus(sys *System, hw *Hardware) *Status {
	services := NewServices(sys)
	return &Status{
		sys:      sys,
		hw:       hw,
		boot:     NewBootConfig(sys),
		services: services,
		configs:  NewHATConfigs(sys),
		cli:      NewMeshCLI(sys),
		avahi:    NewAvahi(sys, services),
	}
}

// Collect gathers the full report. Daemon queries are skipped when the CLI
// or the daemon is missing, the rest is always collected.
func (s *Status) Collect(ctx context.Context) Report {
	cfg := s.sys.cfg
	report := Report{
		Model:   s.hw.Model,
		HATName: s.hw.Describe(),
	}

	report.DaemonVersion = s.sys.InstalledVersion(ctx)
	report.DaemonPresent = report.DaemonVersion != "" || s.sys.DaemonPresent(ctx)
	if report.DaemonInstalled() {
		report.DaemonEnabled = s.services.Enabled(ctx, cfg.PackageName)
		report.DaemonActive = s.services.Active(ctx, cfg.PackageName)
	}

	content, err := s.boot.Read()
	if err != nil {
		content = ""
	}
	report.SPIDevices = devicesMatching(cfg.DevDir, "spidev*")
	report.SPIEnabled = len(report.SPIDevices) > 0 &&
		hasConfigLine(content, spiParam) && hasConfigLine(content, spiOverlay)
	report.I2CDevices = devicesMatching(cfg.DevDir, "i2c-*")
	report.I2CEnabled = len(report.I2CDevices) > 0 && hasConfigLine(content, i2cParam)
	report.UARTEnabled = hasConfigLine(content, uartParam)
	if s.hw.IsPi5() {
		report.UARTEnabled = report.UARTEnabled && hasConfigLine(content, uartOverlay)
	}
	if s.hw.IsMeshAdv() {
		report.HATConfigured = hasConfigLine(content, hatPowerLine) && hasConfigLine(content, hatPPSLine)
	}

	report.ActiveConfigs = s.configs.Active()
	report.ConfigFile = s.configs.PrimaryConfig()

	if version, err := s.cli.Version(ctx); err == nil {
		report.CLIVersion = version
	}
	if report.CLIInstalled() && report.DaemonActive {
		if region, err := s.cli.Region(ctx); err == nil {
			report.Region = region
		}
	}

	report.AvahiEnabled = s.avahi.Enabled(ctx)
	return report
}

// Summary renders the report as translated label/value lines for terminals.
func (s *Status) Summary(report Report, translator *Translator) string {
	yes := translator.Get("status_yes")
	no := translator.Get("status_no")
	onOff := func(v bool) string {
		if v {
			return yes
		}
		return no
	}
	orNone := func(v string) string {
		if v == "" {
			return translator.Get("status_none")
		}
		return v
	}

	var b strings.Builder
	line := func(key, value string) {
		fmt.Fprintf(&b, "%-24s %s\n", translator.Get(key)+":", value)
	}
	line("status_model", orNone(report.Model))
	line("status_hat", orNone(report.HATName))
	daemon := orNone(report.DaemonVersion)
	if report.DaemonVersion == "" && report.DaemonPresent {
		// Present but not dpkg-managed, so no version to show.
		daemon = yes
	}
	line("status_daemon", daemon)
	if report.DaemonInstalled() {
		line("status_daemon_enabled", onOff(report.DaemonEnabled))
		line("status_daemon_active", onOff(report.DaemonActive))
	}
	line("status_spi", onOff(report.SPIEnabled))
	if len(report.SPIDevices) > 0 {
		line("status_spi_devices", strings.Join(report.SPIDevices, ", "))
	}
	line("status_i2c", onOff(report.I2CEnabled))
	if len(report.I2CDevices) > 0 {
		line("status_i2c_devices", strings.Join(report.I2CDevices, ", "))
	}
	line("status_uart", onOff(report.UARTEnabled))
	line("status_hat_options", onOff(report.HATConfigured))
	line("status_active_configs", orNone(strings.Join(report.ActiveConfigs, ", ")))
	line("status_config_file", orNone(report.ConfigFile))
	line("status_cli", orNone(report.CLIVersion))
	line("status_region", orNone(report.Region))
	line("status_avahi", onOff(report.AvahiEnabled))
	return b.String()
}

// devicesMatching lists device nodes in dir matching the glob pattern, by
// base name.
func devicesMatching(dir, pattern string) []string {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil
	}
	var names []string
	for _, match := range matches {
		if info, err := os.Stat(match); err == nil && info.Mode()&os.ModeDir == 0 {
			names = append(names, filepath.Base(match))
		}
	}
	return names
}
