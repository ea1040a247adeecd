package hatsetup

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
)

// Boot-config lines the daemon's hardware access depends on. The LoRa radio
// sits on SPI0 with a GPIO chip select, so the kernel's own CS must stay
// off.
const (
	spiParam    = "dtparam=spi=on"
	spiOverlay  = "dtoverlay=spi0-0cs"
	i2cParam    = "dtparam=i2c_arm=on"
	uartParam   = "enable_uart=1"
	uartOverlay = "dtoverlay=uart0"
	// MeshAdv boards gate the radio's power rail on GPIO 4 and feed the GPS
	// PPS pulse into GPIO 17.
	hatPowerLine = "gpio=4=op,dh"
	hatPPSLine   = "dtoverlay=pps-gpio,gpiopin=17"
)

// ErrNoHAT is returned when a HAT-specific operation runs without a
// supported HAT attached.
var ErrNoHAT = fmt.Errorf("no MeshAdv HAT detected")

// BootConfig edits the firmware boot configuration (config.txt) to enable
// the interfaces the HAT uses. All edits are idempotent line-ensures, with a
// timestamped backup taken before the first change.
type BootConfig struct {
	sys  *System
	path string
}

func NewBootConfig(sys *System) *BootConfig {
	return &BootConfig{sys: sys, path: sys.cfg.BootConfig}
}

// Read returns the current boot config contents. The file is world-readable
// on Raspberry Pi OS, so no elevation is needed.
func (b *BootConfig) Read() (string, error) {
	content, err := os.ReadFile(b.path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", b.path, err)
	}
	return string(content), nil
}

// EnableSPI switches the SPI bus on, both through raspi-config and by
// ensuring the config.txt lines are present. Returns whether a reboot is
// needed.
func (b *BootConfig) EnableSPI(ctx context.Context) (bool, error) {
	b.raspiConfig(ctx, "do_spi", "0")
	return b.ensure(ctx, "SPI", spiParam, spiOverlay)
}

// EnableI2C switches the I2C bus on for sensors and displays.
func (b *BootConfig) EnableI2C(ctx context.Context) (bool, error) {
	b.raspiConfig(ctx, "do_i2c", "0")
	return b.ensure(ctx, "I2C", i2cParam)
}

// EnableUART enables the serial port for the GPS module and frees it from
// the login console. Pi 5 boards additionally need the uart0 overlay.
func (b *BootConfig) EnableUART(ctx context.Context, hw *Hardware) (bool, error) {
	lines := []string{uartParam}
	if hw.IsPi5() {
		lines = append(lines, uartOverlay)
	}
	changed, err := b.ensure(ctx, "GPS/UART", lines...)
	if err != nil {
		return changed, err
	}
	// The login console would otherwise hold the UART the GPS needs.
	b.raspiConfig(ctx, "do_serial_cons", "1")
	return changed, nil
}

// ConfigureHAT writes the MeshAdv-specific radio power and PPS options.
func (b *BootConfig) ConfigureHAT(ctx context.Context, hw *Hardware) (bool, error) {
	if !hw.IsMeshAdv() {
		return false, ErrNoHAT
	}
	return b.ensure(ctx, "MeshAdv", hatPowerLine, hatPPSLine)
}

// ensure appends any of the given lines that are missing, under a named
// section comment, after backing the file up. It reports whether the file
// changed (i.e. whether a reboot is pending).
func (b *BootConfig) ensure(ctx context.Context, section string, lines ...string) (bool, error) {
	content, err := b.Read()
	if err != nil {
		return false, err
	}
	updated, changed := ensureLines(content, section, lines)
	if !changed {
		log.Printf("%s configuration already present in %s", section, b.path)
		return false, nil
	}
	backupPath, err := b.sys.BackupFile(ctx, b.path)
	if err != nil {
		return false, err
	}
	log.Printf("Backed up %s to %s", b.path, backupPath)
	if err := b.sys.WriteRootFile(ctx, b.path, updated); err != nil {
		return false, err
	}
	log.Printf("%s configuration written to %s, reboot required", section, b.path)
	return true, nil
}

// ensureLines returns content with all missing lines appended under a
// "# <section> configuration" comment, and whether anything was added.
func ensureLines(content, section string, lines []string) (string, bool) {
	missing := []string{}
	for _, line := range lines {
		if !hasConfigLine(content, line) {
			missing = append(missing, line)
		}
	}
	if len(missing) == 0 {
		return content, false
	}
	var builder strings.Builder
	builder.WriteString(content)
	if !strings.HasSuffix(content, "\n") && content != "" {
		builder.WriteString("\n")
	}
	builder.WriteString(fmt.Sprintf("\n# %s configuration\n", section))
	for _, line := range missing {
		builder.WriteString(line + "\n")
	}
	return builder.String(), true
}

// hasConfigLine looks for an exact, uncommented config.txt line.
func hasConfigLine(content, line string) bool {
	for _, existing := range strings.Split(content, "\n") {
		if strings.TrimSpace(existing) == line {
			return true
		}
	}
	return false
}

// raspiConfig drives raspi-config's non-interactive mode, best effort: older
// or non-Raspbian systems may not ship it, and the config.txt lines are what
// actually matters.
func (b *BootConfig) raspiConfig(ctx context.Context, setting, value string) {
	result, err := b.sys.Sudo(ctx, "raspi-config", "nonint", setting, value)
	if err != nil || !result.OK() {
		log.Printf("raspi-config nonint %s %s did not complete, continuing", setting, value)
	}
}
