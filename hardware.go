package hatsetup

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"periph.io/x/host/v3/distro"
)

// Hardware describes the detected Raspberry Pi board and any HAT attached to
// it, as reported by the device tree.
type Hardware struct {
	Model      string
	HATVendor  string
	HATProduct string
}

// DetectHardware reads the board model and HAT identity from the device
// tree. Fields stay empty for anything that cannot be determined; detection
// problems are not fatal, only reduce what the tool can do automatically.
func DetectHardware(cfg *Config) *Hardware {
	return detectHardware(cfg.DeviceTreeDir, distro.DTModel)
}

func detectHardware(deviceTreeDir string, model func() string) *Hardware {
	hw := &Hardware{Model: strings.TrimSpace(model())}
	if hw.Model == "<unknown>" {
		hw.Model = ""
	}
	hw.HATVendor = readDTString(filepath.Join(deviceTreeDir, "hat", "vendor"))
	hw.HATProduct = readDTString(filepath.Join(deviceTreeDir, "hat", "product"))
	return hw
}

// readDTString reads a device-tree property file, which is NUL-terminated.
func readDTString(path string) string {
	content, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(strings.ReplaceAll(string(content), "\x00", ""))
}

// IsPi5 reports whether the board is a Raspberry Pi 5, which needs an extra
// uart0 overlay for the GPS serial port.
func (h *Hardware) IsPi5() bool {
	return strings.Contains(h.Model, "Raspberry Pi 5")
}

// HasHAT reports whether a HAT with a readable EEPROM is attached.
func (h *Hardware) HasHAT() bool {
	return h.HATVendor != "" || h.HATProduct != ""
}

// IsMeshAdv reports whether the attached HAT is one of the MeshAdv boards,
// which the HAT-specific boot options are written for.
func (h *Hardware) IsMeshAdv() bool {
	return strings.Contains(strings.ToLower(h.HATProduct), "meshadv")
}

// Describe returns a short human-readable summary for logs and headers.
func (h *Hardware) Describe() string {
	model := h.Model
	if model == "" {
		model = "unknown board"
	}
	if !h.HasHAT() {
		return model
	}
	return model + " with " + strings.TrimSpace(h.HATVendor+" "+h.HATProduct)
}

// InstalledVersion returns the installed version of the daemon package, or
// an empty string when it isn't installed.
func (s *System) InstalledVersion(ctx context.Context) string {
	result, err := s.Run(ctx, "dpkg-query", "-W", "-f=${Version}", s.cfg.PackageName)
	if err != nil || !result.OK() {
		return ""
	}
	return strings.TrimSpace(result.Stdout)
}

// DaemonPresent reports whether the daemon exists on the system at all. A
// build installed outside of dpkg still counts, through its usual binary
// path or a PATH lookup.
func (s *System) DaemonPresent(ctx context.Context) bool {
	if s.PackageInstalled(ctx, s.cfg.PackageName) {
		return true
	}
	if _, err := os.Stat(s.cfg.DaemonBinary); err == nil {
		return true
	}
	return s.Which(ctx, s.cfg.PackageName)
}
