package hatsetup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
)

// ErrCLIUnavailable means the meshtastic command line client is not on the
// PATH, so no daemon queries can be made.
var ErrCLIUnavailable = errors.New("meshtastic CLI is not installed")

// ErrUnknownRegion means a region name or code is not one the daemon knows.
var ErrUnknownRegion = errors.New("unknown LoRa region")

const (
	meshCLI         = "meshtastic"
	maxTextLength   = 200
	regionSetting   = "lora.region"
	defaultMeshHost = "localhost"
)

// Regions maps the daemon's numeric LoRa region codes to their names, in
// code order. Index zero is the unset state.
var Regions = []string{
	"UNSET",
	"US",
	"EU_433",
	"EU_868",
	"CN",
	"JP",
	"ANZ",
	"KR",
	"TW",
	"RU",
	"IN",
	"NZ_865",
	"TH",
	"UA_433",
	"UA_868",
	"MY_433",
	"MY_919",
	"SG_923",
}

// RegionName returns the name for a numeric region code, or the code itself
// when it is out of range.
func RegionName(code int) string {
	if code >= 0 && code < len(Regions) {
		return Regions[code]
	}
	return strconv.Itoa(code)
}

// ParseRegion accepts a region name (case insensitive) or a numeric code and
// returns the canonical name.
func ParseRegion(value string) (string, error) {
	value = strings.TrimSpace(value)
	if code, err := strconv.Atoi(value); err == nil {
		if code >= 0 && code < len(Regions) {
			return Regions[code], nil
		}
		return "", fmt.Errorf("%w: %d", ErrUnknownRegion, code)
	}
	upper := strings.ToUpper(value)
	for _, name := range Regions {
		if name == upper {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRegion, value)
}

// MeshCLI wraps the meshtastic Python client, which talks to the daemon's
// TCP API on localhost.
type MeshCLI struct {
	sys  *System
	host string
}

func NewMeshCLI(sys *System) *MeshCLI {
	return &MeshCLI{sys: sys, host: defaultMeshHost}
}

// Installed reports whether the meshtastic client can be run. A pipx install
// may not be on the PATH yet, so pipx's own registry counts too.
func (m *MeshCLI) Installed(ctx context.Context) bool {
	if m.sys.Which(ctx, meshCLI) {
		return true
	}
	result, err := m.sys.Run(ctx, "pipx", "list", "--short")
	return err == nil && result.OK() && strings.Contains(result.Stdout, meshCLI)
}

// Version returns the client's own version string.
func (m *MeshCLI) Version(ctx context.Context) (string, error) {
	if !m.Installed(ctx) {
		return "", ErrCLIUnavailable
	}
	result, err := m.sys.Run(ctx, meshCLI, "--version")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Stdout), nil
}

// Region asks the daemon for its current LoRa region and returns the region
// name.
func (m *MeshCLI) Region(ctx context.Context) (string, error) {
	if !m.Installed(ctx) {
		return "", ErrCLIUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, m.sys.cfg.CLITimeout())
	defer cancel()
	result, err := m.sys.Run(ctx, meshCLI, "--host", m.host, "--get", regionSetting)
	if err != nil {
		return "", err
	}
	if !result.OK() {
		return "", fmt.Errorf("querying %s failed: %s", regionSetting, strings.TrimSpace(result.Stderr))
	}
	region, ok := parseRegionOutput(result.Stdout)
	if !ok {
		return "", fmt.Errorf("no region in daemon response")
	}
	return region, nil
}

// SetRegion validates the region and writes it into the daemon's
// configuration. The daemon restarts itself after the change.
func (m *MeshCLI) SetRegion(ctx context.Context, region string) error {
	name, err := ParseRegion(region)
	if err != nil {
		return err
	}
	if !m.Installed(ctx) {
		return ErrCLIUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, m.sys.cfg.CLITimeout())
	defer cancel()
	result, err := m.sys.Run(ctx, meshCLI, "--host", m.host, "--set", regionSetting, name)
	if err != nil {
		return err
	}
	if !result.OK() {
		return fmt.Errorf("setting %s failed: %s", regionSetting, strings.TrimSpace(result.Stderr))
	}
	log.Printf("LoRa region set to %s", name)
	return nil
}

// SendText broadcasts a text message over the mesh. Messages must be between
// 1 and 200 characters.
func (m *MeshCLI) SendText(ctx context.Context, text string) error {
	if len(text) == 0 {
		return errors.New("message is empty")
	}
	if len(text) > maxTextLength {
		return fmt.Errorf("message is %d characters, the limit is %d", len(text), maxTextLength)
	}
	if !m.Installed(ctx) {
		return ErrCLIUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, m.sys.cfg.CLITimeout())
	defer cancel()
	result, err := m.sys.Run(ctx, meshCLI, "--host", m.host, "--sendtext", text)
	if err != nil {
		return err
	}
	if !result.OK() {
		return fmt.Errorf("sending message failed: %s", strings.TrimSpace(result.Stderr))
	}
	log.Printf("broadcast %d character message", len(text))
	return nil
}

// CLIInstallSteps are the stages of Install, for progress displays.
var CLIInstallSteps = []string{
	"install python3-full",
	"install pytap2",
	"install pipx",
	"install meshtastic CLI",
	"register pipx path",
	"verify installation",
}

// Install sets up the meshtastic client via pipx. The pytap2 step is best
// effort, the package is only needed for TAP networking.
func (m *MeshCLI) Install(ctx context.Context, task *Task) error {
	task.Advance()
	if err := m.aptInstall(ctx, "python3-full"); err != nil {
		return err
	}

	task.Advance()
	if result, err := m.sys.Run(ctx, "pip3", "install", "--upgrade", "pytap2"); err != nil || !result.OK() {
		log.Printf("pytap2 install skipped: %s", strings.TrimSpace(result.Stderr))
	}

	task.Advance()
	if err := m.aptInstall(ctx, "pipx"); err != nil {
		return err
	}

	task.Advance()
	result, err := m.sys.Run(ctx, "pipx", "install", "meshtastic[cli]")
	if err != nil {
		return err
	}
	if !result.OK() && !strings.Contains(result.Stderr, "already installed") {
		return fmt.Errorf("pipx install failed: %s", strings.TrimSpace(result.Stderr))
	}

	task.Advance()
	if result, err := m.sys.Run(ctx, "pipx", "ensurepath"); err != nil || !result.OK() {
		log.Printf("pipx ensurepath failed, PATH may need a manual update")
	}

	task.Advance()
	if !m.Installed(ctx) {
		log.Printf("meshtastic CLI installed but not yet on PATH, a new login shell will pick it up")
	}
	task.Advance()
	return nil
}

func (m *MeshCLI) aptInstall(ctx context.Context, pkg string) error {
	if m.sys.PackageInstalled(ctx, pkg) {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, m.sys.cfg.AptTimeout())
	defer cancel()
	result, err := m.sys.Apt(ctx, "install", "-y", pkg)
	if err != nil {
		return err
	}
	if !result.OK() {
		return fmt.Errorf("installing %s failed", pkg)
	}
	return nil
}

// parseRegionOutput extracts the region from the client's --get output. The
// client prints connection chatter before the value, and depending on the
// version prints "lora.region: <value>", a bare region name, or a bare
// numeric code.
func parseRegionOutput(output string) (string, bool) {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if value, found := strings.CutPrefix(line, regionSetting+":"); found {
			region := strings.Trim(strings.TrimSpace(value), `"'`)
			if region == "" {
				continue
			}
			if code, err := strconv.Atoi(region); err == nil {
				return RegionName(code), true
			}
			if name, err := ParseRegion(region); err == nil {
				return name, true
			}
			return region, true
		}
		// Bare value lines. Only exact region names count, so the chatter
		// lines around the value fall through.
		if code, err := strconv.Atoi(line); err == nil {
			if code >= 0 && code < len(Regions) {
				return Regions[code], true
			}
			continue
		}
		for _, name := range Regions {
			if line == name {
				return name, true
			}
		}
	}
	return "", false
}
