package hatsetup

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var yamlFilePattern = regexp.MustCompile(`\.ya?ml$`)

const (
	availableDirName = "available.d"
	activeDirName    = "config.d"
	// Embedded defaults that can seed an empty available.d.
	seedConfigDir = "configs"
)

// ConfigEntry is one selectable daemon configuration: either a single yaml
// file or a folder of them.
type ConfigEntry struct {
	Name  string
	Path  string
	IsDir bool
}

// ErrAmbiguousConfig is returned by Apply when a folder entry contains more
// than one yaml file and the caller has to pick one.
var ErrAmbiguousConfig = fmt.Errorf("config folder holds multiple yaml files")

// HATConfigs manages the daemon's available.d/config.d directories: the
// available configurations shipped for various HATs, and the one(s)
// currently active.
type HATConfigs struct {
	sys *System
	dir string
}

func NewHATConfigs(sys *System) *HATConfigs {
	return &HATConfigs{sys: sys, dir: sys.cfg.ConfigDir}
}

func (h *HATConfigs) AvailableDir() string { return filepath.Join(h.dir, availableDirName) }
func (h *HATConfigs) ActiveDir() string    { return filepath.Join(h.dir, activeDirName) }

// RemoveAll deletes the daemon's whole configuration directory. Offered
// during install when leftovers from an earlier installation are found.
func (h *HATConfigs) RemoveAll(ctx context.Context) error {
	result, err := h.sys.Sudo(ctx, "rm", "-r", h.dir)
	if err != nil {
		return err
	}
	if !result.OK() {
		return fmt.Errorf("removing %s: %s", h.dir, strings.TrimSpace(result.Stderr))
	}
	log.Printf("Removed configuration directory %s", h.dir)
	return nil
}

// PrimaryConfig returns the daemon's main configuration file, or "" when the
// daemon has not been installed yet.
func (h *HATConfigs) PrimaryConfig() string {
	for _, name := range []string{"config.yaml", "config.json"} {
		path := filepath.Join(h.dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// EnsureDirs creates the available.d and config.d directories if missing.
func (h *HATConfigs) EnsureDirs(ctx context.Context) error {
	for _, dir := range []string{h.AvailableDir(), h.ActiveDir()} {
		result, err := h.sys.Sudo(ctx, "mkdir", "-p", dir)
		if err != nil {
			return err
		}
		if !result.OK() {
			return fmt.Errorf("creating %s: %s", dir, strings.TrimSpace(result.Stderr))
		}
	}
	return nil
}

// Available lists the yaml files and folders under available.d, folders
// first, each group sorted by name.
func (h *HATConfigs) Available() ([]ConfigEntry, error) {
	return listEntries(h.AvailableDir())
}

// ListDir lists the selectable entries of any folder below available.d, for
// browsing into folder entries.
func (h *HATConfigs) ListDir(dir string) ([]ConfigEntry, error) {
	return listEntries(dir)
}

func listEntries(dir string) ([]ConfigEntry, error) {
	items, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	folders := []ConfigEntry{}
	files := []ConfigEntry{}
	for _, item := range items {
		entry := ConfigEntry{
			Name:  item.Name(),
			Path:  filepath.Join(dir, item.Name()),
			IsDir: item.IsDir(),
		}
		if item.IsDir() {
			folders = append(folders, entry)
		} else if isYAML(item.Name()) {
			files = append(files, entry)
		}
	}
	sortEntries(folders)
	sortEntries(files)
	return append(folders, files...), nil
}

func sortEntries(entries []ConfigEntry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
}

func isYAML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// Active returns the names of the yaml files currently in config.d.
func (h *HATConfigs) Active() []string {
	entries, err := listEntries(h.ActiveDir())
	if err != nil {
		return nil
	}
	names := []string{}
	for _, entry := range entries {
		if !entry.IsDir {
			names = append(names, entry.Name)
		}
	}
	return names
}

// Matching filters the available entries down to those whose names mention
// the detected HAT's product or vendor (or the MeshAdv family name).
func (h *HATConfigs) Matching(hw *Hardware) ([]ConfigEntry, error) {
	available, err := h.Available()
	if err != nil {
		return nil, err
	}
	needles := []string{"meshadv"}
	if hw.HATProduct != "" {
		needles = append(needles, strings.ToLower(hw.HATProduct))
	}
	if hw.HATVendor != "" {
		needles = append(needles, strings.ToLower(hw.HATVendor))
	}
	matching := []ConfigEntry{}
	for _, entry := range available {
		name := strings.ToLower(entry.Name)
		for _, needle := range needles {
			if strings.Contains(name, needle) {
				matching = append(matching, entry)
				break
			}
		}
	}
	return matching, nil
}

// ClearActive removes every yaml file from config.d.
func (h *HATConfigs) ClearActive(ctx context.Context) error {
	for _, name := range h.Active() {
		path := filepath.Join(h.ActiveDir(), name)
		result, err := h.sys.Sudo(ctx, "rm", path)
		if err != nil {
			return err
		}
		if !result.OK() {
			return fmt.Errorf("removing %s: %s", path, strings.TrimSpace(result.Stderr))
		}
		log.Printf("Removed active config %s", name)
	}
	return nil
}

// Apply copies a configuration into config.d. For a folder entry holding
// exactly one yaml file, that file is applied; with several, the caller gets
// ErrAmbiguousConfig along with the candidates and must pick a file entry.
func (h *HATConfigs) Apply(ctx context.Context, entry ConfigEntry) ([]ConfigEntry, error) {
	if entry.IsDir {
		files, err := h.yamlFilesIn(entry.Path)
		if err != nil {
			return nil, err
		}
		switch len(files) {
		case 0:
			return nil, fmt.Errorf("no yaml config files in folder %s", entry.Name)
		case 1:
			entry = files[0]
		default:
			return files, ErrAmbiguousConfig
		}
	}
	dst := filepath.Join(h.ActiveDir(), entry.Name)
	result, err := h.sys.Sudo(ctx, "cp", entry.Path, dst)
	if err != nil {
		return nil, err
	}
	if !result.OK() {
		return nil, fmt.Errorf("copying %s to config.d: %s", entry.Name, strings.TrimSpace(result.Stderr))
	}
	log.Printf("Applied config %s, restart %s for it to take effect", entry.Name, h.sys.cfg.PackageName)
	return nil, nil
}

func (h *HATConfigs) yamlFilesIn(dir string) ([]ConfigEntry, error) {
	entries, err := listEntries(dir)
	if err != nil {
		return nil, err
	}
	files := []ConfigEntry{}
	for _, entry := range entries {
		if !entry.IsDir {
			files = append(files, entry)
		}
	}
	return files, nil
}

// Seed writes the embedded MeshAdv configuration files into available.d, so
// a fresh system has something to pick from even before the package ships
// its own.
func (h *HATConfigs) Seed(ctx context.Context) error {
	if err := h.EnsureDirs(ctx); err != nil {
		return err
	}
	seeds, err := GetResourceFiltered(seedConfigDir, yamlFilePattern)
	if err != nil {
		return err
	}
	for path, content := range seeds {
		dst := filepath.Join(h.AvailableDir(), filepath.Base(path))
		if _, err := os.Stat(dst); err == nil {
			continue
		}
		if err := h.sys.WriteRootFile(ctx, dst, content); err != nil {
			return err
		}
		log.Printf("Seeded %s into %s", filepath.Base(path), h.AvailableDir())
	}
	return nil
}
