//go:build linux

package hatsetup

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"

	"golang.org/x/sys/unix"
)

const (
	desktopFileUserDir   = ".local/share/applications"
	desktopFileSystemDir = "/usr/share/applications"
	desktopFilename      = "meshadv-setup.desktop"
	desktopFileTemplate  = `[Desktop Entry]
Name={{.product}}
Type=Application
Exec={{.executable}} gui
Comment={{.tagline}}
Categories=System;Settings;HardwareSettings;
Terminal=false
`
)

func osFileWriteAccess(path string) bool {
	return unix.Access(path, unix.W_OK) == nil
}

func osDiskSpace(path string) int64 {
	fs := unix.Statfs_t{}
	if err := unix.Statfs(path, &fs); err != nil {
		return -1
	}
	return int64(fs.Bavail) * fs.Bsize
}

// osCreateLauncherEntry writes a desktop entry for the GUI, system wide when
// running as root, otherwise into the user's application directory.
func osCreateLauncherEntry(variables ...StringMap) (string, error) {
	executable, err := os.Executable()
	if err != nil {
		executable = os.Args[0]
	}
	merged := MergeVariables(append(variables, StringMap{"executable": executable})...)
	content := ExpandVariables(desktopFileTemplate, merged)
	usr, err := user.Current()
	if err != nil {
		return "", err
	}
	var desktopFilepath string
	if usr.Uid == "0" {
		if !osFileWriteAccess(desktopFileSystemDir) {
			return "", fmt.Errorf("no write access to %s", desktopFileSystemDir)
		}
		desktopFilepath = filepath.Join(desktopFileSystemDir, desktopFilename)
	} else {
		desktopFilepath = filepath.Join(usr.HomeDir, desktopFileUserDir, desktopFilename)
		if err := os.MkdirAll(filepath.Dir(desktopFilepath), 0755); err != nil {
			return "", err
		}
	}
	return desktopFilepath, os.WriteFile(desktopFilepath, []byte(content), 0755)
}
