package hatsetup

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

const (
	avahiPackage         = "avahi-daemon"
	avahiServiceResource = "avahi/meshtastic.service"
)

// Avahi publishes the daemon's TCP API over mDNS so that phone clients can
// discover the node without knowing its address.
type Avahi struct {
	sys       *System
	services  *Services
	variables StringMap
}

func NewAvahi(sys *System, services *Services) *Avahi {
	return &Avahi{sys: sys, services: services, variables: sys.cfg.Variables}
}

// Enabled reports whether avahi-daemon is installed and the meshtastic
// service file is in place.
func (a *Avahi) Enabled(ctx context.Context) bool {
	if !a.sys.PackageInstalled(ctx, avahiPackage) {
		return false
	}
	_, err := os.Stat(a.sys.cfg.AvahiServiceFile)
	return err == nil
}

// EnableSteps are the stages of Enable, for progress displays.
var EnableSteps = []string{
	"install avahi-daemon",
	"write service file",
	"enable avahi-daemon",
	"start avahi-daemon",
}

// Enable installs avahi-daemon if needed, writes the service advertisement
// and makes sure the daemon runs now and on boot.
func (a *Avahi) Enable(ctx context.Context, task *Task) error {
	task.Advance()
	if !a.sys.PackageInstalled(ctx, avahiPackage) {
		updateCtx, cancel := context.WithTimeout(ctx, a.sys.cfg.AptTimeout())
		a.sys.Apt(updateCtx, "update")
		cancel()
		installCtx, cancel := context.WithTimeout(ctx, a.sys.cfg.AptTimeout())
		result, err := a.sys.Apt(installCtx, "install", "-y", avahiPackage)
		cancel()
		if err != nil {
			return err
		}
		if !result.OK() {
			return fmt.Errorf("installing %s failed", avahiPackage)
		}
		log.Printf("%s installed", avahiPackage)
	}

	task.Advance()
	serviceXML := ExpandVariables(MustGetResource(avahiServiceResource), a.variables)
	serviceDir := filepath.Dir(a.sys.cfg.AvahiServiceFile)
	if result, err := a.sys.Sudo(ctx, "mkdir", "-p", serviceDir); err != nil || !result.OK() {
		return fmt.Errorf("creating %s failed", serviceDir)
	}
	if err := a.sys.WriteRootFile(ctx, a.sys.cfg.AvahiServiceFile, serviceXML); err != nil {
		return err
	}

	task.Advance()
	if err := a.services.Enable(ctx, avahiPackage); err != nil {
		return err
	}
	task.Advance()
	if err := a.services.Start(ctx, avahiPackage); err != nil {
		return err
	}
	task.Advance()
	log.Printf("Avahi discovery enabled, clients can now find this node")
	return nil
}

// Disable stops and disables avahi-daemon and removes the advertisement.
func (a *Avahi) Disable(ctx context.Context) error {
	if err := a.services.Stop(ctx, avahiPackage); err != nil {
		log.Printf("avahi-daemon was not running")
	}
	if err := a.services.Disable(ctx, avahiPackage); err != nil {
		log.Printf("avahi-daemon was not enabled")
	}
	if _, err := os.Stat(a.sys.cfg.AvahiServiceFile); err == nil {
		result, err := a.sys.Sudo(ctx, "rm", a.sys.cfg.AvahiServiceFile)
		if err != nil {
			return err
		}
		if !result.OK() {
			return fmt.Errorf("removing %s failed", a.sys.cfg.AvahiServiceFile)
		}
	}
	log.Printf("Avahi discovery disabled")
	return nil
}
