package hatsetup

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Channel is a meshtasticd release channel. The three values map directly to
// the upstream package repositories.
type Channel string

const (
	ChannelBeta  Channel = "beta"
	ChannelAlpha Channel = "alpha"
	ChannelDaily Channel = "daily"
)

// Channels lists all release channels, most stable first.
var Channels = []Channel{ChannelBeta, ChannelAlpha, ChannelDaily}

// ErrUnknownChannel is returned for channel names outside the fixed set.
var ErrUnknownChannel = fmt.Errorf("unknown release channel")

// ParseChannel validates a channel name.
func ParseChannel(name string) (Channel, error) {
	for _, channel := range Channels {
		if string(channel) == strings.ToLower(strings.TrimSpace(name)) {
			return channel, nil
		}
	}
	return "", fmt.Errorf("%w: %q (want beta, alpha or daily)", ErrUnknownChannel, name)
}

// RepoURL returns the package repository URL for this channel on the given
// OS version.
func (c Channel) RepoURL(osVersion string) string {
	return fmt.Sprintf(
		"http://download.opensuse.org/repositories/network:/Meshtastic:/%s/%s/",
		c, osVersion,
	)
}

// Repo registers and removes the meshtasticd package repository, and
// installs or purges the package itself.
type Repo struct {
	sys      *System
	services *Services
	client   *http.Client
}

func NewRepo(sys *System, services *Services) *Repo {
	return &Repo{
		sys:      sys,
		services: services,
		client:   &http.Client{Timeout: 1 * time.Minute},
	}
}

// listFile is the apt sources entry path for a channel.
func (r *Repo) listFile(channel Channel) string {
	return filepath.Join(r.sys.cfg.RepoDir, fmt.Sprintf("%s:%s.list", r.sys.cfg.RepoPrefix, channel))
}

// keyFile is the dearmored signing key path for a channel.
func (r *Repo) keyFile(channel Channel) string {
	return filepath.Join(r.sys.cfg.KeyDir, fmt.Sprintf("network_Meshtastic_%s.gpg", channel))
}

// Existing returns any repository list and key files left by earlier
// installations, regardless of channel.
func (r *Repo) Existing() []string {
	lists, _ := filepath.Glob(filepath.Join(r.sys.cfg.RepoDir, r.sys.cfg.RepoPrefix+":*.list"))
	keys, _ := filepath.Glob(filepath.Join(r.sys.cfg.KeyDir, "network_Meshtastic_*.gpg"))
	return append(lists, keys...)
}

// Purge removes all repository list and key files of every channel.
func (r *Repo) Purge(ctx context.Context) error {
	for _, path := range r.Existing() {
		result, err := r.sys.Sudo(ctx, "rm", path)
		if err != nil {
			return err
		}
		if !result.OK() {
			return fmt.Errorf("removing %s: %s", path, strings.TrimSpace(result.Stderr))
		}
		log.Printf("Removed repository file %s", filepath.Base(path))
	}
	return nil
}

// InstallSteps are the stages of a full Install, for progress displays.
var InstallSteps = []string{
	"register repository",
	"fetch signing key",
	"install signing key",
	"update package database",
	"install package",
}

// Install registers the repository of the chosen channel and installs the
// daemon package. Progress is reported through the task, which must have
// been built from InstallSteps.
func (r *Repo) Install(ctx context.Context, channel Channel, task *Task) error {
	repoURL := channel.RepoURL(r.sys.cfg.OSVersion)
	log.Printf("Installing %s from the %s channel", r.sys.cfg.PackageName, channel)

	task.Advance()
	entry := fmt.Sprintf("deb %s /\n", repoURL)
	if err := r.sys.WriteRootFile(ctx, r.listFile(channel), entry); err != nil {
		return fmt.Errorf("registering repository: %w", err)
	}

	task.Advance()
	armoredKey, err := r.fetchKey(ctx, repoURL+"Release.key")
	if err != nil {
		return err
	}

	task.Advance()
	if err := r.installKey(ctx, armoredKey, r.keyFile(channel)); err != nil {
		return err
	}

	task.Advance()
	updateCtx, cancel := context.WithTimeout(ctx, r.sys.cfg.AptTimeout())
	result, err := r.sys.Apt(updateCtx, "update")
	cancel()
	if err != nil || !result.OK() {
		// Unrelated repositories failing to refresh should not block the
		// install; apt will still see the new one.
		log.Printf("apt update did not complete cleanly, continuing")
	}

	task.Advance()
	installCtx, cancel := context.WithTimeout(ctx, r.sys.cfg.AptTimeout())
	defer cancel()
	result, err = r.sys.Apt(installCtx,
		"install", "-y",
		"-o", "Dpkg::Options::=--force-confdef",
		"-o", "Dpkg::Options::=--force-confold",
		r.sys.cfg.PackageName,
	)
	if err != nil {
		return err
	}
	if !result.OK() {
		return fmt.Errorf("installing %s: %s", r.sys.cfg.PackageName, strings.TrimSpace(result.Stderr))
	}
	task.Advance()
	log.Printf("%s (%s channel) installed", r.sys.cfg.PackageName, channel)
	return nil
}

// fetchKey downloads the armored repository signing key.
func (r *Repo) fetchKey(ctx context.Context, url string) (string, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	response, err := r.client.Do(request)
	if err != nil {
		return "", fmt.Errorf("fetching signing key: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching signing key: %s returned %s", url, response.Status)
	}
	key, err := io.ReadAll(response.Body)
	if err != nil {
		return "", fmt.Errorf("fetching signing key: %w", err)
	}
	return string(key), nil
}

// installKey dearmors the key and moves it into the trusted-key directory
// with the permissions apt expects.
func (r *Repo) installKey(ctx context.Context, armoredKey, dst string) error {
	dearmored, err := r.sys.RunInput(ctx, armoredKey, "gpg", "--dearmor")
	if err != nil {
		return err
	}
	if !dearmored.OK() {
		return fmt.Errorf("dearmoring signing key: %s", strings.TrimSpace(dearmored.Stderr))
	}
	tmpFile, err := os.CreateTemp("", "meshadv-key-*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)
	if _, err := tmpFile.WriteString(dearmored.Stdout); err != nil {
		tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	if result, err := r.sys.Sudo(ctx, "mv", tmpPath, dst); err != nil || !result.OK() {
		return fmt.Errorf("installing signing key to %s failed", dst)
	}
	if result, err := r.sys.Sudo(ctx, "chmod", "644", dst); err != nil || !result.OK() {
		return fmt.Errorf("setting permissions on %s failed", dst)
	}
	return nil
}

// RemoveSteps are the stages of a full Remove, for progress displays.
var RemoveSteps = []string{
	"stop service",
	"disable service",
	"remove package",
	"clean up repository files",
}

// Remove stops and disables the daemon, purges the package and cleans up
// every channel's repository files.
func (r *Repo) Remove(ctx context.Context, task *Task) error {
	task.Advance()
	if err := r.services.Stop(ctx, r.sys.cfg.PackageName); err != nil {
		log.Printf("Service was not running or already stopped")
	}
	task.Advance()
	if err := r.services.Disable(ctx, r.sys.cfg.PackageName); err != nil {
		log.Printf("Service was not enabled or already disabled")
	}

	task.Advance()
	removeCtx, cancel := context.WithTimeout(ctx, r.sys.cfg.AptTimeout())
	defer cancel()
	result, err := r.sys.Apt(removeCtx, "remove", "--purge", "-y", r.sys.cfg.PackageName)
	if err != nil {
		return err
	}
	if !result.OK() {
		return fmt.Errorf("removing %s: %s", r.sys.cfg.PackageName, strings.TrimSpace(result.Stderr))
	}

	task.Advance()
	if err := r.Purge(ctx); err != nil {
		log.Printf("Repository cleanup had issues: %s", err)
	}
	task.Advance()
	log.Printf("%s removed", r.sys.cfg.PackageName)
	return nil
}
