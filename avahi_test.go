package hatsetup

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAvahi(t *testing.T, runner *fakeRunner) *Avahi {
	t.Helper()
	sys := testSystem(t, runner)
	avahi := NewAvahi(sys, NewServices(sys))
	avahi.variables = StringMap{"discoveryPort": "4403"}
	return avahi
}

func TestAvahiEnabledNeedsPackageAndServiceFile(t *testing.T) {
	runner := newFakeRunner().on("dpkg -l avahi-daemon", Result{Stdout: "ii  avahi-daemon"})
	avahi := testAvahi(t, runner)

	assert.False(t, avahi.Enabled(context.Background()))

	require.NoError(t, os.MkdirAll(filepath.Dir(avahi.sys.cfg.AvahiServiceFile), 0755))
	require.NoError(t, os.WriteFile(avahi.sys.cfg.AvahiServiceFile, []byte("<service-group/>"), 0644))
	assert.True(t, avahi.Enabled(context.Background()))
}

func TestAvahiDisableRemovesServiceFile(t *testing.T) {
	runner := newFakeRunner().on("dpkg -l avahi-daemon", Result{Stdout: "ii  avahi-daemon"})
	avahi := testAvahi(t, runner)
	require.NoError(t, os.MkdirAll(filepath.Dir(avahi.sys.cfg.AvahiServiceFile), 0755))
	require.NoError(t, os.WriteFile(avahi.sys.cfg.AvahiServiceFile, []byte("<service-group/>"), 0644))

	require.NoError(t, avahi.Disable(context.Background()))
	assert.True(t, runner.called("systemctl stop avahi-daemon"))
	assert.True(t, runner.called("systemctl disable avahi-daemon"))
	assert.True(t, runner.called("rm "+avahi.sys.cfg.AvahiServiceFile))
}

func TestAvahiEnableWritesServiceAndStartsDaemon(t *testing.T) {
	openBoxes()
	runner := newFakeRunner().on("dpkg -l avahi-daemon", Result{Stdout: "ii  avahi-daemon"})
	avahi := testAvahi(t, runner)

	task := NewTask(EnableSteps...)
	task.Start(func(tk *Task) error { return avahi.Enable(context.Background(), tk) })
	require.NoError(t, task.WaitForDone())

	// Package already installed, so no apt calls.
	assert.False(t, runner.called("env DEBIAN_FRONTEND=noninteractive apt"))
	assert.True(t, runner.called("mkdir -p "+filepath.Dir(avahi.sys.cfg.AvahiServiceFile)))
	assert.True(t, runner.called("systemctl enable avahi-daemon"))
	assert.True(t, runner.called("systemctl start avahi-daemon"))
	assert.Equal(t, 1.0, task.Progress())

	written := runner.inputs["tee "+avahi.sys.cfg.AvahiServiceFile]
	assert.Contains(t, written, "_meshtastic._tcp")
	assert.Contains(t, written, "<port>4403</port>")
}
