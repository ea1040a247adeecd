package hatsetup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDeviceTree(t *testing.T, dir, vendor, product string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "hat"), 0755))
	// Device-tree properties are NUL-terminated.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hat", "vendor"), []byte(vendor+"\x00"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hat", "product"), []byte(product+"\x00"), 0644))
}

func TestDetectHardwareReadsHATIdentity(t *testing.T) {
	dir := t.TempDir()
	writeDeviceTree(t, dir, "Frequency Labs", "MeshAdv Mini")
	hw := detectHardware(dir, func() string { return "Raspberry Pi 4 Model B Rev 1.4" })

	assert.Equal(t, "Raspberry Pi 4 Model B Rev 1.4", hw.Model)
	assert.Equal(t, "Frequency Labs", hw.HATVendor)
	assert.Equal(t, "MeshAdv Mini", hw.HATProduct)
	assert.True(t, hw.HasHAT())
	assert.True(t, hw.IsMeshAdv())
	assert.False(t, hw.IsPi5())
	assert.Equal(t, "Raspberry Pi 4 Model B Rev 1.4 with Frequency Labs MeshAdv Mini", hw.Describe())
}

func TestDetectHardwareWithoutHAT(t *testing.T) {
	hw := detectHardware(t.TempDir(), func() string { return "Raspberry Pi 5 Model B Rev 1.0" })
	assert.False(t, hw.HasHAT())
	assert.False(t, hw.IsMeshAdv())
	assert.True(t, hw.IsPi5())
	assert.Equal(t, "Raspberry Pi 5 Model B Rev 1.0", hw.Describe())
}

func TestDetectHardwareUnknownModel(t *testing.T) {
	hw := detectHardware(t.TempDir(), func() string { return "<unknown>" })
	assert.Equal(t, "", hw.Model)
	assert.Equal(t, "unknown board", hw.Describe())
}

func TestIsMeshAdvMatchesCaseInsensitively(t *testing.T) {
	hw := &Hardware{HATProduct: "MESHADV Pi Hat"}
	assert.True(t, hw.IsMeshAdv())
	hw = &Hardware{HATProduct: "Some Other HAT"}
	assert.False(t, hw.IsMeshAdv())
}
