package hatsetup

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHATConfigs(t *testing.T, runner *fakeRunner) *HATConfigs {
	t.Helper()
	sys := testSystem(t, runner)
	configs := NewHATConfigs(sys)
	require.NoError(t, os.MkdirAll(configs.AvailableDir(), 0755))
	require.NoError(t, os.MkdirAll(configs.ActiveDir(), 0755))
	return configs
}

func writeConfig(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("Lora:\n  Module: sx1262\n"), 0644))
	return path
}

func TestPrimaryConfig(t *testing.T) {
	configs := testHATConfigs(t, newFakeRunner())
	assert.Empty(t, configs.PrimaryConfig())

	writeConfig(t, configs.dir, "config.yaml")
	assert.Equal(t, filepath.Join(configs.dir, "config.yaml"), configs.PrimaryConfig())
}

func TestAvailableListsFoldersFirstSorted(t *testing.T) {
	configs := testHATConfigs(t, newFakeRunner())
	writeConfig(t, configs.AvailableDir(), "zz-meshadv.yaml")
	writeConfig(t, configs.AvailableDir(), "aa-other.yml")
	writeConfig(t, configs.AvailableDir(), filepath.Join("vendor-boards", "board.yaml"))
	// Non-yaml files are skipped.
	require.NoError(t, os.WriteFile(filepath.Join(configs.AvailableDir(), "README.md"), []byte("x"), 0644))

	entries, err := configs.Available()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "vendor-boards", entries[0].Name)
	assert.True(t, entries[0].IsDir)
	assert.Equal(t, "aa-other.yml", entries[1].Name)
	assert.Equal(t, "zz-meshadv.yaml", entries[2].Name)
}

func TestMatchingByHATName(t *testing.T) {
	configs := testHATConfigs(t, newFakeRunner())
	writeConfig(t, configs.AvailableDir(), "meshadv-mini.yaml")
	writeConfig(t, configs.AvailableDir(), "waveshare-hat.yaml")

	matches, err := configs.Matching(&Hardware{HATProduct: "MeshAdv Mini"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "meshadv-mini.yaml", matches[0].Name)

	// Without a MeshAdv HAT, the product name still drives the match.
	matches, err = configs.Matching(&Hardware{HATProduct: "Waveshare LoRa"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "waveshare-hat.yaml", matches[0].Name)
}

func TestApplyFileCopiesIntoActiveDir(t *testing.T) {
	runner := newFakeRunner()
	configs := testHATConfigs(t, runner)
	path := writeConfig(t, configs.AvailableDir(), "meshadv-mini.yaml")

	files, err := configs.Apply(context.Background(), ConfigEntry{Name: "meshadv-mini.yaml", Path: path})
	require.NoError(t, err)
	assert.Nil(t, files)
	assert.True(t, runner.called("cp "+path+" "+filepath.Join(configs.ActiveDir(), "meshadv-mini.yaml")))
}

func TestApplyFolderWithSingleFile(t *testing.T) {
	runner := newFakeRunner()
	configs := testHATConfigs(t, runner)
	folder := filepath.Join(configs.AvailableDir(), "meshadv")
	writeConfig(t, folder, "meshadv-mini.yaml")

	_, err := configs.Apply(context.Background(), ConfigEntry{Name: "meshadv", Path: folder, IsDir: true})
	require.NoError(t, err)
	assert.True(t, runner.called("cp "+filepath.Join(folder, "meshadv-mini.yaml")))
}

func TestApplyAmbiguousFolderReturnsCandidates(t *testing.T) {
	configs := testHATConfigs(t, newFakeRunner())
	folder := filepath.Join(configs.AvailableDir(), "meshadv")
	writeConfig(t, folder, "meshadv.yaml")
	writeConfig(t, folder, "meshadv-mini.yaml")

	files, err := configs.Apply(context.Background(), ConfigEntry{Name: "meshadv", Path: folder, IsDir: true})
	assert.ErrorIs(t, err, ErrAmbiguousConfig)
	assert.Len(t, files, 2)
}

func TestApplyEmptyFolderFails(t *testing.T) {
	configs := testHATConfigs(t, newFakeRunner())
	folder := filepath.Join(configs.AvailableDir(), "empty")
	require.NoError(t, os.MkdirAll(folder, 0755))

	_, err := configs.Apply(context.Background(), ConfigEntry{Name: "empty", Path: folder, IsDir: true})
	assert.Error(t, err)
}

func TestActiveListsYamlNames(t *testing.T) {
	configs := testHATConfigs(t, newFakeRunner())
	writeConfig(t, configs.ActiveDir(), "meshadv-mini.yaml")
	assert.Equal(t, []string{"meshadv-mini.yaml"}, configs.Active())
}

func TestClearActiveRemovesEachFile(t *testing.T) {
	runner := newFakeRunner()
	configs := testHATConfigs(t, runner)
	writeConfig(t, configs.ActiveDir(), "meshadv-mini.yaml")

	require.NoError(t, configs.ClearActive(context.Background()))
	assert.True(t, runner.called("rm "+filepath.Join(configs.ActiveDir(), "meshadv-mini.yaml")))
}
