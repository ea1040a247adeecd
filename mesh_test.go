package hatsetup

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRegion(t *testing.T) {
	region, err := ParseRegion("eu_868")
	require.NoError(t, err)
	assert.Equal(t, "EU_868", region)

	region, err = ParseRegion("1")
	require.NoError(t, err)
	assert.Equal(t, "US", region)

	region, err = ParseRegion("0")
	require.NoError(t, err)
	assert.Equal(t, "UNSET", region)

	_, err = ParseRegion("MOON")
	assert.ErrorIs(t, err, ErrUnknownRegion)
	_, err = ParseRegion("99")
	assert.ErrorIs(t, err, ErrUnknownRegion)
}

func TestRegionName(t *testing.T) {
	assert.Equal(t, "UNSET", RegionName(0))
	assert.Equal(t, "SG_923", RegionName(17))
	assert.Equal(t, "42", RegionName(42))
}

func TestParseRegionOutput(t *testing.T) {
	cases := []struct {
		name   string
		output string
		want   string
		ok     bool
	}{
		{
			name:   "named value with chatter",
			output: "Connected to radio\nRequesting current config\nlora.region: US\n",
			want:   "US",
			ok:     true,
		},
		{
			name:   "numeric value",
			output: "Connected to radio\nlora.region: 3\n",
			want:   "EU_868",
			ok:     true,
		},
		{
			name:   "quoted value",
			output: "lora.region: 'EU_433'\n",
			want:   "EU_433",
			ok:     true,
		},
		{
			name:   "bare name with chatter",
			output: "Connected to radio\nRequesting current config\nUS\n",
			want:   "US",
			ok:     true,
		},
		{
			name:   "bare numeric code",
			output: "Connected to radio\n3\n",
			want:   "EU_868",
			ok:     true,
		},
		{
			name:   "bare code out of range",
			output: "Connected to radio\n99\n",
			ok:     false,
		},
		{
			name:   "no region line",
			output: "Connected to radio\nError: timed out\n",
			ok:     false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			region, ok := parseRegionOutput(tc.output)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, region)
		})
	}
}

func TestSendTextValidatesLength(t *testing.T) {
	runner := newFakeRunner()
	cli := NewMeshCLI(testSystem(t, runner))

	assert.Error(t, cli.SendText(context.Background(), ""))
	assert.Error(t, cli.SendText(context.Background(), strings.Repeat("x", 201)))
	// Nothing gets run for invalid messages.
	assert.Empty(t, runner.calls)

	require.NoError(t, cli.SendText(context.Background(), strings.Repeat("x", 200)))
	assert.True(t, runner.called("meshtastic --host localhost --sendtext"))
}

func TestSendTextRequiresCLI(t *testing.T) {
	runner := newFakeRunner().
		on("which meshtastic", Result{ExitCode: 1}).
		on("pipx list", Result{ExitCode: 1})
	cli := NewMeshCLI(testSystem(t, runner))
	assert.ErrorIs(t, cli.SendText(context.Background(), "hello mesh"), ErrCLIUnavailable)
}

func TestInstalledFallsBackToPipxList(t *testing.T) {
	runner := newFakeRunner().
		on("which meshtastic", Result{ExitCode: 1}).
		on("pipx list", Result{Stdout: "meshtastic 2.5.9\n"})
	cli := NewMeshCLI(testSystem(t, runner))
	assert.True(t, cli.Installed(context.Background()))
}

func TestSetRegionValidatesFirst(t *testing.T) {
	runner := newFakeRunner()
	cli := NewMeshCLI(testSystem(t, runner))

	assert.ErrorIs(t, cli.SetRegion(context.Background(), "MOON"), ErrUnknownRegion)
	assert.Empty(t, runner.calls)

	require.NoError(t, cli.SetRegion(context.Background(), "eu_868"))
	assert.True(t, runner.called("meshtastic --host localhost --set lora.region EU_868"))
}

func TestRegionQueriesDaemon(t *testing.T) {
	runner := newFakeRunner().
		on("meshtastic --host localhost --get lora.region", Result{Stdout: "Connected to radio\nlora.region: ANZ\n"})
	cli := NewMeshCLI(testSystem(t, runner))

	region, err := cli.Region(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ANZ", region)
}

func TestInstallRunsPipxSteps(t *testing.T) {
	runner := newFakeRunner()
	cli := NewMeshCLI(testSystem(t, runner))

	task := NewTask(CLIInstallSteps...)
	task.Start(func(tk *Task) error { return cli.Install(context.Background(), tk) })
	require.NoError(t, task.WaitForDone())

	assert.True(t, runner.called("env DEBIAN_FRONTEND=noninteractive apt install -y python3-full"))
	assert.True(t, runner.called("pip3 install --upgrade pytap2"))
	assert.True(t, runner.called("env DEBIAN_FRONTEND=noninteractive apt install -y pipx"))
	assert.True(t, runner.called("pipx install meshtastic[cli]"))
	assert.True(t, runner.called("pipx ensurepath"))
	assert.Equal(t, 1.0, task.Progress())
}

func TestInstallSkipsInstalledPackages(t *testing.T) {
	runner := newFakeRunner().
		on("dpkg -l python3-full", Result{Stdout: "ii  python3-full"}).
		on("dpkg -l pipx", Result{Stdout: "ii  pipx"})
	cli := NewMeshCLI(testSystem(t, runner))

	task := NewTask(CLIInstallSteps...)
	task.Start(func(tk *Task) error { return cli.Install(context.Background(), tk) })
	require.NoError(t, task.WaitForDone())

	assert.False(t, runner.called("env DEBIAN_FRONTEND=noninteractive apt install"))
	assert.True(t, runner.called("pipx install meshtastic[cli]"))
}
