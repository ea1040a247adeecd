package hatsetup

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChannel(t *testing.T) {
	for _, name := range []string{"beta", "Alpha", " DAILY "} {
		channel, err := ParseChannel(name)
		require.NoError(t, err, name)
		assert.Contains(t, Channels, channel)
	}
	_, err := ParseChannel("nightly")
	assert.ErrorIs(t, err, ErrUnknownChannel)
}

func TestRepoURL(t *testing.T) {
	assert.Equal(t,
		"http://download.opensuse.org/repositories/network:/Meshtastic:/beta/Raspbian_12/",
		ChannelBeta.RepoURL("Raspbian_12"),
	)
	assert.Equal(t,
		"http://download.opensuse.org/repositories/network:/Meshtastic:/daily/Raspbian_11/",
		ChannelDaily.RepoURL("Raspbian_11"),
	)
}

func TestRepoFilePaths(t *testing.T) {
	sys := testSystem(t, newFakeRunner())
	repo := NewRepo(sys, NewServices(sys))
	assert.Equal(t,
		filepath.Join(sys.cfg.RepoDir, "network:Meshtastic:beta.list"),
		repo.listFile(ChannelBeta),
	)
	assert.Equal(t,
		filepath.Join(sys.cfg.KeyDir, "network_Meshtastic_alpha.gpg"),
		repo.keyFile(ChannelAlpha),
	)
}

func TestExistingFindsAllChannels(t *testing.T) {
	sys := testSystem(t, newFakeRunner())
	repo := NewRepo(sys, NewServices(sys))
	require.NoError(t, os.WriteFile(repo.listFile(ChannelBeta), []byte("deb ... /\n"), 0644))
	require.NoError(t, os.WriteFile(repo.listFile(ChannelDaily), []byte("deb ... /\n"), 0644))
	require.NoError(t, os.WriteFile(repo.keyFile(ChannelBeta), []byte{1, 2, 3}, 0644))
	// Unrelated files are not picked up.
	require.NoError(t, os.WriteFile(filepath.Join(sys.cfg.RepoDir, "raspi.list"), []byte("deb ... /\n"), 0644))

	existing := repo.Existing()
	assert.Len(t, existing, 3)
}

func TestPurgeRemovesEveryRepoFile(t *testing.T) {
	runner := newFakeRunner()
	sys := testSystem(t, runner)
	repo := NewRepo(sys, NewServices(sys))
	require.NoError(t, os.WriteFile(repo.listFile(ChannelBeta), []byte("deb ... /\n"), 0644))
	require.NoError(t, os.WriteFile(repo.keyFile(ChannelBeta), []byte{1}, 0644))

	require.NoError(t, repo.Purge(context.Background()))
	assert.True(t, runner.called("rm "+repo.listFile(ChannelBeta)))
	assert.True(t, runner.called("rm "+repo.keyFile(ChannelBeta)))
}

func TestFetchKey(t *testing.T) {
	const armored = "-----BEGIN PGP PUBLIC KEY BLOCK-----\n...\n"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/Release.key" {
			w.Write([]byte(armored))
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	sys := testSystem(t, newFakeRunner())
	repo := NewRepo(sys, NewServices(sys))

	key, err := repo.fetchKey(context.Background(), server.URL+"/Release.key")
	require.NoError(t, err)
	assert.Equal(t, armored, key)

	_, err = repo.fetchKey(context.Background(), server.URL+"/missing.key")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestInstallKeyDearmorsAndMoves(t *testing.T) {
	runner := newFakeRunner().on("gpg --dearmor", Result{Stdout: "binary key material"})
	sys := testSystem(t, runner)
	repo := NewRepo(sys, NewServices(sys))
	dst := repo.keyFile(ChannelBeta)

	require.NoError(t, repo.installKey(context.Background(), "-----BEGIN PGP...", dst))
	assert.True(t, runner.called("gpg --dearmor"))
	assert.True(t, runner.called("mv "))
	assert.True(t, runner.called("chmod 644 "+dst))
}

func TestRemoveStopsServiceAndPurges(t *testing.T) {
	runner := newFakeRunner()
	sys := testSystem(t, runner)
	repo := NewRepo(sys, NewServices(sys))
	require.NoError(t, os.WriteFile(repo.listFile(ChannelBeta), []byte("deb ... /\n"), 0644))

	task := NewTask(RemoveSteps...)
	task.Start(func(tk *Task) error { return repo.Remove(context.Background(), tk) })
	require.NoError(t, task.WaitForDone())

	assert.True(t, runner.called("systemctl stop meshtasticd"))
	assert.True(t, runner.called("systemctl disable meshtasticd"))
	assert.True(t, runner.called("env DEBIAN_FRONTEND=noninteractive apt remove --purge -y meshtasticd"))
	assert.True(t, runner.called("rm "+repo.listFile(ChannelBeta)))
	assert.Equal(t, 1.0, task.Progress())
}

func TestInstallRegistersRepoEntry(t *testing.T) {
	runner := newFakeRunner()
	sys := testSystem(t, runner)
	repo := NewRepo(sys, NewServices(sys))
	// Point the key fetch at a local server via a stand-in transport.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("-----BEGIN PGP PUBLIC KEY BLOCK-----\n"))
	}))
	defer server.Close()
	repo.client = server.Client()
	repo.client.Transport = rewriteHost(server.URL)

	task := NewTask(InstallSteps...)
	task.Start(func(tk *Task) error { return repo.Install(context.Background(), ChannelBeta, tk) })
	require.NoError(t, task.WaitForDone())

	entry := runner.inputs["tee "+repo.listFile(ChannelBeta)]
	assert.Equal(t, "deb "+ChannelBeta.RepoURL("Raspbian_12")+" /\n", entry)
	assert.True(t, runner.called("env DEBIAN_FRONTEND=noninteractive apt update"))
	assert.True(t, runner.called("env DEBIAN_FRONTEND=noninteractive apt install -y"))
	assert.Equal(t, 1.0, task.Progress())
}

// rewriteHost redirects every request to a test server regardless of the
// requested host.
func rewriteHost(serverURL string) http.RoundTripper {
	return roundTripFunc(func(r *http.Request) (*http.Response, error) {
		redirected := *r
		redirected.URL.Scheme = "http"
		redirected.URL.Host = serverURL[len("http://"):]
		return http.DefaultTransport.RoundTrip(&redirected)
	})
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
