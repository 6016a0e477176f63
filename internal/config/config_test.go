package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reftrack.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.ConnectionTimeout())
	assert.Equal(t, 30*time.Second, cfg.UpdateTimeout())
	assert.Equal(t, ":8877", cfg.Server.ListenAddr)
	assert.Equal(t, 20.0, cfg.Server.PollRate)
	assert.Equal(t, 40, cfg.Server.PollBurst)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfig(t, `
[service]
url = "https://reftrack.example.com"

[repository]
url_prefix = "git@git.example.com:team"

[notify]
connection_timeout = 2.5
update_timeout = 60
send_usernames = true
username = "alice"

[server]
listen_addr = ":9000"
database_url = "postgres://reftrack@localhost/reftrack"
repo_dir = "/srv/reftrack/repo.git"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://reftrack.example.com", cfg.Service.URL)
	assert.Equal(t, "git@git.example.com:team", cfg.Repository.URLPrefix)
	assert.Equal(t, 2500*time.Millisecond, cfg.ConnectionTimeout())
	assert.Equal(t, time.Minute, cfg.UpdateTimeout())
	assert.True(t, cfg.Notify.SendUsernames)
	assert.Equal(t, "alice", cfg.Notify.Username)
	assert.Equal(t, ":9000", cfg.Server.ListenAddr)
	assert.Equal(t, "/srv/reftrack/repo.git", cfg.Server.RepoDir)
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
[service]
url = "https://file.example.com"

[notify]
update_timeout = 60
`)

	t.Setenv("REFTRACK_SERVICE_URL", "https://env.example.com")
	t.Setenv("REFTRACK_NOTIFY_UPDATE_TIMEOUT", "90")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://env.example.com", cfg.Service.URL)
	assert.Equal(t, 90*time.Second, cfg.UpdateTimeout())
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestRepositoryURL(t *testing.T) {
	var cfg Config

	t.Run("explicit url wins", func(t *testing.T) {
		cfg.Repository.URL = "git@git.example.com:team/repo.git"
		cfg.Repository.URLPrefix = "git@git.example.com:team"
		assert.Equal(t, "git@git.example.com:team/repo.git", cfg.RepositoryURL(nil))
	})

	t.Run("prefix plus directory name", func(t *testing.T) {
		cfg.Repository.URL = ""
		cfg.Repository.URLPrefix = "git@git.example.com:team/"
		url := cfg.RepositoryURL(func() (string, error) {
			return "/home/alice/work/repo", nil
		})
		assert.Equal(t, "git@git.example.com:team/repo", url)
	})

	t.Run("nothing configured", func(t *testing.T) {
		cfg.Repository.URL = ""
		cfg.Repository.URLPrefix = ""
		assert.Empty(t, cfg.RepositoryURL(nil))
	})
}

func TestValidateNotify(t *testing.T) {
	valid := func() *Config {
		var cfg Config
		cfg.Service.URL = "https://reftrack.example.com"
		cfg.Repository.URL = "git@git.example.com:team/repo.git"
		cfg.Notify.ConnectionTimeoutSecs = 5
		cfg.Notify.UpdateTimeoutSecs = 30
		return &cfg
	}

	require.NoError(t, ValidateNotify(valid()))

	cfg := valid()
	cfg.Service.URL = ""
	assert.Error(t, ValidateNotify(cfg))

	cfg = valid()
	cfg.Repository.URL = ""
	assert.Error(t, ValidateNotify(cfg))

	cfg = valid()
	cfg.Notify.UpdateTimeoutSecs = 0
	assert.Error(t, ValidateNotify(cfg))
}

func TestValidateServer(t *testing.T) {
	var cfg Config
	cfg.Server.ListenAddr = ":8877"
	cfg.Server.RepoDir = "/srv/reftrack/repo.git"
	require.NoError(t, ValidateServer(&cfg))

	cfg.Server.RepoDir = ""
	assert.Error(t, ValidateServer(&cfg))
}

func TestInitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reftrack.toml")
	require.NoError(t, InitConfig(path))

	// The sample must itself be loadable.
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "https://reftrack.example.com", cfg.Service.URL)

	// Refuses to clobber an existing file.
	assert.Error(t, InitConfig(path))
}
