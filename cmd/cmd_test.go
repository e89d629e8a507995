package cmd

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"calendar/auth"
	"calendar/config"
	"calendar/db"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig points the commands at a temporary data directory with a cheap
// bcrypt cost.
func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf("data_dir: %s\nbcrypt_cost: 4\nsession_key: test-session-key\nlog_level: error\n", dir)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func login(t *testing.T, configPath, username, password string) error {
	t.Helper()
	cfg, err := config.Load(configPath)
	require.NoError(t, err)
	docs, err := db.Open(cfg)
	require.NoError(t, err)
	defer docs.Close()
	_, err = auth.NewService(db.NewUserStore(docs), cfg.BcryptCost, zerolog.Nop()).
		Login(context.Background(), username, password)
	return err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "calendar dev")
	assert.Contains(t, out, "Go version: go")
}

func TestUseradd(t *testing.T) {
	cfgPath := writeConfig(t)

	out, err := run(t, "", "--config", cfgPath, "useradd", "alice", "--password", "pw123")
	require.NoError(t, err)
	assert.Contains(t, out, "user alice created")
	assert.NoError(t, login(t, cfgPath, "alice", "pw123"))
	assert.ErrorIs(t, login(t, cfgPath, "alice", "pw124"), auth.ErrInvalidCredentials)

	_, err = run(t, "", "--config", cfgPath, "useradd", "alice", "--password", "other")
	assert.ErrorIs(t, err, auth.ErrUsernameTaken)
	assert.NoError(t, login(t, cfgPath, "alice", "pw123"), "existing account untouched")
}

func TestUseraddReadsStdin(t *testing.T) {
	cfgPath := writeConfig(t)

	_, err := run(t, "from-stdin\n", "--config", cfgPath, "useradd", "bob")
	require.NoError(t, err)
	assert.NoError(t, login(t, cfgPath, "bob", "from-stdin"))
}

func TestUseraddRejects(t *testing.T) {
	cfgPath := writeConfig(t)

	_, err := run(t, "", "--config", cfgPath, "useradd", "../users/users", "--password", "pw")
	assert.ErrorIs(t, err, auth.ErrInvalidUsername)

	_, err = run(t, "", "--config", cfgPath, "useradd", "carol")
	assert.ErrorIs(t, err, auth.ErrInvalidPassword)

	_, err = run(t, "", "--config", cfgPath, "useradd", "carol", "--password", strings.Repeat("x", 73))
	assert.ErrorIs(t, err, auth.ErrPasswordTooLong)

	_, err = run(t, "", "--config", cfgPath, "useradd")
	assert.Error(t, err)
}

func TestServeRejectsBadPort(t *testing.T) {
	cfgPath := writeConfig(t)
	_, err := run(t, "", "--config", cfgPath, "serve", "--port", "70000")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestMissingConfigFile(t *testing.T) {
	_, err := run(t, "", "--config", filepath.Join(t.TempDir(), "nope.yaml"), "version")
	assert.NoError(t, err, "version does not load config")

	_, err = run(t, "", "--config", filepath.Join(t.TempDir(), "nope.yaml"), "useradd", "alice", "--password", "x")
	assert.Error(t, err)
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestRunServerShutsDown(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.StaticDir = ""
	cfg.SessionKey = "test-session-key"
	cfg.ListenIP = "127.0.0.1"
	cfg.ListenPort = freePort(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runServer(ctx, cfg, zerolog.Nop()) }()

	url := fmt.Sprintf("http://%s/healthz", cfg.Addr())
	assert.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(shutdownTimeout + time.Second):
		t.Fatal("server did not stop")
	}
}
