package commands

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cipherclients/internal/observability/logging"
	"cipherclients/internal/relay"
)

const testPassphrase = "Correct-Horse-9-Battery"

type cli struct {
	home  string
	relay string
	env   string
}

func newCLI(t *testing.T, relayURL string) cli {
	dir := t.TempDir()
	return cli{
		home:  filepath.Join(dir, "home"),
		relay: relayURL,
		env:   filepath.Join(dir, "missing.env"),
	}
}

func (c cli) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{
		"--home", c.home,
		"--relay", c.relay,
		"--env-file", c.env,
		"--log-level", "error",
		"-p", testPassphrase,
	}, args...))
	err := execute(root)
	return out.String(), err
}

func (c cli) must(t *testing.T, args ...string) string {
	t.Helper()
	out, err := c.run(t, args...)
	require.NoError(t, err, "cipherclients %v", args)
	return out
}

func TestEndToEnd_TrustMakesConversationSecure(t *testing.T) {
	srv := httptest.NewServer(relay.NewServer(logging.Discard()))
	t.Cleanup(srv.Close)

	alice := newCLI(t, srv.URL)
	bob := newCLI(t, srv.URL)

	bob.must(t, "init")
	bob.must(t, "register", "dev-b", "--name", "bob", "--prekeys", "3")

	alice.must(t, "init")
	out := alice.must(t, "register", "dev-a", "--name", "alice", "--prekeys", "3")
	assert.Contains(t, out, "Registered dev-a with 3 one-time pre-keys")

	alice.must(t, "device", "add", "bob", "dev-b", "--label", "laptop")
	out = alice.must(t, "establish", "dev-b")
	assert.Contains(t, out, "Session with dev-b established")

	out = alice.must(t, "conversation", "add", "chat", "--with", "bob")
	assert.Contains(t, out, "(notSecure)")

	alice.must(t, "trust", "dev-b")
	out = alice.must(t, "conversation", "list")
	assert.Regexp(t, `chat\s+oneToOne\s+secure\s`, out)

	out = alice.must(t, "device", "list")
	assert.Regexp(t, `dev-b\s+bob\s+permanent\s+laptop\s+trusted\s+session`, out)

	alice.must(t, "ignore", "dev-b")
	out = alice.must(t, "conversation", "list")
	assert.Regexp(t, `chat\s+oneToOne\s+secureWithIgnored\s`, out)
}

func TestEndToEnd_DeleteDevice(t *testing.T) {
	srv := httptest.NewServer(relay.NewServer(logging.Discard()))
	t.Cleanup(srv.Close)

	c := newCLI(t, srv.URL)
	c.must(t, "init")
	c.must(t, "register", "dev-a")
	c.must(t, "device", "add", "carol", "dev-c")

	out := c.must(t, "device", "delete", "dev-c")
	assert.Contains(t, out, "Device dev-c deleted")

	out = c.must(t, "device", "list")
	assert.NotContains(t, out, "dev-c")
	assert.Contains(t, out, "self")

	_, err := c.run(t, "trust", "dev-c")
	assert.ErrorContains(t, err, `unknown device "dev-c"`)
}

func TestEndToEnd_BackupRoundTrip(t *testing.T) {
	srv := httptest.NewServer(relay.NewServer(logging.Discard()))
	t.Cleanup(srv.Close)

	c := newCLI(t, srv.URL)
	c.must(t, "init")
	c.must(t, "register", "dev-a")

	path := filepath.Join(t.TempDir(), "backup.json")
	c.must(t, "backup", "export", path)
	out := c.must(t, "backup", "verify", path)
	assert.Contains(t, out, "Backup from dev-a")

	other := newCLI(t, srv.URL)
	other.must(t, "init")
	other.must(t, "register", "dev-x")
	_, err := other.run(t, "backup", "verify", path)
	assert.Error(t, err)
}

func TestEndToEnd_Draft(t *testing.T) {
	srv := httptest.NewServer(relay.NewServer(logging.Discard()))
	t.Cleanup(srv.Close)

	c := newCLI(t, srv.URL)
	c.must(t, "init")
	c.must(t, "register", "dev-a", "--name", "alice")
	c.must(t, "device", "add", "bob", "dev-b")
	out := c.must(t, "conversation", "add", "chat", "--with", "bob")

	id := conversationID(t, out)
	c.must(t, "conversation", "draft", id, "hi @bob and @nobody")
	out = c.must(t, "conversation", "draft", id)
	assert.Contains(t, out, "hi @bob and @nobody")
	assert.Contains(t, out, "@bob at 3+4")
	assert.NotContains(t, out, "@nobody at")

	c.must(t, "conversation", "draft", id, "--clear")
	out = c.must(t, "conversation", "draft", id)
	assert.Equal(t, "No draft\n", out)
}

func TestEstablishFailed_KeepsSaveError(t *testing.T) {
	err := establishFailed("dev-b", nil)
	assert.EqualError(t, err, "could not establish a session with dev-b")

	saveErr := errors.New("disk full")
	err = establishFailed("dev-b", saveErr)
	assert.ErrorIs(t, err, saveErr)
	assert.ErrorContains(t, err, "could not establish a session with dev-b")
	assert.ErrorContains(t, err, "save: disk full")
}

func TestRequiresRegistration(t *testing.T) {
	c := newCLI(t, "http://127.0.0.1:1")
	_, err := c.run(t, "backup", "export", filepath.Join(t.TempDir(), "b.json"))
	assert.ErrorContains(t, err, "run register first")
}

func conversationID(t *testing.T, out string) string {
	t.Helper()
	var id, level string
	_, err := fmt.Sscanf(out, "Conversation %s created %s", &id, &level)
	require.NoError(t, err)
	return id
}
