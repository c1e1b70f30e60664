package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bakkerme/selfpost-copier/internal/config"
	"github.com/bakkerme/selfpost-copier/internal/dedupe"
	"github.com/bakkerme/selfpost-copier/internal/reddit"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"COPIER_CONFIG", "COPIER_SITE", "COPIER_SUBREDDITS", "COPIER_TARGET", "COPIER_SAVE_FILE", "COPIER_STORE",
		"REDDIT_USERNAME", "REDDIT_PASSWORD", "REDDIT_CLIENT_ID", "REDDIT_CLIENT_SECRET",
		"REDDIT_USER_AGENT", "REDDIT_HTTP_TIMEOUT", "OTEL_ENABLED",
	} {
		t.Setenv(key, "")
	}
}

func parse(t *testing.T, args ...string) (config.Settings, error) {
	t.Helper()
	flags := &cliFlags{}
	cmd := buildRootCmd(flags)
	require.NoError(t, cmd.ParseFlags(args))
	return resolveSettings(cmd, flags, config.LoadEnv())
}

func TestResolveSettingsFromFlags(t *testing.T) {
	clearEnv(t)
	settings, err := parse(t,
		"-u", "bot", "-p", "secret",
		"-r", "golang", "-r", "r/rust",
		"-t", "r/copies",
		"-l", "10", "-o", "90", "--submit-rate", "1.5",
		"-f", "seen.txt", "-m", "--dry-run",
	)
	require.NoError(t, err)

	assert.Equal(t, "bot", settings.Username)
	assert.Equal(t, []string{"golang", "rust"}, settings.SourceList())
	assert.Equal(t, "copies", settings.NormalizedTarget())
	assert.Equal(t, 10, settings.Limit)
	assert.Equal(t, 90*time.Second, settings.PollRate)
	assert.Equal(t, 1500*time.Millisecond, settings.SubmitRate)
	assert.Equal(t, "seen.txt", settings.StorePath())
	assert.Equal(t, config.DefaultSite, settings.Site)
	assert.True(t, settings.Manual)
	assert.True(t, settings.DryRun)
	assert.True(t, settings.Verbose)
	assert.False(t, settings.UsesOAuth())
}

func TestResolveSettingsQuietWins(t *testing.T) {
	clearEnv(t)
	settings, err := parse(t, "-u", "bot", "-p", "x", "-r", "a", "-t", "b", "-v", "-q")
	require.NoError(t, err)
	assert.False(t, settings.Verbose)
}

func TestResolveSettingsFlagsOverrideDocumentAndEnv(t *testing.T) {
	clearEnv(t)
	doc := filepath.Join(t.TempDir(), "copier.yaml")
	require.NoError(t, os.WriteFile(doc, []byte(`
username: docbot
password: docpass
subreddits: [golang]
target: docs
limit: 50
store:
  driver: sqlite
`), 0o600))
	t.Setenv("REDDIT_PASSWORD", "envpass")

	settings, err := parse(t, "--config", doc, "-t", "flags")
	require.NoError(t, err)

	assert.Equal(t, "docbot", settings.Username)
	assert.Equal(t, "envpass", settings.Password)
	assert.Equal(t, "flags", settings.Target)
	assert.Equal(t, 50, settings.Limit)
	assert.Equal(t, dedupe.DriverSQLite, settings.Store.Driver)
	assert.Equal(t, ".submitted.db", settings.StorePath())
}

func TestResolveSettingsRejectsMissingRequired(t *testing.T) {
	clearEnv(t)
	_, err := parse(t, "-r", "golang")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
	assert.Contains(t, err.Error(), "target subreddit")
}

func TestResolveSettingsMissingDocument(t *testing.T) {
	clearEnv(t)
	_, err := parse(t, "--config", filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

type fakeSite struct {
	mu        sync.Mutex
	loginBody string
	submitted []string
	onSubmit  func()
}

func (f *fakeSite) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/login", func(w http.ResponseWriter, r *http.Request) {
		body := f.loginBody
		if body == "" {
			http.SetCookie(w, &http.Cookie{Name: "reddit_session", Value: "s", Path: "/"})
			body = `{"json":{"errors":[],"data":{"modhash":"mh"}}}`
		}
		fmt.Fprint(w, body)
	})
	mux.HandleFunc("/r/golang+rust/hot.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"modhash":"mh","children":[
			{"data":{"id":"abc","title":"old","selftext":"","subreddit":"golang","is_self":true}},
			{"data":{"id":"ghi","title":"a &lt;b&gt;","selftext":"x &amp; y","subreddit":"golang","is_self":true}},
			{"data":{"id":"jkl","title":"link","selftext":"","subreddit":"rust","is_self":false}}
		]}}`)
	})
	mux.HandleFunc("/api/submit", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		f.mu.Lock()
		f.submitted = append(f.submitted, r.PostForm.Get("sr")+"|"+r.PostForm.Get("title")+"|"+r.PostForm.Get("text"))
		f.mu.Unlock()
		fmt.Fprint(w, `{"json":{"errors":[],"data":{"id":"new","url":"http://example.com/new"}}}`)
		if f.onSubmit != nil {
			f.onSubmit()
		}
	})
	return mux
}

func TestRunCopiesNewSelfPosts(t *testing.T) {
	clearEnv(t)
	saveFile := filepath.Join(t.TempDir(), ".submitted")
	require.NoError(t, os.WriteFile(saveFile, []byte("abc\ndef"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	site := &fakeSite{onSubmit: cancel}
	srv := httptest.NewServer(site.handler())
	defer srv.Close()

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{
		"-u", "bot", "-p", "secret",
		"-r", "golang", "-r", "rust", "-t", "copies",
		"-s", srv.URL, "-f", saveFile,
		"--submit-rate", "0", "--request-interval", "0", "-o", "1h",
	})
	require.NoError(t, cmd.ExecuteContext(ctx))

	site.mu.Lock()
	assert.Equal(t, []string{"copies|a <b>|x & y"}, site.submitted)
	site.mu.Unlock()

	data, err := os.ReadFile(saveFile)
	require.NoError(t, err)
	assert.Equal(t, "abc\ndef\nghi\n", string(data))
	assert.Contains(t, out.String(), "Submitting")
}

func TestRunFailsOnRejectedLogin(t *testing.T) {
	clearEnv(t)
	site := &fakeSite{loginBody: `{"json":{"errors":[["WRONG_PASSWORD","invalid password","passwd"]]}}`}
	srv := httptest.NewServer(site.handler())
	defer srv.Close()

	var errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{
		"-u", "bot", "-p", "wrong", "-r", "golang", "-t", "copies",
		"-s", srv.URL, "-f", filepath.Join(t.TempDir(), ".submitted"),
		"--request-interval", "0",
	})
	err := cmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, reddit.ErrAuth)
	assert.Empty(t, site.submitted)
	// main reports the error; the command itself stays quiet.
	assert.Empty(t, errOut.String())
}
