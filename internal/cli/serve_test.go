package cli

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/roach88/habitsync/internal/model"
	"github.com/roach88/habitsync/internal/remote"
)

// startServe runs the serve command in the background and returns its
// base URL. The server stops when the test ends.
func startServe(t *testing.T, cfgPath string) string {
	t.Helper()
	ready := make(chan net.Addr, 1)
	opts := &ServeOptions{
		RootOptions: &RootOptions{Format: "text", ConfigPath: cfgPath},
		Ready:       func(addr net.Addr) { ready <- addr },
	}
	cmd := newServeCommand(opts)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--listen", "127.0.0.1:0"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})

	select {
	case addr := <-ready:
		return "http://" + addr.String()
	case err := <-done:
		done <- err
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not start")
	}
	return ""
}

func TestServe_MemoryDirectory(t *testing.T) {
	cfg := writeConfig(t, "remote_token: s3cret\n")
	base := startServe(t, cfg)

	resp, err := http.Get(base + "/v1/users/alice/snapshot")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	client := remote.NewRESTClient(base, "alice",
		remote.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "s3cret"})))
	ctx := context.Background()
	require.NoError(t, client.AppendJournalEntry(ctx, model.JournalEntry{
		ID:        "e1",
		Type:      model.EntryManualEdit,
		Timestamp: time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC),
		Changes:   map[model.EntityID]float64{"focus": 1},
	}))

	snap, err := client.FetchSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Journal, 1)
	assert.Equal(t, "e1", snap.Journal[0].ID)
}

func TestServe_RedisDirectory(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := writeConfig(t, fmt.Sprintf("redis_url: redis://%s\n", mr.Addr()))
	base := startServe(t, cfg)

	client := remote.NewRESTClient(base, "alice")
	ctx := context.Background()
	require.NoError(t, client.AppendJournalEntry(ctx, model.JournalEntry{
		ID:        "e1",
		Type:      model.EntryManualEdit,
		Timestamp: time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC),
		Changes:   map[model.EntityID]float64{"focus": 1},
	}))

	keys := mr.Keys()
	assert.NotEmpty(t, keys, "the journal entry is stored in redis")
}

func TestServe_BadRedisURL(t *testing.T) {
	cfg := writeConfig(t, "redis_url: redis://127.0.0.1:1\n")
	opts := &ServeOptions{RootOptions: &RootOptions{Format: "text", ConfigPath: cfg}}
	cmd := newServeCommand(opts)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--listen", "127.0.0.1:0"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}
