// Copyright (C) 2025 Insurance Navigator contributors
// Tests for blocklist loading and hot reload

package compliance

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeBlocklist(t *testing.T, path string, phrases ...string) {
	t.Helper()
	content := "phrases:\n"
	for _, p := range phrases {
		content += "  - \"" + p + "\"\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestNewGuardrail_LoadsYAMLPhrases(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocklist.yaml")
	writeBlocklist(t, path, "fake referral", "Misrepresent Symptoms")

	g, err := NewGuardrail(path)
	require.NoError(t, err)
	defer g.Close()

	_, hit := g.Check("get a fake referral from a friend")
	assert.True(t, hit)
	_, hit = g.Check("misrepresent symptoms on the form")
	assert.True(t, hit)
	_, hit = g.Check("call member services")
	assert.False(t, hit)
}

func TestNewGuardrail_MissingFileErrors(t *testing.T) {
	_, err := NewGuardrail(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestGuardrail_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocklist.yaml")
	writeBlocklist(t, path, "old phrase")

	g, err := NewGuardrail(path)
	require.NoError(t, err)
	defer g.Close()

	_, hit := g.Check("contains the new phrase here")
	require.False(t, hit)

	writeBlocklist(t, path, "new phrase")

	// The watcher delivers the event asynchronously; poll briefly.
	deadline := time.After(2 * time.Second)
	for {
		if _, hit := g.Check("contains the new phrase here"); hit {
			break
		}
		select {
		case <-deadline:
			t.Fatal("blocklist was not reloaded within 2s")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestGuardrail_BadReloadKeepsPreviousPhrases(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocklist.yaml")
	writeBlocklist(t, path, "blocked phrase")

	g, err := NewGuardrail(path)
	require.NoError(t, err)
	defer g.Close()

	require.NoError(t, os.WriteFile(path, []byte("{ not yaml ["), 0644))

	// Give the watcher time to attempt the reload, then verify the old
	// list still applies.
	time.Sleep(200 * time.Millisecond)
	_, hit := g.Check("this has the blocked phrase in it")
	assert.True(t, hit)
}
