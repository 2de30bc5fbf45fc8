package settings

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestOpen_CreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Spectrometer", "appSettings.json")
	s, err := Open(path, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.Equal(t, Defaults(), s.Get())
	assert.Equal(t, 1750*time.Millisecond, s.PollingRate())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk map[string]any
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, "Dashboard", onDisk["StartingTab"])
	assert.Equal(t, float64(1750), onDisk["PollingRate"])
	assert.Equal(t, true, onDisk["AutomaticallyCheckForUpdates"])
	assert.Equal(t, []any{}, onDisk["PinnedSensorIdentifiers"])
	assert.Equal(t, []any{}, onDisk["GraphedSensorIdentifiers"])
	assert.NotContains(t, onDisk, "LastUpdateDefer")
}

func TestOpen_ToleratesCommentsAndTrailingCommas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "appSettings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  // refresh every second
  "PollingRate": 1000,
  "PinnedSensorIdentifiers": ["/cpu/0/temperature/2",],
  /* left out: graphed */
}`), 0640))

	s, err := Open(path, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, time.Second, s.PollingRate())
	assert.Equal(t, []string{"/cpu/0/temperature/2"}, s.PinnedSensorIdentifiers())
	assert.Equal(t, []string{}, s.GraphedSensorIdentifiers())
	assert.Equal(t, "Dashboard", s.Get().StartingTab)
}

func TestOpen_CorruptFileMovedAside(t *testing.T) {
	path := filepath.Join(t.TempDir(), "appSettings.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0640))

	s, err := Open(path, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), s.Get())

	_, err = os.Stat(path + ".corrupt")
	assert.NoError(t, err)
}

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "appSettings.json")
	s, err := Open(path, zaptest.NewLogger(t))
	require.NoError(t, err)

	require.NoError(t, s.SetPinnedSensorIdentifiers([]string{"/a/0/t", "/b/0/t"}))
	require.NoError(t, s.SetGraphedSensorIdentifiers([]string{"/c/0/t"}))
	require.NoError(t, s.SetPollingRate(500))

	reopened, err := Open(path, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"/a/0/t", "/b/0/t"}, reopened.PinnedSensorIdentifiers())
	assert.Equal(t, []string{"/c/0/t"}, reopened.GraphedSensorIdentifiers())
	assert.Equal(t, 500*time.Millisecond, reopened.PollingRate())

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestGettersReturnCopies(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "appSettings.json"), nil)
	require.NoError(t, err)
	ids := []string{"/a/0/t"}
	require.NoError(t, s.SetPinnedSensorIdentifiers(ids))

	ids[0] = "/mutated"
	got := s.PinnedSensorIdentifiers()
	got[0] = "/also-mutated"
	assert.Equal(t, []string{"/a/0/t"}, s.PinnedSensorIdentifiers())
}

func TestPollingRateClamp(t *testing.T) {
	tests := []struct {
		ms   int
		want time.Duration
	}{
		{0, 1750 * time.Millisecond},
		{-5, 1750 * time.Millisecond},
		{100, 250 * time.Millisecond},
		{250, 250 * time.Millisecond},
		{3000, 3 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, clampRate(tt.ms), "ms=%d", tt.ms)
	}
}

func TestSaveFailureKeepsPreviousState(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "appSettings.json")
	s, err := Open(path, zaptest.NewLogger(t))
	require.NoError(t, err)

	// A directory in place of the temp file makes the write fail.
	require.NoError(t, os.Mkdir(path+".tmp", 0750))
	err = s.SetPinnedSensorIdentifiers([]string{"/a/0/t"})
	require.Error(t, err)
	assert.Empty(t, s.PinnedSensorIdentifiers())
}

func TestWatch_ReloadsPollingRate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "appSettings.json")
	s, err := Open(path, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan Settings, 4)
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx, func(doc Settings) { changed <- doc }) }()

	// Give the watcher time to register before editing.
	time.Sleep(100 * time.Millisecond)

	doc := Defaults()
	doc.PollingRate = 4000
	doc.PinnedSensorIdentifiers = []string{"/ignored/0/t"}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0640))

	select {
	case got := <-changed:
		assert.Equal(t, 4000, got.PollingRate)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after edit")
	}
	assert.Equal(t, 4*time.Second, s.PollingRate())
	assert.Empty(t, s.PinnedSensorIdentifiers())

	cancel()
	require.NoError(t, <-done)
}
