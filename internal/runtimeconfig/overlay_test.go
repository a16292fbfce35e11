package runtimeconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMissingFileIsNotFatal(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, m.Start())
	defer m.Close()
	require.Equal(t, Overlay{}, m.Current())
}

func TestReloadPicksUpValidOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overlay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sample_rate_hz: 20\n"), 0o644))

	m := NewManager(path)
	require.NoError(t, m.Start())
	defer m.Close()

	require.Eventually(t, func() bool {
		return m.Current().SampleRateHz == 20
	}, time.Second, 10*time.Millisecond)
}

func TestInvalidOverrideIsIgnored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overlay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sample_rate_hz: 999\n"), 0o644))

	m := NewManager(path)
	require.NoError(t, m.Start())
	defer m.Close()

	require.Equal(t, 0, m.Current().SampleRateHz)
}
