package capture

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTargetDetectsExistingFile(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "ndpid-capture-*.pcap")
	require.NoError(t, err)
	f.Close()

	require.True(t, Target(f.Name()))
}

func TestTargetDetectsLiveInterfaceName(t *testing.T) {
	require.False(t, Target("eth0"))
}

func TestTargetRejectsDirectory(t *testing.T) {
	require.False(t, Target(t.TempDir()))
}

func TestNewPcapSourceSelectsModeAtConstruction(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "ndpid-capture-*.pcap")
	require.NoError(t, err)
	f.Close()

	fileSource := NewPcapSource(f.Name())
	require.True(t, fileSource.IsFile())

	liveSource := NewPcapSource(filepath.Join(t.TempDir(), "does-not-exist"))
	require.False(t, liveSource.IsFile())
}
