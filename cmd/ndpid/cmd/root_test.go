package cmd

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestMissingInterfaceFlagExitsOne(t *testing.T) {
	viper.Reset()
	cmd := newRootCmd()
	cmd.SetArgs([]string{})
	exitCode = 0

	err := cmd.Execute()
	require.Error(t, err)
	require.Equal(t, 1, exitCode)
}

func TestHelpFlagExitsOne(t *testing.T) {
	viper.Reset()
	cmd := newRootCmd()
	cmd.SetArgs([]string{"-h"})
	exitCode = 0

	err := cmd.Execute()
	require.NoError(t, err)
	require.Equal(t, 1, exitCode)
}

func TestUnknownFlagExitsOne(t *testing.T) {
	viper.Reset()
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--not-a-real-flag"})
	exitCode = 0

	err := cmd.Execute()
	require.Error(t, err)
}
