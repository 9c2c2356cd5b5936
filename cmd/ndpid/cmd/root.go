// Package cmd implements the ndpid command line interface, spec.md §6.
//
// Grounded on els0r-goProbe/cmd/goProbe/cmd/root.go's cobra root command
// plus viper flag binding, simplified to this spec's four flags and
// single positional-less invocation (no subcommands, no config file).
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/flowlens/ndpid-go/pkg/dpi"
	"github.com/flowlens/ndpid-go/pkg/engine"
	"github.com/flowlens/ndpid-go/pkg/logging"
)

const (
	flagInterface = "i"
	flagStderr    = "l"
	flagSocket    = "c"

	defaultSocketPath = "/tmp/ndpid-collector.sock"
)

// Execute builds and runs the root command, returning the process exit
// code per spec.md §6 (0 on clean EOF or signal shutdown, 1 on setup
// failure, usage error, -h, or an unknown/missing flag).
func Execute() int {
	exitCode = 0
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return exitCode
}

// exitCode is set by runE before returning, since cobra's Execute only
// tells the caller whether an error occurred, not a negotiated code.
var exitCode int

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ndpid",
		Short:         "multi-threaded flow classifier and exporter",
		SilenceUsage:  false,
		SilenceErrors: true,
		RunE:          runE,
	}

	pflags := cmd.Flags()
	pflags.StringP(flagInterface, flagInterface, "", "capture source: device name or path to a capture file")
	pflags.BoolP(flagStderr, flagStderr, false, "also log to standard error")
	pflags.StringP(flagSocket, flagSocket, defaultSocketPath, "collector socket path")

	if err := viper.BindPFlags(pflags); err != nil {
		// flag binding failures are a programming error, not a runtime
		// one; fail fast rather than silently ignoring flag bindings.
		panic(fmt.Sprintf("failed to bind flags: %v", err))
	}
	viper.SetEnvPrefix("NDPID")
	viper.AutomaticEnv()

	// spec.md §6: -h exits 1 like an unknown or missing flag, unlike
	// cobra's default help behavior (which exits 0).
	cmd.SetHelpFunc(func(c *cobra.Command, _ []string) {
		c.Println(c.UsageString())
		exitCode = 1
	})

	return cmd
}

func runE(cmd *cobra.Command, _ []string) error {
	iface := viper.GetString(flagInterface)
	if iface == "" {
		cmd.Println(cmd.UsageString())
		exitCode = 1
		return fmt.Errorf("missing required -%s", flagInterface)
	}

	logToStderr := viper.GetBool(flagStderr)
	if err := logging.Init(logging.LevelInfo, logToStderr); err != nil {
		exitCode = 1
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	cfg := engine.Config{
		Target:   iface,
		SinkPath: viper.GetString(flagSocket),
	}

	e := engine.New(cfg, dpi.NewSignatureEngine(), logging.Logger())
	if err := e.Run(context.Background()); err != nil {
		logging.Logger().Errorf("fatal: %v", err)
		fmt.Fprintln(os.Stderr, err)
		exitCode = 1
		return err
	}

	exitCode = 0
	return nil
}
