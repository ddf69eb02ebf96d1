// Package cli implements the mpsd command line.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/llehouerou/mpsd/internal/config"
	"github.com/llehouerou/mpsd/internal/errmsg"
)

// Exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// usageError marks errors caused by a malformed command line.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// usageArgs turns argument validation failures into usage errors.
func usageArgs(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}

// app holds the state shared by all commands of one invocation.
type app struct {
	cfgFile string
	debug   bool
	cfg     *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "mpsd",
		Short: "Record what MPD plays into a listening history",
		Long: `mpsd watches a Music Player Daemon and records every song you listen to,
with how long you listened, in a local SQLite database.`,
		Args: usageArgs(cobra.NoArgs),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Help()
			return usageError{errors.New("a command is required")}
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default: $XDG_CONFIG_HOME/mpsd/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&a.debug, "debug", "d", false, "debug logging")
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	rootCmd.AddCommand(
		a.startCmd(),
		a.stopCmd(),
		a.restartCmd(),
		a.statsCmd(),
		a.recentCmd(),
		a.lastfmCmd(),
	)
	return rootCmd
}

func (a *app) initConfig() error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return errmsg.NewWith(errmsg.KindFatal, errmsg.OpLoadConfig, a.cfgFile, err)
	}
	if err := cfg.Validate(); err != nil {
		return errmsg.NewWith(errmsg.KindFatal, errmsg.OpLoadConfig, a.cfgFile, fmt.Errorf("invalid config: %w", err))
	}
	a.cfg = cfg
	return nil
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	return execute(os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
}

func execute(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)
	rootCmd.SetIn(stdin)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.Execute()
	if err == nil {
		return ExitOK
	}

	var opErr *errmsg.Error
	if errors.As(err, &opErr) {
		fmt.Fprintln(stderr, opErr.Message())
	} else {
		fmt.Fprintln(stderr, "Error:", err)
	}

	var uerr usageError
	if errors.As(err, &uerr) || isCobraUsageError(err) {
		return ExitUsage
	}
	return ExitFailure
}

// isCobraUsageError recognizes the parse errors cobra returns without a
// dedicated type.
func isCobraUsageError(err error) bool {
	msg := err.Error()
	for _, prefix := range []string{"unknown command", "unknown flag", "unknown shorthand flag"} {
		if strings.HasPrefix(msg, prefix) {
			return true
		}
	}
	return false
}
