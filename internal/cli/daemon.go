package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/llehouerou/mpsd/internal/daemon"
	"github.com/llehouerou/mpsd/internal/errmsg"
	"github.com/llehouerou/mpsd/internal/history"
	"github.com/llehouerou/mpsd/internal/lastfm"
	"github.com/llehouerou/mpsd/internal/logging"
	"github.com/llehouerou/mpsd/internal/player"
	"github.com/llehouerou/mpsd/internal/poller"
	"github.com/llehouerou/mpsd/internal/stderr"
	"github.com/llehouerou/mpsd/internal/tracker"
)

func (a *app) startCmd() *cobra.Command {
	var foreground, daemonized bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start recording in the background",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			if foreground {
				return a.runForeground(cmd.Context(), daemonized)
			}
			return a.startBackground(cmd)
		},
	}
	cmd.Flags().BoolVar(&foreground, "fg", false, "stay in the foreground")
	cmd.Flags().BoolVar(&daemonized, "daemonized", false, "set by start when it re-executes itself")
	_ = cmd.Flags().MarkHidden("daemonized")
	return cmd
}

func (a *app) stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the background recorder",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.daemon().Stop(); err != nil {
				return errmsg.New(errmsg.KindFatal, errmsg.OpStop, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "mpsd stopped")
			return nil
		},
	}
}

func (a *app) restartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart the background recorder",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.daemon().Stop(); err != nil && !errors.Is(err, daemon.ErrNotRunning) {
				return errmsg.New(errmsg.KindFatal, errmsg.OpStop, err)
			}
			return a.startBackground(cmd)
		},
	}
}

func (a *app) daemon() *daemon.Daemon {
	return daemon.New(a.cfg.Daemon.PIDFile)
}

// startBackground re-executes mpsd in the foreground mode, detached.
func (a *app) startBackground(cmd *cobra.Command) error {
	exe, err := os.Executable()
	if err != nil {
		return errmsg.New(errmsg.KindFatal, errmsg.OpStart, err)
	}

	args := []string{"start", "--fg", "--daemonized"}
	if a.cfgFile != "" {
		path, err := filepath.Abs(a.cfgFile)
		if err != nil {
			return errmsg.New(errmsg.KindFatal, errmsg.OpStart, err)
		}
		args = append(args, "--config", path)
	}
	if a.debug {
		args = append(args, "--debug")
	}

	pid, err := a.daemon().Start(exe, args)
	if err != nil {
		return errmsg.New(errmsg.KindFatal, errmsg.OpStart, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "mpsd started (pid %d)\n", pid)
	return nil
}

// runForeground wires the recorder and polls until SIGINT or SIGTERM.
func (a *app) runForeground(ctx context.Context, daemonized bool) error {
	log, closer, err := logging.New(logging.Options{
		File:  a.cfg.Log.File,
		Level: a.cfg.Log.Level,
		Debug: a.debug,
	})
	if err != nil {
		return errmsg.New(errmsg.KindFatal, errmsg.OpStart, err)
	}
	defer closer.Close()

	if f, ok := closer.(*os.File); ok && daemonized {
		if err := stderr.Redirect(f); err != nil {
			log.WithError(err).Warn("could not redirect stderr to the log file")
		} else {
			defer stderr.Restore()
		}
	}

	release, err := a.daemon().Acquire()
	if err != nil {
		return errmsg.New(errmsg.KindFatal, errmsg.OpStart, err)
	}
	defer release()

	store, err := history.Open(a.cfg.Database.Path, history.WithLogger(log))
	if err != nil {
		return err
	}
	defer store.Close()

	var hooks []tracker.Hook
	opts := []poller.Option{
		poller.WithInterval(a.cfg.PollInterval()),
	}
	if scrobbler := a.scrobbler(store, log); scrobbler != nil {
		hooks = append(hooks, scrobbler)
		opts = append(opts, poller.WithPeriodic(lastfm.RetryInterval, scrobbler.Retry))
	}

	adapter := player.NewMPD(a.cfg.MPD.Host, a.cfg.MPD.Port, a.cfg.MPD.Password)
	tr := tracker.New(store, a.cfg.Tracking.PollInterval, a.cfg.Tracking.AddThreshold, log, hooks...)
	opts = append(opts, poller.WithLogger(log.WithField("mpd", adapter.Addr())))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(logrus.Fields{
		"database":  store.Path(),
		"interval":  a.cfg.Tracking.PollInterval,
		"threshold": a.cfg.Tracking.AddThreshold,
	}).Info("mpsd started")

	return poller.New(adapter, tr, opts...).Run(ctx)
}

// scrobbler returns the Last.fm hook, or nil when scrobbling is not set up.
func (a *app) scrobbler(store *history.Store, log logrus.FieldLogger) *lastfm.Scrobbler {
	if !a.cfg.HasLastfmConfig() {
		return nil
	}
	session, err := store.LastfmSession()
	if err != nil {
		log.WithError(err).Warn("could not load Last.fm session")
		return nil
	}
	if session == nil {
		log.Info("Last.fm is configured but not linked, run 'mpsd lastfm login'")
		return nil
	}

	client := lastfm.New(a.cfg.Lastfm.APIKey, a.cfg.Lastfm.APISecret)
	client.SetSessionKey(session.SessionKey)
	log.WithField("user", session.Username).Info("scrobbling to Last.fm")
	return lastfm.NewScrobbler(client, store, log.WithField("component", "lastfm"))
}
