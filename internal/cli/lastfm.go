package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/llehouerou/mpsd/internal/errmsg"
	"github.com/llehouerou/mpsd/internal/history"
	"github.com/llehouerou/mpsd/internal/lastfm"
)

// openBrowser is replaced in tests.
var openBrowser = lastfm.OpenBrowser

func (a *app) lastfmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lastfm",
		Short: "Link or unlink a Last.fm account for scrobbling",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Help()
			return usageError{errors.New("expected login or logout")}
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "login",
		Short: "Authorize mpsd to scrobble to your Last.fm account",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.cfg.HasLastfmConfig() {
				return errmsg.New(errmsg.KindFatal, errmsg.OpLastfmAuth,
					errors.New("set lastfm.api_key and lastfm.api_secret first"))
			}
			return a.lastfmLogin(cmd, lastfm.New(a.cfg.Lastfm.APIKey, a.cfg.Lastfm.APISecret))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "logout",
		Short: "Forget the linked Last.fm account",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := history.Open(a.cfg.Database.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.DeleteLastfmSession(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Last.fm account unlinked")
			return nil
		},
	})

	return cmd
}

func (a *app) lastfmLogin(cmd *cobra.Command, auth lastfm.Authenticator) error {
	username, sessionKey, err := lastfm.Login(auth, cmd.InOrStdin(), cmd.OutOrStdout(), openBrowser)
	if err != nil {
		return errmsg.New(errmsg.KindFatal, errmsg.OpLastfmAuth, err)
	}

	store, err := history.Open(a.cfg.Database.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.SaveLastfmSession(username, sessionKey); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Linked Last.fm account %s\n", username)
	return nil
}
