package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/llehouerou/mpsd/internal/history"
)

var (
	whenStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	artistStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	titleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	timeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

func (a *app) recentCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List the latest recorded listens",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 {
				return usageError{fmt.Errorf("invalid count %d", limit)}
			}
			if _, err := os.Stat(a.cfg.Database.Path); errors.Is(err, fs.ErrNotExist) {
				fmt.Fprintln(cmd.OutOrStdout(), "No listens recorded yet.")
				return nil
			}

			store, err := history.Open(a.cfg.Database.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			listens, err := store.RecentListens(limit)
			if err != nil {
				return err
			}
			if len(listens) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No listens recorded yet.")
				return nil
			}
			printListens(cmd.OutOrStdout(), listens, time.Now())
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "count", "n", 10, "number of listens to show")
	return cmd
}

func printListens(w io.Writer, listens []history.Listen, now time.Time) {
	for _, l := range listens {
		when := l.Timestamp
		if !l.PlayedAt.IsZero() {
			when = humanize.RelTime(l.PlayedAt, now, "ago", "from now")
		}
		fmt.Fprintf(w, "%s  %s - %s  %s\n",
			whenStyle.Render(fmt.Sprintf("%-16s", when)),
			artistStyle.Render(l.Artist),
			titleStyle.Render(l.Title),
			timeStyle.Render(listenedTime(l.Seconds, l.Length)),
		)
	}
}

// listenedTime renders "m:ss", or "m:ss/m:ss" when the length is known.
func listenedTime(seconds, length int) string {
	if length <= 0 {
		return clock(seconds)
	}
	return clock(seconds) + "/" + clock(length)
}

func clock(seconds int) string {
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
