package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/llehouerou/mpsd/internal/errmsg"
	"github.com/llehouerou/mpsd/internal/stats"
)

func (a *app) statsCmd() *cobra.Command {
	var template string

	cmd := &cobra.Command{
		Use:   "stats [template]",
		Short: "Generate statistics from the history with the external generator",
		Long: `Runs the configured stats script (default "sqltd") with the database path
as argument and the template on standard input. The template is taken from the
argument, then --template, then stats.template in the configuration.`,
		Args: usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			tmpl := a.cfg.Stats.Template
			if template != "" {
				tmpl = template
			}
			if len(args) == 1 {
				tmpl = args[0]
			}

			err := stats.Generate(cmd.Context(), a.cfg.Stats.Script, a.cfg.Database.Path, tmpl,
				cmd.OutOrStdout(), cmd.ErrOrStderr())
			if errors.Is(err, stats.ErrToolNotFound) {
				return errmsg.NewWith(errmsg.KindFatal, errmsg.OpStats, a.cfg.Stats.Script,
					errors.New("stats generator not found, install it or set stats.script"))
			}
			if err != nil {
				return errmsg.NewWith(errmsg.KindFatal, errmsg.OpStats, tmpl, err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&template, "template", "t", "", "template file")
	return cmd
}
