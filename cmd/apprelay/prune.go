package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/apprelay/apprelay/internal/config"
	"github.com/apprelay/apprelay/internal/model"
)

func newPruneCommand() *cobra.Command {
	var (
		app, platform, channel string
		all                    bool
		stores                 storeFlags
	)
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Apply the retention policy to one group or to every group",
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (app != "") {
				return fmt.Errorf("pass either --all or --app with --platform and --channel")
			}
			g := model.Group{AppName: app, Platform: model.Platform(platform), Channel: model.Channel(channel)}
			if !all && (!g.Platform.Valid() || !g.Channel.Valid()) {
				return fmt.Errorf("--platform must be iOS or Android and --channel Beta, Staging or Production")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := stores.apply(cfg); err != nil {
				return err
			}
			c, err := setup(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer c.close()

			out := cmd.OutOrStdout()
			if all {
				n := c.retention.SweepOnce(cmd.Context())
				fmt.Fprintf(out, "Pruned %d builds\n", n)
				return nil
			}
			res, err := c.retention.Prune(cmd.Context(), g)
			if res.Disabled {
				fmt.Fprintln(out, "Auto-clean is disabled in settings; nothing pruned")
				return nil
			}
			fmt.Fprintf(out, "%s: %d candidates, pruned %d builds\n", g, res.Candidates, len(res.Deleted))
			for _, id := range res.Deleted {
				fmt.Fprintf(out, "  deleted %s\n", id)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&app, "app", "", "application name")
	cmd.Flags().StringVar(&platform, "platform", "", "platform: iOS or Android")
	cmd.Flags().StringVar(&channel, "channel", "", "channel: Beta, Staging or Production")
	cmd.Flags().BoolVar(&all, "all", false, "prune every group")
	stores.register(cmd)
	return cmd
}
