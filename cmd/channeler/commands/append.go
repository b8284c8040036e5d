package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lukeburns/channeler/internal/app"
)

func appendCmd() *cobra.Command {
	var f channelFlags
	cmd := &cobra.Command{
		Use:   "append <channel> <entry>...",
		Short: "Append entries to one of our channels",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, app.Config{}, func(ctx context.Context, a *app.App) error {
				ch, err := f.open(a.Store, args[0])
				if err != nil {
					return err
				}
				c, err := ch.Open(ctx)
				if err != nil {
					return err
				}
				for _, entry := range args[1:] {
					i, err := c.Append(ctx, []byte(entry))
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%d\n", i)
				}
				return nil
			})
		},
	}
	f.register(cmd, false)
	return cmd
}
