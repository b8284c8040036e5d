package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/lukeburns/channeler/internal/app"
)

func readCmd() *cobra.Command {
	var (
		f       channelFlags
		connect []string
		index   uint64
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "read <channel>",
		Short: "Print the entries of a channel",
		Long: "Print the entries of a channel from --index on. With --connect the\n" +
			"command first waits up to --timeout for entry --index to arrive from a peer.",
		Args: cobra.ExactArgs(1),
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

				if len(connect) > 0 {
					if _, err := a.Connect(ctx, connect...); err != nil {
						log.Warn().Err(err).Msg("some peers did not connect")
					}
					wctx, cancel := context.WithTimeout(ctx, timeout)
					_, err := c.Get(wctx, index)
					cancel()
					if err != nil {
						return fmt.Errorf("waiting for entry %d: %w", index, err)
					}
				}

				out := cmd.OutOrStdout()
				for i := index; i < c.Length(); i++ {
					data, err := c.Get(ctx, i)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%d\t%s\n", i, data)
				}
				return nil
			})
		},
	}
	f.register(cmd, true)
	cmd.Flags().StringSliceVar(&connect, "connect", nil, "peer addresses to replicate from")
	cmd.Flags().Uint64Var(&index, "index", 0, "first entry to print")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "how long to wait for peers")
	return cmd
}
