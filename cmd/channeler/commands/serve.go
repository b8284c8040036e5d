package commands

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/lukeburns/channeler/internal/app"
)

func serveCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept peers and replicate any core they ask for",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, app.Config{}, func(ctx context.Context, a *app.App) error {
				if len(a.Settings.Peers) > 0 {
					if _, err := a.Connect(ctx); err != nil {
						log.Warn().Err(err).Msg("some peers did not connect")
					}
				}
				log.Info().Str("key", a.Store.PublicKey().String()).Msg("serving")
				return a.Serve(ctx, listen)
			})
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "address to accept peers on (default from config)")
	return cmd
}
