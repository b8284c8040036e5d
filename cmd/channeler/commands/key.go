package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lukeburns/channeler/internal/app"
)

func keyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "key",
		Short: "Print the root public key, discovery key and fingerprint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, app.Config{}, func(_ context.Context, a *app.App) error {
				km := a.Store.Keys()
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Public key:    %s\n", km.PublicKey())
				fmt.Fprintf(out, "Discovery key: %s\n", km.DiscoveryKey())
				fmt.Fprintf(out, "Fingerprint:   %s\n", km.Fingerprint())
				return nil
			})
		},
	}
}
